package domain

import "time"

// HistorySource identifies which side of the sync produced a history entry.
type HistorySource string

const (
	HistorySourceInternal HistorySource = "internal"
	HistorySourceTracker  HistorySource = "jira"
)

// TicketStatusHistory is an immutable audit entry for status transitions.
type TicketStatusHistory struct {
	ID         string
	TicketID   string
	StatusFrom string
	StatusTo   string
	Source     HistorySource
	CreatedAt  time.Time
}
