package domain

import "time"

// TicketComment is a comment mirrored from the tracker onto a ticket.
// Comments arrive as best-effort side effects of inbound notifications.
type TicketComment struct {
	ID         string
	TicketID   string
	AuthorName *string
	Body       string
	Source     HistorySource
	CreatedAt  time.Time
}
