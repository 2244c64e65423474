package domain

import "time"

// SyncRecord captures the last known tracker-side state for a ticket.
// One row exists per ticket that has ever been linked to an external issue.
type SyncRecord struct {
	ID               string
	TicketID         string
	ExternalKey      string
	ExternalStatus   *string
	ExternalPriority *string
	ExternalAssignee *string
	ExternalReporter *string
	ExternalResolution *string
	FixVersion       *string
	SprintID         *string
	Metadata         map[string]any
	LastSyncedAt     *time.Time
	LastError        *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ExternalSnapshot is the tracker-side state written back onto a SyncRecord
// after each reconciliation attempt.
type ExternalSnapshot struct {
	ExternalKey      string
	Status           *string
	Priority         *string
	Assignee         *string
	Reporter         *string
	Resolution       *string
	FixVersion       *string
	SprintID         *string
	Labels           []string
	Components       []string
}
