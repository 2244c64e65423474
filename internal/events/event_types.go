package events

import (
	"time"

	"github.com/spec-kit/ticket-sync/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketSynced          EventType = "ticket_synced"
	EventTicketLinked          EventType = "ticket_linked"
	EventExternalStatusChanged EventType = "external_status_changed"
	EventSyncFailed            EventType = "sync_failed"
)

// Event represents a domain event emitted by the sync services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketSyncedPayload payload.
type TicketSyncedPayload struct {
	ExternalKey string `json:"external_key"`
	Shape       string `json:"shape"`
	Event       string `json:"event"`
	Created     bool   `json:"created"`
}

// TicketLinkedPayload payload.
type TicketLinkedPayload struct {
	ExternalKey string `json:"external_key"`
	ExternalID  string `json:"external_id"`
}

// ExternalStatusChangedPayload payload.
type ExternalStatusChangedPayload struct {
	StatusFrom string               `json:"status_from"`
	StatusTo   string               `json:"status_to"`
	Source     domain.HistorySource `json:"source"`
}

// SyncFailedPayload payload.
type SyncFailedPayload struct {
	ExternalKey string `json:"external_key"`
	Reason      string `json:"reason"`
}
