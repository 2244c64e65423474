package dto

import (
	"time"

	"github.com/spec-kit/ticket-sync/internal/domain"
)

// WebhookResponse acknowledges a processed tracker notification.
type WebhookResponse struct {
	Success  bool     `json:"success"`
	Message  string   `json:"message"`
	Action   string   `json:"action"`
	TicketID string   `json:"ticket_id,omitempty"`
	Unmapped []string `json:"unmapped,omitempty"`
}

// MappingUpsertRequest payload.
type MappingUpsertRequest struct {
	ExternalValue string            `json:"external_value"`
	InternalValue string            `json:"internal_value"`
	TicketType    domain.TicketType `json:"ticket_type"`
}

// MappingResponse represents one vocabulary mapping entry.
type MappingResponse struct {
	ID            string             `json:"id"`
	Kind          domain.MappingKind `json:"kind"`
	ExternalValue string             `json:"external_value"`
	InternalValue string             `json:"internal_value"`
	TicketType    domain.TicketType  `json:"ticket_type,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// SyncRecordResponse represents the tracker bookkeeping row for a ticket.
type SyncRecordResponse struct {
	ID               string     `json:"id"`
	TicketID         string     `json:"ticket_id"`
	ExternalKey      string     `json:"jira_issue_key"`
	ExternalStatus   *string    `json:"jira_status"`
	ExternalPriority *string    `json:"jira_priority"`
	Resolution       *string    `json:"jira_resolution"`
	FixVersion       *string    `json:"fix_version"`
	SprintID         *string    `json:"sprint_id"`
	LastSyncedAt     *time.Time `json:"last_synced_at"`
	LastError        *string    `json:"sync_error"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// PublishResponse reports the outcome of mirroring a ticket to the tracker.
type PublishResponse struct {
	TicketID      string `json:"ticket_id"`
	ExternalKey   string `json:"jira_issue_key"`
	ExternalID    string `json:"jira_issue_id,omitempty"`
	AlreadyLinked bool   `json:"already_linked"`
}

// PushStatusRequest payload.
type PushStatusRequest struct {
	Status string `json:"status"`
}

// BatchRunRequest payload.
type BatchRunRequest struct {
	Script string `json:"script"`
}

// BatchFailure is one failed intent within a batch run.
type BatchFailure struct {
	ExternalKey string `json:"jira_issue_key"`
	Statement   int    `json:"statement"`
	Error       string `json:"error"`
}

// BatchReportResponse summarizes a batch run.
type BatchReportResponse struct {
	Total       int            `json:"total"`
	Applied     int            `json:"applied"`
	AlreadyDone int            `json:"already_done"`
	Missing     int            `json:"missing"`
	Failed      int            `json:"failed"`
	Failures    []BatchFailure `json:"failures,omitempty"`
	DurationMS  int64          `json:"duration_ms"`
}

// NewSyncRecordResponse maps a domain record.
func NewSyncRecordResponse(record domain.SyncRecord) SyncRecordResponse {
	return SyncRecordResponse{
		ID:               record.ID,
		TicketID:         record.TicketID,
		ExternalKey:      record.ExternalKey,
		ExternalStatus:   record.ExternalStatus,
		ExternalPriority: record.ExternalPriority,
		Resolution:       record.ExternalResolution,
		FixVersion:       record.FixVersion,
		SprintID:         record.SprintID,
		LastSyncedAt:     record.LastSyncedAt,
		LastError:        record.LastError,
		UpdatedAt:        record.UpdatedAt,
	}
}

// NewMappingResponse maps a domain entry.
func NewMappingResponse(entry domain.MappingEntry) MappingResponse {
	return MappingResponse{
		ID:            entry.ID,
		Kind:          entry.Kind,
		ExternalValue: entry.ExternalValue,
		InternalValue: entry.InternalValue,
		TicketType:    entry.TicketType,
		CreatedAt:     entry.CreatedAt,
		UpdatedAt:     entry.UpdatedAt,
	}
}
