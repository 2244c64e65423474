package service

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sync/internal/domain"
	"github.com/spec-kit/ticket-sync/internal/repository"
	apperrors "github.com/spec-kit/ticket-sync/pkg/util"
)

// Ledger is the idempotency ledger: one sync record per external key,
// deciding create-vs-update and absorbing duplicate creation races.
type Ledger struct {
	tickets repository.TicketRepository
	records repository.SyncRecordRepository
	logger  *zap.Logger
}

// NewLedger constructs the ledger.
func NewLedger(tickets repository.TicketRepository, records repository.SyncRecordRepository, logger *zap.Logger) *Ledger {
	return &Ledger{tickets: tickets, records: records, logger: logger}
}

// ResolveOrCreate returns the internal ticket linked to externalKey,
// creating a placeholder ticket and sync record when none exists. Under
// concurrent calls with the same key exactly one placeholder is created:
// the unique constraint on jira_issue_key turns the losing insert into a
// re-read.
func (l *Ledger) ResolveOrCreate(ctx context.Context, externalKey, externalID string, createdAt *time.Time) (string, bool, error) {
	record, err := l.records.GetByExternalKey(ctx, externalKey)
	if err == nil {
		return record.TicketID, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", false, apperrors.NewPersistenceError(err)
	}

	// Tickets created out-of-band may carry the key without a sync record.
	ticket, err := l.tickets.GetByExternalKey(ctx, externalKey)
	if err == nil {
		l.ensureRecord(ctx, ticket.ID, externalKey)
		return ticket.ID, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", false, apperrors.NewPersistenceError(err)
	}

	placeholder := &domain.Ticket{
		Title:            "[Pending sync] " + externalKey,
		Type:             domain.TicketTypeSupport,
		Status:           "Open",
		Priority:         domain.TicketPriorityMedium,
		ExternalKey:      &externalKey,
		Origin:           domain.TicketOriginExternal,
		LastUpdateSource: domain.UpdateSourceTracker,
	}
	if externalID != "" {
		placeholder.ExternalID = &externalID
	}
	if createdAt != nil {
		placeholder.CreatedAt = *createdAt
	}

	if err := l.tickets.Create(ctx, placeholder); err != nil {
		if repository.IsUniqueViolation(err) {
			// Someone else created it first; resolve by re-reading.
			existing, readErr := l.tickets.GetByExternalKey(ctx, externalKey)
			if readErr != nil {
				return "", false, apperrors.NewPersistenceError(readErr)
			}
			return existing.ID, false, nil
		}
		return "", false, apperrors.NewPersistenceError(err)
	}

	l.ensureRecord(ctx, placeholder.ID, externalKey)
	return placeholder.ID, true, nil
}

// RecordSyncResult upserts the sync record for a ticket. It is the system's
// error sink: it never returns an error, so a failed reconciliation always
// leaves an inspectable trail instead of an unhandled failure.
func (l *Ledger) RecordSyncResult(ctx context.Context, ticketID string, snapshot domain.ExternalSnapshot, syncErr error) {
	now := time.Now()
	record := &domain.SyncRecord{
		TicketID:           ticketID,
		ExternalKey:        snapshot.ExternalKey,
		ExternalStatus:     snapshot.Status,
		ExternalPriority:   snapshot.Priority,
		ExternalAssignee:   snapshot.Assignee,
		ExternalReporter:   snapshot.Reporter,
		ExternalResolution: snapshot.Resolution,
		FixVersion:         snapshot.FixVersion,
		SprintID:           snapshot.SprintID,
		LastSyncedAt:       &now,
	}
	if metadata := snapshotMetadata(snapshot); len(metadata) > 0 {
		record.Metadata = metadata
	}
	if syncErr != nil {
		message := syncErr.Error()
		record.LastError = &message
	}

	if err := l.records.Upsert(ctx, record); err != nil {
		l.logger.Error("sync record upsert failed",
			zap.String("ticket_id", ticketID),
			zap.String("external_key", snapshot.ExternalKey),
			zap.Error(err),
		)
	}
}

func (l *Ledger) ensureRecord(ctx context.Context, ticketID, externalKey string) {
	record := &domain.SyncRecord{TicketID: ticketID, ExternalKey: externalKey}
	if err := l.records.Upsert(ctx, record); err != nil {
		l.logger.Warn("initial sync record creation failed",
			zap.String("ticket_id", ticketID),
			zap.Error(err),
		)
	}
}

func snapshotMetadata(snapshot domain.ExternalSnapshot) map[string]any {
	metadata := make(map[string]any)
	if len(snapshot.Labels) > 0 {
		metadata["labels"] = snapshot.Labels
	}
	if len(snapshot.Components) > 0 {
		metadata["components"] = snapshot.Components
	}
	return metadata
}
