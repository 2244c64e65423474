package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sync/internal/domain"
	"github.com/spec-kit/ticket-sync/internal/events"
	"github.com/spec-kit/ticket-sync/internal/observability"
	"github.com/spec-kit/ticket-sync/internal/repository"
	"github.com/spec-kit/ticket-sync/internal/translate"
	apperrors "github.com/spec-kit/ticket-sync/pkg/util"
)

// Reconcile actions reported to webhook callers.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionIgnored = "ignored"
)

// ReconcileResult summarizes one inbound reconciliation.
type ReconcileResult struct {
	TicketID string
	Action   string
	Shape    translate.Shape
	Event    string
	Unmapped []string
	Reason   string
}

// InboundReconciler applies tracker notifications to the ticket store. It
// accepts any of the three accumulated payload shapes, resolves or creates
// the target ticket through the ledger, merges the translated fields, and
// records the outcome on the sync record whether the update succeeds or not.
type InboundReconciler struct {
	translator *translate.Translator
	mappings   *MappingStore
	ledger     *Ledger
	tickets    repository.TicketRepository
	profiles   repository.ProfileRepository
	history    repository.TicketHistoryRepository
	comments   repository.CommentRepository
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// InboundReconcilerDependencies bundles collaborators for construction.
type InboundReconcilerDependencies struct {
	Translator *translate.Translator
	Mappings   *MappingStore
	Ledger     *Ledger
	Tickets    repository.TicketRepository
	Profiles   repository.ProfileRepository
	History    repository.TicketHistoryRepository
	Comments   repository.CommentRepository
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
}

// NewInboundReconciler constructs the reconciler.
func NewInboundReconciler(deps InboundReconcilerDependencies) *InboundReconciler {
	return &InboundReconciler{
		translator: deps.Translator,
		mappings:   deps.Mappings,
		ledger:     deps.Ledger,
		tickets:    deps.Tickets,
		profiles:   deps.Profiles,
		history:    deps.History,
		comments:   deps.Comments,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
	}
}

// Process translates and applies one raw notification payload.
//
// The primary field update is transactional from the caller's point of view:
// if it fails, the failure is written to the sync record and returned. Side
// effects (history entries, mirrored comments, events) are best-effort and
// never undo an applied update.
func (r *InboundReconciler) Process(ctx context.Context, raw []byte) (*ReconcileResult, error) {
	normalized, err := r.translator.TranslateInbound(ctx, raw)
	if err != nil {
		r.metrics.RecordSync("inbound", "failed")
		return nil, err
	}

	if normalized.Ignored {
		r.metrics.RecordSync("inbound", "ignored")
		r.logger.Info("notification ignored",
			zap.String("external_key", normalized.ExternalKey),
			zap.String("reason", normalized.IgnoredReason),
		)
		return &ReconcileResult{
			Action: ActionIgnored,
			Shape:  normalized.Shape,
			Event:  normalized.Event,
			Reason: normalized.IgnoredReason,
		}, nil
	}

	ticketID, created, err := r.resolveTicket(ctx, normalized)
	if err != nil {
		r.metrics.RecordSync("inbound", "failed")
		return nil, err
	}

	ticket, err := r.tickets.GetByID(ctx, ticketID)
	if err != nil {
		r.metrics.RecordSync("inbound", "failed")
		return nil, apperrors.NewPersistenceError(err)
	}

	wasLinked := ticket.Linked()
	statusBefore := ticket.Status

	if err := r.resolveDeferred(ctx, normalized, ticket); err != nil {
		r.metrics.RecordSync("inbound", "failed")
		return nil, err
	}

	r.merge(ctx, normalized, ticket)

	if err := r.tickets.ApplyExternalUpdate(ctx, ticket); err != nil {
		persistErr := apperrors.NewPersistenceError(err)
		r.ledger.RecordSyncResult(ctx, ticket.ID, normalized.Snapshot(), persistErr)
		r.metrics.RecordSync("inbound", "failed")
		r.publish(ctx, events.EventSyncFailed, ticket.ID, events.SyncFailedPayload{
			ExternalKey: normalized.ExternalKey,
			Reason:      persistErr.Error(),
		})
		return nil, persistErr
	}

	if !wasLinked {
		if err := r.tickets.SetExternalRef(ctx, ticket.ID, normalized.ExternalKey, normalized.ExternalID); err != nil {
			r.logger.Warn("external reference update failed",
				zap.String("ticket_id", ticket.ID), zap.Error(err))
		} else {
			r.publish(ctx, events.EventTicketLinked, ticket.ID, events.TicketLinkedPayload{
				ExternalKey: normalized.ExternalKey,
				ExternalID:  normalized.ExternalID,
			})
		}
	}

	r.ledger.RecordSyncResult(ctx, ticket.ID, normalized.Snapshot(), nil)
	r.applySideEffects(ctx, normalized, ticket, statusBefore)

	action := ActionUpdated
	outcome := "applied"
	if created {
		action = ActionCreated
		outcome = "created"
	}
	r.metrics.RecordSync("inbound", outcome)
	r.publish(ctx, events.EventTicketSynced, ticket.ID, events.TicketSyncedPayload{
		ExternalKey: normalized.ExternalKey,
		Shape:       string(normalized.Shape),
		Event:       normalized.Event,
		Created:     created,
	})
	r.logger.Info("inbound reconciliation applied",
		zap.String("ticket_id", ticket.ID),
		zap.String("external_key", normalized.ExternalKey),
		zap.String("shape", string(normalized.Shape)),
		zap.String("action", action),
		zap.Strings("unmapped", normalized.Unmapped),
	)

	return &ReconcileResult{
		TicketID: ticket.ID,
		Action:   action,
		Shape:    normalized.Shape,
		Event:    normalized.Event,
		Unmapped: normalized.Unmapped,
	}, nil
}

// resolveTicket finds the internal ticket for a normalized payload. The
// explicit reference of the full-payload shape wins; everything else goes
// through the ledger, which creates a placeholder on first contact.
func (r *InboundReconciler) resolveTicket(ctx context.Context, normalized *translate.NormalizedTicket) (string, bool, error) {
	if normalized.TicketRef != nil && *normalized.TicketRef != "" {
		if _, err := r.tickets.GetByID(ctx, *normalized.TicketRef); err == nil {
			return *normalized.TicketRef, false, nil
		} else if !errors.Is(err, pgx.ErrNoRows) {
			return "", false, apperrors.NewPersistenceError(err)
		}
		// Stale reference; fall through to key-based resolution.
		r.logger.Warn("payload ticket reference not found, resolving by key",
			zap.String("ticket_ref", *normalized.TicketRef),
			zap.String("external_key", normalized.ExternalKey),
		)
	}
	return r.ledger.ResolveOrCreate(ctx, normalized.ExternalKey, normalized.ExternalID, normalized.CreatedAt)
}

// resolveDeferred completes translations that needed the target ticket:
// legacy statuses (no issue type on the wire) and unmapped feature values
// (lazy taxonomy creation).
func (r *InboundReconciler) resolveDeferred(ctx context.Context, normalized *translate.NormalizedTicket, ticket *domain.Ticket) error {
	if normalized.Status == nil && normalized.StatusExternal != nil {
		ticketType := normalized.Type
		if ticketType == "" {
			ticketType = ticket.Type
		}
		internal, ok, err := r.translator.ResolveStatus(ctx, *normalized.StatusExternal, ticketType)
		if err != nil {
			return err
		}
		if ok {
			normalized.Status = &internal
		} else if !normalized.IsUnmapped(translate.FieldStatus) {
			normalized.Unmapped = append(normalized.Unmapped, translate.FieldStatus)
		}
	}

	if normalized.FeatureID == nil && normalized.FeatureValue != nil {
		ref, ok, err := r.mappings.EnsureFeature(ctx, *normalized.FeatureValue)
		if err != nil {
			return err
		}
		if ok {
			normalized.FeatureID = ref.FeatureID
			ticket.ProductID = ref.ProductID
			ticket.ModuleID = ref.ModuleID
			ticket.SubmoduleID = ref.SubmoduleID
		}
	} else if normalized.FeatureID != nil {
		ref, err := r.mappings.FeatureChain(ctx, *normalized.FeatureID)
		if err == nil {
			ticket.ProductID = ref.ProductID
			ticket.ModuleID = ref.ModuleID
			ticket.SubmoduleID = ref.SubmoduleID
		} else if !errors.Is(err, pgx.ErrNoRows) {
			return err
		}
	}
	return nil
}

// merge copies every present translated field onto the ticket. Absent fields
// keep their current values; unmapped fields are left untouched rather than
// guessed at.
func (r *InboundReconciler) merge(ctx context.Context, normalized *translate.NormalizedTicket, ticket *domain.Ticket) {
	if normalized.Title != nil {
		ticket.Title = *normalized.Title
	}
	if normalized.Description != nil {
		ticket.Description = *normalized.Description
	}
	if normalized.Type != "" {
		ticket.Type = normalized.Type
	}
	if normalized.Status != nil {
		ticket.Status = *normalized.Status
	}
	if normalized.Priority != nil {
		ticket.Priority = *normalized.Priority
	}
	if normalized.Channel != nil {
		ticket.Channel = normalized.Channel
	}
	if normalized.FeatureID != nil {
		ticket.FeatureID = normalized.FeatureID
	}
	if normalized.Resolution != nil {
		ticket.Resolution = normalized.Resolution
		if ticket.ResolvedAt == nil {
			now := time.Now()
			ticket.ResolvedAt = &now
		}
	}
	if normalized.FixVersion != nil {
		ticket.FixVersion = normalized.FixVersion
	}
	if len(normalized.CustomFields) > 0 {
		ticket.CustomFields = normalized.CustomFields
	}
	if normalized.AssigneeAccountID != nil {
		if id, ok := r.lookupProfile(ctx, *normalized.AssigneeAccountID); ok {
			ticket.AssigneeID = &id
		}
	}
	if normalized.ReporterAccountID != nil {
		if id, ok := r.lookupProfile(ctx, *normalized.ReporterAccountID); ok {
			ticket.ReporterID = &id
		}
	}
	ticket.LastUpdateSource = domain.UpdateSourceTracker
}

// lookupProfile maps a tracker account id to an internal profile. Unknown
// accounts leave the field unchanged.
func (r *InboundReconciler) lookupProfile(ctx context.Context, accountID string) (string, bool) {
	profile, err := r.profiles.GetByJiraAccountID(ctx, accountID)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			r.logger.Warn("profile lookup failed", zap.String("account_id", accountID), zap.Error(err))
		}
		return "", false
	}
	return profile.ID, true
}

// applySideEffects records the status transition audit entry and mirrors
// comments after a successful update. Failures here are logged only.
func (r *InboundReconciler) applySideEffects(ctx context.Context, normalized *translate.NormalizedTicket, ticket *domain.Ticket, statusBefore string) {
	statusFrom, statusTo := statusBefore, ticket.Status
	if normalized.SideEffects.StatusFrom != nil {
		statusFrom = *normalized.SideEffects.StatusFrom
	}
	if normalized.SideEffects.StatusTo != nil {
		statusTo = *normalized.SideEffects.StatusTo
	}
	if statusFrom != statusTo {
		entry := &domain.TicketStatusHistory{
			TicketID:   ticket.ID,
			StatusFrom: statusFrom,
			StatusTo:   statusTo,
			Source:     domain.HistorySourceTracker,
		}
		if err := r.history.Create(ctx, entry); err != nil {
			r.logger.Warn("status history write failed",
				zap.String("ticket_id", ticket.ID), zap.Error(err))
		} else {
			r.publish(ctx, events.EventExternalStatusChanged, ticket.ID, events.ExternalStatusChangedPayload{
				StatusFrom: statusFrom,
				StatusTo:   statusTo,
				Source:     domain.HistorySourceTracker,
			})
		}
	}

	if normalized.SideEffects.Comment != nil {
		comment := &domain.TicketComment{
			TicketID:   ticket.ID,
			AuthorName: normalized.SideEffects.CommentAuthor,
			Body:       *normalized.SideEffects.Comment,
			Source:     domain.HistorySourceTracker,
		}
		if err := r.comments.Create(ctx, comment); err != nil {
			r.logger.Warn("comment mirror failed",
				zap.String("ticket_id", ticket.ID), zap.Error(err))
		}
	}
}

func (r *InboundReconciler) publish(ctx context.Context, eventType events.EventType, ticketID string, payload any) {
	if r.dispatcher == nil {
		return
	}
	_ = r.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  ticketID,
		Timestamp: time.Now(),
		Payload:   payload,
	})
}
