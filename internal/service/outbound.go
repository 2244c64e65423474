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
	"github.com/spec-kit/ticket-sync/internal/jira"
	"github.com/spec-kit/ticket-sync/internal/observability"
	"github.com/spec-kit/ticket-sync/internal/repository"
	"github.com/spec-kit/ticket-sync/internal/translate"
	apperrors "github.com/spec-kit/ticket-sync/pkg/util"
)

// PublishResult reports the outcome of an outbound publication.
type PublishResult struct {
	TicketID    string
	ExternalKey string
	ExternalID  string
	// AlreadyLinked is true when the ticket was linked before this call and
	// the publication was a no-op.
	AlreadyLinked bool
}

// OutboundPublisher mirrors internally created tickets into the tracker.
// Publication is idempotent on the ticket's external link: a linked ticket
// is never published twice.
type OutboundPublisher struct {
	translator *translate.Translator
	client     *jira.Client
	tickets    repository.TicketRepository
	taxonomy   repository.TaxonomyRepository
	companies  repository.CompanyRepository
	mappings   *MappingStore
	ledger     *Ledger
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// OutboundPublisherDependencies bundles collaborators for construction.
type OutboundPublisherDependencies struct {
	Translator *translate.Translator
	Client     *jira.Client
	Tickets    repository.TicketRepository
	Taxonomy   repository.TaxonomyRepository
	Companies  repository.CompanyRepository
	Mappings   *MappingStore
	Ledger     *Ledger
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
}

// NewOutboundPublisher constructs the publisher.
func NewOutboundPublisher(deps OutboundPublisherDependencies) *OutboundPublisher {
	return &OutboundPublisher{
		translator: deps.Translator,
		client:     deps.Client,
		tickets:    deps.Tickets,
		taxonomy:   deps.Taxonomy,
		companies:  deps.Companies,
		mappings:   deps.Mappings,
		ledger:     deps.Ledger,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
	}
}

// Publish creates the tracker issue for a ticket and stores the returned
// key and id back on the ticket. Tickets that already carry an external key
// return immediately with AlreadyLinked set.
func (p *OutboundPublisher) Publish(ctx context.Context, ticketID string) (*PublishResult, error) {
	ticket, err := p.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.NewPersistenceError(err)
	}

	if ticket.Linked() {
		p.logger.Info("ticket already linked, publication skipped",
			zap.String("ticket_id", ticket.ID),
			zap.String("external_key", *ticket.ExternalKey),
		)
		result := &PublishResult{TicketID: ticket.ID, ExternalKey: *ticket.ExternalKey, AlreadyLinked: true}
		if ticket.ExternalID != nil {
			result.ExternalID = *ticket.ExternalID
		}
		return result, nil
	}

	input, err := p.buildInput(ctx, ticket)
	if err != nil {
		return nil, err
	}

	payload, err := p.translator.TranslateOutbound(ctx, input)
	if err != nil {
		return nil, err
	}

	created, err := p.client.CreateIssue(ctx, payload)
	if err != nil {
		p.metrics.RecordSync("outbound", "failed")
		snapshot := domain.ExternalSnapshot{ExternalKey: ""}
		p.ledger.RecordSyncResult(ctx, ticket.ID, snapshot, err)
		return nil, err
	}

	if err := p.tickets.SetExternalRef(ctx, ticket.ID, created.Key, created.ID); err != nil {
		// The tracker issue exists but the link write failed; the error is
		// recorded so a retry or manual repair can re-link instead of
		// creating a duplicate.
		persistErr := apperrors.NewPersistenceError(err)
		p.ledger.RecordSyncResult(ctx, ticket.ID, domain.ExternalSnapshot{ExternalKey: created.Key}, persistErr)
		p.metrics.RecordSync("outbound", "failed")
		return nil, persistErr
	}

	p.ledger.RecordSyncResult(ctx, ticket.ID, domain.ExternalSnapshot{ExternalKey: created.Key}, nil)
	p.metrics.RecordSync("outbound", "created")
	p.publishEvent(ctx, events.EventTicketLinked, ticket.ID, events.TicketLinkedPayload{
		ExternalKey: created.Key,
		ExternalID:  created.ID,
	})
	p.logger.Info("ticket published to tracker",
		zap.String("ticket_id", ticket.ID),
		zap.String("external_key", created.Key),
	)

	return &PublishResult{TicketID: ticket.ID, ExternalKey: created.Key, ExternalID: created.ID}, nil
}

// PushStatus propagates an internal status change to the tracker by running
// the matching workflow transition.
func (p *OutboundPublisher) PushStatus(ctx context.Context, ticketID, statusName string) error {
	ticket, err := p.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return apperrors.NewPersistenceError(err)
	}
	if !ticket.Linked() {
		return apperrors.NewValidationError("ticket is not linked to a tracker issue", map[string]any{"ticket_id": ticketID})
	}

	external := statusName
	// Support statuses are stored internally; translate back before pushing.
	if ticket.Type == domain.TicketTypeSupport {
		if mapped, ok, err := p.mappings.ReverseLookup(ctx, domain.MappingKindStatus, statusName, ticket.Type); err != nil {
			return err
		} else if ok {
			external = mapped
		}
	}

	if err := p.client.TransitionTo(ctx, *ticket.ExternalKey, external); err != nil {
		p.metrics.RecordSync("outbound", "failed")
		return err
	}
	p.metrics.RecordSync("outbound", "applied")
	p.logger.Info("status pushed to tracker",
		zap.String("ticket_id", ticket.ID),
		zap.String("external_key", *ticket.ExternalKey),
		zap.String("status", external),
	)
	return nil
}

// buildInput resolves the references the payload needs: taxonomy names, the
// company's tracker id and the channel's external vocabulary. Missing
// references degrade to empty strings rather than blocking publication.
func (p *OutboundPublisher) buildInput(ctx context.Context, ticket *domain.Ticket) (translate.OutboundInput, error) {
	input := translate.OutboundInput{Ticket: ticket}

	if ticket.ProductID != nil {
		if name, err := p.taxonomy.GetProductName(ctx, *ticket.ProductID); err == nil {
			input.ProductName = name
		} else if !errors.Is(err, pgx.ErrNoRows) {
			return input, apperrors.NewPersistenceError(err)
		}
	}
	if ticket.ModuleID != nil {
		if name, err := p.taxonomy.GetModuleName(ctx, *ticket.ModuleID); err == nil {
			input.ModuleName = name
		} else if !errors.Is(err, pgx.ErrNoRows) {
			return input, apperrors.NewPersistenceError(err)
		}
	}
	if ticket.CompanyID != nil {
		company, err := p.companies.GetByID(ctx, *ticket.CompanyID)
		switch {
		case err == nil:
			if company.JiraCompanyID != nil {
				input.CompanyTrackerID = *company.JiraCompanyID
			}
			input.CustomerContext = company.Name
		case !errors.Is(err, pgx.ErrNoRows):
			return input, apperrors.NewPersistenceError(err)
		}
	}
	if ticket.AffectsAllCompanies {
		input.CustomerContext = "All companies"
	}
	if ticket.Channel != nil {
		input.Channel = *ticket.Channel
		if external, ok, err := p.mappings.ReverseLookup(ctx, domain.MappingKindChannel, *ticket.Channel, ""); err != nil {
			return input, err
		} else if ok {
			input.Channel = external
		}
	}
	return input, nil
}

func (p *OutboundPublisher) publishEvent(ctx context.Context, eventType events.EventType, ticketID string, payload any) {
	if p.dispatcher == nil {
		return
	}
	_ = p.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  ticketID,
		Timestamp: time.Now(),
		Payload:   payload,
	})
}
