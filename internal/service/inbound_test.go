package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sync/internal/domain"
	"github.com/spec-kit/ticket-sync/internal/observability"
	"github.com/spec-kit/ticket-sync/internal/translate"
	apperrors "github.com/spec-kit/ticket-sync/pkg/util"
)

type reconcilerFixture struct {
	reconciler *InboundReconciler
	tickets    *memTicketRepo
	records    *memSyncRecordRepo
	mappings   *memMappingRepo
	taxonomy   *memTaxonomyRepo
	profiles   *memProfileRepo
	history    *memHistoryRepo
	comments   *memCommentRepo
	metrics    *observability.Metrics
}

func newReconcilerFixture(t *testing.T) *reconcilerFixture {
	t.Helper()
	logger := zap.NewNop()
	f := &reconcilerFixture{
		tickets:  newMemTicketRepo(),
		records:  newMemSyncRecordRepo(),
		mappings: newMemMappingRepo(),
		taxonomy: newMemTaxonomyRepo(),
		profiles: newMemProfileRepo(),
		history:  &memHistoryRepo{},
		comments: &memCommentRepo{},
		metrics:  observability.NewMetrics(),
	}
	store := NewMappingStore(MappingStoreDependencies{
		MappingRepo:    f.mappings,
		TaxonomyRepo:   f.taxonomy,
		Logger:         logger,
		DefaultProduct: "OnpointDoc",
	})
	translator := translate.NewTranslator(store, translate.Config{
		ProjectKey:       "OD",
		FeatureField:     "customfield_10052",
		IssueTypeDefect:  "Bug",
		IssueTypeRequest: "Requêtes",
		TicketIDField:    "customfield_10001",
		CompanyField:     "customfield_10045",
	})
	f.reconciler = NewInboundReconciler(InboundReconcilerDependencies{
		Translator: translator,
		Mappings:   store,
		Ledger:     NewLedger(f.tickets, f.records, logger),
		Tickets:    f.tickets,
		Profiles:   f.profiles,
		History:    f.history,
		Comments:   f.comments,
		Metrics:    f.metrics,
		Logger:     logger,
	})
	return f
}

func (f *reconcilerFixture) seedMapping(kind domain.MappingKind, external, internal string, ticketType domain.TicketType) {
	_ = f.mappings.Upsert(context.Background(), &domain.MappingEntry{
		Kind:          kind,
		ExternalValue: external,
		InternalValue: internal,
		TicketType:    ticketType,
	})
}

func TestProcessCreatesTicketFromUnknownIssue(t *testing.T) {
	f := newReconcilerFixture(t)
	f.seedMapping(domain.MappingKindPriority, "High", "HIGH", "")
	ctx := context.Background()

	payload := []byte(`{
		"webhookEvent": "jira:issue_created",
		"issue": {
			"id": "10001",
			"key": "OD-200",
			"fields": {
				"summary": "Crash on login",
				"description": "Stacktrace attached",
				"issuetype": {"name": "Bug"},
				"status": {"name": "To Do"},
				"priority": {"name": "High"}
			}
		}
	}`)

	result, err := f.reconciler.Process(ctx, payload)
	require.NoError(t, err)
	assert.Equal(t, ActionCreated, result.Action)
	require.NotEmpty(t, result.TicketID)

	ticket, err := f.tickets.GetByID(ctx, result.TicketID)
	require.NoError(t, err)
	assert.Equal(t, "Crash on login", ticket.Title)
	assert.Equal(t, domain.TicketTypeDefect, ticket.Type)
	assert.Equal(t, "To Do", ticket.Status)
	assert.Equal(t, domain.TicketPriorityHigh, ticket.Priority)
	assert.Equal(t, domain.UpdateSourceTracker, ticket.LastUpdateSource)
	require.NotNil(t, ticket.ExternalKey)
	assert.Equal(t, "OD-200", *ticket.ExternalKey)

	record, err := f.records.GetByTicketID(ctx, result.TicketID)
	require.NoError(t, err)
	assert.Nil(t, record.LastError)
	require.NotNil(t, record.ExternalStatus)
	assert.Equal(t, "To Do", *record.ExternalStatus)

	snapshot := f.metrics.SyncSnapshot()
	assert.Equal(t, int64(1), snapshot["inbound|created"])
}

func TestProcessUpdatesExistingTicket(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()

	key := "OD-201"
	ticket := &domain.Ticket{Title: "old title", Type: domain.TicketTypeDefect, Status: "To Do", Priority: domain.TicketPriorityMedium, ExternalKey: &key}
	require.NoError(t, f.tickets.Create(ctx, ticket))

	payload := []byte(`{
		"webhookEvent": "jira:issue_updated",
		"issue": {
			"key": "OD-201",
			"fields": {
				"summary": "new title",
				"issuetype": {"name": "Bug"},
				"status": {"name": "In Progress"}
			}
		}
	}`)

	result, err := f.reconciler.Process(ctx, payload)
	require.NoError(t, err)
	assert.Equal(t, ActionUpdated, result.Action)
	assert.Equal(t, ticket.ID, result.TicketID)

	updated, err := f.tickets.GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, "new title", updated.Title)
	assert.Equal(t, "In Progress", updated.Status)

	// Status change produced an audit entry attributed to the tracker.
	require.Len(t, f.history.entries, 1)
	assert.Equal(t, "To Do", f.history.entries[0].StatusFrom)
	assert.Equal(t, "In Progress", f.history.entries[0].StatusTo)
	assert.Equal(t, domain.HistorySourceTracker, f.history.entries[0].Source)
}

func TestProcessIgnoresForeignProject(t *testing.T) {
	f := newReconcilerFixture(t)

	result, err := f.reconciler.Process(context.Background(),
		[]byte(`{"webhookEvent": "jira:issue_updated", "issue": {"key": "OTHER-1", "fields": {}}}`))
	require.NoError(t, err)
	assert.Equal(t, ActionIgnored, result.Action)
	assert.Empty(t, result.TicketID)
	assert.Equal(t, 0, f.tickets.createCalls)
	assert.Equal(t, int64(1), f.metrics.SyncSnapshot()["inbound|ignored"])
}

func TestProcessLegacyStatusResolvedByTicketType(t *testing.T) {
	f := newReconcilerFixture(t)
	f.seedMapping(domain.MappingKindStatus, "Done", "Resolved", domain.TicketTypeSupport)
	ctx := context.Background()

	key := "OD-202"
	ticket := &domain.Ticket{Title: "support case", Type: domain.TicketTypeSupport, Status: "In Progress", Priority: domain.TicketPriorityMedium, ExternalKey: &key}
	require.NoError(t, f.tickets.Create(ctx, ticket))

	payload := []byte(`{
		"event_type": "status_changed",
		"jira_issue_key": "OD-202",
		"updates": {"status_from": "In Progress", "status_to": "Done"}
	}`)

	result, err := f.reconciler.Process(ctx, payload)
	require.NoError(t, err)
	assert.Equal(t, ActionUpdated, result.Action)

	updated, err := f.tickets.GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	// The raw tracker status went through the support mapping table.
	assert.Equal(t, "Resolved", updated.Status)
}

func TestProcessLegacyCommentMirrored(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()

	key := "OD-203"
	ticket := &domain.Ticket{Title: "case", Type: domain.TicketTypeSupport, Status: "Open", Priority: domain.TicketPriorityMedium, ExternalKey: &key}
	require.NoError(t, f.tickets.Create(ctx, ticket))

	payload := []byte(`{
		"event_type": "comment_added",
		"jira_issue_key": "OD-203",
		"updates": {"comment": "any update on this?", "comment_author": "Sam"}
	}`)

	_, err := f.reconciler.Process(ctx, payload)
	require.NoError(t, err)

	require.Len(t, f.comments.comments, 1)
	assert.Equal(t, ticket.ID, f.comments.comments[0].TicketID)
	assert.Equal(t, "any update on this?", f.comments.comments[0].Body)
	require.NotNil(t, f.comments.comments[0].AuthorName)
	assert.Equal(t, "Sam", *f.comments.comments[0].AuthorName)
	assert.Equal(t, domain.HistorySourceTracker, f.comments.comments[0].Source)
}

func TestProcessFullShapeUsesTicketReference(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()

	ticket := &domain.Ticket{Title: "internal ticket", Type: domain.TicketTypeRequest, Status: "Open", Priority: domain.TicketPriorityMedium}
	require.NoError(t, f.tickets.Create(ctx, ticket))

	payload := []byte(`{
		"ticket_id": "` + ticket.ID + `",
		"jira_issue": {
			"id": "40001",
			"key": "OD-204",
			"summary": "internal ticket",
			"issuetype": {"name": "Requêtes"},
			"status": {"name": "In Review"}
		}
	}`)

	result, err := f.reconciler.Process(ctx, payload)
	require.NoError(t, err)
	assert.Equal(t, ticket.ID, result.TicketID)

	updated, err := f.tickets.GetByID(ctx, ticket.ID)
	require.NoError(t, err)
	// The previously unlinked ticket is now joined to the tracker issue.
	require.NotNil(t, updated.ExternalKey)
	assert.Equal(t, "OD-204", *updated.ExternalKey)
	require.NotNil(t, updated.ExternalID)
	assert.Equal(t, "40001", *updated.ExternalID)
	// No second ticket was created.
	assert.Equal(t, 1, f.tickets.createCalls)
}

func TestProcessPersistenceFailureRecordedOnSyncRecord(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()

	key := "OD-205"
	ticket := &domain.Ticket{Title: "case", Type: domain.TicketTypeDefect, Status: "Open", Priority: domain.TicketPriorityMedium, ExternalKey: &key}
	require.NoError(t, f.tickets.Create(ctx, ticket))
	require.NoError(t, f.records.Upsert(ctx, &domain.SyncRecord{TicketID: ticket.ID, ExternalKey: key}))
	f.tickets.applyErr = errors.New("connection reset")

	payload := []byte(`{
		"webhookEvent": "jira:issue_updated",
		"issue": {"key": "OD-205", "fields": {"summary": "x", "issuetype": {"name": "Bug"}}}
	}`)

	_, err := f.reconciler.Process(ctx, payload)
	require.Error(t, err)
	assert.Equal(t, "PERSISTENCE", apperrors.ToDomainError(err).Code)

	record, err := f.records.GetByTicketID(ctx, ticket.ID)
	require.NoError(t, err)
	require.NotNil(t, record.LastError)
	assert.Contains(t, *record.LastError, "connection reset")
	assert.Equal(t, int64(1), f.metrics.SyncSnapshot()["inbound|failed"])
}

func TestProcessLazyFeatureCreation(t *testing.T) {
	f := newReconcilerFixture(t)
	f.taxonomy.addProduct("OnpointDoc")
	ctx := context.Background()

	payload := []byte(`{
		"webhookEvent": "jira:issue_updated",
		"issue": {
			"key": "OD-206",
			"fields": {
				"summary": "feature tagged",
				"issuetype": {"name": "Bug"},
				"customfield_10052": {"value": "Billing - Invoices"}
			}
		}
	}`)

	result, err := f.reconciler.Process(ctx, payload)
	require.NoError(t, err)

	ticket, err := f.tickets.GetByID(ctx, result.TicketID)
	require.NoError(t, err)
	require.NotNil(t, ticket.FeatureID)
	require.NotNil(t, ticket.ModuleID)
	require.NotNil(t, ticket.ProductID)

	// The mapping was recorded, so the next lookup hits directly.
	entry, err := f.mappings.Get(ctx, domain.MappingKindFeature, "Billing - Invoices", "")
	require.NoError(t, err)
	assert.Equal(t, *ticket.FeatureID, entry.InternalValue)
}

func TestProcessAssigneeResolvedThroughProfile(t *testing.T) {
	f := newReconcilerFixture(t)
	f.profiles.byAccount["acc-9"] = &domain.Profile{ID: "profile-9", DisplayName: "Dana"}
	ctx := context.Background()

	payload := []byte(`{
		"webhookEvent": "jira:issue_updated",
		"issue": {
			"key": "OD-207",
			"fields": {
				"summary": "assigned",
				"issuetype": {"name": "Bug"},
				"assignee": {"accountId": "acc-9"}
			}
		}
	}`)

	result, err := f.reconciler.Process(ctx, payload)
	require.NoError(t, err)

	ticket, err := f.tickets.GetByID(ctx, result.TicketID)
	require.NoError(t, err)
	require.NotNil(t, ticket.AssigneeID)
	assert.Equal(t, "profile-9", *ticket.AssigneeID)
}

func TestProcessUnknownAssigneeLeftUnset(t *testing.T) {
	f := newReconcilerFixture(t)
	ctx := context.Background()

	payload := []byte(`{
		"webhookEvent": "jira:issue_updated",
		"issue": {
			"key": "OD-208",
			"fields": {
				"summary": "assigned to stranger",
				"issuetype": {"name": "Bug"},
				"assignee": {"accountId": "acc-unknown"}
			}
		}
	}`)

	result, err := f.reconciler.Process(ctx, payload)
	require.NoError(t, err)

	ticket, err := f.tickets.GetByID(ctx, result.TicketID)
	require.NoError(t, err)
	assert.Nil(t, ticket.AssigneeID)
}
