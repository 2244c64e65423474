package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sync/internal/domain"
)

func TestLedgerResolveExistingRecord(t *testing.T) {
	tickets := newMemTicketRepo()
	records := newMemSyncRecordRepo()
	ledger := NewLedger(tickets, records, zap.NewNop())
	ctx := context.Background()

	key := "OD-10"
	ticket := &domain.Ticket{Title: "existing", Type: domain.TicketTypeSupport, Status: "Open", Priority: domain.TicketPriorityMedium, ExternalKey: &key}
	require.NoError(t, tickets.Create(ctx, ticket))
	require.NoError(t, records.Upsert(ctx, &domain.SyncRecord{TicketID: ticket.ID, ExternalKey: key}))

	id, created, err := ledger.ResolveOrCreate(ctx, key, "", nil)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, ticket.ID, id)
	assert.Equal(t, 1, tickets.createCalls)
}

func TestLedgerResolvesTicketWithoutRecord(t *testing.T) {
	tickets := newMemTicketRepo()
	records := newMemSyncRecordRepo()
	ledger := NewLedger(tickets, records, zap.NewNop())
	ctx := context.Background()

	key := "OD-11"
	ticket := &domain.Ticket{Title: "linked out of band", Type: domain.TicketTypeDefect, Status: "Open", Priority: domain.TicketPriorityMedium, ExternalKey: &key}
	require.NoError(t, tickets.Create(ctx, ticket))

	id, created, err := ledger.ResolveOrCreate(ctx, key, "", nil)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, ticket.ID, id)

	// The missing bookkeeping row was backfilled.
	record, err := records.GetByTicketID(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, key, record.ExternalKey)
}

func TestLedgerCreatesPlaceholder(t *testing.T) {
	tickets := newMemTicketRepo()
	records := newMemSyncRecordRepo()
	ledger := NewLedger(tickets, records, zap.NewNop())
	ctx := context.Background()

	id, created, err := ledger.ResolveOrCreate(ctx, "OD-12", "30001", nil)
	require.NoError(t, err)
	assert.True(t, created)

	ticket, err := tickets.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Contains(t, ticket.Title, "OD-12")
	assert.Equal(t, domain.TicketTypeSupport, ticket.Type)
	assert.Equal(t, domain.TicketOriginExternal, ticket.Origin)
	assert.Equal(t, domain.UpdateSourceTracker, ticket.LastUpdateSource)
	require.NotNil(t, ticket.ExternalID)
	assert.Equal(t, "30001", *ticket.ExternalID)
}

func TestLedgerIdempotentAcrossCalls(t *testing.T) {
	tickets := newMemTicketRepo()
	records := newMemSyncRecordRepo()
	ledger := NewLedger(tickets, records, zap.NewNop())
	ctx := context.Background()

	first, created, err := ledger.ResolveOrCreate(ctx, "OD-13", "", nil)
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := ledger.ResolveOrCreate(ctx, "OD-13", "", nil)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, tickets.createCalls)
}

func TestLedgerDuplicateCreateRaceResolvesByReread(t *testing.T) {
	tickets := newMemTicketRepo()
	records := newMemSyncRecordRepo()
	ledger := NewLedger(tickets, records, zap.NewNop())
	ctx := context.Background()

	// Simulate a concurrent insert winning between the existence check and
	// our own insert: the fake registers the winner at conflict time.
	key := "OD-14"
	winner := &domain.Ticket{Title: "winner", Type: domain.TicketTypeSupport, Status: "Open", Priority: domain.TicketPriorityMedium, ExternalKey: &key}
	tickets.conflictOnNext = true
	tickets.conflictWinner = winner

	id, created, err := ledger.ResolveOrCreate(ctx, key, "", nil)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, winner.ID, id)
	assert.Equal(t, 1, tickets.createCalls)
}

func TestRecordSyncResultWritesSnapshotAndError(t *testing.T) {
	tickets := newMemTicketRepo()
	records := newMemSyncRecordRepo()
	ledger := NewLedger(tickets, records, zap.NewNop())
	ctx := context.Background()

	status := "Done"
	snapshot := domain.ExternalSnapshot{
		ExternalKey: "OD-15",
		Status:      &status,
		Labels:      []string{"canal:email"},
	}
	ledger.RecordSyncResult(ctx, "ticket-1", snapshot, errors.New("boom"))

	record, err := records.GetByTicketID(ctx, "ticket-1")
	require.NoError(t, err)
	require.NotNil(t, record.LastError)
	assert.Equal(t, "boom", *record.LastError)
	require.NotNil(t, record.ExternalStatus)
	assert.Equal(t, "Done", *record.ExternalStatus)
	require.NotNil(t, record.LastSyncedAt)
	assert.Equal(t, []string{"canal:email"}, record.Metadata["labels"])

	// A later success clears the stored error.
	ledger.RecordSyncResult(ctx, "ticket-1", snapshot, nil)
	record, err = records.GetByTicketID(ctx, "ticket-1")
	require.NoError(t, err)
	assert.Nil(t, record.LastError)
}

func TestRecordSyncResultSwallowsUpsertFailure(t *testing.T) {
	tickets := newMemTicketRepo()
	records := newMemSyncRecordRepo()
	records.upsertErr = errors.New("db down")
	ledger := NewLedger(tickets, records, zap.NewNop())

	// Must not panic or propagate.
	ledger.RecordSyncResult(context.Background(), "ticket-1", domain.ExternalSnapshot{ExternalKey: "OD-16"}, nil)
}
