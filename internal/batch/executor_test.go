package batch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sync/internal/config"
	"github.com/spec-kit/ticket-sync/internal/domain"
)

// fakeTicketStore implements the slice of repository.TicketRepository the
// executor touches, backed by an in-memory row map.
type fakeTicketStore struct {
	rows        map[string]map[string]string
	failKeys    map[string]bool
	updateCalls int
	selectCalls int
}

func newFakeTicketStore() *fakeTicketStore {
	return &fakeTicketStore{
		rows:     map[string]map[string]string{},
		failKeys: map[string]bool{},
	}
}

func (f *fakeTicketStore) Create(context.Context, *domain.Ticket) error { return nil }
func (f *fakeTicketStore) GetByID(context.Context, string) (*domain.Ticket, error) {
	return nil, pgx.ErrNoRows
}
func (f *fakeTicketStore) GetByExternalKey(context.Context, string) (*domain.Ticket, error) {
	return nil, pgx.ErrNoRows
}
func (f *fakeTicketStore) ApplyExternalUpdate(context.Context, *domain.Ticket) error { return nil }
func (f *fakeTicketStore) SetExternalRef(context.Context, string, string, string) error {
	return nil
}

func (f *fakeTicketStore) UpdateFieldsByExternalKey(_ context.Context, externalKey string, set map[string]string) (int64, error) {
	f.updateCalls++
	if f.failKeys[externalKey] {
		return 0, errors.New("deadlock detected")
	}
	row, ok := f.rows[externalKey]
	if !ok {
		return 0, nil
	}
	distinct := false
	for col, val := range set {
		if renderedValue(row[col]) != renderedValue(val) {
			distinct = true
		}
	}
	if !distinct {
		// Mirrors the guarded UPDATE: identical values match zero rows.
		return 0, nil
	}
	for col, val := range set {
		row[col] = renderedValue(val)
	}
	return 1, nil
}

// renderedValue mimics how the database hands a typed column back as text:
// date and timestamp literals read back in canonical timestamptz form.
func renderedValue(v string) string {
	for _, layout := range []string{"2006-01-02", "2006-01-02 15:04:05", "2006-01-02 15:04:05-07"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC().Format("2006-01-02 15:04:05-07")
		}
	}
	return v
}

func (f *fakeTicketStore) SelectFieldsByExternalKeys(_ context.Context, columns []string, keys []string) (map[string]map[string]string, error) {
	f.selectCalls++
	result := map[string]map[string]string{}
	for _, key := range keys {
		row, ok := f.rows[key]
		if !ok {
			continue
		}
		fields := map[string]string{}
		for _, col := range columns {
			fields[col] = row[col]
		}
		result[key] = fields
	}
	return result, nil
}

func testExecutor(store *fakeTicketStore) *Executor {
	return NewExecutor(store, config.BatchConfig{ChunkSize: 2, ProgressEvery: 100}, zap.NewNop())
}

func TestExecutorAppliesIntents(t *testing.T) {
	store := newFakeTicketStore()
	store.rows["OD-1"] = map[string]string{"status": "Open"}
	store.rows["OD-2"] = map[string]string{"status": "Open"}

	report, err := testExecutor(store).Run(context.Background(), `
UPDATE tickets SET status='Closed' WHERE jira_issue_key='OD-1';
UPDATE tickets SET status='Closed' WHERE jira_issue_key='OD-2';
`)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 2, report.Applied)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, "Closed", store.rows["OD-1"]["status"])
	assert.Equal(t, 1, store.selectCalls)
}

func TestExecutorSkipsAlreadyApplied(t *testing.T) {
	store := newFakeTicketStore()
	store.rows["OD-1"] = map[string]string{"status": "Closed", "resolution": "Fixed"}
	store.rows["OD-2"] = map[string]string{"status": "Open", "resolution": ""}

	report, err := testExecutor(store).Run(context.Background(), `
UPDATE tickets SET status='Closed', resolution='Fixed' WHERE jira_issue_key='OD-1';
UPDATE tickets SET status='Closed', resolution='Fixed' WHERE jira_issue_key='OD-2';
`)
	require.NoError(t, err)
	assert.Equal(t, 1, report.AlreadyDone)
	assert.Equal(t, 1, report.Applied)
	// The already-done item produced no write.
	assert.Equal(t, 1, store.updateCalls)
}

func TestExecutorContinuesPastFailures(t *testing.T) {
	store := newFakeTicketStore()
	store.rows["OD-1"] = map[string]string{"status": "Open"}
	store.rows["OD-2"] = map[string]string{"status": "Open"}
	store.rows["OD-3"] = map[string]string{"status": "Open"}
	store.failKeys["OD-2"] = true

	report, err := testExecutor(store).Run(context.Background(), `
UPDATE tickets SET status='Closed' WHERE jira_issue_key='OD-1';
UPDATE tickets SET status='Closed' WHERE jira_issue_key='OD-2';
UPDATE tickets SET status='Closed' WHERE jira_issue_key='OD-3';
`)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Applied)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "OD-2", report.Failures[0].ExternalKey)
	assert.Equal(t, 2, report.Failures[0].Statement)
	// The third intent still ran.
	assert.Equal(t, "Closed", store.rows["OD-3"]["status"])
}

func TestExecutorCountsMissingTargets(t *testing.T) {
	store := newFakeTicketStore()
	store.rows["OD-1"] = map[string]string{"status": "Open"}

	report, err := testExecutor(store).Run(context.Background(), `
UPDATE tickets SET status='Closed' WHERE jira_issue_key='OD-1';
UPDATE tickets SET status='Closed' WHERE jira_issue_key='OD-404';
`)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Applied)
	assert.Equal(t, 1, report.Missing)
	assert.Equal(t, report.Total, report.Applied+report.AlreadyDone+report.Missing+report.Failed)
}

func TestExecutorRerunIsIdempotent(t *testing.T) {
	store := newFakeTicketStore()
	store.rows["OD-1"] = map[string]string{"status": "Open"}
	store.rows["OD-2"] = map[string]string{"status": "Open"}

	script := `
UPDATE tickets SET status='Closed' WHERE jira_issue_key='OD-1';
UPDATE tickets SET status='Closed' WHERE jira_issue_key='OD-2';
`
	executor := testExecutor(store)
	first, err := executor.Run(context.Background(), script)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Applied)

	second, err := executor.Run(context.Background(), script)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Applied)
	assert.Equal(t, 2, second.AlreadyDone)
}

func TestExecutorRerunDetectsAppliedDateCorrections(t *testing.T) {
	store := newFakeTicketStore()
	store.rows["OD-1"] = map[string]string{"resolved_at": ""}

	script := `UPDATE tickets SET resolved_at='2024-01-15' WHERE jira_issue_key='OD-1';`
	executor := testExecutor(store)

	first, err := executor.Run(context.Background(), script)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Applied)
	// The stored column reads back in canonical form, not the script literal.
	assert.Equal(t, "2024-01-15 00:00:00+00", store.rows["OD-1"]["resolved_at"])

	second, err := executor.Run(context.Background(), script)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Applied)
	assert.Equal(t, 1, second.AlreadyDone)
	assert.Equal(t, second.Total, second.Applied+second.AlreadyDone+second.Missing+second.Failed)
}

func TestExecutorStopsOnCancelledContext(t *testing.T) {
	store := newFakeTicketStore()
	store.rows["OD-1"] = map[string]string{"status": "Open"}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := testExecutor(store).Run(ctx, `UPDATE tickets SET status='Closed' WHERE jira_issue_key='OD-1';`)
	require.ErrorIs(t, err, context.Canceled)
}
