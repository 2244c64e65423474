package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-sync/internal/domain"
)

// SyncRecordRepository stores per-ticket tracker bookkeeping rows.
type SyncRecordRepository interface {
	GetByTicketID(ctx context.Context, ticketID string) (*domain.SyncRecord, error)
	GetByExternalKey(ctx context.Context, externalKey string) (*domain.SyncRecord, error)
	Upsert(ctx context.Context, record *domain.SyncRecord) error
	ListRecent(ctx context.Context, limit int) ([]domain.SyncRecord, error)
	ListFailed(ctx context.Context, limit int) ([]domain.SyncRecord, error)
}

type syncRecordRepository struct {
	pool *pgxpool.Pool
}

// NewSyncRecordRepository builds repository.
func NewSyncRecordRepository(pool *pgxpool.Pool) SyncRecordRepository {
	return &syncRecordRepository{pool: pool}
}

const syncRecordColumns = `id, ticket_id, jira_issue_key, jira_status, jira_priority,
               jira_assignee_account_id, jira_reporter_account_id, jira_resolution,
               fix_version, sprint_id, sync_metadata, last_synced_at, sync_error,
               created_at, updated_at`

func (r *syncRecordRepository) GetByTicketID(ctx context.Context, ticketID string) (*domain.SyncRecord, error) {
	query := `SELECT ` + syncRecordColumns + ` FROM jira_sync WHERE ticket_id=$1`
	return r.fetchSingle(ctx, query, ticketID)
}

func (r *syncRecordRepository) GetByExternalKey(ctx context.Context, externalKey string) (*domain.SyncRecord, error) {
	query := `SELECT ` + syncRecordColumns + ` FROM jira_sync WHERE jira_issue_key=$1`
	return r.fetchSingle(ctx, query, externalKey)
}

// Upsert writes the record keyed by ticket id. Concurrent writers converge on
// last-write-wins; the ON CONFLICT branch overwrites every tracked field
// including sync_error so a success clears an earlier failure.
func (r *syncRecordRepository) Upsert(ctx context.Context, record *domain.SyncRecord) error {
	const query = `
        INSERT INTO jira_sync (ticket_id, jira_issue_key, jira_status, jira_priority,
            jira_assignee_account_id, jira_reporter_account_id, jira_resolution,
            fix_version, sprint_id, sync_metadata, last_synced_at, sync_error)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
        ON CONFLICT (ticket_id) DO UPDATE SET
            jira_issue_key=EXCLUDED.jira_issue_key,
            jira_status=EXCLUDED.jira_status,
            jira_priority=EXCLUDED.jira_priority,
            jira_assignee_account_id=EXCLUDED.jira_assignee_account_id,
            jira_reporter_account_id=EXCLUDED.jira_reporter_account_id,
            jira_resolution=EXCLUDED.jira_resolution,
            fix_version=EXCLUDED.fix_version,
            sprint_id=EXCLUDED.sprint_id,
            sync_metadata=EXCLUDED.sync_metadata,
            last_synced_at=EXCLUDED.last_synced_at,
            sync_error=EXCLUDED.sync_error,
            updated_at=NOW()
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		record.TicketID,
		record.ExternalKey,
		record.ExternalStatus,
		record.ExternalPriority,
		record.ExternalAssignee,
		record.ExternalReporter,
		record.ExternalResolution,
		record.FixVersion,
		record.SprintID,
		record.Metadata,
		record.LastSyncedAt,
		record.LastError,
	).Scan(&record.ID, &record.CreatedAt, &record.UpdatedAt)
}

func (r *syncRecordRepository) ListRecent(ctx context.Context, limit int) ([]domain.SyncRecord, error) {
	query := `SELECT ` + syncRecordColumns + ` FROM jira_sync ORDER BY last_synced_at DESC NULLS LAST LIMIT $1`
	return r.fetchList(ctx, query, limit)
}

func (r *syncRecordRepository) ListFailed(ctx context.Context, limit int) ([]domain.SyncRecord, error) {
	query := `SELECT ` + syncRecordColumns + ` FROM jira_sync WHERE sync_error IS NOT NULL ORDER BY updated_at DESC LIMIT $1`
	return r.fetchList(ctx, query, limit)
}

func (r *syncRecordRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.SyncRecord, error) {
	var record domain.SyncRecord
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&record.ID,
		&record.TicketID,
		&record.ExternalKey,
		&record.ExternalStatus,
		&record.ExternalPriority,
		&record.ExternalAssignee,
		&record.ExternalReporter,
		&record.ExternalResolution,
		&record.FixVersion,
		&record.SprintID,
		&record.Metadata,
		&record.LastSyncedAt,
		&record.LastError,
		&record.CreatedAt,
		&record.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *syncRecordRepository) fetchList(ctx context.Context, query string, limit int) ([]domain.SyncRecord, error) {
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.SyncRecord
	for rows.Next() {
		var record domain.SyncRecord
		if err := rows.Scan(
			&record.ID,
			&record.TicketID,
			&record.ExternalKey,
			&record.ExternalStatus,
			&record.ExternalPriority,
			&record.ExternalAssignee,
			&record.ExternalReporter,
			&record.ExternalResolution,
			&record.FixVersion,
			&record.SprintID,
			&record.Metadata,
			&record.LastSyncedAt,
			&record.LastError,
			&record.CreatedAt,
			&record.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, record)
	}
	return result, rows.Err()
}
