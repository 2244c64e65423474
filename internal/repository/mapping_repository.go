package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-sync/internal/domain"
)

// MappingRepository persists vocabulary translation entries.
type MappingRepository interface {
	Get(ctx context.Context, kind domain.MappingKind, externalValue string, ticketType domain.TicketType) (*domain.MappingEntry, error)
	GetByInternal(ctx context.Context, kind domain.MappingKind, internalValue string, ticketType domain.TicketType) (*domain.MappingEntry, error)
	Upsert(ctx context.Context, entry *domain.MappingEntry) error
	ListByKind(ctx context.Context, kind domain.MappingKind) ([]domain.MappingEntry, error)
}

type mappingRepository struct {
	pool *pgxpool.Pool
}

// NewMappingRepository builds repository.
func NewMappingRepository(pool *pgxpool.Pool) MappingRepository {
	return &mappingRepository{pool: pool}
}

func (r *mappingRepository) Get(ctx context.Context, kind domain.MappingKind, externalValue string, ticketType domain.TicketType) (*domain.MappingEntry, error) {
	const query = `
        SELECT id, kind, external_value, internal_value, ticket_type, created_at, updated_at
        FROM jira_mappings WHERE kind=$1 AND external_value=$2 AND ticket_type=$3`
	return r.fetchSingle(ctx, query, kind, externalValue, ticketType)
}

func (r *mappingRepository) GetByInternal(ctx context.Context, kind domain.MappingKind, internalValue string, ticketType domain.TicketType) (*domain.MappingEntry, error) {
	const query = `
        SELECT id, kind, external_value, internal_value, ticket_type, created_at, updated_at
        FROM jira_mappings WHERE kind=$1 AND internal_value=$2 AND ticket_type=$3`
	return r.fetchSingle(ctx, query, kind, internalValue, ticketType)
}

// Upsert converges concurrent writers on the unique (kind, external_value,
// ticket_type) constraint instead of erroring on duplicates.
func (r *mappingRepository) Upsert(ctx context.Context, entry *domain.MappingEntry) error {
	const query = `
        INSERT INTO jira_mappings (kind, external_value, internal_value, ticket_type)
        VALUES ($1,$2,$3,$4)
        ON CONFLICT (kind, external_value, ticket_type) DO UPDATE SET
            internal_value=EXCLUDED.internal_value,
            updated_at=NOW()
        RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		entry.Kind,
		entry.ExternalValue,
		entry.InternalValue,
		entry.TicketType,
	).Scan(&entry.ID, &entry.CreatedAt, &entry.UpdatedAt)
}

func (r *mappingRepository) ListByKind(ctx context.Context, kind domain.MappingKind) ([]domain.MappingEntry, error) {
	const query = `
        SELECT id, kind, external_value, internal_value, ticket_type, created_at, updated_at
        FROM jira_mappings WHERE kind=$1 ORDER BY ticket_type, external_value`
	rows, err := r.pool.Query(ctx, query, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.MappingEntry
	for rows.Next() {
		var entry domain.MappingEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.Kind,
			&entry.ExternalValue,
			&entry.InternalValue,
			&entry.TicketType,
			&entry.CreatedAt,
			&entry.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

func (r *mappingRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.MappingEntry, error) {
	var entry domain.MappingEntry
	if err := r.pool.QueryRow(ctx, query, args...).Scan(
		&entry.ID,
		&entry.Kind,
		&entry.ExternalValue,
		&entry.InternalValue,
		&entry.TicketType,
		&entry.CreatedAt,
		&entry.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &entry, nil
}
