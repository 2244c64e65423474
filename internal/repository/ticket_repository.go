package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-sync/internal/domain"
)

const ticketColumns = `id, title, description, ticket_type, status, priority, channel,
               jira_issue_key, jira_issue_id, origin, assignee_id, reporter_id,
               company_id, affects_all_companies, product_id, module_id, submodule_id,
               feature_id, resolution, fix_version, custom_fields, last_update_source,
               created_at, updated_at, resolved_at`

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	GetByExternalKey(ctx context.Context, key string) (*domain.Ticket, error)
	ApplyExternalUpdate(ctx context.Context, ticket *domain.Ticket) error
	SetExternalRef(ctx context.Context, id, externalKey, externalID string) error
	UpdateFieldsByExternalKey(ctx context.Context, externalKey string, set map[string]string) (int64, error)
	SelectFieldsByExternalKeys(ctx context.Context, columns []string, keys []string) (map[string]map[string]string, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

// IsUniqueViolation reports whether err is a duplicate-key conflict. The
// idempotency ledger treats these as "someone else created it first".
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (title, description, ticket_type, status, priority, channel,
            jira_issue_key, jira_issue_id, origin, assignee_id, reporter_id, company_id,
            affects_all_companies, product_id, module_id, submodule_id, feature_id,
            resolution, fix_version, custom_fields, last_update_source, created_at, resolved_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,COALESCE($22,NOW()),$23)
        RETURNING id, created_at, updated_at`
	var createdAt any
	if !ticket.CreatedAt.IsZero() {
		createdAt = ticket.CreatedAt
	}
	return r.pool.QueryRow(ctx, query,
		ticket.Title,
		ticket.Description,
		ticket.Type,
		ticket.Status,
		ticket.Priority,
		ticket.Channel,
		ticket.ExternalKey,
		ticket.ExternalID,
		ticket.Origin,
		ticket.AssigneeID,
		ticket.ReporterID,
		ticket.CompanyID,
		ticket.AffectsAllCompanies,
		ticket.ProductID,
		ticket.ModuleID,
		ticket.SubmoduleID,
		ticket.FeatureID,
		ticket.Resolution,
		ticket.FixVersion,
		ticket.CustomFields,
		ticket.LastUpdateSource,
		createdAt,
		ticket.ResolvedAt,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) GetByExternalKey(ctx context.Context, key string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE jira_issue_key=$1`
	return r.fetchSingle(ctx, query, key)
}

// ApplyExternalUpdate writes every translated field in one statement. This is
// the primary update of an inbound reconciliation; side effects come after.
func (r *ticketRepository) ApplyExternalUpdate(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET title=$1, description=$2, ticket_type=$3, status=$4, priority=$5,
            channel=$6, assignee_id=$7, reporter_id=$8, product_id=$9, module_id=$10,
            submodule_id=$11, feature_id=$12, resolution=$13, fix_version=$14,
            custom_fields=$15, last_update_source=$16, resolved_at=$17, updated_at=NOW()
        WHERE id=$18`
	cmd, err := r.pool.Exec(ctx, query,
		ticket.Title,
		ticket.Description,
		ticket.Type,
		ticket.Status,
		ticket.Priority,
		ticket.Channel,
		ticket.AssigneeID,
		ticket.ReporterID,
		ticket.ProductID,
		ticket.ModuleID,
		ticket.SubmoduleID,
		ticket.FeatureID,
		ticket.Resolution,
		ticket.FixVersion,
		ticket.CustomFields,
		ticket.LastUpdateSource,
		ticket.ResolvedAt,
		ticket.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) SetExternalRef(ctx context.Context, id, externalKey, externalID string) error {
	const query = `
        UPDATE tickets SET jira_issue_key=$1, jira_issue_id=$2, updated_at=NOW()
        WHERE id=$3`
	cmd, err := r.pool.Exec(ctx, query, externalKey, externalID, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// batchColumns is the allowlist of columns a batch intent may touch.
var batchColumns = map[string]bool{
	"status":      true,
	"priority":    true,
	"channel":     true,
	"resolution":  true,
	"fix_version": true,
	"module_id":   true,
	"feature_id":  true,
	"company_id":  true,
	"created_at":  true,
	"resolved_at": true,
}

// UpdateFieldsByExternalKey applies one batch intent as a single update. The
// write is guarded with IS DISTINCT FROM so the comparison happens under each
// column's own type: a date literal matches a stored timestamp even though
// their text renderings differ, and a row that already holds every desired
// value affects zero rows.
func (r *ticketRepository) UpdateFieldsByExternalKey(ctx context.Context, externalKey string, set map[string]string) (int64, error) {
	assignments := make([]string, 0, len(set)+1)
	guards := make([]string, 0, len(set))
	args := []any{}
	for col, val := range set {
		if !batchColumns[col] {
			return 0, fmt.Errorf("column %q not allowed in batch updates", col)
		}
		args = append(args, val)
		assignments = append(assignments, fmt.Sprintf("%s=$%d", col, len(args)))
		guards = append(guards, fmt.Sprintf("%s IS DISTINCT FROM $%d", col, len(args)))
	}
	assignments = append(assignments, "updated_at=NOW()")
	args = append(args, externalKey)
	query := fmt.Sprintf("UPDATE tickets SET %s WHERE jira_issue_key=$%d AND (%s)",
		strings.Join(assignments, ", "), len(args), strings.Join(guards, " OR "))
	cmd, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

// SelectFieldsByExternalKeys reads the requested columns for every key in one
// query, so the batch executor can detect already-done items up front.
func (r *ticketRepository) SelectFieldsByExternalKeys(ctx context.Context, columns []string, keys []string) (map[string]map[string]string, error) {
	if len(keys) == 0 {
		return map[string]map[string]string{}, nil
	}
	for _, col := range columns {
		if !batchColumns[col] {
			return nil, fmt.Errorf("column %q not allowed in batch updates", col)
		}
	}
	cols := make([]string, 0, len(columns))
	for _, col := range columns {
		cols = append(cols, fmt.Sprintf("COALESCE(%s::text, '')", col))
	}
	query := fmt.Sprintf(
		"SELECT jira_issue_key, %s FROM tickets WHERE jira_issue_key = ANY($1)",
		strings.Join(cols, ", "))
	rows, err := r.pool.Query(ctx, query, keys)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]map[string]string)
	for rows.Next() {
		var key string
		values := make([]string, len(columns))
		dest := make([]any, 0, len(columns)+1)
		dest = append(dest, &key)
		for i := range values {
			dest = append(dest, &values[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		fields := make(map[string]string, len(columns))
		for i, col := range columns {
			fields[col] = values[i]
		}
		result[key] = fields
	}
	return result, rows.Err()
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&ticket.ID,
		&ticket.Title,
		&ticket.Description,
		&ticket.Type,
		&ticket.Status,
		&ticket.Priority,
		&ticket.Channel,
		&ticket.ExternalKey,
		&ticket.ExternalID,
		&ticket.Origin,
		&ticket.AssigneeID,
		&ticket.ReporterID,
		&ticket.CompanyID,
		&ticket.AffectsAllCompanies,
		&ticket.ProductID,
		&ticket.ModuleID,
		&ticket.SubmoduleID,
		&ticket.FeatureID,
		&ticket.Resolution,
		&ticket.FixVersion,
		&ticket.CustomFields,
		&ticket.LastUpdateSource,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.ResolvedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}
