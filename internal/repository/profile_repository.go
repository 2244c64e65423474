package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-sync/internal/domain"
)

// ProfileRepository resolves people referenced by tickets. Tracker account
// identifiers are the join key for inbound assignee/reporter resolution.
type ProfileRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Profile, error)
	GetByJiraAccountID(ctx context.Context, accountID string) (*domain.Profile, error)
}

// CompanyRepository resolves company associations for outbound payloads.
type CompanyRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Company, error)
}

type profileRepository struct {
	pool *pgxpool.Pool
}

// NewProfileRepository builds repository.
func NewProfileRepository(pool *pgxpool.Pool) ProfileRepository {
	return &profileRepository{pool: pool}
}

func (r *profileRepository) GetByID(ctx context.Context, id string) (*domain.Profile, error) {
	const query = `SELECT id, display_name, email, jira_user_id, created_at FROM profiles WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *profileRepository) GetByJiraAccountID(ctx context.Context, accountID string) (*domain.Profile, error) {
	const query = `SELECT id, display_name, email, jira_user_id, created_at FROM profiles WHERE jira_user_id=$1`
	return r.fetchSingle(ctx, query, accountID)
}

func (r *profileRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Profile, error) {
	var profile domain.Profile
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&profile.ID,
		&profile.DisplayName,
		&profile.Email,
		&profile.JiraAccountID,
		&profile.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &profile, nil
}

type companyRepository struct {
	pool *pgxpool.Pool
}

// NewCompanyRepository builds repository.
func NewCompanyRepository(pool *pgxpool.Pool) CompanyRepository {
	return &companyRepository{pool: pool}
}

func (r *companyRepository) GetByID(ctx context.Context, id string) (*domain.Company, error) {
	const query = `SELECT id, name, jira_company_id, created_at FROM companies WHERE id=$1`
	var company domain.Company
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&company.ID,
		&company.Name,
		&company.JiraCompanyID,
		&company.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &company, nil
}
