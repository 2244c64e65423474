package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-sync/internal/domain"
)

// TaxonomyRepository manages the product/module/submodule/feature hierarchy.
// Find-or-create operations converge via unique constraints on (parent, name).
type TaxonomyRepository interface {
	GetProductByName(ctx context.Context, name string) (*domain.Product, error)
	FindOrCreateModule(ctx context.Context, productID, name string) (*domain.Module, error)
	FindOrCreateSubmodule(ctx context.Context, moduleID, name string) (*domain.Submodule, error)
	FindOrCreateFeature(ctx context.Context, submoduleID, name string) (*domain.Feature, error)
	GetFeatureChain(ctx context.Context, featureID string) (*domain.FeatureRef, error)
	GetProductName(ctx context.Context, id string) (string, error)
	GetModuleName(ctx context.Context, id string) (string, error)
}

type taxonomyRepository struct {
	pool *pgxpool.Pool
}

// NewTaxonomyRepository builds repository.
func NewTaxonomyRepository(pool *pgxpool.Pool) TaxonomyRepository {
	return &taxonomyRepository{pool: pool}
}

func (r *taxonomyRepository) GetProductByName(ctx context.Context, name string) (*domain.Product, error) {
	const query = `SELECT id, name, created_at FROM products WHERE UPPER(TRIM(name))=UPPER(TRIM($1))`
	var product domain.Product
	if err := r.pool.QueryRow(ctx, query, name).Scan(&product.ID, &product.Name, &product.CreatedAt); err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *taxonomyRepository) FindOrCreateModule(ctx context.Context, productID, name string) (*domain.Module, error) {
	const query = `
        INSERT INTO modules (product_id, name) VALUES ($1, TRIM($2))
        ON CONFLICT (product_id, name) DO UPDATE SET name=EXCLUDED.name
        RETURNING id, product_id, name, created_at`
	var module domain.Module
	if err := r.pool.QueryRow(ctx, query, productID, name).Scan(
		&module.ID, &module.ProductID, &module.Name, &module.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &module, nil
}

func (r *taxonomyRepository) FindOrCreateSubmodule(ctx context.Context, moduleID, name string) (*domain.Submodule, error) {
	const query = `
        INSERT INTO submodules (module_id, name) VALUES ($1, TRIM($2))
        ON CONFLICT (module_id, name) DO UPDATE SET name=EXCLUDED.name
        RETURNING id, module_id, name, created_at`
	var submodule domain.Submodule
	if err := r.pool.QueryRow(ctx, query, moduleID, name).Scan(
		&submodule.ID, &submodule.ModuleID, &submodule.Name, &submodule.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &submodule, nil
}

func (r *taxonomyRepository) FindOrCreateFeature(ctx context.Context, submoduleID, name string) (*domain.Feature, error) {
	const query = `
        INSERT INTO features (submodule_id, name) VALUES ($1, TRIM($2))
        ON CONFLICT (submodule_id, name) DO UPDATE SET name=EXCLUDED.name
        RETURNING id, submodule_id, name, created_at`
	var feature domain.Feature
	if err := r.pool.QueryRow(ctx, query, submoduleID, name).Scan(
		&feature.ID, &feature.SubmoduleID, &feature.Name, &feature.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &feature, nil
}

func (r *taxonomyRepository) GetProductName(ctx context.Context, id string) (string, error) {
	var name string
	err := r.pool.QueryRow(ctx, `SELECT name FROM products WHERE id=$1`, id).Scan(&name)
	return name, err
}

func (r *taxonomyRepository) GetModuleName(ctx context.Context, id string) (string, error) {
	var name string
	err := r.pool.QueryRow(ctx, `SELECT name FROM modules WHERE id=$1`, id).Scan(&name)
	return name, err
}

// GetFeatureChain resolves the full classification chain for a feature.
func (r *taxonomyRepository) GetFeatureChain(ctx context.Context, featureID string) (*domain.FeatureRef, error) {
	const query = `
        SELECT m.product_id, s.module_id, f.submodule_id, f.id
        FROM features f
        JOIN submodules s ON s.id = f.submodule_id
        JOIN modules m ON m.id = s.module_id
        WHERE f.id=$1`
	var ref domain.FeatureRef
	if err := r.pool.QueryRow(ctx, query, featureID).Scan(
		&ref.ProductID, &ref.ModuleID, &ref.SubmoduleID, &ref.FeatureID,
	); err != nil {
		return nil, err
	}
	return &ref, nil
}
