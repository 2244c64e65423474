package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sync/internal/domain"
	"github.com/spec-kit/ticket-sync/internal/repository"
)

const mappingCacheTTL = 10 * time.Minute

// MappingStore translates tracker vocabulary into internal enumerations.
// Lookups are cached in Redis when a client is available and fall back to
// direct reads when it is not.
type MappingStore struct {
	repo           repository.MappingRepository
	taxonomy       repository.TaxonomyRepository
	cache          *redis.Client
	logger         *zap.Logger
	defaultProduct string
}

// MappingStoreDependencies bundles collaborators for the mapping store.
type MappingStoreDependencies struct {
	MappingRepo    repository.MappingRepository
	TaxonomyRepo   repository.TaxonomyRepository
	Cache          *redis.Client
	Logger         *zap.Logger
	DefaultProduct string
}

// NewMappingStore constructs the store.
func NewMappingStore(deps MappingStoreDependencies) *MappingStore {
	return &MappingStore{
		repo:           deps.MappingRepo,
		taxonomy:       deps.TaxonomyRepo,
		cache:          deps.Cache,
		logger:         deps.Logger,
		defaultProduct: deps.DefaultProduct,
	}
}

// Lookup resolves an external vocabulary value. A missing mapping returns
// ("", false, nil): misses are a valid result routed to caller-chosen
// fallbacks, never an error.
func (s *MappingStore) Lookup(ctx context.Context, kind domain.MappingKind, externalValue string, ticketType domain.TicketType) (string, bool, error) {
	externalValue = strings.TrimSpace(externalValue)
	if externalValue == "" {
		return "", false, nil
	}

	cacheKey := mappingCacheKey(kind, externalValue, ticketType)
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
			return cached, true, nil
		}
	}

	entry, err := s.repo.Get(ctx, kind, externalValue, ticketType)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, entry.InternalValue, mappingCacheTTL).Err(); err != nil {
			s.logger.Warn("mapping cache write failed", zap.Error(err))
		}
	}
	return entry.InternalValue, true, nil
}

// ReverseLookup resolves an internal value back to its external
// representation, used for outbound payloads and round-trip checks.
func (s *MappingStore) ReverseLookup(ctx context.Context, kind domain.MappingKind, internalValue string, ticketType domain.TicketType) (string, bool, error) {
	entry, err := s.repo.GetByInternal(ctx, kind, strings.TrimSpace(internalValue), ticketType)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return entry.ExternalValue, true, nil
}

// Upsert seeds or corrects a mapping entry and drops the cached value.
func (s *MappingStore) Upsert(ctx context.Context, entry *domain.MappingEntry) error {
	entry.ExternalValue = strings.TrimSpace(entry.ExternalValue)
	entry.InternalValue = strings.TrimSpace(entry.InternalValue)
	if err := s.repo.Upsert(ctx, entry); err != nil {
		return err
	}
	if s.cache != nil {
		key := mappingCacheKey(entry.Kind, entry.ExternalValue, entry.TicketType)
		if err := s.cache.Del(ctx, key).Err(); err != nil {
			s.logger.Warn("mapping cache invalidation failed", zap.Error(err))
		}
	}
	return nil
}

// ListByKind returns all entries for one mapping kind.
func (s *MappingStore) ListByKind(ctx context.Context, kind domain.MappingKind) ([]domain.MappingEntry, error) {
	return s.repo.ListByKind(ctx, kind)
}

// EnsureFeature lazily creates the taxonomy chain for an external feature
// value shaped like "Module - Feature" and records the mapping entry so the
// next lookup hits. Values without an inferable parent return ok=false.
func (s *MappingStore) EnsureFeature(ctx context.Context, externalValue string) (*domain.FeatureRef, bool, error) {
	moduleName, featureName, ok := splitFeatureValue(externalValue)
	if !ok {
		return nil, false, nil
	}

	product, err := s.taxonomy.GetProductByName(ctx, s.defaultProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.logger.Warn("default product missing; cannot create feature",
				zap.String("product", s.defaultProduct))
			return nil, false, nil
		}
		return nil, false, err
	}

	module, err := s.taxonomy.FindOrCreateModule(ctx, product.ID, moduleName)
	if err != nil {
		return nil, false, err
	}
	// The external value carries no submodule level; the module name stands
	// in as its own submodule.
	submodule, err := s.taxonomy.FindOrCreateSubmodule(ctx, module.ID, moduleName)
	if err != nil {
		return nil, false, err
	}
	feature, err := s.taxonomy.FindOrCreateFeature(ctx, submodule.ID, featureName)
	if err != nil {
		return nil, false, err
	}

	entry := &domain.MappingEntry{
		Kind:          domain.MappingKindFeature,
		ExternalValue: strings.TrimSpace(externalValue),
		InternalValue: feature.ID,
	}
	if err := s.Upsert(ctx, entry); err != nil {
		return nil, false, err
	}

	return &domain.FeatureRef{
		ProductID:   &product.ID,
		ModuleID:    &module.ID,
		SubmoduleID: &submodule.ID,
		FeatureID:   &feature.ID,
	}, true, nil
}

// FeatureChain resolves the classification chain for an already-mapped
// feature id.
func (s *MappingStore) FeatureChain(ctx context.Context, featureID string) (*domain.FeatureRef, error) {
	return s.taxonomy.GetFeatureChain(ctx, featureID)
}

func splitFeatureValue(value string) (module, feature string, ok bool) {
	parts := strings.SplitN(value, " - ", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	module = strings.TrimSpace(parts[0])
	feature = strings.TrimSpace(parts[1])
	if module == "" || feature == "" {
		return "", "", false
	}
	return module, feature, true
}

func mappingCacheKey(kind domain.MappingKind, externalValue string, ticketType domain.TicketType) string {
	return "mapping:" + string(kind) + ":" + string(ticketType) + ":" + externalValue
}
