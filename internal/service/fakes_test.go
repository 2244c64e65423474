package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spec-kit/ticket-sync/internal/domain"
)

// In-memory repository doubles shared by the service tests.

type memTicketRepo struct {
	mu      sync.Mutex
	tickets map[string]*domain.Ticket
	seq     int

	createErr      error
	applyErr       error
	applyCalls     int
	createCalls    int
	conflictOnNext bool
	// conflictWinner is registered at conflict time, modeling a concurrent
	// writer whose insert landed first.
	conflictWinner *domain.Ticket
}

func newMemTicketRepo() *memTicketRepo {
	return &memTicketRepo{tickets: map[string]*domain.Ticket{}}
}

func uniqueViolation() error {
	return &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"}
}

func (m *memTicketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls++
	if m.createErr != nil {
		return m.createErr
	}
	if m.conflictOnNext {
		m.conflictOnNext = false
		if m.conflictWinner != nil {
			m.seq++
			m.conflictWinner.ID = fmt.Sprintf("ticket-%d", m.seq)
			clone := *m.conflictWinner
			m.tickets[clone.ID] = &clone
		}
		return uniqueViolation()
	}
	if ticket.ExternalKey != nil {
		for _, existing := range m.tickets {
			if existing.ExternalKey != nil && *existing.ExternalKey == *ticket.ExternalKey {
				return uniqueViolation()
			}
		}
	}
	m.seq++
	ticket.ID = fmt.Sprintf("ticket-%d", m.seq)
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = time.Now()
	}
	ticket.UpdatedAt = time.Now()
	clone := *ticket
	m.tickets[ticket.ID] = &clone
	return nil
}

func (m *memTicketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ticket, ok := m.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *ticket
	return &clone, nil
}

func (m *memTicketRepo) GetByExternalKey(_ context.Context, key string) (*domain.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ticket := range m.tickets {
		if ticket.ExternalKey != nil && *ticket.ExternalKey == key {
			clone := *ticket
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memTicketRepo) ApplyExternalUpdate(_ context.Context, ticket *domain.Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applyCalls++
	if m.applyErr != nil {
		return m.applyErr
	}
	if _, ok := m.tickets[ticket.ID]; !ok {
		return pgx.ErrNoRows
	}
	clone := *ticket
	clone.UpdatedAt = time.Now()
	m.tickets[ticket.ID] = &clone
	return nil
}

func (m *memTicketRepo) SetExternalRef(_ context.Context, id, externalKey, externalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ticket, ok := m.tickets[id]
	if !ok {
		return pgx.ErrNoRows
	}
	ticket.ExternalKey = &externalKey
	if externalID != "" {
		ticket.ExternalID = &externalID
	}
	return nil
}

func (m *memTicketRepo) UpdateFieldsByExternalKey(context.Context, string, map[string]string) (int64, error) {
	return 0, nil
}

func (m *memTicketRepo) SelectFieldsByExternalKeys(context.Context, []string, []string) (map[string]map[string]string, error) {
	return map[string]map[string]string{}, nil
}

type memSyncRecordRepo struct {
	mu       sync.Mutex
	byTicket map[string]*domain.SyncRecord
	seq      int

	upsertErr error
}

func newMemSyncRecordRepo() *memSyncRecordRepo {
	return &memSyncRecordRepo{byTicket: map[string]*domain.SyncRecord{}}
}

func (m *memSyncRecordRepo) GetByTicketID(_ context.Context, ticketID string) (*domain.SyncRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.byTicket[ticketID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *record
	return &clone, nil
}

func (m *memSyncRecordRepo) GetByExternalKey(_ context.Context, externalKey string) (*domain.SyncRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, record := range m.byTicket {
		if record.ExternalKey == externalKey {
			clone := *record
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memSyncRecordRepo) Upsert(_ context.Context, record *domain.SyncRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	existing, ok := m.byTicket[record.TicketID]
	if ok {
		record.ID = existing.ID
		record.CreatedAt = existing.CreatedAt
	} else {
		m.seq++
		record.ID = fmt.Sprintf("sync-%d", m.seq)
		record.CreatedAt = time.Now()
	}
	record.UpdatedAt = time.Now()
	clone := *record
	m.byTicket[record.TicketID] = &clone
	return nil
}

func (m *memSyncRecordRepo) ListRecent(_ context.Context, limit int) ([]domain.SyncRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []domain.SyncRecord
	for _, record := range m.byTicket {
		result = append(result, *record)
		if len(result) == limit {
			break
		}
	}
	return result, nil
}

func (m *memSyncRecordRepo) ListFailed(_ context.Context, limit int) ([]domain.SyncRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []domain.SyncRecord
	for _, record := range m.byTicket {
		if record.LastError != nil {
			result = append(result, *record)
		}
		if len(result) == limit {
			break
		}
	}
	return result, nil
}

type memMappingRepo struct {
	mu      sync.Mutex
	entries map[string]*domain.MappingEntry
	seq     int
}

func newMemMappingRepo() *memMappingRepo {
	return &memMappingRepo{entries: map[string]*domain.MappingEntry{}}
}

func mappingEntryKey(kind domain.MappingKind, externalValue string, ticketType domain.TicketType) string {
	return string(kind) + "|" + string(ticketType) + "|" + externalValue
}

func (m *memMappingRepo) Get(_ context.Context, kind domain.MappingKind, externalValue string, ticketType domain.TicketType) (*domain.MappingEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[mappingEntryKey(kind, externalValue, ticketType)]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *entry
	return &clone, nil
}

func (m *memMappingRepo) GetByInternal(_ context.Context, kind domain.MappingKind, internalValue string, ticketType domain.TicketType) (*domain.MappingEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, entry := range m.entries {
		if entry.Kind == kind && entry.InternalValue == internalValue && entry.TicketType == ticketType {
			clone := *entry
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memMappingRepo) Upsert(_ context.Context, entry *domain.MappingEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := mappingEntryKey(entry.Kind, entry.ExternalValue, entry.TicketType)
	if existing, ok := m.entries[key]; ok {
		entry.ID = existing.ID
	} else {
		m.seq++
		entry.ID = fmt.Sprintf("map-%d", m.seq)
	}
	clone := *entry
	m.entries[key] = &clone
	return nil
}

func (m *memMappingRepo) ListByKind(_ context.Context, kind domain.MappingKind) ([]domain.MappingEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []domain.MappingEntry
	for _, entry := range m.entries {
		if entry.Kind == kind {
			result = append(result, *entry)
		}
	}
	return result, nil
}

type memTaxonomyRepo struct {
	mu         sync.Mutex
	products   map[string]*domain.Product
	modules    map[string]*domain.Module
	submodules map[string]*domain.Submodule
	features   map[string]*domain.Feature
	seq        int
}

func newMemTaxonomyRepo() *memTaxonomyRepo {
	return &memTaxonomyRepo{
		products:   map[string]*domain.Product{},
		modules:    map[string]*domain.Module{},
		submodules: map[string]*domain.Submodule{},
		features:   map[string]*domain.Feature{},
	}
}

func (m *memTaxonomyRepo) addProduct(name string) *domain.Product {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	product := &domain.Product{ID: fmt.Sprintf("prod-%d", m.seq), Name: name}
	m.products[product.ID] = product
	return product
}

func (m *memTaxonomyRepo) GetProductByName(_ context.Context, name string) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, product := range m.products {
		if strings.EqualFold(strings.TrimSpace(product.Name), strings.TrimSpace(name)) {
			clone := *product
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memTaxonomyRepo) FindOrCreateModule(_ context.Context, productID, name string) (*domain.Module, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, module := range m.modules {
		if module.ProductID == productID && module.Name == name {
			clone := *module
			return &clone, nil
		}
	}
	m.seq++
	module := &domain.Module{ID: fmt.Sprintf("mod-%d", m.seq), ProductID: productID, Name: name}
	m.modules[module.ID] = module
	clone := *module
	return &clone, nil
}

func (m *memTaxonomyRepo) FindOrCreateSubmodule(_ context.Context, moduleID, name string) (*domain.Submodule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, submodule := range m.submodules {
		if submodule.ModuleID == moduleID && submodule.Name == name {
			clone := *submodule
			return &clone, nil
		}
	}
	m.seq++
	submodule := &domain.Submodule{ID: fmt.Sprintf("sub-%d", m.seq), ModuleID: moduleID, Name: name}
	m.submodules[submodule.ID] = submodule
	clone := *submodule
	return &clone, nil
}

func (m *memTaxonomyRepo) FindOrCreateFeature(_ context.Context, submoduleID, name string) (*domain.Feature, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, feature := range m.features {
		if feature.SubmoduleID == submoduleID && feature.Name == name {
			clone := *feature
			return &clone, nil
		}
	}
	m.seq++
	feature := &domain.Feature{ID: fmt.Sprintf("feat-%d", m.seq), SubmoduleID: submoduleID, Name: name}
	m.features[feature.ID] = feature
	clone := *feature
	return &clone, nil
}

func (m *memTaxonomyRepo) GetFeatureChain(_ context.Context, featureID string) (*domain.FeatureRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	feature, ok := m.features[featureID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	submodule := m.submodules[feature.SubmoduleID]
	module := m.modules[submodule.ModuleID]
	return &domain.FeatureRef{
		ProductID:   &module.ProductID,
		ModuleID:    &submodule.ModuleID,
		SubmoduleID: &feature.SubmoduleID,
		FeatureID:   &feature.ID,
	}, nil
}

func (m *memTaxonomyRepo) GetProductName(_ context.Context, id string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	product, ok := m.products[id]
	if !ok {
		return "", pgx.ErrNoRows
	}
	return product.Name, nil
}

func (m *memTaxonomyRepo) GetModuleName(_ context.Context, id string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	module, ok := m.modules[id]
	if !ok {
		return "", pgx.ErrNoRows
	}
	return module.Name, nil
}

type memProfileRepo struct {
	byAccount map[string]*domain.Profile
}

func newMemProfileRepo() *memProfileRepo {
	return &memProfileRepo{byAccount: map[string]*domain.Profile{}}
}

func (m *memProfileRepo) GetByID(_ context.Context, id string) (*domain.Profile, error) {
	for _, profile := range m.byAccount {
		if profile.ID == id {
			return profile, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memProfileRepo) GetByJiraAccountID(_ context.Context, accountID string) (*domain.Profile, error) {
	profile, ok := m.byAccount[accountID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return profile, nil
}

type memCompanyRepo struct {
	byID map[string]*domain.Company
}

func newMemCompanyRepo() *memCompanyRepo {
	return &memCompanyRepo{byID: map[string]*domain.Company{}}
}

func (m *memCompanyRepo) GetByID(_ context.Context, id string) (*domain.Company, error) {
	company, ok := m.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return company, nil
}

type memHistoryRepo struct {
	entries []domain.TicketStatusHistory
}

func (m *memHistoryRepo) Create(_ context.Context, history *domain.TicketStatusHistory) error {
	history.ID = fmt.Sprintf("hist-%d", len(m.entries)+1)
	history.CreatedAt = time.Now()
	m.entries = append(m.entries, *history)
	return nil
}

func (m *memHistoryRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.TicketStatusHistory, error) {
	var result []domain.TicketStatusHistory
	for _, entry := range m.entries {
		if entry.TicketID == ticketID {
			result = append(result, entry)
		}
	}
	return result, nil
}

type memCommentRepo struct {
	comments []domain.TicketComment
}

func (m *memCommentRepo) Create(_ context.Context, comment *domain.TicketComment) error {
	comment.ID = fmt.Sprintf("comment-%d", len(m.comments)+1)
	comment.CreatedAt = time.Now()
	m.comments = append(m.comments, *comment)
	return nil
}

func (m *memCommentRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.TicketComment, error) {
	var result []domain.TicketComment
	for _, comment := range m.comments {
		if comment.TicketID == ticketID {
			result = append(result, comment)
		}
	}
	return result, nil
}
