package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-sync/internal/api/dto"
	"github.com/spec-kit/ticket-sync/internal/domain"
	"github.com/spec-kit/ticket-sync/internal/repository"
	"github.com/spec-kit/ticket-sync/internal/service"
)

// MappingHandler exposes admin endpoints for the vocabulary mapping tables
// and the sync bookkeeping rows.
type MappingHandler struct {
	mappings *service.MappingStore
	records  repository.SyncRecordRepository
	audit    *service.AuditService
}

// NewMappingHandler constructs handler.
func NewMappingHandler(mappings *service.MappingStore, records repository.SyncRecordRepository, audit *service.AuditService) *MappingHandler {
	return &MappingHandler{mappings: mappings, records: records, audit: audit}
}

// List handles GET /admin/mappings/:kind.
func (h *MappingHandler) List(c *fiber.Ctx) error {
	kind, err := parseKind(c.Params("kind"))
	if err != nil {
		return err
	}
	entries, err := h.mappings.ListByKind(c.UserContext(), kind)
	if err != nil {
		return err
	}
	response := make([]dto.MappingResponse, 0, len(entries))
	for _, entry := range entries {
		response = append(response, dto.NewMappingResponse(entry))
	}
	return c.JSON(fiber.Map{"data": response})
}

// Upsert handles POST /admin/mappings/:kind.
func (h *MappingHandler) Upsert(c *fiber.Ctx) error {
	kind, err := parseKind(c.Params("kind"))
	if err != nil {
		return err
	}
	var req dto.MappingUpsertRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if req.ExternalValue == "" || req.InternalValue == "" {
		return fiber.NewError(http.StatusBadRequest, "external_value and internal_value required")
	}

	entry := &domain.MappingEntry{
		Kind:          kind,
		ExternalValue: req.ExternalValue,
		InternalValue: req.InternalValue,
		TicketType:    req.TicketType,
	}
	if err := h.mappings.Upsert(c.UserContext(), entry); err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewMappingResponse(*entry)})
}

// SyncRecords handles GET /admin/sync-records.
func (h *MappingHandler) SyncRecords(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	var (
		records []domain.SyncRecord
		err     error
	)
	if c.QueryBool("failed", false) {
		records, err = h.records.ListFailed(c.UserContext(), limit)
	} else {
		records, err = h.records.ListRecent(c.UserContext(), limit)
	}
	if err != nil {
		return err
	}

	response := make([]dto.SyncRecordResponse, 0, len(records))
	for _, record := range records {
		response = append(response, dto.NewSyncRecordResponse(record))
	}
	return c.JSON(fiber.Map{"data": response})
}

// Events handles GET /admin/events.
func (h *MappingHandler) Events(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 100)
	recent, err := h.audit.RecentEvents(c.UserContext(), limit)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": recent})
}

func parseKind(raw string) (domain.MappingKind, error) {
	switch kind := domain.MappingKind(raw); kind {
	case domain.MappingKindStatus, domain.MappingKindPriority, domain.MappingKindChannel, domain.MappingKindFeature:
		return kind, nil
	default:
		return "", fiber.NewError(http.StatusBadRequest, "unknown mapping kind")
	}
}
