package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-sync/internal/api/dto"
	"github.com/spec-kit/ticket-sync/internal/batch"
	"github.com/spec-kit/ticket-sync/internal/service"
)

// SyncHandler exposes outbound publication, manual refresh and batch runs.
type SyncHandler struct {
	publisher *service.OutboundPublisher
	refresher *service.Refresher
	executor  *batch.Executor
	maxScript int
}

// NewSyncHandler constructs handler.
func NewSyncHandler(publisher *service.OutboundPublisher, refresher *service.Refresher, executor *batch.Executor, maxScriptBytes int) *SyncHandler {
	return &SyncHandler{publisher: publisher, refresher: refresher, executor: executor, maxScript: maxScriptBytes}
}

// Publish handles POST /tickets/:id/publish.
func (h *SyncHandler) Publish(c *fiber.Ctx) error {
	ticketID := c.Params("id")
	if ticketID == "" {
		return fiber.NewError(http.StatusBadRequest, "ticket id required")
	}

	result, err := h.publisher.Publish(c.UserContext(), ticketID)
	if err != nil {
		return err
	}

	status := http.StatusCreated
	if result.AlreadyLinked {
		status = http.StatusOK
	}
	return c.Status(status).JSON(fiber.Map{"data": dto.PublishResponse{
		TicketID:      result.TicketID,
		ExternalKey:   result.ExternalKey,
		ExternalID:    result.ExternalID,
		AlreadyLinked: result.AlreadyLinked,
	}})
}

// PushStatus handles POST /tickets/:id/push-status.
func (h *SyncHandler) PushStatus(c *fiber.Ctx) error {
	ticketID := c.Params("id")
	var req dto.PushStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if req.Status == "" {
		return fiber.NewError(http.StatusBadRequest, "status required")
	}

	if err := h.publisher.PushStatus(c.UserContext(), ticketID, req.Status); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"ticket_id": ticketID, "status": req.Status}})
}

// Refresh handles POST /sync/refresh/:key.
func (h *SyncHandler) Refresh(c *fiber.Ctx) error {
	result, err := h.refresher.Refresh(c.UserContext(), c.Params("key"))
	if err != nil {
		return err
	}
	return c.JSON(dto.WebhookResponse{
		Success:  true,
		Message:  "refreshed from tracker",
		Action:   result.Action,
		TicketID: result.TicketID,
		Unmapped: result.Unmapped,
	})
}

// RunBatch handles POST /admin/batch/run.
func (h *SyncHandler) RunBatch(c *fiber.Ctx) error {
	var req dto.BatchRunRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if req.Script == "" {
		return fiber.NewError(http.StatusBadRequest, "script required")
	}
	if h.maxScript > 0 && len(req.Script) > h.maxScript {
		return fiber.NewError(http.StatusRequestEntityTooLarge, "script exceeds size limit")
	}

	report, err := h.executor.Run(c.UserContext(), req.Script)
	if err != nil {
		return err
	}

	response := dto.BatchReportResponse{
		Total:       report.Total,
		Applied:     report.Applied,
		AlreadyDone: report.AlreadyDone,
		Missing:     report.Missing,
		Failed:      report.Failed,
		DurationMS:  report.Duration.Milliseconds(),
	}
	for _, failure := range report.Failures {
		response.Failures = append(response.Failures, dto.BatchFailure{
			ExternalKey: failure.ExternalKey,
			Statement:   failure.Statement,
			Error:       failure.Error,
		})
	}
	return c.JSON(fiber.Map{"data": response})
}
