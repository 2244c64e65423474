package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-sync/internal/api/dto"
	"github.com/spec-kit/ticket-sync/internal/service"
)

// WebhookHandler receives tracker notifications.
type WebhookHandler struct {
	reconciler *service.InboundReconciler
}

// NewWebhookHandler constructs handler.
func NewWebhookHandler(reconciler *service.InboundReconciler) *WebhookHandler {
	return &WebhookHandler{reconciler: reconciler}
}

// Receive handles POST /webhooks/jira. The raw body goes to the reconciler
// untouched; shape detection lives there, not in the handler.
func (h *WebhookHandler) Receive(c *fiber.Ctx) error {
	body := c.Body()
	if len(body) == 0 {
		return fiber.NewError(http.StatusBadRequest, "empty payload")
	}

	result, err := h.reconciler.Process(c.UserContext(), body)
	if err != nil {
		return err
	}

	response := dto.WebhookResponse{
		Success:  true,
		Action:   result.Action,
		TicketID: result.TicketID,
		Unmapped: result.Unmapped,
	}
	switch result.Action {
	case service.ActionIgnored:
		response.Message = result.Reason
	case service.ActionCreated:
		response.Message = "ticket created from tracker issue"
	default:
		response.Message = "ticket updated from tracker issue"
	}
	return c.JSON(response)
}
