package worker

import (
	"github.com/spec-kit/ticket-sync/internal/service"
)

// StartAuditWorker registers sync event handlers.
func StartAuditWorker(auditService *service.AuditService) {
	if auditService == nil {
		return
	}
	auditService.RegisterHandlers()
}
