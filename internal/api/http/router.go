package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-sync/internal/api/http/handlers"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health  *handlers.HealthHandler
	Webhook *handlers.WebhookHandler
	Mapping *handlers.MappingHandler
	Sync    *handlers.SyncHandler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/health/metrics", cfg.Health.Metrics)

	app.Post("/webhooks/jira", cfg.Webhook.Receive)

	app.Post("/sync/tickets/:id/publish", cfg.Sync.Publish)
	app.Post("/sync/tickets/:id/push-status", cfg.Sync.PushStatus)
	app.Post("/sync/issues/:key/refresh", cfg.Sync.Refresh)

	admin := app.Group("/admin")
	admin.Get("/mappings/:kind", cfg.Mapping.List)
	admin.Post("/mappings/:kind", cfg.Mapping.Upsert)
	admin.Get("/sync-records", cfg.Mapping.SyncRecords)
	admin.Get("/events", cfg.Mapping.Events)
	admin.Post("/batch/run", cfg.Sync.RunBatch)
}
