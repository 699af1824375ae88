package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/supportdesk/helpdesk-bridge/internal/api/http/handlers"
	"github.com/supportdesk/helpdesk-bridge/internal/auth"
	"github.com/supportdesk/helpdesk-bridge/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Metrics        *handlers.MetricsHandler
	Webhook        *handlers.WebhookHandler
	Tickets        *handlers.TicketsHandler
	Tags           *handlers.TagsHandler
	Staff          *handlers.StaffHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/health/metrics", cfg.Metrics.Snapshot)

	app.Post("/vk/callback", cfg.Webhook.Callback)

	authGroup := app.Group("/auth")
	authGroup.Post("/staff/login", cfg.Staff.Login)
	authGroup.Post("/staff/password", cfg.AuthMiddleware.Handle, auth.RequireRole(), cfg.Staff.ChangePassword)

	api := app.Group("/api", cfg.AuthMiddleware.Handle, auth.RequireRole())
	api.Get("/tickets", cfg.Tickets.ListTickets)
	api.Post("/tickets/bulk", cfg.Tickets.Bulk)
	api.Get("/tickets/:id", cfg.Tickets.GetTicket)
	api.Post("/tickets/:id/reply", cfg.Tickets.Reply)
	api.Patch("/tickets/:id/status", cfg.Tickets.SetStatus)
	api.Post("/tickets/:id/assign", cfg.Tickets.Assign)
	api.Patch("/tickets/:id/priority", cfg.Tickets.SetPriority)
	api.Put("/tickets/:id/tags", cfg.Tickets.SetTags)
	api.Get("/stats", cfg.Tickets.Stats)

	api.Get("/tags", cfg.Tags.List)
	api.Post("/tags", cfg.Tags.Create)
	api.Delete("/tags/:id", auth.RequireRole(domain.StaffRoleAdmin), cfg.Tags.Delete)
}
