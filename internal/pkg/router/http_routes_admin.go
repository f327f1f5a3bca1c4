package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/closerdesk/closerdesk/app/models"
	"github.com/closerdesk/closerdesk/internal/pkg/middleware"
)

func (r ApiRouter) registerAdminRoutes(v1 fiber.Router) {
	adminGroup := v1.Group("/admin", middleware.RequireRole(models.ROLE_ADMIN))

	// Users, catalog tables and integrations
	r.h.Admin.Mount(adminGroup)

	// Import
	adminGroup.Post("/imports/validate", r.h.Imports.HandleValidate)
	adminGroup.Post("/imports/execute", r.h.Imports.HandleExecute)
	adminGroup.Get("/imports", r.h.Imports.HandleList)

	adminGroup.Get("/reports/finance", r.h.Reports.HandleFinance)
}
