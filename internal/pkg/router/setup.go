package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/closerdesk/closerdesk/app/controllers"
	"github.com/closerdesk/closerdesk/internal/pkg/middleware"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

// Handlers carries the controllers and request-scoped dependencies the routes need.
type Handlers struct {
	Authenticator middleware.Authenticator

	Auth         *controllers.AuthController
	Public       *controllers.PublicController
	Reports      *controllers.ReportController
	Leads        *controllers.LeadController
	Appointments *controllers.AppointmentController
	Availability *controllers.AvailabilityController
	Sales        *controllers.SalesController
	Calendar     *controllers.CalendarController
	Admin        *controllers.AdminController
	Imports      *controllers.ImportController

	// LimiterStorage backs the public rate limiter; nil keeps counters in memory.
	LimiterStorage fiber.Storage
	// DocsFile is the OpenAPI document served under /docs/api; empty disables it.
	DocsFile string
}

func InstallRouter(app *fiber.App, h *Handlers) {
	// The HTTP router installs the global UserContext middleware, so it goes first.
	setup(app, NewHttpRouter(h), NewApiRouter(h))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
