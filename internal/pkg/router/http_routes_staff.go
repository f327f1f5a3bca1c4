package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/closerdesk/closerdesk/app/models"
	"github.com/closerdesk/closerdesk/internal/pkg/middleware"
)

func (r ApiRouter) registerStaffRoutes(v1 fiber.Router) {
	// Guarded per route so unknown paths under /api/v1 still answer 404.
	onlyStaff := middleware.RequireRole(models.ROLE_ADMIN, models.ROLE_CLOSER, models.ROLE_AGENDA)
	staff := v1.Group("")

	staff.Get("/dashboard", onlyStaff, r.h.Reports.HandleDashboard)

	leads := r.h.Leads
	staff.Get("/leads", onlyStaff, leads.HandleList)
	staff.Get("/leads/:id", onlyStaff, leads.HandleGet)
	staff.Put("/leads/:id", onlyStaff, leads.HandleUpdate)
	staff.Delete("/leads/:id", onlyStaff, leads.HandleDelete)
	staff.Post("/leads/:id/recompute-status", onlyStaff, leads.HandleRecomputeStatus)
	staff.Get("/leads/:id/summary", onlyStaff, leads.HandleSummary)

	appts := r.h.Appointments
	staff.Get("/appointments", onlyStaff, appts.HandleList)
	staff.Post("/appointments", onlyStaff, appts.HandleCreate)
	staff.Get("/appointments/:id", onlyStaff, appts.HandleGet)
	staff.Put("/appointments/:id", onlyStaff, appts.HandleUpdate)
	staff.Patch("/appointments/:id/status", onlyStaff, appts.HandleSetStatus)
	staff.Delete("/appointments/:id", onlyStaff, appts.HandleDelete)

	avail := r.h.Availability
	staff.Get("/availability", onlyStaff, avail.HandleList)
	staff.Post("/availability", onlyStaff, avail.HandleCreate)
	staff.Delete("/availability/:id", onlyStaff, avail.HandleDelete)

	sales := r.h.Sales
	staff.Post("/sales", onlyStaff, sales.HandleRegisterSale)
	staff.Get("/payments", onlyStaff, sales.HandleListPayments)
	staff.Put("/payments/:id", onlyStaff, sales.HandleUpdatePayment)
	staff.Delete("/payments/:id", onlyStaff, sales.HandleDeletePayment)
	staff.Get("/enrollments", onlyStaff, sales.HandleListEnrollments)
	staff.Put("/enrollments/:id", onlyStaff, sales.HandleUpdateEnrollment)
	staff.Delete("/enrollments/:id", onlyStaff, sales.HandleDeleteEnrollment)

	staff.Post("/daily-reports", onlyStaff, r.h.Reports.HandleSubmitDailyReport)
	staff.Get("/daily-reports", onlyStaff, r.h.Reports.HandleDailyReports)

	cal := r.h.Calendar
	staff.Get("/calendar", onlyStaff, cal.HandleStatus)
	staff.Get("/calendar/connect", onlyStaff, cal.HandleConnect)
	staff.Delete("/calendar/connect", onlyStaff, cal.HandleDisconnect)
	staff.Get("/calendar/calendars", onlyStaff, cal.HandleCalendars)
	staff.Put("/calendar/calendar", onlyStaff, cal.HandleSelect)
}
