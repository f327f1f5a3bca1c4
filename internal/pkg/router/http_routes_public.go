package router

import (
	"github.com/gofiber/fiber/v2"
)

func (r ApiRouter) registerPublicRoutes(v1 fiber.Router) {
	p := r.h.Public
	public := v1.Group("/public", r.publicLimiter())
	public.Get("/slots", p.HandleSlots)
	public.Get("/survey", p.HandleSurvey)
	public.Post("/leads", p.HandleSubmitLead)
	public.Post("/bookings", p.HandleBook)

	// Browser redirect from the calendar provider; identified by the session state.
	v1.Get("/calendar/callback", r.h.Calendar.HandleCallback)
}
