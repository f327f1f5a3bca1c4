package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/closerdesk/closerdesk/app/controllers"
	"github.com/closerdesk/closerdesk/app/models"
	"github.com/closerdesk/closerdesk/internal/pkg/env"
	"github.com/closerdesk/closerdesk/internal/pkg/middleware"
)

type ApiRouter struct {
	h *Handlers
}

func (r ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api")
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "CloserDesk API",
		})
	})

	v1 := api.Group("/v1")
	v1.Get("/flash", controllers.HandleFlash)

	r.registerAuthRoutes(v1)
	r.registerPublicRoutes(v1)
	r.registerStaffRoutes(v1)
	r.registerAdminRoutes(v1)
}

func (r ApiRouter) registerAuthRoutes(v1 fiber.Router) {
	a := r.h.Auth
	auth := v1.Group("/auth")
	auth.Post("/login", r.publicLimiter(), a.HandleLogin)
	auth.Post("/logout", middleware.RequireAuth, a.HandleLogout)
	auth.Get("/me", middleware.RequireAuth, a.HandleMe)
	auth.Post("/impersonate/stop", middleware.RequireAuth, a.HandleStopImpersonation)
	auth.Post("/impersonate/:id", middleware.RequireRole(models.ROLE_ADMIN), a.HandleImpersonate)

	// Social OAuth
	auth.Get("/:provider", a.HandleOAuthBegin)
	auth.Get("/:provider/callback", a.HandleOAuthCallback)
}

// publicLimiter throttles unauthenticated endpoints per client IP.
func (r ApiRouter) publicLimiter() fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        env.GetEnvInt("PUBLIC_RATE_LIMIT", 30),
		Expiration: time.Minute,
		Storage:    r.h.LimiterStorage,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "rate_limited",
				"message": "Too many requests, please slow down",
			})
		},
	})
}

func NewApiRouter(h *Handlers) *ApiRouter {
	return &ApiRouter{h: h}
}
