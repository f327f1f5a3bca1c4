package router

import (
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/monitor"

	"github.com/closerdesk/closerdesk/internal/pkg/env"
	"github.com/closerdesk/closerdesk/internal/pkg/middleware"
	"github.com/closerdesk/closerdesk/internal/pkg/oauth"
)

type HttpRouter struct {
	h *Handlers
}

func (r HttpRouter) InstallRouter(app *fiber.App) {
	app.Use(cors.New(cors.Config{
		AllowOrigins:     oauth.FrontendURL(),
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Captcha-Token",
		AllowMethods:     "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowCredentials: true,
		MaxAge:           int((12 * time.Hour).Seconds()),
	}))

	// Apply UserContext middleware globally; routes decide whether a caller is required.
	app.Use(middleware.UserContextMiddleware(r.h.Authenticator))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "time": time.Now().UTC()})
	})

	// fiber metrics, only when credentials are configured
	if pw := env.GetEnv("METRICS_PASSWORD", ""); pw != "" {
		app.Get("/metrics", basicauth.New(basicauth.Config{
			Users: map[string]string{
				env.GetEnv("METRICS_USER", "metrics"): pw,
			},
		}), monitor.New(monitor.Config{Title: "CloserDesk Metrics"}))
	}

	// SWAGGER / OPENAPI
	if r.h.DocsFile != "" {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/docs/api/",
			FilePath: r.h.DocsFile,
			Path:     "v1",
			Title:    "CloserDesk API",
		}))
	}
}

func NewHttpRouter(h *Handlers) *HttpRouter {
	return &HttpRouter{h: h}
}
