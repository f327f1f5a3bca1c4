package oauth

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/markbates/goth"
	"github.com/markbates/goth/gothic"
	"github.com/markbates/goth/providers/google"
	gothfiber "github.com/shareed2k/goth_fiber"

	"github.com/closerdesk/closerdesk/internal/pkg/cache"
	"github.com/closerdesk/closerdesk/internal/pkg/env"
)

// CallbackPath is where Google sends staff back after sign-in.
const CallbackPath = "/api/v1/auth/google/callback"

// Enabled reports whether Google staff login is configured.
func Enabled() bool {
	return env.GetEnv("GOOGLE_KEY", "") != "" && env.GetEnv("GOOGLE_SECRET", "") != ""
}

// Setup registers the Google provider and the goth session store. It is safe to
// call multiple times; the provider is just re-registered.
func Setup() {
	goth.UseProviders(
		google.New(
			env.GetEnv("GOOGLE_KEY", ""),
			env.GetEnv("GOOGLE_SECRET", ""),
			PublicBase()+CallbackPath,
			"email", "profile",
		),
	)

	gothfiber.SessionStore = session.New(session.Config{
		Storage:        cache.Storage(cache.DBOAuth),
		KeyLookup:      "cookie:" + gothic.SessionName,
		CookieHTTPOnly: true,
		CookieSameSite: "Lax",
		CookieSecure:   !env.IsDev(),
		Expiration:     15 * time.Minute,
	})
}

// PublicBase is the externally reachable origin of the API.
func PublicBase() string {
	base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/")
	if base == "" {
		base = "http://localhost:" + env.GetEnv("APP_PORT", "4000")
	}
	return base
}

// FrontendURL is where the SPA lives; OAuth flows end with a redirect there.
func FrontendURL() string {
	if u := strings.TrimRight(env.GetEnv("FRONTEND_URL", ""), "/"); u != "" {
		return u
	}
	return PublicBase()
}
