package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/closerdesk/closerdesk/internal/pkg/auth"
	"github.com/closerdesk/closerdesk/internal/pkg/usercontext"
)

type Authenticator interface {
	Authenticate(ctx context.Context, raw string) (*auth.Claims, error)
}

// UserContextMiddleware sets up the user context for every request from the bearer
// token. Requests without a token continue anonymously; a bad token is rejected.
func UserContextMiddleware(a Authenticator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := extractBearerToken(c)
		if raw == "" {
			usercontext.SetUserContext(c, usercontext.UserContext{})
			return c.Next()
		}

		claims, err := a.Authenticate(c.UserContext(), raw)
		if err != nil {
			if !errors.Is(err, auth.ErrInvalidToken) && !errors.Is(err, auth.ErrTokenRevoked) {
				log.Errorf("[Auth] Token check failed: %v", err)
			}
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": err.Error()})
		}

		usercontext.SetUserContext(c, usercontext.UserContext{
			UserID:     claims.UserID(),
			Name:       claims.Name,
			Role:       claims.Role,
			IsLoggedIn: true,
			ActorID:    claims.Act,
		})
		c.Locals(usercontext.KeyClaims, claims)
		return c.Next()
	}
}

// Claims returns the parsed token of the request, or nil for anonymous callers.
func Claims(c *fiber.Ctx) *auth.Claims {
	claims, _ := c.Locals(usercontext.KeyClaims).(*auth.Claims)
	return claims
}

func extractBearerToken(c *fiber.Ctx) string {
	header := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
