package middleware

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/closerdesk/closerdesk/app/models"
	"github.com/closerdesk/closerdesk/internal/pkg/auth"
	"github.com/closerdesk/closerdesk/internal/pkg/usercontext"
)

type tokenMap map[string]*auth.Claims

func (m tokenMap) Authenticate(_ context.Context, raw string) (*auth.Claims, error) {
	if raw == "revoked" {
		return nil, auth.ErrTokenRevoked
	}
	c, ok := m[raw]
	if !ok {
		return nil, auth.ErrInvalidToken
	}
	return c, nil
}

func claimsFor(id, role string, act *uint) *auth.Claims {
	return &auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: id, ID: "jti-" + id}, Name: "user " + id, Role: role, Act: act}
}

func newApp() *fiber.App {
	admin := uint(1)
	tokens := tokenMap{
		"admin":  claimsFor("1", models.ROLE_ADMIN, nil),
		"closer": claimsFor("2", models.ROLE_CLOSER, nil),
		"acting": claimsFor("2", models.ROLE_CLOSER, &admin),
	}
	app := fiber.New()
	app.Use(UserContextMiddleware(tokens))
	app.Get("/open", func(c *fiber.Ctx) error {
		return c.JSON(usercontext.GetUserContext(c))
	})
	app.Get("/staff", RequireAuth, func(c *fiber.Ctx) error {
		u := usercontext.GetUserContext(c)
		return c.JSON(fiber.Map{"id": u.UserID, "acting": u.ActorID != nil, "jti": Claims(c).ID})
	})
	app.Get("/admin", RequireRole(models.ROLE_ADMIN), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	return app
}

func TestUserContextMiddleware(t *testing.T) {
	app := newApp()
	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"anonymous open route", "/open", "", fiber.StatusOK},
		{"anonymous staff route", "/staff", "", fiber.StatusUnauthorized},
		{"bad token", "/open", "Bearer nope", fiber.StatusUnauthorized},
		{"revoked token", "/staff", "Bearer revoked", fiber.StatusUnauthorized},
		{"basic auth is not a bearer", "/staff", "Basic abc", fiber.StatusUnauthorized},
		{"closer staff route", "/staff", "Bearer closer", fiber.StatusOK},
		{"lower-case scheme", "/staff", "bearer closer", fiber.StatusOK},
		{"closer admin route", "/admin", "Bearer closer", fiber.StatusForbidden},
		{"admin admin route", "/admin", "Bearer admin", fiber.StatusNoContent},
		{"anonymous admin route", "/admin", "", fiber.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(fiber.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set(fiber.HeaderAuthorization, tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestUserContextMiddleware_Impersonation(t *testing.T) {
	app := newApp()
	req := httptest.NewRequest(fiber.MethodGet, "/staff", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer acting")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		ID     uint   `json:"id"`
		Acting bool   `json:"acting"`
		JTI    string `json:"jti"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, uint(2), body.ID)
	assert.True(t, body.Acting)
	assert.Equal(t, "jti-2", body.JTI)
}
