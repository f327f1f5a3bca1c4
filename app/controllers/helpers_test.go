package controllers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/closerdesk/closerdesk/app/models"
	"github.com/closerdesk/closerdesk/internal/pkg/usercontext"
)

func uintPtr(v uint) *uint { return &v }

// newTestApp returns an app whose requests run as user (anonymous when nil).
func newTestApp(user *usercontext.UserContext) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if user != nil {
			usercontext.SetUserContext(c, *user)
		}
		return c.Next()
	})
	return app
}

func adminUser() *usercontext.UserContext {
	return &usercontext.UserContext{UserID: 1, Name: "Admin", Role: models.ROLE_ADMIN, IsLoggedIn: true}
}

func closerUser(id uint) *usercontext.UserContext {
	return &usercontext.UserContext{UserID: id, Name: "Closer", Role: models.ROLE_CLOSER, IsLoggedIn: true}
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	out := map[string]interface{}{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out)
	}
	return resp, out
}

func itoa(v uint) string { return strconv.FormatUint(uint64(v), 10) }
