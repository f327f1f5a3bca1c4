// Package session keeps short-lived browser state, such as the calendar OAuth
// state value. API authentication is stateless and never touches it.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"

	"github.com/closerdesk/closerdesk/internal/pkg/cache"
	"github.com/closerdesk/closerdesk/internal/pkg/env"
)

const (
	cookieName = "closerdesk_session"
	lifetime   = time.Hour
)

var ErrNoStore = errors.New("session store not initialized")

var store *session.Store

// NewSessionStore builds the Redis backed store.
func NewSessionStore() *session.Store {
	return session.New(session.Config{
		Storage:        cache.Storage(cache.DBSessions),
		KeyLookup:      "cookie:" + cookieName,
		Expiration:     lifetime,
		CookieHTTPOnly: true,
		CookieSecure:   !env.IsDev(),
		CookieSameSite: fiber.CookieSameSiteLaxMode,
	})
}

// SetStore installs the store used by the helpers; tests pass a memory store.
func SetStore(s *session.Store) {
	store = s
}

func GetSessionStore() *session.Store {
	return store
}

// SetSessionValue stores value under key in the caller's session.
func SetSessionValue(c *fiber.Ctx, key, value string) error {
	if store == nil {
		return ErrNoStore
	}
	sess, err := store.Get(c)
	if err != nil {
		return fmt.Errorf("session: load: %w", err)
	}
	sess.Set(key, value)
	return sess.Save()
}

// PopSessionValue returns the value under key and removes it. Missing values and
// store errors both yield "".
func PopSessionValue(c *fiber.Ctx, key string) string {
	if store == nil {
		return ""
	}
	sess, err := store.Get(c)
	if err != nil {
		return ""
	}
	value, _ := sess.Get(key).(string)
	if value == "" {
		return ""
	}
	sess.Delete(key)
	_ = sess.Save()
	return value
}
