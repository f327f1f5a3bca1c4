package usercontext

import (
	"github.com/gofiber/fiber/v2"

	"github.com/closerdesk/closerdesk/app/models"
)

// UserContext represents the authenticated caller for a request.
type UserContext struct {
	UserID     uint   `json:"user_id"`
	Name       string `json:"name"`
	Role       string `json:"role"`
	IsLoggedIn bool   `json:"is_logged_in"`
	// ActorID is the admin acting as this user, if any.
	ActorID *uint `json:"actor_id,omitempty"`
}

func (u UserContext) IsAdmin() bool {
	return u.IsLoggedIn && u.Role == models.ROLE_ADMIN
}

// HasRole reports whether the caller holds one of roles.
func (u UserContext) HasRole(roles ...string) bool {
	if !u.IsLoggedIn {
		return false
	}
	for _, r := range roles {
		if u.Role == r {
			return true
		}
	}
	return false
}

// ScopeCloser returns the closer id a query must be limited to: closers only see
// their own data, everyone else may pick one (or nil for all).
func (u UserContext) ScopeCloser(requested *uint) *uint {
	if u.Role == models.ROLE_CLOSER {
		id := u.UserID
		return &id
	}
	return requested
}

// GetUserContext retrieves the user context from fiber context
// Returns a default anonymous context if none is set
func GetUserContext(c *fiber.Ctx) UserContext {
	if ctx, ok := c.Locals(KeyUserContext).(UserContext); ok {
		return ctx
	}
	return UserContext{}
}

func SetUserContext(c *fiber.Ctx, u UserContext) {
	c.Locals(KeyUserContext, u)
}

// IsLoggedIn checks if the current user is logged in
func IsLoggedIn(c *fiber.Ctx) bool {
	return GetUserContext(c).IsLoggedIn
}

// IsAdmin checks if the current user is an admin
func IsAdmin(c *fiber.Ctx) bool {
	return GetUserContext(c).IsAdmin()
}

// GetUserID returns the current user's ID, or 0 if not logged in
func GetUserID(c *fiber.Ctx) uint {
	return GetUserContext(c).UserID
}
