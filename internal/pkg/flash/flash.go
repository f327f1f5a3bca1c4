// Package flash carries one-shot status messages across the redirects that end
// browser flows (OAuth sign-in, calendar linking) so the SPA can show them.
package flash

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sujit-baniya/flash"
)

const (
	TypeSuccess = "success"
	TypeError   = "error"
	TypeInfo    = "info"
)

// Redirect stores message under kind and redirects to url.
func Redirect(c *fiber.Ctx, kind, message, url string) error {
	fm := fiber.Map{
		"type":    kind,
		"message": message,
	}
	switch kind {
	case TypeSuccess:
		flash.WithSuccess(c, fm)
	case TypeError:
		flash.WithError(c, fm)
	default:
		flash.WithInfo(c, fm)
	}
	return c.Redirect(url, fiber.StatusSeeOther)
}

// Get returns the pending message, or nil when there is none.
func Get(c *fiber.Ctx) fiber.Map {
	fm := flash.Get(c)
	if len(fm) == 0 {
		return nil
	}
	return fm
}
