package controllers

import (
	"context"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/closerdesk/closerdesk/app/models"
	"github.com/closerdesk/closerdesk/internal/pkg/calendar"
	"github.com/closerdesk/closerdesk/internal/pkg/flash"
	"github.com/closerdesk/closerdesk/internal/pkg/oauth"
	"github.com/closerdesk/closerdesk/internal/pkg/session"
	"github.com/closerdesk/closerdesk/internal/pkg/usercontext"
)

// calendarStateKey holds "<state>:<user id>" in the caller's session between connect
// and callback.
const calendarStateKey = "calendar_oauth_state"

// CalendarService is implemented by *calendar.Service.
type CalendarService interface {
	AuthURL(state string) (string, error)
	Link(ctx context.Context, userID uint, code string) (*models.ProviderAccount, error)
	Unlink(ctx context.Context, userID uint) error
	Account(ctx context.Context, userID uint) (*models.ProviderAccount, error)
	Calendars(ctx context.Context, userID uint) ([]calendar.Calendar, error)
	SelectCalendar(ctx context.Context, userID uint, calendarID string) (*models.ProviderAccount, error)
}

// CalendarController links a closer's external calendar
type CalendarController struct {
	calendar CalendarService
}

func NewCalendarController(cal CalendarService) *CalendarController {
	return &CalendarController{calendar: cal}
}

// HandleConnect starts the OAuth flow. The SPA calls it with credentials so the
// session cookie is set, then sends the browser to the returned url.
func (cc *CalendarController) HandleConnect(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)
	state := uuid.NewString()
	url, err := cc.calendar.AuthURL(state)
	if err != nil {
		return respondError(c, err)
	}
	if err := session.SetSessionValue(c, calendarStateKey, state+":"+strconv.FormatUint(uint64(userID), 10)); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"url": url})
}

// HandleCallback completes the flow started by HandleConnect and sends the browser
// back to the SPA with a flash message.
func (cc *CalendarController) HandleCallback(c *fiber.Ctx) error {
	target := oauth.FrontendURL() + "/settings/calendar"
	stored := session.PopSessionValue(c, calendarStateKey)
	state, rawUser, ok := strings.Cut(stored, ":")
	if !ok || state == "" || state != c.Query("state") {
		return flash.Redirect(c, flash.TypeError, "Calendar connection expired, please try again", target)
	}
	if e := c.Query("error"); e != "" {
		return flash.Redirect(c, flash.TypeError, "Calendar access was denied", target)
	}
	userID, err := strconv.ParseUint(rawUser, 10, 64)
	if err != nil || userID == 0 {
		return flash.Redirect(c, flash.TypeError, "Calendar connection expired, please try again", target)
	}
	if _, err := cc.calendar.Link(c.UserContext(), uint(userID), c.Query("code")); err != nil {
		log.Errorf("[Calendar] Link for user %d failed: %v", userID, err)
		return flash.Redirect(c, flash.TypeError, "Could not connect your calendar", target)
	}
	return flash.Redirect(c, flash.TypeSuccess, "Calendar connected", target)
}

// HandleStatus reports the linked account, if any
func (cc *CalendarController) HandleStatus(c *fiber.Ctx) error {
	acct, err := cc.calendar.Account(c.UserContext(), usercontext.GetUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"linked": true, "calendar_id": acct.CalendarID, "provider": acct.Provider})
}

func (cc *CalendarController) HandleCalendars(c *fiber.Ctx) error {
	list, err := cc.calendar.Calendars(c.UserContext(), usercontext.GetUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	if list == nil {
		list = []calendar.Calendar{}
	}
	return c.JSON(fiber.Map{"calendars": list})
}

type selectCalendarRequest struct {
	CalendarID string `json:"calendar_id" validate:"required,max=255"`
}

func (cc *CalendarController) HandleSelect(c *fiber.Ctx) error {
	var req selectCalendarRequest
	if err := bindJSON(c, &req); err != nil {
		return respondError(c, err)
	}
	acct, err := cc.calendar.SelectCalendar(c.UserContext(), usercontext.GetUserID(c), req.CalendarID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"linked": true, "calendar_id": acct.CalendarID, "provider": acct.Provider})
}

func (cc *CalendarController) HandleDisconnect(c *fiber.Ctx) error {
	if err := cc.calendar.Unlink(c.UserContext(), usercontext.GetUserID(c)); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
