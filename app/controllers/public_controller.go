package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/closerdesk/closerdesk/app/models"
	"github.com/closerdesk/closerdesk/internal/pkg/intake"
	"github.com/closerdesk/closerdesk/internal/pkg/scheduling"
)

// defaultSlotDays is the search window when no end date is given.
const defaultSlotDays = 14

// CaptchaHeader carries the hCaptcha token when it is not part of the body.
const CaptchaHeader = "X-Captcha-Token"

type SlotService interface {
	FindSlots(ctx context.Context, q scheduling.Query) ([]scheduling.Slot, error)
}

type IntakeService interface {
	Survey(ctx context.Context, eventSlug string) ([]models.SurveyQuestion, error)
	Submit(ctx context.Context, in intake.LeadInput) (*intake.Result, error)
}

// CaptchaVerifier is implemented by *hcaptcha.Verifier.
type CaptchaVerifier interface {
	Verify(ctx context.Context, token, remoteIP string) error
}

// PublicController serves the unauthenticated booking funnel
type PublicController struct {
	slots   SlotService
	intake  IntakeService
	captcha CaptchaVerifier
	now     func() time.Time
}

func NewPublicController(slots SlotService, in IntakeService, captcha CaptchaVerifier) *PublicController {
	return &PublicController{slots: slots, intake: in, captcha: captcha, now: time.Now}
}

// HandleSlots lists bookable UTC instants. Dates are YYYY-MM-DD (end inclusive) or
// RFC3339 instants.
func (pc *PublicController) HandleSlots(c *fiber.Ctx) error {
	now := pc.now().UTC()
	from, to, err := queryRange(c, "start_date", "end_date", now, now.AddDate(0, 0, defaultSlotDays))
	if err != nil {
		return respondError(c, err)
	}
	closerID, err := queryUint(c, "closer_id")
	if err != nil {
		return respondError(c, err)
	}
	preferred, err := queryUint(c, "preferred_closer_id")
	if err != nil {
		return respondError(c, err)
	}

	q := scheduling.Query{From: from, To: to}
	if closerID != nil {
		q.CloserID = *closerID
	}
	if preferred != nil {
		q.PreferredCloserID = *preferred
	}
	slots, err := pc.slots.FindSlots(c.UserContext(), q)
	if err != nil {
		return respondError(c, err)
	}
	if slots == nil {
		slots = []scheduling.Slot{}
	}
	return c.JSON(fiber.Map{"slots": slots, "from": from, "to": to})
}

// HandleSurvey returns the questions for an event (global ones without ?event)
func (pc *PublicController) HandleSurvey(c *fiber.Ctx) error {
	questions, err := pc.intake.Survey(c.UserContext(), c.Query("event"))
	if err != nil {
		return respondError(c, err)
	}
	if questions == nil {
		questions = []models.SurveyQuestion{}
	}
	return c.JSON(fiber.Map{"questions": questions})
}

type publicLeadRequest struct {
	intake.LeadInput
	CaptchaToken string `json:"h-captcha-response"`
}

// HandleSubmitLead records a lead with its survey answers and an optional booking
func (pc *PublicController) HandleSubmitLead(c *fiber.Ctx) error {
	var req publicLeadRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}
	if err := pc.checkCaptcha(c, req.CaptchaToken); err != nil {
		return respondError(c, err)
	}
	return pc.submit(c, req.LeadInput)
}

type publicBookingRequest struct {
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	Timezone     string    `json:"timezone"`
	Event        string    `json:"event"`
	CloserID     *uint     `json:"closer_id"`
	Preferred    *uint     `json:"preferred_closer_id"`
	Start        time.Time `json:"start_time"`
	CaptchaToken string    `json:"h-captcha-response"`
}

// HandleBook books a resolved slot, creating the lead when the email is new
func (pc *PublicController) HandleBook(c *fiber.Ctx) error {
	var req publicBookingRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}
	if err := pc.checkCaptcha(c, req.CaptchaToken); err != nil {
		return respondError(c, err)
	}
	if req.Start.IsZero() {
		return badRequest(c, "start_time is required")
	}
	return pc.submit(c, intake.LeadInput{
		Name:     req.Name,
		Email:    req.Email,
		Phone:    req.Phone,
		Timezone: req.Timezone,
		Event:    req.Event,
		Booking:  &intake.BookingRequest{
			CloserID:          req.CloserID,
			PreferredCloserID: req.Preferred,
			Start:             req.Start,
		},
	})
}

func (pc *PublicController) submit(c *fiber.Ctx, in intake.LeadInput) error {
	res, err := pc.intake.Submit(c.UserContext(), in)
	if err != nil {
		return respondError(c, err)
	}
	status := fiber.StatusOK
	if res.Created || res.Appointment != nil {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(res)
}

func (pc *PublicController) checkCaptcha(c *fiber.Ctx, token string) error {
	if pc.captcha == nil {
		return nil
	}
	if token == "" {
		token = c.Get(CaptchaHeader)
	}
	return pc.captcha.Verify(c.UserContext(), token, c.IP())
}
