package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/closerdesk/closerdesk/app/models"
	"github.com/closerdesk/closerdesk/internal/pkg/auth"
	"github.com/closerdesk/closerdesk/internal/pkg/booking"
	"github.com/closerdesk/closerdesk/internal/pkg/usercontext"
)

// BookingService is implemented by *booking.Service.
type BookingService interface {
	Create(ctx context.Context, in booking.CreateInput) (*models.Appointment, error)
	Reschedule(ctx context.Context, id uint, in booking.RescheduleInput) (*models.Appointment, error)
	SetStatus(ctx context.Context, id uint, status string, presentationDelivered *bool) (*models.Appointment, error)
	Delete(ctx context.Context, id uint) error
	Get(ctx context.Context, id uint) (*models.Appointment, error)
	List(ctx context.Context, f booking.ListFilter) ([]models.Appointment, error)
}

// AppointmentController manages appointments from the back office. Closers only
// touch their own.
type AppointmentController struct {
	bookings BookingService
}

func NewAppointmentController(b BookingService) *AppointmentController {
	return &AppointmentController{bookings: b}
}

func (ac *AppointmentController) HandleList(c *fiber.Ctx) error {
	from, to, err := queryRange(c, "from", "to", time.Time{}, time.Time{})
	if err != nil {
		return respondError(c, err)
	}
	closerID, err := queryUint(c, "closer_id")
	if err != nil {
		return respondError(c, err)
	}
	leadID, err := queryUint(c, "lead_id")
	if err != nil {
		return respondError(c, err)
	}
	limit, offset := pagination(c)
	f := booking.ListFilter{From: from, To: to, Status: c.Query("status"), Limit: limit, Offset: offset}
	if scoped := usercontext.GetUserContext(c).ScopeCloser(closerID); scoped != nil {
		f.CloserID = *scoped
	}
	if leadID != nil {
		f.LeadID = *leadID
	}

	list, err := ac.bookings.List(c.UserContext(), f)
	if err != nil {
		return respondError(c, err)
	}
	if list == nil {
		list = []models.Appointment{}
	}
	return c.JSON(fiber.Map{"appointments": list})
}

func (ac *AppointmentController) HandleGet(c *fiber.Ctx) error {
	appt, err := ac.load(c)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(appt)
}

type createAppointmentRequest struct {
	LeadID   uint      `json:"lead_id" validate:"required"`
	CloserID uint      `json:"closer_id"`
	Start    time.Time `json:"start_time" validate:"required"`
	EventID  *uint     `json:"event_id"`
	Notes    string    `json:"notes" validate:"max=5000"`
}

func (ac *AppointmentController) HandleCreate(c *fiber.Ctx) error {
	var req createAppointmentRequest
	if err := bindJSON(c, &req); err != nil {
		return respondError(c, err)
	}
	user := usercontext.GetUserContext(c)
	if user.Role == models.ROLE_CLOSER {
		req.CloserID = user.UserID
	}
	if req.CloserID == 0 {
		return badRequest(c, "closer_id is required")
	}
	appt, err := ac.bookings.Create(c.UserContext(), booking.CreateInput{
		LeadID:   req.LeadID,
		CloserID: req.CloserID,
		Start:    req.Start,
		EventID:  req.EventID,
		Notes:    req.Notes,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(appt)
}

type rescheduleRequest struct {
	Start    time.Time `json:"start_time"`
	CloserID *uint     `json:"closer_id"`
	EventID  *uint     `json:"event_id"`
	Notes    *string   `json:"notes" validate:"omitempty,max=5000"`
}

// HandleUpdate reschedules (new time or closer) or edits notes and event.
func (ac *AppointmentController) HandleUpdate(c *fiber.Ctx) error {
	appt, err := ac.load(c)
	if err != nil {
		return respondError(c, err)
	}
	var req rescheduleRequest
	if err := bindJSON(c, &req); err != nil {
		return respondError(c, err)
	}
	if usercontext.GetUserContext(c).Role == models.ROLE_CLOSER {
		req.CloserID = nil
	}
	updated, err := ac.bookings.Reschedule(c.UserContext(), appt.ID, booking.RescheduleInput{
		Start:    req.Start,
		CloserID: req.CloserID,
		EventID:  req.EventID,
		Notes:    req.Notes,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(updated)
}

type statusRequest struct {
	Status                string `json:"status" validate:"required"`
	PresentationDelivered *bool  `json:"presentation_delivered"`
}

func (ac *AppointmentController) HandleSetStatus(c *fiber.Ctx) error {
	appt, err := ac.load(c)
	if err != nil {
		return respondError(c, err)
	}
	var req statusRequest
	if err := bindJSON(c, &req); err != nil {
		return respondError(c, err)
	}
	updated, err := ac.bookings.SetStatus(c.UserContext(), appt.ID, req.Status, req.PresentationDelivered)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(updated)
}

func (ac *AppointmentController) HandleDelete(c *fiber.Ctx) error {
	appt, err := ac.load(c)
	if err != nil {
		return respondError(c, err)
	}
	if err := ac.bookings.Delete(c.UserContext(), appt.ID); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// load fetches the :id appointment and checks the caller may act on it.
func (ac *AppointmentController) load(c *fiber.Ctx) (*models.Appointment, error) {
	id, err := paramID(c, "id")
	if err != nil {
		return nil, err
	}
	appt, err := ac.bookings.Get(c.UserContext(), id)
	if err != nil {
		return nil, err
	}
	user := usercontext.GetUserContext(c)
	if user.Role == models.ROLE_CLOSER && appt.CloserID != user.UserID {
		return nil, auth.ErrForbidden
	}
	return appt, nil
}
