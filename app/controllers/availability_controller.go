package controllers

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/datatypes"

	"github.com/closerdesk/closerdesk/app/models"
	"github.com/closerdesk/closerdesk/app/repository"
	"github.com/closerdesk/closerdesk/internal/pkg/auth"
	"github.com/closerdesk/closerdesk/internal/pkg/usercontext"
)

// maxWindowsPerRequest bounds a bulk availability insert.
const maxWindowsPerRequest = 500

// AvailabilityController manages closers' bookable windows
type AvailabilityController struct {
	repo repository.AvailabilityRepository
}

func NewAvailabilityController(repo repository.AvailabilityRepository) *AvailabilityController {
	return &AvailabilityController{repo: repo}
}

// HandleList lists windows with dates in [from, to] (inclusive, YYYY-MM-DD).
func (ac *AvailabilityController) HandleList(c *fiber.Ctx) error {
	var from, to time.Time
	var err error
	if raw := c.Query("from"); raw != "" {
		if from, err = time.Parse("2006-01-02", raw); err != nil {
			return badRequest(c, "invalid from")
		}
	}
	if raw := c.Query("to"); raw != "" {
		if to, err = time.Parse("2006-01-02", raw); err != nil {
			return badRequest(c, "invalid to")
		}
	}
	closerID, err := queryUint(c, "closer_id")
	if err != nil {
		return respondError(c, err)
	}
	var id uint
	if scoped := usercontext.GetUserContext(c).ScopeCloser(closerID); scoped != nil {
		id = *scoped
	}
	list, err := ac.repo.List(c.UserContext(), id, from, to)
	if err != nil {
		return respondError(c, err)
	}
	if list == nil {
		list = []models.Availability{}
	}
	return c.JSON(fiber.Map{"availability": list})
}

type windowRequest struct {
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime string `json:"start_time" validate:"required,len=5,datetime=15:04"`
	EndTime   string `json:"end_time" validate:"required,len=5,datetime=15:04"`
}

type createAvailabilityRequest struct {
	CloserID uint            `json:"closer_id"`
	Windows  []windowRequest `json:"windows" validate:"required,min=1,dive"`
}

// HandleCreate inserts a batch of windows for one closer, all or nothing.
func (ac *AvailabilityController) HandleCreate(c *fiber.Ctx) error {
	var req createAvailabilityRequest
	if err := bindJSON(c, &req); err != nil {
		return respondError(c, err)
	}
	if len(req.Windows) > maxWindowsPerRequest {
		return badRequest(c, fmt.Sprintf("at most %d windows per request", maxWindowsPerRequest))
	}
	user := usercontext.GetUserContext(c)
	if user.Role == models.ROLE_CLOSER || req.CloserID == 0 {
		req.CloserID = user.UserID
	}

	windows := make([]models.Availability, 0, len(req.Windows))
	for i, w := range req.Windows {
		date, _ := time.Parse("2006-01-02", w.Date)
		if !windowOrdered(w.StartTime, w.EndTime) {
			return jsonError(c, fiber.StatusUnprocessableEntity, "invalid_window",
				fmt.Sprintf("window %d: end_time must be after start_time", i))
		}
		windows = append(windows, models.Availability{
			CloserID:  req.CloserID,
			Date:      datatypes.Date(date),
			StartTime: w.StartTime,
			EndTime:   w.EndTime,
		})
	}
	if err := ac.repo.CreateMany(c.UserContext(), windows); err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"availability": windows})
}

// windowOrdered reports whether end is strictly later than start on the same day.
func windowOrdered(start, end string) bool {
	sh, sm, err := models.ParseClock(start)
	if err != nil {
		return false
	}
	eh, em, err := models.ParseClock(end)
	if err != nil {
		return false
	}
	return eh*60+em > sh*60+sm
}

func (ac *AvailabilityController) HandleDelete(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	w, err := ac.repo.GetByID(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	user := usercontext.GetUserContext(c)
	if user.Role == models.ROLE_CLOSER && w.CloserID != user.UserID {
		return respondError(c, auth.ErrForbidden)
	}
	if err := ac.repo.Delete(c.UserContext(), id); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
