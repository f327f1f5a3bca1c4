package controllers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/closerdesk/closerdesk/app/models"
	"github.com/closerdesk/closerdesk/internal/pkg/intake"
	"github.com/closerdesk/closerdesk/internal/pkg/ledger"
	"github.com/closerdesk/closerdesk/internal/pkg/usercontext"
)

type LeadService interface {
	ListLeads(ctx context.Context, f intake.LeadFilter) ([]models.User, int64, error)
	GetLead(ctx context.Context, id uint) (*intake.LeadDetail, error)
	UpdateLead(ctx context.Context, id uint, in intake.LeadUpdate) (*models.User, error)
	DeleteLead(ctx context.Context, id uint) error
	RecomputeStatus(ctx context.Context, id uint) (string, error)
}

type SummaryService interface {
	StudentSummary(ctx context.Context, studentID uint) (*ledger.Summary, error)
}

// LeadController is the back-office view of leads and students
type LeadController struct {
	leads   LeadService
	summary SummaryService
}

func NewLeadController(leads LeadService, summary SummaryService) *LeadController {
	return &LeadController{leads: leads, summary: summary}
}

func (lc *LeadController) HandleList(c *fiber.Ctx) error {
	limit, offset := pagination(c)
	closerID, err := queryUint(c, "closer_id")
	if err != nil {
		return respondError(c, err)
	}
	eventID, err := queryUint(c, "event_id")
	if err != nil {
		return respondError(c, err)
	}
	f := intake.LeadFilter{
		Search: c.Query("q"),
		Status: c.Query("status"),
		Limit:  limit,
		Offset: offset,
	}
	if scoped := usercontext.GetUserContext(c).ScopeCloser(closerID); scoped != nil {
		f.CloserID = *scoped
	}
	if eventID != nil {
		f.EventID = *eventID
	}

	leads, total, err := lc.leads.ListLeads(c.UserContext(), f)
	if err != nil {
		return respondError(c, err)
	}
	if leads == nil {
		leads = []models.User{}
	}
	return c.JSON(fiber.Map{"leads": leads, "total": total, "limit": limit, "offset": offset})
}

func (lc *LeadController) HandleGet(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	detail, err := lc.leads.GetLead(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(detail)
}

func (lc *LeadController) HandleUpdate(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var in intake.LeadUpdate
	if err := bindJSON(c, &in); err != nil {
		return respondError(c, err)
	}
	lead, err := lc.leads.UpdateLead(c.UserContext(), id, in)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(lead)
}

func (lc *LeadController) HandleDelete(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	if err := lc.leads.DeleteLead(c.UserContext(), id); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// HandleRecomputeStatus re-derives the funnel status from appointments and enrollments
func (lc *LeadController) HandleRecomputeStatus(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	status, err := lc.leads.RecomputeStatus(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"id": id, "status": status})
}

// HandleSummary returns the enrollment and debt summary for a lead or student
func (lc *LeadController) HandleSummary(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	sum, err := lc.summary.StudentSummary(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(sum)
}
