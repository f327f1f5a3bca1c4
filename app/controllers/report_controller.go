package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/closerdesk/closerdesk/app/models"
	"github.com/closerdesk/closerdesk/internal/pkg/statistics"
	"github.com/closerdesk/closerdesk/internal/pkg/usercontext"
)

// ReportService is implemented by *statistics.Service.
type ReportService interface {
	Dashboard(ctx context.Context, q statistics.DashboardQuery) (*statistics.DashboardData, error)
	Finance(ctx context.Context, from, to time.Time) (*statistics.FinanceReport, error)
	SubmitDailyReport(ctx context.Context, closerID uint, in statistics.DailyReportInput) (*models.CloserDailyStats, error)
	DailyReports(ctx context.Context, f statistics.DailyFilter) ([]models.CloserDailyStats, error)
}

type ReportController struct {
	reports ReportService
	now     func() time.Time
}

func NewReportController(r ReportService) *ReportController {
	return &ReportController{reports: r, now: time.Now}
}

// HandleDashboard serves KPIs for the range, defaulting to the current month.
// Closers always get their own figures.
func (rc *ReportController) HandleDashboard(c *fiber.Ctx) error {
	defFrom, defTo := monthRange(rc.now())
	from, to, err := queryRange(c, "from", "to", defFrom, defTo)
	if err != nil {
		return respondError(c, err)
	}
	closerID, err := queryUint(c, "closer_id")
	if err != nil {
		return respondError(c, err)
	}
	data, err := rc.reports.Dashboard(c.UserContext(), statistics.DashboardQuery{
		From:     from,
		To:       to,
		CloserID: usercontext.GetUserContext(c).ScopeCloser(closerID),
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(data)
}

// HandleFinance serves the financial report (admin)
func (rc *ReportController) HandleFinance(c *fiber.Ctx) error {
	defFrom, defTo := monthRange(rc.now())
	from, to, err := queryRange(c, "from", "to", defFrom, defTo)
	if err != nil {
		return respondError(c, err)
	}
	rep, err := rc.reports.Finance(c.UserContext(), from, to)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(rep)
}

// HandleSubmitDailyReport stores the caller's daily report. Admins may file one for
// a closer with ?closer_id.
func (rc *ReportController) HandleSubmitDailyReport(c *fiber.Ctx) error {
	var in statistics.DailyReportInput
	if err := bindJSON(c, &in); err != nil {
		return respondError(c, err)
	}
	user := usercontext.GetUserContext(c)
	closerID := user.UserID
	if user.IsAdmin() {
		requested, err := queryUint(c, "closer_id")
		if err != nil {
			return respondError(c, err)
		}
		if requested != nil {
			closerID = *requested
		}
	}
	stats, err := rc.reports.SubmitDailyReport(c.UserContext(), closerID, in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(stats)
}

func (rc *ReportController) HandleDailyReports(c *fiber.Ctx) error {
	from, to, err := queryRange(c, "from", "to", time.Time{}, time.Time{})
	if err != nil {
		return respondError(c, err)
	}
	closerID, err := queryUint(c, "closer_id")
	if err != nil {
		return respondError(c, err)
	}
	list, err := rc.reports.DailyReports(c.UserContext(), statistics.DailyFilter{
		CloserID: usercontext.GetUserContext(c).ScopeCloser(closerID),
		From:     from,
		To:       to,
	})
	if err != nil {
		return respondError(c, err)
	}
	if list == nil {
		list = []models.CloserDailyStats{}
	}
	return c.JSON(fiber.Map{"reports": list})
}
