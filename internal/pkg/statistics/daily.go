package statistics

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/closerdesk/closerdesk/app/models"
	"github.com/closerdesk/closerdesk/internal/pkg/ledger"
)

var ErrCloserNotFound = errors.New("closer not found")

type DailyAnswer struct {
	Question string `json:"question" validate:"required,max=500"`
	Answer   string `json:"answer" validate:"max=5000"`
}

// DailyReportInput is what a closer reports for a day. Everything else on the sheet
// is computed from appointments and payments.
type DailyReportInput struct {
	Date      string        `json:"date" validate:"required,datetime=2006-01-02"`
	CallsMade int           `json:"calls_made" validate:"gte=0"`
	Notes     string        `json:"notes" validate:"max=5000"`
	Answers   []DailyAnswer `json:"answers" validate:"dive"`
}

// DailyKPIs are the values derived for one closer and local calendar day.
type DailyKPIs struct {
	AppointmentsBooked    int     `json:"appointments_booked"`
	AppointmentsCompleted int     `json:"appointments_completed"`
	NoShows               int     `json:"no_shows"`
	Presentations         int     `json:"presentations"`
	SalesCount            int     `json:"sales_count"`
	Revenue               float64 `json:"revenue"`
}

// SubmitDailyReport stores the closer's report for the day, recomputing the KPIs.
// Submitting again for the same day replaces the earlier report.
func (s *Service) SubmitDailyReport(ctx context.Context, closerID uint, in DailyReportInput) (*models.CloserDailyStats, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}
	day, err := time.Parse("2006-01-02", in.Date)
	if err != nil {
		return nil, err
	}

	kpis, err := s.DailyKPIs(ctx, closerID, day)
	if err != nil {
		return nil, err
	}

	stats := &models.CloserDailyStats{
		CloserID:              closerID,
		Date:                  datatypes.Date(day),
		CallsMade:             in.CallsMade,
		AppointmentsBooked:    kpis.AppointmentsBooked,
		AppointmentsCompleted: kpis.AppointmentsCompleted,
		NoShows:               kpis.NoShows,
		Presentations:         kpis.Presentations,
		SalesCount:            kpis.SalesCount,
		Revenue:               kpis.Revenue,
		Notes:                 strings.TrimSpace(in.Notes),
	}
	for _, a := range in.Answers {
		stats.Answers = append(stats.Answers, models.DailyReportAnswer{
			Question: strings.TrimSpace(a.Question),
			Answer:   strings.TrimSpace(a.Answer),
		})
	}
	if existing, err := s.repo.GetDailyStats(ctx, closerID, day); err != nil {
		return nil, err
	} else if existing != nil {
		stats.ID = existing.ID
		stats.CreatedAt = existing.CreatedAt
	}

	if err := s.repo.SaveDailyStats(ctx, stats); err != nil {
		return nil, fmt.Errorf("statistics: save daily report: %w", err)
	}
	return stats, nil
}

// DailyKPIs computes a closer's figures for the calendar day in the closer's timezone.
func (s *Service) DailyKPIs(ctx context.Context, closerID uint, day time.Time) (*DailyKPIs, error) {
	closer, err := s.repo.GetUser(ctx, closerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCloserNotFound
		}
		return nil, err
	}
	loc := closer.Location(s.location)
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
	to := from.AddDate(0, 0, 1)

	booked, err := s.repo.CountAppointmentsCreated(ctx, from, to, &closerID)
	if err != nil {
		return nil, err
	}
	appointments, err := s.repo.ListAppointments(ctx, from, to, &closerID)
	if err != nil {
		return nil, err
	}
	payments, err := s.repo.ListPayments(ctx, from, to, &closerID)
	if err != nil {
		return nil, err
	}

	st := appointmentStats(appointments)
	k := &DailyKPIs{
		AppointmentsBooked:    int(booked),
		AppointmentsCompleted: st.Completed,
		NoShows:               st.NoShows,
		Presentations:         st.Presentations,
	}
	for _, p := range payments {
		if p.Status != models.PAYMENT_STATUS_COMPLETED {
			continue
		}
		k.Revenue += p.Amount
		if isSale(p) {
			k.SalesCount++
		}
	}
	k.Revenue = ledger.Round2(k.Revenue)
	return k, nil
}

func (s *Service) DailyReports(ctx context.Context, f DailyFilter) ([]models.CloserDailyStats, error) {
	return s.repo.ListDailyStats(ctx, f)
}
