package statistics

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/closerdesk/closerdesk/app/models"
	"github.com/closerdesk/closerdesk/internal/pkg/ledger"
)

var ErrInvalidRange = errors.New("from must be before to")

// DashboardQuery selects [From, To). A nil CloserID covers every closer.
type DashboardQuery struct {
	From     time.Time
	To       time.Time
	CloserID *uint
}

type AppointmentStats struct {
	Total         int     `json:"total"`
	Booked        int64   `json:"booked"`
	Scheduled     int     `json:"scheduled"`
	Confirmed     int     `json:"confirmed"`
	Completed     int     `json:"completed"`
	NoShows       int     `json:"no_shows"`
	Canceled      int     `json:"canceled"`
	Rescheduled   int     `json:"rescheduled"`
	Presentations int     `json:"presentations"`
	ShowRate      float64 `json:"show_rate"`
}

type SalesStats struct {
	Count         int     `json:"count"`
	Revenue       float64 `json:"revenue"`
	Commission    float64 `json:"commission"`
	NetCash       float64 `json:"net_cash"`
	PendingAmount float64 `json:"pending_amount"`
	CloseRate     float64 `json:"close_rate"`
}

type CloserStats struct {
	CloserID      uint    `json:"closer_id"`
	Name          string  `json:"name"`
	Appointments  int     `json:"appointments"`
	Completed     int     `json:"completed"`
	NoShows       int     `json:"no_shows"`
	Presentations int     `json:"presentations"`
	Sales         int     `json:"sales"`
	Revenue       float64 `json:"revenue"`
	NetCash       float64 `json:"net_cash"`
	CloseRate     float64 `json:"close_rate"`
}

type DashboardData struct {
	From          time.Time        `json:"from"`
	To            time.Time        `json:"to"`
	CloserID      *uint            `json:"closer_id,omitempty"`
	NewLeads      int64            `json:"new_leads"`
	LeadsByStatus map[string]int64 `json:"leads_by_status"`
	Appointments  AppointmentStats `json:"appointments"`
	Sales         SalesStats       `json:"sales"`
	ActiveDebt    float64          `json:"active_debt"`
	Closers       []CloserStats    `json:"closers"`
	GeneratedAt   time.Time        `json:"generated_at"`
}

// Dashboard aggregates funnel, appointment and sales figures for the range. Results
// are served from the cache when present.
func (s *Service) Dashboard(ctx context.Context, q DashboardQuery) (*DashboardData, error) {
	if !q.From.Before(q.To) {
		return nil, ErrInvalidRange
	}
	key := dashboardKey(q)
	if s.cache != nil {
		var cached DashboardData
		if err := s.cache.GetJSON(key, &cached); err == nil {
			return &cached, nil
		}
	}

	data, err := s.buildDashboard(ctx, q)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.SetJSON(key, data, CacheExpiration); err != nil {
			log.Warnf("[Statistics] Could not cache dashboard: %v", err)
		}
	}
	return data, nil
}

func (s *Service) buildDashboard(ctx context.Context, q DashboardQuery) (*DashboardData, error) {
	appointments, err := s.repo.ListAppointments(ctx, q.From, q.To, q.CloserID)
	if err != nil {
		return nil, err
	}
	booked, err := s.repo.CountAppointmentsCreated(ctx, q.From, q.To, q.CloserID)
	if err != nil {
		return nil, err
	}
	payments, err := s.repo.ListPayments(ctx, q.From, q.To, q.CloserID)
	if err != nil {
		return nil, err
	}
	newLeads, err := s.repo.CountNewLeads(ctx, q.From, q.To, q.CloserID)
	if err != nil {
		return nil, err
	}
	byStatus, err := s.repo.LeadStatusCounts(ctx, q.CloserID)
	if err != nil {
		return nil, err
	}
	balances, err := s.repo.ActiveBalances(ctx, q.CloserID)
	if err != nil {
		return nil, err
	}
	closers, err := s.repo.ListClosers(ctx)
	if err != nil {
		return nil, err
	}

	data := &DashboardData{
		From:          q.From.UTC(),
		To:            q.To.UTC(),
		CloserID:      q.CloserID,
		NewLeads:      newLeads,
		LeadsByStatus: byStatus,
		Appointments:  appointmentStats(appointments),
		Sales:         salesStats(payments),
		ActiveDebt:    activeDebt(balances),
		Closers:       closerStats(closers, q.CloserID, appointments, payments),
		GeneratedAt:   s.now().UTC(),
	}
	data.Appointments.Booked = booked
	data.Sales.CloseRate = ratio(data.Sales.Count, data.Appointments.Presentations)
	return data, nil
}

func appointmentStats(list []models.Appointment) AppointmentStats {
	var st AppointmentStats
	for _, a := range list {
		st.Total++
		switch a.Status {
		case models.APPOINTMENT_SCHEDULED:
			st.Scheduled++
		case models.APPOINTMENT_CONFIRMED:
			st.Confirmed++
		case models.APPOINTMENT_COMPLETED:
			st.Completed++
			if delivered(a) {
				st.Presentations++
			}
		case models.APPOINTMENT_NO_SHOW:
			st.NoShows++
		case models.APPOINTMENT_CANCELED:
			st.Canceled++
		case models.APPOINTMENT_RESCHEDULED:
			st.Rescheduled++
		}
	}
	st.ShowRate = ratio(st.Completed, st.Completed+st.NoShows)
	return st
}

// isSale reports whether a completed payment opens a sale. Installments collect on an
// existing sale and are not counted again.
func isSale(p PaymentRow) bool {
	return p.Status == models.PAYMENT_STATUS_COMPLETED && p.PaymentType != models.PAYMENT_INSTALLMENT
}

func salesStats(rows []PaymentRow) SalesStats {
	var st SalesStats
	for _, p := range rows {
		switch p.Status {
		case models.PAYMENT_STATUS_COMPLETED:
			commission := ledger.Commission(p.Amount, p.CommissionPct, p.CommissionFixed)
			st.Revenue += p.Amount
			st.Commission += commission
			st.NetCash += p.Amount - commission
			if isSale(p) {
				st.Count++
			}
		case models.PAYMENT_STATUS_PENDING:
			st.PendingAmount += p.Amount
		}
	}
	st.Revenue = ledger.Round2(st.Revenue)
	st.Commission = ledger.Round2(st.Commission)
	st.NetCash = ledger.Round2(st.NetCash)
	st.PendingAmount = ledger.Round2(st.PendingAmount)
	return st
}

func activeDebt(balances []Balance) float64 {
	var total float64
	for _, b := range balances {
		total += ledger.Debt(models.Enrollment{Status: models.ENROLLMENT_ACTIVE, TotalAgreed: b.TotalAgreed}, b.Paid)
	}
	return ledger.Round2(total)
}

// closerStats returns one row per closer (only the selected one when filtered), plus
// rows for closers that appear in the data but are no longer listed.
func closerStats(closers []models.User, only *uint, appointments []models.Appointment, payments []PaymentRow) []CloserStats {
	byID := map[uint]*CloserStats{}
	get := func(id uint) *CloserStats {
		if st, ok := byID[id]; ok {
			return st
		}
		st := &CloserStats{CloserID: id}
		byID[id] = st
		return st
	}
	for _, c := range closers {
		if only != nil && c.ID != *only {
			continue
		}
		get(c.ID).Name = c.Name
	}

	for _, a := range appointments {
		st := get(a.CloserID)
		st.Appointments++
		switch a.Status {
		case models.APPOINTMENT_COMPLETED:
			st.Completed++
			if delivered(a) {
				st.Presentations++
			}
		case models.APPOINTMENT_NO_SHOW:
			st.NoShows++
		}
	}
	for _, p := range payments {
		if p.CloserID == nil || p.Status != models.PAYMENT_STATUS_COMPLETED {
			continue
		}
		st := get(*p.CloserID)
		if st.Name == "" {
			st.Name = p.CloserName
		}
		st.Revenue += p.Amount
		st.NetCash += p.Amount - ledger.Commission(p.Amount, p.CommissionPct, p.CommissionFixed)
		if isSale(p) {
			st.Sales++
		}
	}

	out := make([]CloserStats, 0, len(byID))
	for _, st := range byID {
		st.Revenue = ledger.Round2(st.Revenue)
		st.NetCash = ledger.Round2(st.NetCash)
		st.CloseRate = ratio(st.Sales, st.Presentations)
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Revenue != out[j].Revenue {
			return out[i].Revenue > out[j].Revenue
		}
		return out[i].CloserID < out[j].CloserID
	})
	return out
}

func delivered(a models.Appointment) bool {
	return a.PresentationDelivered != nil && *a.PresentationDelivered
}
