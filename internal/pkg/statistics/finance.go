package statistics

import (
	"context"
	"sort"
	"time"

	"github.com/closerdesk/closerdesk/app/models"
	"github.com/closerdesk/closerdesk/internal/pkg/ledger"
)

type ExpenseLine struct {
	Date        time.Time `json:"date"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Amount      float64   `json:"amount"`
	Recurring   bool      `json:"recurring"`
}

type CloserFinance struct {
	CloserID   *uint   `json:"closer_id"`
	Name       string  `json:"name"`
	Payments   int     `json:"payments"`
	Revenue    float64 `json:"revenue"`
	Commission float64 `json:"commission"`
	NetCash    float64 `json:"net_cash"`
}

type ProgramFinance struct {
	ProgramID uint    `json:"program_id"`
	Name      string  `json:"name"`
	Payments  int     `json:"payments"`
	Revenue   float64 `json:"revenue"`
	NetCash   float64 `json:"net_cash"`
}

type MonthFinance struct {
	Month    string  `json:"month"`
	Revenue  float64 `json:"revenue"`
	NetCash  float64 `json:"net_cash"`
	Expenses float64 `json:"expenses"`
	Profit   float64 `json:"profit"`
}

// FinanceReport covers completed payments and expenses in [From, To). Profit is net
// cash after payment-method commissions minus all expenses.
type FinanceReport struct {
	From               time.Time          `json:"from"`
	To                 time.Time          `json:"to"`
	Payments           int                `json:"payments"`
	Revenue            float64            `json:"revenue"`
	Commission         float64            `json:"commission"`
	NetCash            float64            `json:"net_cash"`
	PendingAmount      float64            `json:"pending_amount"`
	OneOffExpenses     float64            `json:"one_off_expenses"`
	RecurringExpenses  float64            `json:"recurring_expenses"`
	TotalExpenses      float64            `json:"total_expenses"`
	Profit             float64            `json:"profit"`
	ExpensesByCategory map[string]float64 `json:"expenses_by_category"`
	ByCloser           []CloserFinance    `json:"by_closer"`
	ByProgram          []ProgramFinance   `json:"by_program"`
	ByMonth            []MonthFinance     `json:"by_month"`
	Expenses           []ExpenseLine      `json:"expenses"`
}

func (s *Service) Finance(ctx context.Context, from, to time.Time) (*FinanceReport, error) {
	if !from.Before(to) {
		return nil, ErrInvalidRange
	}
	payments, err := s.repo.ListPayments(ctx, from, to, nil)
	if err != nil {
		return nil, err
	}
	expenses, err := s.repo.ListExpenses(ctx, from, to)
	if err != nil {
		return nil, err
	}
	recurring, err := s.repo.ListRecurringExpenses(ctx)
	if err != nil {
		return nil, err
	}

	lines := make([]ExpenseLine, 0, len(expenses))
	for _, e := range expenses {
		lines = append(lines, ExpenseLine{
			Date:        e.SpentAt.UTC(),
			Description: e.Description,
			Category:    e.Category,
			Amount:      e.Amount,
		})
	}
	for _, r := range recurring {
		for _, at := range RecurringOccurrences(r, from, to) {
			lines = append(lines, ExpenseLine{
				Date:        at,
				Description: r.Description,
				Category:    r.Category,
				Amount:      r.Amount,
				Recurring:   true,
			})
		}
	}
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].Date.Before(lines[j].Date) })

	return buildFinance(from, to, payments, lines), nil
}

func buildFinance(from, to time.Time, payments []PaymentRow, lines []ExpenseLine) *FinanceReport {
	rep := &FinanceReport{
		From:               from.UTC(),
		To:                 to.UTC(),
		ExpensesByCategory: map[string]float64{},
		Expenses:           lines,
	}
	closers := map[uint]*CloserFinance{}
	var unassigned *CloserFinance
	programs := map[uint]*ProgramFinance{}
	months := map[string]*MonthFinance{}
	month := func(t time.Time) *MonthFinance {
		key := t.UTC().Format("2006-01")
		if m, ok := months[key]; ok {
			return m
		}
		m := &MonthFinance{Month: key}
		months[key] = m
		return m
	}

	for _, p := range payments {
		if p.Status == models.PAYMENT_STATUS_PENDING {
			rep.PendingAmount += p.Amount
			continue
		}
		if p.Status != models.PAYMENT_STATUS_COMPLETED {
			continue
		}
		commission := ledger.Commission(p.Amount, p.CommissionPct, p.CommissionFixed)
		net := p.Amount - commission

		rep.Payments++
		rep.Revenue += p.Amount
		rep.Commission += commission
		rep.NetCash += net

		var cf *CloserFinance
		if p.CloserID == nil {
			if unassigned == nil {
				unassigned = &CloserFinance{Name: "Unassigned"}
			}
			cf = unassigned
		} else {
			cf = closers[*p.CloserID]
			if cf == nil {
				id := *p.CloserID
				cf = &CloserFinance{CloserID: &id, Name: p.CloserName}
				closers[id] = cf
			}
		}
		cf.Payments++
		cf.Revenue += p.Amount
		cf.Commission += commission
		cf.NetCash += net

		pf := programs[p.ProgramID]
		if pf == nil {
			pf = &ProgramFinance{ProgramID: p.ProgramID, Name: p.ProgramName}
			programs[p.ProgramID] = pf
		}
		pf.Payments++
		pf.Revenue += p.Amount
		pf.NetCash += net

		m := month(p.PaidAt)
		m.Revenue += p.Amount
		m.NetCash += net
	}

	for _, l := range lines {
		if l.Recurring {
			rep.RecurringExpenses += l.Amount
		} else {
			rep.OneOffExpenses += l.Amount
		}
		category := l.Category
		if category == "" {
			category = "uncategorized"
		}
		rep.ExpensesByCategory[category] = ledger.Round2(rep.ExpensesByCategory[category] + l.Amount)
		month(l.Date).Expenses += l.Amount
	}

	rep.Revenue = ledger.Round2(rep.Revenue)
	rep.Commission = ledger.Round2(rep.Commission)
	rep.NetCash = ledger.Round2(rep.NetCash)
	rep.PendingAmount = ledger.Round2(rep.PendingAmount)
	rep.OneOffExpenses = ledger.Round2(rep.OneOffExpenses)
	rep.RecurringExpenses = ledger.Round2(rep.RecurringExpenses)
	rep.TotalExpenses = ledger.Round2(rep.OneOffExpenses + rep.RecurringExpenses)
	rep.Profit = ledger.Round2(rep.NetCash - rep.TotalExpenses)

	for _, cf := range closers {
		rep.ByCloser = append(rep.ByCloser, roundCloser(*cf))
	}
	sort.Slice(rep.ByCloser, func(i, j int) bool {
		if rep.ByCloser[i].Revenue != rep.ByCloser[j].Revenue {
			return rep.ByCloser[i].Revenue > rep.ByCloser[j].Revenue
		}
		return *rep.ByCloser[i].CloserID < *rep.ByCloser[j].CloserID
	})
	if unassigned != nil {
		rep.ByCloser = append(rep.ByCloser, roundCloser(*unassigned))
	}

	for _, pf := range programs {
		pf.Revenue = ledger.Round2(pf.Revenue)
		pf.NetCash = ledger.Round2(pf.NetCash)
		rep.ByProgram = append(rep.ByProgram, *pf)
	}
	sort.Slice(rep.ByProgram, func(i, j int) bool {
		if rep.ByProgram[i].Revenue != rep.ByProgram[j].Revenue {
			return rep.ByProgram[i].Revenue > rep.ByProgram[j].Revenue
		}
		return rep.ByProgram[i].ProgramID < rep.ByProgram[j].ProgramID
	})

	for _, m := range months {
		m.Revenue = ledger.Round2(m.Revenue)
		m.NetCash = ledger.Round2(m.NetCash)
		m.Expenses = ledger.Round2(m.Expenses)
		m.Profit = ledger.Round2(m.NetCash - m.Expenses)
		rep.ByMonth = append(rep.ByMonth, *m)
	}
	sort.Slice(rep.ByMonth, func(i, j int) bool { return rep.ByMonth[i].Month < rep.ByMonth[j].Month })
	return rep
}

func roundCloser(cf CloserFinance) CloserFinance {
	cf.Revenue = ledger.Round2(cf.Revenue)
	cf.Commission = ledger.Round2(cf.Commission)
	cf.NetCash = ledger.Round2(cf.NetCash)
	return cf
}

// RecurringOccurrences lists the charge dates of r inside [from, to). A DayOfMonth past
// the end of a month charges on its last day. Nothing is charged before StartsOn.
func RecurringOccurrences(r models.RecurringExpense, from, to time.Time) []time.Time {
	if !r.IsActive || !from.Before(to) {
		return nil
	}
	from, to = from.UTC(), to.UTC()
	startsOn := time.Time(r.StartsOn)
	startsOn = time.Date(startsOn.Year(), startsOn.Month(), startsOn.Day(), 0, 0, 0, 0, time.UTC)
	day := r.DayOfMonth
	if day < 1 {
		day = 1
	}

	var out []time.Time
	cursor := time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, time.UTC)
	for cursor.Before(to) {
		last := cursor.AddDate(0, 1, -1).Day()
		d := day
		if d > last {
			d = last
		}
		at := time.Date(cursor.Year(), cursor.Month(), d, 0, 0, 0, 0, time.UTC)
		if !at.Before(from) && at.Before(to) && !at.Before(startsOn) {
			out = append(out, at)
		}
		cursor = cursor.AddDate(0, 1, 0)
	}
	return out
}
