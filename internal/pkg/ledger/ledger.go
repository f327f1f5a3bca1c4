// Package ledger records sales and keeps enrollment balances: what each student
// agreed to pay, what has been paid, and what the business keeps after commissions.
package ledger

import (
	"math"

	"github.com/closerdesk/closerdesk/app/models"
)

// Round2 rounds to cents, half away from zero.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Commission is what the payment method charges for amount.
func Commission(amount, pct, fixed float64) float64 {
	return Round2(amount*(pct/100) + fixed)
}

// NetCash is amount minus the method's commission. A nil method charges nothing.
func NetCash(amount float64, method *models.PaymentMethod) float64 {
	if method == nil {
		return Round2(amount)
	}
	return Round2(amount - Commission(amount, method.CommissionPct, method.CommissionFixed))
}

// PaidTotal sums the completed payments of a single enrollment.
func PaidTotal(payments []models.Payment) float64 {
	var total float64
	for _, p := range payments {
		if p.Status == models.PAYMENT_STATUS_COMPLETED {
			total += p.Amount
		}
	}
	return Round2(total)
}

// Debt is what is still owed on an enrollment. Only active enrollments owe anything
// and the result is never negative.
func Debt(e models.Enrollment, paid float64) float64 {
	if e.Status != models.ENROLLMENT_ACTIVE {
		return 0
	}
	return Round2(math.Max(0, e.TotalAgreed-paid))
}

// EnrollmentBalance is one enrollment with its derived totals.
type EnrollmentBalance struct {
	Enrollment models.Enrollment `json:"enrollment"`
	Paid       float64           `json:"total_paid"`
	Debt       float64           `json:"debt"`
}

// Summary is a student's position across all enrollments.
type Summary struct {
	StudentID         uint                `json:"student_id"`
	Status            string              `json:"status"`
	Enrollments       []EnrollmentBalance `json:"enrollments"`
	TotalPaid         float64             `json:"total_paid"`
	CurrentActiveDebt float64             `json:"current_active_debt"`
}

// Summarize builds a Summary from enrollments and their completed-payment totals.
func Summarize(studentID uint, enrollments []models.Enrollment, paid map[uint]float64) Summary {
	s := Summary{StudentID: studentID, Enrollments: make([]EnrollmentBalance, 0, len(enrollments))}
	for _, e := range enrollments {
		p := Round2(paid[e.ID])
		d := Debt(e, p)
		s.Enrollments = append(s.Enrollments, EnrollmentBalance{Enrollment: e, Paid: p, Debt: d})
		s.TotalPaid += p
		s.CurrentActiveDebt += d
	}
	s.TotalPaid = Round2(s.TotalPaid)
	s.CurrentActiveDebt = Round2(s.CurrentActiveDebt)
	return s
}
