package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/closerdesk/closerdesk/app/models"
	"github.com/closerdesk/closerdesk/internal/pkg/funnel"
)

var (
	ErrInsufficientAmount = errors.New("full payment is below the program price")
	ErrRenewalNotAllowed  = errors.New("renewal requires a completed lead")
	ErrInvalidPayment     = errors.New("invalid payment")
	ErrInvalidEnrollment  = errors.New("invalid enrollment")
	ErrProgramInUse       = errors.New("program has enrollments")
	ErrNotFound           = errors.New("record not found")
	ErrStudentNotFound    = errors.New("student not found")
	ErrProgramNotFound    = errors.New("program not found")
)

const (
	EventPaymentCreated    = "payment.created"
	EventPaymentUpdated    = "payment.updated"
	EventPaymentDeleted    = "payment.deleted"
	EventEnrollmentUpdated = "enrollment.updated"
	EventEnrollmentDeleted = "enrollment.deleted"
)

const amountTolerance = 0.005

type Publisher interface {
	Publish(ctx context.Context, eventType string, data map[string]interface{})
}

type Option func(*Service)

func WithPublisher(p Publisher) Option { return func(s *Service) { s.publisher = p } }

type Service struct {
	repo      Repository
	publisher Publisher
	now       func() time.Time
}

func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{repo: repo, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func NewServiceFromDB(db *gorm.DB, opts ...Option) *Service {
	return NewService(NewRepository(db), opts...)
}

// SaleInput is one payment toward a student's program.
type SaleInput struct {
	StudentID       uint
	ProgramID       uint
	Amount          float64
	PaymentType     string
	Status          string
	PaymentMethodID *uint
	CloserID        *uint
	PaidAt          time.Time
	Reference       string
	// TotalAgreed overrides the seeded agreed total of a new enrollment.
	TotalAgreed *float64
}

// SaleResult is what RegisterSale committed.
type SaleResult struct {
	Enrollment models.Enrollment `json:"enrollment"`
	Payment    models.Payment    `json:"payment"`
	Status     string            `json:"status"`
	Created    bool              `json:"enrollment_created"`
}

type saleEvent struct {
	event      string
	payment    models.Payment
	enrollment models.Enrollment
	student    *models.User
	program    *models.Program
	method     *models.PaymentMethod
}

// RegisterSale records a payment, creating the active enrollment when needed, and
// recomputes the student's status. Any rejection leaves no rows behind.
func (s *Service) RegisterSale(ctx context.Context, in SaleInput) (*SaleResult, error) {
	if in.Status == "" {
		in.Status = models.PAYMENT_STATUS_COMPLETED
	}
	if err := validatePayment(in.Amount, in.PaymentType, in.Status); err != nil {
		return nil, err
	}
	if in.TotalAgreed != nil && *in.TotalAgreed < 0 {
		return nil, fmt.Errorf("%w: total agreed must not be negative", ErrInvalidEnrollment)
	}
	amount := Round2(in.Amount)
	paidAt := in.PaidAt
	if paidAt.IsZero() {
		paidAt = s.now()
	}

	var (
		result SaleResult
		ev     saleEvent
	)
	err := s.repo.WithTx(ctx, func(tx Repository) error {
		student, err := tx.GetUser(ctx, in.StudentID)
		if err != nil {
			return notFoundAs(err, ErrStudentNotFound)
		}
		program, err := tx.GetProgram(ctx, in.ProgramID)
		if err != nil {
			return notFoundAs(err, ErrProgramNotFound)
		}
		if in.PaymentType == models.PAYMENT_FULL && amount+amountTolerance < program.Price {
			return ErrInsufficientAmount
		}
		var method *models.PaymentMethod
		if in.PaymentMethodID != nil {
			if method, err = tx.GetPaymentMethod(ctx, *in.PaymentMethodID); err != nil {
				return notFoundAs(err, fmt.Errorf("%w: unknown payment method", ErrInvalidPayment))
			}
		}

		if in.PaymentType == models.PAYMENT_RENEWAL {
			status, err := tx.GetLeadStatus(ctx, student.ID)
			if err != nil {
				return err
			}
			if !models.IsCompletedStatus(status) {
				return ErrRenewalNotAllowed
			}
		}

		enrollment, err := tx.FindActiveEnrollment(ctx, student.ID, program.ID)
		if err != nil {
			return err
		}
		if enrollment == nil {
			closerID := in.CloserID
			if closerID == nil {
				if closerID, err = tx.LeadCloser(ctx, student.ID); err != nil {
					return err
				}
			}
			enrollment = &models.Enrollment{
				StudentID:   student.ID,
				ProgramID:   program.ID,
				CloserID:    closerID,
				Status:      models.ENROLLMENT_ACTIVE,
				TotalAgreed: seedAgreed(in, amount, program.Price),
			}
			if err := tx.CreateEnrollment(ctx, enrollment); err != nil {
				return err
			}
			result.Created = true
		}

		payment := models.Payment{
			EnrollmentID:    enrollment.ID,
			Amount:          amount,
			PaymentType:     in.PaymentType,
			Status:          in.Status,
			PaymentMethodID: in.PaymentMethodID,
			PaidAt:          paidAt.UTC(),
			Reference:       in.Reference,
		}
		if err := tx.CreatePayment(ctx, &payment); err != nil {
			return err
		}

		if student.Role == models.ROLE_LEAD {
			if err := tx.SetUserRole(ctx, student.ID, models.ROLE_STUDENT); err != nil {
				return err
			}
			student.Role = models.ROLE_STUDENT
		}

		var status string
		if in.PaymentType == models.PAYMENT_RENEWAL {
			status, err = funnel.MarkRenewed(ctx, tx, student.ID, s.now())
		} else {
			status, err = funnel.Recompute(ctx, tx, student.ID, s.now())
		}
		if err != nil {
			return err
		}

		result.Enrollment = *enrollment
		result.Payment = payment
		result.Status = status
		ev = saleEvent{event: EventPaymentCreated, payment: payment, enrollment: *enrollment, student: student, program: program, method: method}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, ev)
	return &result, nil
}

func seedAgreed(in SaleInput, amount, price float64) float64 {
	if in.TotalAgreed != nil {
		return Round2(*in.TotalAgreed)
	}
	if in.PaymentType == models.PAYMENT_FULL {
		return amount
	}
	return Round2(price)
}

// PaymentUpdate holds the editable payment fields; nil leaves a field unchanged.
type PaymentUpdate struct {
	Amount          *float64
	PaymentType     *string
	Status          *string
	PaymentMethodID *uint
	PaidAt          *time.Time
	Reference       *string
}

func (s *Service) UpdatePayment(ctx context.Context, id uint, in PaymentUpdate) (*models.Payment, error) {
	var ev saleEvent
	err := s.repo.WithTx(ctx, func(tx Repository) error {
		p, err := tx.GetPayment(ctx, id)
		if err != nil {
			return notFoundAs(err, ErrNotFound)
		}
		if in.Amount != nil {
			p.Amount = Round2(*in.Amount)
		}
		if in.PaymentType != nil {
			p.PaymentType = *in.PaymentType
		}
		if in.Status != nil {
			p.Status = *in.Status
		}
		if in.PaymentMethodID != nil {
			p.PaymentMethodID = in.PaymentMethodID
			p.PaymentMethod = nil
			if *in.PaymentMethodID == 0 {
				p.PaymentMethodID = nil
			}
		}
		if in.PaidAt != nil {
			p.PaidAt = in.PaidAt.UTC()
		}
		if in.Reference != nil {
			p.Reference = *in.Reference
		}
		if err := validatePayment(p.Amount, p.PaymentType, p.Status); err != nil {
			return err
		}
		if err := tx.SavePayment(ctx, p); err != nil {
			return err
		}

		enrollment, err := tx.GetEnrollment(ctx, p.EnrollmentID)
		if err != nil {
			return err
		}
		if _, err := funnel.Recompute(ctx, tx, enrollment.StudentID, s.now()); err != nil {
			return err
		}
		ev = s.eventFor(ctx, tx, EventPaymentUpdated, *p, *enrollment)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, ev)
	return &ev.payment, nil
}

// DeletePayment removes a payment; an enrollment left without payments goes with it.
func (s *Service) DeletePayment(ctx context.Context, id uint) error {
	var ev saleEvent
	err := s.repo.WithTx(ctx, func(tx Repository) error {
		p, err := tx.GetPayment(ctx, id)
		if err != nil {
			return notFoundAs(err, ErrNotFound)
		}
		enrollment, err := tx.GetEnrollment(ctx, p.EnrollmentID)
		if err != nil {
			return err
		}
		ev = s.eventFor(ctx, tx, EventPaymentDeleted, *p, *enrollment)

		if err := tx.DeletePayment(ctx, p.ID); err != nil {
			return err
		}
		remaining, err := tx.CountPayments(ctx, enrollment.ID)
		if err != nil {
			return err
		}
		if remaining == 0 {
			if err := tx.DeleteEnrollment(ctx, enrollment.ID); err != nil {
				return err
			}
		}
		_, err = funnel.Recompute(ctx, tx, enrollment.StudentID, s.now())
		return err
	})
	if err != nil {
		return err
	}

	s.publish(ctx, ev)
	return nil
}

// EnrollmentUpdate holds the editable enrollment fields; nil leaves a field unchanged.
type EnrollmentUpdate struct {
	Status      *string
	TotalAgreed *float64
	CloserID    *uint
}

func (s *Service) UpdateEnrollment(ctx context.Context, id uint, in EnrollmentUpdate) (*models.Enrollment, error) {
	var out models.Enrollment
	var status string
	err := s.repo.WithTx(ctx, func(tx Repository) error {
		e, err := tx.GetEnrollment(ctx, id)
		if err != nil {
			return notFoundAs(err, ErrNotFound)
		}
		if in.Status != nil {
			switch *in.Status {
			case models.ENROLLMENT_ACTIVE, models.ENROLLMENT_COMPLETED, models.ENROLLMENT_DROPPED:
				e.Status = *in.Status
			default:
				return fmt.Errorf("%w: unknown status %q", ErrInvalidEnrollment, *in.Status)
			}
		}
		if in.TotalAgreed != nil {
			if *in.TotalAgreed < 0 {
				return fmt.Errorf("%w: total agreed must not be negative", ErrInvalidEnrollment)
			}
			e.TotalAgreed = Round2(*in.TotalAgreed)
		}
		if in.CloserID != nil {
			e.CloserID = in.CloserID
			if *in.CloserID == 0 {
				e.CloserID = nil
			}
		}
		if err := tx.SaveEnrollment(ctx, e); err != nil {
			return err
		}
		if status, err = funnel.Recompute(ctx, tx, e.StudentID, s.now()); err != nil {
			return err
		}
		out = *e
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishEnrollment(ctx, EventEnrollmentUpdated, out, status)
	return &out, nil
}

// DeleteEnrollment removes an enrollment together with its payments.
func (s *Service) DeleteEnrollment(ctx context.Context, id uint) error {
	var out models.Enrollment
	var status string
	err := s.repo.WithTx(ctx, func(tx Repository) error {
		e, err := tx.GetEnrollment(ctx, id)
		if err != nil {
			return notFoundAs(err, ErrNotFound)
		}
		if err := tx.DeleteEnrollment(ctx, e.ID); err != nil {
			return err
		}
		if status, err = funnel.Recompute(ctx, tx, e.StudentID, s.now()); err != nil {
			return err
		}
		out = *e
		return nil
	})
	if err != nil {
		return err
	}

	s.publishEnrollment(ctx, EventEnrollmentDeleted, out, status)
	return nil
}

// DeleteProgram refuses while any enrollment references the program.
func (s *Service) DeleteProgram(ctx context.Context, id uint) error {
	return s.repo.WithTx(ctx, func(tx Repository) error {
		if _, err := tx.GetProgram(ctx, id); err != nil {
			return notFoundAs(err, ErrNotFound)
		}
		n, err := tx.CountProgramEnrollments(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrProgramInUse
		}
		return tx.DeleteProgram(ctx, id)
	})
}

// StudentSummary reports paid and owed amounts per enrollment plus totals.
func (s *Service) StudentSummary(ctx context.Context, studentID uint) (*Summary, error) {
	if _, err := s.repo.GetUser(ctx, studentID); err != nil {
		return nil, notFoundAs(err, ErrStudentNotFound)
	}
	enrollments, err := s.repo.ListEnrollments(ctx, studentID)
	if err != nil {
		return nil, err
	}
	ids := make([]uint, 0, len(enrollments))
	for _, e := range enrollments {
		ids = append(ids, e.ID)
	}
	paid, err := s.repo.PaidTotals(ctx, ids)
	if err != nil {
		return nil, err
	}
	status, err := s.repo.GetLeadStatus(ctx, studentID)
	if err != nil {
		return nil, err
	}

	summary := Summarize(studentID, enrollments, paid)
	summary.Status = status
	return &summary, nil
}

// RecomputeStatus re-derives a lead's status outside of any mutation.
func (s *Service) RecomputeStatus(ctx context.Context, userID uint) (string, error) {
	var status string
	err := s.repo.WithTx(ctx, func(tx Repository) error {
		if _, err := tx.GetUser(ctx, userID); err != nil {
			return notFoundAs(err, ErrStudentNotFound)
		}
		var err error
		status, err = funnel.Recompute(ctx, tx, userID, s.now())
		return err
	})
	return status, err
}

func (s *Service) ListPayments(ctx context.Context, f PaymentFilter) ([]models.Payment, error) {
	return s.repo.ListPayments(ctx, f)
}

func (s *Service) ListEnrollments(ctx context.Context, studentID uint) ([]models.Enrollment, error) {
	return s.repo.ListEnrollments(ctx, studentID)
}

func (s *Service) eventFor(ctx context.Context, tx Repository, event string, p models.Payment, e models.Enrollment) saleEvent {
	ev := saleEvent{event: event, payment: p, enrollment: e, program: e.Program, method: p.PaymentMethod}
	student, err := tx.GetUser(ctx, e.StudentID)
	if err != nil {
		log.Warnf("[Ledger] Could not load student %d for payment %d: %v", e.StudentID, p.ID, err)
	} else {
		ev.student = student
	}
	if ev.method == nil && p.PaymentMethodID != nil {
		if m, err := tx.GetPaymentMethod(ctx, *p.PaymentMethodID); err == nil {
			ev.method = m
		}
	}
	return ev
}

func (s *Service) publish(ctx context.Context, ev saleEvent) {
	if s.publisher == nil || ev.event == "" {
		return
	}
	s.publisher.Publish(ctx, ev.event, PaymentPayload(ev.payment, ev.enrollment, ev.student, ev.program, ev.method))
}

func (s *Service) publishEnrollment(ctx context.Context, event string, e models.Enrollment, status string) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(ctx, event, map[string]interface{}{
		"enrollment_id": e.ID,
		"student_id":    e.StudentID,
		"program_id":    e.ProgramID,
		"closer_id":     e.CloserID,
		"status":        e.Status,
		"total_agreed":  e.TotalAgreed,
		"lead_status":   status,
	})
}

// PaymentPayload is the webhook data block for payment events.
func PaymentPayload(p models.Payment, e models.Enrollment, student *models.User, program *models.Program, method *models.PaymentMethod) map[string]interface{} {
	var commission float64
	if method != nil {
		commission = Commission(p.Amount, method.CommissionPct, method.CommissionFixed)
	}
	data := map[string]interface{}{
		"payment_id":    p.ID,
		"enrollment_id": e.ID,
		"student_id":    e.StudentID,
		"program_id":    e.ProgramID,
		"closer_id":     e.CloserID,
		"amount":        p.Amount,
		"payment_type":  p.PaymentType,
		"status":        p.Status,
		"paid_at":       p.PaidAt.UTC().Format(time.RFC3339),
		"commission":    commission,
		"net_cash":      NetCash(p.Amount, method),
		"total_agreed":  e.TotalAgreed,
		"reference":     p.Reference,
	}
	if student != nil {
		data["student_name"] = student.Name
		data["student_email"] = student.Email
	}
	if program != nil {
		data["program_name"] = program.Name
	}
	if method != nil {
		data["payment_method"] = method.Name
	}
	return data
}

func validatePayment(amount float64, paymentType, status string) error {
	if amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidPayment)
	}
	if !models.IsPaymentType(paymentType) {
		return fmt.Errorf("%w: unknown payment type %q", ErrInvalidPayment, paymentType)
	}
	switch status {
	case models.PAYMENT_STATUS_COMPLETED, models.PAYMENT_STATUS_PENDING, models.PAYMENT_STATUS_FAILED:
		return nil
	}
	return fmt.Errorf("%w: unknown payment status %q", ErrInvalidPayment, status)
}

func notFoundAs(err, target error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return target
	}
	return fmt.Errorf("ledger: %w", err)
}
