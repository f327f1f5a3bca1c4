package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/closerdesk/closerdesk/app/models"
	"github.com/closerdesk/closerdesk/internal/pkg/ledger"
	"github.com/closerdesk/closerdesk/internal/pkg/usercontext"
)

// LedgerService is implemented by *ledger.Service.
type LedgerService interface {
	RegisterSale(ctx context.Context, in ledger.SaleInput) (*ledger.SaleResult, error)
	UpdatePayment(ctx context.Context, id uint, in ledger.PaymentUpdate) (*models.Payment, error)
	DeletePayment(ctx context.Context, id uint) error
	ListPayments(ctx context.Context, f ledger.PaymentFilter) ([]models.Payment, error)
	UpdateEnrollment(ctx context.Context, id uint, in ledger.EnrollmentUpdate) (*models.Enrollment, error)
	DeleteEnrollment(ctx context.Context, id uint) error
	ListEnrollments(ctx context.Context, studentID uint) ([]models.Enrollment, error)
}

// SalesController registers sales and maintains payments and enrollments
type SalesController struct {
	ledger LedgerService
}

func NewSalesController(l LedgerService) *SalesController {
	return &SalesController{ledger: l}
}

type saleRequest struct {
	StudentID       uint       `json:"student_id" validate:"required"`
	ProgramID       uint       `json:"program_id" validate:"required"`
	Amount          float64    `json:"amount" validate:"gt=0"`
	PaymentType     string     `json:"payment_type" validate:"required,oneof=full down_payment installment renewal deposit"`
	Status          string     `json:"status" validate:"omitempty,oneof=completed pending failed"`
	PaymentMethodID *uint      `json:"payment_method_id"`
	CloserID        *uint      `json:"closer_id"`
	PaidAt          *time.Time `json:"paid_at"`
	Reference       string     `json:"reference" validate:"max=200"`
	TotalAgreed     *float64   `json:"total_agreed" validate:"omitempty,gte=0"`
}

// HandleRegisterSale records a payment, opening or renewing the enrollment as needed.
// Closers register sales under their own name.
func (sc *SalesController) HandleRegisterSale(c *fiber.Ctx) error {
	var req saleRequest
	if err := bindJSON(c, &req); err != nil {
		return respondError(c, err)
	}
	in := ledger.SaleInput{
		StudentID:       req.StudentID,
		ProgramID:       req.ProgramID,
		Amount:          req.Amount,
		PaymentType:     req.PaymentType,
		Status:          req.Status,
		PaymentMethodID: req.PaymentMethodID,
		CloserID:        usercontext.GetUserContext(c).ScopeCloser(req.CloserID),
		Reference:       req.Reference,
		TotalAgreed:     req.TotalAgreed,
	}
	if req.PaidAt != nil {
		in.PaidAt = *req.PaidAt
	}
	res, err := sc.ledger.RegisterSale(c.UserContext(), in)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

func (sc *SalesController) HandleListPayments(c *fiber.Ctx) error {
	from, to, err := queryRange(c, "from", "to", time.Time{}, time.Time{})
	if err != nil {
		return respondError(c, err)
	}
	studentID, err := queryUint(c, "student_id")
	if err != nil {
		return respondError(c, err)
	}
	closerID, err := queryUint(c, "closer_id")
	if err != nil {
		return respondError(c, err)
	}
	limit, offset := pagination(c)
	f := ledger.PaymentFilter{From: from, To: to, Status: c.Query("status"), Limit: limit, Offset: offset}
	if studentID != nil {
		f.StudentID = *studentID
	}
	if scoped := usercontext.GetUserContext(c).ScopeCloser(closerID); scoped != nil {
		f.CloserID = *scoped
	}
	list, err := sc.ledger.ListPayments(c.UserContext(), f)
	if err != nil {
		return respondError(c, err)
	}
	if list == nil {
		list = []models.Payment{}
	}
	return c.JSON(fiber.Map{"payments": list})
}

type paymentUpdateRequest struct {
	Amount          *float64   `json:"amount" validate:"omitempty,gt=0"`
	PaymentType     *string    `json:"payment_type" validate:"omitempty,oneof=full down_payment installment renewal deposit"`
	Status          *string    `json:"status" validate:"omitempty,oneof=completed pending failed"`
	PaymentMethodID *uint      `json:"payment_method_id"`
	PaidAt          *time.Time `json:"paid_at"`
	Reference       *string    `json:"reference" validate:"omitempty,max=200"`
}

func (sc *SalesController) HandleUpdatePayment(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var req paymentUpdateRequest
	if err := bindJSON(c, &req); err != nil {
		return respondError(c, err)
	}
	p, err := sc.ledger.UpdatePayment(c.UserContext(), id, ledger.PaymentUpdate{
		Amount:          req.Amount,
		PaymentType:     req.PaymentType,
		Status:          req.Status,
		PaymentMethodID: req.PaymentMethodID,
		PaidAt:          req.PaidAt,
		Reference:       req.Reference,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(p)
}

func (sc *SalesController) HandleDeletePayment(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	if err := sc.ledger.DeletePayment(c.UserContext(), id); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// HandleListEnrollments lists a student's enrollments (?student_id is required)
func (sc *SalesController) HandleListEnrollments(c *fiber.Ctx) error {
	studentID, err := queryUint(c, "student_id")
	if err != nil {
		return respondError(c, err)
	}
	if studentID == nil {
		return badRequest(c, "student_id is required")
	}
	list, err := sc.ledger.ListEnrollments(c.UserContext(), *studentID)
	if err != nil {
		return respondError(c, err)
	}
	if list == nil {
		list = []models.Enrollment{}
	}
	return c.JSON(fiber.Map{"enrollments": list})
}

type enrollmentUpdateRequest struct {
	Status      *string  `json:"status" validate:"omitempty,oneof=active completed dropped"`
	TotalAgreed *float64 `json:"total_agreed" validate:"omitempty,gte=0"`
	CloserID    *uint    `json:"closer_id"`
}

func (sc *SalesController) HandleUpdateEnrollment(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var req enrollmentUpdateRequest
	if err := bindJSON(c, &req); err != nil {
		return respondError(c, err)
	}
	e, err := sc.ledger.UpdateEnrollment(c.UserContext(), id, ledger.EnrollmentUpdate{
		Status:      req.Status,
		TotalAgreed: req.TotalAgreed,
		CloserID:    req.CloserID,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(e)
}

func (sc *SalesController) HandleDeleteEnrollment(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	if err := sc.ledger.DeleteEnrollment(c.UserContext(), id); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
