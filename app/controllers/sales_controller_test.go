package controllers

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/closerdesk/closerdesk/app/models"
	"github.com/closerdesk/closerdesk/internal/pkg/ledger"
)

type fakeLedger struct {
	lastSale    ledger.SaleInput
	lastFilter  ledger.PaymentFilter
	lastPayment ledger.PaymentUpdate
}

func (f *fakeLedger) RegisterSale(_ context.Context, in ledger.SaleInput) (*ledger.SaleResult, error) {
	f.lastSale = in
	if in.PaymentType == models.PAYMENT_RENEWAL {
		return nil, ledger.ErrRenewalNotAllowed
	}
	return &ledger.SaleResult{
		Enrollment: models.Enrollment{ID: 1, StudentID: in.StudentID, ProgramID: in.ProgramID},
		Payment:    models.Payment{ID: 1, Amount: in.Amount},
		Status:     models.ROLE_STUDENT,
		Created:    true,
	}, nil
}

func (f *fakeLedger) UpdatePayment(_ context.Context, id uint, in ledger.PaymentUpdate) (*models.Payment, error) {
	f.lastPayment = in
	return &models.Payment{ID: id}, nil
}

func (f *fakeLedger) DeletePayment(context.Context, uint) error { return nil }

func (f *fakeLedger) ListPayments(_ context.Context, filter ledger.PaymentFilter) ([]models.Payment, error) {
	f.lastFilter = filter
	return nil, nil
}

func (f *fakeLedger) UpdateEnrollment(_ context.Context, id uint, _ ledger.EnrollmentUpdate) (*models.Enrollment, error) {
	return &models.Enrollment{ID: id}, nil
}

func (f *fakeLedger) DeleteEnrollment(context.Context, uint) error { return nil }

func (f *fakeLedger) ListEnrollments(context.Context, uint) ([]models.Enrollment, error) {
	return nil, nil
}

func TestRegisterSale(t *testing.T) {
	fake := &fakeLedger{}
	sc := NewSalesController(fake)
	app := newTestApp(closerUser(4))
	app.Post("/sales", sc.HandleRegisterSale)

	resp, body := doJSON(t, app, http.MethodPost, "/sales", map[string]interface{}{
		"student_id": 10, "program_id": 2, "amount": 1500, "payment_type": "full", "closer_id": 8,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, true, body["enrollment_created"])
	require.NotNil(t, fake.lastSale.CloserID)
	assert.Equal(t, uint(4), *fake.lastSale.CloserID)

	resp, body = doJSON(t, app, http.MethodPost, "/sales", map[string]interface{}{
		"student_id": 10, "program_id": 2, "amount": 1500, "payment_type": "renewal",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "renewal_not_allowed", body["error"])

	resp, body = doJSON(t, app, http.MethodPost, "/sales", map[string]interface{}{
		"student_id": 10, "program_id": 2, "amount": 0, "payment_type": "gift",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	fields := body["fields"].(map[string]interface{})
	assert.Contains(t, fields, "amount")
	assert.Contains(t, fields, "payment_type")
}

func TestPayments(t *testing.T) {
	fake := &fakeLedger{}
	sc := NewSalesController(fake)
	app := newTestApp(adminUser())
	app.Get("/payments", sc.HandleListPayments)
	app.Put("/payments/:id", sc.HandleUpdatePayment)
	app.Get("/enrollments", sc.HandleListEnrollments)

	resp, body := doJSON(t, app, http.MethodGet, "/payments?student_id=10&status=pending", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, uint(10), fake.lastFilter.StudentID)
	assert.Equal(t, uint(0), fake.lastFilter.CloserID)
	assert.Equal(t, []interface{}{}, body["payments"])

	resp, _ = doJSON(t, app, http.MethodPut, "/payments/3", map[string]interface{}{"status": "completed"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotNil(t, fake.lastPayment.Status)
	assert.Equal(t, "completed", *fake.lastPayment.Status)
	assert.Nil(t, fake.lastPayment.Amount)

	resp, _ = doJSON(t, app, http.MethodGet, "/enrollments", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
