package controllers

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/closerdesk/closerdesk/app/models"
	"github.com/closerdesk/closerdesk/internal/pkg/booking"
)

type fakeBookings struct {
	appts      map[uint]*models.Appointment
	lastCreate booking.CreateInput
	lastList   booking.ListFilter
	lastResch  booking.RescheduleInput
	deleted    []uint
}

func newFakeBookings() *fakeBookings {
	start := time.Date(2025, 3, 5, 15, 0, 0, 0, time.UTC)
	return &fakeBookings{appts: map[uint]*models.Appointment{
		1: {ID: 1, LeadID: 10, CloserID: 4, StartTime: start, Status: models.APPOINTMENT_SCHEDULED},
		2: {ID: 2, LeadID: 11, CloserID: 5, StartTime: start, Status: models.APPOINTMENT_SCHEDULED},
	}}
}

func (f *fakeBookings) Create(_ context.Context, in booking.CreateInput) (*models.Appointment, error) {
	f.lastCreate = in
	if in.Start.Equal(f.appts[1].StartTime) && in.CloserID == f.appts[1].CloserID {
		return nil, booking.ErrSlotTaken
	}
	return &models.Appointment{ID: 3, LeadID: in.LeadID, CloserID: in.CloserID, StartTime: in.Start}, nil
}

func (f *fakeBookings) Reschedule(_ context.Context, id uint, in booking.RescheduleInput) (*models.Appointment, error) {
	f.lastResch = in
	a := *f.appts[id]
	a.ID = 99
	if !in.Start.IsZero() {
		a.StartTime = in.Start
	}
	return &a, nil
}

func (f *fakeBookings) SetStatus(_ context.Context, id uint, status string, delivered *bool) (*models.Appointment, error) {
	if status == "bogus" {
		return nil, booking.ErrInvalidStatus
	}
	a := *f.appts[id]
	a.Status = status
	a.PresentationDelivered = delivered
	return &a, nil
}

func (f *fakeBookings) Delete(_ context.Context, id uint) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeBookings) Get(_ context.Context, id uint) (*models.Appointment, error) {
	a, ok := f.appts[id]
	if !ok {
		return nil, booking.ErrNotFound
	}
	return a, nil
}

func (f *fakeBookings) List(_ context.Context, filter booking.ListFilter) ([]models.Appointment, error) {
	f.lastList = filter
	return nil, nil
}

func TestAppointmentList_ScopesClosers(t *testing.T) {
	fake := newFakeBookings()
	ac := NewAppointmentController(fake)

	app := newTestApp(closerUser(4))
	app.Get("/appointments", ac.HandleList)
	resp, body := doJSON(t, app, http.MethodGet, "/appointments?closer_id=5&status=scheduled", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, uint(4), fake.lastList.CloserID)
	assert.Equal(t, "scheduled", fake.lastList.Status)
	assert.Equal(t, []interface{}{}, body["appointments"])

	app = newTestApp(adminUser())
	app.Get("/appointments", ac.HandleList)
	doJSON(t, app, http.MethodGet, "/appointments?closer_id=5", nil)
	assert.Equal(t, uint(5), fake.lastList.CloserID)
}

func TestAppointmentCreate(t *testing.T) {
	fake := newFakeBookings()
	ac := NewAppointmentController(fake)
	start := time.Date(2025, 3, 6, 10, 0, 0, 0, time.UTC)

	t.Run("closer books for themselves", func(t *testing.T) {
		app := newTestApp(closerUser(4))
		app.Post("/appointments", ac.HandleCreate)
		resp, _ := doJSON(t, app, http.MethodPost, "/appointments", map[string]interface{}{
			"lead_id": 10, "closer_id": 5, "start_time": start.Format(time.RFC3339),
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		assert.Equal(t, uint(4), fake.lastCreate.CloserID)
	})

	t.Run("admin must name a closer", func(t *testing.T) {
		app := newTestApp(adminUser())
		app.Post("/appointments", ac.HandleCreate)
		resp, _ := doJSON(t, app, http.MethodPost, "/appointments", map[string]interface{}{
			"lead_id": 10, "start_time": start.Format(time.RFC3339),
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("taken slot is a conflict", func(t *testing.T) {
		app := newTestApp(adminUser())
		app.Post("/appointments", ac.HandleCreate)
		resp, body := doJSON(t, app, http.MethodPost, "/appointments", map[string]interface{}{
			"lead_id": 12, "closer_id": 4, "start_time": fake.appts[1].StartTime.Format(time.RFC3339),
		})
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.Equal(t, "slot_taken", body["error"])
	})

	t.Run("missing lead fails validation", func(t *testing.T) {
		app := newTestApp(adminUser())
		app.Post("/appointments", ac.HandleCreate)
		resp, body := doJSON(t, app, http.MethodPost, "/appointments", map[string]interface{}{
			"closer_id": 4, "start_time": start.Format(time.RFC3339),
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "validation_failed", body["error"])
	})
}

func TestAppointmentMutations_OwnOnly(t *testing.T) {
	fake := newFakeBookings()
	ac := NewAppointmentController(fake)
	app := newTestApp(closerUser(4))
	app.Put("/appointments/:id", ac.HandleUpdate)
	app.Patch("/appointments/:id/status", ac.HandleSetStatus)
	app.Delete("/appointments/:id", ac.HandleDelete)

	resp, _ := doJSON(t, app, http.MethodPatch, "/appointments/2/status", map[string]interface{}{"status": "completed"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = doJSON(t, app, http.MethodDelete, "/appointments/2", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Empty(t, fake.deleted)

	resp, body := doJSON(t, app, http.MethodPatch, "/appointments/1/status", map[string]interface{}{
		"status": "completed", "presentation_delivered": true,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "completed", body["status"])

	resp, body = doJSON(t, app, http.MethodPatch, "/appointments/1/status", map[string]interface{}{"status": "bogus"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "invalid_status", body["error"])

	newStart := time.Date(2025, 3, 7, 9, 0, 0, 0, time.UTC)
	resp, body = doJSON(t, app, http.MethodPut, "/appointments/1", map[string]interface{}{
		"start_time": newStart.Format(time.RFC3339), "closer_id": 5,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Nil(t, fake.lastResch.CloserID, "closers cannot hand appointments to someone else")
	assert.EqualValues(t, 99, body["id"])

	resp, _ = doJSON(t, app, http.MethodDelete, "/appointments/404", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = doJSON(t, app, http.MethodDelete, "/appointments/1", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, []uint{1}, fake.deleted)
}
