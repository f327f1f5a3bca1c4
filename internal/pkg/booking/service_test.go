package booking

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/closerdesk/closerdesk/app/models"
	"github.com/closerdesk/closerdesk/internal/pkg/funnel"
)

type memRepo struct {
	users    map[uint]models.User
	appts    map[uint]models.Appointment
	statuses map[uint]string
	closers  map[uint]uint
	nextID   uint
}

func newMemRepo() *memRepo {
	return &memRepo{
		users: map[uint]models.User{
			1:  {ID: 1, Name: "Lead One", Email: "lead@example.com", Role: models.ROLE_LEAD},
			10: {ID: 10, Name: "Closer A", Email: "a@example.com", Role: models.ROLE_CLOSER},
			11: {ID: 11, Name: "Closer B", Email: "b@example.com", Role: models.ROLE_CLOSER},
			20: {ID: 20, Name: "Student", Email: "s@example.com", Role: models.ROLE_STUDENT},
		},
		appts:    map[uint]models.Appointment{},
		statuses: map[uint]string{},
		closers:  map[uint]uint{},
		nextID:   100,
	}
}

func (m *memRepo) WithTx(ctx context.Context, fn func(tx Repository) error) error {
	appts := make(map[uint]models.Appointment, len(m.appts))
	for k, v := range m.appts {
		appts[k] = v
	}
	statuses := make(map[uint]string, len(m.statuses))
	for k, v := range m.statuses {
		statuses[k] = v
	}
	closers := make(map[uint]uint, len(m.closers))
	for k, v := range m.closers {
		closers[k] = v
	}
	nextID := m.nextID

	if err := fn(m); err != nil {
		m.appts, m.statuses, m.closers, m.nextID = appts, statuses, closers, nextID
		return err
	}
	return nil
}

func (m *memRepo) LoadFacts(ctx context.Context, userID uint, now time.Time) (funnel.Facts, error) {
	var f funnel.Facts
	for _, a := range m.appts {
		if a.LeadID == userID && a.IsUpcoming(now) {
			f.HasUpcoming = true
		}
	}
	return f, nil
}

func (m *memRepo) GetLeadStatus(ctx context.Context, userID uint) (string, error) {
	if s, ok := m.statuses[userID]; ok {
		return s, nil
	}
	return models.LEAD_STATUS_NEW, nil
}

func (m *memRepo) SetLeadStatus(ctx context.Context, userID uint, status string) error {
	m.statuses[userID] = status
	return nil
}

func (m *memRepo) GetUser(ctx context.Context, id uint) (*models.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &u, nil
}

func (m *memRepo) GetAppointment(ctx context.Context, id uint) (*models.Appointment, error) {
	a, ok := m.appts[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &a, nil
}

func (m *memRepo) ListAppointments(ctx context.Context, f ListFilter) ([]models.Appointment, error) {
	var out []models.Appointment
	for _, a := range m.appts {
		if f.LeadID != 0 && a.LeadID != f.LeadID {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memRepo) SlotTaken(ctx context.Context, closerID uint, start time.Time, excludeID uint) (bool, error) {
	for _, a := range m.appts {
		if a.ID != excludeID && a.CloserID == closerID && a.StartTime.Equal(start) && models.OccupiesSlot(a.Status) {
			return true, nil
		}
	}
	return false, nil
}

// checkUnique mimics the unique index on slot_key.
func (m *memRepo) checkUnique(a *models.Appointment) error {
	if a.SlotKey == nil {
		return nil
	}
	for _, other := range m.appts {
		if other.ID != a.ID && other.SlotKey != nil && *other.SlotKey == *a.SlotKey {
			return ErrSlotTaken
		}
	}
	return nil
}

func (m *memRepo) CreateAppointment(ctx context.Context, a *models.Appointment) error {
	a.SyncSlotKey()
	if err := m.checkUnique(a); err != nil {
		return err
	}
	m.nextID++
	a.ID = m.nextID
	m.appts[a.ID] = *a
	return nil
}

func (m *memRepo) SaveAppointment(ctx context.Context, a *models.Appointment) error {
	a.SyncSlotKey()
	if err := m.checkUnique(a); err != nil {
		return err
	}
	m.appts[a.ID] = *a
	return nil
}

func (m *memRepo) DeleteAppointment(ctx context.Context, id uint) error {
	delete(m.appts, id)
	return nil
}

func (m *memRepo) AssignCloserIfEmpty(ctx context.Context, leadID, closerID uint) error {
	if _, ok := m.closers[leadID]; !ok {
		m.closers[leadID] = closerID
	}
	return nil
}

type recorder struct {
	mu       sync.Mutex
	events   []string
	data     []map[string]interface{}
	synced   []uint
	removed  []string
	confirms []uint
}

func (r *recorder) Publish(ctx context.Context, eventType string, data map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, eventType)
	r.data = append(r.data, data)
}

func (r *recorder) SyncAppointment(id uint) { r.synced = append(r.synced, id) }

func (r *recorder) RemoveEvent(closerID uint, eventID string) {
	r.removed = append(r.removed, eventID)
}

func (r *recorder) ConfirmAppointment(id uint) { r.confirms = append(r.confirms, id) }

var fixedNow = time.Date(2025, 1, 5, 12, 0, 0, 0, time.UTC)

func newTestService() (*Service, *memRepo, *recorder) {
	repo := newMemRepo()
	rec := &recorder{}
	svc := NewService(repo, WithPublisher(rec), WithCalendarSync(rec), WithConfirmer(rec))
	svc.now = func() time.Time { return fixedNow }
	return svc, repo, rec
}

func TestCreate_BooksAndRecomputes(t *testing.T) {
	svc, repo, rec := newTestService()
	start := time.Date(2025, 1, 10, 13, 0, 0, 0, time.UTC)

	appt, err := svc.Create(context.Background(), CreateInput{LeadID: 1, CloserID: 10, Start: start})
	require.NoError(t, err)
	assert.Equal(t, models.APPOINTMENT_SCHEDULED, appt.Status)
	assert.Equal(t, start, appt.StartTime)
	require.NotNil(t, appt.SlotKey)

	assert.Equal(t, models.LEAD_STATUS_AGENDA, repo.statuses[1])
	assert.Equal(t, uint(10), repo.closers[1])
	assert.Equal(t, []string{EventAppointmentCreated}, rec.events)
	assert.Equal(t, "Lead One", rec.data[0]["lead_name"])
	assert.Equal(t, []uint{appt.ID}, rec.synced)
	assert.Equal(t, []uint{appt.ID}, rec.confirms)
}

func TestCreate_SlotTaken(t *testing.T) {
	svc, repo, rec := newTestService()
	start := time.Date(2025, 1, 10, 13, 0, 0, 0, time.UTC)

	_, err := svc.Create(context.Background(), CreateInput{LeadID: 1, CloserID: 10, Start: start})
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), CreateInput{LeadID: 20, CloserID: 10, Start: start.Add(20 * time.Second)})
	assert.ErrorIs(t, err, ErrSlotTaken)
	assert.Len(t, repo.appts, 1)
	assert.Len(t, rec.events, 1)

	// another closer at the same instant is fine
	_, err = svc.Create(context.Background(), CreateInput{LeadID: 20, CloserID: 11, Start: start})
	assert.NoError(t, err)
}

func TestCreate_StorageUniqueIndexCatchesRace(t *testing.T) {
	svc, repo, _ := newTestService()
	start := time.Date(2025, 1, 10, 13, 0, 0, 0, time.UTC)
	key := models.BuildSlotKey(10, start)
	// a row the pre-check does not see (e.g. inserted concurrently) still holds the key
	repo.appts[1] = models.Appointment{ID: 1, CloserID: 99, StartTime: start, Status: models.APPOINTMENT_CANCELED, SlotKey: &key}

	_, err := svc.Create(context.Background(), CreateInput{LeadID: 1, CloserID: 10, Start: start})
	assert.ErrorIs(t, err, ErrSlotTaken)
	assert.Len(t, repo.appts, 1)
	assert.Empty(t, repo.statuses)
}

func TestCreate_UnknownParticipants(t *testing.T) {
	svc, _, _ := newTestService()
	start := time.Date(2025, 1, 10, 13, 0, 0, 0, time.UTC)

	_, err := svc.Create(context.Background(), CreateInput{LeadID: 404, CloserID: 10, Start: start})
	assert.ErrorIs(t, err, ErrLeadNotFound)

	_, err = svc.Create(context.Background(), CreateInput{LeadID: 1, CloserID: 404, Start: start})
	assert.ErrorIs(t, err, ErrCloserNotFound)

	_, err = svc.Create(context.Background(), CreateInput{LeadID: 1, CloserID: 20, Start: start})
	assert.ErrorIs(t, err, ErrCloserNotFound)
}

func TestReschedule_KeepsHistory(t *testing.T) {
	svc, repo, rec := newTestService()
	start := time.Date(2025, 1, 10, 13, 0, 0, 0, time.UTC)
	appt, err := svc.Create(context.Background(), CreateInput{LeadID: 1, CloserID: 10, Start: start})
	require.NoError(t, err)

	stored := repo.appts[appt.ID]
	stored.CalendarEventID = "gcal-123"
	repo.appts[appt.ID] = stored

	newStart := start.Add(24 * time.Hour)
	next, err := svc.Reschedule(context.Background(), appt.ID, RescheduleInput{Start: newStart})
	require.NoError(t, err)

	old := repo.appts[appt.ID]
	assert.Equal(t, models.APPOINTMENT_RESCHEDULED, old.Status)
	assert.Empty(t, old.CalendarEventID)
	assert.Nil(t, old.SlotKey)

	assert.NotEqual(t, appt.ID, next.ID)
	assert.Equal(t, models.APPOINTMENT_SCHEDULED, next.Status)
	assert.Equal(t, newStart, next.StartTime)
	assert.Equal(t, "gcal-123", next.CalendarEventID)
	require.NotNil(t, next.RescheduledFromID)
	assert.Equal(t, appt.ID, *next.RescheduledFromID)

	scheduled := 0
	for _, a := range repo.appts {
		if a.Status == models.APPOINTMENT_SCHEDULED {
			scheduled++
		}
	}
	assert.Equal(t, 1, scheduled)
	assert.Equal(t, EventAppointmentRescheduled, rec.events[len(rec.events)-1])
	assert.Equal(t, start.Format(time.RFC3339), rec.data[len(rec.data)-1]["previous_start_time"])

	// the old slot is free again
	_, err = svc.Create(context.Background(), CreateInput{LeadID: 20, CloserID: 10, Start: start})
	assert.NoError(t, err)
}

func TestReschedule_SameTimeUpdatesMetadataOnly(t *testing.T) {
	svc, repo, rec := newTestService()
	start := time.Date(2025, 1, 10, 13, 0, 0, 0, time.UTC)
	appt, err := svc.Create(context.Background(), CreateInput{LeadID: 1, CloserID: 10, Start: start})
	require.NoError(t, err)

	notes := "call from mobile"
	updated, err := svc.Reschedule(context.Background(), appt.ID, RescheduleInput{Start: start, Notes: &notes})
	require.NoError(t, err)
	assert.Equal(t, appt.ID, updated.ID)
	assert.Equal(t, notes, updated.Notes)
	assert.Len(t, repo.appts, 1)
	assert.Equal(t, EventAppointmentUpdated, rec.events[len(rec.events)-1])
}

func TestReschedule_ConflictRollsBack(t *testing.T) {
	svc, repo, _ := newTestService()
	a := time.Date(2025, 1, 10, 13, 0, 0, 0, time.UTC)
	b := a.Add(time.Hour)
	first, err := svc.Create(context.Background(), CreateInput{LeadID: 1, CloserID: 10, Start: a})
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), CreateInput{LeadID: 20, CloserID: 10, Start: b})
	require.NoError(t, err)

	_, err = svc.Reschedule(context.Background(), first.ID, RescheduleInput{Start: b})
	assert.ErrorIs(t, err, ErrSlotTaken)
	assert.Equal(t, models.APPOINTMENT_SCHEDULED, repo.appts[first.ID].Status)
	assert.Len(t, repo.appts, 2)
}

func TestReschedule_TerminalRowsRejected(t *testing.T) {
	svc, _, _ := newTestService()
	start := time.Date(2025, 1, 10, 13, 0, 0, 0, time.UTC)
	appt, err := svc.Create(context.Background(), CreateInput{LeadID: 1, CloserID: 10, Start: start})
	require.NoError(t, err)
	_, err = svc.Reschedule(context.Background(), appt.ID, RescheduleInput{Start: start.Add(time.Hour)})
	require.NoError(t, err)

	_, err = svc.Reschedule(context.Background(), appt.ID, RescheduleInput{Start: start.Add(2 * time.Hour)})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = svc.Reschedule(context.Background(), 9999, RescheduleInput{Start: start})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReschedule_HeldOrMissedRejected(t *testing.T) {
	delivered := true
	tests := []struct {
		name      string
		status    string
		delivered *bool
	}{
		{"completed with presentation", models.APPOINTMENT_COMPLETED, &delivered},
		{"completed", models.APPOINTMENT_COMPLETED, nil},
		{"no show", models.APPOINTMENT_NO_SHOW, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, _ := newTestService()
			ctx := context.Background()
			start := time.Date(2025, 1, 10, 13, 0, 0, 0, time.UTC)
			appt, err := svc.Create(ctx, CreateInput{LeadID: 1, CloserID: 10, Start: start})
			require.NoError(t, err)
			_, err = svc.SetStatus(ctx, appt.ID, tt.status, tt.delivered)
			require.NoError(t, err)
			rows := len(repo.appts)

			_, err = svc.Reschedule(ctx, appt.ID, RescheduleInput{Start: start.Add(24 * time.Hour)})
			assert.ErrorIs(t, err, ErrInvalidTransition)
			assert.Len(t, repo.appts, rows)

			stored, err := repo.GetAppointment(ctx, appt.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.status, stored.Status)

			// notes can still be added to the record
			notes := "follow-up sent"
			updated, err := svc.Reschedule(ctx, appt.ID, RescheduleInput{Notes: &notes})
			require.NoError(t, err)
			assert.Equal(t, tt.status, updated.Status)
			assert.Equal(t, notes, updated.Notes)
		})
	}
}

func TestSetStatus(t *testing.T) {
	svc, repo, rec := newTestService()
	start := time.Date(2025, 1, 10, 13, 0, 0, 0, time.UTC)
	appt, err := svc.Create(context.Background(), CreateInput{LeadID: 1, CloserID: 10, Start: start})
	require.NoError(t, err)

	_, err = svc.SetStatus(context.Background(), appt.ID, "lost", nil)
	assert.ErrorIs(t, err, ErrInvalidStatus)
	_, err = svc.SetStatus(context.Background(), appt.ID, models.APPOINTMENT_RESCHEDULED, nil)
	assert.ErrorIs(t, err, ErrInvalidStatus)

	delivered := true
	done, err := svc.SetStatus(context.Background(), appt.ID, models.APPOINTMENT_COMPLETED, &delivered)
	require.NoError(t, err)
	require.NotNil(t, done.PresentationDelivered)
	assert.True(t, *done.PresentationDelivered)
	// no upcoming appointment, no payments: back to new
	assert.Equal(t, models.LEAD_STATUS_NEW, repo.statuses[1])
	assert.Equal(t, EventAppointmentStatusChanged, rec.events[len(rec.events)-1])
}

func TestSetStatus_CancelFreesSlotAndRemovesCalendarEvent(t *testing.T) {
	svc, repo, rec := newTestService()
	start := time.Date(2025, 1, 10, 13, 0, 0, 0, time.UTC)
	appt, err := svc.Create(context.Background(), CreateInput{LeadID: 1, CloserID: 10, Start: start})
	require.NoError(t, err)
	stored := repo.appts[appt.ID]
	stored.CalendarEventID = "gcal-9"
	repo.appts[appt.ID] = stored

	canceled, err := svc.SetStatus(context.Background(), appt.ID, models.APPOINTMENT_CANCELED, nil)
	require.NoError(t, err)
	assert.Nil(t, canceled.SlotKey)
	assert.Empty(t, canceled.CalendarEventID)
	assert.Equal(t, []string{"gcal-9"}, rec.removed)
	assert.Equal(t, EventAppointmentCanceled, rec.events[len(rec.events)-1])

	other, err := svc.Create(context.Background(), CreateInput{LeadID: 20, CloserID: 10, Start: start})
	require.NoError(t, err)

	// reviving the canceled row would double-book
	_, err = svc.SetStatus(context.Background(), appt.ID, models.APPOINTMENT_SCHEDULED, nil)
	assert.ErrorIs(t, err, ErrSlotTaken)
	assert.Equal(t, models.APPOINTMENT_SCHEDULED, repo.appts[other.ID].Status)
}

func TestDelete(t *testing.T) {
	svc, repo, rec := newTestService()
	start := time.Date(2025, 1, 10, 13, 0, 0, 0, time.UTC)
	appt, err := svc.Create(context.Background(), CreateInput{LeadID: 1, CloserID: 10, Start: start})
	require.NoError(t, err)
	require.Equal(t, models.LEAD_STATUS_AGENDA, repo.statuses[1])

	require.NoError(t, svc.Delete(context.Background(), appt.ID))
	assert.Empty(t, repo.appts)
	assert.Equal(t, models.LEAD_STATUS_NEW, repo.statuses[1])
	assert.Equal(t, EventAppointmentDeleted, rec.events[len(rec.events)-1])

	assert.ErrorIs(t, svc.Delete(context.Background(), appt.ID), ErrNotFound)
}
