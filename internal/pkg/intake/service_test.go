package intake

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/closerdesk/closerdesk/app/models"
	"github.com/closerdesk/closerdesk/internal/pkg/booking"
	"github.com/closerdesk/closerdesk/internal/pkg/funnel"
	"github.com/closerdesk/closerdesk/internal/pkg/scheduling"
)

type memRepo struct {
	users     map[uint]models.User
	profiles  map[uint]models.LeadProfile
	events    map[string]models.Event
	questions []models.SurveyQuestion
	answers   map[[2]uint]models.SurveyAnswer
	nextID    uint
}

func newMemRepo() *memRepo {
	group := uint(5)
	return &memRepo{
		users: map[uint]models.User{
			1: {ID: 1, Name: "Carl Closer", Email: "carl@example.com", Role: models.ROLE_CLOSER},
		},
		profiles: map[uint]models.LeadProfile{},
		events: map[string]models.Event{
			"spring-webinar": {ID: 30, EventGroupID: &group, Name: "Spring webinar", Slug: "spring-webinar", IsActive: true},
		},
		questions: []models.SurveyQuestion{
			{ID: 1, Scope: models.SURVEY_SCOPE_GLOBAL, Text: "Budget?", Kind: "number", Position: 2, IsActive: true},
			{ID: 2, Scope: models.SURVEY_SCOPE_GLOBAL, Text: "Goal?", Kind: "text", Position: 1, IsActive: true, IsRequired: true},
			{ID: 3, Scope: models.SURVEY_SCOPE_EVENT_GROUP, EventGroupID: &group, Text: "Level?", Kind: "choice",
				Options: datatypes.JSON(`["beginner","advanced"]`), IsActive: true},
			{ID: 4, Scope: models.SURVEY_SCOPE_EVENT, EventID: uintPtr(30), Text: "Seat?", Kind: "text", IsActive: true},
			{ID: 5, Scope: models.SURVEY_SCOPE_EVENT, EventID: uintPtr(31), Text: "Other event", Kind: "text", IsActive: true},
		},
		answers: map[[2]uint]models.SurveyAnswer{},
		nextID:  100,
	}
}

func uintPtr(v uint) *uint { return &v }

func (m *memRepo) WithTx(ctx context.Context, fn func(tx Repository) error) error {
	users := copyMap(m.users)
	profiles := copyMap(m.profiles)
	answers := copyMap(m.answers)
	nextID := m.nextID
	if err := fn(m); err != nil {
		m.users, m.profiles, m.answers, m.nextID = users, profiles, answers, nextID
		return err
	}
	return nil
}

func copyMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (m *memRepo) LoadFacts(ctx context.Context, userID uint, now time.Time) (funnel.Facts, error) {
	return funnel.Facts{}, nil
}

func (m *memRepo) GetLeadStatus(ctx context.Context, userID uint) (string, error) {
	if p, ok := m.profiles[userID]; ok && p.Status != "" {
		return p.Status, nil
	}
	return models.LEAD_STATUS_NEW, nil
}

func (m *memRepo) SetLeadStatus(ctx context.Context, userID uint, status string) error {
	p := m.profiles[userID]
	p.UserID = userID
	p.Status = status
	m.profiles[userID] = p
	return nil
}

func (m *memRepo) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range m.users {
		if u.Email == models.NormalizeEmail(email) {
			return &u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memRepo) GetLead(ctx context.Context, id uint) (*models.User, error) {
	u, ok := m.users[id]
	if !ok || (u.Role != models.ROLE_LEAD && u.Role != models.ROLE_STUDENT) {
		return nil, gorm.ErrRecordNotFound
	}
	if p, ok := m.profiles[id]; ok {
		u.LeadProfile = &p
	}
	return &u, nil
}

func (m *memRepo) ListLeads(ctx context.Context, f LeadFilter) ([]models.User, int64, error) {
	var out []models.User
	for _, u := range m.users {
		if u.Role == models.ROLE_LEAD || u.Role == models.ROLE_STUDENT {
			out = append(out, u)
		}
	}
	return out, int64(len(out)), nil
}

func (m *memRepo) CreateUser(ctx context.Context, u *models.User) error {
	m.nextID++
	u.ID = m.nextID
	m.users[u.ID] = *u
	return nil
}

func (m *memRepo) SaveUser(ctx context.Context, u *models.User) error {
	cp := *u
	cp.LeadProfile = nil
	m.users[u.ID] = cp
	return nil
}

func (m *memRepo) DeleteUser(ctx context.Context, id uint) error {
	delete(m.users, id)
	return nil
}

func (m *memRepo) GetProfile(ctx context.Context, userID uint) (*models.LeadProfile, error) {
	p, ok := m.profiles[userID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *memRepo) SaveProfile(ctx context.Context, p *models.LeadProfile) error {
	m.profiles[p.UserID] = *p
	return nil
}

func (m *memRepo) GetEventBySlug(ctx context.Context, slug string) (*models.Event, error) {
	e, ok := m.events[slug]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &e, nil
}

func (m *memRepo) ListQuestions(ctx context.Context, groupID, eventID *uint) ([]models.SurveyQuestion, error) {
	var out []models.SurveyQuestion
	for _, q := range m.questions {
		switch q.Scope {
		case models.SURVEY_SCOPE_GLOBAL:
			out = append(out, q)
		case models.SURVEY_SCOPE_EVENT_GROUP:
			if groupID != nil && q.EventGroupID != nil && *q.EventGroupID == *groupID {
				out = append(out, q)
			}
		case models.SURVEY_SCOPE_EVENT:
			if eventID != nil && q.EventID != nil && *q.EventID == *eventID {
				out = append(out, q)
			}
		}
	}
	return out, nil
}

func (m *memRepo) UpsertAnswer(ctx context.Context, a *models.SurveyAnswer) error {
	m.answers[[2]uint{a.LeadID, a.QuestionID}] = *a
	return nil
}

func (m *memRepo) ListAnswers(ctx context.Context, leadID uint) ([]models.SurveyAnswer, error) {
	var out []models.SurveyAnswer
	for k, a := range m.answers {
		if k[0] == leadID {
			out = append(out, a)
		}
	}
	return out, nil
}

type recorder struct {
	events []string
	data   []map[string]interface{}
}

func (r *recorder) Publish(ctx context.Context, eventType string, data map[string]interface{}) {
	r.events = append(r.events, eventType)
	r.data = append(r.data, data)
}

type fakeBooker struct {
	inputs []booking.CreateInput
	err    error
}

func (f *fakeBooker) Create(ctx context.Context, in booking.CreateInput) (*models.Appointment, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return &models.Appointment{ID: 900, LeadID: in.LeadID, CloserID: in.CloserID, StartTime: in.Start,
		Status: models.APPOINTMENT_SCHEDULED}, nil
}

// fakeSlots offers one closer per instant the way the resolver does: the
// preferred closer when it offers the instant, else the lowest id.
type fakeSlots struct {
	slots   []scheduling.Slot
	queries []scheduling.Query
}

func (f *fakeSlots) FindSlots(ctx context.Context, q scheduling.Query) ([]scheduling.Slot, error) {
	f.queries = append(f.queries, q)
	best := map[time.Time]scheduling.Slot{}
	for _, s := range f.slots {
		if s.Start.Before(q.From) || !s.Start.Before(q.To) {
			continue
		}
		cur, ok := best[s.Start]
		switch {
		case !ok:
			best[s.Start] = s
		case cur.CloserID == q.PreferredCloserID && q.PreferredCloserID != 0:
		case s.CloserID == q.PreferredCloserID && q.PreferredCloserID != 0, s.CloserID < cur.CloserID:
			best[s.Start] = s
		}
	}
	out := make([]scheduling.Slot, 0, len(best))
	for _, s := range best {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeSlots) IsOffered(ctx context.Context, closerID uint, start time.Time) (bool, error) {
	for _, s := range f.slots {
		if s.CloserID == closerID && s.Start.Equal(start) {
			return true, nil
		}
	}
	return false, nil
}

var slotAt = time.Date(2025, 1, 10, 13, 0, 0, 0, time.UTC)

func baseInput() LeadInput {
	return LeadInput{
		Name:      "Ana Lead",
		Email:     " Ana@Example.com ",
		Phone:     "+591 700",
		UTMSource: "instagram",
		Answers:   map[uint]string{2: "change careers"},
	}
}

func TestSubmit_CreatesLeadWithProfile(t *testing.T) {
	repo := newMemRepo()
	rec := &recorder{}
	svc := NewService(repo, WithPublisher(rec))

	res, err := svc.Submit(context.Background(), baseInput())
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, "ana@example.com", res.Lead.Email)
	assert.Equal(t, models.ROLE_LEAD, res.Lead.Role)
	assert.Equal(t, models.LEAD_STATUS_NEW, res.Profile.Status)
	assert.Equal(t, "instagram", repo.profiles[res.Lead.ID].UTMSource)
	assert.Equal(t, "change careers", repo.answers[[2]uint{res.Lead.ID, 2}].Value)
	assert.Equal(t, []string{EventLeadCreated}, rec.events)
	assert.Equal(t, "instagram", rec.data[0]["utm_source"])
}

func TestSubmit_ExistingLeadKeepsFirstTouchUTM(t *testing.T) {
	repo := newMemRepo()
	rec := &recorder{}
	svc := NewService(repo, WithPublisher(rec))

	first, err := svc.Submit(context.Background(), baseInput())
	require.NoError(t, err)

	in := baseInput()
	in.Email = "ana@example.com"
	in.UTMSource = "google"
	in.UTMCampaign = "retarget"
	in.Phone = "+591 800"
	again, err := svc.Submit(context.Background(), in)
	require.NoError(t, err)

	assert.False(t, again.Created)
	assert.Equal(t, first.Lead.ID, again.Lead.ID)
	p := repo.profiles[first.Lead.ID]
	assert.Equal(t, "instagram", p.UTMSource)
	assert.Equal(t, "retarget", p.UTMCampaign)
	assert.Equal(t, "+591 800", p.Phone)
	assert.Equal(t, []string{EventLeadCreated, EventLeadUpdated}, rec.events)
}

func TestSubmit_StaffEmailRejected(t *testing.T) {
	svc := NewService(newMemRepo())
	in := baseInput()
	in.Email = "carl@example.com"
	_, err := svc.Submit(context.Background(), in)
	assert.ErrorIs(t, err, ErrEmailInUse)
}

func TestSubmit_SurveyValidation(t *testing.T) {
	tests := []struct {
		name    string
		event   string
		answers map[uint]string
		wantErr error
	}{
		{"required missing", "", map[uint]string{1: "100"}, ErrMissingAnswer},
		{"number not numeric", "", map[uint]string{2: "x", 1: "lots"}, ErrInvalidAnswer},
		{"question of another event", "spring-webinar", map[uint]string{2: "x", 5: "y"}, ErrUnknownQuestion},
		{"group question without event", "", map[uint]string{2: "x", 3: "beginner"}, ErrUnknownQuestion},
		{"choice not an option", "spring-webinar", map[uint]string{2: "x", 3: "expert"}, ErrInvalidAnswer},
		{"unknown event", "nope", map[uint]string{2: "x"}, ErrEventNotFound},
		{"valid event answers", "spring-webinar", map[uint]string{2: "x", 3: "advanced", 4: "front", 1: "250.5"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMemRepo()
			svc := NewService(repo)
			in := baseInput()
			in.Event = tt.event
			in.Answers = tt.answers

			res, err := svc.Submit(context.Background(), in)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Len(t, repo.users, 1, "nothing is written on rejection")
				assert.Empty(t, repo.answers)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, uint(30), *repo.profiles[res.Lead.ID].EventID)
			assert.Len(t, repo.answers, 4)
		})
	}
}

func TestSurvey_MergedOrder(t *testing.T) {
	svc := NewService(newMemRepo())

	qs, err := svc.Survey(context.Background(), "spring-webinar")
	require.NoError(t, err)
	ids := make([]uint, 0, len(qs))
	for _, q := range qs {
		ids = append(ids, q.ID)
	}
	assert.Equal(t, []uint{2, 1, 3, 4}, ids)

	global, err := svc.Survey(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, global, 2)
}

func TestSubmit_WithBookingUsesResolverCloser(t *testing.T) {
	repo := newMemRepo()
	booker := &fakeBooker{}
	slots := &fakeSlots{slots: []scheduling.Slot{{Start: slotAt, CloserID: 11}}}
	svc := NewService(repo, WithBooker(booker), WithSlots(slots))

	in := baseInput()
	in.Event = "spring-webinar"
	in.Booking = &BookingRequest{Start: slotAt.Add(20 * time.Second)}
	res, err := svc.Submit(context.Background(), in)
	require.NoError(t, err)
	require.NotNil(t, res.Appointment)
	require.Len(t, booker.inputs, 1)
	assert.Equal(t, uint(11), booker.inputs[0].CloserID)
	assert.True(t, slotAt.Equal(booker.inputs[0].Start))
	assert.Equal(t, uint(30), *booker.inputs[0].EventID)
}

func TestSubmit_BookingHonoursPreferredCloser(t *testing.T) {
	shared := []scheduling.Slot{{Start: slotAt, CloserID: 11}, {Start: slotAt, CloserID: 12}}

	t.Run("no preference takes lowest id", func(t *testing.T) {
		booker := &fakeBooker{}
		svc := NewService(newMemRepo(), WithBooker(booker), WithSlots(&fakeSlots{slots: shared}))
		in := baseInput()
		in.Booking = &BookingRequest{Start: slotAt}
		_, err := svc.Submit(context.Background(), in)
		require.NoError(t, err)
		require.Len(t, booker.inputs, 1)
		assert.Equal(t, uint(11), booker.inputs[0].CloserID)
	})

	t.Run("requested preference", func(t *testing.T) {
		booker := &fakeBooker{}
		slots := &fakeSlots{slots: shared}
		svc := NewService(newMemRepo(), WithBooker(booker), WithSlots(slots))
		in := baseInput()
		in.Booking = &BookingRequest{Start: slotAt, PreferredCloserID: uintPtr(12)}
		_, err := svc.Submit(context.Background(), in)
		require.NoError(t, err)
		require.Len(t, booker.inputs, 1)
		assert.Equal(t, uint(12), booker.inputs[0].CloserID)
		assert.Equal(t, uint(12), slots.queries[0].PreferredCloserID)
	})

	t.Run("assigned closer of a returning lead", func(t *testing.T) {
		repo := newMemRepo()
		booker := &fakeBooker{}
		svc := NewService(repo, WithBooker(booker), WithSlots(&fakeSlots{slots: shared}))
		first, err := svc.Submit(context.Background(), baseInput())
		require.NoError(t, err)
		profile := repo.profiles[first.Lead.ID]
		profile.CloserID = uintPtr(12)
		repo.profiles[first.Lead.ID] = profile

		in := baseInput()
		in.Booking = &BookingRequest{Start: slotAt}
		_, err = svc.Submit(context.Background(), in)
		require.NoError(t, err)
		require.Len(t, booker.inputs, 1)
		assert.Equal(t, uint(12), booker.inputs[0].CloserID)
	})
}

func TestSubmit_BookingNotOfferedKeepsLead(t *testing.T) {
	repo := newMemRepo()
	booker := &fakeBooker{}
	slots := &fakeSlots{slots: []scheduling.Slot{{Start: slotAt, CloserID: 11}}}
	svc := NewService(repo, WithBooker(booker), WithSlots(slots))

	in := baseInput()
	in.Booking = &BookingRequest{Start: slotAt, CloserID: uintPtr(12)}
	res, err := svc.Submit(context.Background(), in)
	assert.ErrorIs(t, err, ErrSlotUnavailable)
	require.NotNil(t, res)
	assert.NotZero(t, res.Lead.ID)
	assert.Empty(t, booker.inputs)
	assert.Len(t, repo.users, 2)
}

func TestSubmit_BookingRaceSurfacesSlotTaken(t *testing.T) {
	booker := &fakeBooker{err: booking.ErrSlotTaken}
	slots := &fakeSlots{slots: []scheduling.Slot{{Start: slotAt, CloserID: 11}}}
	svc := NewService(newMemRepo(), WithBooker(booker), WithSlots(slots))

	in := baseInput()
	in.Booking = &BookingRequest{Start: slotAt, CloserID: uintPtr(11)}
	_, err := svc.Submit(context.Background(), in)
	assert.ErrorIs(t, err, booking.ErrSlotTaken)
}

func TestUpdateLead(t *testing.T) {
	repo := newMemRepo()
	rec := &recorder{}
	svc := NewService(repo, WithPublisher(rec))
	res, err := svc.Submit(context.Background(), baseInput())
	require.NoError(t, err)

	name := "Ana María"
	tz := "America/La_Paz"
	closer := uint(1)
	lead, err := svc.UpdateLead(context.Background(), res.Lead.ID, LeadUpdate{Name: &name, Timezone: &tz, CloserID: &closer})
	require.NoError(t, err)
	assert.Equal(t, name, lead.Name)
	assert.Equal(t, tz, repo.users[res.Lead.ID].Timezone)
	assert.Equal(t, uint(1), *repo.profiles[res.Lead.ID].CloserID)

	bad := "Mars/Olympus"
	_, err = svc.UpdateLead(context.Background(), res.Lead.ID, LeadUpdate{Timezone: &bad})
	assert.ErrorIs(t, err, ErrInvalidTimezone)

	_, err = svc.UpdateLead(context.Background(), 1, LeadUpdate{Name: &name})
	assert.ErrorIs(t, err, ErrLeadNotFound)
}

func TestDeleteAndRecompute(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo)
	res, err := svc.Submit(context.Background(), baseInput())
	require.NoError(t, err)

	status, err := svc.RecomputeStatus(context.Background(), res.Lead.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LEAD_STATUS_NEW, status)

	require.NoError(t, svc.DeleteLead(context.Background(), res.Lead.ID))
	_, err = svc.GetLead(context.Background(), res.Lead.ID)
	assert.ErrorIs(t, err, ErrLeadNotFound)
}

func TestLeadPayload(t *testing.T) {
	closer := uint(4)
	data := LeadPayload(&models.User{ID: 3, Name: "A", Email: "a@x.io", Role: models.ROLE_LEAD},
		&models.LeadProfile{Status: models.LEAD_STATUS_AGENDA, CloserID: &closer})
	b, err := json.Marshal(data)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"status":"agenda"`)
	assert.Contains(t, string(b), `"closer_id":4`)
}

func TestImportLead_AssignsCloserOnlyWhenEmpty(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo)

	in := LeadInput{Name: "Imported", Email: "imp@example.com", UTMSource: "csv"}
	res, err := svc.ImportLead(context.Background(), in, uintPtr(1), nil)
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, uint(1), *repo.profiles[res.Lead.ID].CloserID)

	again, err := svc.ImportLead(context.Background(), in, uintPtr(9), uintPtr(30))
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.Equal(t, uint(1), *repo.profiles[res.Lead.ID].CloserID)
	assert.Equal(t, uint(30), *repo.profiles[res.Lead.ID].EventID)
}
