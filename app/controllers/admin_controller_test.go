package controllers

import (
	"context"
	"net/http"
	"sort"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/closerdesk/closerdesk/app/models"
	"github.com/closerdesk/closerdesk/app/repository"
	"github.com/closerdesk/closerdesk/internal/pkg/ledger"
	"github.com/closerdesk/closerdesk/internal/pkg/webhook"
)

type memCatalog[T any] struct {
	rows   map[uint]T
	nextID uint
	id     func(*T) *uint
}

func newMemCatalog[T any](id func(*T) *uint) *memCatalog[T] {
	return &memCatalog[T]{rows: map[uint]T{}, nextID: 1, id: id}
}

func (m *memCatalog[T]) List(context.Context) ([]T, error) {
	ids := make([]int, 0, len(m.rows))
	for id := range m.rows {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.rows[uint(id)])
	}
	return out, nil
}

func (m *memCatalog[T]) GetByID(_ context.Context, id uint) (*T, error) {
	row, ok := m.rows[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &row, nil
}

func (m *memCatalog[T]) Create(_ context.Context, item *T) error {
	*m.id(item) = m.nextID
	m.rows[m.nextID] = *item
	m.nextID++
	return nil
}

func (m *memCatalog[T]) Update(_ context.Context, item *T) error {
	m.rows[*m.id(item)] = *item
	return nil
}

func (m *memCatalog[T]) Delete(_ context.Context, id uint) error {
	if _, ok := m.rows[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(m.rows, id)
	return nil
}

type memUsers struct {
	users map[uint]*models.User
}

func (m *memUsers) Create(_ context.Context, u *models.User) error {
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return gorm.ErrDuplicatedKey
		}
	}
	u.ID = uint(len(m.users) + 100)
	m.users[u.ID] = u
	return nil
}

func (m *memUsers) GetByID(_ context.Context, id uint) (*models.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memUsers) Update(_ context.Context, u *models.User) error {
	m.users[u.ID] = u
	return nil
}

func (m *memUsers) Delete(_ context.Context, id uint) error {
	delete(m.users, id)
	return nil
}

func (m *memUsers) ListStaff(context.Context, repository.StaffFilter) ([]models.User, int64, error) {
	var out []models.User
	for _, u := range m.users {
		out = append(out, *u)
	}
	return out, int64(len(out)), nil
}

type fakeProgramRemover struct{ inUse map[uint]bool }

func (f fakeProgramRemover) DeleteProgram(_ context.Context, id uint) error {
	if f.inUse[id] {
		return ledger.ErrProgramInUse
	}
	return nil
}

type fakeWebhooks struct{}

func (fakeWebhooks) Ping(_ context.Context, id uint) (*models.WebhookDelivery, error) {
	if id != 1 {
		return nil, webhook.ErrIntegrationNotFound
	}
	return &models.WebhookDelivery{IntegrationID: id, EventType: "ping", StatusCode: 200}, nil
}

func (fakeWebhooks) Deliveries(context.Context, uint, int) ([]models.WebhookDelivery, error) {
	return nil, nil
}

type memExpenses struct {
	*memCatalog[models.Expense]
}

func (m memExpenses) ListBetween(ctx context.Context, from, to time.Time) ([]models.Expense, error) {
	all, _ := m.List(ctx)
	var out []models.Expense
	for _, e := range all {
		if !e.SpentAt.Before(from) && e.SpentAt.Before(to) {
			out = append(out, e)
		}
	}
	return out, nil
}

type adminFixture struct {
	app          *fiber.App
	programs     *memCatalog[models.Program]
	questions    *memCatalog[models.SurveyQuestion]
	events       *memCatalog[models.Event]
	integrations *memCatalog[models.Integration]
	expenses     memExpenses
	users        *memUsers
}

func newAdminFixture() *adminFixture {
	f := &adminFixture{
		programs:     newMemCatalog(func(p *models.Program) *uint { return &p.ID }),
		questions:    newMemCatalog(func(q *models.SurveyQuestion) *uint { return &q.ID }),
		events:       newMemCatalog(func(e *models.Event) *uint { return &e.ID }),
		integrations: newMemCatalog(func(i *models.Integration) *uint { return &i.ID }),
		expenses:     memExpenses{newMemCatalog(func(e *models.Expense) *uint { return &e.ID })},
		users:        &memUsers{users: map[uint]*models.User{1: {ID: 1, Name: "Admin", Email: "admin@example.com", Role: models.ROLE_ADMIN, Status: models.STATUS_ACTIVE}}},
	}
	repos := &repository.Repositories{
		User:             f.users,
		Program:          f.programs,
		PaymentMethod:    newMemCatalog(func(m *models.PaymentMethod) *uint { return &m.ID }),
		EventGroup:       newMemCatalog(func(g *models.EventGroup) *uint { return &g.ID }),
		Event:            f.events,
		SurveyQuestion:   f.questions,
		Expense:          f.expenses,
		RecurringExpense: newMemCatalog(func(e *models.RecurringExpense) *uint { return &e.ID }),
		Integration:      f.integrations,
	}
	ac := NewAdminController(repos, fakeProgramRemover{inUse: map[uint]bool{1: true}}, fakeWebhooks{})
	f.app = newTestApp(adminUser())
	ac.Mount(f.app)
	return f
}

func TestAdminPrograms(t *testing.T) {
	f := newAdminFixture()

	resp, body := doJSON(t, f.app, http.MethodPost, "/programs", map[string]interface{}{"name": "  Mentorship ", "price": 1500})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "Mentorship", body["name"])

	resp, body = doJSON(t, f.app, http.MethodPut, "/programs/1", map[string]interface{}{"price": 1800})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Mentorship", body["name"], "omitted fields keep their value")
	assert.EqualValues(t, 1800, body["price"])

	resp, body = doJSON(t, f.app, http.MethodPost, "/programs", map[string]interface{}{"price": -1})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation_failed", body["error"])

	resp, body = doJSON(t, f.app, http.MethodDelete, "/programs/1", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "program_in_use", body["error"])

	resp, _ = doJSON(t, f.app, http.MethodGet, "/programs/7", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAdminSurveyQuestionScope(t *testing.T) {
	f := newAdminFixture()
	require.NoError(t, f.events.Create(context.Background(), &models.Event{Name: "Spring", Slug: "spring"}))

	tests := []struct {
		name   string
		body   map[string]interface{}
		status int
	}{
		{"global clears foreign keys", map[string]interface{}{"text": "Budget?", "event_id": 1}, http.StatusCreated},
		{"event scope needs event", map[string]interface{}{"text": "Goal?", "scope": "event"}, http.StatusUnprocessableEntity},
		{"unknown event", map[string]interface{}{"text": "Goal?", "scope": "event", "event_id": 42}, http.StatusUnprocessableEntity},
		{"event scope", map[string]interface{}{"text": "Goal?", "scope": "event", "event_id": 1}, http.StatusCreated},
		{"choice without options", map[string]interface{}{"text": "Level?", "kind": "choice"}, http.StatusBadRequest},
		{"choice with options", map[string]interface{}{"text": "Level?", "kind": "choice", "options": []string{"a", "b"}}, http.StatusCreated},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp, _ := doJSON(t, f.app, http.MethodPost, "/survey-questions", tc.body)
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}
	q, err := f.questions.GetByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, models.SURVEY_SCOPE_GLOBAL, q.Scope)
	assert.Nil(t, q.EventID)
}

func TestAdminEventSlug(t *testing.T) {
	f := newAdminFixture()
	resp, body := doJSON(t, f.app, http.MethodPost, "/events", map[string]interface{}{"name": "Spring Launch"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "spring-launch", body["slug"])
}

func TestAdminUsers(t *testing.T) {
	f := newAdminFixture()

	resp, body := doJSON(t, f.app, http.MethodPost, "/users", map[string]interface{}{
		"name": "Carla", "email": "Carla@Example.com", "password": "longenough", "role": "closer", "timezone": "America/Bogota",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "carla@example.com", body["email"])
	assert.NotContains(t, body, "password")
	id := uint(body["id"].(float64))
	assert.NotEqual(t, "longenough", f.users.users[id].Password)

	resp, _ = doJSON(t, f.app, http.MethodPost, "/users", map[string]interface{}{
		"name": "Lead", "email": "lead@example.com", "password": "longenough", "role": "lead",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doJSON(t, f.app, http.MethodPost, "/users", map[string]interface{}{
		"name": "Zed", "email": "zed@example.com", "password": "longenough", "role": "closer", "timezone": "Mars/Base",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = doJSON(t, f.app, http.MethodPut, "/users/"+itoa(id), map[string]interface{}{"status": "inactive"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "inactive", body["status"])
	assert.Equal(t, "Carla", body["name"])

	resp, body = doJSON(t, f.app, http.MethodDelete, "/users/1", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "self_delete", body["error"])
}

func TestAdminIntegrations(t *testing.T) {
	f := newAdminFixture()

	resp, body := doJSON(t, f.app, http.MethodPost, "/integrations", map[string]interface{}{
		"name": "CRM", "url": "https://hooks.example.com/in", "secret": "s3cret", "events": []string{"lead.created"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.NotContains(t, body, "secret")
	stored, err := f.integrations.GetByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", stored.Secret)
	assert.True(t, stored.IsActive)
	assert.True(t, stored.Subscribes("lead.created"))
	assert.False(t, stored.Subscribes("payment.created"))

	resp, _ = doJSON(t, f.app, http.MethodPost, "/integrations", map[string]interface{}{"name": "Bad", "url": "not a url"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = doJSON(t, f.app, http.MethodPost, "/integrations/1/ping", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ping", body["event_type"])

	resp, body = doJSON(t, f.app, http.MethodPost, "/integrations/2/ping", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "integration_not_found", body["error"])
}

func TestAdminExpenses(t *testing.T) {
	f := newAdminFixture()

	for _, e := range []map[string]interface{}{
		{"description": "Ads", "category": "marketing", "amount": 300, "spent_at": "2025-02-10T10:00:00Z"},
		{"description": "CRM seats", "category": "software", "amount": 90, "spent_at": "2025-03-02T10:00:00Z"},
	} {
		resp, _ := doJSON(t, f.app, http.MethodPost, "/expenses", e)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}
	resp, body := doJSON(t, f.app, http.MethodPost, "/expenses", map[string]interface{}{"description": "Coffee", "amount": 12})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.NotEqual(t, "0001-01-01T00:00:00Z", body["spent_at"], "spent_at defaults to now")

	resp, body = doJSON(t, f.app, http.MethodGet, "/expenses", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["expenses"], 3)

	resp, body = doJSON(t, f.app, http.MethodGet, "/expenses?from=2025-02-01&to=2025-02-28", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := body["expenses"].([]interface{})
	require.Len(t, list, 1)
	assert.Equal(t, "Ads", list[0].(map[string]interface{})["description"])

	resp, _ = doJSON(t, f.app, http.MethodGet, "/expenses?from=2025-03-01&to=2025-02-01", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
