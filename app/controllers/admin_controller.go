package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/closerdesk/closerdesk/app/models"
	"github.com/closerdesk/closerdesk/app/repository"
	"github.com/closerdesk/closerdesk/internal/pkg/usercontext"
)

var (
	errSelfDelete     = errors.New("you cannot delete your own account")
	errQuestionScope  = errors.New("survey question scope does not match its event or event group")
	errUnknownRelated = errors.New("referenced event or event group does not exist")
)

// ProgramRemover is implemented by *ledger.Service.
type ProgramRemover interface {
	DeleteProgram(ctx context.Context, id uint) error
}

// WebhookService is implemented by *webhook.Service.
type WebhookService interface {
	Ping(ctx context.Context, integrationID uint) (*models.WebhookDelivery, error)
	Deliveries(ctx context.Context, integrationID uint, limit int) ([]models.WebhookDelivery, error)
}

// AdminController manages staff accounts and the catalog tables
type AdminController struct {
	repos    *repository.Repositories
	programs ProgramRemover
	webhooks WebhookService
}

func NewAdminController(repos *repository.Repositories, programs ProgramRemover, webhooks WebhookService) *AdminController {
	return &AdminController{repos: repos, programs: programs, webhooks: webhooks}
}

// Mount registers the catalog routes on an admin-only router.
func (ac *AdminController) Mount(r fiber.Router) {
	r.Get("/users", ac.HandleListUsers)
	r.Post("/users", ac.HandleCreateUser)
	r.Get("/users/:id", ac.HandleGetUser)
	r.Put("/users/:id", ac.HandleUpdateUser)
	r.Delete("/users/:id", ac.HandleDeleteUser)

	catalogHandlers[models.Program]{
		key:  "programs",
		repo: ac.repos.Program,
		id:   func(p *models.Program) *uint { return &p.ID },
		check: func(_ context.Context, p *models.Program) error {
			p.Name = strings.TrimSpace(p.Name)
			return nil
		},
		remove: func(c *fiber.Ctx, id uint) error { return ac.programs.DeleteProgram(c.UserContext(), id) },
	}.mount(r, "/programs")

	catalogHandlers[models.PaymentMethod]{
		key:  "payment_methods",
		repo: ac.repos.PaymentMethod,
		id:   func(m *models.PaymentMethod) *uint { return &m.ID },
	}.mount(r, "/payment-methods")

	catalogHandlers[models.EventGroup]{
		key:  "event_groups",
		repo: ac.repos.EventGroup,
		id:   func(g *models.EventGroup) *uint { return &g.ID },
		check: func(_ context.Context, g *models.EventGroup) error {
			g.Slug = slugify(g.Slug, g.Name)
			return nil
		},
	}.mount(r, "/event-groups")

	catalogHandlers[models.Event]{
		key:  "events",
		repo: ac.repos.Event,
		id:   func(e *models.Event) *uint { return &e.ID },
		check: func(_ context.Context, e *models.Event) error {
			e.Slug = slugify(e.Slug, e.Name)
			return nil
		},
	}.mount(r, "/events")

	catalogHandlers[models.SurveyQuestion]{
		key:   "questions",
		repo:  ac.repos.SurveyQuestion,
		id:    func(q *models.SurveyQuestion) *uint { return &q.ID },
		check: ac.checkQuestion,
	}.mount(r, "/survey-questions")

	catalogHandlers[models.Expense]{
		key:  "expenses",
		repo: ac.repos.Expense,
		id:   func(e *models.Expense) *uint { return &e.ID },
		check: func(_ context.Context, e *models.Expense) error {
			if e.SpentAt.IsZero() {
				e.SpentAt = time.Now().UTC()
			}
			return nil
		},
		query: ac.listExpenses,
	}.mount(r, "/expenses")

	catalogHandlers[models.RecurringExpense]{
		key:  "recurring_expenses",
		repo: ac.repos.RecurringExpense,
		id:   func(e *models.RecurringExpense) *uint { return &e.ID },
		check: func(_ context.Context, e *models.RecurringExpense) error {
			if time.Time(e.StartsOn).IsZero() {
				now := time.Now().UTC()
				e.StartsOn = datatypes.Date(time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC))
			}
			return nil
		},
	}.mount(r, "/recurring-expenses")

	r.Get("/integrations", ac.HandleListIntegrations)
	r.Post("/integrations", ac.HandleCreateIntegration)
	r.Put("/integrations/:id", ac.HandleUpdateIntegration)
	r.Delete("/integrations/:id", ac.HandleDeleteIntegration)
	r.Post("/integrations/:id/ping", ac.HandlePingIntegration)
	r.Get("/integrations/:id/deliveries", ac.HandleIntegrationDeliveries)
}

// checkQuestion keeps scope and its foreign key consistent.
func (ac *AdminController) checkQuestion(ctx context.Context, q *models.SurveyQuestion) error {
	if q.Scope == "" {
		q.Scope = models.SURVEY_SCOPE_GLOBAL
	}
	if q.Kind == "" {
		q.Kind = "text"
	}
	switch q.Scope {
	case models.SURVEY_SCOPE_GLOBAL:
		q.EventID, q.EventGroupID = nil, nil
	case models.SURVEY_SCOPE_EVENT:
		if q.EventID == nil {
			return errQuestionScope
		}
		q.EventGroupID = nil
		if _, err := ac.repos.Event.GetByID(ctx, *q.EventID); err != nil {
			return relatedErr(err)
		}
	case models.SURVEY_SCOPE_EVENT_GROUP:
		if q.EventGroupID == nil {
			return errQuestionScope
		}
		q.EventID = nil
		if _, err := ac.repos.EventGroup.GetByID(ctx, *q.EventGroupID); err != nil {
			return relatedErr(err)
		}
	}
	if q.Kind == "choice" {
		var options []string
		if len(q.Options) == 0 || json.Unmarshal(q.Options, &options) != nil || len(options) == 0 {
			return fiber.NewError(fiber.StatusBadRequest, "choice questions need a non-empty options list")
		}
	}
	return nil
}

func relatedErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errUnknownRelated
	}
	return err
}

// slugify keeps an explicit slug, otherwise derives one from name.
func slugify(slug, name string) string {
	src := strings.TrimSpace(slug)
	if src == "" {
		src = name
	}
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(src) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

func (ac *AdminController) HandleListUsers(c *fiber.Ctx) error {
	limit, offset := pagination(c)
	users, total, err := ac.repos.User.ListStaff(c.UserContext(), repository.StaffFilter{
		Role:   c.Query("role"),
		Search: c.Query("q"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return respondError(c, err)
	}
	if users == nil {
		users = []models.User{}
	}
	return c.JSON(fiber.Map{"users": users, "total": total, "limit": limit, "offset": offset})
}

func (ac *AdminController) HandleGetUser(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	u, err := ac.repos.User.GetByID(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(u)
}

type createUserRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=150"`
	Email    string `json:"email" validate:"required,email,max=200"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Role     string `json:"role" validate:"required,oneof=admin closer agenda"`
	Timezone string `json:"timezone" validate:"omitempty,max=64"`
}

func (ac *AdminController) HandleCreateUser(c *fiber.Ctx) error {
	var req createUserRequest
	if err := bindJSON(c, &req); err != nil {
		return respondError(c, err)
	}
	if req.Timezone != "" && !validTimezone(req.Timezone) {
		return badRequest(c, "unknown timezone")
	}
	u, err := models.NewStaffUser(req.Name, req.Email, req.Password, req.Role)
	if err != nil {
		return respondError(c, err)
	}
	u.Timezone = req.Timezone
	if err := ac.repos.User.Create(c.UserContext(), u); err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(u)
}

type updateUserRequest struct {
	Name     *string `json:"name" validate:"omitempty,min=2,max=150"`
	Email    *string `json:"email" validate:"omitempty,email,max=200"`
	Password *string `json:"password" validate:"omitempty,min=8,max=72"`
	Role     *string `json:"role" validate:"omitempty,oneof=admin closer agenda"`
	Status   *string `json:"status" validate:"omitempty,oneof=active inactive"`
	Timezone *string `json:"timezone" validate:"omitempty,max=64"`
}

func (ac *AdminController) HandleUpdateUser(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var req updateUserRequest
	if err := bindJSON(c, &req); err != nil {
		return respondError(c, err)
	}
	u, err := ac.repos.User.GetByID(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	if !u.IsStaff() {
		return respondError(c, gorm.ErrRecordNotFound)
	}
	if req.Name != nil {
		u.Name = strings.TrimSpace(*req.Name)
	}
	if req.Email != nil {
		u.Email = models.NormalizeEmail(*req.Email)
	}
	if req.Role != nil {
		u.Role = *req.Role
	}
	if req.Status != nil {
		u.Status = *req.Status
	}
	if req.Timezone != nil {
		if *req.Timezone != "" && !validTimezone(*req.Timezone) {
			return badRequest(c, "unknown timezone")
		}
		u.Timezone = *req.Timezone
	}
	if req.Password != nil {
		if err := u.SetPassword(*req.Password); err != nil {
			return respondError(c, err)
		}
	}
	if err := ac.repos.User.Update(c.UserContext(), u); err != nil {
		return respondError(c, err)
	}
	return c.JSON(u)
}

func (ac *AdminController) HandleDeleteUser(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	if id == usercontext.GetUserID(c) {
		return jsonError(c, fiber.StatusConflict, "self_delete", errSelfDelete.Error())
	}
	if err := ac.repos.User.Delete(c.UserContext(), id); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func validTimezone(name string) bool {
	_, err := time.LoadLocation(name)
	return err == nil
}

// integrationRequest exposes the write-only secret that the model hides from JSON.
type integrationRequest struct {
	Name     *string           `json:"name" validate:"omitempty,max=120"`
	URL      *string           `json:"url" validate:"omitempty,url,max=500"`
	Secret   *string           `json:"secret" validate:"omitempty,max=255"`
	Events   []string          `json:"events"`
	Headers  map[string]string `json:"headers"`
	IsActive *bool             `json:"is_active"`
}

func (r integrationRequest) apply(i *models.Integration) error {
	if r.Name != nil {
		i.Name = strings.TrimSpace(*r.Name)
	}
	if r.URL != nil {
		i.URL = strings.TrimSpace(*r.URL)
	}
	if r.Secret != nil {
		i.Secret = *r.Secret
	}
	if r.Events != nil {
		raw, err := json.Marshal(r.Events)
		if err != nil {
			return err
		}
		i.Events = datatypes.JSON(raw)
	}
	if r.Headers != nil {
		raw, err := json.Marshal(r.Headers)
		if err != nil {
			return err
		}
		i.Headers = datatypes.JSON(raw)
	}
	if r.IsActive != nil {
		i.IsActive = *r.IsActive
	}
	if i.Kind == "" {
		i.Kind = models.INTEGRATION_KIND_WEBHOOK
	}
	return validate.Struct(i)
}

func (ac *AdminController) HandleListIntegrations(c *fiber.Ctx) error {
	list, err := ac.repos.Integration.List(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	if list == nil {
		list = []models.Integration{}
	}
	return c.JSON(fiber.Map{"integrations": list})
}

func (ac *AdminController) HandleCreateIntegration(c *fiber.Ctx) error {
	var req integrationRequest
	if err := bindJSON(c, &req); err != nil {
		return respondError(c, err)
	}
	i := &models.Integration{IsActive: true}
	if err := req.apply(i); err != nil {
		return respondError(c, err)
	}
	if err := ac.repos.Integration.Create(c.UserContext(), i); err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(i)
}

func (ac *AdminController) HandleUpdateIntegration(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var req integrationRequest
	if err := bindJSON(c, &req); err != nil {
		return respondError(c, err)
	}
	i, err := ac.repos.Integration.GetByID(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	if err := req.apply(i); err != nil {
		return respondError(c, err)
	}
	if err := ac.repos.Integration.Update(c.UserContext(), i); err != nil {
		return respondError(c, err)
	}
	return c.JSON(i)
}

func (ac *AdminController) HandleDeleteIntegration(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	if err := ac.repos.Integration.Delete(c.UserContext(), id); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// HandlePingIntegration sends a test event synchronously and returns the logged attempt
func (ac *AdminController) HandlePingIntegration(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	d, err := ac.webhooks.Ping(c.UserContext(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(d)
}

func (ac *AdminController) HandleIntegrationDeliveries(c *fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	limit, _ := pagination(c)
	list, err := ac.webhooks.Deliveries(c.UserContext(), id, limit)
	if err != nil {
		return respondError(c, err)
	}
	if list == nil {
		list = []models.WebhookDelivery{}
	}
	return c.JSON(fiber.Map{"deliveries": list})
}

// listExpenses lists every expense, or those spent in [from, to) when either bound
// is given. A missing bound falls back to the current month.
func (ac *AdminController) listExpenses(c *fiber.Ctx) ([]models.Expense, error) {
	if c.Query("from") == "" && c.Query("to") == "" {
		return ac.repos.Expense.List(c.UserContext())
	}
	defFrom, defTo := monthRange(time.Now())
	from, to, err := queryRange(c, "from", "to", defFrom, defTo)
	if err != nil {
		return nil, err
	}
	if !from.Before(to) {
		return nil, fiber.NewError(fiber.StatusBadRequest, "from must be before to")
	}
	return ac.repos.Expense.ListBetween(c.UserContext(), from, to)
}
