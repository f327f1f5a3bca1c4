// Package intake takes leads in from the public funnel: contact data, UTM attribution,
// survey answers and an optional first booking. It also backs the staff lead views.
package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/closerdesk/closerdesk/app/models"
	"github.com/closerdesk/closerdesk/internal/pkg/booking"
	"github.com/closerdesk/closerdesk/internal/pkg/funnel"
	"github.com/closerdesk/closerdesk/internal/pkg/scheduling"
)

var (
	ErrEventNotFound   = errors.New("event not found")
	ErrLeadNotFound    = errors.New("lead not found")
	ErrEmailInUse      = errors.New("email belongs to a staff account")
	ErrUnknownQuestion = errors.New("unknown survey question")
	ErrMissingAnswer   = errors.New("required survey question not answered")
	ErrInvalidAnswer   = errors.New("invalid survey answer")
	ErrSlotUnavailable = errors.New("slot is not offered")
	ErrInvalidTimezone = errors.New("unknown timezone")
)

const (
	EventLeadCreated = "lead.created"
	EventLeadUpdated = "lead.updated"
	EventLeadDeleted = "lead.deleted"
)

type Publisher interface {
	Publish(ctx context.Context, eventType string, data map[string]interface{})
}

// Booker creates appointments; *booking.Service implements it.
type Booker interface {
	Create(ctx context.Context, in booking.CreateInput) (*models.Appointment, error)
}

// SlotFinder verifies that a requested instant is really offered; *scheduling.Service
// implements it.
type SlotFinder interface {
	FindSlots(ctx context.Context, q scheduling.Query) ([]scheduling.Slot, error)
	IsOffered(ctx context.Context, closerID uint, start time.Time) (bool, error)
}

// BookingRequest asks for an instant. CloserID pins the closer; otherwise
// PreferredCloserID breaks ties between closers offering the same instant.
type BookingRequest struct {
	CloserID          *uint     `json:"closer_id"`
	PreferredCloserID *uint     `json:"preferred_closer_id"`
	Start             time.Time `json:"start_time" validate:"required"`
}

type LeadInput struct {
	Name        string          `json:"name" validate:"required,min=2,max=150"`
	Email       string          `json:"email" validate:"required,email,max=200"`
	Phone       string          `json:"phone" validate:"omitempty,max=40"`
	Country     string          `json:"country" validate:"omitempty,max=80"`
	Timezone    string          `json:"timezone" validate:"omitempty,max=64"`
	UTMSource   string          `json:"utm_source" validate:"omitempty,max=120"`
	UTMMedium   string          `json:"utm_medium" validate:"omitempty,max=120"`
	UTMCampaign string          `json:"utm_campaign" validate:"omitempty,max=120"`
	Event       string          `json:"event" validate:"omitempty,max=150"`
	Answers     map[uint]string `json:"answers"`
	Booking     *BookingRequest `json:"booking"`
}

type Result struct {
	Lead        *models.User        `json:"lead"`
	Profile     *models.LeadProfile `json:"profile"`
	Created     bool                `json:"created"`
	Appointment *models.Appointment `json:"appointment,omitempty"`
}

type Option func(*Service)

func WithPublisher(p Publisher) Option { return func(s *Service) { s.publisher = p } }
func WithBooker(b Booker) Option       { return func(s *Service) { s.booker = b } }
func WithSlots(f SlotFinder) Option    { return func(s *Service) { s.slots = f } }

type Service struct {
	repo      Repository
	publisher Publisher
	booker    Booker
	slots     SlotFinder
	validate  *validator.Validate
	now       func() time.Time
}

func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{repo: repo, validate: validator.New(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func NewServiceFromDB(db *gorm.DB, opts ...Option) *Service {
	return NewService(NewRepository(db), opts...)
}

// Survey returns the questions shown for eventSlug: global ones, then the event's
// group, then the event itself. An empty slug yields the global questions only.
func (s *Service) Survey(ctx context.Context, eventSlug string) ([]models.SurveyQuestion, error) {
	event, err := s.resolveEvent(ctx, s.repo, eventSlug)
	if err != nil {
		return nil, err
	}
	return s.questionsFor(ctx, s.repo, event)
}

// Submit creates or updates the lead behind in.Email. UTM fields are first-touch: they
// are only filled while empty. When a booking is requested it is made after the lead
// is committed, so a lost slot still leaves the lead in place; the result is returned
// together with the booking error.
func (s *Service) Submit(ctx context.Context, in LeadInput) (*Result, error) {
	in.Email = models.NormalizeEmail(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}

	var res Result
	var eventID *uint
	err := s.repo.WithTx(ctx, func(tx Repository) error {
		event, err := s.resolveEvent(ctx, tx, in.Event)
		if err != nil {
			return err
		}
		if event != nil {
			eventID = &event.ID
		}

		questions, err := s.questionsFor(ctx, tx, event)
		if err != nil {
			return err
		}
		if err := checkAnswers(questions, in.Answers); err != nil {
			return err
		}

		lead, created, err := s.upsertLead(ctx, tx, in)
		if err != nil {
			return err
		}
		profile, err := s.upsertProfile(ctx, tx, lead.ID, in, eventID)
		if err != nil {
			return err
		}

		for qid, value := range in.Answers {
			if err := tx.UpsertAnswer(ctx, &models.SurveyAnswer{
				LeadID:     lead.ID,
				QuestionID: qid,
				Value:      strings.TrimSpace(value),
			}); err != nil {
				return err
			}
		}

		status, err := funnel.Recompute(ctx, tx, lead.ID, s.now())
		if err != nil {
			return err
		}
		profile.Status = status

		res = Result{Lead: lead, Profile: profile, Created: created}
		return nil
	})
	if err != nil {
		return nil, err
	}

	eventType := EventLeadUpdated
	if res.Created {
		eventType = EventLeadCreated
		log.Infof("[Intake] New lead %d (%s)", res.Lead.ID, res.Lead.Email)
	}
	s.publish(ctx, eventType, LeadPayload(res.Lead, res.Profile))

	if in.Booking == nil {
		return &res, nil
	}
	req := *in.Booking
	if req.PreferredCloserID == nil && res.Profile != nil {
		req.PreferredCloserID = res.Profile.CloserID
	}
	appt, err := s.Book(ctx, res.Lead.ID, req, eventID)
	if err != nil {
		return &res, err
	}
	res.Appointment = appt
	return &res, nil
}

// Book books a public slot for leadID. The instant must be offered by the resolver at
// the moment of booking; without a closer the resolver's choice for that instant is
// used, honouring the preferred closer the same way the slot listing does.
func (s *Service) Book(ctx context.Context, leadID uint, req BookingRequest, eventID *uint) (*models.Appointment, error) {
	if s.booker == nil {
		return nil, fmt.Errorf("intake: booking not configured")
	}
	closerID, start, err := s.resolveSlot(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.booker.Create(ctx, booking.CreateInput{
		LeadID:   leadID,
		CloserID: closerID,
		Start:    start,
		EventID:  eventID,
	})
}

func (s *Service) resolveSlot(ctx context.Context, req BookingRequest) (uint, time.Time, error) {
	start := req.Start.UTC().Truncate(time.Minute)
	if s.slots == nil {
		if req.CloserID == nil {
			return 0, start, ErrSlotUnavailable
		}
		return *req.CloserID, start, nil
	}

	if req.CloserID != nil {
		ok, err := s.slots.IsOffered(ctx, *req.CloserID, start)
		if err != nil {
			return 0, start, err
		}
		if !ok {
			return 0, start, ErrSlotUnavailable
		}
		return *req.CloserID, start, nil
	}

	q := scheduling.Query{From: start, To: start.Add(time.Minute)}
	if req.PreferredCloserID != nil {
		q.PreferredCloserID = *req.PreferredCloserID
	}
	slots, err := s.slots.FindSlots(ctx, q)
	if err != nil {
		return 0, start, err
	}
	for _, sl := range slots {
		if sl.Start.Equal(start) {
			return sl.CloserID, start, nil
		}
	}
	return 0, start, ErrSlotUnavailable
}

func (s *Service) upsertLead(ctx context.Context, tx Repository, in LeadInput) (*models.User, bool, error) {
	existing, err := tx.FindUserByEmail(ctx, in.Email)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	if existing != nil {
		if existing.IsStaff() {
			return nil, false, ErrEmailInUse
		}
		if tz := strings.TrimSpace(in.Timezone); tz != "" && validTimezone(tz) {
			existing.Timezone = tz
			if err := tx.SaveUser(ctx, existing); err != nil {
				return nil, false, err
			}
		}
		return existing, false, nil
	}

	lead := &models.User{
		Name:   in.Name,
		Email:  in.Email,
		Role:   models.ROLE_LEAD,
		Status: models.STATUS_ACTIVE,
	}
	if tz := strings.TrimSpace(in.Timezone); tz != "" && validTimezone(tz) {
		lead.Timezone = tz
	}
	if err := tx.CreateUser(ctx, lead); err != nil {
		return nil, false, err
	}
	return lead, true, nil
}

func (s *Service) upsertProfile(ctx context.Context, tx Repository, userID uint, in LeadInput, eventID *uint) (*models.LeadProfile, error) {
	p, err := tx.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		p = &models.LeadProfile{UserID: userID, Status: models.LEAD_STATUS_NEW}
	}
	if v := strings.TrimSpace(in.Phone); v != "" {
		p.Phone = v
	}
	if v := strings.TrimSpace(in.Country); v != "" {
		p.Country = v
	}
	fillEmpty(&p.UTMSource, in.UTMSource)
	fillEmpty(&p.UTMMedium, in.UTMMedium)
	fillEmpty(&p.UTMCampaign, in.UTMCampaign)
	if eventID != nil {
		p.EventID = eventID
	}
	if err := tx.SaveProfile(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) resolveEvent(ctx context.Context, repo Repository, slug string) (*models.Event, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return nil, nil
	}
	e, err := repo.GetEventBySlug(ctx, slug)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrEventNotFound
	}
	return e, err
}

func (s *Service) questionsFor(ctx context.Context, repo Repository, event *models.Event) ([]models.SurveyQuestion, error) {
	var groupID, eventID *uint
	if event != nil {
		groupID = event.EventGroupID
		eventID = &event.ID
	}
	qs, err := repo.ListQuestions(ctx, groupID, eventID)
	if err != nil {
		return nil, err
	}
	SortQuestions(qs)
	return qs, nil
}

var scopeRank = map[string]int{
	models.SURVEY_SCOPE_GLOBAL:      0,
	models.SURVEY_SCOPE_EVENT_GROUP: 1,
	models.SURVEY_SCOPE_EVENT:       2,
}

// SortQuestions orders by scope (global, group, event), then position, then id.
func SortQuestions(qs []models.SurveyQuestion) {
	sort.SliceStable(qs, func(i, j int) bool {
		a, b := qs[i], qs[j]
		if scopeRank[a.Scope] != scopeRank[b.Scope] {
			return scopeRank[a.Scope] < scopeRank[b.Scope]
		}
		if a.Position != b.Position {
			return a.Position < b.Position
		}
		return a.ID < b.ID
	})
}

func checkAnswers(questions []models.SurveyQuestion, answers map[uint]string) error {
	byID := make(map[uint]models.SurveyQuestion, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	for qid, value := range answers {
		q, ok := byID[qid]
		if !ok {
			return fmt.Errorf("%w: %d", ErrUnknownQuestion, qid)
		}
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		switch q.Kind {
		case "number":
			if _, err := strconv.ParseFloat(value, 64); err != nil {
				return fmt.Errorf("%w: question %d expects a number", ErrInvalidAnswer, qid)
			}
		case "choice":
			if !containsOption(q.Options, value) {
				return fmt.Errorf("%w: %q is not an option of question %d", ErrInvalidAnswer, value, qid)
			}
		}
	}

	for _, q := range questions {
		if q.IsRequired && strings.TrimSpace(answers[q.ID]) == "" {
			return fmt.Errorf("%w: %d", ErrMissingAnswer, q.ID)
		}
	}
	return nil
}

func containsOption(raw []byte, value string) bool {
	var options []string
	if len(raw) == 0 || json.Unmarshal(raw, &options) != nil {
		return false
	}
	for _, o := range options {
		if o == value {
			return true
		}
	}
	return false
}

func fillEmpty(dst *string, v string) {
	if *dst == "" {
		*dst = strings.TrimSpace(v)
	}
}

func validTimezone(name string) bool {
	_, err := time.LoadLocation(name)
	return err == nil
}

func (s *Service) publish(ctx context.Context, eventType string, data map[string]interface{}) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(ctx, eventType, data)
}

// LeadPayload is the webhook body for lead events.
func LeadPayload(u *models.User, p *models.LeadProfile) map[string]interface{} {
	data := map[string]interface{}{
		"lead_id":    u.ID,
		"lead_name":  u.Name,
		"lead_email": u.Email,
		"role":       u.Role,
	}
	if p != nil {
		data["status"] = p.Status
		data["phone"] = p.Phone
		data["country"] = p.Country
		data["utm_source"] = p.UTMSource
		data["utm_medium"] = p.UTMMedium
		data["utm_campaign"] = p.UTMCampaign
		data["closer_id"] = p.CloserID
		data["event_id"] = p.EventID
	}
	return data
}
