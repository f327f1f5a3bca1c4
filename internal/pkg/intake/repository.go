package intake

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/closerdesk/closerdesk/app/models"
	"github.com/closerdesk/closerdesk/internal/pkg/funnel"
)

// LeadFilter narrows the staff lead listing. Zero values are ignored.
type LeadFilter struct {
	Search   string
	Status   string
	CloserID uint
	EventID  uint
	Limit    int
	Offset   int
}

type Repository interface {
	funnel.Store
	WithTx(ctx context.Context, fn func(tx Repository) error) error
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetLead(ctx context.Context, id uint) (*models.User, error)
	ListLeads(ctx context.Context, f LeadFilter) ([]models.User, int64, error)
	CreateUser(ctx context.Context, u *models.User) error
	SaveUser(ctx context.Context, u *models.User) error
	DeleteUser(ctx context.Context, id uint) error
	// GetProfile returns nil, nil when the user has no profile yet.
	GetProfile(ctx context.Context, userID uint) (*models.LeadProfile, error)
	SaveProfile(ctx context.Context, p *models.LeadProfile) error
	GetEventBySlug(ctx context.Context, slug string) (*models.Event, error)
	ListQuestions(ctx context.Context, groupID, eventID *uint) ([]models.SurveyQuestion, error)
	UpsertAnswer(ctx context.Context, a *models.SurveyAnswer) error
	ListAnswers(ctx context.Context, leadID uint) ([]models.SurveyAnswer, error)
}

type gormRepository struct {
	funnel.Store
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{Store: funnel.NewGormStore(db), db: db}
}

func (r *gormRepository) WithTx(ctx context.Context, fn func(tx Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepository(tx))
	})
}

func (r *gormRepository) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).Where("LOWER(email) = ?", models.NormalizeEmail(email)).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *gormRepository) GetLead(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).Preload("LeadProfile").
		Where("role IN ?", []string{models.ROLE_LEAD, models.ROLE_STUDENT}).
		First(&u, id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *gormRepository) ListLeads(ctx context.Context, f LeadFilter) ([]models.User, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.User{}).
		Joins("LEFT JOIN lead_profiles ON lead_profiles.user_id = users.id").
		Where("users.role IN ?", []string{models.ROLE_LEAD, models.ROLE_STUDENT})
	if s := strings.TrimSpace(f.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		q = q.Where("LOWER(users.name) LIKE ? OR LOWER(users.email) LIKE ? OR lead_profiles.phone LIKE ?", like, like, like)
	}
	if f.Status != "" {
		q = q.Where("lead_profiles.status = ?", f.Status)
	}
	if f.CloserID > 0 {
		q = q.Where("lead_profiles.closer_id = ?", f.CloserID)
	}
	if f.EventID > 0 {
		q = q.Where("lead_profiles.event_id = ?", f.EventID)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var users []models.User
	err := q.Preload("LeadProfile").
		Order("users.created_at DESC").
		Limit(limit).Offset(f.Offset).
		Find(&users).Error
	return users, total, err
}

func (r *gormRepository) CreateUser(ctx context.Context, u *models.User) error {
	return r.db.WithContext(ctx).Omit("LeadProfile").Create(u).Error
}

func (r *gormRepository) SaveUser(ctx context.Context, u *models.User) error {
	return r.db.WithContext(ctx).Omit("LeadProfile").Save(u).Error
}

func (r *gormRepository) DeleteUser(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.User{}, id).Error
}

func (r *gormRepository) GetProfile(ctx context.Context, userID uint) (*models.LeadProfile, error) {
	var p models.LeadProfile
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) SaveProfile(ctx context.Context, p *models.LeadProfile) error {
	return r.db.WithContext(ctx).Save(p).Error
}

func (r *gormRepository) GetEventBySlug(ctx context.Context, slug string) (*models.Event, error) {
	var e models.Event
	if err := r.db.WithContext(ctx).Where("slug = ? AND is_active = ?", slug, true).First(&e).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *gormRepository) ListQuestions(ctx context.Context, groupID, eventID *uint) ([]models.SurveyQuestion, error) {
	scope := r.db.Where("scope = ?", models.SURVEY_SCOPE_GLOBAL)
	if groupID != nil {
		scope = scope.Or("scope = ? AND event_group_id = ?", models.SURVEY_SCOPE_EVENT_GROUP, *groupID)
	}
	if eventID != nil {
		scope = scope.Or("scope = ? AND event_id = ?", models.SURVEY_SCOPE_EVENT, *eventID)
	}

	var qs []models.SurveyQuestion
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Where(scope).
		Order("position ASC, id ASC").
		Find(&qs).Error
	return qs, err
}

func (r *gormRepository) UpsertAnswer(ctx context.Context, a *models.SurveyAnswer) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "lead_id"}, {Name: "question_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(a).Error
}

func (r *gormRepository) ListAnswers(ctx context.Context, leadID uint) ([]models.SurveyAnswer, error) {
	var answers []models.SurveyAnswer
	err := r.db.WithContext(ctx).Where("lead_id = ?", leadID).Order("question_id ASC").Find(&answers).Error
	return answers, err
}
