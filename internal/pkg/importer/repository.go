package importer

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/closerdesk/closerdesk/app/models"
)

// Repository resolves references by name and keeps the batch audit trail.
type Repository interface {
	FindProgramByName(ctx context.Context, name string) (*models.Program, error)
	FindPaymentMethodByName(ctx context.Context, name string) (*models.PaymentMethod, error)
	FindEventByName(ctx context.Context, name string) (*models.Event, error)
	FindCloserByEmail(ctx context.Context, email string) (*models.User, error)
	ReferenceExists(ctx context.Context, ref string, id uint) (bool, error)

	CreateProgram(ctx context.Context, p *models.Program) error
	CreatePaymentMethod(ctx context.Context, m *models.PaymentMethod) error
	CreateEvent(ctx context.Context, e *models.Event) error

	CreateBatch(ctx context.Context, b *models.ImportBatch) error
	SetArchivedKey(ctx context.Context, batchID uint, key string) error
	ListBatches(ctx context.Context, limit int) ([]models.ImportBatch, error)
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

// first returns (nil, nil) when nothing matches.
func first[T any](q *gorm.DB) (*T, error) {
	var out T
	err := q.First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *gormRepository) FindProgramByName(ctx context.Context, name string) (*models.Program, error) {
	return first[models.Program](r.db.WithContext(ctx).Where("LOWER(name) = ?", refKey(name)))
}

func (r *gormRepository) FindPaymentMethodByName(ctx context.Context, name string) (*models.PaymentMethod, error) {
	return first[models.PaymentMethod](r.db.WithContext(ctx).Where("LOWER(name) = ?", refKey(name)))
}

// FindEventByName matches the slug or the display name.
func (r *gormRepository) FindEventByName(ctx context.Context, name string) (*models.Event, error) {
	key := refKey(name)
	return first[models.Event](r.db.WithContext(ctx).Where("LOWER(slug) = ? OR LOWER(name) = ?", key, key))
}

func (r *gormRepository) FindCloserByEmail(ctx context.Context, email string) (*models.User, error) {
	return first[models.User](r.db.WithContext(ctx).
		Where("email = ? AND role IN ?", models.NormalizeEmail(email), []string{models.ROLE_CLOSER, models.ROLE_ADMIN}))
}

func (r *gormRepository) ReferenceExists(ctx context.Context, ref string, id uint) (bool, error) {
	q := r.db.WithContext(ctx)
	switch ref {
	case RefProgram:
		q = q.Model(&models.Program{})
	case RefPaymentMethod:
		q = q.Model(&models.PaymentMethod{})
	case RefEvent:
		q = q.Model(&models.Event{})
	case RefCloser:
		q = q.Model(&models.User{}).Where("role IN ?", []string{models.ROLE_CLOSER, models.ROLE_ADMIN})
	default:
		return false, nil
	}
	var n int64
	err := q.Where("id = ?", id).Count(&n).Error
	return n > 0, err
}

func (r *gormRepository) CreateProgram(ctx context.Context, p *models.Program) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *gormRepository) CreatePaymentMethod(ctx context.Context, m *models.PaymentMethod) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *gormRepository) CreateEvent(ctx context.Context, e *models.Event) error {
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *gormRepository) CreateBatch(ctx context.Context, b *models.ImportBatch) error {
	return r.db.WithContext(ctx).Create(b).Error
}

func (r *gormRepository) SetArchivedKey(ctx context.Context, batchID uint, key string) error {
	return r.db.WithContext(ctx).Model(&models.ImportBatch{}).
		Where("id = ?", batchID).Update("archived_key", key).Error
}

func (r *gormRepository) ListBatches(ctx context.Context, limit int) ([]models.ImportBatch, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var batches []models.ImportBatch
	err := r.db.WithContext(ctx).Order("created_at DESC, id DESC").Limit(limit).Find(&batches).Error
	return batches, err
}

func slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
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
