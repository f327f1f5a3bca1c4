package booking

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/closerdesk/closerdesk/app/models"
	"github.com/closerdesk/closerdesk/internal/pkg/database"
	"github.com/closerdesk/closerdesk/internal/pkg/funnel"
)

// ListFilter narrows an appointment listing. Zero values are ignored.
type ListFilter struct {
	From     time.Time
	To       time.Time
	CloserID uint
	LeadID   uint
	Status   string
	Limit    int
	Offset   int
}

// Repository is the persistence the lifecycle needs. WithTx runs fn against a
// transaction-bound repository; an error rolls everything back.
type Repository interface {
	funnel.Store
	WithTx(ctx context.Context, fn func(tx Repository) error) error
	GetUser(ctx context.Context, id uint) (*models.User, error)
	GetAppointment(ctx context.Context, id uint) (*models.Appointment, error)
	ListAppointments(ctx context.Context, f ListFilter) ([]models.Appointment, error)
	SlotTaken(ctx context.Context, closerID uint, start time.Time, excludeID uint) (bool, error)
	CreateAppointment(ctx context.Context, a *models.Appointment) error
	SaveAppointment(ctx context.Context, a *models.Appointment) error
	DeleteAppointment(ctx context.Context, id uint) error
	AssignCloserIfEmpty(ctx context.Context, leadID, closerID uint) error
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

func (r *gormRepository) GetUser(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	if err := r.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *gormRepository) GetAppointment(ctx context.Context, id uint) (*models.Appointment, error) {
	var a models.Appointment
	if err := r.db.WithContext(ctx).First(&a, id).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *gormRepository) ListAppointments(ctx context.Context, f ListFilter) ([]models.Appointment, error) {
	q := r.db.WithContext(ctx).Model(&models.Appointment{}).
		Preload("Lead").Preload("Closer").
		Order("start_time ASC")
	if !f.From.IsZero() {
		q = q.Where("start_time >= ?", f.From.UTC())
	}
	if !f.To.IsZero() {
		q = q.Where("start_time < ?", f.To.UTC())
	}
	if f.CloserID != 0 {
		q = q.Where("closer_id = ?", f.CloserID)
	}
	if f.LeadID != 0 {
		q = q.Where("lead_id = ?", f.LeadID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit).Offset(f.Offset)
	}

	var appts []models.Appointment
	err := q.Find(&appts).Error
	return appts, err
}

func (r *gormRepository) SlotTaken(ctx context.Context, closerID uint, start time.Time, excludeID uint) (bool, error) {
	q := r.db.WithContext(ctx).Model(&models.Appointment{}).
		Where("closer_id = ? AND start_time = ? AND status NOT IN ?", closerID, start.UTC(),
			models.SlotFreeingStatuses)
	if excludeID != 0 {
		q = q.Where("id <> ?", excludeID)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *gormRepository) CreateAppointment(ctx context.Context, a *models.Appointment) error {
	a.SyncSlotKey()
	err := r.db.WithContext(ctx).Create(a).Error
	if database.IsDuplicateKey(err) {
		return ErrSlotTaken
	}
	return err
}

func (r *gormRepository) SaveAppointment(ctx context.Context, a *models.Appointment) error {
	a.SyncSlotKey()
	err := r.db.WithContext(ctx).Omit("Lead", "Closer").Save(a).Error
	if database.IsDuplicateKey(err) {
		return ErrSlotTaken
	}
	return err
}

func (r *gormRepository) DeleteAppointment(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.Appointment{}, id).Error
}

func (r *gormRepository) AssignCloserIfEmpty(ctx context.Context, leadID, closerID uint) error {
	var profile models.LeadProfile
	err := r.db.WithContext(ctx).Where("user_id = ?", leadID).
		Attrs(models.LeadProfile{Status: models.LEAD_STATUS_NEW}).
		FirstOrCreate(&profile).Error
	if err != nil {
		return err
	}
	if profile.CloserID != nil {
		return nil
	}
	return r.db.WithContext(ctx).Model(&profile).Update("closer_id", closerID).Error
}
