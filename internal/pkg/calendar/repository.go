package calendar

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/closerdesk/closerdesk/app/models"
)

type Repository interface {
	// GetAccount returns ErrNotLinked when the user has no calendar link.
	GetAccount(ctx context.Context, userID uint) (*models.ProviderAccount, error)
	SaveAccount(ctx context.Context, acct *models.ProviderAccount) error
	DeleteAccount(ctx context.Context, userID uint) error
	GetAppointment(ctx context.Context, id uint) (*models.Appointment, error)
	SetCalendarEventID(ctx context.Context, appointmentID uint, eventID string) error
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetAccount(ctx context.Context, userID uint) (*models.ProviderAccount, error) {
	var acct models.ProviderAccount
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND provider = ?", userID, models.PROVIDER_GOOGLE_CALENDAR).
		First(&acct).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotLinked
	}
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

func (r *gormRepository) SaveAccount(ctx context.Context, acct *models.ProviderAccount) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "provider"}, {Name: "provider_user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"user_id", "access_token", "refresh_token", "token_type", "expires_at", "calendar_id", "updated_at",
		}),
	}).Create(acct).Error
}

func (r *gormRepository) DeleteAccount(ctx context.Context, userID uint) error {
	return r.db.WithContext(ctx).
		Where("user_id = ? AND provider = ?", userID, models.PROVIDER_GOOGLE_CALENDAR).
		Delete(&models.ProviderAccount{}).Error
}

func (r *gormRepository) GetAppointment(ctx context.Context, id uint) (*models.Appointment, error) {
	var a models.Appointment
	if err := r.db.WithContext(ctx).Preload("Lead").Preload("Closer").First(&a, id).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *gormRepository) SetCalendarEventID(ctx context.Context, appointmentID uint, eventID string) error {
	var value interface{} = eventID
	if eventID == "" {
		value = gorm.Expr("NULL")
	}
	return r.db.WithContext(ctx).Model(&models.Appointment{}).
		Where("id = ?", appointmentID).
		Update("calendar_event_id", value).Error
}
