package repository

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/closerdesk/closerdesk/app/models"
)

type availabilityRepository struct {
	db *gorm.DB
}

// NewAvailabilityRepository creates the availability repository
func NewAvailabilityRepository(db *gorm.DB) AvailabilityRepository {
	return &availabilityRepository{db: db}
}

func (r *availabilityRepository) List(ctx context.Context, closerID uint, from, to time.Time) ([]models.Availability, error) {
	q := r.db.WithContext(ctx).Preload("Closer")
	if closerID != 0 {
		q = q.Where("closer_id = ?", closerID)
	}
	if !from.IsZero() {
		q = q.Where("date >= ?", datatypes.Date(from))
	}
	if !to.IsZero() {
		q = q.Where("date <= ?", datatypes.Date(to))
	}
	var list []models.Availability
	err := q.Order("date ASC, start_time ASC, closer_id ASC").Find(&list).Error
	return list, err
}

func (r *availabilityRepository) GetByID(ctx context.Context, id uint) (*models.Availability, error) {
	var a models.Availability
	if err := r.db.WithContext(ctx).First(&a, id).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateMany inserts all windows or none
func (r *availabilityRepository) CreateMany(ctx context.Context, windows []models.Availability) error {
	if len(windows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Omit("Closer").Create(&windows).Error
	})
}

func (r *availabilityRepository) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&models.Availability{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
