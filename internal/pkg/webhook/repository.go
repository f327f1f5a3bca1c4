package webhook

import (
	"context"

	"gorm.io/gorm"

	"github.com/closerdesk/closerdesk/app/models"
)

type Repository interface {
	ListActiveIntegrations(ctx context.Context) ([]models.Integration, error)
	GetIntegration(ctx context.Context, id uint) (*models.Integration, error)
	LogDelivery(ctx context.Context, d *models.WebhookDelivery) error
	ListDeliveries(ctx context.Context, integrationID uint, limit int) ([]models.WebhookDelivery, error)
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) ListActiveIntegrations(ctx context.Context) ([]models.Integration, error) {
	var list []models.Integration
	err := r.db.WithContext(ctx).
		Where("is_active = ? AND kind = ?", true, models.INTEGRATION_KIND_WEBHOOK).
		Order("id ASC").
		Find(&list).Error
	return list, err
}

func (r *gormRepository) GetIntegration(ctx context.Context, id uint) (*models.Integration, error) {
	var in models.Integration
	if err := r.db.WithContext(ctx).First(&in, id).Error; err != nil {
		return nil, err
	}
	return &in, nil
}

func (r *gormRepository) LogDelivery(ctx context.Context, d *models.WebhookDelivery) error {
	return r.db.WithContext(ctx).Create(d).Error
}

func (r *gormRepository) ListDeliveries(ctx context.Context, integrationID uint, limit int) ([]models.WebhookDelivery, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var list []models.WebhookDelivery
	err := r.db.WithContext(ctx).
		Where("integration_id = ?", integrationID).
		Order("created_at DESC").
		Limit(limit).
		Find(&list).Error
	return list, err
}
