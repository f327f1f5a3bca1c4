package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/closerdesk/closerdesk/app/models"
)

// catalogRepository implements CatalogRepository for any GORM model with a uint id
type catalogRepository[T any] struct {
	db    *gorm.DB
	order string
}

// NewCatalogRepository creates a CRUD repository listing rows in the given order
func NewCatalogRepository[T any](db *gorm.DB, order string) CatalogRepository[T] {
	return &catalogRepository[T]{db: db, order: order}
}

func (r *catalogRepository[T]) List(ctx context.Context) ([]T, error) {
	var items []T
	q := r.db.WithContext(ctx)
	if r.order != "" {
		q = q.Order(r.order)
	}
	err := q.Find(&items).Error
	return items, err
}

func (r *catalogRepository[T]) GetByID(ctx context.Context, id uint) (*T, error) {
	var item T
	if err := r.db.WithContext(ctx).First(&item, id).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *catalogRepository[T]) Create(ctx context.Context, item *T) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *catalogRepository[T]) Update(ctx context.Context, item *T) error {
	return r.db.WithContext(ctx).Save(item).Error
}

// Delete removes a row; a missing id is reported as gorm.ErrRecordNotFound
func (r *catalogRepository[T]) Delete(ctx context.Context, id uint) error {
	var item T
	res := r.db.WithContext(ctx).Delete(&item, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

type expenseRepository struct {
	CatalogRepository[models.Expense]
	db *gorm.DB
}

// NewExpenseRepository creates the expense repository
func NewExpenseRepository(db *gorm.DB) ExpenseRepository {
	return &expenseRepository{
		CatalogRepository: NewCatalogRepository[models.Expense](db, "spent_at DESC, id DESC"),
		db:                db,
	}
}

// ListBetween returns expenses with spent_at in [from, to)
func (r *expenseRepository) ListBetween(ctx context.Context, from, to time.Time) ([]models.Expense, error) {
	var items []models.Expense
	err := r.db.WithContext(ctx).
		Where("spent_at >= ? AND spent_at < ?", from.UTC(), to.UTC()).
		Order("spent_at DESC, id DESC").
		Find(&items).Error
	return items, err
}
