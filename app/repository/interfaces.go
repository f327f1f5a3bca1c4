package repository

import (
	"context"
	"time"

	"github.com/closerdesk/closerdesk/app/models"
)

// StaffFilter narrows the staff listing. Zero values are ignored.
type StaffFilter struct {
	Role   string
	Search string
	Offset int
	Limit  int
}

// UserRepository defines the back-office operations on staff accounts
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id uint) error
	ListStaff(ctx context.Context, f StaffFilter) ([]models.User, int64, error)
}

// CatalogRepository is the plain CRUD surface shared by the admin-managed tables
// (programs, payment methods, events, survey questions, expenses, integrations).
type CatalogRepository[T any] interface {
	List(ctx context.Context) ([]T, error)
	GetByID(ctx context.Context, id uint) (*T, error)
	Create(ctx context.Context, item *T) error
	Update(ctx context.Context, item *T) error
	Delete(ctx context.Context, id uint) error
}

// ExpenseRepository adds a date-range listing to the expense catalog
type ExpenseRepository interface {
	CatalogRepository[models.Expense]
	ListBetween(ctx context.Context, from, to time.Time) ([]models.Expense, error)
}

// AvailabilityRepository defines the operations on closer availability windows
type AvailabilityRepository interface {
	// List returns windows whose date lies in [from, to]; closerID 0 lists every closer.
	List(ctx context.Context, closerID uint, from, to time.Time) ([]models.Availability, error)
	GetByID(ctx context.Context, id uint) (*models.Availability, error)
	CreateMany(ctx context.Context, windows []models.Availability) error
	Delete(ctx context.Context, id uint) error
}
