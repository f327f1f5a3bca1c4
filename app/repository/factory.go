package repository

import (
	"sync"

	"gorm.io/gorm"

	"github.com/closerdesk/closerdesk/app/models"
)

// Repositories bundles what the controllers read and write directly. Domain
// services keep their own repositories.
type Repositories struct {
	User             UserRepository
	Program          CatalogRepository[models.Program]
	PaymentMethod    CatalogRepository[models.PaymentMethod]
	EventGroup       CatalogRepository[models.EventGroup]
	Event            CatalogRepository[models.Event]
	SurveyQuestion   CatalogRepository[models.SurveyQuestion]
	Expense          ExpenseRepository
	RecurringExpense CatalogRepository[models.RecurringExpense]
	Integration      CatalogRepository[models.Integration]
	Availability     AvailabilityRepository
}

func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:             NewUserRepository(db),
		Program:          NewCatalogRepository[models.Program](db, "name ASC"),
		PaymentMethod:    NewCatalogRepository[models.PaymentMethod](db, "name ASC"),
		EventGroup:       NewCatalogRepository[models.EventGroup](db, "name ASC"),
		Event:            NewCatalogRepository[models.Event](db, "name ASC"),
		SurveyQuestion:   NewCatalogRepository[models.SurveyQuestion](db, "scope ASC, position ASC, id ASC"),
		Expense:          NewExpenseRepository(db),
		RecurringExpense: NewCatalogRepository[models.RecurringExpense](db, "day_of_month ASC, id ASC"),
		Integration:      NewCatalogRepository[models.Integration](db, "name ASC"),
		Availability:     NewAvailabilityRepository(db),
	}
}

var (
	global     *Repositories
	globalOnce sync.Once
)

// InitializeFactory builds the process-wide repositories once; later calls are
// ignored.
func InitializeFactory(db *gorm.DB) {
	globalOnce.Do(func() {
		global = NewRepositories(db)
	})
}

// GetGlobalRepositories panics when InitializeFactory has not run.
func GetGlobalRepositories() *Repositories {
	if global == nil {
		panic("repository: InitializeFactory must be called first")
	}
	return global
}
