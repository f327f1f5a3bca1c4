package models

import (
	"time"

	"gorm.io/datatypes"
)

type Expense struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Description string    `gorm:"type:varchar(255)" json:"description" validate:"required,max=255"`
	Category    string    `gorm:"type:varchar(80);index" json:"category" validate:"max=80"`
	Amount      float64   `gorm:"type:decimal(12,2)" json:"amount" validate:"gt=0"`
	SpentAt     time.Time `gorm:"index" json:"spent_at"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// RecurringExpense is charged once per month on DayOfMonth, starting at StartsOn.
type RecurringExpense struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Description string         `gorm:"type:varchar(255)" json:"description" validate:"required,max=255"`
	Category    string         `gorm:"type:varchar(80)" json:"category" validate:"max=80"`
	Amount      float64        `gorm:"type:decimal(12,2)" json:"amount" validate:"gt=0"`
	DayOfMonth  int            `gorm:"default:1" json:"day_of_month" validate:"min=1,max=31"`
	StartsOn    datatypes.Date `json:"starts_on"`
	IsActive    bool           `gorm:"default:true" json:"is_active"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}
