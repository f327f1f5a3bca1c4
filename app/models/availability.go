package models

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// Availability is a closer's bookable window on a local calendar date. StartTime and
// EndTime are wall-clock "HH:MM" values in the closer's timezone.
type Availability struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	CloserID  uint           `gorm:"index:idx_availability_closer_date" json:"closer_id"`
	Date      datatypes.Date `gorm:"index:idx_availability_closer_date" json:"date"`
	StartTime string         `gorm:"type:varchar(5)" json:"start_time" validate:"required,len=5"`
	EndTime   string         `gorm:"type:varchar(5)" json:"end_time" validate:"required,len=5"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`

	Closer *User `gorm:"foreignKey:CloserID" json:"closer,omitempty"`
}

// ParseClock parses "HH:MM" into hours and minutes.
func ParseClock(v string) (int, int, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time of day %q: %w", v, err)
	}
	return t.Hour(), t.Minute(), nil
}

// DateOnly returns the calendar date of the availability as a naive UTC midnight.
func (a *Availability) DateOnly() time.Time {
	t := time.Time(a.Date)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
