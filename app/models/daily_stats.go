package models

import (
	"time"

	"gorm.io/datatypes"
)

// CloserDailyStats is one closer's KPI sheet for a day, self-reported numbers merged
// with values computed from appointments and sales.
type CloserDailyStats struct {
	ID                    uint           `gorm:"primaryKey" json:"id"`
	CloserID              uint           `gorm:"uniqueIndex:idx_closer_daily" json:"closer_id"`
	Date                  datatypes.Date `gorm:"uniqueIndex:idx_closer_daily" json:"date"`
	CallsMade             int            `json:"calls_made"`
	AppointmentsBooked    int            `json:"appointments_booked"`
	AppointmentsCompleted int            `json:"appointments_completed"`
	NoShows               int            `json:"no_shows"`
	Presentations         int            `json:"presentations"`
	SalesCount            int            `json:"sales_count"`
	Revenue               float64        `gorm:"type:decimal(12,2)" json:"revenue"`
	Notes                 string         `gorm:"type:text" json:"notes"`
	CreatedAt             time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time      `gorm:"autoUpdateTime" json:"updated_at"`

	Answers []DailyReportAnswer `gorm:"foreignKey:CloserDailyStatsID" json:"answers,omitempty"`
}

type DailyReportAnswer struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	CloserDailyStatsID uint      `gorm:"index" json:"closer_daily_stats_id"`
	Question           string    `gorm:"type:varchar(500)" json:"question"`
	Answer             string    `gorm:"type:text" json:"answer"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
}
