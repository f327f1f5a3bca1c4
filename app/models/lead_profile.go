package models

import "time"

const (
	LEAD_STATUS_NEW       = "new"
	LEAD_STATUS_PENDING   = "pending"
	LEAD_STATUS_AGENDA    = "agenda"
	LEAD_STATUS_COMPLETED = "completed"
	LEAD_STATUS_RENEWED   = "renewed"
)

// LeadProfile holds funnel data for a lead or student. Status is a derived cache
// recomputed after every booking and ledger mutation.
type LeadProfile struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      uint      `gorm:"uniqueIndex" json:"user_id"`
	Phone       string    `gorm:"type:varchar(40);default:null" json:"phone" validate:"omitempty,max=40"`
	Country     string    `gorm:"type:varchar(80);default:null" json:"country" validate:"omitempty,max=80"`
	Status      string    `gorm:"type:varchar(20);default:'new';index" json:"status" validate:"omitempty,oneof=new pending agenda completed renewed"`
	UTMSource   string    `gorm:"type:varchar(120);default:null" json:"utm_source"`
	UTMMedium   string    `gorm:"type:varchar(120);default:null" json:"utm_medium"`
	UTMCampaign string    `gorm:"type:varchar(120);default:null" json:"utm_campaign"`
	CloserID    *uint     `gorm:"index" json:"closer_id"`
	EventID     *uint     `gorm:"index" json:"event_id"`
	Notes       string    `gorm:"type:text" json:"notes"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsCompletedStatus treats renewed as the renewal sub-state of completed.
func IsCompletedStatus(status string) bool {
	return status == LEAD_STATUS_COMPLETED || status == LEAD_STATUS_RENEWED
}
