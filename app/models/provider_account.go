package models

import "time"

const (
	PROVIDER_GOOGLE          = "google"
	PROVIDER_GOOGLE_CALENDAR = "google_calendar"
)

// ProviderAccount stores external OAuth provider identities linked to a user.
// Calendar links keep their tokens here; refreshed tokens are written back.
type ProviderAccount struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	UserID         uint       `gorm:"index" json:"user_id"`
	Provider       string     `gorm:"index:provider_uid,unique;type:varchar(50)" json:"provider"`
	ProviderUserID string     `gorm:"index:provider_uid,unique;type:varchar(191)" json:"provider_user_id"`
	AccessToken    string     `gorm:"type:text" json:"-"`
	RefreshToken   string     `gorm:"type:text" json:"-"`
	TokenType      string     `gorm:"type:varchar(20);default:null" json:"-"`
	ExpiresAt      *time.Time `gorm:"type:timestamp;default:null" json:"expires_at,omitempty"`
	CalendarID     string     `gorm:"type:varchar(255);default:null" json:"calendar_id"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
