package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

const INTEGRATION_KIND_WEBHOOK = "webhook"

// Integration is an outbound webhook target. Events holds the subscribed event types;
// an empty list subscribes to everything.
type Integration struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Name      string         `gorm:"type:varchar(120)" json:"name" validate:"required,max=120"`
	Kind      string         `gorm:"type:varchar(20);default:'webhook'" json:"kind" validate:"oneof=webhook"`
	URL       string         `gorm:"type:varchar(500)" json:"url" validate:"required,url,max=500"`
	Secret    string         `gorm:"type:varchar(255)" json:"-"`
	Events    datatypes.JSON `json:"events"`
	Headers   datatypes.JSON `json:"headers"`
	IsActive  bool           `gorm:"default:true;index" json:"is_active"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// EventList decodes the subscribed event types.
func (i *Integration) EventList() []string {
	var events []string
	if len(i.Events) == 0 {
		return events
	}
	_ = json.Unmarshal(i.Events, &events)
	return events
}

// HeaderMap decodes extra request headers.
func (i *Integration) HeaderMap() map[string]string {
	headers := map[string]string{}
	if len(i.Headers) == 0 {
		return headers
	}
	_ = json.Unmarshal(i.Headers, &headers)
	return headers
}

// Subscribes reports whether the integration wants eventType.
func (i *Integration) Subscribes(eventType string) bool {
	events := i.EventList()
	if len(events) == 0 {
		return true
	}
	for _, e := range events {
		if e == eventType || e == "*" {
			return true
		}
	}
	return false
}

// WebhookDelivery logs a single delivery attempt.
type WebhookDelivery struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	IntegrationID uint      `gorm:"index" json:"integration_id"`
	EventID       string    `gorm:"type:varchar(36);index" json:"event_id"`
	EventType     string    `gorm:"type:varchar(60)" json:"event_type"`
	StatusCode    int       `json:"status_code"`
	Error         string    `gorm:"type:text" json:"error"`
	DurationMs    int64     `json:"duration_ms"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}
