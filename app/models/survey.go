package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	SURVEY_SCOPE_GLOBAL      = "global"
	SURVEY_SCOPE_EVENT_GROUP = "event_group"
	SURVEY_SCOPE_EVENT       = "event"
)

type SurveyQuestion struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	Scope        string         `gorm:"type:varchar(20);default:'global';index" json:"scope" validate:"oneof=global event_group event"`
	EventGroupID *uint          `gorm:"index" json:"event_group_id"`
	EventID      *uint          `gorm:"index" json:"event_id"`
	Text         string         `gorm:"type:varchar(500)" json:"text" validate:"required,max=500"`
	Kind         string         `gorm:"type:varchar(20);default:'text'" json:"kind" validate:"oneof=text choice number"`
	Options      datatypes.JSON `json:"options"`
	Position     int            `gorm:"default:0" json:"position"`
	IsRequired   bool           `gorm:"default:false" json:"is_required"`
	IsActive     bool           `gorm:"default:true" json:"is_active"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

type SurveyAnswer struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	LeadID     uint      `gorm:"uniqueIndex:idx_survey_answer_lead_question" json:"lead_id"`
	QuestionID uint      `gorm:"uniqueIndex:idx_survey_answer_lead_question" json:"question_id"`
	Value      string    `gorm:"type:text" json:"value"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type EventGroup struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(150)" json:"name" validate:"required,max=150"`
	Slug      string    `gorm:"type:varchar(150);uniqueIndex" json:"slug" validate:"required,max=150"`
	IsActive  bool      `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type Event struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	EventGroupID *uint     `gorm:"index" json:"event_group_id"`
	Name         string    `gorm:"type:varchar(150)" json:"name" validate:"required,max=150"`
	Slug         string    `gorm:"type:varchar(150);uniqueIndex" json:"slug" validate:"required,max=150"`
	IsActive     bool      `gorm:"default:true" json:"is_active"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
