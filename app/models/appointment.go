package models

import (
	"fmt"
	"time"
)

const (
	APPOINTMENT_SCHEDULED   = "scheduled"
	APPOINTMENT_CONFIRMED   = "confirmed"
	APPOINTMENT_COMPLETED   = "completed"
	APPOINTMENT_CANCELED    = "canceled"
	APPOINTMENT_NO_SHOW     = "no_show"
	APPOINTMENT_RESCHEDULED = "rescheduled"
)

// Appointment is a booked call between a closer and a lead. StartTime is stored in UTC.
// SlotKey is non-null only while the row occupies its closer's slot; the unique index
// on it closes the double-booking race at the storage layer.
type Appointment struct {
	ID                    uint      `gorm:"primaryKey" json:"id"`
	CloserID              uint      `gorm:"index:idx_appointment_closer_start" json:"closer_id"`
	LeadID                uint      `gorm:"index" json:"lead_id"`
	StartTime             time.Time `gorm:"index:idx_appointment_closer_start" json:"start_time"`
	Status                string    `gorm:"type:varchar(20);default:'scheduled';index" json:"status"`
	PresentationDelivered *bool     `json:"presentation_delivered"`
	EventID               *uint     `gorm:"index" json:"event_id"`
	CalendarEventID       string    `gorm:"type:varchar(255);default:null" json:"calendar_event_id"`
	RescheduledFromID     *uint     `gorm:"index" json:"rescheduled_from_id"`
	SlotKey               *string   `gorm:"type:varchar(64);uniqueIndex" json:"-"`
	Notes                 string    `gorm:"type:text" json:"notes"`
	CreatedAt             time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	Closer *User `gorm:"foreignKey:CloserID" json:"closer,omitempty"`
	Lead   *User `gorm:"foreignKey:LeadID" json:"lead,omitempty"`
}

// AppointmentStatuses lists every status an appointment may be set to.
var AppointmentStatuses = []string{
	APPOINTMENT_SCHEDULED,
	APPOINTMENT_CONFIRMED,
	APPOINTMENT_COMPLETED,
	APPOINTMENT_CANCELED,
	APPOINTMENT_NO_SHOW,
	APPOINTMENT_RESCHEDULED,
}

func IsAppointmentStatus(s string) bool {
	for _, v := range AppointmentStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// SlotFreeingStatuses release the closer's slot; every other status holds it.
var SlotFreeingStatuses = []string{APPOINTMENT_CANCELED, APPOINTMENT_RESCHEDULED}

// OccupiesSlot reports whether an appointment in this status blocks its closer's slot.
func OccupiesSlot(status string) bool {
	for _, s := range SlotFreeingStatuses {
		if s == status {
			return false
		}
	}
	return true
}

// BuildSlotKey identifies a closer's slot at minute precision.
func BuildSlotKey(closerID uint, start time.Time) string {
	return fmt.Sprintf("%d:%d", closerID, start.UTC().Truncate(time.Minute).Unix())
}

// SyncSlotKey sets or clears SlotKey from the current closer, start and status.
func (a *Appointment) SyncSlotKey() {
	if !OccupiesSlot(a.Status) {
		a.SlotKey = nil
		return
	}
	key := BuildSlotKey(a.CloserID, a.StartTime)
	a.SlotKey = &key
}

// IsUpcoming reports a scheduled or confirmed appointment starting after now.
func (a *Appointment) IsUpcoming(now time.Time) bool {
	return (a.Status == APPOINTMENT_SCHEDULED || a.Status == APPOINTMENT_CONFIRMED) && a.StartTime.After(now)
}
