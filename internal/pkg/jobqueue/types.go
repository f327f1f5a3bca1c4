package jobqueue

import (
	"encoding/json"
	"fmt"
	"time"
)

type JobType string

// Side effects executed off the request path.
const (
	JobTypeWebhookDelivery   JobType = "webhook_delivery"
	JobTypeCalendarSync      JobType = "calendar_sync"
	JobTypeCalendarDelete    JobType = "calendar_delete"
	JobTypeConfirmationEmail JobType = "confirmation_email"
	JobTypeImportArchive     JobType = "import_archive"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

// Job is the record kept in Redis while a side effect is pending. Payload holds
// the JSON encoding of one of the *Payload types below.
type Job struct {
	ID          string          `json:"id"`
	Type        JobType         `json:"type"`
	Status      JobStatus       `json:"status"`
	Payload     json.RawMessage `json:"payload"`
	Attempts    int             `json:"attempts"`
	MaxRetries  int             `json:"max_retries"`
	LastError   string          `json:"last_error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

type WebhookDeliveryPayload struct {
	IntegrationID uint                   `json:"integration_id"`
	EventID       string                 `json:"event_id"`
	EventType     string                 `json:"event_type"`
	OccurredAt    time.Time              `json:"occurred_at"`
	Data          map[string]interface{} `json:"data"`
}

// CalendarSyncPayload mirrors one appointment to its closer's calendar.
type CalendarSyncPayload struct {
	AppointmentID uint `json:"appointment_id"`
}

type CalendarDeletePayload struct {
	CloserID        uint   `json:"closer_id"`
	CalendarEventID string `json:"calendar_event_id"`
}

type ConfirmationEmailPayload struct {
	AppointmentID uint `json:"appointment_id"`
}

// ImportArchivePayload points at a spooled upload waiting for object storage.
type ImportArchivePayload struct {
	BatchID   uint   `json:"batch_id"`
	LocalPath string `json:"local_path"`
	FileName  string `json:"file_name"`
}

// EncodePayload turns a payload value into the bytes stored with the job. A nil
// payload is stored as an empty object.
func EncodePayload(payload interface{}) (json.RawMessage, error) {
	if payload == nil {
		return json.RawMessage(`{}`), nil
	}
	if raw, ok := payload.(json.RawMessage); ok {
		return raw, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("jobqueue: encode payload: %w", err)
	}
	return data, nil
}

// DecodePayload fills dst from a stored payload.
func DecodePayload(raw json.RawMessage, dst interface{}) error {
	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}
	return json.Unmarshal(raw, dst)
}

func (j *Job) start(now time.Time) {
	j.Status = JobStatusProcessing
	j.Attempts++
	j.StartedAt = &now
	j.UpdatedAt = now
}

func (j *Job) complete(now time.Time) {
	j.Status = JobStatusCompleted
	j.LastError = ""
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// fail records err and reports whether another attempt is allowed. The first
// attempt does not count against MaxRetries.
func (j *Job) fail(now time.Time, err string) bool {
	j.LastError = err
	j.UpdatedAt = now
	if j.Attempts <= j.MaxRetries {
		j.Status = JobStatusRetrying
		return true
	}
	j.Status = JobStatusFailed
	return false
}

// runningSince is when the current attempt started.
func (j *Job) runningSince() time.Time {
	if j.StartedAt != nil && !j.StartedAt.IsZero() {
		return *j.StartedAt
	}
	return j.UpdatedAt
}
