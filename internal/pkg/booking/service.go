// Package booking owns the appointment lifecycle: create, reschedule, status changes
// and deletion, each followed by a lead status recompute.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/closerdesk/closerdesk/app/models"
	"github.com/closerdesk/closerdesk/internal/pkg/funnel"
)

var (
	ErrSlotTaken         = errors.New("slot already taken")
	ErrInvalidStatus     = errors.New("invalid appointment status")
	ErrInvalidTransition = errors.New("appointment can no longer change")
	ErrNotFound          = errors.New("appointment not found")
	ErrLeadNotFound      = errors.New("lead not found")
	ErrCloserNotFound    = errors.New("closer not found")
)

const (
	EventAppointmentCreated       = "appointment.created"
	EventAppointmentUpdated       = "appointment.updated"
	EventAppointmentRescheduled   = "appointment.rescheduled"
	EventAppointmentCanceled      = "appointment.canceled"
	EventAppointmentStatusChanged = "appointment.status_changed"
	EventAppointmentDeleted       = "appointment.deleted"
)

// Publisher sends outbound notifications after a change committed.
type Publisher interface {
	Publish(ctx context.Context, eventType string, data map[string]interface{})
}

// CalendarSync mirrors appointments to the closer's external calendar.
type CalendarSync interface {
	SyncAppointment(appointmentID uint)
	RemoveEvent(closerID uint, calendarEventID string)
}

// Confirmer notifies the lead of a new or moved appointment.
type Confirmer interface {
	ConfirmAppointment(appointmentID uint)
}

type Option func(*Service)

func WithPublisher(p Publisher) Option       { return func(s *Service) { s.publisher = p } }
func WithCalendarSync(c CalendarSync) Option { return func(s *Service) { s.calendar = c } }
func WithConfirmer(c Confirmer) Option       { return func(s *Service) { s.confirmer = c } }

type Service struct {
	repo      Repository
	publisher Publisher
	calendar  CalendarSync
	confirmer Confirmer
	now       func() time.Time
}

func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{repo: repo, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func NewServiceFromDB(db *gorm.DB, opts ...Option) *Service {
	return NewService(NewRepository(db), opts...)
}

type CreateInput struct {
	LeadID   uint
	CloserID uint
	Start    time.Time
	EventID  *uint
	Notes    string
}

type RescheduleInput struct {
	Start    time.Time
	CloserID *uint
	EventID  *uint
	Notes    *string
}

// change is what a committed mutation hands to the post-commit hooks.
type change struct {
	event    string
	appt     models.Appointment
	lead     *models.User
	closer   *models.User
	previous *models.Appointment
	sync     bool
	confirm  bool
	removeID string
}

// Create books a new appointment. An occupied slot returns ErrSlotTaken.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Appointment, error) {
	start := normalize(in.Start)
	var ch change

	err := s.repo.WithTx(ctx, func(tx Repository) error {
		lead, err := tx.GetUser(ctx, in.LeadID)
		if err != nil {
			return notFoundAs(err, ErrLeadNotFound)
		}
		closer, err := tx.GetUser(ctx, in.CloserID)
		if err != nil {
			return notFoundAs(err, ErrCloserNotFound)
		}
		if closer.Role != models.ROLE_CLOSER && closer.Role != models.ROLE_ADMIN {
			return ErrCloserNotFound
		}

		taken, err := tx.SlotTaken(ctx, in.CloserID, start, 0)
		if err != nil {
			return err
		}
		if taken {
			return ErrSlotTaken
		}

		appt := models.Appointment{
			CloserID:  in.CloserID,
			LeadID:    in.LeadID,
			StartTime: start,
			Status:    models.APPOINTMENT_SCHEDULED,
			EventID:   in.EventID,
			Notes:     in.Notes,
		}
		if err := tx.CreateAppointment(ctx, &appt); err != nil {
			return err
		}
		if err := tx.AssignCloserIfEmpty(ctx, in.LeadID, in.CloserID); err != nil {
			return err
		}
		if _, err := funnel.Recompute(ctx, tx, in.LeadID, s.now()); err != nil {
			return err
		}

		ch = change{event: EventAppointmentCreated, appt: appt, lead: lead, closer: closer, sync: true, confirm: true}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, ch)
	return &ch.appt, nil
}

// Reschedule archives the old row and books a new one when the time or closer changes.
// Same time and closer only update notes and event. Only scheduled and confirmed
// appointments can move.
func (s *Service) Reschedule(ctx context.Context, id uint, in RescheduleInput) (*models.Appointment, error) {
	var ch change

	err := s.repo.WithTx(ctx, func(tx Repository) error {
		old, err := tx.GetAppointment(ctx, id)
		if err != nil {
			return notFoundAs(err, ErrNotFound)
		}
		if old.Status == models.APPOINTMENT_RESCHEDULED || old.Status == models.APPOINTMENT_CANCELED {
			return ErrInvalidTransition
		}

		closerID := old.CloserID
		if in.CloserID != nil && *in.CloserID != 0 {
			closerID = *in.CloserID
		}
		start := old.StartTime
		if !in.Start.IsZero() {
			start = normalize(in.Start)
		}

		if start.Equal(old.StartTime) && closerID == old.CloserID {
			if in.Notes != nil {
				old.Notes = *in.Notes
			}
			if in.EventID != nil {
				old.EventID = in.EventID
			}
			if err := tx.SaveAppointment(ctx, old); err != nil {
				return err
			}
			lead, closer := loadParties(ctx, tx, old)
			ch = change{event: EventAppointmentUpdated, appt: *old, lead: lead, closer: closer}
			return nil
		}

		// A held or missed meeting is history; a new booking is a new appointment.
		if old.Status == models.APPOINTMENT_COMPLETED || old.Status == models.APPOINTMENT_NO_SHOW {
			return ErrInvalidTransition
		}

		closer, err := tx.GetUser(ctx, closerID)
		if err != nil {
			return notFoundAs(err, ErrCloserNotFound)
		}
		taken, err := tx.SlotTaken(ctx, closerID, start, old.ID)
		if err != nil {
			return err
		}
		if taken {
			return ErrSlotTaken
		}

		previous := *old
		calendarID := old.CalendarEventID
		old.Status = models.APPOINTMENT_RESCHEDULED
		old.CalendarEventID = ""
		if err := tx.SaveAppointment(ctx, old); err != nil {
			return err
		}

		next := models.Appointment{
			CloserID:          closerID,
			LeadID:            old.LeadID,
			StartTime:         start,
			Status:            models.APPOINTMENT_SCHEDULED,
			EventID:           old.EventID,
			CalendarEventID:   calendarID,
			RescheduledFromID: &old.ID,
			Notes:             old.Notes,
		}
		if in.EventID != nil {
			next.EventID = in.EventID
		}
		if in.Notes != nil {
			next.Notes = *in.Notes
		}
		if err := tx.CreateAppointment(ctx, &next); err != nil {
			return err
		}
		if closerID != previous.CloserID {
			if err := tx.AssignCloserIfEmpty(ctx, next.LeadID, closerID); err != nil {
				return err
			}
		}
		if _, err := funnel.Recompute(ctx, tx, next.LeadID, s.now()); err != nil {
			return err
		}

		lead, _ := loadParties(ctx, tx, &next)
		ch = change{
			event:    EventAppointmentRescheduled,
			appt:     next,
			lead:     lead,
			closer:   closer,
			previous: &previous,
			sync:     true,
			confirm:  true,
		}
		// The carried calendar event belongs to the old closer's calendar.
		if closerID != previous.CloserID && calendarID != "" {
			ch.removeID = calendarID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, ch)
	return &ch.appt, nil
}

// SetStatus moves an appointment to status. Rescheduling goes through Reschedule.
func (s *Service) SetStatus(ctx context.Context, id uint, status string, presentationDelivered *bool) (*models.Appointment, error) {
	if !models.IsAppointmentStatus(status) || status == models.APPOINTMENT_RESCHEDULED {
		return nil, ErrInvalidStatus
	}
	var ch change

	err := s.repo.WithTx(ctx, func(tx Repository) error {
		appt, err := tx.GetAppointment(ctx, id)
		if err != nil {
			return notFoundAs(err, ErrNotFound)
		}
		if appt.Status == models.APPOINTMENT_RESCHEDULED {
			return ErrInvalidTransition
		}

		if !models.OccupiesSlot(appt.Status) && models.OccupiesSlot(status) {
			taken, err := tx.SlotTaken(ctx, appt.CloserID, appt.StartTime, appt.ID)
			if err != nil {
				return err
			}
			if taken {
				return ErrSlotTaken
			}
		}

		appt.Status = status
		if status == models.APPOINTMENT_COMPLETED && presentationDelivered != nil {
			v := *presentationDelivered
			appt.PresentationDelivered = &v
		}

		var removeID string
		if status == models.APPOINTMENT_CANCELED && appt.CalendarEventID != "" {
			removeID = appt.CalendarEventID
			appt.CalendarEventID = ""
		}
		if err := tx.SaveAppointment(ctx, appt); err != nil {
			return err
		}
		if _, err := funnel.Recompute(ctx, tx, appt.LeadID, s.now()); err != nil {
			return err
		}

		event := EventAppointmentStatusChanged
		if status == models.APPOINTMENT_CANCELED {
			event = EventAppointmentCanceled
		}
		lead, closer := loadParties(ctx, tx, appt)
		ch = change{event: event, appt: *appt, lead: lead, closer: closer, removeID: removeID}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, ch)
	return &ch.appt, nil
}

// Delete hard-deletes an appointment (admin correction).
func (s *Service) Delete(ctx context.Context, id uint) error {
	var ch change

	err := s.repo.WithTx(ctx, func(tx Repository) error {
		appt, err := tx.GetAppointment(ctx, id)
		if err != nil {
			return notFoundAs(err, ErrNotFound)
		}
		lead, closer := loadParties(ctx, tx, appt)
		if err := tx.DeleteAppointment(ctx, id); err != nil {
			return err
		}
		if _, err := funnel.Recompute(ctx, tx, appt.LeadID, s.now()); err != nil {
			return err
		}
		ch = change{event: EventAppointmentDeleted, appt: *appt, lead: lead, closer: closer, removeID: appt.CalendarEventID}
		return nil
	})
	if err != nil {
		return err
	}

	s.afterCommit(ctx, ch)
	return nil
}

func (s *Service) Get(ctx context.Context, id uint) (*models.Appointment, error) {
	appt, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, notFoundAs(err, ErrNotFound)
	}
	return appt, nil
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]models.Appointment, error) {
	return s.repo.ListAppointments(ctx, f)
}

// afterCommit runs side effects; their failures are logged by the collaborators and
// never reach the caller.
func (s *Service) afterCommit(ctx context.Context, ch change) {
	if ch.event == "" {
		return
	}
	if s.publisher != nil {
		s.publisher.Publish(ctx, ch.event, AppointmentPayload(ch.appt, ch.lead, ch.closer, ch.previous))
	}
	if s.calendar != nil {
		if ch.removeID != "" {
			closerID := ch.appt.CloserID
			if ch.previous != nil {
				closerID = ch.previous.CloserID
			}
			s.calendar.RemoveEvent(closerID, ch.removeID)
		}
		if ch.sync {
			s.calendar.SyncAppointment(ch.appt.ID)
		}
	}
	if s.confirmer != nil && ch.confirm {
		s.confirmer.ConfirmAppointment(ch.appt.ID)
	}
}

// AppointmentPayload is the webhook data block for appointment events.
func AppointmentPayload(a models.Appointment, lead, closer *models.User, previous *models.Appointment) map[string]interface{} {
	data := map[string]interface{}{
		"appointment_id":      a.ID,
		"status":              a.Status,
		"start_time":          a.StartTime.UTC().Format(time.RFC3339),
		"lead_id":             a.LeadID,
		"closer_id":           a.CloserID,
		"event_id":            a.EventID,
		"rescheduled_from_id": a.RescheduledFromID,
		"notes":               a.Notes,
	}
	if a.PresentationDelivered != nil {
		data["presentation_delivered"] = *a.PresentationDelivered
	}
	if lead != nil {
		data["lead_name"] = lead.Name
		data["lead_email"] = lead.Email
	}
	if closer != nil {
		data["closer_name"] = closer.Name
		data["closer_email"] = closer.Email
	}
	if previous != nil {
		data["previous_start_time"] = previous.StartTime.UTC().Format(time.RFC3339)
		data["previous_closer_id"] = previous.CloserID
	}
	return data
}

func loadParties(ctx context.Context, repo Repository, a *models.Appointment) (*models.User, *models.User) {
	lead, err := repo.GetUser(ctx, a.LeadID)
	if err != nil {
		log.Warnf("[Booking] Could not load lead %d for appointment %d: %v", a.LeadID, a.ID, err)
		lead = nil
	}
	closer, err := repo.GetUser(ctx, a.CloserID)
	if err != nil {
		log.Warnf("[Booking] Could not load closer %d for appointment %d: %v", a.CloserID, a.ID, err)
		closer = nil
	}
	return lead, closer
}

func normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Minute)
}

func notFoundAs(err, target error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return target
	}
	return fmt.Errorf("booking: %w", err)
}
