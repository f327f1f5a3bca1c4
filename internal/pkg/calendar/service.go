package calendar

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"golang.org/x/oauth2"
	"gorm.io/gorm"

	"github.com/closerdesk/closerdesk/app/models"
	"github.com/closerdesk/closerdesk/internal/pkg/jobqueue"
)

// syncRetries bounds how often a failed calendar job is retried.
const syncRetries = 3

// Dispatcher queues a job; *jobqueue.Manager implements it.
type Dispatcher interface {
	DispatchWithRetries(ctx context.Context, jobType jobqueue.JobType, payload interface{}, maxRetries int)
}

type Service struct {
	repo        Repository
	provider    Provider
	dispatcher  Dispatcher
	eventLength time.Duration
}

func NewService(repo Repository, provider Provider, dispatcher Dispatcher, eventLength time.Duration) *Service {
	if eventLength <= 0 {
		eventLength = time.Hour
	}
	return &Service{repo: repo, provider: provider, dispatcher: dispatcher, eventLength: eventLength}
}

func NewServiceFromDB(db *gorm.DB, dispatcher Dispatcher, eventLength time.Duration) *Service {
	return NewService(NewRepository(db), NewGoogleProviderFromEnv(), dispatcher, eventLength)
}

func (s *Service) RegisterJobs() {
	jobqueue.Register(jobqueue.JobTypeCalendarSync, func(ctx context.Context, job *jobqueue.Job) error {
		var p jobqueue.CalendarSyncPayload
		if err := jobqueue.DecodePayload(job.Payload, &p); err != nil {
			return fmt.Errorf("decode calendar sync payload: %w", err)
		}
		return s.Sync(ctx, p.AppointmentID)
	})
	jobqueue.Register(jobqueue.JobTypeCalendarDelete, func(ctx context.Context, job *jobqueue.Job) error {
		var p jobqueue.CalendarDeletePayload
		if err := jobqueue.DecodePayload(job.Payload, &p); err != nil {
			return fmt.Errorf("decode calendar delete payload: %w", err)
		}
		return s.Delete(ctx, p.CloserID, p.CalendarEventID)
	})
}

// AuthURL starts the link flow; state must be checked again in Link.
func (s *Service) AuthURL(state string) (string, error) {
	return s.provider.AuthCodeURL(state)
}

// Link exchanges code and stores the tokens for userID. A previously selected
// calendar survives a relink.
func (s *Service) Link(ctx context.Context, userID uint, code string) (*models.ProviderAccount, error) {
	tok, err := s.provider.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("calendar oauth exchange: %w", err)
	}

	acct, err := s.repo.GetAccount(ctx, userID)
	if err != nil && !errors.Is(err, ErrNotLinked) {
		return nil, err
	}
	if acct == nil {
		acct = &models.ProviderAccount{
			UserID:         userID,
			Provider:       models.PROVIDER_GOOGLE_CALENDAR,
			ProviderUserID: strconv.FormatUint(uint64(userID), 10),
			CalendarID:     "primary",
		}
	}
	applyToken(acct, tok)
	if err := s.repo.SaveAccount(ctx, acct); err != nil {
		return nil, err
	}
	log.Infof("[Calendar] Linked calendar for user %d", userID)
	return acct, nil
}

func (s *Service) Unlink(ctx context.Context, userID uint) error {
	return s.repo.DeleteAccount(ctx, userID)
}

func (s *Service) Account(ctx context.Context, userID uint) (*models.ProviderAccount, error) {
	return s.repo.GetAccount(ctx, userID)
}

func (s *Service) Calendars(ctx context.Context, userID uint) ([]Calendar, error) {
	acct, err := s.repo.GetAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.provider.ListCalendars(ctx, s.tokenSource(ctx, acct))
}

func (s *Service) SelectCalendar(ctx context.Context, userID uint, calendarID string) (*models.ProviderAccount, error) {
	calendarID = strings.TrimSpace(calendarID)
	if calendarID == "" {
		return nil, fmt.Errorf("calendar id is required")
	}
	acct, err := s.repo.GetAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	acct.CalendarID = calendarID
	if err := s.repo.SaveAccount(ctx, acct); err != nil {
		return nil, err
	}
	return acct, nil
}

// SyncAppointment queues a sync of the appointment's calendar event.
func (s *Service) SyncAppointment(appointmentID uint) {
	s.dispatcher.DispatchWithRetries(context.Background(), jobqueue.JobTypeCalendarSync,
		jobqueue.CalendarSyncPayload{AppointmentID: appointmentID}, syncRetries)
}

// RemoveEvent queues deletion of an event from closerID's calendar.
func (s *Service) RemoveEvent(closerID uint, calendarEventID string) {
	if calendarEventID == "" {
		return
	}
	s.dispatcher.DispatchWithRetries(context.Background(), jobqueue.JobTypeCalendarDelete,
		jobqueue.CalendarDeletePayload{CloserID: closerID, CalendarEventID: calendarEventID}, syncRetries)
}

// Sync makes the closer's calendar match the appointment: any existing event is
// replaced, and slot-freeing statuses leave no event behind. Closers without a
// link are skipped.
func (s *Service) Sync(ctx context.Context, appointmentID uint) error {
	a, err := s.repo.GetAppointment(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("[Calendar] Appointment %d vanished before sync", appointmentID)
			return nil
		}
		return err
	}

	acct, err := s.repo.GetAccount(ctx, a.CloserID)
	if errors.Is(err, ErrNotLinked) {
		return nil
	}
	if err != nil {
		return err
	}
	ts := s.tokenSource(ctx, acct)

	if a.CalendarEventID != "" {
		if err := s.provider.DeleteEvent(ctx, ts, acct.CalendarID, a.CalendarEventID); err != nil {
			return fmt.Errorf("delete calendar event %s: %w", a.CalendarEventID, err)
		}
		if err := s.repo.SetCalendarEventID(ctx, a.ID, ""); err != nil {
			return err
		}
	}

	if !models.OccupiesSlot(a.Status) {
		return nil
	}

	eventID, err := s.provider.CreateEvent(ctx, ts, acct.CalendarID, s.eventFor(a))
	if err != nil {
		return fmt.Errorf("create calendar event: %w", err)
	}
	if err := s.repo.SetCalendarEventID(ctx, a.ID, eventID); err != nil {
		return err
	}
	log.Infof("[Calendar] Synced appointment %d as event %s", a.ID, eventID)
	return nil
}

// Delete removes one event; closers without a link are skipped.
func (s *Service) Delete(ctx context.Context, closerID uint, eventID string) error {
	if eventID == "" {
		return nil
	}
	acct, err := s.repo.GetAccount(ctx, closerID)
	if errors.Is(err, ErrNotLinked) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.provider.DeleteEvent(ctx, s.tokenSource(ctx, acct), acct.CalendarID, eventID)
}

func (s *Service) eventFor(a *models.Appointment) Event {
	ev := Event{
		Summary: fmt.Sprintf("Call #%d", a.ID),
		Start:   a.StartTime.UTC(),
		End:     a.StartTime.UTC().Add(s.eventLength),
	}
	var desc []string
	if a.Lead != nil {
		ev.Summary = "Call with " + a.Lead.Name
		ev.AttendeeEmail = a.Lead.Email
		desc = append(desc, "Lead: "+a.Lead.Name+" <"+a.Lead.Email+">")
	}
	desc = append(desc, fmt.Sprintf("Appointment: %d", a.ID))
	if a.Notes != "" {
		desc = append(desc, "", a.Notes)
	}
	ev.Description = strings.Join(desc, "\n")
	return ev
}

func (s *Service) tokenSource(ctx context.Context, acct *models.ProviderAccount) oauth2.TokenSource {
	return &persistingTokenSource{
		base: s.provider.TokenSource(ctx, tokenFromAccount(acct)),
		repo: s.repo,
		acct: acct,
	}
}
