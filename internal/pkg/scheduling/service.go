package scheduling

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/closerdesk/closerdesk/app/models"
	"github.com/closerdesk/closerdesk/internal/pkg/env"
)

// MaxRange caps a single slot search.
const MaxRange = 62 * 24 * time.Hour

var (
	ErrInvalidRange = errors.New("end must be after start")
	ErrRangeTooWide = errors.New("date range too wide")
)

// Repository reads availability and occupied slots for a UTC range.
type Repository interface {
	ListWindows(ctx context.Context, fromDate, toDate time.Time) ([]Window, error)
	ListBooked(ctx context.Context, from, to time.Time) ([]Booking, error)
}

type Service struct {
	repo Repository
	cfg  Config
	now  func() time.Time
}

func NewService(repo Repository, cfg Config) *Service {
	return &Service{repo: repo, cfg: cfg, now: time.Now}
}

func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db), ConfigFromEnv())
}

// ConfigFromEnv reads SLOT_MINUTES and DEFAULT_TIMEZONE.
func ConfigFromEnv() Config {
	return Config{
		SlotLength:      time.Duration(env.GetEnvInt("SLOT_MINUTES", 60)) * time.Minute,
		DefaultLocation: models.LoadLocationOr(env.GetEnv("DEFAULT_TIMEZONE", "UTC"), time.UTC),
	}
}

// Config returns the active slot configuration.
func (s *Service) Config() Config {
	return s.cfg
}

// FindSlots returns deduplicated bookable slots in [q.From, q.To).
func (s *Service) FindSlots(ctx context.Context, q Query) ([]Slot, error) {
	windows, booked, err := s.load(ctx, &q)
	if err != nil {
		return nil, err
	}
	return Resolve(windows, booked, q, s.cfg), nil
}

// FindCloserSlots lists free slots per closer without deduplication.
func (s *Service) FindCloserSlots(ctx context.Context, q Query) ([]Slot, error) {
	windows, booked, err := s.load(ctx, &q)
	if err != nil {
		return nil, err
	}
	return Expand(windows, booked, q, s.cfg), nil
}

// IsOffered reports whether closerID currently offers a free slot starting at start.
func (s *Service) IsOffered(ctx context.Context, closerID uint, start time.Time) (bool, error) {
	start = start.UTC().Truncate(time.Minute)
	slots, err := s.FindCloserSlots(ctx, Query{
		From:     start,
		To:       start.Add(time.Minute),
		CloserID: closerID,
	})
	if err != nil {
		return false, err
	}
	for _, sl := range slots {
		if sl.CloserID == closerID && sl.Start.Equal(start) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Service) load(ctx context.Context, q *Query) ([]Window, []Booking, error) {
	if q.Now.IsZero() {
		q.Now = s.now().UTC()
	}
	if q.From.IsZero() {
		q.From = q.Now
	}
	if q.To.IsZero() {
		q.To = q.From.Add(14 * 24 * time.Hour)
	}
	if !q.To.After(q.From) {
		return nil, nil, ErrInvalidRange
	}
	if q.To.Sub(q.From) > MaxRange {
		return nil, nil, ErrRangeTooWide
	}

	// Local dates can sit a day either side of the UTC range.
	bufferedFrom := q.From.Add(-24 * time.Hour)
	bufferedTo := q.To.Add(24 * time.Hour)

	windows, err := s.repo.ListWindows(ctx, bufferedFrom, bufferedTo)
	if err != nil {
		return nil, nil, err
	}
	booked, err := s.repo.ListBooked(ctx, bufferedFrom, bufferedTo)
	if err != nil {
		return nil, nil, err
	}
	return windows, booked, nil
}
