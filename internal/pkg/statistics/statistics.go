// Package statistics computes the dashboard, the financial report and closers' daily
// reports. Dashboard results are cached in Redis and dropped whenever a lead,
// appointment or payment changes.
package statistics

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/closerdesk/closerdesk/internal/pkg/cache"
)

const (
	CacheKeyDashboard     = "statistics:dashboard:%s:%s:%d"
	CacheKeyDashboardScan = "statistics:dashboard:*"
	CacheExpiration       = 5 * time.Minute
)

// Cache stores computed reports; RedisCache is the production implementation.
type Cache interface {
	GetJSON(key string, dest interface{}) error
	SetJSON(key string, value interface{}, expiration time.Duration) error
	DeletePattern(pattern string) error
}

// RedisCache uses the shared client of the cache package.
type RedisCache struct{}

func (RedisCache) GetJSON(key string, dest interface{}) error { return cache.GetJSON(key, dest) }
func (RedisCache) SetJSON(key string, value interface{}, expiration time.Duration) error {
	return cache.SetJSON(key, value, expiration)
}
func (RedisCache) DeletePattern(pattern string) error { return cache.DeletePattern(pattern) }

type Option func(*Service)

func WithCache(c Cache) Option { return func(s *Service) { s.cache = c } }

// WithLocation sets the zone used for closers without a valid timezone.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.location = loc
		}
	}
}

type Service struct {
	repo     Repository
	cache    Cache
	location *time.Location
	validate *validator.Validate
	now      func() time.Time
}

func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{repo: repo, location: time.UTC, validate: validator.New(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func NewServiceFromDB(db *gorm.DB, opts ...Option) *Service {
	return NewService(NewRepository(db), opts...)
}

// Publish drops cached dashboards. It lets the service sit next to the webhook
// publisher so every domain event invalidates the cache.
func (s *Service) Publish(_ context.Context, eventType string, _ map[string]interface{}) {
	if err := s.Invalidate(); err != nil {
		log.Warnf("[Statistics] Could not invalidate dashboard cache after %s: %v", eventType, err)
	}
}

func (s *Service) Invalidate() error {
	if s.cache == nil {
		return nil
	}
	return s.cache.DeletePattern(CacheKeyDashboardScan)
}

func dashboardKey(q DashboardQuery) string {
	var closer uint
	if q.CloserID != nil {
		closer = *q.CloserID
	}
	return fmt.Sprintf(CacheKeyDashboard, q.From.UTC().Format(time.RFC3339), q.To.UTC().Format(time.RFC3339), closer)
}

// ratio returns part/whole rounded to four decimals, 0 when whole is 0.
func ratio(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return float64(int(float64(part)/float64(whole)*10000+0.5)) / 10000
}
