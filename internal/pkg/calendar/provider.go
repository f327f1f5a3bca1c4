// Package calendar mirrors appointments into a closer's external calendar and owns
// the OAuth link that makes it possible.
package calendar

import (
	"context"
	"errors"
	"time"

	"golang.org/x/oauth2"
)

var (
	ErrNotLinked     = errors.New("calendar account not linked")
	ErrNotConfigured = errors.New("calendar provider not configured")
)

// Calendar is one calendar the linked account can write to.
type Calendar struct {
	ID      string `json:"id"`
	Summary string `json:"summary"`
	Primary bool   `json:"primary"`
}

// Event is what gets written for an appointment.
type Event struct {
	Summary       string
	Description   string
	Start         time.Time
	End           time.Time
	AttendeeEmail string
}

// Provider is the external calendar service. Calls authenticate with ts.
type Provider interface {
	AuthCodeURL(state string) (string, error)
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	TokenSource(ctx context.Context, tok *oauth2.Token) oauth2.TokenSource
	ListCalendars(ctx context.Context, ts oauth2.TokenSource) ([]Calendar, error)
	CreateEvent(ctx context.Context, ts oauth2.TokenSource, calendarID string, ev Event) (string, error)
	// DeleteEvent treats an already missing event as deleted.
	DeleteEvent(ctx context.Context, ts oauth2.TokenSource, calendarID, eventID string) error
}
