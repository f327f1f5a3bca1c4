package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/closerdesk/closerdesk/internal/pkg/env"
)

const (
	defaultGoogleAuthURL    = "https://accounts.google.com/o/oauth2/auth"
	defaultGoogleTokenURL   = "https://oauth2.googleapis.com/token"
	defaultGoogleAPIBaseURL = "https://www.googleapis.com/calendar/v3"
)

var googleScopes = []string{
	"https://www.googleapis.com/auth/calendar.events",
	"https://www.googleapis.com/auth/calendar.readonly",
}

// GoogleProvider talks to the Google Calendar REST API.
type GoogleProvider struct {
	Config     *oauth2.Config
	APIBaseURL string
	HTTPClient *http.Client
}

func NewGoogleProviderFromEnv() *GoogleProvider {
	base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/")
	redirectURI := strings.TrimSpace(env.GetEnv("GOOGLE_CALENDAR_REDIRECT_URI", ""))
	if redirectURI == "" && base != "" {
		redirectURI = base + "/api/v1/calendar/callback"
	}

	return &GoogleProvider{
		Config: &oauth2.Config{
			ClientID:     strings.TrimSpace(env.GetEnv("GOOGLE_KEY", "")),
			ClientSecret: strings.TrimSpace(env.GetEnv("GOOGLE_SECRET", "")),
			RedirectURL:  redirectURI,
			Scopes:       googleScopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  env.GetEnv("GOOGLE_AUTH_URL", defaultGoogleAuthURL),
				TokenURL: env.GetEnv("GOOGLE_TOKEN_URL", defaultGoogleTokenURL),
			},
		},
		APIBaseURL: strings.TrimRight(env.GetEnv("GOOGLE_CALENDAR_API_URL", defaultGoogleAPIBaseURL), "/"),
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (g *GoogleProvider) configured() error {
	if g.Config == nil || g.Config.ClientID == "" || g.Config.ClientSecret == "" {
		return ErrNotConfigured
	}
	if g.Config.RedirectURL == "" {
		return fmt.Errorf("%w: redirect uri missing", ErrNotConfigured)
	}
	return nil
}

func (g *GoogleProvider) AuthCodeURL(state string) (string, error) {
	if err := g.configured(); err != nil {
		return "", err
	}
	// offline + consent so Google always hands out a refresh token
	return g.Config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent")), nil
}

func (g *GoogleProvider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if err := g.configured(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(code) == "" {
		return nil, fmt.Errorf("oauth code is required")
	}
	return g.Config.Exchange(g.withClient(ctx), strings.TrimSpace(code))
}

func (g *GoogleProvider) TokenSource(ctx context.Context, tok *oauth2.Token) oauth2.TokenSource {
	return g.Config.TokenSource(g.withClient(ctx), tok)
}

func (g *GoogleProvider) withClient(ctx context.Context) context.Context {
	if g.HTTPClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, g.HTTPClient)
}

type calendarListResponse struct {
	Items []struct {
		ID         string `json:"id"`
		Summary    string `json:"summary"`
		Primary    bool   `json:"primary"`
		AccessRole string `json:"accessRole"`
	} `json:"items"`
}

func (g *GoogleProvider) ListCalendars(ctx context.Context, ts oauth2.TokenSource) ([]Calendar, error) {
	var out calendarListResponse
	if _, err := g.do(ctx, ts, http.MethodGet, "/users/me/calendarList?minAccessRole=writer", nil, &out); err != nil {
		return nil, err
	}
	calendars := make([]Calendar, 0, len(out.Items))
	for _, item := range out.Items {
		calendars = append(calendars, Calendar{ID: item.ID, Summary: item.Summary, Primary: item.Primary})
	}
	return calendars, nil
}

type eventTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone,omitempty"`
}

type eventAttendee struct {
	Email string `json:"email"`
}

type eventRequest struct {
	Summary     string          `json:"summary"`
	Description string          `json:"description,omitempty"`
	Start       eventTime       `json:"start"`
	End         eventTime       `json:"end"`
	Attendees   []eventAttendee `json:"attendees,omitempty"`
}

func (g *GoogleProvider) CreateEvent(ctx context.Context, ts oauth2.TokenSource, calendarID string, ev Event) (string, error) {
	req := eventRequest{
		Summary:     ev.Summary,
		Description: ev.Description,
		Start:       eventTime{DateTime: ev.Start.UTC().Format(time.RFC3339), TimeZone: "UTC"},
		End:         eventTime{DateTime: ev.End.UTC().Format(time.RFC3339), TimeZone: "UTC"},
	}
	if ev.AttendeeEmail != "" {
		req.Attendees = []eventAttendee{{Email: ev.AttendeeEmail}}
	}

	var out struct {
		ID string `json:"id"`
	}
	path := "/calendars/" + url.PathEscape(calendarOrPrimary(calendarID)) + "/events"
	if _, err := g.do(ctx, ts, http.MethodPost, path, req, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("google calendar returned an event without id")
	}
	return out.ID, nil
}

func (g *GoogleProvider) DeleteEvent(ctx context.Context, ts oauth2.TokenSource, calendarID, eventID string) error {
	path := "/calendars/" + url.PathEscape(calendarOrPrimary(calendarID)) + "/events/" + url.PathEscape(eventID)
	status, err := g.do(ctx, ts, http.MethodDelete, path, nil, nil)
	if status == http.StatusNotFound || status == http.StatusGone {
		return nil
	}
	return err
}

func (g *GoogleProvider) do(ctx context.Context, ts oauth2.TokenSource, method, path string, in, out interface{}) (int, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.APIBaseURL+path, body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := oauth2.NewClient(g.withClient(ctx), ts)
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("google calendar %s %s failed: status=%d body=%s", method, path, resp.StatusCode, string(raw))
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

func calendarOrPrimary(id string) string {
	if strings.TrimSpace(id) == "" {
		return "primary"
	}
	return id
}
