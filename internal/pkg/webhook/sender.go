package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/closerdesk/closerdesk/app/models"
)

const (
	DefaultTimeout = 5 * time.Second
	userAgent      = "CloserDesk-Webhook/1.0"
)

// Payload is the JSON body every receiver gets.
type Payload struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	OccurredAt time.Time              `json:"occurred_at"`
	Data       map[string]interface{} `json:"data"`
}

type Sender struct {
	HTTPClient *http.Client
}

func NewSender() *Sender {
	return &Sender{HTTPClient: &http.Client{Timeout: DefaultTimeout}}
}

// Send posts body to the integration once. Any non-2xx status is an error; the
// status code is returned whenever a response arrived.
func (s *Sender) Send(ctx context.Context, in *models.Integration, eventType, eventID string, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, in.URL, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	for k, v := range in.HeaderMap() {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-CloserDesk-Event", eventType)
	req.Header.Set("X-CloserDesk-Delivery", eventID)
	if sig := Sign(body, in.Secret); sig != "" {
		req.Header.Set(SignatureHeader, sig)
	}

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("webhook receiver returned status %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}
