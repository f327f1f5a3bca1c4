// Package webhook fans domain events out to the configured integrations. Delivery is
// best-effort: one attempt per integration, logged, never surfaced to the caller.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/closerdesk/closerdesk/app/models"
	"github.com/closerdesk/closerdesk/internal/pkg/jobqueue"
)

const EventPing = "integration.ping"

var ErrIntegrationNotFound = errors.New("integration not found")

// Dispatcher queues a job; *jobqueue.Manager implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, jobType jobqueue.JobType, payload interface{})
}

type Service struct {
	repo       Repository
	sender     *Sender
	dispatcher Dispatcher
	now        func() time.Time
}

func NewService(repo Repository, sender *Sender, dispatcher Dispatcher) *Service {
	if sender == nil {
		sender = NewSender()
	}
	return &Service{repo: repo, sender: sender, dispatcher: dispatcher, now: time.Now}
}

func NewServiceFromDB(db *gorm.DB, dispatcher Dispatcher) *Service {
	return NewService(NewRepository(db), NewSender(), dispatcher)
}

// RegisterJobs binds the delivery job to this service.
func (s *Service) RegisterJobs() {
	jobqueue.Register(jobqueue.JobTypeWebhookDelivery, func(ctx context.Context, job *jobqueue.Job) error {
		var p jobqueue.WebhookDeliveryPayload
		if err := jobqueue.DecodePayload(job.Payload, &p); err != nil {
			return fmt.Errorf("decode webhook payload: %w", err)
		}
		_, err := s.Deliver(ctx, p)
		return err
	})
}

// Publish queues eventType for every active integration subscribed to it.
func (s *Service) Publish(ctx context.Context, eventType string, data map[string]interface{}) {
	integrations, err := s.repo.ListActiveIntegrations(ctx)
	if err != nil {
		log.Errorf("[Webhook] Could not load integrations for %s: %v", eventType, err)
		return
	}

	eventID := uuid.New().String()
	occurred := s.now().UTC()
	for _, in := range integrations {
		if !in.Subscribes(eventType) {
			continue
		}
		s.dispatcher.Dispatch(ctx, jobqueue.JobTypeWebhookDelivery, jobqueue.WebhookDeliveryPayload{
			IntegrationID: in.ID,
			EventID:       eventID,
			EventType:     eventType,
			OccurredAt:    occurred,
			Data:          data,
		})
	}
}

// Deliver performs one attempt and records it.
func (s *Service) Deliver(ctx context.Context, p jobqueue.WebhookDeliveryPayload) (*models.WebhookDelivery, error) {
	in, err := s.repo.GetIntegration(ctx, p.IntegrationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("[Webhook] Integration %d vanished before delivery of %s", p.IntegrationID, p.EventID)
			return nil, nil
		}
		return nil, err
	}
	if !in.IsActive {
		return nil, nil
	}

	body, err := json.Marshal(Payload{ID: p.EventID, Type: p.EventType, OccurredAt: p.OccurredAt, Data: p.Data})
	if err != nil {
		return nil, fmt.Errorf("encode webhook body: %w", err)
	}

	started := time.Now()
	status, sendErr := s.sender.Send(ctx, in, p.EventType, p.EventID, body)
	delivery := &models.WebhookDelivery{
		IntegrationID: in.ID,
		EventID:       p.EventID,
		EventType:     p.EventType,
		StatusCode:    status,
		DurationMs:    time.Since(started).Milliseconds(),
	}
	if sendErr != nil {
		delivery.Error = sendErr.Error()
		log.Warnf("[Webhook] Delivery of %s to integration %d failed: %v", p.EventType, in.ID, sendErr)
	}
	if err := s.repo.LogDelivery(ctx, delivery); err != nil {
		log.Errorf("[Webhook] Could not log delivery %s: %v", p.EventID, err)
	}
	// Failed deliveries are recorded, not retried.
	return delivery, nil
}

// Ping sends a test event synchronously, bypassing subscriptions.
func (s *Service) Ping(ctx context.Context, integrationID uint) (*models.WebhookDelivery, error) {
	if _, err := s.repo.GetIntegration(ctx, integrationID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrIntegrationNotFound
		}
		return nil, err
	}
	return s.deliverNow(ctx, integrationID, EventPing, map[string]interface{}{"message": "ping"})
}

func (s *Service) deliverNow(ctx context.Context, integrationID uint, eventType string, data map[string]interface{}) (*models.WebhookDelivery, error) {
	p := jobqueue.WebhookDeliveryPayload{
		IntegrationID: integrationID,
		EventID:       uuid.New().String(),
		EventType:     eventType,
		OccurredAt:    s.now().UTC(),
		Data:          data,
	}
	d, err := s.Deliver(ctx, p)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, ErrIntegrationNotFound
	}
	return d, nil
}

func (s *Service) Deliveries(ctx context.Context, integrationID uint, limit int) ([]models.WebhookDelivery, error) {
	return s.repo.ListDeliveries(ctx, integrationID, limit)
}
