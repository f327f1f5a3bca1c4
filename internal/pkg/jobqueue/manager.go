package jobqueue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/closerdesk/closerdesk/internal/pkg/cache"
	"github.com/closerdesk/closerdesk/internal/pkg/env"
)

// Manager owns the queue and decides where a dispatched job runs: on the Redis
// queue when workers are running, otherwise inline in a goroutine.
type Manager struct {
	queue   *Queue
	client  *redis.Client
	inline  sync.WaitGroup
	mu      sync.Mutex
	running bool
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetManager returns the global job queue manager (singleton)
func GetManager() *Manager {
	managerOnce.Do(func() {
		globalManager = NewManager(cache.GetClient(), env.GetEnvInt("JOB_QUEUE_WORKERS", 5))
	})
	return globalManager
}

// NewManager builds a manager over client. A nil client runs every job inline.
func NewManager(client *redis.Client, workers int) *Manager {
	return &Manager{queue: NewQueue(client, workers), client: client}
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Start starts the queue workers when Redis answers.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}
	if m.client == nil {
		log.Warn("[JobQueue Manager] No Redis client, jobs run inline")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.client.Ping(ctx).Err(); err != nil {
		log.Warnf("[JobQueue Manager] Redis unavailable, jobs run inline: %v", err)
		return
	}

	m.queue.Start()
	m.running = true
	log.Info("[JobQueue Manager] Started successfully")
}

// Stop stops the workers and waits for inline jobs.
func (m *Manager) Stop() {
	m.mu.Lock()
	running := m.running
	m.running = false
	m.mu.Unlock()

	if running {
		m.queue.Stop()
	}
	m.inline.Wait()
	log.Info("[JobQueue Manager] Stopped")
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Dispatch hands a job to the queue without retries.
func (m *Manager) Dispatch(ctx context.Context, jobType JobType, payload interface{}) {
	m.DispatchWithRetries(ctx, jobType, payload, DefaultMaxRetries)
}

// DispatchWithRetries hands a job to the queue. When the queue is down or the
// enqueue fails the job runs inline once, so a Redis outage never drops a side
// effect silently.
func (m *Manager) DispatchWithRetries(ctx context.Context, jobType JobType, payload interface{}, maxRetries int) {
	if m.IsRunning() {
		_, err := m.queue.EnqueueJobWithRetries(ctx, jobType, payload, maxRetries)
		if err == nil {
			return
		}
		log.Warnf("[JobQueue Manager] Enqueue %s failed, running inline: %v", jobType, err)
	}
	raw, err := EncodePayload(payload)
	if err != nil {
		log.Errorf("[JobQueue Manager] Dropping %s job: %v", jobType, err)
		return
	}
	m.runInline(jobType, raw)
}

func (m *Manager) runInline(jobType JobType, raw json.RawMessage) {
	now := time.Now()
	job := &Job{
		ID:        uuid.NewString(),
		Type:      jobType,
		Status:    JobStatusProcessing,
		Payload:   raw,
		Attempts:  1,
		CreatedAt: now,
		UpdatedAt: now,
		StartedAt: &now,
	}
	m.inline.Add(1)
	go func() {
		defer m.inline.Done()
		ctx, cancel := context.WithTimeout(context.Background(), JobTimeout)
		defer cancel()
		if err := run(ctx, job); err != nil {
			log.Errorf("[JobQueue Manager] Inline job %s (%s) failed: %v", job.ID, job.Type, err)
		}
	}()
}

// Wait blocks until every inline job has finished.
func (m *Manager) Wait() {
	m.inline.Wait()
}
