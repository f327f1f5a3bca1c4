package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Redis layout: job records live under JobKeyPrefix+id; ids move from
// JobQueueKey to JobProcessingKey while a worker owns them.
const (
	JobKeyPrefix     = "jobs:record:"
	JobQueueKey      = "jobs:pending"
	JobProcessingKey = "jobs:processing"
	JobStatsKey      = "jobs:stats"
)

const (
	// DefaultMaxRetries is zero: side effects are best-effort unless the caller
	// asks for retries.
	DefaultMaxRetries = 0
	DefaultWorkers    = 3

	JobTTL     = 24 * time.Hour
	JobTimeout = 2 * time.Minute
	StuckAfter = 10 * time.Minute

	pollTimeout = time.Second
)

// Queue runs jobs stored in Redis on a fixed set of workers.
type Queue struct {
	client     *redis.Client
	workers    int
	retryDelay time.Duration
	now        func() time.Time

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

func NewQueue(client *redis.Client, workers int) *Queue {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Queue{
		client:     client,
		workers:    workers,
		retryDelay: time.Minute,
		now:        time.Now,
	}
}

func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}
	q.running = true
	q.stop = make(chan struct{})

	log.Infof("[JobQueue] Starting %d workers", q.workers)
	for i := 1; i <= q.workers; i++ {
		q.wg.Add(1)
		go q.work(i)
	}
	q.wg.Add(1)
	go q.sweep(time.Minute)
}

// Stop waits for in-flight jobs to finish.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	close(q.stop)
	q.mu.Unlock()

	q.wg.Wait()
	log.Info("[JobQueue] Workers stopped")
}

func (q *Queue) IsRunning() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

func (q *Queue) stopping() bool {
	select {
	case <-q.stop:
		return true
	default:
		return false
	}
}

func (q *Queue) work(worker int) {
	defer q.wg.Done()
	ctx := context.Background()
	for !q.stopping() {
		job, err := q.dequeueJob(ctx)
		switch {
		case errors.Is(err, redis.Nil):
			continue
		case err != nil:
			log.Errorf("[JobQueue] Worker %d: dequeue: %v", worker, err)
			time.Sleep(time.Second)
			continue
		}
		log.Debugf("[JobQueue] Worker %d running %s (%s)", worker, job.ID, job.Type)
		q.processJob(ctx, job)
	}
}

// EnqueueJob stores a job that runs once.
func (q *Queue) EnqueueJob(ctx context.Context, jobType JobType, payload interface{}) (*Job, error) {
	return q.EnqueueJobWithRetries(ctx, jobType, payload, DefaultMaxRetries)
}

// EnqueueJobWithRetries stores a job that may run up to maxRetries more times
// after a failed first attempt.
func (q *Queue) EnqueueJobWithRetries(ctx context.Context, jobType JobType, payload interface{}, maxRetries int) (*Job, error) {
	raw, err := EncodePayload(payload)
	if err != nil {
		return nil, err
	}
	now := q.now()
	job := &Job{
		ID:         uuid.NewString(),
		Type:       jobType,
		Status:     JobStatusPending,
		Payload:    raw,
		MaxRetries: maxRetries,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("jobqueue: encode job: %w", err)
	}

	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, JobKeyPrefix+job.ID, data, JobTTL)
		pipe.LPush(ctx, JobQueueKey, job.ID)
		pipe.HIncrBy(ctx, JobStatsKey, string(JobStatusPending), 1)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("jobqueue: enqueue %s: %w", jobType, err)
	}
	return job, nil
}

// dequeueJob moves the next id to the processing list and loads its record.
// It returns redis.Nil when nothing arrived within the poll timeout.
func (q *Queue) dequeueJob(ctx context.Context) (*Job, error) {
	id, err := q.client.BLMove(ctx, JobQueueKey, JobProcessingKey, "RIGHT", "LEFT", pollTimeout).Result()
	if err != nil {
		return nil, err
	}
	job, err := q.GetJob(ctx, id)
	if err != nil {
		q.release(ctx, id)
		return nil, fmt.Errorf("jobqueue: load %s: %w", id, err)
	}
	return job, nil
}

func (q *Queue) processJob(ctx context.Context, job *Job) {
	defer q.release(ctx, job.ID)

	job.start(q.now())
	q.save(ctx, job)

	runCtx, cancel := context.WithTimeout(ctx, JobTimeout)
	err := run(runCtx, job)
	cancel()

	if err == nil {
		job.complete(q.now())
		q.count(ctx, JobStatusCompleted)
		if err := q.client.Del(ctx, JobKeyPrefix+job.ID).Err(); err != nil {
			log.Errorf("[JobQueue] Could not drop finished job %s: %v", job.ID, err)
		}
		return
	}

	log.Errorf("[JobQueue] Job %s (%s) attempt %d failed: %v", job.ID, job.Type, job.Attempts, err)
	retry := job.fail(q.now(), err.Error())
	q.save(ctx, job)
	if !retry {
		q.count(ctx, JobStatusFailed)
		return
	}
	id := job.ID
	time.AfterFunc(q.retryDelay*time.Duration(job.Attempts), func() {
		if err := q.client.LPush(context.Background(), JobQueueKey, id).Err(); err != nil {
			log.Errorf("[JobQueue] Could not requeue job %s: %v", id, err)
		}
	})
}

// sweep fails jobs left in processing by a crashed worker. They are not
// requeued because the side effect may already have happened.
func (q *Queue) sweep(every time.Duration) {
	defer q.wg.Done()
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-q.stop:
			return
		case <-ticker.C:
			q.sweepStuck(context.Background(), StuckAfter, q.now())
		}
	}
}

func (q *Queue) sweepStuck(ctx context.Context, maxAge time.Duration, now time.Time) int {
	ids, err := q.client.LRange(ctx, JobProcessingKey, 0, -1).Result()
	if err != nil {
		log.Errorf("[JobQueue] Sweep: %v", err)
		return 0
	}
	swept := 0
	for _, id := range ids {
		job, err := q.GetJob(ctx, id)
		if err != nil || job.Status != JobStatusProcessing {
			q.release(ctx, id)
			continue
		}
		age := now.Sub(job.runningSince())
		if age <= maxAge {
			continue
		}
		log.Warnf("[JobQueue] Job %s (%s) stuck for %s, marking failed", job.ID, job.Type, age)
		job.Status = JobStatusFailed
		job.LastError = "stuck in processing"
		job.UpdatedAt = now
		q.save(ctx, job)
		q.count(ctx, JobStatusFailed)
		q.release(ctx, id)
		swept++
	}
	return swept
}

func (q *Queue) save(ctx context.Context, job *Job) {
	data, err := json.Marshal(job)
	if err != nil {
		log.Errorf("[JobQueue] Encode job %s: %v", job.ID, err)
		return
	}
	if err := q.client.Set(ctx, JobKeyPrefix+job.ID, data, JobTTL).Err(); err != nil {
		log.Errorf("[JobQueue] Save job %s: %v", job.ID, err)
	}
}

func (q *Queue) release(ctx context.Context, id string) {
	if err := q.client.LRem(ctx, JobProcessingKey, 1, id).Err(); err != nil {
		log.Errorf("[JobQueue] Release job %s: %v", id, err)
	}
}

func (q *Queue) count(ctx context.Context, status JobStatus) {
	if err := q.client.HIncrBy(ctx, JobStatsKey, string(status), 1).Err(); err != nil {
		log.Errorf("[JobQueue] Stats: %v", err)
	}
}

// GetJob loads a job record. A missing record returns redis.Nil.
func (q *Queue) GetJob(ctx context.Context, id string) (*Job, error) {
	data, err := q.client.Get(ctx, JobKeyPrefix+id).Bytes()
	if err != nil {
		return nil, err
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("jobqueue: decode %s: %w", id, err)
	}
	return &job, nil
}

// GetJobStats returns the running totals per status.
func (q *Queue) GetJobStats(ctx context.Context) (map[JobStatus]int64, error) {
	raw, err := q.client.HGetAll(ctx, JobStatsKey).Result()
	if err != nil {
		return nil, err
	}
	stats := make(map[JobStatus]int64, len(raw))
	for status, v := range raw {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			stats[JobStatus(status)] = n
		}
	}
	return stats, nil
}

func (q *Queue) GetQueueSize(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, JobQueueKey).Result()
}

func (q *Queue) GetProcessingSize(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, JobProcessingKey).Result()
}
