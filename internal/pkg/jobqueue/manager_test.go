package jobqueue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testJobType JobType = "test_job"

func TestManager_DispatchRunsInlineWithoutRedis(t *testing.T) {
	var got atomic.Value
	Register(testJobType, func(ctx context.Context, job *Job) error {
		var p CalendarSyncPayload
		if err := DecodePayload(job.Payload, &p); err != nil {
			return err
		}
		got.Store(p.AppointmentID)
		return nil
	})

	m := NewManager(nil, 2)
	m.Start()
	assert.False(t, m.IsRunning())

	m.Dispatch(context.Background(), testJobType, CalendarSyncPayload{AppointmentID: 42})
	m.Wait()

	assert.Equal(t, uint(42), got.Load())
	m.Stop()
}

func TestManager_InlineFailureIsContained(t *testing.T) {
	var calls int32
	Register("failing_job", func(ctx context.Context, job *Job) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("downstream unavailable")
	})

	m := NewManager(nil, 1)
	m.DispatchWithRetries(context.Background(), "failing_job", nil, 3)
	m.Wait()

	// inline runs are best-effort: one attempt, no retries
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestRun_UnknownJobType(t *testing.T) {
	err := run(context.Background(), &Job{Type: "never_registered"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown job type")
}

func TestManager_StopWithoutStart(t *testing.T) {
	m := NewManager(nil, 1)
	assert.False(t, m.IsRunning())
	m.Stop()
	assert.False(t, m.IsRunning())
}

func TestManager_QueueWithRedis(t *testing.T) {
	client := newIsolatedRedisClient(t, isolatedJobQueueTestRedisDB)

	done := make(chan uint, 1)
	Register("redis_job", func(ctx context.Context, job *Job) error {
		var p ConfirmationEmailPayload
		if err := DecodePayload(job.Payload, &p); err != nil {
			return err
		}
		done <- p.AppointmentID
		return nil
	})

	m := NewManager(client, 2)
	m.Start()
	defer m.Stop()
	require.True(t, m.IsRunning())

	m.Dispatch(context.Background(), "redis_job", ConfirmationEmailPayload{AppointmentID: 7})

	select {
	case id := <-done:
		assert.Equal(t, uint(7), id)
	case <-time.After(5 * time.Second):
		t.Fatal("job was not processed")
	}

	ok := waitForCondition(func() bool {
		stats, err := m.GetQueue().GetJobStats(context.Background())
		return err == nil && stats[JobStatusCompleted] == 1
	}, 3*time.Second)
	assert.True(t, ok)
}
