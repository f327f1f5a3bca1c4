package jobqueue

import (
	"context"
	"fmt"
	"sync"
)

// Handler executes one job. Packages that own a job type register their handler at
// startup so the queue never imports them.
type Handler func(ctx context.Context, job *Job) error

var (
	handlersMu sync.RWMutex
	handlers   = map[JobType]Handler{}
)

// Register binds h to jobType, replacing any earlier handler.
func Register(jobType JobType, h Handler) {
	handlersMu.Lock()
	defer handlersMu.Unlock()
	handlers[jobType] = h
}

func handlerFor(jobType JobType) (Handler, bool) {
	handlersMu.RLock()
	defer handlersMu.RUnlock()
	h, ok := handlers[jobType]
	return h, ok
}

// run dispatches job to its registered handler.
func run(ctx context.Context, job *Job) error {
	h, ok := handlerFor(job.Type)
	if !ok {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	return h(ctx, job)
}
