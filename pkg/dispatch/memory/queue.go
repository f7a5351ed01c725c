// Package memory provides an in-process dispatch queue and failure sink.
// Jobs do not survive a restart.
package memory

import (
	"context"
	"sync"
	"time"

	"balance-ledger/pkg/dispatch"
)

// QueueConfig configures the in-memory queue.
type QueueConfig struct {
	// Name identifies the queue (default: "memory")
	Name string

	// Size is the bounded queue size (default: 1000)
	Size int

	// MaxWaitTime is how long Enqueue waits on a full queue before failing
	// with ErrQueueFull (default: 10ms)
	MaxWaitTime time.Duration
}

// Queue is a bounded channel of jobs.
type Queue struct {
	name        string
	jobs        chan dispatch.Job
	maxWaitTime time.Duration

	closeOnce sync.Once
	closed    chan struct{}
}

// NewQueue creates an in-memory queue.
func NewQueue(config QueueConfig) *Queue {
	if config.Name == "" {
		config.Name = "memory"
	}
	if config.Size <= 0 {
		config.Size = 1000
	}
	if config.MaxWaitTime == 0 {
		config.MaxWaitTime = 10 * time.Millisecond
	}

	return &Queue{
		name:        config.Name,
		jobs:        make(chan dispatch.Job, config.Size),
		maxWaitTime: config.MaxWaitTime,
		closed:      make(chan struct{}),
	}
}

// Enqueue adds job, waiting up to MaxWaitTime for room.
func (q *Queue) Enqueue(ctx context.Context, job dispatch.Job) error {
	select {
	case <-q.closed:
		return dispatch.ErrQueueClosed
	default:
	}

	timer := time.NewTimer(q.maxWaitTime)
	defer timer.Stop()

	select {
	case q.jobs <- job:
		return nil
	case <-timer.C:
		return dispatch.ErrQueueFull
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closed:
		return dispatch.ErrQueueClosed
	}
}

// Dequeue blocks for the next job. Jobs still buffered at Close are drained
// before ErrQueueClosed is returned.
func (q *Queue) Dequeue(ctx context.Context) (*dispatch.Delivery, error) {
	select {
	case job := <-q.jobs:
		return dispatch.NewDelivery(job, nil), nil
	default:
	}

	select {
	case job := <-q.jobs:
		return dispatch.NewDelivery(job, nil), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-q.closed:
		select {
		case job := <-q.jobs:
			return dispatch.NewDelivery(job, nil), nil
		default:
			return nil, dispatch.ErrQueueClosed
		}
	}
}

// Len returns the number of buffered jobs.
func (q *Queue) Len(ctx context.Context) (int, error) {
	return len(q.jobs), nil
}

func (q *Queue) Name() string { return q.name }

// Close stops accepting jobs.
func (q *Queue) Close() error {
	q.closeOnce.Do(func() { close(q.closed) })
	return nil
}

var _ dispatch.Queue = (*Queue)(nil)
