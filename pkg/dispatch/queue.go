package dispatch

import (
	"context"
	"errors"

	"balance-ledger/pkg/ledger"

	"github.com/shopspring/decimal"
)

// Errors returned by queues and the dispatcher.
var (
	// ErrQueueFull is returned when the queue stayed full past the enqueue wait
	ErrQueueFull = errors.New("dispatch: queue full")

	// ErrQueueClosed is returned by a queue after Close
	ErrQueueClosed = errors.New("dispatch: queue closed")

	// ErrMalformedJob is returned when a queued payload cannot be decoded
	ErrMalformedJob = errors.New("dispatch: malformed job")
)

// Queue is a FIFO of jobs.
type Queue interface {
	// Enqueue durably records job before returning (in-memory queues excepted).
	Enqueue(ctx context.Context, job Job) error

	// Dequeue blocks until a job is available or ctx is done.
	Dequeue(ctx context.Context) (*Delivery, error)

	// Len returns the number of pending jobs.
	Len(ctx context.Context) (int, error)

	// Name identifies the queue in logs and metrics.
	Name() string

	Close() error
}

// FailureSink is the operator-visible record of jobs that were not applied.
type FailureSink interface {
	Record(ctx context.Context, failure Failure) error
}

// Applier applies operations; *ledger.Engine implements it.
type Applier interface {
	Apply(ctx context.Context, accountID string, amount decimal.Decimal, kind ledger.Kind, description string) (*ledger.Result, error)
}

var _ Applier = (*ledger.Engine)(nil)
