// Package dispatch decouples operation submission from application. Jobs are
// written to a Queue and applied later by a worker pool.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"balance-ledger/pkg/ledger"

	"github.com/shopspring/decimal"
)

// Job is a queued request to apply one operation.
type Job struct {
	ID          string          `json:"id"`
	AccountID   string          `json:"account_id"`
	Amount      decimal.Decimal `json:"amount"`
	Kind        ledger.Kind     `json:"kind"`
	Description string          `json:"description,omitempty"`
	EnqueuedAt  time.Time       `json:"enqueued_at"`

	// Attempts counts apply calls made so far, across redeliveries
	Attempts int `json:"attempts"`
}

// Encode serializes the job for a queue backend.
func (j Job) Encode() ([]byte, error) {
	return json.Marshal(j)
}

// DecodeJob parses a job written by Encode.
func DecodeJob(data []byte) (Job, error) {
	var j Job
	if err := json.Unmarshal(data, &j); err != nil {
		return Job{}, fmt.Errorf("%w: %v", ErrMalformedJob, err)
	}
	if j.ID == "" || j.AccountID == "" {
		return Job{}, fmt.Errorf("%w: missing id or account", ErrMalformedJob)
	}
	return j, nil
}

// Delivery is a dequeued job. Ack removes it from the queue for good; a
// delivery that is never acked may be redelivered by durable backends.
type Delivery struct {
	Job Job

	ack  func(ctx context.Context) error
	once sync.Once
	err  error
}

// NewDelivery wraps job with the backend's acknowledgement. ack may be nil.
func NewDelivery(job Job, ack func(ctx context.Context) error) *Delivery {
	return &Delivery{Job: job, ack: ack}
}

// Durable reports whether an unacked delivery is kept by its backend for
// redelivery. In-memory deliveries are not.
func (d *Delivery) Durable() bool {
	return d.ack != nil
}

// Ack acknowledges the delivery. Only the first call reaches the backend.
func (d *Delivery) Ack(ctx context.Context) error {
	d.once.Do(func() {
		if d.ack != nil {
			d.err = d.ack(ctx)
		}
	})
	return d.err
}

// Failure is a job that will not be applied, kept for operators.
type Failure struct {
	Job      Job       `json:"job"`
	Reason   string    `json:"reason"`
	Class    string    `json:"class"`
	Outcome  string    `json:"outcome"`
	FailedAt time.Time `json:"failed_at"`
}

// Encode serializes the failure for a sink backend.
func (f Failure) Encode() ([]byte, error) {
	return json.Marshal(f)
}
