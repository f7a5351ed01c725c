package memory

import (
	"context"
	"sync"

	"balance-ledger/pkg/dispatch"
)

// Sink keeps failures in memory, for tests and single-process runs.
type Sink struct {
	mu       sync.RWMutex
	failures []dispatch.Failure
	notify   chan struct{}
}

// NewSink creates an empty sink.
func NewSink() *Sink {
	return &Sink{notify: make(chan struct{}, 1)}
}

// Record appends failure.
func (s *Sink) Record(ctx context.Context, failure dispatch.Failure) error {
	s.mu.Lock()
	s.failures = append(s.failures, failure)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
	return nil
}

// Failures returns a copy of the recorded failures, oldest first.
func (s *Sink) Failures() []dispatch.Failure {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]dispatch.Failure, len(s.failures))
	copy(out, s.failures)
	return out
}

// Wait blocks until at least n failures are recorded or ctx is done.
func (s *Sink) Wait(ctx context.Context, n int) error {
	for {
		s.mu.RLock()
		count := len(s.failures)
		s.mu.RUnlock()
		if count >= n {
			return nil
		}

		select {
		case <-s.notify:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

var _ dispatch.FailureSink = (*Sink)(nil)
