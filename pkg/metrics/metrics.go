package metrics

import (
	"time"
)

// MetricsCollector defines the interface for collecting ledger metrics.
// Implementations can export metrics to various backends (Prometheus, in-memory, etc.).
type MetricsCollector interface {
	// Engine
	RecordApply(kind string, outcome string, duration time.Duration)
	RecordLockWait(duration time.Duration, acquired bool)

	// Dispatcher
	RecordJob(outcome string, attempts int, duration time.Duration)
	RecordQueueDepth(queue string, depth int)

	// Circuit breaker around stores and cache layers
	RecordCircuitState(component string, state CircuitState)

	// Read-model cache
	RecordCacheGet(layer string, hit bool, duration time.Duration)
}

// Outcome labels shared by apply and job metrics.
const (
	OutcomeSuccess   = "success"
	OutcomeRetried   = "retried"
	OutcomeFailed    = "failed"
	OutcomeExhausted = "exhausted"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed means the circuit breaker is allowing requests through.
	CircuitClosed CircuitState = iota
	// CircuitOpen means the circuit breaker is blocking requests.
	CircuitOpen
	// CircuitHalfOpen means the circuit breaker is testing if the backend has recovered.
	CircuitHalfOpen
)

// String returns the string representation of the circuit state.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// NoOpCollector is the default collector when metrics are not needed.
type NoOpCollector struct{}

func (NoOpCollector) RecordApply(kind string, outcome string, duration time.Duration) {}
func (NoOpCollector) RecordLockWait(duration time.Duration, acquired bool) {}
func (NoOpCollector) RecordJob(outcome string, attempts int, duration time.Duration) {}
func (NoOpCollector) RecordQueueDepth(queue string, depth int) {}
func (NoOpCollector) RecordCircuitState(component string, state CircuitState) {}
func (NoOpCollector) RecordCacheGet(layer string, hit bool, duration time.Duration) {}
