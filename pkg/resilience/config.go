package resilience

import (
	"time"
)

// ResilientConfig configures the timeout and circuit breaker placed in front
// of a cache layer or a ledger store.
type ResilientConfig struct {
	// Timeout bounds every guarded call (0 = no timeout)
	Timeout time.Duration

	// CircuitBreakerConfig configures the circuit breaker behavior
	CircuitBreakerConfig CircuitBreakerConfig
}

// CircuitBreakerConfig configures circuit breaker behavior.
type CircuitBreakerConfig struct {
	// MaxRequests is the maximum number of requests allowed to pass through
	// when the breaker is half-open. Default: 1
	MaxRequests uint32

	// Interval is the cyclic period of the closed state after which the
	// counts are cleared. If Interval is 0, they never clear.
	Interval time.Duration

	// Timeout is the period of the open state after which the breaker
	// becomes half-open. Default: 60s
	Timeout time.Duration

	// ReadyToTrip is called with a copy of Counts whenever a request fails.
	// If nil, the breaker trips after 5 consecutive failures.
	ReadyToTrip func(counts Counts) bool
}

// Counts holds the numbers of requests and their successes/failures.
// Misses, business rejections and caller cancellations count as successes.
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// DefaultResilientConfig returns the configuration used for cache layers.
func DefaultResilientConfig() ResilientConfig {
	return ResilientConfig{
		Timeout: 500 * time.Millisecond,
		CircuitBreakerConfig: CircuitBreakerConfig{
			MaxRequests: 5,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: failureRateAbove(20, 0.15),
		},
	}
}

// DefaultStoreConfig returns the configuration used for ledger stores. The
// timeout leaves room for a full lock wait inside a unit of work.
func DefaultStoreConfig() ResilientConfig {
	return ResilientConfig{
		Timeout: 15 * time.Second,
		CircuitBreakerConfig: CircuitBreakerConfig{
			MaxRequests: 3,
			Interval:    60 * time.Second,
			Timeout:     10 * time.Second,
			ReadyToTrip: failureRateAbove(10, 0.5),
		},
	}
}

// failureRateAbove trips once at least minRequests were seen and the share of
// failures reached rate.
func failureRateAbove(minRequests uint32, rate float64) func(Counts) bool {
	return func(counts Counts) bool {
		if counts.Requests < minRequests {
			return false
		}
		return float64(counts.TotalFailures)/float64(counts.Requests) >= rate
	}
}

// WithTimeout returns a copy of the config with the specified timeout.
func (c ResilientConfig) WithTimeout(timeout time.Duration) ResilientConfig {
	c.Timeout = timeout
	return c
}

// WithCircuitBreakerTimeout returns a copy of the config with the specified
// open-state duration.
func (c ResilientConfig) WithCircuitBreakerTimeout(timeout time.Duration) ResilientConfig {
	c.CircuitBreakerConfig.Timeout = timeout
	return c
}

// WithTripAfter returns a copy of the config that trips after n consecutive
// failures.
func (c ResilientConfig) WithTripAfter(n uint32) ResilientConfig {
	c.CircuitBreakerConfig.ReadyToTrip = func(counts Counts) bool {
		return counts.ConsecutiveFailures >= n
	}
	return c
}
