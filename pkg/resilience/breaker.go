// Package resilience guards cache layers and ledger stores with a timeout
// and a circuit breaker (github.com/sony/gobreaker).
package resilience

import (
	"context"
	"errors"
	"time"

	"balance-ledger/pkg/logging"
	"balance-ledger/pkg/metrics"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// breaker is the guard shared by ResilientLayer and ResilientStore.
type breaker struct {
	name    string
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
	logger  *logging.Logger

	// returned in place of gobreaker's open-state errors and of our own
	// deadline firing
	openErr    error
	timeoutErr error
}

func newBreaker(
	name string,
	config ResilientConfig,
	collector metrics.MetricsCollector,
	logger *logging.Logger,
	isSuccessful func(error) bool,
	openErr, timeoutErr error,
) *breaker {
	b := &breaker{
		name:       name,
		timeout:    config.Timeout,
		logger:     logger,
		openErr:    openErr,
		timeoutErr: timeoutErr,
	}

	cbConfig := config.CircuitBreakerConfig
	settings := gobreaker.Settings{
		Name:         name,
		MaxRequests:  cbConfig.MaxRequests,
		Interval:     cbConfig.Interval,
		Timeout:      cbConfig.Timeout,
		IsSuccessful: isSuccessful,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			c := Counts{
				Requests:             counts.Requests,
				TotalSuccesses:       counts.TotalSuccesses,
				TotalFailures:        counts.TotalFailures,
				ConsecutiveSuccesses: counts.ConsecutiveSuccesses,
				ConsecutiveFailures:  counts.ConsecutiveFailures,
			}
			if cbConfig.ReadyToTrip != nil {
				return cbConfig.ReadyToTrip(c)
			}
			return c.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("component", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			collector.RecordCircuitState(name, circuitState(to))
		},
	}
	b.cb = gobreaker.NewCircuitBreaker(settings)

	logger.Info("resilience guard initialized",
		zap.String("component", name),
		zap.Duration("timeout", config.Timeout),
		zap.Uint32("max_requests", cbConfig.MaxRequests),
		zap.Duration("circuit_interval", cbConfig.Interval),
		zap.Duration("circuit_timeout", cbConfig.Timeout),
	)
	return b
}

// do runs fn through the breaker under the configured timeout.
func (b *breaker) do(ctx context.Context, op string, fn func(context.Context) error) error {
	callCtx := ctx
	if b.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	start := time.Now()
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn(callCtx)
	})
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		b.logger.Warn("circuit breaker open - request rejected",
			zap.String("operation", op),
		)
		return b.openErr
	case ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded):
		b.logger.Warn("operation timeout",
			zap.String("operation", op),
			zap.Duration("timeout", b.timeout),
			zap.Duration("elapsed", time.Since(start)),
		)
		return b.timeoutErr
	}
	return err
}

func (b *breaker) state() metrics.CircuitState {
	return circuitState(b.cb.State())
}

func circuitState(s gobreaker.State) metrics.CircuitState {
	switch s {
	case gobreaker.StateOpen:
		return metrics.CircuitOpen
	case gobreaker.StateHalfOpen:
		return metrics.CircuitHalfOpen
	default:
		return metrics.CircuitClosed
	}
}

// canceledByCaller reports whether err only reflects the caller giving up.
func canceledByCaller(err error) bool {
	return errors.Is(err, context.Canceled)
}
