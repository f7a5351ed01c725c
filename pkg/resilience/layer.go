package resilience

import (
	"context"
	"time"

	"balance-ledger/pkg/cache"
	"balance-ledger/pkg/logging"
	"balance-ledger/pkg/metrics"
)

// ResilientLayer wraps a cache layer with a circuit breaker and a timeout.
// Misses never count against the breaker.
type ResilientLayer struct {
	layer   cache.Layer
	guard   *breaker
	metrics metrics.MetricsCollector
}

// NewResilientLayer creates a resilient wrapper around layer.
func NewResilientLayer(layer cache.Layer, config ResilientConfig) *ResilientLayer {
	return NewResilientLayerWithMetrics(layer, config, metrics.NoOpCollector{})
}

// NewResilientLayerWithMetrics creates a resilient layer reporting hits,
// misses and breaker state to collector.
func NewResilientLayerWithMetrics(layer cache.Layer, config ResilientConfig, collector metrics.MetricsCollector) *ResilientLayer {
	if collector == nil {
		collector = metrics.NoOpCollector{}
	}
	logger := logging.Global().Named("resilience").Named(layer.Name())

	return &ResilientLayer{
		layer:   layer,
		metrics: collector,
		guard: newBreaker("cache:"+layer.Name(), config, collector, logger,
			func(err error) bool {
				return err == nil || cache.IsNotFound(err) || canceledByCaller(err)
			},
			cache.ErrCircuitOpen, cache.ErrTimeout,
		),
	}
}

// Name returns the name of the underlying cache layer.
func (rl *ResilientLayer) Name() string {
	return rl.layer.Name()
}

// Get reads key, returning ErrCircuitOpen or ErrTimeout when the guard
// rejects the call.
func (rl *ResilientLayer) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()

	var value []byte
	err := rl.guard.do(ctx, "get", func(ctx context.Context) error {
		var err error
		value, err = rl.layer.Get(ctx, key)
		return err
	})

	rl.metrics.RecordCacheGet(rl.layer.Name(), err == nil, time.Since(start))
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (rl *ResilientLayer) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return rl.guard.do(ctx, "set", func(ctx context.Context) error {
		return rl.layer.Set(ctx, key, value, ttl)
	})
}

func (rl *ResilientLayer) Delete(ctx context.Context, key string) error {
	return rl.guard.do(ctx, "delete", func(ctx context.Context) error {
		return rl.layer.Delete(ctx, key)
	})
}

// State returns the current breaker state.
func (rl *ResilientLayer) State() metrics.CircuitState {
	return rl.guard.state()
}

// Close closes the underlying cache layer.
func (rl *ResilientLayer) Close() error {
	return rl.layer.Close()
}

var _ cache.Layer = (*ResilientLayer)(nil)
