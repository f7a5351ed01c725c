// Package chain stacks cache layers from fastest to slowest and serves the
// read-model cache of history reports.
package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"balance-ledger/pkg/cache"
	"balance-ledger/pkg/metrics"
	"balance-ledger/pkg/resilience"
	"balance-ledger/pkg/writer"

	"go.uber.org/multierr"
	"golang.org/x/sync/singleflight"
)

// Config configures a chain.
type Config struct {
	// TTLStrategy spreads a write's TTL over the layers (default: uniform)
	TTLStrategy TTLStrategy

	// WarmUpTTL is the base TTL of back-filled entries (default: 1m)
	WarmUpTTL time.Duration

	// L1Timeout guards the first layer, LNTimeout every other (default: 100ms, 1s)
	L1Timeout time.Duration
	LNTimeout time.Duration

	// Writer configures the warm-up writer of every layer
	Writer writer.AsyncWriterConfig
}

// DefaultConfig returns the default chain configuration.
func DefaultConfig() Config {
	return Config{
		TTLStrategy: &UniformTTLStrategy{},
		WarmUpTTL:   time.Minute,
		L1Timeout:   100 * time.Millisecond,
		LNTimeout:   time.Second,
		Writer:      writer.DefaultAsyncWriterConfig(),
	}
}

// Chain manages multiple cache layers with fallback and warm-up.
// Layers are ordered from fastest (L1) to slowest (LN).
type Chain struct {
	layers  []cache.Layer
	writers []*writer.AsyncWriter
	sf      singleflight.Group
	config  Config
	metrics metrics.MetricsCollector
}

// New creates a chain with the default configuration.
func New(layers ...cache.Layer) (*Chain, error) {
	return NewWithConfig(DefaultConfig(), metrics.NoOpCollector{}, layers...)
}

// NewWithConfig creates a chain. Every layer is wrapped with a resilience
// guard and given its own warm-up writer.
func NewWithConfig(config Config, collector metrics.MetricsCollector, layers ...cache.Layer) (*Chain, error) {
	if len(layers) == 0 {
		return nil, errors.New("chain: at least one layer required")
	}
	if config.TTLStrategy == nil {
		config.TTLStrategy = &UniformTTLStrategy{}
	}
	if config.WarmUpTTL <= 0 {
		config.WarmUpTTL = time.Minute
	}
	if config.L1Timeout <= 0 {
		config.L1Timeout = 100 * time.Millisecond
	}
	if config.LNTimeout <= 0 {
		config.LNTimeout = time.Second
	}
	if collector == nil {
		collector = metrics.NoOpCollector{}
	}

	c := &Chain{
		layers:  make([]cache.Layer, len(layers)),
		writers: make([]*writer.AsyncWriter, len(layers)),
		config:  config,
		metrics: collector,
	}
	for i, layer := range layers {
		timeout := config.LNTimeout
		if i == 0 {
			timeout = config.L1Timeout
		}
		guarded := resilience.NewResilientLayerWithMetrics(layer,
			resilience.DefaultResilientConfig().WithTimeout(timeout), collector)

		c.layers[i] = guarded
		c.writers[i] = writer.NewAsyncWriterWithMetrics(guarded, config.Writer, collector)
	}
	return c, nil
}

// Get returns the value from the first layer that has it and back-fills the
// layers above it. Concurrent Gets for one key share a single traversal, and
// with it the returned slice, which callers must not modify.
func (c *Chain) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		return c.getWithFallback(ctx, key)
	})
	c.metrics.RecordCacheGet("chain", err == nil, time.Since(start))
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

// getWithFallback reports ErrKeyNotFound when every layer missed and the
// first layer failure otherwise.
func (c *Chain) getWithFallback(ctx context.Context, key string) ([]byte, error) {
	var failure error

	for i, layer := range c.layers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		value, err := layer.Get(ctx, key)
		if err != nil {
			if !cache.IsNotFound(err) && failure == nil {
				failure = err
			}
			continue
		}

		if i > 0 {
			c.warmUpperLayers(ctx, key, value, i)
		}
		return value, nil
	}

	if failure != nil {
		return nil, failure
	}
	return nil, cache.ErrKeyNotFound
}

// warmUpperLayers queues writes to every layer above hitIndex. Dropped or
// failed warm-ups only cost a later miss.
func (c *Chain) warmUpperLayers(ctx context.Context, key string, value []byte, hitIndex int) {
	for i := hitIndex - 1; i >= 0; i-- {
		ttl := c.config.TTLStrategy.GetTTL(i, len(c.layers), c.config.WarmUpTTL)
		_ = c.writers[i].Write(ctx, key, value, ttl)
	}
}

// Set writes the value to every layer, each with the TTL the strategy gives
// it. Every layer is attempted; the failures are combined.
func (c *Chain) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var errs error
	for i, layer := range c.layers {
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, err)
		}
		layerTTL := c.config.TTLStrategy.GetTTL(i, len(c.layers), ttl)
		if err := layer.Set(ctx, key, value, layerTTL); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", layer.Name(), err))
		}
	}
	return errs
}

// Delete removes key from every layer, slowest first, so that a concurrent
// Get cannot back-fill a faster layer from a slower one that still holds it.
// Every layer is attempted even when the context ends.
func (c *Chain) Delete(ctx context.Context, key string) error {
	var errs error
	for i := len(c.layers) - 1; i >= 0; i-- {
		layer := c.layers[i]
		if err := layer.Delete(context.WithoutCancel(ctx), key); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", layer.Name(), err))
		}
	}
	return errs
}

// Flush waits for pending warm-up writes.
func (c *Chain) Flush(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for _, w := range c.writers {
		if err := w.Flush(time.Until(deadline)); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the writers and then the layers, combining their errors.
func (c *Chain) Close() error {
	var errs error
	for _, w := range c.writers {
		errs = multierr.Append(errs, w.Close())
	}
	for _, layer := range c.layers {
		errs = multierr.Append(errs, layer.Close())
	}
	return errs
}

// Layers returns a copy of the guarded layers.
func (c *Chain) Layers() []cache.Layer {
	layers := make([]cache.Layer, len(c.layers))
	copy(layers, c.layers)
	return layers
}

// Len returns the number of layers in the chain.
func (c *Chain) Len() int {
	return len(c.layers)
}

func (c *Chain) String() string {
	names := make([]string, len(c.layers))
	for i, layer := range c.layers {
		names[i] = layer.Name()
	}
	return fmt.Sprintf("chain(%d layers): %s", len(c.layers), strings.Join(names, " -> "))
}
