// Package writer performs cache warm-up writes off the read path.
package writer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"balance-ledger/pkg/cache"
	"balance-ledger/pkg/logging"
	"balance-ledger/pkg/metrics"

	"go.uber.org/zap"
)

// AsyncWriter writes to a cache layer from a bounded queue served by a small
// worker pool, so that back-filling an upper layer never blocks a read.
type AsyncWriter struct {
	layer      cache.Layer
	queue      chan writeOp
	wg         sync.WaitGroup
	ctx        context.Context
	cancelFunc context.CancelFunc
	config     AsyncWriterConfig
	metrics    metrics.MetricsCollector
	logger     *logging.Logger
	queueName  string
	closeOnce  sync.Once

	// accessed atomically
	droppedWrites atomic.Int64
	totalWrites   atomic.Int64
	failedWrites  atomic.Int64
	inFlight      atomic.Int64

	metricsTicker *time.Ticker
	metricsStop   chan struct{}
}

type writeOp struct {
	key   string
	value []byte
	ttl   time.Duration
}

// AsyncWriterConfig configures the async writer behavior.
type AsyncWriterConfig struct {
	// QueueSize is the bounded queue size (default: 1000)
	QueueSize int

	// Workers is the number of concurrent workers (default: 2)
	Workers int

	// MaxWaitTime is the max time to wait if queue is full.
	// A negative value drops immediately (default: 10ms)
	MaxWaitTime time.Duration

	// WriteTimeout bounds each Set on the layer (default: 1s)
	WriteTimeout time.Duration

	// ReportInterval is how often queue depth is reported (default: 5s)
	ReportInterval time.Duration
}

// DefaultAsyncWriterConfig returns the default writer configuration.
func DefaultAsyncWriterConfig() AsyncWriterConfig {
	return AsyncWriterConfig{
		QueueSize:      1000,
		Workers:        2,
		MaxWaitTime:    10 * time.Millisecond,
		WriteTimeout:   time.Second,
		ReportInterval: 5 * time.Second,
	}
}

// NewAsyncWriter creates a writer for layer. It must be closed with Close.
func NewAsyncWriter(layer cache.Layer, config AsyncWriterConfig) *AsyncWriter {
	return NewAsyncWriterWithMetrics(layer, config, metrics.NoOpCollector{})
}

// NewAsyncWriterWithMetrics creates a writer that reports its queue depth as
// "warmup:<layer>".
func NewAsyncWriterWithMetrics(layer cache.Layer, config AsyncWriterConfig, collector metrics.MetricsCollector) *AsyncWriter {
	if config.QueueSize <= 0 {
		config.QueueSize = 1000
	}
	if config.Workers <= 0 {
		config.Workers = 2
	}
	if config.MaxWaitTime == 0 {
		config.MaxWaitTime = 10 * time.Millisecond
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = time.Second
	}
	if config.ReportInterval <= 0 {
		config.ReportInterval = 5 * time.Second
	}
	if collector == nil {
		collector = metrics.NoOpCollector{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	w := &AsyncWriter{
		layer:         layer,
		queue:         make(chan writeOp, config.QueueSize),
		ctx:           ctx,
		cancelFunc:    cancel,
		config:        config,
		metrics:       collector,
		logger:        logging.Global().Named("writer").Named(layer.Name()),
		queueName:     "warmup:" + layer.Name(),
		metricsTicker: time.NewTicker(config.ReportInterval),
		metricsStop:   make(chan struct{}),
	}

	for i := 0; i < config.Workers; i++ {
		w.wg.Add(1)
		go w.worker()
	}
	go w.reportMetrics()

	return w
}

// Write enqueues a copy-free write of value. If the queue is full it waits up
// to MaxWaitTime and then drops the write with ErrQueueFull. Callers must not
// modify value afterwards.
func (w *AsyncWriter) Write(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	select {
	case <-w.ctx.Done():
		return ErrWriterClosed
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	op := writeOp{key: key, value: value, ttl: ttl}

	select {
	case w.queue <- op:
		w.totalWrites.Add(1)
		return nil
	default:
	}
	if w.config.MaxWaitTime < 0 {
		return w.drop(key)
	}

	timer := time.NewTimer(w.config.MaxWaitTime)
	defer timer.Stop()

	select {
	case w.queue <- op:
		w.totalWrites.Add(1)
		return nil
	case <-timer.C:
		return w.drop(key)
	case <-ctx.Done():
		return ctx.Err()
	case <-w.ctx.Done():
		return ErrWriterClosed
	}
}

func (w *AsyncWriter) drop(key string) error {
	w.droppedWrites.Add(1)
	w.logger.Debug("warm-up write dropped", zap.String("key", key))
	return ErrQueueFull
}

func (w *AsyncWriter) worker() {
	defer w.wg.Done()

	for {
		select {
		case op := <-w.queue:
			w.process(op)
		case <-w.ctx.Done():
			// drain what was accepted before Close
			for {
				select {
				case op := <-w.queue:
					w.process(op)
				default:
					return
				}
			}
		}
	}
}

func (w *AsyncWriter) process(op writeOp) {
	w.inFlight.Add(1)
	defer w.inFlight.Add(-1)

	ctx, cancel := context.WithTimeout(context.Background(), w.config.WriteTimeout)
	defer cancel()

	if err := w.layer.Set(ctx, op.key, op.value, op.ttl); err != nil {
		w.failedWrites.Add(1)
		w.logger.Warn("warm-up write failed",
			zap.String("key", op.key),
			zap.String("class", cache.ClassifyError(err)),
			zap.Error(err),
		)
	}
}

// Flush waits until the queue is empty and no write is in flight.
func (w *AsyncWriter) Flush(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for {
		if len(w.queue) == 0 && w.inFlight.Load() == 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrFlushTimeout
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// Close stops accepting writes, processes what is queued and waits for the
// workers. It is safe to call more than once.
func (w *AsyncWriter) Close() error {
	w.closeOnce.Do(func() {
		close(w.metricsStop)
		w.metricsTicker.Stop()
		w.cancelFunc()
		w.wg.Wait()
	})
	return nil
}

func (w *AsyncWriter) reportMetrics() {
	for {
		select {
		case <-w.metricsTicker.C:
			w.metrics.RecordQueueDepth(w.queueName, len(w.queue))
		case <-w.metricsStop:
			return
		}
	}
}

// Stats returns current statistics about the async writer.
func (w *AsyncWriter) Stats() AsyncWriterStats {
	return AsyncWriterStats{
		QueueDepth:    len(w.queue),
		DroppedWrites: w.droppedWrites.Load(),
		TotalWrites:   w.totalWrites.Load(),
		FailedWrites:  w.failedWrites.Load(),
	}
}
