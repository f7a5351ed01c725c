package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"balance-ledger/pkg/ledger"
	"balance-ledger/pkg/logging"
	"balance-ledger/pkg/metrics"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Config configures the dispatcher.
type Config struct {
	// Workers is the number of concurrent workers (default: 2)
	Workers int

	// MaxAttempts caps apply attempts for transient failures (default: 5)
	MaxAttempts int

	// RetryBase is the first backoff delay, doubled per attempt (default: 100ms)
	RetryBase time.Duration

	// RetryMax caps a single backoff delay (default: 10s)
	RetryMax time.Duration

	// MaxAmount is the amount ceiling checked at enqueue (default: 1,000,000)
	MaxAmount decimal.Decimal

	// DepthInterval is how often queue depth is reported (default: 5s)
	DepthInterval time.Duration

	// Logger defaults to the global logger
	Logger *logging.Logger

	// Metrics defaults to a no-op collector
	Metrics metrics.MetricsCollector
}

// DefaultConfig returns the default dispatcher configuration.
func DefaultConfig() Config {
	return Config{
		Workers:       2,
		MaxAttempts:   5,
		RetryBase:     100 * time.Millisecond,
		RetryMax:      10 * time.Second,
		MaxAmount:     ledger.DefaultMaxAmount,
		DepthInterval: 5 * time.Second,
	}
}

// OutcomeInterrupted marks an in-memory job that shutdown stopped before it
// was applied.
const OutcomeInterrupted = "interrupted"

const interruptRecordTimeout = 2 * time.Second

// Dispatcher enqueues jobs and drains them through an Applier.
//
// Business rejections (validation, insufficient funds, unknown account) are
// terminal: they go to the failure sink once and are never retried.
// Everything else is retried with exponential backoff and full jitter until
// MaxAttempts, then recorded as exhausted.
type Dispatcher struct {
	queue   Queue
	applier Applier
	sink    FailureSink
	config  Config
	logger  *logging.Logger
	metrics metrics.MetricsCollector

	running atomic.Bool

	// Statistics (accessed atomically)
	enqueued  int64
	succeeded int64
	rejected  int64
	exhausted int64
	retries   int64
}

// New creates a dispatcher. Call Run to start workers.
func New(queue Queue, applier Applier, sink FailureSink, config Config) *Dispatcher {
	if config.Workers <= 0 {
		config.Workers = 2
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 5
	}
	if config.RetryBase <= 0 {
		config.RetryBase = 100 * time.Millisecond
	}
	if config.RetryMax <= 0 {
		config.RetryMax = 10 * time.Second
	}
	if config.MaxAmount.IsZero() {
		config.MaxAmount = ledger.DefaultMaxAmount
	}
	if config.DepthInterval <= 0 {
		config.DepthInterval = 5 * time.Second
	}
	if config.Logger == nil {
		config.Logger = logging.Global()
	}
	if config.Metrics == nil {
		config.Metrics = metrics.NoOpCollector{}
	}

	return &Dispatcher{
		queue:   queue,
		applier: applier,
		sink:    sink,
		config:  config,
		logger:  config.Logger.Named("dispatch").With(zap.String("queue", queue.Name())),
		metrics: config.Metrics,
	}
}

// Enqueue validates the operation and records it on the queue. It returns as
// soon as the queue has accepted the job.
func (d *Dispatcher) Enqueue(ctx context.Context, accountID string, amount decimal.Decimal, kind ledger.Kind, description string) (Job, error) {
	if err := ledger.Validate(amount, kind, description, d.config.MaxAmount); err != nil {
		return Job{}, err
	}

	job := Job{
		ID:          uuid.NewString(),
		AccountID:   accountID,
		Amount:      amount,
		Kind:        kind,
		Description: description,
		EnqueuedAt:  time.Now().UTC(),
	}
	if err := d.queue.Enqueue(ctx, job); err != nil {
		return Job{}, err
	}

	atomic.AddInt64(&d.enqueued, 1)
	d.logger.Debug("job enqueued",
		logging.JobID(job.ID),
		logging.AccountID(accountID),
		logging.Kind(kind.String()),
		logging.Amount(amount),
	)
	return job, nil
}

// Submit parses raw boundary input and enqueues it.
func (d *Dispatcher) Submit(ctx context.Context, req ledger.SubmitRequest) (Job, error) {
	amount, kind, err := req.Parse(d.config.MaxAmount)
	if err != nil {
		return Job{}, err
	}
	return d.Enqueue(ctx, req.AccountID, amount, kind, req.Description)
}

// Run starts the worker pool and blocks until ctx is done and every worker
// has returned. A job interrupted by cancellation stays unacked on a durable
// queue and is recorded as interrupted on an in-memory one.
func (d *Dispatcher) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return errors.New("dispatch: already running")
	}
	defer d.running.Store(false)

	d.logger.Info("dispatcher started", zap.Int("workers", d.config.Workers))

	var wg sync.WaitGroup
	for i := 0; i < d.config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.worker(ctx)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		d.reportDepth(ctx)
	}()

	wg.Wait()
	d.logger.Info("dispatcher stopped")
	return nil
}

func (d *Dispatcher) worker(ctx context.Context) {
	for {
		delivery, err := d.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrQueueClosed) {
				return
			}
			d.logger.Warn("dequeue failed", zap.Error(err))
			if sleep(ctx, d.config.RetryBase) != nil {
				return
			}
			continue
		}

		d.process(ctx, delivery)
	}
}

// process applies one delivery, retrying transient failures inline.
func (d *Dispatcher) process(ctx context.Context, delivery *Delivery) {
	job := &delivery.Job
	start := time.Now()
	logger := d.logger.With(
		logging.JobID(job.ID),
		logging.AccountID(job.AccountID),
		logging.Kind(job.Kind.String()),
		logging.Amount(job.Amount),
	)

	for {
		job.Attempts++
		result, err := d.applier.Apply(ctx, job.AccountID, job.Amount, job.Kind, job.Description)
		if err == nil {
			d.ack(ctx, delivery, logger)
			atomic.AddInt64(&d.succeeded, 1)
			d.metrics.RecordJob(metrics.OutcomeSuccess, job.Attempts, time.Since(start))
			logger.Info("job applied",
				logging.OperationID(result.Operation.ID),
				logging.Decimal("new_balance", result.NewBalance),
				zap.Int("attempts", job.Attempts),
			)
			return
		}

		if ctx.Err() != nil {
			d.interrupted(ctx, delivery, err, logger)
			return
		}

		if ledger.IsTerminal(err) {
			atomic.AddInt64(&d.rejected, 1)
			d.metrics.RecordJob(metrics.OutcomeFailed, job.Attempts, time.Since(start))
			logger.Error("job rejected",
				zap.String("class", ledger.ClassifyError(err)),
				zap.Int("attempts", job.Attempts),
				zap.Error(err),
			)
			d.fail(ctx, delivery, err, metrics.OutcomeFailed, logger)
			return
		}

		if job.Attempts >= d.config.MaxAttempts {
			atomic.AddInt64(&d.exhausted, 1)
			d.metrics.RecordJob(metrics.OutcomeExhausted, job.Attempts, time.Since(start))
			logger.Error("job retries exhausted",
				zap.String("class", ledger.ClassifyError(err)),
				zap.Int("attempts", job.Attempts),
				zap.Error(err),
			)
			d.fail(ctx, delivery, err, metrics.OutcomeExhausted, logger)
			return
		}

		delay := fullJitter(exponential(d.config.RetryBase, job.Attempts-1, d.config.RetryMax))
		atomic.AddInt64(&d.retries, 1)
		logger.Warn("job failed, retrying",
			zap.String("class", ledger.ClassifyError(err)),
			zap.Int("attempts", job.Attempts),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if sleep(ctx, delay) != nil {
			d.interrupted(ctx, delivery, ctx.Err(), logger)
			return
		}
	}
}

// interrupted handles a job cut off by shutdown. Durable backends redeliver
// it because it stays unacked; an in-memory job would be lost, so it is
// recorded as a failure instead.
func (d *Dispatcher) interrupted(ctx context.Context, delivery *Delivery, cause error, logger *logging.Logger) {
	logger.Warn("job interrupted", zap.Int("attempts", delivery.Job.Attempts), zap.Error(cause))
	if delivery.Durable() {
		return
	}

	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), interruptRecordTimeout)
	defer cancel()
	failure := newFailure(delivery.Job, cause, OutcomeInterrupted)
	if err := d.sink.Record(recordCtx, failure); err != nil {
		logger.Error("interrupted job lost, failure sink unavailable", zap.Error(err))
	}
}

// fail records the job on the failure sink and only then acks it. The sink is
// retried with backoff until it accepts the failure or ctx ends, and the
// worker takes no other job meanwhile: on a log-structured queue acking a
// later job would commit past this one.
func (d *Dispatcher) fail(ctx context.Context, delivery *Delivery, cause error, outcome string, logger *logging.Logger) {
	failure := newFailure(delivery.Job, cause, outcome)

	for attempt := 0; ; attempt++ {
		err := d.sink.Record(ctx, failure)
		if err == nil {
			break
		}
		delay := fullJitter(exponential(d.config.RetryBase, attempt, d.config.RetryMax))
		logger.Error("failure sink unavailable, retrying",
			zap.Int("sink_attempts", attempt+1),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if sleep(ctx, delay) != nil {
			logger.Error("job left unacked, failure not recorded", zap.Error(ctx.Err()))
			return
		}
	}
	d.ack(ctx, delivery, logger)
}

func newFailure(job Job, cause error, outcome string) Failure {
	return Failure{
		Job:      job,
		Reason:   cause.Error(),
		Class:    ledger.ClassifyError(cause),
		Outcome:  outcome,
		FailedAt: time.Now().UTC(),
	}
}

func (d *Dispatcher) ack(ctx context.Context, delivery *Delivery, logger *logging.Logger) {
	if err := delivery.Ack(ctx); err != nil {
		logger.Warn("ack failed, job may be redelivered", zap.Error(err))
	}
}

func (d *Dispatcher) reportDepth(ctx context.Context) {
	ticker := time.NewTicker(d.config.DepthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			depth, err := d.queue.Len(ctx)
			if err != nil {
				continue
			}
			d.metrics.RecordQueueDepth(d.queue.Name(), depth)
		case <-ctx.Done():
			return
		}
	}
}

// Stats provides statistics about dispatched jobs.
type Stats struct {
	Enqueued  int64 `json:"enqueued"`
	Succeeded int64 `json:"succeeded"`
	Rejected  int64 `json:"rejected"`
	Exhausted int64 `json:"exhausted"`
	Retries   int64 `json:"retries"`
}

// Stats returns current dispatcher statistics.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Enqueued:  atomic.LoadInt64(&d.enqueued),
		Succeeded: atomic.LoadInt64(&d.succeeded),
		Rejected:  atomic.LoadInt64(&d.rejected),
		Exhausted: atomic.LoadInt64(&d.exhausted),
		Retries:   atomic.LoadInt64(&d.retries),
	}
}
