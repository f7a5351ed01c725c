package prometheus

import (
	"strconv"
	"time"

	"balance-ledger/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements MetricsCollector for Prometheus.
type PrometheusCollector struct {
	namespace string

	// Engine
	applies      *prometheus.CounterVec
	applyLatency *prometheus.HistogramVec
	lockWait     *prometheus.HistogramVec

	// Dispatcher
	jobs        *prometheus.CounterVec
	jobAttempts *prometheus.HistogramVec
	jobLatency  *prometheus.HistogramVec
	queueDepth  *prometheus.GaugeVec

	// Circuit breaker
	circuitOpens *prometheus.CounterVec
	circuitState *prometheus.GaugeVec

	// Read-model cache
	cacheHits    *prometheus.CounterVec
	cacheMisses  *prometheus.CounterVec
	cacheLatency *prometheus.HistogramVec
}

// NewPrometheusCollector creates a new Prometheus metrics collector.
func NewPrometheusCollector(namespace string) *PrometheusCollector {
	latencyBuckets := prometheus.ExponentialBuckets(0.0001, 2, 15) // 0.1ms to ~3s

	return &PrometheusCollector{
		namespace: namespace,
		applies: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_applied_total",
				Help:      "Total number of apply attempts per kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		applyLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "apply_duration_seconds",
				Help:      "Engine apply latency including lock wait",
				Buckets:   latencyBuckets,
			},
			[]string{"kind"},
		),
		lockWait: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "account_lock_wait_seconds",
				Help:      "Time spent waiting for a per-account lock",
				Buckets:   latencyBuckets,
			},
			[]string{"acquired"},
		),
		jobs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_total",
				Help:      "Total number of dispatched jobs per final outcome",
			},
			[]string{"outcome"},
		),
		jobAttempts: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "job_attempts",
				Help:      "Attempts used per dispatched job",
				Buckets:   prometheus.LinearBuckets(1, 1, 10),
			},
			[]string{"outcome"},
		),
		jobLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "job_duration_seconds",
				Help:      "Dispatched job latency including retries",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
			},
			[]string{"outcome"},
		),
		queueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queue_depth",
				Help:      "Current number of pending jobs per queue",
			},
			[]string{"queue"},
		),
		circuitOpens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_opens_total",
				Help:      "Total number of circuit breaker opens per component",
			},
			[]string{"component"},
		),
		circuitState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_state",
				Help:      "Current circuit breaker state per component (0=closed, 1=open, 2=half-open)",
			},
			[]string{"component"},
		),
		cacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Total number of read-model cache hits per layer",
			},
			[]string{"layer"},
		),
		cacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_misses_total",
				Help:      "Total number of read-model cache misses per layer",
			},
			[]string{"layer"},
		),
		cacheLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cache_get_duration_seconds",
				Help:      "Read-model cache get latency",
				Buckets:   latencyBuckets,
			},
			[]string{"layer"},
		),
	}
}

func (pc *PrometheusCollector) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		pc.applies,
		pc.applyLatency,
		pc.lockWait,
		pc.jobs,
		pc.jobAttempts,
		pc.jobLatency,
		pc.queueDepth,
		pc.circuitOpens,
		pc.circuitState,
		pc.cacheHits,
		pc.cacheMisses,
		pc.cacheLatency,
	}
}

// Register registers all metrics with the given Prometheus registerer.
func (pc *PrometheusCollector) Register(registry prometheus.Registerer) error {
	for _, collector := range pc.collectors() {
		if err := registry.Register(collector); err != nil {
			return err
		}
	}

	return nil
}

// RecordApply records one engine apply attempt.
func (pc *PrometheusCollector) RecordApply(kind string, outcome string, duration time.Duration) {
	pc.applies.WithLabelValues(kind, outcome).Inc()
	pc.applyLatency.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordLockWait records how long a caller waited for an account lock.
func (pc *PrometheusCollector) RecordLockWait(duration time.Duration, acquired bool) {
	pc.lockWait.WithLabelValues(strconv.FormatBool(acquired)).Observe(duration.Seconds())
}

// RecordJob records the final outcome of a dispatched job.
func (pc *PrometheusCollector) RecordJob(outcome string, attempts int, duration time.Duration) {
	pc.jobs.WithLabelValues(outcome).Inc()
	pc.jobAttempts.WithLabelValues(outcome).Observe(float64(attempts))
	pc.jobLatency.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordQueueDepth records the current queue depth.
func (pc *PrometheusCollector) RecordQueueDepth(queue string, depth int) {
	pc.queueDepth.WithLabelValues(queue).Set(float64(depth))
}

// RecordCircuitState records the current circuit breaker state.
func (pc *PrometheusCollector) RecordCircuitState(component string, state metrics.CircuitState) {
	pc.circuitState.WithLabelValues(component).Set(float64(state))
	if state == metrics.CircuitOpen {
		pc.circuitOpens.WithLabelValues(component).Inc()
	}
}

// RecordCacheGet records a read-model cache lookup.
func (pc *PrometheusCollector) RecordCacheGet(layer string, hit bool, duration time.Duration) {
	if hit {
		pc.cacheHits.WithLabelValues(layer).Inc()
	} else {
		pc.cacheMisses.WithLabelValues(layer).Inc()
	}
	pc.cacheLatency.WithLabelValues(layer).Observe(duration.Seconds())
}

var _ metrics.MetricsCollector = (*PrometheusCollector)(nil)
