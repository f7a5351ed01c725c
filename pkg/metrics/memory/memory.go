package memory

import (
	"sync"
	"time"

	"balance-ledger/pkg/metrics"
)

// MemoryCollector implements MetricsCollector in memory, for tests and the
// JSON metrics endpoint.
type MemoryCollector struct {
	mu sync.RWMutex

	applies map[string]int64 // "kind/outcome" -> count

	lockWaits    int64
	lockTimeouts int64

	jobs        map[string]int64 // outcome -> count
	jobAttempts int64

	queueDepth map[string]int

	circuits     map[string]metrics.CircuitState
	circuitOpens map[string]int64

	cacheHits   map[string]int64
	cacheMisses map[string]int64
}

// NewMemoryCollector creates a new in-memory metrics collector.
func NewMemoryCollector() *MemoryCollector {
	mc := &MemoryCollector{}
	mc.reset()
	return mc
}

func (mc *MemoryCollector) reset() {
	mc.applies = make(map[string]int64)
	mc.lockWaits = 0
	mc.lockTimeouts = 0
	mc.jobs = make(map[string]int64)
	mc.jobAttempts = 0
	mc.queueDepth = make(map[string]int)
	mc.circuits = make(map[string]metrics.CircuitState)
	mc.circuitOpens = make(map[string]int64)
	mc.cacheHits = make(map[string]int64)
	mc.cacheMisses = make(map[string]int64)
}

// RecordApply records one engine apply attempt.
func (mc *MemoryCollector) RecordApply(kind string, outcome string, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.applies[kind+"/"+outcome]++
}

// RecordLockWait records how long a caller waited for an account lock.
func (mc *MemoryCollector) RecordLockWait(duration time.Duration, acquired bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.lockWaits++
	if !acquired {
		mc.lockTimeouts++
	}
}

// RecordJob records the final outcome of a dispatched job.
func (mc *MemoryCollector) RecordJob(outcome string, attempts int, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.jobs[outcome]++
	mc.jobAttempts += int64(attempts)
}

// RecordQueueDepth records the current queue depth.
func (mc *MemoryCollector) RecordQueueDepth(queue string, depth int) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.queueDepth[queue] = depth
}

// RecordCircuitState records a circuit breaker transition.
func (mc *MemoryCollector) RecordCircuitState(component string, state metrics.CircuitState) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	old := mc.circuits[component]
	mc.circuits[component] = state

	// Count transitions to open
	if old != metrics.CircuitOpen && state == metrics.CircuitOpen {
		mc.circuitOpens[component]++
	}
}

// RecordCacheGet records a read-model cache lookup.
func (mc *MemoryCollector) RecordCacheGet(layer string, hit bool, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if hit {
		mc.cacheHits[layer]++
	} else {
		mc.cacheMisses[layer]++
	}
}

// Snapshot is a point-in-time copy of the collected metrics.
type Snapshot struct {
	Applies      map[string]int64  `json:"applies"`
	LockWaits    int64             `json:"lock_waits"`
	LockTimeouts int64             `json:"lock_timeouts"`
	Jobs         map[string]int64  `json:"jobs"`
	JobAttempts  int64             `json:"job_attempts"`
	QueueDepth   map[string]int    `json:"queue_depth"`
	Circuits     map[string]string `json:"circuits"`
	CircuitOpens map[string]int64  `json:"circuit_opens"`
	CacheHits    map[string]int64  `json:"cache_hits"`
	CacheMisses  map[string]int64  `json:"cache_misses"`
}

// Snapshot returns a copy of the current metrics state.
func (mc *MemoryCollector) Snapshot() Snapshot {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	snapshot := Snapshot{
		Applies:      copyCounts(mc.applies),
		LockWaits:    mc.lockWaits,
		LockTimeouts: mc.lockTimeouts,
		Jobs:         copyCounts(mc.jobs),
		JobAttempts:  mc.jobAttempts,
		QueueDepth:   make(map[string]int, len(mc.queueDepth)),
		Circuits:     make(map[string]string, len(mc.circuits)),
		CircuitOpens: copyCounts(mc.circuitOpens),
		CacheHits:    copyCounts(mc.cacheHits),
		CacheMisses:  copyCounts(mc.cacheMisses),
	}
	for queue, depth := range mc.queueDepth {
		snapshot.QueueDepth[queue] = depth
	}
	for component, state := range mc.circuits {
		snapshot.Circuits[component] = state.String()
	}

	return snapshot
}

// Applies returns how many applies were recorded for kind and outcome.
func (mc *MemoryCollector) Applies(kind, outcome string) int64 {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	return mc.applies[kind+"/"+outcome]
}

// Jobs returns how many jobs finished with outcome.
func (mc *MemoryCollector) Jobs(outcome string) int64 {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	return mc.jobs[outcome]
}

// Reset clears all collected metrics.
func (mc *MemoryCollector) Reset() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.reset()
}

func copyCounts(in map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

var _ metrics.MetricsCollector = (*MemoryCollector)(nil)
