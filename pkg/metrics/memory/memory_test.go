package memory

import (
	"testing"
	"time"

	"balance-ledger/pkg/metrics"
)

func TestMemoryCollector_Applies(t *testing.T) {
	mc := NewMemoryCollector()

	mc.RecordApply("deposit", metrics.OutcomeSuccess, time.Millisecond)
	mc.RecordApply("deposit", metrics.OutcomeSuccess, time.Millisecond)
	mc.RecordApply("withdraw", "insufficient_funds", time.Millisecond)

	if got := mc.Applies("deposit", metrics.OutcomeSuccess); got != 2 {
		t.Errorf("Expected 2 successful deposits, got %d", got)
	}
	if got := mc.Applies("withdraw", "insufficient_funds"); got != 1 {
		t.Errorf("Expected 1 rejected withdraw, got %d", got)
	}
}

func TestMemoryCollector_CircuitOpensCountTransitions(t *testing.T) {
	mc := NewMemoryCollector()

	mc.RecordCircuitState("store", metrics.CircuitOpen)
	mc.RecordCircuitState("store", metrics.CircuitOpen)
	mc.RecordCircuitState("store", metrics.CircuitHalfOpen)
	mc.RecordCircuitState("store", metrics.CircuitOpen)

	snap := mc.Snapshot()
	if snap.CircuitOpens["store"] != 2 {
		t.Errorf("Expected 2 open transitions, got %d", snap.CircuitOpens["store"])
	}
	if snap.Circuits["store"] != "open" {
		t.Errorf("Expected state open, got %s", snap.Circuits["store"])
	}
}

func TestMemoryCollector_SnapshotIsCopy(t *testing.T) {
	mc := NewMemoryCollector()
	mc.RecordJob(metrics.OutcomeSuccess, 1, time.Millisecond)
	mc.RecordQueueDepth("ledger", 3)

	snap := mc.Snapshot()
	snap.Jobs[metrics.OutcomeSuccess] = 100
	snap.QueueDepth["ledger"] = 100

	if mc.Jobs(metrics.OutcomeSuccess) != 1 {
		t.Error("Snapshot mutation leaked into collector")
	}
	if mc.Snapshot().QueueDepth["ledger"] != 3 {
		t.Error("Snapshot mutation leaked into queue depth")
	}
}

func TestMemoryCollector_Reset(t *testing.T) {
	mc := NewMemoryCollector()
	mc.RecordLockWait(time.Second, false)
	mc.RecordCacheGet("memory", true, time.Microsecond)
	mc.RecordCacheGet("memory", false, time.Microsecond)

	snap := mc.Snapshot()
	if snap.LockTimeouts != 1 || snap.CacheHits["memory"] != 1 || snap.CacheMisses["memory"] != 1 {
		t.Fatalf("Unexpected snapshot before reset: %+v", snap)
	}

	mc.Reset()
	snap = mc.Snapshot()
	if snap.LockWaits != 0 || len(snap.CacheHits) != 0 {
		t.Errorf("Expected empty snapshot after reset, got %+v", snap)
	}
}
