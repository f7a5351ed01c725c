package prometheus

import (
	"testing"
	"time"

	"balance-ledger/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusCollector_Register(t *testing.T) {
	pc := NewPrometheusCollector("ledger_test")
	registry := prometheus.NewRegistry()

	if err := pc.Register(registry); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := pc.Register(registry); err == nil {
		t.Error("Expected duplicate registration to fail")
	}
}

func TestPrometheusCollector_Counters(t *testing.T) {
	pc := NewPrometheusCollector("ledger_test")

	pc.RecordApply("deposit", metrics.OutcomeSuccess, time.Millisecond)
	pc.RecordApply("deposit", metrics.OutcomeSuccess, time.Millisecond)
	pc.RecordJob(metrics.OutcomeExhausted, 5, time.Second)
	pc.RecordCircuitState("store", metrics.CircuitOpen)
	pc.RecordQueueDepth("ledger", 7)

	if got := testutil.ToFloat64(pc.applies.WithLabelValues("deposit", metrics.OutcomeSuccess)); got != 2 {
		t.Errorf("Expected 2 applies, got %v", got)
	}
	if got := testutil.ToFloat64(pc.jobs.WithLabelValues(metrics.OutcomeExhausted)); got != 1 {
		t.Errorf("Expected 1 exhausted job, got %v", got)
	}
	if got := testutil.ToFloat64(pc.circuitState.WithLabelValues("store")); got != float64(metrics.CircuitOpen) {
		t.Errorf("Expected open circuit gauge, got %v", got)
	}
	if got := testutil.ToFloat64(pc.queueDepth.WithLabelValues("ledger")); got != 7 {
		t.Errorf("Expected queue depth 7, got %v", got)
	}
}
