package bloom

import (
	"context"
	"fmt"
	"testing"
	"time"

	"balance-ledger/pkg/cache"
	"balance-ledger/pkg/cache/memory"
)

func newTestLayer(t *testing.T) (*BloomLayer, *memory.MemoryCache) {
	t.Helper()
	base := memory.NewMemoryCache(memory.MemoryCacheConfig{
		Name:    "test",
		MaxSize: 100,
	})
	bl := NewBloomLayer(base, 100, 0.01)
	t.Cleanup(func() { bl.Close() })
	return bl, base
}

func TestBloomLayer_BasicOperations(t *testing.T) {
	bl, _ := newTestLayer(t)
	ctx := context.Background()

	if err := bl.Set(ctx, "key1", []byte("value1"), time.Hour); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	val, err := bl.Get(ctx, "key1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(val) != "value1" {
		t.Errorf("Expected value1, got %q", val)
	}
	if bl.Name() != "test" {
		t.Errorf("Expected name of wrapped layer, got %s", bl.Name())
	}
}

func TestBloomLayer_Rejection(t *testing.T) {
	bl, _ := newTestLayer(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		bl.Set(ctx, fmt.Sprintf("key-%d", i), []byte("v"), time.Hour)
	}

	if _, err := bl.Get(ctx, "never-set"); !cache.IsNotFound(err) {
		t.Errorf("Expected ErrKeyNotFound, got %v", err)
	}

	stats := bl.Stats()
	if stats.TotalQueries != 1 {
		t.Errorf("Expected 1 query, got %d", stats.TotalQueries)
	}
	if stats.BloomRejected != 1 {
		t.Errorf("Expected 1 rejection, got %d", stats.BloomRejected)
	}
}

func TestBloomLayer_SkipsBackendForUnknownKeys(t *testing.T) {
	bl, base := newTestLayer(t)
	ctx := context.Background()

	// Written behind the filter's back.
	base.Set(ctx, "hidden", []byte("v"), time.Hour)

	if _, err := bl.Get(ctx, "hidden"); !cache.IsNotFound(err) {
		t.Errorf("Expected filter to reject key it never saw, got %v", err)
	}
}

func TestBloomLayer_DeleteCountsFalsePositive(t *testing.T) {
	bl, _ := newTestLayer(t)
	ctx := context.Background()

	bl.Set(ctx, "key1", []byte("v"), time.Hour)
	if err := bl.Delete(ctx, "key1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, err := bl.Get(ctx, "key1"); !cache.IsNotFound(err) {
		t.Errorf("Expected miss after delete, got %v", err)
	}

	stats := bl.Stats()
	if stats.FalsePositives != 1 {
		t.Errorf("Expected 1 false positive, got %d", stats.FalsePositives)
	}
	if stats.FalsePositiveRate != 1 {
		t.Errorf("Expected false positive rate 1, got %f", stats.FalsePositiveRate)
	}
}

func TestBloomLayer_Reset(t *testing.T) {
	bl, _ := newTestLayer(t)
	ctx := context.Background()

	bl.Set(ctx, "key1", []byte("v"), time.Hour)
	bl.Get(ctx, "key1")
	bl.Reset()

	if stats := bl.Stats(); stats.TotalQueries != 0 || stats.FilterCapacity == 0 {
		t.Errorf("Expected cleared stats with a fresh filter, got %+v", stats)
	}
	if _, err := bl.Get(ctx, "key1"); !cache.IsNotFound(err) {
		t.Errorf("Expected reset filter to reject key1, got %v", err)
	}
}

func TestBloomLayer_Defaults(t *testing.T) {
	bl := NewBloomLayer(memory.NewMemoryCache(memory.MemoryCacheConfig{}), 0, 2)
	defer bl.Close()

	if bl.expectedItems != 10000 {
		t.Errorf("Expected default of 10000 items, got %d", bl.expectedItems)
	}
	if bl.falsePositiveRate != 0.01 {
		t.Errorf("Expected default rate 0.01, got %f", bl.falsePositiveRate)
	}
}

func TestBloomLayer_CancelledContext(t *testing.T) {
	bl, _ := newTestLayer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := bl.Set(ctx, "k", []byte("v"), time.Hour); err != context.Canceled {
		t.Errorf("Expected context.Canceled on Set, got %v", err)
	}
	if _, err := bl.Get(ctx, "k"); err != context.Canceled {
		t.Errorf("Expected context.Canceled on Get, got %v", err)
	}
}
