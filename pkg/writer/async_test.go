package writer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"balance-ledger/pkg/cache"
	"balance-ledger/pkg/cache/memory"
	"balance-ledger/pkg/cache/mock"
)

func newMemoryLayer(t *testing.T) *memory.MemoryCache {
	t.Helper()
	m := memory.NewMemoryCache(memory.MemoryCacheConfig{Name: "l1"})
	t.Cleanup(func() { m.Close() })
	return m
}

func TestNewAsyncWriter_Defaults(t *testing.T) {
	w := NewAsyncWriter(newMemoryLayer(t), AsyncWriterConfig{})
	defer w.Close()

	want := DefaultAsyncWriterConfig()
	if w.config != want {
		t.Errorf("Expected defaults %+v, got %+v", want, w.config)
	}
	if w.queueName != "warmup:l1" {
		t.Errorf("Expected queue name warmup:l1, got %s", w.queueName)
	}
}

func TestAsyncWriter_Write(t *testing.T) {
	layer := newMemoryLayer(t)
	w := NewAsyncWriter(layer, DefaultAsyncWriterConfig())
	defer w.Close()

	ctx := context.Background()
	if err := w.Write(ctx, "key1", []byte("value1"), time.Minute); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := w.Flush(time.Second); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	val, err := layer.Get(ctx, "key1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(val) != "value1" {
		t.Errorf("Expected value1, got %q", val)
	}
}

func TestAsyncWriter_ConcurrentWrites(t *testing.T) {
	layer := newMemoryLayer(t)
	w := NewAsyncWriter(layer, AsyncWriterConfig{QueueSize: 100, Workers: 4, MaxWaitTime: time.Second})
	defer w.Close()

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				w.Write(ctx, fmt.Sprintf("k-%d-%d", i, j), []byte("v"), time.Minute)
			}
		}(i)
	}
	wg.Wait()

	if err := w.Flush(2 * time.Second); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if stats := w.Stats(); stats.TotalWrites != 200 || stats.DroppedWrites != 0 {
		t.Errorf("Expected 200 accepted writes and no drops, got %+v", stats)
	}
	if _, err := layer.Get(ctx, "k-9-19"); err != nil {
		t.Errorf("Expected last write to land, got %v", err)
	}
}

func TestAsyncWriter_Backpressure(t *testing.T) {
	release := make(chan struct{})
	blocked := mock.NewMockLayer("blocked")
	blocked.SetFunc = func(ctx context.Context, key string, value []byte, ttl time.Duration) error {
		<-release
		return nil
	}

	w := NewAsyncWriter(blocked, AsyncWriterConfig{QueueSize: 1, Workers: 1, MaxWaitTime: -1})
	defer w.Close()
	defer close(release)

	ctx := context.Background()
	dropped := 0
	for i := 0; i < 10; i++ {
		if err := w.Write(ctx, "k", []byte("v"), 0); errors.Is(err, ErrQueueFull) {
			dropped++
		}
	}

	if dropped == 0 {
		t.Error("Expected writes to be dropped when the queue is full")
	}
	if got := w.Stats().DroppedWrites; got != int64(dropped) {
		t.Errorf("Expected %d dropped writes in stats, got %d", dropped, got)
	}
}

func TestAsyncWriter_ContextCancellation(t *testing.T) {
	w := NewAsyncWriter(newMemoryLayer(t), DefaultAsyncWriterConfig())
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := w.Write(ctx, "k", []byte("v"), 0); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestAsyncWriter_FailedWritesAreCounted(t *testing.T) {
	failing := mock.NewFailingLayer("down", cache.ErrLayerUnavailable)
	w := NewAsyncWriter(failing, DefaultAsyncWriterConfig())
	defer w.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		w.Write(ctx, "k", []byte("v"), 0)
	}
	if err := w.Flush(time.Second); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	if got := w.Stats().FailedWrites; got != 3 {
		t.Errorf("Expected 3 failed writes, got %d", got)
	}
}

func TestAsyncWriter_FlushTimeout(t *testing.T) {
	release := make(chan struct{})
	slow := mock.NewMockLayer("slow")
	slow.SetFunc = func(ctx context.Context, key string, value []byte, ttl time.Duration) error {
		<-release
		return nil
	}

	w := NewAsyncWriter(slow, AsyncWriterConfig{Workers: 1})
	defer w.Close()
	defer close(release)

	w.Write(context.Background(), "k", []byte("v"), 0)

	if err := w.Flush(20 * time.Millisecond); !errors.Is(err, ErrFlushTimeout) {
		t.Errorf("Expected ErrFlushTimeout, got %v", err)
	}
}

func TestAsyncWriter_CloseDrainsQueue(t *testing.T) {
	layer := newMemoryLayer(t)
	w := NewAsyncWriter(layer, AsyncWriterConfig{Workers: 1})

	ctx := context.Background()
	for i := 0; i < 50; i++ {
		w.Write(ctx, fmt.Sprintf("k%d", i), []byte("v"), time.Minute)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	for i := 0; i < 50; i++ {
		if _, err := layer.Get(ctx, fmt.Sprintf("k%d", i)); err != nil {
			t.Fatalf("Expected k%d to be written before Close returned, got %v", i, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Errorf("Second Close failed: %v", err)
	}
}

func TestAsyncWriter_WriteAfterClose(t *testing.T) {
	w := NewAsyncWriter(newMemoryLayer(t), DefaultAsyncWriterConfig())
	w.Close()

	if err := w.Write(context.Background(), "k", []byte("v"), 0); !errors.Is(err, ErrWriterClosed) {
		t.Errorf("Expected ErrWriterClosed, got %v", err)
	}
}

func TestAsyncWriter_SingleWorkerKeepsOrder(t *testing.T) {
	layer := newMemoryLayer(t)
	w := NewAsyncWriter(layer, AsyncWriterConfig{Workers: 1, MaxWaitTime: time.Second})
	defer w.Close()

	ctx := context.Background()
	for i := 0; i < 100; i++ {
		w.Write(ctx, "counter", []byte(fmt.Sprint(i)), time.Minute)
	}
	if err := w.Flush(time.Second); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	val, _ := layer.Get(ctx, "counter")
	if string(val) != "99" {
		t.Errorf("Expected last write to win, got %q", val)
	}
}
