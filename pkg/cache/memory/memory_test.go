package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"balance-ledger/pkg/cache"
)

func newTestCache(maxSize int) *MemoryCache {
	return NewMemoryCache(MemoryCacheConfig{
		Name:            "test",
		MaxSize:         maxSize,
		DefaultTTL:      time.Hour,
		CleanupInterval: time.Minute,
	})
}

func TestMemoryCache_SetGet(t *testing.T) {
	c := newTestCache(0)
	defer c.Close()

	ctx := context.Background()

	if _, err := c.Get(ctx, "missing"); !cache.IsNotFound(err) {
		t.Errorf("Expected ErrKeyNotFound, got %v", err)
	}

	if err := c.Set(ctx, "key1", []byte("value1"), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	value, err := c.Get(ctx, "key1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(value) != "value1" {
		t.Errorf("Expected 'value1', got %q", value)
	}
}

func TestMemoryCache_ValuesAreCopied(t *testing.T) {
	c := newTestCache(0)
	defer c.Close()

	ctx := context.Background()
	in := []byte("abc")
	c.Set(ctx, "k", in, 0)
	in[0] = 'X'

	out, _ := c.Get(ctx, "k")
	if string(out) != "abc" {
		t.Errorf("Stored value changed with caller slice: %q", out)
	}
	out[1] = 'Y'

	again, _ := c.Get(ctx, "k")
	if string(again) != "abc" {
		t.Errorf("Stored value changed with returned slice: %q", again)
	}
}

func TestMemoryCache_Delete(t *testing.T) {
	c := newTestCache(0)
	defer c.Close()

	ctx := context.Background()
	c.Set(ctx, "key1", []byte("value1"), 0)

	if err := c.Delete(ctx, "key1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := c.Get(ctx, "key1"); !cache.IsNotFound(err) {
		t.Errorf("Expected miss after delete, got %v", err)
	}
	if err := c.Delete(ctx, "key1"); err != nil {
		t.Errorf("Deleting a missing key should succeed, got %v", err)
	}
}

func TestMemoryCache_TTLExpiration(t *testing.T) {
	c := newTestCache(0)
	defer c.Close()

	ctx := context.Background()
	c.Set(ctx, "short", []byte("v"), 20*time.Millisecond)

	time.Sleep(40 * time.Millisecond)

	if _, err := c.Get(ctx, "short"); !cache.IsNotFound(err) {
		t.Errorf("Expected expired entry to miss, got %v", err)
	}
	if c.Stats().Size != 0 {
		t.Errorf("Expected expired entry to be removed, size %d", c.Stats().Size)
	}
}

func TestMemoryCache_LRUEviction(t *testing.T) {
	c := newTestCache(2)
	defer c.Close()

	ctx := context.Background()
	c.Set(ctx, "a", []byte("1"), 0)
	c.Set(ctx, "b", []byte("2"), 0)

	// Touch a so that b becomes least recently used.
	c.Get(ctx, "a")
	c.Set(ctx, "c", []byte("3"), 0)

	if _, err := c.Get(ctx, "b"); !cache.IsNotFound(err) {
		t.Errorf("Expected b to be evicted, got %v", err)
	}
	for _, key := range []string{"a", "c"} {
		if _, err := c.Get(ctx, key); err != nil {
			t.Errorf("Expected %s to remain, got %v", key, err)
		}
	}
	if c.Stats().Size != 2 {
		t.Errorf("Expected size 2, got %d", c.Stats().Size)
	}
}

func TestMemoryCache_OverwriteDoesNotEvict(t *testing.T) {
	c := newTestCache(2)
	defer c.Close()

	ctx := context.Background()
	c.Set(ctx, "a", []byte("1"), 0)
	c.Set(ctx, "b", []byte("2"), 0)
	c.Set(ctx, "a", []byte("3"), 0)

	if _, err := c.Get(ctx, "b"); err != nil {
		t.Errorf("Overwrite should not evict, got %v", err)
	}
	if v, _ := c.Get(ctx, "a"); string(v) != "3" {
		t.Errorf("Expected overwritten value, got %q", v)
	}
}

func TestMemoryCache_InvalidKey(t *testing.T) {
	c := newTestCache(0)
	defer c.Close()

	ctx := context.Background()
	if err := c.Set(ctx, "", []byte("v"), 0); err == nil {
		t.Error("Expected error for empty key")
	}
	if _, err := c.Get(ctx, "bad\nkey"); err == nil {
		t.Error("Expected error for key with control character")
	}
}

func TestMemoryCache_Cleanup(t *testing.T) {
	c := NewMemoryCache(MemoryCacheConfig{
		DefaultTTL:      10 * time.Millisecond,
		CleanupInterval: 10 * time.Millisecond,
	})
	defer c.Close()

	c.Set(context.Background(), "k", []byte("v"), 0)
	time.Sleep(50 * time.Millisecond)

	if c.Stats().Size != 0 {
		t.Errorf("Expected cleanup to purge expired entry, size %d", c.Stats().Size)
	}
}

func TestMemoryCache_Concurrent(t *testing.T) {
	c := newTestCache(50)
	defer c.Close()

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("k%d", (i*100+j)%80)
				c.Set(ctx, key, []byte("v"), 0)
				c.Get(ctx, key)
				if j%10 == 0 {
					c.Delete(ctx, key)
				}
			}
		}(i)
	}
	wg.Wait()

	if size := c.Stats().Size; size > 50 {
		t.Errorf("Size %d exceeds MaxSize", size)
	}
}

func TestMemoryCache_CloseIsIdempotent(t *testing.T) {
	c := newTestCache(0)
	c.Close()
	if err := c.Close(); err != nil {
		t.Errorf("Second Close failed: %v", err)
	}
}
