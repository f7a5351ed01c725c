// Package memory is the in-process cache layer: a bounded LRU with TTL
// expiry and background cleanup.
package memory

import (
	"container/list"
	"context"
	"sync"
	"time"

	"balance-ledger/pkg/cache"
)

// MemoryCacheConfig holds configuration for the memory cache.
type MemoryCacheConfig struct {
	// Name is the cache layer identifier (default: "memory")
	Name string

	// MaxSize is the maximum number of entries, least recently used evicted
	// first (0 = unlimited)
	MaxSize int

	// DefaultTTL applies when Set is called with a zero ttl (default: 5m)
	DefaultTTL time.Duration

	// CleanupInterval is how often expired entries are purged (default: 1m)
	CleanupInterval time.Duration
}

// MemoryCache implements cache.Layer in process memory.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	lru     *list.List // front is most recently used
	config  MemoryCacheConfig

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

type entry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// NewMemoryCache creates a memory cache and starts its cleanup goroutine.
func NewMemoryCache(config MemoryCacheConfig) *MemoryCache {
	if config.Name == "" {
		config.Name = "memory"
	}
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = 5 * time.Minute
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = time.Minute
	}

	c := &MemoryCache{
		entries: make(map[string]*list.Element),
		lru:     list.New(),
		config:  config,
		stop:    make(chan struct{}),
	}

	c.wg.Add(1)
	go c.cleanup()

	return c
}

// Get returns a copy of the stored value.
func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	if err := cache.ValidateKey(key); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil, cache.ErrKeyNotFound
	}
	e := el.Value.(*entry)
	if time.Now().After(e.expiresAt) {
		c.remove(el)
		return nil, cache.ErrKeyNotFound
	}

	c.lru.MoveToFront(el)
	return append([]byte(nil), e.value...), nil
}

// Set stores a copy of value, evicting the least recently used entry when
// the cache is full.
func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := cache.ValidateKey(key); err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = c.config.DefaultTTL
	}

	e := &entry{
		key:       key,
		value:     append([]byte(nil), value...),
		expiresAt: time.Now().Add(ttl),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value = e
		c.lru.MoveToFront(el)
		return nil
	}

	if c.config.MaxSize > 0 && c.lru.Len() >= c.config.MaxSize {
		if oldest := c.lru.Back(); oldest != nil {
			c.remove(oldest)
		}
	}
	c.entries[key] = c.lru.PushFront(e)
	return nil
}

// Delete removes key. Missing keys are ignored.
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	if err := cache.ValidateKey(key); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.remove(el)
	}
	return nil
}

func (c *MemoryCache) Name() string {
	return c.config.Name
}

// Close stops the cleanup goroutine and drops all entries.
func (c *MemoryCache) Close() error {
	c.once.Do(func() {
		close(c.stop)
		c.wg.Wait()

		c.mu.Lock()
		c.entries = make(map[string]*list.Element)
		c.lru.Init()
		c.mu.Unlock()
	})
	return nil
}

// remove must be called with c.mu held.
func (c *MemoryCache) remove(el *list.Element) {
	c.lru.Remove(el)
	delete(c.entries, el.Value.(*entry).key)
}

func (c *MemoryCache) cleanup() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.removeExpired()
		case <-c.stop:
			return
		}
	}
}

func (c *MemoryCache) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for el := c.lru.Back(); el != nil; {
		prev := el.Prev()
		if now.After(el.Value.(*entry).expiresAt) {
			c.remove(el)
		}
		el = prev
	}
}

// Stats returns current cache statistics.
func (c *MemoryCache) Stats() MemoryCacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return MemoryCacheStats{
		Size:    c.lru.Len(),
		MaxSize: c.config.MaxSize,
	}
}

// MemoryCacheStats holds cache statistics.
type MemoryCacheStats struct {
	Size    int // Current number of entries
	MaxSize int // Maximum allowed entries (0 = unlimited)
}

var _ cache.Layer = (*MemoryCache)(nil)
