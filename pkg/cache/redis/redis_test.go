package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"balance-ledger/pkg/cache"

	"github.com/google/uuid"
)

func setupTestRedis(t *testing.T) *RedisCache {
	t.Helper()
	config := DefaultRedisCacheConfig()
	config.Name = "TestRedis"
	config.KeyPrefix = "test:cache:" + uuid.NewString() + ":"
	config.DialTimeout = time.Second
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		config.Addr = addr
	}

	r, err := NewRedisCache(config)
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRedisCache_SetGet(t *testing.T) {
	r := setupTestRedis(t)
	ctx := context.Background()

	payload := []byte{0x00, 0xff, '{', '}'}
	if err := r.Set(ctx, "key1", payload, time.Minute); err != nil {
		t.Fatalf("Failed to set key: %v", err)
	}

	val, err := r.Get(ctx, "key1")
	if err != nil {
		t.Fatalf("Failed to get key: %v", err)
	}
	if string(val) != string(payload) {
		t.Errorf("Expected binary-safe round trip, got %v", val)
	}
}

func TestRedisCache_GetMiss(t *testing.T) {
	r := setupTestRedis(t)

	if _, err := r.Get(context.Background(), "nonexistent"); !cache.IsNotFound(err) {
		t.Errorf("Expected ErrKeyNotFound, got %v", err)
	}
}

func TestRedisCache_Delete(t *testing.T) {
	r := setupTestRedis(t)
	ctx := context.Background()

	r.Set(ctx, "key1", []byte("value1"), time.Minute)

	if err := r.Delete(ctx, "key1"); err != nil {
		t.Fatalf("Failed to delete key: %v", err)
	}
	if _, err := r.Get(ctx, "key1"); !cache.IsNotFound(err) {
		t.Errorf("Expected ErrKeyNotFound after delete, got %v", err)
	}
}

func TestRedisCache_DefaultTTL(t *testing.T) {
	r := setupTestRedis(t)
	ctx := context.Background()

	r.Set(ctx, "key1", []byte("v"), 0)

	ttl, err := r.TTL(ctx, "key1")
	if err != nil {
		t.Fatalf("TTL failed: %v", err)
	}
	if ttl <= 0 || ttl > 5*time.Minute {
		t.Errorf("Expected default TTL up to 5m, got %s", ttl)
	}

	if _, err := r.TTL(ctx, "missing"); !cache.IsNotFound(err) {
		t.Errorf("Expected ErrKeyNotFound for missing key, got %v", err)
	}
}

func TestDefaultRedisCacheConfig(t *testing.T) {
	config := DefaultRedisCacheConfig()

	if config.Name != "redis" {
		t.Errorf("Expected default name 'redis', got '%s'", config.Name)
	}
	if config.Addr != "localhost:6379" {
		t.Errorf("Expected default addr 'localhost:6379', got '%s'", config.Addr)
	}
	if config.KeyPrefix != "cache:" {
		t.Errorf("Expected default prefix 'cache:', got '%s'", config.KeyPrefix)
	}
}

func TestNewClient_NoAddress(t *testing.T) {
	if _, err := NewClient(RedisCacheConfig{}); err == nil {
		t.Error("Expected error without an address")
	}
}
