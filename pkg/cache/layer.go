// Package cache defines the layers of the read-model cache that holds
// serialized account reports. Values are opaque bytes; callers own encoding.
package cache

import (
	"context"
	"time"
)

// Layer is one level of the cache chain.
type Layer interface {
	// Get returns the value stored under key, or an error matching
	// IsNotFound when there is none.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key for ttl. A zero ttl means the layer default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Name identifies the layer in logs and metrics (e.g. "memory", "redis").
	Name() string

	Close() error
}
