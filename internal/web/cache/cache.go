// Package cache stores rendered JSON:API documents in memory or Redis and
// invalidates them per resource type.
package cache

import (
	"context"
	"errors"
	"time"
)

// Cache is implemented by every cache backend
type Cache interface {
	// Get returns the value for key or an ErrCacheMiss
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key. A zero ttl uses the backend default, a
	// negative one never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	Delete(ctx context.Context, key string) error

	// Incr atomically increments the integer counter at key, starting from
	// zero, and returns the new value. Counters never expire.
	Incr(ctx context.Context, key string) (int64, error)

	// Clear removes every key under the backend prefix
	Clear(ctx context.Context) error

	Close() error
}

// CacheConfig holds common configuration for cache backends
type CacheConfig struct {
	// DefaultTTL applies when Set is called with a zero ttl
	DefaultTTL time.Duration
	// Prefix is prepended to all cache keys
	Prefix string
}

// DefaultCacheConfig returns a default cache configuration
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		DefaultTTL: time.Minute,
		Prefix:     "jsonapi:",
	}
}

// ErrCacheMiss is returned when a key is not in the cache
type ErrCacheMiss struct {
	Key string
}

func (e ErrCacheMiss) Error() string {
	return "cache miss: " + e.Key
}

// IsCacheMiss checks if an error is a cache miss
func IsCacheMiss(err error) bool {
	var miss ErrCacheMiss
	return errors.As(err, &miss)
}
