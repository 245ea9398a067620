package cache

import (
	"context"
	"time"
)

// Cache is a TTL key/value store. It holds short-lived authorization state
// (PKCE verifiers keyed by session id) so it can live in process memory for a
// single instance or in Redis when several instances share callbacks.
type Cache interface {
	// Get retrieves a value by key. Returns ErrCacheMiss if not found or expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with the given TTL, overwriting any previous value.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value by key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases background resources.
	Close() error
}

// CacheError is a constant error type for cache conditions.
type CacheError string

func (e CacheError) Error() string { return string(e) }

const (
	// ErrCacheMiss indicates the key was not found in cache.
	ErrCacheMiss CacheError = "cache miss"
)
