package port

import (
	"context"
	"errors"
	"time"
)

// ErrMiss signals a cache miss, as opposed to a transport or server error.
var ErrMiss = errors.New("cache: miss")

// Cache is the key-value contract the application depends on. Values are
// plain strings; serialization stays with the caller. Implementations must
// be safe for concurrent use.
type Cache interface {
	// Get fetches the value for key, returning ErrMiss when absent.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value at key. Zero or negative ttl means no expiration.
	Set(ctx context.Context, key string, value string, ttl time.Duration) error

	// Del removes keys and returns how many existed.
	Del(ctx context.Context, keys ...string) (int64, error)

	// Ping verifies connectivity with the backend.
	Ping(ctx context.Context) error

	Close() error
}
