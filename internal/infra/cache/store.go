package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Store.Get when the key is absent or expired.
var ErrNotFound = errors.New("cache: key not found")

// Store is the raw key/value backend behind the Accessor. Implementations
// must treat TTL as authoritative; expired keys behave as absent.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Ping is the health probe used by the circuit breaker to close again.
	Ping(ctx context.Context) error
}
