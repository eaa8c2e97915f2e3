package cache

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is returned by Get when the key is absent or expired.
var ErrCacheMiss = errors.New("cache: key not found")

// Service is the cache surface the rest of the service builds on. Values
// round-trip through JSON except plain strings, which are stored raw, so
// the same key reads identically from the memory and Redis backends.
//
// TryLock is a best-effort mutex: it acquires only when the key is free
// and the lock falls away on its own after ttl, so a crashed holder
// cannot wedge anyone.
type Service interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	DeleteByPattern(ctx context.Context, pattern string) error
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}
