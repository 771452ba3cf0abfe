package cache

import (
	"context"
	"errors"
	"time"
)

var (
	ErrCacheMiss = errors.New("cache: key not found")
)

// Service defines the cache operations the app relies on.
type Service interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	Counter
	Close() error
}

// Counter counts hits per key inside a fixed window. The first hit of a
// window starts its expiry; later hits do not extend it.
type Counter interface {
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error)
}
