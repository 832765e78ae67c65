package providers

import (
	"context"
	"time"
)

// CacheProvider is the caching surface providers depend on.
type CacheProvider interface {
	GetRaw(ctx context.Context, key string) ([]byte, error)
	SetRaw(ctx context.Context, key string, payload []byte, expiration time.Duration) error
	GetSimple(key string, dest interface{}) error
	SetSimple(key string, value interface{}, expiration time.Duration) error
}
