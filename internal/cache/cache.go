package cache

import (
	"context"
	"time"
)

// Cache is the interface that a cache service provider must fit
type Cache interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string, value any) bool
	Exists(ctx context.Context, key string) bool
	Delete(ctx context.Context, key string) error
}
