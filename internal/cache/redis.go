package cache

import (
	"context"
	"time"

	"github.com/go-redis/cache/v8"
	"github.com/go-redis/redis/v8"
)

type redisCache struct {
	cache *cache.Cache
}

// NewRedisCache returns a Cache backed by the given redis client. Entries live
// only in redis; the client-side tier is skipped on every call.
func NewRedisCache(client *redis.Client) Cache {
	return &redisCache{cache: cache.New(&cache.Options{Redis: client})}
}

// Set stores value under key for ttl
func (c *redisCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return c.cache.Set(&cache.Item{
		Ctx:            ctx,
		Key:            key,
		Value:          value,
		TTL:            ttl,
		SkipLocalCache: true,
	})
}

// Get loads the entry under key into value, reporting whether it was present.
// value must be a pointer.
func (c *redisCache) Get(ctx context.Context, key string, value any) bool {
	return c.cache.Get(ctx, key, &value) == nil
}

// Exists reports whether key is cached
func (c *redisCache) Exists(ctx context.Context, key string) bool {
	return c.cache.Exists(ctx, key)
}

// Delete evicts the entry under key
func (c *redisCache) Delete(ctx context.Context, key string) error {
	return c.cache.Delete(ctx, key)
}
