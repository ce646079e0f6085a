package cache

import (
	"context"
	"time"

	"github.com/go-redis/cache/v8"
	"github.com/go-redis/redis/v8"
)

type redisCache struct {
	redis *cache.Cache
}

// NewRedisCache returns a new cache based on Redis
func NewRedisCache(client *redis.Client) Cache {
	return &redisCache{redis: cache.New(&cache.Options{Redis: client})}
}

// Set sets a new entry in redis cache
func (c *redisCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return c.redis.Set(&cache.Item{
		Ctx:            ctx,
		Key:            key,
		Value:          value,
		TTL:            ttl,
		SkipLocalCache: true,
	})
}

// Get decodes the entry stored under key into value
func (c *redisCache) Get(ctx context.Context, key string, value any) bool {
	return c.redis.Get(ctx, key, value) == nil
}

// Exists returns true if the key exists in redis
func (c *redisCache) Exists(ctx context.Context, key string) bool {
	return c.redis.Exists(ctx, key)
}

// Delete removes an entry from redis
func (c *redisCache) Delete(ctx context.Context, key string) error {
	return c.redis.Delete(ctx, key)
}
