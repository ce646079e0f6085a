package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/intergov/notary/internal/config"
	"github.com/intergov/notary/internal/core/domain"
	"github.com/intergov/notary/internal/log"
	"github.com/intergov/notary/internal/redis"
)

// ForEver It can be cached forever
const ForEver = 0 * time.Second

// Cache interface propose an interface that any cache should adhere
type Cache interface {
	// Set sets a value in the caches accessible by the key. The ttl param is the maximum time to live in the cache
	// a ttl=0 means that the entry could be cached forever
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	// Get searches for a non expired entry and decodes it into value, which must be a pointer.
	// You should only trust the value if the returned boolean is true.
	Get(ctx context.Context, key string, value any) bool
	// Exists tells whether a key exists in the cache with a valid ttl
	Exists(ctx context.Context, key string) bool
	// Delete removes an entry from the cache.
	Delete(ctx context.Context, key string) error
}

// NewCacheClient creates a new cache client based on the configuration
func NewCacheClient(ctx context.Context, cfg config.Cache) (Cache, error) {
	switch cfg.Provider {
	case config.CacheProviderRedis:
		rdb, err := redis.Open(ctx, cfg.URL)
		if err != nil {
			log.Error(ctx, "cannot connect to redis", "err", err, "host", cfg.URL)
			return nil, err
		}
		return NewRedisCache(rdb), nil
	case config.CacheProviderValKey:
		client, err := redis.OpenValKey(ctx, cfg.URL)
		if err != nil {
			log.Error(ctx, "cannot connect to valkey", "err", err, "host", cfg.URL)
			return nil, err
		}
		return NewValKeyCache(client), nil
	case config.CacheProviderMemory:
		return NewMemoryCache(), nil
	}
	return nil, domain.NewConfigurationError("cache provider", fmt.Errorf("unknown provider %q", cfg.Provider))
}
