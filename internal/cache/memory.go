package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/patrickmn/go-cache"
)

const (
	memoryDefTTL        = 60 * time.Minute
	memoryCleanUPPeriod = 1 * time.Minute
)

type memory struct {
	c *cache.Cache
}

// NewMemoryCache returns a basic in memory cache. Values are stored as JSON so reads
// behave like the networked caches.
func NewMemoryCache() Cache {
	return &memory{c: cache.New(memoryDefTTL, memoryCleanUPPeriod)}
}

// Set sets an item in the in memory cache
func (m *memory) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if ttl <= ForEver {
		ttl = cache.NoExpiration
	}
	m.c.Set(key, raw, ttl)
	return nil
}

// Get retrieves a cache entry into value
func (m *memory) Get(_ context.Context, key string, value any) bool {
	raw, found := m.c.Get(key)
	if !found {
		return false
	}
	b, ok := raw.([]byte)
	if !ok {
		return false
	}
	return json.Unmarshal(b, value) == nil
}

// Exists returns true if the key exists in the cache
func (m *memory) Exists(_ context.Context, key string) bool {
	_, found := m.c.Get(key)
	return found
}

// Delete removes and entry from the cache
func (m *memory) Delete(_ context.Context, key string) error {
	m.c.Delete(key)
	return nil
}
