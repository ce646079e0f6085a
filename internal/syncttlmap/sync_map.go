package syncttlmap

import (
	"context"
	"sync"
	"time"
)

// TTLMap is a concurrent map whose entries expire TTL after they were stored
type TTLMap struct {
	TTL  time.Duration
	data sync.Map
	now  func() time.Time
}

type expireEntry struct {
	ExpiresAt time.Time
	Value     any
}

// New returns a new TTLMap
func New(ttl time.Duration) *TTLMap {
	return &TTLMap{TTL: ttl, now: time.Now}
}

func (t *TTLMap) entry(val any) expireEntry {
	return expireEntry{ExpiresAt: t.now().Add(t.TTL), Value: val}
}

// Store saves a key/value pair into TTLMap
func (t *TTLMap) Store(key string, val any) {
	t.data.Store(key, t.entry(val))
}

// Claim stores val under key unless a live entry already exists. It reports whether it stored it.
func (t *TTLMap) Claim(key string, val any) bool {
	for {
		current, loaded := t.data.LoadOrStore(key, t.entry(val))
		if !loaded {
			return true
		}
		if !t.now().After(current.(expireEntry).ExpiresAt) {
			return false
		}
		if t.data.CompareAndSwap(key, current, t.entry(val)) {
			return true
		}
	}
}

// Delete deletes the given key from TTLMap
func (t *TTLMap) Delete(key string) {
	t.data.Delete(key)
}

// Release deletes key only while it still holds the entry claimed with val. Values must be comparable.
func (t *TTLMap) Release(key string, val any) bool {
	current, ok := t.data.Load(key)
	if !ok || current.(expireEntry).Value != val {
		return false
	}
	return t.data.CompareAndDelete(key, current)
}

// Load retrieves the value of the given key, nil when it is missing or expired
func (t *TTLMap) Load(key string) any {
	entry, ok := t.data.Load(key)
	if !ok {
		return nil
	}
	e := entry.(expireEntry)
	if t.now().After(e.ExpiresAt) {
		return nil
	}
	return e.Value
}

// CleaningBackground removes expired entries every cleaning period until ctx is done
func (t *TTLMap) CleaningBackground(ctx context.Context, cleaning time.Duration) {
	go func() {
		ticker := time.NewTicker(cleaning)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				now := t.now()
				t.data.Range(func(k, v any) bool {
					if now.After(v.(expireEntry).ExpiresAt) {
						t.data.CompareAndDelete(k, v)
					}
					return true
				})
			}
		}
	}()
}
