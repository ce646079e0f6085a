package syncttlmap

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMtSave(t *testing.T) {
	ttl := 50 * time.Millisecond
	cleanup := 150 * time.Millisecond

	mMap := New(ttl)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mMap.CleaningBackground(ctx, cleanup)

	assert.Equal(t, mMap.TTL, ttl)
	assert.Nil(t, mMap.Load("notExistingKey"))

	mMap.Store("hello", "world")
	assert.Equal(t, "world", mMap.Load("hello"))

	time.Sleep(200 * time.Millisecond)
	assert.Nil(t, mMap.Load("hello"))
}

func TestClaim(t *testing.T) {
	now := time.Date(2024, 10, 15, 10, 0, 0, 0, time.UTC)
	mMap := New(time.Minute)
	mMap.now = func() time.Time { return now }

	assert.True(t, mMap.Claim("2024-10-15/a.json", 1))
	assert.False(t, mMap.Claim("2024-10-15/a.json", 2))
	assert.Equal(t, 1, mMap.Load("2024-10-15/a.json"))

	now = now.Add(2 * time.Minute)
	assert.True(t, mMap.Claim("2024-10-15/a.json", 3))
	assert.Equal(t, 3, mMap.Load("2024-10-15/a.json"))

	mMap.Delete("2024-10-15/a.json")
	assert.True(t, mMap.Claim("2024-10-15/a.json", 4))
}

func TestClaim_Concurrent(t *testing.T) {
	mMap := New(time.Minute)
	var won atomic.Int32
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if mMap.Claim("key", struct{}{}) {
				won.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), won.Load())
}

func TestRelease_KeepsLaterClaim(t *testing.T) {
	now := time.Date(2024, 10, 15, 10, 0, 0, 0, time.UTC)
	mMap := New(time.Minute)
	mMap.now = func() time.Time { return now }

	assert.True(t, mMap.Claim("2024-10-15/a.json", "first"))
	now = now.Add(2 * time.Minute)
	assert.True(t, mMap.Claim("2024-10-15/a.json", "second"))

	assert.False(t, mMap.Release("2024-10-15/a.json", "first"))
	assert.Equal(t, "second", mMap.Load("2024-10-15/a.json"))
	assert.False(t, mMap.Claim("2024-10-15/a.json", "third"))

	assert.True(t, mMap.Release("2024-10-15/a.json", "second"))
	assert.Nil(t, mMap.Load("2024-10-15/a.json"))
	assert.False(t, mMap.Release("2024-10-15/a.json", "second"))
}
