package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMemoryCache(t *testing.T) *MemoryCache {
	t.Helper()
	c := NewMemoryCache()
	t.Cleanup(func() { c.Close() })
	return c
}

func TestMemoryCache_SetAndGet(t *testing.T) {
	cache := newTestMemoryCache(t)
	ctx := context.Background()

	value := []byte(`{"data":[]}`)
	require.NoError(t, cache.Set(ctx, "doc", value, time.Minute))

	got, err := cache.Get(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, value, got)

	value[0] = 'X'
	got, _ = cache.Get(ctx, "doc")
	assert.Equal(t, byte('{'), got[0], "stored values are copied")
}

func TestMemoryCache_GetMiss(t *testing.T) {
	cache := newTestMemoryCache(t)

	_, err := cache.Get(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.True(t, IsCacheMiss(err))
}

func TestMemoryCache_Expiration(t *testing.T) {
	cache := newTestMemoryCache(t)
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	require.NoError(t, cache.Set(ctx, "short", []byte("v"), time.Second))
	require.NoError(t, cache.Set(ctx, "default", []byte("v"), 0))
	require.NoError(t, cache.Set(ctx, "forever", []byte("v"), -1))

	now = now.Add(2 * time.Second)
	_, err := cache.Get(ctx, "short")
	assert.True(t, IsCacheMiss(err))
	_, err = cache.Get(ctx, "default")
	assert.NoError(t, err, "default ttl is one minute")

	now = now.Add(time.Hour)
	_, err = cache.Get(ctx, "default")
	assert.True(t, IsCacheMiss(err))
	_, err = cache.Get(ctx, "forever")
	assert.NoError(t, err)
}

func TestMemoryCache_RemoveExpired(t *testing.T) {
	cache := newTestMemoryCache(t)
	ctx := context.Background()
	now := time.Now()
	cache.now = func() time.Time { return now }

	require.NoError(t, cache.Set(ctx, "a", []byte("1"), time.Second))
	require.NoError(t, cache.Set(ctx, "b", []byte("2"), time.Hour))

	now = now.Add(time.Minute)
	cache.removeExpired()
	assert.Equal(t, 1, cache.Len())
}

func TestMemoryCache_DeleteAndClear(t *testing.T) {
	cache := newTestMemoryCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, cache.Set(ctx, "b", []byte("2"), time.Minute))

	require.NoError(t, cache.Delete(ctx, "a"))
	_, err := cache.Get(ctx, "a")
	assert.True(t, IsCacheMiss(err))

	require.NoError(t, cache.Clear(ctx))
	assert.Equal(t, 0, cache.Len())
}

func TestMemoryCache_Incr(t *testing.T) {
	cache := newTestMemoryCache(t)
	ctx := context.Background()

	n, err := cache.Incr(ctx, "gen:Articles")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cache.Incr(ctx, "gen:Articles")
		}()
	}
	wg.Wait()

	got, err := cache.Get(ctx, "gen:Articles")
	require.NoError(t, err)
	assert.Equal(t, "21", string(got))

	require.NoError(t, cache.Set(ctx, "text", []byte("abc"), time.Minute))
	_, err = cache.Incr(ctx, "text")
	assert.Error(t, err)
}

func TestMemoryCache_CancelledContext(t *testing.T) {
	cache := newTestMemoryCache(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := cache.Get(ctx, "a")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, cache.Set(ctx, "a", nil, 0), context.Canceled)
	_, err = cache.Incr(ctx, "a")
	assert.ErrorIs(t, err, context.Canceled)
}
