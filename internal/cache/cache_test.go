package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_SetNX(t *testing.T) {
	store := NewMemoryStore()
	now := time.Now()
	store.now = func() time.Time { return now }
	ctx := context.Background()

	ok, err := store.SetNX(ctx, "reset:abc", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.SetNX(ctx, "reset:abc", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second use of the same key must be rejected")

	now = now.Add(2 * time.Minute)
	ok, err = store.SetNX(ctx, "reset:abc", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "key is free again after expiry")
}

func TestMemoryStore_DelFreesKey(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	ok, err := store.SetNX(ctx, "reset:abc", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, store.Del(ctx, "reset:abc"))
	require.NoError(t, store.Del(ctx, "reset:missing"))

	ok, err = store.SetNX(ctx, "reset:abc", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryStore_IncrWindow(t *testing.T) {
	store := NewMemoryStore()
	now := time.Now()
	store.now = func() time.Time { return now }
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		n, err := store.Incr(ctx, "rl:1.2.3.4", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}

	now = now.Add(time.Minute)
	n, err := store.Incr(ctx, "rl:1.2.3.4", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMemoryStore_ConcurrentSetNX(t *testing.T) {
	store := NewMemoryStore()
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, _ := store.SetNX(context.Background(), "once", time.Minute)
			if ok {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
}

func TestNewRedisStore_BadURL(t *testing.T) {
	_, err := NewRedisStore(context.Background(), "not a url", "confras:")
	assert.Error(t, err)
}
