package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newClockedStore(t *testing.T) (*InMemoryIdempotencyStore, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 6, 15, 9, 0, 0, 0, time.UTC)}
	store := NewInMemoryIdempotencyStore(time.Hour)
	store.now = clock.Now
	t.Cleanup(func() { _ = store.Close() })
	return store, clock
}

func TestInMemoryIdempotencyStore_MarkProcessed(t *testing.T) {
	ctx := context.Background()

	t.Run("marks a new fingerprint", func(t *testing.T) {
		store, _ := newClockedStore(t)
		isNew, err := store.MarkProcessed(ctx, "fp-1", time.Hour)
		require.NoError(t, err)
		assert.True(t, isNew)
	})

	t.Run("rejects a replayed fingerprint", func(t *testing.T) {
		store, _ := newClockedStore(t)
		_, err := store.MarkProcessed(ctx, "fp-2", time.Hour)
		require.NoError(t, err)

		isNew, err := store.MarkProcessed(ctx, "fp-2", time.Hour)
		require.NoError(t, err)
		assert.False(t, isNew)
	})

	t.Run("accepts again after expiration", func(t *testing.T) {
		store, clock := newClockedStore(t)
		_, err := store.MarkProcessed(ctx, "fp-3", time.Minute)
		require.NoError(t, err)

		clock.Advance(time.Minute)
		isNew, err := store.MarkProcessed(ctx, "fp-3", time.Minute)
		require.NoError(t, err)
		assert.True(t, isNew)
	})
}

func TestInMemoryIdempotencyStore_IsProcessed(t *testing.T) {
	ctx := context.Background()
	store, clock := newClockedStore(t)

	processed, err := store.IsProcessed(ctx, "unknown")
	require.NoError(t, err)
	assert.False(t, processed)

	_, err = store.MarkProcessed(ctx, "fp", time.Minute)
	require.NoError(t, err)
	processed, err = store.IsProcessed(ctx, "fp")
	require.NoError(t, err)
	assert.True(t, processed)

	clock.Advance(2 * time.Minute)
	processed, err = store.IsProcessed(ctx, "fp")
	require.NoError(t, err)
	assert.False(t, processed, "expired keys read as unprocessed")
}

func TestInMemoryIdempotencyStore_Forget(t *testing.T) {
	ctx := context.Background()
	store, _ := newClockedStore(t)

	_, err := store.MarkProcessed(ctx, "fp", time.Hour)
	require.NoError(t, err)
	require.NoError(t, store.Forget(ctx, "fp"))

	isNew, err := store.MarkProcessed(ctx, "fp", time.Hour)
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.NoError(t, store.Forget(ctx, "never-marked"))
}

func TestInMemoryIdempotencyStore_Cleanup(t *testing.T) {
	ctx := context.Background()
	store, clock := newClockedStore(t)

	_, _ = store.MarkProcessed(ctx, "short", time.Minute)
	_, _ = store.MarkProcessed(ctx, "long", time.Hour)
	assert.Equal(t, 2, store.Size())

	clock.Advance(10 * time.Minute)
	store.cleanup()
	assert.Equal(t, 1, store.Size())

	processed, _ := store.IsProcessed(ctx, "long")
	assert.True(t, processed)
}

func TestInMemoryIdempotencyStore_Concurrent(t *testing.T) {
	ctx := context.Background()
	store, _ := newClockedStore(t)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		fresh int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			isNew, err := store.MarkProcessed(ctx, "same-batch", time.Hour)
			assert.NoError(t, err)
			if isNew {
				mu.Lock()
				fresh++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, fresh, "exactly one submission wins")
}

func TestInMemoryIdempotencyStore_CloseTwice(t *testing.T) {
	store := NewInMemoryIdempotencyStore(0)
	assert.NoError(t, store.Close())
	assert.NoError(t, store.Close())
}
