package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryCache_SetGet(t *testing.T) {
	t.Parallel()

	c := NewMemoryCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", time.Hour))

	got, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v", got)

	// Get не потребляет запись.
	_, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMemoryCache_GetMiss(t *testing.T) {
	t.Parallel()

	c := NewMemoryCache()

	_, ok, err := c.Get(context.Background(), "absent")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryCache_TakeIsSingleUse(t *testing.T) {
	t.Parallel()

	c := NewMemoryCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", time.Hour))

	got, ok, err := c.Take(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v", got)

	_, ok, err = c.Take(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryCache_TTLExpiry(t *testing.T) {
	t.Parallel()

	c := NewMemoryCache()
	ctx := context.Background()

	now := time.Now()
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "k", "v", 2*time.Hour))

	now = now.Add(2*time.Hour - time.Second)
	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)

	now = now.Add(2 * time.Second)
	_, ok, err = c.Take(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryCache_Remove(t *testing.T) {
	t.Parallel()

	c := NewMemoryCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", time.Hour))
	require.NoError(t, c.Remove(ctx, "k"))

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryCache_ConcurrentTake_SingleWinner(t *testing.T) {
	t.Parallel()

	c := NewMemoryCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", time.Hour))

	const workers = 32

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, ok, err := c.Take(ctx, "k")
			require.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, wins)
}
