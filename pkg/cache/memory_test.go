package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMemory(t *testing.T, opts ...MemoryOption) (*MemoryCache, *time.Time) {
	t.Helper()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	mc := NewMemoryCache(opts...)
	mc.now = func() time.Time { return now }
	t.Cleanup(func() { _ = mc.Close() })
	return mc, &now
}

func TestMemorySetGetExpire(t *testing.T) {
	ctx := context.Background()
	mc, now := newTestMemory(t)

	type snap struct {
		Pair  string  `json:"pair"`
		Ratio float64 `json:"ratio"`
	}
	require.NoError(t, mc.Set(ctx, "s", snap{"A-B", 1.5}, time.Second))
	require.NoError(t, mc.Set(ctx, "raw", "hello", 0))

	var got snap
	require.NoError(t, mc.Get(ctx, "s", &got))
	assert.Equal(t, snap{"A-B", 1.5}, got)

	var s string
	require.NoError(t, mc.Get(ctx, "raw", &s))
	assert.Equal(t, "hello", s)

	*now = now.Add(2 * time.Second)
	assert.True(t, errors.Is(mc.Get(ctx, "s", &got), ErrCacheMiss))
	assert.NoError(t, mc.Get(ctx, "raw", &s))

	require.NoError(t, mc.Delete(ctx, "raw"))
	assert.ErrorIs(t, mc.Get(ctx, "raw", &s), ErrCacheMiss)
}

func TestMemoryIncrWindow(t *testing.T) {
	ctx := context.Background()
	mc, now := newTestMemory(t)

	for i := int64(1); i <= 3; i++ {
		n, err := mc.IncrWindow(ctx, "ip", time.Second)
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}

	*now = now.Add(time.Second)
	n, err := mc.IncrWindow(ctx, "ip", time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = mc.IncrWindow(ctx, "ip", 0)
	assert.Error(t, err)
}

func TestMemoryEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	mc, now := newTestMemory(t, WithMemoryMaxSize(2))

	require.NoError(t, mc.Set(ctx, "a", "1", 0))
	*now = now.Add(time.Millisecond)
	require.NoError(t, mc.Set(ctx, "b", "2", 0))
	*now = now.Add(time.Millisecond)
	var s string
	require.NoError(t, mc.Get(ctx, "a", &s))
	*now = now.Add(time.Millisecond)
	require.NoError(t, mc.Set(ctx, "c", "3", 0))

	assert.Equal(t, 2, mc.Len())
	assert.ErrorIs(t, mc.Get(ctx, "b", &s), ErrCacheMiss)
	assert.NoError(t, mc.Get(ctx, "a", &s))
}

func TestMemorySweep(t *testing.T) {
	ctx := context.Background()
	mc, now := newTestMemory(t)
	require.NoError(t, mc.Set(ctx, "a", "1", time.Second))
	require.NoError(t, mc.Set(ctx, "b", "1", 0))
	*now = now.Add(2 * time.Second)
	assert.Equal(t, 1, mc.sweep())
	assert.Equal(t, 1, mc.Len())
}

func TestWindowKey(t *testing.T) {
	ts := time.Unix(10, 500_000_000)
	assert.Equal(t, "k:10", WindowKey("k", time.Second, ts))
	assert.Equal(t, "k", WindowKey("k", 0, ts))
}
