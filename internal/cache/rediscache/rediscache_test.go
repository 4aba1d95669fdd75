package rediscache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestRedisCache_GetSet(t *testing.T) {
	mr := miniredis.RunT(t)
	c := New(mr.Addr())

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "summary:GA1", []byte(`{"total":45}`), time.Minute))

	b, ok, err := c.Get(ctx, "summary:GA1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte(`{"total":45}`), b)

	_, ok, err = c.Get(ctx, "summary:GA2")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRateLimiter_AlertCooldown(t *testing.T) {
	mr := miniredis.RunT(t)
	rl := NewRateLimiter(mr.Addr())

	ctx := context.Background()
	ok, n, err := rl.Allow(ctx, "alert:GA1", 2, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1), n)

	ok, n, _ = rl.Allow(ctx, "alert:GA1", 2, time.Minute)
	require.True(t, ok)
	require.Equal(t, int64(2), n)

	ok, n, _ = rl.Allow(ctx, "alert:GA1", 2, time.Minute)
	require.False(t, ok)
	require.Equal(t, int64(3), n)

	// Другая станция считает отдельно.
	ok, _, _ = rl.Allow(ctx, "alert:GA2", 2, time.Minute)
	require.True(t, ok)
}
