package fake

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFakeSource_Deterministic(t *testing.T) {
	f := New([]string{"GA1", "GA2", "GA3", "GA4", "GA5"})
	wall := time.Date(2026, 8, 30, 3, 15, 30, 0, time.UTC)
	f.now = func() time.Time { return wall }

	a, err := f.ScrapeWithRetry(context.Background())
	require.NoError(t, err)
	b, err := f.ScrapeWithRetry(context.Background())
	require.NoError(t, err)
	require.Equal(t, a, b)

	for _, sc := range a {
		require.NotEmpty(t, sc.TrackingID)
		require.Equal(t, "INDUCTED", sc.Status)
		require.False(t, sc.Timestamp.After(wall))
	}
}

func TestFakeSource_ContextCanceled(t *testing.T) {
	f := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.ScrapeWithRetry(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
