package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInterval(t *testing.T) {
	tests := []struct {
		name string
		rpm  int
		want time.Duration
	}{
		{"free tier", 5, 12 * time.Second},
		{"one per minute", 1, time.Minute},
		{"sub-second spacing", 600, 100 * time.Millisecond},
		{"zero clamps to one", 0, time.Minute},
		{"negative clamps to one", -3, time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Interval(tt.rpm))
		})
	}
}

func TestWaitFirstCallImmediate(t *testing.T) {
	l := PerMinute(1)

	start := time.Now()
	require.NoError(t, l.Wait(context.Background()))
	require.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestWaitEnforcesSpacing(t *testing.T) {
	// 600 rpm gives 100ms spacing; consecutive calls through the same
	// limiter must be at least that far apart.
	l := PerMinute(600)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, l.Wait(ctx))
	require.NoError(t, l.Wait(ctx))
	elapsed := time.Since(start)

	require.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	require.Less(t, elapsed, 500*time.Millisecond)
}

func TestWaitIndependentLimiters(t *testing.T) {
	// Separate instances do not share a budget.
	a := PerMinute(1)
	b := PerMinute(1)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, a.Wait(ctx))
	require.NoError(t, b.Wait(ctx))
	require.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestWaitCancelledContext(t *testing.T) {
	l := PerMinute(1)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, l.Wait(ctx))
	cancel()
	require.Error(t, l.Wait(ctx))
}
