package sidecar

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReconnectLimiterAllowsImmediateFirstWait(t *testing.T) {
	t.Parallel()

	r := newReconnectLimiter(time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	start := time.Now()
	require.True(t, r.wait(ctx))
	require.Less(t, time.Since(start), 200*time.Millisecond)
}

func TestReconnectLimiterThrottlesSecondWait(t *testing.T) {
	t.Parallel()

	r := newReconnectLimiter(200 * time.Millisecond)
	ctx := context.Background()

	require.True(t, r.wait(ctx))

	start := time.Now()
	require.True(t, r.wait(ctx))
	require.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestReconnectLimiterReturnsFalseOnCancelledContext(t *testing.T) {
	t.Parallel()

	r := newReconnectLimiter(time.Hour)
	r.wait(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.False(t, r.wait(ctx))
}
