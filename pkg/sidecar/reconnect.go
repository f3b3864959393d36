package sidecar

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// reconnectLimiter rate-limits how often a loop may reconnect after a disconnect: even if a
// flapping API server causes rapid successive disconnects, the loop cannot busy-loop reconnect
// attempts faster than once per throttle period. It is the loops' only wait before reconnecting;
// no fixed ErrorThrottleSleep pause follows each individual error, so a reconnect is immediate
// whenever a full throttle period has passed since the previous one.
type reconnectLimiter struct {
	limiter *rate.Limiter
}

// newReconnectLimiter builds a limiter allowing one reconnect per throttle period, with a burst
// of one so the first wait (the first reconnect after start) is never delayed.
func newReconnectLimiter(throttle time.Duration) *reconnectLimiter {
	return &reconnectLimiter{limiter: rate.NewLimiter(rate.Every(throttle), 1)}
}

// wait blocks until the limiter admits a reconnect or ctx is cancelled, returning false in the
// latter case.
func (r *reconnectLimiter) wait(ctx context.Context) bool {
	return r.limiter.Wait(ctx) == nil
}
