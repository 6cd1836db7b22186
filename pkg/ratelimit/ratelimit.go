// Package ratelimit enforces a minimum spacing between successive calls,
// matching the per-request budget of upstream API plans.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter spaces out calls made through the same instance. With a budget of
// n requests per minute, consecutive Wait calls are separated by at least
// 60/n seconds. The first call never blocks.
type Limiter struct {
	rl *rate.Limiter
}

// PerMinute builds a limiter for the given requests-per-minute budget.
// Values below 1 are treated as 1.
func PerMinute(requestsPerMinute int) *Limiter {
	return &Limiter{
		rl: rate.NewLimiter(rate.Every(Interval(requestsPerMinute)), 1),
	}
}

// Wait blocks until the spacing since the previous call has elapsed, or the
// context is cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.rl.Wait(ctx)
}

// Interval returns the minimum spacing between calls for a
// requests-per-minute budget. It is also used directly by batch jobs that
// sleep between tickers.
func Interval(requestsPerMinute int) time.Duration {
	if requestsPerMinute < 1 {
		requestsPerMinute = 1
	}
	return time.Minute / time.Duration(requestsPerMinute)
}
