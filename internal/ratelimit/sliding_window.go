/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/RussellLuo/slidingwindow"
)

// SlidingWindowLimiter implements sliding window rate limiting algorithm.
// Up to maxRate.Count requests are admitted in any window of maxRate.Duration.
type SlidingWindowLimiter struct {
	windows *keyTable[*slidingwindow.Limiter]
	maxRate Rate
	now     func() time.Time
}

var _ Sweeper = (*SlidingWindowLimiter)(nil)

// NewSlidingWindowLimiter creates a new sliding window rate limiter.
func NewSlidingWindowLimiter(maxRate Rate, opts TableOpts) (*SlidingWindowLimiter, error) {
	if maxRate.Count <= 0 || maxRate.Duration <= 0 {
		return nil, fmt.Errorf("rate should be positive, got %d per %s", maxRate.Count, maxRate.Duration)
	}
	return &SlidingWindowLimiter{
		maxRate: maxRate,
		now:     time.Now,
		windows: newKeyTable(opts, func(int64) *slidingwindow.Limiter {
			lim, _ := slidingwindow.NewLimiter(
				maxRate.Duration, int64(maxRate.Count), func() (slidingwindow.Window, slidingwindow.StopFunc) {
					return slidingwindow.NewLocalWindow()
				})
			return lim
		}),
	}, nil
}

// Allow checks if the request should be allowed based on the rate limit.
func (l *SlidingWindowLimiter) Allow(_ context.Context, key string) (allow bool, retryAfter time.Duration, err error) {
	now := l.now()
	l.windows.maybeSweep(now.UnixNano())
	if l.windows.get(key, now.UnixNano()).Allow() {
		return true, 0, nil
	}
	retryAfter = now.Truncate(l.maxRate.Duration).Add(l.maxRate.Duration).Sub(now)
	return false, retryAfter, nil
}

// Sweep removes windows of keys idle longer than the idle timeout.
func (l *SlidingWindowLimiter) Sweep() int {
	return l.windows.sweep(l.now().UnixNano())
}
