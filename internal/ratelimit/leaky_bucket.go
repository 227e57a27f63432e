/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/throttled/throttled/v2"
	"github.com/throttled/throttled/v2/store/memstore"
)

// DefaultMaxKeys bounds the number of client addresses tracked by LeakyBucketLimiter.
const DefaultMaxKeys = 10000

// LeakyBucketOpts configures LeakyBucketLimiter.
type LeakyBucketOpts struct {
	// MaxKeys is the LRU capacity of the per-client store. Zero means DefaultMaxKeys.
	MaxKeys int
	// Now replaces time.Now in the store.
	Now func() time.Time
}

// LeakyBucketLimiter drains each client's bucket at a constant rate using GCRA, see https://brandur.org/rate-limiting#gcra.
// The least recently seen clients are evicted when MaxKeys is reached, so the limiter never needs a sweep.
type LeakyBucketLimiter struct {
	gcra *throttled.GCRARateLimiterCtx
}

// NewLeakyBucketLimiter creates a limiter admitting maxBurst back-to-back requests per client.
func NewLeakyBucketLimiter(maxRate Rate, maxBurst int, opts LeakyBucketOpts) (*LeakyBucketLimiter, error) {
	if maxBurst <= 0 {
		return nil, fmt.Errorf("burst should be positive, got %d", maxBurst)
	}
	if opts.MaxKeys <= 0 {
		opts.MaxKeys = DefaultMaxKeys
	}
	store, err := memstore.New(opts.MaxKeys)
	if err != nil {
		return nil, fmt.Errorf("create client store: %w", err)
	}
	if opts.Now != nil {
		store.SetTimeNow(opts.Now)
	}
	// GCRA admits MaxBurst requests in addition to the first one.
	quota := throttled.RateQuota{MaxRate: throttled.PerDuration(maxRate.Count, maxRate.Duration), MaxBurst: maxBurst - 1}
	gcra, err := throttled.NewGCRARateLimiterCtx(throttled.WrapStoreWithContext(store), quota)
	if err != nil {
		return nil, fmt.Errorf("create GCRA limiter: %w", err)
	}
	return &LeakyBucketLimiter{gcra: gcra}, nil
}

// Allow takes one request from the client's bucket. RetryAfter is when the next request fits.
func (l *LeakyBucketLimiter) Allow(ctx context.Context, key string) (allow bool, retryAfter time.Duration, err error) {
	limited, res, err := l.gcra.RateLimitCtx(ctx, key, 1)
	switch {
	case err != nil:
		return false, 0, fmt.Errorf("leaky bucket of %s: %w", key, err)
	case limited:
		return false, res.RetryAfter, nil
	}
	return true, 0, nil
}
