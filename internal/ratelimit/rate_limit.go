/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Rate describes the frequency of requests.
type Rate struct {
	Count    int
	Duration time.Duration
}

// Limiter interface defines the rate limiting contract.
// Allow never blocks waiting for capacity: a refused request gets the time after which a retry may pass.
type Limiter interface {
	Allow(ctx context.Context, key string) (allow bool, retryAfter time.Duration, err error)
}

// Sweeper is implemented by limiters that keep per-key state which can be reclaimed when idle.
type Sweeper interface {
	// Sweep removes idle keys and returns how many were removed.
	Sweep() int
}

// Alg is a rate limiting algorithm.
type Alg string

// Rate limiting algorithms.
const (
	AlgTokenBucket   Alg = "tokenBucket"
	AlgLeakyBucket   Alg = "leakyBucket"
	AlgSlidingWindow Alg = "slidingWindow"
)

// New creates a limiter for the configured algorithm.
func New(cfg *Config) (Limiter, error) {
	maxRate := Rate{Count: cfg.Rate, Duration: cfg.Window}
	switch cfg.Alg {
	case AlgLeakyBucket:
		return NewLeakyBucketLimiter(maxRate, cfg.Burst, LeakyBucketOpts{MaxKeys: cfg.MaxKeys})
	case AlgSlidingWindow:
		return NewSlidingWindowLimiter(maxRate, TableOpts{IdleTimeout: cfg.IdleTimeout, SweepInterval: cfg.SweepInterval})
	case AlgTokenBucket, "":
		return NewTokenBucketLimiter(maxRate, cfg.Burst, TableOpts{IdleTimeout: cfg.IdleTimeout, SweepInterval: cfg.SweepInterval})
	}
	return nil, fmt.Errorf("unknown rate limiting algorithm %q", cfg.Alg)
}
