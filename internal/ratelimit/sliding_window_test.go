/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSlidingWindowLimiter(t *testing.T) {
	limiter, err := NewSlidingWindowLimiter(Rate{Count: 3, Duration: time.Minute}, TableOpts{})
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allow, _, err := limiter.Allow(ctx, "k")
		require.NoError(t, err)
		require.True(t, allow)
	}
	allow, retryAfter, err := limiter.Allow(ctx, "k")
	require.NoError(t, err)
	require.False(t, allow)
	require.Greater(t, retryAfter, time.Duration(0))
	require.LessOrEqual(t, retryAfter, time.Minute)

	allow, _, _ = limiter.Allow(ctx, "other")
	require.True(t, allow)
}

func TestSlidingWindowLimiter_Sweep(t *testing.T) {
	clock := newFakeClock()
	limiter, err := NewSlidingWindowLimiter(Rate{Count: 1, Duration: time.Second}, TableOpts{IdleTimeout: time.Minute})
	require.NoError(t, err)
	limiter.now = clock.Now

	_, _, _ = limiter.Allow(context.Background(), "k")
	require.Equal(t, 0, limiter.Sweep())
	clock.Advance(2 * time.Minute)
	require.Equal(t, 1, limiter.Sweep())
}
