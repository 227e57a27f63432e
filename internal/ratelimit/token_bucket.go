/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
	"math/bits"
	"time"

	"go.uber.org/atomic"
)

// tokenScale is the number of integer units in one token, so fractional refills are exact.
const tokenScale = 1_000_000

// Defaults of the token bucket.
const (
	DefaultRate  = 50
	DefaultBurst = 100
)

type tokenBucket struct {
	tokens     atomic.Int64 // scaled units
	lastRefill atomic.Int64 // unix nanoseconds
}

// TokenBucketLimiter is a per-key token bucket.
// Each key starts with a full bucket of maxBurst tokens refilled at maxRate.
// The hot path uses only compare-and-swap operations.
type TokenBucketLimiter struct {
	capacity    int64  // scaled units
	unitsPerDur uint64 // scaled units minted per rateDur
	rateDur     uint64 // nanoseconds
	fillNanos   int64  // time to refill an empty bucket
	buckets     *keyTable[*tokenBucket]
	now         func() time.Time
}

var _ Sweeper = (*TokenBucketLimiter)(nil)

// NewTokenBucketLimiter creates a new token bucket rate limiter.
func NewTokenBucketLimiter(maxRate Rate, maxBurst int, opts TableOpts) (*TokenBucketLimiter, error) {
	if maxRate.Count <= 0 || maxRate.Duration <= 0 {
		return nil, fmt.Errorf("rate should be positive, got %d per %s", maxRate.Count, maxRate.Duration)
	}
	if maxBurst <= 0 {
		return nil, fmt.Errorf("burst should be positive, got %d", maxBurst)
	}
	l := &TokenBucketLimiter{
		capacity:    int64(maxBurst) * tokenScale,
		unitsPerDur: uint64(maxRate.Count) * tokenScale,
		rateDur:     uint64(maxRate.Duration),
		now:         time.Now,
	}
	l.fillNanos = int64(mulDivCeil(uint64(l.capacity), l.rateDur, l.unitsPerDur))
	l.buckets = newKeyTable(opts, func(now int64) *tokenBucket {
		b := &tokenBucket{}
		b.tokens.Store(l.capacity)
		b.lastRefill.Store(now)
		return b
	})
	return l, nil
}

// Allow takes one token from the key's bucket.
func (l *TokenBucketLimiter) Allow(_ context.Context, key string) (allow bool, retryAfter time.Duration, err error) {
	now := l.now().UnixNano()
	l.buckets.maybeSweep(now)

	b := l.buckets.get(key, now)
	l.refill(b, now)
	for {
		cur := b.tokens.Load()
		if cur < tokenScale {
			return false, l.timeToMint(tokenScale - cur), nil
		}
		if b.tokens.CompareAndSwap(cur, cur-tokenScale) {
			return true, 0, nil
		}
	}
}

// refill claims the interval since the last refill and adds the tokens minted in it.
// An interval too short to mint a single unit is left unclaimed to keep accumulating.
func (l *TokenBucketLimiter) refill(b *tokenBucket, now int64) {
	for {
		last := b.lastRefill.Load()
		elapsed := now - last
		if elapsed <= 0 {
			return
		}
		if elapsed > l.fillNanos {
			elapsed = l.fillNanos
		}
		add := int64(mulDiv(uint64(elapsed), l.unitsPerDur, l.rateDur))
		if add == 0 {
			return
		}
		if !b.lastRefill.CompareAndSwap(last, now) {
			continue
		}
		for {
			cur := b.tokens.Load()
			next := cur + add
			if next > l.capacity {
				next = l.capacity
			}
			if next == cur || b.tokens.CompareAndSwap(cur, next) {
				return
			}
		}
	}
}

func (l *TokenBucketLimiter) timeToMint(units int64) time.Duration {
	return time.Duration(mulDivCeil(uint64(units), l.rateDur, l.unitsPerDur))
}

// Sweep removes buckets of keys idle longer than the idle timeout.
func (l *TokenBucketLimiter) Sweep() int {
	return l.buckets.sweep(l.now().UnixNano())
}

// Len returns the number of tracked keys.
func (l *TokenBucketLimiter) Len() int {
	return l.buckets.len()
}

// mulDiv returns a*b/c without intermediate overflow, saturating at the max int64.
func mulDiv(a, b, c uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	if hi >= c {
		return 1<<63 - 1
	}
	q, _ := bits.Div64(hi, lo, c)
	if q > 1<<63-1 {
		return 1<<63 - 1
	}
	return q
}

func mulDivCeil(a, b, c uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	if hi >= c {
		return 1<<63 - 1
	}
	q, r := bits.Div64(hi, lo, c)
	if r != 0 {
		q++
	}
	if q > 1<<63-1 {
		return 1<<63 - 1
	}
	return q
}
