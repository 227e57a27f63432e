/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"sync"
	"time"

	"go.uber.org/atomic"
)

// Default key table settings.
const (
	DefaultIdleTimeout   = 5 * time.Minute
	DefaultSweepInterval = time.Minute
)

// TableOpts configures the per-key state table of a limiter.
type TableOpts struct {
	// IdleTimeout is how long a key may stay unused before its state is removed.
	IdleTimeout time.Duration
	// SweepInterval limits how often Allow itself sweeps the table. Sweep may also be called on a schedule.
	SweepInterval time.Duration
}

type tableEntry[T any] struct {
	value      T
	lastAccess atomic.Int64
}

// keyTable lazily creates per-key state and reclaims entries idle longer than idleTimeout.
// All times are unix nanoseconds.
type keyTable[T any] struct {
	entries       sync.Map
	size          atomic.Int64
	nextSweep     atomic.Int64
	idleTimeout   int64
	sweepInterval int64
	newValue      func(now int64) T
}

func newKeyTable[T any](opts TableOpts, newValue func(now int64) T) *keyTable[T] {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	return &keyTable[T]{
		idleTimeout:   int64(opts.IdleTimeout),
		sweepInterval: int64(opts.SweepInterval),
		newValue:      newValue,
	}
}

func (t *keyTable[T]) get(key string, now int64) T {
	if v, ok := t.entries.Load(key); ok {
		e := v.(*tableEntry[T])
		e.lastAccess.Store(now)
		return e.value
	}
	e := &tableEntry[T]{value: t.newValue(now)}
	e.lastAccess.Store(now)
	actual, loaded := t.entries.LoadOrStore(key, e)
	if !loaded {
		t.size.Inc()
		return e.value
	}
	existing := actual.(*tableEntry[T])
	existing.lastAccess.Store(now)
	return existing.value
}

// maybeSweep sweeps at most once per sweep interval. Only the caller that moves nextSweep forward sweeps.
func (t *keyTable[T]) maybeSweep(now int64) {
	next := t.nextSweep.Load()
	if now < next || !t.nextSweep.CompareAndSwap(next, now+t.sweepInterval) {
		return
	}
	t.sweep(now)
}

func (t *keyTable[T]) sweep(now int64) int {
	removed := 0
	t.entries.Range(func(k, v interface{}) bool {
		e := v.(*tableEntry[T])
		if now-e.lastAccess.Load() > t.idleTimeout && t.entries.CompareAndDelete(k, v) {
			t.size.Dec()
			removed++
		}
		return true
	})
	return removed
}

func (t *keyTable[T]) len() int {
	return int(t.size.Load())
}
