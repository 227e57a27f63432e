/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/acronis/go-wireserver/log"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Key     string
	Allowed bool
	At      time.Time
}

// StatsRecorder stores rate limiting decisions.
type StatsRecorder interface {
	Record(ctx context.Context, d Decision) error
}

// StatsReader reads cumulative decision counters.
type StatsReader interface {
	Totals(ctx context.Context) (allowed, denied int64, err error)
}

// ErrStatsUnavailable is returned when the recorder cannot read its counters back.
var ErrStatsUnavailable = errors.New("rate limiting stats are not readable")

// RecordingLimiter wraps a Limiter and records every decision.
// Recording is best effort: it is bounded by a timeout and its failures never change the decision.
type RecordingLimiter struct {
	Limiter
	recorder StatsRecorder
	timeout  time.Duration
	logger   log.FieldLogger
}

var _ Sweeper = (*RecordingLimiter)(nil)

// NewRecordingLimiter creates a new RecordingLimiter.
func NewRecordingLimiter(l Limiter, recorder StatsRecorder, timeout time.Duration, logger log.FieldLogger) *RecordingLimiter {
	return &RecordingLimiter{Limiter: l, recorder: recorder, timeout: timeout, logger: logger}
}

// Allow delegates to the wrapped limiter and records the decision.
func (rl *RecordingLimiter) Allow(ctx context.Context, key string) (allow bool, retryAfter time.Duration, err error) {
	if allow, retryAfter, err = rl.Limiter.Allow(ctx, key); err != nil {
		return allow, retryAfter, err
	}
	recCtx := ctx
	if rl.timeout > 0 {
		var cancel context.CancelFunc
		recCtx, cancel = context.WithTimeout(ctx, rl.timeout)
		defer cancel()
	}
	if recErr := rl.recorder.Record(recCtx, Decision{Key: key, Allowed: allow, At: time.Now()}); recErr != nil {
		rl.logger.Warn("failed to record rate limiting decision", log.String("key", key), log.Error(recErr))
	}
	return allow, retryAfter, nil
}

// Sweep delegates to the wrapped limiter if it keeps per-key state.
func (rl *RecordingLimiter) Sweep() int {
	if s, ok := rl.Limiter.(Sweeper); ok {
		return s.Sweep()
	}
	return 0
}

// Totals reads the cumulative counters from the recorder.
func (rl *RecordingLimiter) Totals(ctx context.Context) (allowed, denied int64, err error) {
	if r, ok := rl.recorder.(StatsReader); ok {
		return r.Totals(ctx)
	}
	return 0, 0, ErrStatsUnavailable
}

// RedisStatsRecorder keeps decision counters in Redis hashes:
//
//	<prefix>:total                 allowed/denied, cumulative
//	<prefix>:minute:<YYYYMMDDhhmm>  allowed/denied per minute, expiring after TTL
//	<prefix>:key:<key>             allowed/denied per client, only when key tracking is on
type RedisStatsRecorder struct {
	rdb       redis.UniversalClient
	prefix    string
	ttl       time.Duration
	trackKeys bool
}

// NewRedisStatsRecorder creates a new RedisStatsRecorder.
func NewRedisStatsRecorder(rdb redis.UniversalClient, prefix string, ttl time.Duration, trackKeys bool) *RedisStatsRecorder {
	prefix = strings.Trim(prefix, ":")
	if prefix == "" {
		prefix = "wireserver:ratelimit"
	}
	return &RedisStatsRecorder{rdb: rdb, prefix: prefix, ttl: ttl, trackKeys: trackKeys}
}

// Record increments the counters of the decision in a single pipeline.
func (s *RedisStatsRecorder) Record(ctx context.Context, d Decision) error {
	field := "denied"
	if d.Allowed {
		field = "allowed"
	}
	at := d.At
	if at.IsZero() {
		at = time.Now()
	}

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.prefix+":total", field, 1)

	minuteKey := fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))
	pipe.HIncrBy(ctx, minuteKey, field, 1)
	if s.ttl > 0 {
		pipe.Expire(ctx, minuteKey, s.ttl)
	}

	if s.trackKeys && d.Key != "" {
		clientKey := s.prefix + ":key:" + d.Key
		pipe.HIncrBy(ctx, clientKey, field, 1)
		if s.ttl > 0 {
			pipe.Expire(ctx, clientKey, s.ttl)
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record rate limiting decision in redis: %w", err)
	}
	return nil
}

// Totals returns the cumulative allowed and denied counters.
func (s *RedisStatsRecorder) Totals(ctx context.Context) (allowed, denied int64, err error) {
	vals, err := s.rdb.HGetAll(ctx, s.prefix+":total").Result()
	if err != nil {
		return 0, 0, fmt.Errorf("read rate limiting totals from redis: %w", err)
	}
	_, _ = fmt.Sscan(vals["allowed"], &allowed)
	_, _ = fmt.Sscan(vals["denied"], &denied)
	return allowed, denied, nil
}

// NewWithStats creates the configured limiter and, when Redis stats are enabled,
// wraps it with a RecordingLimiter. The returned close function releases the Redis client.
func NewWithStats(cfg *Config, logger log.FieldLogger) (Limiter, func() error, error) {
	lim, err := New(cfg)
	if err != nil {
		return nil, nil, err
	}
	redisCfg := cfg.Stats.Redis
	if !redisCfg.Enabled {
		return lim, func() error { return nil }, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     redisCfg.Address,
		Password: redisCfg.Password,
		DB:       redisCfg.DB,
	})
	recorder := NewRedisStatsRecorder(rdb, redisCfg.Prefix, redisCfg.TTL, redisCfg.TrackKeys)
	timeout := redisCfg.Timeout
	if timeout <= 0 {
		timeout = DefaultStatsTimeout
	}
	return NewRecordingLimiter(lim, recorder, timeout, logger), rdb.Close, nil
}
