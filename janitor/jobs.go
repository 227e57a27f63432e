/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package janitor

import (
	"context"

	"github.com/acronis/go-wireserver/log"
)

// Job names.
const (
	JobLimiterSweep = "limiterSweep"
	JobCacheCleanup = "cacheCleanup"
	JobSummary      = "summary"
)

// Sweeper reclaims idle rate limiter state.
type Sweeper interface {
	Sweep() int
}

// ExpiredRemover removes expired cache entries.
type ExpiredRemover interface {
	RemoveExpired() int
}

// SummaryProvider returns the metrics summary line.
type SummaryProvider interface {
	Summary() string
}

// SweepLimiter returns a job removing idle rate limiter buckets.
func SweepLimiter(s Sweeper, logger log.FieldLogger) JobFunc {
	return func(context.Context) {
		if n := s.Sweep(); n > 0 {
			logger.Debug("idle rate limiter buckets are removed", log.Int("removed", n))
		}
	}
}

// RemoveExpiredCacheEntries returns a job removing expired response cache entries.
func RemoveExpiredCacheEntries(c ExpiredRemover, logger log.FieldLogger) JobFunc {
	return func(context.Context) {
		if n := c.RemoveExpired(); n > 0 {
			logger.Debug("expired cache entries are removed", log.Int("removed", n))
		}
	}
}

// LogSummary returns a job logging the metrics summary.
func LogSummary(p SummaryProvider, logger log.FieldLogger) JobFunc {
	return func(context.Context) {
		logger.Info(p.Summary())
	}
}

// Targets are the objects maintained by the standard jobs. Nil targets have no job.
type Targets struct {
	Limiter Sweeper
	Cache   ExpiredRemover
	Summary SummaryProvider
}

// NewWithConfig creates a Janitor with the standard jobs scheduled as configured.
func NewWithConfig(cfg *Config, targets Targets, logger log.FieldLogger) (*Janitor, error) {
	j := New(logger)
	if !cfg.Enabled {
		return j, nil
	}
	logger = j.logger
	if targets.Limiter != nil {
		if err := j.AddJob(JobLimiterSweep, cfg.LimiterSweep, SweepLimiter(targets.Limiter, logger)); err != nil {
			return nil, err
		}
	}
	if targets.Cache != nil {
		if err := j.AddJob(JobCacheCleanup, cfg.CacheCleanup, RemoveExpiredCacheEntries(targets.Cache, logger)); err != nil {
			return nil, err
		}
	}
	if targets.Summary != nil {
		if err := j.AddJob(JobSummary, cfg.Summary, LogSummary(targets.Summary, logger)); err != nil {
			return nil, err
		}
	}
	return j, nil
}
