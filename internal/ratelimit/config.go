/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"fmt"
	"time"

	"github.com/acronis/go-wireserver/config"
)

const cfgDefaultKeyPrefix = "rateLimit"

const (
	cfgKeyEnabled        = "enabled"
	cfgKeyAlg            = "alg"
	cfgKeyRate           = "rate"
	cfgKeyBurst          = "burst"
	cfgKeyWindow         = "window"
	cfgKeyIdleTimeout    = "idleTimeout"
	cfgKeySweepInterval  = "sweepInterval"
	cfgKeyMaxKeys        = "maxKeys"
	cfgKeyRedisEnabled   = "stats.redis.enabled"
	cfgKeyRedisAddress   = "stats.redis.address"
	cfgKeyRedisPassword  = "stats.redis.password"
	cfgKeyRedisDB        = "stats.redis.db"
	cfgKeyRedisPrefix    = "stats.redis.prefix"
	cfgKeyRedisTTL       = "stats.redis.ttl"
	cfgKeyRedisTrackKeys = "stats.redis.trackKeys"
	cfgKeyRedisTimeout   = "stats.redis.timeout"
)

// DefaultStatsTimeout bounds a single decision recording.
const DefaultStatsTimeout = 50 * time.Millisecond

// Config is a configuration for per-client rate limiting.
type Config struct {
	Enabled       bool
	Alg           Alg
	Rate          int
	Burst         int
	Window        time.Duration
	IdleTimeout   time.Duration
	SweepInterval time.Duration
	MaxKeys       int
	Stats         StatsConfig

	keyPrefix string
}

// StatsConfig configures recording of decisions in Redis.
type StatsConfig struct {
	Redis RedisStatsConfig
}

// RedisStatsConfig is a configuration of the Redis stats recorder.
type RedisStatsConfig struct {
	Enabled   bool
	Address   string
	Password  string
	DB        int
	Prefix    string
	TTL       time.Duration
	TrackKeys bool
	Timeout   time.Duration
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates a new instance of the Config.
func NewConfig() *Config {
	return &Config{keyPrefix: cfgDefaultKeyPrefix}
}

// KeyPrefix implements config.KeyPrefixProvider.
func (c *Config) KeyPrefix() string {
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values in config.DataProvider.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyEnabled, true)
	dp.SetDefault(cfgKeyAlg, string(AlgTokenBucket))
	dp.SetDefault(cfgKeyRate, DefaultRate)
	dp.SetDefault(cfgKeyBurst, DefaultBurst)
	dp.SetDefault(cfgKeyWindow, time.Second.String())
	dp.SetDefault(cfgKeyIdleTimeout, DefaultIdleTimeout.String())
	dp.SetDefault(cfgKeySweepInterval, DefaultSweepInterval.String())
	dp.SetDefault(cfgKeyMaxKeys, DefaultMaxKeys)
	dp.SetDefault(cfgKeyRedisAddress, "localhost:6379")
	dp.SetDefault(cfgKeyRedisTTL, (24 * time.Hour).String())
	dp.SetDefault(cfgKeyRedisTimeout, DefaultStatsTimeout.String())
}

var availableAlgs = []string{string(AlgTokenBucket), string(AlgLeakyBucket), string(AlgSlidingWindow)}

// Set sets rate limiting configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	if c.Enabled, err = dp.GetBool(cfgKeyEnabled); err != nil {
		return err
	}
	alg, err := dp.GetStringFromSet(cfgKeyAlg, availableAlgs, false)
	if err != nil {
		return err
	}
	c.Alg = Alg(alg)

	for key, dst := range map[string]*int{
		cfgKeyRate:    &c.Rate,
		cfgKeyBurst:   &c.Burst,
		cfgKeyMaxKeys: &c.MaxKeys,
	} {
		if *dst, err = config.GetPositiveInt(dp, key); err != nil {
			return err
		}
	}
	for key, dst := range map[string]*time.Duration{
		cfgKeyWindow:        &c.Window,
		cfgKeyIdleTimeout:   &c.IdleTimeout,
		cfgKeySweepInterval: &c.SweepInterval,
	} {
		if *dst, err = config.GetPositiveDuration(dp, key); err != nil {
			return err
		}
	}
	return c.setRedisStatsConfig(dp)
}

func (c *Config) setRedisStatsConfig(dp config.DataProvider) error {
	var err error
	r := &c.Stats.Redis
	if r.Enabled, err = dp.GetBool(cfgKeyRedisEnabled); err != nil {
		return err
	}
	if r.Address, err = config.GetHostPort(dp, cfgKeyRedisAddress, false); err != nil {
		return err
	}
	if r.Enabled && r.Address == "" {
		return dp.WrapKeyErr(cfgKeyRedisAddress, fmt.Errorf("cannot be empty when stats are enabled"))
	}
	if r.Password, err = dp.GetString(cfgKeyRedisPassword); err != nil {
		return err
	}
	if r.DB, err = config.GetNonNegativeInt(dp, cfgKeyRedisDB); err != nil {
		return err
	}
	if r.Prefix, err = dp.GetString(cfgKeyRedisPrefix); err != nil {
		return err
	}
	if r.TTL, err = dp.GetDuration(cfgKeyRedisTTL); err != nil {
		return err
	}
	if r.TrackKeys, err = dp.GetBool(cfgKeyRedisTrackKeys); err != nil {
		return err
	}
	if r.Timeout, err = config.GetPositiveDuration(dp, cfgKeyRedisTimeout); err != nil {
		return err
	}
	return nil
}
