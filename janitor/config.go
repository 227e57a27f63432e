/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package janitor

import (
	"github.com/robfig/cron/v3"

	"github.com/acronis/go-wireserver/config"
)

const cfgDefaultKeyPrefix = "janitor"

const (
	cfgKeyEnabled      = "enabled"
	cfgKeyLimiterSweep = "limiterSweep"
	cfgKeyCacheCleanup = "cacheCleanup"
	cfgKeySummary      = "summary"
)

// Default schedules.
const (
	DefaultLimiterSweep = "@every 1m"
	DefaultCacheCleanup = "@every 30s"
	DefaultSummary      = "@every 5m"
)

// Config is a configuration of the janitor. Schedules are standard cron expressions
// or descriptors ("@every 30s", "@hourly"). An empty schedule disables the job.
type Config struct {
	Enabled      bool
	LimiterSweep string
	CacheCleanup string
	Summary      string

	keyPrefix string
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
	dp.SetDefault(cfgKeyLimiterSweep, DefaultLimiterSweep)
	dp.SetDefault(cfgKeyCacheCleanup, DefaultCacheCleanup)
	dp.SetDefault(cfgKeySummary, DefaultSummary)
}

// Set sets janitor configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	if c.Enabled, err = dp.GetBool(cfgKeyEnabled); err != nil {
		return err
	}
	for key, dst := range map[string]*string{
		cfgKeyLimiterSweep: &c.LimiterSweep,
		cfgKeyCacheCleanup: &c.CacheCleanup,
		cfgKeySummary:      &c.Summary,
	} {
		if *dst, err = dp.GetString(key); err != nil {
			return err
		}
		if *dst == "" {
			continue
		}
		if _, err = cron.ParseStandard(*dst); err != nil {
			return dp.WrapKeyErr(key, err)
		}
	}
	return nil
}
