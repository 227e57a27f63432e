/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package respcache

import (
	"time"

	"github.com/acronis/go-wireserver/config"
)

const cfgDefaultKeyPrefix = "cache"

const (
	cfgKeyEnabled       = "enabled"
	cfgKeyMaxEntries    = "maxEntries"
	cfgKeyTTL           = "ttl"
	cfgKeyMaxEntrySize  = "maxEntrySize"
	cfgKeyExcludedPaths = "excludedPaths"
)

// Config is a configuration for the response cache.
type Config struct {
	Enabled       bool
	MaxEntries    int
	TTL           time.Duration
	MaxEntrySize  config.ByteSize
	ExcludedPaths []string

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
	dp.SetDefault(cfgKeyMaxEntries, DefaultMaxEntries)
	dp.SetDefault(cfgKeyTTL, DefaultTTL.String())
	dp.SetDefault(cfgKeyMaxEntrySize, config.ByteSize(DefaultMaxEntrySize).String())
}

// Set sets response cache configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	if c.Enabled, err = dp.GetBool(cfgKeyEnabled); err != nil {
		return err
	}
	if c.MaxEntries, err = config.GetPositiveInt(dp, cfgKeyMaxEntries); err != nil {
		return err
	}
	if c.TTL, err = config.GetPositiveDuration(dp, cfgKeyTTL); err != nil {
		return err
	}
	if c.MaxEntrySize, err = config.GetPositiveByteSize(dp, cfgKeyMaxEntrySize); err != nil {
		return err
	}
	if c.ExcludedPaths, err = dp.GetStringSlice(cfgKeyExcludedPaths); err != nil {
		return err
	}
	return nil
}
