/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package adminserver

import (
	"time"

	"github.com/acronis/go-wireserver/config"
)

const cfgDefaultKeyPrefix = "admin"

const (
	cfgKeyAdminEnabled          = "enabled"
	cfgKeyAdminAddress          = "address"
	cfgKeyAdminProfiling        = "profiling"
	cfgKeyAdminTimeoutsRead     = "timeouts.read"
	cfgKeyAdminTimeoutsWrite    = "timeouts.write"
	cfgKeyAdminTimeoutsShutdown = "timeouts.shutdown"
)

const (
	defaultAdminAddress          = "127.0.0.1:9090"
	defaultAdminTimeoutsRead     = time.Second * 15
	defaultAdminTimeoutsWrite    = time.Minute
	defaultAdminTimeoutsShutdown = time.Second * 5
)

// Config represents a set of configuration parameters for the admin HTTP server.
// Profiling exposes pprof handlers under /debug/pprof/.
type Config struct {
	Enabled   bool           `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Address   string         `mapstructure:"address" yaml:"address" json:"address"`
	Profiling bool           `mapstructure:"profiling" yaml:"profiling" json:"profiling"`
	Timeouts  TimeoutsConfig `mapstructure:"timeouts" yaml:"timeouts" json:"timeouts"`

	keyPrefix string
}

// TimeoutsConfig represents timeouts of the admin HTTP server.
type TimeoutsConfig struct {
	Read     config.TimeDuration `mapstructure:"read" yaml:"read" json:"read"`
	Write    config.TimeDuration `mapstructure:"write" yaml:"write" json:"write"`
	Shutdown config.TimeDuration `mapstructure:"shutdown" yaml:"shutdown" json:"shutdown"`
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates a new instance of the Config.
func NewConfig() *Config {
	return &Config{keyPrefix: cfgDefaultKeyPrefix}
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig() *Config {
	return &Config{
		keyPrefix: cfgDefaultKeyPrefix,
		Enabled:   true,
		Address:   defaultAdminAddress,
		Timeouts: TimeoutsConfig{
			Read:     config.TimeDuration(defaultAdminTimeoutsRead),
			Write:    config.TimeDuration(defaultAdminTimeoutsWrite),
			Shutdown: config.TimeDuration(defaultAdminTimeoutsShutdown),
		},
	}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *Config) KeyPrefix() string {
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values in config.DataProvider.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyAdminEnabled, true)
	dp.SetDefault(cfgKeyAdminAddress, defaultAdminAddress)
	dp.SetDefault(cfgKeyAdminProfiling, false)
	dp.SetDefault(cfgKeyAdminTimeoutsRead, defaultAdminTimeoutsRead)
	dp.SetDefault(cfgKeyAdminTimeoutsWrite, defaultAdminTimeoutsWrite)
	dp.SetDefault(cfgKeyAdminTimeoutsShutdown, defaultAdminTimeoutsShutdown)
}

// Set sets admin server configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	var err error

	if c.Enabled, err = dp.GetBool(cfgKeyAdminEnabled); err != nil {
		return err
	}
	if c.Address, err = config.GetHostPort(dp, cfgKeyAdminAddress, c.Enabled); err != nil {
		return err
	}
	if c.Profiling, err = dp.GetBool(cfgKeyAdminProfiling); err != nil {
		return err
	}

	var dur time.Duration
	if dur, err = dp.GetDuration(cfgKeyAdminTimeoutsRead); err != nil {
		return err
	}
	c.Timeouts.Read = config.TimeDuration(dur)

	if dur, err = dp.GetDuration(cfgKeyAdminTimeoutsWrite); err != nil {
		return err
	}
	c.Timeouts.Write = config.TimeDuration(dur)

	if dur, err = dp.GetDuration(cfgKeyAdminTimeoutsShutdown); err != nil {
		return err
	}
	c.Timeouts.Shutdown = config.TimeDuration(dur)

	return nil
}
