/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package tcpserver

import (
	"runtime"
	"time"

	"github.com/acronis/go-wireserver/config"
	"github.com/acronis/go-wireserver/httpwire"
)

const cfgDefaultKeyPrefix = "server"

const (
	cfgKeyServerAddress             = "address"
	cfgKeyServerWorkers             = "workers"
	cfgKeyServerTimeoutsRead        = "timeouts.read"
	cfgKeyServerTimeoutsWrite       = "timeouts.write"
	cfgKeyServerTimeoutsShutdown    = "timeouts.shutdown"
	cfgKeyServerLimitsMaxHeaderSize = "limits.maxHeaderSize"
	cfgKeyServerLimitsMaxBodySize   = "limits.maxBodySize"
	cfgKeyServerBindMaxRetries      = "bind.maxRetries"
	cfgKeyServerBindRetryInterval   = "bind.retryInterval"
)

const (
	defaultServerAddress           = ":8080"
	defaultServerTimeoutsRead      = time.Second * 15
	defaultServerTimeoutsWrite     = time.Second * 15
	defaultServerTimeoutsShutdown  = time.Second * 5
	defaultServerBindMaxRetries    = 0
	defaultServerBindRetryInterval = time.Second
)

// DefaultWorkers returns the default size of the worker pool: twice the number of usable CPUs, at least 4.
func DefaultWorkers() int {
	return max(4, 2*runtime.GOMAXPROCS(0))
}

// Config represents a set of configuration parameters for Server.
// Configuration can be loaded in different formats (YAML, JSON) using config.Loader, viper,
// or with json.Unmarshal/yaml.Unmarshal functions directly.
type Config struct {
	Address  string         `mapstructure:"address" yaml:"address" json:"address"`
	Workers  int            `mapstructure:"workers" yaml:"workers" json:"workers"`
	Timeouts TimeoutsConfig `mapstructure:"timeouts" yaml:"timeouts" json:"timeouts"`
	Limits   LimitsConfig   `mapstructure:"limits" yaml:"limits" json:"limits"`
	Bind     BindConfig     `mapstructure:"bind" yaml:"bind" json:"bind"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// ConfigOption is a type for functional options for the Config.
type ConfigOption func(*configOptions)

type configOptions struct {
	keyPrefix string
}

// WithKeyPrefix returns a ConfigOption that sets a key prefix for parsing configuration parameters.
// This prefix will be used by config.Loader.
func WithKeyPrefix(keyPrefix string) ConfigOption {
	return func(o *configOptions) {
		o.keyPrefix = keyPrefix
	}
}

// NewConfig creates a new instance of the Config.
func NewConfig(options ...ConfigOption) *Config {
	opts := configOptions{keyPrefix: cfgDefaultKeyPrefix}
	for _, opt := range options {
		opt(&opts)
	}
	return &Config{keyPrefix: opts.keyPrefix}
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig(options ...ConfigOption) *Config {
	cfg := NewConfig(options...)
	cfg.Address = defaultServerAddress
	cfg.Workers = DefaultWorkers()
	cfg.Timeouts = TimeoutsConfig{
		Read:     config.TimeDuration(defaultServerTimeoutsRead),
		Write:    config.TimeDuration(defaultServerTimeoutsWrite),
		Shutdown: config.TimeDuration(defaultServerTimeoutsShutdown),
	}
	cfg.Limits = LimitsConfig{
		MaxHeaderSize: config.ByteSize(httpwire.DefaultMaxHeaderBytes),
		MaxBodySize:   config.ByteSize(httpwire.DefaultMaxBodyBytes),
	}
	cfg.Bind = BindConfig{
		MaxRetries:    defaultServerBindMaxRetries,
		RetryInterval: config.TimeDuration(defaultServerBindRetryInterval),
	}
	return cfg
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
// Implements config.KeyPrefixProvider interface.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values for Server in config.DataProvider.
// Implements config.Config interface.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyServerAddress, defaultServerAddress)
	dp.SetDefault(cfgKeyServerWorkers, 0)

	dp.SetDefault(cfgKeyServerTimeoutsRead, defaultServerTimeoutsRead)
	dp.SetDefault(cfgKeyServerTimeoutsWrite, defaultServerTimeoutsWrite)
	dp.SetDefault(cfgKeyServerTimeoutsShutdown, defaultServerTimeoutsShutdown)

	dp.SetDefault(cfgKeyServerLimitsMaxHeaderSize, config.ByteSize(httpwire.DefaultMaxHeaderBytes).String())
	dp.SetDefault(cfgKeyServerLimitsMaxBodySize, config.ByteSize(httpwire.DefaultMaxBodyBytes).String())

	dp.SetDefault(cfgKeyServerBindMaxRetries, defaultServerBindMaxRetries)
	dp.SetDefault(cfgKeyServerBindRetryInterval, defaultServerBindRetryInterval)
}

// Set sets Server configuration values from config.DataProvider.
// Implements config.Config interface.
func (c *Config) Set(dp config.DataProvider) error {
	var err error

	if c.Address, err = config.GetHostPort(dp, cfgKeyServerAddress, true); err != nil {
		return err
	}

	if c.Workers, err = config.GetNonNegativeInt(dp, cfgKeyServerWorkers); err != nil {
		return err
	}
	if c.Workers == 0 {
		c.Workers = DefaultWorkers()
	}

	if err = c.Timeouts.Set(dp); err != nil {
		return err
	}
	if err = c.Limits.Set(dp); err != nil {
		return err
	}
	return c.Bind.Set(dp)
}

// TimeoutsConfig represents a set of configuration parameters for Server relating to timeouts.
type TimeoutsConfig struct {
	// Read bounds reading the whole request. It is set as a deadline before the connection enters a worker.
	Read     config.TimeDuration `mapstructure:"read" yaml:"read" json:"read"`
	Write    config.TimeDuration `mapstructure:"write" yaml:"write" json:"write"`
	Shutdown config.TimeDuration `mapstructure:"shutdown" yaml:"shutdown" json:"shutdown"`
}

// Set sets timeout server configuration values from config.DataProvider.
// Implements config.Config interface.
func (t *TimeoutsConfig) Set(dp config.DataProvider) error {
	var err error
	var dur time.Duration

	if dur, err = dp.GetDuration(cfgKeyServerTimeoutsRead); err != nil {
		return err
	}
	t.Read = config.TimeDuration(dur)

	if dur, err = dp.GetDuration(cfgKeyServerTimeoutsWrite); err != nil {
		return err
	}
	t.Write = config.TimeDuration(dur)

	if dur, err = dp.GetDuration(cfgKeyServerTimeoutsShutdown); err != nil {
		return err
	}
	t.Shutdown = config.TimeDuration(dur)

	return nil
}

// LimitsConfig represents a set of configuration parameters for Server relating to limits.
type LimitsConfig struct {
	// MaxHeaderSize is the ceiling for the request line plus the header block.
	MaxHeaderSize config.ByteSize `mapstructure:"maxHeaderSize" yaml:"maxHeaderSize" json:"maxHeaderSize"`

	// MaxBodySize is the maximum size of the request body in bytes.
	MaxBodySize config.ByteSize `mapstructure:"maxBodySize" yaml:"maxBodySize" json:"maxBodySize"`
}

// Set sets limit server configuration values from config.DataProvider.
func (l *LimitsConfig) Set(dp config.DataProvider) error {
	var err error

	if l.MaxHeaderSize, err = config.GetPositiveByteSize(dp, cfgKeyServerLimitsMaxHeaderSize); err != nil {
		return err
	}

	if l.MaxBodySize, err = dp.GetByteSize(cfgKeyServerLimitsMaxBodySize); err != nil {
		return err
	}

	return nil
}

// ParserOpts returns options of the request parser built from the limits.
func (l *LimitsConfig) ParserOpts() httpwire.ParserOpts {
	return httpwire.ParserOpts{MaxHeaderBytes: int(l.MaxHeaderSize), MaxBodyBytes: int64(l.MaxBodySize)}
}

// BindConfig represents a set of configuration parameters for retrying a failed listener bind.
type BindConfig struct {
	// MaxRetries is the number of additional bind attempts. Zero means the first failure is fatal.
	MaxRetries    int                 `mapstructure:"maxRetries" yaml:"maxRetries" json:"maxRetries"`
	RetryInterval config.TimeDuration `mapstructure:"retryInterval" yaml:"retryInterval" json:"retryInterval"`
}

// Set sets bind configuration values from config.DataProvider.
func (b *BindConfig) Set(dp config.DataProvider) error {
	var err error

	if b.MaxRetries, err = config.GetNonNegativeInt(dp, cfgKeyServerBindMaxRetries); err != nil {
		return err
	}

	dur, err := config.GetPositiveDuration(dp, cfgKeyServerBindRetryInterval)
	if err != nil {
		return err
	}
	b.RetryInterval = config.TimeDuration(dur)

	return nil
}
