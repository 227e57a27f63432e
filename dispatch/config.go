/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/acronis/go-wireserver/config"
	"github.com/acronis/go-wireserver/httpwire"
	"github.com/acronis/go-wireserver/log"
)

const cfgDefaultKeyPrefix = "dispatch"

const (
	cfgKeyMode                        = "mode"
	cfgKeyForwardOrigin               = "forward.origin"
	cfgKeyForwardTimeoutsConnect      = "forward.timeouts.connect"
	cfgKeyForwardTimeoutsRead         = "forward.timeouts.read"
	cfgKeyForwardTimeoutsWrite        = "forward.timeouts.write"
	cfgKeyForwardRateLimit            = "forward.rateLimit"
	cfgKeyForwardRateLimitBurst       = "forward.rateLimitBurst"
	cfgKeyForwardRateLimitWaitTimeout = "forward.rateLimitWaitTimeout"
	cfgKeyRoutes                      = "routes"
)

// Mode selects the backend.
type Mode string

// Backend modes.
const (
	ModeLocal   Mode = "local"
	ModeForward Mode = "forward"
)

// Config is a configuration of the backend.
type Config struct {
	Mode    Mode
	Forward ForwardConfig
	Routes  []StaticRoute

	keyPrefix string
}

// ForwardConfig configures ForwardBackend.
type ForwardConfig struct {
	Origin               string
	ConnectTimeout       time.Duration
	ReadTimeout          time.Duration
	WriteTimeout         time.Duration
	RateLimit            float64
	RateLimitBurst       int
	RateLimitWaitTimeout time.Duration
}

// StaticRoute is a fixed response served by the local backend, e.g. a robots.txt or a maintenance page.
type StaticRoute struct {
	Method      string `mapstructure:"method"`
	Path        string `mapstructure:"path"`
	Status      int    `mapstructure:"status"`
	ContentType string `mapstructure:"contentType"`
	Body        string `mapstructure:"body"`
}

// normalize fills in defaults and validates the route. Missing method and status mean GET and 200.
func (r *StaticRoute) normalize() error {
	if r.Path == "" || r.Path[0] != '/' {
		return fmt.Errorf("path %q should start with /", r.Path)
	}
	if r.Method == "" {
		r.Method = "GET"
	}
	if r.Status == 0 {
		r.Status = 200
	}
	if r.Status < 200 || r.Status > 599 {
		return fmt.Errorf("status %d of %s is out of range", r.Status, r.Path)
	}
	if r.ContentType == "" {
		r.ContentType = "text/plain; charset=utf-8"
	}
	return nil
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
	dp.SetDefault(cfgKeyMode, string(ModeLocal))
	dp.SetDefault(cfgKeyForwardTimeoutsConnect, DefaultConnectTimeout.String())
	dp.SetDefault(cfgKeyForwardTimeoutsRead, DefaultReadTimeout.String())
	dp.SetDefault(cfgKeyForwardTimeoutsWrite, DefaultWriteTimeout.String())
	dp.SetDefault(cfgKeyForwardRateLimit, 0)
	dp.SetDefault(cfgKeyForwardRateLimitBurst, 1)
	dp.SetDefault(cfgKeyForwardRateLimitWaitTimeout, "0s")
}

// Set sets backend configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	mode, err := dp.GetStringFromSet(cfgKeyMode, []string{string(ModeLocal), string(ModeForward)}, true)
	if err != nil {
		return err
	}
	c.Mode = Mode(mode)

	f := &c.Forward
	if f.Origin, err = config.GetHostPort(dp, cfgKeyForwardOrigin, false); err != nil {
		return err
	}
	for key, dst := range map[string]*time.Duration{
		cfgKeyForwardTimeoutsConnect: &f.ConnectTimeout,
		cfgKeyForwardTimeoutsRead:    &f.ReadTimeout,
		cfgKeyForwardTimeoutsWrite:   &f.WriteTimeout,
	} {
		if *dst, err = config.GetPositiveDuration(dp, key); err != nil {
			return err
		}
	}
	if f.RateLimit, err = config.GetNonNegativeFloat64(dp, cfgKeyForwardRateLimit); err != nil {
		return err
	}
	if f.RateLimitBurst, err = config.GetNonNegativeInt(dp, cfgKeyForwardRateLimitBurst); err != nil {
		return err
	}
	if f.RateLimitWaitTimeout, err = dp.GetDuration(cfgKeyForwardRateLimitWaitTimeout); err != nil {
		return err
	}

	c.Routes = nil
	if err = dp.UnmarshalKey(cfgKeyRoutes, &c.Routes); err != nil {
		return err
	}
	for i := range c.Routes {
		if err = c.Routes[i].normalize(); err != nil {
			return dp.WrapKeyErr(cfgKeyRoutes, err)
		}
	}
	return nil
}

// NewBackend creates the backend selected by the configuration.
func NewBackend(cfg *Config, registry *Registry, logger log.FieldLogger) (Backend, error) {
	switch cfg.Mode {
	case ModeForward:
		return NewForwardBackend(ForwardBackendOpts{
			Origin:               cfg.Forward.Origin,
			ConnectTimeout:       cfg.Forward.ConnectTimeout,
			ReadTimeout:          cfg.Forward.ReadTimeout,
			WriteTimeout:         cfg.Forward.WriteTimeout,
			RateLimit:            cfg.Forward.RateLimit,
			RateLimitBurst:       cfg.Forward.RateLimitBurst,
			RateLimitWaitTimeout: cfg.Forward.RateLimitWaitTimeout,
		})
	case ModeLocal, "":
		if registry == nil {
			registry = NewRegistry()
		}
		registerStaticRoutes(registry, cfg.Routes)
		return NewLocalBackend(registry, logger), nil
	}
	return nil, fmt.Errorf("unknown dispatch mode %q", cfg.Mode)
}

// registerStaticRoutes adds the configured routes. Each one always returns the same response value.
func registerStaticRoutes(registry *Registry, routes []StaticRoute) {
	for _, route := range routes {
		resp := httpwire.NewResponse(route.Status, route.ContentType, []byte(route.Body))
		registry.HandleFunc(route.Method, route.Path, func(context.Context, *httpwire.Request) (*httpwire.Response, error) {
			return resp, nil
		})
	}
}
