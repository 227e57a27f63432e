/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package main

import (
	"github.com/acronis/go-wireserver/adminserver"
	"github.com/acronis/go-wireserver/config"
	"github.com/acronis/go-wireserver/dispatch"
	"github.com/acronis/go-wireserver/internal/ratelimit"
	"github.com/acronis/go-wireserver/janitor"
	"github.com/acronis/go-wireserver/log"
	"github.com/acronis/go-wireserver/respcache"
	"github.com/acronis/go-wireserver/tcpserver"
)

// envVarsPrefix makes "server.address" overridable with WIRESERVER_SERVER_ADDRESS.
const envVarsPrefix = "wireserver"

// AppConfig aggregates configurations of all wireserver components.
type AppConfig struct {
	Log       *log.Config
	Server    *tcpserver.Config
	RateLimit *ratelimit.Config
	Cache     *respcache.Config
	Dispatch  *dispatch.Config
	Admin     *adminserver.Config
	Janitor   *janitor.Config
}

// NewAppConfig creates an AppConfig with every section under its default key prefix.
func NewAppConfig() *AppConfig {
	return &AppConfig{
		Log:       log.NewConfig(),
		Server:    tcpserver.NewConfig(),
		RateLimit: ratelimit.NewConfig(),
		Cache:     respcache.NewConfig(),
		Dispatch:  dispatch.NewConfig(),
		Admin:     adminserver.NewConfig(),
		Janitor:   janitor.NewConfig(),
	}
}

func (c *AppConfig) sections() []config.Config {
	return []config.Config{c.Log, c.Server, c.RateLimit, c.Cache, c.Dispatch, c.Admin, c.Janitor}
}

// loadAppConfig loads the configuration file (when path is not empty), environment variables
// and overrides. Overrides are keyed by full keys ("server.address") and take precedence over both.
func loadAppConfig(path string, overrides map[string]interface{}) (*AppConfig, error) {
	cfg := NewAppConfig()
	loader := config.NewDefaultLoader(envVarsPrefix)
	loader.SetOverrides(overrides)
	sections := cfg.sections()
	if err := loader.LoadFromPath(path, sections[0], sections[1:]...); err != nil {
		return nil, err
	}
	return cfg, nil
}
