/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-wireserver/config"
	"github.com/acronis/go-wireserver/dispatch"
	"github.com/acronis/go-wireserver/log"
	"github.com/acronis/go-wireserver/tcpserver"
)

func writeFile(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	return path
}

func TestLoadAppConfig_Defaults(t *testing.T) {
	cfg, err := loadAppConfig("", nil)
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.Server.Address)
	require.Equal(t, tcpserver.DefaultWorkers(), cfg.Server.Workers)
	require.Equal(t, dispatch.ModeLocal, cfg.Dispatch.Mode)
	require.Equal(t, log.LevelInfo, cfg.Log.Level)
	require.True(t, cfg.Cache.Enabled)
	require.True(t, cfg.RateLimit.Enabled)
	require.True(t, cfg.Admin.Enabled)
	require.True(t, cfg.Janitor.Enabled)
}

func TestLoadAppConfig_File(t *testing.T) {
	const yamlData = `
log:
  level: debug
server:
  address: 127.0.0.1:9000
  workers: 16
  timeouts:
    read: 3s
cache:
  ttl: 1m
dispatch:
  mode: forward
  forward:
    origin: 127.0.0.1:9001
admin:
  enabled: false
`
	cfg, err := loadAppConfig(writeFile(t, "config.yaml", yamlData), nil)
	require.NoError(t, err)
	require.Equal(t, log.LevelDebug, cfg.Log.Level)
	require.Equal(t, "127.0.0.1:9000", cfg.Server.Address)
	require.Equal(t, 16, cfg.Server.Workers)
	require.Equal(t, config.TimeDuration(3*time.Second), cfg.Server.Timeouts.Read)
	require.Equal(t, time.Minute, cfg.Cache.TTL)
	require.Equal(t, dispatch.ModeForward, cfg.Dispatch.Mode)
	require.Equal(t, "127.0.0.1:9001", cfg.Dispatch.Forward.Origin)
	require.False(t, cfg.Admin.Enabled)

	const jsonData = `{"server": {"workers": 3}, "rateLimit": {"enabled": false}}`
	cfg, err = loadAppConfig(writeFile(t, "config.json", jsonData), nil)
	require.NoError(t, err)
	require.Equal(t, 3, cfg.Server.Workers)
	require.False(t, cfg.RateLimit.Enabled)
}

func TestLoadAppConfig_EnvVarsAndOverrides(t *testing.T) {
	t.Setenv("WIRESERVER_SERVER_WORKERS", "7")
	t.Setenv("WIRESERVER_SERVER_ADDRESS", "127.0.0.1:7000")

	path := writeFile(t, "config.yaml", "dispatch:\n  mode: local\n")
	cfg, err := loadAppConfig(path, map[string]interface{}{
		"server.address":          ":9100",
		"dispatch.mode":           "forward",
		"dispatch.forward.origin": "origin.local:80",
	})
	require.NoError(t, err)
	require.Equal(t, 7, cfg.Server.Workers)
	require.Equal(t, ":9100", cfg.Server.Address)
	require.Equal(t, dispatch.ModeForward, cfg.Dispatch.Mode)
	require.Equal(t, "origin.local:80", cfg.Dispatch.Forward.Origin)
}

func TestLoadAppConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantErr string
	}{
		{
			name:    "invalid mode",
			path:    writeFile(t, "mode.yaml", "dispatch:\n  mode: proxy\n"),
			wantErr: "dispatch.mode",
		},
		{
			name:    "invalid origin",
			path:    writeFile(t, "origin.yaml", "dispatch:\n  forward:\n    origin: no-port\n"),
			wantErr: "dispatch.forward.origin",
		},
		{
			name:    "invalid janitor schedule",
			path:    writeFile(t, "janitor.yaml", "janitor:\n  summary: sometimes\n"),
			wantErr: "janitor.summary",
		},
		{
			name:    "missing file",
			path:    filepath.Join(t.TempDir(), "missing.yaml"),
			wantErr: "missing.yaml",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadAppConfig(tt.path, nil)
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestLoadAppConfig_SampleFile(t *testing.T) {
	cfg, err := loadAppConfig(filepath.Join("..", "..", "config.yaml"), nil)
	require.NoError(t, err)
	require.Equal(t, 1024, cfg.Cache.MaxEntries)
	require.Equal(t, []string{"/time", "/healthz"}, cfg.Cache.ExcludedPaths)
	require.Equal(t, 50, cfg.RateLimit.Rate)
	require.Equal(t, 100, cfg.RateLimit.Burst)
	require.Equal(t, config.ByteSize(512*1024), cfg.Cache.MaxEntrySize)
	require.Equal(t, "127.0.0.1:9090", cfg.Admin.Address)
	require.Equal(t, config.TimeDuration(time.Second), cfg.Log.Access.SlowThreshold)
	require.Len(t, cfg.Dispatch.Routes, 1)
	require.Equal(t, "User-agent: *\nDisallow: /\n", cfg.Dispatch.Routes[0].Body)
}
