/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package main

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-wireserver/adminserver"
	"github.com/acronis/go-wireserver/dispatch"
	"github.com/acronis/go-wireserver/janitor"
	"github.com/acronis/go-wireserver/log/logtest"
	"github.com/acronis/go-wireserver/testutil"
)

func newTestAppConfig(t *testing.T) *AppConfig {
	t.Helper()
	cfg, err := loadAppConfig("", map[string]interface{}{
		"log.level":      "error",
		"server.workers": 4,
	})
	require.NoError(t, err)
	return cfg
}

func listen(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	return ln
}

// httpGet returns zero status when the request fails, so it can be polled.
func httpGet(url string) (int, string) {
	resp, err := http.Get(url)
	if err != nil {
		return 0, ""
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, ""
	}
	return resp.StatusCode, string(body)
}

func TestNewApp_Components(t *testing.T) {
	cfg := newTestAppConfig(t)
	a, err := newApp(cfg, logtest.NewRecorder(), appOpts{})
	require.NoError(t, err)
	defer func() { require.NoError(t, a.close()) }()

	require.NotNil(t, a.cache)
	require.NotNil(t, a.limiter)
	require.NotNil(t, a.admin)
	names := make([]string, 0, 3)
	for _, e := range a.janitor.Entries() {
		names = append(names, e.Name)
	}
	require.Equal(t, []string{janitor.JobCacheCleanup, janitor.JobLimiterSweep, janitor.JobSummary}, names)

	cfg.Cache.Enabled = false
	cfg.RateLimit.Enabled = false
	cfg.Admin.Enabled = false
	a, err = newApp(cfg, logtest.NewRecorder(), appOpts{})
	require.NoError(t, err)
	require.Nil(t, a.cache)
	require.Nil(t, a.limiter)
	require.Nil(t, a.admin)
	require.Len(t, a.janitor.Entries(), 1)
	require.NoError(t, a.close())
}

func TestApp_CheckHealthBeforeStart(t *testing.T) {
	a, err := newApp(newTestAppConfig(t), logtest.NewRecorder(), appOpts{})
	require.NoError(t, err)
	defer func() { require.NoError(t, a.close()) }()

	result, err := a.checkHealth(context.Background())
	require.NoError(t, err)
	require.Equal(t, adminserver.HealthCheckResult{
		healthComponentWireServer: adminserver.HealthCheckStatusFail,
		healthComponentWorkerPool: adminserver.HealthCheckStatusOK,
	}, result)
}

func TestNewApp_ForwardMode(t *testing.T) {
	cfg := newTestAppConfig(t)
	cfg.Dispatch.Mode = dispatch.ModeForward
	logger := logtest.NewRecorder()
	a, err := newApp(cfg, logger, appOpts{})
	require.NoError(t, err)
	require.NoError(t, a.close())
	entry, found := logger.FindEntry("wireserver is configured")
	require.True(t, found)
	field, found := entry.FindField("mode")
	require.True(t, found)
	require.Equal(t, "forward", string(field.Bytes))
}

func TestRunServe(t *testing.T) {
	cfg := newTestAppConfig(t)
	wireLn, adminLn := listen(t), listen(t)
	wireAddr, adminURL := wireLn.Addr().String(), "http://"+adminLn.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- runServe(ctx, cfg, appOpts{
			Now:           func() time.Time { return time.UnixMilli(42) },
			WireListener:  wireLn,
			AdminListener: adminLn,
		})
	}()

	resp := testutil.RequireRoundTrip(t, wireAddr, "GET /time HTTP/1.1\r\nHost: localhost\r\n\r\n")
	require.Equal(t, 200, resp.Status)
	require.Equal(t, `{"epochMillis":42}`, string(resp.Body))
	require.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp = testutil.RequireRoundTrip(t, wireAddr, "POST /echo HTTP/1.1\r\nHost: localhost\r\nContent-Length: 4\r\n\r\nping")
	require.Equal(t, 200, resp.Status)
	require.Equal(t, "ping", string(resp.Body))

	resp = testutil.RequireRoundTrip(t, wireAddr, "GET /nope HTTP/1.1\r\nHost: localhost\r\n\r\n")
	require.Equal(t, 404, resp.Status)

	require.Eventually(t, func() bool {
		code, body := httpGet(adminURL+"/healthz")
		return code == http.StatusOK && body == `{"status":"ok","components":{"wire_server":"ok","worker_pool":"ok"}}`
	}, 5*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		_, body := httpGet(adminURL+"/metrics")
		return strings.Contains(body, "wireserver_connections_total 3") &&
			strings.Contains(body, `wireserver_responses_total{status_code="404"} 1`) &&
			strings.Contains(body, "wireserver_worker_pool_size 4") &&
			strings.Contains(body, "wireserver_build_info")
	}, 5*time.Second, 20*time.Millisecond)

	code, body := httpGet(adminURL+"/cache")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, `{"entries":1}`, body)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("wireserver was not stopped")
	}
}
