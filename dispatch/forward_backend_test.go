/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package dispatch

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/acronis/go-wireserver/httpwire"
	"github.com/acronis/go-wireserver/testutil"
)

// testOrigin is an upstream server that answers every request with a canned raw response.
type testOrigin struct {
	addr     string
	hits     atomic.Int32
	mu       sync.Mutex
	requests []*httpwire.Request
}

func startTestOrigin(t *testing.T, respond func(conn net.Conn, req *httpwire.Request)) *testOrigin {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	origin := &testOrigin{addr: ln.Addr().String()}
	go func() {
		for {
			conn, acceptErr := ln.Accept()
			if acceptErr != nil {
				return
			}
			go func() {
				defer func() { _ = conn.Close() }()
				req, parseErr := httpwire.Parse(bufio.NewReader(conn))
				if parseErr != nil {
					return
				}
				origin.hits.Inc()
				origin.mu.Lock()
				origin.requests = append(origin.requests, req)
				origin.mu.Unlock()
				respond(conn, req)
			}()
		}
	}()
	return origin
}

func (o *testOrigin) lastRequest() *httpwire.Request {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.requests) == 0 {
		return nil
	}
	return o.requests[len(o.requests)-1]
}

func respondRaw(raw string) func(conn net.Conn, req *httpwire.Request) {
	return func(conn net.Conn, _ *httpwire.Request) {
		_, _ = conn.Write([]byte(raw))
	}
}

func newForwardEnv(t *testing.T, opts ForwardBackendOpts) *testEnv {
	t.Helper()
	backend, err := NewForwardBackend(opts)
	require.NoError(t, err)
	return newTestEnv(t, backend, Opts{})
}

func TestForwardBackend_RelaysAndCaches(t *testing.T) {
	origin := startTestOrigin(t, respondRaw("HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\n"+
		"Content-Length: 5\r\nKeep-Alive: timeout=5\r\nConnection: keep-alive\r\n\r\nhello"))
	env := newForwardEnv(t, ForwardBackendOpts{Origin: origin.addr})
	addr := env.listen(t)

	rawReq := "GET /page?x=1 HTTP/1.1\r\nHost: site.test\r\nConnection: keep-alive, X-Hop\r\n" +
		"X-Hop: secret\r\nProxy-Authorization: Basic Zm9v\r\nAccept: */*\r\n\r\n"
	first := testutil.RequireRoundTrip(t, addr, rawReq)
	require.Equal(t, 200, first.Status)
	require.Equal(t, "hello", string(first.Body))
	require.Equal(t, "MISS", first.Header.Get("X-Cache"))
	require.Equal(t, "close", first.Header.Get("Connection"))
	require.False(t, first.Header.Has("Keep-Alive"))

	upstreamReq := origin.lastRequest()
	require.NotNil(t, upstreamReq)
	require.Equal(t, "/page?x=1", upstreamReq.Target)
	require.Equal(t, "site.test", upstreamReq.Header.Get("Host"))
	require.Equal(t, "close", upstreamReq.Header.Get("Connection"))
	require.Equal(t, "*/*", upstreamReq.Header.Get("Accept"))
	require.False(t, upstreamReq.Header.Has("X-Hop"))
	require.False(t, upstreamReq.Header.Has("Proxy-Authorization"))
	require.Equal(t, first.Header.Get("X-Request-ID"), upstreamReq.Header.Get("X-Request-ID"))

	second := testutil.RequireRoundTrip(t, addr, rawReq)
	require.Equal(t, "HIT", second.Header.Get("X-Cache"))
	require.Equal(t, first.Body, second.Body)
	require.Equal(t, int32(1), origin.hits.Load())

	_, cached := env.cache.Get(fmt.Sprintf("GET %s/page?x=1", origin.addr))
	require.True(t, cached)
}

func TestForwardBackend_EscapedQuestionMarkDoesNotShareCacheEntry(t *testing.T) {
	origin := startTestOrigin(t, func(conn net.Conn, req *httpwire.Request) {
		resp := httpwire.NewResponse(200, "text/plain", []byte(req.Target))
		_ = resp.Write(bufio.NewWriter(conn))
	})
	env := newForwardEnv(t, ForwardBackendOpts{Origin: origin.addr})
	addr := env.listen(t)

	first := testutil.RequireRoundTrip(t, addr, "GET /a%3Fb HTTP/1.1\r\nHost: x\r\n\r\n")
	require.Equal(t, "/a%3Fb", string(first.Body))
	require.Eventually(t, func() bool { return env.cache.Len() == 1 }, time.Second, 10*time.Millisecond)

	second := testutil.RequireRoundTrip(t, addr, "GET /a?b HTTP/1.1\r\nHost: x\r\n\r\n")
	require.Equal(t, "/a?b", string(second.Body))
	require.Equal(t, "MISS", second.Header.Get("X-Cache"))
	require.Equal(t, int32(2), origin.hits.Load())

	_, cached := env.cache.Get(fmt.Sprintf("GET %s/a%%3Fb", origin.addr))
	require.True(t, cached)
	require.Eventually(t, func() bool { return env.cache.Len() == 2 }, time.Second, 10*time.Millisecond)
}

func TestForwardBackend_ChunkedUpstreamIsDechunked(t *testing.T) {
	origin := startTestOrigin(t, respondRaw("HTTP/1.1 200 OK\r\nTransfer-Encoding: chunked\r\n\r\n"+
		"4\r\nwire\r\n6\r\nserver\r\n0\r\n\r\n"))
	env := newForwardEnv(t, ForwardBackendOpts{Origin: origin.addr})
	addr := env.listen(t)

	raw, err := testutil.SendRaw(addr, []byte("GET /c HTTP/1.1\r\nHost: x\r\n\r\n"), 5*time.Second)
	require.NoError(t, err)
	require.NotContains(t, string(raw), "Transfer-Encoding")
	resp := testutil.RequireWireResponse(t, raw)
	require.Equal(t, "wireserver", string(resp.Body))
	require.False(t, resp.Header.Has("Content-Length"))

	require.Eventually(t, func() bool { return env.cache.Len() == 1 }, time.Second, 10*time.Millisecond)
}

func TestForwardBackend_AbsoluteFormTarget(t *testing.T) {
	origin := startTestOrigin(t, respondRaw("HTTP/1.1 404 Not Found\r\nContent-Length: 4\r\n\r\nnope"))
	env := newForwardEnv(t, ForwardBackendOpts{})
	addr := env.listen(t)

	resp := testutil.RequireRoundTrip(t, addr, fmt.Sprintf("GET http://%s/a/b HTTP/1.1\r\n\r\n", origin.addr))
	require.Equal(t, 404, resp.Status)
	require.Equal(t, "nope", string(resp.Body))

	upstreamReq := origin.lastRequest()
	require.Equal(t, "/a/b", upstreamReq.Target)
	require.Equal(t, origin.addr, upstreamReq.Header.Get("Host"))
	require.Equal(t, 0, env.cache.Len())
}

func TestForwardBackend_PostBodyIsForwarded(t *testing.T) {
	origin := startTestOrigin(t, func(conn net.Conn, req *httpwire.Request) {
		resp := httpwire.NewResponse(200, "application/octet-stream", req.Body)
		_ = resp.Write(bufio.NewWriter(conn))
	})
	env := newForwardEnv(t, ForwardBackendOpts{Origin: origin.addr})
	addr := env.listen(t)

	resp := testutil.RequireRoundTrip(t, addr, "POST /echo HTTP/1.1\r\nHost: x\r\nContent-Length: 4\r\n\r\nping")
	require.Equal(t, "ping", string(resp.Body))
	require.False(t, resp.Header.Has("X-Cache"))
}

func TestForwardBackend_LargeBodyIsStreamedButNotCached(t *testing.T) {
	body := strings.Repeat("x", 600*1024)
	origin := startTestOrigin(t, respondRaw("HTTP/1.1 200 OK\r\n\r\n"+body))
	env := newForwardEnv(t, ForwardBackendOpts{Origin: origin.addr})
	addr := env.listen(t)

	resp := testutil.RequireRoundTrip(t, addr, "GET /big HTTP/1.1\r\nHost: x\r\n\r\n")
	require.Equal(t, len(body), len(resp.Body))
	require.Eventually(t, func() bool { return env.sink.Snapshot().Requests == 1 }, time.Second, 10*time.Millisecond)
	require.Equal(t, 0, env.cache.Len())
	require.Equal(t, uint64(0), env.sink.Snapshot().CacheStores)
}

func TestForwardBackend_ConnectFailure(t *testing.T) {
	env := newForwardEnv(t, ForwardBackendOpts{Origin: testutil.GetLocalAddrWithFreeTCPPort()})
	resp := env.roundTrip(t, "GET / HTTP/1.1\r\nHost: x\r\n\r\n")
	require.Equal(t, 500, resp.Status)
	snap := env.sink.Snapshot()
	require.Equal(t, uint64(1), snap.Errors)
	require.Equal(t, uint64(0), snap.Requests)
}

func TestForwardBackend_UpstreamTimeoutDropsConnection(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	origin := startTestOrigin(t, func(conn net.Conn, req *httpwire.Request) { <-release })
	env := newForwardEnv(t, ForwardBackendOpts{Origin: origin.addr, ReadTimeout: 50 * time.Millisecond})

	raw := env.servePipe(t, "GET / HTTP/1.1\r\nHost: x\r\n\r\n")
	require.Empty(t, raw)
	snap := env.sink.Snapshot()
	require.Equal(t, uint64(1), snap.Timeouts)
	require.Equal(t, uint64(0), snap.Errors)
}

func TestForwardBackend_TruncatedUpstreamBodyIsNotCached(t *testing.T) {
	origin := startTestOrigin(t, respondRaw("HTTP/1.1 200 OK\r\nContent-Length: 100\r\n\r\npartial"))
	env := newForwardEnv(t, ForwardBackendOpts{Origin: origin.addr})
	addr := env.listen(t)

	_, err := testutil.SendRaw(addr, []byte("GET / HTTP/1.1\r\nHost: x\r\n\r\n"), 5*time.Second)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return env.sink.Snapshot().Errors == 1 }, time.Second, 10*time.Millisecond)
	require.Equal(t, 0, env.cache.Len())
}

func TestForwardBackend_OutboundRateLimit(t *testing.T) {
	origin := startTestOrigin(t, respondRaw("HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok"))
	env := newForwardEnv(t, ForwardBackendOpts{Origin: origin.addr, RateLimit: 0.001, RateLimitBurst: 1})
	addr := env.listen(t)

	first := testutil.RequireRoundTrip(t, addr, "POST /a HTTP/1.1\r\nHost: x\r\n\r\n")
	require.Equal(t, 200, first.Status)
	second := testutil.RequireRoundTrip(t, addr, "POST /a HTTP/1.1\r\nHost: x\r\n\r\n")
	require.Equal(t, 429, second.Status)
	require.Equal(t, "1", second.Header.Get("Retry-After"))
	require.Equal(t, int32(1), origin.hits.Load())
}

func TestForwardBackend_InvalidOrigin(t *testing.T) {
	_, err := NewForwardBackend(ForwardBackendOpts{Origin: "no-port"})
	require.Error(t, err)
}

func TestForwardBackend_CacheScope(t *testing.T) {
	fixed, err := NewForwardBackend(ForwardBackendOpts{Origin: "origin.test:8081"})
	require.NoError(t, err)
	perRequest, err := NewForwardBackend(ForwardBackendOpts{})
	require.NoError(t, err)

	req := &httpwire.Request{Host: "site.test", Port: 80}
	require.Equal(t, "origin.test:8081", fixed.CacheScope(req))
	require.Equal(t, "site.test:80", perRequest.CacheScope(req))
	require.Equal(t, "", NewLocalBackend(NewRegistry(), nil).CacheScope(req))
}

func TestUpstreamError(t *testing.T) {
	err := newUpstreamError(ErrUpstreamConnect, "origin.test:80", context.DeadlineExceeded)
	require.ErrorIs(t, err, ErrUpstreamConnect)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.False(t, err.Timeout())
	require.Equal(t, "upstream connect failure (origin.test:80): context deadline exceeded", err.Error())

	timeoutErr := newUpstreamIOError("origin.test:80", &net.OpError{Op: "read", Err: timeoutError{}})
	require.True(t, timeoutErr.Timeout())
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }
