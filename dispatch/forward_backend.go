/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package dispatch

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/acronis/go-wireserver/httpwire"
)

// Default timeouts of the upstream connection.
const (
	DefaultConnectTimeout = 5 * time.Second
	DefaultReadTimeout    = 10 * time.Second
	DefaultWriteTimeout   = 10 * time.Second
)

const headerRequestID = "X-Request-ID"

// ForwardBackendOpts represents options for ForwardBackend.
type ForwardBackendOpts struct {
	// Origin is a fixed "host:port" all requests are sent to.
	// When empty, each request goes to its own target (absolute-form URL or Host header).
	Origin string

	ConnectTimeout time.Duration
	// ReadTimeout bounds every single read from the upstream, not the whole response.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// MaxHeaderBytes limits the upstream response header block.
	MaxHeaderBytes int

	// RateLimit is the maximum number of outbound requests per second. Zero disables the limit.
	RateLimit      float64
	RateLimitBurst int
	// RateLimitWaitTimeout is how long a request may wait for an outbound slot. Zero means no waiting.
	RateLimitWaitTimeout time.Duration
}

// ForwardBackend relays requests to a remote origin over a fresh TCP connection per request.
type ForwardBackend struct {
	opts    ForwardBackendOpts
	dialer  *net.Dialer
	limiter *rate.Limiter
}

var _ Backend = (*ForwardBackend)(nil)

// NewForwardBackend creates a new ForwardBackend.
func NewForwardBackend(opts ForwardBackendOpts) (*ForwardBackend, error) {
	if opts.Origin != "" {
		if _, _, err := net.SplitHostPort(opts.Origin); err != nil {
			return nil, fmt.Errorf("invalid origin %q: %w", opts.Origin, err)
		}
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.MaxHeaderBytes <= 0 {
		opts.MaxHeaderBytes = httpwire.DefaultMaxHeaderBytes
	}
	b := &ForwardBackend{opts: opts, dialer: &net.Dialer{Timeout: opts.ConnectTimeout}}
	if opts.RateLimit > 0 {
		burst := opts.RateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		b.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return b, nil
}

// CacheScope returns the upstream "host:port", so equal paths of different origins never share entries.
func (b *ForwardBackend) CacheScope(req *httpwire.Request) string {
	return b.upstreamAddr(req)
}

func (b *ForwardBackend) upstreamAddr(req *httpwire.Request) string {
	if b.opts.Origin != "" {
		return b.opts.Origin
	}
	return req.HostPort()
}

// Dispatch sends the request upstream and returns a stream of the upstream response.
// The body is not read here, the caller relays it and must close the result.
func (b *ForwardBackend) Dispatch(ctx context.Context, req *httpwire.Request) (*Result, error) {
	addr := b.upstreamAddr(req)

	if err := b.waitOutboundSlot(ctx); err != nil {
		return nil, newUpstreamError(ErrOutboundRateLimited, addr, err)
	}

	conn, err := b.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, newUpstreamError(ErrUpstreamConnect, addr, err)
	}

	if err = b.writeRequest(ctx, conn, req); err != nil {
		_ = conn.Close()
		return nil, newUpstreamIOError(addr, err)
	}

	br := bufio.NewReader(&deadlineReader{conn: conn, timeout: b.opts.ReadTimeout})
	head, err := httpwire.ReadResponseHead(br, b.opts.MaxHeaderBytes)
	if err != nil {
		_ = conn.Close()
		return nil, newUpstreamIOError(addr, err)
	}

	contentLength := head.ContentLength()
	if head.Chunked() {
		contentLength = -1
	}
	header := head.Header.Clone()
	header.RemoveHopByHop()
	body := &upstreamBodyReader{r: head.BodyReader(br, req.Method), addr: addr}
	return &Result{Stream: NewStream(head.Status, head.Reason, header, contentLength, body, conn)}, nil
}

func (b *ForwardBackend) waitOutboundSlot(ctx context.Context) error {
	if b.limiter == nil {
		return nil
	}
	if b.opts.RateLimitWaitTimeout <= 0 {
		if !b.limiter.Allow() {
			return errors.New("no outbound slot available")
		}
		return nil
	}
	waitCtx, cancel := context.WithTimeout(ctx, b.opts.RateLimitWaitTimeout)
	defer cancel()
	return b.limiter.Wait(waitCtx)
}

func (b *ForwardBackend) writeRequest(ctx context.Context, conn net.Conn, req *httpwire.Request) error {
	header := req.Header.Clone()
	header.RemoveHopByHop()
	if !header.Has("Host") {
		header.Set("Host", hostHeaderValue(req))
	}
	if requestID := GetRequestIDFromContext(ctx); requestID != "" && !header.Has(headerRequestID) {
		header.Set(headerRequestID, requestID)
	}
	contentLength := int64(-1)
	if len(req.Body) > 0 || req.Header.Has("Content-Length") {
		contentLength = int64(len(req.Body))
	}

	if err := conn.SetWriteDeadline(time.Now().Add(b.opts.WriteTimeout)); err != nil {
		return err
	}
	bw := bufio.NewWriter(conn)
	if err := httpwire.WriteRequestHead(bw, req.Method, req.RequestURI(), &header, contentLength); err != nil {
		return err
	}
	if _, err := bw.Write(req.Body); err != nil {
		return err
	}
	return bw.Flush()
}

func hostHeaderValue(req *httpwire.Request) string {
	host := req.Host
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if req.Port == 80 {
		return host
	}
	return host + ":" + strconv.Itoa(req.Port)
}

// deadlineReader extends the read deadline before every read.
type deadlineReader struct {
	conn    net.Conn
	timeout time.Duration
}

func (r *deadlineReader) Read(p []byte) (int, error) {
	if err := r.conn.SetReadDeadline(time.Now().Add(r.timeout)); err != nil {
		return 0, err
	}
	return r.conn.Read(p)
}

// upstreamBodyReader reports read failures as *UpstreamError, so they are told apart from client write failures.
type upstreamBodyReader struct {
	r    io.Reader
	addr string
}

func (r *upstreamBodyReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	switch {
	case err == nil:
		return n, nil
	case errors.Is(err, io.EOF):
		return n, io.EOF
	default:
		return n, newUpstreamIOError(r.addr, err)
	}
}
