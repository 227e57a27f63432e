/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package dispatch serves a single HTTP/1.1 request per connection: it parses the request,
// applies admission control, consults the response cache and calls a Backend.
package dispatch

import (
	"bufio"
	"context"
	"errors"
	"io"
	"math"
	"net"
	"strconv"
	"time"

	"github.com/rs/xid"

	"github.com/acronis/go-wireserver/httpwire"
	"github.com/acronis/go-wireserver/log"
	"github.com/acronis/go-wireserver/respcache"
)

const unknownClientKey = "unknown"

// RateLimiter admits or refuses requests of a client.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (allow bool, retryAfter time.Duration, err error)
}

// MetricsCollector receives exactly one terminal outcome per served connection.
type MetricsCollector interface {
	IncConnections()
	IncTimeouts()
	IncErrors()
	IncRateLimited()
	IncCacheHits()
	IncCacheStores()
	ObserveRequest(method string, status int, latency time.Duration)
}

// Opts represents options for Dispatcher.
type Opts struct {
	// Parser reads requests. Nil means parser with default limits.
	Parser *httpwire.Parser

	// Limiter is consulted with the client IP. Nil disables rate limiting.
	Limiter RateLimiter

	// Cache stores responses to cacheable requests. Nil disables caching.
	Cache *respcache.Cache

	// CachePolicy decides what is cacheable. Nil means GET only with the default entry size ceiling.
	CachePolicy *respcache.Policy

	// WriteTimeout bounds writing the response to the client. Zero means no timeout.
	WriteTimeout time.Duration

	// GenerateRequestID returns the id sent in X-Request-ID. Nil means xid.
	GenerateRequestID func() string

	// AccessLog writes the per-request entry. Nil logs it at debug level.
	AccessLog *log.AccessLogger
}

// Dispatcher runs the serving pipeline against a connection. It is safe for concurrent use.
type Dispatcher struct {
	backend      Backend
	metrics      MetricsCollector
	logger       log.FieldLogger
	parser       *httpwire.Parser
	limiter      RateLimiter
	cache        *respcache.Cache
	policy       *respcache.Policy
	writeTimeout time.Duration
	genID        func() string
	accessLog    *log.AccessLogger
}

// New creates a new Dispatcher. Logger can be nil.
func New(backend Backend, metrics MetricsCollector, logger log.FieldLogger, opts Opts) *Dispatcher {
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	d := &Dispatcher{
		backend:      backend,
		metrics:      metrics,
		logger:       logger,
		parser:       opts.Parser,
		limiter:      opts.Limiter,
		cache:        opts.Cache,
		policy:       opts.CachePolicy,
		writeTimeout: opts.WriteTimeout,
		genID:        opts.GenerateRequestID,
		accessLog:    opts.AccessLog,
	}
	if d.parser == nil {
		d.parser = httpwire.NewParser(httpwire.ParserOpts{})
	}
	if d.policy == nil {
		d.policy = respcache.NewPolicy(respcache.DefaultMaxEntrySize, nil)
	}
	if d.genID == nil {
		d.genID = func() string { return xid.New().String() }
	}
	return d
}

// connState is the per-connection context of the pipeline.
type connState struct {
	conn      net.Conn
	bw        *bufio.Writer
	logger    log.FieldLogger
	requestID string
	start     time.Time
	stage     Stage
	req       *httpwire.Request
}

// ServeConn serves one request and closes the connection.
// The read deadline of the connection must be set by the caller.
func (d *Dispatcher) ServeConn(ctx context.Context, conn net.Conn) {
	s := &connState{
		conn:      conn,
		bw:        bufio.NewWriter(conn),
		requestID: d.genID(),
		start:     time.Now(),
		stage:     StageParsing,
	}
	s.logger = log.ForConn(d.logger, s.requestID, remoteAddr(conn))
	defer func() {
		s.stage = StageClosed
		if err := conn.Close(); err != nil {
			s.logger.Debug("failed to close connection", log.Error(err))
		}
	}()
	d.metrics.IncConnections()

	ctx = NewContextWithLogger(NewContextWithRequestID(ctx, s.requestID), s.logger)
	d.serve(ctx, s)
}

func (d *Dispatcher) serve(ctx context.Context, s *connState) {
	req, err := d.parser.Parse(bufio.NewReader(s.conn))
	if err != nil {
		d.handleParseError(s, err)
		return
	}
	s.req = req
	s.logger = log.ForRequest(s.logger, req.Method, req.Path)

	if req.Method == "CONNECT" {
		d.respondFinal(s, httpwire.NewTextResponse(501, "CONNECT not supported"))
		return
	}

	s.stage = StageRateLimiting
	if d.limiter != nil {
		allow, retryAfter, limErr := d.limiter.Allow(ctx, clientKey(s.conn))
		switch {
		case limErr != nil:
			s.logger.Warn("rate limiter failed, request is allowed", log.Error(limErr))
		case !allow:
			d.respondRateLimited(s, retryAfter)
			return
		}
	}

	s.stage = StageCacheLookup
	cacheable := d.cache != nil && d.policy.Cacheable(req.Method, req.Path)
	var cacheKey string
	if cacheable {
		cacheKey = respcache.Key(req, d.backend.CacheScope(req))
		if entry, ok := d.cache.Get(cacheKey); ok {
			d.metrics.IncCacheHits()
			d.respondFinal(s, entry.Response())
			return
		}
	}

	s.stage = StageBackend
	result, err := d.backend.Dispatch(ctx, req)
	if result == nil {
		d.handleBackendError(s, err)
		return
	}
	defer func() {
		if closeErr := result.Close(); closeErr != nil {
			s.logger.Debug("failed to close backend result", log.Error(closeErr))
		}
	}()
	if err != nil {
		s.logger.Error("handler failed", log.Error(err))
	}

	if result.Stream != nil {
		d.relayStream(s, result.Stream, cacheable, cacheKey)
		return
	}

	resp := result.Response
	if cacheable {
		// Handlers may return a shared response, so annotations go to a copy.
		resp = resp.Clone()
		s.stage = StageCacheStore
		if d.policy.Storable(resp.Status, len(resp.Body)) {
			d.cache.Put(cacheKey, respcache.NewEntry(resp.Status, &resp.Header, resp.Body))
			d.metrics.IncCacheStores()
		}
		resp.Header.Set(respcache.HeaderXCache, respcache.CacheMiss)
	}
	d.respondFinal(s, resp)
}

func (d *Dispatcher) handleParseError(s *connState, err error) {
	if httpwire.IsTimeout(err) {
		d.metrics.IncTimeouts()
		s.logger.Debug("timeout while reading request", log.Error(err))
		return
	}
	d.metrics.IncErrors()
	var parseErr *httpwire.ParseError
	if !errors.As(err, &parseErr) {
		s.logger.Debug("failed to read request", log.Error(err))
		return
	}
	s.logger.Debug("malformed request", log.Error(err))
	resp := httpwire.NewTextResponse(400, "Malformed request: "+parseErr.Kind.Error())
	if writeErr := d.write(s, resp); writeErr != nil {
		s.logger.Debug("failed to write response", log.Error(writeErr))
	}
}

func (d *Dispatcher) handleBackendError(s *connState, err error) {
	var upstreamErr *UpstreamError
	if errors.As(err, &upstreamErr) {
		switch {
		case upstreamErr.Timeout():
			d.metrics.IncTimeouts()
			s.logger.Warn("upstream timeout", log.Error(err))
			return
		case errors.Is(upstreamErr.Kind, ErrOutboundRateLimited):
			s.logger.Warn("outbound rate limit exceeded", log.Error(err))
			d.respondRateLimited(s, time.Second)
			return
		}
	}
	d.metrics.IncErrors()
	s.logger.Error("backend failed", log.Error(err))
	if writeErr := d.write(s, httpwire.NewStatusResponse(500)); writeErr != nil {
		s.logger.Debug("failed to write response", log.Error(writeErr))
	}
}

func (d *Dispatcher) respondRateLimited(s *connState, retryAfter time.Duration) {
	d.metrics.IncRateLimited()
	resp := httpwire.NewTextResponse(429, "Rate limit exceeded")
	resp.Header.Set("Retry-After", strconv.Itoa(retryAfterSeconds(retryAfter)))
	if err := d.write(s, resp); err != nil {
		s.logger.Debug("failed to write response", log.Error(err))
	}
}

// respondFinal writes a complete response and records the request as served.
func (d *Dispatcher) respondFinal(s *connState, resp *httpwire.Response) {
	if err := d.write(s, resp); err != nil {
		d.metrics.IncErrors()
		s.logger.Warn("failed to write response", log.Error(err))
		return
	}
	d.observe(s, resp.Status)
}

func (d *Dispatcher) write(s *connState, resp *httpwire.Response) error {
	s.stage = StageRespond
	resp = resp.Clone()
	resp.Header.Set(headerRequestID, s.requestID)
	if err := d.setWriteDeadline(s); err != nil {
		return err
	}
	return resp.Write(s.bw)
}

// relayStream writes the upstream response to the client as it arrives.
// The body is captured for the cache only while it stays within the entry size ceiling.
func (d *Dispatcher) relayStream(s *connState, st *Stream, cacheable bool, cacheKey string) {
	s.stage = StageRespond
	header := st.Header.Clone()
	if cacheable {
		header.Set(respcache.HeaderXCache, respcache.CacheMiss)
	}
	header.Set(headerRequestID, s.requestID)

	var capture *respcache.Capture
	var dst io.Writer = s.bw
	if cacheable && d.policy.Storable(st.Status, 0) &&
		(st.ContentLength < 0 || st.ContentLength <= int64(d.policy.MaxEntrySize())) {
		capture = respcache.NewCapture(d.policy.MaxEntrySize())
		dst = io.MultiWriter(s.bw, capture)
	}

	err := d.setWriteDeadline(s)
	if err == nil {
		err = httpwire.WriteHead(s.bw, st.Status, st.Reason, &header, st.ContentLength)
	}
	if err == nil {
		_, err = io.Copy(dst, st.Body)
	}
	if err == nil {
		err = s.bw.Flush()
	}
	if err != nil {
		var upstreamErr *UpstreamError
		if errors.As(err, &upstreamErr) && upstreamErr.Timeout() {
			d.metrics.IncTimeouts()
			s.logger.Warn("upstream timeout while streaming response", log.Error(err))
			return
		}
		d.metrics.IncErrors()
		s.logger.Warn("failed to relay upstream response", log.Error(err))
		return
	}

	if capture != nil {
		s.stage = StageCacheStore
		if body, ok := capture.Bytes(); ok && d.policy.Storable(st.Status, len(body)) {
			d.cache.Put(cacheKey, respcache.NewEntry(st.Status, &st.Header, body))
			d.metrics.IncCacheStores()
		}
	}
	d.observe(s, st.Status)
}

func (d *Dispatcher) observe(s *connState, status int) {
	method := ""
	if s.req != nil {
		method = s.req.Method
	}
	latency := time.Since(s.start)
	d.metrics.ObserveRequest(method, status, latency)
	d.accessLog.Log(s.logger, status, latency)
}

func (d *Dispatcher) setWriteDeadline(s *connState) error {
	if d.writeTimeout <= 0 {
		return nil
	}
	return s.conn.SetWriteDeadline(time.Now().Add(d.writeTimeout))
}

// clientKey is the remote IP without the ephemeral port.
func clientKey(conn net.Conn) string {
	addr := conn.RemoteAddr()
	if addr == nil {
		return unknownClientKey
	}
	if tcpAddr, ok := addr.(*net.TCPAddr); ok {
		return tcpAddr.IP.String()
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil || host == "" {
		return unknownClientKey
	}
	return host
}

func remoteAddr(conn net.Conn) string {
	if addr := conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

// retryAfterSeconds rounds up to whole seconds, at least 1.
func retryAfterSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
