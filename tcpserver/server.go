/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package tcpserver accepts TCP connections and serves each of them on a bounded worker pool.
// When every worker is busy a new connection is closed at once and counted as dropped.
package tcpserver

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"

	"github.com/acronis/go-wireserver/log"
	"github.com/acronis/go-wireserver/service"
)

const networkTCP = "tcp"

// Backoff of accept retries after transient errors (e.g. EMFILE).
const (
	acceptRetryInitialInterval = 5 * time.Millisecond
	acceptRetryMaxInterval     = time.Second
)

// ConnHandler serves an accepted connection. It owns the connection and must close it.
type ConnHandler interface {
	ServeConn(ctx context.Context, conn net.Conn)
}

// ConnHandlerFunc is an adapter to allow the use of ordinary functions as ConnHandler.
type ConnHandlerFunc func(ctx context.Context, conn net.Conn)

// ServeConn calls f(ctx, conn).
func (f ConnHandlerFunc) ServeConn(ctx context.Context, conn net.Conn) {
	f(ctx, conn)
}

// MetricsCollector counts outcomes that happen before a connection reaches a worker.
type MetricsCollector interface {
	IncDropped()
	IncErrors()
}

// Opts represents options for Server.
type Opts struct {
	// Listener is used instead of listening on the configured address.
	Listener net.Listener

	// Registerer is used for the worker pool gauges. Nil disables them.
	Registerer prometheus.Registerer

	// Namespace is a prefix of the worker pool gauges.
	Namespace string
}

// Server owns the listening socket and the worker pool.
type Server struct {
	Address         string
	Logger          log.FieldLogger
	ReadTimeout     time.Duration
	ShutdownTimeout time.Duration

	handler    ConnHandler
	metrics    MetricsCollector
	pool       *WorkerPool
	bind       BindConfig
	registerer prometheus.Registerer
	collectors []prometheus.Collector

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	stopped  bool

	port      atomic.Int32
	serveDone atomic.Value

	stopCtx       context.Context
	stopAccepting context.CancelFunc
	baseCtx       context.Context
	cancelBaseCtx context.CancelFunc
}

var _ service.Unit = (*Server)(nil)
var _ service.MetricsRegisterer = (*Server)(nil)

// New creates a new Server. Logger can be nil.
func New(cfg *Config, handler ConnHandler, metrics MetricsCollector, logger log.FieldLogger, opts Opts) *Server {
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers()
	}
	s := &Server{
		Address:         cfg.Address,
		Logger:          logger,
		ReadTimeout:     time.Duration(cfg.Timeouts.Read),
		ShutdownTimeout: time.Duration(cfg.Timeouts.Shutdown),
		handler:         handler,
		metrics:         metrics,
		pool:            NewWorkerPool(workers),
		bind:            cfg.Bind,
		registerer:      opts.Registerer,
		listener:        opts.Listener,
		conns:           make(map[net.Conn]struct{}),
	}
	s.stopCtx, s.stopAccepting = context.WithCancel(context.Background())
	s.baseCtx, s.cancelBaseCtx = context.WithCancel(context.Background())
	if s.registerer != nil {
		s.collectors = s.newPoolCollectors(opts.Namespace)
	}
	return s
}

// Start listens on the configured address and serves connections until Stop is called.
// A failed bind (after the configured retries) is sent to fatalError.
func (s *Server) Start(fatalError chan<- error) {
	done := make(chan struct{})
	defer close(done)
	s.serveDone.Store(done)

	logger := s.Logger.With(
		log.String("address", s.Address),
		log.Int("workers", s.pool.Size()),
		log.Duration("read_timeout", s.ReadTimeout),
		log.Duration("shutdown_timeout", s.ShutdownTimeout),
	)
	logger.Info("starting wire server...")

	ln, err := s.listen(logger)
	if err != nil {
		if s.isStopped() {
			return
		}
		logger.Error("wire server error", log.Error(err))
		fatalError <- err
		return
	}
	if tcpAddr, ok := ln.Addr().(*net.TCPAddr); ok {
		s.port.Store(int32(tcpAddr.Port))
	}

	s.serve(ln, logger)
	logger.Info("wire server closed")
}

// listen returns the listener, retrying a failed bind with a constant backoff.
func (s *Server) listen(logger log.FieldLogger) (net.Listener, error) {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln != nil {
		return ln, nil
	}

	var b backoff.BackOff = backoff.NewConstantBackOff(time.Duration(s.bind.RetryInterval))
	b = backoff.WithMaxRetries(b, uint64(s.bind.MaxRetries))
	op := func() error {
		var err error
		ln, err = net.Listen(networkTCP, s.Address)
		return err
	}
	notify := func(err error, next time.Duration) {
		logger.Warn("failed to bind wire server listener, retrying", log.Error(err), log.Duration("retry_in", next))
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(b, s.stopCtx), notify); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		_ = ln.Close()
		return nil, net.ErrClosed
	}
	s.listener = ln
	return ln, nil
}

// serve runs the accept loop until the listener is closed.
func (s *Server) serve(ln net.Listener, logger log.FieldLogger) {
	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = acceptRetryInitialInterval
	retry.MaxInterval = acceptRetryMaxInterval
	retry.MaxElapsedTime = 0
	retry.Reset()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || s.isStopped() {
				return
			}
			s.metrics.IncErrors()
			delay := retry.NextBackOff()
			logger.Warn("failed to accept connection", log.Error(err), log.Duration("retry_in", delay))
			select {
			case <-time.After(delay):
			case <-s.stopCtx.Done():
				return
			}
			continue
		}
		retry.Reset()
		s.dispatch(conn, logger)
	}
}

// dispatch hands the connection to a free worker or drops it.
func (s *Server) dispatch(conn net.Conn, logger log.FieldLogger) {
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		if err := tcpConn.SetNoDelay(true); err != nil {
			logger.Debug("failed to set TCP_NODELAY", log.Error(err))
		}
	}
	if s.ReadTimeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(s.ReadTimeout)); err != nil {
			logger.Debug("failed to set read deadline", log.Error(err))
		}
	}

	s.trackConn(conn)
	submitted := s.pool.TrySubmit(func() {
		defer s.untrackConn(conn)
		s.handler.ServeConn(s.baseCtx, conn)
	})
	if submitted {
		return
	}
	s.untrackConn(conn)
	s.metrics.IncDropped()
	logger.Debug("worker pool is saturated, connection is dropped", log.String("remote_addr", conn.RemoteAddr().String()))
	_ = conn.Close()
}

// Stop closes the listener. When gracefully is true it waits up to ShutdownTimeout for in-flight
// connections, then cancels the context passed to the handler and closes the connections left.
func (s *Server) Stop(gracefully bool) error {
	s.stopAccepting()

	s.mu.Lock()
	s.stopped = true
	ln := s.listener
	s.mu.Unlock()

	var closeErr error
	if ln != nil {
		s.Logger.Info("closing wire server listener...")
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.Logger.Error("wire server listener closing error", log.Error(err))
			closeErr = err
		}
	}
	if done, ok := s.serveDone.Load().(chan struct{}); ok && done != nil {
		<-done // Wait for the accept loop to exit.
	}

	if gracefully && s.ShutdownTimeout > 0 {
		s.Logger.Info("shutting down wire server...", log.Duration("timeout", s.ShutdownTimeout))
		ctx, cancel := context.WithTimeout(context.Background(), s.ShutdownTimeout)
		defer cancel()
		if err := s.pool.Wait(ctx); err != nil {
			s.Logger.Warn("wire server grace period expired, closing remaining connections",
				log.Int("in_flight", s.pool.Busy()))
		}
	}

	s.cancelBaseCtx()
	if n := s.closeConns(); n > 0 {
		s.Logger.Info("wire server closed connections forcibly", log.Int("connections", n))
	}
	s.Logger.Info("wire server shut down")
	return closeErr
}

// GetPort returns the port the server listens on. It is 0 until the listener is bound.
func (s *Server) GetPort() int {
	return int(s.port.Load())
}

// InFlight returns the number of connections being served.
func (s *Server) InFlight() int {
	return s.pool.Busy()
}

// Workers returns the size of the worker pool.
func (s *Server) Workers() int {
	return s.pool.Size()
}

// MustRegisterMetrics registers the worker pool gauges.
func (s *Server) MustRegisterMetrics() {
	if s.registerer != nil {
		s.registerer.MustRegister(s.collectors...)
	}
}

// UnregisterMetrics unregisters the worker pool gauges.
func (s *Server) UnregisterMetrics() {
	if s.registerer == nil {
		return
	}
	for _, c := range s.collectors {
		s.registerer.Unregister(c)
	}
}

func (s *Server) newPoolCollectors(namespace string) []prometheus.Collector {
	size := float64(s.pool.Size())
	return []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_pool_size",
			Help:      "Maximum number of connections served concurrently.",
		}, func() float64 { return size }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_pool_busy_workers",
			Help:      "Number of connections being served.",
		}, func() float64 { return float64(s.pool.Busy()) }),
	}
}

func (s *Server) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *Server) trackConn(conn net.Conn) {
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrackConn(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

func (s *Server) closeConns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.conns)
	for conn := range s.conns {
		_ = conn.Close()
		delete(s.conns, conn)
	}
	return n
}
