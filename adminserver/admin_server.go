/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package adminserver provides the operator HTTP endpoints of wireserver:
// Prometheus metrics, health-check, the metrics summary and response cache management.
package adminserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/atomic"

	"github.com/acronis/go-wireserver/log"
	"github.com/acronis/go-wireserver/service"
)

// SummaryProvider returns the one-line metrics summary.
type SummaryProvider interface {
	Summary() string
}

// CacheManager is the part of the response cache managed over HTTP.
type CacheManager interface {
	Len() int
	Clear()
}

// RateLimitStats reads cumulative rate limiting decisions.
type RateLimitStats interface {
	Totals(ctx context.Context) (allowed, denied int64, err error)
}

// Opts represents options for Server. Endpoints of nil collaborators are not registered.
type Opts struct {
	// Gatherer is exposed on /metrics. Nil means prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	HealthCheck    HealthCheck
	Summary        SummaryProvider
	Cache          CacheManager
	RateLimitStats RateLimitStats

	// Profiling mounts pprof handlers under /debug.
	Profiling bool

	// Listener is used instead of listening on the configured address.
	Listener net.Listener
}

type cacheResponseData struct {
	Entries int `json:"entries"`
}

type cacheClearResponseData struct {
	Removed int `json:"removed"`
}

type rateLimitStatsResponseData struct {
	Allowed int64 `json:"allowed"`
	Denied  int64 `json:"denied"`
}

// Server is the admin HTTP server.
type Server struct {
	HTTPServer      *http.Server
	Router          chi.Router
	Logger          log.FieldLogger
	ShutdownTimeout time.Duration

	listener  net.Listener
	port      atomic.Int32
	serveDone atomic.Value
}

var _ service.Unit = (*Server)(nil)

// New creates a new admin Server. Logger can be nil.
func New(cfg *Config, logger log.FieldLogger, opts Opts) *Server {
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	opts.Profiling = opts.Profiling || cfg.Profiling
	router := NewRouter(logger, opts)
	return &Server{
		HTTPServer: &http.Server{
			Addr:              cfg.Address,
			Handler:           router,
			ReadTimeout:       time.Duration(cfg.Timeouts.Read),
			ReadHeaderTimeout: time.Duration(cfg.Timeouts.Read),
			WriteTimeout:      time.Duration(cfg.Timeouts.Write),
		},
		Router:          router,
		Logger:          logger,
		ShutdownTimeout: time.Duration(cfg.Timeouts.Shutdown),
		listener:        opts.Listener,
	}
}

// NewRouter creates a chi.Router with the admin endpoints.
func NewRouter(logger log.FieldLogger, opts Opts) chi.Router {
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	router := chi.NewRouter()

	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	router.Method(http.MethodGet, "/healthz", NewHealthCheckHandler(opts.HealthCheck, logger))

	if opts.Summary != nil {
		router.Get("/summary", func(rw http.ResponseWriter, r *http.Request) {
			respondText(rw, opts.Summary.Summary(), logger)
		})
	}

	if opts.Cache != nil {
		router.Get("/cache", func(rw http.ResponseWriter, r *http.Request) {
			respondCodeAndJSON(rw, http.StatusOK, cacheResponseData{Entries: opts.Cache.Len()}, logger)
		})
		router.Delete("/cache", func(rw http.ResponseWriter, r *http.Request) {
			removed := opts.Cache.Len()
			opts.Cache.Clear()
			logger.Info("response cache is cleared", log.Int("removed", removed))
			respondCodeAndJSON(rw, http.StatusOK, cacheClearResponseData{Removed: removed}, logger)
		})
	}

	if opts.RateLimitStats != nil {
		router.Get("/ratelimit/stats", func(rw http.ResponseWriter, r *http.Request) {
			allowed, denied, err := opts.RateLimitStats.Totals(r.Context())
			if err != nil {
				logger.Warn("failed to read rate limiting stats", log.Error(err))
				respondError(rw, http.StatusServiceUnavailable, "rate limiting stats are unavailable", logger)
				return
			}
			respondCodeAndJSON(rw, http.StatusOK, rateLimitStatsResponseData{Allowed: allowed, Denied: denied}, logger)
		})
	}

	if opts.Profiling {
		router.Mount("/debug", chimiddleware.Profiler())
	}

	router.NotFound(func(rw http.ResponseWriter, r *http.Request) {
		respondError(rw, http.StatusNotFound, "not found", logger)
	})
	router.MethodNotAllowed(func(rw http.ResponseWriter, r *http.Request) {
		respondError(rw, http.StatusMethodNotAllowed, "method not allowed", logger)
	})

	return router
}

// Start starts the admin HTTP server in a blocking way.
// It's supposed that this method will be called in a separate goroutine.
// If a fatal error occurs, it will be sent to the fatalError channel.
func (s *Server) Start(fatalError chan<- error) {
	done := make(chan struct{})
	defer close(done)
	s.serveDone.Store(done)

	logger := s.Logger.With(
		log.String("address", s.HTTPServer.Addr),
		log.Duration("shutdown_timeout", s.ShutdownTimeout),
	)
	logger.Info("starting admin HTTP server...")

	var err error
	if s.listener == nil {
		if s.listener, err = net.Listen("tcp", s.HTTPServer.Addr); err != nil {
			logger.Error("admin HTTP server error", log.Error(err))
			fatalError <- err
			return
		}
	}
	if tcpAddr, ok := s.listener.Addr().(*net.TCPAddr); ok {
		s.port.Store(int32(tcpAddr.Port))
	}

	if err = s.HTTPServer.Serve(s.listener); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			logger.Info("admin HTTP server closed")
			return
		}
		logger.Error("admin HTTP server error", log.Error(err))
		fatalError <- err
	}
}

// Stop stops the admin HTTP server. With gracefully it waits up to ShutdownTimeout for active requests.
func (s *Server) Stop(gracefully bool) error {
	if !gracefully {
		s.Logger.Info("closing admin HTTP server...")
		if err := s.HTTPServer.Close(); err != nil {
			s.Logger.Error("admin HTTP server closing error", log.Error(err))
			return err
		}
		s.waitServeDone()
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.ShutdownTimeout)
	defer cancel()

	s.Logger.Info("shutting down admin HTTP server...", log.Duration("timeout", s.ShutdownTimeout))
	if err := s.HTTPServer.Shutdown(ctx); err != nil {
		s.Logger.Error("admin HTTP server shutting down error", log.Error(err))
		return err
	}
	s.Logger.Info("admin HTTP server shut down")
	s.waitServeDone()
	return nil
}

// GetPort returns the port the server listens on. It is 0 until the listener is bound.
func (s *Server) GetPort() int {
	return int(s.port.Load())
}

func (s *Server) waitServeDone() {
	if done, ok := s.serveDone.Load().(chan struct{}); ok && done != nil {
		<-done // Wait for Serve to return.
	}
}
