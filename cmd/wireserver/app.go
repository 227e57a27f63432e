/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package main

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/acronis/go-wireserver/adminserver"
	"github.com/acronis/go-wireserver/dispatch"
	"github.com/acronis/go-wireserver/httpwire"
	"github.com/acronis/go-wireserver/internal/libinfo"
	"github.com/acronis/go-wireserver/internal/ratelimit"
	"github.com/acronis/go-wireserver/janitor"
	"github.com/acronis/go-wireserver/log"
	"github.com/acronis/go-wireserver/metrics"
	"github.com/acronis/go-wireserver/respcache"
	"github.com/acronis/go-wireserver/service"
	"github.com/acronis/go-wireserver/tcpserver"
)

const metricsNamespace = "wireserver"

// Components reported by /healthz.
const (
	healthComponentWireServer = "wire_server"
	healthComponentWorkerPool = "worker_pool"
)

// appOpts substitute parts of the environment in tests.
type appOpts struct {
	// Now is the clock of the /time route. Nil means time.Now.
	Now func() time.Time

	// WireListener and AdminListener are used instead of listening on the configured addresses.
	WireListener  net.Listener
	AdminListener net.Listener
}

// app holds the wired components of wireserver.
type app struct {
	logger     log.FieldLogger
	registry   *prometheus.Registry
	sink       *metrics.Sink
	cache      *respcache.Cache
	limiter    ratelimit.Limiter
	wireServer *tcpserver.Server
	admin      *adminserver.Server
	janitor    *janitor.Janitor
	closers    []func() error
}

func newApp(cfg *AppConfig, logger log.FieldLogger, opts appOpts) (*app, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}

	a := &app{logger: logger, registry: prometheus.NewRegistry()}
	created := false
	defer func() {
		if !created {
			_ = a.close()
		}
	}()

	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		libinfo.NewBuildInfoGauge(metricsNamespace, getVersion()),
	)

	a.sink = metrics.NewSinkWithOpts(metrics.SinkOpts{Namespace: metricsNamespace, Logger: logger})
	a.sink.MustRegister(a.registry)

	dispatcherOpts := dispatch.Opts{
		Parser:       httpwire.NewParser(cfg.Server.Limits.ParserOpts()),
		WriteTimeout: time.Duration(cfg.Server.Timeouts.Write),
		AccessLog:    log.NewAccessLogger(cfg.Log.Access),
	}

	if cfg.Cache.Enabled {
		cacheMetrics := respcache.NewPrometheusMetrics(metricsNamespace)
		cacheMetrics.MustRegister(a.registry)
		var err error
		if a.cache, err = respcache.New(cfg.Cache.MaxEntries, cfg.Cache.TTL, cacheMetrics); err != nil {
			return nil, fmt.Errorf("create response cache: %w", err)
		}
		dispatcherOpts.Cache = a.cache
		dispatcherOpts.CachePolicy = respcache.NewPolicy(int(cfg.Cache.MaxEntrySize), cfg.Cache.ExcludedPaths)
	}

	if cfg.RateLimit.Enabled {
		var closeStats func() error
		var err error
		if a.limiter, closeStats, err = ratelimit.NewWithStats(cfg.RateLimit, logger); err != nil {
			return nil, fmt.Errorf("create rate limiter: %w", err)
		}
		a.closers = append(a.closers, closeStats)
		dispatcherOpts.Limiter = a.limiter
	}

	registry := dispatch.NewRegistry()
	registerDemoRoutes(registry, opts.Now)
	backend, err := dispatch.NewBackend(cfg.Dispatch, registry, logger)
	if err != nil {
		return nil, fmt.Errorf("create %s backend: %w", cfg.Dispatch.Mode, err)
	}
	dispatcher := dispatch.New(backend, a.sink, logger, dispatcherOpts)

	a.wireServer = tcpserver.New(cfg.Server, dispatcher, a.sink, logger, tcpserver.Opts{
		Listener:   opts.WireListener,
		Registerer: a.registry,
		Namespace:  metricsNamespace,
	})

	if cfg.Admin.Enabled {
		adminOpts := adminserver.Opts{
			Gatherer:    a.registry,
			HealthCheck: a.checkHealth,
			Summary:     a.sink,
			Listener:    opts.AdminListener,
		}
		if a.cache != nil {
			adminOpts.Cache = a.cache
		}
		if stats, ok := a.limiter.(adminserver.RateLimitStats); ok {
			adminOpts.RateLimitStats = stats
		}
		a.admin = adminserver.New(cfg.Admin, logger, adminOpts)
	}

	targets := janitor.Targets{Summary: a.sink}
	if sweeper, ok := a.limiter.(ratelimit.Sweeper); ok {
		targets.Limiter = sweeper
	}
	if a.cache != nil {
		targets.Cache = a.cache
	}
	if a.janitor, err = janitor.NewWithConfig(cfg.Janitor, targets, logger); err != nil {
		return nil, fmt.Errorf("create janitor: %w", err)
	}

	logger.Info("wireserver is configured",
		log.String("mode", string(cfg.Dispatch.Mode)),
		log.Bool("cache", a.cache != nil),
		log.Bool("rate_limit", a.limiter != nil),
		log.Bool("admin", a.admin != nil),
	)
	created = true
	return a, nil
}

// checkHealth fails while the wire listener is not bound and reports a saturated worker pool as degraded.
func (a *app) checkHealth(context.Context) (adminserver.HealthCheckResult, error) {
	result := adminserver.HealthCheckResult{
		healthComponentWireServer: adminserver.HealthCheckStatusFail,
		healthComponentWorkerPool: adminserver.HealthCheckStatusOK,
	}
	if a.wireServer.GetPort() != 0 {
		result[healthComponentWireServer] = adminserver.HealthCheckStatusOK
	}
	if a.wireServer.InFlight() >= a.wireServer.Workers() {
		result[healthComponentWorkerPool] = adminserver.HealthCheckStatusDegraded
	}
	return result, nil
}

// unit returns the service unit running all servers of the app.
func (a *app) unit() service.Unit {
	units := []service.Unit{a.wireServer}
	if a.admin != nil {
		units = append(units, a.admin)
	}
	units = append(units, a.janitor)
	return service.NewCompositeUnit(units...)
}

func (a *app) close() error {
	var firstErr error
	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.closers = nil
	return firstErr
}
