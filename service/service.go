/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/acronis/go-wireserver/log"
)

// Opts represents options for Service.
type Opts struct {
	// ShutdownSignals start the graceful stop. A second one forces the stop. Nil means SIGINT and SIGTERM.
	ShutdownSignals []os.Signal

	// Signals receives the shutdown signals. Nil means a channel created by New.
	Signals chan os.Signal
}

// Service runs a unit until the context is canceled, a shutdown signal arrives or the unit fails.
type Service struct {
	unit            Unit
	logger          log.FieldLogger
	signals         chan os.Signal
	shutdownSignals []os.Signal
}

// New creates a new Service.
func New(logger log.FieldLogger, unit Unit, opts Opts) *Service {
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	s := &Service{unit: unit, logger: logger, signals: opts.Signals, shutdownSignals: opts.ShutdownSignals}
	if s.signals == nil {
		s.signals = make(chan os.Signal, 1)
	}
	if len(s.shutdownSignals) == 0 {
		s.shutdownSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}
	return s
}

// Run starts the unit and blocks until it is stopped.
// A fatal unit error stops the unit non-gracefully and is returned.
func (s *Service) Run(ctx context.Context) error {
	if mr, ok := s.unit.(MetricsRegisterer); ok {
		mr.MustRegisterMetrics()
		defer mr.UnregisterMetrics()
	}

	signal.Notify(s.signals, s.shutdownSignals...)
	defer signal.Stop(s.signals)

	fatalErr := make(chan error, 1)
	go s.unit.Start(fatalErr)

	select {
	case <-ctx.Done():
		s.logger.Info("context is canceled, wireserver will be stopped")
	case sig := <-s.signals:
		s.logger.Info("wireserver got shutdown signal", log.String("signal", sig.String()))
	case err := <-fatalErr:
		s.logger.Error("wireserver fatal error", log.Error(err))
		if stopErr := s.unit.Stop(false); stopErr != nil {
			s.logger.Warn("failed to stop wireserver after fatal error", log.Error(stopErr))
		}
		return fmt.Errorf("fatal error: %w", err)
	}
	return s.stopGracefully()
}

// stopGracefully waits for the graceful stop. A shutdown signal received meanwhile forces the stop.
func (s *Service) stopGracefully() error {
	start := time.Now()
	stopped := make(chan error, 1)
	go func() { stopped <- s.unit.Stop(true) }()

	var err error
	select {
	case err = <-stopped:
	case sig := <-s.signals:
		s.logger.Warn("wireserver got second shutdown signal, stopping forcibly", log.String("signal", sig.String()))
		if forceErr := s.unit.Stop(false); forceErr != nil {
			s.logger.Warn("failed to stop wireserver forcibly", log.Error(forceErr))
		}
		err = <-stopped
	}
	if err != nil {
		return fmt.Errorf("stop wireserver gracefully: %w", err)
	}
	s.logger.Info("wireserver stopped", log.DurationIn(time.Since(start), time.Millisecond))
	return nil
}
