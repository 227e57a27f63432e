/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"errors"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-wireserver/log/logtest"
)

// drainingUnit blocks a graceful stop until a forced one arrives.
type drainingUnit struct {
	*mockUnit
	forced chan struct{}
}

func (u *drainingUnit) Stop(gracefully bool) error {
	if !gracefully {
		close(u.forced)
		return u.mockUnit.Stop(false)
	}
	<-u.forced
	_ = u.mockUnit.Stop(true)
	return errors.New("connections closed forcibly")
}

func TestService_StopsOnContextCancel(t *testing.T) {
	unit := newMockUnit(nil, nil)
	logger := logtest.NewRecorder()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- New(logger, unit, Opts{}).Run(ctx) }()
	require.Eventually(t, func() bool { return unit.started.Load() == 1 }, time.Second, 10*time.Millisecond)
	require.EqualValues(t, 1, unit.registered.Load())
	cancel()

	require.NoError(t, <-done)
	require.EqualValues(t, 1, unit.stopped.Load())
	require.True(t, unit.graceful.Load())
	require.EqualValues(t, 0, unit.registered.Load())
	_, found := logger.FindEntry("wireserver stopped")
	require.True(t, found)
}

func TestService_StopsOnSignal(t *testing.T) {
	unit := newMockUnit(nil, nil)
	signals := make(chan os.Signal, 1)
	svc := New(logtest.NewRecorder(), unit, Opts{Signals: signals})

	done := make(chan error, 1)
	go func() { done <- svc.Run(context.Background()) }()
	require.Eventually(t, func() bool { return unit.started.Load() == 1 }, time.Second, 10*time.Millisecond)
	signals <- syscall.SIGTERM

	require.NoError(t, <-done)
	require.EqualValues(t, 1, unit.stopped.Load())
	require.True(t, unit.graceful.Load())
}

func TestService_SecondSignalForcesStop(t *testing.T) {
	unit := &drainingUnit{mockUnit: newMockUnit(nil, nil), forced: make(chan struct{})}
	signals := make(chan os.Signal, 1)
	logger := logtest.NewRecorder()
	svc := New(logger, unit, Opts{Signals: signals, ShutdownSignals: []os.Signal{syscall.SIGUSR1}})

	done := make(chan error, 1)
	go func() { done <- svc.Run(context.Background()) }()
	require.Eventually(t, func() bool { return unit.started.Load() == 1 }, time.Second, 10*time.Millisecond)
	signals <- syscall.SIGTERM
	signals <- syscall.SIGTERM

	err := <-done
	require.ErrorContains(t, err, "stop wireserver gracefully: connections closed forcibly")
	require.EqualValues(t, 2, unit.stopped.Load())
	_, found := logger.FindEntry("wireserver got second shutdown signal, stopping forcibly")
	require.True(t, found)
}

func TestService_FatalError(t *testing.T) {
	unit := newMockUnit(errors.New("listen failed"), nil)
	logger := logtest.NewRecorder()

	err := New(logger, unit, Opts{}).Run(context.Background())
	require.ErrorContains(t, err, "listen failed")
	require.EqualValues(t, 1, unit.stopped.Load())
	require.False(t, unit.graceful.Load())
	_, found := logger.FindEntry("wireserver fatal error")
	require.True(t, found)
}

func TestService_StopError(t *testing.T) {
	unit := newMockUnit(nil, errors.New("drain timed out"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := New(logtest.NewRecorder(), unit, Opts{}).Run(ctx)
	require.ErrorContains(t, err, "stop wireserver gracefully: drain timed out")
}
