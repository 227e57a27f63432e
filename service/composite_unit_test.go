/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

type mockUnit struct {
	startErr error
	stopErr  error
	stop     chan struct{}

	started    atomic.Int32
	stopped    atomic.Int32
	graceful   atomic.Bool
	registered atomic.Int32
}

func newMockUnit(startErr, stopErr error) *mockUnit {
	return &mockUnit{startErr: startErr, stopErr: stopErr, stop: make(chan struct{}, 1)}
}

func (u *mockUnit) Start(fatalErr chan<- error) {
	u.started.Inc()
	if u.startErr != nil {
		fatalErr <- u.startErr
	}
}

func (u *mockUnit) Stop(gracefully bool) error {
	u.stopped.Inc()
	u.graceful.Store(gracefully)
	return u.stopErr
}

func (u *mockUnit) MustRegisterMetrics() { u.registered.Inc() }
func (u *mockUnit) UnregisterMetrics()   { u.registered.Dec() }

func TestCompositeUnit_StartStop(t *testing.T) {
	u1, u2 := newMockUnit(nil, nil), newMockUnit(nil, nil)
	cu := NewCompositeUnit(u1, u2)

	fatalErr := make(chan error, 1)
	cu.Start(fatalErr)
	require.Len(t, fatalErr, 0)
	require.EqualValues(t, 1, u1.started.Load())
	require.EqualValues(t, 1, u2.started.Load())

	require.NoError(t, cu.Stop(true))
	require.True(t, u1.graceful.Load())
	require.EqualValues(t, 1, u2.stopped.Load())
}

func TestCompositeUnit_StartFailure(t *testing.T) {
	bindErr := errors.New("bind: address already in use")
	u1, u2 := newMockUnit(bindErr, nil), newMockUnit(nil, errors.New("stop failed"))
	cu := NewCompositeUnit(u1, u2)

	fatalErr := make(chan error, 1)
	cu.Start(fatalErr)

	var err error
	select {
	case err = <-fatalErr:
	case <-time.After(time.Second):
		t.Fatal("fatal error was not reported")
	}
	var cuErr *CompositeUnitError
	require.ErrorAs(t, err, &cuErr)
	require.Contains(t, cuErr.UnitErrors, bindErr)
	require.ErrorContains(t, err, "stop failed")
	require.False(t, u1.graceful.Load())
	require.EqualValues(t, 1, u1.stopped.Load())
	require.EqualValues(t, 1, u2.stopped.Load())
}

func TestCompositeUnit_Metrics(t *testing.T) {
	u1, u2 := newMockUnit(nil, nil), newMockUnit(nil, nil)
	cu := NewCompositeUnit(u1, u2)
	cu.MustRegisterMetrics()
	require.EqualValues(t, 1, u1.registered.Load())
	require.EqualValues(t, 1, u2.registered.Load())
	cu.UnregisterMetrics()
	require.EqualValues(t, 0, u1.registered.Load())
}

// orderedUnit appends its name to a shared log when stopped.
type orderedUnit struct {
	name    string
	mu      *sync.Mutex
	stopLog *[]string
	stopErr error
}

func (u *orderedUnit) Start(chan<- error) {}

func (u *orderedUnit) Stop(bool) error {
	u.mu.Lock()
	*u.stopLog = append(*u.stopLog, u.name)
	u.mu.Unlock()
	return u.stopErr
}

func TestCompositeUnit_GracefulStopKeepsOrder(t *testing.T) {
	var mu sync.Mutex
	var stopLog []string
	drainErr := errors.New("wire server: grace period expired")
	cu := NewCompositeUnit(
		&orderedUnit{name: "wire", mu: &mu, stopLog: &stopLog, stopErr: drainErr},
		&orderedUnit{name: "admin", mu: &mu, stopLog: &stopLog},
		&orderedUnit{name: "janitor", mu: &mu, stopLog: &stopLog},
	)

	err := cu.Stop(true)
	require.ErrorIs(t, err, drainErr)
	require.Equal(t, []string{"wire", "admin", "janitor"}, stopLog)

	stopLog = nil
	require.ErrorIs(t, cu.Stop(false), drainErr)
	require.ElementsMatch(t, []string{"wire", "admin", "janitor"}, stopLog)
}

func TestCompositeUnit_Empty(t *testing.T) {
	cu := NewCompositeUnit()
	fatalErr := make(chan error, 1)
	cu.Start(fatalErr)
	require.Len(t, fatalErr, 0)
	require.NoError(t, cu.Stop(true))
}
