/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"strings"
	"sync"

	"go.uber.org/atomic"
)

// CompositeUnit runs the wire server, the admin server and the janitor as one unit.
// A graceful stop goes through the units in order, so /healthz and /metrics stay
// available while the wire server drains. A forced stop hits all units at once.
type CompositeUnit struct {
	Units []Unit
}

// NewCompositeUnit creates a new composite unit. Units are stopped gracefully in the given order.
func NewCompositeUnit(units ...Unit) *CompositeUnit {
	return &CompositeUnit{units}
}

// Start starts all units concurrently and returns when every Start call has returned.
// The first failure stops all units forcibly, and the failures are reported as one CompositeUnitError.
func (cu *CompositeUnit) Start(fatalErr chan<- error) {
	if len(cu.Units) == 0 {
		return
	}
	unitErrs := make([]chan error, len(cu.Units))
	failed := make(chan struct{}, len(cu.Units))
	allStarted := make(chan struct{})
	pending := atomic.NewInt32(int32(len(cu.Units))) //nolint:gosec // a handful of units
	for i, u := range cu.Units {
		unitErrs[i] = make(chan error, 1)
		go func(u Unit, errCh chan error) {
			u.Start(errCh)
			if len(errCh) != 0 {
				failed <- struct{}{}
				return
			}
			if pending.Dec() == 0 {
				close(allStarted)
			}
		}(u, unitErrs[i])
	}
	select {
	case <-allStarted:
		return
	case <-failed:
	}

	var errs []error
	stopErr := cu.Stop(false)
	for _, ch := range unitErrs {
		select {
		case err := <-ch:
			errs = append(errs, err)
		default:
		}
	}
	if stopErr != nil {
		errs = append(errs, stopErr.(*CompositeUnitError).UnitErrors...)
	}
	fatalErr <- &CompositeUnitError{errs}
}

// Stop stops the units and returns their errors as one CompositeUnitError.
func (cu *CompositeUnit) Stop(gracefully bool) error {
	var errs []error
	if gracefully {
		for _, u := range cu.Units {
			if err := u.Stop(true); err != nil {
				errs = append(errs, err)
			}
		}
	} else {
		errs = stopConcurrently(cu.Units)
	}
	if len(errs) > 0 {
		return &CompositeUnitError{errs}
	}
	return nil
}

func stopConcurrently(units []Unit) []error {
	var (
		mu   sync.Mutex
		errs []error
		wg   sync.WaitGroup
	)
	wg.Add(len(units))
	for _, u := range units {
		go func(u Unit) {
			defer wg.Done()
			if err := u.Stop(false); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(u)
	}
	wg.Wait()
	return errs
}

// MustRegisterMetrics registers metrics of all units that have them.
func (cu *CompositeUnit) MustRegisterMetrics() {
	for _, u := range cu.Units {
		if mr, ok := u.(MetricsRegisterer); ok {
			mr.MustRegisterMetrics()
		}
	}
}

// UnregisterMetrics unregisters metrics of all units that have them.
func (cu *CompositeUnit) UnregisterMetrics() {
	for _, u := range cu.Units {
		if mr, ok := u.(MetricsRegisterer); ok {
			mr.UnregisterMetrics()
		}
	}
}

// CompositeUnitError collects errors of several units. errors.Is and errors.As look into each of them.
type CompositeUnitError struct {
	UnitErrors []error
}

func (cue *CompositeUnitError) Error() string {
	msgs := make([]string, 0, len(cue.UnitErrors))
	for _, err := range cue.UnitErrors {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Unwrap returns the unit errors.
func (cue *CompositeUnitError) Unwrap() []error {
	return cue.UnitErrors
}
