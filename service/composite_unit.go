/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"strings"
	"sync"

	"go.uber.org/atomic"
)

// CompositeUnit starts and stops a group of units as one.
type CompositeUnit struct {
	Units []Unit

	// StopInOrder makes graceful Stop halt units one by one in the order they are listed.
	// A unit that depends on another one (e.g. an HTTP server waiting for the dispatcher) should be listed first.
	StopInOrder bool
}

// NewCompositeUnit creates a new composite unit. Units are stopped concurrently.
func NewCompositeUnit(units ...Unit) *CompositeUnit {
	return &CompositeUnit{Units: units}
}

// NewOrderedCompositeUnit creates a new composite unit that stops its units gracefully in the listed order.
func NewOrderedCompositeUnit(units ...Unit) *CompositeUnit {
	return &CompositeUnit{Units: units, StopInOrder: true}
}

// Start launches all units concurrently and blocks until all their Start calls return.
// If any unit reports a fatal error, the rest are stopped non-gracefully
// and a CompositeUnitError with all collected errors is sent to fatalError.
func (cu *CompositeUnit) Start(fatalError chan<- error) {
	unitErrs := make([]chan error, len(cu.Units))
	for i := range unitErrs {
		unitErrs[i] = make(chan error, 1)
	}

	succeeded := make(chan bool, len(cu.Units))
	pending := atomic.NewInt32(int32(len(cu.Units))) //nolint:gosec // unit count is small
	for i := range cu.Units {
		go func(i int) {
			cu.Units[i].Start(unitErrs[i])
			if len(unitErrs[i]) != 0 {
				succeeded <- false
				return
			}
			if pending.Dec() == 0 {
				succeeded <- true
			}
		}(i)
	}
	if len(cu.Units) == 0 || <-succeeded {
		return
	}

	stopErr := cu.Stop(false)

	var errs []error
	for _, unitErr := range unitErrs {
		select {
		case err := <-unitErr:
			errs = append(errs, err)
		default:
		}
	}
	if stopErr != nil {
		errs = append(errs, stopErr.(*CompositeUnitError).UnitErrors...)
	}
	fatalError <- &CompositeUnitError{UnitErrors: errs}
}

// Stop stops all units. Errors are collected into a single CompositeUnitError.
func (cu *CompositeUnit) Stop(gracefully bool) error {
	var errs []error
	if gracefully && cu.StopInOrder {
		for _, u := range cu.Units {
			if err := u.Stop(true); err != nil {
				errs = append(errs, err)
			}
		}
	} else {
		results := make(chan error, len(cu.Units))
		var wg sync.WaitGroup
		wg.Add(len(cu.Units))
		for _, u := range cu.Units {
			go func(u Unit) {
				defer wg.Done()
				results <- u.Stop(gracefully)
			}(u)
		}
		wg.Wait()
		close(results)
		for err := range results {
			if err != nil {
				errs = append(errs, err)
			}
		}
	}
	if len(errs) != 0 {
		return &CompositeUnitError{UnitErrors: errs}
	}
	return nil
}

// MustRegisterMetrics registers metrics of all units that own them.
func (cu *CompositeUnit) MustRegisterMetrics() {
	for _, u := range cu.Units {
		if mr, ok := u.(MetricsRegisterer); ok {
			mr.MustRegisterMetrics()
		}
	}
}

// UnregisterMetrics unregisters metrics of all units that own them.
func (cu *CompositeUnit) UnregisterMetrics() {
	for _, u := range cu.Units {
		if mr, ok := u.(MetricsRegisterer); ok {
			mr.UnregisterMetrics()
		}
	}
}

// CompositeUnitError is returned by CompositeUnit when one or more units fail.
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

// Unwrap makes errors.Is and errors.As look into every unit error.
func (cue *CompositeUnitError) Unwrap() []error {
	return cue.UnitErrors
}
