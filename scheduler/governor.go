/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package scheduler

import (
	"fmt"
	"sync"
	"time"
)

// GovernorOpts configures Governor.
type GovernorOpts struct {
	// BaseInterval is the initial minimum spacing between downstream calls.
	BaseInterval time.Duration
	// MinInterval is the floor the interval decays to after successes.
	MinInterval time.Duration
	// DecayFactor multiplies the interval after each success, in (0, 1].
	DecayFactor float64
	// QuotaInterval is the interval set after a quota error (when it is larger than the current one).
	QuotaInterval time.Duration
	// QuotaCooldown is a one-time extra delay before the next call after a quota error.
	QuotaCooldown time.Duration
	// Now is the clock. time.Now if nil.
	Now func() time.Time
}

// Governor estimates the safe spacing between downstream calls.
// It backs off hard on a quota signal and relaxes geometrically on success.
type Governor struct {
	opts GovernorOpts

	mu              sync.Mutex
	interval        time.Duration
	lastDispatch    time.Time
	pendingCooldown time.Duration
}

// NewGovernor creates a new Governor.
func NewGovernor(opts GovernorOpts) (*Governor, error) {
	if opts.DecayFactor <= 0 || opts.DecayFactor >= 1 {
		return nil, fmt.Errorf("decay factor must be in (0, 1), got %v", opts.DecayFactor)
	}
	if opts.BaseInterval < 0 || opts.MinInterval < 0 || opts.QuotaInterval < 0 || opts.QuotaCooldown < 0 {
		return nil, fmt.Errorf("governor intervals must not be negative")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	interval := opts.BaseInterval
	if interval < opts.MinInterval {
		interval = opts.MinInterval
	}
	return &Governor{opts: opts, interval: interval}, nil
}

// RequiredWait returns how long the dispatcher has to wait before the next call.
func (g *Governor) RequiredWait() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.requiredWaitLocked()
}

// NextWait is like RequiredWait but also consumes the pending quota cooldown.
func (g *Governor) NextWait() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	wait := g.requiredWaitLocked()
	g.pendingCooldown = 0
	return wait
}

// MarkDispatched records that a downstream call has just finished.
func (g *Governor) MarkDispatched() {
	g.mu.Lock()
	g.lastDispatch = g.opts.Now()
	g.mu.Unlock()
}

// OnSuccess decays the interval toward its floor.
func (g *Governor) OnSuccess() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.interval = time.Duration(float64(g.interval) * g.opts.DecayFactor)
	if g.interval < g.opts.MinInterval {
		g.interval = g.opts.MinInterval
	}
}

// OnQuotaExceeded raises the interval to the quota interval and schedules the one-time cooldown.
func (g *Governor) OnQuotaExceeded() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.interval < g.opts.QuotaInterval {
		g.interval = g.opts.QuotaInterval
	}
	g.pendingCooldown = g.opts.QuotaCooldown
}

// OnOtherFailure keeps the interval as is.
func (g *Governor) OnOtherFailure() {}

// Interval returns the current minimum spacing between calls.
func (g *Governor) Interval() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.interval
}

// LastDispatch returns the time the last downstream call finished (zero if there was none).
func (g *Governor) LastDispatch() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastDispatch
}

func (g *Governor) requiredWaitLocked() time.Duration {
	var wait time.Duration
	if !g.lastDispatch.IsZero() {
		if wait = g.interval - g.opts.Now().Sub(g.lastDispatch); wait < 0 {
			wait = 0
		}
	}
	return wait + g.pendingCooldown
}
