/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/xid"
	"go.uber.org/atomic"
)

// Status is a stage of the task's outcome.
type Status int

// Task outcome statuses.
const (
	StatusPending Status = iota
	StatusSucceeded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	default:
		return "pending"
	}
}

// Outcome is the result of a task. Err is set only for StatusFailed.
type Outcome struct {
	Status Status
	Result string
	Err    error
}

// Task is a unit of work for the dispatcher and the handle its producers wait on.
// Only the dispatcher writes the outcome; it is published by closing the done channel.
type Task struct {
	ID          string
	Fingerprint Fingerprint
	Prompt      string
	Priority    int

	// Set by Queue on every (re-)admission, guarded by Queue.mu.
	enqueuedAt time.Time
	seq        uint64
	index      int

	outcome     Outcome
	done        chan struct{}
	resolveOnce sync.Once

	// Guarded by Scheduler.mu.
	waiters int

	abandoned    atomic.Bool
	quotaSignals atomic.Int32
}

// NewTask creates a pending task for the prompt.
func NewTask(prompt string, priority int) *Task {
	return &Task{
		ID:          xid.New().String(),
		Fingerprint: NewFingerprint(prompt),
		Prompt:      prompt,
		Priority:    priority,
		index:       -1,
		done:        make(chan struct{}),
	}
}

// Done returns a channel that is closed when the task reaches a terminal outcome.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Outcome returns the terminal outcome, or a pending one if the task is not resolved yet.
func (t *Task) Outcome() Outcome {
	select {
	case <-t.done:
		return t.outcome
	default:
		return Outcome{Status: StatusPending}
	}
}

// Await blocks until the task is resolved, the timeout expires (ErrTimeout) or ctx is done.
// Non-positive timeout means waiting without a bound.
func (t *Task) Await(ctx context.Context, timeout time.Duration) (Outcome, error) {
	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}
	select {
	case <-t.done:
		return t.outcome, nil
	case <-timeoutCh:
		return Outcome{Status: StatusPending}, ErrTimeout
	case <-ctx.Done():
		return Outcome{Status: StatusPending}, ctx.Err()
	}
}

// Abandoned reports whether all producers gave up waiting for the task.
func (t *Task) Abandoned() bool {
	return t.abandoned.Load()
}

// QuotaSignals returns how many times the downstream rejected this task because of quota.
func (t *Task) QuotaSignals() int {
	return int(t.quotaSignals.Load())
}

// EnqueuedAt returns the time of the last (re-)admission.
// Safe to call only from the dispatcher after Queue.Take.
func (t *Task) EnqueuedAt() time.Time {
	return t.enqueuedAt
}

// resolve stores the terminal outcome and raises the completion signal.
// It returns false if the task was already resolved.
func (t *Task) resolve(outcome Outcome) bool {
	resolved := false
	t.resolveOnce.Do(func() {
		t.outcome = outcome
		close(t.done)
		resolved = true
	})
	return resolved
}
