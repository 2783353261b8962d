/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package scheduler

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"go.uber.org/atomic"

	"github.com/acronis/go-prooflens/generator"
	"github.com/acronis/go-prooflens/log"
	"github.com/acronis/go-prooflens/resultcache"
	"github.com/acronis/go-prooflens/service"
)

// State is a state of the dispatcher.
type State int32

// Dispatcher states.
const (
	StateIdle State = iota
	StateWaiting
	StateCalling
	StateResolving
)

func (s State) String() string {
	switch s {
	case StateWaiting:
		return "waiting"
	case StateCalling:
		return "calling"
	case StateResolving:
		return "resolving"
	default:
		return "idle"
	}
}

// Dispatch outcomes used in logs and metrics.
const (
	dispatchOutcomeSucceeded     = "succeeded"
	dispatchOutcomeFailed        = "failed"
	dispatchOutcomeQuotaExceeded = "quota_exceeded"
	dispatchOutcomeInvalid       = "invalid"
	dispatchOutcomeAbandoned     = "abandoned"
	dispatchOutcomeCached        = "cached"
	dispatchOutcomePanic         = "panic"
)

// Dispatcher is the single worker that forwards tasks to the generator.
// At most one generator call is outstanding at any moment.
type Dispatcher struct {
	queue      *Queue
	governor   *Governor
	cache      *resultcache.Cache[Fingerprint, string]
	generator  generator.Generator
	logger     log.FieldLogger
	metrics    MetricsCollector
	onResolved func(t *Task)
	sleep      func(ctx context.Context, d time.Duration) error

	state   atomic.Int32
	running atomic.Bool
}

var _ service.Worker = (*Dispatcher)(nil)

// Run takes tasks from the queue and processes them until ctx is done.
// On exit the queue is closed and all tasks still waiting in it fail with ErrStopped.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.running.Store(true)
	defer d.running.Store(false)

	d.logger.Info("dispatcher started")
	for ctx.Err() == nil {
		d.setState(StateIdle)
		task, err := d.queue.Take(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			return fmt.Errorf("take task: %w", err)
		}
		d.metrics.SetQueueDepth(d.queue.Len())
		d.process(ctx, task)
		d.metrics.SetQueueDepth(d.queue.Len())
	}

	drained := d.queue.Close()
	for _, t := range drained {
		d.finish(t, Outcome{Status: StatusFailed, Err: ErrStopped})
	}
	d.metrics.SetQueueDepth(0)
	d.logger.Info("dispatcher stopped", log.Int("failed_tasks", len(drained)))
	return nil
}

// State returns the current state.
func (d *Dispatcher) State() State {
	return State(d.state.Load())
}

// Running reports whether Run is in progress.
func (d *Dispatcher) Running() bool {
	return d.running.Load()
}

func (d *Dispatcher) process(ctx context.Context, task *Task) {
	logger := d.logger.With(
		log.String("task_id", task.ID),
		log.String("fingerprint", task.Fingerprint.String()),
		log.Int("priority", task.Priority),
	)

	defer func() {
		if p := recover(); p != nil {
			const logStackSize = 8192
			stack := make([]byte, logStackSize)
			stack = stack[:runtime.Stack(stack, false)]
			logger.Error(fmt.Sprintf("panic while dispatching task: %+v", p), log.String("stack", string(stack)))
			d.metrics.ObserveDispatch(dispatchOutcomePanic, 0)
			d.finish(task, Outcome{Status: StatusFailed, Err: &DownstreamError{Err: fmt.Errorf("panic: %v", p)}})
		}
	}()

	if NormalizePrompt(task.Prompt) == "" {
		d.metrics.ObserveDispatch(dispatchOutcomeInvalid, 0)
		logger.Warn("task rejected", log.String("outcome", dispatchOutcomeInvalid))
		d.finish(task, Outcome{Status: StatusFailed, Err: fmt.Errorf("%w: prompt is empty", ErrInvalidInput)})
		return
	}

	// A task admitted without coalescing may find its answer already computed.
	if result, ok := d.cache.Peek(task.Fingerprint); ok {
		d.metrics.ObserveDispatch(dispatchOutcomeCached, 0)
		logger.Debug("task resolved from cache", log.String("outcome", dispatchOutcomeCached))
		d.finish(task, Outcome{Status: StatusSucceeded, Result: result})
		return
	}

	d.setState(StateWaiting)
	wait := d.governor.NextWait()
	if err := d.sleep(ctx, wait); err != nil {
		d.requeue(task, logger)
		return
	}
	if task.Abandoned() {
		d.metrics.ObserveDispatch(dispatchOutcomeAbandoned, 0)
		logger.Info("abandoned task skipped", log.String("outcome", dispatchOutcomeAbandoned))
		d.finish(task, Outcome{Status: StatusFailed, Err: ErrTimeout})
		return
	}

	d.setState(StateCalling)
	startedAt := time.Now()
	result, err := d.generator.Generate(NewContextWithTaskID(ctx, task.ID), task.Prompt)
	elapsed := time.Since(startedAt)
	d.governor.MarkDispatched()
	d.setState(StateResolving)
	defer func() { d.metrics.SetGovernorInterval(d.governor.Interval()) }()

	logger = logger.With(log.DurationMs("wait_ms", wait), log.DurationMs("duration_ms", elapsed))
	switch {
	case err == nil:
		d.cache.Store(task.Fingerprint, result)
		d.governor.OnSuccess()
		d.metrics.ObserveDispatch(dispatchOutcomeSucceeded, elapsed)
		logger.Info("task dispatched", log.String("outcome", dispatchOutcomeSucceeded))
		d.finish(task, Outcome{Status: StatusSucceeded, Result: result})

	case generator.IsQuotaExceeded(err):
		d.governor.OnQuotaExceeded()
		task.quotaSignals.Inc()
		if task.Abandoned() {
			// Nobody waits for it anymore, so it must not hold a queue slot until the next attempt.
			d.metrics.ObserveDispatch(dispatchOutcomeAbandoned, elapsed)
			logger.Info("abandoned task dropped after downstream quota was exceeded",
				log.String("outcome", dispatchOutcomeAbandoned), log.Error(err))
			d.finish(task, Outcome{Status: StatusFailed, Err: ErrTimeout})
			return
		}
		d.metrics.ObserveDispatch(dispatchOutcomeQuotaExceeded, elapsed)
		logger.Warn("task dispatched, downstream quota exceeded, task is requeued",
			log.String("outcome", dispatchOutcomeQuotaExceeded),
			log.DurationMs("interval_ms", d.governor.Interval()),
			log.Error(err))
		d.requeue(task, logger)

	case ctx.Err() != nil:
		d.requeue(task, logger)

	default:
		d.governor.OnOtherFailure()
		d.metrics.ObserveDispatch(dispatchOutcomeFailed, elapsed)
		logger.Error("task dispatched", log.String("outcome", dispatchOutcomeFailed), log.Error(err))
		d.finish(task, Outcome{Status: StatusFailed, Err: &DownstreamError{Err: err}})
	}
}

func (d *Dispatcher) requeue(task *Task, logger log.FieldLogger) {
	if err := d.queue.Requeue(task); err != nil {
		logger.Error("failed to requeue task", log.Error(err))
		d.finish(task, Outcome{Status: StatusFailed, Err: ErrStopped})
	}
}

// finish releases the queue slot, unregisters the in-flight task and only then raises the signal.
func (d *Dispatcher) finish(task *Task, outcome Outcome) {
	d.queue.Release(task)
	if d.onResolved != nil {
		d.onResolved(task)
	}
	task.resolve(outcome)
}

func (d *Dispatcher) setState(s State) {
	d.state.Store(int32(s))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
