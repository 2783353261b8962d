/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/acronis/go-prooflens/generator"
	"github.com/acronis/go-prooflens/log"
	"github.com/acronis/go-prooflens/resultcache"
)

// Request is a submission of a prompt for analysis.
type Request struct {
	Prompt string
	// Priority is in [0, MaxPriority], lower is more urgent. Nil means the least urgent.
	Priority *int
}

// Response is the analysis for a submitted prompt.
type Response struct {
	Result string
	// Cached is true when the result was served from the cache without waiting for the dispatcher.
	Cached bool
	// TaskID is empty for cached responses.
	TaskID string
}

// Opts represents options for Scheduler.
type Opts struct {
	// Cache stores analyses by prompt fingerprint. An unbounded cache is created if nil.
	Cache *resultcache.Cache[Fingerprint, string]
	// Metrics collects scheduler metrics. Metrics are disabled if nil.
	Metrics MetricsCollector
	// Now is the clock of the queue and the governor. time.Now if nil.
	Now func() time.Time
}

// Scheduler accepts prompts from many concurrent producers and serializes them to the generator
// through a bounded priority queue and a single dispatcher.
type Scheduler struct {
	cfg        *Config
	queue      *Queue
	governor   *Governor
	cache      *resultcache.Cache[Fingerprint, string]
	dispatcher *Dispatcher
	logger     log.FieldLogger
	metrics    MetricsCollector

	// mu guards inflight and Task.waiters. It is always taken before Queue.mu.
	mu       sync.Mutex
	inflight map[Fingerprint]*Task
}

// New creates a new Scheduler.
func New(cfg *Config, gen generator.Generator, logger log.FieldLogger) (*Scheduler, error) {
	return NewWithOpts(cfg, gen, logger, Opts{})
}

// NewWithOpts is a more configurable version of New.
func NewWithOpts(cfg *Config, gen generator.Generator, logger log.FieldLogger, opts Opts) (*Scheduler, error) {
	if gen == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Metrics == nil {
		opts.Metrics = disabledMetrics{}
	}
	if opts.Cache == nil {
		var err error
		if opts.Cache, err = resultcache.New[Fingerprint, string](0, nil); err != nil {
			return nil, fmt.Errorf("create result cache: %w", err)
		}
	}

	queue, err := NewQueueWithOpts(cfg.QueueCapacity, QueueOpts{Now: opts.Now})
	if err != nil {
		return nil, err
	}
	governor, err := NewGovernor(cfg.governorOpts(opts.Now))
	if err != nil {
		return nil, err
	}

	s := &Scheduler{
		cfg:      cfg,
		queue:    queue,
		governor: governor,
		cache:    opts.Cache,
		logger:   logger,
		metrics:  opts.Metrics,
		inflight: make(map[Fingerprint]*Task),
	}
	s.dispatcher = &Dispatcher{
		queue:      queue,
		governor:   governor,
		cache:      opts.Cache,
		generator:  gen,
		logger:     logger,
		metrics:    opts.Metrics,
		onResolved: s.onResolved,
		sleep:      sleepContext,
	}
	s.metrics.SetGovernorInterval(governor.Interval())
	return s, nil
}

// Submit admits the prompt and blocks until its analysis is ready, the wait timeout expires or ctx is done.
//
// A prompt whose analysis is cached is answered immediately. With coalescing enabled,
// a prompt equal to the one already waiting in the queue joins that task instead of creating a new one.
// A full queue makes Submit fail fast with ErrOverload.
func (s *Scheduler) Submit(ctx context.Context, req Request) (Response, error) {
	prompt := NormalizePrompt(req.Prompt)
	if prompt == "" {
		s.metrics.IncAdmissions(admissionResultInvalid)
		return Response{}, fmt.Errorf("%w: prompt is empty", ErrInvalidInput)
	}
	priority := s.cfg.MaxPriority
	if req.Priority != nil {
		priority = *req.Priority
		if priority < 0 || priority > s.cfg.MaxPriority {
			s.metrics.IncAdmissions(admissionResultInvalid)
			return Response{}, fmt.Errorf("%w: priority must be in [0, %d], got %d",
				ErrInvalidInput, s.cfg.MaxPriority, priority)
		}
	}

	fp := NewFingerprint(prompt)
	if result, ok := s.cache.Lookup(fp); ok {
		s.metrics.IncAdmissions(admissionResultCached)
		return Response{Result: result, Cached: true}, nil
	}

	task, admission, cachedResult, err := s.admit(prompt, priority, fp)
	s.metrics.IncAdmissions(admission)
	if err != nil {
		return Response{}, err
	}
	if task == nil {
		return Response{Result: cachedResult, Cached: true}, nil
	}
	s.metrics.SetQueueDepth(s.queue.Len())

	resp := Response{TaskID: task.ID}
	outcome, err := task.Await(ctx, s.cfg.WaitTimeout)
	if err != nil {
		s.metrics.IncWaitTimeouts()
		s.leave(task, true)
		if errors.Is(err, ErrTimeout) && task.QuotaSignals() > 0 {
			return resp, fmt.Errorf("%w: no answer in %s after %d quota rejections",
				ErrQuotaExceeded, s.cfg.WaitTimeout, task.QuotaSignals())
		}
		return resp, err
	}
	s.leave(task, false)

	if outcome.Status == StatusFailed {
		return resp, outcome.Err
	}
	resp.Result = outcome.Result
	return resp, nil
}

// admit returns the task to wait on, or a nil task with the cached result.
func (s *Scheduler) admit(prompt string, priority int, fp Fingerprint) (*Task, string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.Coalesce {
		if task, ok := s.inflight[fp]; ok && !task.Abandoned() {
			task.waiters++
			return task, admissionResultCoalesced, "", nil
		}
	}

	// The analysis may have been stored between Lookup and taking the lock.
	if result, ok := s.cache.Peek(fp); ok {
		return nil, admissionResultCached, result, nil
	}

	task := NewTask(prompt, priority)
	if err := s.queue.Admit(task); err != nil {
		if errors.Is(err, ErrStopped) {
			return nil, admissionResultStopped, "", err
		}
		return nil, admissionResultOverloaded, "", err
	}
	task.waiters = 1
	if s.cfg.Coalesce {
		s.inflight[fp] = task
	}
	return task, admissionResultAdmitted, "", nil
}

// leave unregisters a producer from the task. When the last producer gives up,
// the task is abandoned: removed from the queue if it is still there, or skipped by the dispatcher.
func (s *Scheduler) leave(task *Task, gaveUp bool) {
	s.mu.Lock()
	task.waiters--
	abandon := gaveUp && s.cfg.AbandonOnTimeout && task.waiters == 0
	if abandon {
		select {
		case <-task.Done():
			abandon = false
		default:
		}
	}
	if abandon {
		task.abandoned.Store(true)
		if s.inflight[task.Fingerprint] == task {
			delete(s.inflight, task.Fingerprint)
		}
	}
	s.mu.Unlock()

	if abandon && s.queue.Remove(task) {
		task.resolve(Outcome{Status: StatusFailed, Err: ErrTimeout})
		s.metrics.SetQueueDepth(s.queue.Len())
		s.logger.Info("abandoned task removed from queue",
			log.String("task_id", task.ID), log.String("fingerprint", task.Fingerprint.String()))
	}
}

func (s *Scheduler) onResolved(task *Task) {
	s.mu.Lock()
	if s.inflight[task.Fingerprint] == task {
		delete(s.inflight, task.Fingerprint)
	}
	s.mu.Unlock()
}

// Dispatcher returns the worker that must be run for submissions to make progress.
func (s *Scheduler) Dispatcher() *Dispatcher {
	return s.dispatcher
}

// Healthy reports whether new submissions can be admitted.
func (s *Scheduler) Healthy() bool {
	return !s.queue.Closed()
}

// Stats is a snapshot of the scheduler state.
type Stats struct {
	QueueDepth       int
	QueueCapacity    int
	InFlight         int
	DispatcherState  State
	GovernorInterval time.Duration
	LastDispatch     time.Time
	CacheEntries     int
}

// Stats returns a snapshot of the scheduler state.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	inflight := len(s.inflight)
	s.mu.Unlock()
	return Stats{
		QueueDepth:       s.queue.Len(),
		QueueCapacity:    s.queue.Capacity(),
		InFlight:         inflight,
		DispatcherState:  s.dispatcher.State(),
		GovernorInterval: s.governor.Interval(),
		LastDispatch:     s.governor.LastDispatch(),
		CacheEntries:     s.cache.Len(),
	}
}
