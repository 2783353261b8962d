/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package scheduler

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var errTaskNotInProgress = errors.New("task is not the one in progress")

// Queue is a bounded priority queue of tasks ordered by (priority, enqueue time, admission sequence).
// Lower priority values are served first, equal priorities in admission order.
//
// The task handed out by Take stays counted toward the capacity until it is released or requeued,
// so a requeue never makes the queue exceed its bound.
type Queue struct {
	capacity int
	now      func() time.Time

	mu         sync.Mutex
	items      taskHeap
	inProgress *Task
	seq        uint64
	closed     bool

	notify chan struct{}
}

// QueueOpts represents options for Queue.
type QueueOpts struct {
	// Now is used for enqueue timestamps. time.Now if nil.
	Now func() time.Time
}

// NewQueue creates a new Queue with the given capacity.
func NewQueue(capacity int) (*Queue, error) {
	return NewQueueWithOpts(capacity, QueueOpts{})
}

// NewQueueWithOpts is a more configurable version of NewQueue.
func NewQueueWithOpts(capacity int, opts QueueOpts) (*Queue, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("queue capacity must be positive, got %d", capacity)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Queue{
		capacity: capacity,
		now:      opts.Now,
		notify:   make(chan struct{}, 1),
	}, nil
}

// Admit adds the task to the queue. It fails fast with ErrOverload when the queue is full
// and with ErrStopped after Close.
func (q *Queue) Admit(t *Task) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrStopped
	}
	if q.lenLocked() >= q.capacity {
		q.mu.Unlock()
		return ErrOverload
	}
	q.pushLocked(t)
	q.mu.Unlock()

	q.signal()
	return nil
}

// Take removes the most urgent task and marks it as in progress.
// It blocks until a task is available or ctx is done. Only one task may be in progress at a time.
func (q *Queue) Take(ctx context.Context) (*Task, error) {
	for {
		q.mu.Lock()
		if q.inProgress != nil {
			q.mu.Unlock()
			return nil, fmt.Errorf("task %s is still in progress", q.inProgress.ID)
		}
		if len(q.items) > 0 {
			t := heap.Pop(&q.items).(*Task)
			q.inProgress = t
			q.mu.Unlock()
			return t, nil
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Requeue puts the in-progress task back with a fresh enqueue timestamp,
// so it is served after tasks of the same priority admitted before.
func (q *Queue) Requeue(t *Task) error {
	q.mu.Lock()
	if q.inProgress != t {
		q.mu.Unlock()
		return errTaskNotInProgress
	}
	q.inProgress = nil
	q.pushLocked(t)
	q.mu.Unlock()

	q.signal()
	return nil
}

// Release frees the slot of the in-progress task after it reached a terminal outcome.
func (q *Queue) Release(t *Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.inProgress == t {
		q.inProgress = nil
	}
}

// Remove deletes a task that is still waiting in the queue.
func (q *Queue) Remove(t *Task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if t.index < 0 || t.index >= len(q.items) || q.items[t.index] != t {
		return false
	}
	heap.Remove(&q.items, t.index)
	return true
}

// Close makes further admissions fail with ErrStopped and returns the tasks that were waiting,
// most urgent first. The in-progress task, if any, is not returned.
func (q *Queue) Close() []*Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	drained := make([]*Task, 0, len(q.items))
	for len(q.items) > 0 {
		drained = append(drained, heap.Pop(&q.items).(*Task))
	}
	return drained
}

// Len returns the number of waiting tasks plus the one in progress.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lenLocked()
}

// Closed reports whether Close was called.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Capacity returns the queue bound.
func (q *Queue) Capacity() int {
	return q.capacity
}

func (q *Queue) lenLocked() int {
	if q.inProgress != nil {
		return len(q.items) + 1
	}
	return len(q.items)
}

func (q *Queue) pushLocked(t *Task) {
	q.seq++
	t.seq = q.seq
	t.enqueuedAt = q.now()
	heap.Push(&q.items, t)
}

func (q *Queue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// taskHeap implements heap.Interface.
type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	if !h[i].enqueuedAt.Equal(h[j].enqueuedAt) {
		return h[i].enqueuedAt.Before(h[j].enqueuedAt)
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x interface{}) {
	t := x.(*Task)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}
