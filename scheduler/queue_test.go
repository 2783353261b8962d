/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func takeAndRelease(t *testing.T, q *Queue) *Task {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	task, err := q.Take(ctx)
	require.NoError(t, err)
	q.Release(task)
	return task
}

func TestNewQueue(t *testing.T) {
	_, err := NewQueue(0)
	require.Error(t, err)

	q, err := NewQueue(15)
	require.NoError(t, err)
	require.Equal(t, 15, q.Capacity())
	require.Equal(t, 0, q.Len())
}

func TestQueue_Order(t *testing.T) {
	clock := newFakeClock()
	q, err := NewQueueWithOpts(10, QueueOpts{Now: clock.Now})
	require.NoError(t, err)

	first, second, third := NewTask("first", 5), NewTask("second", 1), NewTask("third", 5)
	for _, task := range []*Task{first, second, third} {
		require.NoError(t, q.Admit(task))
		clock.Advance(time.Millisecond)
	}

	require.Same(t, second, takeAndRelease(t, q))
	require.Same(t, first, takeAndRelease(t, q))
	require.Same(t, third, takeAndRelease(t, q))
}

func TestQueue_OrderWithEqualTimestamps(t *testing.T) {
	clock := newFakeClock()
	q, err := NewQueueWithOpts(10, QueueOpts{Now: clock.Now})
	require.NoError(t, err)

	tasks := make([]*Task, 5)
	for i := range tasks {
		tasks[i] = NewTask(fmt.Sprintf("prompt %d", i), 3)
		require.NoError(t, q.Admit(tasks[i]))
	}
	for i := range tasks {
		require.Same(t, tasks[i], takeAndRelease(t, q))
	}
}

func TestQueue_Capacity(t *testing.T) {
	q, err := NewQueue(15)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		err = q.Admit(NewTask(fmt.Sprintf("prompt %d", i), 9))
		if i < 15 {
			require.NoError(t, err, "submission %d", i+1)
		} else {
			require.ErrorIs(t, err, ErrOverload, "submission %d", i+1)
		}
	}
	require.Equal(t, 15, q.Len())

	// The task in progress still occupies its slot.
	task, err := q.Take(context.Background())
	require.NoError(t, err)
	require.Equal(t, 15, q.Len())
	require.ErrorIs(t, q.Admit(NewTask("extra", 0)), ErrOverload)

	q.Release(task)
	require.Equal(t, 14, q.Len())
	require.NoError(t, q.Admit(NewTask("extra", 0)))
}

func TestQueue_RequeueGetsFreshTimestamp(t *testing.T) {
	clock := newFakeClock()
	q, err := NewQueueWithOpts(10, QueueOpts{Now: clock.Now})
	require.NoError(t, err)

	a, b := NewTask("a", 1), NewTask("b", 1)
	require.NoError(t, q.Admit(a))
	clock.Advance(time.Second)
	require.NoError(t, q.Admit(b))

	task, err := q.Take(context.Background())
	require.NoError(t, err)
	require.Same(t, a, task)
	enqueuedAt := a.EnqueuedAt()

	clock.Advance(time.Second)
	require.NoError(t, q.Requeue(a))
	require.Equal(t, 2, q.Len())

	require.Same(t, b, takeAndRelease(t, q))
	task = takeAndRelease(t, q)
	require.Same(t, a, task)
	require.True(t, task.EnqueuedAt().After(enqueuedAt))

	require.ErrorIs(t, q.Requeue(a), errTaskNotInProgress)
}

func TestQueue_RequeueDoesNotLetMoreUrgentTaskWait(t *testing.T) {
	q, err := NewQueue(10)
	require.NoError(t, err)

	low := NewTask("low", 7)
	require.NoError(t, q.Admit(low))
	task, err := q.Take(context.Background())
	require.NoError(t, err)

	urgent := NewTask("urgent", 0)
	require.NoError(t, q.Admit(urgent))
	require.NoError(t, q.Requeue(task))

	require.Same(t, urgent, takeAndRelease(t, q))
	require.Same(t, low, takeAndRelease(t, q))
}

func TestQueue_TakeBlocksUntilAdmit(t *testing.T) {
	q, err := NewQueue(10)
	require.NoError(t, err)

	taken := make(chan *Task)
	go func() {
		task, takeErr := q.Take(context.Background())
		if takeErr == nil {
			taken <- task
		}
	}()

	select {
	case <-taken:
		t.Fatal("Take returned from an empty queue")
	case <-time.After(50 * time.Millisecond):
	}

	task := NewTask("prompt", 0)
	require.NoError(t, q.Admit(task))
	select {
	case got := <-taken:
		require.Same(t, task, got)
	case <-time.After(time.Second):
		t.Fatal("Take was not woken up by Admit")
	}
}

func TestQueue_TakeRespectsContext(t *testing.T) {
	q, err := NewQueue(10)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = q.Take(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueue_TakeWhileInProgress(t *testing.T) {
	q, err := NewQueue(10)
	require.NoError(t, err)
	require.NoError(t, q.Admit(NewTask("a", 0)))
	require.NoError(t, q.Admit(NewTask("b", 0)))

	_, err = q.Take(context.Background())
	require.NoError(t, err)
	_, err = q.Take(context.Background())
	require.Error(t, err)
}

func TestQueue_Remove(t *testing.T) {
	q, err := NewQueue(10)
	require.NoError(t, err)

	a, b, c := NewTask("a", 0), NewTask("b", 0), NewTask("c", 0)
	for _, task := range []*Task{a, b, c} {
		require.NoError(t, q.Admit(task))
	}
	require.True(t, q.Remove(b))
	require.False(t, q.Remove(b))
	require.Equal(t, 2, q.Len())

	task, err := q.Take(context.Background())
	require.NoError(t, err)
	require.Same(t, a, task)
	require.False(t, q.Remove(a), "task in progress cannot be removed")
	q.Release(a)

	require.Same(t, c, takeAndRelease(t, q))
}

func TestQueue_Close(t *testing.T) {
	q, err := NewQueue(10)
	require.NoError(t, err)

	a, b := NewTask("a", 4), NewTask("b", 2)
	require.NoError(t, q.Admit(a))
	require.NoError(t, q.Admit(b))

	drained := q.Close()
	require.Equal(t, []*Task{b, a}, drained)
	require.True(t, q.Closed())
	require.Equal(t, 0, q.Len())
	require.ErrorIs(t, q.Admit(NewTask("c", 0)), ErrStopped)
}
