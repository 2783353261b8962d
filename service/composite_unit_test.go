/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

type mockUnit struct {
	name    string
	running *atomic.Int32
	stopLog *stopLog
	stopErr error
	fatal   error

	stopCh   chan struct{}
	stopOnce sync.Once

	startCalled             atomic.Int32
	stopCalled              atomic.Int32
	stopGracefullyCalled    atomic.Int32
	registerMetricsCalled   atomic.Int32
	unregisterMetricsCalled atomic.Int32
}

type stopLog struct {
	mu    sync.Mutex
	names []string
}

func (l *stopLog) add(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.names = append(l.names, name)
}

func (l *stopLog) get() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.names...)
}

func newMockUnit(name string, running *atomic.Int32) *mockUnit {
	return &mockUnit{name: name, running: running, stopLog: &stopLog{}, stopCh: make(chan struct{})}
}

func (u *mockUnit) Start(fatalError chan<- error) {
	u.startCalled.Inc()
	if u.fatal != nil {
		fatalError <- u.fatal
		return
	}
	u.running.Inc()
	defer u.running.Dec()
	<-u.stopCh
}

func (u *mockUnit) Stop(gracefully bool) error {
	u.stopCalled.Inc()
	if gracefully {
		u.stopGracefullyCalled.Inc()
	}
	u.stopLog.add(u.name)
	u.stopOnce.Do(func() { close(u.stopCh) })
	return u.stopErr
}

func (u *mockUnit) MustRegisterMetrics() {
	u.registerMetricsCalled.Inc()
}

func (u *mockUnit) UnregisterMetrics() {
	u.unregisterMetricsCalled.Inc()
}

func makeMockUnits(n int, running *atomic.Int32, log *stopLog) ([]*mockUnit, []Unit) {
	mocks := make([]*mockUnit, n)
	units := make([]Unit, n)
	for i := range mocks {
		mocks[i] = newMockUnit(fmt.Sprintf("unit#%d", i), running)
		mocks[i].stopLog = log
		units[i] = mocks[i]
	}
	return mocks, units
}

func TestCompositeUnit_StartAndStop(t *testing.T) {
	t.Run("stop without errors", func(t *testing.T) {
		const unitsNum = 50
		var running atomic.Int32
		mocks, units := makeMockUnits(unitsNum, &running, &stopLog{})
		cu := NewCompositeUnit(units...)

		startDone := make(chan struct{})
		go func() {
			defer close(startDone)
			cu.Start(make(chan error, 1))
		}()
		require.Eventually(t, func() bool { return running.Load() == unitsNum }, 3*time.Second, 10*time.Millisecond)

		require.NoError(t, cu.Stop(true))
		require.Eventually(t, func() bool { return running.Load() == 0 }, 3*time.Second, 10*time.Millisecond)
		<-startDone
		for _, m := range mocks {
			require.EqualValues(t, 1, m.stopGracefullyCalled.Load())
		}
	})

	t.Run("stop errors are collected", func(t *testing.T) {
		var running atomic.Int32
		mocks, units := makeMockUnits(5, &running, &stopLog{})
		mocks[1].stopErr = errors.New("unit#1 failed")
		mocks[3].stopErr = errors.New("unit#3 failed")
		cu := NewCompositeUnit(units...)

		go cu.Start(make(chan error, 1))
		require.Eventually(t, func() bool { return running.Load() == 5 }, 3*time.Second, 10*time.Millisecond)

		err := cu.Stop(true)
		var cuErr *CompositeUnitError
		require.ErrorAs(t, err, &cuErr)
		require.Len(t, cuErr.UnitErrors, 2)
		require.ErrorIs(t, err, mocks[3].stopErr)
	})

	t.Run("graceful stop in order", func(t *testing.T) {
		var running atomic.Int32
		log := &stopLog{}
		_, units := makeMockUnits(4, &running, log)
		cu := NewOrderedCompositeUnit(units...)

		go cu.Start(make(chan error, 1))
		require.Eventually(t, func() bool { return running.Load() == 4 }, 3*time.Second, 10*time.Millisecond)

		require.NoError(t, cu.Stop(true))
		require.Equal(t, []string{"unit#0", "unit#1", "unit#2", "unit#3"}, log.get())
	})

	t.Run("fatal error of one unit stops the others", func(t *testing.T) {
		var running atomic.Int32
		mocks, units := makeMockUnits(3, &running, &stopLog{})
		mocks[2].fatal = errors.New("listen failed")
		cu := NewCompositeUnit(units...)

		fatalErr := make(chan error, 1)
		cu.Start(fatalErr)

		err := <-fatalErr
		require.ErrorIs(t, err, mocks[2].fatal)
		require.Eventually(t, func() bool { return running.Load() == 0 }, 3*time.Second, 10*time.Millisecond)
		for _, m := range mocks[:2] {
			require.EqualValues(t, 1, m.stopCalled.Load())
			require.Zero(t, m.stopGracefullyCalled.Load())
		}
	})

	t.Run("metrics", func(t *testing.T) {
		var running atomic.Int32
		mocks, units := makeMockUnits(2, &running, &stopLog{})
		cu := NewCompositeUnit(units...)
		cu.MustRegisterMetrics()
		cu.UnregisterMetrics()
		for _, m := range mocks {
			require.EqualValues(t, 1, m.registerMetricsCalled.Load())
			require.EqualValues(t, 1, m.unregisterMetricsCalled.Load())
		}
	})
}
