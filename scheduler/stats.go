/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package scheduler

import (
	"context"

	"github.com/acronis/go-prooflens/log"
	"github.com/acronis/go-prooflens/service"
)

// NewStatsReporter returns a worker that logs a snapshot of the scheduler state.
// It is meant to be run by service.PeriodicWorker.
func NewStatsReporter(s *Scheduler, logger log.FieldLogger) service.Worker {
	return service.WorkerFunc(func(ctx context.Context) error {
		stats := s.Stats()
		fields := []log.Field{
			log.Int("queue_depth", stats.QueueDepth),
			log.Int("queue_capacity", stats.QueueCapacity),
			log.Int("in_flight", stats.InFlight),
			log.String("dispatcher_state", stats.DispatcherState.String()),
			log.DurationMs("interval_ms", stats.GovernorInterval),
			log.Int("cache_entries", stats.CacheEntries),
		}
		if !stats.LastDispatch.IsZero() {
			fields = append(fields, log.Time("last_dispatch", stats.LastDispatch))
		}
		logger.Info("scheduler stats", fields...)
		return nil
	})
}
