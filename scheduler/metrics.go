/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package scheduler

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Admission results used as a label value.
const (
	admissionResultAdmitted   = "admitted"
	admissionResultCoalesced  = "coalesced"
	admissionResultCached     = "cached"
	admissionResultOverloaded = "overloaded"
	admissionResultInvalid    = "invalid"
	admissionResultStopped    = "stopped"
)

// MetricsCollector represents a collector of scheduler metrics.
type MetricsCollector interface {
	// SetQueueDepth sets the number of tasks in the queue (the one in progress included).
	SetQueueDepth(depth int)
	// IncAdmissions counts a submission by its admission result.
	IncAdmissions(result string)
	// ObserveDispatch records a processed task by its outcome and the downstream call duration.
	ObserveDispatch(outcome string, duration time.Duration)
	// SetGovernorInterval sets the current spacing between downstream calls.
	SetGovernorInterval(interval time.Duration)
	// IncWaitTimeouts counts producers that stopped waiting before the task was resolved.
	IncWaitTimeouts()
}

// PrometheusMetrics represents a Prometheus metrics for the scheduler.
type PrometheusMetrics struct {
	QueueDepth       prometheus.Gauge
	Admissions       *prometheus.CounterVec
	Dispatches       *prometheus.CounterVec
	DispatchDuration *prometheus.HistogramVec
	GovernorInterval prometheus.Gauge
	WaitTimeouts     prometheus.Counter
}

// NewPrometheusMetrics creates a new instance of PrometheusMetrics.
func NewPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWithNamespace("")
}

// NewPrometheusMetricsWithNamespace creates a new instance of PrometheusMetrics with the given namespace.
func NewPrometheusMetricsWithNamespace(namespace string) *PrometheusMetrics {
	return &PrometheusMetrics{
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scheduler_queue_depth",
			Help:      "Number of tasks in the admission queue including the one being dispatched.",
		}),
		Admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_admissions_total",
			Help:      "Number of submissions by admission result.",
		}, []string{"result"}),
		Dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_dispatches_total",
			Help:      "Number of processed tasks by outcome.",
		}, []string{"outcome"}),
		DispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scheduler_dispatch_duration_seconds",
			Help:      "Duration of downstream calls.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		}, []string{"outcome"}),
		GovernorInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scheduler_governor_interval_seconds",
			Help:      "Current minimum spacing between downstream calls.",
		}),
		WaitTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_wait_timeouts_total",
			Help:      "Number of producers that gave up waiting for the result.",
		}),
	}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegister() {
	pm.MustRegisterIn(prometheus.DefaultRegisterer)
}

// MustRegisterIn registers metrics in the given registerer.
func (pm *PrometheusMetrics) MustRegisterIn(reg prometheus.Registerer) {
	reg.MustRegister(
		pm.QueueDepth, pm.Admissions, pm.Dispatches, pm.DispatchDuration, pm.GovernorInterval, pm.WaitTimeouts,
	)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (pm *PrometheusMetrics) Unregister() {
	prometheus.Unregister(pm.QueueDepth)
	prometheus.Unregister(pm.Admissions)
	prometheus.Unregister(pm.Dispatches)
	prometheus.Unregister(pm.DispatchDuration)
	prometheus.Unregister(pm.GovernorInterval)
	prometheus.Unregister(pm.WaitTimeouts)
}

// SetQueueDepth sets the number of tasks in the queue.
func (pm *PrometheusMetrics) SetQueueDepth(depth int) {
	pm.QueueDepth.Set(float64(depth))
}

// IncAdmissions counts a submission by its admission result.
func (pm *PrometheusMetrics) IncAdmissions(result string) {
	pm.Admissions.WithLabelValues(result).Inc()
}

// ObserveDispatch records a processed task. Zero duration means no downstream call was made.
func (pm *PrometheusMetrics) ObserveDispatch(outcome string, duration time.Duration) {
	pm.Dispatches.WithLabelValues(outcome).Inc()
	if duration > 0 {
		pm.DispatchDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	}
}

// SetGovernorInterval sets the current spacing between downstream calls.
func (pm *PrometheusMetrics) SetGovernorInterval(interval time.Duration) {
	pm.GovernorInterval.Set(interval.Seconds())
}

// IncWaitTimeouts counts producers that gave up waiting.
func (pm *PrometheusMetrics) IncWaitTimeouts() {
	pm.WaitTimeouts.Inc()
}

type disabledMetrics struct{}

func (disabledMetrics) SetQueueDepth(int)                     {}
func (disabledMetrics) IncAdmissions(string)                  {}
func (disabledMetrics) ObserveDispatch(string, time.Duration) {}
func (disabledMetrics) SetGovernorInterval(time.Duration)     {}
func (disabledMetrics) IncWaitTimeouts()                      {}
