package authcore

import "sync"

// Auth event names recorded against the MetricsRecorder.
const (
	MetricLoginSuccess   = "login.success"
	MetricLoginFailure   = "login.failure"
	MetricRefreshSuccess = "refresh.success"
	MetricRefreshFailure = "refresh.failure"
	MetricLogout         = "logout"
	MetricLogoutAll      = "logout_all"
	MetricGuardRejected  = "guard.rejected"
)

// MetricsRecorder increments counters for auth events.
type MetricsRecorder interface {
	Increment(event string)
}

// CounterMetrics is an in-memory MetricsRecorder.
type CounterMetrics struct {
	mutex  sync.Mutex
	counts map[string]int64
}

// NewCounterMetrics constructs an empty recorder.
func NewCounterMetrics() *CounterMetrics {
	return &CounterMetrics{counts: make(map[string]int64)}
}

// Increment increases the counter for the event.
func (metrics *CounterMetrics) Increment(event string) {
	metrics.mutex.Lock()
	defer metrics.mutex.Unlock()
	metrics.counts[event]++
}

// Count returns the current value for the event.
func (metrics *CounterMetrics) Count(event string) int64 {
	metrics.mutex.Lock()
	defer metrics.mutex.Unlock()
	return metrics.counts[event]
}

// Snapshot copies all counters, for the operational status endpoint.
func (metrics *CounterMetrics) Snapshot() map[string]int64 {
	metrics.mutex.Lock()
	defer metrics.mutex.Unlock()
	clone := make(map[string]int64, len(metrics.counts))
	for event, value := range metrics.counts {
		clone[event] = value
	}
	return clone
}

type nopMetrics struct{}

func (nopMetrics) Increment(string) {}
