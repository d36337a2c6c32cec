package metrics

import "time"

// NullMetrics is a zero-overhead no-op implementation of MetricsCollector.
// Use this when metrics are disabled to keep collection off the hot path.
type NullMetrics struct{}

// NewNullMetrics creates a new NullMetrics instance
func NewNullMetrics() *NullMetrics {
	return &NullMetrics{}
}

// IncrementExchanges is a no-op
func (nm *NullMetrics) IncrementExchanges() {}

// IncrementTimeouts is a no-op
func (nm *NullMetrics) IncrementTimeouts() {}

// IncrementFrameErrors is a no-op
func (nm *NullMetrics) IncrementFrameErrors() {}

// IncrementMQTTPublishes is a no-op
func (nm *NullMetrics) IncrementMQTTPublishes() {}

// IncrementMQTTErrors is a no-op
func (nm *NullMetrics) IncrementMQTTErrors() {}

// SetBusStatus is a no-op
func (nm *NullMetrics) SetBusStatus(online bool) {}

// ObserveExchangeDuration is a no-op
func (nm *NullMetrics) ObserveExchangeDuration(duration time.Duration) {}

// StartMetricsServer is a no-op (always returns nil)
func (nm *NullMetrics) StartMetricsServer(listen string) error {
	return nil
}
