package metrics

import "time"

// MetricsCollector defines the interface for collecting application metrics.
// This abstraction allows for different implementations and keeps the hot
// path free of metrics plumbing when they are disabled.
//
// Implementations:
//   - PrometheusMetrics: text-format metrics with an optional HTTP server
//   - NullMetrics: zero-overhead no-op implementation when metrics are disabled
type MetricsCollector interface {
	// IncrementExchanges increments the counter for completed bus exchanges
	IncrementExchanges()

	// IncrementTimeouts increments the counter for exchanges that saw no response
	IncrementTimeouts()

	// IncrementFrameErrors increments the counter for malformed frames on the line
	IncrementFrameErrors()

	// IncrementMQTTPublishes increments the counter for successful MQTT publishes
	IncrementMQTTPublishes()

	// IncrementMQTTErrors increments the counter for failed MQTT publishes
	IncrementMQTTErrors()

	// SetBusStatus sets the current serial bus availability
	SetBusStatus(online bool)

	// ObserveExchangeDuration records the duration of one bus exchange
	ObserveExchangeDuration(duration time.Duration)

	// StartMetricsServer starts an HTTP server exposing the metrics
	// (no-op for implementations without a server)
	StartMetricsServer(listen string) error
}

// Compile-time verification that both implementations satisfy the interface
var (
	_ MetricsCollector = (*PrometheusMetrics)(nil)
	_ MetricsCollector = (*NullMetrics)(nil)
)
