package metrics

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"mqtt-cerebro-bridge/pkg/logger"
)

// PrometheusMetrics tracks application metrics in Prometheus text format
type PrometheusMetrics struct {
	// Counters
	exchangesTotal     int64
	timeoutsTotal      int64
	frameErrorsTotal   int64
	mqttPublishesTotal int64
	mqttErrorsTotal    int64

	// Gauges
	busStatus int64 // 1 = online, 0 = offline

	// Histograms (simplified - store sum and count for average)
	exchangeDurationSum   float64
	exchangeDurationCount int64

	mu sync.RWMutex
}

// NewPrometheusMetrics creates a new Prometheus metrics collector
func NewPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{
		busStatus: 1, // Start as online
	}
}

// IncrementExchanges increments the exchange counter
func (pm *PrometheusMetrics) IncrementExchanges() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.exchangesTotal++
}

// IncrementTimeouts increments the exchange timeout counter
func (pm *PrometheusMetrics) IncrementTimeouts() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.timeoutsTotal++
}

// IncrementFrameErrors increments the malformed frame counter
func (pm *PrometheusMetrics) IncrementFrameErrors() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.frameErrorsTotal++
}

// IncrementMQTTPublishes increments the MQTT publish counter
func (pm *PrometheusMetrics) IncrementMQTTPublishes() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.mqttPublishesTotal++
}

// IncrementMQTTErrors increments the MQTT error counter
func (pm *PrometheusMetrics) IncrementMQTTErrors() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.mqttErrorsTotal++
}

// SetBusStatus sets the bus status gauge (1 = online, 0 = offline)
func (pm *PrometheusMetrics) SetBusStatus(online bool) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if online {
		pm.busStatus = 1
	} else {
		pm.busStatus = 0
	}
}

// ObserveExchangeDuration records one bus exchange duration
func (pm *PrometheusMetrics) ObserveExchangeDuration(duration time.Duration) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.exchangeDurationSum += duration.Seconds()
	pm.exchangeDurationCount++
}

// GetMetricsText returns metrics in Prometheus text format
func (pm *PrometheusMetrics) GetMetricsText() string {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	var avgExchangeDuration float64
	if pm.exchangeDurationCount > 0 {
		avgExchangeDuration = pm.exchangeDurationSum / float64(pm.exchangeDurationCount)
	}

	return fmt.Sprintf(`# HELP cerebro_exchanges_total Total number of completed bus exchanges
# TYPE cerebro_exchanges_total counter
cerebro_exchanges_total %d

# HELP cerebro_timeouts_total Total number of bus exchange timeouts
# TYPE cerebro_timeouts_total counter
cerebro_timeouts_total %d

# HELP cerebro_frame_errors_total Total number of malformed frames on the line
# TYPE cerebro_frame_errors_total counter
cerebro_frame_errors_total %d

# HELP cerebro_mqtt_publishes_total Total number of successful MQTT publishes
# TYPE cerebro_mqtt_publishes_total counter
cerebro_mqtt_publishes_total %d

# HELP cerebro_mqtt_errors_total Total number of failed MQTT publishes
# TYPE cerebro_mqtt_errors_total counter
cerebro_mqtt_errors_total %d

# HELP cerebro_bus_status Serial bus availability (1 = online, 0 = offline)
# TYPE cerebro_bus_status gauge
cerebro_bus_status %d

# HELP cerebro_exchange_duration_seconds_avg Average bus exchange duration
# TYPE cerebro_exchange_duration_seconds_avg gauge
cerebro_exchange_duration_seconds_avg %.6f
`,
		pm.exchangesTotal,
		pm.timeoutsTotal,
		pm.frameErrorsTotal,
		pm.mqttPublishesTotal,
		pm.mqttErrorsTotal,
		pm.busStatus,
		avgExchangeDuration)
}

// StartMetricsServer starts the HTTP endpoint serving the metrics text
func (pm *PrometheusMetrics) StartMetricsServer(listen string) error {
	if listen == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		fmt.Fprint(w, pm.GetMetricsText())
	})

	server := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.LogInfo("Metrics server listening on %s", listen)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.LogError("Metrics server failed: %v", err)
		}
	}()
	return nil
}
