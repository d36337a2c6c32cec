package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"mqtt-cerebro-bridge/pkg/logger"
)

// HealthStatus represents the health check response
type HealthStatus struct {
	Status             string    `json:"status"` // "healthy", "degraded", "unhealthy"
	Timestamp          time.Time `json:"timestamp"`
	Uptime             string    `json:"uptime"`
	BusOnline          bool      `json:"bus_online"`
	LastSuccessfulPoll string    `json:"last_successful_poll"`
	ErrorCount         int       `json:"error_count"`
	SuccessCount       int       `json:"success_count"`
	Version            string    `json:"version,omitempty"`
}

// HealthChecker interface for providing health information
type HealthChecker interface {
	IsOnline() bool
	GetLastSuccessTime() time.Time
	GetErrorCount() int
	GetSuccessCount() int
}

// HealthHandler provides the HTTP /health endpoint
type HealthHandler struct {
	startTime     time.Time
	healthChecker HealthChecker
	version       string
}

// NewHealthHandler creates a new health check handler
func NewHealthHandler(healthChecker HealthChecker, version string) *HealthHandler {
	return &HealthHandler{
		startTime:     time.Now(),
		healthChecker: healthChecker,
		version:       version,
	}
}

// ServeHTTP implements http.Handler for the /health endpoint
func (hh *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := hh.getHealthStatus()

	w.Header().Set("Content-Type", "application/json")

	statusCode := http.StatusOK
	if status.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}
	w.WriteHeader(statusCode)

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(status); err != nil {
		http.Error(w, fmt.Sprintf("Failed to encode health status: %v", err), http.StatusInternalServerError)
	}
}

// getHealthStatus determines the current health status
func (hh *HealthHandler) getHealthStatus() HealthStatus {
	now := time.Now()

	isOnline := hh.healthChecker.IsOnline()
	lastSuccess := hh.healthChecker.GetLastSuccessTime()

	status := "healthy"
	switch {
	case !isOnline:
		status = "unhealthy"
	case !lastSuccess.IsZero() && now.Sub(lastSuccess) > 5*time.Minute:
		status = "degraded"
	}

	lastPoll := "never"
	if !lastSuccess.IsZero() {
		lastPoll = now.Sub(lastSuccess).Round(time.Second).String()
	}

	return HealthStatus{
		Status:             status,
		Timestamp:          now,
		Uptime:             now.Sub(hh.startTime).Round(time.Second).String(),
		BusOnline:          isOnline,
		LastSuccessfulPoll: lastPoll,
		ErrorCount:         hh.healthChecker.GetErrorCount(),
		SuccessCount:       hh.healthChecker.GetSuccessCount(),
		Version:            hh.version,
	}
}

// StartHealthServer serves the handler on the given address
func StartHealthServer(listen string, handler *HealthHandler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/health", handler)

	server := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.LogInfo("Health endpoint listening on %s", listen)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.LogError("Health server failed: %v", err)
		}
	}()
	return server
}
