package services

import (
	"context"
	"time"

	"mqtt-cerebro-bridge/pkg/health"
	"mqtt-cerebro-bridge/pkg/logger"
)

// StatusPublisher publishes the bridge availability topic
type StatusPublisher interface {
	PublishStatus(online bool) error
}

// HeartbeatService republishes the online status periodically so a broker
// that lost the retained message (or a freshly subscribed Home Assistant)
// converges on the right availability
type HeartbeatService struct {
	publisher     StatusPublisher
	healthMonitor *health.BusHealthMonitor
	interval      time.Duration
}

// NewHeartbeatService creates a new heartbeat service
func NewHeartbeatService(publisher StatusPublisher, healthMonitor *health.BusHealthMonitor, interval time.Duration) *HeartbeatService {
	return &HeartbeatService{
		publisher:     publisher,
		healthMonitor: healthMonitor,
		interval:      interval,
	}
}

// Start begins the heartbeat loop; returns when the context is cancelled
func (s *HeartbeatService) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logger.LogInfo("💓 Heartbeat every %v", s.interval)

	for {
		select {
		case <-ctx.Done():
			logger.LogDebug("Heartbeat service stopped")
			return
		case <-ticker.C:
			s.sendHeartbeat()
		}
	}
}

// sendHeartbeat publishes online unless the bus is currently marked offline
func (s *HeartbeatService) sendHeartbeat() {
	if !s.healthMonitor.IsOnline() {
		logger.LogDebug("💔 Skipping heartbeat, bus is offline")
		return
	}
	if err := s.publisher.PublishStatus(true); err != nil {
		logger.LogWarn("Heartbeat failed: %v", err)
		return
	}
	logger.LogDebug("💓 Heartbeat sent")
}
