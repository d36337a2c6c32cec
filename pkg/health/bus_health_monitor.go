package health

import (
	"sync"
	"time"

	"mqtt-cerebro-bridge/pkg/recovery"
)

// BusHealthMonitor tracks serial bus online/offline status from poll cycle
// outcomes and integrates with error recovery
type BusHealthMonitor struct {
	isOnline        bool
	lastErrorTime   time.Time
	lastSuccessTime time.Time
	errorCount      int
	successCount    int
	errorManager    *recovery.ErrorRecoveryManager
	mu              sync.RWMutex
}

// NewBusHealthMonitor creates a new bus health monitor
func NewBusHealthMonitor(gracePeriod time.Duration) *BusHealthMonitor {
	return &BusHealthMonitor{
		isOnline:     true,
		errorManager: recovery.NewErrorRecoveryManager(gracePeriod),
	}
}

// IsOnline returns whether the bus is currently marked as online
func (m *BusHealthMonitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isOnline
}

// RecordSuccess records a successful bus operation. Returns true when this
// success flips the bus back online (the recovery publication edge).
func (m *BusHealthMonitor) RecordSuccess() (cameOnline bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.errorManager.RecordSuccess()
	m.successCount++
	m.lastSuccessTime = time.Now()

	cameOnline = !m.isOnline
	m.isOnline = true
	return cameOnline
}

// RecordError records a bus error and returns whether the bus should now be
// marked offline (once per error sequence)
func (m *BusHealthMonitor) RecordError() (shouldMarkOffline bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastErrorTime = time.Now()
	m.errorCount++
	m.errorManager.RecordError()

	return m.errorManager.ShouldMarkOffline()
}

// MarkOffline explicitly marks the bus as offline
func (m *BusHealthMonitor) MarkOffline() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.isOnline = false
	m.errorManager.MarkAsOffline()
}

// MarkOnline explicitly marks the bus as online
func (m *BusHealthMonitor) MarkOnline() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.isOnline = true
	m.errorManager.Reset()
}

// GetConsecutiveErrors returns the current count of consecutive errors
func (m *BusHealthMonitor) GetConsecutiveErrors() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.errorManager.GetConsecutiveErrors()
}

// GetLastErrorTime returns the time of the last error
func (m *BusHealthMonitor) GetLastErrorTime() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErrorTime
}

// GetLastSuccessTime returns the time of the last successful operation
func (m *BusHealthMonitor) GetLastSuccessTime() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastSuccessTime
}

// GetErrorCount returns the total error count
func (m *BusHealthMonitor) GetErrorCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.errorCount
}

// GetSuccessCount returns the total success count
func (m *BusHealthMonitor) GetSuccessCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.successCount
}

// IsInGracePeriod returns true if currently in the error grace period
func (m *BusHealthMonitor) IsInGracePeriod() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.errorManager.IsInGracePeriod()
}
