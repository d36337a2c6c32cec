package recovery

import (
	"time"
)

// ErrorRecoveryManager tracks consecutive bus failures and decides when the
// grace period has run out. A single timeout on a half-duplex line is
// routine; only a sustained error sequence should flip availability.
type ErrorRecoveryManager struct {
	consecutiveErrors  int
	firstErrorTime     time.Time
	errorGracePeriod   time.Duration
	statusSetToOffline bool
}

// NewErrorRecoveryManager creates a new error recovery manager
func NewErrorRecoveryManager(gracePeriod time.Duration) *ErrorRecoveryManager {
	if gracePeriod == 0 {
		gracePeriod = 15 * time.Second // Default grace period
	}

	return &ErrorRecoveryManager{
		errorGracePeriod: gracePeriod,
	}
}

// RecordError records an error occurrence and returns whether the grace
// period has expired
func (m *ErrorRecoveryManager) RecordError() bool {
	m.consecutiveErrors++

	if m.firstErrorTime.IsZero() {
		m.firstErrorTime = time.Now()
	}

	return time.Since(m.firstErrorTime) >= m.errorGracePeriod
}

// RecordSuccess resets error tracking after a successful operation
func (m *ErrorRecoveryManager) RecordSuccess() {
	m.consecutiveErrors = 0
	m.firstErrorTime = time.Time{}
	m.statusSetToOffline = false
}

// GetConsecutiveErrors returns the current count of consecutive errors
func (m *ErrorRecoveryManager) GetConsecutiveErrors() int {
	return m.consecutiveErrors
}

// ShouldMarkOffline returns true when the bus should be marked offline.
// Returns false once the offline publication already happened so the
// availability topic is not republished on every subsequent error.
func (m *ErrorRecoveryManager) ShouldMarkOffline() bool {
	if m.statusSetToOffline {
		return false
	}

	return !m.firstErrorTime.IsZero() && time.Since(m.firstErrorTime) >= m.errorGracePeriod
}

// MarkAsOffline records that the offline status has been published
func (m *ErrorRecoveryManager) MarkAsOffline() {
	m.statusSetToOffline = true
}

// IsInGracePeriod returns true between the first error of a sequence and
// the grace period expiry
func (m *ErrorRecoveryManager) IsInGracePeriod() bool {
	if m.firstErrorTime.IsZero() {
		return false
	}
	return time.Since(m.firstErrorTime) < m.errorGracePeriod
}

// GetTimeSinceFirstError returns the duration since the first error in the
// current sequence
func (m *ErrorRecoveryManager) GetTimeSinceFirstError() time.Duration {
	if m.firstErrorTime.IsZero() {
		return 0
	}
	return time.Since(m.firstErrorTime)
}

// Reset resets all error tracking state
func (m *ErrorRecoveryManager) Reset() {
	m.consecutiveErrors = 0
	m.firstErrorTime = time.Time{}
	m.statusSetToOffline = false
}
