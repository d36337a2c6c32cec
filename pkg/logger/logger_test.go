package logger

import "testing"

// TestShouldLogLevelOrdering tests the level threshold semantics
func TestShouldLogLevelOrdering(t *testing.T) {
	tests := []struct {
		current string
		message string
		want    bool
	}{
		{LogLevelInfo, LogLevelError, true},
		{LogLevelInfo, LogLevelInfo, true},
		{LogLevelInfo, LogLevelDebug, false},
		{LogLevelInfo, LogLevelTrace, false},
		{LogLevelError, LogLevelWarn, false},
		{LogLevelTrace, LogLevelTrace, true},
		{"bogus", LogLevelDebug, true}, // unknown levels never suppress
	}
	for _, tt := range tests {
		if got := shouldLog(tt.current, tt.message); got != tt.want {
			t.Errorf("shouldLog(%q, %q): expected %v, got %v", tt.current, tt.message, tt.want, got)
		}
	}
}

// TestEnabledBeforeSetup tests the defaults before configuration is installed
func TestEnabledBeforeSetup(t *testing.T) {
	saved := GlobalLogging
	GlobalLogging = nil
	defer func() { GlobalLogging = saved }()

	if !enabled(LogLevelError) || !enabled(LogLevelInfo) {
		t.Error("Error and info must log before Setup")
	}
	if enabled(LogLevelDebug) || IsTraceEnabled() {
		t.Error("Debug and trace must stay quiet before Setup")
	}
}
