// Package logger provides leveled logging over the standard library logger.
// The level and optional log file come from the yaml configuration; every
// package logs through the global helpers.
package logger

import (
	"log"
	"os"
	"strings"
)

// LogLevel constants
const (
	LogLevelError = "error"
	LogLevelWarn  = "warn"
	LogLevelInfo  = "info"
	LogLevelDebug = "debug"
	LogLevelTrace = "trace"
)

// LoggingConfig represents the logging configuration
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Global logging configuration
var GlobalLogging *LoggingConfig

// Setup installs the logging configuration. When a log file is configured
// the standard logger is redirected there; on open failure logging stays
// on stdout rather than failing the bridge.
func Setup(config *LoggingConfig) {
	GlobalLogging = config

	if config.File != "" {
		// 0600 permissions, owner read/write only
		output, err := os.OpenFile(config.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			log.Printf("Failed to open log file %s: %v", config.File, err)
			return
		}
		log.SetOutput(output)
	}
}

// shouldLog checks if a message should be logged based on current level
func shouldLog(currentLevel, messageLevel string) bool {
	levels := []string{LogLevelError, LogLevelWarn, LogLevelInfo, LogLevelDebug, LogLevelTrace}

	currentIndex := -1
	messageIndex := -1

	for i, level := range levels {
		if level == currentLevel {
			currentIndex = i
		}
		if level == messageLevel {
			messageIndex = i
		}
	}

	// If either level is not found, default to allowing the message
	if currentIndex == -1 || messageIndex == -1 {
		return true
	}

	return messageIndex <= currentIndex
}

func enabled(messageLevel string) bool {
	if GlobalLogging == nil {
		// Before Setup only the default-on levels log
		return shouldLog(LogLevelInfo, messageLevel)
	}
	return shouldLog(strings.ToLower(GlobalLogging.Level), messageLevel)
}

// LogStartup logs startup messages that should always be visible regardless of log level
func LogStartup(format string, args ...interface{}) {
	log.Printf("🔧 "+format, args...)
}

func LogError(format string, args ...interface{}) {
	if enabled(LogLevelError) {
		log.Printf("❌ "+format, args...)
	}
}

func LogWarn(format string, args ...interface{}) {
	if enabled(LogLevelWarn) {
		log.Printf("⚠️ "+format, args...)
	}
}

func LogInfo(format string, args ...interface{}) {
	if enabled(LogLevelInfo) {
		log.Printf("ℹ️ "+format, args...)
	}
}

func LogDebug(format string, args ...interface{}) {
	if enabled(LogLevelDebug) {
		log.Printf("🔧 "+format, args...)
	}
}

func LogTrace(format string, args ...interface{}) {
	if enabled(LogLevelTrace) {
		log.Printf("🔍 "+format, args...)
	}
}

// IsTraceEnabled checks if trace logging is enabled
func IsTraceEnabled() bool {
	return GlobalLogging != nil && enabled(LogLevelTrace)
}
