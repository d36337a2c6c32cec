package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorSeverity defines the severity level of an error
type ErrorSeverity int

const (
	SeverityInfo ErrorSeverity = iota
	SeverityWarning
	SeverityError
	SeverityCritical
)

// String returns the string representation of the severity
func (s ErrorSeverity) String() string {
	switch s {
	case SeverityInfo:
		return "INFO"
	case SeverityWarning:
		return "WARNING"
	case SeverityError:
		return "ERROR"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// BridgeError is the base error type for all bridge errors
type BridgeError struct {
	Op       string        // Operation that failed
	Err      error         // Underlying error
	Severity ErrorSeverity // Error severity
	Code     int           // Diagnostic code for MQTT
}

// Error implements the error interface
func (e *BridgeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Severity, e.Op, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Severity, e.Op)
}

// Unwrap returns the underlying error
func (e *BridgeError) Unwrap() error {
	return e.Err
}

// FrameKind distinguishes the two recoverable frame decode failures
type FrameKind int

const (
	FrameTooShort FrameKind = iota
	FrameMalformed
)

// FrameError represents a malformed or incomplete frame on the serial stream.
// Both kinds are transient: the reader resynchronizes and keeps scanning.
type FrameError struct {
	BridgeError
	Kind      FrameKind
	Available int // bytes available when the window was rejected
}

// NewFrameTooShort creates a frame error for an incomplete window
func NewFrameTooShort(available int) *FrameError {
	return &FrameError{
		BridgeError: BridgeError{
			Op:       "decode frame",
			Err:      fmt.Errorf("need %d bytes, have %d", 14, available),
			Severity: SeverityInfo,
			Code:     10,
		},
		Kind:      FrameTooShort,
		Available: available,
	}
}

// NewFrameMalformed creates a frame error for a window without valid markers
func NewFrameMalformed(available int) *FrameError {
	return &FrameError{
		BridgeError: BridgeError{
			Op:       "decode frame",
			Err:      fmt.Errorf("window does not carry start/end markers"),
			Severity: SeverityWarning,
			Code:     11,
		},
		Kind:      FrameMalformed,
		Available: available,
	}
}

// TimeoutError represents an exchange that saw no matching response in time.
// Expected on a half-duplex bus with unpowered or busy boards; surfaced as
// success=false, never fatal.
type TimeoutError struct {
	BridgeError
	Address byte
	Command byte
	Timeout time.Duration
}

// NewTimeoutError creates a new exchange timeout error
func NewTimeoutError(address, command byte, timeout time.Duration) *TimeoutError {
	return &TimeoutError{
		BridgeError: BridgeError{
			Op:       "exchange",
			Err:      fmt.Errorf("no response within %v", timeout),
			Severity: SeverityWarning,
			Code:     12,
		},
		Address: address,
		Command: command,
		Timeout: timeout,
	}
}

// Error implements the error interface
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("[%s] address %d command 0x%02X: %s: %v",
		e.Severity, e.Address, e.Command, e.Op, e.Err)
}

// DecodeError represents a response whose payload does not match the layout
// expected for the board type (unsupported response shape). Reported, never
// silently defaulted.
type DecodeError struct {
	BridgeError
	Address   byte
	BoardType string
}

// NewDecodeError creates a new response decode error
func NewDecodeError(address byte, boardType, reason string) *DecodeError {
	return &DecodeError{
		BridgeError: BridgeError{
			Op:       "decode response",
			Err:      stderrors.New(reason),
			Severity: SeverityWarning,
			Code:     13,
		},
		Address:   address,
		BoardType: boardType,
	}
}

// Error implements the error interface
func (e *DecodeError) Error() string {
	return fmt.Sprintf("[%s] %s board at address %d: %s: %v",
		e.Severity, e.BoardType, e.Address, e.Op, e.Err)
}

// CommandError represents an invalid MQTT command payload. Caller error,
// rejected before touching the bus.
type CommandError struct {
	BridgeError
	Topic   string
	Payload string
}

// NewCommandError creates a new command payload error
func NewCommandError(topic, payload, reason string) *CommandError {
	return &CommandError{
		BridgeError: BridgeError{
			Op:       "command payload",
			Err:      stderrors.New(reason),
			Severity: SeverityWarning,
			Code:     14,
		},
		Topic:   topic,
		Payload: payload,
	}
}

// Error implements the error interface
func (e *CommandError) Error() string {
	return fmt.Sprintf("[%s] topic '%s' payload '%s': %s: %v",
		e.Severity, e.Topic, e.Payload, e.Op, e.Err)
}

// PayloadError represents encoder misuse (payload too long, address out of
// range). A programming error: fatal to the request, not to the process.
type PayloadError struct {
	BridgeError
	Length int
}

// NewPayloadError creates a new frame encoder error
func NewPayloadError(op string, length int) *PayloadError {
	return &PayloadError{
		BridgeError: BridgeError{
			Op:       op,
			Err:      fmt.Errorf("invalid value %d", length),
			Severity: SeverityError,
			Code:     15,
		},
		Length: length,
	}
}

// ConfigError represents configuration errors
type ConfigError struct {
	BridgeError
	Field string
}

// NewConfigError creates a new configuration error
func NewConfigError(op string, err error, field string) *ConfigError {
	return &ConfigError{
		BridgeError: BridgeError{
			Op:       op,
			Err:      err,
			Severity: SeverityCritical, // Config errors are critical
			Code:     1,
		},
		Field: field,
	}
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[%s] Configuration field '%s': %s: %v",
			e.Severity, e.Field, e.Op, e.Err)
	}
	return fmt.Sprintf("[%s] Configuration: %s: %v",
		e.Severity, e.Op, e.Err)
}

// MQTTError represents errors from MQTT operations
type MQTTError struct {
	BridgeError
	Broker string
	Topic  string
}

// NewMQTTError creates a new MQTT error
func NewMQTTError(op string, err error, broker string) *MQTTError {
	return &MQTTError{
		BridgeError: BridgeError{
			Op:       op,
			Err:      err,
			Severity: SeverityError,
			Code:     4,
		},
		Broker: broker,
	}
}

// Error implements the error interface
func (e *MQTTError) Error() string {
	if e.Topic != "" {
		return fmt.Sprintf("[%s] MQTT broker '%s' (topic: %s): %s: %v",
			e.Severity, e.Broker, e.Topic, e.Op, e.Err)
	}
	return fmt.Sprintf("[%s] MQTT broker '%s': %s: %v",
		e.Severity, e.Broker, e.Op, e.Err)
}

// IsTimeout reports whether err is an exchange timeout
func IsTimeout(err error) bool {
	var te *TimeoutError
	return stderrors.As(err, &te)
}

// IsFrameError reports whether err is a recoverable frame decode failure
func IsFrameError(err error) bool {
	var fe *FrameError
	return stderrors.As(err, &fe)
}

// IsFrameTooShort reports whether err marks an incomplete frame window
func IsFrameTooShort(err error) bool {
	var fe *FrameError
	return stderrors.As(err, &fe) && fe.Kind == FrameTooShort
}

// IsDecodeError reports whether err is an unsupported response shape
func IsDecodeError(err error) bool {
	var de *DecodeError
	return stderrors.As(err, &de)
}

// IsCommandError reports whether err is an invalid command payload
func IsCommandError(err error) bool {
	var ce *CommandError
	return stderrors.As(err, &ce)
}
