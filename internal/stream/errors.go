package stream

import (
	"errors"
	"fmt"

	"github.com/nexy-voice/audiod/internal/platform"
)

// ErrorKind classifies a terminal stream error.
type ErrorKind string

// Error kinds surfaced to coordinators.
const (
	KindTimeout       ErrorKind = "timeout"
	KindNoDevice      ErrorKind = "no_device"
	KindDeviceBusy    ErrorKind = "device_busy"
	KindInvalidConfig ErrorKind = "invalid_config"
	KindInvalidState  ErrorKind = "invalid_state"
	KindPlatform      ErrorKind = "platform"
	KindShuttingDown  ErrorKind = "shutting_down"
)

// Error is a terminal stream error. Transient platform failures are
// retried internally and never reach callers; an Error means the retry
// budget or the operation deadline was exhausted, or the operation was
// invalid to begin with.
type Error struct {
	Kind      ErrorKind
	Op        string
	Direction string
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s %s: %s: %v", e.Direction, e.Op, e.Kind, e.Cause)
	}
	return fmt.Sprintf("%s %s: %s", e.Direction, e.Op, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// newError creates a terminal stream error.
func newError(kind ErrorKind, op, direction string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Direction: direction, Cause: cause}
}

// KindOf extracts the ErrorKind from err, or KindPlatform for foreign errors.
func KindOf(err error) ErrorKind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindPlatform
}

// isTransient reports whether a platform error is one of the two recurring
// open failures that are expected and retried: device busy and invalid
// property/configuration.
func isTransient(err error) bool {
	return errors.Is(err, platform.ErrDeviceBusy) || errors.Is(err, platform.ErrInvalidConfig)
}

// classify maps a platform error onto the matching terminal kind.
func classify(err error) ErrorKind {
	switch {
	case errors.Is(err, platform.ErrDeviceBusy):
		return KindDeviceBusy
	case errors.Is(err, platform.ErrInvalidConfig):
		return KindInvalidConfig
	case errors.Is(err, platform.ErrNoDevice):
		return KindNoDevice
	default:
		return KindPlatform
	}
}
