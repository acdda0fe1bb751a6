// Package fault defines the error taxonomy shared by the PLC runtime.
//
// Four kinds of failure exist:
//   - CONFIGURATION: an unknown or duplicate name was used. Programmer error,
//     returned straight to the caller.
//   - COMMUNICATION: a hardware read or write failed. Fatal: the engine logs,
//     notifies and terminates the process.
//   - TYPE_MISMATCH: a bit-only operation was used on a non-bit variable.
//   - EMERGENCY: raised by control logic to request the emergency shutdown
//     routine. Only the engine's control phase handles it.
package fault

import (
	"errors"
	"fmt"
)

// Code categorizes runtime errors.
type Code string

const (
	// CodeConfiguration indicates a name that was never registered, or was
	// registered twice, or registration after the run loop started.
	CodeConfiguration Code = "CONFIGURATION"

	// CodeCommunication indicates a failed hardware read or write.
	CodeCommunication Code = "COMMUNICATION"

	// CodeTypeMismatch indicates a bit-only operation on a non-bit variable.
	CodeTypeMismatch Code = "TYPE_MISMATCH"

	// CodeEmergency indicates an emergency condition signaled by control logic.
	CodeEmergency Code = "EMERGENCY"
)

// Error is the structured error returned by every PLC package.
type Error struct {
	// Code identifies the error category.
	Code Code

	// Message is a human-readable description.
	Message string

	// Name is the variable or binding involved, if any.
	Name string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Name != "" {
		msg = fmt.Sprintf("%s (name=%s)", msg, e.Name)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Configuration creates a CONFIGURATION error for the given name.
func Configuration(name, format string, args ...any) *Error {
	return &Error{
		Code:    CodeConfiguration,
		Message: fmt.Sprintf(format, args...),
		Name:    name,
	}
}

// Communication creates a COMMUNICATION error wrapping a driver failure.
func Communication(name string, err error, format string, args ...any) *Error {
	return &Error{
		Code:    CodeCommunication,
		Message: fmt.Sprintf(format, args...),
		Name:    name,
		Err:     err,
	}
}

// TypeMismatch creates a TYPE_MISMATCH error.
func TypeMismatch(format string, args ...any) *Error {
	return &Error{
		Code:    CodeTypeMismatch,
		Message: fmt.Sprintf(format, args...),
	}
}

// Emergency creates an EMERGENCY error carrying the reason given by
// control logic.
func Emergency(reason string) *Error {
	return &Error{
		Code:    CodeEmergency,
		Message: reason,
	}
}

// CodeOf returns the code of the first *Error in err's chain, or "" if there
// is none.
func CodeOf(err error) Code {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

// IsConfigurationError reports whether err is a CONFIGURATION error.
// Uses errors.As to handle wrapped errors.
func IsConfigurationError(err error) bool {
	return CodeOf(err) == CodeConfiguration
}

// IsCommunicationError reports whether err is a COMMUNICATION error.
func IsCommunicationError(err error) bool {
	return CodeOf(err) == CodeCommunication
}

// IsTypeMismatch reports whether err is a TYPE_MISMATCH error.
func IsTypeMismatch(err error) bool {
	return CodeOf(err) == CodeTypeMismatch
}

// IsEmergency reports whether err is an EMERGENCY condition.
func IsEmergency(err error) bool {
	return CodeOf(err) == CodeEmergency
}
