// Package gpio provides the I/O bindings used by the scan engine:
// digital inputs, digital outputs and PWM outputs, on top of a pin Driver.
//
// The Driver is the only hardware-facing abstraction. Polarity inversion
// for normally-closed contacts and value/pulse-width mapping for PWM live
// in the bindings, so the engine only ever sees logical values.
package gpio

import "errors"

// Driver is the pin-level hardware interface. Pin identifiers are opaque
// strings ("17", "GPIO17", "BOARD11") interpreted by the implementation.
type Driver interface {
	// ReadPin returns the electrical level of a pin.
	ReadPin(pin string) (bool, error)

	// WritePin drives a pin high (true) or low (false).
	WritePin(pin string, level bool) error

	// SetPulseWidth configures a PWM pin. Both widths are in milliseconds.
	SetPulseWidth(pin string, frameWidth, pulseWidth float64) error

	// PulseWidth returns the pulse width currently emitted on a PWM pin,
	// in milliseconds.
	PulseWidth(pin string) (float64, error)
}

// ErrPinFault is returned by SimDriver for pins with an injected fault.
var ErrPinFault = errors.New("pin fault")
