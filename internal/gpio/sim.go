package gpio

import (
	"fmt"
	"sync"
)

// SimDriver is an in-memory pin bank. Output pins read back the last value
// written; input pins read whatever Set stored (low by default).
//
// Faults can be injected per pin to exercise the communication-failure
// path. Thread-safety: all methods are safe for concurrent use.
type SimDriver struct {
	mu         sync.Mutex
	levels     map[string]bool
	pulses     map[string]float64
	writes     map[string]int
	readFault  map[string]error
	writeFault map[string]error
}

// NewSimDriver creates an empty pin bank.
func NewSimDriver() *SimDriver {
	return &SimDriver{
		levels:     make(map[string]bool),
		pulses:     make(map[string]float64),
		writes:     make(map[string]int),
		readFault:  make(map[string]error),
		writeFault: make(map[string]error),
	}
}

// ReadPin implements Driver.
func (s *SimDriver) ReadPin(pin string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readFault[pin]; err != nil {
		return false, err
	}
	return s.levels[pin], nil
}

// WritePin implements Driver.
func (s *SimDriver) WritePin(pin string, level bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeFault[pin]; err != nil {
		return err
	}
	s.levels[pin] = level
	s.writes[pin]++
	return nil
}

// SetPulseWidth implements Driver.
func (s *SimDriver) SetPulseWidth(pin string, frameWidth, pulseWidth float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeFault[pin]; err != nil {
		return err
	}
	if pulseWidth < 0 || pulseWidth > frameWidth {
		return fmt.Errorf("pulse width %v outside frame %v", pulseWidth, frameWidth)
	}
	s.pulses[pin] = pulseWidth
	s.writes[pin]++
	return nil
}

// PulseWidth implements Driver.
func (s *SimDriver) PulseWidth(pin string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.readFault[pin]; err != nil {
		return 0, err
	}
	return s.pulses[pin], nil
}

// Set stores the electrical level of a pin, as an external signal would.
func (s *SimDriver) Set(pin string, level bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.levels[pin] = level
}

// Level returns the last level of a pin.
func (s *SimDriver) Level(pin string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.levels[pin]
}

// Pulse returns the last pulse width set on a pin.
func (s *SimDriver) Pulse(pin string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pulses[pin]
}

// WriteCount returns how many successful writes a pin has received.
func (s *SimDriver) WriteCount(pin string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes[pin]
}

// FailRead makes every read of pin return err. A nil err clears the fault.
func (s *SimDriver) FailRead(pin string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.readFault, pin)
		return
	}
	s.readFault[pin] = err
}

// FailWrite makes every write to pin return err. A nil err clears the fault.
func (s *SimDriver) FailWrite(pin string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.writeFault, pin)
		return
	}
	s.writeFault[pin] = err
}
