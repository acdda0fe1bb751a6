package gpio

import (
	"fmt"

	"github.com/roach88/plc/internal/fault"
	"github.com/roach88/plc/internal/memory"
)

// DigitalInput reads a single pin. With ActiveHigh false (a normally-closed
// contact) the logical value is the inverse of the pin level.
type DigitalInput struct {
	Pin        string
	Name       string
	ActiveHigh bool

	driver Driver
}

// NewDigitalInput creates a digital input binding.
func NewDigitalInput(d Driver, pin, name string, activeHigh bool) *DigitalInput {
	return &DigitalInput{Pin: pin, Name: name, ActiveHigh: activeHigh, driver: d}
}

// Read returns 1 when the input is active and 0 otherwise.
func (in *DigitalInput) Read() (memory.Value, error) {
	level, err := in.driver.ReadPin(in.Pin)
	if err != nil {
		return memory.Value{}, fault.Communication(in.Name, err, "read digital input on pin %s", in.Pin)
	}
	return memory.Bit(level == in.ActiveHigh), nil
}

// DigitalOutput drives a single pin and reads its level back.
type DigitalOutput struct {
	Pin  string
	Name string

	driver Driver
}

// NewDigitalOutput creates a digital output binding and writes the initial
// value to the pin.
func NewDigitalOutput(d Driver, pin, name string, init bool) (*DigitalOutput, error) {
	out := &DigitalOutput{Pin: pin, Name: name, driver: d}
	if err := out.Write(memory.Bit(init)); err != nil {
		return nil, err
	}
	return out, nil
}

// Read returns the current pin level as 0 or 1.
func (out *DigitalOutput) Read() (memory.Value, error) {
	level, err := out.driver.ReadPin(out.Pin)
	if err != nil {
		return memory.Value{}, fault.Communication(out.Name, err, "read back digital output on pin %s", out.Pin)
	}
	return memory.Bit(level), nil
}

// Write drives the pin high when v is truthy.
func (out *DigitalOutput) Write(v memory.Value) error {
	if err := out.driver.WritePin(out.Pin, v.Truthy()); err != nil {
		return fault.Communication(out.Name, err, "write digital output on pin %s", out.Pin)
	}
	return nil
}

// PWMConfig describes a pulse-width-modulated output.
type PWMConfig struct {
	// Init is the value written when the output is created.
	Init float64 `yaml:"init" json:"init"`

	// FrameWidth is the time between pulse starts, in ms.
	FrameWidth float64 `yaml:"frame_width" json:"frame_width"`

	// MinPulseWidth and MaxPulseWidth bound the pulse duration, in ms.
	MinPulseWidth float64 `yaml:"min_pulse_width" json:"min_pulse_width"`
	MaxPulseWidth float64 `yaml:"max_pulse_width" json:"max_pulse_width"`

	// MinValue and MaxValue are the logical values mapped onto the pulse range.
	MinValue float64 `yaml:"min_value" json:"min_value"`
	MaxValue float64 `yaml:"max_value" json:"max_value"`

	// StatusPrecision is the decimal precision of the read-back variable.
	StatusPrecision int `yaml:"status_precision" json:"status_precision"`
}

// DefaultPWMConfig returns the hobby-servo defaults: 20 ms frame, 1-2 ms
// pulse, values 0..1, read-back rounded to whole numbers.
func DefaultPWMConfig() PWMConfig {
	return PWMConfig{
		FrameWidth:    20.0,
		MinPulseWidth: 1.0,
		MaxPulseWidth: 2.0,
		MinValue:      0.0,
		MaxValue:      1.0,
	}
}

// Validate checks that the pulse and value ranges are usable.
func (c PWMConfig) Validate() error {
	if c.FrameWidth <= 0 {
		return fmt.Errorf("frame width must be positive, got %v", c.FrameWidth)
	}
	if c.MinPulseWidth < 0 || c.MinPulseWidth >= c.MaxPulseWidth {
		return fmt.Errorf("pulse width range [%v, %v] is invalid", c.MinPulseWidth, c.MaxPulseWidth)
	}
	if c.MaxPulseWidth > c.FrameWidth {
		return fmt.Errorf("max pulse width %v exceeds frame width %v", c.MaxPulseWidth, c.FrameWidth)
	}
	if c.MinValue == c.MaxValue {
		return fmt.Errorf("value range [%v, %v] is empty", c.MinValue, c.MaxValue)
	}
	if c.StatusPrecision < 0 {
		return fmt.Errorf("status precision must not be negative, got %d", c.StatusPrecision)
	}
	return nil
}

// PWMOutput maps logical values onto pulse widths.
type PWMOutput struct {
	Pin    string
	Name   string
	Config PWMConfig

	driver Driver
}

// NewPWMOutput creates a PWM output binding and writes cfg.Init.
func NewPWMOutput(d Driver, pin, name string, cfg PWMConfig) (*PWMOutput, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fault.Configuration(name, "invalid PWM output: %v", err)
	}
	out := &PWMOutput{Pin: pin, Name: name, Config: cfg, driver: d}
	if err := out.Write(memory.Float(cfg.Init)); err != nil {
		return nil, err
	}
	return out, nil
}

// Read returns the logical value corresponding to the emitted pulse width.
func (out *PWMOutput) Read() (memory.Value, error) {
	pw, err := out.driver.PulseWidth(out.Pin)
	if err != nil {
		return memory.Value{}, fault.Communication(out.Name, err, "read back PWM output on pin %s", out.Pin)
	}
	return memory.Float(out.valueOf(pw)), nil
}

// Write sets the pulse width for v. Values outside [MinValue, MaxValue] are
// clamped to the range.
func (out *PWMOutput) Write(v memory.Value) error {
	pw := out.pulseOf(v.AsFloat())
	if err := out.driver.SetPulseWidth(out.Pin, out.Config.FrameWidth, pw); err != nil {
		return fault.Communication(out.Name, err, "write PWM output on pin %s", out.Pin)
	}
	return nil
}

func (out *PWMOutput) pulseOf(value float64) float64 {
	c := out.Config
	lo, hi := c.MinValue, c.MaxValue
	if lo > hi {
		lo, hi = hi, lo
	}
	value = min(max(value, lo), hi)
	ratio := (value - c.MinValue) / (c.MaxValue - c.MinValue)
	return c.MinPulseWidth + ratio*(c.MaxPulseWidth-c.MinPulseWidth)
}

func (out *PWMOutput) valueOf(pulse float64) float64 {
	c := out.Config
	ratio := (pulse - c.MinPulseWidth) / (c.MaxPulseWidth - c.MinPulseWidth)
	return c.MinValue + ratio*(c.MaxValue-c.MinValue)
}
