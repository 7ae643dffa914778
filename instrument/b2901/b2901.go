// Package b2901 drives a Keysight B2901A source/measure unit as a pulsed
// current source.
package b2901

import (
	"fmt"

	"github.com/gotmc/ppmslab/instrument"
)

// Pulse configures the pulsed current output.
type Pulse struct {
	Bias       float64 // A, level between pulses
	Width      float64 // s
	Compliance float64 // V
}

// SMU is a B2901A on some transport.
type SMU struct {
	t instrument.Transport
}

// New returns an SMU using t.
func New(t instrument.Transport) *SMU { return &SMU{t: t} }

// Reset restores defaults; the output is left off.
func (s *SMU) Reset() error { return s.t.Command("*RST") }

// ConfigurePulse selects pulsed current sourcing.
func (s *SMU) ConfigurePulse(p Pulse) error {
	if p.Width < 50e-6 || p.Width > 100000 {
		return fmt.Errorf("pulse width %g s out of range", p.Width)
	}
	if p.Compliance <= 0 || p.Compliance > 210 {
		return fmt.Errorf("voltage compliance %g V out of range", p.Compliance)
	}
	return instrument.Commands(s.t, 0,
		":SOUR:FUNC:MODE CURR",
		":SOUR:FUNC PULS",
		fmt.Sprintf(":SOUR:CURR %g", p.Bias),
		fmt.Sprintf(":SOUR:PULS:WIDTH %g", p.Width),
		fmt.Sprintf(":SENS:VOLT:PROT %g", p.Compliance),
	)
}

// SetTriggeredCurrent sets the pulse peak in amperes, applied on the next
// Initiate.
func (s *SMU) SetTriggeredCurrent(a float64) error {
	return s.t.Command(":SOUR:CURR:TRIG %g", a)
}

// Initiate fires the trigger sequence.
func (s *SMU) Initiate() error { return s.t.Command(":INIT") }

// Output switches the output relay.
func (s *SMU) Output(on bool) error {
	return s.t.Command(":OUTP %s", instrument.OnOff(on))
}
