// Package k6221 drives a Keithley 6221 AC and DC current source in
// waveform mode.
package k6221

import (
	"fmt"

	"github.com/gotmc/ppmslab/instrument"
)

// Wave configures the sine output and its phase marker.
type Wave struct {
	Amplitude   float64 // A peak
	Frequency   float64 // Hz
	PhaseMarker bool
	MarkerLevel float64 // degrees
	MarkerLine  int     // trigger link output line, 1-6
}

// Source is a 6221 on some transport.
type Source struct {
	t instrument.Transport
}

// New returns a Source using t.
func New(t instrument.Transport) *Source { return &Source{t: t} }

// Reset restores defaults; the output is left off.
func (s *Source) Reset() error { return s.t.Command("*RST") }

// ConfigureWave sets up the sine waveform. The 6221 caps amplitude at
// 105 mA.
func (s *Source) ConfigureWave(w Wave) error {
	if w.Amplitude <= 0 || w.Amplitude > 0.105 {
		return fmt.Errorf("wave amplitude %g A out of range", w.Amplitude)
	}
	if w.PhaseMarker && (w.MarkerLine < 1 || w.MarkerLine > 6) {
		return fmt.Errorf("invalid phase marker line %d", w.MarkerLine)
	}
	cmds := []string{
		fmt.Sprintf("SOUR:WAVE:AMPL %g", w.Amplitude),
		fmt.Sprintf("SOUR:WAVE:FREQ %g", w.Frequency),
	}
	if w.PhaseMarker {
		cmds = append(cmds,
			"SOUR:WAVE:PMAR:STAT 1",
			fmt.Sprintf("SOUR:WAVE:PMAR:LEV %g", w.MarkerLevel),
			fmt.Sprintf("SOUR:WAVE:PMAR:OLINE %d", w.MarkerLine),
		)
	}
	return instrument.Commands(s.t, 0, cmds...)
}

// Arm arms the waveform.
func (s *Source) Arm() error { return s.t.Command("SOUR:WAVE:ARM") }

// Start starts an armed waveform.
func (s *Source) Start() error { return s.t.Command("SOUR:WAVE:INIT") }

// Abort stops the waveform.
func (s *Source) Abort() error { return s.t.Command("SOUR:WAVE:ABOR") }

// Output switches the output relay.
func (s *Source) Output(on bool) error {
	return s.t.Command(":OUTP %s", instrument.OnOff(on))
}
