// Package sr830 drives a Stanford Research SR830 DSP lock-in amplifier.
package sr830

import (
	"fmt"

	"github.com/gotmc/ppmslab/instrument"
)

// Reference sources for FMOD.
const (
	ExternalReference = 0
	InternalReference = 1
)

// Reference trigger modes for RSLP.
const (
	TriggerSine    = 0
	TriggerTTLRise = 1
	TriggerTTLFall = 2
)

// Input configurations for ISRC.
const (
	InputA       = 0
	InputAminusB = 1
)

// Reserve modes for RMOD.
const (
	HighReserve = 0
	Normal      = 1
	LowNoise    = 2
)

// Expand sets offset and expand for one output channel (OEXP).
type Expand struct {
	Channel int     // 1 X, 2 Y, 3 R
	Offset  float64 // percent
	Factor  int     // 0 ×1, 1 ×10, 2 ×100
}

// Config is the full front-panel setup applied by Configure.
type Config struct {
	Reset        bool
	Frequency    float64 // Hz
	Amplitude    float64 // V rms
	Phase        float64 // degrees
	Harmonic     int
	Input        int
	Sensitivity  int // code, see Sensitivities
	TimeConstant int // code, see TimeConstants
	Slope        int // filter slope code: 0 6dB … 3 24dB/oct
	RefTrigger   int
	RefSource    int
	Reserve      *int
	Expand       []Expand
}

// LockIn is an SR830 on some transport.
type LockIn struct {
	t instrument.Transport
}

// New returns a LockIn using t.
func New(t instrument.Transport) *LockIn { return &LockIn{t: t} }

// Reset restores factory defaults.
func (l *LockIn) Reset() error { return l.t.Command("*RST") }

// Configure applies cfg in the order the front panel expects: reference
// first, then input, gain and filter.
func (l *LockIn) Configure(cfg Config) error {
	if _, err := SensitivityVolts(cfg.Sensitivity); err != nil {
		return err
	}
	if _, err := TimeConstantSeconds(cfg.TimeConstant); err != nil {
		return err
	}
	if cfg.Harmonic < 1 {
		return fmt.Errorf("invalid harmonic %d", cfg.Harmonic)
	}
	var cmds []string
	if cfg.Reset {
		cmds = append(cmds, "*RST")
	}
	cmds = append(cmds,
		fmt.Sprintf("FREQ %g", cfg.Frequency),
		fmt.Sprintf("SLVL %g", cfg.Amplitude),
		fmt.Sprintf("PHAS %g", cfg.Phase),
		fmt.Sprintf("HARM %d", cfg.Harmonic),
		fmt.Sprintf("ISRC %d", cfg.Input),
		fmt.Sprintf("SENS %d", cfg.Sensitivity),
		fmt.Sprintf("OFLT %d", cfg.TimeConstant),
		fmt.Sprintf("OFSL %d", cfg.Slope),
		fmt.Sprintf("RSLP %d", cfg.RefTrigger),
		fmt.Sprintf("FMOD %d", cfg.RefSource),
	)
	if cfg.Reserve != nil {
		cmds = append(cmds, fmt.Sprintf("RMOD %d", *cfg.Reserve))
	}
	for _, e := range cfg.Expand {
		cmds = append(cmds, fmt.Sprintf("OEXP %d,%g,%d", e.Channel, e.Offset, e.Factor))
	}
	return instrument.Commands(l.t, 0, cmds...)
}

// SetAmplitude sets the sine output amplitude in volts rms.
func (l *LockIn) SetAmplitude(v float64) error {
	return l.t.Command("SLVL %g", v)
}

// Frequency reads back the reference frequency.
func (l *LockIn) Frequency() (float64, error) {
	return instrument.Float(l.t, "FREQ?")
}

// Snap reads X and Y at the same instant.
func (l *LockIn) Snap() (x, y float64, err error) {
	v, err := instrument.Floats(l.t, "SNAP?1,2", 2)
	if err != nil {
		return 0, 0, err
	}
	return v[0], v[1], nil
}

var sensitivities = []float64{
	2e-9, 5e-9, 10e-9, 20e-9, 50e-9, 100e-9, 200e-9, 500e-9,
	1e-6, 2e-6, 5e-6, 10e-6, 20e-6, 50e-6, 100e-6, 200e-6, 500e-6,
	1e-3, 2e-3, 5e-3, 10e-3, 20e-3, 50e-3, 100e-3, 200e-3, 500e-3,
	1,
}

var timeConstants = []float64{
	10e-6, 30e-6, 100e-6, 300e-6,
	1e-3, 3e-3, 10e-3, 30e-3, 100e-3, 300e-3,
	1, 3, 10, 30, 100, 300, 1e3, 3e3, 10e3, 30e3,
}

// SensitivityVolts returns the full-scale voltage for a SENS code.
func SensitivityVolts(code int) (float64, error) {
	if code < 0 || code >= len(sensitivities) {
		return 0, fmt.Errorf("invalid sensitivity code %d (must be 0-%d)", code, len(sensitivities)-1)
	}
	return sensitivities[code], nil
}

// SensitivityCode returns the smallest SENS code whose full scale covers v.
func SensitivityCode(v float64) (int, error) {
	for i, s := range sensitivities {
		if v <= s*(1+1e-9) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("no sensitivity covers %g V", v)
}

// TimeConstantSeconds returns the time constant for an OFLT code.
func TimeConstantSeconds(code int) (float64, error) {
	if code < 0 || code >= len(timeConstants) {
		return 0, fmt.Errorf("invalid time constant code %d (must be 0-%d)", code, len(timeConstants)-1)
	}
	return timeConstants[code], nil
}
