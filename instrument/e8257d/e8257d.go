// Package e8257d drives a Keysight E8257D PSG analog signal generator.
package e8257d

import (
	"fmt"

	"github.com/gotmc/ppmslab/instrument"
)

// Config sets carrier and amplitude modulation.
type Config struct {
	FrequencyGHz float64
	PowerDBm     float64
	AM           bool
	AMSource     string // e.g. EXT1, INT
	AMType       string // LIN or EXP
	AMDepth      float64
}

// Generator is an E8257D on some transport.
type Generator struct {
	t instrument.Transport
}

// New returns a Generator using t.
func New(t instrument.Transport) *Generator { return &Generator{t: t} }

// Configure applies cfg. The RF output state is not changed.
func (g *Generator) Configure(cfg Config) error {
	if cfg.FrequencyGHz <= 0 || cfg.FrequencyGHz > 67 {
		return fmt.Errorf("frequency %g GHz out of range", cfg.FrequencyGHz)
	}
	cmds := []string{
		fmt.Sprintf("FREQ %g GHz", cfg.FrequencyGHz),
		fmt.Sprintf("POW %g dBm", cfg.PowerDBm),
		"AM:STATE " + instrument.OnOff(cfg.AM),
	}
	if cfg.AM {
		cmds = append(cmds,
			"AM:SOUR "+cfg.AMSource,
			"AM:TYPE "+cfg.AMType,
			fmt.Sprintf("AM:DEPT %g", cfg.AMDepth),
		)
	}
	return instrument.Commands(g.t, 0, cmds...)
}

// Frequency reads back the carrier frequency in Hz.
func (g *Generator) Frequency() (float64, error) {
	return instrument.Float(g.t, "FREQ?")
}

// Output switches the RF output.
func (g *Generator) Output(on bool) error {
	return g.t.Command("OUTP %s", instrument.OnOff(on))
}
