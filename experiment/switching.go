package experiment

import (
	"context"
	"fmt"
	"log"

	"go.uber.org/multierr"

	"github.com/gotmc/ppmslab"
	"github.com/gotmc/ppmslab/instrument/b2901"
	"github.com/gotmc/ppmslab/instrument/k2182"
)

// SwitchingConfig describes one current-induced switching loop.
type SwitchingConfig struct {
	Prefix          string  `yaml:"prefix"`
	Thermal         `yaml:",inline"`
	SaturationField float64 `yaml:"saturation_field"` // Oe
	Field           float64 `yaml:"field"`
	// Currents are the pulse amplitudes in mA, in order.
	Currents []float64 `yaml:"currents"`
	// Loop generates Currents when none are listed.
	Loop       *CurrentLoop `yaml:"loop"`
	Bias       float64      `yaml:"bias"`       // mA between pulses
	Width      float64      `yaml:"width"`      // ms
	Compliance float64      `yaml:"compliance"` // V, zero means 42
	Readings   int          `yaml:"readings"`   // averaged per point, zero means 10
}

// CurrentLoop is a hysteresis loop 0→Max→-Max→Max in mA with Points
// currents per leg.
type CurrentLoop struct {
	Max    float64 `yaml:"max"`
	Points int     `yaml:"points"`
}

// Steps returns Currents, or the currents of Loop when none are listed.
func (c SwitchingConfig) Steps() []float64 {
	if len(c.Currents) == 0 && c.Loop != nil && c.Loop.Points > 1 {
		return ppmslab.HysteresisLoop(c.Loop.Max, c.Loop.Points)
	}
	return c.Currents
}

// Name returns the file stem, keyed by the last current of the loop.
func (c SwitchingConfig) Name() string {
	last := 0.0
	if steps := c.Steps(); len(steps) > 0 {
		last = steps[len(steps)-1]
	}
	return fmt.Sprintf("%stemperature_%gK_field_%gOe_max_current_%gmA", c.Prefix, c.Kelvin, c.Field, last)
}

func (c *SwitchingConfig) validate() error {
	if l := c.Loop; len(c.Currents) == 0 && l != nil && (l.Max == 0 || l.Points < 2) {
		return fmt.Errorf("switching: loop needs a nonzero max and at least 2 points")
	}
	c.Currents = c.Steps()
	if len(c.Currents) == 0 {
		return fmt.Errorf("switching: no currents")
	}
	if c.Bias == 0 {
		return fmt.Errorf("switching: zero bias current")
	}
	if c.Compliance == 0 {
		c.Compliance = 42
	}
	if c.Readings == 0 {
		c.Readings = 10
	}
	return nil
}

// Switching fires current pulses from a B2901 and measures the Hall
// resistance with a 2182 at the bias current between pulses.
type Switching struct {
	Rig   *Rig
	SMU   *b2901.SMU
	Meter *k2182.Meter
	Out   *ppmslab.Output
}

const meterRange = 10.0 // V

func (s *Switching) configure(c SwitchingConfig) error {
	if err := s.Meter.Reset(); err != nil {
		return fmt.Errorf("nanovoltmeter: %w", err)
	}
	if err := s.SMU.Reset(); err != nil {
		return fmt.Errorf("source meter: %w", err)
	}
	err := s.SMU.ConfigurePulse(b2901.Pulse{
		Bias:       c.Bias * 1e-3,
		Width:      c.Width * 1e-3,
		Compliance: c.Compliance,
	})
	if err != nil {
		return fmt.Errorf("source meter: %w", err)
	}
	if err := s.Meter.ConfigureDCVolts(meterRange); err != nil {
		return fmt.Errorf("nanovoltmeter: %w", err)
	}
	return nil
}

// Run saturates the sample, then steps through the pulse currents. Points
// gathered before a failure are still saved.
func (s *Switching) Run(ctx context.Context, c SwitchingConfig) (err error) {
	if err := c.validate(); err != nil {
		return err
	}
	if err := s.configure(c); err != nil {
		return err
	}
	if err := s.Rig.Prepare(ctx, c.Thermal); err != nil {
		return err
	}
	if err := s.Rig.SetField(ctx, c.SaturationField); err != nil {
		return err
	}
	if err := ppmslab.Sleep(ctx, 2*s.Rig.Timing.Pause); err != nil {
		return err
	}
	if err := s.Rig.SetField(ctx, c.Field); err != nil {
		return err
	}

	if err := s.SMU.Output(true); err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, s.SMU.Output(false))
	}()
	if err := s.Rig.Pause(ctx); err != nil {
		return err
	}
	if err := s.testPulses(ctx); err != nil {
		return err
	}

	log.Printf("scanning current over %d points", len(c.Currents))
	bias := c.Bias * 1e-3
	ds := ppmslab.NewDataset(c.Name(), "I", "V", "R")
	i := 0
	sweepErr := ppmslab.Sweep(ctx, ppmslab.SweepConfig{}, s.Out.Recorder(ds),
		func() ([]float64, bool, error) {
			current := c.Currents[i]
			log.Printf("applying pulsed current %g mA", current)
			v, err := s.pulse(ctx, current, c.Readings)
			if err != nil {
				return nil, false, err
			}
			i++
			return []float64{current, v, v / bias}, i == len(c.Currents), nil
		})
	err = multierr.Append(sweepErr, s.Out.Save(ds, &ppmslab.PlotSpec{
		X: "I",
		Y: []string{"R"},
	}, sweepErr))
	if err == nil {
		log.Printf("switching at %g K %g Oe completed", c.Kelvin, c.Field)
	}
	return err
}

// testPulses fires three zero-amplitude pulses to settle the source meter
// before the loop starts.
func (s *Switching) testPulses(ctx context.Context) error {
	log.Printf("test current")
	for n := 0; n < 3; n++ {
		if _, err := s.pulse(ctx, 0, 1); err != nil {
			return fmt.Errorf("test pulse: %w", err)
		}
	}
	return nil
}

// pulse fires one pulse of ma milliamps and returns the mean of n readings.
func (s *Switching) pulse(ctx context.Context, ma float64, n int) (float64, error) {
	if err := s.SMU.SetTriggeredCurrent(ma * 1e-3); err != nil {
		return 0, err
	}
	if err := s.SMU.Initiate(); err != nil {
		return 0, err
	}
	if err := ppmslab.Sleep(ctx, s.Rig.Timing.Stabilize); err != nil {
		return 0, err
	}
	return s.Meter.ReadAverage(n, s.Rig.Timing.ReadInterval)
}
