package experiment

import (
	"context"
	"fmt"
	"log"

	"go.uber.org/multierr"

	"github.com/gotmc/ppmslab"
	"github.com/gotmc/ppmslab/instrument/e8257d"
	"github.com/gotmc/ppmslab/instrument/sr830"
	"github.com/gotmc/ppmslab/ppms"
	"gonum.org/v1/plot/vg"
)

// SpinPumpingConfig describes one field sweep under microwave excitation.
type SpinPumpingConfig struct {
	Prefix       string  `yaml:"prefix"`
	Thermal      `yaml:",inline"`
	FrequencyGHz float64 `yaml:"frequency_ghz"`
	Field        float64 `yaml:"field"`     // Oe, swept to -Field
	ScanRate     float64 `yaml:"scan_rate"` // Oe/s
	Harmonic     int     `yaml:"harmonic"`
	Sensitivity  *int    `yaml:"sensitivity"`
	PowerDBm     float64 `yaml:"power_dbm"` // zero means 20
}

// spinPumpSensitivity is the SENS code the lab uses for each harmonic.
var spinPumpSensitivity = map[int]int{1: 17, 2: 11}

// Name returns the file stem of the sweep.
func (c SpinPumpingConfig) Name() string {
	return fmt.Sprintf("%stemperature_%gK_field_%gOe_%gGHz_SP", c.Prefix, c.Kelvin, c.Field, c.FrequencyGHz)
}

func (c *SpinPumpingConfig) validate() error {
	if _, ok := spinPumpSensitivity[c.Harmonic]; !ok {
		return fmt.Errorf("spin pumping: harmonic %d not supported (must be 1 or 2)", c.Harmonic)
	}
	if c.ScanRate <= 0 {
		return fmt.Errorf("spin pumping: scan rate %g Oe/s out of range", c.ScanRate)
	}
	if c.Field == 0 {
		return fmt.Errorf("spin pumping: zero sweep field")
	}
	if c.PowerDBm == 0 {
		c.PowerDBm = 20
	}
	return nil
}

// SpinPumping sweeps the field through ferromagnetic resonance while an
// amplitude modulated microwave drives the sample and the lock-in detects
// the pumped voltage at the modulation frequency.
type SpinPumping struct {
	Rig    *Rig
	LockIn *sr830.LockIn
	RF     *e8257d.Generator
	Out    *ppmslab.Output
}

func (s *SpinPumping) configure(c SpinPumpingConfig) error {
	phase := 0.0
	if c.Harmonic == 2 {
		phase = 90
	}
	sens := spinPumpSensitivity[c.Harmonic]
	if c.Sensitivity != nil {
		sens = *c.Sensitivity
	}
	reserve := sr830.LowNoise
	err := s.LockIn.Configure(sr830.Config{
		Reset:        true,
		Frequency:    referenceFrequency,
		Amplitude:    0.01,
		Phase:        phase,
		Harmonic:     c.Harmonic,
		Input:        sr830.InputAminusB,
		Sensitivity:  sens,
		TimeConstant: 8,
		Slope:        3,
		RefTrigger:   sr830.TriggerSine,
		RefSource:    sr830.InternalReference,
		Reserve:      &reserve,
		Expand: []sr830.Expand{
			{Channel: 1, Offset: 0, Factor: 2},
			{Channel: 2, Offset: 0, Factor: 2},
		},
	})
	if err != nil {
		return fmt.Errorf("lock-in: %w", err)
	}
	err = s.RF.Configure(e8257d.Config{
		FrequencyGHz: c.FrequencyGHz,
		PowerDBm:     c.PowerDBm,
		AM:           true,
		AMSource:     "EXT1",
		AMType:       "LIN",
		AMDepth:      100,
	})
	if err != nil {
		return fmt.Errorf("signal generator: %w", err)
	}
	return nil
}

// Run sweeps the field from Field to -Field and saves what was recorded.
// The lock-in reference amplitude doubles as the AM drive, so it is raised
// only while the RF is on.
func (s *SpinPumping) Run(ctx context.Context, c SpinPumpingConfig) (err error) {
	if err := c.validate(); err != nil {
		return err
	}
	if err := s.configure(c); err != nil {
		return err
	}
	if err := s.Rig.Prepare(ctx, c.Thermal); err != nil {
		return err
	}
	if err := s.Rig.SetField(ctx, c.Field); err != nil {
		return err
	}

	if err := s.RF.Output(true); err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, s.LockIn.SetAmplitude(0.01), s.RF.Output(false))
	}()
	if err := s.LockIn.SetAmplitude(1); err != nil {
		return err
	}
	if err := ppmslab.Sleep(ctx, s.Rig.Timing.Pause/2); err != nil {
		return err
	}

	end := -c.Field
	log.Printf("sweeping field to %g Oe at %g Oe/s", end, c.ScanRate)
	if err := s.Rig.PPMS.SetField(end, c.ScanRate, ppms.Linear, ppms.Driven); err != nil {
		return err
	}
	ds := ppmslab.NewDataset(c.Name(), "field (Oe)", "voltage_x (V)", "voltage_y (V)")
	sweepErr := ppmslab.Sweep(ctx, ppmslab.SweepConfig{Interval: s.Rig.Timing.Sample}, s.Out.Recorder(ds),
		func() ([]float64, bool, error) {
			x, y, err := s.LockIn.Snap()
			if err != nil {
				return nil, false, err
			}
			h, st, err := s.Rig.PPMS.Field()
			if err != nil {
				return nil, false, err
			}
			return []float64{h, x, y}, ppms.FieldSettled(end, h, st), nil
		})
	err = multierr.Append(sweepErr, s.Out.Save(ds, &ppmslab.PlotSpec{
		X:     "field (Oe)",
		Y:     []string{"voltage_x (V)", "voltage_y (V)"},
		Width: 5 * vg.Inch,
	}, sweepErr))
	if err == nil {
		log.Printf("spin pumping at %g K %g GHz completed", c.Kelvin, c.FrequencyGHz)
	}
	return err
}
