package experiment

import (
	"context"
	"errors"
	"fmt"
	"log"

	"go.uber.org/multierr"

	"github.com/gotmc/ppmslab"
	"github.com/gotmc/ppmslab/instrument/k6221"
	"github.com/gotmc/ppmslab/instrument/sr830"
	"github.com/gotmc/ppmslab/ppms"
	"gonum.org/v1/plot/vg"
)

// RotationConfig describes one rotator scan at fixed temperature and field.
type RotationConfig struct {
	Prefix   string  `yaml:"prefix"`
	Thermal  `yaml:",inline"`
	Field    float64 `yaml:"field"`     // Oe
	ScanRate float64 `yaml:"scan_rate"` // deg/s
	Harmonic int     `yaml:"harmonic"`
	From     float64 `yaml:"from"` // deg
	To       float64 `yaml:"to"`
	// Sensitivity overrides the lock-in SENS code chosen for the harmonic.
	Sensitivity *int    `yaml:"sensitivity"`
	Frequency   float64 `yaml:"frequency"` // Hz, zero means 1713
	Current     float64 `yaml:"current"`   // A peak, zero means 5 mA
}

const (
	referenceFrequency = 1713.0
	rotationCurrent    = 5e-3
)

// rotationSensitivity is the SENS code the lab uses for each harmonic.
var rotationSensitivity = map[int]int{1: 26, 2: 13}

// Rotation measures the lock-in voltage while rotating the sample in a
// fixed field, driven by a 6221 sine whose phase marker references the
// lock-in.
type Rotation struct {
	Rig    *Rig
	LockIn *sr830.LockIn
	Source *k6221.Source
	Out    *ppmslab.Output
}

// Name returns the file stem of the scan from one angle to another.
func (c RotationConfig) Name(from, to float64) string {
	return fmt.Sprintf("%s_%gto%gdeg", c.LoopName(), from, to)
}

// LoopName returns the file stem of the combined round trip.
func (c RotationConfig) LoopName() string {
	return fmt.Sprintf("%stemperature_%gK_field_%gOe_%dharm",
		c.Prefix, c.Kelvin, c.Field, c.Harmonic)
}

var rotationColumns = []string{"position (degree)", "voltage_x (V)", "voltage_y (V)"}

var rotationPlot = &ppmslab.PlotSpec{
	X:     "position (degree)",
	Y:     []string{"voltage_x (V)", "voltage_y (V)"},
	Width: 5 * vg.Inch,
}

func (c *RotationConfig) validate() error {
	if _, ok := rotationSensitivity[c.Harmonic]; !ok {
		return fmt.Errorf("rotation: harmonic %d not supported (must be 1 or 2)", c.Harmonic)
	}
	if c.ScanRate <= 0 {
		return fmt.Errorf("rotation: scan rate %g deg/s out of range", c.ScanRate)
	}
	if c.From == c.To {
		return fmt.Errorf("rotation: empty scan range %g", c.From)
	}
	if c.Frequency == 0 {
		c.Frequency = referenceFrequency
	}
	if c.Current == 0 {
		c.Current = rotationCurrent
	}
	return nil
}

func (r *Rotation) configure(c RotationConfig) error {
	phase := 0.0
	if c.Harmonic == 2 {
		phase = 90
	}
	sens := rotationSensitivity[c.Harmonic]
	if c.Sensitivity != nil {
		sens = *c.Sensitivity
	}
	err := r.LockIn.Configure(sr830.Config{
		Frequency:    c.Frequency,
		Amplitude:    0.01,
		Phase:        phase,
		Harmonic:     c.Harmonic,
		Input:        sr830.InputAminusB,
		Sensitivity:  sens,
		TimeConstant: 8,
		Slope:        3,
		RefTrigger:   sr830.TriggerTTLRise,
		RefSource:    sr830.ExternalReference,
	})
	if err != nil {
		return fmt.Errorf("lock-in: %w", err)
	}
	if err := r.Source.Reset(); err != nil {
		return fmt.Errorf("current source: %w", err)
	}
	err = r.Source.ConfigureWave(k6221.Wave{
		Amplitude:   c.Current,
		Frequency:   c.Frequency,
		PhaseMarker: true,
		MarkerLevel: 0,
		MarkerLine:  3,
	})
	if err != nil {
		return fmt.Errorf("current source: %w", err)
	}
	return nil
}

// Run performs the scan From→To and back To→From, saving each direction to
// its own file and the round trip to LoopName. A failed sweep keeps its
// points and the sequence carries on; the sweep errors are returned
// together at the end.
func (r *Rotation) Run(ctx context.Context, c RotationConfig) (err error) {
	if err := c.validate(); err != nil {
		return err
	}
	if err := r.configure(c); err != nil {
		return err
	}
	if err := r.Rig.Prepare(ctx, c.Thermal); err != nil {
		return err
	}
	if err := r.Source.Arm(); err != nil {
		return err
	}
	if err := r.Source.Start(); err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, r.Source.Output(false))
		if err == nil {
			log.Printf("rotation at %g K %g Oe completed", c.Kelvin, c.Field)
		}
	}()

	loop := ppmslab.NewDataset(c.LoopName(), rotationColumns...)
	for _, leg := range [][2]float64{{c.From, c.To}, {c.To, c.From}} {
		if e := r.Rig.Pause(ctx); e != nil {
			return multierr.Append(err, e)
		}
		ds, e := r.scan(ctx, c, leg[0], leg[1])
		if ds != nil {
			err = multierr.Append(err, loop.Merge(ds))
		}
		if e != nil && (!errors.Is(e, ppmslab.ErrSweepAborted) || ctx.Err() != nil) {
			return multierr.Append(err, e)
		}
		err = multierr.Append(err, e)
	}
	return multierr.Append(err, r.Out.Write(loop, rotationPlot))
}

// scan runs one leg. The dataset is nil if the sweep never started.
func (r *Rotation) scan(ctx context.Context, c RotationConfig, from, to float64) (*ppmslab.Dataset, error) {
	log.Printf("scanning position %g to %g deg", from, to)
	if err := r.Rig.SetPosition(ctx, from); err != nil {
		return nil, err
	}
	if err := r.Rig.Pause(ctx); err != nil {
		return nil, err
	}
	if err := r.Rig.SetField(ctx, c.Field); err != nil {
		return nil, err
	}
	if err := r.Rig.Pause(ctx); err != nil {
		return nil, err
	}
	if err := r.Rig.PPMS.SetPosition(to, c.ScanRate); err != nil {
		return nil, err
	}

	ds := ppmslab.NewDataset(c.Name(from, to), rotationColumns...)
	sweepErr := ppmslab.Sweep(ctx, ppmslab.SweepConfig{Interval: r.Rig.Timing.Sample}, r.Out.Recorder(ds),
		func() ([]float64, bool, error) {
			x, y, err := r.LockIn.Snap()
			if err != nil {
				return nil, false, err
			}
			pos, st, err := r.Rig.PPMS.Position()
			if err != nil {
				return nil, false, err
			}
			return []float64{pos, x, y}, ppms.PositionSettled(to, pos, st), nil
		})
	return ds, multierr.Append(sweepErr, r.Out.Save(ds, rotationPlot, sweepErr))
}
