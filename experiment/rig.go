// Package experiment runs the measurement sequences: rotation scans of the
// anomalous Hall voltage, current-induced switching loops and spin pumping
// field sweeps. Each one drives the cryostat through a Rig and records into
// a ppmslab.Output.
package experiment

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gotmc/ppmslab"
	"github.com/gotmc/ppmslab/ppms"
)

// Timing holds the pauses a sequence makes between hardware steps.
type Timing struct {
	Settle ppmslab.SettleConfig
	// Pause separates consecutive setpoint changes.
	Pause time.Duration
	// Stabilize is the wait after a switching pulse before reading.
	Stabilize time.Duration
	// ReadInterval separates averaged nanovoltmeter readings.
	ReadInterval time.Duration
	// Sample separates rows during a continuous sweep.
	Sample time.Duration
	// SkipSoak drops the soak wait after a temperature change.
	SkipSoak bool
}

// DefaultTiming paces the hardware the way the lab has always run it.
var DefaultTiming = Timing{
	Settle:       ppmslab.DefaultSettle,
	Pause:        time.Second,
	Stabilize:    time.Second,
	ReadInterval: 10 * time.Millisecond,
	Sample:       time.Millisecond,
}

// Default ramp rates.
const (
	TemperatureRate = 12.0 // K/min
	FieldRate       = 200.0
	PositionRate    = 5.0 // deg/s
)

// Rig is the cryostat with blocking setpoint helpers.
type Rig struct {
	PPMS            *ppms.Client
	TemperatureRate float64 // K/min
	FieldRate       float64 // Oe/s
	PositionRate    float64 // deg/s
	Timing          Timing
}

// NewRig returns a Rig with default rates and timing.
func NewRig(c *ppms.Client) *Rig {
	return &Rig{
		PPMS:            c,
		TemperatureRate: TemperatureRate,
		FieldRate:       FieldRate,
		PositionRate:    PositionRate,
		Timing:          DefaultTiming,
	}
}

type reading[S fmt.Stringer] struct {
	value  float64
	status S
}

func (r reading[S]) String() string { return fmt.Sprintf("%g %s", r.value, r.status) }

// SetTemperature ramps at the rig's rate and blocks until the temperature
// is stable.
func (r *Rig) SetTemperature(ctx context.Context, kelvin float64) error {
	return r.SetTemperatureAt(ctx, kelvin, r.TemperatureRate)
}

// SetTemperatureAt is SetTemperature with an explicit rate in K/min.
func (r *Rig) SetTemperatureAt(ctx context.Context, kelvin, rate float64) error {
	log.Printf("setting temperature to %g K", kelvin)
	if err := r.PPMS.SetTemperature(kelvin, rate, ppms.FastSettle); err != nil {
		return err
	}
	_, err := ppmslab.Settle(ctx, "temperature", r.Timing.Settle,
		func() (reading[ppms.TemperatureStatus], error) {
			v, s, err := r.PPMS.Temperature()
			return reading[ppms.TemperatureStatus]{v, s}, err
		},
		func(t reading[ppms.TemperatureStatus]) bool {
			return ppms.TemperatureSettled(t.value, t.status)
		})
	if err != nil {
		return err
	}
	log.Printf("temperature set to %g K", kelvin)
	return nil
}

// SetField drives the magnet linearly in driven mode and blocks until it
// holds within tolerance of oe.
func (r *Rig) SetField(ctx context.Context, oe float64) error {
	log.Printf("setting field to %g Oe", oe)
	if err := r.PPMS.SetField(oe, r.FieldRate, ppms.Linear, ppms.Driven); err != nil {
		return err
	}
	return r.waitField(ctx, oe)
}

func (r *Rig) waitField(ctx context.Context, oe float64) error {
	_, err := ppmslab.Settle(ctx, "field", r.Timing.Settle,
		func() (reading[ppms.FieldStatus], error) {
			v, s, err := r.PPMS.Field()
			return reading[ppms.FieldStatus]{v, s}, err
		},
		func(f reading[ppms.FieldStatus]) bool {
			return ppms.FieldSettled(oe, f.value, f.status)
		})
	if err != nil {
		return err
	}
	log.Printf("field set to %g Oe", oe)
	return nil
}

// SetPosition rotates the sample and blocks until it stops at deg.
func (r *Rig) SetPosition(ctx context.Context, deg float64) error {
	log.Printf("setting position to %g deg", deg)
	if err := r.PPMS.SetPosition(deg, r.PositionRate); err != nil {
		return err
	}
	_, err := ppmslab.Settle(ctx, "position", r.Timing.Settle,
		func() (reading[ppms.PositionStatus], error) {
			v, s, err := r.PPMS.Position()
			return reading[ppms.PositionStatus]{v, s}, err
		},
		func(p reading[ppms.PositionStatus]) bool {
			return ppms.PositionSettled(deg, p.value, p.status)
		})
	if err != nil {
		return err
	}
	log.Printf("position set to %g deg", deg)
	return nil
}

// Wait counts d down, logging once a second.
func (r *Rig) Wait(ctx context.Context, d time.Duration) error {
	return ppmslab.Countdown(ctx, "waiting for temperature to stabilize", d)
}

// Pause sleeps for the rig's inter-step pause.
func (r *Rig) Pause(ctx context.Context) error {
	return ppmslab.Sleep(ctx, r.Timing.Pause)
}

// Prepare optionally brings the cryostat to temperature and waits out the
// soak time.
func (r *Rig) Prepare(ctx context.Context, t Thermal) error {
	if !t.Set {
		return nil
	}
	rate := t.Rate
	if rate == 0 {
		rate = r.TemperatureRate
	}
	if err := r.SetTemperatureAt(ctx, t.Kelvin, rate); err != nil {
		return err
	}
	if r.Timing.SkipSoak {
		log.Printf("skipping %s soak", t.Soak)
		return nil
	}
	return r.Wait(ctx, t.Soak)
}

// Thermal is the temperature step common to every sequence.
type Thermal struct {
	Kelvin float64       `yaml:"temperature"`
	Set    bool          `yaml:"set_temperature"`
	Rate   float64       `yaml:"temperature_rate"` // K/min; zero uses the rig's rate
	Soak   time.Duration `yaml:"wait"`
}
