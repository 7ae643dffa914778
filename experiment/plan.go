package experiment

import (
	"context"
	"errors"
	"log"

	"go.uber.org/multierr"

	"github.com/gotmc/ppmslab"
)

// Plan lists the values a sequence is repeated over. An empty list keeps
// the value from the base configuration.
type Plan struct {
	Harmonics      []int     `yaml:"harmonics"`
	FrequenciesGHz []float64 `yaml:"frequencies_ghz"`
	Temperatures   []float64 `yaml:"temperatures"`
	Fields         []float64 `yaml:"fields"`
}

// Point is one combination of a Plan.
type Point struct {
	Harmonic     int
	FrequencyGHz float64
	Temperature  float64
	Field        float64
}

// Points expands the plan into every combination, harmonic outermost and
// field innermost.
func (p Plan) Points(base Point) []Point {
	hs := p.Harmonics
	if len(hs) == 0 {
		hs = []int{base.Harmonic}
	}
	fs := orDefault(p.FrequenciesGHz, base.FrequencyGHz)
	ts := orDefault(p.Temperatures, base.Temperature)
	bs := orDefault(p.Fields, base.Field)

	var out []Point
	for _, h := range hs {
		for _, f := range fs {
			for _, t := range ts {
				for _, b := range bs {
					out = append(out, Point{Harmonic: h, FrequencyGHz: f, Temperature: t, Field: b})
				}
			}
		}
	}
	return out
}

func orDefault(v []float64, def float64) []float64 {
	if len(v) == 0 {
		return []float64{def}
	}
	return v
}

// RunPlan calls run for every point in order. A run whose sweep aborted
// does not stop the plan; any other error, or cancellation, does. All
// errors are returned combined.
func RunPlan(ctx context.Context, points []Point, run func(context.Context, Point) error) error {
	var errs error
	for i, pt := range points {
		log.Printf("plan point %d/%d: %+v", i+1, len(points), pt)
		err := run(ctx, pt)
		if err == nil {
			continue
		}
		errs = multierr.Append(errs, err)
		if !errors.Is(err, ppmslab.ErrSweepAborted) || ctx.Err() != nil {
			return errs
		}
	}
	return errs
}

// Rotations runs the rotation scan at every point of plan.
func (r *Rotation) Rotations(ctx context.Context, base RotationConfig, plan Plan) error {
	pts := plan.Points(Point{Harmonic: base.Harmonic, Temperature: base.Kelvin, Field: base.Field})
	return RunPlan(ctx, pts, func(ctx context.Context, pt Point) error {
		c := base
		c.Harmonic, c.Kelvin, c.Field = pt.Harmonic, pt.Temperature, pt.Field
		return r.Run(ctx, c)
	})
}

// Loops runs the switching loop at every temperature and field of plan.
func (s *Switching) Loops(ctx context.Context, base SwitchingConfig, plan Plan) error {
	pts := plan.Points(Point{Temperature: base.Kelvin, Field: base.Field})
	return RunPlan(ctx, pts, func(ctx context.Context, pt Point) error {
		c := base
		c.Kelvin, c.Field = pt.Temperature, pt.Field
		return s.Run(ctx, c)
	})
}

// Sweeps runs the spin pumping sweep at every point of plan.
func (s *SpinPumping) Sweeps(ctx context.Context, base SpinPumpingConfig, plan Plan) error {
	pts := plan.Points(Point{
		Harmonic:     base.Harmonic,
		FrequencyGHz: base.FrequencyGHz,
		Temperature:  base.Kelvin,
		Field:        base.Field,
	})
	return RunPlan(ctx, pts, func(ctx context.Context, pt Point) error {
		c := base
		c.Harmonic, c.FrequencyGHz, c.Kelvin, c.Field = pt.Harmonic, pt.FrequencyGHz, pt.Temperature, pt.Field
		return s.Run(ctx, c)
	})
}
