package sim

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
)

// Passive returns a device that accepts any command and answers *IDN?.
func Passive(name string) *Device {
	return &Device{
		Name: name,
		OnQuery: func(cmd string) (string, error) {
			if cmd == "*IDN?" {
				return "SIM," + strings.ToUpper(name) + ",0,1.0", nil
			}
			return "", fmt.Errorf("%s: unsupported query %q", name, cmd)
		},
	}
}

// Signal computes lock-in X and Y from the cryostat state.
type Signal func(temp, field, position float64) (x, y float64)

// HallSignal is an anomalous Hall response: X follows the out-of-plane
// field component and saturates, Y stays near zero.
func HallSignal(temp, field, position float64) (x, y float64) {
	m := math.Tanh(field / 200)
	return 5e-6 * m * math.Cos(position*math.Pi/180), 1e-8 * math.Sin(position*math.Pi/180)
}

// ResonanceSignal is a spin pumping response: a Lorentzian in |field|
// around 600 Oe, odd in field.
func ResonanceSignal(temp, field, position float64) (x, y float64) {
	const hr, dh = 600.0, 40.0
	d := math.Abs(field) - hr
	l := dh * dh / (d*d + dh*dh)
	sign := 1.0
	if field < 0 {
		sign = -1
	}
	return sign * 2e-6 * l, sign * 2e-6 * l * d / dh
}

// LockIn returns an SR830 whose SNAP?1,2 reading is sig applied to the
// current state of p. The answer is scaled by the amplitude set with SLVL.
func LockIn(p *PPMS, sig Signal) *Device {
	var mu sync.Mutex
	slvl, freq := 0.004, 1000.0
	d := &Device{Name: "sr830"}
	d.OnCommand = func(cmd string) error {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case strings.HasPrefix(cmd, "SLVL "):
			v, err := args(cmd, 1)
			if err != nil {
				return err
			}
			slvl = v[0]
		case strings.HasPrefix(cmd, "FREQ "):
			v, err := args(cmd, 1)
			if err != nil {
				return err
			}
			freq = v[0]
		}
		return nil
	}
	d.OnQuery = func(cmd string) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		switch cmd {
		case "SNAP?1,2":
			x, y := sig(p.State())
			return fmt.Sprintf("%g,%g", x*slvl/0.01, y*slvl/0.01), nil
		case "FREQ?":
			return strconv.FormatFloat(freq, 'f', 3, 64), nil
		}
		return "", fmt.Errorf("sr830: unsupported query %q", cmd)
	}
	return d
}

// SwitchingSample models a Hall bar whose magnetization flips when a current
// pulse exceeds Critical. It provides a B2901 and a 2182 that share that
// state.
type SwitchingSample struct {
	Critical float64 // A
	R0, RH   float64 // ohms

	mu      sync.Mutex
	m       float64
	bias    float64
	trigger float64
	output  bool
}

// NewSwitchingSample returns a sample magnetized up with a 6 mA critical
// current.
func NewSwitchingSample() *SwitchingSample {
	return &SwitchingSample{Critical: 6e-3, R0: 10, RH: 2, m: 1}
}

// Magnetization returns +1 or -1.
func (s *SwitchingSample) Magnetization() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m
}

// SMU returns the pulsed current source.
func (s *SwitchingSample) SMU() *Device {
	d := Passive("b2901")
	d.OnCommand = func(cmd string) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		switch {
		case strings.HasPrefix(cmd, ":SOUR:CURR:TRIG "):
			v, err := args(cmd, 1)
			if err != nil {
				return err
			}
			s.trigger = v[0]
		case strings.HasPrefix(cmd, ":SOUR:CURR "):
			v, err := args(cmd, 1)
			if err != nil {
				return err
			}
			s.bias = v[0]
		case cmd == ":OUTP ON":
			s.output = true
		case cmd == ":OUTP OFF":
			s.output = false
		case cmd == ":INIT":
			if !s.output {
				return fmt.Errorf("b2901: trigger with output off")
			}
			if math.Abs(s.trigger) >= s.Critical {
				s.m = math.Copysign(1, s.trigger)
			}
		}
		return nil
	}
	return d
}

// Meter returns the nanovoltmeter reading bias × (R0 + m·RH).
func (s *SwitchingSample) Meter() *Device {
	d := Passive("k2182")
	d.OnQuery = func(cmd string) (string, error) {
		if cmd != ":READ?" {
			return "", fmt.Errorf("k2182: unsupported query %q", cmd)
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		v := 0.0
		if s.output {
			v = s.bias * (s.R0 + s.m*s.RH)
		}
		return strconv.FormatFloat(v, 'E', 6, 64), nil
	}
	return d
}
