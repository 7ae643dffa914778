// Package sim emulates the cryostat and bench instruments well enough to
// dry-run a measurement sequence without hardware.
package sim

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gotmc/ppmslab/ppms"
)

// Device is a generic simulated instrument. Commands are recorded and passed
// to OnCommand; queries go to OnQuery.
type Device struct {
	Name      string
	OnCommand func(cmd string) error
	OnQuery   func(cmd string) (string, error)

	mu   sync.Mutex
	sent []string
}

func (d *Device) Command(format string, a ...any) error {
	cmd := format
	if a != nil {
		cmd = fmt.Sprintf(format, a...)
	}
	cmd = strings.TrimSpace(cmd)
	d.mu.Lock()
	d.sent = append(d.sent, cmd)
	d.mu.Unlock()
	if d.OnCommand != nil {
		return d.OnCommand(cmd)
	}
	return nil
}

func (d *Device) Query(cmd string) (string, error) {
	cmd = strings.TrimSpace(cmd)
	d.mu.Lock()
	d.sent = append(d.sent, cmd)
	d.mu.Unlock()
	if d.OnQuery == nil {
		return "", fmt.Errorf("%s: unsupported query %q", d.Name, cmd)
	}
	s, err := d.OnQuery(cmd)
	if err != nil {
		return "", err
	}
	return s + "\n", nil
}

// Sent returns every command and query received so far.
func (d *Device) Sent() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.sent...)
}

// Last returns the most recent command starting with prefix, or "".
func (d *Device) Last(prefix string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := len(d.sent) - 1; i >= 0; i-- {
		if strings.HasPrefix(d.sent[i], prefix) {
			return d.sent[i]
		}
	}
	return ""
}

// args parses the comma-separated numbers after a command keyword.
func args(cmd string, n int) ([]float64, error) {
	_, rest, ok := strings.Cut(cmd, " ")
	if !ok {
		return nil, fmt.Errorf("%q: missing arguments", cmd)
	}
	elems := strings.Split(rest, ",")
	if len(elems) < n {
		return nil, fmt.Errorf("%q: want %d arguments", cmd, n)
	}
	v := make([]float64, len(elems))
	for i, e := range elems {
		f, err := strconv.ParseFloat(strings.TrimSpace(e), 64)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", cmd, err)
		}
		v[i] = f
	}
	return v, nil
}

// ramp is one quantity approaching a setpoint at a fixed rate per second.
type ramp struct {
	value, target, rate float64
}

func (r *ramp) advance(dt float64) {
	step := r.rate * dt
	switch d := r.target - r.value; {
	case math.Abs(d) <= step || r.rate <= 0:
		r.value = r.target
	case d > 0:
		r.value += step
	default:
		r.value -= step
	}
}

func (r *ramp) arrived() bool { return r.value == r.target }

// PPMS emulates the cryostat. Its clock advances by Step on every GETDAT?
// query, so a sequence that polls once a second sees a realistic ramp
// regardless of how fast it actually runs.
type PPMS struct {
	Device
	Step time.Duration

	mu       sync.Mutex
	clock    time.Duration
	temp     ramp
	field    ramp
	position ramp
}

// NewPPMS returns a PPMS at 300 K, zero field and zero angle.
func NewPPMS() *PPMS {
	p := &PPMS{
		Step:     time.Second,
		temp:     ramp{value: 300, target: 300},
		field:    ramp{},
		position: ramp{},
	}
	p.Name = "ppms"
	p.OnCommand = p.command
	p.OnQuery = p.query
	return p
}

// State returns the instantaneous temperature, field and position.
func (p *PPMS) State() (temp, field, position float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.temp.value, p.field.value, p.position.value
}

func (p *PPMS) command(cmd string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	keyword, _, _ := strings.Cut(cmd, " ")
	switch keyword {
	case "TEMP":
		v, err := args(cmd, 2)
		if err != nil {
			return err
		}
		p.temp.target, p.temp.rate = v[0], v[1]/60
	case "FIELD":
		v, err := args(cmd, 2)
		if err != nil {
			return err
		}
		p.field.target, p.field.rate = v[0], v[1]
	case "MOVE":
		v, err := args(cmd, 3)
		if err != nil {
			return err
		}
		p.position.target, p.position.rate = v[0], ppms.SlowdownSpeed(int(v[2]))
	default:
		return fmt.Errorf("ppms: unknown command %q", cmd)
	}
	return nil
}

func (p *PPMS) query(cmd string) (string, error) {
	if !strings.HasPrefix(cmd, "GETDAT?") {
		return "", fmt.Errorf("ppms: unknown query %q", cmd)
	}
	mask, err := strconv.ParseUint(strings.TrimSpace(strings.TrimPrefix(cmd, "GETDAT?")), 10, 32)
	if err != nil {
		return "", fmt.Errorf("ppms: %q: %w", cmd, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	dt := p.Step.Seconds()
	p.clock += p.Step
	p.temp.advance(dt)
	p.field.advance(dt)
	p.position.advance(dt)

	var status uint32
	if p.temp.arrived() {
		status |= 1
	} else {
		status |= 2
	}
	if p.field.arrived() {
		status |= 4 << 4
	} else {
		status |= 6 << 4
	}
	if p.position.arrived() {
		status |= 1 << 12
	} else {
		status |= 5 << 12
	}

	out := []string{
		strconv.FormatUint(mask, 10),
		strconv.FormatFloat(p.clock.Seconds(), 'f', 3, 64),
	}
	for bit, v := range []float64{float64(status), p.temp.value, p.field.value, p.position.value} {
		if mask&(1<<bit) != 0 {
			out = append(out, strconv.FormatFloat(v, 'g', -1, 64))
		}
	}
	return strings.Join(out, ","), nil
}
