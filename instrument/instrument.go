// Package instrument holds the transport abstraction shared by the
// instrument drivers in its subpackages.
package instrument

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gotmc/query"
)

// Transport is a message-based connection to one instrument. *gpib.Instrument
// and *lan.Conn implement it.
type Transport interface {
	Command(format string, a ...any) error
	Query(cmd string) (string, error)
}

var _ query.Querier = Transport(nil)

// Float queries cmd and parses the reply as a float64.
func Float(t Transport, cmd string) (float64, error) {
	v, err := query.Float64(trimmed{t}, cmd)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", cmd, err)
	}
	return v, nil
}

// Int queries cmd and parses the reply as an int.
func Int(t Transport, cmd string) (int, error) {
	v, err := query.Int(trimmed{t}, cmd)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", cmd, err)
	}
	return v, nil
}

// Floats queries cmd and parses a comma-separated list of want floats.
func Floats(t Transport, cmd string, want int) ([]float64, error) {
	s, err := t.Query(cmd)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cmd, err)
	}
	return ParseFloats(s, want)
}

// ParseFloats splits s on commas and parses every element.
func ParseFloats(s string, want int) ([]float64, error) {
	elems := strings.Split(strings.TrimSpace(s), ",")
	if want > 0 && len(elems) != want {
		return nil, fmt.Errorf("expected %d values, got %d in %q", want, len(elems), s)
	}
	vals := make([]float64, 0, len(elems))
	for _, e := range elems {
		f, err := strconv.ParseFloat(strings.TrimSpace(e), 64)
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", s, err)
		}
		vals = append(vals, f)
	}
	return vals, nil
}

// Commands sends each command in order, pausing for delay after each one.
func Commands(t Transport, delay time.Duration, cmds ...string) error {
	for _, cmd := range cmds {
		if err := t.Command(cmd); err != nil {
			return fmt.Errorf("%s: %w", cmd, err)
		}
		if delay > 0 {
			time.Sleep(delay)
		}
	}
	return nil
}

// OnOff renders b as the SCPI boolean keyword.
func OnOff(b bool) string {
	if b {
		return "ON"
	}
	return "OFF"
}

// trimmed strips terminators that query's parsers would choke on.
type trimmed struct{ Transport }

func (t trimmed) Query(cmd string) (string, error) {
	s, err := t.Transport.Query(cmd)
	return strings.TrimSpace(s), err
}
