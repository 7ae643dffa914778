// Package k2182 drives a Keithley 2182A nanovoltmeter.
package k2182

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gotmc/ppmslab/instrument"
)

// Meter is a 2182A on some transport.
type Meter struct {
	t instrument.Transport
}

// New returns a Meter using t.
func New(t instrument.Transport) *Meter { return &Meter{t: t} }

// Reset restores defaults.
func (m *Meter) Reset() error { return m.t.Command("*RST") }

// ConfigureDCVolts selects DC voltage on channel 1 with the given range in
// volts.
func (m *Meter) ConfigureDCVolts(rng float64) error {
	return instrument.Commands(m.t, 0,
		":SENS:FUNC 'VOLT:DC'",
		fmt.Sprintf(":SENS:VOLT:DC:RANGE %g", rng),
	)
}

// Read triggers and returns one reading.
func (m *Meter) Read() (float64, error) {
	s, err := m.t.Query(":READ?")
	if err != nil {
		return 0, fmt.Errorf(":READ?: %w", err)
	}
	return ParseReading(s)
}

// ReadAverage returns the mean of n readings taken interval apart.
func (m *Meter) ReadAverage(n int, interval time.Duration) (float64, error) {
	if n < 1 {
		return 0, fmt.Errorf("invalid reading count %d", n)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		v, err := m.Read()
		if err != nil {
			return 0, err
		}
		sum += v
		time.Sleep(interval)
	}
	return sum / float64(n), nil
}

// garbled maps characters that arrive with a flipped bit on marginal GPIB
// cabling back to what the meter sent.
var garbled = strings.NewReplacer(
	"=", "-",
	";", "+",
	"U", "E",
	">", ".",
	"\x1a", "",
)

// ParseReading decodes a reading, repairing known character corruption.
func ParseReading(s string) (float64, error) {
	clean := strings.TrimSpace(garbled.Replace(s))
	v, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return 0, fmt.Errorf("parse reading %q: %w", s, err)
	}
	return v, nil
}
