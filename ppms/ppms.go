// Package ppms talks to a Quantum Design PPMS or DynaCool through its remote
// command set. The same commands are accepted on the system's GPIB port and
// by the MultiVu remote server over TCP.
package ppms

import (
	"fmt"
	"math"
	"math/bits"
	"strconv"

	"github.com/gotmc/ppmslab/instrument"
)

// GETDAT? selection bits.
const (
	BitStatus      = 1 << 0
	BitTemperature = 1 << 1
	BitField       = 1 << 2
	BitPosition    = 1 << 3
)

// TempApproach selects how the temperature controller reaches a setpoint.
type TempApproach int

const (
	FastSettle  TempApproach = 0
	NoOvershoot TempApproach = 1
)

// FieldApproach selects how the magnet reaches a setpoint.
type FieldApproach int

const (
	Linear           FieldApproach = 0
	FieldNoOvershoot FieldApproach = 1
	Oscillate        FieldApproach = 2
)

// MagnetMode selects whether the magnet is left persistent or driven.
type MagnetMode int

const (
	Persistent MagnetMode = 0
	Driven     MagnetMode = 1
)

// Settling tolerances used by Settled* below.
const (
	FieldTolerance    = 1.0 // Oe
	PositionTolerance = 0.1 // degrees
)

// Client issues PPMS commands over t. It keeps no state of its own.
type Client struct {
	t instrument.Transport
}

// New returns a Client using t.
func New(t instrument.Transport) *Client { return &Client{t: t} }

// SetTemperature starts a temperature change. rate is in K/min.
func (c *Client) SetTemperature(kelvin, rate float64, approach TempApproach) error {
	if kelvin < 1.7 || kelvin > 400 {
		return fmt.Errorf("temperature setpoint %g K out of range", kelvin)
	}
	if rate <= 0 || rate > 20 {
		return fmt.Errorf("temperature rate %g K/min out of range", rate)
	}
	return c.t.Command("TEMP %g,%g,%d", kelvin, rate, approach)
}

// SetField starts a field change. rate is in Oe/s.
func (c *Client) SetField(oe, rate float64, approach FieldApproach, mode MagnetMode) error {
	if rate <= 0 {
		return fmt.Errorf("field rate %g Oe/s out of range", rate)
	}
	return c.t.Command("FIELD %g,%g,%d,%d", oe, rate, approach, mode)
}

// RotatorFullSpeed is the rotator speed in degrees/s at slowdown code 0.
// Each further code halves it.
var RotatorFullSpeed = 10.0

// MaxSlowdown is the largest slowdown code MOVE accepts.
const MaxSlowdown = 14

// SlowdownCode returns the MOVE slowdown code whose speed is nearest speed
// on a log scale.
func SlowdownCode(speed float64) int {
	code := int(math.Round(math.Log2(RotatorFullSpeed / speed)))
	return min(max(code, 0), MaxSlowdown)
}

// SlowdownSpeed returns the rotator speed in degrees/s for a slowdown code.
func SlowdownSpeed(code int) float64 {
	return RotatorFullSpeed / math.Exp2(float64(min(max(code, 0), MaxSlowdown)))
}

// SetPosition moves the rotator. speed is in degrees/s and is sent as the
// nearest slowdown code.
func (c *Client) SetPosition(deg, speed float64) error {
	if speed <= 0 {
		return fmt.Errorf("rotator speed %g deg/s out of range", speed)
	}
	return c.t.Command("MOVE %g,0,%d", deg, SlowdownCode(speed))
}

// Temperature returns the sample temperature in K.
func (c *Client) Temperature() (float64, TemperatureStatus, error) {
	v, w, err := c.read(BitTemperature)
	return v, w.Temperature(), err
}

// Field returns the magnetic field in Oe.
func (c *Client) Field() (float64, FieldStatus, error) {
	v, w, err := c.read(BitField)
	return v, w.Field(), err
}

// Position returns the rotator position in degrees.
func (c *Client) Position() (float64, PositionStatus, error) {
	v, w, err := c.read(BitPosition)
	return v, w.Position(), err
}

// Status returns the full status word.
func (c *Client) Status() (StatusWord, error) {
	d, err := c.GetData(BitStatus)
	if err != nil {
		return 0, err
	}
	return d.Status, nil
}

func (c *Client) read(bit uint32) (float64, StatusWord, error) {
	d, err := c.GetData(BitStatus | bit)
	if err != nil {
		return 0, 0, err
	}
	return d.Values[bit], d.Status, nil
}

// Data is one GETDAT? reply.
type Data struct {
	Mask      uint32
	Timestamp float64 // seconds since system start
	Status    StatusWord
	Values    map[uint32]float64 // keyed by selection bit
}

// GetData queries the quantities selected by mask.
func (c *Client) GetData(mask uint32) (Data, error) {
	cmd := "GETDAT? " + strconv.FormatUint(uint64(mask), 10)
	s, err := c.t.Query(cmd)
	if err != nil {
		return Data{}, fmt.Errorf("%s: %w", cmd, err)
	}
	d, err := ParseData(s)
	if err != nil {
		return Data{}, err
	}
	if d.Mask&mask != mask {
		return Data{}, fmt.Errorf("%s: reply mask %d lacks requested bits", cmd, d.Mask)
	}
	return d, nil
}

// ParseData decodes "mask,timestamp,v…" with one value per set bit in
// ascending bit order.
func ParseData(s string) (Data, error) {
	v, err := instrument.ParseFloats(s, 0)
	if err != nil {
		return Data{}, err
	}
	if len(v) < 2 || v[0] < 0 || v[0] != math.Trunc(v[0]) {
		return Data{}, fmt.Errorf("malformed GETDAT reply %q", s)
	}
	d := Data{
		Mask:      uint32(v[0]),
		Timestamp: v[1],
		Values:    map[uint32]float64{},
	}
	if got, want := len(v)-2, bits.OnesCount32(d.Mask); got != want {
		return Data{}, fmt.Errorf("GETDAT reply %q has %d values for mask %d", s, got, d.Mask)
	}
	i := 2
	for bit := uint32(1); bit != 0 && bit <= d.Mask; bit <<= 1 {
		if d.Mask&bit == 0 {
			continue
		}
		d.Values[bit] = v[i]
		i++
	}
	if d.Mask&BitStatus != 0 {
		d.Status = StatusWord(d.Values[BitStatus])
	}
	return d, nil
}

// TemperatureSettled reports whether the controller has declared the
// setpoint stable.
func TemperatureSettled(_ float64, s TemperatureStatus) bool {
	return s == TempStable
}

// FieldSettled reports whether the magnet is holding at target.
func FieldSettled(target, field float64, s FieldStatus) bool {
	return s == FieldHoldingDriven && math.Abs(field-target) <= FieldTolerance
}

// PositionSettled reports whether the rotator has stopped at target.
func PositionSettled(target, pos float64, s PositionStatus) bool {
	return s == PositionStopped && math.Abs(pos-target) <= PositionTolerance
}
