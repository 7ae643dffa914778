package ppms

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gotmc/ppmslab/instrument/insttest"
)

func TestParseData(t *testing.T) {
	d, err := ParseData("7,1234.5,4113,300.01,-550.2\n")
	require.NoError(t, err)
	require.Equal(t, uint32(7), d.Mask)
	require.Equal(t, 1234.5, d.Timestamp)
	require.Equal(t, 300.01, d.Values[BitTemperature])
	require.Equal(t, -550.2, d.Values[BitField])
	// 4113 = 0x1011: temp 1, field 1, chamber 0, position 1
	require.Equal(t, TempStable, d.Status.Temperature())
	require.Equal(t, FieldPersistent, d.Status.Field())
	require.Equal(t, ChamberUnknown, d.Status.Chamber())
	require.Equal(t, PositionStopped, d.Status.Position())
}

func TestParseDataErrors(t *testing.T) {
	for _, s := range []string{
		"",
		"7",
		"7,1.0,1,2",
		"3.5,1.0,1",
		"-1,1.0",
		"3,1.0,abc,1",
	} {
		_, err := ParseData(s)
		require.Error(t, err, s)
	}
}

func TestReads(t *testing.T) {
	f := insttest.New(
		"GETDAT? 3", "3,10.0,1,180.002",
		"GETDAT? 5", "5,11.0,96,200.5",
		"GETDAT? 9", "9,12.0,20480,359.95",
		"GETDAT? 1", "1,13.0,4",
	)
	c := New(f)

	temp, ts, err := c.Temperature()
	require.NoError(t, err)
	require.Equal(t, 180.002, temp)
	require.Equal(t, TempStable, ts)

	field, fs, err := c.Field()
	require.NoError(t, err)
	require.Equal(t, 200.5, field)
	require.Equal(t, FieldCharging, fs)

	pos, ps, err := c.Position()
	require.NoError(t, err)
	require.Equal(t, 359.95, pos)
	require.Equal(t, PositionMoving, ps)

	w, err := c.Status()
	require.NoError(t, err)
	require.Equal(t, TemperatureStatus(4), w.Temperature())
}

func TestReadRejectsMissingBits(t *testing.T) {
	f := insttest.New("GETDAT? 3", "1,10.0,1")
	_, _, err := New(f).Temperature()
	require.Error(t, err)
}

func TestSetCommands(t *testing.T) {
	f := insttest.New()
	c := New(f)
	require.NoError(t, c.SetTemperature(300, 12, FastSettle))
	require.NoError(t, c.SetField(-500, 200, Linear, Driven))
	require.NoError(t, c.SetPosition(360, 2))
	require.Equal(t, []string{
		"TEMP 300,12,0",
		"FIELD -500,200,0,1",
		"MOVE 360,0,2",
	}, f.Commands())

	require.Error(t, c.SetTemperature(0.5, 10, FastSettle))
	require.Error(t, c.SetTemperature(300, 0, FastSettle))
	require.Error(t, c.SetField(0, 0, Linear, Driven))
	require.Error(t, c.SetPosition(0, -1))
}

func TestSlowdown(t *testing.T) {
	for speed, code := range map[float64]int{
		20:    0,
		10:    0,
		5:     1,
		4:     1,
		2:     2,
		1:     3,
		0.5:   4,
		1e-09: MaxSlowdown,
	} {
		require.Equal(t, code, SlowdownCode(speed), "%g deg/s", speed)
	}
	require.Equal(t, 10.0, SlowdownSpeed(0))
	require.Equal(t, 2.5, SlowdownSpeed(2))
	require.Equal(t, SlowdownSpeed(MaxSlowdown), SlowdownSpeed(99))

	f := insttest.New()
	require.NoError(t, New(f).SetPosition(90, 0.6))
	require.Equal(t, []string{"MOVE 90,0,4"}, f.Commands())
}

func TestSettledPredicates(t *testing.T) {
	require.True(t, TemperatureSettled(180, TempStable))
	require.False(t, TemperatureSettled(180, TempTracking))

	require.True(t, FieldSettled(550, 549.2, FieldHoldingDriven))
	require.False(t, FieldSettled(550, 548.9, FieldHoldingDriven))
	require.False(t, FieldSettled(550, 550, FieldCharging))

	require.True(t, PositionSettled(360, 359.95, PositionStopped))
	require.False(t, PositionSettled(360, 359.8, PositionStopped))
	require.False(t, PositionSettled(360, 360, PositionMoving))
}

func TestStatusStrings(t *testing.T) {
	require.Equal(t, "holding (driven)", FieldHoldingDriven.String())
	require.Equal(t, "code 12", TemperatureStatus(12).String())
}
