package sim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gotmc/ppmslab/instrument/b2901"
	"github.com/gotmc/ppmslab/instrument/k2182"
	"github.com/gotmc/ppmslab/instrument/sr830"
	"github.com/gotmc/ppmslab/ppms"
)

func TestPPMSRamps(t *testing.T) {
	p := NewPPMS()
	c := ppms.New(p)

	require.NoError(t, c.SetField(500, 200, ppms.Linear, ppms.Driven))
	f, st, err := c.Field()
	require.NoError(t, err)
	require.Equal(t, 200.0, f)
	require.Equal(t, ppms.FieldCharging, st)

	f, _, err = c.Field()
	require.NoError(t, err)
	require.Equal(t, 400.0, f)

	f, st, err = c.Field()
	require.NoError(t, err)
	require.Equal(t, 500.0, f)
	require.Equal(t, ppms.FieldHoldingDriven, st)
	require.True(t, ppms.FieldSettled(500, f, st))

	require.NoError(t, c.SetTemperature(180, 12, ppms.FastSettle))
	temp, ts, err := c.Temperature()
	require.NoError(t, err)
	require.InDelta(t, 299.8, temp, 1e-9)
	require.Equal(t, ppms.TempTracking, ts)

	// 4 deg/s is sent as code 1, which the rotator runs at 5 deg/s
	require.NoError(t, c.SetPosition(10, 4))
	pos, ps, err := c.Position()
	require.NoError(t, err)
	require.Equal(t, 5.0, pos)
	require.Equal(t, ppms.PositionMoving, ps)

	require.Error(t, p.Command("WARP 9"))
	_, err = p.Query("TEMP?")
	require.Error(t, err)
}

func TestPPMSStep(t *testing.T) {
	p := NewPPMS()
	p.Step = 100 * time.Millisecond
	c := ppms.New(p)
	require.NoError(t, c.SetField(100, 100, ppms.Linear, ppms.Driven))
	f, _, err := c.Field()
	require.NoError(t, err)
	require.InDelta(t, 10, f, 1e-9)
}

func TestLockInFollowsState(t *testing.T) {
	p := NewPPMS()
	li := sr830.New(LockIn(p, HallSignal))
	require.NoError(t, li.SetAmplitude(0.01))
	x, _, err := li.Snap()
	require.NoError(t, err)
	require.Zero(t, x)

	require.NoError(t, ppms.New(p).SetField(2000, 10000, ppms.Linear, ppms.Driven))
	_, _, err = ppms.New(p).Field()
	require.NoError(t, err)
	x, _, err = li.Snap()
	require.NoError(t, err)
	require.InDelta(t, 5e-6, x, 1e-9)
}

func TestResonanceSignalOdd(t *testing.T) {
	xp, _ := ResonanceSignal(300, 600, 0)
	xn, _ := ResonanceSignal(300, -600, 0)
	require.InDelta(t, 2e-6, xp, 1e-15)
	require.InDelta(t, -xp, xn, 1e-15)
	off, _ := ResonanceSignal(300, 0, 0)
	require.Less(t, off, xp/100)
}

func TestSwitchingSample(t *testing.T) {
	s := NewSwitchingSample()
	smu := b2901.New(s.SMU())
	meter := k2182.New(s.Meter())

	require.NoError(t, smu.ConfigurePulse(b2901.Pulse{Bias: 1e-4, Width: 1e-3, Compliance: 42}))
	require.Error(t, smu.Initiate())
	require.NoError(t, smu.Output(true))

	v, err := meter.Read()
	require.NoError(t, err)
	require.InDelta(t, 1e-4*12, v, 1e-12)

	require.NoError(t, smu.SetTriggeredCurrent(-5e-3))
	require.NoError(t, smu.Initiate())
	require.Equal(t, 1.0, s.Magnetization())

	require.NoError(t, smu.SetTriggeredCurrent(-7e-3))
	require.NoError(t, smu.Initiate())
	require.Equal(t, -1.0, s.Magnetization())

	v, err = meter.Read()
	require.NoError(t, err)
	require.InDelta(t, 1e-4*8, v, 1e-12)
}

func TestPassive(t *testing.T) {
	d := Passive("e8257d")
	require.NoError(t, d.Command("OUTP %s", "ON"))
	id, err := d.Query("*IDN?")
	require.NoError(t, err)
	require.Equal(t, "SIM,E8257D,0,1.0\n", id)
	require.Equal(t, "OUTP ON", d.Last("OUTP"))
	require.Equal(t, []string{"OUTP ON", "*IDN?"}, d.Sent())
}
