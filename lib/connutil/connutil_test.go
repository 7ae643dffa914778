package connutil

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gotmc/ppmslab/experiment"
	"github.com/gotmc/ppmslab/instrument"
	"github.com/gotmc/ppmslab/lib/config"
	"github.com/gotmc/ppmslab/lib/sim"
)

// fakeServer accepts one connection and feeds each line to handle, writing
// back whatever it returns.
type fakeServer struct {
	mu    sync.Mutex
	lines []string
}

func (f *fakeServer) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

func (f *fakeServer) start(t *testing.T, handle func(line string) string) string {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		sc := bufio.NewScanner(c)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			f.mu.Lock()
			f.lines = append(f.lines, line)
			f.mu.Unlock()
			if r := handle(line); r != "" {
				c.Write([]byte(r))
			}
		}
	}()
	return ln.Addr().String()
}

// prologix emulates a GPIB-ETHERNET with sim devices on the bus.
func prologix(devs map[int]instrument.Transport) func(string) string {
	addr, pending := -1, ""
	return func(line string) string {
		switch {
		case line == "++ver":
			return "Prologix GPIB-ETHERNET version 1.6.6.0\n"
		case strings.HasPrefix(line, "++addr "):
			addr, _ = strconv.Atoi(strings.Fields(line)[1])
		case line == "++read eoi":
			r := pending
			pending = ""
			return r
		case strings.HasPrefix(line, "++"):
		case strings.Contains(line, "?"):
			pending, _ = devs[addr].Query(line)
		default:
			devs[addr].Command(line)
		}
		return ""
	}
}

func TestOpenAndClose(t *testing.T) {
	p := sim.NewPPMS()
	bus := &fakeServer{}
	busAddr := bus.start(t, prologix(map[int]instrument.Transport{
		8:  sim.LockIn(p, sim.HallSignal),
		12: sim.Passive("k6221"),
	}))
	cryo := &fakeServer{}
	cryoAddr := cryo.start(t, func(line string) string {
		if strings.Contains(line, "?") {
			s, _ := p.Query(line)
			return s
		}
		p.Command(line)
		return ""
	})

	cfg, err := config.Parse([]byte(`
adapters:
  - name: gpib1
    address: ` + busAddr + `
instruments:
  sr830: {adapter: gpib1, pad: 8}
  k6221: {adapter: gpib1, pad: 12}
ppms:
  address: ` + cryoAddr + `
  timeout: 2s
`))
	require.NoError(t, err)

	lab, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	require.Nil(t, lab.B2901)

	f, err := lab.SR830.Frequency()
	require.NoError(t, err)
	require.Equal(t, 1000.0, f)
	require.NoError(t, lab.K6221.Output(false))

	temp, _, err := lab.PPMS.Temperature()
	require.NoError(t, err)
	require.Equal(t, 300.0, temp)

	rig := lab.Rig(cfg.PPMS, true)
	require.NoError(t, rig.SetField(context.Background(), 400))
	_, field, _ := p.State()
	require.Equal(t, 400.0, field)

	require.NoError(t, lab.Close())
	require.Eventually(t, func() bool {
		s := bus.seen()
		return len(s) > 0 && s[len(s)-1] == "++loc"
	}, time.Second, 10*time.Millisecond)
	s := bus.seen()
	require.Equal(t, "++verbose 0", s[0])
	require.Contains(t, s, "++addr 12")
	require.Contains(t, s, ":OUTP OFF")
	require.Contains(t, cryo.seen(), "FIELD 400,200,0,1")
}

func TestOpenFailsCleanly(t *testing.T) {
	cfg, err := config.Parse([]byte(`
adapters:
  - name: gpib0
    port: /dev/does-not-exist
ppms:
  address: 127.0.0.1:1
`))
	require.NoError(t, err)
	_, err = Open(context.Background(), cfg)
	require.ErrorContains(t, err, "adapter gpib0")
}

func TestSimulated(t *testing.T) {
	lab := Simulated(sim.HallSignal)
	rig := lab.Rig(config.PPMS{TemperatureRate: 12, FieldRate: 200, PositionRate: 5}, true)
	require.NoError(t, rig.SetPosition(context.Background(), 15))
	pos, _, err := lab.PPMS.Position()
	require.NoError(t, err)
	require.Equal(t, 15.0, pos)

	require.NoError(t, lab.B2901.Output(true))
	require.NoError(t, lab.B2901.SetTriggeredCurrent(-8e-3))
	require.NoError(t, lab.B2901.Initiate())
	require.Equal(t, -1.0, lab.Switching.Magnetization())
	require.NoError(t, lab.Close())
}

func TestFlagsApply(t *testing.T) {
	cfg := &config.Config{}
	cfg.Output.Dir = "data"
	f := Flags{Out: "/tmp/run", Live: ":9000", Debug: true}
	f.Apply(cfg)
	require.Equal(t, "/tmp/run", cfg.Output.Dir)
	require.Equal(t, ":9000", cfg.Live.Listen)
	require.True(t, cfg.Log.Debug)
}

func TestDryRig(t *testing.T) {
	lab := Simulated(sim.HallSignal)
	p := config.PPMS{TemperatureRate: 12, FieldRate: 200, PositionRate: 5, SettleTimeout: time.Minute}

	rig := lab.Rig(p, true)
	require.True(t, rig.Timing.SkipSoak)
	require.Equal(t, time.Minute, rig.Timing.Settle.Timeout)
	require.Zero(t, rig.Timing.Pause)

	start := time.Now()
	require.NoError(t, rig.Prepare(context.Background(), experiment.Thermal{Kelvin: 290, Set: true, Soak: time.Hour}))
	require.Less(t, time.Since(start), 10*time.Second)
	temp, _, err := lab.PPMS.Temperature()
	require.NoError(t, err)
	require.Equal(t, 290.0, temp)

	live := lab.Rig(p, false)
	require.False(t, live.Timing.SkipSoak)
	require.Equal(t, time.Minute, live.Timing.Settle.Timeout)
	require.Equal(t, time.Second, live.Timing.Pause)
}
