package connutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gotmc/ppmslab"
	"github.com/gotmc/ppmslab/experiment"
	"github.com/gotmc/ppmslab/lib/sim"
)

func TestSessionDryRun(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "lab.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
adapters:
  - name: gpib0
    port: auto
instruments:
  b2901: {adapter: gpib0, pad: 17}
  k2182: {adapter: gpib0, pad: 7}
ppms:
  address: 192.0.2.1:5000
database:
  path: `+filepath.Join(dir, "runs.db")+`
live:
  listen: 127.0.0.1:0
switching:
  temperature: 295
  set_temperature: true
  wait: 30s
  saturation_field: -500
  field: -500
  bias: 0.1
  width: 1
  currents: [0, 9, 0, -9]
  readings: 1
shutdown:
  reset_position: true
`), 0o644))

	f := Flags{Config: cfgPath, Sim: true, Out: filepath.Join(dir, "out")}
	s, err := Start(context.Background(), f, sim.HallSignal)
	require.NoError(t, err)
	require.NotNil(t, s.Store)
	require.NotNil(t, s.Live)
	require.Len(t, s.Out.Sinks, 2)

	sw := &experiment.Switching{Rig: s.Rig(), SMU: s.Lab.B2901, Meter: s.Lab.K2182, Out: s.Out}
	start := time.Now()
	runErr := sw.Loops(context.Background(), s.Cfg.Switching.SwitchingConfig, s.Cfg.Switching.Plan)
	require.NoError(t, runErr)
	// the 30 s soak is skipped
	require.Less(t, time.Since(start), 10*time.Second)

	name := s.Cfg.Switching.Name()
	require.FileExists(t, filepath.Join(dir, "out", name+".csv"))
	runs, err := s.Store.Runs(name)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, 4, runs[0].Points)
	require.Len(t, s.Live.History(name+"/R"), 4)

	require.NoError(t, s.Finish(nil))
	require.Error(t, s.Store.Record(ppmslab.Sample{Dataset: name}))
}

func TestStartMissingConfig(t *testing.T) {
	_, err := Start(context.Background(), Flags{Config: filepath.Join(t.TempDir(), "nope.yaml")}, sim.HallSignal)
	require.Error(t, err)
}
