package config

import (
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gotmc/ppmslab/experiment"
)

const lab = `
adapters:
  - name: gpib0
    port: /dev/ttyUSB0
  - name: gpib1
    address: 192.168.0.20:1234
    read_timeout: 1s
instruments:
  sr830: {adapter: gpib1, pad: 8}
  k6221: {adapter: gpib1, pad: 12}
  b2901: {adapter: gpib1, pad: 17}
  k2182: {adapter: gpib0, pad: 7}
  e8257d: {adapter: gpib0, pad: 19}
ppms:
  address: 192.168.0.4:5000
  settle_timeout: 30m
database:
  path: runs.db
live:
  listen: :8080
rotation:
  prefix: Jul13_rotate
  temperature: 180
  set_temperature: true
  wait: 60s
  field: 550
  scan_rate: 2
  harmonic: 2
  from: 0
  to: 360
  plan:
    harmonics: [2, 1]
    fields: [550, -550]
switching:
  temperature: 70
  set_temperature: true
  wait: 3m
  saturation_field: -500
  field: -500
  bias: 0.1
  width: 1
  currents: [0, 4.5, 9, 4.5, 0, -4.5, -9]
shutdown:
  reset_position: true
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(lab))
	require.NoError(t, err)

	require.Len(t, cfg.Adapters, 2)
	require.Equal(t, 115200, cfg.Adapters[0].Baud)
	require.Equal(t, 500*time.Millisecond, cfg.Adapters[0].ReadTimeout)
	require.Equal(t, time.Second, cfg.Adapters[1].ReadTimeout)
	require.Equal(t, Device{Adapter: "gpib1", PAD: 8}, *cfg.Instruments.SR830)

	require.Equal(t, "192.168.0.4:5000", cfg.PPMS.Address)
	require.Equal(t, 30*time.Minute, cfg.PPMS.SettleTimeout)
	require.Equal(t, 200.0, cfg.PPMS.FieldRate)
	require.Equal(t, "data", cfg.Output.Dir)
	require.Equal(t, 2000, cfg.Live.History)

	r := cfg.Rotation
	require.NotNil(t, r)
	require.Equal(t, "Jul13_rotate", r.Prefix)
	require.Equal(t, 180.0, r.Kelvin)
	require.True(t, r.Set)
	require.Equal(t, 10.0, r.Rate)
	require.Equal(t, time.Minute, r.Soak)
	require.Equal(t, 360.0, r.To)
	require.Equal(t, []int{2, 1}, r.Plan.Harmonics)
	require.Equal(t, []float64{550, -550}, r.Plan.Fields)

	s := cfg.Switching
	require.NotNil(t, s)
	require.Equal(t, 3*time.Minute, s.Soak)
	require.Zero(t, s.Rate)
	require.Equal(t, -9.0, s.Currents[6])
	require.Nil(t, cfg.SpinPumping)
	require.True(t, cfg.Shutdown.ResetPosition)
}

func TestValidate(t *testing.T) {
	for name, doc := range map[string]string{
		"no ppms":        "adapters: [{name: a, port: /dev/x}]",
		"both endpoints": "adapters: [{name: a, port: /dev/x, address: h:1}]\nppms: {address: h:2}",
		"duplicate":      "adapters: [{name: a, port: /dev/x}, {name: a, port: /dev/y}]\nppms: {address: h:2}",
		"unknown":        "instruments: {sr830: {adapter: b, pad: 8}}\nppms: {address: h:2}",
		"bad pad":        "adapters: [{name: a, port: /dev/x}]\ninstruments: {sr830: {adapter: a, pad: 31}}\nppms: {address: h:2}",
		"bad sad":        "adapters: [{name: a, port: /dev/x}]\nppms: {adapter: a, pad: 3, sad: 5}",
		"missing":        "adapters: [{name: a, port: /dev/x}]\nppms: {adapter: a, pad: 3}\nswitching: {bias: 1}",
	} {
		_, err := Parse([]byte(doc))
		require.Error(t, err, name)
	}
	_, err := Parse([]byte("adapters: [{name: a, port: /dev/x}]\nppms: {adapter: a, pad: 3}"))
	require.NoError(t, err)
}

func TestSwitchingLoop(t *testing.T) {
	cfg, err := Parse([]byte(`
adapters: [{name: a, port: /dev/x}]
instruments:
  b2901: {adapter: a, pad: 17}
  k2182: {adapter: a, pad: 7}
ppms: {address: h:2}
switching:
  temperature: 70
  field: -500
  bias: 0.1
  loop: {max: 9, points: 3}
`))
	require.NoError(t, err)
	s := cfg.Switching
	require.Equal(t, []float64{0, 4.5, 9, 9, 0, -9, -9, 0, 9}, s.Currents)
	require.Equal(t, "temperature_70K_field_-500Oe_max_current_9mA", s.Name())

	// an explicit list wins
	cfg, err = Parse([]byte(`
adapters: [{name: a, port: /dev/x}]
instruments:
  b2901: {adapter: a, pad: 17}
  k2182: {adapter: a, pad: 7}
ppms: {address: h:2}
switching:
  bias: 0.1
  currents: [1, 2]
  loop: {max: 9, points: 3}
`))
	require.NoError(t, err)
	require.Equal(t, []float64{1, 2}, cfg.Switching.Currents)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lab.yaml")
	require.NoError(t, os.WriteFile(path, []byte(lab), 0o644))
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "runs.db", cfg.Database.Path)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestExampleConfig(t *testing.T) {
	cfg, err := Load("../../examples/lab.yaml")
	require.NoError(t, err)
	require.Equal(t, "auto", cfg.Adapters[0].Port)
	require.NotNil(t, cfg.SpinPumping)
	require.Equal(t, []float64{4, 5, 6}, cfg.SpinPumping.Plan.FrequenciesGHz)
	require.Len(t, cfg.Switching.Plan.Points(experiment.Point{Field: cfg.Switching.Field}), 2)
}

func TestSetupLogging(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "lab.log")
	c := Log{File: path, MaxSizeMB: 1}.SetupLogging()
	log.Printf("hello")
	require.NoError(t, c.Close())
	log.SetOutput(os.Stderr)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "hello")
	require.Equal(t, log.Lmicroseconds, log.Flags())
}

func TestSetupLoggingStderr(t *testing.T) {
	c := Log{}.SetupLogging()
	require.NotNil(t, c)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}
