// Package config loads the lab configuration: where each instrument is
// connected, where data goes, and the sequences to run.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gotmc/ppmslab/experiment"
)

// ─── Hardware ───────────────────────────────────────────────────────────

// Adapter is one GPIB controller, either on a USB serial port or on the
// network.
type Adapter struct {
	Name        string        `yaml:"name"`
	Port        string        `yaml:"port"`    // serial device; "auto" searches USB
	Address     string        `yaml:"address"` // host:port of a GPIB-ETHERNET
	Baud        int           `yaml:"baud"`
	AR488       bool          `yaml:"ar488"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
	WriteDelay  time.Duration `yaml:"write_delay"`
}

// Device is an instrument on a GPIB adapter.
type Device struct {
	Adapter string `yaml:"adapter"`
	PAD     int    `yaml:"pad"`
	SAD     int    `yaml:"sad"` // zero when unused
}

type Instruments struct {
	SR830  *Device `yaml:"sr830"`
	K6221  *Device `yaml:"k6221"`
	B2901  *Device `yaml:"b2901"`
	K2182  *Device `yaml:"k2182"`
	E8257D *Device `yaml:"e8257d"`
}

// PPMS is reached either over TCP or as a GPIB device.
type PPMS struct {
	Address         string        `yaml:"address"`
	Device          `yaml:",inline"`
	Timeout         time.Duration `yaml:"timeout"`
	TemperatureRate float64       `yaml:"temperature_rate"` // K/min
	FieldRate       float64       `yaml:"field_rate"`       // Oe/s
	PositionRate    float64       `yaml:"position_rate"`    // deg/s
	SettleTimeout   time.Duration `yaml:"settle_timeout"`   // zero waits forever
}

// ─── Outputs ────────────────────────────────────────────────────────────

type Output struct {
	Dir string `yaml:"dir"`
}

// Database is the sqlite run log; an empty path disables it.
type Database struct {
	Path string `yaml:"path"`
}

// Live is the monitoring server; an empty listen address disables it.
type Live struct {
	Listen  string `yaml:"listen"`
	History int    `yaml:"history"` // samples kept per series
}

type Log struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Debug      bool   `yaml:"debug"`
}

// ─── Sequences ──────────────────────────────────────────────────────────

type Rotation struct {
	experiment.RotationConfig `yaml:",inline"`
	Plan                      experiment.Plan `yaml:"plan"`
}

type Switching struct {
	experiment.SwitchingConfig `yaml:",inline"`
	Plan                       experiment.Plan `yaml:"plan"`
}

type SpinPumping struct {
	experiment.SpinPumpingConfig `yaml:",inline"`
	Plan                         experiment.Plan `yaml:"plan"`
}

type Shutdown struct {
	Skip          bool `yaml:"skip"`
	ResetPosition bool `yaml:"reset_position"`
}

// Config is the top-level structure of the lab file.
type Config struct {
	Adapters    []Adapter   `yaml:"adapters"`
	Instruments Instruments `yaml:"instruments"`
	PPMS        PPMS        `yaml:"ppms"`
	Output      Output      `yaml:"output"`
	Database    Database    `yaml:"database"`
	Live        Live        `yaml:"live"`
	Log         Log         `yaml:"log"`

	Rotation    *Rotation    `yaml:"rotation"`
	Switching   *Switching   `yaml:"switching"`
	SpinPumping *SpinPumping `yaml:"spin_pumping"`
	Shutdown    Shutdown     `yaml:"shutdown"`
}

// ─── Loaders ────────────────────────────────────────────────────────────

// Load reads, defaults and validates the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse is Load on an in-memory document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	for i := range c.Adapters {
		a := &c.Adapters[i]
		if a.Baud == 0 {
			a.Baud = 115200
		}
		if a.ReadTimeout == 0 {
			a.ReadTimeout = 500 * time.Millisecond
		}
	}
	p := &c.PPMS
	if p.Timeout == 0 {
		p.Timeout = 5 * time.Second
	}
	if p.TemperatureRate == 0 {
		p.TemperatureRate = experiment.TemperatureRate
	}
	if p.FieldRate == 0 {
		p.FieldRate = experiment.FieldRate
	}
	if p.PositionRate == 0 {
		p.PositionRate = experiment.PositionRate
	}
	if c.Output.Dir == "" {
		c.Output.Dir = "data"
	}
	if c.Live.History == 0 {
		c.Live.History = 2000
	}
	l := &c.Log
	if l.MaxSizeMB == 0 {
		l.MaxSizeMB = 10
	}
	if l.MaxBackups == 0 {
		l.MaxBackups = 5
	}
	if l.MaxAgeDays == 0 {
		l.MaxAgeDays = 90
	}
	// The rotator scripts ramp at 10 K/min where the others use 12.
	if c.Rotation != nil && c.Rotation.Rate == 0 {
		c.Rotation.Rate = 10
	}
	if c.Switching != nil {
		c.Switching.Currents = c.Switching.Steps()
	}
}

// Validate checks that every reference resolves and every address is legal.
func (c *Config) Validate() error {
	names := map[string]bool{}
	for _, a := range c.Adapters {
		if a.Name == "" {
			return fmt.Errorf("adapter without a name")
		}
		if names[a.Name] {
			return fmt.Errorf("adapter %q defined twice", a.Name)
		}
		names[a.Name] = true
		if (a.Port == "") == (a.Address == "") {
			return fmt.Errorf("adapter %q: exactly one of port and address must be set", a.Name)
		}
	}
	check := func(what string, d *Device) error {
		if d == nil {
			return nil
		}
		if !names[d.Adapter] {
			return fmt.Errorf("%s: unknown adapter %q", what, d.Adapter)
		}
		if d.PAD < 0 || d.PAD > 30 {
			return fmt.Errorf("%s: invalid primary address %d", what, d.PAD)
		}
		if d.SAD != 0 && (d.SAD < 96 || d.SAD > 126) {
			return fmt.Errorf("%s: invalid secondary address %d", what, d.SAD)
		}
		return nil
	}
	in := c.Instruments
	for what, d := range map[string]*Device{
		"sr830":  in.SR830,
		"k6221":  in.K6221,
		"b2901":  in.B2901,
		"k2182":  in.K2182,
		"e8257d": in.E8257D,
	} {
		if err := check(what, d); err != nil {
			return err
		}
	}
	if c.PPMS.Address == "" {
		if c.PPMS.Adapter == "" {
			return fmt.Errorf("ppms: address or adapter required")
		}
		if err := check("ppms", &c.PPMS.Device); err != nil {
			return err
		}
	}
	if c.Rotation != nil && (in.SR830 == nil || in.K6221 == nil) {
		return fmt.Errorf("rotation needs the sr830 and k6221")
	}
	if c.Switching != nil && (in.B2901 == nil || in.K2182 == nil) {
		return fmt.Errorf("switching needs the b2901 and k2182")
	}
	if c.SpinPumping != nil && (in.SR830 == nil || in.E8257D == nil) {
		return fmt.Errorf("spin pumping needs the sr830 and e8257d")
	}
	return nil
}
