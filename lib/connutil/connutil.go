// Package connutil opens the hardware named in a lab configuration and
// tears it down again, so the measurement programs stay short.
package connutil

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"go.bug.st/serial"
	"go.uber.org/multierr"

	"github.com/gotmc/ppmslab"
	"github.com/gotmc/ppmslab/experiment"
	"github.com/gotmc/ppmslab/gpib"
	"github.com/gotmc/ppmslab/instrument"
	"github.com/gotmc/ppmslab/instrument/b2901"
	"github.com/gotmc/ppmslab/instrument/e8257d"
	"github.com/gotmc/ppmslab/instrument/k2182"
	"github.com/gotmc/ppmslab/instrument/k6221"
	"github.com/gotmc/ppmslab/instrument/sr830"
	"github.com/gotmc/ppmslab/lib/cmdlog"
	"github.com/gotmc/ppmslab/lib/config"
	"github.com/gotmc/ppmslab/lib/find"
	"github.com/gotmc/ppmslab/lib/lan"
	"github.com/gotmc/ppmslab/lib/sim"
	"github.com/gotmc/ppmslab/ppms"
)

// Flags are the command line switches shared by every program.
type Flags struct {
	Config string
	Sim    bool
	Debug  bool
	Out    string
	Live   string
}

// AddFlags is to be called before [flag.Parse].
func (f *Flags) AddFlags() {
	if f.Config == "" {
		f.Config = "lab.yaml"
	}
	flag.StringVar(&f.Config, "config", f.Config, "lab configuration file")
	flag.BoolVar(&f.Sim, "sim", f.Sim, "dry run against simulated hardware")
	flag.BoolVar(&f.Debug, "debug", f.Debug, "log GPIB controller traffic and cryostat polls")
	flag.StringVar(&f.Out, "out", f.Out, "output directory, overriding the configuration")
	flag.StringVar(&f.Live, "live", f.Live, "live monitor listen address, overriding the configuration")
}

// Apply overlays the flags on a loaded configuration.
func (f *Flags) Apply(cfg *config.Config) {
	if f.Out != "" {
		cfg.Output.Dir = f.Out
	}
	if f.Live != "" {
		cfg.Live.Listen = f.Live
	}
	if f.Debug {
		cfg.Log.Debug = true
	}
}

// Lab is the connected hardware. Instruments not in the configuration are
// nil.
type Lab struct {
	PPMS   *ppms.Client
	SR830  *sr830.LockIn
	K6221  *k6221.Source
	B2901  *b2901.SMU
	K2182  *k2182.Meter
	E8257D *e8257d.Generator

	// Switching is the simulated sample in dry runs.
	Switching *sim.SwitchingSample

	gpib    []*gpib.Instrument
	closers []io.Closer
}

// Open connects everything cfg names. On error, whatever was already open
// is closed again.
func Open(ctx context.Context, cfg *config.Config) (_ *Lab, err error) {
	lab := &Lab{}
	defer func() {
		if err != nil {
			err = multierr.Append(err, lab.Close())
		}
	}()

	ctrls := map[string]*gpib.Controller{}
	for _, a := range cfg.Adapters {
		c, err := lab.openAdapter(ctx, a, cfg.Log.Debug)
		if err != nil {
			return nil, fmt.Errorf("adapter %s: %w", a.Name, err)
		}
		ctrls[a.Name] = c
	}
	dev := func(name string, d *config.Device) (instrument.Transport, error) {
		inst, err := lab.instrument(ctrls, name, d)
		if err != nil {
			return nil, err
		}
		return cmdlog.Wrap(name, inst), nil
	}

	in := cfg.Instruments
	if in.SR830 != nil {
		t, err := dev("sr830", in.SR830)
		if err != nil {
			return nil, err
		}
		lab.SR830 = sr830.New(t)
	}
	if in.K6221 != nil {
		t, err := dev("k6221", in.K6221)
		if err != nil {
			return nil, err
		}
		lab.K6221 = k6221.New(t)
	}
	if in.B2901 != nil {
		t, err := dev("b2901", in.B2901)
		if err != nil {
			return nil, err
		}
		lab.B2901 = b2901.New(t)
	}
	if in.K2182 != nil {
		t, err := dev("k2182", in.K2182)
		if err != nil {
			return nil, err
		}
		lab.K2182 = k2182.New(t)
	}
	if in.E8257D != nil {
		t, err := dev("e8257d", in.E8257D)
		if err != nil {
			return nil, err
		}
		lab.E8257D = e8257d.New(t)
	}

	var pt instrument.Transport
	if cfg.PPMS.Address != "" {
		log.Printf("connecting to PPMS at %s", cfg.PPMS.Address)
		c, err := lan.Dial(ctx, cfg.PPMS.Address, cfg.PPMS.Timeout)
		if err != nil {
			return nil, fmt.Errorf("ppms: %w", err)
		}
		lab.closers = append(lab.closers, c)
		pt = c
	} else {
		inst, err := lab.instrument(ctrls, "ppms", &cfg.PPMS.Device)
		if err != nil {
			return nil, err
		}
		pt = inst
	}
	if cfg.Log.Debug {
		pt = cmdlog.Wrap("ppms", pt)
	}
	lab.PPMS = ppms.New(pt)
	log.Printf("connection established")
	return lab, nil
}

// adapterTimeout bounds each read from an adapter. The adapter gives up
// after ReadTimeout; leave it room to say so.
func adapterTimeout(a config.Adapter) time.Duration {
	return 2*a.ReadTimeout + 100*time.Millisecond
}

func (l *Lab) openAdapter(ctx context.Context, a config.Adapter, debug bool) (*gpib.Controller, error) {
	var rw io.ReadWriteCloser
	if a.Address != "" {
		c, err := lan.Dial(ctx, a.Address, adapterTimeout(a))
		if err != nil {
			return nil, err
		}
		rw = c
	} else {
		name := a.Port
		if name == "auto" {
			filter := find.PrologixFilter
			if a.AR488 {
				filter = find.ArduinoFilter
			}
			var err error
			if name, err = find.Find(filter); err != nil {
				return nil, fmt.Errorf("locating serial port: %w", err)
			}
		}
		log.Printf("Serial port = %s", name)
		port, err := serial.Open(name, &serial.Mode{BaudRate: a.Baud})
		if err != nil {
			return nil, err
		}
		if err := port.SetReadTimeout(adapterTimeout(a)); err != nil {
			port.Close()
			return nil, err
		}
		rw = port
	}
	l.closers = append(l.closers, rw)

	opts := []gpib.ControllerOption{gpib.WithReadTimeout(a.ReadTimeout)}
	if a.WriteDelay > 0 {
		opts = append(opts, gpib.WithWriteDelay(a.WriteDelay))
	}
	if a.AR488 {
		opts = append(opts, gpib.WithAR488())
	}
	if debug {
		opts = append(opts, gpib.WithDebug())
	}
	c, err := gpib.NewController(rw, opts...)
	if err != nil {
		return nil, err
	}
	if v, err := c.Version(); err == nil {
		log.Printf("%s: %s", a.Name, strings.TrimSpace(v))
	}
	return c, nil
}

func (l *Lab) instrument(ctrls map[string]*gpib.Controller, name string, d *config.Device) (*gpib.Instrument, error) {
	c, ok := ctrls[d.Adapter]
	if !ok {
		return nil, fmt.Errorf("%s: unknown adapter %q", name, d.Adapter)
	}
	var opts []gpib.InstrumentOption
	if d.SAD != 0 {
		opts = append(opts, gpib.WithSecondaryAddress(d.SAD))
	}
	inst, err := c.Instrument(d.PAD, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	l.gpib = append(l.gpib, inst)
	return inst, nil
}

// Simulated returns a Lab backed by simulated hardware. The lock-in
// answers with sig.
func Simulated(sig sim.Signal) *Lab {
	p := sim.NewPPMS()
	sw := sim.NewSwitchingSample()
	return &Lab{
		PPMS:      ppms.New(p),
		SR830:     sr830.New(cmdlog.Wrap("sr830", sim.LockIn(p, sig))),
		K6221:     k6221.New(cmdlog.Wrap("k6221", sim.Passive("k6221"))),
		B2901:     b2901.New(cmdlog.Wrap("b2901", sw.SMU())),
		K2182:     k2182.New(cmdlog.Wrap("k2182", sw.Meter())),
		E8257D:    e8257d.New(cmdlog.Wrap("e8257d", sim.Passive("e8257d"))),
		Switching: sw,
	}
}

// Rig returns the cryostat configured with the rates from p. Dry runs
// don't wait between polls or soak after a temperature change.
func (l *Lab) Rig(p config.PPMS, dry bool) *experiment.Rig {
	r := experiment.NewRig(l.PPMS)
	r.TemperatureRate = p.TemperatureRate
	r.FieldRate = p.FieldRate
	r.PositionRate = p.PositionRate
	if dry {
		r.Timing = experiment.Timing{
			Settle:   ppmslab.SettleConfig{Quiet: true},
			SkipSoak: true,
		}
	}
	r.Timing.Settle.Timeout = p.SettleTimeout
	return r
}

// Close returns every GPIB instrument to front panel control, then closes
// the ports.
func (l *Lab) Close() error {
	var err error
	for _, inst := range l.gpib {
		if e := inst.Local(); e != nil {
			err = multierr.Append(err, fmt.Errorf("%s: local: %w", inst, e))
		}
	}
	for _, c := range l.closers {
		err = multierr.Append(err, c.Close())
	}
	l.gpib, l.closers = nil, nil
	return err
}
