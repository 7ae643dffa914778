package connutil

import (
	"context"
	"fmt"
	"io"
	"log"

	"go.uber.org/multierr"

	"github.com/gotmc/ppmslab"
	"github.com/gotmc/ppmslab/experiment"
	"github.com/gotmc/ppmslab/lib/config"
	"github.com/gotmc/ppmslab/lib/live"
	"github.com/gotmc/ppmslab/lib/sim"
	"github.com/gotmc/ppmslab/lib/store"
)

// Session is everything a measurement program needs between flag parsing
// and exit: the configuration, the hardware and where the data goes.
type Session struct {
	Cfg   *config.Config
	Lab   *Lab
	Out   *ppmslab.Output
	Store *store.Store // nil without a database
	Live  *live.Monitor

	dry    bool
	logs   io.Closer
	cancel context.CancelFunc
	served chan error
}

// Start loads the configuration named by f, sets up logging and connects
// the hardware. With f.Sim the instruments are simulated and the lock-in
// answers with sig.
func Start(ctx context.Context, f Flags, sig sim.Signal) (_ *Session, err error) {
	cfg, err := config.Load(f.Config)
	if err != nil {
		return nil, err
	}
	f.Apply(cfg)

	s := &Session{
		Cfg:  cfg,
		Out:  &ppmslab.Output{Dir: cfg.Output.Dir},
		dry:  f.Sim,
		logs: cfg.Log.SetupLogging(),
	}
	defer func() {
		if err != nil {
			err = multierr.Append(err, s.close())
		}
	}()

	if f.Sim {
		log.Printf("dry run: simulated hardware")
		s.Lab = Simulated(sig)
	} else if s.Lab, err = Open(ctx, cfg); err != nil {
		return nil, err
	}

	if cfg.Database.Path != "" {
		if s.Store, err = store.Open(cfg.Database.Path); err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		s.Out.Sinks = append(s.Out.Sinks, s.Store)
	}
	if cfg.Live.Listen != "" {
		s.Live = live.New(cfg.Live.History)
		s.Out.Sinks = append(s.Out.Sinks, s.Live)
		lctx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel
		s.served = make(chan error, 1)
		go func() { s.served <- s.Live.Serve(lctx, cfg.Live.Listen) }()
	}
	return s, nil
}

// Rig returns the cryostat with the configured rates.
func (s *Session) Rig() *experiment.Rig {
	return s.Lab.Rig(s.Cfg.PPMS, s.dry)
}

// Finish runs the shutdown sequence unless the configuration skips it,
// then releases everything. runErr is returned combined with any failure
// along the way.
func (s *Session) Finish(runErr error) error {
	err := runErr
	if !s.Cfg.Shutdown.Skip && s.Lab != nil {
		err = multierr.Append(err, experiment.Shutdown{
			PPMS:          s.Lab.PPMS,
			LockIn:        s.Lab.SR830,
			RF:            s.Lab.E8257D,
			ResetPosition: s.Cfg.Shutdown.ResetPosition,
		}.Run())
	}
	return multierr.Append(err, s.close())
}

func (s *Session) close() error {
	var err error
	if s.Lab != nil {
		err = multierr.Append(err, s.Lab.Close())
	}
	if s.Store != nil {
		err = multierr.Append(err, s.Store.Close())
	}
	if s.Live != nil {
		s.cancel()
		err = multierr.Append(err, <-s.served)
		err = multierr.Append(err, s.Live.Close())
	}
	return multierr.Append(err, s.logs.Close())
}
