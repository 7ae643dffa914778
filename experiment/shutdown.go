package experiment

import (
	"log"

	"go.uber.org/multierr"

	"github.com/gotmc/ppmslab/instrument/e8257d"
	"github.com/gotmc/ppmslab/instrument/sr830"
	"github.com/gotmc/ppmslab/ppms"
)

// Shutdown leaves the system in its idle state at the end of a run: room
// temperature, zero field and the excitation off. Instruments that are nil
// are skipped. Nothing waits for the cryostat to get there.
type Shutdown struct {
	PPMS          *ppms.Client
	LockIn        *sr830.LockIn
	RF            *e8257d.Generator
	ResetPosition bool
}

// Run issues every shutdown command, continuing past failures.
func (s Shutdown) Run() error {
	log.Printf("ending measurement")
	var err error
	if s.PPMS != nil {
		err = multierr.Combine(
			s.PPMS.SetTemperature(300, TemperatureRate, ppms.FastSettle),
			s.PPMS.SetField(0, FieldRate, ppms.Linear, ppms.Driven),
		)
		if s.ResetPosition {
			err = multierr.Append(err, s.PPMS.SetPosition(0, 1))
		}
	}
	if s.LockIn != nil {
		err = multierr.Append(err, s.LockIn.SetAmplitude(0.01))
	}
	if s.RF != nil {
		err = multierr.Append(err, s.RF.Output(false))
	}
	return err
}
