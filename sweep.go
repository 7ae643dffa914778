// Copyright (c) 2020–2024 The ppmslab developers. All rights reserved.
// Project site: https://github.com/gotmc/ppmslab
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package ppmslab

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// ErrSweepAborted wraps whatever stopped a sweep early. Rows recorded before
// the failure are kept.
var ErrSweepAborted = errors.New("sweep aborted")

// Sample is one recorded row as seen by a Sink.
type Sample struct {
	Dataset   string
	Index     int
	Timestamp time.Time
	Columns   []string
	Values    []float64
}

// Sink receives every recorded row, e.g. a database or a live monitor.
type Sink interface {
	Record(s Sample) error
}

// Finisher is implemented by sinks that want to know when a dataset is
// complete. err is nil for a dataset that finished normally.
type Finisher interface {
	Finish(dataset string, err error) error
}

// Recorder appends rows to a dataset and forwards them to sinks.
type Recorder struct {
	Dataset *Dataset
	Sinks   []Sink
	now     func() time.Time
}

// NewRecorder returns a recorder for ds.
func NewRecorder(ds *Dataset, sinks ...Sink) *Recorder {
	return &Recorder{Dataset: ds, Sinks: sinks, now: time.Now}
}

// Record appends row. Sink failures are logged and otherwise ignored so a
// monitoring hiccup cannot cost a measurement.
func (r *Recorder) Record(row ...float64) error {
	if err := r.Dataset.Append(row...); err != nil {
		return err
	}
	if len(r.Sinks) == 0 {
		return nil
	}
	s := Sample{
		Dataset:   r.Dataset.Name,
		Index:     r.Dataset.Len() - 1,
		Timestamp: r.now(),
		Columns:   r.Dataset.columns,
		Values:    row,
	}
	for _, sink := range r.Sinks {
		if err := sink.Record(s); err != nil {
			log.Printf("%s: sink: %s", r.Dataset.Name, err)
		}
	}
	return nil
}

// SweepConfig paces a Sweep.
type SweepConfig struct {
	Interval time.Duration // pause after each row
	MaxRows  int           // zero is unlimited
}

// StepFunc reads one row. finished reports that the swept quantity has
// reached its end point; the row is still recorded.
type StepFunc func() (row []float64, finished bool, err error)

// Sweep calls step until it reports finished, recording each row. A step
// error, a bad row or cancellation is logged and stops the sweep; the
// returned error then wraps ErrSweepAborted.
func Sweep(ctx context.Context, cfg SweepConfig, rec *Recorder, step StepFunc) error {
	name := rec.Dataset.Name
	for n := 0; cfg.MaxRows == 0 || n < cfg.MaxRows; n++ {
		if err := ctx.Err(); err != nil {
			return abort(name, err)
		}
		row, finished, err := step()
		if err != nil {
			return abort(name, err)
		}
		if err := rec.Record(row...); err != nil {
			return abort(name, err)
		}
		if finished {
			log.Printf("%s: sweep finished with %d points", name, rec.Dataset.Len())
			return nil
		}
		if err := Sleep(ctx, cfg.Interval); err != nil {
			return abort(name, err)
		}
	}
	return abort(name, fmt.Errorf("reached %d rows", cfg.MaxRows))
}

func abort(name string, err error) error {
	log.Printf("Error during data collection: %s: %s", name, err)
	return fmt.Errorf("%s: %w: %w", name, ErrSweepAborted, err)
}
