// Copyright (c) 2020–2024 The ppmslab developers. All rights reserved.
// Project site: https://github.com/gotmc/ppmslab
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package ppmslab

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"go.uber.org/multierr"
)

// Output decides where datasets go once a sweep is over.
type Output struct {
	Dir   string
	Sinks []Sink
}

// Recorder returns a recorder for ds wired to the output's sinks.
func (o *Output) Recorder(ds *Dataset) *Recorder {
	return NewRecorder(ds, o.Sinks...)
}

// Path returns the file path for name with extension ext.
func (o *Output) Path(name, ext string) string {
	return filepath.Join(o.Dir, name+ext)
}

// Save writes ds as CSV and, when spec is non-nil, as a PNG plot, then
// tells finishing sinks the dataset is done. sweepErr is passed through to
// the sinks so an aborted sweep is recorded as such.
func (o *Output) Save(ds *Dataset, spec *PlotSpec, sweepErr error) error {
	err := o.Write(ds, spec)
	for _, s := range o.Sinks {
		if f, ok := s.(Finisher); ok {
			err = multierr.Append(err, f.Finish(ds.Name, sweepErr))
		}
	}
	return err
}

// Write saves ds as CSV and, when spec is non-nil, as a PNG plot. Sinks
// are not told.
func (o *Output) Write(ds *Dataset, spec *PlotSpec) error {
	var err error
	csvPath := o.Path(ds.Name, ".csv")
	if e := ds.SaveCSV(csvPath); e != nil {
		err = multierr.Append(err, e)
	} else {
		log.Printf("saved %d points to %s", ds.Len(), csvPath)
	}
	if spec != nil {
		err = multierr.Append(err, o.savePlot(ds, *spec))
	}
	return err
}

func (o *Output) savePlot(ds *Dataset, spec PlotSpec) error {
	path := o.Path(ds.Name, ".png")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("png create %s: %w", path, err)
	}
	if err := PlotPNG(ds, spec, f); err != nil {
		f.Close()
		return fmt.Errorf("plot %s: %w", path, err)
	}
	return f.Close()
}
