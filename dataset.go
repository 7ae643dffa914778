// Copyright (c) 2020–2024 The ppmslab developers. All rights reserved.
// Project site: https://github.com/gotmc/ppmslab
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package ppmslab

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
)

// Dataset is a named table of parallel float columns, one row per recorded
// point.
type Dataset struct {
	Name    string
	columns []string
	values  [][]float64 // values[col][row]
}

// NewDataset returns an empty dataset with the given column names.
func NewDataset(name string, columns ...string) *Dataset {
	return &Dataset{
		Name:    name,
		columns: append([]string(nil), columns...),
		values:  make([][]float64, len(columns)),
	}
}

// Columns returns the column names in order.
func (d *Dataset) Columns() []string { return append([]string(nil), d.columns...) }

// Len returns the number of rows.
func (d *Dataset) Len() int {
	if len(d.values) == 0 {
		return 0
	}
	return len(d.values[0])
}

// Append adds one row. It must have exactly one value per column.
func (d *Dataset) Append(row ...float64) error {
	if len(row) != len(d.columns) {
		return fmt.Errorf("%s: row has %d values, want %d", d.Name, len(row), len(d.columns))
	}
	for i, v := range row {
		d.values[i] = append(d.values[i], v)
	}
	return nil
}

// Column returns the values of the named column, or nil if there is none.
// The slice is shared with the dataset.
func (d *Dataset) Column(name string) []float64 {
	for i, c := range d.columns {
		if c == name {
			return d.values[i]
		}
	}
	return nil
}

// Row returns row i.
func (d *Dataset) Row(i int) []float64 {
	row := make([]float64, len(d.columns))
	for c := range d.columns {
		row[c] = d.values[c][i]
	}
	return row
}

// Merge appends every row of other, which must have the same columns.
func (d *Dataset) Merge(other *Dataset) error {
	if len(other.columns) != len(d.columns) {
		return fmt.Errorf("merge %s into %s: column mismatch", other.Name, d.Name)
	}
	for i, c := range d.columns {
		if other.columns[i] != c {
			return fmt.Errorf("merge %s into %s: column %d is %q, want %q", other.Name, d.Name, i, other.columns[i], c)
		}
	}
	for i := range d.values {
		d.values[i] = append(d.values[i], other.values[i]...)
	}
	return nil
}

// WriteCSV writes a header and one line per row. The first column is the
// unnamed row index, matching the layout the analysis notebooks expect.
func (d *Dataset) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{""}, d.columns...)); err != nil {
		return err
	}
	rec := make([]string, len(d.columns)+1)
	for r := 0; r < d.Len(); r++ {
		rec[0] = strconv.Itoa(r)
		for c := range d.columns {
			rec[c+1] = strconv.FormatFloat(d.values[c][r], 'g', -1, 64)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// SaveCSV writes the dataset to path, creating parent directories.
func (d *Dataset) SaveCSV(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("csv create %s: %w", path, err)
	}
	if err := d.WriteCSV(f); err != nil {
		f.Close()
		return fmt.Errorf("csv write %s: %w", path, err)
	}
	return f.Close()
}
