package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gotmc/ppmslab"
)

func openTemp(t *testing.T) *Store {
	s, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func record(t *testing.T, s *Store, name string, rows ...[]float64) {
	ds := ppmslab.NewDataset(name, "position (degree)", "voltage_x (V)")
	rec := ppmslab.NewRecorder(ds, s)
	for _, row := range rows {
		require.NoError(t, rec.Record(row...))
	}
}

func TestRecordAndLoad(t *testing.T) {
	s := openTemp(t)
	record(t, s, "rot_0to30deg", []float64{0, 1e-6}, []float64{15, 2e-6}, []float64{30, 3e-6})
	require.NoError(t, s.Finish("rot_0to30deg", nil))

	runs, err := s.Runs("")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	run := runs[0]
	require.Equal(t, "rot_0to30deg", run.Dataset)
	require.Equal(t, "position (degree),voltage_x (V)", run.Columns)
	require.Equal(t, 3, run.Points)
	require.NotZero(t, run.Finished)
	require.Empty(t, run.Error)

	ds, err := s.Load(run.ID)
	require.NoError(t, err)
	require.Equal(t, 3, ds.Len())
	require.Equal(t, []float64{0, 15, 30}, ds.Column("position (degree)"))
	require.Equal(t, []float64{15, 2e-6}, ds.Row(1))
}

func TestFinishRecordsAbort(t *testing.T) {
	s := openTemp(t)
	record(t, s, "loop", []float64{1, 2})
	abort := errors.New("loop: sweep aborted: timeout")
	require.NoError(t, s.Finish("loop", abort))

	// a second sweep with the same name is a new run
	record(t, s, "loop", []float64{3, 4}, []float64{5, 6})
	require.NoError(t, s.Finish("loop", nil))

	runs, err := s.Runs("loop")
	require.NoError(t, err)
	require.Len(t, runs, 2)
	var aborted Run
	for _, r := range runs {
		if r.Points == 1 {
			aborted = r
		}
	}
	require.Equal(t, abort.Error(), aborted.Error)

	names, err := s.Datasets()
	require.NoError(t, err)
	require.Equal(t, []string{"loop"}, names)
}

func TestFinishUnknownDataset(t *testing.T) {
	s := openTemp(t)
	require.NoError(t, s.Finish("never-recorded", nil))
}

func TestRejectsWrongWidth(t *testing.T) {
	s := openTemp(t)
	smp := ppmslab.Sample{
		Dataset:   "x",
		Timestamp: time.Now(),
		Columns:   []string{"a", "b"},
		Values:    []float64{1, 2},
	}
	require.NoError(t, s.Record(smp))
	smp.Values = []float64{1}
	require.Error(t, s.Record(smp))
}

func TestCloseMarksInterrupted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	s, err := Open(path)
	require.NoError(t, err)
	record(t, s, "spin", []float64{600, 1e-6}, []float64{590, 2e-6})
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	require.Error(t, s.Record(ppmslab.Sample{Dataset: "spin"}))

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	runs, err := s.Runs("spin")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, "interrupted", runs[0].Error)
	require.Equal(t, 2, runs[0].Points)

	ds, err := s.Load(runs[0].ID)
	require.NoError(t, err)
	require.Equal(t, 2, ds.Len())
}

func TestOutputSaveFinishesRun(t *testing.T) {
	s := openTemp(t)
	out := &ppmslab.Output{Dir: t.TempDir(), Sinks: []ppmslab.Sink{s}}
	ds := ppmslab.NewDataset("sw", "I", "V", "R")
	rec := out.Recorder(ds)
	require.NoError(t, rec.Record(1, 2, 3))
	require.NoError(t, out.Save(ds, nil, nil))

	runs, err := s.Runs("sw")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.NotZero(t, runs[0].Finished)
}
