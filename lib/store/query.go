package store

import (
	"github.com/chrispappas/golang-generics-set/set"
	"github.com/pkg/errors"

	"github.com/gotmc/ppmslab"
)

// Runs lists recorded runs, newest first. A non-empty dataset restricts
// the list to runs of that name.
func (s *Store) Runs(dataset string) ([]Run, error) {
	var runs []Run
	q := s.db.Order("started desc, id desc")
	if dataset != "" {
		q = q.Where("dataset = ?", dataset)
	}
	if res := q.Find(&runs); res.Error != nil {
		return nil, errors.Wrap(res.Error, "find runs")
	}
	return runs, nil
}

// Datasets returns the distinct dataset names in the database.
func (s *Store) Datasets() ([]string, error) {
	var names []string
	res := s.db.Model(&Run{}).Distinct().Order("dataset").Pluck("dataset", &names)
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "pluck")
	}
	return names, nil
}

// Load rebuilds the dataset recorded by run id. Rows missing a value in
// some column are dropped.
func (s *Store) Load(id uint) (*ppmslab.Dataset, error) {
	var run Run
	if res := s.db.First(&run, id); res.Error != nil {
		return nil, errors.Wrapf(res.Error, "run %d", id)
	}
	var series []Series
	if res := s.db.Where("run_id = ?", id).Order("pos").Find(&series); res.Error != nil {
		return nil, errors.Wrap(res.Error, "find series")
	}

	cols := make([]string, len(series))
	pos := map[uint]int{}
	ids := make([]uint, len(series))
	for i, ser := range series {
		cols[i] = ser.Name
		pos[ser.ID] = i
		ids[i] = ser.ID
	}

	var samples []Sample
	res := s.db.Where("series_id IN ?", ids).Order("`index`, series_id").Find(&samples)
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "find samples")
	}

	ds := ppmslab.NewDataset(run.Dataset, cols...)
	row := make([]float64, len(cols))
	have := set.FromSlice([]int{})
	current := -1
	emit := func() error {
		if current < 0 || len(have) != len(cols) {
			return nil
		}
		return ds.Append(row...)
	}
	for _, smp := range samples {
		if smp.Index != current {
			if err := emit(); err != nil {
				return nil, err
			}
			current = smp.Index
			have = set.FromSlice([]int{})
		}
		i := pos[smp.SeriesID]
		row[i] = smp.Value
		have.Add(i)
	}
	if err := emit(); err != nil {
		return nil, err
	}
	return ds, nil
}
