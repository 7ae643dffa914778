// Package store keeps every recorded sweep in a sqlite database, so a run
// can be inspected or re-exported after the CSV files have moved on.
package store

import (
	"log"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/gotmc/ppmslab"
)

// Store is a ppmslab.Sink and ppmslab.Finisher writing to sqlite. Samples
// are batched by a background writer.
type Store struct {
	db      *gorm.DB
	objects chan any

	mu     sync.Mutex
	active map[string]*active
	closed bool
	done   chan struct{}

	errMu sync.Mutex
	err   error
}

type active struct {
	run    Run
	series []uint
	points int
}

var (
	_ ppmslab.Sink     = (*Store)(nil)
	_ ppmslab.Finisher = (*Store)(nil)
)

// Open opens or creates the database at filename.
func Open(filename string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(filename), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, "open")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "db")
	}
	// one writer at a time keeps sqlite from returning SQLITE_BUSY
	sqlDB.SetMaxOpenConns(1)

	for _, table := range []any{
		&Run{},
		&Series{},
		&Sample{},
	} {
		if err := db.AutoMigrate(table); err != nil {
			return nil, errors.Wrap(err, "migrate")
		}
	}

	s := &Store{
		db:      db,
		objects: make(chan any, 100),
		active:  map[string]*active{},
		done:    make(chan struct{}),
	}
	go s.runWriter()
	return s, nil
}

// Record stores one row. The first row of a dataset opens a new run.
func (s *Store) Record(smp ppmslab.Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("store closed")
	}
	if err := s.Err(); err != nil {
		return err
	}
	a, ok := s.active[smp.Dataset]
	if !ok {
		var err error
		if a, err = s.begin(smp); err != nil {
			return err
		}
		s.active[smp.Dataset] = a
	}
	if len(smp.Values) != len(a.series) {
		return errors.Errorf("%s: %d values for %d columns", smp.Dataset, len(smp.Values), len(a.series))
	}
	ts := smp.Timestamp.UnixMilli()
	for i, v := range smp.Values {
		s.objects <- &Sample{
			SeriesID:  a.series[i],
			Index:     smp.Index,
			Timestamp: ts,
			Value:     v,
		}
	}
	a.points++
	return nil
}

func (s *Store) begin(smp ppmslab.Sample) (*active, error) {
	a := &active{run: Run{
		Dataset: smp.Dataset,
		Columns: strings.Join(smp.Columns, ","),
		Started: smp.Timestamp.UnixMilli(),
	}}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if res := tx.Create(&a.run); res.Error != nil {
			return errors.Wrap(res.Error, "create run")
		}
		for i, name := range smp.Columns {
			ser := Series{RunID: a.run.ID, Name: name, Pos: i}
			if res := tx.Create(&ser); res.Error != nil {
				return errors.Wrap(res.Error, "create series")
			}
			a.series = append(a.series, ser.ID)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "begin run")
	}
	log.Printf("store: run %d for %s", a.run.ID, smp.Dataset)
	return a, nil
}

// Finish flushes the dataset's samples and closes its run, noting sweepErr
// if the sweep stopped early.
func (s *Store) Finish(dataset string, sweepErr error) error {
	s.mu.Lock()
	a, ok := s.active[dataset]
	delete(s.active, dataset)
	if ok {
		s.flush()
	}
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return multierr.Append(s.Err(), s.finishRun(a, sweepErr))
}

func (s *Store) finishRun(a *active, sweepErr error) error {
	upd := map[string]any{
		"finished": time.Now().UnixMilli(),
		"points":   a.points,
	}
	if sweepErr != nil {
		upd["error"] = sweepErr.Error()
	}
	res := s.db.Model(&Run{}).Where("id = ?", a.run.ID).Updates(upd)
	return errors.Wrap(res.Error, "finish run")
}

// Err returns the first error the background writer hit.
func (s *Store) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// flush blocks until everything queued so far is written.
func (s *Store) flush() {
	ack := make(chan struct{})
	s.objects <- ack
	<-ack
}

// Close writes what is pending, marks unfinished runs as interrupted and
// closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	var pending []*active
	for name, a := range s.active {
		pending = append(pending, a)
		delete(s.active, name)
	}
	close(s.objects)
	s.mu.Unlock()
	<-s.done

	err := s.Err()
	for _, a := range pending {
		err = multierr.Append(err, s.finishRun(a, errors.New("interrupted")))
	}
	sqlDB, e := s.db.DB()
	if e != nil {
		return multierr.Append(err, errors.Wrap(e, "db"))
	}
	return multierr.Append(err, errors.Wrap(sqlDB.Close(), "close"))
}

func (s *Store) insert(objects []any) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		for _, row := range objects {
			if res := tx.Create(row); res.Error != nil {
				return errors.Wrap(res.Error, "create")
			}
		}
		return nil
	})
}

func (s *Store) runWriter() {
	defer close(s.done)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	var rows []any
	write := func() {
		if len(rows) == 0 {
			return
		}
		err := s.insert(rows)
		rows = nil
		if err != nil {
			s.errMu.Lock()
			if s.err == nil {
				s.err = errors.Wrap(err, "transaction")
			}
			s.errMu.Unlock()
		}
	}

	for {
		select {
		case obj, ok := <-s.objects:
			if !ok {
				write()
				return
			}
			if ack, isAck := obj.(chan struct{}); isAck {
				write()
				close(ack)
				continue
			}
			rows = append(rows, obj)
		case <-ticker.C:
			write()
		}
	}
}
