package store

// Run is one recorded dataset.
type Run struct {
	ID       uint   `gorm:"primaryKey"`
	Dataset  string `gorm:"index;not null"`
	Columns  string // comma separated, in dataset order
	Started  int64  `gorm:"index;not null"` // unix ms
	Finished int64  // zero while recording
	Points   int
	Error    string // why the sweep stopped early, if it did
}

// Series is one column of a run.
type Series struct {
	ID    uint `gorm:"primaryKey"`
	RunID uint `gorm:"index;not null"`
	Name  string
	Pos   int // column position
}

type Sample struct {
	ID        uint  `gorm:"primaryKey"`
	SeriesID  uint  `gorm:"index;not null"`
	Index     int   `gorm:"not null"`
	Timestamp int64 `gorm:"index;not null"`
	Value     float64
}
