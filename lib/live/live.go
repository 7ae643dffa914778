// Package live publishes recorded rows while a sweep runs: a websocket
// stream for plotting, a short in-memory history per series, and
// prometheus gauges of the latest values.
package live

import (
	"sort"
	"sync"

	"github.com/chrispappas/golang-generics-set/set"
	"github.com/gammazero/deque"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/gotmc/ppmslab"
)

// Point is one value of one column.
type Point struct {
	Dataset string  `json:"dataset"`
	Series  string  `json:"series"`
	Index   int     `json:"index"`
	Time    int64   `json:"t"` // unix ms
	Value   float64 `json:"value"`
}

// Name is the series key, "dataset/column".
func (p Point) Name() string { return p.Dataset + "/" + p.Series }

// Finished marks the end of a dataset.
type Finished struct {
	Dataset string `json:"dataset"`
	Error   string `json:"error,omitempty"`
}

func (f Finished) Name() string { return f.Dataset }

// Monitor is a ppmslab.Sink feeding live subscribers.
type Monitor struct {
	broker  *Broker
	limit   int
	reg     *prometheus.Registry
	value   *prometheus.GaugeVec
	points  prometheus.Counter
	mu      sync.Mutex
	history map[string]*deque.Deque[Point]
	stop    sync.Once
}

var (
	_ ppmslab.Sink     = (*Monitor)(nil)
	_ ppmslab.Finisher = (*Monitor)(nil)
)

// New starts a monitor keeping the last history points of every series.
func New(history int) *Monitor {
	if history <= 0 {
		history = 2000
	}
	m := &Monitor{
		broker:  NewBroker(),
		limit:   history,
		reg:     prometheus.NewRegistry(),
		history: map[string]*deque.Deque[Point]{},
		value: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ppmslab_value",
			Help: "Latest recorded value per column.",
		}, []string{"column"}),
		points: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ppmslab_points_total",
			Help: "Rows recorded since start.",
		}),
	}
	m.reg.MustRegister(
		m.value,
		m.points,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "ppmslab_live_subscribers",
			Help: "Connected live clients.",
		}, func() float64 { return float64(m.broker.SubCount()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "ppmslab_live_dropped_total",
			Help: "Messages dropped for slow clients.",
		}, func() float64 { return float64(m.broker.DropCount()) }),
	)
	go m.broker.Start()
	return m
}

// Record publishes every value of the row.
func (m *Monitor) Record(smp ppmslab.Sample) error {
	ts := smp.Timestamp.UnixMilli()
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, col := range smp.Columns {
		if i >= len(smp.Values) {
			break
		}
		p := Point{
			Dataset: smp.Dataset,
			Series:  col,
			Index:   smp.Index,
			Time:    ts,
			Value:   smp.Values[i],
		}
		h, ok := m.history[p.Name()]
		if !ok {
			h = deque.New[Point](0, 64)
			m.history[p.Name()] = h
		}
		// a new run under an old name starts over
		if h.Len() > 0 && h.Back().Index >= p.Index {
			h.Clear()
		}
		h.PushBack(p)
		for h.Len() > m.limit {
			h.PopFront()
		}
		m.value.WithLabelValues(col).Set(p.Value)
		m.broker.Publish(p)
	}
	m.points.Inc()
	return nil
}

// Finish tells subscribers the dataset is complete.
func (m *Monitor) Finish(dataset string, err error) error {
	f := Finished{Dataset: dataset}
	if err != nil {
		f.Error = err.Error()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.broker.Publish(f)
	return nil
}

// Series lists the series with history, sorted.
func (m *Monitor) Series() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.history))
	for name := range m.history {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// History returns the retained points of one series, oldest first.
func (m *Monitor) History(name string) []Point {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot(name)
}

func (m *Monitor) snapshot(name string) []Point {
	h, ok := m.history[name]
	if !ok {
		return nil
	}
	out := make([]Point, h.Len())
	for i := range out {
		out[i] = h.At(i)
	}
	return out
}

// Subscription is a live feed of selected series.
type Subscription struct {
	// Backlog holds the retained history of the selected series at the
	// moment of subscribing. C continues where it ends.
	Backlog []Point
	C       <-chan Message

	ch     chan Message
	m      *Monitor
	filter set.Set[string]
}

// Subscribe selects series by full name ("dataset/column") or by column
// name alone. No names selects everything. Finished messages are always
// delivered.
func (m *Monitor) Subscribe(names ...string) *Subscription {
	filter := set.FromSlice(names)
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := m.broker.Subscribe()
	sub := &Subscription{C: ch, ch: ch, m: m, filter: filter}
	keys := make([]string, 0, len(m.history))
	for name := range m.history {
		keys = append(keys, name)
	}
	sort.Strings(keys)
	for _, name := range keys {
		h := m.history[name]
		if h.Len() > 0 && sub.Wants(h.Front()) {
			sub.Backlog = append(sub.Backlog, m.snapshot(name)...)
		}
	}
	return sub
}

// Wants reports whether msg passes the subscription's filter.
func (s *Subscription) Wants(msg Message) bool {
	p, ok := msg.(Point)
	if !ok || len(s.filter) == 0 {
		return true
	}
	return s.filter.Has(p.Name()) || s.filter.Has(p.Series)
}

// Close stops the feed and closes C.
func (s *Subscription) Close() {
	s.m.broker.Unsubscribe(s.ch)
}

// Registry returns the monitor's prometheus registry.
func (m *Monitor) Registry() *prometheus.Registry { return m.reg }

// Close disconnects every subscriber.
func (m *Monitor) Close() error {
	m.stop.Do(m.broker.Stop)
	return nil
}
