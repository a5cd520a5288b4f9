package datarecording

import (
	"sync"
	"time"

	"github.com/sarchlab/actsim/sim"
	"go.uber.org/zap"
)

// EventTable is the table that holds simulation events.
const EventTable = "sim_events"

// EventEntry is one recorded simulation event.
type EventEntry struct {
	Time   float64
	Kind   string
	Speed  int
	Cycles int64
	Paused bool
}

// A StateSource reports the scheduler state at the time of an event.
type StateSource interface {
	State() sim.State
}

// An EventLog records simulation events. New act cycles are only counted,
// not recorded, unless RecordCycles is set.
type EventLog struct {
	recorder     DataRecorder
	source       StateSource
	log          *zap.Logger
	RecordCycles bool

	mu      sync.Mutex
	counts  map[sim.EventKind]int
	failed  bool
	timeNow func() time.Time
}

// NewEventLog creates the event table and returns a listener that fills it.
func NewEventLog(
	recorder DataRecorder,
	source StateSource,
	logger *zap.Logger,
) (*EventLog, error) {
	if err := recorder.CreateTable(EventTable, EventEntry{}); err != nil {
		return nil, err
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &EventLog{
		recorder: recorder,
		source:   source,
		log:      logger,
		counts:   make(map[sim.EventKind]int),
		timeNow:  time.Now,
	}, nil
}

// SimulationChanged records an event.
func (l *EventLog) SimulationChanged(e sim.Event) {
	l.mu.Lock()
	l.counts[e.Kind]++
	skip := e.Kind == sim.EventNewActCycle && !l.RecordCycles
	l.mu.Unlock()

	if skip {
		return
	}

	entry := EventEntry{
		Time: float64(l.timeNow().UnixNano()) / 1e9,
		Kind: e.Kind.String(),
	}

	if l.source != nil {
		st := l.source.State()
		entry.Speed = st.Speed
		entry.Cycles = int64(st.Cycles)
		entry.Paused = st.Paused
	}

	if err := l.recorder.InsertData(EventTable, entry); err != nil {
		l.reportFailure(err)
	}
}

// reportFailure logs the first failure only.
func (l *EventLog) reportFailure(err error) {
	l.mu.Lock()
	first := !l.failed
	l.failed = true
	l.mu.Unlock()

	if first {
		l.log.Error("cannot record simulation event", zap.Error(err))
	}
}

// Count returns how many events of a kind have been seen.
func (l *EventLog) Count(kind sim.EventKind) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.counts[kind]
}
