package monitoring

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/xid"
	"github.com/sarchlab/actsim/sim"
)

// A ProgressBar tracks the act cycles of one run segment, from a start to the
// next stop.
type ProgressBar struct {
	sync.Mutex
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	StartTime  time.Time `json:"start_time"`
	Total      uint64    `json:"total"`
	Finished   uint64    `json:"finished"`
	InProgress uint64    `json:"in_progress"`
}

// IncrementInProgress adds the number of in-progress element.
func (b *ProgressBar) IncrementInProgress(amount uint64) {
	b.Lock()
	defer b.Unlock()

	b.InProgress += amount
}

// IncrementFinished add a certain amount to finished element.
func (b *ProgressBar) IncrementFinished(amount uint64) {
	b.Lock()
	defer b.Unlock()

	b.Finished += amount
}

// MoveInProgressToFinished reduces the number of in progress item by a certain
// amount and increase the finished item by the same amount.
func (b *ProgressBar) MoveInProgressToFinished(amount uint64) {
	b.Lock()
	defer b.Unlock()

	amount = min(amount, b.InProgress)
	b.InProgress -= amount
	b.Finished += amount
}

func (b *ProgressBar) snapshot() *ProgressBar {
	b.Lock()
	defer b.Unlock()

	return &ProgressBar{
		ID:         b.ID,
		Name:       b.Name,
		StartTime:  b.StartTime,
		Total:      b.Total,
		Finished:   b.Finished,
		InProgress: b.InProgress,
	}
}

// CreateProgressBar creates a new progress bar. A total of 0 means the end is
// unknown.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := &ProgressBar{
		ID:        xid.New().String(),
		Name:      name,
		StartTime: time.Now(),
		Total:     total,
	}

	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.progressBars = append(m.progressBars, bar)

	return bar
}

// CompleteProgressBar removes a bar to be shown on the webpage.
func (m *Monitor) CompleteProgressBar(pb *ProgressBar) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.completeLocked(pb)
}

func (m *Monitor) completeLocked(pb *ProgressBar) {
	newBars := make([]*ProgressBar, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		if b != pb {
			newBars = append(newBars, b)
		}
	}

	m.progressBars = newBars
}

// ProgressBars returns copies of the bars being shown.
func (m *Monitor) ProgressBars() []*ProgressBar {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	bars := make([]*ProgressBar, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		bars = append(bars, b.snapshot())
	}

	return bars
}

// SimulationChanged keeps one progress bar per run segment. The cycle that
// is acting counts as in progress until the next one starts.
func (m *Monitor) SimulationChanged(e sim.Event) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	switch e.Kind {
	case sim.EventStarted:
		if m.segment != nil {
			m.completeLocked(m.segment)
		}

		m.segments++
		m.segment = &ProgressBar{
			ID:        xid.New().String(),
			Name:      fmt.Sprintf("Run %d", m.segments),
			StartTime: time.Now(),
		}
		m.progressBars = append(m.progressBars, m.segment)
	case sim.EventNewActCycle:
		if m.segment == nil {
			return
		}

		m.segment.MoveInProgressToFinished(1)
		m.segment.IncrementInProgress(1)
	case sim.EventStopped, sim.EventDisabled:
		if m.segment == nil {
			return
		}

		m.segment.MoveInProgressToFinished(1)
		m.completeLocked(m.segment)
		m.segment = nil
	}
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.writeJSON(w, m.ProgressBars())
}
