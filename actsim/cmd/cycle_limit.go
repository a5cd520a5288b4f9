package cmd

import (
	"sync"

	"github.com/sarchlab/actsim/monitoring"
	"github.com/sarchlab/actsim/sim"
)

type pauser interface {
	SetPaused(paused bool)
	State() sim.State
}

// cycleLimit pauses the simulation once a number of act cycles have started
// and reports when the simulation has stopped after that, or has stopped on
// a fault.
type cycleLimit struct {
	sim   pauser
	limit uint64
	bar   *monitoring.ProgressBar

	mu      sync.Mutex
	started uint64
	reached bool
	done    chan struct{}
}

func newCycleLimit(s pauser, limit uint64) *cycleLimit {
	return &cycleLimit{
		sim:   s,
		limit: limit,
		done:  make(chan struct{}),
	}
}

func (l *cycleLimit) limitReached() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.reached
}

func (l *cycleLimit) SimulationChanged(e sim.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch e.Kind {
	case sim.EventNewActCycle:
		if l.limit == 0 || l.reached {
			return
		}

		if l.bar != nil && l.started > 0 {
			l.bar.IncrementFinished(1)
		}

		l.started++
		if l.started == l.limit {
			l.reached = true
			l.sim.SetPaused(true)
		}
	case sim.EventStopped:
		if !l.reached && l.sim.State().LastFault == "" {
			return
		}

		if l.bar != nil && l.reached {
			l.bar.IncrementFinished(1)
		}

		select {
		case <-l.done:
		default:
			close(l.done)
		}
	}
}
