package sim

import "sync"

// EventKind tells what happened to the simulation.
type EventKind int

// Kinds of simulation events.
const (
	EventStarted EventKind = iota
	EventStopped
	EventDisabled
	EventSpeedChanged
	EventNewActCycle
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventStopped:
		return "stopped"
	case EventDisabled:
		return "disabled"
	case EventSpeedChanged:
		return "speed_changed"
	case EventNewActCycle:
		return "new_act_cycle"
	default:
		return "unknown"
	}
}

// An Event is a change in the state of the simulation.
type Event struct {
	Kind EventKind
}

// A Listener is notified of simulation events.
type Listener interface {
	SimulationChanged(e Event)
}

// An EventBus delivers events to listeners in the order they registered.
// Listeners may be added or removed while an event is being delivered; the
// change applies from the next event.
type EventBus struct {
	mu        sync.Mutex
	listeners []Listener
}

// AddListener registers a listener.
func (b *EventBus) AddListener(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.listeners = append(b.listeners, l)
}

// RemoveListener removes the earliest registration of l.
func (b *EventBus) RemoveListener(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, listener := range b.listeners {
		if listener == l {
			b.listeners = append(b.listeners[:i:i], b.listeners[i+1:]...)
			return
		}
	}
}

// Listeners returns the registered listeners.
func (b *EventBus) Listeners() []Listener {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]Listener(nil), b.listeners...)
}

// Notify delivers an event to all listeners.
func (b *EventBus) Notify(e Event) {
	for _, l := range b.Listeners() {
		l.SimulationChanged(e)
	}
}
