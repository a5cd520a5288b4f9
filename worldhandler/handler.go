// Package worldhandler connects a grid world to the act loop and to a canvas.
// It is the only place where the UI touches the world.
package worldhandler

import (
	"errors"
	"sync"
	"time"

	"github.com/sarchlab/actsim/grid"
	"github.com/sarchlab/actsim/sim"
	"go.uber.org/zap"
)

// DefaultReadTimeout is how long the UI waits for a read hold on the world.
const DefaultReadTimeout = 500 * time.Millisecond

// ErrBusy is returned when the world could not be read in time because the
// act loop is holding it.
var ErrBusy = errors.New("world is busy")

// A Canvas draws the world. It calls Handler.Repainted after each repaint.
type Canvas interface {
	Repaint()
}

// A TaskRunner runs world mutations on the act loop goroutine.
type TaskRunner interface {
	RunLater(task func())
	RepaintDone()
}

// A WorldListener is told when a world is installed or removed. It is called
// on the act loop goroutine.
type WorldListener interface {
	WorldCreated(w sim.World)
	WorldRemoved(w sim.World)
}

// A Sprite is an actor as seen by a canvas.
type Sprite struct {
	ID    string `json:"id"`
	X     int    `json:"x"`
	Y     int    `json:"y"`
	Glyph rune   `json:"glyph"`
}

// A Frame is a copy of the world taken under a read hold.
type Frame struct {
	Width       int      `json:"width"`
	Height      int      `json:"height"`
	CellSize    int      `json:"cell_size"`
	ActSequence uint64   `json:"act_sequence"`
	Sprites     []Sprite `json:"sprites"`
}

type dragState struct {
	actor      grid.Actor
	origX      int
	origY      int
	lastX      int
	lastY      int
	inProgress bool
}

// A Handler owns the currently installed world.
type Handler struct {
	lock        *sim.WorldLock
	dragHolder  sim.Holder
	readTimeout time.Duration
	log         *zap.Logger

	mu        sync.Mutex
	world     *grid.World
	canvas    Canvas
	tasks     TaskRunner
	listeners []WorldListener
	drag      dragState
}

// World returns the installed world, or nil.
func (h *Handler) World() sim.World {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.world == nil {
		return nil
	}

	return h.world
}

// GridWorld returns the installed world, or nil.
func (h *Handler) GridWorld() *grid.World {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.world
}

// WorldLock returns the lock that guards the world.
func (h *Handler) WorldLock() *sim.WorldLock {
	return h.lock
}

// SetCanvas sets the canvas that draws the world.
func (h *Handler) SetCanvas(c Canvas) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.canvas = c
}

// SetTaskRunner sets where world mutations are run, usually the scheduler.
func (h *Handler) SetTaskRunner(t TaskRunner) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.tasks = t
}

// AddWorldListener registers a listener for world changes.
func (h *Handler) AddWorldListener(l WorldListener) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.listeners = append(h.listeners, l)
}

func (h *Handler) worldListeners() []WorldListener {
	h.mu.Lock()
	defer h.mu.Unlock()

	return append([]WorldListener(nil), h.listeners...)
}

// SetWorld installs a world, replacing the current one. Listeners hear about
// the removal and the creation on the act loop goroutine.
func (h *Handler) SetWorld(w *grid.World) {
	h.mu.Lock()
	old := h.world
	h.world = w
	h.drag = dragState{}
	h.mu.Unlock()

	h.runLater(func() {
		for _, l := range h.worldListeners() {
			if old != nil {
				l.WorldRemoved(old)
			}

			if w != nil {
				l.WorldCreated(w)
			}
		}
	})

	h.Repaint()
}

// DiscardWorld removes the current world.
func (h *Handler) DiscardWorld() {
	h.mu.Lock()
	old := h.world
	h.world = nil
	h.drag = dragState{}
	h.mu.Unlock()

	if old == nil {
		return
	}

	h.runLater(func() {
		for _, l := range h.worldListeners() {
			l.WorldRemoved(old)
		}
	})

	h.Repaint()
}

func (h *Handler) runLater(task func()) {
	h.mu.Lock()
	tasks := h.tasks
	h.mu.Unlock()

	if tasks == nil {
		h.log.Warn("no task runner, dropping world task")
		return
	}

	tasks.RunLater(task)
}

// read runs f under a timed read hold on the world.
func (h *Handler) read(f func(w *grid.World)) error {
	return h.readAs(0, f)
}

// readAs runs f under a timed read hold taken on behalf of holder.
func (h *Handler) readAs(holder sim.Holder, f func(w *grid.World)) error {
	w := h.GridWorld()
	if w == nil {
		return nil
	}

	if h.lock.TryReadAs(holder, h.readTimeout) != sim.LockAcquired {
		return ErrBusy
	}
	defer h.lock.RUnlock()

	f(w)

	return nil
}

// Inspect runs f with the world held for reading. It returns ErrBusy if the
// hold cannot be taken in time and does nothing if no world is installed.
func (h *Handler) Inspect(f func(w *grid.World)) error {
	return h.read(f)
}

// InspectAs is Inspect for code that may already hold the world for
// writing as holder, such as a task queued with RunLater. It does not wait
// for its own write hold.
func (h *Handler) InspectAs(holder sim.Holder, f func(w *grid.World)) error {
	return h.readAs(holder, f)
}

// ObjectsAt returns the actors under a pixel, topmost first.
func (h *Handler) ObjectsAt(px, py int) ([]grid.Actor, error) {
	var objs []grid.Actor

	err := h.read(func(w *grid.World) {
		objs = w.ObjectsAtPixel(px, py)
	})

	return objs, err
}

// TopmostAt returns the actor drawn on top at a pixel, or nil.
func (h *Handler) TopmostAt(px, py int) (grid.Actor, error) {
	var a grid.Actor

	err := h.read(func(w *grid.World) {
		a = w.TopmostAt(px, py)
	})

	return a, err
}

// Snapshot copies the world for painting. Actors are listed in paint order.
// It returns a zero Frame if no world is installed.
func (h *Handler) Snapshot() (Frame, error) {
	var f Frame

	err := h.read(func(w *grid.World) {
		f.Width = w.Width()
		f.Height = w.Height()
		f.CellSize = w.CellSize()
		f.ActSequence = w.ActSequence()

		for _, a := range w.PaintOrder() {
			f.Sprites = append(f.Sprites, spriteOf(a))
		}
	})

	return f, err
}

type identified interface {
	ID() string
	X() int
	Y() int
}

func spriteOf(a grid.Actor) Sprite {
	s := Sprite{Glyph: a.Glyph()}
	if b, ok := a.(identified); ok {
		s.ID = b.ID()
		s.X = b.X()
		s.Y = b.Y()
	}

	return s
}

// Repaint asks the canvas to draw the world.
func (h *Handler) Repaint() {
	h.mu.Lock()
	c := h.canvas
	h.mu.Unlock()

	if c != nil {
		c.Repaint()
	}
}

// Repainted is called by the canvas when it has drawn the world.
func (h *Handler) Repainted() {
	h.mu.Lock()
	tasks := h.tasks
	h.mu.Unlock()

	if tasks != nil {
		tasks.RepaintDone()
	}
}
