// Package grid provides a cell based world that the act loop can drive.
package grid

import (
	"errors"
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/sarchlab/actsim/sim"
)

// ErrOutOfBounds is returned when an actor is placed outside of the world.
var ErrOutOfBounds = errors.New("location out of bounds")

// Hooks are the world's own callbacks. Any of them may be nil.
type Hooks struct {
	Act     func() error
	Started func()
	Stopped func()
}

// A World is a rectangular grid of cells holding actors. The actors act in
// the order they were added.
//
// A World is not safe for concurrent use. Writers must hold the world lock
// for writing and readers must hold it for reading.
type World struct {
	width    int
	height   int
	cellSize int
	hooks    Hooks

	actors []Actor
	cells  [][]Actor

	actSeq   uint64
	paintSeq atomic.Uint64
}

// NewWorld creates an empty world of width x height cells, each cellSize
// pixels wide.
func NewWorld(width, height, cellSize int) (*World, error) {
	if width <= 0 || height <= 0 || cellSize <= 0 {
		return nil, fmt.Errorf(
			"invalid world size %dx%d, cell size %d",
			width, height, cellSize)
	}

	return &World{
		width:    width,
		height:   height,
		cellSize: cellSize,
		cells:    make([][]Actor, width*height),
	}, nil
}

// SetHooks sets the world's own callbacks.
func (w *World) SetHooks(h Hooks) {
	w.hooks = h
}

// Width returns the number of columns.
func (w *World) Width() int {
	return w.width
}

// Height returns the number of rows.
func (w *World) Height() int {
	return w.height
}

// CellSize returns the size of a cell in pixels.
func (w *World) CellSize() int {
	return w.cellSize
}

// ActSequence returns the number of act cycles started in this world.
func (w *World) ActSequence() uint64 {
	return w.actSeq
}

func (w *World) inBounds(x, y int) bool {
	return x >= 0 && x < w.width && y >= 0 && y < w.height
}

func (w *World) clamp(x, y int) (int, int) {
	return max(0, min(x, w.width-1)), max(0, min(y, w.height-1))
}

// AddObject puts an actor into the world at a cell. An actor that is in
// another world leaves it first. Adding an actor already in this world moves
// it.
func (w *World) AddObject(a Actor, x, y int) error {
	if !w.inBounds(x, y) {
		return fmt.Errorf("%w: (%d, %d) in %dx%d world",
			ErrOutOfBounds, x, y, w.width, w.height)
	}

	b := a.base()
	if b.world == w {
		w.move(a, x, y)
		return nil
	}

	if b.world != nil {
		b.world.RemoveObject(a)
	}

	b.join(w, a, x, y)
	w.actors = append(w.actors, a)
	w.addToCell(a, x, y)

	return nil
}

// RemoveObject takes an actor out of the world. It returns false if the actor
// was not in the world.
func (w *World) RemoveObject(a Actor) bool {
	b := a.base()
	if b.world != w {
		return false
	}

	w.removeFromCell(a, b.x, b.y)
	w.actors = slices.DeleteFunc(w.actors, func(o Actor) bool {
		return o == a
	})
	b.leave()

	return true
}

func (w *World) move(a Actor, x, y int) {
	x, y = w.clamp(x, y)
	b := a.base()

	if b.x == x && b.y == y {
		return
	}

	w.removeFromCell(a, b.x, b.y)
	b.x, b.y = x, y
	w.addToCell(a, x, y)
}

func (w *World) addToCell(a Actor, x, y int) {
	idx := y*w.width + x
	w.cells[idx] = append(w.cells[idx], a)
}

func (w *World) removeFromCell(a Actor, x, y int) {
	if !w.inBounds(x, y) {
		return
	}

	idx := y*w.width + x
	w.cells[idx] = slices.DeleteFunc(w.cells[idx], func(o Actor) bool {
		return o == a
	})
}

// NumberOfObjects returns how many actors are in the world.
func (w *World) NumberOfObjects() int {
	return len(w.actors)
}

// Objects returns the actors in act order.
func (w *World) Objects() []Actor {
	return slices.Clone(w.actors)
}

// ObjectsAt returns the actors in a cell.
func (w *World) ObjectsAt(x, y int) []Actor {
	if !w.inBounds(x, y) {
		return nil
	}

	return slices.Clone(w.cells[y*w.width+x])
}

// ToCell converts a pixel position to a cell position.
func (w *World) ToCell(px, py int) (int, int) {
	return floorDiv(px, w.cellSize), floorDiv(py, w.cellSize)
}

func floorDiv(v, d int) int {
	if v < 0 {
		return (v - d + 1) / d
	}

	return v / d
}

// ObjectsAtPixel returns the actors under a pixel, the most recently painted
// first.
func (w *World) ObjectsAtPixel(px, py int) []Actor {
	objs := w.ObjectsAt(w.ToCell(px, py))

	slices.SortStableFunc(objs, func(a, b Actor) int {
		sa, sb := a.base().PaintSequence(), b.base().PaintSequence()
		switch {
		case sa > sb:
			return -1
		case sa < sb:
			return 1
		default:
			return 0
		}
	})

	return objs
}

// TopmostAt returns the actor drawn on top at a pixel, or nil.
func (w *World) TopmostAt(px, py int) Actor {
	objs := w.ObjectsAtPixel(px, py)
	if len(objs) == 0 {
		return nil
	}

	return objs[0]
}

// PaintOrder returns the actors in the order they should be drawn and stamps
// each with a new paint sequence number. It only needs a read hold.
func (w *World) PaintOrder() []Actor {
	objs := w.Objects()
	for _, a := range objs {
		a.base().paintSeq.Store(w.paintSeq.Add(1))
	}

	return objs
}

// Act runs the world's act hook.
func (w *World) Act() error {
	if w.hooks.Act == nil {
		return nil
	}

	return w.hooks.Act()
}

// Started runs the world's started hook.
func (w *World) Started() {
	if w.hooks.Started != nil {
		w.hooks.Started()
	}
}

// Stopped runs the world's stopped hook.
func (w *World) Stopped() {
	if w.hooks.Stopped != nil {
		w.hooks.Stopped()
	}
}

// ActorsInActOrder lists the actors for the act loop.
func (w *World) ActorsInActOrder() []sim.Actor {
	actors := make([]sim.Actor, len(w.actors))
	for i, a := range w.actors {
		actors[i] = a
	}

	return actors
}

// StartSequence marks the start of an act cycle.
func (w *World) StartSequence() {
	w.actSeq++
}
