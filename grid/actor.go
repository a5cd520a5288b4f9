package grid

import (
	"sync/atomic"

	"github.com/rs/xid"
	"github.com/sarchlab/actsim/sim"
)

// An Actor is an object that lives in a grid World. Concrete actors embed
// ActorBase and provide Act and Glyph.
type Actor interface {
	sim.Actor

	// Glyph is the character the actor is drawn with.
	Glyph() rune

	base() *ActorBase
}

// ActorBase holds the position and world membership of an actor. It is only
// changed by the goroutine that holds the world's write lock.
type ActorBase struct {
	id       string
	x, y     int
	world    *World
	self     Actor
	paintSeq atomic.Uint64
}

func (a *ActorBase) base() *ActorBase {
	return a
}

// ID returns a unique ID, assigned when the actor first joins a world.
func (a *ActorBase) ID() string {
	return a.id
}

// X returns the column of the actor.
func (a *ActorBase) X() int {
	return a.x
}

// Y returns the row of the actor.
func (a *ActorBase) Y() int {
	return a.y
}

// World returns the world the actor is in, or nil.
func (a *ActorBase) World() *World {
	return a.world
}

// InWorld tells if the actor is in a world.
func (a *ActorBase) InWorld() bool {
	return a.world != nil
}

// PaintSequence returns when the actor was last painted. Actors painted later
// are drawn on top.
func (a *ActorBase) PaintSequence() uint64 {
	return a.paintSeq.Load()
}

// SetLocation moves the actor to a cell. Locations outside the world are
// clamped to its edge.
func (a *ActorBase) SetLocation(x, y int) {
	if a.world == nil {
		a.x, a.y = x, y
		return
	}

	a.world.move(a.self, x, y)
}

// Move moves the actor relative to its current cell.
func (a *ActorBase) Move(dx, dy int) {
	a.SetLocation(a.x+dx, a.y+dy)
}

// RemoveSelf takes the actor out of its world.
func (a *ActorBase) RemoveSelf() {
	if a.world == nil {
		return
	}

	a.world.RemoveObject(a.self)
}

func (a *ActorBase) join(w *World, self Actor, x, y int) {
	if a.id == "" {
		a.id = xid.New().String()
	}

	a.world = w
	a.self = self
	a.x, a.y = x, y
}

func (a *ActorBase) leave() {
	a.world = nil
}
