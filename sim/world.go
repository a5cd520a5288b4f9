package sim

import "time"

// A World holds the actors that the act loop drives. It is owned outside of
// the scheduler, which only calls it back.
type World interface {
	// Act runs the world's own update code once per cycle, before the actors.
	Act() error

	// Started is called when the simulation starts running.
	Started()

	// Stopped is called when the simulation stops running.
	Stopped()

	// ActorsInActOrder lists the actors in the order they act. The scheduler
	// copies the list before iterating over it.
	ActorsInActOrder() []Actor
}

// An Actor is an object in a world that acts once per cycle.
type Actor interface {
	Act() error

	// InWorld tells if the actor is still attached to a world. Actors removed
	// earlier in the cycle are skipped.
	InWorld() bool
}

// A SequenceStarter is a World that wants to know when a new act cycle
// begins.
type SequenceStarter interface {
	StartSequence()
}

// A WorldSource returns the currently installed world, or nil.
type WorldSource interface {
	World() World
}

// A Repainter repaints the view of the world. It reports completion through
// Scheduler.RepaintDone.
type Repainter interface {
	Repaint()
}

// A SpeedDelegate is told about every speed setting, for example to persist
// it.
type SpeedDelegate interface {
	SpeedChanged(speed int)
}

// A TimeProvider supplies wall clock time.
type TimeProvider interface {
	Now() time.Time
}

type realTime struct{}

func (realTime) Now() time.Time {
	return time.Now()
}
