package sim

import (
	"errors"
	"fmt"
)

// A CycleFault is a failure of user code during an act cycle. The rest of the
// cycle is abandoned.
type CycleFault struct {
	// Index is the position of the failing actor in act order, or -1 if the
	// world's own Act failed.
	Index int
	Actor Actor
	Err   error
}

func (f *CycleFault) Error() string {
	if f.Index < 0 {
		return fmt.Sprintf("world act failed: %v", f.Err)
	}

	return fmt.Sprintf("actor %d act failed: %v", f.Index, f.Err)
}

func (f *CycleFault) Unwrap() error {
	return f.Err
}

// An ActCycleRunner runs one act cycle of a world under the world's write
// lock.
type ActCycleRunner struct {
	lock     *WorldLock
	holder   Holder
	throttle *RepaintThrottle
	enabled  func() bool
}

// NewActCycleRunner creates a runner that acquires lock as holder. The enabled
// function, if not nil, is checked before each actor; the cycle ends early
// once it returns false. The throttle, if not nil, is asked for a repaint after
// each cycle that completes.
func NewActCycleRunner(
	lock *WorldLock,
	holder Holder,
	throttle *RepaintThrottle,
	enabled func() bool,
) *ActCycleRunner {
	return &ActCycleRunner{
		lock:     lock,
		holder:   holder,
		throttle: throttle,
		enabled:  enabled,
	}
}

// Run acts the world and then every actor still in the world. It returns
// ErrInterrupted if the lock acquisition or any act was interrupted, and a
// *CycleFault if any act failed. A cycle cut short because the simulation
// was disabled does not repaint.
func (r *ActCycleRunner) Run(world World, interrupt <-chan struct{}) error {
	completed, err := r.runLocked(world, interrupt)
	if completed && err == nil && r.throttle != nil {
		r.throttle.RepaintIfNeeded()
	}

	return err
}

// runLocked reports whether every actor got its turn.
func (r *ActCycleRunner) runLocked(
	world World,
	interrupt <-chan struct{},
) (bool, error) {
	if r.lock.WriteInterruptibly(r.holder, interrupt) != LockAcquired {
		return false, ErrInterrupted
	}

	defer func() {
		if r.lock.IsWriteLockedBy(r.holder) {
			r.lock.Unlock(r.holder)
		}
	}()

	if s, ok := world.(SequenceStarter); ok {
		s.StartSequence()
	}

	var interrupted error

	err := callAct(world.Act)
	if err != nil {
		if !errors.Is(err, ErrInterrupted) {
			return false, &CycleFault{Index: -1, Err: err}
		}

		interrupted = err
	}

	actors := append([]Actor(nil), world.ActorsInActOrder()...)
	for i, a := range actors {
		if r.enabled != nil && !r.enabled() {
			return false, interrupted
		}

		if !a.InWorld() {
			continue
		}

		err := callAct(a.Act)
		if err == nil {
			continue
		}

		if errors.Is(err, ErrInterrupted) {
			if interrupted == nil {
				interrupted = err
			}

			continue
		}

		return false, &CycleFault{Index: i, Actor: a, Err: err}
	}

	return true, interrupted
}

// callAct calls user code, turning a panic into an error.
func callAct(act func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
		}
	}()

	return act()
}

func panicError(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}

	return fmt.Errorf("panic: %v", r)
}
