package sim

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// A Scheduler runs the act loop of a world on its own goroutine. It paces the
// loop by the speed setting and follows pause, run-once, enable and abort
// requests from other goroutines.
//
// The loop blocks while
//
//	(paused || !enabled) && !runOnce && !aborted
//
// holds. Every change to one of those fields is followed by a broadcast on
// the scheduler's condition variable.
type Scheduler struct {
	EventBus

	name          string
	log           *zap.Logger
	clock         TimeProvider
	worlds        WorldSource
	speedDelegate SpeedDelegate
	lock          *WorldLock
	holder        Holder
	throttle      *RepaintThrottle
	runner        *ActCycleRunner
	intr          *interrupter

	mu                        sync.Mutex
	cond                      *sync.Cond
	paused                    bool
	enabled                   bool
	runOnce                   bool
	running                   bool
	aborted                   bool
	started                   bool
	abortCh                   chan struct{}
	done                      chan struct{}
	tasks                     []func()
	speed                     int
	interruptedForSpeedChange bool
	lastDelayTime             time.Time
	cycles                    uint64
	faults                    uint64
	lastFault                 error
}

// State is a snapshot of a scheduler.
type State struct {
	Paused    bool          `json:"paused"`
	Enabled   bool          `json:"enabled"`
	Running   bool          `json:"running"`
	Aborted   bool          `json:"aborted"`
	Speed     int           `json:"speed"`
	Delay     time.Duration `json:"delay_ns"`
	Cycles    uint64        `json:"cycles"`
	Faults    uint64        `json:"faults"`
	LastFault string        `json:"last_fault,omitempty"`
	FrameRate float64       `json:"frame_rate"`
}

// Start launches the act loop. Calling Start more than once has no effect.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	go s.run()
}

// Done returns a channel that is closed when the act loop has exited.
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the act loop has exited.
func (s *Scheduler) Wait() {
	<-s.done
}

// WorldLock returns the lock that guards the world.
func (s *Scheduler) WorldLock() *WorldLock {
	return s.lock
}

// Holder identifies the act loop's holds on the world lock. Code that runs on
// the act loop, such as RunLater tasks and actors, passes it to read the
// world the loop already holds.
func (s *Scheduler) Holder() Holder {
	return s.holder
}

// SetPaused pauses or resumes the act loop.
func (s *Scheduler) SetPaused(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.aborted || s.paused == paused {
		return
	}

	s.paused = paused

	if paused {
		if s.enabled {
			s.intr.interrupt()
		}
	} else {
		s.intr.clearPending()
	}

	s.cond.Broadcast()

	s.log.Debug("paused changed", zap.Bool("paused", paused))
}

// SetEnabled enables or disables the simulation. Disabling forces the
// simulation into the paused state.
func (s *Scheduler) SetEnabled(enabled bool) {
	s.mu.Lock()
	if s.aborted {
		s.mu.Unlock()
		return
	}

	changed := s.setEnabledLocked(enabled)
	s.mu.Unlock()

	if changed {
		s.notifyEnabled(enabled)
	}
}

func (s *Scheduler) setEnabledLocked(enabled bool) bool {
	if s.enabled == enabled {
		return false
	}

	s.enabled = enabled

	if !enabled {
		s.paused = true
		s.intr.interrupt()
	}

	s.cond.Broadcast()

	s.log.Debug("enabled changed", zap.Bool("enabled", enabled))

	return true
}

func (s *Scheduler) notifyEnabled(enabled bool) {
	if enabled {
		s.Notify(Event{Kind: EventStopped})
		return
	}

	s.Notify(Event{Kind: EventDisabled})
}

// SetSpeed sets the speed, clamped to [0, MaxSpeed]. A delay in progress is
// cut short and restarted with the new speed.
func (s *Scheduler) SetSpeed(speed int) {
	speed = ClampSpeed(speed)

	s.mu.Lock()
	changed := s.speed != speed
	if changed {
		s.speed = speed
		if s.intr.interruptIfDelaying() {
			s.interruptedForSpeedChange = true
		}
	}
	s.mu.Unlock()

	if changed {
		s.log.Debug("speed changed", zap.Int("speed", speed))
		s.Notify(Event{Kind: EventSpeedChanged})
	}

	if s.speedDelegate != nil {
		s.speedDelegate.SpeedChanged(speed)
	}
}

// Speed returns the current speed setting.
func (s *Scheduler) Speed() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.speed
}

// RunOnce lets the act loop run a single cycle while it stays paused.
func (s *Scheduler) RunOnce() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.aborted {
		return
	}

	s.runOnce = true
	s.cond.Broadcast()
}

// Abort stops the act loop for good. The loop exits after its current cycle,
// or immediately if it is blocked or waiting for the world lock.
func (s *Scheduler) Abort() {
	s.mu.Lock()
	if s.aborted {
		s.mu.Unlock()
		return
	}

	s.aborted = true
	close(s.abortCh)
	changed := s.setEnabledLocked(false)
	s.intr.interrupt()
	s.cond.Broadcast()
	s.mu.Unlock()

	s.log.Debug("aborted")

	if changed {
		s.notifyEnabled(false)
	}
}

// RunLater queues a task to run on the act loop goroutine under the world's
// write lock, before the next cycle or while the loop is paused.
func (s *Scheduler) RunLater(task func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.aborted {
		return
	}

	s.tasks = append(s.tasks, task)
	s.cond.Broadcast()
}

// Sleep delays user code for one cycle at the current speed.
func (s *Scheduler) Sleep() error {
	return s.SleepCycles(1)
}

// SleepCycles delays user code for n cycles at the current speed. If called
// while the act loop holds the world lock, the lock is released during the
// sleep so that the world can be painted. It returns ErrInterrupted if the
// sleep was cut short by a pause or an abort.
func (s *Scheduler) SleepCycles(n int) error {
	held := s.lock.ReleaseWrites(s.holder)
	defer s.lock.RestoreWrites(s.holder, held)

	for i := 0; i < n; i++ {
		s.mu.Lock()
		d := Delay(s.speed)
		s.mu.Unlock()

		err := s.intr.sleep(d)
		if err == nil {
			continue
		}

		if s.consumeSpeedChange() {
			i--
			continue
		}

		return err
	}

	return nil
}

// RepaintDone acknowledges the latest repaint.
func (s *Scheduler) RepaintDone() {
	s.throttle.RepaintDone()
}

// WorldCreated enables the simulation when a world is installed.
func (s *Scheduler) WorldCreated(World) {
	s.SetEnabled(true)
}

// WorldRemoved disables the simulation when the world is removed.
func (s *Scheduler) WorldRemoved(World) {
	s.SetEnabled(false)
}

// State returns a snapshot of the scheduler.
func (s *Scheduler) State() State {
	s.mu.Lock()
	st := State{
		Paused:  s.paused,
		Enabled: s.enabled,
		Running: s.running,
		Aborted: s.aborted,
		Speed:   s.speed,
		Delay:   Delay(s.speed),
		Cycles:  s.cycles,
		Faults:  s.faults,
	}
	if s.lastFault != nil {
		st.LastFault = s.lastFault.Error()
	}
	s.mu.Unlock()

	st.FrameRate = s.throttle.FrameRate()

	return st
}

func (s *Scheduler) run() {
	defer close(s.done)

	for {
		if s.consumeSpeedChange() {
			s.delay()
		}

		if !s.blockUntilRunnable() {
			break
		}

		if !s.runCycle() {
			continue
		}

		s.delay()
	}

	s.finish()
}

func (s *Scheduler) consumeSpeedChange() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sc := s.interruptedForSpeedChange
	s.interruptedForSpeedChange = false

	return sc
}

// runCycle runs one act cycle. It returns false if the cycle faulted, in
// which case the loop skips the delay.
func (s *Scheduler) runCycle() bool {
	world := s.currentWorld()
	if world == nil {
		return true
	}

	s.Notify(Event{Kind: EventNewActCycle})

	err := s.runner.Run(world, s.abortCh)

	s.mu.Lock()
	s.cycles++
	s.mu.Unlock()

	var fault *CycleFault
	if !errors.As(err, &fault) {
		return true
	}

	s.log.Error("act cycle failed",
		zap.String("scheduler", s.name),
		zap.String("actor", actorName(fault.Actor)),
		zap.Int("index", fault.Index),
		zap.Error(fault.Err),
	)

	s.mu.Lock()
	s.paused = true
	s.faults++
	s.lastFault = fault
	s.cond.Broadcast()
	s.mu.Unlock()

	return false
}

// blockUntilRunnable waits until the loop may run a cycle. It runs queued
// tasks and reports the running to stopped edge while waiting. It returns
// false once the scheduler is aborted.
func (s *Scheduler) blockUntilRunnable() bool {
	s.mu.Lock()

	for {
		if s.aborted {
			s.mu.Unlock()
			return false
		}

		if len(s.tasks) > 0 {
			tasks := s.tasks
			s.tasks = nil
			s.mu.Unlock()

			s.runTasks(tasks)

			s.mu.Lock()

			continue
		}

		if !s.mustWaitLocked() {
			break
		}

		if s.running {
			s.running = false
			enabled := s.enabled
			s.mu.Unlock()

			if enabled {
				s.Notify(Event{Kind: EventStopped})
			}
			s.callWorld(World.Stopped)

			s.mu.Lock()

			continue
		}

		s.intr.clearPending()
		s.mu.Unlock()

		s.throttle.RequestRepaint()

		s.mu.Lock()
		if s.mustWaitLocked() && len(s.tasks) == 0 {
			s.cond.Wait()
		}
	}

	s.runOnce = false

	rising := !s.paused && s.enabled && !s.running
	if rising {
		s.running = true
	}
	s.mu.Unlock()

	if rising {
		s.throttle.Reset()

		s.mu.Lock()
		s.lastDelayTime = s.clock.Now()
		s.mu.Unlock()

		s.Notify(Event{Kind: EventStarted})
		s.callWorld(World.Started)
	}

	return true
}

func (s *Scheduler) mustWaitLocked() bool {
	return (s.paused || !s.enabled) && !s.runOnce && !s.aborted
}

// delay waits out the rest of the current speed's delay, counted from the
// planned end of the previous delay. Oversleeping is made up in the next
// cycle. An interrupted delay leaves the pacing base untouched.
func (s *Scheduler) delay() {
	s.mu.Lock()
	if s.paused || s.aborted {
		s.mu.Unlock()
		return
	}

	d := Delay(s.speed)
	last := s.lastDelayTime
	s.mu.Unlock()

	now := s.clock.Now()
	wait := d - now.Sub(last)
	if wait > d {
		wait = d
	}
	if wait < 0 {
		wait = 0
	}

	if err := s.intr.sleep(wait); err != nil {
		return
	}

	s.mu.Lock()
	s.lastDelayTime = now.Add(wait)
	s.mu.Unlock()
}

func (s *Scheduler) finish() {
	s.mu.Lock()
	wasRunning := s.running
	s.running = false
	s.mu.Unlock()

	if wasRunning {
		s.callWorld(World.Stopped)
	}

	s.log.Debug("act loop exited", zap.String("scheduler", s.name))
}

func (s *Scheduler) currentWorld() World {
	if s.worlds == nil {
		return nil
	}

	return s.worlds.World()
}

// callWorld calls a world lifecycle method under the write lock.
func (s *Scheduler) callWorld(f func(World)) {
	world := s.currentWorld()
	if world == nil {
		return
	}

	s.withWriteLock(func() { f(world) })
}

func (s *Scheduler) runTasks(tasks []func()) {
	for _, task := range tasks {
		s.withWriteLock(task)
	}
}

func (s *Scheduler) withWriteLock(f func()) {
	s.lock.Write(s.holder)
	defer s.lock.Unlock(s.holder)

	defer func() {
		if r := recover(); r != nil {
			s.log.Error("task panicked",
				zap.String("scheduler", s.name),
				zap.Error(panicError(r)),
			)
		}
	}()

	f()
}

// actorName names an actor for the log. Actors with an ID use it.
func actorName(a Actor) string {
	if a == nil {
		return "world"
	}

	if id, ok := a.(interface{ ID() string }); ok {
		return id.ID()
	}

	return fmt.Sprintf("%T", a)
}
