package sim

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Builder can build schedulers.
type Builder struct {
	worlds         WorldSource
	repainter      Repainter
	speedDelegate  SpeedDelegate
	logger         *zap.Logger
	clock          TimeProvider
	lock           *WorldLock
	speed          int
	minFrameRate   float64
	maxFrameRate   float64
	repaintTimeout time.Duration
}

// MakeBuilder creates a builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		speed:          50,
		minFrameRate:   DefaultMinFrameRate,
		maxFrameRate:   DefaultMaxFrameRate,
		repaintTimeout: DefaultRepaintTimeout,
	}
}

// WithWorldSource sets where the scheduler finds the current world.
func (b Builder) WithWorldSource(worlds WorldSource) Builder {
	b.worlds = worlds
	return b
}

// WithRepainter sets the collaborator that repaints the world.
func (b Builder) WithRepainter(r Repainter) Builder {
	b.repainter = r
	return b
}

// WithSpeedDelegate sets the collaborator told about every speed setting.
func (b Builder) WithSpeedDelegate(d SpeedDelegate) Builder {
	b.speedDelegate = d
	return b
}

// WithLogger sets the logger.
func (b Builder) WithLogger(logger *zap.Logger) Builder {
	b.logger = logger
	return b
}

// WithTimeProvider sets the clock used to pace the loop and measure the
// frame rate.
func (b Builder) WithTimeProvider(clock TimeProvider) Builder {
	b.clock = clock
	return b
}

// WithWorldLock sets the lock that guards the world. A new lock is created if
// none is given.
func (b Builder) WithWorldLock(lock *WorldLock) Builder {
	b.lock = lock
	return b
}

// WithInitialSpeed sets the speed the scheduler starts with.
func (b Builder) WithInitialSpeed(speed int) Builder {
	b.speed = speed
	return b
}

// WithFrameRates sets the frame rate bounds of the repaint throttle.
func (b Builder) WithFrameRates(minRate, maxRate float64) Builder {
	b.minFrameRate = minRate
	b.maxFrameRate = maxRate
	return b
}

// WithRepaintTimeout sets how long a synchronous repaint may take before the
// loop moves on.
func (b Builder) WithRepaintTimeout(d time.Duration) Builder {
	b.repaintTimeout = d
	return b
}

// Build creates a paused and disabled scheduler. The act loop does not run
// before Start is called.
func (b Builder) Build(name string) *Scheduler {
	s := &Scheduler{
		name:          name,
		log:           b.logger,
		clock:         b.clock,
		worlds:        b.worlds,
		speedDelegate: b.speedDelegate,
		lock:          b.lock,
		holder:        NewHolder(),
		intr:          newInterrupter(),
		paused:        true,
		speed:         ClampSpeed(b.speed),
		abortCh:       make(chan struct{}),
		done:          make(chan struct{}),
	}

	if s.log == nil {
		s.log = zap.NewNop()
	}

	if s.clock == nil {
		s.clock = realTime{}
	}

	if s.lock == nil {
		s.lock = NewWorldLock()
	}

	repainter := b.repainter
	if repainter == nil {
		repainter = noRepaint{s: s}
	}

	s.cond = sync.NewCond(&s.mu)
	s.throttle = NewRepaintThrottle(
		repainter, s.clock, b.minFrameRate, b.maxFrameRate, b.repaintTimeout)
	s.runner = NewActCycleRunner(s.lock, s.holder, s.throttle, s.isEnabled)
	s.lastDelayTime = s.clock.Now()

	return s
}

func (s *Scheduler) isEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.enabled
}

// noRepaint acknowledges repaints right away when there is nothing to paint.
type noRepaint struct {
	s *Scheduler
}

func (r noRepaint) Repaint() {
	r.s.RepaintDone()
}
