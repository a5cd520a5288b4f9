package worldhandler

import (
	"time"

	"github.com/sarchlab/actsim/sim"
	"go.uber.org/zap"
)

// Builder can build handlers.
type Builder struct {
	lock        *sim.WorldLock
	readTimeout time.Duration
	logger      *zap.Logger
}

// MakeBuilder creates a builder with default parameters.
func MakeBuilder() Builder {
	return Builder{readTimeout: DefaultReadTimeout}
}

// WithWorldLock sets the lock shared with the scheduler.
func (b Builder) WithWorldLock(lock *sim.WorldLock) Builder {
	b.lock = lock
	return b
}

// WithReadTimeout sets how long reads wait for the world.
func (b Builder) WithReadTimeout(d time.Duration) Builder {
	b.readTimeout = d
	return b
}

// WithLogger sets the logger.
func (b Builder) WithLogger(logger *zap.Logger) Builder {
	b.logger = logger
	return b
}

// Build creates a handler without a world.
func (b Builder) Build() *Handler {
	h := &Handler{
		lock:        b.lock,
		dragHolder:  sim.NewHolder(),
		readTimeout: b.readTimeout,
		log:         b.logger,
	}

	if h.lock == nil {
		h.lock = sim.NewWorldLock()
	}

	if h.log == nil {
		h.log = zap.NewNop()
	}

	return h
}
