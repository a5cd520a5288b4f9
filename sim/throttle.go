package sim

import (
	"sync"
	"time"
)

const (
	// DefaultMinFrameRate is the frame rate below which every repaint waits
	// for the previous one to finish.
	DefaultMinFrameRate = 30

	// DefaultMaxFrameRate is the frame rate above which repaints are skipped.
	DefaultMaxFrameRate = 60

	// DefaultRepaintTimeout bounds the wait for a synchronous repaint.
	DefaultRepaintTimeout = 100 * time.Millisecond

	repaintWindowSize = 100
)

// RepaintDecision is what the throttle does with a repaint opportunity.
type RepaintDecision int

// Possible repaint decisions.
const (
	RepaintSkip RepaintDecision = iota
	RepaintAsync
	RepaintSync
)

// A RepaintThrottle keeps the repaint rate between a lower and an upper bound
// while the act loop runs as fast as its speed allows.
type RepaintThrottle struct {
	repainter Repainter
	clock     TimeProvider
	minRate   float64
	maxRate   float64
	timeout   time.Duration

	mu      sync.Mutex
	window  []time.Time
	pending bool
	acked   chan struct{}
}

// NewRepaintThrottle creates a throttle that drives the given repainter.
func NewRepaintThrottle(
	repainter Repainter,
	clock TimeProvider,
	minRate, maxRate float64,
	timeout time.Duration,
) *RepaintThrottle {
	if clock == nil {
		clock = realTime{}
	}

	return &RepaintThrottle{
		repainter: repainter,
		clock:     clock,
		minRate:   minRate,
		maxRate:   maxRate,
		timeout:   timeout,
		window:    make([]time.Time, 0, repaintWindowSize),
	}
}

// Decide picks the action for a given frame rate, depending on whether a
// repaint is still outstanding.
func (t *RepaintThrottle) Decide(rate float64, pending bool) RepaintDecision {
	switch {
	case rate > t.maxRate:
		return RepaintSkip
	case rate <= t.minRate:
		return RepaintSync
	case !pending:
		return RepaintAsync
	default:
		return RepaintSkip
	}
}

// FrameRate returns the repaint rate, in frames per second, measured over the
// recent repaints.
func (t *RepaintThrottle) FrameRate() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.frameRateLocked(t.clock.Now())
}

func (t *RepaintThrottle) frameRateLocked(now time.Time) float64 {
	if len(t.window) == 0 {
		return 0
	}

	elapsedMS := now.Sub(t.window[0]).Milliseconds()
	if elapsedMS <= 0 {
		elapsedMS = 1
	}

	return float64(len(t.window)) * 1000 / float64(elapsedMS)
}

// RepaintIfNeeded requests a repaint if the frame rate allows it. When the
// frame rate is low, it waits, up to the throttle's timeout, for the previous
// repaint to complete.
func (t *RepaintThrottle) RepaintIfNeeded() RepaintDecision {
	now := t.clock.Now()

	t.mu.Lock()
	decision := t.Decide(t.frameRateLocked(now), t.pending)
	if decision == RepaintSkip {
		t.mu.Unlock()
		return decision
	}

	if len(t.window) >= repaintWindowSize {
		t.window = t.window[1:]
	}
	t.window = append(t.window, now)

	acked := t.markPendingLocked()
	t.mu.Unlock()

	t.repainter.Repaint()

	if decision == RepaintSync {
		t.waitAck(acked)
	}

	return decision
}

// RequestRepaint asks for a repaint regardless of the frame rate. It does not
// wait.
func (t *RepaintThrottle) RequestRepaint() {
	t.mu.Lock()
	t.markPendingLocked()
	t.mu.Unlock()

	t.repainter.Repaint()
}

func (t *RepaintThrottle) markPendingLocked() chan struct{} {
	if !t.pending {
		t.pending = true
		t.acked = make(chan struct{})
	}

	return t.acked
}

func (t *RepaintThrottle) waitAck(acked chan struct{}) {
	timer := time.NewTimer(t.timeout)
	defer timer.Stop()

	select {
	case <-acked:
	case <-timer.C:
	}
}

// RepaintDone marks the outstanding repaint as complete and wakes anyone
// waiting for it.
func (t *RepaintThrottle) RepaintDone() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.pending {
		return
	}

	t.pending = false
	close(t.acked)
}

// Pending tells if a repaint has been requested but not completed.
func (t *RepaintThrottle) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.pending
}

// Reset forgets the repaint history. The frame rate starts from zero again.
func (t *RepaintThrottle) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.window = t.window[:0]
}
