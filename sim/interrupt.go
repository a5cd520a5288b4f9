package sim

import (
	"errors"
	"sync"
	"time"
)

// ErrInterrupted reports that a delay or a lock acquisition on the act loop
// was cut short by a pause, a speed change or an abort. It is a cooperative
// cancellation, not a failure.
var ErrInterrupted = errors.New("act interrupted")

// interrupter cuts the act loop's sleeps short. An interrupt that arrives
// while nobody sleeps is remembered and fails the next sleep.
type interrupter struct {
	mu       sync.Mutex
	delaying bool
	pending  bool
	wake     chan struct{}
}

func newInterrupter() *interrupter {
	return &interrupter{wake: make(chan struct{}, 1)}
}

// interrupt wakes the current sleep or marks the next one as interrupted.
func (i *interrupter) interrupt() {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.delaying {
		i.signal()
		return
	}

	i.pending = true
}

// interruptIfDelaying wakes the current sleep, if there is one. It does not
// affect later sleeps.
func (i *interrupter) interruptIfDelaying() bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.delaying {
		return false
	}

	i.signal()

	return true
}

func (i *interrupter) signal() {
	select {
	case i.wake <- struct{}{}:
	default:
	}
}

// clearPending forgets an interrupt that arrived outside of a sleep.
func (i *interrupter) clearPending() {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.pending = false
}

func (i *interrupter) isDelaying() bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	return i.delaying
}

// sleep waits for d. It returns ErrInterrupted if it is woken early or if an
// interrupt is pending when it starts.
func (i *interrupter) sleep(d time.Duration) error {
	i.mu.Lock()
	if i.pending {
		i.pending = false
		i.mu.Unlock()

		return ErrInterrupted
	}

	if d <= 0 {
		i.mu.Unlock()
		return nil
	}

	i.delaying = true
	i.mu.Unlock()

	timer := time.NewTimer(d)

	var err error
	select {
	case <-timer.C:
	case <-i.wake:
		err = ErrInterrupted
	}

	timer.Stop()

	i.mu.Lock()
	i.delaying = false
	select {
	case <-i.wake:
	default:
	}
	i.mu.Unlock()

	return err
}
