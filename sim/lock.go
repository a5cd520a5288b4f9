package sim

import (
	"sync"
	"sync/atomic"
	"time"
)

// A Holder identifies the owner of write holds on a WorldLock. Write holds are
// reentrant per Holder.
type Holder uint64

var holderCounter atomic.Uint64

// NewHolder returns a Holder that has not been handed out before.
func NewHolder() Holder {
	return Holder(holderCounter.Add(1))
}

// LockResult is the outcome of a timed or interruptible lock acquisition.
type LockResult int

// Possible lock results.
const (
	LockAcquired LockResult = iota
	LockTimedOut
	LockInterrupted
)

func (r LockResult) String() string {
	switch r {
	case LockAcquired:
		return "acquired"
	case LockTimedOut:
		return "timed out"
	case LockInterrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

// A WorldLock guards the state of a world. Any number of readers may hold it at
// the same time, or a single writer. The writer may reenter its write hold.
//
// Readers are anonymous, except that a writer may also read what it holds by
// passing its Holder to TryReadAs. A goroutine must not ask for a write hold
// while it holds a read hold.
type WorldLock struct {
	mu      sync.Mutex
	readers int
	writer  Holder
	depth   int
	changed chan struct{}
}

// NewWorldLock creates an unlocked WorldLock.
func NewWorldLock() *WorldLock {
	return &WorldLock{changed: make(chan struct{})}
}

// signal wakes every goroutine waiting for the lock state to change. Must be
// called with mu held.
func (l *WorldLock) signal() {
	close(l.changed)
	l.changed = make(chan struct{})
}

func (l *WorldLock) tryReadLocked(h Holder) bool {
	if l.depth > 0 && (h == 0 || l.writer != h) {
		return false
	}

	l.readers++

	return true
}

func (l *WorldLock) tryWriteLocked(h Holder) bool {
	if l.depth > 0 {
		if l.writer != h {
			return false
		}

		l.depth++

		return true
	}

	if l.readers > 0 {
		return false
	}

	l.writer = h
	l.depth = 1

	return true
}

// TryRead takes a read hold if no writer holds the lock.
func (l *WorldLock) TryRead() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.tryReadLocked(0)
}

// TryReadFor waits at most d for a read hold.
func (l *WorldLock) TryReadFor(d time.Duration) LockResult {
	return l.TryReadAs(0, d)
}

// TryReadAs waits at most d for a read hold on behalf of h. If h holds the
// write lock, the read hold is granted right away. The zero Holder reads
// anonymously.
func (l *WorldLock) TryReadAs(h Holder, d time.Duration) LockResult {
	var timeout <-chan time.Time

	for {
		l.mu.Lock()
		if l.tryReadLocked(h) {
			l.mu.Unlock()
			return LockAcquired
		}
		changed := l.changed
		l.mu.Unlock()

		if timeout == nil {
			if d <= 0 {
				return LockTimedOut
			}

			timer := time.NewTimer(d)
			defer timer.Stop()
			timeout = timer.C
		}

		select {
		case <-changed:
		case <-timeout:
			return LockTimedOut
		}
	}
}

// RUnlock releases a read hold.
func (l *WorldLock) RUnlock() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.readers == 0 {
		panic("world lock: RUnlock without a read hold")
	}

	l.readers--
	if l.readers == 0 {
		l.signal()
	}
}

// TryWrite takes a write hold for h if it is available right now.
func (l *WorldLock) TryWrite(h Holder) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.tryWriteLocked(h)
}

// WriteInterruptibly waits for a write hold until it is acquired or the
// interrupt channel becomes readable.
func (l *WorldLock) WriteInterruptibly(
	h Holder,
	interrupt <-chan struct{},
) LockResult {
	for {
		select {
		case <-interrupt:
			return LockInterrupted
		default:
		}

		l.mu.Lock()
		if l.tryWriteLocked(h) {
			l.mu.Unlock()
			return LockAcquired
		}
		changed := l.changed
		l.mu.Unlock()

		select {
		case <-changed:
		case <-interrupt:
			return LockInterrupted
		}
	}
}

// Write waits for a write hold for h.
func (l *WorldLock) Write(h Holder) {
	l.WriteInterruptibly(h, nil)
}

// Unlock releases one write hold of h.
func (l *WorldLock) Unlock(h Holder) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.depth == 0 || l.writer != h {
		panic("world lock: Unlock by a non-owner")
	}

	l.depth--
	if l.depth == 0 {
		l.writer = 0
		l.signal()
	}
}

// IsWriteLockedBy tells if h currently holds the write lock.
func (l *WorldLock) IsWriteLockedBy(h Holder) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.depth > 0 && l.writer == h
}

// WriteHoldCount returns how many times h has entered the write lock.
func (l *WorldLock) WriteHoldCount(h Holder) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.writer != h {
		return 0
	}

	return l.depth
}

// ReleaseWrites drops every write hold of h and returns how many there were,
// so that RestoreWrites can take them back later.
func (l *WorldLock) ReleaseWrites(h Holder) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.depth == 0 || l.writer != h {
		return 0
	}

	n := l.depth
	l.depth = 0
	l.writer = 0
	l.signal()

	return n
}

// RestoreWrites waits for the write lock and reenters it n times for h.
func (l *WorldLock) RestoreWrites(h Holder, n int) {
	if n <= 0 {
		return
	}

	l.Write(h)

	l.mu.Lock()
	l.depth += n - 1
	l.mu.Unlock()
}
