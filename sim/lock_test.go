package sim

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("WorldLock", func() {
	var (
		lock   *WorldLock
		writer Holder
	)

	BeforeEach(func() {
		lock = NewWorldLock()
		writer = NewHolder()
	})

	It("should hand out distinct holders", func() {
		Expect(NewHolder()).NotTo(Equal(NewHolder()))
	})

	It("should let two readers in at the same time", func() {
		results := make(chan LockResult, 2)
		for i := 0; i < 2; i++ {
			go func() {
				results <- lock.TryReadFor(500 * time.Millisecond)
			}()
		}

		Eventually(results).Should(Receive(Equal(LockAcquired)))
		Eventually(results).Should(Receive(Equal(LockAcquired)))
	})

	It("should keep a writer out until all readers leave", func() {
		Expect(lock.TryReadFor(time.Second)).To(Equal(LockAcquired))
		Expect(lock.TryReadFor(time.Second)).To(Equal(LockAcquired))

		acquired := make(chan struct{})
		go func() {
			lock.Write(writer)
			close(acquired)
		}()

		Consistently(acquired, 50*time.Millisecond).ShouldNot(BeClosed())

		lock.RUnlock()
		Consistently(acquired, 50*time.Millisecond).ShouldNot(BeClosed())

		lock.RUnlock()
		Eventually(acquired).Should(BeClosed())
		Expect(lock.IsWriteLockedBy(writer)).To(BeTrue())
	})

	It("should fail a non-blocking write attempt while another holder writes",
		func() {
			lock.Write(writer)

			start := time.Now()
			Expect(lock.TryWrite(NewHolder())).To(BeFalse())
			Expect(time.Since(start)).To(BeNumerically("<", 50*time.Millisecond))
		})

	It("should fail a non-blocking write attempt while a reader reads", func() {
		Expect(lock.TryRead()).To(BeTrue())
		Expect(lock.TryWrite(writer)).To(BeFalse())
	})

	It("should time out a read while a writer holds the lock", func() {
		lock.Write(writer)

		start := time.Now()
		Expect(lock.TryReadFor(30 * time.Millisecond)).To(Equal(LockTimedOut))
		Expect(time.Since(start)).To(
			BeNumerically(">=", 30*time.Millisecond))
	})

	It("should let the writer read what it holds", func() {
		lock.Write(writer)

		Expect(lock.TryReadAs(writer, 0)).To(Equal(LockAcquired))
		Expect(lock.TryReadAs(NewHolder(), 10*time.Millisecond)).
			To(Equal(LockTimedOut))
		Expect(lock.TryReadFor(10 * time.Millisecond)).To(Equal(LockTimedOut))

		lock.Unlock(writer)
		Expect(lock.TryWrite(NewHolder())).To(BeFalse())

		lock.RUnlock()
		Expect(lock.TryWrite(NewHolder())).To(BeTrue())
	})

	It("should let a waiting reader in once the writer leaves", func() {
		lock.Write(writer)

		result := make(chan LockResult, 1)
		go func() {
			result <- lock.TryReadFor(time.Second)
		}()

		Consistently(result, 30*time.Millisecond).ShouldNot(Receive())
		lock.Unlock(writer)
		Eventually(result).Should(Receive(Equal(LockAcquired)))
	})

	It("should let the writer reenter", func() {
		lock.Write(writer)
		Expect(lock.TryWrite(writer)).To(BeTrue())
		Expect(lock.WriteHoldCount(writer)).To(Equal(2))

		lock.Unlock(writer)
		Expect(lock.IsWriteLockedBy(writer)).To(BeTrue())

		lock.Unlock(writer)
		Expect(lock.IsWriteLockedBy(writer)).To(BeFalse())
		Expect(lock.TryRead()).To(BeTrue())
	})

	It("should give up an interruptible write when interrupted", func() {
		Expect(lock.TryRead()).To(BeTrue())

		interrupt := make(chan struct{})
		result := make(chan LockResult, 1)
		go func() {
			result <- lock.WriteInterruptibly(writer, interrupt)
		}()

		Consistently(result, 30*time.Millisecond).ShouldNot(Receive())
		close(interrupt)
		Eventually(result).Should(Receive(Equal(LockInterrupted)))
		Expect(lock.IsWriteLockedBy(writer)).To(BeFalse())
	})

	It("should release and restore all write holds", func() {
		lock.Write(writer)
		lock.Write(writer)

		Expect(lock.ReleaseWrites(writer)).To(Equal(2))
		Expect(lock.TryRead()).To(BeTrue())

		restored := make(chan struct{})
		go func() {
			lock.RestoreWrites(writer, 2)
			close(restored)
		}()

		Consistently(restored, 30*time.Millisecond).ShouldNot(BeClosed())
		lock.RUnlock()
		Eventually(restored).Should(BeClosed())
		Expect(lock.WriteHoldCount(writer)).To(Equal(2))
	})

	It("should release nothing for a holder without write holds", func() {
		Expect(lock.ReleaseWrites(writer)).To(Equal(0))
	})

	It("should panic on an unlock by a non-owner", func() {
		lock.Write(writer)
		Expect(func() { lock.Unlock(NewHolder()) }).To(Panic())
	})
})
