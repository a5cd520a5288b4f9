package sim

import (
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var _ = Describe("Scheduler", func() {
	var (
		world     *countingWorld
		actors    []*countingActor
		listener  *recordingListener
		repainter *ackingRepainter
		builder   Builder
		s         *Scheduler
	)

	start := func() {
		s = builder.Build("test")
		repainter.done = s.RepaintDone
		s.AddListener(listener)
		s.Start()
	}

	BeforeEach(func() {
		actors = []*countingActor{{}, {}, {}}
		world = &countingWorld{
			actors: []Actor{actors[0], actors[1], actors[2]},
		}
		listener = &recordingListener{}
		repainter = &ackingRepainter{}
		builder = MakeBuilder().
			WithWorldSource(staticWorldSource{world: world}).
			WithRepainter(repainter).
			WithInitialSpeed(80)
	})

	AfterEach(func() {
		if s == nil {
			return
		}

		s.Abort()
		Eventually(s.Done()).Should(BeClosed())
		s = nil
	})

	stoppedEvents := func() int { return listener.Count(EventStopped) }
	startedEvents := func() int { return listener.Count(EventStarted) }

	Context("when just started", func() {
		BeforeEach(func() {
			start()
		})

		It("should stay idle", func() {
			Consistently(world.Acts, 50*time.Millisecond).Should(Equal(0))

			st := s.State()
			Expect(st.Paused).To(BeTrue())
			Expect(st.Enabled).To(BeFalse())
			Expect(st.Running).To(BeFalse())
			Expect(st.Speed).To(Equal(80))
		})

		It("should repaint while it waits", func() {
			Eventually(repainter.Repaints).Should(BeNumerically(">=", 1))
		})

		It("should not run before it is enabled", func() {
			s.SetPaused(false)
			Consistently(world.Acts, 50*time.Millisecond).Should(Equal(0))
		})

		It("should tell listeners it is stopped when enabled", func() {
			s.WorldCreated(world)

			Eventually(stoppedEvents).Should(Equal(1))
			Expect(s.State().Enabled).To(BeTrue())
		})
	})

	Context("when enabled and paused", func() {
		BeforeEach(func() {
			start()
			s.SetEnabled(true)
		})

		It("should run exactly one cycle on run once", func() {
			s.RunOnce()

			Eventually(actors[2].Acts).Should(Equal(1))
			Consistently(actors[0].Acts, 50*time.Millisecond).Should(Equal(1))
			Expect(actors[1].Acts()).To(Equal(1))
			Expect(world.Acts()).To(Equal(1))

			Expect(s.State().Paused).To(BeTrue())
			Expect(startedEvents()).To(Equal(0))
			Expect(stoppedEvents()).To(Equal(1))
			Expect(world.StartedCount()).To(Equal(0))
			Expect(world.StoppedCount()).To(Equal(0))
		})

		It("should announce each cycle and start a new sequence", func() {
			s.RunOnce()
			Eventually(world.Acts).Should(Equal(1))
			s.RunOnce()
			Eventually(world.Acts).Should(Equal(2))

			Eventually(listener.Cycles).Should(Equal(2))
			world.mu.Lock()
			Expect(world.sequence).To(Equal(2))
			world.mu.Unlock()
		})

		It("should start the world when resumed", func() {
			s.SetPaused(false)

			Eventually(world.Acts).Should(BeNumerically(">", 3))
			Expect(startedEvents()).To(Equal(1))
			Expect(world.StartedCount()).To(Equal(1))
			Expect(s.State().Running).To(BeTrue())
		})

		It("should run queued tasks under the write lock", func() {
			locked := make(chan bool, 1)
			s.RunLater(func() {
				locked <- s.lock.IsWriteLockedBy(s.holder)
			})

			Eventually(locked).Should(Receive(BeTrue()))
		})

		It("should survive a panicking task", func() {
			ran := make(chan struct{})
			s.RunLater(func() { panic("bad task") })
			s.RunLater(func() { close(ran) })

			Eventually(ran).Should(BeClosed())

			s.RunOnce()
			Eventually(world.Acts).Should(Equal(1))
		})

		It("should disable when the world is removed", func() {
			s.WorldRemoved(world)

			Eventually(func() int {
				return listener.Count(EventDisabled)
			}).Should(Equal(1))
			Expect(s.State().Enabled).To(BeFalse())
			Expect(s.State().Paused).To(BeTrue())
		})

		It("should keep a non-blocking write out while acting", func() {
			entered := make(chan struct{})
			release := make(chan struct{})
			world.act = func() error {
				close(entered)
				<-release
				return nil
			}

			s.RunOnce()
			Eventually(entered).Should(BeClosed())

			start := time.Now()
			Expect(s.WorldLock().TryWrite(NewHolder())).To(BeFalse())
			Expect(time.Since(start)).To(BeNumerically("<", 50*time.Millisecond))
			Expect(s.WorldLock().TryReadFor(10 * time.Millisecond)).
				To(Equal(LockTimedOut))

			close(release)
			Eventually(actors[2].Acts).Should(Equal(1))
		})

		It("should release the world lock while user code sleeps", func() {
			s.SetSpeed(0)
			sleepErr := make(chan error, 1)
			world.act = func() error {
				err := s.Sleep()
				sleepErr <- err
				return err
			}

			s.RunOnce()

			Eventually(func() bool {
				if !s.WorldLock().TryRead() {
					return false
				}
				s.WorldLock().RUnlock()
				return true
			}).Should(BeTrue())

			s.Abort()

			Eventually(sleepErr).Should(Receive(MatchError(ErrInterrupted)))
			Eventually(s.Done()).Should(BeClosed())
		})
	})

	Context("when running", func() {
		BeforeEach(func() {
			start()
			s.SetEnabled(true)
			s.SetPaused(false)
			Eventually(world.Acts).Should(BeNumerically(">", 0))
		})

		It("should stop exactly once on repeated pauses", func() {
			s.SetPaused(true)
			s.SetPaused(true)
			s.SetPaused(true)

			Eventually(world.StoppedCount).Should(Equal(1))
			Consistently(world.StoppedCount, 50*time.Millisecond).
				Should(Equal(1))
			// One from enabling, one from pausing.
			Expect(stoppedEvents()).To(Equal(2))

			acts := world.Acts()
			Consistently(world.Acts, 50*time.Millisecond).Should(Equal(acts))
		})

		It("should stop the world when aborted", func() {
			s.Abort()

			Eventually(s.Done()).Should(BeClosed())
			Expect(world.StoppedCount()).To(Equal(1))
			Expect(listener.Count(EventDisabled)).To(Equal(1))
		})

		It("should ignore everything after abort", func() {
			s.Abort()
			Eventually(s.Done()).Should(BeClosed())
			acts := world.Acts()

			s.SetEnabled(true)
			s.SetPaused(false)
			s.RunOnce()

			Consistently(world.Acts, 50*time.Millisecond).Should(Equal(acts))
			st := s.State()
			Expect(st.Aborted).To(BeTrue())
			Expect(st.Enabled).To(BeFalse())
			Expect(st.Paused).To(BeTrue())
		})

		It("should restart after a pause", func() {
			s.SetPaused(true)
			Eventually(world.StoppedCount).Should(Equal(1))

			s.SetPaused(false)
			Eventually(world.StartedCount).Should(Equal(2))
			Expect(startedEvents()).To(Equal(2))
		})
	})

	Context("when an actor faults", func() {
		var logs *observer.ObservedLogs

		BeforeEach(func() {
			var core zapcore.Core
			core, logs = observer.New(zap.ErrorLevel)
			builder = builder.WithLogger(zap.New(core))

			actors[1].act = func() error { return errors.New("boom") }
			start()
			s.SetEnabled(true)
			s.SetPaused(false)
		})

		It("should abandon the cycle and pause", func() {
			Eventually(func() bool { return s.State().Paused }).
				Should(BeTrue())
			Eventually(world.StoppedCount).Should(Equal(1))

			Consistently(actors[0].Acts, 50*time.Millisecond).Should(Equal(1))
			Expect(actors[1].Acts()).To(Equal(1))
			Expect(actors[2].Acts()).To(Equal(0))

			st := s.State()
			Expect(st.Faults).To(Equal(uint64(1)))
			Expect(st.LastFault).To(ContainSubstring("boom"))
			Expect(st.Aborted).To(BeFalse())
		})

		It("should log the failing actor", func() {
			Eventually(func() int {
				return logs.FilterMessage("act cycle failed").Len()
			}).Should(Equal(1))

			fields := logs.FilterMessage("act cycle failed").All()[0].ContextMap()
			Expect(fields).To(HaveKeyWithValue("actor", "*sim.countingActor"))
			Expect(fields).To(HaveKeyWithValue("index", int64(1)))
			Expect(fields).To(HaveKeyWithValue("error", "boom"))
		})
	})

	Context("when an actor cancels", func() {
		BeforeEach(func() {
			actors[1].act = func() error { return ErrInterrupted }
			start()
			s.SetEnabled(true)
		})

		It("should let the other actors act", func() {
			s.RunOnce()

			Eventually(actors[2].Acts).Should(Equal(1))
			Expect(actors[0].Acts()).To(Equal(1))
			Expect(actors[1].Acts()).To(Equal(1))
			Expect(s.State().Faults).To(BeZero())
		})
	})

	Context("when delaying", func() {
		BeforeEach(func() {
			builder = builder.WithInitialSpeed(0)
			start()
			s.SetEnabled(true)
			s.SetPaused(false)
			Eventually(world.Acts).Should(Equal(1))
		})

		It("should cut the delay short on a speed change", func() {
			s.SetSpeed(80)

			Eventually(world.Acts).Should(BeNumerically(">", 3))
		})

		It("should cut the delay short on a pause", func() {
			s.SetPaused(true)

			Eventually(world.StoppedCount).Should(Equal(1))
			Expect(world.Acts()).To(Equal(1))
		})
	})

	Context("when running tasks", func() {
		BeforeEach(func() {
			start()
		})

		It("should let a task read the world it holds", func() {
			result := make(chan LockResult, 1)
			s.RunLater(func() {
				r := s.WorldLock().TryReadAs(s.Holder(), 0)
				if r == LockAcquired {
					s.WorldLock().RUnlock()
				}
				result <- r
			})

			Eventually(result).Should(Receive(Equal(LockAcquired)))
		})
	})

	Context("when pacing", func() {
		It("should keep the cycle rate of the speed setting", func() {
			builder = builder.WithInitialSpeed(50)
			start()
			s.SetEnabled(true)
			s.SetPaused(false)
			Eventually(world.Acts).Should(BeNumerically(">", 0))

			from := world.Acts()
			time.Sleep(time.Second)
			cycles := float64(world.Acts() - from)

			expected := float64(time.Second) / float64(Delay(50))
			Expect(cycles).To(BeNumerically(">=", 0.9*expected))
			Expect(cycles).To(BeNumerically("<=", 1.1*expected))
		})
	})

	Context("delay", func() {
		var clock *manualClock

		BeforeEach(func() {
			clock = newManualClock()
			s = builder.
				WithTimeProvider(clock).
				WithInitialSpeed(70).
				Build("test")
			s.paused = false
			s.lastDelayTime = clock.Now()
		})

		AfterEach(func() {
			s = nil
		})

		It("should move the pacing base by the planned delay", func() {
			base := clock.Now()

			s.delay()

			Expect(s.lastDelayTime).To(Equal(base.Add(Delay(70))))
		})

		It("should only wait for what is left of the delay", func() {
			base := clock.Now()
			clock.Advance(Delay(70) / 2)

			s.delay()

			Expect(s.lastDelayTime).To(Equal(base.Add(Delay(70))))
		})

		It("should not wait when the cycle took longer than the delay", func() {
			clock.Advance(3 * Delay(70))
			now := clock.Now()

			s.delay()

			Expect(s.lastDelayTime).To(Equal(now))
		})

		It("should keep the pacing base when interrupted", func() {
			base := clock.Now()
			s.intr.interrupt()

			s.delay()

			Expect(s.lastDelayTime).To(Equal(base))
		})
	})

	Context("speed", func() {
		var (
			mockCtrl *gomock.Controller
			delegate *MockSpeedDelegate
		)

		BeforeEach(func() {
			mockCtrl = gomock.NewController(GinkgoT())
			delegate = NewMockSpeedDelegate(mockCtrl)
			builder = builder.WithSpeedDelegate(delegate)
			start()
		})

		AfterEach(func() {
			mockCtrl.Finish()
		})

		It("should tell the delegate about every setting", func() {
			delegate.EXPECT().SpeedChanged(30).Times(2)

			s.SetSpeed(30)
			s.SetSpeed(30)

			Expect(s.Speed()).To(Equal(30))
			Expect(listener.Count(EventSpeedChanged)).To(Equal(1))
		})

		It("should clamp the speed", func() {
			delegate.EXPECT().SpeedChanged(MaxSpeed)
			delegate.EXPECT().SpeedChanged(0)

			s.SetSpeed(1000)
			Expect(s.Speed()).To(Equal(MaxSpeed))

			s.SetSpeed(-3)
			Expect(s.Speed()).To(Equal(0))
			Expect(s.State().Delay).To(Equal(Delay(0)))
		})
	})
})
