package sim

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"
)

var _ = Describe("RepaintThrottle", func() {
	var (
		mockCtrl  *gomock.Controller
		repainter *MockRepainter
		clock     *manualClock
		throttle  *RepaintThrottle
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		repainter = NewMockRepainter(mockCtrl)
		clock = newManualClock()
		throttle = NewRepaintThrottle(
			repainter, clock, 30, 60, 20*time.Millisecond)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	DescribeTable("deciding",
		func(rate float64, pending bool, expected RepaintDecision) {
			Expect(throttle.Decide(rate, pending)).To(Equal(expected))
		},
		Entry("skip above the max rate", 61.0, false, RepaintSkip),
		Entry("wait at the min rate", 30.0, true, RepaintSync),
		Entry("wait below the min rate", 5.0, false, RepaintSync),
		Entry("request when idle in range", 45.0, false, RepaintAsync),
		Entry("skip when pending in range", 45.0, true, RepaintSkip),
		Entry("request at the max rate", 60.0, false, RepaintAsync),
	)

	It("should report no frame rate without repaints", func() {
		Expect(throttle.FrameRate()).To(Equal(0.0))
	})

	It("should measure the frame rate over the window", func() {
		repainter.EXPECT().Repaint().Times(10).Do(func() {
			throttle.RepaintDone()
		})

		for i := 0; i < 10; i++ {
			throttle.RepaintIfNeeded()
			clock.Advance(100 * time.Millisecond)
		}

		// 10 repaints over the last 1000 ms.
		Expect(throttle.FrameRate()).To(BeNumerically("~", 10.0, 0.01))
	})

	It("should not divide by zero", func() {
		repainter.EXPECT().Repaint().Do(func() {
			throttle.RepaintDone()
		})

		throttle.RepaintIfNeeded()

		Expect(throttle.FrameRate()).To(Equal(1000.0))
	})

	It("should skip repaints while the rate is too high", func() {
		repainter.EXPECT().Repaint().Do(func() {
			throttle.RepaintDone()
		})

		Expect(throttle.RepaintIfNeeded()).To(Equal(RepaintSync))
		clock.Advance(5 * time.Millisecond)
		Expect(throttle.RepaintIfNeeded()).To(Equal(RepaintSkip))
	})

	It("should keep at most 100 timestamps", func() {
		repainter.EXPECT().Repaint().AnyTimes().Do(func() {
			throttle.RepaintDone()
		})

		for i := 0; i < 150; i++ {
			throttle.RepaintIfNeeded()
			clock.Advance(time.Second)
		}

		// 100 repaints over 100 seconds.
		Expect(throttle.FrameRate()).To(BeNumerically("~", 1.0, 0.01))
	})

	It("should wait for a slow repaint no longer than the timeout", func() {
		repainter.EXPECT().Repaint()

		start := time.Now()
		Expect(throttle.RepaintIfNeeded()).To(Equal(RepaintSync))
		Expect(time.Since(start)).To(BeNumerically(">=", 20*time.Millisecond))
		Expect(throttle.Pending()).To(BeTrue())
	})

	It("should stop waiting once the repaint is done", func() {
		throttle = NewRepaintThrottle(repainter, clock, 30, 60, 10*time.Second)
		repainter.EXPECT().Repaint().Do(func() {
			go func() {
				time.Sleep(10 * time.Millisecond)
				throttle.RepaintDone()
			}()
		})

		start := time.Now()
		throttle.RepaintIfNeeded()
		Expect(time.Since(start)).To(BeNumerically("<", 5*time.Second))
		Expect(throttle.Pending()).To(BeFalse())
	})

	It("should not request a second repaint while one is pending", func() {
		throttle = NewRepaintThrottle(repainter, clock, 0, 60, time.Millisecond)
		repainter.EXPECT().Repaint().Times(1)

		throttle.RepaintIfNeeded()
		clock.Advance(time.Second)
		Expect(throttle.RepaintIfNeeded()).To(Equal(RepaintSkip))
	})

	It("should start over after a reset", func() {
		repainter.EXPECT().Repaint().Times(2).Do(func() {
			throttle.RepaintDone()
		})

		throttle.RepaintIfNeeded()
		throttle.Reset()
		Expect(throttle.FrameRate()).To(Equal(0.0))
		Expect(throttle.RepaintIfNeeded()).To(Equal(RepaintSync))
	})

	It("should repaint on request regardless of the rate", func() {
		repainter.EXPECT().Repaint().Times(2)

		throttle.RequestRepaint()
		throttle.RequestRepaint()
		Expect(throttle.Pending()).To(BeTrue())

		throttle.RepaintDone()
		Expect(throttle.Pending()).To(BeFalse())
	})
})
