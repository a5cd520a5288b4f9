package sound_test

import (
	"time"

	"github.com/gopxl/beep"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/actsim/sim"
	"github.com/sarchlab/actsim/sound"
)

func buffer(n int) [][2]float64 {
	samples := make([][2]float64, n)
	for i := range samples {
		samples[i] = [2]float64{1, 1}
	}

	return samples
}

func silent(samples [][2]float64) bool {
	for _, s := range samples {
		if s[0] != 0 || s[1] != 0 {
			return false
		}
	}

	return true
}

var _ = Describe("Collection", func() {
	var c *sound.Collection

	BeforeEach(func() {
		c = sound.NewCollection(beep.SampleRate(8000), nil)
	})

	It("should stream silence when nothing plays", func() {
		samples := buffer(64)

		n, ok := c.Stream(samples)

		Expect(n).To(Equal(64))
		Expect(ok).To(BeTrue())
		Expect(silent(samples)).To(BeTrue())
		Expect(c.Err()).NotTo(HaveOccurred())
	})

	It("should play a tone until it ends", func() {
		c.PlayTone(440, 10*time.Millisecond)
		Expect(c.Len()).To(Equal(1))

		samples := buffer(200)
		n, ok := c.Stream(samples)

		Expect(n).To(Equal(200))
		Expect(ok).To(BeTrue())
		Expect(silent(samples[:80])).To(BeFalse())
		Expect(silent(samples[80:])).To(BeTrue())
		Expect(c.Len()).To(Equal(0))
	})

	It("should pause when the simulation stops", func() {
		c.PlayTone(440, time.Second)

		c.SimulationChanged(sim.Event{Kind: sim.EventStopped})

		Expect(c.Paused()).To(BeTrue())
		samples := buffer(100)
		c.Stream(samples)
		Expect(silent(samples)).To(BeTrue())
		Expect(c.Len()).To(Equal(1))

		c.SimulationChanged(sim.Event{Kind: sim.EventStarted})

		Expect(c.Paused()).To(BeFalse())
		samples = buffer(100)
		c.Stream(samples)
		Expect(silent(samples)).To(BeFalse())
	})

	It("should play new sounds while paused", func() {
		c.Pause()
		c.PlayTone(440, time.Second)

		samples := buffer(100)
		c.Stream(samples)

		Expect(silent(samples)).To(BeFalse())
	})

	It("should drop every sound when the simulation is disabled", func() {
		c.PlayTone(440, time.Second)
		c.PlayTone(660, time.Second)
		c.Pause()

		c.SimulationChanged(sim.Event{Kind: sim.EventDisabled})

		Expect(c.Len()).To(Equal(0))
		Expect(c.Paused()).To(BeFalse())
		samples := buffer(100)
		c.Stream(samples)
		Expect(silent(samples)).To(BeTrue())
	})

	It("should ignore other events", func() {
		c.PlayTone(440, time.Second)

		c.SimulationChanged(sim.Event{Kind: sim.EventNewActCycle})
		c.SimulationChanged(sim.Event{Kind: sim.EventSpeedChanged})

		Expect(c.Len()).To(Equal(1))
		Expect(c.Paused()).To(BeFalse())
	})
})
