package sim

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"
)

var _ = Describe("EventBus", func() {
	var (
		mockCtrl *gomock.Controller
		bus      *EventBus
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		bus = &EventBus{}
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should notify listeners in registration order", func() {
		first := NewMockListener(mockCtrl)
		second := NewMockListener(mockCtrl)
		e := Event{Kind: EventStarted}

		gomock.InOrder(
			first.EXPECT().SimulationChanged(e),
			second.EXPECT().SimulationChanged(e),
		)

		bus.AddListener(first)
		bus.AddListener(second)
		bus.Notify(e)
	})

	It("should not notify removed listeners", func() {
		l := NewMockListener(mockCtrl)

		bus.AddListener(l)
		bus.RemoveListener(l)
		bus.Notify(Event{Kind: EventStopped})

		Expect(bus.Listeners()).To(BeEmpty())
	})

	It("should apply changes made during delivery from the next event", func() {
		late := &recordingListener{}
		adder := NewMockListener(mockCtrl)
		adder.EXPECT().SimulationChanged(gomock.Any()).Times(2).
			Do(func(Event) { bus.AddListener(late) })

		bus.AddListener(adder)
		bus.Notify(Event{Kind: EventNewActCycle})
		Expect(late.Kinds()).To(BeEmpty())

		bus.Notify(Event{Kind: EventSpeedChanged})
		Expect(late.Kinds()).To(Equal([]EventKind{EventSpeedChanged}))
	})

	It("should name event kinds", func() {
		Expect(EventStarted.String()).To(Equal("started"))
		Expect(EventStopped.String()).To(Equal("stopped"))
		Expect(EventDisabled.String()).To(Equal("disabled"))
		Expect(EventSpeedChanged.String()).To(Equal("speed_changed"))
		Expect(EventNewActCycle.String()).To(Equal("new_act_cycle"))
	})
})
