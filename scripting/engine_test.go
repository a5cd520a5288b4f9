package scripting_test

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/actsim/grid"
	"github.com/sarchlab/actsim/scripting"
	"github.com/sarchlab/actsim/sim"
	"go.uber.org/mock/gomock"
)

const walker = `
return {
	glyph = "w",
	act = function(self)
		move(1, 0)
	end,
}
`

var _ = Describe("Engine", func() {
	var (
		mockCtrl *gomock.Controller
		sleeper  *MockSleeper
		tones    *MockToneSink
		engine   *scripting.Engine
		world    *grid.World
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		sleeper = NewMockSleeper(mockCtrl)
		tones = NewMockToneSink(mockCtrl)

		engine = scripting.NewEngine(nil)
		engine.SetSleeper(sleeper)
		engine.SetToneSink(tones)

		var err error
		world, err = grid.NewWorld(10, 5, 8)
		Expect(err).NotTo(HaveOccurred())

		Expect(engine.LoadString("walker", walker)).To(Succeed())
	})

	AfterEach(func() {
		engine.Close()
		mockCtrl.Finish()
	})

	spawn := func(kind string, x, y int) *scripting.LuaActor {
		a, err := engine.NewActor(kind)
		Expect(err).NotTo(HaveOccurred())
		Expect(world.AddObject(a, x, y)).To(Succeed())

		return a
	}

	It("should act through the script", func() {
		engine.Bind(world)
		a := spawn("walker", 0, 0)

		Expect(a.Act()).To(Succeed())
		Expect(a.Act()).To(Succeed())

		Expect(a.X()).To(Equal(2))
		Expect(a.Kind()).To(Equal("walker"))
		Expect(a.Glyph()).To(Equal('w'))
	})

	It("should keep a table per actor", func() {
		Expect(engine.LoadString("counter", `
			return {
				act = function(self)
					self.n = (self.n or 0) + 1
					set_location(self.n, 0)
				end,
			}
		`)).To(Succeed())
		engine.Bind(world)
		a := spawn("counter", 0, 0)
		b := spawn("counter", 0, 1)

		for i := 0; i < 3; i++ {
			Expect(a.Act()).To(Succeed())
		}
		Expect(b.Act()).To(Succeed())

		Expect(a.X()).To(Equal(3))
		Expect(b.X()).To(Equal(1))
		Expect(a.Glyph()).To(Equal('?'))
	})

	It("should report location and world size", func() {
		Expect(engine.LoadString("corner", `
			return {
				act = function(self)
					local w, h = world_size()
					local x, y = location()
					set_location(w - 1 - x, h - 1 - y)
				end,
			}
		`)).To(Succeed())
		engine.Bind(world)
		a := spawn("corner", 1, 1)

		Expect(a.Act()).To(Succeed())

		Expect(a.X()).To(Equal(8))
		Expect(a.Y()).To(Equal(3))
	})

	It("should add and remove actors", func() {
		Expect(engine.LoadString("spawner", `
			return {
				act = function(self)
					if actors_at(3, 3) == 0 then
						add("walker", 3, 3)
					end
					remove()
				end,
			}
		`)).To(Succeed())
		engine.Bind(world)
		a := spawn("spawner", 0, 0)

		Expect(a.Act()).To(Succeed())

		Expect(a.InWorld()).To(BeFalse())
		Expect(world.ObjectsAt(3, 3)).To(HaveLen(1))
		Expect(world.NumberOfObjects()).To(Equal(1))
	})

	It("should delay through the sleeper", func() {
		Expect(engine.LoadString("sleepy", `
			return {
				act = function(self)
					delay(2)
					move(1, 0)
				end,
			}
		`)).To(Succeed())
		engine.Bind(world)
		a := spawn("sleepy", 0, 0)
		sleeper.EXPECT().SleepCycles(2).Return(nil)

		Expect(a.Act()).To(Succeed())
		Expect(a.X()).To(Equal(1))
	})

	It("should stop the act when the delay is interrupted", func() {
		Expect(engine.LoadString("sleepy", `
			return {
				act = function(self)
					delay()
					move(1, 0)
				end,
			}
		`)).To(Succeed())
		engine.Bind(world)
		a := spawn("sleepy", 0, 0)
		sleeper.EXPECT().SleepCycles(1).Return(sim.ErrInterrupted)

		err := a.Act()

		Expect(errors.Is(err, sim.ErrInterrupted)).To(BeTrue())
		Expect(a.X()).To(Equal(0))
	})

	It("should return script errors", func() {
		Expect(engine.LoadString("broken", `
			return {
				act = function(self)
					error("boom")
				end,
			}
		`)).To(Succeed())
		engine.Bind(world)
		a := spawn("broken", 0, 0)

		err := a.Act()

		Expect(err).To(MatchError(ContainSubstring("boom")))
		Expect(errors.Is(err, sim.ErrInterrupted)).To(BeFalse())
	})

	It("should play tones", func() {
		Expect(engine.LoadString("beeper", `
			return {
				act = function(self)
					tone(440, 250)
				end,
			}
		`)).To(Succeed())
		engine.Bind(world)
		a := spawn("beeper", 0, 0)
		tones.EXPECT().PlayTone(440.0, 250*time.Millisecond)

		Expect(a.Act()).To(Succeed())
	})

	It("should reject bad scripts", func() {
		Expect(engine.LoadString("number", `return 1`)).
			To(MatchError(ContainSubstring("must return a table")))
		Expect(engine.LoadString("lazy", `return {}`)).
			To(MatchError(ContainSubstring("no act function")))
		Expect(engine.LoadString("syntax", `return {`)).
			NotTo(Succeed())

		_, err := engine.NewActor("missing")
		Expect(err).To(HaveOccurred())
	})

	It("should run the world callbacks", func() {
		Expect(engine.LoadString(scripting.WorldScript, `
			return {
				started = function() add("walker", 0, 0) end,
				stopped = function() add("walker", 0, 1) end,
				act = function() add("walker", 0, 2) end,
			}
		`)).To(Succeed())
		engine.Bind(world)

		world.Started()
		Expect(world.ObjectsAt(0, 0)).To(HaveLen(1))

		Expect(world.Act()).To(Succeed())
		Expect(world.ObjectsAt(0, 2)).To(HaveLen(1))

		world.Stopped()
		Expect(world.ObjectsAt(0, 1)).To(HaveLen(1))
	})

	It("should load a directory of scripts", func() {
		dir := GinkgoT().TempDir()
		Expect(os.WriteFile(filepath.Join(dir, "crab.lua"),
			[]byte(`return { glyph = "c", act = function(self) end }`),
			0o644)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(dir, "README.txt"),
			[]byte("not a script"), 0o644)).To(Succeed())

		Expect(engine.LoadDir(dir)).To(Succeed())

		Expect(engine.Kinds()).To(ConsistOf("walker", "crab"))
	})

	It("should fault the act cycle on script errors", func() {
		Expect(engine.LoadString("broken", `
			return { act = function(self) error("bad actor") end }
		`)).To(Succeed())
		engine.Bind(world)
		spawn("walker", 0, 0)
		broken := spawn("broken", 0, 1)

		runner := sim.NewActCycleRunner(sim.NewWorldLock(), sim.NewHolder(),
			nil, func() bool { return true })
		err := runner.Run(world, nil)

		var fault *sim.CycleFault
		Expect(errors.As(err, &fault)).To(BeTrue())
		Expect(fault.Index).To(Equal(1))
		Expect(fault.Actor).To(BeIdenticalTo(broken))
	})
})
