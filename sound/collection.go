// Package sound plays the simulation's sounds through a single mixing
// streamer that follows the simulation's lifecycle.
package sound

import (
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/generators"
	"github.com/sarchlab/actsim/sim"
	"go.uber.org/zap"
)

// DefaultSampleRate is used when no sample rate is configured.
const DefaultSampleRate = beep.SampleRate(44100)

const toneVolume = 0.2

type sound struct {
	ctrl *beep.Ctrl
	done bool
}

// A Collection mixes every sound started by the simulation. Sounds that are
// playing when the simulation stops are paused and resume when it starts
// again. Disabling the simulation drops them all.
//
// A Collection is a beep.Streamer that never ends. Hand it to the speaker
// once.
type Collection struct {
	mu     sync.Mutex
	rate   beep.SampleRate
	mixer  *beep.Mixer
	sounds []*sound
	paused bool
	log    *zap.Logger
}

// NewCollection creates an empty collection.
func NewCollection(rate beep.SampleRate, log *zap.Logger) *Collection {
	if rate <= 0 {
		rate = DefaultSampleRate
	}

	if log == nil {
		log = zap.NewNop()
	}

	return &Collection{
		rate:  rate,
		mixer: &beep.Mixer{},
		log:   log,
	}
}

// SampleRate returns the rate streamers must be produced at.
func (c *Collection) SampleRate() beep.SampleRate {
	return c.rate
}

// Play starts a streamer.
func (c *Collection) Play(s beep.Streamer) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snd := &sound{}
	snd.ctrl = &beep.Ctrl{
		Streamer: beep.Seq(s, beep.Callback(func() { snd.done = true })),
	}

	c.prune()
	c.sounds = append(c.sounds, snd)
	c.mixer.Add(snd.ctrl)
}

// PlayTone plays a sine tone.
func (c *Collection) PlayTone(freq float64, d time.Duration) {
	tone, err := generators.SineTone(c.rate, freq)
	if err != nil {
		c.log.Warn("cannot play tone",
			zap.Float64("freq", freq), zap.Error(err))
		return
	}

	c.Play(volume(beep.Take(c.rate.N(d), tone), toneVolume))
}

// Len returns the number of sounds still playing or paused.
func (c *Collection) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.prune()

	return len(c.sounds)
}

// Paused tells whether the collection paused its sounds.
func (c *Collection) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.paused
}

// Pause pauses every sound.
func (c *Collection) Pause() {
	c.setPaused(true)
}

// Resume continues the sounds paused by Pause.
func (c *Collection) Resume() {
	c.setPaused(false)
}

func (c *Collection) setPaused(paused bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.paused = paused
	for _, snd := range c.sounds {
		snd.ctrl.Paused = paused
	}
}

// Stop drops every sound.
func (c *Collection) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.mixer.Clear()
	c.sounds = nil
	c.paused = false
}

// SimulationChanged makes the collection follow the simulation.
func (c *Collection) SimulationChanged(e sim.Event) {
	switch e.Kind {
	case sim.EventStarted:
		c.Resume()
	case sim.EventStopped:
		c.Pause()
	case sim.EventDisabled:
		c.Stop()
	}
}

// Stream mixes the sounds. It fills silence when nothing is playing and
// never drains.
func (c *Collection) Stream(samples [][2]float64) (n int, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	filled := 0
	if c.mixer.Len() > 0 {
		filled, _ = c.mixer.Stream(samples)
	}

	for i := filled; i < len(samples); i++ {
		samples[i] = [2]float64{}
	}

	c.prune()

	return len(samples), true
}

// Err always returns nil.
func (c *Collection) Err() error {
	return nil
}

func (c *Collection) prune() {
	live := c.sounds[:0]
	for _, snd := range c.sounds {
		if !snd.done {
			live = append(live, snd)
		}
	}

	for i := len(live); i < len(c.sounds); i++ {
		c.sounds[i] = nil
	}

	c.sounds = live
}

func volume(s beep.Streamer, gain float64) beep.Streamer {
	return beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		n, ok := s.Stream(samples)
		for i := range samples[:n] {
			samples[i][0] *= gain
			samples[i][1] *= gain
		}

		return n, ok
	})
}
