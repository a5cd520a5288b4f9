// Package terminal draws the world in a terminal and turns keys and mouse
// events into simulation controls.
package terminal

import (
	"fmt"
	"sync/atomic"

	"github.com/gdamore/tcell/v2"
	"github.com/sarchlab/actsim/grid"
	"github.com/sarchlab/actsim/sim"
	"github.com/sarchlab/actsim/worldhandler"
	"go.uber.org/zap"
)

// SpeedStep is how much + and - change the speed.
const SpeedStep = 5

// Controls are the simulation controls bound to keys.
type Controls interface {
	SetPaused(paused bool)
	RunOnce()
	SetSpeed(speed int)
	Speed() int
	State() sim.State
}

// An ActorFactory creates the actor placed by a right click.
type ActorFactory func() (grid.Actor, error)

type repaintRequest struct{}

type quitRequest struct{}

var (
	floorStyle  = tcell.StyleDefault.Foreground(tcell.ColorGray)
	actorStyle  = tcell.StyleDefault.Foreground(tcell.ColorYellow).Bold(true)
	statusStyle = tcell.StyleDefault.Reverse(true)
	faultStyle  = tcell.StyleDefault.Foreground(tcell.ColorRed)
)

// A Canvas paints the world one terminal cell per world cell, with a status
// line underneath.
type Canvas struct {
	screen   tcell.Screen
	handler  *worldhandler.Handler
	controls Controls
	spawn    ActorFactory
	log      *zap.Logger

	pending   atomic.Bool
	dragging  bool
	rightDown bool
	message   string
}

// NewCanvas creates a canvas on an initialized screen.
func NewCanvas(
	screen tcell.Screen,
	handler *worldhandler.Handler,
	controls Controls,
	log *zap.Logger,
) *Canvas {
	if log == nil {
		log = zap.NewNop()
	}

	return &Canvas{
		screen:   screen,
		handler:  handler,
		controls: controls,
		log:      log,
	}
}

// SetActorFactory enables adding actors with a right click.
func (c *Canvas) SetActorFactory(f ActorFactory) {
	c.spawn = f
}

// Repaint asks the UI loop to draw. Requests made while one is queued are
// merged.
func (c *Canvas) Repaint() {
	if c.pending.Swap(true) {
		return
	}

	if err := c.screen.PostEvent(tcell.NewEventInterrupt(repaintRequest{})); err != nil {
		c.pending.Store(false)
		c.log.Debug("repaint request dropped", zap.Error(err))
	}
}

// Stop makes Run return.
func (c *Canvas) Stop() {
	_ = c.screen.PostEvent(tcell.NewEventInterrupt(quitRequest{}))
}

// Run is the UI loop. It returns when the user quits or Stop is called.
func (c *Canvas) Run() {
	c.screen.EnableMouse()
	c.Draw()

	for {
		ev := c.screen.PollEvent()
		if ev == nil {
			return
		}

		if !c.handle(ev) {
			return
		}
	}
}

func (c *Canvas) handle(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventInterrupt:
		switch ev.Data().(type) {
		case quitRequest:
			return false
		case repaintRequest:
			c.pending.Store(false)
			c.Draw()
		}
	case *tcell.EventResize:
		c.screen.Sync()
		c.Draw()
	case *tcell.EventKey:
		return c.handleKey(ev)
	case *tcell.EventMouse:
		c.handleMouse(ev)
	}

	return true
}

func (c *Canvas) handleKey(ev *tcell.EventKey) bool {
	switch ev.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return false
	case tcell.KeyRune:
	default:
		return true
	}

	switch ev.Rune() {
	case 'q':
		return false
	case ' ':
		c.controls.SetPaused(!c.controls.State().Paused)
	case 's', '.':
		c.controls.RunOnce()
	case '+', '=':
		c.controls.SetSpeed(c.controls.Speed() + SpeedStep)
	case '-':
		c.controls.SetSpeed(c.controls.Speed() - SpeedStep)
	}

	c.drawStatus()
	c.screen.Show()

	return true
}

func (c *Canvas) handleMouse(ev *tcell.EventMouse) {
	px, py := c.toPixel(ev.Position())
	buttons := ev.Buttons()

	switch {
	case buttons&tcell.Button1 != 0:
		if c.dragging {
			c.handler.Drag(px, py)
			return
		}

		ok, err := c.handler.StartDrag(px, py)
		if err != nil {
			c.message = err.Error()
		}
		c.dragging = ok
	case buttons&tcell.Button2 != 0:
		if !c.rightDown {
			c.rightDown = true
			c.addActor(px, py)
		}
	case buttons == tcell.ButtonNone:
		if c.dragging {
			c.handler.EndDrag(px, py)
			c.dragging = false
		}
		c.rightDown = false
	}
}

func (c *Canvas) addActor(px, py int) {
	if c.spawn == nil {
		return
	}

	a, err := c.spawn()
	if err != nil {
		c.message = err.Error()
		c.log.Warn("cannot create actor", zap.Error(err))
		return
	}

	c.handler.AddActorAtPixel(a, px, py)
}

func (c *Canvas) cellSize() int {
	if w := c.handler.GridWorld(); w != nil {
		return w.CellSize()
	}

	return 1
}

// toPixel maps a terminal cell to the center pixel of the world cell drawn
// there.
func (c *Canvas) toPixel(x, y int) (int, int) {
	cs := c.cellSize()

	return x*cs + cs/2, y*cs + cs/2
}

// Draw paints the world and acknowledges the repaint. If the world is busy
// the previous picture stays.
func (c *Canvas) Draw() {
	defer c.handler.Repainted()

	frame, err := c.handler.Snapshot()
	if err != nil {
		c.message = err.Error()
	} else {
		c.message = ""
		c.drawWorld(frame)
	}

	c.drawStatus()
	c.screen.Show()
}

func (c *Canvas) drawWorld(f worldhandler.Frame) {
	c.screen.Clear()

	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			c.screen.SetContent(x, y, '.', nil, floorStyle)
		}
	}

	for _, s := range f.Sprites {
		c.screen.SetContent(s.X, s.Y, s.Glyph, nil, actorStyle)
	}
}

func (c *Canvas) drawStatus() {
	w, h := c.screen.Size()
	row := h - 1

	st := c.controls.State()
	state := "running"
	switch {
	case !st.Enabled:
		state = "no world"
	case st.Paused:
		state = "paused"
	}

	line := fmt.Sprintf(" %s  speed %d  cycle %d  %.1f fps ",
		state, st.Speed, st.Cycles, st.FrameRate)
	c.drawText(0, row, w, line, statusStyle)

	help := " [space] run/pause [s] step [+/-] speed [q] quit "
	c.drawText(len([]rune(line)), row, w, help, tcell.StyleDefault)

	msg := c.message
	if msg == "" && st.LastFault != "" {
		msg = st.LastFault
	}

	if msg != "" && row > 0 {
		c.clearRow(row-1, w)
		c.drawText(0, row-1, w, msg, faultStyle)
	}
}

func (c *Canvas) clearRow(row, width int) {
	for x := 0; x < width; x++ {
		c.screen.SetContent(x, row, ' ', nil, tcell.StyleDefault)
	}
}

func (c *Canvas) drawText(x, y, width int, s string, style tcell.Style) {
	for _, r := range s {
		if x >= width {
			return
		}

		c.screen.SetContent(x, y, r, nil, style)
		x++
	}
}
