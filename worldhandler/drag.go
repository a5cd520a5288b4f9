package worldhandler

import (
	"github.com/sarchlab/actsim/grid"
	"go.uber.org/zap"
)

type located interface {
	X() int
	Y() int
	SetLocation(x, y int)
}

// StartDrag picks up the topmost actor at a pixel. It returns false if there
// is nothing to drag.
func (h *Handler) StartDrag(px, py int) (bool, error) {
	a, err := h.TopmostAt(px, py)
	if err != nil || a == nil {
		return false, err
	}

	l, ok := a.(located)
	if !ok {
		return false, nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.drag = dragState{
		actor:      a,
		origX:      l.X(),
		origY:      l.Y(),
		lastX:      l.X(),
		lastY:      l.Y(),
		inProgress: true,
	}

	return true, nil
}

// Dragging tells if a drag is in progress.
func (h *Handler) Dragging() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.drag.inProgress
}

// Drag moves the dragged actor to a pixel if the world can be written right
// now. Updates that find the world busy are skipped; it returns false for
// them.
func (h *Handler) Drag(px, py int) bool {
	h.mu.Lock()
	d := h.drag
	w := h.world
	h.mu.Unlock()

	if !d.inProgress || w == nil {
		return false
	}

	if !h.lock.TryWrite(h.dragHolder) {
		return false
	}

	x, y := w.ToCell(px, py)
	if d.actor.InWorld() {
		d.actor.(located).SetLocation(x, y)
	}

	h.lock.Unlock(h.dragHolder)

	h.mu.Lock()
	h.drag.lastX, h.drag.lastY = x, y
	h.mu.Unlock()

	h.Repaint()

	return true
}

// EndDrag drops the dragged actor at a pixel. A drop outside the world puts
// the actor back where the drag started.
func (h *Handler) EndDrag(px, py int) {
	h.mu.Lock()
	d := h.drag
	w := h.world
	h.drag = dragState{}
	h.mu.Unlock()

	if !d.inProgress || w == nil {
		return
	}

	x, y := w.ToCell(px, py)
	if x < 0 || x >= w.Width() || y < 0 || y >= w.Height() {
		x, y = d.origX, d.origY
	}

	h.placeLater(d.actor, x, y)
}

// CancelDrag puts the dragged actor back where the drag started.
func (h *Handler) CancelDrag() {
	h.mu.Lock()
	d := h.drag
	h.drag = dragState{}
	h.mu.Unlock()

	if !d.inProgress {
		return
	}

	h.placeLater(d.actor, d.origX, d.origY)
}

func (h *Handler) placeLater(a grid.Actor, x, y int) {
	h.runLater(func() {
		if a.InWorld() {
			a.(located).SetLocation(x, y)
		}
	})

	h.Repaint()
}

// AddActorAtPixel adds an actor to the world at a pixel on the act loop
// goroutine.
func (h *Handler) AddActorAtPixel(a grid.Actor, px, py int) {
	w := h.GridWorld()
	if w == nil {
		return
	}

	h.runLater(func() {
		x, y := w.ToCell(px, py)
		if err := w.AddObject(a, x, y); err != nil {
			h.log.Warn("actor not added", zap.Error(err))
		}
	})

	h.Repaint()
}

// RemoveActor removes an actor from the world on the act loop goroutine.
func (h *Handler) RemoveActor(a grid.Actor) {
	w := h.GridWorld()
	if w == nil {
		return
	}

	h.runLater(func() {
		w.RemoveObject(a)
	})

	h.Repaint()
}
