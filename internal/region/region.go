// Package region tracks the overlay window's geometry on the render side and
// hands the resulting crop rectangle to the capture side.
package region

import (
	"github.com/bryanchriswhite/ShareFrame/internal/frame"
	"github.com/bryanchriswhite/ShareFrame/internal/mailbox"
)

// Point is a position in root (desktop) coordinates.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Size is a non-negative extent.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Geometry is the overlay window's content area and focus state.
type Geometry struct {
	Position Point `json:"position"`
	Size     Size  `json:"size"`
	Focused  bool  `json:"focused"`
}

// Tracker owns the window geometry on the render goroutine. Each position
// or size change is published on its own latest-wins mailbox, so the
// capture goroutine always crops with the newest value of each axis.
type Tracker struct {
	geom   Geometry
	origin Point // monitor origin in root coordinates

	positions *mailbox.Mailbox[Point]
	sizes     *mailbox.Mailbox[Size]
}

// NewTracker starts tracking from initial. origin is the top-left corner of
// the captured monitor; crop regions are relative to it.
func NewTracker(initial Geometry, origin Point) *Tracker {
	initial.Size = clampSize(initial.Size)
	return &Tracker{
		geom:      initial,
		origin:    origin,
		positions: mailbox.New[Point](),
		sizes:     mailbox.New[Size](),
	}
}

// OnResize records a new window size. It reports whether the size changed.
func (t *Tracker) OnResize(width, height int) bool {
	size := clampSize(Size{Width: width, Height: height})
	if size == t.geom.Size {
		return false
	}
	t.geom.Size = size
	t.sizes.Send(size)
	return true
}

// OnMove records a new content-area position. Negative coordinates are
// legal. It reports whether the position changed.
func (t *Tracker) OnMove(x, y int) bool {
	pos := Point{X: x, Y: y}
	if pos == t.geom.Position {
		return false
	}
	t.geom.Position = pos
	t.positions.Send(t.toMonitor(pos))
	return true
}

// OnFocus records the focus flag. It reports whether it changed.
func (t *Tracker) OnFocus(focused bool) bool {
	if focused == t.geom.Focused {
		return false
	}
	t.geom.Focused = focused
	return true
}

// Geometry returns the current window geometry.
func (t *Tracker) Geometry() Geometry {
	return t.geom
}

// Focused reports whether the overlay has input focus.
func (t *Tracker) Focused() bool {
	return t.geom.Focused
}

// Region returns the crop rectangle for the current geometry.
func (t *Tracker) Region() frame.Region {
	pos := t.toMonitor(t.geom.Position)
	return frame.Region{X: pos.X, Y: pos.Y, Width: t.geom.Size.Width, Height: t.geom.Size.Height}
}

// Follower returns the capture-side view of this tracker. There must be
// only one follower per tracker.
func (t *Tracker) Follower() *Follower {
	return &Follower{
		current:   t.Region(),
		positions: t.positions,
		sizes:     t.sizes,
	}
}

func (t *Tracker) toMonitor(p Point) Point {
	return Point{X: p.X - t.origin.X, Y: p.Y - t.origin.Y}
}

// Follower is owned by the capture goroutine. It keeps the last known
// region and folds in whatever updates have arrived since the last frame.
type Follower struct {
	current   frame.Region
	positions *mailbox.Mailbox[Point]
	sizes     *mailbox.Mailbox[Size]
}

// Current returns the region to crop the next frame with. It never blocks;
// without new updates it returns the previous region.
func (f *Follower) Current() frame.Region {
	if p, ok, _ := f.positions.TryRecv(); ok {
		f.current.X, f.current.Y = p.X, p.Y
	}
	if s, ok, _ := f.sizes.TryRecv(); ok {
		f.current.Width, f.current.Height = s.Width, s.Height
	}
	return f.current
}

func clampSize(s Size) Size {
	if s.Width < 0 {
		s.Width = 0
	}
	if s.Height < 0 {
		s.Height = 0
	}
	return s
}
