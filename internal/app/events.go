package app

import (
	"fmt"

	"github.com/bryanchriswhite/ShareFrame/internal/mode"
	"github.com/bryanchriswhite/ShareFrame/internal/region"
)

// EventKind identifies a window event
type EventKind int

const (
	// EventResized carries the new content-area Width and Height
	EventResized EventKind = iota
	// EventMoved carries the content area's new root X and Y
	EventMoved
	// EventFocus carries the new Focused state
	EventFocus
	// EventExposed means the window contents were lost and must be redrawn
	EventExposed
	// EventToggle is a hotkey press requesting a mode toggle
	EventToggle
	// EventClose is a close request from the window manager
	EventClose
)

func (k EventKind) String() string {
	switch k {
	case EventResized:
		return "resized"
	case EventMoved:
		return "moved"
	case EventFocus:
		return "focus"
	case EventExposed:
		return "exposed"
	case EventToggle:
		return "toggle"
	case EventClose:
		return "close"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is one window-system notification, already translated to
// content-area root coordinates.
type Event struct {
	Kind    EventKind
	X, Y    int
	Width   int
	Height  int
	Focused bool
}

// Window is the overlay window as seen by the render loop.
type Window interface {
	mode.Chrome

	// Geometry returns the current content-area geometry.
	Geometry() region.Geometry

	// PollEvents returns the events queued since the last call without
	// blocking.
	PollEvents() ([]Event, error)
}

// Trigger is a non-blocking source of toggle requests.
type Trigger interface {
	Poll() bool
}

// ChanTrigger is a Trigger fired from other goroutines. Fires that arrive
// before the next Poll collapse into one.
type ChanTrigger struct {
	ch chan struct{}
}

// NewChanTrigger returns an idle trigger
func NewChanTrigger() *ChanTrigger {
	return &ChanTrigger{ch: make(chan struct{}, 1)}
}

// Fire requests a toggle. It reports false if one was already pending.
func (t *ChanTrigger) Fire() bool {
	select {
	case t.ch <- struct{}{}:
		return true
	default:
		return false
	}
}

// Poll consumes a pending request
func (t *ChanTrigger) Poll() bool {
	select {
	case <-t.ch:
		return true
	default:
		return false
	}
}
