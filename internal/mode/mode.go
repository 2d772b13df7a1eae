// Package mode implements the Alignment/Share state machine that decides
// how the overlay window presents itself.
package mode

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultDebounce is the minimum dwell time between accepted toggles.
const DefaultDebounce = 300 * time.Millisecond

// Mode is the overlay presentation state.
type Mode int

const (
	// Alignment shows the window framed and on top so it can be placed.
	Alignment Mode = iota
	// Share hides the chrome, drops the window to the bottom and excludes
	// it from capture where the platform allows.
	Share
)

func (m Mode) String() string {
	switch m {
	case Alignment:
		return "alignment"
	case Share:
		return "share"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Parse accepts "alignment" or "share", case-insensitively.
func Parse(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "alignment", "align", "":
		return Alignment, nil
	case "share", "sharing":
		return Share, nil
	default:
		return Alignment, fmt.Errorf("unknown mode %q", s)
	}
}

// Stacking is the window's position in the stacking order.
type Stacking int

const (
	StackTop Stacking = iota
	StackBottom
)

func (s Stacking) String() string {
	if s == StackBottom {
		return "bottom"
	}
	return "top"
}

// Chrome is the set of window attributes a transition changes.
type Chrome interface {
	SetDecorations(visible bool) error
	SetStacking(stacking Stacking) error
	SetContentProtected(protected bool) error
}

// Controller is the debounced two-state machine. It is owned by the render
// goroutine and is not safe for concurrent use.
type Controller struct {
	chrome   Chrome
	debounce time.Duration
	now      func() time.Time

	mode           Mode
	lastTransition time.Time
	transitions    uint64
}

// Option configures a Controller.
type Option func(*Controller)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(c *Controller) {
		if d >= 0 {
			c.debounce = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// WithInitial sets the starting mode. Alignment is the default.
func WithInitial(m Mode) Option {
	return func(c *Controller) {
		c.mode = m
	}
}

// NewController returns a controller in Alignment mode. The first toggle is
// always accepted.
func NewController(chrome Chrome, opts ...Option) *Controller {
	c := &Controller{
		chrome:   chrome,
		debounce: DefaultDebounce,
		now:      time.Now,
		mode:     Alignment,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Mode returns the current state.
func (c *Controller) Mode() Mode {
	return c.mode
}

// Transitions returns the number of accepted toggles.
func (c *Controller) Transitions() uint64 {
	return c.transitions
}

// Apply pushes the current state's window attributes without changing
// state or the debounce timer.
func (c *Controller) Apply() error {
	return c.apply(c.mode)
}

// Toggle is ToggleAt(now).
func (c *Controller) Toggle() (bool, error) {
	return c.ToggleAt(c.now())
}

// ToggleAt handles a toggle request arriving at now. Requests within the
// debounce window of the last accepted transition are ignored entirely.
// An accepted request flips the mode and applies its window attributes; the
// transition stands even if some attributes could not be set.
func (c *Controller) ToggleAt(now time.Time) (bool, error) {
	if !c.lastTransition.IsZero() && now.Sub(c.lastTransition) < c.debounce {
		return false, nil
	}

	next := Share
	if c.mode == Share {
		next = Alignment
	}
	c.mode = next
	c.lastTransition = now
	c.transitions++

	if err := c.apply(next); err != nil {
		return true, fmt.Errorf("apply %s mode: %w", next, err)
	}
	return true, nil
}

func (c *Controller) apply(m Mode) error {
	if c.chrome == nil {
		return nil
	}
	share := m == Share
	stacking := StackTop
	if share {
		stacking = StackBottom
	}
	return errors.Join(
		c.chrome.SetDecorations(!share),
		c.chrome.SetContentProtected(share),
		c.chrome.SetStacking(stacking),
	)
}
