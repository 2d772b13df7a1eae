// Package compositor decides, once per render tick, which pixels the
// overlay window shows.
package compositor

import (
	"errors"
	"fmt"

	"github.com/bryanchriswhite/ShareFrame/internal/frame"
	"github.com/bryanchriswhite/ShareFrame/internal/logger"
	"github.com/bryanchriswhite/ShareFrame/internal/mailbox"
	"github.com/bryanchriswhite/ShareFrame/internal/region"
)

const (
	// DefaultPrivacyGray is the fill level shown while the overlay is focused.
	DefaultPrivacyGray byte = 128

	// DefaultMaxFailures is the number of consecutive presentation failures
	// treated as fatal.
	DefaultMaxFailures = 5
)

var (
	// ErrCaptureStopped wraps the cause when the capture side has shut down.
	ErrCaptureStopped = errors.New("capture stopped")

	// ErrPresentFailed is returned once presentation keeps failing.
	ErrPresentFailed = errors.New("presentation failed repeatedly")
)

// Surface accepts RGBA buffers of exactly width*height*4 bytes.
type Surface interface {
	Resize(width, height int) error
	Present(pix []byte, width, height int) error
}

// Config holds compositor options.
type Config struct {
	PrivacyGray byte
	MaxFailures int
}

// Compositor is owned by the render goroutine.
type Compositor struct {
	surface Surface
	frames  *mailbox.Mailbox[*frame.Cropped]
	cfg     Config

	size     region.Size
	latest   *frame.Cropped
	fill     *frame.Cropped // privacy fill for size, built on demand
	blank    *frame.Cropped // placeholder for size, built on demand
	shown    shown
	dirty    bool
	failures int

	presented uint64
}

// shown identifies what the surface currently displays.
type shown struct {
	privacy bool
	seq     uint64
	hasSeq  bool
	size    region.Size
}

// New returns a compositor presenting to surface the frames arriving on
// frames, for a window of the given size.
func New(surface Surface, frames *mailbox.Mailbox[*frame.Cropped], size region.Size, cfg Config) *Compositor {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = DefaultMaxFailures
	}
	return &Compositor{
		surface: surface,
		frames:  frames,
		cfg:     cfg,
		size:    size,
		dirty:   true,
	}
}

// Resize resizes the surface to the new window size and schedules a
// repaint.
func (c *Compositor) Resize(size region.Size) error {
	if size != c.size {
		c.fill, c.blank = nil, nil
	}
	c.size = size
	c.dirty = true
	if err := c.surface.Resize(size.Width, size.Height); err != nil {
		return c.fail(fmt.Errorf("resize surface to %dx%d: %w", size.Width, size.Height, err))
	}
	return nil
}

// Invalidate forces the next tick to present even if nothing changed
// (e.g. after an expose event).
func (c *Compositor) Invalidate() {
	c.dirty = true
}

// Tick takes the newest delivered frame, if any, and presents what the
// window should show. While focused the window shows a uniform gray fill
// instead of captured content; before the first frame it shows a blank
// buffer. Tick never blocks on the capture side. The returned error is
// non-nil only when the render loop must stop.
func (c *Compositor) Tick(focused bool) error {
	f, ok, err := c.frames.TryRecv()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCaptureStopped, err)
	}
	if ok && f != nil {
		c.latest = f
	}

	want := c.want(focused)
	if !c.dirty && want == c.shown {
		return nil
	}
	out := c.buffer(want)

	if err := c.surface.Present(out.Pix, out.Width, out.Height); err != nil {
		return c.fail(fmt.Errorf("present %dx%d: %w", out.Width, out.Height, err))
	}
	c.failures = 0
	c.dirty = false
	c.shown = want
	c.presented++
	return nil
}

// Presented returns the number of successful presents.
func (c *Compositor) Presented() uint64 {
	return c.presented
}

// want describes what the window should show without building it
func (c *Compositor) want(focused bool) shown {
	switch {
	case focused:
		return shown{privacy: true, size: c.size}
	case c.latest != nil:
		return shown{seq: c.latest.Seq, hasSeq: true, size: region.Size{Width: c.latest.Width, Height: c.latest.Height}}
	default:
		return shown{size: c.size}
	}
}

// buffer returns the pixels for w. Fill and placeholder buffers are reused
// until the size changes; surfaces must not modify what they are given.
func (c *Compositor) buffer(w shown) *frame.Cropped {
	switch {
	case w.privacy:
		if c.fill == nil {
			c.fill = frame.Fill(c.size.Width, c.size.Height, c.cfg.PrivacyGray)
		}
		return c.fill
	case w.hasSeq:
		return c.latest
	default:
		if c.blank == nil {
			c.blank = frame.Blank(c.size.Width, c.size.Height)
		}
		return c.blank
	}
}

// fail records a presentation failure. A single failure is logged and the
// pipeline continues; MaxFailures in a row are fatal.
func (c *Compositor) fail(err error) error {
	c.failures++
	c.dirty = true
	if c.failures >= c.cfg.MaxFailures {
		return fmt.Errorf("%w: %w", ErrPresentFailed, err)
	}
	logger.WithComponent("compositor").Warn().
		Err(err).
		Int("consecutive_failures", c.failures).
		Msg("Presentation failed")
	return nil
}
