// Package capture produces full-monitor frames from the platform's screen
// capture facilities.
package capture

import (
	"context"
	"errors"
	"fmt"

	"github.com/bryanchriswhite/ShareFrame/internal/frame"
	"github.com/bryanchriswhite/ShareFrame/internal/region"
)

// ErrPending means no frame is available yet. Callers retry on the next
// tick; it never ends the capture.
var ErrPending = errors.New("no frame available yet")

// ErrStreamEnded is reported when a push source's stream stops on its own.
var ErrStreamEnded = errors.New("capture stream ended")

// IsPending reports whether err is a transient "try again" condition.
func IsPending(err error) bool {
	return errors.Is(err, ErrPending)
}

func pending(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrPending, fmt.Sprintf(format, args...))
}

// Source is a FrameSource: something that yields successive full-monitor
// frames. Next either returns a frame, an error matching ErrPending, or a
// fatal error after which the source is not used again.
type Source interface {
	// Name returns a human-readable name for this source
	Name() string

	// Start acquires whatever the source needs (connections, sessions,
	// subprocesses). Monitor is valid once Start returns.
	Start(ctx context.Context) error

	// Next returns the next frame. Pull sources return immediately; push
	// sources block until the stream delivers one or ctx ends.
	Next(ctx context.Context) (*frame.Raw, error)

	// Monitor describes the captured area in root/desktop coordinates.
	Monitor() Monitor

	// Stop releases resources
	Stop() error
}

// Monitor is the captured area in desktop coordinates. Frames are Width x
// Height and pixel (0,0) of a frame is desktop point (X,Y).
type Monitor struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Origin returns the monitor's top-left corner, the point that window
// positions are made relative to.
func (m Monitor) Origin() region.Point {
	return region.Point{X: m.X, Y: m.Y}
}

func (m Monitor) String() string {
	return fmt.Sprintf("%dx%d%+d%+d", m.Width, m.Height, m.X, m.Y)
}
