package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/bryanchriswhite/ShareFrame/internal/frame"
	"github.com/bryanchriswhite/ShareFrame/internal/logger"
	"github.com/kbinani/screenshot"
)

// DefaultErrorBudget is how many consecutive failed captures a
// ScreenshotSource tolerates before giving up.
const DefaultErrorBudget = 10

// ScreenshotSource captures a display through kbinani/screenshot, which
// works on X11, Windows and macOS without extra setup.
type ScreenshotSource struct {
	displayIndex int
	errorBudget  int

	capture  func(image.Rectangle) (*image.RGBA, error)
	bounds   func(int) image.Rectangle
	displays func() int

	monitor Monitor
	errors  int
	seq     uint64
	mu      sync.Mutex
}

// NewScreenshotSource returns a source for the given display index.
func NewScreenshotSource(displayIndex int) *ScreenshotSource {
	return &ScreenshotSource{
		displayIndex: displayIndex,
		errorBudget:  DefaultErrorBudget,
		capture:      screenshot.CaptureRect,
		bounds:       screenshot.GetDisplayBounds,
		displays:     screenshot.NumActiveDisplays,
	}
}

// Name returns the source name
func (s *ScreenshotSource) Name() string {
	return "screenshot"
}

// Start resolves the display bounds
func (s *ScreenshotSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.displays()
	if n == 0 {
		return errors.New("no active display found")
	}
	if s.displayIndex >= n {
		return fmt.Errorf("display %d is out of range (max: %d)", s.displayIndex, n-1)
	}

	r := s.bounds(s.displayIndex)
	s.monitor = Monitor{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
	s.errors = 0

	logger.WithComponent("capture").Info().
		Int("display", s.displayIndex).
		Str("monitor", s.monitor.String()).
		Msg("Screenshot capture started")
	return nil
}

// Next captures the display. Failures are transient until more than
// errorBudget happen in a row.
func (s *ScreenshotSource) Next(ctx context.Context) (*frame.Raw, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rect := image.Rect(s.monitor.X, s.monitor.Y, s.monitor.X+s.monitor.Width, s.monitor.Y+s.monitor.Height)
	img, err := s.capture(rect)
	if err != nil {
		s.errors++
		if s.errors > s.errorBudget {
			return nil, fmt.Errorf("unable to capture display %d: %w", s.displayIndex, err)
		}
		return nil, pending("capture display %d: %v", s.displayIndex, err)
	}
	s.errors = 0

	s.seq++
	return &frame.Raw{
		Pix:        img.Pix,
		Width:      img.Rect.Dx(),
		Height:     img.Rect.Dy(),
		Stride:     img.Stride,
		Layout:     frame.LayoutRGBA,
		Seq:        s.seq,
		CapturedAt: time.Now(),
	}, nil
}

// Monitor returns the captured area
func (s *ScreenshotSource) Monitor() Monitor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.monitor
}

// Stop is a no-op; kbinani/screenshot holds no resources between captures
func (s *ScreenshotSource) Stop() error {
	return nil
}
