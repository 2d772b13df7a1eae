package capture

import (
	"context"
	"sync"
	"time"

	"github.com/bryanchriswhite/ShareFrame/internal/frame"
)

// SyntheticSource generates a checkerboard that scrolls one pixel per
// frame. It needs no display and is used for demos and tests.
type SyntheticSource struct {
	width, height int
	cell          int
	layout        frame.Layout
	scroll        bool

	seq uint64
	mu  sync.Mutex
}

// SyntheticOption configures a SyntheticSource
type SyntheticOption func(*SyntheticSource)

// WithCell sets the checkerboard cell size in pixels.
func WithCell(px int) SyntheticOption {
	return func(s *SyntheticSource) {
		if px > 0 {
			s.cell = px
		}
	}
}

// WithLayout sets the byte order of generated frames.
func WithLayout(l frame.Layout) SyntheticOption {
	return func(s *SyntheticSource) { s.layout = l }
}

// Static disables scrolling so every frame is identical.
func Static() SyntheticOption {
	return func(s *SyntheticSource) { s.scroll = false }
}

// NewSyntheticSource returns a width x height checkerboard source.
func NewSyntheticSource(width, height int, opts ...SyntheticOption) *SyntheticSource {
	s := &SyntheticSource{
		width:  width,
		height: height,
		cell:   32,
		layout: frame.LayoutRGBA,
		scroll: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the source name
func (s *SyntheticSource) Name() string {
	return "synthetic"
}

// Start is a no-op
func (s *SyntheticSource) Start(ctx context.Context) error {
	return nil
}

// Next renders the next frame
func (s *SyntheticSource) Next(ctx context.Context) (*frame.Raw, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	offset := 0
	if s.scroll {
		offset = int(seq - 1)
	}

	pix := make([]byte, s.width*s.height*frame.BytesPerPixel)
	for y := 0; y < s.height; y++ {
		for x := 0; x < s.width; x++ {
			r, g, b := Checker(x+offset, y, s.cell)
			i := (y*s.width + x) * frame.BytesPerPixel
			switch s.layout {
			case frame.LayoutRGBA:
				pix[i], pix[i+1], pix[i+2], pix[i+3] = r, g, b, 0xff
			case frame.LayoutBGRA:
				pix[i], pix[i+1], pix[i+2], pix[i+3] = b, g, r, 0xff
			case frame.LayoutBGRX:
				pix[i], pix[i+1], pix[i+2] = b, g, r
			}
		}
	}

	return &frame.Raw{
		Pix:        pix,
		Width:      s.width,
		Height:     s.height,
		Layout:     s.layout,
		Seq:        seq,
		CapturedAt: time.Now(),
	}, nil
}

// Checker returns the RGB color of pixel (x, y) in a checkerboard with
// the given cell size: white and dark gray, with a red tint on odd rows
// of cells so orientation is visible.
func Checker(x, y, cell int) (r, g, b byte) {
	if cell <= 0 {
		cell = 1
	}
	cx, cy := x/cell, y/cell
	if (cx+cy)%2 == 0 {
		return 0xff, 0xff, 0xff
	}
	if cy%2 == 1 {
		return 0xc0, 0x20, 0x20
	}
	return 0x30, 0x30, 0x30
}

// Monitor returns the synthetic monitor, anchored at the desktop origin
func (s *SyntheticSource) Monitor() Monitor {
	return Monitor{Width: s.width, Height: s.height}
}

// Stop is a no-op
func (s *SyntheticSource) Stop() error {
	return nil
}
