package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xinerama"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/ShareFrame/internal/frame"
	"github.com/bryanchriswhite/ShareFrame/internal/logger"
)

// X11Source captures a monitor by reading the root window with GetImage.
type X11Source struct {
	monitorIndex int

	conn    *xgb.Conn
	root    xproto.Window
	layout  frame.Layout
	monitor Monitor
	seq     uint64
	mu      sync.Mutex
}

// NewX11Source returns a source for the given Xinerama monitor. Index 0
// falls back to the whole root window when Xinerama is unavailable.
func NewX11Source(monitorIndex int) *X11Source {
	return &X11Source{monitorIndex: monitorIndex}
}

// Name returns the source name
func (s *X11Source) Name() string {
	return "x11"
}

// Start connects to the X server and resolves the monitor geometry
func (s *X11Source) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := logger.WithComponent("capture")

	conn, err := xgb.NewConn()
	if err != nil {
		return fmt.Errorf("failed to connect to X server: %w", err)
	}

	setup := xproto.Setup(conn)
	screen := setup.DefaultScreen(conn)

	layout, err := rootLayout(setup, screen.RootDepth)
	if err != nil {
		conn.Close()
		return err
	}

	mon, err := x11Monitor(conn, screen, s.monitorIndex)
	if err != nil {
		conn.Close()
		return err
	}

	s.conn = conn
	s.root = screen.Root
	s.layout = layout
	s.monitor = mon

	log.Info().
		Str("monitor", mon.String()).
		Str("layout", layout.String()).
		Uint8("depth", screen.RootDepth).
		Msg("X11 capture started")

	return nil
}

// rootLayout maps the root depth to a pixel layout. Only 32 bits per
// pixel, least significant byte first, is supported.
func rootLayout(setup *xproto.SetupInfo, depth byte) (frame.Layout, error) {
	if setup.ImageByteOrder != xproto.ImageOrderLSBFirst {
		return 0, fmt.Errorf("unsupported X image byte order %d", setup.ImageByteOrder)
	}
	for _, f := range setup.PixmapFormats {
		if f.Depth == depth && f.BitsPerPixel != 32 {
			return 0, fmt.Errorf("unsupported pixmap format: depth %d at %d bpp", depth, f.BitsPerPixel)
		}
	}
	switch depth {
	case 24:
		return frame.LayoutBGRX, nil
	case 32:
		return frame.LayoutBGRA, nil
	default:
		return 0, fmt.Errorf("unsupported root depth %d", depth)
	}
}

func x11Monitor(conn *xgb.Conn, screen *xproto.ScreenInfo, index int) (Monitor, error) {
	whole := Monitor{Width: int(screen.WidthInPixels), Height: int(screen.HeightInPixels)}

	if err := xinerama.Init(conn); err != nil {
		if index == 0 {
			return whole, nil
		}
		return Monitor{}, fmt.Errorf("monitor %d requested but Xinerama is unavailable: %w", index, err)
	}

	reply, err := xinerama.QueryScreens(conn).Reply()
	if err != nil || len(reply.ScreenInfo) == 0 {
		if index == 0 {
			return whole, nil
		}
		return Monitor{}, fmt.Errorf("failed to query monitors: %v", err)
	}
	if index >= len(reply.ScreenInfo) {
		return Monitor{}, fmt.Errorf("monitor %d is out of range (have %d)", index, len(reply.ScreenInfo))
	}

	info := reply.ScreenInfo[index]
	return Monitor{
		X:      int(info.XOrg),
		Y:      int(info.YOrg),
		Width:  int(info.Width),
		Height: int(info.Height),
	}, nil
}

// Next reads the monitor area from the root window. X protocol errors
// (e.g. while the screen is being reconfigured) are transient.
func (s *X11Source) Next(ctx context.Context) (*frame.Raw, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil, errors.New("x11 source not started")
	}

	reply, err := xproto.GetImage(
		s.conn,
		xproto.ImageFormatZPixmap,
		xproto.Drawable(s.root),
		int16(s.monitor.X), int16(s.monitor.Y),
		uint16(s.monitor.Width), uint16(s.monitor.Height),
		0xffffffff,
	).Reply()
	if err != nil {
		var xerr xgb.Error
		if errors.As(err, &xerr) {
			return nil, pending("GetImage: %v", err)
		}
		return nil, fmt.Errorf("failed to get image: %w", err)
	}

	s.seq++
	return &frame.Raw{
		Pix:        reply.Data,
		Width:      s.monitor.Width,
		Height:     s.monitor.Height,
		Stride:     s.monitor.Width * frame.BytesPerPixel,
		Layout:     s.layout,
		Seq:        s.seq,
		CapturedAt: time.Now(),
	}, nil
}

// Monitor returns the captured area
func (s *X11Source) Monitor() Monitor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.monitor
}

// Stop closes the X11 connection
func (s *X11Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	return nil
}
