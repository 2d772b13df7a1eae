// Package window implements the overlay window on X11: creation, event
// translation, window-manager attributes and pixel presentation.
package window

import (
	"errors"
	"fmt"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/ShareFrame/internal/app"
	"github.com/bryanchriswhite/ShareFrame/internal/config"
	"github.com/bryanchriswhite/ShareFrame/internal/logger"
	"github.com/bryanchriswhite/ShareFrame/internal/region"
)

// Options configure the overlay window
type Options struct {
	Window config.WindowConfig
	Hotkey string // empty disables the global hotkey
}

// Overlay is the framing window. Event polling, chrome changes and
// presents must all happen on the render goroutine.
type Overlay struct {
	conn   *xgb.Conn
	screen *xproto.ScreenInfo
	win    xproto.Window
	gc     xproto.Gcontext
	atoms  atoms

	format   pixelFormat
	maxBytes int

	geom     region.Geometry
	hotkey   *Hotkey
	excluder CaptureExcluder

	closeOnce sync.Once
}

type atoms struct {
	wmProtocols  xproto.Atom
	wmDelete     xproto.Atom
	netWMName    xproto.Atom
	utf8String   xproto.Atom
	netWMState   xproto.Atom
	stateAbove   xproto.Atom
	stateBelow   xproto.Atom
	motifWMHints xproto.Atom
}

// Open connects to the X server, creates and maps the overlay window and
// grabs the hotkey if one is configured.
func Open(opts Options) (*Overlay, error) {
	log := logger.WithComponent("window")

	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	setup := xproto.Setup(conn)
	screen := setup.DefaultScreen(conn)

	format, err := formatFor(setup, screen.RootDepth)
	if err != nil {
		conn.Close()
		return nil, err
	}

	o := &Overlay{
		conn:     conn,
		screen:   screen,
		format:   format,
		maxBytes: int(setup.MaximumRequestLength)*4 - putImageHeader,
	}

	if err := o.internAtoms(); err != nil {
		conn.Close()
		return nil, err
	}
	if err := o.create(opts.Window); err != nil {
		conn.Close()
		return nil, err
	}

	o.excluder = NewCaptureExcluder(conn, o.win)

	if opts.Hotkey != "" {
		hk, err := ParseHotkey(opts.Hotkey)
		if err != nil {
			o.Close()
			return nil, err
		}
		if err := hk.Grab(conn, screen.Root); err != nil {
			// the overlay is still usable through the control server
			log.Warn().Err(err).Str("hotkey", opts.Hotkey).Msg("Failed to grab hotkey")
		} else {
			o.hotkey = hk
		}
	}

	geom, err := o.queryGeometry()
	if err != nil {
		o.Close()
		return nil, err
	}
	o.geom = geom

	log.Info().
		Uint32("window_id", uint32(o.win)).
		Int("width", geom.Size.Width).
		Int("height", geom.Size.Height).
		Int("x", geom.Position.X).
		Int("y", geom.Position.Y).
		Str("excluder", o.excluder.Name()).
		Msg("Overlay window created")
	return o, nil
}

func (o *Overlay) internAtoms() error {
	names := []struct {
		dst  *xproto.Atom
		name string
	}{
		{&o.atoms.wmProtocols, "WM_PROTOCOLS"},
		{&o.atoms.wmDelete, "WM_DELETE_WINDOW"},
		{&o.atoms.netWMName, "_NET_WM_NAME"},
		{&o.atoms.utf8String, "UTF8_STRING"},
		{&o.atoms.netWMState, "_NET_WM_STATE"},
		{&o.atoms.stateAbove, "_NET_WM_STATE_ABOVE"},
		{&o.atoms.stateBelow, "_NET_WM_STATE_BELOW"},
		{&o.atoms.motifWMHints, "_MOTIF_WM_HINTS"},
	}
	for _, n := range names {
		atom, err := getAtom(o.conn, n.name)
		if err != nil {
			return fmt.Errorf("failed to intern %s: %w", n.name, err)
		}
		*n.dst = atom
	}
	return nil
}

func (o *Overlay) create(cfg config.WindowConfig) error {
	log := logger.WithComponent("window")

	win, err := xproto.NewWindowId(o.conn)
	if err != nil {
		return fmt.Errorf("failed to create window ID: %w", err)
	}
	o.win = win

	const eventMask = xproto.EventMaskExposure |
		xproto.EventMaskStructureNotify |
		xproto.EventMaskFocusChange |
		xproto.EventMaskKeyPress

	err = xproto.CreateWindowChecked(
		o.conn,
		o.screen.RootDepth,
		win,
		o.screen.Root,
		int16(cfg.X), int16(cfg.Y),
		uint16(cfg.Width), uint16(cfg.Height),
		0,
		xproto.WindowClassInputOutput,
		o.screen.RootVisual,
		xproto.CwBackPixel|xproto.CwEventMask,
		[]uint32{0x000000, eventMask},
	).Check()
	if err != nil {
		return fmt.Errorf("failed to create window: %w", err)
	}

	if err := o.setTitle(cfg.Title); err != nil {
		log.Warn().Err(err).Msg("Failed to set window title")
	}
	if err := o.setClass("shareframe", "ShareFrame"); err != nil {
		log.Warn().Err(err).Msg("Failed to set window class")
	}

	// ask for a ClientMessage instead of being killed on close
	protocols := make([]byte, 4)
	xgb.Put32(protocols, uint32(o.atoms.wmDelete))
	if err := xproto.ChangePropertyChecked(o.conn, xproto.PropModeReplace, win,
		o.atoms.wmProtocols, xproto.AtomAtom, 32, 1, protocols).Check(); err != nil {
		log.Warn().Err(err).Msg("Failed to set WM_PROTOCOLS")
	}

	if err := xproto.MapWindowChecked(o.conn, win).Check(); err != nil {
		return fmt.Errorf("failed to map window: %w", err)
	}

	gc, err := xproto.NewGcontextId(o.conn)
	if err != nil {
		return fmt.Errorf("failed to create graphics context ID: %w", err)
	}
	if err := xproto.CreateGCChecked(o.conn, gc, xproto.Drawable(win), 0, nil).Check(); err != nil {
		return fmt.Errorf("failed to create GC: %w", err)
	}
	o.gc = gc

	o.conn.Sync()
	return nil
}

// queryGeometry returns the content area in root coordinates. A
// reparenting window manager puts the window inside a frame, so the
// position comes from translating the window origin, not from
// ConfigureNotify.
func (o *Overlay) queryGeometry() (region.Geometry, error) {
	g, err := xproto.GetGeometry(o.conn, xproto.Drawable(o.win)).Reply()
	if err != nil {
		return region.Geometry{}, fmt.Errorf("failed to get window geometry: %w", err)
	}
	pos, err := xproto.TranslateCoordinates(o.conn, o.win, o.screen.Root, 0, 0).Reply()
	if err != nil {
		return region.Geometry{}, fmt.Errorf("failed to translate window coordinates: %w", err)
	}
	return region.Geometry{
		Position: region.Point{X: int(pos.DstX), Y: int(pos.DstY)},
		Size:     region.Size{Width: int(g.Width), Height: int(g.Height)},
		Focused:  o.geom.Focused,
	}, nil
}

// Geometry returns the last known content-area geometry
func (o *Overlay) Geometry() region.Geometry {
	return o.geom
}

// PollEvents drains the X event queue without blocking
func (o *Overlay) PollEvents() ([]app.Event, error) {
	log := logger.WithComponent("window")

	var events []app.Event
	for {
		ev, xerr := o.conn.PollForEvent()
		if xerr != nil {
			// errors from unchecked requests; not fatal for the window
			log.Debug().Str("error", xerr.Error()).Msg("X11 error")
			continue
		}
		if ev == nil {
			return events, nil
		}
		events = append(events, o.translate(ev)...)
	}
}

func (o *Overlay) translate(ev xgb.Event) []app.Event {
	switch e := ev.(type) {
	case xproto.ConfigureNotifyEvent:
		if e.Window != o.win {
			return nil
		}
		var out []app.Event
		if int(e.Width) != o.geom.Size.Width || int(e.Height) != o.geom.Size.Height {
			o.geom.Size = region.Size{Width: int(e.Width), Height: int(e.Height)}
			out = append(out, app.Event{Kind: app.EventResized, Width: int(e.Width), Height: int(e.Height)})
		}
		if geom, err := o.queryGeometry(); err == nil && geom.Position != o.geom.Position {
			o.geom.Position = geom.Position
			out = append(out, app.Event{Kind: app.EventMoved, X: geom.Position.X, Y: geom.Position.Y})
		}
		return out

	case xproto.FocusInEvent:
		if ignoreFocusDetail(e.Detail) {
			return nil
		}
		o.geom.Focused = true
		return []app.Event{{Kind: app.EventFocus, Focused: true}}

	case xproto.FocusOutEvent:
		if ignoreFocusDetail(e.Detail) {
			return nil
		}
		o.geom.Focused = false
		return []app.Event{{Kind: app.EventFocus, Focused: false}}

	case xproto.ExposeEvent:
		if e.Count == 0 {
			return []app.Event{{Kind: app.EventExposed}}
		}

	case xproto.KeyPressEvent:
		if o.hotkey != nil && o.hotkey.Matches(e.Detail, e.State) {
			return []app.Event{{Kind: app.EventToggle}}
		}

	case xproto.ClientMessageEvent:
		if e.Type == o.atoms.wmProtocols && e.Format == 32 &&
			xproto.Atom(e.Data.Data32[0]) == o.atoms.wmDelete {
			return []app.Event{{Kind: app.EventClose}}
		}

	case xproto.DestroyNotifyEvent:
		if e.Window == o.win {
			return []app.Event{{Kind: app.EventClose}}
		}
	}
	return nil
}

// focus moving between our own subwindows or following the pointer is
// not a real focus change
func ignoreFocusDetail(detail byte) bool {
	return detail == xproto.NotifyDetailInferior || detail == xproto.NotifyDetailPointer
}

// Close releases the hotkey grab, the window and the connection
func (o *Overlay) Close() error {
	o.closeOnce.Do(func() {
		if o.hotkey != nil {
			o.hotkey.Ungrab(o.conn, o.screen.Root)
		}
		if o.gc != 0 {
			xproto.FreeGC(o.conn, o.gc)
		}
		if o.win != 0 {
			xproto.DestroyWindow(o.conn, o.win)
		}
		o.conn.Sync()
		o.conn.Close()
		logger.WithComponent("window").Info().Msg("Overlay window closed")
	})
	return nil
}

func (o *Overlay) setTitle(title string) error {
	if err := xproto.ChangePropertyChecked(o.conn, xproto.PropModeReplace, o.win,
		o.atoms.netWMName, o.atoms.utf8String, 8, uint32(len(title)), []byte(title)).Check(); err != nil {
		return err
	}
	return xproto.ChangePropertyChecked(o.conn, xproto.PropModeReplace, o.win,
		xproto.AtomWmName, xproto.AtomString, 8, uint32(len(title)), []byte(title)).Check()
}

// setClass sets WM_CLASS, formatted as instance\0class\0
func (o *Overlay) setClass(instance, class string) error {
	value := instance + "\x00" + class + "\x00"
	return xproto.ChangePropertyChecked(o.conn, xproto.PropModeReplace, o.win,
		xproto.AtomWmClass, xproto.AtomString, 8, uint32(len(value)), []byte(value)).Check()
}

func getAtom(conn *xgb.Conn, name string) (xproto.Atom, error) {
	reply, err := xproto.InternAtom(conn, false, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, err
	}
	if reply == nil {
		return 0, errors.New("empty InternAtom reply")
	}
	return reply.Atom, nil
}
