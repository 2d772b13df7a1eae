package window

import (
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/ShareFrame/internal/logger"
)

// CaptureExcluder hides a window from screen capture. Platforms without a
// mechanism report it once and keep going; Share mode then relies on the
// window being stacked at the bottom.
type CaptureExcluder interface {
	Name() string
	Supported() bool
	SetExcluded(on bool) error
}

// NewCaptureExcluder picks the excluder for the running display server.
// X11 has no capture exclusion for ordinary clients.
func NewCaptureExcluder(conn *xgb.Conn, win xproto.Window) CaptureExcluder {
	return &unsupportedExcluder{name: "x11"}
}

type unsupportedExcluder struct {
	name string
	once sync.Once
}

func (e *unsupportedExcluder) Name() string    { return e.name }
func (e *unsupportedExcluder) Supported() bool { return false }

func (e *unsupportedExcluder) SetExcluded(on bool) error {
	if !on {
		return nil
	}
	e.once.Do(func() {
		logger.WithComponent("window").Info().
			Str("excluder", e.name).
			Msg("Capture exclusion is not available; Share mode relies on bottom stacking")
	})
	return nil
}
