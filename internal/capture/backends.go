package capture

import (
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/BurntSushi/xgb"
	"github.com/bryanchriswhite/ShareFrame/internal/config"
	"github.com/bryanchriswhite/ShareFrame/internal/logger"
	"github.com/kbinani/screenshot"
)

// Synthetic frame size used by the synthetic backend
const (
	SyntheticWidth  = 1280
	SyntheticHeight = 720
)

// Backend describes a capture backend and whether it can run here
type Backend struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"` // "pull" or "push"
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

type backendInfo struct {
	name  string
	kind  string
	check func() error
}

var backends = []backendInfo{
	{name: config.BackendX11, kind: "pull", check: checkX11},
	{name: config.BackendScreenshot, kind: "pull", check: checkScreenshot},
	{name: config.BackendXImageSrc, kind: "push", check: checkXImageSrc},
	{name: config.BackendPipeWire, kind: "push", check: checkPipeWire},
	{name: config.BackendSynthetic, kind: "pull", check: func() error { return nil }},
}

// autoOrder is tried by the "auto" backend. PipeWire is excluded since it
// may pop up a dialog; it has to be asked for.
var autoOrder = []string{config.BackendX11, config.BackendScreenshot}

// Backends reports every backend and its availability
func Backends() []Backend {
	out := make([]Backend, 0, len(backends))
	for _, b := range backends {
		entry := Backend{Name: b.name, Kind: b.kind, Available: true}
		if err := b.check(); err != nil {
			entry.Available = false
			entry.Reason = err.Error()
		}
		out = append(out, entry)
	}
	return out
}

// New builds the configured source. It does not start it.
func New(cfg config.CaptureConfig) (Source, error) {
	log := logger.WithComponent("capture")

	name := cfg.Backend
	if name == "" || name == config.BackendAuto {
		var errs []error
		for _, candidate := range autoOrder {
			err := lookup(candidate).check()
			if err == nil {
				name = candidate
				break
			}
			errs = append(errs, fmt.Errorf("%s: %w", candidate, err))
		}
		if name == "" || name == config.BackendAuto {
			return nil, fmt.Errorf("no capture backends available: %w", errors.Join(errs...))
		}
		log.Info().Str("backend", name).Msg("Selected capture backend")
	}

	switch name {
	case config.BackendX11:
		return NewX11Source(cfg.Monitor), nil
	case config.BackendScreenshot:
		return NewScreenshotSource(cfg.Monitor), nil
	case config.BackendXImageSrc:
		return NewPushSource(NewXImageSrcDriver(cfg.Monitor)), nil
	case config.BackendPipeWire:
		return NewPushSource(NewPipeWireDriver("")), nil
	case config.BackendSynthetic:
		return NewSyntheticSource(SyntheticWidth, SyntheticHeight), nil
	default:
		return nil, fmt.Errorf("unknown capture backend %q", name)
	}
}

func lookup(name string) backendInfo {
	for _, b := range backends {
		if b.name == name {
			return b
		}
	}
	return backendInfo{name: name, check: func() error { return fmt.Errorf("unknown backend") }}
}

func checkX11() error {
	if os.Getenv("DISPLAY") == "" {
		return errors.New("DISPLAY is not set")
	}
	conn, err := xgb.NewConn()
	if err != nil {
		return fmt.Errorf("failed to connect to X server: %w", err)
	}
	conn.Close()
	return nil
}

func checkScreenshot() (err error) {
	// kbinani/screenshot panics on some headless setups
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("screenshot unavailable: %v", r)
		}
	}()
	if screenshot.NumActiveDisplays() == 0 {
		return errors.New("no active display found")
	}
	return nil
}

func checkXImageSrc() error {
	if _, err := exec.LookPath(gstLaunch); err != nil {
		return fmt.Errorf("%s not found", gstLaunch)
	}
	if os.Getenv("DISPLAY") == "" {
		return errors.New("DISPLAY is not set")
	}
	return nil
}

func checkPipeWire() error {
	if _, err := exec.LookPath(gstLaunch); err != nil {
		return fmt.Errorf("%s not found", gstLaunch)
	}
	if os.Getenv("DBUS_SESSION_BUS_ADDRESS") == "" && os.Getenv("XDG_RUNTIME_DIR") == "" {
		return errors.New("no D-Bus session bus")
	}
	return nil
}
