package config

import (
	"fmt"
	"time"

	"github.com/bryanchriswhite/ShareFrame/internal/frame"
	"github.com/bryanchriswhite/ShareFrame/internal/mode"
)

// Capture backend names
const (
	BackendAuto       = "auto"
	BackendX11        = "x11"
	BackendScreenshot = "screenshot"
	BackendXImageSrc  = "ximagesrc"
	BackendPipeWire   = "pipewire"
	BackendSynthetic  = "synthetic"
)

// Backends lists every accepted capture.backend value.
var Backends = []string{
	BackendAuto,
	BackendX11,
	BackendScreenshot,
	BackendXImageSrc,
	BackendPipeWire,
	BackendSynthetic,
}

// Config represents the application configuration
type Config struct {
	LogLevel  string        `json:"log_level" mapstructure:"log_level"`
	LogPretty bool          `json:"log_pretty" mapstructure:"log_pretty"`
	Capture   CaptureConfig `json:"capture" mapstructure:"capture"`
	Window    WindowConfig  `json:"window" mapstructure:"window"`
	Render    RenderConfig  `json:"render" mapstructure:"render"`
	Mode      ModeConfig    `json:"mode" mapstructure:"mode"`
	Server    ServerConfig  `json:"server" mapstructure:"server"`
}

// CaptureConfig selects and tunes the frame source
type CaptureConfig struct {
	Backend      string        `json:"backend" mapstructure:"backend"`
	Monitor      int           `json:"monitor" mapstructure:"monitor"`
	MaxFPS       int           `json:"max_fps" mapstructure:"max_fps"`             // 0 = as fast as the source delivers
	Workers      int           `json:"workers" mapstructure:"workers"`             // crop row bands; 0/1 = sequential
	PollInterval time.Duration `json:"poll_interval" mapstructure:"poll_interval"` // retry delay when no frame is ready
}

// WindowConfig describes the overlay window at startup
type WindowConfig struct {
	Title  string `json:"title" mapstructure:"title"`
	Width  int    `json:"width" mapstructure:"width"`
	Height int    `json:"height" mapstructure:"height"`
	X      int    `json:"x" mapstructure:"x"`
	Y      int    `json:"y" mapstructure:"y"`
}

// RenderConfig controls the render loop
type RenderConfig struct {
	FPS                int `json:"fps" mapstructure:"fps"`
	PrivacyGray        int `json:"privacy_gray" mapstructure:"privacy_gray"`
	MaxPresentFailures int `json:"max_present_failures" mapstructure:"max_present_failures"`
}

// ModeConfig controls the Alignment/Share toggle
type ModeConfig struct {
	Start    string        `json:"start" mapstructure:"start"`
	Debounce time.Duration `json:"debounce" mapstructure:"debounce"`
	Hotkey   string        `json:"hotkey" mapstructure:"hotkey"` // empty disables the global hotkey
}

// ServerConfig controls the optional control/preview HTTP server
type ServerConfig struct {
	Enabled         bool          `json:"enabled" mapstructure:"enabled"`
	Bind            string        `json:"bind" mapstructure:"bind"`
	Port            int           `json:"port" mapstructure:"port"`
	PreviewMaxWidth int           `json:"preview_max_width" mapstructure:"preview_max_width"`
	JPEGQuality     int           `json:"jpeg_quality" mapstructure:"jpeg_quality"`
	StatusInterval  time.Duration `json:"status_interval" mapstructure:"status_interval"`
}

// defaults maps every key to its default; durations are strings so a
// written config file stays readable.
func defaults() map[string]interface{} {
	return map[string]interface{}{
		"log_level":  "info",
		"log_pretty": false,

		"capture.backend":       BackendAuto,
		"capture.monitor":       0,
		"capture.max_fps":       60,
		"capture.workers":       4,
		"capture.poll_interval": "5ms",

		"window.title":  "ShareFrame",
		"window.width":  800,
		"window.height": 600,
		"window.x":      0,
		"window.y":      0,

		"render.fps":                  30,
		"render.privacy_gray":         128,
		"render.max_present_failures": 5,

		"mode.start":    "alignment",
		"mode.debounce": "300ms",
		"mode.hotkey":   "ctrl+shift+s",

		"server.enabled":           false,
		"server.bind":              "127.0.0.1",
		"server.port":              8090,
		"server.preview_max_width": 960,
		"server.jpeg_quality":      80,
		"server.status_interval":   "500ms",
	}
}

// Validate rejects configurations the pipeline cannot run with
func (c *Config) Validate() error {
	if !isBackend(c.Capture.Backend) {
		return fmt.Errorf("capture.backend %q is not one of %v", c.Capture.Backend, Backends)
	}
	if c.Capture.Monitor < 0 {
		return fmt.Errorf("capture.monitor must be >= 0, got %d", c.Capture.Monitor)
	}
	if c.Capture.MaxFPS < 0 {
		return fmt.Errorf("capture.max_fps must be >= 0, got %d", c.Capture.MaxFPS)
	}
	if c.Capture.Workers < 0 {
		return fmt.Errorf("capture.workers must be >= 0, got %d", c.Capture.Workers)
	}
	if c.Capture.PollInterval <= 0 {
		return fmt.Errorf("capture.poll_interval must be positive, got %s", c.Capture.PollInterval)
	}
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		return fmt.Errorf("window size must be positive, got %dx%d", c.Window.Width, c.Window.Height)
	}
	if c.Window.Width > frame.MaxDimension || c.Window.Height > frame.MaxDimension {
		return fmt.Errorf("window size %dx%d too large", c.Window.Width, c.Window.Height)
	}
	if c.Render.FPS < 1 || c.Render.FPS > 240 {
		return fmt.Errorf("render.fps must be within 1..240, got %d", c.Render.FPS)
	}
	if c.Render.PrivacyGray < 0 || c.Render.PrivacyGray > 255 {
		return fmt.Errorf("render.privacy_gray must be within 0..255, got %d", c.Render.PrivacyGray)
	}
	if c.Render.MaxPresentFailures < 1 {
		return fmt.Errorf("render.max_present_failures must be >= 1, got %d", c.Render.MaxPresentFailures)
	}
	if _, err := mode.Parse(c.Mode.Start); err != nil {
		return fmt.Errorf("mode.start: %w", err)
	}
	if c.Mode.Debounce < 0 {
		return fmt.Errorf("mode.debounce must be >= 0, got %s", c.Mode.Debounce)
	}
	if c.Server.Enabled {
		if c.Server.Port < 1 || c.Server.Port > 65535 {
			return fmt.Errorf("server.port must be within 1..65535, got %d", c.Server.Port)
		}
		if c.Server.JPEGQuality < 1 || c.Server.JPEGQuality > 100 {
			return fmt.Errorf("server.jpeg_quality must be within 1..100, got %d", c.Server.JPEGQuality)
		}
		if c.Server.StatusInterval <= 0 {
			return fmt.Errorf("server.status_interval must be positive, got %s", c.Server.StatusInterval)
		}
	}
	return nil
}

// StartMode returns the parsed mode.start value
func (c *Config) StartMode() mode.Mode {
	m, _ := mode.Parse(c.Mode.Start)
	return m
}

func isBackend(name string) bool {
	for _, b := range Backends {
		if b == name {
			return true
		}
	}
	return false
}
