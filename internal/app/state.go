package app

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/bryanchriswhite/ShareFrame/internal/capture"
	"github.com/bryanchriswhite/ShareFrame/internal/compositor"
	"github.com/bryanchriswhite/ShareFrame/internal/frame"
	"github.com/bryanchriswhite/ShareFrame/internal/logger"
	"github.com/bryanchriswhite/ShareFrame/internal/mode"
	"github.com/bryanchriswhite/ShareFrame/internal/pipeline"
	"github.com/bryanchriswhite/ShareFrame/internal/region"
)

// Status is a read-only snapshot of the overlay, published once per tick.
type Status struct {
	Mode        string          `json:"mode"`
	Transitions uint64          `json:"transitions"`
	Geometry    region.Geometry `json:"geometry"`
	Region      frame.Region    `json:"region"`
	Source      string          `json:"source"`
	Monitor     capture.Monitor `json:"monitor"`
	Pipeline    pipeline.Stats  `json:"pipeline"`
	Presented   uint64          `json:"presented"`
	Running     bool            `json:"running"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// State is everything the render goroutine owns. It is not safe for use
// from other goroutines; they observe it through published Status values.
type State struct {
	window     Window
	tracker    *region.Tracker
	controller *mode.Controller
	compositor *compositor.Compositor
	triggers   []Trigger

	// optional observers
	status  *atomic.Pointer[Status]
	stats   func() pipeline.Stats
	source  string
	monitor capture.Monitor
}

// NewState wires the render-side components together.
func NewState(window Window, tracker *region.Tracker, controller *mode.Controller, comp *compositor.Compositor, triggers ...Trigger) *State {
	return &State{
		window:     window,
		tracker:    tracker,
		controller: controller,
		compositor: comp,
		triggers:   triggers,
	}
}

// Tick runs one render iteration: drain and dispatch window events, poll
// the toggle triggers, then present. It reports closed when the window
// asked to close. A non-nil error ends the render loop.
func (s *State) Tick() (closed bool, err error) {
	events, err := s.window.PollEvents()
	if err != nil {
		return false, fmt.Errorf("poll window events: %w", err)
	}

	for _, ev := range events {
		switch ev.Kind {
		case EventResized:
			if s.tracker.OnResize(ev.Width, ev.Height) {
				if err := s.compositor.Resize(s.tracker.Geometry().Size); err != nil {
					return false, err
				}
			}
		case EventMoved:
			s.tracker.OnMove(ev.X, ev.Y)
		case EventFocus:
			s.tracker.OnFocus(ev.Focused)
		case EventExposed:
			s.compositor.Invalidate()
		case EventToggle:
			s.toggle("hotkey")
		case EventClose:
			return true, nil
		}
	}

	for _, t := range s.triggers {
		if t.Poll() {
			s.toggle("trigger")
		}
	}

	if err := s.compositor.Tick(s.tracker.Focused()); err != nil {
		return false, err
	}

	s.publish(true)
	return false, nil
}

func (s *State) toggle(origin string) {
	log := logger.WithComponent("mode")

	changed, err := s.controller.Toggle()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to apply window attributes")
	}
	if !changed {
		log.Debug().Str("origin", origin).Msg("Toggle ignored (debounce)")
		return
	}
	log.Info().
		Str("origin", origin).
		Str("mode", s.controller.Mode().String()).
		Msg("Mode changed")
	s.compositor.Invalidate()
}

// Snapshot builds the current Status
func (s *State) Snapshot(running bool) *Status {
	st := &Status{
		Mode:        s.controller.Mode().String(),
		Transitions: s.controller.Transitions(),
		Geometry:    s.tracker.Geometry(),
		Region:      s.tracker.Region(),
		Source:      s.source,
		Monitor:     s.monitor,
		Presented:   s.compositor.Presented(),
		Running:     running,
		UpdatedAt:   time.Now(),
	}
	if s.stats != nil {
		st.Pipeline = s.stats()
	}
	return st
}

func (s *State) publish(running bool) {
	if s.status != nil {
		s.status.Store(s.Snapshot(running))
	}
}
