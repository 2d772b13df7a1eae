// Package app runs the overlay: the capture goroutine feeding cropped
// frames, and the render loop that dispatches window events, handles mode
// toggles and presents.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/bryanchriswhite/ShareFrame/internal/capture"
	"github.com/bryanchriswhite/ShareFrame/internal/compositor"
	"github.com/bryanchriswhite/ShareFrame/internal/config"
	"github.com/bryanchriswhite/ShareFrame/internal/frame"
	"github.com/bryanchriswhite/ShareFrame/internal/logger"
	"github.com/bryanchriswhite/ShareFrame/internal/mailbox"
	"github.com/bryanchriswhite/ShareFrame/internal/mode"
	"github.com/bryanchriswhite/ShareFrame/internal/pipeline"
	"github.com/bryanchriswhite/ShareFrame/internal/region"
	"github.com/sourcegraph/conc"
)

// Options are the collaborators of an App
type Options struct {
	Config  *config.Config
	Source  capture.Source
	Window  Window
	Surface compositor.Surface

	// Mirrors receive every present as well (e.g. the MJPEG preview);
	// their failures are ignored.
	Mirrors  []compositor.Surface
	Triggers []Trigger

	// ModeOptions are applied after the config-derived ones.
	ModeOptions []mode.Option
}

// App owns one overlay session
type App struct {
	opts   Options
	remote *ChanTrigger
	status atomic.Pointer[Status]
}

// New validates opts and returns an App ready to Run
func New(opts Options) (*App, error) {
	switch {
	case opts.Config == nil:
		return nil, errors.New("app: config is required")
	case opts.Source == nil:
		return nil, errors.New("app: capture source is required")
	case opts.Window == nil:
		return nil, errors.New("app: window is required")
	case opts.Surface == nil:
		return nil, errors.New("app: surface is required")
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	return &App{opts: opts, remote: NewChanTrigger()}, nil
}

// RequestToggle asks the render loop to toggle the mode on its next tick.
// The request still goes through the debounce.
func (a *App) RequestToggle() bool {
	return a.remote.Fire()
}

// Status returns the latest published snapshot
func (a *App) Status() *Status {
	if s := a.status.Load(); s != nil {
		return s
	}
	return &Status{Mode: a.opts.Config.StartMode().String()}
}

// Run starts capture and renders until ctx ends, the window closes or a
// fatal error occurs. Capture failures surface as
// compositor.ErrCaptureStopped.
func (a *App) Run(ctx context.Context) error {
	cfg := a.opts.Config
	log := logger.WithComponent("app")

	source := a.opts.Source
	if err := source.Start(ctx); err != nil {
		return fmt.Errorf("start capture %s: %w", source.Name(), err)
	}
	defer func() {
		if err := source.Stop(); err != nil {
			log.Warn().Err(err).Msg("Failed to stop capture")
		}
	}()

	mon := source.Monitor()
	tracker := region.NewTracker(a.opts.Window.Geometry(), mon.Origin())
	frames := mailbox.New[*frame.Cropped]()

	comp := compositor.New(
		compositor.Tee(a.opts.Surface, a.opts.Mirrors...),
		frames,
		tracker.Geometry().Size,
		compositor.Config{
			PrivacyGray: byte(cfg.Render.PrivacyGray),
			MaxFailures: cfg.Render.MaxPresentFailures,
		},
	)
	if err := comp.Resize(tracker.Geometry().Size); err != nil {
		return err
	}

	modeOpts := append([]mode.Option{
		mode.WithDebounce(cfg.Mode.Debounce),
		mode.WithInitial(cfg.StartMode()),
	}, a.opts.ModeOptions...)
	controller := mode.NewController(a.opts.Window, modeOpts...)
	if err := controller.Apply(); err != nil {
		log.Warn().Err(err).Msg("Failed to apply initial window attributes")
	}

	producer := pipeline.NewProducer(
		source,
		tracker.Follower(),
		frame.Cropper{Workers: cfg.Capture.Workers},
		frames,
		pipeline.Config{PollInterval: cfg.Capture.PollInterval, MaxFPS: cfg.Capture.MaxFPS},
	)

	triggers := append(append([]Trigger(nil), a.opts.Triggers...), a.remote)
	state := NewState(a.opts.Window, tracker, controller, comp, triggers...)
	state.status = &a.status
	state.stats = producer.Stats
	state.source = source.Name()
	state.monitor = mon
	state.publish(true)

	captureCtx, stopCapture := context.WithCancel(ctx)
	var wg conc.WaitGroup
	// the producer's error reaches the render loop through frames
	wg.Go(func() { _ = producer.Run(captureCtx) })
	defer func() {
		stopCapture()
		wg.Wait()
		state.publish(false)
	}()

	log.Info().
		Str("source", source.Name()).
		Str("monitor", mon.String()).
		Str("mode", controller.Mode().String()).
		Int("fps", cfg.Render.FPS).
		Msg("Overlay running")

	ticker := time.NewTicker(time.Second / time.Duration(cfg.Render.FPS))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Shutting down")
			return nil
		case <-ticker.C:
			closed, err := state.Tick()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			if closed {
				log.Info().Msg("Window closed")
				return nil
			}
		}
	}
}
