package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bryanchriswhite/ShareFrame/internal/frame"
	"github.com/bryanchriswhite/ShareFrame/internal/logger"
	"github.com/bryanchriswhite/ShareFrame/internal/mailbox"
)

// Driver is a capture backend that delivers frames on its own schedule.
type Driver interface {
	Name() string

	// Open prepares the stream and reports the captured area.
	Open(ctx context.Context) (Monitor, error)

	// Run delivers frames to emit until ctx ends or the stream fails.
	// emit never blocks. A nil return means the stream ended normally.
	Run(ctx context.Context, emit func(*frame.Raw)) error

	Close() error
}

// PushSource adapts a Driver to Source. The driver runs on its own
// goroutine and hands frames over through a latest-wins mailbox, so a
// slow consumer only ever sees the newest frame.
type PushSource struct {
	driver Driver

	frames  *mailbox.Mailbox[*frame.Raw]
	monitor Monitor
	cancel  context.CancelFunc
	done    chan struct{}
	mu      sync.Mutex
}

// NewPushSource wraps driver
func NewPushSource(driver Driver) *PushSource {
	return &PushSource{driver: driver}
}

// Name returns the driver name
func (p *PushSource) Name() string {
	return p.driver.Name()
}

// Start opens the driver and starts streaming
func (p *PushSource) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.done != nil {
		return fmt.Errorf("%s: already started", p.driver.Name())
	}

	mon, err := p.driver.Open(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", p.driver.Name(), err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.monitor = mon
	p.frames = mailbox.New[*frame.Raw]()
	p.cancel = cancel
	p.done = make(chan struct{})

	go p.run(runCtx, p.frames, p.done)
	return nil
}

func (p *PushSource) run(ctx context.Context, frames *mailbox.Mailbox[*frame.Raw], done chan struct{}) {
	defer close(done)

	var seq uint64
	err := p.driver.Run(ctx, func(f *frame.Raw) {
		seq++
		f.Seq = seq
		frames.Send(f)
	})
	switch {
	case err == nil:
		err = ErrStreamEnded
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		err = ErrStreamEnded
	}

	logger.WithComponent("capture").Debug().
		Err(err).
		Str("driver", p.driver.Name()).
		Msg("Push stream finished")
	frames.Close(fmt.Errorf("%s: %w", p.driver.Name(), err))
}

// Next waits for the next frame. It returns the driver's error once the
// stream has stopped.
func (p *PushSource) Next(ctx context.Context) (*frame.Raw, error) {
	p.mu.Lock()
	frames := p.frames
	p.mu.Unlock()

	if frames == nil {
		return nil, fmt.Errorf("%s: not started", p.driver.Name())
	}
	return frames.Recv(ctx)
}

// Monitor returns the area reported by the driver
func (p *PushSource) Monitor() Monitor {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.monitor
}

// Stats returns how many frames the driver delivered and how many were
// replaced before being consumed.
func (p *PushSource) Stats() (sent, dropped uint64) {
	p.mu.Lock()
	frames := p.frames
	p.mu.Unlock()
	if frames == nil {
		return 0, 0
	}
	return frames.Stats()
}

// Stop ends the stream and closes the driver
func (p *PushSource) Stop() error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel = nil
	p.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return p.driver.Close()
}
