// Package pipeline runs the capture side: pull frames from a source, crop
// them to the overlay region and hand them to the render side.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/bryanchriswhite/ShareFrame/internal/capture"
	"github.com/bryanchriswhite/ShareFrame/internal/frame"
	"github.com/bryanchriswhite/ShareFrame/internal/logger"
	"github.com/bryanchriswhite/ShareFrame/internal/mailbox"
	"github.com/bryanchriswhite/ShareFrame/internal/region"
)

// DefaultPollInterval is the retry delay after a pending capture.
const DefaultPollInterval = 5 * time.Millisecond

// Config holds producer options
type Config struct {
	PollInterval time.Duration
	MaxFPS       int // 0 = unpaced
}

// Stats counts producer activity. Delivered and Dropped come from the
// delivery mailbox.
type Stats struct {
	Captured  uint64 `json:"captured"`
	Pending   uint64 `json:"pending"`
	Delivered uint64 `json:"delivered"`
	Dropped   uint64 `json:"dropped"`
}

// Producer is the capture goroutine's loop.
type Producer struct {
	source   capture.Source
	follower *region.Follower
	cropper  frame.Cropper
	out      *mailbox.Mailbox[*frame.Cropped]
	cfg      Config

	seq      uint64
	captured atomic.Uint64
	pending  atomic.Uint64
}

// NewProducer returns a producer that crops frames from source with the
// region follower tracks and delivers them to out. The source must
// already be started.
func NewProducer(source capture.Source, follower *region.Follower, cropper frame.Cropper, out *mailbox.Mailbox[*frame.Cropped], cfg Config) *Producer {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &Producer{
		source:   source,
		follower: follower,
		cropper:  cropper,
		out:      out,
		cfg:      cfg,
	}
}

// Run captures until ctx ends or the source fails. Either way the delivery
// mailbox is closed with the reason so the render side sees it on its next
// receive. Run returns nil when ctx ended and the source error otherwise.
func (p *Producer) Run(ctx context.Context) error {
	log := logger.WithComponent("pipeline")
	log.Info().
		Str("source", p.source.Name()).
		Int("max_fps", p.cfg.MaxFPS).
		Int("workers", p.cropper.Workers).
		Msg("Capture loop started")

	var interval time.Duration
	if p.cfg.MaxFPS > 0 {
		interval = time.Second / time.Duration(p.cfg.MaxFPS)
	}

	for {
		started := time.Now()

		raw, err := p.source.Next(ctx)
		switch {
		case ctx.Err() != nil:
			p.out.Close(ctx.Err())
			log.Info().Msg("Capture loop stopped")
			return nil
		case capture.IsPending(err):
			p.pending.Add(1)
			sleep(ctx, p.cfg.PollInterval)
			continue
		case err != nil:
			err = fmt.Errorf("capture from %s: %w", p.source.Name(), err)
			log.Error().Err(err).Msg("Capture failed")
			p.out.Close(err)
			return err
		case raw == nil:
			p.pending.Add(1)
			sleep(ctx, p.cfg.PollInterval)
			continue
		}

		p.captured.Add(1)
		p.seq++

		// the region is read per frame so the crop always uses the
		// newest geometry
		out := p.cropper.Crop(raw, p.follower.Current())
		out.Seq = p.seq
		p.out.Send(out)

		if interval > 0 {
			sleep(ctx, interval-time.Since(started))
		}
	}
}

// Stats returns a snapshot of the counters; safe from any goroutine.
func (p *Producer) Stats() Stats {
	sent, dropped := p.out.Stats()
	return Stats{
		Captured:  p.captured.Load(),
		Pending:   p.pending.Load(),
		Delivered: sent,
		Dropped:   dropped,
	}
}

// sleep waits for d or until ctx ends, reporting whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// IsStopped reports whether err is the normal end of a capture loop.
func IsStopped(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
