package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bryanchriswhite/ShareFrame/internal/capture"
	"github.com/bryanchriswhite/ShareFrame/internal/frame"
	"github.com/bryanchriswhite/ShareFrame/internal/mailbox"
	"github.com/bryanchriswhite/ShareFrame/internal/region"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedSource returns the scripted errors first, then frames forever.
type scriptedSource struct {
	errs []error
	next *capture.SyntheticSource
}

func (s *scriptedSource) Name() string                    { return "scripted" }
func (s *scriptedSource) Start(ctx context.Context) error { return nil }
func (s *scriptedSource) Monitor() capture.Monitor        { return s.next.Monitor() }
func (s *scriptedSource) Stop() error                     { return nil }

func (s *scriptedSource) Next(ctx context.Context) (*frame.Raw, error) {
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return nil, err
	}
	return s.next.Next(ctx)
}

func recvWithin(t *testing.T, mb *mailbox.Mailbox[*frame.Cropped]) (*frame.Cropped, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return mb.Recv(ctx)
}

func TestProducerDeliversCroppedFrames(t *testing.T) {
	src := capture.NewSyntheticSource(16, 16, capture.WithCell(4), capture.Static())
	tracker := region.NewTracker(region.Geometry{
		Position: region.Point{X: 2, Y: 3},
		Size:     region.Size{Width: 5, Height: 4},
	}, region.Point{})
	out := mailbox.New[*frame.Cropped]()

	p := NewProducer(src, tracker.Follower(), frame.Cropper{Workers: 2}, out, Config{MaxFPS: 200})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	got, err := recvWithin(t, out)
	require.NoError(t, err)

	ref, _ := capture.NewSyntheticSource(16, 16, capture.WithCell(4), capture.Static()).Next(context.Background())
	assert.Equal(t, frame.Crop(ref, frame.Region{X: 2, Y: 3, Width: 5, Height: 4}).Pix, got.Pix)
	assert.NotZero(t, got.Seq)

	tracker.OnResize(8, 2)
	require.Eventually(t, func() bool {
		f, err := recvWithin(t, out)
		return err == nil && f.Width == 8 && f.Height == 2
	}, 2*time.Second, time.Millisecond, "crop follows the new window size")

	cancel()
	require.NoError(t, <-done)

	_, err = out.Recv(context.Background())
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.True(t, out.Closed())
	assert.NotZero(t, p.Stats().Captured)
}

func TestProducerSequenceIncreases(t *testing.T) {
	src := capture.NewSyntheticSource(4, 4, capture.Static())
	tracker := region.NewTracker(region.Geometry{Size: region.Size{Width: 2, Height: 2}}, region.Point{})
	out := mailbox.New[*frame.Cropped]()
	p := NewProducer(src, tracker.Follower(), frame.Cropper{}, out, Config{MaxFPS: 500})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	a, err := recvWithin(t, out)
	require.NoError(t, err)
	b, err := recvWithin(t, out)
	require.NoError(t, err)
	assert.Greater(t, b.Seq, a.Seq, "identical frames still get distinct sequence numbers")
}

func TestProducerRetriesPendingAndStopsOnFatal(t *testing.T) {
	boom := errors.New("display disconnected")
	src := &scriptedSource{
		errs: []error{capture.ErrPending, capture.ErrPending, boom},
		next: capture.NewSyntheticSource(2, 2),
	}
	tracker := region.NewTracker(region.Geometry{Size: region.Size{Width: 1, Height: 1}}, region.Point{})
	out := mailbox.New[*frame.Cropped]()
	p := NewProducer(src, tracker.Follower(), frame.Cropper{}, out, Config{PollInterval: time.Millisecond})

	err := p.Run(context.Background())
	require.ErrorIs(t, err, boom)

	_, recvErr := out.Recv(context.Background())
	assert.ErrorIs(t, recvErr, boom, "the render side sees the capture failure")

	stats := p.Stats()
	assert.Equal(t, uint64(2), stats.Pending)
	assert.Zero(t, stats.Captured)
}

func TestSleepHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, sleep(ctx, time.Hour))
	assert.True(t, sleep(context.Background(), time.Microsecond))
	assert.True(t, IsStopped(context.Canceled))
	assert.False(t, IsStopped(errors.New("x")))
}
