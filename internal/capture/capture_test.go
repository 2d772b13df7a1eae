package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"testing"
	"time"

	"github.com/bryanchriswhite/ShareFrame/internal/config"
	"github.com/bryanchriswhite/ShareFrame/internal/frame"
	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsPending(t *testing.T) {
	assert.True(t, IsPending(ErrPending))
	assert.True(t, IsPending(pending("display %d busy", 1)))
	assert.True(t, IsPending(fmt.Errorf("wrapped: %w", ErrPending)))
	assert.False(t, IsPending(errors.New("device lost")))
	assert.False(t, IsPending(nil))
}

func fakeScreenshot(fail *int) *ScreenshotSource {
	s := NewScreenshotSource(0)
	s.displays = func() int { return 1 }
	s.bounds = func(int) image.Rectangle { return image.Rect(100, 50, 104, 52) }
	s.capture = func(r image.Rectangle) (*image.RGBA, error) {
		if *fail > 0 {
			*fail--
			return nil, errors.New("grab failed")
		}
		return image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy())), nil
	}
	return s
}

func TestScreenshotSourceMonitorAndFrames(t *testing.T) {
	fail := 0
	s := fakeScreenshot(&fail)
	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, Monitor{X: 100, Y: 50, Width: 4, Height: 2}, s.Monitor())

	f, err := s.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, f.Width)
	assert.Equal(t, 2, f.Height)
	assert.Equal(t, frame.LayoutRGBA, f.Layout)
	assert.Equal(t, uint64(1), f.Seq)
}

func TestScreenshotSourceErrorBudget(t *testing.T) {
	fail := DefaultErrorBudget
	s := fakeScreenshot(&fail)
	require.NoError(t, s.Start(context.Background()))

	for i := 0; i < DefaultErrorBudget; i++ {
		_, err := s.Next(context.Background())
		require.True(t, IsPending(err), "failure %d should be transient", i+1)
	}

	// budget not exceeded: a success resets the counter
	_, err := s.Next(context.Background())
	require.NoError(t, err)

	fail = DefaultErrorBudget + 1
	var last error
	for i := 0; i <= DefaultErrorBudget; i++ {
		_, last = s.Next(context.Background())
	}
	require.Error(t, last)
	assert.False(t, IsPending(last), "exceeding the budget is fatal")
}

func TestScreenshotSourceDisplayOutOfRange(t *testing.T) {
	fail := 0
	s := fakeScreenshot(&fail)
	s.displayIndex = 3
	assert.Error(t, s.Start(context.Background()))
}

func TestSyntheticSourceLayouts(t *testing.T) {
	ctx := context.Background()
	rgba, err := NewSyntheticSource(8, 8, WithCell(2), Static()).Next(ctx)
	require.NoError(t, err)
	bgrx, err := NewSyntheticSource(8, 8, WithCell(2), Static(), WithLayout(frame.LayoutBGRX)).Next(ctx)
	require.NoError(t, err)

	region := frame.Region{X: 0, Y: 0, Width: 8, Height: 8}
	assert.Equal(t, frame.Crop(rgba, region).Pix, frame.Crop(bgrx, region).Pix,
		"both layouts normalize to the same RGBA")

	r, g, b := Checker(2, 2, 2)
	i := (2*8 + 2) * frame.BytesPerPixel
	assert.Equal(t, []byte{r, g, b, 0xff}, rgba.Pix[i:i+4])
}

func TestSyntheticSourceScrolls(t *testing.T) {
	s := NewSyntheticSource(4, 1, WithCell(1))
	a, _ := s.Next(context.Background())
	b, _ := s.Next(context.Background())
	assert.NotEqual(t, a.Pix, b.Pix)
	assert.Equal(t, a.Seq+1, b.Seq)
	assert.Equal(t, Monitor{Width: 4, Height: 1}, s.Monitor())
}

type fakeDriver struct {
	frames  int
	err     error
	openErr error
	closed  int
}

func (d *fakeDriver) Name() string { return "fake" }

func (d *fakeDriver) Open(ctx context.Context) (Monitor, error) {
	return Monitor{Width: 2, Height: 2}, d.openErr
}

func (d *fakeDriver) Run(ctx context.Context, emit func(*frame.Raw)) error {
	for i := 0; i < d.frames; i++ {
		emit(&frame.Raw{Pix: make([]byte, 16), Width: 2, Height: 2})
	}
	if d.err != nil {
		return d.err
	}
	<-ctx.Done()
	return ctx.Err()
}

func (d *fakeDriver) Close() error {
	d.closed++
	return nil
}

func TestPushSourceDeliversLatestFrame(t *testing.T) {
	d := &fakeDriver{frames: 3}
	src := NewPushSource(d)
	require.NoError(t, src.Start(context.Background()))
	defer src.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	f, err := src.Next(ctx)
	require.NoError(t, err)
	assert.NotZero(t, f.Seq)
	assert.Equal(t, Monitor{Width: 2, Height: 2}, src.Monitor())
	assert.Equal(t, "fake", src.Name())
}

func TestPushSourceDriverErrorIsFatal(t *testing.T) {
	boom := errors.New("pipewire node vanished")
	src := NewPushSource(&fakeDriver{frames: 1, err: boom})
	require.NoError(t, src.Start(context.Background()))
	defer src.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// the frame emitted before the failure is still delivered
	_, err := src.Next(ctx)
	require.NoError(t, err)

	_, err = src.Next(ctx)
	require.ErrorIs(t, err, boom)
	assert.False(t, IsPending(err))
}

func TestPushSourceStopClosesDriver(t *testing.T) {
	d := &fakeDriver{}
	src := NewPushSource(d)
	require.NoError(t, src.Start(context.Background()))
	require.NoError(t, src.Stop())
	require.NoError(t, src.Stop())
	assert.Equal(t, 1, d.closed)

	_, err := src.Next(context.Background())
	assert.ErrorIs(t, err, ErrStreamEnded)
}

func TestPushSourceOpenError(t *testing.T) {
	src := NewPushSource(&fakeDriver{openErr: errors.New("denied")})
	assert.Error(t, src.Start(context.Background()))

	_, err := src.Next(context.Background())
	assert.Error(t, err)
}

func TestReadFrames(t *testing.T) {
	data := bytes.Repeat([]byte{1, 2, 3, 4}, 2*2*2)
	data = append(data, 9, 9) // trailing partial frame

	var got []*frame.Raw
	err := readFrames(context.Background(), bytes.NewReader(data), 2, 2, func(f *frame.Raw) {
		got = append(got, f)
	})

	require.ErrorIs(t, err, ErrStreamEnded)
	require.Len(t, got, 2)
	assert.Equal(t, frame.LayoutBGRX, got[0].Layout)
	assert.Len(t, got[1].Pix, 16)
	assert.NotSame(t, &got[0].Pix[0], &got[1].Pix[0], "each frame owns its buffer")
}

func TestReadFramesCleanEOF(t *testing.T) {
	err := readFrames(context.Background(), bytes.NewReader(nil), 1, 1, func(*frame.Raw) {})
	assert.Equal(t, ErrStreamEnded, err)
}

func TestParseCapsDimensions(t *testing.T) {
	out := "Setting pipeline to PAUSED ...\n" +
		"/GstPipeline:pipeline0/GstPipeWireSrc:pipewiresrc0.GstPad:src: caps = video/x-raw, format=(string)BGRx, width=(int)2560, height=(int)1440\n"
	w, h := parseCapsDimensions(out)
	assert.Equal(t, 2560, w)
	assert.Equal(t, 1440, h)

	w, h = parseCapsDimensions("nothing useful")
	assert.Zero(t, w)
	assert.Zero(t, h)

	assert.Equal(t, 30, extractIntFromCaps("framerate=30/1", "framerate"))
}

func TestParseXdpyinfoDimensions(t *testing.T) {
	out := "screen #0:\n  dimensions:    4000x2560 pixels (1058x677 millimeters)\n"
	w, h := parseXdpyinfoDimensions(out)
	assert.Equal(t, 4000, w)
	assert.Equal(t, 2560, h)
}

func TestParseStreams(t *testing.T) {
	props := map[string]dbus.Variant{
		"position": dbus.MakeVariant([]interface{}{int32(1920), int32(0)}),
		"size":     dbus.MakeVariant([]interface{}{int32(2560), int32(1440)}),
	}
	s, err := parseStreams([][]interface{}{{uint32(42), props}})
	require.NoError(t, err)
	assert.Equal(t, Stream{NodeID: 42, X: 1920, Y: 0, Width: 2560, Height: 1440}, s)

	s, err = parseStreams([]interface{}{[]interface{}{uint32(7)}})
	require.NoError(t, err)
	assert.Equal(t, uint32(7), s.NodeID)

	_, err = parseStreams([][]interface{}{})
	assert.Error(t, err)
	_, err = parseStreams("bogus")
	assert.Error(t, err)
}

func TestParseResponse(t *testing.T) {
	results, err := parseResponse("Start", []interface{}{uint32(0), map[string]dbus.Variant{
		"session_handle": dbus.MakeVariant("/org/freedesktop/portal/desktop/session/1_2/x"),
	}})
	require.NoError(t, err)
	h, err := sessionHandle(results)
	require.NoError(t, err)
	assert.Equal(t, dbus.ObjectPath("/org/freedesktop/portal/desktop/session/1_2/x"), h)

	_, err = parseResponse("SelectSources", []interface{}{uint32(1)})
	assert.ErrorContains(t, err, "denied")
}

func TestRestoreTokenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "portal_token")
	assert.Empty(t, loadRestoreToken(path))
	require.NoError(t, saveRestoreToken(path, "abc-123"))
	assert.Equal(t, "abc-123", loadRestoreToken(path))
}

func TestNewSelectsBackend(t *testing.T) {
	src, err := New(config.CaptureConfig{Backend: config.BackendSynthetic})
	require.NoError(t, err)
	assert.Equal(t, "synthetic", src.Name())

	_, err = New(config.CaptureConfig{Backend: "bogus"})
	assert.Error(t, err)

	names := make([]string, 0)
	for _, b := range Backends() {
		names = append(names, b.Name)
		if b.Name == config.BackendSynthetic {
			assert.True(t, b.Available)
		}
	}
	assert.ElementsMatch(t, []string{"x11", "screenshot", "ximagesrc", "pipewire", "synthetic"}, names)
}
