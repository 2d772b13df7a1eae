package capture

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/ShareFrame/internal/frame"
	"github.com/bryanchriswhite/ShareFrame/internal/logger"
)

const gstLaunch = "gst-launch-1.0"

// probeTimeout bounds the one-buffer pipeline used to discover the stream
// size; PipeWire can take several seconds to negotiate.
const probeTimeout = 10 * time.Second

// GstDriver runs a gst-launch-1.0 subprocess and reads raw BGRx frames
// from its stdout. Running GStreamer out of process keeps cgo and the
// GStreamer main loop out of this binary.
type GstDriver struct {
	name string

	// source opens the upstream element and reports the captured area;
	// a zero size is resolved by probing the stream.
	source  func(ctx context.Context) (string, Monitor, error)
	onClose func() error

	element string
	monitor Monitor
	mu      sync.Mutex
}

// NewXImageSrcDriver captures an X11 monitor through GStreamer's ximagesrc.
func NewXImageSrcDriver(monitorIndex int) *GstDriver {
	return &GstDriver{
		name: "ximagesrc",
		source: func(ctx context.Context) (string, Monitor, error) {
			conn, err := xgb.NewConn()
			if err != nil {
				return "", Monitor{}, fmt.Errorf("failed to connect to X server: %w", err)
			}
			defer conn.Close()

			mon, err := x11Monitor(conn, xproto.Setup(conn).DefaultScreen(conn), monitorIndex)
			if err != nil {
				return "", Monitor{}, err
			}
			element := fmt.Sprintf(
				"ximagesrc startx=%d starty=%d endx=%d endy=%d use-damage=false show-pointer=true",
				mon.X, mon.Y, mon.X+mon.Width-1, mon.Y+mon.Height-1,
			)
			return element, mon, nil
		},
	}
}

// NewPipeWireDriver negotiates a ScreenCast session with the desktop
// portal and captures the granted PipeWire node.
func NewPipeWireDriver(tokenPath string) *GstDriver {
	d := &GstDriver{name: "pipewire"}
	d.source = func(ctx context.Context) (string, Monitor, error) {
		portal, err := NewPortal(tokenPath)
		if err != nil {
			return "", Monitor{}, fmt.Errorf("failed to create portal: %w", err)
		}
		stream, err := portal.StartScreenShare(ctx)
		if err != nil {
			portal.Close()
			return "", Monitor{}, fmt.Errorf("failed to start screen share: %w", err)
		}
		d.onClose = portal.Close

		mon := Monitor{X: stream.X, Y: stream.Y, Width: stream.Width, Height: stream.Height}
		return fmt.Sprintf("pipewiresrc path=%d do-timestamp=true", stream.NodeID), mon, nil
	}
	return d
}

// Name returns the driver name
func (d *GstDriver) Name() string {
	return d.name
}

// Open resolves the source element and the frame size
func (d *GstDriver) Open(ctx context.Context) (Monitor, error) {
	if _, err := exec.LookPath(gstLaunch); err != nil {
		return Monitor{}, fmt.Errorf("%s not found: %w", gstLaunch, err)
	}

	log := logger.WithComponent("gstreamer")

	element, mon, err := d.source(ctx)
	if err != nil {
		return Monitor{}, err
	}

	if mon.Width <= 0 || mon.Height <= 0 {
		w, h, err := probeDimensions(ctx, element)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to probe video dimensions, using defaults")
			w, h = 1920, 1080
		}
		mon.Width, mon.Height = w, h
	}

	d.mu.Lock()
	d.element = element
	d.monitor = mon
	d.mu.Unlock()

	log.Info().
		Str("driver", d.name).
		Str("monitor", mon.String()).
		Msg("Video dimensions")
	return mon, nil
}

// pipelineArgs builds the gst-launch-1.0 arguments. The caps filter pins
// the output to the probed size so every read is exactly one frame.
func pipelineArgs(element string, width, height int) []string {
	args := []string{"-q"}
	args = append(args, strings.Fields(element)...)
	return append(args,
		"!", "videoconvert",
		"!", "videoscale",
		"!", fmt.Sprintf("video/x-raw,format=BGRx,width=%d,height=%d", width, height),
		"!", "fdsink", "fd=1", "sync=false",
	)
}

// Run starts the subprocess and streams frames until ctx ends or the
// process exits.
func (d *GstDriver) Run(ctx context.Context, emit func(*frame.Raw)) error {
	d.mu.Lock()
	element, mon := d.element, d.monitor
	d.mu.Unlock()

	log := logger.WithComponent("gstreamer")

	cmd := exec.CommandContext(ctx, gstLaunch, pipelineArgs(element, mon.Width, mon.Height)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to get stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", gstLaunch, err)
	}
	log.Info().Str("driver", d.name).Int("pid", cmd.Process.Pid).Msg("GStreamer subprocess started")

	go logStderr(stderr)

	readErr := readFrames(ctx, stdout, mon.Width, mon.Height, emit)
	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if waitErr != nil {
		return fmt.Errorf("%s exited: %w", gstLaunch, errors.Join(waitErr, readErr))
	}
	return readErr
}

// Close releases the upstream session, if any
func (d *GstDriver) Close() error {
	d.mu.Lock()
	onClose := d.onClose
	d.onClose = nil
	d.mu.Unlock()
	if onClose != nil {
		return onClose()
	}
	return nil
}

// readFrames reads fixed-size BGRx frames from r. Each frame gets its own
// buffer since the previous one may still be in use downstream.
func readFrames(ctx context.Context, r io.Reader, width, height int, emit func(*frame.Raw)) error {
	frameSize := width * height * frame.BytesPerPixel
	if frameSize <= 0 {
		return fmt.Errorf("invalid frame size %dx%d", width, height)
	}
	reader := bufio.NewReaderSize(r, frameSize)

	for ctx.Err() == nil {
		buf := make([]byte, frameSize)
		if n, err := io.ReadFull(reader, buf); err != nil {
			if errors.Is(err, io.EOF) {
				return ErrStreamEnded
			}
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return fmt.Errorf("%w after partial frame of %d bytes", ErrStreamEnded, n)
			}
			return fmt.Errorf("read frame: %w", err)
		}
		emit(&frame.Raw{
			Pix:        buf,
			Width:      width,
			Height:     height,
			Layout:     frame.LayoutBGRX,
			CapturedAt: time.Now(),
		})
	}
	return ctx.Err()
}

func logStderr(r io.Reader) {
	log := logger.WithComponent("gstreamer")
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, "ERROR") || strings.Contains(line, "WARN") {
			log.Warn().Str("gst", line).Msg("GStreamer message")
		} else {
			log.Debug().Str("gst", line).Msg("GStreamer output")
		}
	}
}

// probeDimensions runs a one-buffer pipeline and reads the negotiated caps
// from its verbose output, falling back to xdpyinfo.
func probeDimensions(ctx context.Context, element string) (int, int, error) {
	log := logger.WithComponent("gstreamer")

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	args := append([]string{"-v"}, strings.Fields(element)...)
	args = append(args, "num-buffers=1", "!", "fakesink")
	output, err := exec.CommandContext(ctx, gstLaunch, args...).CombinedOutput()
	if err != nil {
		// caps are often printed before the error
		log.Debug().Str("output", string(output)).Msg("Probe command output")
	}

	if w, h := parseCapsDimensions(string(output)); w > 0 && h > 0 {
		return w, h, nil
	}

	log.Debug().Msg("GStreamer probe failed, trying xdpyinfo fallback")
	if out, err := exec.CommandContext(ctx, "xdpyinfo").Output(); err == nil {
		if w, h := parseXdpyinfoDimensions(string(out)); w > 0 && h > 0 {
			return w, h, nil
		}
	}

	return 0, 0, errors.New("could not determine video dimensions")
}

// parseCapsDimensions finds the first video/x-raw caps line with a size,
// e.g. "caps = video/x-raw, format=(string)BGRx, width=(int)2560, height=(int)1440".
func parseCapsDimensions(output string) (int, int) {
	for _, line := range strings.Split(output, "\n") {
		if !strings.Contains(line, "video/x-raw") || !strings.Contains(line, "width=") {
			continue
		}
		w := extractIntFromCaps(line, "width")
		h := extractIntFromCaps(line, "height")
		if w > 0 && h > 0 {
			return w, h
		}
	}
	return 0, 0
}

// parseXdpyinfoDimensions reads "dimensions:    4000x2560 pixels (...)".
func parseXdpyinfoDimensions(output string) (int, int) {
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 || fields[0] != "dimensions:" {
			continue
		}
		w, h, ok := strings.Cut(fields[1], "x")
		if !ok {
			continue
		}
		width, err1 := strconv.Atoi(w)
		height, err2 := strconv.Atoi(h)
		if err1 == nil && err2 == nil {
			return width, height
		}
	}
	return 0, 0
}

// extractIntFromCaps extracts "key=(int)N" or "key=N" from a caps string.
func extractIntFromCaps(caps, key string) int {
	for _, pattern := range []string{key + "=(int)", key + "="} {
		idx := strings.Index(caps, pattern)
		if idx < 0 {
			continue
		}
		start := idx + len(pattern)
		end := start
		for end < len(caps) && caps[end] >= '0' && caps[end] <= '9' {
			end++
		}
		if end > start {
			if v, err := strconv.Atoi(caps[start:end]); err == nil {
				return v
			}
		}
	}
	return 0
}
