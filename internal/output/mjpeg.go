// Package output streams the composited overlay contents to browsers as
// Motion JPEG.
package output

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/bryanchriswhite/ShareFrame/internal/logger"
	"github.com/bryanchriswhite/ShareFrame/internal/mailbox"
	"github.com/bryanchriswhite/ShareFrame/internal/overlay"
	xdraw "golang.org/x/image/draw"
)

const boundary = "frame"

// Config controls preview encoding
type Config struct {
	MaxWidth int // frames wider than this are scaled down; 0 keeps size
	Quality  int // JPEG quality, 1..100

	// Label, when set, is drawn as a badge on every preview frame.
	Label func() string
}

// Stats counts preview activity
type Stats struct {
	Presented uint64 `json:"presented"`
	Encoded   uint64 `json:"encoded"`
	Skipped   uint64 `json:"skipped"`
	Clients   int    `json:"clients"`
}

// MJPEGOutput is a compositor surface that mirrors presents to HTTP
// clients. Present only copies the frame into a mailbox; encoding happens
// on the Run goroutine, so a slow encoder or client never stalls the
// window.
type MJPEGOutput struct {
	cfg    Config
	frames *mailbox.Mailbox[*image.RGBA]

	clientsMu sync.RWMutex
	clients   map[chan []byte]struct{}
	stopped   bool

	latest    atomic.Pointer[[]byte]
	presented atomic.Uint64
	encoded   atomic.Uint64
	skipped   atomic.Uint64
}

// NewMJPEGOutput creates an idle output; call Run to start encoding.
func NewMJPEGOutput(cfg Config) *MJPEGOutput {
	if cfg.Quality <= 0 || cfg.Quality > 100 {
		cfg.Quality = jpeg.DefaultQuality
	}
	return &MJPEGOutput{
		cfg:     cfg,
		frames:  mailbox.New[*image.RGBA](),
		clients: make(map[chan []byte]struct{}),
	}
}

// Resize is a no-op; every present carries its own size.
func (m *MJPEGOutput) Resize(width, height int) error {
	return nil
}

// Present copies pix for the encoder and returns immediately
func (m *MJPEGOutput) Present(pix []byte, width, height int) error {
	if width <= 0 || height <= 0 {
		return nil
	}
	if len(pix) < width*height*4 {
		return fmt.Errorf("mjpeg: %d bytes for %dx%d", len(pix), width, height)
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	copy(img.Pix, pix)
	m.presented.Add(1)
	if !m.frames.Send(img) {
		return errors.New("mjpeg: output stopped")
	}
	return nil
}

// Run encodes and broadcasts frames until ctx is done
func (m *MJPEGOutput) Run(ctx context.Context) error {
	log := logger.WithComponent("mjpeg")
	log.Info().
		Int("max_width", m.cfg.MaxWidth).
		Int("quality", m.cfg.Quality).
		Msg("Preview encoder started")

	defer m.stop()
	for {
		img, err := m.frames.Recv(ctx)
		if err != nil {
			log.Info().Uint64("encoded", m.encoded.Load()).Msg("Preview encoder stopped")
			return nil
		}
		data, err := m.encode(img)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to encode preview frame")
			continue
		}
		m.latest.Store(&data)
		m.broadcast(data)
	}
}

func (m *MJPEGOutput) encode(img *image.RGBA) ([]byte, error) {
	img = scale(img, m.cfg.MaxWidth)
	if m.cfg.Label != nil {
		if text := m.cfg.Label(); text != "" {
			overlay.NewBadge(text).Render(img)
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: m.cfg.Quality}); err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}
	m.encoded.Add(1)
	return buf.Bytes(), nil
}

// scale shrinks img to maxWidth keeping the aspect ratio. Smaller frames
// are returned as is.
func scale(img *image.RGBA, maxWidth int) *image.RGBA {
	b := img.Bounds()
	if maxWidth <= 0 || b.Dx() <= maxWidth {
		return img
	}
	h := max(1, b.Dy()*maxWidth/b.Dx())
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, h))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}

func (m *MJPEGOutput) broadcast(data []byte) {
	m.clientsMu.RLock()
	defer m.clientsMu.RUnlock()
	for ch := range m.clients {
		select {
		case ch <- data:
		default:
			// slow client, skip this frame
			m.skipped.Add(1)
		}
	}
}

func (m *MJPEGOutput) stop() {
	m.frames.Close(context.Canceled)
	m.clientsMu.Lock()
	defer m.clientsMu.Unlock()
	m.stopped = true
	for ch := range m.clients {
		close(ch)
	}
	m.clients = make(map[chan []byte]struct{})
}

func (m *MJPEGOutput) subscribe() (chan []byte, bool) {
	ch := make(chan []byte, 2)
	m.clientsMu.Lock()
	defer m.clientsMu.Unlock()
	if m.stopped {
		return nil, false
	}
	if latest := m.latest.Load(); latest != nil {
		ch <- *latest
	}
	m.clients[ch] = struct{}{}
	return ch, true
}

func (m *MJPEGOutput) unsubscribe(ch chan []byte) int {
	m.clientsMu.Lock()
	defer m.clientsMu.Unlock()
	delete(m.clients, ch)
	return len(m.clients)
}

// Stats returns a snapshot of the counters
func (m *MJPEGOutput) Stats() Stats {
	m.clientsMu.RLock()
	clients := len(m.clients)
	m.clientsMu.RUnlock()
	return Stats{
		Presented: m.presented.Load(),
		Encoded:   m.encoded.Load(),
		Skipped:   m.skipped.Load(),
		Clients:   clients,
	}
}

// ServeHTTP streams multipart/x-mixed-replace JPEG frames until the client
// goes away or the output stops.
func (m *MJPEGOutput) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("mjpeg")

	ch, ok := m.subscribe()
	if !ok {
		http.Error(w, "preview stopped", http.StatusServiceUnavailable)
		return
	}
	log.Info().Int("clients", m.Stats().Clients).Str("remote", r.RemoteAddr).Msg("Preview client connected")
	defer func() {
		remaining := m.unsubscribe(ch)
		log.Info().Int("clients", remaining).Str("remote", r.RemoteAddr).Msg("Preview client disconnected")
	}()

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+boundary)
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	if flusher != nil {
		flusher.Flush()
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case data, ok := <-ch:
			if !ok {
				return
			}
			if err := writePart(w, data); err != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

func writePart(w http.ResponseWriter, data []byte) error {
	if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", boundary, len(data)); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err := w.Write([]byte("\r\n"))
	return err
}
