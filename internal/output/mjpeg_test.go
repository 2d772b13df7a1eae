package output

import (
	"bufio"
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gray(w, h int, v byte) []byte {
	pix := make([]byte, w*h*4)
	for i := 0; i < len(pix); i += 4 {
		pix[i], pix[i+1], pix[i+2], pix[i+3] = v, v, v, 0xff
	}
	return pix
}

func TestPresentNeverBlocks(t *testing.T) {
	m := NewMJPEGOutput(Config{Quality: 80})

	// no encoder running: presents must still return immediately
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			_ = m.Present(gray(8, 8, byte(i)), 8, 8)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Present blocked")
	}
	assert.Equal(t, uint64(100), m.Stats().Presented)
	assert.Error(t, m.Present(make([]byte, 3), 8, 8))
}

func TestScaleKeepsAspect(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 400, 200))
	out := scale(img, 100)
	assert.Equal(t, image.Rect(0, 0, 100, 50), out.Bounds())

	assert.Same(t, img, scale(img, 0))
	assert.Same(t, img, scale(img, 800))
}

func TestEncodeDrawsLabel(t *testing.T) {
	m := NewMJPEGOutput(Config{Quality: 90, Label: func() string { return "SHARE" }})
	img := image.NewRGBA(image.Rect(0, 0, 64, 32))
	copy(img.Pix, gray(64, 32, 0xff))

	data, err := m.encode(img)
	require.NoError(t, err)
	decoded, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 64, 32), decoded.Bounds())

	r, _, _, _ := decoded.At(9, 9).RGBA()
	assert.Less(t, r>>8, uint32(128), "badge background in the corner")
	r, _, _, _ = decoded.At(60, 28).RGBA()
	assert.Greater(t, r>>8, uint32(200))
}

func TestStreamDeliversFrames(t *testing.T) {
	m := NewMJPEGOutput(Config{Quality: 70, MaxWidth: 16})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	srv := httptest.NewServer(m)
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "multipart/x-mixed-replace"))

	require.Eventually(t, func() bool { return m.Stats().Clients == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, m.Present(gray(32, 16, 0x40), 32, 16))

	mr := multipart.NewReader(bufio.NewReader(resp.Body), boundary)
	part, err := mr.NextPart()
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", part.Header.Get("Content-Type"))
	data, err := io.ReadAll(part)
	require.NoError(t, err)

	img, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 16, 8), img.Bounds())
}

func TestStopClosesClients(t *testing.T) {
	m := NewMJPEGOutput(Config{})
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(stopped)
	}()

	srv := httptest.NewServer(m)
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Eventually(t, func() bool { return m.Stats().Clients == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	<-stopped
	_, err = io.ReadAll(resp.Body)
	assert.NoError(t, err)
	assert.Equal(t, 0, m.Stats().Clients)

	rec := httptest.NewRecorder()
	m.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stream", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Error(t, m.Present(gray(2, 2, 0), 2, 2))
}

func TestViewerHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	ViewerHandler()(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Contains(t, rec.Body.String(), `src="/stream"`)
	assert.Contains(t, rec.Body.String(), "/api/mode/toggle")
}
