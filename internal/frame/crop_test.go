package frame

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pixelAt returns the RGBA value the pattern assigns to (x, y).
func pixelAt(x, y int) [4]byte {
	return [4]byte{byte(x * 7), byte(y * 13), byte(x + y), byte(200 + (x+y)%50)}
}

// patternFrame builds a frame of the given layout whose logical RGBA
// content is pixelAt, with optional row padding.
func patternFrame(w, h, pad int, layout Layout) *Raw {
	stride := w*BytesPerPixel + pad
	pix := make([]byte, stride*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			p := pixelAt(x, y)
			i := y*stride + x*BytesPerPixel
			switch layout {
			case LayoutRGBA:
				copy(pix[i:], p[:])
			case LayoutBGRA, LayoutBGRX:
				pix[i], pix[i+1], pix[i+2], pix[i+3] = p[2], p[1], p[0], p[3]
			}
		}
	}
	return &Raw{Pix: pix, Width: w, Height: h, Stride: stride, Layout: layout}
}

func outPixel(c *Cropped, x, y int) [4]byte {
	i := (y*c.Width + x) * BytesPerPixel
	return [4]byte{c.Pix[i], c.Pix[i+1], c.Pix[i+2], c.Pix[i+3]}
}

// expectedCrop is the per-pixel reference the cropper must match.
func expectedCrop(raw *Raw, r Region, forceOpaque bool) []byte {
	out := make([]byte, r.Width*r.Height*BytesPerPixel)
	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			sx, sy := r.X+x, r.Y+y
			if sx < 0 || sy < 0 || sx >= raw.Width || sy >= raw.Height {
				continue
			}
			p := pixelAt(sx, sy)
			if forceOpaque {
				p[3] = 0xff
			}
			copy(out[(y*r.Width+x)*BytesPerPixel:], p[:])
		}
	}
	return out
}

func TestCropCheckerboard(t *testing.T) {
	// 4x4 checkerboard of white and black pixels
	raw := &Raw{Width: 4, Height: 4, Layout: LayoutRGBA, Pix: make([]byte, 4*4*4)}
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			v := byte(0)
			if (x+y)%2 == 0 {
				v = 0xff
			}
			i := (y*4 + x) * 4
			raw.Pix[i], raw.Pix[i+1], raw.Pix[i+2], raw.Pix[i+3] = v, v, v, 0xff
		}
	}

	out := Crop(raw, Region{X: 1, Y: 1, Width: 2, Height: 2})

	require.Len(t, out.Pix, 2*2*4)
	white := [4]byte{0xff, 0xff, 0xff, 0xff}
	black := [4]byte{0, 0, 0, 0xff}
	assert.Equal(t, white, outPixel(out, 0, 0)) // source (1,1)
	assert.Equal(t, black, outPixel(out, 1, 0)) // source (2,1)
	assert.Equal(t, black, outPixel(out, 0, 1)) // source (1,2)
	assert.Equal(t, white, outPixel(out, 1, 1)) // source (2,2)
}

func TestCropInBoundsMatchesPerPixelCopy(t *testing.T) {
	regions := []Region{
		{X: 0, Y: 0, Width: 16, Height: 12},
		{X: 3, Y: 2, Width: 5, Height: 7},
		{X: 15, Y: 11, Width: 1, Height: 1},
		{X: 0, Y: 5, Width: 16, Height: 1},
	}
	for _, layout := range []Layout{LayoutRGBA, LayoutBGRA} {
		raw := patternFrame(16, 12, 0, layout)
		for _, r := range regions {
			out := Crop(raw, r)
			assert.Equal(t, expectedCrop(raw, r, false), out.Pix, "%s %s", layout, r)
		}
	}
}

func TestCropBGRXForcesOpaqueAlpha(t *testing.T) {
	raw := patternFrame(8, 8, 0, LayoutBGRX)
	r := Region{X: 2, Y: 2, Width: 4, Height: 3}
	out := Crop(raw, r)
	assert.Equal(t, expectedCrop(raw, r, true), out.Pix)
}

func TestCropHonoursStridePadding(t *testing.T) {
	raw := patternFrame(10, 6, 24, LayoutBGRA)
	r := Region{X: 4, Y: 1, Width: 6, Height: 5}
	out := Crop(raw, r)
	assert.Equal(t, expectedCrop(raw, r, false), out.Pix)
}

func TestCropOutOfBoundsIsZeroFilled(t *testing.T) {
	raw := patternFrame(8, 6, 0, LayoutRGBA)
	regions := []Region{
		{X: -3, Y: -2, Width: 6, Height: 5},   // hangs off top-left
		{X: 5, Y: 4, Width: 6, Height: 5},     // hangs off bottom-right
		{X: -10, Y: 0, Width: 4, Height: 4},   // fully left
		{X: 20, Y: 20, Width: 4, Height: 4},   // fully outside
		{X: -2, Y: -2, Width: 12, Height: 10}, // larger than source
		{X: 0, Y: -6, Width: 8, Height: 6},    // fully above
	}
	for _, r := range regions {
		out := Crop(raw, r)
		require.Len(t, out.Pix, r.Width*r.Height*4, "%s", r)
		assert.Equal(t, expectedCrop(raw, r, false), out.Pix, "%s", r)
	}
}

func TestCropExtremeCoordinatesNeverPanic(t *testing.T) {
	raw := patternFrame(8, 8, 0, LayoutBGRA)
	regions := []Region{
		{X: math.MaxInt, Y: math.MaxInt, Width: 4, Height: 4},
		{X: math.MinInt, Y: math.MinInt, Width: 4, Height: 4},
		{X: math.MaxInt - 1, Y: 0, Width: 4, Height: 4},
		{X: 0, Y: math.MaxInt - 2, Width: 4, Height: 4},
		{X: 2, Y: 2, Width: -5, Height: 3},
	}
	for _, r := range regions {
		assert.NotPanics(t, func() {
			out := Crop(raw, r)
			for _, b := range out.Pix {
				if b != 0 {
					t.Fatalf("region %s produced non-zero pixel", r)
				}
			}
		}, "%s", r)
	}
}

func TestCropClampsToX11WindowLimit(t *testing.T) {
	raw := patternFrame(8, 8, 0, LayoutBGRA)

	wide := Crop(raw, Region{Width: 40000, Height: 1})
	assert.Equal(t, 40000, wide.Width)
	assert.Len(t, wide.Pix, 40000*4)

	tall := Crop(raw, Region{Width: 1, Height: 1 << 20})
	assert.Equal(t, 65535, tall.Height)
	assert.Len(t, tall.Pix, 65535*4)
}

func TestCropShortBufferLeavesRowsZero(t *testing.T) {
	raw := patternFrame(4, 4, 0, LayoutRGBA)
	// Drop the last row and a half: header claims 4 rows
	raw.Pix = raw.Pix[:4*4*2+8]

	r := Region{X: 0, Y: 0, Width: 4, Height: 4}
	out := Crop(raw, r)

	want := expectedCrop(raw, r, false)
	// rows 2 and 3 are not fully backed by Pix
	for i := 2 * 4 * 4; i < len(want); i++ {
		want[i] = 0
	}
	assert.Equal(t, want, out.Pix)
}

func TestCropInvalidFrameYieldsBlank(t *testing.T) {
	raw := &Raw{Pix: make([]byte, 64), Width: 4, Height: 4, Stride: 8}
	out := Crop(raw, Region{Width: 2, Height: 2})
	assert.Equal(t, make([]byte, 16), out.Pix)

	out = Crop(nil, Region{Width: 3, Height: 1})
	assert.Len(t, out.Pix, 12)
}

func TestCropParallelMatchesSequential(t *testing.T) {
	raw := patternFrame(300, 257, 12, LayoutBGRA)
	raw.Seq = 42
	regions := []Region{
		{X: 0, Y: 0, Width: 300, Height: 257},
		{X: -17, Y: -33, Width: 290, Height: 250},
		{X: 100, Y: 100, Width: 250, Height: 200},
	}
	parallel := Cropper{Workers: 7, MinParallelPixels: 1}
	for _, r := range regions {
		seq := Crop(raw, r)
		par := parallel.Crop(raw, r)
		assert.Equal(t, seq.Pix, par.Pix, "%s", r)
		assert.Equal(t, uint64(42), par.Seq)
	}
}

func TestCropperBands(t *testing.T) {
	assert.Equal(t, 1, Cropper{}.bands(Region{Width: 4000, Height: 4000}))
	assert.Equal(t, 1, Cropper{Workers: 8}.bands(Region{Width: 10, Height: 10}))
	assert.Equal(t, 8, Cropper{Workers: 8}.bands(Region{Width: 1000, Height: 1000}))
	assert.Equal(t, 3, Cropper{Workers: 8, MinParallelPixels: 1}.bands(Region{Width: 10, Height: 3}))
}

func TestFillIsUniform(t *testing.T) {
	c := Fill(3, 2, 128)
	require.Len(t, c.Pix, 3*2*4)
	for i := 0; i < len(c.Pix); i += 4 {
		assert.Equal(t, []byte{128, 128, 128, 0xff}, c.Pix[i:i+4])
	}
	assert.Empty(t, Fill(-1, 5, 1).Pix)
}

func TestRegionNormalize(t *testing.T) {
	r := Region{X: -4, Y: -1, Width: -3, Height: 7}.Normalize()
	assert.Equal(t, Region{X: -4, Y: -1, Width: 0, Height: 7}, r)
	assert.True(t, r.Empty())
	assert.Equal(t, "0x7-4-1", r.String())
}
