package overlay

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func TestBlendOpaqueReplaces(t *testing.T) {
	dst := solid(4, 4, color.RGBA{0, 0, 0, 255})
	BlendImage(dst, solid(2, 2, color.RGBA{200, 100, 50, 255}), 1, 1, 1)

	assert.Equal(t, color.RGBA{200, 100, 50, 255}, dst.RGBAAt(1, 1))
	assert.Equal(t, color.RGBA{200, 100, 50, 255}, dst.RGBAAt(2, 2))
	assert.Equal(t, color.RGBA{0, 0, 0, 255}, dst.RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{0, 0, 0, 255}, dst.RGBAAt(3, 3))
}

func TestBlendHalfOpacity(t *testing.T) {
	dst := solid(1, 1, color.RGBA{0, 0, 0, 255})
	BlendImage(dst, solid(1, 1, color.RGBA{200, 100, 50, 255}), 0, 0, 0.5)
	assert.Equal(t, color.RGBA{100, 50, 25, 255}, dst.RGBAAt(0, 0))
}

func TestBlendClipsAndIgnoresZeroOpacity(t *testing.T) {
	dst := solid(2, 2, color.RGBA{0, 0, 0, 255})
	assert.NotPanics(t, func() {
		BlendImage(dst, solid(3, 3, color.RGBA{255, 255, 255, 255}), -2, -2, 1)
		BlendImage(dst, solid(3, 3, color.RGBA{255, 255, 255, 255}), 5, 5, 1)
	})
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, dst.RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{0, 0, 0, 255}, dst.RGBAAt(1, 1))

	FillRect(dst, dst.Bounds(), color.RGBA{255, 0, 0, 255}, 0)
	assert.Equal(t, color.RGBA{0, 0, 0, 255}, dst.RGBAAt(1, 1))
}

func TestBadgeBoundsPerCorner(t *testing.T) {
	b := NewBadge("SHARE")
	frame := image.Rect(0, 0, 200, 100)

	tl := b.Bounds(frame)
	assert.Equal(t, image.Pt(8, 8), tl.Min)
	assert.Equal(t, 5*7+10, tl.Dx())
	assert.Equal(t, 13+10, tl.Dy())

	b.Corner = BottomRight
	br := b.Bounds(frame)
	assert.Equal(t, image.Pt(192, 92), br.Max)
}

func TestBadgeRenderDrawsInsideBounds(t *testing.T) {
	img := solid(120, 60, color.RGBA{255, 255, 255, 255})
	b := NewBadge("ALIGN")
	b.Render(img)

	r := b.Bounds(img.Bounds())
	bg := img.RGBAAt(r.Min.X, r.Min.Y)
	assert.Less(t, bg.R, uint8(128), "background darkens the corner")
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, img.RGBAAt(119, 59), "outside untouched")

	before := append([]byte(nil), img.Pix...)
	(&Badge{}).Render(img)
	assert.Equal(t, before, img.Pix)
}
