// Package overlay draws annotations onto preview frames.
package overlay

import (
	"image"
	"image/color"
)

// BlendImage alpha-blends src onto dst with its top-left corner at (x, y).
// opacity scales the source alpha and is clamped to [0, 1]. Pixels outside
// dst are clipped.
func BlendImage(dst *image.RGBA, src *image.RGBA, x, y int, opacity float64) {
	opacity = clamp01(opacity)
	if opacity == 0 {
		return
	}

	sb := src.Bounds()
	area := image.Rect(x, y, x+sb.Dx(), y+sb.Dy()).Intersect(dst.Bounds())
	if area.Empty() {
		return
	}

	for dy := area.Min.Y; dy < area.Max.Y; dy++ {
		sy := sb.Min.Y + dy - y
		for dx := area.Min.X; dx < area.Max.X; dx++ {
			sx := sb.Min.X + dx - x
			si := src.PixOffset(sx, sy)
			di := dst.PixOffset(dx, dy)
			blendPixel(dst.Pix[di:di+4], src.Pix[si:si+4], opacity)
		}
	}
}

// FillRect blends a solid rectangle onto dst
func FillRect(dst *image.RGBA, r image.Rectangle, c color.RGBA, opacity float64) {
	opacity = clamp01(opacity)
	r = r.Intersect(dst.Bounds())
	if r.Empty() || opacity == 0 {
		return
	}
	px := []byte{c.R, c.G, c.B, c.A}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			i := dst.PixOffset(x, y)
			blendPixel(dst.Pix[i:i+4], px, opacity)
		}
	}
}

// blendPixel composites one straight-alpha RGBA pixel over another
// ("source over").
func blendPixel(d, s []byte, opacity float64) {
	sa := float64(s[3]) / 255 * opacity
	if sa <= 0 {
		return
	}
	da := float64(d[3]) / 255
	outA := sa + da*(1-sa)
	for c := 0; c < 3; c++ {
		v := (float64(s[c])*sa + float64(d[c])*da*(1-sa)) / outA
		d[c] = uint8(v + 0.5)
	}
	d[3] = uint8(outA*255 + 0.5)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
