package overlay

import (
	"image"
	"image/color"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Corner anchors a badge inside the frame
type Corner int

const (
	TopLeft Corner = iota
	TopRight
	BottomLeft
	BottomRight
)

// Badge is a short text label on a translucent background, drawn in a
// corner of the frame.
type Badge struct {
	Text       string
	Corner     Corner
	Margin     int
	Padding    int
	Opacity    float64
	Foreground color.RGBA
	Background color.RGBA
}

// NewBadge returns a badge with white text on a dark background
func NewBadge(text string) *Badge {
	return &Badge{
		Text:       text,
		Corner:     TopLeft,
		Margin:     8,
		Padding:    5,
		Opacity:    0.85,
		Foreground: color.RGBA{255, 255, 255, 255},
		Background: color.RGBA{20, 20, 20, 255},
	}
}

var face = basicfont.Face7x13

// Bounds returns where the badge lands inside a frame of the given size
func (b *Badge) Bounds(frame image.Rectangle) image.Rectangle {
	d := &font.Drawer{Face: face}
	w := d.MeasureString(b.Text).Ceil() + 2*b.Padding
	h := face.Height + 2*b.Padding

	x, y := frame.Min.X+b.Margin, frame.Min.Y+b.Margin
	switch b.Corner {
	case TopRight:
		x = frame.Max.X - b.Margin - w
	case BottomLeft:
		y = frame.Max.Y - b.Margin - h
	case BottomRight:
		x = frame.Max.X - b.Margin - w
		y = frame.Max.Y - b.Margin - h
	}
	return image.Rect(x, y, x+w, y+h)
}

// Render draws the badge onto img. Empty text draws nothing.
func (b *Badge) Render(img *image.RGBA) {
	if b.Text == "" {
		return
	}
	r := b.Bounds(img.Bounds())
	FillRect(img, r, b.Background, b.Opacity)

	text := image.NewRGBA(image.Rect(0, 0, r.Dx()-2*b.Padding, face.Height))
	d := &font.Drawer{
		Dst:  text,
		Src:  image.NewUniform(b.Foreground),
		Face: face,
		Dot:  fixed.P(0, face.Ascent),
	}
	d.DrawString(b.Text)
	BlendImage(img, text, r.Min.X+b.Padding, r.Min.Y+b.Padding, 1)
}
