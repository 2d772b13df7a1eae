// Package frame holds the pixel buffers that move through the capture
// pipeline and the crop transform between them.
package frame

import (
	"fmt"
	"time"
)

// BytesPerPixel is the size of every pixel layout the pipeline accepts.
const BytesPerPixel = 4

// Layout is the byte order of a raw frame's pixels.
type Layout int

const (
	// LayoutRGBA is R, G, B, A
	LayoutRGBA Layout = iota
	// LayoutBGRA is B, G, R, A (X11 depth 32, most compositors)
	LayoutBGRA
	// LayoutBGRX is B, G, R, padding; alpha is forced opaque on output
	LayoutBGRX
)

func (l Layout) String() string {
	switch l {
	case LayoutRGBA:
		return "RGBA"
	case LayoutBGRA:
		return "BGRA"
	case LayoutBGRX:
		return "BGRx"
	default:
		return fmt.Sprintf("Layout(%d)", int(l))
	}
}

// Raw is a full-monitor capture as delivered by a capture source.
// It is never modified after the source hands it over.
type Raw struct {
	Pix        []byte
	Width      int
	Height     int
	Stride     int // bytes per row; 0 means Width*4
	Layout     Layout
	Seq        uint64
	CapturedAt time.Time
}

// RowBytes returns the effective stride of the frame.
func (r *Raw) RowBytes() int {
	if r.Stride > 0 {
		return r.Stride
	}
	return r.Width * BytesPerPixel
}

// Validate reports frames whose declared geometry cannot describe Pix.
func (r *Raw) Validate() error {
	if r.Width <= 0 || r.Height <= 0 {
		return fmt.Errorf("invalid frame size %dx%d", r.Width, r.Height)
	}
	if r.Stride != 0 && r.Stride < r.Width*BytesPerPixel {
		return fmt.Errorf("stride %d shorter than row of %d pixels", r.Stride, r.Width)
	}
	return nil
}

// Region is a rectangle in monitor pixel coordinates. X and Y may be
// negative when the window hangs off the top or left monitor edge.
type Region struct {
	X      int
	Y      int
	Width  int
	Height int
}

// Normalize clamps negative sizes to zero.
func (r Region) Normalize() Region {
	if r.Width < 0 {
		r.Width = 0
	}
	if r.Height < 0 {
		r.Height = 0
	}
	return r
}

// Empty reports whether the region covers no pixels.
func (r Region) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

func (r Region) String() string {
	return fmt.Sprintf("%dx%d%+d%+d", r.Width, r.Height, r.X, r.Y)
}

// Cropped is an RGBA buffer of exactly Width*Height*4 bytes.
type Cropped struct {
	Pix    []byte
	Width  int
	Height int
	Seq    uint64
}

// Blank returns a fully transparent buffer, used before any frame arrives.
func Blank(width, height int) *Cropped {
	width, height = clampSize(width, height)
	return &Cropped{
		Pix:    make([]byte, width*height*BytesPerPixel),
		Width:  width,
		Height: height,
	}
}

// Fill returns an opaque buffer where every pixel is the given gray level.
func Fill(width, height int, gray byte) *Cropped {
	c := Blank(width, height)
	for i := 0; i < len(c.Pix); i += BytesPerPixel {
		c.Pix[i] = gray
		c.Pix[i+1] = gray
		c.Pix[i+2] = gray
		c.Pix[i+3] = 0xff
	}
	return c
}

func clampSize(width, height int) (int, int) {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return width, height
}
