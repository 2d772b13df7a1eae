package frame

import (
	"github.com/sourcegraph/conc"
)

const (
	// MaxDimension caps each axis of a crop at the largest X11 window
	// size, an unsigned 16 bit value.
	MaxDimension = 1<<16 - 1

	// defaultMinParallelPixels keeps small crops on the calling goroutine,
	// where spawning band workers costs more than it saves.
	defaultMinParallelPixels = 256 * 256
)

// Cropper extracts a region from a raw frame. The zero value crops
// sequentially.
type Cropper struct {
	// Workers is the number of row bands cropped concurrently.
	// Values below 2 disable parallelism.
	Workers int

	// MinParallelPixels is the smallest crop split into bands.
	// Zero uses a default of 256x256.
	MinParallelPixels int
}

// Crop is a sequential Cropper.Crop.
func Crop(raw *Raw, region Region) *Cropped {
	return Cropper{}.Crop(raw, region)
}

// Crop returns an RGBA buffer of region.Width*region.Height*4 bytes holding
// the part of raw under region. Destination pixels with no source pixel
// (negative origin, past the right or bottom edge, short buffer) are zero.
// The result does not depend on Workers.
func (c Cropper) Crop(raw *Raw, region Region) *Cropped {
	region = region.Normalize()
	if region.Width > MaxDimension {
		region.Width = MaxDimension
	}
	if region.Height > MaxDimension {
		region.Height = MaxDimension
	}

	out := Blank(region.Width, region.Height)
	if raw == nil {
		return out
	}
	out.Seq = raw.Seq
	if region.Empty() || raw.Validate() != nil {
		return out
	}

	x0, x1 := columnSpan(region, raw.Width)
	if x0 >= x1 {
		return out
	}

	workers := c.bands(region)
	if workers <= 1 {
		cropRows(raw, region, out.Pix, x0, x1, 0, region.Height)
		return out
	}

	band := (region.Height + workers - 1) / workers
	var wg conc.WaitGroup
	for start := 0; start < region.Height; start += band {
		end := min(start+band, region.Height)
		wg.Go(func() {
			cropRows(raw, region, out.Pix, x0, x1, start, end)
		})
	}
	wg.Wait()
	return out
}

func (c Cropper) bands(region Region) int {
	if c.Workers < 2 {
		return 1
	}
	minPixels := c.MinParallelPixels
	if minPixels <= 0 {
		minPixels = defaultMinParallelPixels
	}
	if mulSat(region.Width, region.Height) < minPixels {
		return 1
	}
	return min(c.Workers, region.Height)
}

// columnSpan returns the destination columns [x0, x1) whose screen
// coordinate region.X+x lies inside [0, srcWidth).
func columnSpan(region Region, srcWidth int) (int, int) {
	x0, x1 := 0, region.Width
	if region.X < 0 {
		if region.X <= -region.Width {
			return 0, 0
		}
		x0 = -region.X
	}
	if region.X >= srcWidth {
		return 0, 0
	}
	if remaining := srcWidth - region.X; x1 > remaining {
		x1 = remaining
	}
	return x0, x1
}

// cropRows fills destination rows [from, to). Rows whose source row is
// outside the frame, or whose read range would run past Pix, stay zero.
func cropRows(raw *Raw, region Region, dst []byte, x0, x1, from, to int) {
	stride := raw.RowBytes()
	srcX := addSat(region.X, x0) * BytesPerPixel
	span := (x1 - x0) * BytesPerPixel
	dstRow := region.Width * BytesPerPixel

	for y := from; y < to; y++ {
		sy := addSat(region.Y, y)
		if sy < 0 || sy >= raw.Height {
			continue
		}
		start := addSat(mulSat(sy, stride), srcX)
		end := addSat(start, span)
		if end > len(raw.Pix) {
			continue
		}
		d := y*dstRow + x0*BytesPerPixel
		convert(dst[d:d+span], raw.Pix[start:end], raw.Layout)
	}
}

// convert copies src into dst as RGBA.
func convert(dst, src []byte, layout Layout) {
	switch layout {
	case LayoutBGRA:
		for i := 0; i+3 < len(src); i += BytesPerPixel {
			dst[i] = src[i+2]
			dst[i+1] = src[i+1]
			dst[i+2] = src[i]
			dst[i+3] = src[i+3]
		}
	case LayoutBGRX:
		for i := 0; i+3 < len(src); i += BytesPerPixel {
			dst[i] = src[i+2]
			dst[i+1] = src[i+1]
			dst[i+2] = src[i]
			dst[i+3] = 0xff
		}
	default:
		copy(dst, src)
	}
}
