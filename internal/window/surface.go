package window

import (
	"fmt"

	"github.com/BurntSushi/xgb/xproto"
)

// PutImage request header, in bytes
const putImageHeader = 24

type pixelFormat struct {
	depth byte
	bpp   int
	pad   int // scanline pad, in bits
}

func formatFor(setup *xproto.SetupInfo, depth byte) (pixelFormat, error) {
	for _, f := range setup.PixmapFormats {
		if f.Depth != depth {
			continue
		}
		if f.BitsPerPixel != 32 {
			return pixelFormat{}, fmt.Errorf("unsupported pixmap format: depth %d with %d bpp", depth, f.BitsPerPixel)
		}
		if setup.ImageByteOrder != xproto.ImageOrderLSBFirst {
			return pixelFormat{}, fmt.Errorf("unsupported image byte order %d", setup.ImageByteOrder)
		}
		return pixelFormat{depth: depth, bpp: int(f.BitsPerPixel), pad: int(f.ScanlinePad)}, nil
	}
	return pixelFormat{}, fmt.Errorf("no pixmap format for depth %d", depth)
}

// stride returns the padded scanline length in bytes
func (f pixelFormat) stride(width int) int {
	bits := width * f.bpp
	pad := f.pad
	if pad <= 0 {
		pad = 32
	}
	bits = (bits + pad - 1) / pad * pad
	return bits / 8
}

// encode converts tightly packed RGBA rows into the server's ZPixmap
// layout: BGRx with padded scanlines. Alpha is only kept for depth 32
// visuals.
func (f pixelFormat) encode(dst, pix []byte, width, height int) []byte {
	stride := f.stride(width)
	n := stride * height
	if cap(dst) < n {
		dst = make([]byte, n)
	}
	dst = dst[:n]

	for y := 0; y < height; y++ {
		src := pix[y*width*4 : (y+1)*width*4]
		row := dst[y*stride : (y+1)*stride]
		for x := 0; x < width; x++ {
			s, d := x*4, x*4
			row[d] = src[s+2]
			row[d+1] = src[s+1]
			row[d+2] = src[s]
			if f.depth == 32 {
				row[d+3] = src[s+3]
			} else {
				row[d+3] = 0
			}
		}
		clear(row[width*4:])
	}
	return dst
}

// strips splits height rows into runs that each fit in one request of at
// most maxBytes payload.
func strips(height, stride, maxBytes int) ([][2]int, error) {
	if stride > maxBytes {
		return nil, fmt.Errorf("scanline of %d bytes exceeds request limit %d", stride, maxBytes)
	}
	rows := maxBytes / stride
	var out [][2]int
	for y := 0; y < height; y += rows {
		n := min(rows, height-y)
		out = append(out, [2]int{y, n})
	}
	return out, nil
}

// Surface presents composited frames into the overlay window. It is the
// window's compositor.Surface.
type Surface struct {
	overlay       *Overlay
	buf           []byte
	width, height int
}

// Surface returns the presentation surface for this window
func (o *Overlay) Surface() *Surface {
	return &Surface{overlay: o}
}

// Resize records the content size. The window itself is sized by the
// user and the window manager.
func (s *Surface) Resize(width, height int) error {
	if width < 0 || height < 0 {
		return fmt.Errorf("invalid surface size %dx%d", width, height)
	}
	s.width, s.height = width, height
	return nil
}

// Present draws pix at the window origin
func (s *Surface) Present(pix []byte, width, height int) error {
	if width == 0 || height == 0 {
		return nil
	}
	if len(pix) < width*height*4 {
		return fmt.Errorf("present: %d bytes for %dx%d", len(pix), width, height)
	}

	o := s.overlay
	s.buf = o.format.encode(s.buf, pix, width, height)
	stride := o.format.stride(width)

	runs, err := strips(height, stride, o.maxBytes)
	if err != nil {
		return err
	}
	for _, r := range runs {
		y, n := r[0], r[1]
		err := xproto.PutImageChecked(
			o.conn,
			xproto.ImageFormatZPixmap,
			xproto.Drawable(o.win),
			o.gc,
			uint16(width), uint16(n),
			0, int16(y),
			0,
			o.format.depth,
			s.buf[y*stride:(y+n)*stride],
		).Check()
		if err != nil {
			return fmt.Errorf("put image rows %d-%d: %w", y, y+n, err)
		}
	}
	return nil
}
