package compositor

type tee struct {
	primary Surface
	mirrors []Surface
}

// Tee presents to primary and mirrors every call to the other surfaces.
// Only primary's errors are returned; a failing mirror (a preview stream,
// say) must not count against the window.
func Tee(primary Surface, mirrors ...Surface) Surface {
	if len(mirrors) == 0 {
		return primary
	}
	return &tee{primary: primary, mirrors: mirrors}
}

func (t *tee) Resize(width, height int) error {
	for _, m := range t.mirrors {
		_ = m.Resize(width, height)
	}
	return t.primary.Resize(width, height)
}

func (t *tee) Present(pix []byte, width, height int) error {
	for _, m := range t.mirrors {
		_ = m.Present(pix, width, height)
	}
	return t.primary.Present(pix, width, height)
}
