package window

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
)

// modifiers that take part in matching; lock modifiers are ignored
const hotkeyModMask = xproto.ModMaskShift | xproto.ModMaskControl | xproto.ModMask1 | xproto.ModMask4

// CapsLock and NumLock, which would otherwise make the grab miss
var lockCombos = []uint16{0, xproto.ModMaskLock, xproto.ModMask2, xproto.ModMaskLock | xproto.ModMask2}

var modifierNames = map[string]uint16{
	"ctrl":    xproto.ModMaskControl,
	"control": xproto.ModMaskControl,
	"shift":   xproto.ModMaskShift,
	"alt":     xproto.ModMask1,
	"mod1":    xproto.ModMask1,
	"super":   xproto.ModMask4,
	"win":     xproto.ModMask4,
	"mod4":    xproto.ModMask4,
}

var namedKeysyms = map[string]xproto.Keysym{
	"space":     0x0020,
	"tab":       0xff09,
	"return":    0xff0d,
	"enter":     0xff0d,
	"escape":    0xff1b,
	"esc":       0xff1b,
	"pause":     0xff13,
	"print":     0xff61,
	"insert":    0xff63,
	"delete":    0xffff,
	"home":      0xff50,
	"end":       0xff57,
	"backspace": 0xff08,
}

// Hotkey is a global key combination, e.g. "ctrl+shift+s"
type Hotkey struct {
	Spec      string
	Modifiers uint16
	Keysym    xproto.Keysym

	code xproto.Keycode
}

// ParseHotkey parses "mod+mod+key". Modifiers are ctrl, shift, alt and
// super; the key is a letter, a digit, F1-F24 or a named key.
func ParseHotkey(spec string) (*Hotkey, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(spec)), "+")
	if len(parts) == 0 || parts[len(parts)-1] == "" {
		return nil, fmt.Errorf("invalid hotkey %q: missing key", spec)
	}

	hk := &Hotkey{Spec: spec}
	for _, p := range parts[:len(parts)-1] {
		mod, ok := modifierNames[strings.TrimSpace(p)]
		if !ok {
			return nil, fmt.Errorf("invalid hotkey %q: unknown modifier %q", spec, p)
		}
		hk.Modifiers |= mod
	}

	sym, err := keysymFor(strings.TrimSpace(parts[len(parts)-1]))
	if err != nil {
		return nil, fmt.Errorf("invalid hotkey %q: %w", spec, err)
	}
	hk.Keysym = sym
	return hk, nil
}

func keysymFor(key string) (xproto.Keysym, error) {
	if len(key) == 1 {
		c := key[0]
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			// Latin-1 keysyms equal their code points
			return xproto.Keysym(c), nil
		}
	}
	if sym, ok := namedKeysyms[key]; ok {
		return sym, nil
	}
	var n int
	if _, err := fmt.Sscanf(key, "f%d", &n); err == nil && n >= 1 && n <= 24 && key == fmt.Sprintf("f%d", n) {
		return xproto.Keysym(0xffbe + n - 1), nil
	}
	return 0, fmt.Errorf("unknown key %q", key)
}

// Grab resolves the keycode and grabs the combination on root, once for
// each lock-modifier state.
func (h *Hotkey) Grab(conn *xgb.Conn, root xproto.Window) error {
	code, err := keycodeFor(conn, h.Keysym)
	if err != nil {
		return err
	}
	h.code = code

	var errs []error
	for _, lock := range lockCombos {
		err := xproto.GrabKeyChecked(conn, true, root, h.Modifiers|lock, code,
			xproto.GrabModeAsync, xproto.GrabModeAsync).Check()
		if err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == len(lockCombos) {
		// usually another client already owns the combination
		return fmt.Errorf("grab %s: %w", h.Spec, errors.Join(errs...))
	}
	return nil
}

// Ungrab releases every grab made by Grab
func (h *Hotkey) Ungrab(conn *xgb.Conn, root xproto.Window) {
	if h.code == 0 {
		return
	}
	for _, lock := range lockCombos {
		xproto.UngrabKey(conn, h.code, root, h.Modifiers|lock)
	}
}

// Matches reports whether a key press is this hotkey
func (h *Hotkey) Matches(code xproto.Keycode, state uint16) bool {
	return h.code != 0 && code == h.code && state&hotkeyModMask == h.Modifiers
}

func keycodeFor(conn *xgb.Conn, sym xproto.Keysym) (xproto.Keycode, error) {
	setup := xproto.Setup(conn)
	first := setup.MinKeycode
	count := int(setup.MaxKeycode) - int(first) + 1

	reply, err := xproto.GetKeyboardMapping(conn, first, byte(count)).Reply()
	if err != nil {
		return 0, fmt.Errorf("get keyboard mapping: %w", err)
	}
	return findKeycode(reply.Keysyms, int(reply.KeysymsPerKeycode), first, sym)
}

func findKeycode(keysyms []xproto.Keysym, perCode int, first xproto.Keycode, sym xproto.Keysym) (xproto.Keycode, error) {
	if perCode <= 0 {
		return 0, errors.New("empty keyboard mapping")
	}
	for i := 0; i+perCode <= len(keysyms); i += perCode {
		for _, s := range keysyms[i : i+perCode] {
			if s == sym {
				return first + xproto.Keycode(i/perCode), nil
			}
		}
	}
	return 0, fmt.Errorf("no keycode for keysym %#x", uint32(sym))
}
