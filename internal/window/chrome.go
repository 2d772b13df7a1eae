package window

import (
	"fmt"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/ShareFrame/internal/mode"
)

// _NET_WM_STATE actions
const (
	netWMStateRemove = 0
	netWMStateAdd    = 1
)

// MWM_HINTS_DECORATIONS
const motifHintsDecorations = 1 << 1

// SetDecorations asks the window manager to show or hide the title bar
// and borders through _MOTIF_WM_HINTS.
func (o *Overlay) SetDecorations(on bool) error {
	data := motifHints(on)
	err := xproto.ChangePropertyChecked(o.conn, xproto.PropModeReplace, o.win,
		o.atoms.motifWMHints, o.atoms.motifWMHints, 32, uint32(len(data)/4), data).Check()
	if err != nil {
		return fmt.Errorf("set decorations: %w", err)
	}
	return nil
}

// SetStacking keeps the window above or below normal windows. Bottom
// keeps the overlay out of the shared region of windows stacked over it.
func (o *Overlay) SetStacking(stacking mode.Stacking) error {
	add, remove := o.atoms.stateAbove, o.atoms.stateBelow
	if stacking == mode.StackBottom {
		add, remove = remove, add
	}
	if err := o.sendWMState(netWMStateRemove, remove); err != nil {
		return fmt.Errorf("set stacking %s: %w", stacking, err)
	}
	if err := o.sendWMState(netWMStateAdd, add); err != nil {
		return fmt.Errorf("set stacking %s: %w", stacking, err)
	}
	return nil
}

// SetContentProtected excludes the window from screen capture where the
// platform allows it.
func (o *Overlay) SetContentProtected(on bool) error {
	return o.excluder.SetExcluded(on)
}

// sendWMState sends a _NET_WM_STATE client message to the root window, as
// EWMH requires for mapped windows.
func (o *Overlay) sendWMState(action uint32, state xproto.Atom) error {
	ev := xproto.ClientMessageEvent{
		Format: 32,
		Window: o.win,
		Type:   o.atoms.netWMState,
		Data:   xproto.ClientMessageDataUnionData32New(wmStateData(action, state)),
	}
	return xproto.SendEventChecked(o.conn, false, o.screen.Root,
		xproto.EventMaskSubstructureRedirect|xproto.EventMaskSubstructureNotify,
		string(ev.Bytes())).Check()
}

// wmStateData is the data32 payload: action, first property, second
// property, source indication (1 = application).
func wmStateData(action uint32, state xproto.Atom) []uint32 {
	return []uint32{action, uint32(state), 0, 1, 0}
}

// motifHints encodes the five-word _MOTIF_WM_HINTS property: flags,
// functions, decorations, input mode, status.
func motifHints(decorated bool) []byte {
	var decorations uint32
	if decorated {
		decorations = 1
	}
	words := []uint32{motifHintsDecorations, 0, decorations, 0, 0}
	buf := make([]byte, 4*len(words))
	for i, w := range words {
		xgb.Put32(buf[i*4:], w)
	}
	return buf
}
