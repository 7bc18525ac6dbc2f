//go:build !headless

package ebitenwin

import (
	"github.com/hajimehoshi/ebiten/v2"

	"github.com/wippyai/wasm-iodevices/presenter"
)

var keyCodes = map[ebiten.Key]uint32{
	ebiten.KeyA: 'A', ebiten.KeyB: 'B', ebiten.KeyC: 'C', ebiten.KeyD: 'D',
	ebiten.KeyE: 'E', ebiten.KeyF: 'F', ebiten.KeyG: 'G', ebiten.KeyH: 'H',
	ebiten.KeyI: 'I', ebiten.KeyJ: 'J', ebiten.KeyK: 'K', ebiten.KeyL: 'L',
	ebiten.KeyM: 'M', ebiten.KeyN: 'N', ebiten.KeyO: 'O', ebiten.KeyP: 'P',
	ebiten.KeyQ: 'Q', ebiten.KeyR: 'R', ebiten.KeyS: 'S', ebiten.KeyT: 'T',
	ebiten.KeyU: 'U', ebiten.KeyV: 'V', ebiten.KeyW: 'W', ebiten.KeyX: 'X',
	ebiten.KeyY: 'Y', ebiten.KeyZ: 'Z',

	ebiten.KeyDigit0: '0', ebiten.KeyDigit1: '1', ebiten.KeyDigit2: '2',
	ebiten.KeyDigit3: '3', ebiten.KeyDigit4: '4', ebiten.KeyDigit5: '5',
	ebiten.KeyDigit6: '6', ebiten.KeyDigit7: '7', ebiten.KeyDigit8: '8',
	ebiten.KeyDigit9: '9',

	ebiten.KeySpace:       presenter.KeySpace,
	ebiten.KeyEnter:       presenter.KeyEnter,
	ebiten.KeyNumpadEnter: presenter.KeyEnter,
	ebiten.KeyEscape:      presenter.KeyEscape,
	ebiten.KeyBackspace:   presenter.KeyBackspace,
	ebiten.KeyTab:         presenter.KeyTab,
	ebiten.KeyDelete:      presenter.KeyDelete,

	ebiten.KeyArrowUp:    presenter.KeyUp,
	ebiten.KeyArrowDown:  presenter.KeyDown,
	ebiten.KeyArrowLeft:  presenter.KeyLeft,
	ebiten.KeyArrowRight: presenter.KeyRight,
	ebiten.KeyHome:       presenter.KeyHome,
	ebiten.KeyEnd:        presenter.KeyEnd,
	ebiten.KeyPageUp:     presenter.KeyPageUp,
	ebiten.KeyPageDown:   presenter.KeyPageDown,

	ebiten.KeyShiftLeft:    presenter.KeyShift,
	ebiten.KeyShiftRight:   presenter.KeyShift,
	ebiten.KeyControlLeft:  presenter.KeyControl,
	ebiten.KeyControlRight: presenter.KeyControl,
	ebiten.KeyAltLeft:      presenter.KeyAlt,
	ebiten.KeyAltRight:     presenter.KeyAlt,
}

// keyCode maps an ebiten key into the device key space.
func keyCode(k ebiten.Key) (uint32, bool) {
	code, ok := keyCodes[k]
	return code, ok
}

var mouseButtons = []struct {
	button ebiten.MouseButton
	code   uint32
}{
	{ebiten.MouseButtonLeft, presenter.MouseLeft},
	{ebiten.MouseButtonRight, presenter.MouseRight},
	{ebiten.MouseButtonMiddle, presenter.MouseMiddle},
}
