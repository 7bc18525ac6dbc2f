package presenter

// Key codes carried in Event.Code for key events. Printable keys use their
// ASCII code (letters upper case); the rest sit above 0xFF. Every backend
// maps its native keys into this space.
const (
	KeyBackspace uint32 = 0x08
	KeyTab       uint32 = 0x09
	KeyEnter     uint32 = 0x0D
	KeyEscape    uint32 = 0x1B
	KeySpace     uint32 = 0x20
	KeyDelete    uint32 = 0x7F
)

// Non-printable keys.
const (
	KeyUp uint32 = 0x100 + iota
	KeyDown
	KeyLeft
	KeyRight
	KeyHome
	KeyEnd
	KeyPageUp
	KeyPageDown
	KeyShift
	KeyControl
	KeyAlt
)

// Mouse buttons carried in Event.Code for mouse button events.
const (
	MouseLeft   uint32 = 1
	MouseRight  uint32 = 2
	MouseMiddle uint32 = 3
)

// KeyForRune returns the key code for a printable ASCII rune, folding
// letters to upper case.
func KeyForRune(r rune) (uint32, bool) {
	switch {
	case r >= 'a' && r <= 'z':
		return uint32(r - 'a' + 'A'), true
	case r >= 0x20 && r < 0x7F:
		return uint32(r), true
	}
	return 0, false
}
