package presenter

// EventKind identifies a window event. Values other than EventClose are
// forwarded to the guest and are part of the input record wire format.
type EventKind uint32

const (
	EventNone EventKind = iota
	EventKeyDown
	EventKeyUp
	EventMouseMove
	EventMouseDown
	EventMouseUp

	// EventClose is the user asking to close the window. Never forwarded.
	EventClose EventKind = 0xFFFF
)

func (k EventKind) String() string {
	switch k {
	case EventKeyDown:
		return "key-down"
	case EventKeyUp:
		return "key-up"
	case EventMouseMove:
		return "mouse-move"
	case EventMouseDown:
		return "mouse-down"
	case EventMouseUp:
		return "mouse-up"
	case EventClose:
		return "close"
	default:
		return "none"
	}
}

// Event is a window event. Code is a key code or mouse button;
// X and Y are frame coordinates for mouse events.
type Event struct {
	Kind EventKind
	Code uint32
	X    int32
	Y    int32
}

// WindowConfig describes the window a device needs.
type WindowConfig struct {
	Title  string
	Width  int
	Height int
	Scale  int
}

// Window is the supplied window-system capability.
// A Window is driven by exactly one presenter goroutine.
type Window interface {
	// Present shows one RGBA frame of exactly Width*Height*4 bytes.
	// The slice is only valid for the duration of the call.
	Present(pixels []byte) error

	// PollEvents appends pending events to dst without blocking.
	PollEvents(dst []Event) []Event

	// Close releases the window.
	Close() error
}

// Opener creates windows for new devices.
type Opener interface {
	OpenWindow(cfg WindowConfig) (Window, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(cfg WindowConfig) (Window, error)

// OpenWindow calls f(cfg).
func (f OpenerFunc) OpenWindow(cfg WindowConfig) (Window, error) {
	return f(cfg)
}
