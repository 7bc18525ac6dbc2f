package framebuffer

import (
	"math"
	"sync"

	"github.com/wippyai/wasm-iodevices/errors"
)

// BytesPerPixel is the fixed pixel size: R, G, B, A.
const BytesPerPixel = 4

// State is the lifecycle state of a frame buffer.
type State uint8

const (
	Uninitialized State = iota
	Open
	Closed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Open:
		return "open"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// ParseState is the inverse of State.String.
func ParseState(s string) (State, bool) {
	switch s {
	case "uninitialized":
		return Uninitialized, true
	case "open":
		return Open, true
	case "closed":
		return Closed, true
	}
	return 0, false
}

// FrameBuffer is a fixed-geometry RGBA pixel store.
// All pixel and state access goes through mu.
type FrameBuffer struct {
	pixels     []byte
	mu         sync.Mutex
	width      uint32
	height     uint32
	generation uint64
	handle     uint32
	state      State
}

// New allocates a frame buffer in the Uninitialized state.
func New(width, height uint32) (*FrameBuffer, error) {
	n, ok := ByteLen(width, height)
	if !ok {
		return nil, errors.InvalidDimensions(width, height)
	}
	return &FrameBuffer{
		pixels: make([]byte, n),
		width:  width,
		height: height,
	}, nil
}

// ByteLen returns width*height*4, or false if the geometry is empty
// or does not fit in a guest-addressable length.
func ByteLen(width, height uint32) (int, bool) {
	if width == 0 || height == 0 {
		return 0, false
	}
	px := uint64(width) * uint64(height)
	if px > math.MaxUint32/BytesPerPixel {
		return 0, false
	}
	return int(px * BytesPerPixel), true
}

// Bind records the registry handle for error reporting.
func (f *FrameBuffer) Bind(handle uint32) {
	f.mu.Lock()
	f.handle = handle
	f.mu.Unlock()
}

// Width returns the frame width in pixels.
func (f *FrameBuffer) Width() uint32 { return f.width }

// Height returns the frame height in pixels.
func (f *FrameBuffer) Height() uint32 { return f.height }

// Len returns the frame size in bytes.
func (f *FrameBuffer) Len() int { return len(f.pixels) }

// State returns the current lifecycle state.
func (f *FrameBuffer) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Generation returns the number of successful writes so far.
func (f *FrameBuffer) Generation() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.generation
}

// Open advances Uninitialized to Open. Any other starting state is rejected.
func (f *FrameBuffer) Open() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != Uninitialized {
		return false
	}
	f.state = Open
	return true
}

// Close moves the buffer to Closed and reports whether this call made the transition.
func (f *FrameBuffer) Close() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == Closed {
		return false
	}
	f.state = Closed
	return true
}

// Write replaces the whole frame with data.
// The buffer is untouched unless the device is Open and len(data) matches exactly.
func (f *FrameBuffer) Write(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != Open {
		return errors.DeviceClosed(errors.PhaseWrite, f.handle)
	}
	if len(data) != len(f.pixels) {
		return errors.InvalidBufferSize(f.handle, len(data), len(f.pixels))
	}
	copy(f.pixels, data)
	f.generation++
	return nil
}

// Snapshot returns a copy of the current frame.
func (f *FrameBuffer) Snapshot() []byte {
	out := make([]byte, len(f.pixels))
	f.mu.Lock()
	copy(out, f.pixels)
	f.mu.Unlock()
	return out
}

// CopyIfNewer copies the frame into dst when its generation differs from since.
// dst must be Len() bytes. Returns the generation observed and whether a copy happened.
func (f *FrameBuffer) CopyIfNewer(dst []byte, since uint64) (uint64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.generation == since {
		return since, false
	}
	copy(dst, f.pixels)
	return f.generation, true
}
