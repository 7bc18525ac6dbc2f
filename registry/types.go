package registry

import (
	"time"

	"github.com/wippyai/wasm-iodevices/framebuffer"
	"github.com/wippyai/wasm-iodevices/presenter"
)

// Handle is an opaque reference to a registered device.
// Handle 0 is reserved and always invalid.
type Handle uint32

// EventType identifies a device lifecycle notification.
type EventType uint8

const (
	EventOpened EventType = iota
	EventClosed
	EventReleased
)

func (t EventType) String() string {
	switch t {
	case EventOpened:
		return "opened"
	case EventClosed:
		return "closed"
	case EventReleased:
		return "released"
	default:
		return "unknown"
	}
}

// Event is a device lifecycle notification.
type Event struct {
	Device *Device
	Handle Handle
	Type   EventType
}

// Observer receives device lifecycle notifications. Callbacks may run on
// the presenter's goroutine and must not block.
type Observer interface {
	OnDeviceEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// OnDeviceEvent calls f(e).
func (f ObserverFunc) OnDeviceEvent(e Event) { f(e) }

// Device is one open graphics device: its pixels, its window loop and its
// pending input.
type Device struct {
	opened    time.Time
	fb        *framebuffer.FrameBuffer
	presenter *presenter.Presenter
	input     *presenter.InputQueue
	handle    Handle
}

// Handle returns the device's registry handle.
func (d *Device) Handle() Handle { return d.handle }

// FrameBuffer returns the device's pixel store.
func (d *Device) FrameBuffer() *framebuffer.FrameBuffer { return d.fb }

// Presenter returns the loop showing this device.
func (d *Device) Presenter() *presenter.Presenter { return d.presenter }

// Input returns the queue of window input events for this device.
func (d *Device) Input() *presenter.InputQueue { return d.input }

// State returns the frame buffer state.
func (d *Device) State() framebuffer.State { return d.fb.State() }

// Size returns the device geometry.
func (d *Device) Size() (uint32, uint32) { return d.fb.Width(), d.fb.Height() }

// OpenedAt returns when the device was registered.
func (d *Device) OpenedAt() time.Time { return d.opened }

// Close moves the device to Closed and waits up to timeout for its
// presenter to exit. Closing an already closed device only waits.
func (d *Device) Close(timeout time.Duration) error {
	d.fb.Close()
	return d.presenter.Stop(timeout)
}
