// Package presenter drives a window from a frame buffer.
//
// A Presenter runs one goroutine per device. On every tick it polls the
// window for events, forwards input to an InputQueue, and presents the
// current frame if a guest has written a new one since the last tick:
//
//	p := presenter.Start(fb, win, presenter.Options{Interval: 16 * time.Millisecond})
//	defer p.Stop(500 * time.Millisecond)
//
// A close event from the window moves the frame buffer to Closed and ends
// the loop; the presenter is the only component that closes a device on the
// user's behalf. Stop is the host-side handshake: it closes a channel and
// waits, bounded, for the loop to exit.
//
// Window backends implement Window and Opener; see the window/ packages.
package presenter
