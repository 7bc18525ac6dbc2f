// Package headless provides an off-screen window backend.
//
// Frames are kept in memory instead of being shown. Events can be injected
// to simulate a user, which makes this backend the test double for the
// presenter and device packages, and the backend the CLI uses when no
// display is available.
package headless

import (
	"sync"

	"github.com/wippyai/wasm-iodevices/presenter"
)

// Window records presented frames.
type Window struct {
	presentErr error
	unblock    <-chan struct{}
	presented  chan struct{}
	last       []byte
	pending    []presenter.Event
	cfg        presenter.WindowConfig
	frames     int
	mu         sync.Mutex
	closed     bool
}

// New creates a window for cfg.
func New(cfg presenter.WindowConfig) *Window {
	return &Window{
		cfg:       cfg,
		presented: make(chan struct{}, 1),
	}
}

// Present stores a copy of pixels as the last frame.
func (w *Window) Present(pixels []byte) error {
	w.mu.Lock()
	if w.presentErr != nil {
		err := w.presentErr
		w.mu.Unlock()
		return err
	}
	w.last = append(w.last[:0], pixels...)
	w.frames++
	w.mu.Unlock()

	select {
	case w.presented <- struct{}{}:
	default:
	}
	return nil
}

// PollEvents drains injected events.
func (w *Window) PollEvents(dst []presenter.Event) []presenter.Event {
	w.mu.Lock()
	defer w.mu.Unlock()
	dst = append(dst, w.pending...)
	w.pending = w.pending[:0]
	return dst
}

// Close marks the window closed. If BlockClose was called, Close waits for
// that channel first.
func (w *Window) Close() error {
	w.mu.Lock()
	unblock := w.unblock
	w.mu.Unlock()
	if unblock != nil {
		<-unblock
	}

	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	return nil
}

// Inject queues an event for the next poll.
func (w *Window) Inject(ev presenter.Event) {
	w.mu.Lock()
	w.pending = append(w.pending, ev)
	w.mu.Unlock()
}

// SimulateClose queues a user close request.
func (w *Window) SimulateClose() {
	w.Inject(presenter.Event{Kind: presenter.EventClose})
}

// FailPresent makes every later Present return err.
func (w *Window) FailPresent(err error) {
	w.mu.Lock()
	w.presentErr = err
	w.mu.Unlock()
}

// BlockClose makes Close wait until ch is closed.
func (w *Window) BlockClose(ch <-chan struct{}) {
	w.mu.Lock()
	w.unblock = ch
	w.mu.Unlock()
}

// Presented signals after each successful Present. Signals coalesce.
func (w *Window) Presented() <-chan struct{} {
	return w.presented
}

// LastFrame returns a copy of the most recently presented frame.
func (w *Window) LastFrame() []byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]byte(nil), w.last...)
}

// Frames returns how many frames were presented.
func (w *Window) Frames() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.frames
}

// Closed reports whether Close has completed.
func (w *Window) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// Config returns the configuration the window was opened with.
func (w *Window) Config() presenter.WindowConfig {
	return w.cfg
}

// Opener creates headless windows and remembers them.
type Opener struct {
	// Err, when set, is returned by OpenWindow instead of a window.
	Err     error
	windows []*Window
	mu      sync.Mutex
}

// NewOpener creates an opener.
func NewOpener() *Opener {
	return &Opener{}
}

// OpenWindow implements presenter.Opener.
func (o *Opener) OpenWindow(cfg presenter.WindowConfig) (presenter.Window, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.Err != nil {
		return nil, o.Err
	}
	w := New(cfg)
	o.windows = append(o.windows, w)
	return w, nil
}

// Last returns the most recently opened window, or nil.
func (o *Opener) Last() *Window {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.windows) == 0 {
		return nil
	}
	return o.windows[len(o.windows)-1]
}

// Count returns how many windows were opened.
func (o *Opener) Count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.windows)
}
