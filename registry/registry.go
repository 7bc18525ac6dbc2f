package registry

import (
	stderrors "errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-iodevices/errors"
	"github.com/wippyai/wasm-iodevices/framebuffer"
	"github.com/wippyai/wasm-iodevices/presenter"
)

// Options configures a Registry.
type Options struct {
	// Opener creates the window for each new device. Required.
	Opener presenter.Opener

	// OnFault receives presentation failures. See presenter.Options.
	// SetFaultHandler replaces it; without either, faults are logged.
	OnFault func(error)

	// Title is the window title.
	Title string

	// Scale is the integer window scale factor. Zero means 1.
	Scale int

	// Interval is the presenter tick. Zero means presenter.DefaultInterval.
	Interval time.Duration

	// InputQueueSize bounds buffered input per device.
	InputQueueSize int
}

// Registry tracks the single live device of a process.
// The registry lock guards the handle map only, never pixel data.
type Registry struct {
	entries   map[Handle]*Device
	opts      Options
	observers []Observer
	onFault   func(error)
	live      Handle
	next      Handle
	mu        sync.Mutex
	obsMu     sync.RWMutex
	faultMu   sync.RWMutex
}

// New creates an empty registry.
func New(opts Options) *Registry {
	if opts.Scale <= 0 {
		opts.Scale = 1
	}
	return &Registry{
		entries: make(map[Handle]*Device),
		opts:    opts,
		onFault: opts.OnFault,
	}
}

// SetFaultHandler sets the hook that receives presentation failures of
// every device, including devices already open.
func (r *Registry) SetFaultHandler(f func(error)) {
	r.faultMu.Lock()
	r.onFault = f
	r.faultMu.Unlock()
}

func (r *Registry) fault(err error) {
	r.faultMu.RLock()
	f := r.onFault
	r.faultMu.RUnlock()
	if f == nil {
		Logger().Error("unhandled device fault", zap.Error(err))
		return
	}
	f(err)
}

// Register creates a device, opens its window and starts its presenter.
//
// At most one non-Closed device exists at a time. The slot is reserved
// under the registry lock before the window is created, so concurrent
// callers cannot both pass the check. A Closed device still in the
// registry is purged as stale.
func (r *Registry) Register(width, height uint32) (*Device, error) {
	fb, err := framebuffer.New(width, height)
	if err != nil {
		return nil, err
	}
	if r.opts.Opener == nil {
		return nil, errors.PlatformWindow(errors.PhaseOpen, nil, "no window opener configured")
	}

	r.mu.Lock()
	stale, err := r.reserveLocked()
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}
	r.next++
	h := r.next
	r.live = h
	r.mu.Unlock()

	if stale != nil {
		Logger().Debug("purged stale device", zap.Uint32("handle", uint32(stale.handle)))
		r.notify(Event{Type: EventReleased, Handle: stale.handle, Device: stale})
	}

	fb.Bind(uint32(h))
	win, err := r.opts.Opener.OpenWindow(presenter.WindowConfig{
		Title:  r.opts.Title,
		Width:  int(width),
		Height: int(height),
		Scale:  r.opts.Scale,
	})
	if err != nil {
		r.mu.Lock()
		if r.live == h {
			r.live = 0
		}
		r.mu.Unlock()
		return nil, errors.PlatformWindow(errors.PhaseOpen, err, "create window")
	}

	fb.Open()
	dev := &Device{
		handle: h,
		fb:     fb,
		input:  presenter.NewInputQueue(r.opts.InputQueueSize),
		opened: time.Now(),
	}
	dev.presenter = presenter.Start(fb, win, presenter.Options{
		Input:    dev.input,
		OnFault:  r.fault,
		Interval: r.opts.Interval,
		Handle:   uint32(h),
	})

	r.mu.Lock()
	r.entries[h] = dev
	r.mu.Unlock()

	go r.watch(dev)

	Logger().Info("device opened",
		zap.Uint32("handle", uint32(h)),
		zap.Uint32("width", width),
		zap.Uint32("height", height))
	r.notify(Event{Type: EventOpened, Handle: h, Device: dev})
	return dev, nil
}

// reserveLocked checks the single-device invariant. It returns a purged
// stale device, if any.
func (r *Registry) reserveLocked() (*Device, error) {
	if r.live == 0 {
		return nil, nil
	}
	dev, ok := r.entries[r.live]
	if !ok {
		// Another Register holds the reservation and is creating its window.
		return nil, errors.AlreadyOpened(uint32(r.live))
	}
	if dev.State() != framebuffer.Closed {
		return nil, errors.AlreadyOpened(uint32(r.live))
	}
	delete(r.entries, r.live)
	r.live = 0
	return dev, nil
}

func (r *Registry) watch(dev *Device) {
	<-dev.presenter.Done()
	r.notify(Event{Type: EventClosed, Handle: dev.handle, Device: dev})
}

// Lookup returns the device for h.
func (r *Registry) Lookup(h Handle) (*Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	dev, ok := r.entries[h]
	if !ok {
		return nil, errors.NotOpened(errors.PhaseRegistry, uint32(h))
	}
	return dev, nil
}

// Release removes a Closed device from the registry.
func (r *Registry) Release(h Handle) error {
	r.mu.Lock()
	dev, ok := r.entries[h]
	if !ok {
		r.mu.Unlock()
		return errors.NotOpened(errors.PhaseRegistry, uint32(h))
	}
	if dev.State() != framebuffer.Closed {
		r.mu.Unlock()
		return errors.StillOpen(uint32(h))
	}
	delete(r.entries, h)
	if r.live == h {
		r.live = 0
	}
	r.mu.Unlock()

	Logger().Debug("device released", zap.Uint32("handle", uint32(h)))
	r.notify(Event{Type: EventReleased, Handle: h, Device: dev})
	return nil
}

// Reserve claims h for a device that exists outside the registry, such as
// one described by a restored snapshot. It fails for 0 and for any handle
// the registry may already have issued.
func (r *Registry) Reserve(h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h == 0 || h <= r.next {
		return false
	}
	r.next = h
	return true
}

// Allocate claims a fresh handle that Register will never return.
func (r *Registry) Allocate() Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	return r.next
}

// Devices returns the registered devices ordered by handle.
func (r *Registry) Devices() []*Device {
	r.mu.Lock()
	out := make([]*Device, 0, len(r.entries))
	for _, dev := range r.entries {
		out = append(out, dev)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].handle < out[j].handle })
	return out
}

// Len returns the number of registered devices, open or closed.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Shutdown closes every device, waiting up to timeout for each presenter,
// and empties the registry.
func (r *Registry) Shutdown(timeout time.Duration) error {
	devices := r.Devices()

	var errs []error
	for _, dev := range devices {
		if err := dev.Close(timeout); err != nil {
			errs = append(errs, err)
		}
	}

	r.mu.Lock()
	for _, dev := range devices {
		delete(r.entries, dev.handle)
	}
	r.live = 0
	r.mu.Unlock()

	for _, dev := range devices {
		r.notify(Event{Type: EventReleased, Handle: dev.handle, Device: dev})
	}
	return stderrors.Join(errs...)
}

// Subscribe adds an observer for lifecycle events.
func (r *Registry) Subscribe(o Observer) {
	r.obsMu.Lock()
	defer r.obsMu.Unlock()
	r.observers = append(r.observers, o)
}

// Unsubscribe removes an observer. Observers are compared with ==, so
// ObserverFunc values cannot be unsubscribed and are ignored.
func (r *Registry) Unsubscribe(o Observer) {
	if _, ok := o.(ObserverFunc); ok {
		return
	}
	r.obsMu.Lock()
	defer r.obsMu.Unlock()
	for i, obs := range r.observers {
		if obs == o {
			r.observers = append(r.observers[:i], r.observers[i+1:]...)
			return
		}
	}
}

func (r *Registry) notify(e Event) {
	r.obsMu.RLock()
	defer r.obsMu.RUnlock()
	for _, o := range r.observers {
		o.OnDeviceEvent(e)
	}
}
