package registry_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	ioerrors "github.com/wippyai/wasm-iodevices/errors"
	"github.com/wippyai/wasm-iodevices/framebuffer"
	"github.com/wippyai/wasm-iodevices/registry"
	"github.com/wippyai/wasm-iodevices/window/headless"
)

const timeout = 2 * time.Second

func newRegistry(t *testing.T) (*registry.Registry, *headless.Opener) {
	t.Helper()
	opener := headless.NewOpener()
	reg := registry.New(registry.Options{Opener: opener, Interval: time.Millisecond})
	t.Cleanup(func() { _ = reg.Shutdown(timeout) })
	return reg, opener
}

func TestRegister_Single(t *testing.T) {
	reg, opener := newRegistry(t)

	dev, err := reg.Register(8, 6)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if dev.Handle() == 0 {
		t.Fatal("handle 0 returned")
	}
	if dev.State() != framebuffer.Open {
		t.Errorf("state = %v, want open", dev.State())
	}
	if w, h := dev.Size(); w != 8 || h != 6 {
		t.Errorf("Size() = %dx%d, want 8x6", w, h)
	}
	if dev.FrameBuffer().Len() != 8*6*4 {
		t.Errorf("buffer len = %d", dev.FrameBuffer().Len())
	}
	if opener.Count() != 1 {
		t.Errorf("opened %d windows, want 1", opener.Count())
	}
	cfg := opener.Last().Config()
	if cfg.Width != 8 || cfg.Height != 6 || cfg.Scale != 1 {
		t.Errorf("window config = %+v", cfg)
	}

	got, err := reg.Lookup(dev.Handle())
	if err != nil || got != dev {
		t.Fatalf("Lookup = %v, %v", got, err)
	}
}

func TestRegister_AlreadyOpened(t *testing.T) {
	reg, opener := newRegistry(t)

	if _, err := reg.Register(4, 4); err != nil {
		t.Fatalf("Register: %v", err)
	}
	_, err := reg.Register(4, 4)
	if !errors.Is(err, ioerrors.ErrAlreadyOpened) {
		t.Fatalf("second Register = %v, want AlreadyOpened", err)
	}
	if opener.Count() != 1 {
		t.Errorf("opened %d windows, want 1", opener.Count())
	}
}

func TestRegister_ConcurrentSingleWinner(t *testing.T) {
	reg, opener := newRegistry(t)

	const n = 16
	var (
		wg      sync.WaitGroup
		wins    atomic.Int32
		refused atomic.Int32
		start   = make(chan struct{})
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := reg.Register(2, 2)
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, ioerrors.ErrAlreadyOpened):
				refused.Add(1)
			default:
				t.Errorf("Register: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if wins.Load() != 1 || refused.Load() != n-1 {
		t.Fatalf("wins=%d refused=%d, want 1 and %d", wins.Load(), refused.Load(), n-1)
	}
	if opener.Count() != 1 {
		t.Errorf("opened %d windows, want 1", opener.Count())
	}
}

func TestRegister_InvalidDimensions(t *testing.T) {
	reg, opener := newRegistry(t)

	tests := []struct {
		name string
		w, h uint32
	}{
		{"zero width", 0, 10},
		{"zero height", 10, 0},
		{"both zero", 0, 0},
		{"overflow", 1 << 16, 1 << 16},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reg.Register(tt.w, tt.h)
			if !errors.Is(err, ioerrors.ErrInvalidDimensions) {
				t.Fatalf("Register(%d, %d) = %v, want InvalidDimensions", tt.w, tt.h, err)
			}
		})
	}
	if opener.Count() != 0 {
		t.Errorf("opened %d windows for invalid sizes", opener.Count())
	}
	if _, err := reg.Register(1, 1); err != nil {
		t.Fatalf("Register after failures: %v", err)
	}
}

func TestRegister_WindowFailureRollsBack(t *testing.T) {
	reg, opener := newRegistry(t)
	opener.Err = errors.New("no display")

	_, err := reg.Register(4, 4)
	if !errors.Is(err, ioerrors.ErrPlatformWindow) {
		t.Fatalf("Register = %v, want PlatformWindow", err)
	}
	if reg.Len() != 0 {
		t.Errorf("Len() = %d after failed register", reg.Len())
	}

	opener.Err = nil
	if _, err := reg.Register(4, 4); err != nil {
		t.Fatalf("Register after rollback: %v", err)
	}
}

func TestRegister_NoOpener(t *testing.T) {
	reg := registry.New(registry.Options{})
	_, err := reg.Register(1, 1)
	if !errors.Is(err, ioerrors.ErrPlatformWindow) {
		t.Fatalf("Register = %v, want PlatformWindow", err)
	}
}

func TestLookup_Unknown(t *testing.T) {
	reg, _ := newRegistry(t)
	if _, err := reg.Lookup(42); !errors.Is(err, ioerrors.ErrNotOpened) {
		t.Fatalf("Lookup = %v, want NotOpened", err)
	}
}

func TestRelease(t *testing.T) {
	reg, _ := newRegistry(t)

	dev, err := reg.Register(2, 2)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := reg.Release(dev.Handle()); !errors.Is(err, ioerrors.ErrStillOpen) {
		t.Fatalf("Release open device = %v, want StillOpen", err)
	}

	if err := dev.Close(timeout); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := reg.Release(dev.Handle()); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := reg.Lookup(dev.Handle()); !errors.Is(err, ioerrors.ErrNotOpened) {
		t.Errorf("Lookup after release = %v, want NotOpened", err)
	}
	if err := reg.Release(dev.Handle()); !errors.Is(err, ioerrors.ErrNotOpened) {
		t.Errorf("second Release = %v, want NotOpened", err)
	}
}

func TestRegister_PurgesStaleDevice(t *testing.T) {
	reg, _ := newRegistry(t)

	first, err := reg.Register(2, 2)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := first.Close(timeout); err != nil {
		t.Fatalf("Close: %v", err)
	}

	second, err := reg.Register(3, 3)
	if err != nil {
		t.Fatalf("Register after close: %v", err)
	}
	if second.Handle() == first.Handle() {
		t.Fatalf("handle %d reused", first.Handle())
	}
	if _, err := reg.Lookup(first.Handle()); !errors.Is(err, ioerrors.ErrNotOpened) {
		t.Errorf("Lookup stale = %v, want NotOpened", err)
	}
	if reg.Len() != 1 {
		t.Errorf("Len() = %d, want 1", reg.Len())
	}
}

func TestRegister_AfterUserClose(t *testing.T) {
	reg, opener := newRegistry(t)

	dev, err := reg.Register(2, 2)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	opener.Last().SimulateClose()

	select {
	case <-dev.Presenter().Done():
	case <-time.After(timeout):
		t.Fatal("presenter did not exit on user close")
	}
	if dev.State() != framebuffer.Closed {
		t.Fatalf("state = %v, want closed", dev.State())
	}
	if _, err := reg.Register(2, 2); err != nil {
		t.Fatalf("Register after user close: %v", err)
	}
}

type recorder struct {
	events chan registry.Event
}

func (r *recorder) OnDeviceEvent(e registry.Event) {
	r.events <- e
}

func (r *recorder) next(t *testing.T) registry.Event {
	t.Helper()
	select {
	case e := <-r.events:
		return e
	case <-time.After(timeout):
		t.Fatal("no event")
		return registry.Event{}
	}
}

func TestObservers(t *testing.T) {
	reg, _ := newRegistry(t)
	rec := &recorder{events: make(chan registry.Event, 8)}
	reg.Subscribe(rec)

	dev, err := reg.Register(2, 2)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if e := rec.next(t); e.Type != registry.EventOpened || e.Handle != dev.Handle() {
		t.Fatalf("event = %v %d, want opened %d", e.Type, e.Handle, dev.Handle())
	}

	if err := dev.Close(timeout); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if e := rec.next(t); e.Type != registry.EventClosed {
		t.Fatalf("event = %v, want closed", e.Type)
	}

	if err := reg.Release(dev.Handle()); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if e := rec.next(t); e.Type != registry.EventReleased {
		t.Fatalf("event = %v, want released", e.Type)
	}

	reg.Unsubscribe(rec)
	if _, err := reg.Register(1, 1); err != nil {
		t.Fatalf("Register: %v", err)
	}
	select {
	case e := <-rec.events:
		t.Errorf("event %v after unsubscribe", e.Type)
	case <-time.After(10 * time.Millisecond):
	}
}

func TestShutdown(t *testing.T) {
	reg, opener := newRegistry(t)

	dev, err := reg.Register(2, 2)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := reg.Shutdown(timeout); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if reg.Len() != 0 {
		t.Errorf("Len() = %d after shutdown", reg.Len())
	}
	if dev.State() != framebuffer.Closed {
		t.Errorf("state = %v, want closed", dev.State())
	}
	if !opener.Last().Closed() {
		t.Error("window not closed")
	}
	if _, err := reg.Register(2, 2); err != nil {
		t.Fatalf("Register after shutdown: %v", err)
	}
}

func TestEventType_String(t *testing.T) {
	tests := []struct {
		typ  registry.EventType
		want string
	}{
		{registry.EventOpened, "opened"},
		{registry.EventClosed, "closed"},
		{registry.EventReleased, "released"},
		{registry.EventType(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.typ.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.typ, got, tt.want)
		}
	}
}

func TestReserveAndAllocate(t *testing.T) {
	reg, _ := newRegistry(t)

	dev, err := reg.Register(1, 1)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if reg.Reserve(0) {
		t.Error("Reserve(0) succeeded")
	}
	if reg.Reserve(dev.Handle()) {
		t.Errorf("Reserve(%d) of an issued handle succeeded", dev.Handle())
	}
	if !reg.Reserve(10) {
		t.Fatal("Reserve(10) failed")
	}
	if reg.Reserve(10) {
		t.Error("Reserve(10) twice succeeded")
	}
	if h := reg.Allocate(); h != 11 {
		t.Errorf("Allocate() = %d, want 11", h)
	}

	if err := dev.Close(timeout); err != nil {
		t.Fatalf("Close: %v", err)
	}
	next, err := reg.Register(1, 1)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if next.Handle() != 12 {
		t.Errorf("Register after reservations returned %d, want 12", next.Handle())
	}
}

func TestSetFaultHandler_AppliesToOpenDevices(t *testing.T) {
	reg, opener := newRegistry(t)

	dev, err := reg.Register(1, 1)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	faults := make(chan error, 1)
	reg.SetFaultHandler(func(err error) { faults <- err })

	opener.Last().FailPresent(errors.New("lost"))
	// The blank first frame may already carry the fault.
	_ = dev.FrameBuffer().Write([]byte{1, 2, 3, 4})
	select {
	case err := <-faults:
		if !errors.Is(err, ioerrors.ErrPlatformWindow) {
			t.Errorf("fault = %v, want PlatformWindow", err)
		}
	case <-time.After(timeout):
		t.Fatal("fault handler not called")
	}
}
