package device

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"go.uber.org/zap"

	wasmiodevices "github.com/wippyai/wasm-iodevices"
	"github.com/wippyai/wasm-iodevices/errors"
	"github.com/wippyai/wasm-iodevices/framebuffer"
	"github.com/wippyai/wasm-iodevices/registry"
	"github.com/wippyai/wasm-iodevices/snapshot"
)

// DefaultJoinTimeout bounds how long Close waits for a presenter to exit.
const DefaultJoinTimeout = 500 * time.Millisecond

// EventRecordSize is the size of one input event in guest memory:
// kind u32, code u32, x i32, y i32, little-endian.
const EventRecordSize = 16

// Options configures a Surface.
type Options struct {
	// OnFault receives internal faults: presenter join timeouts and
	// presentation failures of any device in the registry. It replaces the
	// registry's fault handler. Nil means DefaultFaultHandler.
	OnFault func(error)

	// JoinTimeout bounds presenter joins. Zero means DefaultJoinTimeout.
	JoinTimeout time.Duration
}

// Surface implements the guest-facing device operations on top of a
// registry. Every method is synchronous and safe to call from the guest's
// goroutine while presenters run.
type Surface struct {
	reg         *registry.Registry
	restored    map[registry.Handle]snapshot.Descriptor
	onFault     func(error)
	joinTimeout time.Duration
	mu          sync.Mutex
}

// NewSurface creates a surface over reg.
func NewSurface(reg *registry.Registry, opts Options) *Surface {
	if opts.OnFault == nil {
		opts.OnFault = DefaultFaultHandler
	}
	if opts.JoinTimeout <= 0 {
		opts.JoinTimeout = DefaultJoinTimeout
	}
	reg.SetFaultHandler(opts.OnFault)
	return &Surface{
		reg:         reg,
		restored:    make(map[registry.Handle]snapshot.Descriptor),
		onFault:     opts.OnFault,
		joinTimeout: opts.JoinTimeout,
	}
}

// Registry returns the registry the surface operates on.
func (s *Surface) Registry() *registry.Registry {
	return s.reg
}

// Open creates a device of the given size and returns its handle.
func (s *Surface) Open(ctx context.Context, width, height uint32) (registry.Handle, error) {
	dev, err := s.reg.Register(width, height)
	if err != nil {
		return 0, err
	}
	return dev.Handle(), nil
}

// Write copies length bytes at ptr in guest memory into the device's frame
// buffer. The length must match the device size exactly.
func (s *Surface) Write(ctx context.Context, mem wasmiodevices.Memory, h registry.Handle, ptr, length uint32) error {
	dev, err := s.lookup(errors.PhaseWrite, h)
	if err != nil {
		return err
	}
	fb := dev.FrameBuffer()

	// Guest memory faults take precedence over device state and length.
	// The range check copies nothing, so oversized lengths are rejected
	// before any read. Write repeats the state and length checks under the
	// buffer lock.
	if err := checkRange(mem, errors.PhaseWrite, ptr, length); err != nil {
		return err
	}
	if fb.State() != framebuffer.Open {
		return errors.DeviceClosed(errors.PhaseWrite, uint32(h))
	}
	if uint64(length) != uint64(fb.Len()) {
		return errors.InvalidBufferSize(uint32(h), int(length), fb.Len())
	}

	data, err := mem.Read(ptr, length)
	if err != nil {
		return asMemoryFault(err, errors.PhaseWrite, ptr, length)
	}
	return fb.Write(data)
}

// Size returns the device geometry. Closed devices still report it.
func (s *Surface) Size(h registry.Handle) (uint32, uint32, error) {
	dev, err := s.lookup(errors.PhaseSize, h)
	if err != nil {
		return 0, 0, err
	}
	w, ht := dev.Size()
	return w, ht, nil
}

// Close moves the device to Closed and joins its presenter. Closing a
// closed device succeeds. A presenter that does not stop within the join
// timeout is reported to the fault hook and returned as
// PresenterJoinTimeout.
func (s *Surface) Close(ctx context.Context, h registry.Handle) error {
	dev, err := s.lookup(errors.PhaseClose, h)
	if err != nil {
		return err
	}
	if err := dev.Close(s.joinTimeout); err != nil {
		s.onFault(err)
		return err
	}
	Logger().Debug("device closed", zap.Uint32("handle", uint32(h)))
	return nil
}

// PollInput moves up to maxEvents queued input events into guest memory
// at ptr and returns how many were written. Events are not consumed when
// the destination is out of range.
func (s *Surface) PollInput(ctx context.Context, mem wasmiodevices.Memory, h registry.Handle, ptr, maxEvents uint32) (uint32, error) {
	dev, err := s.lookup(errors.PhaseInput, h)
	if err != nil {
		return 0, err
	}
	if maxEvents == 0 {
		return 0, nil
	}
	if uint64(maxEvents)*EventRecordSize > uint64(^uint32(0)) {
		return 0, errors.GuestMemoryFault(errors.PhaseInput, ptr, ^uint32(0))
	}
	if err := checkRange(mem, errors.PhaseInput, ptr, maxEvents*EventRecordSize); err != nil {
		return 0, err
	}

	events := dev.Input().Drain(nil, int(maxEvents))
	if len(events) == 0 {
		return 0, nil
	}
	buf := make([]byte, len(events)*EventRecordSize)
	for i, ev := range events {
		rec := buf[i*EventRecordSize:]
		binary.LittleEndian.PutUint32(rec[0:], uint32(ev.Kind))
		binary.LittleEndian.PutUint32(rec[4:], ev.Code)
		binary.LittleEndian.PutUint32(rec[8:], uint32(ev.X))
		binary.LittleEndian.PutUint32(rec[12:], uint32(ev.Y))
	}
	if err := mem.Write(ptr, buf); err != nil {
		return 0, asMemoryFault(err, errors.PhaseInput, ptr, uint32(len(buf)))
	}
	return uint32(len(events)), nil
}

// Release forgets a Closed device, or a restored descriptor that was
// never reopened. Afterwards h reports NotOpened.
func (s *Surface) Release(h registry.Handle) error {
	s.mu.Lock()
	if _, ok := s.restored[h]; ok {
		delete(s.restored, h)
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	return s.reg.Release(h)
}

// Snapshot describes every live, closed and restored device.
func (s *Surface) Snapshot() snapshot.Record {
	rec := snapshot.Capture(s.reg)

	s.mu.Lock()
	for _, d := range s.restored {
		rec.Devices = append(rec.Devices, d)
	}
	s.mu.Unlock()

	rec.Sort()
	return rec
}

// Restore records the descriptors of rec without creating windows or
// buffers and returns their handles in the surface, in record order after
// sorting by original handle. A descriptor keeps its handle unless that
// handle is missing or already taken, in which case it gets a fresh one.
// Guest operations on restored handles fail with DeviceNotRestored until
// the host calls Reopen.
func (s *Surface) Restore(rec snapshot.Record) ([]registry.Handle, error) {
	if rec.Version != snapshot.RecordVersion {
		return nil, errors.SerializationUnsupported("record version %d", rec.Version)
	}
	sorted := snapshot.Record{Version: rec.Version, Devices: append([]snapshot.Descriptor(nil), rec.Devices...)}
	sorted.Sort()

	s.mu.Lock()
	defer s.mu.Unlock()

	handles := make([]registry.Handle, 0, len(sorted.Devices))
	for _, d := range sorted.Devices {
		h := registry.Handle(d.Handle)
		if !s.reg.Reserve(h) {
			h = s.reg.Allocate()
		}
		d.Handle = uint32(h)
		s.restored[h] = d
		handles = append(handles, h)
		Logger().Debug("device restored",
			zap.Uint32("handle", uint32(h)),
			zap.Uint32("width", d.Width),
			zap.Uint32("height", d.Height),
			zap.Stringer("state", d.State))
	}
	return handles, nil
}

// Restored returns the descriptor behind a restored handle.
func (s *Surface) Restored(h registry.Handle) (snapshot.Descriptor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.restored[h]
	return d, ok
}

// Reopen opens a new device with the geometry of a restored descriptor and
// returns its handle. The restored handle is forgotten on success.
func (s *Surface) Reopen(ctx context.Context, h registry.Handle) (registry.Handle, error) {
	s.mu.Lock()
	d, ok := s.restored[h]
	s.mu.Unlock()
	if !ok {
		return 0, errors.NotOpened(errors.PhaseOpen, uint32(h))
	}

	dev, err := s.reg.Register(d.Width, d.Height)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	delete(s.restored, h)
	s.mu.Unlock()

	Logger().Info("device reopened",
		zap.Uint32("restored", uint32(h)),
		zap.Uint32("handle", uint32(dev.Handle())))
	return dev.Handle(), nil
}

// Shutdown closes every device and empties the registry.
func (s *Surface) Shutdown() error {
	return s.reg.Shutdown(s.joinTimeout)
}

// lookup resolves h for a guest operation.
func (s *Surface) lookup(phase errors.Phase, h registry.Handle) (*registry.Device, error) {
	s.mu.Lock()
	_, restored := s.restored[h]
	s.mu.Unlock()
	if restored {
		return nil, errors.DeviceNotRestored(phase, uint32(h))
	}

	dev, err := s.reg.Lookup(h)
	if err != nil {
		return nil, errors.NotOpened(phase, uint32(h))
	}
	return dev, nil
}

// asMemoryFault keeps typed memory errors and converts anything else a
// Memory implementation returns into GuestMemoryFault.
func asMemoryFault(err error, phase errors.Phase, offset, length uint32) error {
	if code, ok := errors.ToErrno(err); ok && code == errors.ErrnoGuestMemoryFault {
		return err
	}
	return errors.New(phase, errors.KindGuestMemoryFault).
		Cause(err).
		Detail("guest memory access failed: offset=%d, length=%d", offset, length).
		Build()
}
