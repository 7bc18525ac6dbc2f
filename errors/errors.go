package errors

import (
	"fmt"
	"strings"
)

// Phase indicates which operation produced the error
type Phase string

const (
	PhaseOpen     Phase = "open"     // device creation
	PhaseWrite    Phase = "write"    // guest pixel upload
	PhaseSize     Phase = "size"     // geometry query
	PhaseClose    Phase = "close"    // device teardown
	PhaseInput    Phase = "input"    // input event delivery
	PhasePresent  Phase = "present"  // window presentation
	PhaseRegistry Phase = "registry" // handle bookkeeping
	PhaseSnapshot Phase = "snapshot" // descriptor encode/decode
	PhaseConfig   Phase = "config"   // configuration loading
	PhaseHost     Phase = "host"     // host module registration
)

// Kind categorizes the error
type Kind string

const (
	KindInvalidDimensions        Kind = "invalid_dimensions"
	KindInvalidBufferSize        Kind = "invalid_buffer_size"
	KindAlreadyOpened            Kind = "already_opened"
	KindNotOpened                Kind = "not_opened"
	KindDeviceClosed             Kind = "device_closed"
	KindStillOpen                Kind = "still_open"
	KindGuestMemoryFault         Kind = "guest_memory_fault"
	KindSerializationUnsupported Kind = "serialization_unsupported"
	KindDeviceNotRestored        Kind = "device_not_restored"
	KindPlatformWindow           Kind = "platform_window"
	KindPresenterJoinTimeout     Kind = "presenter_join_timeout"
	KindInvalidInput             Kind = "invalid_input"
)

// Error is the structured error type used throughout the module
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Handle uint32
	Detail string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	if e.Phase != "" {
		b.WriteByte('[')
		b.WriteString(string(e.Phase))
		b.WriteString("] ")
	}
	b.WriteString(string(e.Kind))

	if e.Handle != 0 {
		fmt.Fprintf(&b, " (handle %d)", e.Handle)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// Kinds must match; the phase is compared only when target sets one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if e.Kind != t.Kind {
		return false
	}
	return t.Phase == "" || e.Phase == t.Phase
}

// Sentinels for errors.Is matching by kind.
var (
	ErrInvalidDimensions        = &Error{Kind: KindInvalidDimensions}
	ErrInvalidBufferSize        = &Error{Kind: KindInvalidBufferSize}
	ErrAlreadyOpened            = &Error{Kind: KindAlreadyOpened}
	ErrNotOpened                = &Error{Kind: KindNotOpened}
	ErrDeviceClosed             = &Error{Kind: KindDeviceClosed}
	ErrStillOpen                = &Error{Kind: KindStillOpen}
	ErrGuestMemoryFault         = &Error{Kind: KindGuestMemoryFault}
	ErrSerializationUnsupported = &Error{Kind: KindSerializationUnsupported}
	ErrDeviceNotRestored        = &Error{Kind: KindDeviceNotRestored}
	ErrPlatformWindow           = &Error{Kind: KindPlatformWindow}
	ErrPresenterJoinTimeout     = &Error{Kind: KindPresenterJoinTimeout}
)

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Handle sets the device handle the error refers to
func (b *Builder) Handle(h uint32) *Builder {
	b.err.Handle = h
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// InvalidDimensions reports a zero or overflowing device geometry
func InvalidDimensions(width, height uint32) *Error {
	return &Error{
		Phase:  PhaseOpen,
		Kind:   KindInvalidDimensions,
		Detail: fmt.Sprintf("%dx%d is not a valid device size", width, height),
		Value:  [2]uint32{width, height},
	}
}

// InvalidBufferSize reports a write whose length does not match the frame
func InvalidBufferSize(handle uint32, got, want int) *Error {
	return &Error{
		Phase:  PhaseWrite,
		Kind:   KindInvalidBufferSize,
		Handle: handle,
		Detail: fmt.Sprintf("buffer is %d bytes, frame is %d bytes", got, want),
		Value:  got,
	}
}

// AlreadyOpened reports an open while another device is live
func AlreadyOpened(live uint32) *Error {
	return &Error{
		Phase:  PhaseOpen,
		Kind:   KindAlreadyOpened,
		Handle: live,
		Detail: "a device is already open in this process",
	}
}

// NotOpened reports an unknown or released handle
func NotOpened(phase Phase, handle uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotOpened,
		Handle: handle,
		Detail: "no such device",
	}
}

// DeviceClosed reports an operation on a closed device
func DeviceClosed(phase Phase, handle uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindDeviceClosed,
		Handle: handle,
		Detail: "device is closed",
	}
}

// StillOpen reports a release of a device that has not been closed
func StillOpen(handle uint32) *Error {
	return &Error{
		Phase:  PhaseRegistry,
		Kind:   KindStillOpen,
		Handle: handle,
		Detail: "device must be closed before release",
	}
}

// GuestMemoryFault reports an out-of-range guest memory access
func GuestMemoryFault(phase Phase, offset, length uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindGuestMemoryFault,
		Detail: fmt.Sprintf("guest memory access out of bounds: offset=%d, length=%d", offset, length),
	}
}

// SerializationUnsupported reports an unknown snapshot shape or version
func SerializationUnsupported(detail string, args ...any) *Error {
	if len(args) > 0 {
		detail = fmt.Sprintf(detail, args...)
	}
	return &Error{
		Phase:  PhaseSnapshot,
		Kind:   KindSerializationUnsupported,
		Detail: detail,
	}
}

// DeviceNotRestored reports use of a handle that only exists in a restored snapshot
func DeviceNotRestored(phase Phase, handle uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindDeviceNotRestored,
		Handle: handle,
		Detail: "device was restored from a snapshot and must be reopened by the host",
	}
}

// PlatformWindow wraps a failure of the underlying window system
func PlatformWindow(phase Phase, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindPlatformWindow,
		Detail: detail,
		Cause:  cause,
	}
}

// PresenterJoinTimeout reports a presenter that did not stop in time
func PresenterJoinTimeout(handle uint32, waited any) *Error {
	return &Error{
		Phase:  PhaseClose,
		Kind:   KindPresenterJoinTimeout,
		Handle: handle,
		Detail: fmt.Sprintf("presenter did not stop within %v", waited),
		Value:  waited,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
