package errors

import stderrors "errors"

// Errno is the i32 status code returned to guests by every device import.
type Errno uint32

const (
	ErrnoSuccess                  Errno = 0
	ErrnoInvalidDimensions        Errno = 1
	ErrnoInvalidBufferSize        Errno = 2
	ErrnoAlreadyOpened            Errno = 3
	ErrnoNotOpened                Errno = 4
	ErrnoDeviceClosed             Errno = 5
	ErrnoStillOpen                Errno = 6
	ErrnoGuestMemoryFault         Errno = 7
	ErrnoSerializationUnsupported Errno = 8
	ErrnoDeviceNotRestored        Errno = 9
	ErrnoPlatformWindow           Errno = 10
)

var kindErrno = map[Kind]Errno{
	KindInvalidDimensions:        ErrnoInvalidDimensions,
	KindInvalidBufferSize:        ErrnoInvalidBufferSize,
	KindAlreadyOpened:            ErrnoAlreadyOpened,
	KindNotOpened:                ErrnoNotOpened,
	KindDeviceClosed:             ErrnoDeviceClosed,
	KindStillOpen:                ErrnoStillOpen,
	KindGuestMemoryFault:         ErrnoGuestMemoryFault,
	KindSerializationUnsupported: ErrnoSerializationUnsupported,
	KindDeviceNotRestored:        ErrnoDeviceNotRestored,
	KindPlatformWindow:           ErrnoPlatformWindow,
}

// ToErrno maps err to the guest-visible status code.
// The second result is false for errors that have no guest encoding
// (presenter join timeouts, untyped errors); callers treat those as faults.
func ToErrno(err error) (Errno, bool) {
	if err == nil {
		return ErrnoSuccess, true
	}
	var e *Error
	if !stderrors.As(err, &e) {
		return 0, false
	}
	code, ok := kindErrno[e.Kind]
	return code, ok
}

// String returns the kind name for a status code.
func (c Errno) String() string {
	if c == ErrnoSuccess {
		return "success"
	}
	for kind, code := range kindErrno {
		if code == c {
			return string(kind)
		}
	}
	return "unknown"
}
