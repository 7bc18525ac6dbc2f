// Package errors provides structured error types for the I/O device bridge.
//
// Errors are categorized by Phase (which operation failed) and Kind (error category).
// Kinds mirror the guest-visible error codes; see Errno for the wire mapping.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseWrite, errors.KindInvalidBufferSize).
//		Handle(3).
//		Detail("buffer is %d bytes, frame is %d bytes", 10, 64).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.InvalidDimensions(0, 480)
//	err := errors.DeviceClosed(errors.PhaseWrite, handle)
//
// All errors implement the standard error interface and support errors.Is/As.
// The package-level sentinels match any error of the same kind:
//
//	if errors.Is(err, errors.ErrDeviceClosed) { ... }
package errors
