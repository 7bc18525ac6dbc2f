// Package registry tracks the graphics devices of a process.
//
// The registry maps handles to devices and enforces that at most one device
// is open at any time. Register reserves the single slot before it creates
// a window, so two concurrent opens can never both succeed:
//
//	reg := registry.New(registry.Options{Opener: opener})
//	dev, err := reg.Register(640, 480)
//	if err != nil {
//	    // InvalidDimensions, AlreadyOpened or PlatformWindow
//	}
//
// Handles are never reused. A device closed by the guest or by the user
// stays in the registry until the host releases it or the next Register
// purges it as stale; after that its handle reports NotOpened.
//
// Observers are notified when a device is opened, when its presenter exits,
// and when it is released.
package registry
