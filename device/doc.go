// Package device exposes graphics devices to wasm guests.
//
// Surface holds the operations a guest can perform on a device: open,
// write, size, close and poll_input. It maps handles to devices through a
// registry and copies guest memory into frame buffers. Instantiate
// registers those operations with a wazero runtime as the host module
// "wasi_experimental_io_devices":
//
//	reg := registry.New(registry.Options{Opener: opener})
//	surface := device.NewSurface(reg, device.Options{})
//	if _, err := device.Instantiate(ctx, rt, surface); err != nil {
//	    return err
//	}
//
// Every guest call returns an errno (see errors.Errno); guests never see
// Go errors. Internal faults, such as a presenter that does not stop in
// time, go to Options.OnFault, which by default logs at fatal level.
//
// Snapshot and Restore let a host carry device descriptors across
// processes. A restored handle names a device that no longer has a window:
// guest calls on it fail with DeviceNotRestored until the host calls
// Reopen, which opens a fresh device of the same size.
package device
