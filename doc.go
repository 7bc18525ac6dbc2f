// Package wasmiodevices exposes experimental I/O devices to WebAssembly
// guests running under wazero.
//
// The only device today is a graphics output: a guest opens a fixed-size
// RGBA frame buffer, writes whole frames into it, and a host goroutine
// presents the latest frame in a real window.
//
// # Architecture Overview
//
//	wasmiodevices/       Root package with the guest Memory interface
//	├── framebuffer/     Fixed-size pixel store with a forward-only state
//	├── registry/        Single-device registry and lifecycle observers
//	├── presenter/       Per-device loop that owns the window
//	├── device/          Guest import surface and wazero host module
//	├── snapshot/        Versioned device descriptors (CBOR container)
//	├── config/          YAML/JSONC configuration
//	├── errors/          Structured errors and guest errno mapping
//	├── engine/          wazero runtime with WASI and the device module
//	├── window/          Window backends: headless, ebitenwin, termwin, fbdev
//	└── cmd/run/         Command that runs a guest with devices attached
//
// # Quick Start
//
// Attach the device module to a wazero runtime before instantiating the
// guest:
//
//	reg := registry.New(registry.Options{Opener: ebitenwin.NewOpener()})
//	surface := device.NewSurface(reg, device.Options{})
//	defer surface.Shutdown()
//
//	if _, err := device.Instantiate(ctx, rt, surface); err != nil {
//	    log.Fatal(err)
//	}
//	mod, err := rt.InstantiateWithConfig(ctx, guestWasm, wazero.NewModuleConfig())
//
// # Guest ABI
//
// Imports live in the "wasi_experimental_io_devices" module. Every
// parameter and result is i32 and every result is an errno:
//
//	open(width, height, handle_out) -> errno
//	write(handle, buf, buf_len) -> errno
//	size(handle, width_out, height_out) -> errno
//	close(handle) -> errno
//	poll_input(handle, events, max_events, count_out) -> errno
//
// Pixels are 4 bytes each in R, G, B, A order, row-major from the top.
// A write must supply exactly width*height*4 bytes.
//
// # Thread Safety
//
// A guest calls the surface from its own goroutine while each device's
// presenter runs on another. The frame buffer lock is the only point where
// they meet, and it is held for one bounded copy.
package wasmiodevices
