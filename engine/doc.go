// Package engine runs guest modules against the device host.
//
// An Engine owns one wazero runtime with two host modules in it: WASI
// preview1 and the device module backed by a device.Surface. Guests are
// plain core modules; they are compiled once with Load and then either
// run to completion through their _start export or instantiated for the
// host to drive.
//
//	eng, err := engine.New(ctx, surface, &engine.Config{MemoryLimitPages: 1024})
//	if err != nil {
//		return err
//	}
//	defer eng.Close(ctx)
//
//	mod, err := eng.Load(ctx, wasmBytes)
//	if err != nil {
//		return err
//	}
//	code, err := mod.Run(ctx, &engine.RunConfig{Args: []string{"demo"}})
//
// The engine does not own the surface. Callers shut it down after the
// engine is closed.
package engine
