package engine_test

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/sys"

	"github.com/wippyai/wasm-iodevices/device"
	"github.com/wippyai/wasm-iodevices/engine"
	ioerrors "github.com/wippyai/wasm-iodevices/errors"
	"github.com/wippyai/wasm-iodevices/internal/guestmod"
	"github.com/wippyai/wasm-iodevices/registry"
	"github.com/wippyai/wasm-iodevices/window/headless"
)

func newEngine(t *testing.T, cfg *engine.Config) *engine.Engine {
	t.Helper()
	ctx := context.Background()
	reg := registry.New(registry.Options{Opener: headless.NewOpener(), Interval: time.Millisecond})
	surface := device.NewSurface(reg, device.Options{OnFault: func(err error) { t.Errorf("fault: %v", err) }})
	eng, err := engine.New(ctx, surface, cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		_ = eng.Close(ctx)
		_ = surface.Shutdown()
	})
	return eng
}

func deviceGuest() []byte {
	b := guestmod.New(device.ModuleName)
	for _, imp := range device.Imports {
		b.Import(imp.Name, len(imp.Params), 1)
	}
	return b.Build()
}

func TestLoad_DeviceImports(t *testing.T) {
	eng := newEngine(t, nil)
	mod, err := eng.Load(context.Background(), deviceGuest())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []string{"close", "open", "poll_input", "size", "write"}
	if got := mod.DeviceImports(); !reflect.DeepEqual(got, want) {
		t.Errorf("DeviceImports() = %v, want %v", got, want)
	}
	if mod.UsesWASI() {
		t.Error("UsesWASI() = true for a device-only guest")
	}
	if eng.Runtime().Module(engine.WASIModuleName) != nil {
		t.Error("WASI instantiated for a guest that does not import it")
	}
}

func TestLoad_Invalid(t *testing.T) {
	eng := newEngine(t, nil)
	_, err := eng.Load(context.Background(), []byte("not wasm"))
	var e *ioerrors.Error
	if !errors.As(err, &e) || e.Phase != ioerrors.PhaseHost {
		t.Fatalf("Load = %v, want a host error", err)
	}
}

func TestLoad_MemoryLimit(t *testing.T) {
	eng := newEngine(t, &engine.Config{MemoryLimitPages: 1})
	guest := guestmod.New(device.ModuleName).Memory(2).Build()
	if _, err := eng.Load(context.Background(), guest); err == nil {
		t.Fatal("Load accepted memory over the limit")
	}
}

func TestInstantiate_DrivesDevice(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t, nil)
	mod, err := eng.Load(ctx, deviceGuest())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	inst, err := mod.Instantiate(ctx, nil)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	defer inst.Close(ctx)

	res, err := inst.ExportedFunction(guestmod.ExportPrefix+"open").Call(ctx, 2, 2, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if code := ioerrors.Errno(api.DecodeU32(res[0])); code != ioerrors.ErrnoSuccess {
		t.Fatalf("open = %v", code)
	}
	if n := eng.Surface().Registry().Len(); n != 1 {
		t.Errorf("registry has %d devices, want 1", n)
	}
}

func TestRun_NoStart(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t, nil)
	mod, err := eng.Load(ctx, deviceGuest())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	code, err := mod.Run(ctx, &engine.RunConfig{Args: []string{"guest"}, Env: map[string]string{"A": "1"}})
	if err != nil || code != 0 {
		t.Fatalf("Run = %d, %v", code, err)
	}
	// The instance is closed, so the name is free again.
	if _, err := mod.Run(ctx, nil); err != nil {
		t.Fatalf("second Run: %v", err)
	}
}

func TestWASI(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t, nil)
	guest := guestmod.New(engine.WASIModuleName).Import("proc_exit", 1, 0).Build()

	mod, err := eng.Load(ctx, guest)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !mod.UsesWASI() {
		t.Fatal("UsesWASI() = false")
	}
	if eng.Runtime().Module(engine.WASIModuleName) == nil {
		t.Fatal("WASI not instantiated")
	}
	if err := eng.InitWASI(ctx); err != nil {
		t.Fatalf("second InitWASI: %v", err)
	}

	inst, err := mod.Instantiate(ctx, &engine.RunConfig{Name: "exiter"})
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	_, err = inst.ExportedFunction(guestmod.ExportPrefix+"proc_exit").Call(ctx, 3)
	var exitErr *sys.ExitError
	if !errors.As(err, &exitErr) || exitErr.ExitCode() != 3 {
		t.Fatalf("proc_exit = %v, want exit code 3", err)
	}
}
