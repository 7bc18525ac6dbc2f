package engine

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-iodevices/device"
	"github.com/wippyai/wasm-iodevices/errors"
)

// StartFunction is the export Run calls.
const StartFunction = "_start"

// Config holds configuration for engine creation.
type Config struct {
	// MemoryLimitPages sets the maximum memory per guest in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	MemoryLimitPages uint32
}

// RunConfig configures one guest instance.
type RunConfig struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Env    map[string]string

	// Name is the instance name. Empty means "guest".
	Name string

	// Args are the guest's argv, including the program name.
	Args []string
}

// Engine runs guests in a wazero runtime wired to a device surface.
type Engine struct {
	runtime      wazero.Runtime
	surface      *device.Surface
	wasiInitMu   sync.Mutex
	wasiInitDone atomic.Bool
}

// New creates an engine and instantiates the device module backed by
// surface. Guests stop when the context passed to Run is cancelled.
func New(ctx context.Context, surface *device.Surface, cfg *Config) (*Engine, error) {
	runtimeCfg := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if cfg != nil && cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	r := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)

	if _, err := device.Instantiate(ctx, r, surface); err != nil {
		_ = r.Close(ctx)
		return nil, err
	}
	return &Engine{runtime: r, surface: surface}, nil
}

// Runtime returns the underlying wazero runtime.
func (e *Engine) Runtime() wazero.Runtime {
	return e.runtime
}

// Surface returns the device surface guests talk to.
func (e *Engine) Surface() *device.Surface {
	return e.surface
}

// InitWASI instantiates WASI preview1 in the engine's runtime once.
// Safe for concurrent calls.
func (e *Engine) InitWASI(ctx context.Context) error {
	if e.wasiInitDone.Load() {
		return nil
	}

	e.wasiInitMu.Lock()
	defer e.wasiInitMu.Unlock()

	if e.wasiInitDone.Load() {
		return nil
	}
	if e.runtime.Module(WASIModuleName) == nil {
		if _, err := InstantiateWASI(ctx, e.runtime); err != nil {
			return errors.Wrap(errors.PhaseHost, errors.KindInvalidInput, err, "instantiate WASI")
		}
	}
	e.wasiInitDone.Store(true)
	return nil
}

// Load compiles a guest module. WASI is instantiated first when the guest
// imports it.
func (e *Engine) Load(ctx context.Context, wasm []byte) (*Module, error) {
	compiled, err := e.runtime.CompileModule(ctx, wasm)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseHost, errors.KindInvalidInput, err, "compile guest")
	}

	m := &Module{engine: e, compiled: compiled}
	for _, fn := range compiled.ImportedFunctions() {
		module, name, _ := fn.Import()
		switch module {
		case WASIModuleName:
			m.wasi = true
		case device.ModuleName:
			m.deviceImports = append(m.deviceImports, name)
		}
	}
	sort.Strings(m.deviceImports)

	if m.wasi {
		if err := e.InitWASI(ctx); err != nil {
			_ = compiled.Close(ctx)
			return nil, err
		}
	}
	Logger().Debug("guest compiled",
		zap.Bool("wasi", m.wasi),
		zap.Strings("device_imports", m.deviceImports))
	return m, nil
}

// Close closes the runtime and every module in it.
func (e *Engine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

// Module is a compiled guest.
type Module struct {
	engine        *Engine
	compiled      wazero.CompiledModule
	deviceImports []string
	wasi          bool
}

// DeviceImports lists the device functions the guest imports, sorted.
func (m *Module) DeviceImports() []string {
	return m.deviceImports
}

// UsesWASI reports whether the guest imports WASI preview1.
func (m *Module) UsesWASI() bool {
	return m.wasi
}

// Instantiate creates an instance without running any start function, for
// hosts that drive the guest's exports themselves.
func (m *Module) Instantiate(ctx context.Context, cfg *RunConfig) (api.Module, error) {
	mod, err := m.engine.runtime.InstantiateModule(ctx, m.compiled, moduleConfig(cfg).WithStartFunctions())
	if err != nil {
		return nil, errors.Wrap(errors.PhaseHost, errors.KindInvalidInput, err, "instantiate guest")
	}
	return mod, nil
}

// Run instantiates the guest, calls its _start export if present and
// closes the instance. A guest that exits through WASI proc_exit reports
// its exit code with a nil error. Traps are returned as errors.
func (m *Module) Run(ctx context.Context, cfg *RunConfig) (uint32, error) {
	mod, err := m.engine.runtime.InstantiateModule(ctx, m.compiled, moduleConfig(cfg).WithStartFunctions(StartFunction))
	if err != nil {
		var exitErr *sys.ExitError
		if stderrors.As(err, &exitErr) {
			Logger().Debug("guest exited", zap.Uint32("code", exitErr.ExitCode()))
			return exitErr.ExitCode(), nil
		}
		return 0, fmt.Errorf("run guest: %w", err)
	}
	return 0, mod.Close(ctx)
}

// Close releases the compiled code.
func (m *Module) Close(ctx context.Context) error {
	return m.compiled.Close(ctx)
}

func moduleConfig(cfg *RunConfig) wazero.ModuleConfig {
	if cfg == nil {
		cfg = &RunConfig{}
	}
	name := cfg.Name
	if name == "" {
		name = "guest"
	}
	mc := wazero.NewModuleConfig().
		WithName(name).
		WithSysWalltime().
		WithSysNanotime().
		WithSysNanosleep()
	if len(cfg.Args) > 0 {
		mc = mc.WithArgs(cfg.Args...)
	}
	keys := make([]string, 0, len(cfg.Env))
	for k := range cfg.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		mc = mc.WithEnv(k, cfg.Env[k])
	}
	if cfg.Stdin != nil {
		mc = mc.WithStdin(cfg.Stdin)
	}
	if cfg.Stdout != nil {
		mc = mc.WithStdout(cfg.Stdout)
	}
	if cfg.Stderr != nil {
		mc = mc.WithStderr(cfg.Stderr)
	}
	return mc
}
