package device

import (
	"context"
	stderrors "errors"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-iodevices/errors"
	"github.com/wippyai/wasm-iodevices/registry"
)

// ModuleName is the import module guests use for device functions.
const ModuleName = "wasi_experimental_io_devices"

// Import describes one guest-visible function. Every parameter is i32 and
// every function returns a single i32 errno.
type Import struct {
	Name   string
	Params []string
}

// Imports lists the functions of the device module in export order.
var Imports = []Import{
	{Name: "open", Params: []string{"width", "height", "handle_out"}},
	{Name: "write", Params: []string{"handle", "buf", "buf_len"}},
	{Name: "size", Params: []string{"handle", "width_out", "height_out"}},
	{Name: "close", Params: []string{"handle"}},
	{Name: "poll_input", Params: []string{"handle", "events", "max_events", "count_out"}},
}

// NewModuleBuilder returns a host module builder exporting the device
// functions backed by s.
func NewModuleBuilder(r wazero.Runtime, s *Surface) wazero.HostModuleBuilder {
	handlers := map[string]api.GoModuleFunc{
		"open":       s.hostOpen,
		"write":      s.hostWrite,
		"size":       s.hostSize,
		"close":      s.hostClose,
		"poll_input": s.hostPollInput,
	}

	builder := r.NewHostModuleBuilder(ModuleName)
	for _, imp := range Imports {
		params := make([]api.ValueType, len(imp.Params))
		for i := range params {
			params[i] = api.ValueTypeI32
		}
		builder.NewFunctionBuilder().
			WithGoModuleFunction(handlers[imp.Name], params, []api.ValueType{api.ValueTypeI32}).
			WithParameterNames(imp.Params...).
			WithResultNames("errno").
			Export(imp.Name)
	}
	return builder
}

// Instantiate adds the device module to r. Guests importing from
// ModuleName must be instantiated afterwards.
func Instantiate(ctx context.Context, r wazero.Runtime, s *Surface) (api.Module, error) {
	mod, err := NewModuleBuilder(r, s).Instantiate(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseHost, errors.KindInvalidInput, err, "instantiate "+ModuleName)
	}
	return mod, nil
}

func (s *Surface) hostOpen(ctx context.Context, mod api.Module, stack []uint64) {
	width, height, out := api.DecodeU32(stack[0]), api.DecodeU32(stack[1]), api.DecodeU32(stack[2])
	mem := WrapMemory(mod.Memory(), errors.PhaseOpen)

	// Check the out pointer first so a guest never holds a device it
	// cannot learn the handle of.
	if err := checkRange(mem, errors.PhaseOpen, out, 4); err != nil {
		stack[0] = s.status(errors.PhaseOpen, err)
		return
	}
	h, err := s.Open(ctx, width, height)
	if err == nil {
		err = mem.WriteU32(out, uint32(h))
	}
	stack[0] = s.status(errors.PhaseOpen, err)
}

func (s *Surface) hostWrite(ctx context.Context, mod api.Module, stack []uint64) {
	h, ptr, length := api.DecodeU32(stack[0]), api.DecodeU32(stack[1]), api.DecodeU32(stack[2])
	mem := WrapMemory(mod.Memory(), errors.PhaseWrite)
	err := s.Write(ctx, mem, registry.Handle(h), ptr, length)
	stack[0] = s.status(errors.PhaseWrite, err)
}

func (s *Surface) hostSize(ctx context.Context, mod api.Module, stack []uint64) {
	h, wOut, hOut := api.DecodeU32(stack[0]), api.DecodeU32(stack[1]), api.DecodeU32(stack[2])
	mem := WrapMemory(mod.Memory(), errors.PhaseSize)

	width, height, err := s.Size(registry.Handle(h))
	if err == nil {
		err = checkRange(mem, errors.PhaseSize, wOut, 4)
	}
	if err == nil {
		err = checkRange(mem, errors.PhaseSize, hOut, 4)
	}
	if err == nil {
		err = mem.WriteU32(wOut, width)
	}
	if err == nil {
		err = mem.WriteU32(hOut, height)
	}
	stack[0] = s.status(errors.PhaseSize, err)
}

func (s *Surface) hostClose(ctx context.Context, mod api.Module, stack []uint64) {
	h := api.DecodeU32(stack[0])
	err := s.Close(ctx, registry.Handle(h))
	stack[0] = s.status(errors.PhaseClose, err)
}

func (s *Surface) hostPollInput(ctx context.Context, mod api.Module, stack []uint64) {
	h, ptr, maxEvents, countOut := api.DecodeU32(stack[0]), api.DecodeU32(stack[1]), api.DecodeU32(stack[2]), api.DecodeU32(stack[3])
	mem := WrapMemory(mod.Memory(), errors.PhaseInput)

	if err := checkRange(mem, errors.PhaseInput, countOut, 4); err != nil {
		stack[0] = s.status(errors.PhaseInput, err)
		return
	}
	n, err := s.PollInput(ctx, mem, registry.Handle(h), ptr, maxEvents)
	if err == nil {
		err = mem.WriteU32(countOut, n)
	}
	stack[0] = s.status(errors.PhaseInput, err)
}

// status converts an operation result into the guest errno. A presenter
// join timeout was already reported to the fault hook by Close and the
// device is closed, so the guest sees success. Untyped errors are faults.
func (s *Surface) status(phase errors.Phase, err error) uint64 {
	if err == nil {
		return uint64(errors.ErrnoSuccess)
	}
	if code, ok := errors.ToErrno(err); ok {
		Logger().Debug("device call failed",
			zap.String("phase", string(phase)),
			zap.Stringer("errno", code),
			zap.Error(err))
		return uint64(code)
	}
	if stderrors.Is(err, errors.ErrPresenterJoinTimeout) {
		return uint64(errors.ErrnoSuccess)
	}
	s.onFault(err)
	return uint64(errors.ErrnoPlatformWindow)
}
