package device

import (
	"github.com/tetratelabs/wazero/api"

	wasmiodevices "github.com/wippyai/wasm-iodevices"
	"github.com/wippyai/wasm-iodevices/errors"
)

var (
	_ wasmiodevices.Memory      = (*Memory)(nil)
	_ wasmiodevices.MemorySizer = (*Memory)(nil)
)

// Memory adapts a wazero api.Memory to wasmiodevices.Memory. Out-of-range
// accesses, and any access when the guest exports no memory, fail with
// GuestMemoryFault tagged with Phase.
type Memory struct {
	Mem   api.Memory
	Phase errors.Phase
}

// WrapMemory wraps mem for accesses made during phase. mem may be nil.
func WrapMemory(mem api.Memory, phase errors.Phase) *Memory {
	return &Memory{Mem: mem, Phase: phase}
}

// Read returns a copy of length bytes at offset.
func (m *Memory) Read(offset uint32, length uint32) ([]byte, error) {
	if m.Mem == nil {
		return nil, errors.GuestMemoryFault(m.Phase, offset, length)
	}
	view, ok := m.Mem.Read(offset, length)
	if !ok {
		return nil, errors.GuestMemoryFault(m.Phase, offset, length)
	}
	// The view aliases guest memory, which the guest may change or grow.
	return append([]byte(nil), view...), nil
}

// Write copies data to offset.
func (m *Memory) Write(offset uint32, data []byte) error {
	if m.Mem == nil || !m.Mem.Write(offset, data) {
		return errors.GuestMemoryFault(m.Phase, offset, uint32(len(data)))
	}
	return nil
}

// ReadU32 reads a little-endian u32.
func (m *Memory) ReadU32(offset uint32) (uint32, error) {
	if m.Mem == nil {
		return 0, errors.GuestMemoryFault(m.Phase, offset, 4)
	}
	v, ok := m.Mem.ReadUint32Le(offset)
	if !ok {
		return 0, errors.GuestMemoryFault(m.Phase, offset, 4)
	}
	return v, nil
}

// WriteU32 writes a little-endian u32.
func (m *Memory) WriteU32(offset uint32, value uint32) error {
	if m.Mem == nil || !m.Mem.WriteUint32Le(offset, value) {
		return errors.GuestMemoryFault(m.Phase, offset, 4)
	}
	return nil
}

// Size returns the memory size in bytes, or 0 without memory.
func (m *Memory) Size() uint32 {
	if m.Mem == nil {
		return 0
	}
	return m.Mem.Size()
}

// checkRange verifies that [offset, offset+length) lies inside mem when mem
// can report its size. Memories that cannot are checked by the access.
func checkRange(mem wasmiodevices.Memory, phase errors.Phase, offset, length uint32) error {
	sizer, ok := mem.(wasmiodevices.MemorySizer)
	if !ok {
		return nil
	}
	if uint64(offset)+uint64(length) > uint64(sizer.Size()) {
		return errors.GuestMemoryFault(phase, offset, length)
	}
	return nil
}
