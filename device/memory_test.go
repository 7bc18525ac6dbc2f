package device

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/tetratelabs/wazero"

	"github.com/wippyai/wasm-iodevices/errors"
	"github.com/wippyai/wasm-iodevices/internal/guestmod"
)

func instantiateMemory(t *testing.T) *Memory {
	t.Helper()
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	t.Cleanup(func() { _ = rt.Close(ctx) })

	mod, err := rt.Instantiate(ctx, guestmod.New("host").Build())
	if err != nil {
		t.Fatalf("failed to instantiate: %v", err)
	}
	return WrapMemory(mod.ExportedMemory("memory"), errors.PhaseWrite)
}

func TestMemory_ReadWrite(t *testing.T) {
	mem := instantiateMemory(t)

	if err := mem.Write(0, []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	got, err := mem.Read(0, 4)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if got[0] != 1 || got[3] != 4 {
		t.Errorf("Read = %v", got)
	}

	// Read returns a copy.
	got[0] = 99
	again, _ := mem.Read(0, 1)
	if again[0] != 1 {
		t.Error("Read aliases guest memory")
	}

	if err := mem.WriteU32(8, 0xdeadbeef); err != nil {
		t.Fatalf("WriteU32 failed: %v", err)
	}
	v, err := mem.ReadU32(8)
	if err != nil || v != 0xdeadbeef {
		t.Errorf("ReadU32 = %#x, %v", v, err)
	}
	if mem.Size() != 65536 {
		t.Errorf("Size = %d, want 65536", mem.Size())
	}
}

func TestMemory_OutOfBounds(t *testing.T) {
	mem := instantiateMemory(t)
	end := mem.Size()

	checks := []struct {
		name string
		err  error
	}{
		{"Read", func() error { _, err := mem.Read(end-2, 4); return err }()},
		{"Write", mem.Write(end, []byte{1})},
		{"ReadU32", func() error { _, err := mem.ReadU32(end - 3); return err }()},
		{"WriteU32", mem.WriteU32(end-1, 1)},
	}
	for _, c := range checks {
		var e *errors.Error
		if !stderrors.As(c.err, &e) || e.Kind != errors.KindGuestMemoryFault || e.Phase != errors.PhaseWrite {
			t.Errorf("%s: got %v, want guest memory fault in write phase", c.name, c.err)
		}
	}
}

func TestMemory_Nil(t *testing.T) {
	mem := WrapMemory(nil, errors.PhaseSize)
	if _, err := mem.Read(0, 1); !stderrors.Is(err, errors.ErrGuestMemoryFault) {
		t.Errorf("Read = %v", err)
	}
	if err := mem.WriteU32(0, 1); !stderrors.Is(err, errors.ErrGuestMemoryFault) {
		t.Errorf("WriteU32 = %v", err)
	}
	if mem.Size() != 0 {
		t.Errorf("Size = %d", mem.Size())
	}
	if err := checkRange(mem, errors.PhaseSize, 0, 1); !stderrors.Is(err, errors.ErrGuestMemoryFault) {
		t.Errorf("checkRange = %v", err)
	}
}

func TestCheckRange(t *testing.T) {
	mem := instantiateMemory(t)
	tests := []struct {
		offset, length uint32
		ok             bool
	}{
		{0, 0, true},
		{0, 65536, true},
		{65532, 4, true},
		{65533, 4, false},
		{0xffffffff, 2, false},
	}
	for _, tt := range tests {
		err := checkRange(mem, errors.PhaseInput, tt.offset, tt.length)
		if (err == nil) != tt.ok {
			t.Errorf("checkRange(%d, %d) = %v, want ok=%v", tt.offset, tt.length, err, tt.ok)
		}
	}
}
