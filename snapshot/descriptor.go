package snapshot

import (
	"sort"

	"github.com/wippyai/wasm-iodevices/framebuffer"
	"github.com/wippyai/wasm-iodevices/registry"
)

// RecordVersion is the only Record version this package reads and writes.
const RecordVersion = 1

// FormatRGBA8 is the pixel format of every device: 4 bytes per pixel,
// R, G, B, A, row-major from the top.
const FormatRGBA8 = "rgba8"

// Shape identifies which tagged layout a descriptor was decoded from.
type Shape uint8

const (
	ShapeV2 Shape = iota
	ShapeV1
)

func (s Shape) String() string {
	switch s {
	case ShapeV1:
		return "v1"
	case ShapeV2:
		return "v2"
	default:
		return "unknown"
	}
}

// Descriptor describes a device without its pixels.
type Descriptor struct {
	Format string
	Handle uint32
	Width  uint32
	Height uint32
	State  framebuffer.State
	Shape  Shape
}

// Record is a versioned list of descriptors.
type Record struct {
	Devices []Descriptor
	Version uint32
}

// Describe captures dev as a descriptor.
func Describe(dev *registry.Device) Descriptor {
	w, h := dev.Size()
	return Descriptor{
		Handle: uint32(dev.Handle()),
		Width:  w,
		Height: h,
		State:  dev.State(),
		Format: FormatRGBA8,
	}
}

// Capture builds a record from every device in reg, ordered by handle.
func Capture(reg *registry.Registry) Record {
	devices := reg.Devices()
	rec := Record{Version: RecordVersion, Devices: make([]Descriptor, 0, len(devices))}
	for _, dev := range devices {
		rec.Devices = append(rec.Devices, Describe(dev))
	}
	return rec
}

// Sort orders descriptors by handle. Descriptors without a handle keep
// their relative order at the end.
func (r *Record) Sort() {
	sort.SliceStable(r.Devices, func(i, j int) bool {
		a, b := r.Devices[i].Handle, r.Devices[j].Handle
		if a == 0 || b == 0 {
			return a != 0 && b == 0
		}
		return a < b
	})
}
