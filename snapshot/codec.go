package snapshot

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"

	"github.com/wippyai/wasm-iodevices/errors"
	"github.com/wippyai/wasm-iodevices/framebuffer"
)

// CBOR tags for descriptor shapes.
const (
	TagDescriptorV1 uint64 = 41001
	TagDescriptorV2 uint64 = 41002
)

type descriptorV1 struct {
	Width  uint32 `cbor:"1,keyasint"`
	Height uint32 `cbor:"2,keyasint"`
	State  string `cbor:"3,keyasint"`
}

type descriptorV2 struct {
	Handle uint32 `cbor:"1,keyasint"`
	Width  uint32 `cbor:"2,keyasint"`
	Height uint32 `cbor:"3,keyasint"`
	State  string `cbor:"4,keyasint"`
	Format string `cbor:"5,keyasint"`
}

type wireRecord struct {
	Version uint32 `cbor:"1,keyasint"`
	Devices []any  `cbor:"2,keyasint"`
}

type rawRecord struct {
	Version uint32        `cbor:"1,keyasint"`
	Devices []cbor.RawTag `cbor:"2,keyasint"`
}

// encMode writes core deterministic CBOR (RFC 8949 §4.2) and tags each
// descriptor shape automatically.
var encMode cbor.EncMode

// decMode decodes untagged descriptor bodies once the tag has been read.
var decMode cbor.DecMode

func init() {
	tags := cbor.NewTagSet()
	opts := cbor.TagOptions{EncTag: cbor.EncTagRequired, DecTag: cbor.DecTagIgnored}
	if err := tags.Add(opts, reflect.TypeOf(descriptorV1{}), TagDescriptorV1); err != nil {
		panic("snapshot: register descriptor v1 tag: " + err.Error())
	}
	if err := tags.Add(opts, reflect.TypeOf(descriptorV2{}), TagDescriptorV2); err != nil {
		panic("snapshot: register descriptor v2 tag: " + err.Error())
	}

	var err error
	encMode, err = cbor.CoreDetEncOptions().EncModeWithTags(tags)
	if err != nil {
		panic("snapshot: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("snapshot: CBOR decoder initialization failed: " + err.Error())
	}
}

// MarshalRecord encodes rec as a CBOR payload. Every descriptor is written
// in the v2 shape.
func MarshalRecord(rec Record) ([]byte, error) {
	if rec.Version != RecordVersion {
		return nil, errors.SerializationUnsupported("record version %d", rec.Version)
	}
	wire := wireRecord{Version: rec.Version, Devices: make([]any, 0, len(rec.Devices))}
	for _, d := range rec.Devices {
		format := d.Format
		if format == "" {
			format = FormatRGBA8
		}
		wire.Devices = append(wire.Devices, descriptorV2{
			Handle: d.Handle,
			Width:  d.Width,
			Height: d.Height,
			State:  d.State.String(),
			Format: format,
		})
	}
	data, err := encMode.Marshal(wire)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseSnapshot, errors.KindSerializationUnsupported, err, "encode record")
	}
	return data, nil
}

// UnmarshalRecord decodes a CBOR payload produced by MarshalRecord or by
// an older writer.
func UnmarshalRecord(data []byte) (Record, error) {
	var raw rawRecord
	if err := decMode.Unmarshal(data, &raw); err != nil {
		return Record{}, errors.Wrap(errors.PhaseSnapshot, errors.KindSerializationUnsupported, err, "decode record")
	}
	if raw.Version != RecordVersion {
		return Record{}, errors.SerializationUnsupported("record version %d", raw.Version)
	}

	rec := Record{Version: raw.Version, Devices: make([]Descriptor, 0, len(raw.Devices))}
	for i, entry := range raw.Devices {
		d, err := decodeEntry(entry)
		if err != nil {
			return Record{}, errors.New(errors.PhaseSnapshot, errors.KindSerializationUnsupported).
				Cause(err).
				Detail("device entry %d", i).
				Build()
		}
		rec.Devices = append(rec.Devices, d)
	}
	return rec, nil
}

func decodeEntry(entry cbor.RawTag) (Descriptor, error) {
	switch entry.Number {
	case TagDescriptorV1:
		var v descriptorV1
		if err := decMode.Unmarshal(entry.Content, &v); err != nil {
			return Descriptor{}, err
		}
		return newDescriptor(0, v.Width, v.Height, v.State, FormatRGBA8, ShapeV1)
	case TagDescriptorV2:
		var v descriptorV2
		if err := decMode.Unmarshal(entry.Content, &v); err != nil {
			return Descriptor{}, err
		}
		return newDescriptor(v.Handle, v.Width, v.Height, v.State, v.Format, ShapeV2)
	default:
		return Descriptor{}, errors.SerializationUnsupported("unknown descriptor tag %d", entry.Number)
	}
}

func newDescriptor(handle, width, height uint32, state, format string, shape Shape) (Descriptor, error) {
	st, ok := framebuffer.ParseState(state)
	if !ok {
		return Descriptor{}, errors.SerializationUnsupported("unknown device state %q", state)
	}
	if format != FormatRGBA8 {
		return Descriptor{}, errors.SerializationUnsupported("unknown pixel format %q", format)
	}
	if _, ok := framebuffer.ByteLen(width, height); !ok {
		return Descriptor{}, errors.InvalidDimensions(width, height)
	}
	return Descriptor{
		Handle: handle,
		Width:  width,
		Height: height,
		State:  st,
		Format: format,
		Shape:  shape,
	}, nil
}
