package snapshot

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/zeebo/blake3"

	"github.com/wippyai/wasm-iodevices/errors"
)

// Magic opens every snapshot container.
var Magic = [4]byte{'I', 'O', 'D', 'S'}

// ContainerVersion is the container layout version.
const ContainerVersion = 1

// MaxPayloadSize bounds the uncompressed payload a container may declare.
// A descriptor encodes to a few dozen bytes, so this is far above any real
// record.
const MaxPayloadSize = 1 << 20

const (
	checksumSize = 32
	headerSize   = len(Magic) + 1 + 1 + 4 + checksumSize

	// lz4MaxRatio is the best compression ratio the LZ4 block format can reach.
	lz4MaxRatio = 255
)

// Compression selects how the payload is stored.
type Compression uint8

const (
	CompressionNone Compression = 0
	CompressionLZ4  Compression = 1
	CompressionZstd Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

// ParseCompression parses a compression name as written in config.
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZstd, nil
	}
	return 0, fmt.Errorf("unknown compression %q", s)
}

// zstd encoders and decoders are safe for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("snapshot: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxPayloadSize))
	if err != nil {
		panic("snapshot: zstd decoder initialization failed: " + err.Error())
	}
}

// Encode wraps rec in a container. LZ4 falls back to no compression when
// the payload does not shrink.
func Encode(rec Record, c Compression) ([]byte, error) {
	payload, err := MarshalRecord(rec)
	if err != nil {
		return nil, err
	}

	body := payload
	switch c {
	case CompressionNone:
	case CompressionLZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(payload)))
		n, err := lz4.CompressBlock(payload, dst, nil)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseSnapshot, errors.KindSerializationUnsupported, err, "lz4 compress")
		}
		if n == 0 || n >= len(payload) {
			c = CompressionNone
		} else {
			body = dst[:n]
		}
	case CompressionZstd:
		body = zstdEncoder.EncodeAll(payload, nil)
	default:
		return nil, errors.SerializationUnsupported("compression %d", uint8(c))
	}

	sum := blake3.Sum256(payload)

	out := make([]byte, 0, headerSize+len(body))
	out = append(out, Magic[:]...)
	out = append(out, ContainerVersion, byte(c))
	out = binary.LittleEndian.AppendUint32(out, uint32(len(payload)))
	out = append(out, sum[:]...)
	return append(out, body...), nil
}

// Decode opens a container and decodes its record.
func Decode(data []byte) (Record, error) {
	payload, err := openContainer(data)
	if err != nil {
		return Record{}, err
	}
	return UnmarshalRecord(payload)
}

// openContainer validates the header and checksum and returns the
// uncompressed payload.
func openContainer(data []byte) ([]byte, error) {
	if len(data) < headerSize {
		return nil, errors.SerializationUnsupported("container truncated: %d bytes", len(data))
	}
	if !bytes.Equal(data[:4], Magic[:]) {
		return nil, errors.SerializationUnsupported("bad magic %q", data[:4])
	}
	if data[4] != ContainerVersion {
		return nil, errors.SerializationUnsupported("container version %d", data[4])
	}
	c := Compression(data[5])
	size := int(binary.LittleEndian.Uint32(data[6:10]))
	var sum [checksumSize]byte
	copy(sum[:], data[10:headerSize])
	body := data[headerSize:]

	// The header is untrusted. Bound it before sizing any buffer.
	if size > MaxPayloadSize {
		return nil, errors.SerializationUnsupported("payload of %d bytes exceeds %d", size, MaxPayloadSize)
	}

	var payload []byte
	switch c {
	case CompressionNone:
		payload = body
	case CompressionLZ4:
		if size > len(body)*lz4MaxRatio {
			return nil, errors.SerializationUnsupported("lz4 body of %d bytes cannot expand to %d", len(body), size)
		}
		payload = make([]byte, size)
		n, err := lz4.UncompressBlock(body, payload)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseSnapshot, errors.KindSerializationUnsupported, err, "lz4 decompress")
		}
		payload = payload[:n]
	case CompressionZstd:
		var err error
		payload, err = zstdDecoder.DecodeAll(body, nil)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseSnapshot, errors.KindSerializationUnsupported, err, "zstd decompress")
		}
	default:
		return nil, errors.SerializationUnsupported("compression %d", uint8(c))
	}

	if len(payload) != size {
		return nil, errors.SerializationUnsupported("payload is %d bytes, header says %d", len(payload), size)
	}
	if blake3.Sum256(payload) != sum {
		return nil, errors.SerializationUnsupported("payload checksum mismatch")
	}
	return payload, nil
}

// Diagnose renders the payload of a container in CBOR diagnostic notation.
func Diagnose(data []byte) (string, error) {
	payload, err := openContainer(data)
	if err != nil {
		return "", err
	}
	return cbor.Diagnose(payload)
}

// Info summarizes a container header.
type Info struct {
	Compression Compression
	Version     uint8
	PayloadSize int
	StoredSize  int
}

// Inspect reads a container header and verifies its checksum.
func Inspect(data []byte) (Info, error) {
	if _, err := openContainer(data); err != nil {
		return Info{}, err
	}
	return Info{
		Version:     data[4],
		Compression: Compression(data[5]),
		PayloadSize: int(binary.LittleEndian.Uint32(data[6:10])),
		StoredSize:  len(data) - headerSize,
	}, nil
}

// WriteFile encodes rec into path.
func WriteFile(path string, rec Record, c Compression) error {
	data, err := Encode(rec, c)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot %s: %w", path, err)
	}
	return nil
}

// ReadFile decodes the container at path.
func ReadFile(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Record{}, fmt.Errorf("read snapshot %s: %w", path, err)
	}
	return Decode(data)
}
