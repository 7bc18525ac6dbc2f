// Package snapshot serializes device descriptors.
//
// A descriptor records what a device looked like (handle, geometry,
// lifecycle state, pixel format) and never its pixels. Descriptors travel
// inside a Record, encoded as core-deterministic CBOR in which every entry
// carries a tag naming its shape:
//
//	41001  descriptor v1: width, height, state
//	41002  descriptor v2: handle, width, height, state, format
//
// Encoding always writes v2. Decoding accepts both, and rejects unknown
// tags or record versions with SerializationUnsupported.
//
// On disk a Record is wrapped in a small container:
//
//	"IODS" | version u8 | compression u8 | length u32le | blake3[32] | payload
//
// The BLAKE3 checksum covers the uncompressed CBOR payload. The payload may
// be stored raw or compressed with LZ4 or zstd.
package snapshot
