// Package graphio holds the binary framing shared by every graph
// backend's file format: a magic/version/length/CRC32 header wrapping an
// opaque body, so a truncated or bit-flipped graph file is detected at
// open time rather than mid-search (§4.2, §4.2.5).
package graphio

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

const headerSize = 4 + 4 + 8 + 4 // magic + version + body length + crc32

// Encode wraps body in a framed header: 4-byte magic, little-endian
// uint32 version, little-endian uint64 body length, little-endian
// uint32 CRC32(body), followed by body itself.
func Encode(magic string, version uint32, body []byte) []byte {
	if len(magic) != 4 {
		panic("graphio: magic must be exactly 4 bytes")
	}
	out := make([]byte, headerSize+len(body))
	copy(out[0:4], magic)
	binary.LittleEndian.PutUint32(out[4:8], version)
	binary.LittleEndian.PutUint64(out[8:16], uint64(len(body)))
	binary.LittleEndian.PutUint32(out[16:20], crc32.ChecksumIEEE(body))
	copy(out[20:], body)
	return out
}

// Decode validates data against wantMagic, checks the CRC32, and returns
// the version and body slice (a view into data, not a copy).
func Decode(data []byte, wantMagic string) (version uint32, body []byte, err error) {
	if len(data) < headerSize {
		return 0, nil, fmt.Errorf("graphio: file too small for header (%d bytes)", len(data))
	}
	if string(data[0:4]) != wantMagic {
		return 0, nil, fmt.Errorf("graphio: bad magic %q, want %q", data[0:4], wantMagic)
	}
	version = binary.LittleEndian.Uint32(data[4:8])
	bodyLen := binary.LittleEndian.Uint64(data[8:16])
	wantCRC := binary.LittleEndian.Uint32(data[16:20])

	body = data[headerSize:]
	if uint64(len(body)) != bodyLen {
		return 0, nil, fmt.Errorf("graphio: body length %d != header length %d", len(body), bodyLen)
	}
	if got := crc32.ChecksumIEEE(body); got != wantCRC {
		return 0, nil, fmt.Errorf("graphio: crc32 mismatch: got %08x, want %08x", got, wantCRC)
	}
	return version, body, nil
}

// PutUint32Slice writes a []uint32 as a little-endian length-prefixed block.
func PutUint32Slice(buf []byte, values []uint32) int {
	binary.LittleEndian.PutUint32(buf, uint32(len(values)))
	off := 4
	for _, v := range values {
		binary.LittleEndian.PutUint32(buf[off:], v)
		off += 4
	}
	return off
}

// Uint32SliceSize returns the byte length PutUint32Slice will write for n
// values.
func Uint32SliceSize(n int) int { return 4 + n*4 }

// GetUint32Slice reads a length-prefixed []uint32 written by
// PutUint32Slice, returning the values and the number of bytes consumed.
func GetUint32Slice(buf []byte) ([]uint32, int, error) {
	if len(buf) < 4 {
		return nil, 0, fmt.Errorf("graphio: truncated slice length")
	}
	n := binary.LittleEndian.Uint32(buf)
	need := 4 + int(n)*4
	if len(buf) < need {
		return nil, 0, fmt.Errorf("graphio: truncated slice body: need %d bytes, have %d", need, len(buf))
	}
	values := make([]uint32, n)
	off := 4
	for i := range values {
		values[i] = binary.LittleEndian.Uint32(buf[off:])
		off += 4
	}
	return values, need, nil
}
