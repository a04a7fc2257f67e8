// Package bitstream implements the low-level byte-stream primitives shared
// by the id, timestamp, and value columns of a compressed chunk: base-128
// varints, a two-value VByte pair coder with a bit-packed shortcut for
// near-constant blocks, zigzag encoding for signed residuals, and
// run-length encoding for id deltas.
//
// Every Put* function appends to a pool.ByteBuffer and never fails by
// itself — overflow is detected by the caller comparing the buffer's
// growth against a reserved budget, the same writers-signal-overflow-via-
// bool-return contract the chunk package uses one level up.
// Every Get* function is a pure function over a byte slice plus a read
// offset, returning ok=false on truncation instead of panicking, so
// callers can roll back a partially-read block.
package bitstream

import (
	"encoding/binary"
	"math/bits"

	"github.com/tsdbcore/akumu/internal/pool"
)

// BlockSize is the fixed number of elements a chunk column encodes per block.
const BlockSize = 16

// PutUvarint appends v to buf as a base-128 varint (little-endian 7-bit
// groups, continuation bit in the MSB of each byte).
func PutUvarint(buf *pool.ByteBuffer, v uint64) {
	if v <= 0x7F {
		idx := len(buf.B)
		buf.ExtendOrGrow(1)
		buf.B[idx] = byte(v)
		return
	}

	buf.Grow(binary.MaxVarintLen64)
	buf.B = binary.AppendUvarint(buf.B, v)
}

// GetUvarint decodes a base-128 varint from data starting at offset.
// Returns ok=false if the stream ends inside a varint group.
func GetUvarint(data []byte, offset int) (value uint64, next int, ok bool) {
	if offset >= len(data) {
		return 0, offset, false
	}

	v, n := binary.Uvarint(data[offset:])
	if n <= 0 {
		return 0, offset, false
	}

	return v, offset + n, true
}

// ZigZagEncode maps a signed residual to an unsigned value efficiently:
// non-negative v -> 2v, negative v -> 2|v|-1.
func ZigZagEncode(v int64) uint64 {
	return uint64((v << 1) ^ (v >> 63))
}

// ZigZagDecode reverses ZigZagEncode.
func ZigZagDecode(v uint64) int64 {
	return int64(v>>1) ^ -int64(v&1)
}

// PutVarintSigned zigzag-encodes v and writes it as a base-128 varint.
func PutVarintSigned(buf *pool.ByteBuffer, v int64) {
	PutUvarint(buf, ZigZagEncode(v))
}

// GetVarintSigned decodes a zigzag+varint-encoded signed value.
func GetVarintSigned(data []byte, offset int) (value int64, next int, ok bool) {
	u, next, ok := GetUvarint(data, offset)
	if !ok {
		return 0, offset, false
	}

	return ZigZagDecode(u), next, true
}

// byteLen returns the minimal number of bytes (0-8) needed to hold v.
func byteLen(v uint64) int {
	if v == 0 {
		return 0
	}

	return (bits.Len64(v) + 7) / 8
}

// PutPair encodes two unsigned values with one control byte: the low nibble
// holds the byte-length of a (0-8), the high nibble the byte-length of b
// (0-8); each value's significant bytes follow in little-endian order.
//
// This is the VByte pair coder used to emit two residuals at a time for
// timestamp and value columns.
func PutPair(buf *pool.ByteBuffer, a, b uint64) {
	la := byteLen(a)
	lb := byteLen(b)

	ctrl := len(buf.B)
	buf.ExtendOrGrow(1)
	buf.B[ctrl] = byte(la) | byte(lb<<4)

	appendLE(buf, a, la)
	appendLE(buf, b, lb)
}

func appendLE(buf *pool.ByteBuffer, v uint64, n int) {
	if n == 0 {
		return
	}

	idx := len(buf.B)
	buf.ExtendOrGrow(n)
	for i := 0; i < n; i++ {
		buf.B[idx+i] = byte(v >> (8 * i))
	}
}

// GetPair decodes a VByte-pair-coded (a, b) starting at offset.
func GetPair(data []byte, offset int) (a, b uint64, next int, ok bool) {
	if offset >= len(data) {
		return 0, 0, offset, false
	}

	ctrl := data[offset]
	la := int(ctrl & 0x0F)
	lb := int(ctrl >> 4)
	pos := offset + 1

	a, pos, ok = readLE(data, pos, la)
	if !ok {
		return 0, 0, offset, false
	}

	b, pos, ok = readLE(data, pos, lb)
	if !ok {
		return 0, 0, offset, false
	}

	return a, b, pos, true
}

func readLE(data []byte, pos, n int) (uint64, int, bool) {
	if n == 0 {
		return 0, pos, true
	}
	if pos+n > len(data) {
		return 0, pos, false
	}

	var v uint64
	for i := 0; i < n; i++ {
		v |= uint64(data[pos+i]) << (8 * i)
	}

	return v, pos + n, true
}

// sentinelByte marks a block-level alternate encoding: either the "all
// zero" shortcut (a lone sentinel byte) or a bit-packed block (sentinel
// followed by one width byte).
const sentinelByte = 0xFF

// PutResidualBlock encodes exactly BlockSize unsigned residuals, choosing
// among two representations:
//  1. Bit-packed: 0xFF sentinel, a width byte (0-64; 0 means "all zero",
//     the common case for perfectly regular timestamps), then the values
//     packed at that width. Chosen whenever it is no larger than the
//     VByte-pair encoding.
//  2. Default: 8 VByte-coded pairs (2 values per control byte).
func PutResidualBlock(buf *pool.ByteBuffer, residuals [BlockSize]uint64) {
	var maxV uint64
	for _, v := range residuals {
		if v > maxV {
			maxV = v
		}
	}

	width := bits.Len64(maxV)
	packedBytes := (width*BlockSize + 7) / 8
	if packedBytes+2 <= pairCodedSize(residuals) {
		idx := len(buf.B)
		buf.ExtendOrGrow(2)
		buf.B[idx] = sentinelByte
		buf.B[idx+1] = byte(width) // packDirLeading: no post-shift needed on decode
		packBits(buf, residuals[:], width)
		return
	}

	for i := 0; i < BlockSize; i += 2 {
		PutPair(buf, residuals[i], residuals[i+1])
	}
}

func pairCodedSize(residuals [BlockSize]uint64) int {
	total := 0
	for i := 0; i < BlockSize; i += 2 {
		total += 1 + byteLen(residuals[i]) + byteLen(residuals[i+1])
	}

	return total
}

// packBits writes len(values) entries of `width` bits each (width 0-64),
// LSB-first within each byte and across the value: a value's bit 0 lands
// in the lowest free bit of the current byte.
func packBits(buf *pool.ByteBuffer, values []uint64, width int) {
	if width == 0 {
		return
	}

	totalBits := width * len(values)
	totalBytes := (totalBits + 7) / 8
	idx := len(buf.B)
	buf.ExtendOrGrow(totalBytes)
	for i := idx; i < idx+totalBytes; i++ {
		buf.B[i] = 0
	}

	bitPos := 0
	for _, v := range values {
		for b := 0; b < width; b++ {
			if v&(1<<uint(b)) != 0 {
				bytePos := idx + bitPos/8
				buf.B[bytePos] |= 1 << uint(bitPos%8)
			}
			bitPos++
		}
	}
}

func unpackBits(data []byte, offset int, width, count int) (values []uint64, next int, ok bool) {
	if width == 0 {
		values = make([]uint64, count)
		return values, offset, true
	}

	totalBits := width * count
	totalBytes := (totalBits + 7) / 8
	if offset+totalBytes > len(data) {
		return nil, offset, false
	}

	values = make([]uint64, count)
	bitPos := 0
	for i := 0; i < count; i++ {
		var v uint64
		for b := 0; b < width; b++ {
			bytePos := offset + bitPos/8
			if data[bytePos]&(1<<uint(bitPos%8)) != 0 {
				v |= 1 << uint(b)
			}
			bitPos++
		}
		values[i] = v
	}

	return values, offset + totalBytes, true
}

// GetResidualBlock decodes exactly BlockSize residuals previously written
// by PutResidualBlock.
func GetResidualBlock(data []byte, offset int) (residuals [BlockSize]uint64, next int, ok bool) {
	if offset >= len(data) {
		return residuals, offset, false
	}

	if data[offset] != sentinelByte {
		pos := offset
		for i := 0; i < BlockSize; i += 2 {
			a, b, n, ok := GetPair(data, pos)
			if !ok {
				return residuals, offset, false
			}
			residuals[i] = a
			residuals[i+1] = b
			pos = n
		}

		return residuals, pos, true
	}

	// Sentinel-prefixed bit-packed block: width byte follows, 0 meaning
	// "all residuals zero".
	if offset+1 >= len(data) {
		return residuals, offset, false
	}

	width := int(data[offset+1] & 0x7F)
	if width == 0 {
		return residuals, offset + 2, true
	}

	values, next, ok := unpackBits(data, offset+2, width, BlockSize)
	if !ok {
		return residuals, offset, false
	}
	copy(residuals[:], values)

	return residuals, next, true
}

// PutRLERun encodes one (count, value) run for the id delta-RLE column.
func PutRLERun(buf *pool.ByteBuffer, count uint64, value int64) {
	PutUvarint(buf, count)
	PutVarintSigned(buf, value)
}

// GetRLERun decodes one (count, value) run.
func GetRLERun(data []byte, offset int) (count uint64, value int64, next int, ok bool) {
	count, next, ok = GetUvarint(data, offset)
	if !ok {
		return 0, 0, offset, false
	}

	value, next, ok = GetVarintSigned(data, next)
	if !ok {
		return 0, 0, offset, false
	}

	return count, value, next, true
}
