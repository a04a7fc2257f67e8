// Package chunk implements the column-oriented compressor for a fixed-size
// block of (paramId, timestamp, value) triples. Each block holds exactly
// BlockSize=16 elements and is encoded as three length-prefixed,
// independently-decodable columns:
//
//	[ id column   ]  delta-RLE + base-128 over 16 param ids
//	[ ts column   ]  absolute first value + a 16-wide delta residual block
//	[ value column]  FCM/DFCM-predicted XOR residuals, bit-packed
//
// A Writer buffers samples until it has a full block, then Encode produces
// the on-page byte layout; a Reader decodes that layout back into the
// original triples. Partial (< 16 element) runs are never compressed — the
// page engine falls back to writing them as raw entries once a Writer's
// buffer can't be flushed as a full block.
package chunk

import (
	"encoding/binary"
	"math"

	"github.com/tsdbcore/akumu/errs"
	"github.com/tsdbcore/akumu/internal/bitstream"
	"github.com/tsdbcore/akumu/internal/pool"
	"github.com/tsdbcore/akumu/internal/predictor"
)

// BlockSize is the fixed number of elements a compressed chunk holds.
const BlockSize = bitstream.BlockSize

// HeaderSize is the size in bytes of a Writer's bookkeeping Header.
const HeaderSize = 14

// Header is the 14-byte bookkeeping record for one series' chunk stream:
// how many full compressed blocks have been written, how many raw tail
// samples follow them, and which series (param id) this stream belongs to.
type Header struct {
	Version        uint16
	NChunksWritten uint16
	NTail          uint16
	ParamID        uint64
}

// Bytes serializes the header using little-endian fixed-width fields.
func (h Header) Bytes() []byte {
	b := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint16(b[0:2], h.Version)
	binary.LittleEndian.PutUint16(b[2:4], h.NChunksWritten)
	binary.LittleEndian.PutUint16(b[4:6], h.NTail)
	binary.LittleEndian.PutUint64(b[6:14], h.ParamID)

	return b
}

// ParseHeader parses a Header previously produced by Header.Bytes.
func ParseHeader(data []byte) (Header, error) {
	if len(data) != HeaderSize {
		return Header{}, errs.ErrBadArg
	}

	return Header{
		Version:        binary.LittleEndian.Uint16(data[0:2]),
		NChunksWritten: binary.LittleEndian.Uint16(data[2:4]),
		NTail:          binary.LittleEndian.Uint16(data[4:6]),
		ParamID:        binary.LittleEndian.Uint64(data[6:14]),
	}, nil
}

// Writer buffers up to BlockSize (ts, value) samples for a single series
// and encodes them as one compressed on-page chunk once full.
type Writer struct {
	header Header
	ts     [BlockSize]int64
	val    [BlockSize]float64
	n      int
}

// NewWriter creates a Writer for the given series id.
func NewWriter(paramID uint64) *Writer {
	return &Writer{header: Header{Version: 1, ParamID: paramID}}
}

// Add buffers one sample. Returns false if the buffer is already full —
// the caller must Encode (or fall back to a raw tail write) and Clear
// before adding more.
func (w *Writer) Add(ts int64, value float64) bool {
	if w.n >= BlockSize {
		return false
	}

	w.ts[w.n] = ts
	w.val[w.n] = value
	w.n++

	return true
}

// Full reports whether the buffer holds a complete BlockSize-element block.
func (w *Writer) Full() bool { return w.n == BlockSize }

// Len returns the number of samples currently buffered (0..BlockSize).
func (w *Writer) Len() int { return w.n }

// Timestamps returns a view of the currently buffered timestamps, for tail
// fallback writers that need to emit them as raw page entries.
func (w *Writer) Timestamps() []int64 { return w.ts[:w.n] }

// Values returns a view of the currently buffered values.
func (w *Writer) Values() []float64 { return w.val[:w.n] }

// ParamID returns the series id this writer accumulates for.
func (w *Writer) ParamID() uint64 { return w.header.ParamID }

// Clear empties the buffer without touching the header counters. Callers
// update NChunksWritten/NTail themselves via MarkChunkWritten/MarkTailWritten
// after deciding how the buffered samples were committed.
func (w *Writer) Clear() { w.n = 0 }

// MarkChunkWritten records that the buffered block was committed as one
// compressed on-page chunk.
func (w *Writer) MarkChunkWritten() { w.header.NChunksWritten++ }

// MarkTailWritten records that n buffered samples were committed as raw
// (uncompressed) page entries instead.
func (w *Writer) MarkTailWritten(n int) { w.header.NTail += uint16(n) }

// HeaderSnapshot returns a snapshot of the writer's bookkeeping counters.
func (w *Writer) HeaderSnapshot() Header { return w.header }

// Encode compresses the full buffered block (Full() must be true) into the
// three-section id/timestamp/value on-page layout. It does not clear
// the buffer or mutate writer state — the caller decides whether the
// result fits on the page before committing via Clear.
func (w *Writer) Encode() (data []byte, firstTS, lastTS int64, err error) {
	if !w.Full() {
		return nil, 0, 0, errs.ErrBadArg
	}

	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)

	ids := [BlockSize]uint64{}
	for i := range ids {
		ids[i] = w.header.ParamID
	}

	idBytes := encodeIDColumn(ids)
	tsBytes := encodeTSColumn(w.ts)
	valBytes := encodeValueColumn(w.val)

	buf.Grow(8 + len(idBytes) + len(tsBytes) + len(valBytes) + 8)
	appendSection(buf, idBytes)
	appendSection(buf, tsBytes)
	appendValuePayload(buf, valBytes)

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())

	return out, w.ts[0], w.ts[BlockSize-1], nil
}

func appendSection(buf *pool.ByteBuffer, section []byte) {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(section))) //nolint:gosec
	buf.MustWrite(lenBuf[:])
	buf.MustWrite(section)
}

func appendValuePayload(buf *pool.ByteBuffer, valBytes []byte) {
	var hdr [8]byte
	binary.LittleEndian.PutUint32(hdr[0:4], 1)          // ncolumns
	binary.LittleEndian.PutUint32(hdr[4:8], BlockSize) // nvalues
	buf.MustWrite(hdr[:])
	buf.MustWrite(valBytes)
}

// Reader decodes compressed on-page chunks. It is stateless and safe to
// reuse across chunks.
type Reader struct{}

// NewReader returns a stateless chunk Reader.
func NewReader() Reader { return Reader{} }

// Decode parses one on-page compressed chunk (as produced by Writer.Encode)
// back into its BlockSize ids, timestamps, and values.
func (Reader) Decode(data []byte) (ids [BlockSize]uint64, timestamps [BlockSize]int64, values [BlockSize]float64, err error) {
	pos := 0

	idSection, pos, ok := readSection(data, pos)
	if !ok {
		return ids, timestamps, values, errs.ErrBadData
	}
	ids, ok = decodeIDColumn(idSection)
	if !ok {
		return ids, timestamps, values, errs.ErrBadData
	}

	tsSection, pos, ok := readSection(data, pos)
	if !ok {
		return ids, timestamps, values, errs.ErrBadData
	}
	timestamps, ok = decodeTSColumn(tsSection)
	if !ok {
		return ids, timestamps, values, errs.ErrBadData
	}

	if pos+8 > len(data) {
		return ids, timestamps, values, errs.ErrBadData
	}
	ncolumns := binary.LittleEndian.Uint32(data[pos : pos+4])
	nvalues := binary.LittleEndian.Uint32(data[pos+4 : pos+8])
	pos += 8
	if ncolumns != 1 || nvalues != BlockSize {
		return ids, timestamps, values, errs.ErrBadData
	}

	values, ok = decodeValueColumn(data[pos:])
	if !ok {
		return ids, timestamps, values, errs.ErrBadData
	}

	return ids, timestamps, values, nil
}

func readSection(data []byte, pos int) ([]byte, int, bool) {
	if pos+4 > len(data) {
		return nil, pos, false
	}
	n := int(binary.LittleEndian.Uint32(data[pos : pos+4]))
	pos += 4
	if n < 0 || pos+n > len(data) {
		return nil, pos, false
	}

	return data[pos : pos+n], pos + n, true
}

// --- id column: delta-RLE + base-128 ---

func encodeIDColumn(ids [BlockSize]uint64) []byte {
	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)

	bitstream.PutUvarint(buf, ids[0])

	runValue := int64(0)
	runCount := uint64(0)
	for i := 1; i < BlockSize; i++ {
		delta := int64(ids[i]) - int64(ids[i-1]) //nolint:gosec
		if runCount > 0 && delta == runValue {
			runCount++
			continue
		}
		if runCount > 0 {
			bitstream.PutRLERun(buf, runCount, runValue)
		}
		runValue = delta
		runCount = 1
	}
	if runCount > 0 {
		bitstream.PutRLERun(buf, runCount, runValue)
	}

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())

	return out
}

func decodeIDColumn(data []byte) (ids [BlockSize]uint64, ok bool) {
	first, pos, ok := bitstream.GetUvarint(data, 0)
	if !ok {
		return ids, false
	}
	ids[0] = first

	filled := 1
	prev := int64(first) //nolint:gosec
	for filled < BlockSize {
		count, delta, next, ok := bitstream.GetRLERun(data, pos)
		if !ok {
			return ids, false
		}
		pos = next
		for i := uint64(0); i < count && filled < BlockSize; i++ {
			prev += delta
			ids[filled] = uint64(prev) //nolint:gosec
			filled++
		}
	}

	return ids, true
}

// --- timestamp column: absolute first value + 16-wide delta residual block ---

func encodeTSColumn(ts [BlockSize]int64) []byte {
	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)

	bitstream.PutUvarint(buf, uint64(ts[0])) //nolint:gosec

	var residuals [BlockSize]uint64
	for i := 1; i < BlockSize; i++ {
		residuals[i] = uint64(ts[i] - ts[i-1]) //nolint:gosec
	}
	bitstream.PutResidualBlock(buf, residuals)

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())

	return out
}

func decodeTSColumn(data []byte) (ts [BlockSize]int64, ok bool) {
	first, pos, ok := bitstream.GetUvarint(data, 0)
	if !ok {
		return ts, false
	}
	ts[0] = int64(first) //nolint:gosec

	residuals, _, ok := bitstream.GetResidualBlock(data, pos)
	if !ok {
		return ts, false
	}

	prev := ts[0]
	for i := 1; i < BlockSize; i++ {
		prev += int64(residuals[i]) //nolint:gosec
		ts[i] = prev
	}

	return ts, true
}

// --- value column: FCM/DFCM XOR residual, bit-packed ---

const (
	predictorFCM  byte = 0
	predictorDFCM byte = 1
)

func encodeValueColumn(values [BlockSize]float64) []byte {
	fcm := predictor.NewFCM()
	dfcm := predictor.NewDFCM()

	var fcmResid, dfcmResid [BlockSize]uint64
	var fcmMax, dfcmMax uint64
	for i, v := range values {
		bitsV := math.Float64bits(v)

		fr := fcm.Predict() ^ bitsV
		fcm.Update(bitsV)
		fcmResid[i] = fr
		if fr > fcmMax {
			fcmMax = fr
		}

		dr := dfcm.Predict() ^ bitsV
		dfcm.Update(bitsV)
		dfcmResid[i] = dr
		if dr > dfcmMax {
			dfcmMax = dr
		}
	}

	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)

	if fcmMax <= dfcmMax {
		idx := len(buf.B)
		buf.ExtendOrGrow(1)
		buf.B[idx] = predictorFCM
		bitstream.PutResidualBlock(buf, fcmResid)
	} else {
		idx := len(buf.B)
		buf.ExtendOrGrow(1)
		buf.B[idx] = predictorDFCM
		bitstream.PutResidualBlock(buf, dfcmResid)
	}

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())

	return out
}

func decodeValueColumn(data []byte) (values [BlockSize]float64, ok bool) {
	if len(data) < 1 {
		return values, false
	}

	selector := data[0]
	residuals, _, ok := bitstream.GetResidualBlock(data, 1)
	if !ok {
		return values, false
	}

	switch selector {
	case predictorFCM:
		fcm := predictor.NewFCM()
		for i, r := range residuals {
			predicted := fcm.Predict()
			bitsV := predicted ^ r
			fcm.Update(bitsV)
			values[i] = math.Float64frombits(bitsV)
		}
	case predictorDFCM:
		dfcm := predictor.NewDFCM()
		for i, r := range residuals {
			predicted := dfcm.Predict()
			bitsV := predicted ^ r
			dfcm.Update(bitsV)
			values[i] = math.Float64frombits(bitsV)
		}
	default:
		return values, false
	}

	return values, true
}
