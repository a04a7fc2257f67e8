// Package page implements the fixed-size page engine: a byte-budgeted
// append region holding raw entries and compressed chunks,
// an index of (offset, paramId, timestamp) records used for range search,
// a running bounding box, and a reservoir-sampled histogram that narrows
// the binary search Search uses to find a timestamp's starting position.
//
// A Page never grows past the byte budget it was created with — once
// AddEntry/AddChunk/CompleteChunk can no longer fit what's asked of them,
// they return errs.ErrOverflow and leave the page exactly as it was.
// AddEntry also rejects a timestamp older than the page's last entry with
// errs.ErrBadArg: the index is always timestamp-ascending, which is what
// lets Search narrow with a binary search instead of a linear scan.
package page

import (
	"hash/crc32"
	"math/rand"
	"sort"
	"sync"

	"github.com/tsdbcore/akumu/chunk"
	"github.com/tsdbcore/akumu/compress"
	"github.com/tsdbcore/akumu/endian"
	"github.com/tsdbcore/akumu/errs"
	"github.com/tsdbcore/akumu/internal/pool"
)

// Reserved param ids marking the two anchor entries CompleteChunk writes
// around a compressed chunk: one keyed by the chunk's first timestamp
// (for backward scans), one by its last (for forward scans).
const (
	ChunkBwdID uint64 = ^uint64(0)
	ChunkFwdID uint64 = ^uint64(0) - 1
)

const (
	entryHeaderSize = 8 + 8 + 4 // paramId + timestamp + length
	indexOverhead   = 4         // simulated page_index slot cost per entry
	histogramCap    = 64
)

// BoundingBox tracks the min/max param id and timestamp seen by a page,
// letting Search reject a query range in O(1) before touching the index.
type BoundingBox struct {
	MinID       uint64
	MaxID       uint64
	MinTS       int64
	MaxTS       int64
	initialized bool
}

func (b *BoundingBox) update(paramID uint64, ts int64) {
	if !b.initialized {
		b.MinID, b.MaxID = paramID, paramID
		b.MinTS, b.MaxTS = ts, ts
		b.initialized = true
		return
	}
	if paramID < b.MinID {
		b.MinID = paramID
	}
	if paramID > b.MaxID {
		b.MaxID = paramID
	}
	if ts < b.MinTS {
		b.MinTS = ts
	}
	if ts > b.MaxTS {
		b.MaxTS = ts
	}
}

// Inside reports whether (paramID, ts) falls within the box.
func (b BoundingBox) Inside(paramID uint64, ts int64) bool {
	return b.initialized && ts >= b.MinTS && ts <= b.MaxTS && paramID >= b.MinID && paramID <= b.MaxID
}

// IndexRecord is one page_index entry: where an entry's bytes start, and
// the (paramId, timestamp) pair used to answer Search without re-reading
// the entry bytes for every candidate.
type IndexRecord struct {
	Offset    uint32
	ParamID   uint64
	Timestamp int64
}

// CompressedChunkDesc is the fixed-size descriptor stored as the payload
// of a chunk's two anchor entries, pointing at the chunk's own byte range.
type CompressedChunkDesc struct {
	ParamID   uint64
	Begin     uint32
	End       uint32
	FirstTS   int64
	LastTS    int64
	NElements uint32
	Checksum  uint32
}

const compressedChunkDescSize = 8 + 4 + 4 + 8 + 8 + 4 + 4

// Bytes serializes the descriptor with the page's endian engine.
func (d CompressedChunkDesc) Bytes(engine endian.EndianEngine) []byte {
	b := make([]byte, 0, compressedChunkDescSize)
	b = engine.AppendUint64(b, d.ParamID)
	b = engine.AppendUint32(b, d.Begin)
	b = engine.AppendUint32(b, d.End)
	b = engine.AppendUint64(b, uint64(d.FirstTS)) //nolint:gosec
	b = engine.AppendUint64(b, uint64(d.LastTS))  //nolint:gosec
	b = engine.AppendUint32(b, d.NElements)
	b = engine.AppendUint32(b, d.Checksum)

	return b
}

// ParseCompressedChunkDesc parses a descriptor previously produced by Bytes.
func ParseCompressedChunkDesc(engine endian.EndianEngine, data []byte) (CompressedChunkDesc, error) {
	if len(data) != compressedChunkDescSize {
		return CompressedChunkDesc{}, errs.ErrBadData
	}

	return CompressedChunkDesc{
		ParamID:   engine.Uint64(data[0:8]),
		Begin:     engine.Uint32(data[8:12]),
		End:       engine.Uint32(data[12:16]),
		FirstTS:   int64(engine.Uint64(data[16:24])), //nolint:gosec
		LastTS:    int64(engine.Uint64(data[24:32])), //nolint:gosec
		NElements: engine.Uint32(data[32:36]),
		Checksum:  engine.Uint32(data[36:40]),
	}, nil
}

// SearchStats counts how a page's Search calls were actually satisfied —
// owned per-Page rather than a process-wide singleton, so concurrent
// engines running in the same process never share counters.
type SearchStats struct {
	HistogramNarrows uint64
	BinarySearches   uint64
	ScanSteps        uint64
}

type histSample struct {
	Timestamp int64
	Index     uint32
}

// Direction selects which way Search walks matching entries.
type Direction int

const (
	Forward Direction = iota
	Backward
)

// Page is a fixed byte-budget append region for one series-independent
// shard of entries and compressed chunks.
type Page struct {
	mu sync.Mutex

	id       uint32
	capacity uint32
	used     uint32

	buf   []byte
	index []IndexRecord

	hasLast bool
	lastTS  int64

	bbox BoundingBox

	openCount        uint32
	closeCount       uint32
	syncCount        uint32
	checkpoint       uint32
	checkpointBufLen uint32

	histogram  []histSample
	sampleSeen int
	rng        *rand.Rand

	stats  SearchStats
	engine endian.EndianEngine
}

// New creates an empty Page with the given byte capacity budget.
func New(id uint32, capacity uint32) *Page {
	return &Page{
		id:       id,
		capacity: capacity,
		rng:      rand.New(rand.NewSource(int64(id))), //nolint:gosec
		engine:   endian.GetLittleEndianEngine(),
	}
}

// ID returns the page's id.
func (p *Page) ID() uint32 { return p.id }

// OpenCount returns how many times the page has been (re)opened via Reuse,
// used by callers to stamp a cache key's generation tag.
func (p *Page) OpenCount() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.openCount
}

func (p *Page) freeSpace() uint32 {
	if p.used >= p.capacity {
		return 0
	}

	return p.capacity - p.used
}

// FreeSpace returns the number of bytes still available for entries,
// chunks, and their index overhead.
func (p *Page) FreeSpace() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.freeSpace()
}

// EntriesCount returns the number of index records (raw entries plus
// chunk anchor entries) on the page.
func (p *Page) EntriesCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.index)
}

// BoundingBox returns a snapshot of the page's bounding box.
func (p *Page) BoundingBox() BoundingBox {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.bbox
}

// SearchStats returns a snapshot of the page's search counters.
func (p *Page) SearchStats() SearchStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.stats
}

// Reuse resets the page for a new generation, keeping its capacity and id.
func (p *Page) Reuse() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.buf = p.buf[:0]
	p.index = p.index[:0]
	p.used = 0
	p.hasLast = false
	p.lastTS = 0
	p.bbox = BoundingBox{}
	p.checkpoint = 0
	p.checkpointBufLen = 0
	p.syncCount = 0
	p.openCount++
	p.histogram = p.histogram[:0]
	p.sampleSeen = 0
	p.stats = SearchStats{}
}

// Close marks the page closed (bookkeeping only — the byte budget is
// owned by the caller, e.g. an on-disk file or an in-memory arena).
func (p *Page) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closeCount++
}

// Checkpoint marks the page's current entry count as a rollback point
// and returns it. Invariant: checkpoint ≤ count at all times.
func (p *Page) Checkpoint() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.checkpoint = uint32(len(p.index)) //nolint:gosec
	p.checkpointBufLen = uint32(len(p.buf)) //nolint:gosec

	return p.checkpoint
}

// Restore truncates the page back to its last Checkpoint, discarding any
// entries or chunks added since — count := checkpoint, per the page's
// invariant. Restoring with no prior Checkpoint call empties the page,
// since the mark starts at zero. Histogram samples pointing at discarded
// entries are dropped.
func (p *Page) Restore() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.index = p.index[:p.checkpoint]
	p.buf = p.buf[:p.checkpointBufLen]
	kept := p.histogram[:0]
	for _, s := range p.histogram {
		if int(s.Index) < len(p.index) {
			kept = append(kept, s)
		}
	}
	p.histogram = kept
	p.used = uint32(len(p.buf)) + indexOverhead*uint32(len(p.index)) //nolint:gosec

	p.bbox = BoundingBox{}
	for _, rec := range p.index {
		p.bbox.update(rec.ParamID, rec.Timestamp)
	}

	p.hasLast = len(p.index) > 0
	p.lastTS = 0
	if p.hasLast {
		p.lastTS = p.index[len(p.index)-1].Timestamp
	}
}

// AddEntry appends one raw (paramId, timestamp, value) entry. Returns
// errs.ErrBadArg for an empty value or a timestamp older than the page's
// last entry, and errs.ErrOverflow if the page cannot fit the entry — in
// all cases the page is left untouched.
func (p *Page) AddEntry(paramID uint64, ts int64, value []byte) error {
	if len(value) == 0 {
		return errs.ErrBadArg
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.hasLast && ts < p.lastTS {
		return errs.ErrBadArg
	}

	need := uint32(entryHeaderSize+len(value)+indexOverhead) //nolint:gosec
	if p.freeSpace() < need {
		return errs.ErrOverflow
	}

	offset := uint32(len(p.buf)) //nolint:gosec
	p.buf = p.engine.AppendUint64(p.buf, paramID)
	p.buf = p.engine.AppendUint64(p.buf, uint64(ts)) //nolint:gosec
	p.buf = p.engine.AppendUint32(p.buf, uint32(len(value))) //nolint:gosec
	p.buf = append(p.buf, value...)
	p.used += need

	p.index = append(p.index, IndexRecord{Offset: offset, ParamID: paramID, Timestamp: ts})
	p.bbox.update(paramID, ts)

	p.lastTS = ts
	p.hasLast = true

	p.sampleForHistogram(ts, uint32(len(p.index)-1)) //nolint:gosec
	p.syncCount++

	return nil
}

// AddChunk appends a pre-encoded byte blob (as produced by chunk.Writer.
// Encode) with no index record of its own — used internally by
// CompleteChunk. Returns the offset the bytes were written at.
func (p *Page) AddChunk(data []byte) (uint32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	need := uint32(len(data)) //nolint:gosec
	if p.freeSpace() < need {
		return 0, errs.ErrOverflow
	}

	offset := uint32(len(p.buf)) //nolint:gosec
	p.buf = append(p.buf, data...)
	p.used += need

	return offset, nil
}

// CompleteChunk encodes w's full buffered block and commits it to the
// page as one compressed chunk plus two anchor entries (keyed by the
// chunk's first and last timestamp, for backward/forward scans). If the
// page cannot fit the whole transaction, errs.ErrOverflow is returned and
// neither the page nor w is mutated — callers fall back to writing w's
// buffered samples as raw entries instead.
func (p *Page) CompleteChunk(w *chunk.Writer) error {
	if !w.Full() {
		return errs.ErrBadArg
	}

	data, firstTS, lastTS, err := w.Encode()
	if err != nil {
		return err
	}

	checksum := crc32.ChecksumIEEE(data)

	p.mu.Lock()
	reserve := uint32(2 * (entryHeaderSize + compressedChunkDescSize + indexOverhead)) //nolint:gosec
	fits := p.freeSpace() >= uint32(len(data))+reserve                                 //nolint:gosec
	p.mu.Unlock()
	if !fits {
		return errs.ErrOverflow
	}

	offset, err := p.AddChunk(data)
	if err != nil {
		return err
	}

	desc := CompressedChunkDesc{
		ParamID:   w.ParamID(),
		Begin:     offset,
		End:       offset + uint32(len(data)), //nolint:gosec
		FirstTS:   firstTS,
		LastTS:    lastTS,
		NElements: chunk.BlockSize,
		Checksum:  checksum,
	}
	descBytes := desc.Bytes(p.engine)

	if err := p.AddEntry(ChunkBwdID, firstTS, descBytes); err != nil {
		return err
	}
	if err := p.AddEntry(ChunkFwdID, lastTS, descBytes); err != nil {
		return err
	}

	w.MarkChunkWritten()
	w.Clear()

	return nil
}

// ReadEntryValue returns the value bytes of the entry at the given index
// record, without copying the backing array.
func (p *Page) ReadEntryValue(rec IndexRecord) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	length := p.engine.Uint32(p.buf[rec.Offset+16 : rec.Offset+20])
	start := rec.Offset + entryHeaderSize

	return p.buf[start : start+length]
}

// ReadChunkDesc decodes the CompressedChunkDesc carried by a chunk anchor
// entry (ParamID == ChunkFwdID or ChunkBwdID).
func (p *Page) ReadChunkDesc(rec IndexRecord) (CompressedChunkDesc, error) {
	return ParseCompressedChunkDesc(p.engine, p.ReadEntryValue(rec))
}

// ReadChunkBytes returns the raw compressed chunk bytes a descriptor points
// at, for decoding via chunk.Reader.
func (p *Page) ReadChunkBytes(desc CompressedChunkDesc) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.buf[desc.Begin:desc.End]
}

func (p *Page) sampleForHistogram(ts int64, index uint32) {
	sample := histSample{Timestamp: ts, Index: index}

	if len(p.histogram) < histogramCap {
		p.histogram = append(p.histogram, sample)
		sort.Slice(p.histogram, func(i, j int) bool { return p.histogram[i].Timestamp < p.histogram[j].Timestamp })
		p.sampleSeen++
		return
	}

	j := p.rng.Intn(p.sampleSeen + 1)
	if j < histogramCap {
		p.histogram[j] = sample
		sort.Slice(p.histogram, func(i, j int) bool { return p.histogram[i].Timestamp < p.histogram[j].Timestamp })
	}
	p.sampleSeen++
}

// narrowByHistogram returns the [lo, hi) index range that the sampled
// histogram cannot rule out as holding the first entry with timestamp >=
// key, falling back to the full index range when there are no samples yet.
func (p *Page) narrowByHistogram(key int64) (lo, hi int) {
	if len(p.histogram) == 0 {
		return 0, len(p.index)
	}

	n := sort.Search(len(p.histogram), func(i int) bool { return p.histogram[i].Timestamp >= key })

	lo = 0
	if n > 0 {
		lo = int(p.histogram[n-1].Index)
	}
	hi = len(p.index)
	if n < len(p.histogram) {
		hi = int(p.histogram[n].Index) + 1
	}
	if hi > len(p.index) {
		hi = len(p.index)
	}

	p.stats.HistogramNarrows++

	return lo, hi
}

// Search walks index records whose paramId satisfies match and whose
// timestamp falls in [lowTS, highTS], in the given direction, calling
// yield for each; it stops early if yield returns false. The page's
// bounding box lets a query outside the page's observed range return
// immediately; otherwise the histogram narrows the range a binary search
// runs over to find where lowTS starts, since AddEntry keeps the index
// timestamp-ascending at all times.
func (p *Page) Search(match func(paramID uint64) bool, lowTS, highTS int64, dir Direction, yield func(IndexRecord) bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.bbox.initialized && (highTS < p.bbox.MinTS || lowTS > p.bbox.MaxTS) {
		return
	}

	narrowLo, narrowHi := p.narrowByHistogram(lowTS)
	lo := sort.Search(narrowHi-narrowLo, func(i int) bool {
		return p.index[narrowLo+i].Timestamp >= lowTS
	}) + narrowLo
	hi := len(p.index)
	p.stats.BinarySearches++

	if dir == Forward {
		for i := lo; i < hi; i++ {
			p.stats.ScanSteps++
			rec := p.index[i]
			if rec.Timestamp > highTS {
				break
			}
			if !match(rec.ParamID) {
				continue
			}
			if !yield(rec) {
				return
			}
		}
		return
	}

	for i := hi - 1; i >= lo; i-- {
		p.stats.ScanSteps++
		rec := p.index[i]
		if rec.Timestamp < lowTS {
			break
		}
		if rec.Timestamp > highTS {
			continue
		}
		if !match(rec.ParamID) {
			continue
		}
		if !yield(rec) {
			return
		}
	}
}

// Snapshot serializes the page state (header fields, checkpoint marks,
// index, entry/chunk bytes, and histogram samples) to a byte slice a
// RestoreSnapshot call can reconstruct — used by Freeze/Thaw for cold
// storage. The histogram's reservoir counter and random source are not
// serialized; a restored page starts them afresh.
func (p *Page) Snapshot() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	buf := pool.GetSnapshotBuffer()
	defer pool.PutSnapshotBuffer(buf)

	e := p.engine
	b := buf.B
	b = e.AppendUint32(b, p.id)
	b = e.AppendUint32(b, p.capacity)
	b = e.AppendUint32(b, p.used)
	b = e.AppendUint32(b, p.openCount)
	b = e.AppendUint32(b, p.closeCount)
	b = e.AppendUint32(b, p.syncCount)
	b = e.AppendUint32(b, p.checkpoint)
	b = e.AppendUint32(b, p.checkpointBufLen)
	if p.hasLast {
		b = append(b, 1)
	} else {
		b = append(b, 0)
	}
	b = e.AppendUint64(b, uint64(p.lastTS)) //nolint:gosec

	b = e.AppendUint64(b, p.bbox.MinID)
	b = e.AppendUint64(b, p.bbox.MaxID)
	b = e.AppendUint64(b, uint64(p.bbox.MinTS)) //nolint:gosec
	b = e.AppendUint64(b, uint64(p.bbox.MaxTS)) //nolint:gosec
	if p.bbox.initialized {
		b = append(b, 1)
	} else {
		b = append(b, 0)
	}

	b = e.AppendUint32(b, uint32(len(p.index))) //nolint:gosec
	for _, rec := range p.index {
		b = e.AppendUint32(b, rec.Offset)
		b = e.AppendUint64(b, rec.ParamID)
		b = e.AppendUint64(b, uint64(rec.Timestamp)) //nolint:gosec
	}

	b = e.AppendUint32(b, uint32(len(p.histogram))) //nolint:gosec
	for _, s := range p.histogram {
		b = e.AppendUint64(b, uint64(s.Timestamp)) //nolint:gosec
		b = e.AppendUint32(b, s.Index)
	}

	b = e.AppendUint32(b, uint32(len(p.buf))) //nolint:gosec
	b = append(b, p.buf...)

	out := make([]byte, len(b))
	copy(out, b)

	return out
}

// RestoreSnapshot reconstructs page state previously produced by Snapshot.
func RestoreSnapshot(data []byte) (*Page, error) {
	e := endian.GetLittleEndianEngine()
	r := &reader{data: data, engine: e}

	p := &Page{engine: e}
	p.id = r.u32()
	p.capacity = r.u32()
	p.used = r.u32()
	p.openCount = r.u32()
	p.closeCount = r.u32()
	p.syncCount = r.u32()
	p.checkpoint = r.u32()
	p.checkpointBufLen = r.u32()
	p.hasLast = r.bool1()
	p.lastTS = int64(r.u64()) //nolint:gosec

	p.bbox.MinID = r.u64()
	p.bbox.MaxID = r.u64()
	p.bbox.MinTS = int64(r.u64()) //nolint:gosec
	p.bbox.MaxTS = int64(r.u64()) //nolint:gosec
	p.bbox.initialized = r.bool1()

	n := r.u32()
	p.index = make([]IndexRecord, n)
	for i := range p.index {
		p.index[i] = IndexRecord{Offset: r.u32(), ParamID: r.u64(), Timestamp: int64(r.u64())} //nolint:gosec
	}

	hn := r.u32()
	p.histogram = make([]histSample, hn)
	for i := range p.histogram {
		p.histogram[i] = histSample{Timestamp: int64(r.u64()), Index: r.u32()} //nolint:gosec
	}

	bn := r.u32()
	p.buf = make([]byte, bn)
	copy(p.buf, r.bytes(int(bn)))

	p.rng = rand.New(rand.NewSource(int64(p.id))) //nolint:gosec

	if r.err != nil {
		return nil, r.err
	}

	return p, nil
}

type reader struct {
	data   []byte
	pos    int
	engine endian.EndianEngine
	err    error
}

func (r *reader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if r.pos+n > len(r.data) {
		r.err = errs.ErrTruncated
		return false
	}

	return true
}

func (r *reader) u32() uint32 {
	if !r.need(4) {
		return 0
	}
	v := r.engine.Uint32(r.data[r.pos : r.pos+4])
	r.pos += 4

	return v
}

func (r *reader) u64() uint64 {
	if !r.need(8) {
		return 0
	}
	v := r.engine.Uint64(r.data[r.pos : r.pos+8])
	r.pos += 8

	return v
}

func (r *reader) bool1() bool {
	if !r.need(1) {
		return false
	}
	v := r.data[r.pos] == 1
	r.pos++

	return v
}

func (r *reader) bytes(n int) []byte {
	if !r.need(n) {
		return nil
	}
	v := r.data[r.pos : r.pos+n]
	r.pos += n

	return v
}

// Freeze cold-compresses the page's snapshot bytes with codec, for
// pages no longer accepting writes.
func (p *Page) Freeze(codec compress.Codec) ([]byte, error) {
	return codec.Compress(p.Snapshot())
}

// Thaw decompresses bytes produced by Freeze and restores the page.
func Thaw(codec compress.Codec, frozen []byte) (*Page, error) {
	raw, err := codec.Decompress(frozen)
	if err != nil {
		return nil, err
	}

	return RestoreSnapshot(raw)
}
