// Package session implements the external database-facing interface:
// Write/Query/Suggest/Search plus the id<->name conversion helpers, wiring
// together the series matcher, page engine, and decoded-chunk cache behind
// one façade, the way a top-level package wraps its lower-level storage
// packages.
package session

import (
	"bytes"
	"errors"
	"math"
	"sync"

	"github.com/tsdbcore/akumu/cache"
	"github.com/tsdbcore/akumu/chunk"
	"github.com/tsdbcore/akumu/compress"
	"github.com/tsdbcore/akumu/endian"
	"github.com/tsdbcore/akumu/errs"
	"github.com/tsdbcore/akumu/format"
	"github.com/tsdbcore/akumu/internal/options"
	"github.com/tsdbcore/akumu/internal/pool"
	"github.com/tsdbcore/akumu/page"
	"github.com/tsdbcore/akumu/query"
	"github.com/tsdbcore/akumu/series"
)

// defaultPageCapacity and defaultCacheLimit are the config values New uses
// when a caller supplies no Option to override them.
const (
	defaultPageCapacity = 4 << 20
	defaultCacheLimit   = 64 << 20
)

// config holds the values Options mutate before New builds a Session.
type config struct {
	pageCapacity   uint32
	cacheLimit     int64
	startingSeries uint64
	codec          compress.Codec
}

// Option configures a Session at construction time.
type Option = options.Option[*config]

// WithPageCapacity sets the byte size of each rotated write page.
func WithPageCapacity(n uint32) Option {
	return options.New(func(c *config) error {
		if n == 0 {
			return errs.ErrBadArg
		}
		c.pageCapacity = n

		return nil
	})
}

// WithCacheLimit bounds the decoded-chunk cache's resident byte size.
func WithCacheLimit(n int64) Option {
	return options.New(func(c *config) error {
		if n < 0 {
			return errs.ErrBadArg
		}
		c.cacheLimit = n

		return nil
	})
}

// WithStartingSeriesID sets the first external id SeriesToParamID assigns.
// It must be nonzero (0 is reserved to mean "not found").
func WithStartingSeriesID(id uint64) Option {
	return options.New(func(c *config) error {
		if id == 0 {
			return errs.ErrBadArg
		}
		c.startingSeries = id

		return nil
	})
}

// WithCodec sets the codec used to compress frozen (cold-storage) pages.
func WithCodec(codec compress.Codec) Option {
	return options.NoError(func(c *config) {
		c.codec = codec
	})
}

// WithCompressionType is a convenience over WithCodec: it selects one of
// the built-in codecs by its wire-level compression tag rather than
// requiring the caller to construct one.
func WithCompressionType(t format.CompressionType) Option {
	return options.New(func(c *config) error {
		codec, err := compress.CreateCodec(t, "session cold storage")
		if err != nil {
			return err
		}
		c.codec = codec

		return nil
	})
}

// Status is the result code Write returns: a small value on the hot ingest
// path is cheaper to check than an allocated error for the common cases.
type Status int

const (
	StatusOK Status = iota
	StatusBadArg
	StatusBadData
	StatusOverflow
)

// Sample is one (series, timestamp, value) ingest/query unit.
type Sample struct {
	ParamID   uint64
	Timestamp int64
	Value     float64
}

// NoData is the in-band backpressure sentinel a live Cursor's Next
// returns when a query has caught up to a still-open page's tail — it is
// not a failure, callers are expected to poll again.
var NoData = errors.New("akumu: no data")

// Done signals a non-live cursor has no further samples.
var Done = errors.New("akumu: cursor exhausted")

// Session ties the series matcher, the active write page, and the
// decoded-chunk cache together behind a single Write/Query/Suggest/Search
// facade.
type Session struct {
	mu sync.Mutex

	matcher *series.SeriesMatcher
	cache   *cache.Cache
	codec   compress.Codec

	pageCapacity uint32
	nextPageID   uint32
	pages        []*page.Page
	active       *page.Page
	frozen       map[uint32]frozenPage

	writers map[uint64]*chunk.Writer

	engine endian.EndianEngine
}

// frozenPage is a cold-compressed page snapshot plus the sizes needed to
// report CompressionStats for it without re-decompressing.
type frozenPage struct {
	data         []byte
	originalSize int64
}

// New creates a Session with one active write page, a decoded-chunk
// cache, and an external series id space, all configurable via opts.
// Unset values default to a 4MiB page, a 64MiB cache, series ids
// starting at 1, and a zstd codec for cold storage.
func New(opts ...Option) (*Session, error) {
	cfg := &config{
		pageCapacity:   defaultPageCapacity,
		cacheLimit:     defaultCacheLimit,
		startingSeries: 1,
		codec:          compress.NewZstdCompressor(),
	}
	if err := options.Apply(cfg, opts...); err != nil {
		return nil, err
	}

	matcher, err := series.New(cfg.startingSeries)
	if err != nil {
		return nil, err
	}

	s := &Session{
		matcher:      matcher,
		cache:        cache.New(cfg.cacheLimit),
		codec:        cfg.codec,
		pageCapacity: cfg.pageCapacity,
		frozen:       make(map[uint32]frozenPage),
		writers:      make(map[uint64]*chunk.Writer),
		engine:       endian.GetLittleEndianEngine(),
	}
	s.rotatePageLocked()

	return s, nil
}

// rotatePageLocked closes the active page, freezes it into cold storage
// with the session's codec, and opens a fresh one in its place. A page
// whose compression fails gets no FrozenPage/ThawPage entry but stays
// queryable in memory like any other retired page.
func (s *Session) rotatePageLocked() {
	if s.active != nil {
		s.active.Close()
		snapshot := s.active.Snapshot()
		if compressed, err := s.codec.Compress(snapshot); err == nil {
			s.frozen[s.active.ID()] = frozenPage{
				data:         compressed,
				originalSize: int64(len(snapshot)),
			}
		}
	}
	p := page.New(s.nextPageID, s.pageCapacity)
	s.nextPageID++
	s.pages = append(s.pages, p)
	s.active = p
}

// SeriesToParamID canonicalizes raw and resolves it to its external id,
// assigning a new one if raw has never been written or queried before.
func (s *Session) SeriesToParamID(raw []byte) (Sample, error) {
	id, err := s.matcher.Add(raw)
	if err != nil {
		return Sample{}, err
	}

	return Sample{ParamID: id}, nil
}

// ParamIDToSeries writes id's canonical name into buf, returning the
// number of bytes written. If buf is too small, it writes nothing and
// returns the negated number of bytes the caller needs to retry with.
func (s *Session) ParamIDToSeries(id uint64, buf []byte) (int, error) {
	name, ok := s.matcher.IDToStr(id)
	if !ok {
		return 0, errs.ErrNotFound
	}
	if len(name) > len(buf) {
		return -len(name), nil //nolint:gosec
	}

	return copy(buf, name), nil
}

// NameToParamIDList splits raw on ':' into series names, resolving (and
// registering, if new) each to an external id written into ids. If ids
// is too small to hold every resolved id, nothing is written and the
// negated required length is returned.
func (s *Session) NameToParamIDList(raw []byte, ids []uint64) (int, error) {
	parts := bytes.Split(raw, []byte(":"))
	if len(parts) > len(ids) {
		return -len(parts), nil //nolint:gosec
	}

	for i, part := range parts {
		id, err := s.matcher.Add(part)
		if err != nil {
			return 0, err
		}
		ids[i] = id
	}

	return len(parts), nil
}

// Write buffers one sample for its series, committing a compressed chunk
// to the active page every time the series' writer accumulates a full
// block.
func (s *Session) Write(sample Sample) Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.writers[sample.ParamID]
	if !ok {
		w = chunk.NewWriter(sample.ParamID)
		s.writers[sample.ParamID] = w
	}

	if !w.Add(sample.Timestamp, sample.Value) {
		return StatusBadArg
	}

	if !w.Full() {
		return StatusOK
	}

	if err := s.active.CompleteChunk(w); err != nil {
		if errors.Is(err, errs.ErrOverflow) {
			s.rotatePageLocked()
			if err := s.active.CompleteChunk(w); err != nil {
				return StatusOverflow
			}
			return StatusOK
		}

		return StatusBadData
	}

	return StatusOK
}

// Flush commits any samples buffered for paramID that didn't fill a full
// chunk block, writing them as raw page entries instead.
func (s *Session) Flush(paramID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.writers[paramID]
	if !ok || w.Len() == 0 {
		return nil
	}

	n := w.Len()
	timestamps, putTimestamps := pool.GetInt64Slice(n)
	defer putTimestamps()
	values, putValues := pool.GetFloat64Slice(n)
	defer putValues()
	copy(timestamps, w.Timestamps())
	copy(values, w.Values())

	for i := 0; i < n; i++ {
		buf := make([]byte, 8)
		s.engine.PutUint64(buf, math.Float64bits(values[i]))
		if err := s.active.AddEntry(paramID, timestamps[i], buf); err != nil {
			if errors.Is(err, errs.ErrOverflow) {
				s.rotatePageLocked()
				if err := s.active.AddEntry(paramID, timestamps[i], buf); err != nil {
					return err
				}
				continue
			}

			return err
		}
	}

	w.MarkTailWritten(n)
	w.Clear()

	return nil
}

// Cursor iterates Samples produced by Query/Search in timestamp order
// (the scan direction Search/Query were constructed with).
//
// Live cursors only come from Query (Search always scans backward over a
// fixed range and never polls): once every rotated-out page has been
// scanned in full, further polls rescan only the current tail page,
// advancing a timestamp watermark so no sample is ever emitted twice.
type Cursor struct {
	session *Session
	ids     map[uint64]bool
	lowTS   int64
	highTS  int64
	dir     page.Direction
	live    bool

	scannedPages int
	watermark    int64

	buf []Sample
	pos int
}

// Next returns the next matching sample. For a non-live cursor, it
// returns Done once every page has been scanned. For a live cursor, it
// returns NoData once it has caught up to the tail page's last write,
// signalling the caller should poll again rather than treat the scan as
// finished.
func (c *Cursor) Next() (Sample, error) {
	for {
		if c.pos < len(c.buf) {
			s := c.buf[c.pos]
			c.pos++

			return s, nil
		}

		c.buf, c.pos = c.session.refillCursor(c), 0
		if len(c.buf) > 0 {
			continue
		}
		if c.live {
			return Sample{}, NoData
		}

		return Sample{}, Done
	}
}

// refillCursor scans every page not yet fully consumed by c. All but the
// last known page are scanned exactly once each, in full; the last page
// is rescanned from c.watermark onward every time, since live writers can
// still be appending to it.
func (s *Session) refillCursor(c *Cursor) []Sample {
	s.mu.Lock()
	pages := append([]*page.Page(nil), s.pages...)
	s.mu.Unlock()

	if len(pages) == 0 {
		return nil
	}

	var out []Sample
	for i := c.scannedPages; i < len(pages)-1; i++ {
		out = append(out, s.scanPage(pages[i], c.ids, c.lowTS, c.highTS, c.dir)...)
	}
	c.scannedPages = len(pages) - 1

	tail := pages[len(pages)-1]
	lo := c.lowTS
	if c.watermark != 0 {
		lo = c.watermark
	}
	tailSamples := s.scanPage(tail, c.ids, lo, c.highTS, c.dir)
	out = append(out, tailSamples...)

	for _, sample := range tailSamples {
		if sample.Timestamp+1 > c.watermark {
			c.watermark = sample.Timestamp + 1
		}
	}

	return out
}

func (s *Session) scanPage(p *page.Page, ids map[uint64]bool, lowTS, highTS int64, dir page.Direction) []Sample {
	anchor := page.ChunkFwdID
	if dir == page.Backward {
		anchor = page.ChunkBwdID
	}

	var out []Sample
	p.Search(func(uint64) bool { return true }, lowTS, highTS, dir, func(rec page.IndexRecord) bool {
		switch rec.ParamID {
		case page.ChunkFwdID, page.ChunkBwdID:
			if rec.ParamID != anchor {
				return true
			}
			for _, sample := range s.decodeChunk(p, rec) {
				if !ids[sample.ParamID] {
					continue
				}
				if sample.Timestamp < lowTS || sample.Timestamp > highTS {
					continue
				}
				out = append(out, sample)
			}

			return true
		default:
			if !ids[rec.ParamID] {
				return true
			}
			value := math.Float64frombits(s.engine.Uint64(p.ReadEntryValue(rec)))
			out = append(out, Sample{ParamID: rec.ParamID, Timestamp: rec.Timestamp, Value: value})

			return true
		}
	})

	return out
}

func (s *Session) decodeChunk(p *page.Page, rec page.IndexRecord) []Sample {
	desc, err := p.ReadChunkDesc(rec)
	if err != nil {
		return nil
	}

	key := cache.NewKey(uint64(p.ID()), p.OpenCount(), desc.Begin)
	decoded, ok := s.cache.Get(key)
	if !ok {
		reader := chunk.NewReader()
		ids, timestamps, values, err := reader.Decode(p.ReadChunkBytes(desc))
		if err != nil {
			return nil
		}
		decoded = &cache.Chunk{
			IDs:        append([]uint64(nil), ids[:]...),
			Timestamps: append([]int64(nil), timestamps[:]...),
			Values:     append([]float64(nil), values[:]...),
		}
		s.cache.Put(key, decoded)
	}

	out := make([]Sample, len(decoded.IDs))
	for i := range decoded.IDs {
		out[i] = Sample{ParamID: decoded.IDs[i], Timestamp: decoded.Timestamps[i], Value: decoded.Values[i]}
	}

	return out
}

// Query runs q against the series index, then scans every page forward
// for matches in [lowTS, highTS]. live marks the cursor as continuing to
// poll the still-open active page: once caught up it returns NoData
// rather than terminating with Done.
func (s *Session) Query(q query.Query, lowTS, highTS int64, live bool) (*Cursor, error) {
	return s.buildCursor(q, lowTS, highTS, page.Forward, live)
}

// Search is Query's backward-scanning counterpart. Backward cursors never
// poll a still-open tail for new data the way a live forward cursor does,
// so the returned cursor is never live and always terminates with Done.
func (s *Session) Search(q query.Query, lowTS, highTS int64) (*Cursor, error) {
	return s.buildCursor(q, lowTS, highTS, page.Backward, false)
}

func (s *Session) buildCursor(q query.Query, lowTS, highTS int64, dir page.Direction, live bool) (*Cursor, error) {
	matches, err := s.matcher.Search(q)
	if err != nil {
		return nil, err
	}

	ids := make(map[uint64]bool, len(matches))
	for _, m := range matches {
		ids[m.ID] = true
	}

	return &Cursor{session: s, ids: ids, lowTS: lowTS, highTS: highTS, dir: dir, live: live}, nil
}

// Suggest answers a topology enumeration request: given a metric prefix,
// returns matching metrics; given a metric and tag prefix, returns
// matching tags; given a metric, tag, and value prefix, returns matching
// values.
func (s *Session) Suggest(metric, tag, prefix string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case metric == "":
		return s.matcher.SuggestMetric(prefix)
	case tag == "":
		return s.matcher.SuggestTags(metric, prefix)
	default:
		return s.matcher.SuggestTagValues(metric, tag, prefix)
	}
}

// FrozenPage returns the cold-compressed bytes rotatePageLocked produced
// for pageID when that page was retired from active writing. ok is false
// for the still-active page or an id the session has never seen.
func (s *Session) FrozenPage(pageID uint32) (data []byte, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fp, ok := s.frozen[pageID]

	return fp.data, ok
}

// ThawPage decompresses and restores a page previously frozen by
// rotatePageLocked, using the session's codec.
func (s *Session) ThawPage(pageID uint32) (*page.Page, error) {
	s.mu.Lock()
	fp, ok := s.frozen[pageID]
	s.mu.Unlock()

	if !ok {
		return nil, errs.ErrNotFound
	}

	raw, err := s.codec.Decompress(fp.data)
	if err != nil {
		return nil, err
	}

	return page.RestoreSnapshot(raw)
}

// FrozenStats reports the compression ratio and space savings rotatePageLocked
// achieved for pageID's cold-compressed snapshot.
func (s *Session) FrozenStats(pageID uint32) (compress.CompressionStats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fp, ok := s.frozen[pageID]
	if !ok {
		return compress.CompressionStats{}, false
	}

	return compress.CompressionStats{
		OriginalSize:   fp.originalSize,
		CompressedSize: int64(len(fp.data)),
	}, true
}
