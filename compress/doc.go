// Package compress provides the cold-storage compression codecs page.Freeze
// and page.Thaw apply to a page's serialized Snapshot.
//
// # Overview
//
// A page's on-page entries and chunks are already encoded by the chunk
// package's delta-delta/VByte and FCM/DFCM schemes before they ever reach
// this package. Compress implements a second, independent stage: once a
// page stops accepting writes, Freeze runs a Codec over the page's whole
// serialized snapshot (index plus entry/chunk bytes) to shrink it for
// cold storage, and Thaw reverses it. Supported algorithms:
//   - None: no compression (fastest, largest)
//   - Zstd: best compression ratio, moderate speed
//   - S2: balanced compression and speed
//   - LZ4: fast decompression, moderate compression
//
// # Architecture
//
// The package defines three core interfaces:
//
//	type Compressor interface {
//	    Compress(data []byte) ([]byte, error)
//	}
//
//	type Decompressor interface {
//	    Decompress(data []byte) ([]byte, error)
//	}
//
//	type Codec interface {
//	    Compressor
//	    Decompressor
//	}
//
// # Supported Algorithms
//
// **NoOp** (format.CompressionNone)
//
//	codec := compress.NewNoOpCompressor()
//	compressed, _ := codec.Compress(data)    // returned unchanged
//	original, _ := codec.Decompress(compressed)
//
// Use when the data is already well-compressed by the chunk encoding, or
// CPU matters more than the bytes a frozen page occupies.
//
// **Zstandard** (format.CompressionZstd)
//
//	codec := compress.NewZstdCompressor()
//	compressed, _ := codec.Compress(data)    // best compression ratio
//	original, _ := codec.Decompress(compressed)
//
// Best compression ratio of the four, moderate throughput. This is the
// default codec session.New wires into Freeze/Thaw for retired pages,
// where storage footprint matters more than freeze latency.
//
// **S2** (format.CompressionS2)
//
//	codec := compress.NewS2Compressor()
//	compressed, _ := codec.Compress(data)    // fast, good ratio
//	original, _ := codec.Decompress(compressed)
//
// Balances ratio and speed; a reasonable choice when pages are frozen
// often enough that Zstd's extra CPU cost adds up.
//
// **LZ4** (format.CompressionLZ4)
//
//	codec := compress.NewLZ4Compressor()
//	compressed, _ := codec.Compress(data)    // very fast decompression
//	original, _ := codec.Decompress(compressed)
//
// Favors decompression speed over ratio — the better choice if Thaw is
// on a query's hot path rather than a background archival job.
//
// # Choosing a codec
//
// | Workload                       | Recommended |
// |---------------------------------|-------------|
// | Archival / rarely-read pages    | Zstd        |
// | Frequent freeze/thaw cycles     | S2          |
// | Thaw latency-sensitive queries  | LZ4         |
// | CPU-constrained, space is cheap | None        |
//
// # Memory Management
//
// Compress and Decompress allocate their output slice per call; none of
// the codecs draw from internal/pool. ZstdCompressor reuses its zstd
// encoders and decoders, and LZ4Compressor its block compressor, through
// a sync.Pool.
//
// # Thread Safety
//
// Codec implementations are safe for concurrent use by multiple
// goroutines, matching page.Page's own locking (Freeze/Thaw don't assume
// exclusive access to the codec).
package compress
