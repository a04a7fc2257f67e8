package page

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tsdbcore/akumu/chunk"
	"github.com/tsdbcore/akumu/compress"
	"github.com/tsdbcore/akumu/errs"
)

func TestAddEntryRoundTrip(t *testing.T) {
	p := New(1, 4096)

	require.NoError(t, p.AddEntry(10, 100, []byte("alpha")))
	require.NoError(t, p.AddEntry(20, 200, []byte("beta")))

	require.Equal(t, 2, p.EntriesCount())

	var got []string
	p.Search(func(uint64) bool { return true }, 0, 1000, Forward, func(rec IndexRecord) bool {
		got = append(got, string(p.ReadEntryValue(rec)))
		return true
	})
	require.Equal(t, []string{"alpha", "beta"}, got)
}

func TestAddEntryRejectsEmptyValue(t *testing.T) {
	p := New(1, 4096)
	err := p.AddEntry(1, 1, nil)
	require.ErrorIs(t, err, errs.ErrBadArg)
}

func TestAddEntryOverflowLeavesPageUntouched(t *testing.T) {
	p := New(1, 64)

	require.NoError(t, p.AddEntry(1, 1, []byte("0123456789012345678901234567890123456789")))
	before := p.EntriesCount()
	beforeFree := p.FreeSpace()

	err := p.AddEntry(2, 2, []byte("0123456789012345678901234567890123456789"))
	require.ErrorIs(t, err, errs.ErrOverflow)
	require.Equal(t, before, p.EntriesCount())
	require.Equal(t, beforeFree, p.FreeSpace())
}

func TestBoundingBoxTracksExtremes(t *testing.T) {
	p := New(1, 4096)
	require.NoError(t, p.AddEntry(5, 50, []byte("a")))
	require.NoError(t, p.AddEntry(1, 100, []byte("b")))
	require.NoError(t, p.AddEntry(9, 300, []byte("c")))

	bbox := p.BoundingBox()
	require.Equal(t, uint64(1), bbox.MinID)
	require.Equal(t, uint64(9), bbox.MaxID)
	require.Equal(t, int64(50), bbox.MinTS)
	require.Equal(t, int64(300), bbox.MaxTS)
}

func TestAddEntryRejectsTimestampRegression(t *testing.T) {
	p := New(1, 4096)
	require.NoError(t, p.AddEntry(1, 100, []byte("a")))

	err := p.AddEntry(2, 99, []byte("b"))
	require.ErrorIs(t, err, errs.ErrBadArg)
	require.Equal(t, 1, p.EntriesCount())

	require.NoError(t, p.AddEntry(3, 100, []byte("c")))
}

func TestSearchRejectsOutOfRangeQuery(t *testing.T) {
	p := New(1, 4096)
	require.NoError(t, p.AddEntry(1, 100, []byte("a")))
	require.NoError(t, p.AddEntry(1, 200, []byte("b")))

	var hits int
	p.Search(func(uint64) bool { return true }, 1000, 2000, Forward, func(IndexRecord) bool {
		hits++
		return true
	})
	require.Zero(t, hits)
}

func TestSearchFiltersByParamAndBackward(t *testing.T) {
	p := New(1, 4096)
	require.NoError(t, p.AddEntry(1, 100, []byte("a1")))
	require.NoError(t, p.AddEntry(2, 150, []byte("b1")))
	require.NoError(t, p.AddEntry(1, 200, []byte("a2")))
	require.NoError(t, p.AddEntry(2, 250, []byte("b2")))

	var got []string
	p.Search(func(id uint64) bool { return id == 1 }, 0, 1000, Backward, func(rec IndexRecord) bool {
		got = append(got, string(p.ReadEntryValue(rec)))
		return true
	})
	require.Equal(t, []string{"a2", "a1"}, got)
}

func TestCompleteChunkWritesAnchorsAndIsDecodable(t *testing.T) {
	p := New(1, 1<<20)
	w := chunk.NewWriter(42)
	for i := 0; i < chunk.BlockSize; i++ {
		require.True(t, w.Add(int64(1000+i*10), float64(i)*1.5))
	}
	require.True(t, w.Full())

	require.NoError(t, p.CompleteChunk(w))
	require.Equal(t, 0, w.Len())
	require.Equal(t, 2, p.EntriesCount())

	var descs []CompressedChunkDesc
	p.Search(func(id uint64) bool { return id == ChunkFwdID || id == ChunkBwdID }, 0, 1<<40, Forward, func(rec IndexRecord) bool {
		desc, err := p.ReadChunkDesc(rec)
		require.NoError(t, err)
		descs = append(descs, desc)
		return true
	})
	require.Len(t, descs, 2)

	reader := chunk.NewReader()
	chunkBytes := p.ReadChunkBytes(descs[0])
	_, timestamps, values, err := reader.Decode(chunkBytes)
	require.NoError(t, err)
	require.Equal(t, int64(1000), timestamps[0])
	require.InDelta(t, 0.0, values[0], 1e-9)
	require.InDelta(t, 1.5*15, values[15], 1e-9)
}

func TestCompleteChunkRequiresFullWriter(t *testing.T) {
	p := New(1, 1<<20)
	w := chunk.NewWriter(1)
	w.Add(1, 1.0)

	err := p.CompleteChunk(w)
	require.ErrorIs(t, err, errs.ErrBadArg)
}

func TestCompleteChunkOverflowDoesNotMutateWriter(t *testing.T) {
	p := New(1, 32)
	w := chunk.NewWriter(1)
	for i := 0; i < chunk.BlockSize; i++ {
		w.Add(int64(i), float64(i))
	}
	require.True(t, w.Full())

	err := p.CompleteChunk(w)
	require.ErrorIs(t, err, errs.ErrOverflow)
	require.True(t, w.Full())
	require.Equal(t, chunk.BlockSize, w.Len())
}

func TestReuseResetsState(t *testing.T) {
	p := New(1, 4096)
	require.NoError(t, p.AddEntry(1, 1, []byte("a")))
	p.Reuse()

	require.Equal(t, 0, p.EntriesCount())
	bbox := p.BoundingBox()
	require.False(t, bbox.initialized)
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	p := New(7, 4096)
	require.NoError(t, p.AddEntry(1, 100, []byte("alpha")))
	require.NoError(t, p.AddEntry(2, 200, []byte("beta")))

	snap := p.Snapshot()
	restored, err := RestoreSnapshot(snap)
	require.NoError(t, err)

	require.Equal(t, p.ID(), restored.ID())
	require.Equal(t, p.EntriesCount(), restored.EntriesCount())
	require.Equal(t, p.BoundingBox(), restored.BoundingBox())

	var got []string
	restored.Search(func(uint64) bool { return true }, 0, 1000, Forward, func(rec IndexRecord) bool {
		got = append(got, string(restored.ReadEntryValue(rec)))
		return true
	})
	require.Equal(t, []string{"alpha", "beta"}, got)
}

func TestCheckpointRestoreTruncatesToMark(t *testing.T) {
	p := New(1, 4096)
	require.NoError(t, p.AddEntry(1, 100, []byte("alpha")))

	mark := p.Checkpoint()
	require.Equal(t, uint32(1), mark)

	require.NoError(t, p.AddEntry(2, 200, []byte("beta")))
	require.NoError(t, p.AddEntry(3, 300, []byte("gamma")))
	require.Equal(t, 3, p.EntriesCount())

	p.Restore()
	require.Equal(t, 1, p.EntriesCount())

	var got []string
	p.Search(func(uint64) bool { return true }, 0, 1000, Forward, func(rec IndexRecord) bool {
		got = append(got, string(p.ReadEntryValue(rec)))
		return true
	})
	require.Equal(t, []string{"alpha"}, got)

	bbox := p.BoundingBox()
	require.Equal(t, uint64(1), bbox.MaxID)
}

func TestFreezeThawRoundTrip(t *testing.T) {
	p := New(3, 4096)
	require.NoError(t, p.AddEntry(1, 100, []byte("alpha")))

	codec := compress.NewZstdCompressor()
	frozen, err := p.Freeze(codec)
	require.NoError(t, err)

	thawed, err := Thaw(codec, frozen)
	require.NoError(t, err)
	require.Equal(t, p.EntriesCount(), thawed.EntriesCount())
}
