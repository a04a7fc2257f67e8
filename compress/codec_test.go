package compress

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tsdbcore/akumu/format"
)

func TestCompressionTypeString(t *testing.T) {
	tests := []struct {
		cType    format.CompressionType
		expected string
	}{
		{format.CompressionNone, "None"},
		{format.CompressionZstd, "Zstd"},
		{format.CompressionS2, "S2"},
		{format.CompressionLZ4, "LZ4"},
		{format.CompressionType(0xFF), "Unknown"},
	}

	for _, tt := range tests {
		require.Equal(t, tt.expected, tt.cType.String())
	}
}

func TestCompressionStatsCalculations(t *testing.T) {
	tests := []struct {
		name            string
		stats           CompressionStats
		expectedRatio   float64
		expectedSavings float64
	}{
		{
			name:            "good compression",
			stats:           CompressionStats{OriginalSize: 1000, CompressedSize: 300},
			expectedRatio:   0.3,
			expectedSavings: 70.0,
		},
		{
			name:            "no compression benefit",
			stats:           CompressionStats{OriginalSize: 500, CompressedSize: 500},
			expectedRatio:   1.0,
			expectedSavings: 0.0,
		},
		{
			name:            "compression overhead",
			stats:           CompressionStats{OriginalSize: 100, CompressedSize: 120},
			expectedRatio:   1.2,
			expectedSavings: -20.0,
		},
		{
			name:            "zero original size",
			stats:           CompressionStats{OriginalSize: 0, CompressedSize: 100},
			expectedRatio:   0.0,
			expectedSavings: 100.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.InDelta(t, tt.expectedRatio, tt.stats.CompressionRatio(), 0.001)
			require.InDelta(t, tt.expectedSavings, tt.stats.SpaceSavings(), 0.001)
		})
	}
}

func TestCreateCodecAndGetCodecAgree(t *testing.T) {
	for _, algo := range []format.CompressionType{
		format.CompressionNone, format.CompressionZstd, format.CompressionS2, format.CompressionLZ4,
	} {
		created, err := CreateCodec(algo, "page freeze")
		require.NoError(t, err)
		require.NotNil(t, created)

		got, err := GetCodec(algo)
		require.NoError(t, err)
		require.NotNil(t, got)
	}

	_, err := CreateCodec(format.CompressionType(0xFF), "page freeze")
	require.Error(t, err)

	_, err = GetCodec(format.CompressionType(0xFF))
	require.Error(t, err)
}

func TestNoOpCompressorEmptyData(t *testing.T) {
	compressor := NewNoOpCompressor()

	compressed, err := compressor.Compress(nil)
	require.NoError(t, err)
	require.Nil(t, compressed)

	empty := []byte{}
	compressed, err = compressor.Compress(empty)
	require.NoError(t, err)
	require.Equal(t, empty, compressed)
}

func TestNoOpCompressorRoundTrip(t *testing.T) {
	compressor := NewNoOpCompressor()

	data := []byte("a serialized page snapshot")
	compressed, err := compressor.Compress(data)
	require.NoError(t, err)
	require.Equal(t, data, compressed)
	require.Same(t, &data[0], &compressed[0])

	decompressed, err := compressor.Decompress(compressed)
	require.NoError(t, err)
	require.Equal(t, data, decompressed)
}

func TestNoOpCompressorInterfaceCompliance(t *testing.T) {
	compressor := NewNoOpCompressor()

	var _ Compressor = compressor
	var _ Decompressor = compressor
	var _ Codec = compressor
}

// getAllCodecs returns every built-in codec, keyed by name, for table-driven
// round-trip coverage.
func getAllCodecs() map[string]Codec {
	return map[string]Codec{
		"NoOp": NewNoOpCompressor(),
		"LZ4":  NewLZ4Compressor(),
		"S2":   NewS2Compressor(),
		"Zstd": NewZstdCompressor(),
	}
}

func TestAllCodecsEmptyData(t *testing.T) {
	for name, codec := range getAllCodecs() {
		t.Run(name, func(t *testing.T) {
			compressed, err := codec.Compress(nil)
			require.NoError(t, err)
			require.Nil(t, compressed)

			decompressed, err := codec.Decompress(nil)
			require.NoError(t, err)
			require.Nil(t, decompressed)
		})
	}
}

func TestAllCodecsRoundTrip(t *testing.T) {
	testCases := []struct {
		name string
		data []byte
	}{
		{name: "small_text", data: []byte("page index record")},
		{name: "repeated_pattern", data: bytes.Repeat([]byte("ABCD"), 100)},
		{name: "binary_data", data: []byte{0x00, 0x01, 0x02, 0x03, 0xFF, 0xFE, 0xFD, 0xFC}},
		{name: "chunk_sized_payload", data: bytes.Repeat([]byte("ts=1234567890 value=3.14159"), 256)},
		{name: "highly_compressible", data: make([]byte, 256*1024)},
	}

	for codecName, codec := range getAllCodecs() {
		t.Run(codecName, func(t *testing.T) {
			for _, tc := range testCases {
				t.Run(tc.name, func(t *testing.T) {
					compressed, err := codec.Compress(tc.data)
					require.NoError(t, err)
					require.NotNil(t, compressed)

					decompressed, err := codec.Decompress(compressed)
					require.NoError(t, err)
					require.Equal(t, tc.data, decompressed)
				})
			}
		})
	}
}

func TestAllCodecsInvalidData(t *testing.T) {
	invalidInputs := []struct {
		name string
		data []byte
	}{
		{name: "random_bytes", data: []byte{0xFF, 0xFF, 0xFF, 0xFF}},
		{name: "text_as_compressed", data: []byte("this is not compressed data")},
		{name: "corrupted_header", data: []byte{0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07}},
	}

	for codecName, codec := range getAllCodecs() {
		t.Run(codecName, func(t *testing.T) {
			if codecName == "NoOp" {
				t.Skip("NoOp codec doesn't validate data")
				return
			}

			for _, input := range invalidInputs {
				t.Run(input.name, func(t *testing.T) {
					_, err := codec.Decompress(input.data)
					require.Error(t, err)
				})
			}
		})
	}
}

func TestAllCodecsConcurrentUsage(t *testing.T) {
	const numGoroutines = 20
	testData := []byte("concurrent freeze of a retired page snapshot")

	for codecName, codec := range getAllCodecs() {
		t.Run(codecName, func(t *testing.T) {
			compressed, err := codec.Compress(testData)
			require.NoError(t, err)

			done := make(chan error, numGoroutines*2)
			for i := 0; i < numGoroutines; i++ {
				go func() {
					_, err := codec.Compress(testData)
					done <- err
				}()
				go func() {
					decompressed, err := codec.Decompress(compressed)
					if err == nil && !bytes.Equal(testData, decompressed) {
						err = fmt.Errorf("decompressed data mismatch")
					}
					done <- err
				}()
			}

			for range numGoroutines * 2 {
				require.NoError(t, <-done)
			}
		})
	}
}

func TestAllCodecsInterfaceCompliance(t *testing.T) {
	for name, codec := range getAllCodecs() {
		t.Run(name, func(t *testing.T) {
			var _ Codec = codec
			require.NotNil(t, codec)
		})
	}
}

func TestAllCodecsLargeExpansionRatio(t *testing.T) {
	original := make([]byte, 1024*1024)

	for codecName, codec := range getAllCodecs() {
		t.Run(codecName, func(t *testing.T) {
			compressed, err := codec.Compress(original)
			require.NoError(t, err)
			require.NotNil(t, compressed)

			if codecName == "NoOp" {
				require.Equal(t, len(original), len(compressed))
			} else {
				require.Less(t, len(compressed), len(original)/10)
			}

			decompressed, err := codec.Decompress(compressed)
			require.NoError(t, err)
			require.Equal(t, original, decompressed)
		})
	}
}
