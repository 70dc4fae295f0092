package layout

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Compression identifies the per-chunk filter applied to chunked datasets.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionZstd
)

// String returns the compression name.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

// Package-level zstd coders, reused across chunks. EncodeAll/DecodeAll on
// shared coders is the concurrency-safe usage for buffer-to-buffer work.
var (
	zstdEncoder, _ = zstd.NewWriter(nil)
	zstdDecoder, _ = zstd.NewReader(nil)
)

// compressChunk applies the filter to a raw chunk.
func compressChunk(c Compression, raw []byte) ([]byte, error) {
	switch c {
	case CompressionNone:
		return raw, nil
	case CompressionZstd:
		return zstdEncoder.EncodeAll(raw, nil), nil
	default:
		return nil, fmt.Errorf("unsupported compression %d", uint8(c))
	}
}

// decompressChunk reverses the filter, checking the expected raw size.
func decompressChunk(c Compression, stored []byte, rawSize int) ([]byte, error) {
	switch c {
	case CompressionNone:
		if len(stored) != rawSize {
			return nil, fmt.Errorf("chunk is %d bytes, expected %d", len(stored), rawSize)
		}
		return stored, nil
	case CompressionZstd:
		raw, err := zstdDecoder.DecodeAll(stored, make([]byte, 0, rawSize))
		if err != nil {
			return nil, fmt.Errorf("zstd decode: %w", err)
		}
		if len(raw) != rawSize {
			return nil, fmt.Errorf("chunk decoded to %d bytes, expected %d", len(raw), rawSize)
		}
		return raw, nil
	default:
		return nil, fmt.Errorf("unsupported compression %d", uint8(c))
	}
}
