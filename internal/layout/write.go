package layout

import (
	"fmt"

	"github.com/trellis-data/trellis/internal/alloc"
	"github.com/trellis-data/trellis/internal/binary"
)

// WriteChunked splits data (row-major, shaped dims) into a chunk grid,
// compresses each chunk, writes the chunks and the chunk index through the
// allocator, and returns the index block's address.
func WriteChunked(w *binary.Writer, a *alloc.Allocator, data []byte, dims, chunkDims []uint64, elemSize uint64, compression Compression) (uint64, error) {
	if len(chunkDims) != len(dims) {
		return 0, fmt.Errorf("chunk rank %d, dataset rank %d", len(chunkDims), len(dims))
	}
	for d, cd := range chunkDims {
		if cd == 0 {
			return 0, fmt.Errorf("chunk dimension %d is zero", d)
		}
	}

	grid := chunkGrid(dims, chunkDims)
	total := uint64(1)
	for _, g := range grid {
		total *= g
	}

	entries := make([]ChunkEntry, 0, total)
	for idx := uint64(0); idx < total; idx++ {
		offset := chunkCoords(idx, dims, chunkDims)
		actual := clippedDims(offset, dims, chunkDims)

		raw, err := extractHyperslab(data, dims, offset, actual, elemSize)
		if err != nil {
			return 0, fmt.Errorf("extracting chunk %d: %w", idx, err)
		}
		stored, err := compressChunk(compression, raw)
		if err != nil {
			return 0, fmt.Errorf("encoding chunk %d: %w", idx, err)
		}

		addr := a.Alloc(uint64(len(stored)))
		if err := w.At(int64(addr)).WriteBytes(stored); err != nil {
			return 0, fmt.Errorf("writing chunk %d: %w", idx, err)
		}
		entries = append(entries, ChunkEntry{Address: addr, Stored: uint64(len(stored))})
	}

	enc := binary.NewEncoder()
	enc.PutUint32(uint32(len(entries)))
	for _, e := range entries {
		enc.PutUint64(e.Address)
		enc.PutUint64(e.Stored)
	}

	indexAddr := a.Alloc(uint64(binary.BlockSize(enc.Len())))
	if _, err := w.At(int64(indexAddr)).WriteBlock(chunkIndexSig, chunkIndexVersion, enc.Bytes()); err != nil {
		return 0, fmt.Errorf("writing chunk index: %w", err)
	}
	return indexAddr, nil
}

// WriteContiguous writes data as a single block through the allocator and
// returns its address.
func WriteContiguous(w *binary.Writer, a *alloc.Allocator, data []byte) (uint64, error) {
	addr := a.Alloc(uint64(len(data)))
	if err := w.At(int64(addr)).WriteBytes(data); err != nil {
		return 0, fmt.Errorf("writing contiguous data: %w", err)
	}
	return addr, nil
}
