package layout

import (
	"fmt"

	"github.com/trellis-data/trellis/internal/binary"
)

// Chunk index block framing.
const (
	chunkIndexSig     = "CIDX"
	chunkIndexVersion = 1
)

// ChunkEntry locates one stored chunk.
type ChunkEntry struct {
	Address uint64 // file offset of the stored (possibly compressed) bytes
	Stored  uint64 // stored byte length
}

// Chunked reads a dataset stored as a grid of independently compressed
// chunks. Edge chunks are clipped: each chunk stores exactly its in-bounds
// region, so a chunk's raw size is the product of its clipped dimensions.
type Chunked struct {
	dims        []uint64
	chunkDims   []uint64
	elemSize    uint64
	compression Compression
	entries     []ChunkEntry
	reader      *binary.Reader
}

// NewChunked creates a chunked layout handler, reading the chunk index
// block at indexAddr.
func NewChunked(reader *binary.Reader, indexAddr uint64, dims, chunkDims []uint64, elemSize uint64, compression Compression) (*Chunked, error) {
	body, err := reader.At(int64(indexAddr)).ReadBlock(chunkIndexSig, chunkIndexVersion)
	if err != nil {
		return nil, fmt.Errorf("reading chunk index: %w", err)
	}

	dec := binary.NewDecoder(body)
	n := int(dec.Uint32())
	if dec.Err() != nil {
		return nil, dec.Err()
	}
	entries := make([]ChunkEntry, 0, n)
	for i := 0; i < n; i++ {
		entries = append(entries, ChunkEntry{
			Address: dec.Uint64(),
			Stored:  dec.Uint64(),
		})
	}
	if err := dec.Err(); err != nil {
		return nil, err
	}

	c := &Chunked{
		dims:        dims,
		chunkDims:   chunkDims,
		elemSize:    elemSize,
		compression: compression,
		entries:     entries,
		reader:      reader,
	}
	if want := c.numChunks(); uint64(n) != want {
		return nil, fmt.Errorf("chunk index has %d entries, grid needs %d", n, want)
	}
	return c, nil
}

func (c *Chunked) Class() Class {
	return ClassChunked
}

// chunkGrid returns the number of chunks along each dimension.
func chunkGrid(dims, chunkDims []uint64) []uint64 {
	grid := make([]uint64, len(dims))
	for d := range dims {
		grid[d] = (dims[d] + chunkDims[d] - 1) / chunkDims[d]
	}
	return grid
}

func (c *Chunked) numChunks() uint64 {
	total := uint64(1)
	for _, g := range chunkGrid(c.dims, c.chunkDims) {
		total *= g
	}
	return total
}

// chunkCoords converts a linear chunk index to the chunk's starting
// coordinates in the dataset, row-major over the chunk grid.
func chunkCoords(idx uint64, dims, chunkDims []uint64) []uint64 {
	grid := chunkGrid(dims, chunkDims)
	ndims := len(dims)
	coords := make([]uint64, ndims)
	remaining := idx
	for d := ndims - 1; d >= 0; d-- {
		coords[d] = (remaining % grid[d]) * chunkDims[d]
		remaining /= grid[d]
	}
	return coords
}

// clippedDims returns the in-bounds dimensions of the chunk starting at
// offset. Edge chunks are smaller than chunkDims.
func clippedDims(offset, dims, chunkDims []uint64) []uint64 {
	actual := make([]uint64, len(dims))
	for d := range dims {
		actual[d] = chunkDims[d]
		if offset[d]+actual[d] > dims[d] {
			actual[d] = dims[d] - offset[d]
		}
	}
	return actual
}

// readChunk reads and decompresses the chunk with the given linear index.
func (c *Chunked) readChunk(idx uint64) ([]byte, []uint64, []uint64, error) {
	entry := c.entries[idx]
	offset := chunkCoords(idx, c.dims, c.chunkDims)
	actual := clippedDims(offset, c.dims, c.chunkDims)

	stored, err := c.reader.At(int64(entry.Address)).ReadBytes(int(entry.Stored))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("reading chunk %d: %w", idx, err)
	}

	rawSize := int(dataSize(actual, c.elemSize))
	raw, err := decompressChunk(c.compression, stored, rawSize)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("decoding chunk %d: %w", idx, err)
	}
	return raw, offset, actual, nil
}

// Read reads the full dataset, assembling it chunk by chunk.
func (c *Chunked) Read() ([]byte, error) {
	output := make([]byte, dataSize(c.dims, c.elemSize))
	for idx := uint64(0); idx < uint64(len(c.entries)); idx++ {
		raw, offset, actual, err := c.readChunk(idx)
		if err != nil {
			return nil, err
		}
		if err := copyRegion(output, c.dims, offset, raw, actual, c.elemSize); err != nil {
			return nil, fmt.Errorf("placing chunk %d: %w", idx, err)
		}
	}
	return output, nil
}

// ReadSlice reads a hyperslab, touching only the chunks that overlap the
// selection.
func (c *Chunked) ReadSlice(start, count []uint64) ([]byte, error) {
	if err := checkSelection(c.dims, start, count); err != nil {
		return nil, err
	}

	ndims := len(c.dims)
	totalElements := uint64(1)
	for _, cnt := range count {
		totalElements *= cnt
	}
	output := make([]byte, totalElements*c.elemSize)
	if totalElements == 0 {
		return output, nil
	}

	selEnd := make([]uint64, ndims)
	for d := 0; d < ndims; d++ {
		selEnd[d] = start[d] + count[d]
	}

	for idx := uint64(0); idx < uint64(len(c.entries)); idx++ {
		offset := chunkCoords(idx, c.dims, c.chunkDims)
		actual := clippedDims(offset, c.dims, c.chunkDims)

		overlaps := true
		for d := 0; d < ndims; d++ {
			if offset[d]+actual[d] <= start[d] || offset[d] >= selEnd[d] {
				overlaps = false
				break
			}
		}
		if !overlaps {
			continue
		}

		raw, _, _, err := c.readChunk(idx)
		if err != nil {
			return nil, err
		}
		if err := copyOverlap(output, start, count, raw, offset, actual, c.elemSize); err != nil {
			return nil, fmt.Errorf("placing chunk %d: %w", idx, err)
		}
	}

	return output, nil
}

// copyRegion copies a chunk's raw data (shaped srcDims, positioned at
// offset) into the full dst array (shaped dstDims).
func copyRegion(dst []byte, dstDims, offset []uint64, src []byte, srcDims []uint64, elemSize uint64) error {
	// Treat the destination as a selection starting at offset with the
	// chunk's clipped dimensions and copy run by run.
	ndims := len(dstDims)
	dstStrides := rowMajorStrides(dstDims, elemSize)
	srcStrides := rowMajorStrides(srcDims, elemSize)

	runBytes := srcDims[ndims-1] * elemSize
	cursor := make([]uint64, ndims)

	for {
		dstOff := uint64(0)
		srcOff := uint64(0)
		for d := 0; d < ndims; d++ {
			dstOff += (offset[d] + cursor[d]) * dstStrides[d]
			srcOff += cursor[d] * srcStrides[d]
		}
		if dstOff+runBytes > uint64(len(dst)) || srcOff+runBytes > uint64(len(src)) {
			return fmt.Errorf("chunk run overflows buffer")
		}
		copy(dst[dstOff:dstOff+runBytes], src[srcOff:srcOff+runBytes])

		d := ndims - 2
		for ; d >= 0; d-- {
			cursor[d]++
			if cursor[d] < srcDims[d] {
				break
			}
			cursor[d] = 0
		}
		if d < 0 {
			return nil
		}
	}
}

// copyOverlap copies the intersection of a chunk and a selection into the
// selection-shaped output buffer.
func copyOverlap(out []byte, selStart, selCount []uint64, src []byte, chunkOffset, chunkDims []uint64, elemSize uint64) error {
	ndims := len(selStart)

	ovStart := make([]uint64, ndims)
	ovEnd := make([]uint64, ndims)
	for d := 0; d < ndims; d++ {
		ovStart[d] = max64(selStart[d], chunkOffset[d])
		ovEnd[d] = min64(selStart[d]+selCount[d], chunkOffset[d]+chunkDims[d])
		if ovEnd[d] <= ovStart[d] {
			return nil
		}
	}

	outStrides := rowMajorStrides(selCount, elemSize)
	srcStrides := rowMajorStrides(chunkDims, elemSize)

	runBytes := (ovEnd[ndims-1] - ovStart[ndims-1]) * elemSize
	cursor := make([]uint64, ndims) // dataset coordinates within the overlap
	copy(cursor, ovStart)

	for {
		outOff := uint64(0)
		srcOff := uint64(0)
		for d := 0; d < ndims; d++ {
			outOff += (cursor[d] - selStart[d]) * outStrides[d]
			srcOff += (cursor[d] - chunkOffset[d]) * srcStrides[d]
		}
		if outOff+runBytes > uint64(len(out)) || srcOff+runBytes > uint64(len(src)) {
			return fmt.Errorf("overlap run overflows buffer")
		}
		copy(out[outOff:outOff+runBytes], src[srcOff:srcOff+runBytes])

		d := ndims - 2
		for ; d >= 0; d-- {
			cursor[d]++
			if cursor[d] < ovEnd[d] {
				break
			}
			cursor[d] = ovStart[d]
		}
		if d < 0 {
			return nil
		}
	}
}

func rowMajorStrides(dims []uint64, elemSize uint64) []uint64 {
	ndims := len(dims)
	strides := make([]uint64, ndims)
	strides[ndims-1] = elemSize
	for d := ndims - 2; d >= 0; d-- {
		strides[d] = strides[d+1] * dims[d+1]
	}
	return strides
}

func max64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
