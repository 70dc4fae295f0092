// Package layout provides storage layout handlers for trellis dataset data.
//
// A Layout abstracts where a dataset's raw bytes live (in memory before
// commit, contiguous in the container, chunked with optional compression,
// or in external files) and supports whole reads and hyperslab reads.
package layout

import (
	"errors"
	"fmt"
)

// ErrOutOfBounds is returned when a hyperslab selection exceeds the
// dataset's dimensions.
var ErrOutOfBounds = errors.New("selection out of bounds")

// Class identifies the storage layout of a dataset.
type Class uint8

const (
	ClassContiguous Class = iota + 1
	ClassChunked
	ClassExternal
)

// String returns the class name.
func (c Class) String() string {
	switch c {
	case ClassContiguous:
		return "contiguous"
	case ClassChunked:
		return "chunked"
	case ClassExternal:
		return "external"
	default:
		return fmt.Sprintf("class(%d)", uint8(c))
	}
}

// Layout is the interface for reading dataset data from storage.
type Layout interface {
	// Read reads all data in row-major order.
	Read() ([]byte, error)

	// ReadSlice reads a hyperslab (rectangular selection). start gives the
	// starting coordinates, count the element count per dimension. The
	// result is the selected region's bytes in row-major order.
	ReadSlice(start, count []uint64) ([]byte, error)

	// Class returns the layout class.
	Class() Class
}

// dataSize returns the total byte size of a dims-shaped array of
// elemSize-byte elements.
func dataSize(dims []uint64, elemSize uint64) uint64 {
	total := elemSize
	for _, d := range dims {
		total *= d
	}
	return total
}

// checkSelection validates a hyperslab selection against dims.
func checkSelection(dims, start, count []uint64) error {
	if len(start) != len(dims) || len(count) != len(dims) {
		return fmt.Errorf("%w: selection rank %d/%d, dataset rank %d",
			ErrOutOfBounds, len(start), len(count), len(dims))
	}
	for d := range dims {
		if start[d]+count[d] > dims[d] {
			return fmt.Errorf("%w: dimension %d, start=%d count=%d size=%d",
				ErrOutOfBounds, d, start[d], count[d], dims[d])
		}
	}
	return nil
}

// byteSource reads length bytes at an absolute byte offset within a
// dataset's row-major representation.
type byteSource func(offset uint64, dst []byte) error

// readHyperslab materializes a hyperslab by fetching one innermost-
// dimension run at a time from src. Runs along the innermost dimension are
// contiguous in row-major order, so each fetch is a single ranged read.
func readHyperslab(src byteSource, dims, start, count []uint64, elemSize uint64) ([]byte, error) {
	if err := checkSelection(dims, start, count); err != nil {
		return nil, err
	}

	ndims := len(dims)
	totalElements := uint64(1)
	for _, c := range count {
		totalElements *= c
	}
	out := make([]byte, totalElements*elemSize)
	if totalElements == 0 {
		return out, nil
	}

	// Row-major strides in bytes for the source array.
	srcStrides := make([]uint64, ndims)
	srcStrides[ndims-1] = elemSize
	for d := ndims - 2; d >= 0; d-- {
		srcStrides[d] = srcStrides[d+1] * dims[d+1]
	}

	runBytes := count[ndims-1] * elemSize
	cursor := make([]uint64, ndims) // selection-relative coordinates, innermost fixed at 0
	dstOff := uint64(0)

	for {
		srcOff := uint64(0)
		for d := 0; d < ndims; d++ {
			srcOff += (start[d] + cursor[d]) * srcStrides[d]
		}
		if err := src(srcOff, out[dstOff:dstOff+runBytes]); err != nil {
			return nil, err
		}
		dstOff += runBytes

		// Advance the cursor across all dimensions but the innermost.
		d := ndims - 2
		for ; d >= 0; d-- {
			cursor[d]++
			if cursor[d] < count[d] {
				break
			}
			cursor[d] = 0
		}
		if d < 0 {
			break
		}
	}

	return out, nil
}

// extractHyperslab extracts a selection from fully materialized data.
func extractHyperslab(data []byte, dims, start, count []uint64, elemSize uint64) ([]byte, error) {
	return readHyperslab(func(offset uint64, dst []byte) error {
		if offset+uint64(len(dst)) > uint64(len(data)) {
			return fmt.Errorf("hyperslab run at %d overruns %d-byte buffer", offset, len(data))
		}
		copy(dst, data[offset:])
		return nil
	}, dims, start, count, elemSize)
}
