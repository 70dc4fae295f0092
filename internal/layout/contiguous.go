package layout

import (
	"fmt"

	"github.com/trellis-data/trellis/internal/binary"
)

// Contiguous reads a dataset stored as a single contiguous block in the
// container file.
type Contiguous struct {
	address  uint64
	size     uint64
	dims     []uint64
	elemSize uint64
	reader   *binary.Reader
}

// NewContiguous creates a contiguous layout handler. For variable-width
// element types elemSize is 0 and only whole reads are supported.
func NewContiguous(reader *binary.Reader, address, size uint64, dims []uint64, elemSize uint64) *Contiguous {
	return &Contiguous{
		address:  address,
		size:     size,
		dims:     dims,
		elemSize: elemSize,
		reader:   reader,
	}
}

func (c *Contiguous) Class() Class {
	return ClassContiguous
}

// Read reads all data from contiguous storage.
func (c *Contiguous) Read() ([]byte, error) {
	if c.size == 0 {
		return []byte{}, nil
	}
	r := c.reader.At(int64(c.address))
	data, err := r.ReadBytes(int(c.size))
	if err != nil {
		return nil, fmt.Errorf("reading contiguous data: %w", err)
	}
	return data, nil
}

// ReadSlice reads a hyperslab directly from the underlying file, fetching
// only the selected runs.
func (c *Contiguous) ReadSlice(start, count []uint64) ([]byte, error) {
	if c.elemSize == 0 {
		return nil, fmt.Errorf("contiguous layout with variable-width elements supports whole reads only")
	}
	return readHyperslab(func(offset uint64, dst []byte) error {
		return c.reader.ReadAt(dst, int64(c.address+offset))
	}, c.dims, start, count, c.elemSize)
}

// Size returns the stored byte length.
func (c *Contiguous) Size() uint64 {
	return c.size
}
