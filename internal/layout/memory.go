package layout

import "fmt"

// Memory serves a dataset from an in-memory buffer. Write-mode sessions
// keep every dataset memory-backed until commit, so views over
// not-yet-committed data go through this layout.
type Memory struct {
	data     []byte
	dims     func() []uint64 // appendable datasets grow their leading dimension
	elemSize uint64
}

// NewMemory creates a memory layout over data. dims is re-evaluated on
// every read so appendable datasets stay consistent with their buffer.
func NewMemory(data []byte, dims func() []uint64, elemSize uint64) *Memory {
	return &Memory{data: data, dims: dims, elemSize: elemSize}
}

func (m *Memory) Class() Class {
	return ClassContiguous
}

func (m *Memory) Read() ([]byte, error) {
	out := make([]byte, len(m.data))
	copy(out, m.data)
	return out, nil
}

func (m *Memory) ReadSlice(start, count []uint64) ([]byte, error) {
	if m.elemSize == 0 {
		return nil, fmt.Errorf("memory layout with variable-width elements supports whole reads only")
	}
	return extractHyperslab(m.data, m.dims(), start, count, m.elemSize)
}
