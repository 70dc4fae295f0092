// Package alloc provides space management for trellis container writing.
package alloc

// Allocator hands out append-only block addresses within a container
// file. Commit writes a container in one pass, so freed-space reuse is
// never needed.
type Allocator struct {
	eofAddr  uint64
	baseAddr uint64
	count    uint64
}

// New creates an Allocator starting at the given base address, typically
// right after the superblock.
func New(baseAddr uint64) *Allocator {
	return &Allocator{
		eofAddr:  baseAddr,
		baseAddr: baseAddr,
	}
}

// Alloc reserves a block of the given size at the end of the file and
// returns its address.
func (a *Allocator) Alloc(size uint64) uint64 {
	addr := a.eofAddr
	if size == 0 {
		return addr
	}
	a.eofAddr += size
	a.count++
	return addr
}

// EOFAddr returns the current end-of-file address.
func (a *Allocator) EOFAddr() uint64 {
	return a.eofAddr
}

// BaseAddr returns the start of allocatable space.
func (a *Allocator) BaseAddr() uint64 {
	return a.baseAddr
}

// Count returns the number of non-empty allocations made.
func (a *Allocator) Count() uint64 {
	return a.count
}
