// Package binary provides low-level binary I/O for trellis container files.
//
// All multi-byte values are little-endian. Offsets and lengths are fixed
// 64-bit fields. On-disk metadata blocks are framed with a 4-byte signature,
// a version byte, a body length, and an xxhash64 trailer.
package binary

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrBadBlock is returned when a block frame fails validation
// (wrong signature, unsupported version, or checksum mismatch).
var ErrBadBlock = errors.New("invalid block")

// Reader provides positioned reads over an io.ReaderAt.
type Reader struct {
	r   io.ReaderAt
	pos int64
}

// NewReader creates a reader positioned at offset 0.
func NewReader(r io.ReaderAt) *Reader {
	return &Reader{r: r}
}

// At returns a new reader positioned at the given offset.
// The new reader shares the underlying io.ReaderAt but has independent position.
func (r *Reader) At(offset int64) *Reader {
	return &Reader{r: r.r, pos: offset}
}

// Pos returns the current read position.
func (r *Reader) Pos() int64 {
	return r.pos
}

// ReadBytes reads exactly n bytes from the current position.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n <= 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if _, err := r.r.ReadAt(buf, r.pos); err != nil {
		return nil, err
	}
	r.pos += int64(n)
	return buf, nil
}

// ReadAt reads len(dst) bytes at the given absolute offset without
// moving the reader's position.
func (r *Reader) ReadAt(dst []byte, offset int64) error {
	if len(dst) == 0 {
		return nil
	}
	_, err := r.r.ReadAt(dst, offset)
	return err
}

// ReadUint8 reads an unsigned 8-bit integer.
func (r *Reader) ReadUint8() (uint8, error) {
	buf, err := r.ReadBytes(1)
	if err != nil {
		return 0, err
	}
	return buf[0], nil
}

// ReadUint32 reads an unsigned 32-bit integer.
func (r *Reader) ReadUint32() (uint32, error) {
	buf, err := r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf), nil
}

// ReadUint64 reads an unsigned 64-bit integer.
func (r *Reader) ReadUint64() (uint64, error) {
	buf, err := r.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf), nil
}

// ReadBlock reads a framed metadata block at the current position and
// returns its body. The frame is: signature (4 bytes), version (1 byte),
// body length (4 bytes), body, xxhash64 of everything before the hash.
func (r *Reader) ReadBlock(sig string, version uint8) ([]byte, error) {
	start := r.pos

	head, err := r.ReadBytes(9)
	if err != nil {
		return nil, fmt.Errorf("reading block header: %w", err)
	}
	if string(head[:4]) != sig {
		return nil, fmt.Errorf("%w: signature %q, expected %q", ErrBadBlock, head[:4], sig)
	}
	if head[4] != version {
		return nil, fmt.Errorf("%w: version %d, expected %d", ErrBadBlock, head[4], version)
	}
	bodyLen := binary.LittleEndian.Uint32(head[5:9])

	body, err := r.ReadBytes(int(bodyLen))
	if err != nil {
		return nil, fmt.Errorf("reading block body: %w", err)
	}

	sum, err := r.ReadUint64()
	if err != nil {
		return nil, fmt.Errorf("reading block checksum: %w", err)
	}

	framed := make([]byte, 0, 9+len(body))
	framed = append(framed, head...)
	framed = append(framed, body...)
	if Checksum(framed) != sum {
		return nil, fmt.Errorf("%w: checksum mismatch for %q block at 0x%x", ErrBadBlock, sig, start)
	}

	return body, nil
}
