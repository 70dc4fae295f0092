package binary

import (
	"encoding/binary"
	"fmt"
)

// Encoder builds a metadata block body in memory.
type Encoder struct {
	buf []byte
}

// NewEncoder creates an empty encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Bytes returns the encoded body.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// Len returns the number of bytes encoded so far.
func (e *Encoder) Len() int {
	return len(e.buf)
}

// PutUint8 appends an unsigned 8-bit integer.
func (e *Encoder) PutUint8(v uint8) {
	e.buf = append(e.buf, v)
}

// PutUint32 appends an unsigned 32-bit integer.
func (e *Encoder) PutUint32(v uint32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
}

// PutUint64 appends an unsigned 64-bit integer.
func (e *Encoder) PutUint64(v uint64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, v)
}

// PutString appends a 16-bit length-prefixed UTF-8 string.
func (e *Encoder) PutString(s string) {
	e.buf = binary.LittleEndian.AppendUint16(e.buf, uint16(len(s)))
	e.buf = append(e.buf, s...)
}

// PutBytes appends a 32-bit length-prefixed byte slice.
func (e *Encoder) PutBytes(b []byte) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, uint32(len(b)))
	e.buf = append(e.buf, b...)
}

// PutUint64Slice appends a count-prefixed slice of unsigned 64-bit integers.
func (e *Encoder) PutUint64Slice(vs []uint64) {
	e.PutUint32(uint32(len(vs)))
	for _, v := range vs {
		e.PutUint64(v)
	}
}

// Decoder consumes a metadata block body produced by Encoder.
// The first decoding error sticks; check Err once after decoding.
type Decoder struct {
	buf []byte
	off int
	err error
}

// NewDecoder creates a decoder over the given body.
func NewDecoder(body []byte) *Decoder {
	return &Decoder{buf: body}
}

// Err returns the first error encountered, or nil.
func (d *Decoder) Err() error {
	return d.err
}

func (d *Decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if d.off+n > len(d.buf) {
		d.err = fmt.Errorf("%w: truncated body (need %d bytes at offset %d of %d)",
			ErrBadBlock, n, d.off, len(d.buf))
		return nil
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b
}

// Uint8 decodes an unsigned 8-bit integer.
func (d *Decoder) Uint8() uint8 {
	b := d.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

// Uint32 decodes an unsigned 32-bit integer.
func (d *Decoder) Uint32() uint32 {
	b := d.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

// Uint64 decodes an unsigned 64-bit integer.
func (d *Decoder) Uint64() uint64 {
	b := d.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

// String decodes a 16-bit length-prefixed string.
func (d *Decoder) String() string {
	lb := d.take(2)
	if lb == nil {
		return ""
	}
	n := int(binary.LittleEndian.Uint16(lb))
	b := d.take(n)
	if b == nil {
		return ""
	}
	return string(b)
}

// Bytes decodes a 32-bit length-prefixed byte slice.
func (d *Decoder) Bytes() []byte {
	lb := d.take(4)
	if lb == nil {
		return nil
	}
	n := int(binary.LittleEndian.Uint32(lb))
	b := d.take(n)
	if b == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

// Uint64Slice decodes a count-prefixed slice of unsigned 64-bit integers.
func (d *Decoder) Uint64Slice() []uint64 {
	n := int(d.Uint32())
	if d.err != nil {
		return nil
	}
	vs := make([]uint64, 0, n)
	for i := 0; i < n; i++ {
		vs = append(vs, d.Uint64())
	}
	if d.err != nil {
		return nil
	}
	return vs
}
