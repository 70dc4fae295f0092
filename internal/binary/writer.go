package binary

import (
	"encoding/binary"
	"io"
)

// Writer provides positioned writes over an io.WriterAt.
type Writer struct {
	w   io.WriterAt
	pos int64
}

// NewWriter creates a writer positioned at offset 0.
func NewWriter(w io.WriterAt) *Writer {
	return &Writer{w: w}
}

// At returns a new writer positioned at the given offset.
// The new writer shares the underlying io.WriterAt but has independent position.
func (w *Writer) At(offset int64) *Writer {
	return &Writer{w: w.w, pos: offset}
}

// Pos returns the current write position.
func (w *Writer) Pos() int64 {
	return w.pos
}

// WriteBytes writes the given bytes at the current position.
func (w *Writer) WriteBytes(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	n, err := w.w.WriteAt(data, w.pos)
	w.pos += int64(n)
	return err
}

// WriteUint8 writes an unsigned 8-bit integer.
func (w *Writer) WriteUint8(v uint8) error {
	return w.WriteBytes([]byte{v})
}

// WriteUint32 writes an unsigned 32-bit integer.
func (w *Writer) WriteUint32(v uint32) error {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, v)
	return w.WriteBytes(buf)
}

// WriteUint64 writes an unsigned 64-bit integer.
func (w *Writer) WriteUint64(v uint64) error {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, v)
	return w.WriteBytes(buf)
}

// WriteBlock writes a framed metadata block at the current position.
// See Reader.ReadBlock for the frame layout. Returns the total number of
// bytes written.
func (w *Writer) WriteBlock(sig string, version uint8, body []byte) (int, error) {
	framed := make([]byte, 0, 9+len(body))
	framed = append(framed, sig...)
	framed = append(framed, version)
	framed = binary.LittleEndian.AppendUint32(framed, uint32(len(body)))
	framed = append(framed, body...)
	sum := Checksum(framed)

	if err := w.WriteBytes(framed); err != nil {
		return 0, err
	}
	if err := w.WriteUint64(sum); err != nil {
		return 0, err
	}
	return len(framed) + 8, nil
}

// BlockSize returns the on-disk size of a block with the given body length.
func BlockSize(bodyLen int) int {
	return 9 + bodyLen + 8
}
