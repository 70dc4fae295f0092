// Package dtype implements the trellis typed value codec.
//
// Every dataset and attribute carries a Tag identifying its element type.
// Fixed-width elements are packed little-endian with exact IEEE semantics.
// Variable-width elements (variable strings, compound records) are packed
// as 32-bit length-prefixed regions.
package dtype

import (
	"errors"
	"fmt"
)

// Codec errors. These back the public trellis error taxonomy.
var (
	// ErrTypeMismatch is returned when the stored type tag disagrees with
	// the caller-requested type.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrCorruptData is returned when length or shape metadata is
	// inconsistent with the byte region being decoded.
	ErrCorruptData = errors.New("corrupt data")
)

// Tag identifies an element type.
type Tag uint8

// Supported element types.
const (
	TagInvalid Tag = iota
	TagInt8
	TagInt16
	TagInt32
	TagInt64
	TagUint8
	TagUint16
	TagUint32
	TagUint64
	TagFloat32
	TagFloat64
	TagBool
	TagString
	TagCompound // opaque variable-length records (region references etc.)
)

// StringMode selects the on-disk encoding for TagString datasets.
// The mode is chosen at dataset creation time and immutable thereafter.
type StringMode uint8

const (
	// StringVariable stores each string as a 32-bit length-prefixed region.
	StringVariable StringMode = iota

	// StringFixed stores each string as a fixed-width, NUL-padded field.
	StringFixed
)

var tagNames = map[Tag]string{
	TagInt8:     "int8",
	TagInt16:    "int16",
	TagInt32:    "int32",
	TagInt64:    "int64",
	TagUint8:    "uint8",
	TagUint16:   "uint16",
	TagUint32:   "uint32",
	TagUint64:   "uint64",
	TagFloat32:  "float32",
	TagFloat64:  "float64",
	TagBool:     "bool",
	TagString:   "string",
	TagCompound: "compound",
}

// String returns the tag's name.
func (t Tag) String() string {
	if s, ok := tagNames[t]; ok {
		return s
	}
	return fmt.Sprintf("tag(%d)", uint8(t))
}

// Valid reports whether the tag names a supported element type.
func (t Tag) Valid() bool {
	_, ok := tagNames[t]
	return ok
}

// FixedSize returns the per-element byte size for fixed-width tags,
// or 0 for variable-width tags (variable strings and compound records).
func (t Tag) FixedSize() int {
	switch t {
	case TagInt8, TagUint8, TagBool:
		return 1
	case TagInt16, TagUint16:
		return 2
	case TagInt32, TagUint32, TagFloat32:
		return 4
	case TagInt64, TagUint64, TagFloat64:
		return 8
	default:
		return 0
	}
}

// Spec describes the element encoding of a dataset or attribute:
// the type tag plus the string mode and width for TagString.
type Spec struct {
	Tag   Tag
	Mode  StringMode // TagString only
	Width int        // TagString with StringFixed only
}

// ElementSize returns the fixed per-element byte size, or 0 if elements
// are variable-width under this spec.
func (s Spec) ElementSize() int {
	if s.Tag == TagString {
		if s.Mode == StringFixed {
			return s.Width
		}
		return 0
	}
	return s.Tag.FixedSize()
}

// Validate checks the spec for internal consistency.
func (s Spec) Validate() error {
	if !s.Tag.Valid() {
		return fmt.Errorf("invalid type tag %d", uint8(s.Tag))
	}
	if s.Tag == TagString && s.Mode == StringFixed && s.Width <= 0 {
		return fmt.Errorf("fixed string width must be positive, got %d", s.Width)
	}
	if s.Tag != TagString && (s.Mode != StringVariable || s.Width != 0) {
		return fmt.Errorf("string mode/width set on non-string tag %s", s.Tag)
	}
	return nil
}
