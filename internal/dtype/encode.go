package dtype

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Encode converts a Go value to its raw byte representation under the
// given spec. Accepted values are the exact Go type for the tag, either a
// scalar or a flat slice (row-major for multi-dimensional data):
//
//	TagInt8 -> int8 / []int8, ... TagFloat64 -> float64 / []float64,
//	TagBool -> bool / []bool, TagString -> string / []string,
//	TagCompound -> []byte (one record) / [][]byte.
//
// Returns the encoded bytes and the number of elements encoded.
func Encode(spec Spec, value any) ([]byte, int, error) {
	if err := spec.Validate(); err != nil {
		return nil, 0, err
	}

	switch spec.Tag {
	case TagInt8:
		return encodeFixed(value, func(v int8, b []byte) { b[0] = byte(v) }, 1)
	case TagInt16:
		return encodeFixed(value, func(v int16, b []byte) { binary.LittleEndian.PutUint16(b, uint16(v)) }, 2)
	case TagInt32:
		return encodeFixed(value, func(v int32, b []byte) { binary.LittleEndian.PutUint32(b, uint32(v)) }, 4)
	case TagInt64:
		return encodeFixed(value, func(v int64, b []byte) { binary.LittleEndian.PutUint64(b, uint64(v)) }, 8)
	case TagUint8:
		return encodeFixed(value, func(v uint8, b []byte) { b[0] = v }, 1)
	case TagUint16:
		return encodeFixed(value, func(v uint16, b []byte) { binary.LittleEndian.PutUint16(b, v) }, 2)
	case TagUint32:
		return encodeFixed(value, func(v uint32, b []byte) { binary.LittleEndian.PutUint32(b, v) }, 4)
	case TagUint64:
		return encodeFixed(value, func(v uint64, b []byte) { binary.LittleEndian.PutUint64(b, v) }, 8)
	case TagFloat32:
		return encodeFixed(value, func(v float32, b []byte) {
			binary.LittleEndian.PutUint32(b, math.Float32bits(v))
		}, 4)
	case TagFloat64:
		return encodeFixed(value, func(v float64, b []byte) {
			binary.LittleEndian.PutUint64(b, math.Float64bits(v))
		}, 8)
	case TagBool:
		return encodeFixed(value, func(v bool, b []byte) {
			if v {
				b[0] = 1
			} else {
				b[0] = 0
			}
		}, 1)
	case TagString:
		return encodeString(spec, value)
	case TagCompound:
		return encodeCompound(value)
	default:
		return nil, 0, fmt.Errorf("%w: cannot encode tag %s", ErrTypeMismatch, spec.Tag)
	}
}

// encodeFixed packs a scalar or slice of T into size-byte little-endian
// elements using put.
func encodeFixed[T any](value any, put func(T, []byte), size int) ([]byte, int, error) {
	var vs []T
	switch v := value.(type) {
	case T:
		vs = []T{v}
	case []T:
		vs = v
	default:
		var zero T
		return nil, 0, fmt.Errorf("%w: got %T, want %T or []%T", ErrTypeMismatch, value, zero, zero)
	}

	out := make([]byte, len(vs)*size)
	for i, v := range vs {
		put(v, out[i*size:])
	}
	return out, len(vs), nil
}

func encodeString(spec Spec, value any) ([]byte, int, error) {
	var vs []string
	switch v := value.(type) {
	case string:
		vs = []string{v}
	case []string:
		vs = v
	default:
		return nil, 0, fmt.Errorf("%w: got %T, want string or []string", ErrTypeMismatch, value)
	}

	if spec.Mode == StringFixed {
		out := make([]byte, len(vs)*spec.Width)
		for i, s := range vs {
			if len(s) > spec.Width {
				return nil, 0, fmt.Errorf("string %q exceeds fixed width %d", s, spec.Width)
			}
			copy(out[i*spec.Width:], s)
		}
		return out, len(vs), nil
	}

	var out []byte
	for _, s := range vs {
		out = binary.LittleEndian.AppendUint32(out, uint32(len(s)))
		out = append(out, s...)
	}
	return out, len(vs), nil
}

func encodeCompound(value any) ([]byte, int, error) {
	var vs [][]byte
	switch v := value.(type) {
	case []byte:
		vs = [][]byte{v}
	case [][]byte:
		vs = v
	default:
		return nil, 0, fmt.Errorf("%w: got %T, want []byte or [][]byte", ErrTypeMismatch, value)
	}

	var out []byte
	for _, rec := range vs {
		out = binary.LittleEndian.AppendUint32(out, uint32(len(rec)))
		out = append(out, rec...)
	}
	return out, len(vs), nil
}
