package dtype

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Decode converts raw bytes back into a typed Go slice under the given
// spec. count is the expected number of elements; the result is the
// natural slice type for the tag ([]int32, []float64, []string, ...).
func Decode(spec Spec, raw []byte, count int) (any, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	switch spec.Tag {
	case TagInt8:
		return decodeFixed(raw, count, 1, func(b []byte) int8 { return int8(b[0]) })
	case TagInt16:
		return decodeFixed(raw, count, 2, func(b []byte) int16 { return int16(binary.LittleEndian.Uint16(b)) })
	case TagInt32:
		return decodeFixed(raw, count, 4, func(b []byte) int32 { return int32(binary.LittleEndian.Uint32(b)) })
	case TagInt64:
		return decodeFixed(raw, count, 8, func(b []byte) int64 { return int64(binary.LittleEndian.Uint64(b)) })
	case TagUint8:
		return decodeFixed(raw, count, 1, func(b []byte) uint8 { return b[0] })
	case TagUint16:
		return decodeFixed(raw, count, 2, binary.LittleEndian.Uint16)
	case TagUint32:
		return decodeFixed(raw, count, 4, binary.LittleEndian.Uint32)
	case TagUint64:
		return decodeFixed(raw, count, 8, binary.LittleEndian.Uint64)
	case TagFloat32:
		return decodeFixed(raw, count, 4, func(b []byte) float32 {
			return math.Float32frombits(binary.LittleEndian.Uint32(b))
		})
	case TagFloat64:
		return decodeFixed(raw, count, 8, func(b []byte) float64 {
			return math.Float64frombits(binary.LittleEndian.Uint64(b))
		})
	case TagBool:
		return decodeFixed(raw, count, 1, func(b []byte) bool { return b[0] != 0 })
	case TagString:
		return decodeString(spec, raw, count)
	case TagCompound:
		return decodeCompound(raw, count)
	default:
		return nil, fmt.Errorf("%w: cannot decode tag %s", ErrTypeMismatch, spec.Tag)
	}
}

// Convert decodes raw bytes into a caller-supplied destination, which must
// be a pointer to the natural slice type for the spec's tag.
func Convert(spec Spec, raw []byte, count int, dest any) error {
	decoded, err := Decode(spec, raw, count)
	if err != nil {
		return err
	}

	switch d := dest.(type) {
	case *[]int8:
		return assign(d, decoded)
	case *[]int16:
		return assign(d, decoded)
	case *[]int32:
		return assign(d, decoded)
	case *[]int64:
		return assign(d, decoded)
	case *[]uint8:
		return assign(d, decoded)
	case *[]uint16:
		return assign(d, decoded)
	case *[]uint32:
		return assign(d, decoded)
	case *[]uint64:
		return assign(d, decoded)
	case *[]float32:
		return assign(d, decoded)
	case *[]float64:
		return assign(d, decoded)
	case *[]bool:
		return assign(d, decoded)
	case *[]string:
		return assign(d, decoded)
	case *[][]byte:
		return assign(d, decoded)
	case *any:
		*d = decoded
		return nil
	default:
		return fmt.Errorf("%w: unsupported destination %T", ErrTypeMismatch, dest)
	}
}

func assign[T any](dest *[]T, decoded any) error {
	vs, ok := decoded.([]T)
	if !ok {
		return fmt.Errorf("%w: stored elements are %T, destination is *%T", ErrTypeMismatch, decoded, *dest)
	}
	*dest = vs
	return nil
}

func decodeFixed[T any](raw []byte, count, size int, get func([]byte) T) ([]T, error) {
	if len(raw) != count*size {
		return nil, fmt.Errorf("%w: %d bytes for %d elements of size %d", ErrCorruptData, len(raw), count, size)
	}
	out := make([]T, count)
	for i := range out {
		out[i] = get(raw[i*size:])
	}
	return out, nil
}

func decodeString(spec Spec, raw []byte, count int) ([]string, error) {
	if spec.Mode == StringFixed {
		if len(raw) != count*spec.Width {
			return nil, fmt.Errorf("%w: %d bytes for %d fixed strings of width %d",
				ErrCorruptData, len(raw), count, spec.Width)
		}
		out := make([]string, count)
		for i := range out {
			field := raw[i*spec.Width : (i+1)*spec.Width]
			end := len(field)
			for end > 0 && field[end-1] == 0 {
				end--
			}
			out[i] = string(field[:end])
		}
		return out, nil
	}

	out := make([]string, 0, count)
	off := 0
	for i := 0; i < count; i++ {
		if off+4 > len(raw) {
			return nil, fmt.Errorf("%w: truncated string length prefix at element %d", ErrCorruptData, i)
		}
		n := int(binary.LittleEndian.Uint32(raw[off:]))
		off += 4
		if off+n > len(raw) {
			return nil, fmt.Errorf("%w: string element %d overruns region", ErrCorruptData, i)
		}
		out = append(out, string(raw[off:off+n]))
		off += n
	}
	if off != len(raw) {
		return nil, fmt.Errorf("%w: %d trailing bytes after %d strings", ErrCorruptData, len(raw)-off, count)
	}
	return out, nil
}

func decodeCompound(raw []byte, count int) ([][]byte, error) {
	out := make([][]byte, 0, count)
	off := 0
	for i := 0; i < count; i++ {
		if off+4 > len(raw) {
			return nil, fmt.Errorf("%w: truncated record length prefix at element %d", ErrCorruptData, i)
		}
		n := int(binary.LittleEndian.Uint32(raw[off:]))
		off += 4
		if off+n > len(raw) {
			return nil, fmt.Errorf("%w: record element %d overruns region", ErrCorruptData, i)
		}
		rec := make([]byte, n)
		copy(rec, raw[off:off+n])
		out = append(out, rec)
		off += n
	}
	if off != len(raw) {
		return nil, fmt.Errorf("%w: %d trailing bytes after %d records", ErrCorruptData, len(raw)-off, count)
	}
	return out, nil
}

// SliceVariable returns the byte sub-region covering elements [start, stop)
// of a variable-width region holding count elements, along with a sanity
// check of the region's framing.
func SliceVariable(raw []byte, count, start, stop int) ([]byte, error) {
	if start < 0 || stop < start || stop > count {
		return nil, fmt.Errorf("%w: variable slice [%d:%d) of %d elements", ErrCorruptData, start, stop, count)
	}
	off := 0
	var from, to int
	for i := 0; i < stop; i++ {
		if i == start {
			from = off
		}
		if off+4 > len(raw) {
			return nil, fmt.Errorf("%w: truncated length prefix at element %d", ErrCorruptData, i)
		}
		n := int(binary.LittleEndian.Uint32(raw[off:]))
		off += 4 + n
		if off > len(raw) {
			return nil, fmt.Errorf("%w: element %d overruns region", ErrCorruptData, i)
		}
	}
	if start == stop {
		return nil, nil
	}
	to = off
	return raw[from:to], nil
}
