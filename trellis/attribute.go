package trellis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/trellis-data/trellis/internal/dtype"
)

// Attribute is a handle to one small typed metadata value. Attribute data
// is always materialized eagerly; there is no lazy path for attributes.
type Attribute struct {
	s    *Session
	n    *node
	name string
	v    attrValue
}

func attrHandle(s *Session, n *node, name string) *Attribute {
	v, ok := n.attrs[name]
	if !ok {
		return nil
	}
	return &Attribute{s: s, n: n, name: name, v: v}
}

func attrNames(n *node) []string {
	names := make([]string, 0, len(n.attrs))
	for name := range n.attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Name returns the attribute name.
func (a *Attribute) Name() string {
	return a.name
}

// Tag returns the attribute's element type tag.
func (a *Attribute) Tag() Tag {
	return dtype.Tag(a.v.Tag)
}

// Shape returns the attribute's shape, or nil for a scalar.
func (a *Attribute) Shape() []uint64 {
	return append([]uint64(nil), a.v.Shape...)
}

// Value decodes the attribute into its natural Go value: a scalar for
// scalar attributes, a slice otherwise.
func (a *Attribute) Value() (any, error) {
	if err := a.s.check(a.n); err != nil {
		return nil, err
	}
	decoded, err := dtype.Decode(a.v.spec(), a.v.Raw, a.v.count())
	if err != nil {
		return nil, fmt.Errorf("attribute %q on %s: %w", a.name, a.n.path(), err)
	}
	if a.v.Shape == nil {
		return scalarOf(decoded), nil
	}
	return decoded, nil
}

// Read decodes the attribute into dest, a pointer to the natural slice
// type for the attribute's tag. Scalar attributes decode as one-element
// slices.
func (a *Attribute) Read(dest any) error {
	if err := a.s.check(a.n); err != nil {
		return err
	}
	if err := dtype.Convert(a.v.spec(), a.v.Raw, a.v.count(), dest); err != nil {
		return fmt.Errorf("attribute %q on %s: %w", a.name, a.n.path(), err)
	}
	return nil
}

// scalarOf unwraps a one-element decoded slice.
func scalarOf(decoded any) any {
	switch vs := decoded.(type) {
	case []int8:
		return vs[0]
	case []int16:
		return vs[0]
	case []int32:
		return vs[0]
	case []int64:
		return vs[0]
	case []uint8:
		return vs[0]
	case []uint16:
		return vs[0]
	case []uint32:
		return vs[0]
	case []uint64:
		return vs[0]
	case []float32:
		return vs[0]
	case []float64:
		return vs[0]
	case []bool:
		return vs[0]
	case []string:
		return vs[0]
	case [][]byte:
		return vs[0]
	default:
		return decoded
	}
}

// setAttr encodes and stores an attribute on a node, replacing any
// existing value under the same name.
func setAttr(n *node, name string, value any) error {
	if err := validateName(name); err != nil {
		return err
	}
	v, err := encodeAttrValue(value)
	if err != nil {
		return fmt.Errorf("attribute %q on %s: %w", name, n.path(), err)
	}
	n.attrs[name] = v
	return nil
}

// encodeAttrValue infers the element tag from the Go type and encodes the
// value. Scalars store a nil shape; slices store their length.
func encodeAttrValue(value any) (attrValue, error) {
	if ref, ok := value.(*RegionRef); ok {
		rec, err := ref.encode()
		if err != nil {
			return attrValue{}, err
		}
		value = rec
	}

	var (
		tag   dtype.Tag
		shape []uint64
	)
	switch v := value.(type) {
	case int8:
		tag = dtype.TagInt8
	case []int8:
		tag, shape = dtype.TagInt8, []uint64{uint64(len(v))}
	case int16:
		tag = dtype.TagInt16
	case []int16:
		tag, shape = dtype.TagInt16, []uint64{uint64(len(v))}
	case int32:
		tag = dtype.TagInt32
	case []int32:
		tag, shape = dtype.TagInt32, []uint64{uint64(len(v))}
	case int64:
		tag = dtype.TagInt64
	case []int64:
		tag, shape = dtype.TagInt64, []uint64{uint64(len(v))}
	case uint8:
		tag = dtype.TagUint8
	case uint16:
		tag = dtype.TagUint16
	case []uint16:
		tag, shape = dtype.TagUint16, []uint64{uint64(len(v))}
	case uint32:
		tag = dtype.TagUint32
	case []uint32:
		tag, shape = dtype.TagUint32, []uint64{uint64(len(v))}
	case uint64:
		tag = dtype.TagUint64
	case []uint64:
		tag, shape = dtype.TagUint64, []uint64{uint64(len(v))}
	case float32:
		tag = dtype.TagFloat32
	case []float32:
		tag, shape = dtype.TagFloat32, []uint64{uint64(len(v))}
	case float64:
		tag = dtype.TagFloat64
	case []float64:
		tag, shape = dtype.TagFloat64, []uint64{uint64(len(v))}
	case bool:
		tag = dtype.TagBool
	case []bool:
		tag, shape = dtype.TagBool, []uint64{uint64(len(v))}
	case string:
		tag = dtype.TagString
	case []string:
		tag, shape = dtype.TagString, []uint64{uint64(len(v))}
	case []byte: // also []uint8; byte slices always store as one compound record
		tag = dtype.TagCompound
	case [][]byte:
		tag, shape = dtype.TagCompound, []uint64{uint64(len(v))}
	default:
		return attrValue{}, fmt.Errorf("%w: unsupported attribute type %T", ErrTypeMismatch, value)
	}

	spec := dtype.Spec{Tag: tag}
	raw, _, err := dtype.Encode(spec, value)
	if err != nil {
		return attrValue{}, err
	}
	return attrValue{
		Tag:   uint8(tag),
		Mode:  uint8(spec.Mode),
		Width: spec.Width,
		Shape: shape,
		Raw:   raw,
	}, nil
}

// splitAttrPath splits an "object@attribute" path. The attribute part is
// empty when the path names a plain object.
func splitAttrPath(p string) (objPath, attrName string) {
	if i := strings.LastIndexByte(p, '@'); i >= 0 {
		return p[:i], p[i+1:]
	}
	return p, ""
}

// Attr resolves an attribute by "object/path@name" address.
func (s *Session) Attr(path string) (*Attribute, error) {
	if s.closed {
		return nil, ErrInvalidHandle
	}
	objPath, attrName := splitAttrPath(path)
	if attrName == "" {
		return nil, fmt.Errorf("%w: %q has no @attribute part", ErrNotFound, path)
	}
	n, err := s.root.find(splitPath(objPath))
	if err != nil {
		return nil, fmt.Errorf("resolving %q: %w", objPath, err)
	}
	a := attrHandle(s, n, attrName)
	if a == nil {
		return nil, fmt.Errorf("%w: attribute %q on %s", ErrNotFound, attrName, n.path())
	}
	return a, nil
}
