package trellis

import (
	"path"

	"github.com/trellis-data/trellis/internal/dtype"
	"github.com/trellis-data/trellis/internal/layout"
)

// Tag identifies a dataset or attribute element type.
type Tag = dtype.Tag

// Element type tags.
const (
	TagInt8     = dtype.TagInt8
	TagInt16    = dtype.TagInt16
	TagInt32    = dtype.TagInt32
	TagInt64    = dtype.TagInt64
	TagUint8    = dtype.TagUint8
	TagUint16   = dtype.TagUint16
	TagUint32   = dtype.TagUint32
	TagUint64   = dtype.TagUint64
	TagFloat32  = dtype.TagFloat32
	TagFloat64  = dtype.TagFloat64
	TagBool     = dtype.TagBool
	TagString   = dtype.TagString
	TagCompound = dtype.TagCompound
)

// ExternalSegment references a byte range of an external file. A dataset
// created in external storage mode reads its bytes from the concatenation
// of its segments instead of the container file.
type ExternalSegment = layout.Segment

// Kind discriminates container node variants.
type Kind uint8

const (
	KindGroup Kind = iota + 1
	KindDataset
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindGroup:
		return "group"
	case KindDataset:
		return "dataset"
	default:
		return "invalid"
	}
}

// attrValue is the stored form of one attribute: a type tag, an optional
// shape (nil for scalars), and the dtype-encoded bytes. The whole attribute
// map of a node is persisted as one msgpack blob.
type attrValue struct {
	Tag   uint8    `msgpack:"t"`
	Mode  uint8    `msgpack:"m"`
	Width int      `msgpack:"w"`
	Shape []uint64 `msgpack:"s"`
	Raw   []byte   `msgpack:"r"`
}

func (v attrValue) spec() dtype.Spec {
	return dtype.Spec{Tag: dtype.Tag(v.Tag), Mode: dtype.StringMode(v.Mode), Width: v.Width}
}

func (v attrValue) count() int {
	n := 1
	for _, d := range v.Shape {
		n *= int(d)
	}
	return n
}

// node is one entry in the in-memory container tree. The kind field is the
// single dispatch point for variant behavior.
type node struct {
	kind    Kind
	name    string
	parent  *node
	invalid bool

	// Both kinds.
	attrs map[string]attrValue

	// KindGroup.
	children map[string]*node

	// KindDataset.
	spec        dtype.Spec
	shape       []uint64
	appendable  bool
	chunkDims   []uint64
	compression layout.Compression

	// Dataset data. Write-mode sessions buffer in memory; read-mode
	// sessions carry a layout over the committed file. External-mode
	// datasets carry their manifest in segments.
	buf      []byte
	lay      layout.Layout
	segments []layout.Segment
}

func newGroupNode(name string, parent *node) *node {
	return &node{
		kind:     KindGroup,
		name:     name,
		parent:   parent,
		attrs:    make(map[string]attrValue),
		children: make(map[string]*node),
	}
}

// path returns the node's absolute slash path.
func (n *node) path() string {
	if n.parent == nil {
		return "/"
	}
	return path.Join(n.parent.path(), n.name)
}

// numElements returns the total element count implied by the shape.
func (n *node) numElements() uint64 {
	total := uint64(1)
	for _, d := range n.shape {
		total *= d
	}
	return total
}

// rowElements returns the elements per leading-dimension row.
func (n *node) rowElements() uint64 {
	total := uint64(1)
	for _, d := range n.shape[1:] {
		total *= d
	}
	return total
}

// invalidate marks the node and all descendants invalid. Handles held over
// them fail with ErrInvalidHandle afterwards.
func (n *node) invalidate() {
	n.invalid = true
	for _, child := range n.children {
		child.invalidate()
	}
}

// find resolves a slash path relative to this node.
func (n *node) find(parts []string) (*node, error) {
	current := n
	for _, name := range parts {
		if current.kind != KindGroup {
			return nil, ErrNotGroup
		}
		child, ok := current.children[name]
		if !ok {
			return nil, ErrNotFound
		}
		current = child
	}
	return current, nil
}
