package trellis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/trellis-data/trellis/internal/dtype"
)

// Group is a handle to a named hierarchical container node. Child names
// are unique per group across both sub-groups and datasets.
type Group struct {
	s *Session
	n *node
}

// Name returns the group name (last component of its path).
func (g *Group) Name() string {
	if g.n.parent == nil {
		return "/"
	}
	return g.n.name
}

// Path returns the group's absolute path.
func (g *Group) Path() string {
	return g.n.path()
}

// CreateGroup creates a sub-group.
func (g *Group) CreateGroup(name string) (*Group, error) {
	if err := g.s.checkWrite(g.n); err != nil {
		return nil, err
	}
	if err := validateName(name); err != nil {
		return nil, err
	}
	if _, exists := g.n.children[name]; exists {
		return nil, fmt.Errorf("%w: %q in %s", ErrNameCollision, name, g.Path())
	}

	child := newGroupNode(name, g.n)
	g.n.children[name] = child
	return &Group{s: g.s, n: child}, nil
}

// CreateDataset creates a fixed-shape dataset and writes data into it.
// data must be a flat row-major slice (or scalar for single-element
// datasets) of the Go type matching tag.
func (g *Group) CreateDataset(name string, tag Tag, shape []uint64, data any, opts ...DatasetOption) (*Dataset, error) {
	child, err := g.newDatasetNode(name, tag, shape, false, opts)
	if err != nil {
		return nil, err
	}

	raw, count, err := dtype.Encode(child.spec, data)
	if err != nil {
		return nil, fmt.Errorf("dataset %q: %w", name, err)
	}
	if uint64(count) != child.numElements() {
		return nil, fmt.Errorf("%w: dataset %q: %d elements for shape %v",
			ErrTypeMismatch, name, count, shape)
	}
	child.buf = raw

	g.n.children[name] = child
	return &Dataset{s: g.s, n: child}, nil
}

// CreateAppendableDataset creates a dataset whose leading dimension starts
// at zero and grows with Dataset.Append. rowDims gives the fixed shape of
// one leading-dimension row (empty for a 1-D dataset).
func (g *Group) CreateAppendableDataset(name string, tag Tag, rowDims []uint64, opts ...DatasetOption) (*Dataset, error) {
	shape := append([]uint64{0}, rowDims...)
	child, err := g.newDatasetNode(name, tag, shape, true, opts)
	if err != nil {
		return nil, err
	}

	g.n.children[name] = child
	return &Dataset{s: g.s, n: child}, nil
}

// CreateExternalDataset creates a dataset whose bytes live in external
// files. The manifest is stored opaquely; segment files are only opened
// when a view reads through them.
func (g *Group) CreateExternalDataset(name string, tag Tag, shape []uint64, segments []ExternalSegment, opts ...DatasetOption) (*Dataset, error) {
	child, err := g.newDatasetNode(name, tag, shape, false, opts)
	if err != nil {
		return nil, err
	}
	if child.spec.ElementSize() == 0 {
		return nil, fmt.Errorf("dataset %q: external storage requires fixed-width elements", name)
	}
	if child.chunkDims != nil {
		return nil, fmt.Errorf("dataset %q: external storage cannot be chunked", name)
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("dataset %q: external storage needs at least one segment", name)
	}

	child.segments = append([]ExternalSegment(nil), segments...)
	g.n.children[name] = child
	return &Dataset{s: g.s, n: child}, nil
}

// newDatasetNode validates creation arguments shared by all dataset kinds.
func (g *Group) newDatasetNode(name string, tag Tag, shape []uint64, appendable bool, opts []DatasetOption) (*node, error) {
	if err := g.s.checkWrite(g.n); err != nil {
		return nil, err
	}
	if err := validateName(name); err != nil {
		return nil, err
	}
	if _, exists := g.n.children[name]; exists {
		return nil, fmt.Errorf("%w: %q in %s", ErrNameCollision, name, g.Path())
	}
	if len(shape) == 0 {
		return nil, fmt.Errorf("dataset %q: shape must have at least one dimension", name)
	}

	options := defaultDatasetOptions()
	for _, opt := range opts {
		opt(options)
	}

	spec := dtype.Spec{Tag: tag}
	if tag == dtype.TagString && options.fixedWidth > 0 {
		spec.Mode = dtype.StringFixed
		spec.Width = options.fixedWidth
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("dataset %q: %w", name, err)
	}

	if spec.ElementSize() == 0 && len(shape) != 1 {
		return nil, fmt.Errorf("dataset %q: variable-width elements require a 1-D shape", name)
	}

	if options.chunks != nil {
		if spec.ElementSize() == 0 {
			return nil, fmt.Errorf("dataset %q: variable-width elements cannot be chunked", name)
		}
		if len(options.chunks) != len(shape) {
			return nil, fmt.Errorf("dataset %q: chunk rank %d, shape rank %d",
				name, len(options.chunks), len(shape))
		}
		for d, c := range options.chunks {
			if c == 0 {
				return nil, fmt.Errorf("dataset %q: chunk dimension %d is zero", name, d)
			}
		}
	}
	if options.compression != 0 && options.chunks == nil {
		return nil, fmt.Errorf("dataset %q: compression requires chunked storage", name)
	}

	child := &node{
		kind:        KindDataset,
		name:        name,
		parent:      g.n,
		attrs:       make(map[string]attrValue),
		spec:        spec,
		shape:       append([]uint64(nil), shape...),
		appendable:  appendable,
		chunkDims:   options.chunks,
		compression: options.compression,
	}

	for _, def := range options.attributes {
		val, err := encodeAttrValue(def.value)
		if err != nil {
			return nil, fmt.Errorf("dataset %q attribute %q: %w", name, def.name, err)
		}
		child.attrs[def.name] = val
	}

	return child, nil
}

// Child returns the named child as a *Group or *Dataset.
func (g *Group) Child(name string) (any, error) {
	if err := g.s.check(g.n); err != nil {
		return nil, err
	}
	child, ok := g.n.children[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q in %s", ErrNotFound, name, g.Path())
	}
	switch child.kind {
	case KindGroup:
		return &Group{s: g.s, n: child}, nil
	default:
		return &Dataset{s: g.s, n: child}, nil
	}
}

// Children returns the name-to-kind mapping of the group's members.
// Names are unique; iteration order is not significant.
func (g *Group) Children() (map[string]Kind, error) {
	if err := g.s.check(g.n); err != nil {
		return nil, err
	}
	out := make(map[string]Kind, len(g.n.children))
	for name, child := range g.n.children {
		out[name] = child.kind
	}
	return out, nil
}

// Members returns the sorted names of the group's members.
func (g *Group) Members() ([]string, error) {
	if err := g.s.check(g.n); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(g.n.children))
	for name := range g.n.children {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// OpenGroup opens a sub-group by relative slash path.
func (g *Group) OpenGroup(relativePath string) (*Group, error) {
	n, err := g.resolve(relativePath)
	if err != nil {
		return nil, err
	}
	if n.kind != KindGroup {
		return nil, ErrNotGroup
	}
	return &Group{s: g.s, n: n}, nil
}

// OpenDataset opens a dataset by relative slash path.
func (g *Group) OpenDataset(relativePath string) (*Dataset, error) {
	n, err := g.resolve(relativePath)
	if err != nil {
		return nil, err
	}
	if n.kind != KindDataset {
		return nil, ErrNotDataset
	}
	return &Dataset{s: g.s, n: n}, nil
}

func (g *Group) resolve(relativePath string) (*node, error) {
	if err := g.s.check(g.n); err != nil {
		return nil, err
	}
	n, err := g.n.find(splitPath(relativePath))
	if err != nil {
		return nil, fmt.Errorf("resolving %q in %s: %w", relativePath, g.Path(), err)
	}
	return n, nil
}

// Remove deletes the named child. Removal recursively invalidates every
// handle rooted under the child.
func (g *Group) Remove(name string) error {
	if err := g.s.checkWrite(g.n); err != nil {
		return err
	}
	child, ok := g.n.children[name]
	if !ok {
		return fmt.Errorf("%w: %q in %s", ErrNotFound, name, g.Path())
	}
	child.invalidate()
	delete(g.n.children, name)
	return nil
}

// SetAttr sets a small typed metadata value on the group. Attributes are
// always read eagerly.
func (g *Group) SetAttr(name string, value any) error {
	if err := g.s.checkWrite(g.n); err != nil {
		return err
	}
	return setAttr(g.n, name, value)
}

// Attr returns an attribute by name, or nil if not found.
func (g *Group) Attr(name string) *Attribute {
	if g.s.check(g.n) != nil {
		return nil
	}
	return attrHandle(g.s, g.n, name)
}

// Attrs returns the sorted attribute names.
func (g *Group) Attrs() []string {
	if g.s.check(g.n) != nil {
		return nil
	}
	return attrNames(g.n)
}

// HasAttr reports whether the group has the named attribute.
func (g *Group) HasAttr(name string) bool {
	return g.Attr(name) != nil
}

// validateName rejects names that cannot appear in a path.
func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("empty name")
	}
	if strings.ContainsAny(name, "/@") {
		return fmt.Errorf("name %q contains reserved characters", name)
	}
	return nil
}

// normalizePath strips leading and trailing slashes.
func normalizePath(p string) string {
	p = strings.TrimPrefix(p, "/")
	return strings.TrimSuffix(p, "/")
}

// splitPath splits a slash path into components.
func splitPath(p string) []string {
	p = normalizePath(p)
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}
