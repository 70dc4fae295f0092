package trellis

import (
	"fmt"
	"path/filepath"

	"github.com/trellis-data/trellis/internal/dtype"
	"github.com/trellis-data/trellis/internal/layout"
)

// Dataset is a handle to a typed n-dimensional array node. Element data is
// read lazily through views; opening a dataset touches metadata only.
type Dataset struct {
	s *Session
	n *node
}

// Name returns the dataset name.
func (d *Dataset) Name() string {
	return d.n.name
}

// Path returns the dataset's absolute path.
func (d *Dataset) Path() string {
	return d.n.path()
}

// Tag returns the element type tag.
func (d *Dataset) Tag() Tag {
	return d.n.spec.Tag
}

// Shape returns a copy of the current shape. For appendable datasets the
// leading dimension reflects rows appended so far.
func (d *Dataset) Shape() ([]uint64, error) {
	if err := d.s.check(d.n); err != nil {
		return nil, err
	}
	return append([]uint64(nil), d.n.shape...), nil
}

// Rank returns the number of dimensions.
func (d *Dataset) Rank() int {
	return len(d.n.shape)
}

// NumElements returns the total element count.
func (d *Dataset) NumElements() (uint64, error) {
	if err := d.s.check(d.n); err != nil {
		return 0, err
	}
	return d.n.numElements(), nil
}

// Appendable reports whether the leading dimension can grow.
func (d *Dataset) Appendable() bool {
	return d.n.appendable
}

// View returns a lazy view over the dataset's elements. Views are
// stateless; every read re-validates the handle and re-reads the shape.
func (d *Dataset) View() *ArrayView {
	return &ArrayView{s: d.s, n: d.n}
}

// Append grows the leading dimension. value must encode a whole number of
// leading-dimension rows; a single Append may carry several rows.
func (d *Dataset) Append(value any) error {
	if err := d.s.checkWrite(d.n); err != nil {
		return err
	}
	if !d.n.appendable {
		return fmt.Errorf("%w: dataset %s is not appendable", ErrReadOnlyViolation, d.Path())
	}

	raw, count, err := dtype.Encode(d.n.spec, value)
	if err != nil {
		return fmt.Errorf("appending to %s: %w", d.Path(), err)
	}
	rowElems := d.n.rowElements()
	if rowElems == 0 || uint64(count)%rowElems != 0 {
		return fmt.Errorf("%w: appending to %s: %d elements is not a whole number of %d-element rows",
			ErrTypeMismatch, d.Path(), count, rowElems)
	}

	d.n.buf = append(d.n.buf, raw...)
	d.n.shape[0] += uint64(count) / rowElems
	return nil
}

// SetAttr sets a small typed metadata value on the dataset.
func (d *Dataset) SetAttr(name string, value any) error {
	if err := d.s.checkWrite(d.n); err != nil {
		return err
	}
	return setAttr(d.n, name, value)
}

// Attr returns an attribute by name, or nil if not found.
func (d *Dataset) Attr(name string) *Attribute {
	if d.s.check(d.n) != nil {
		return nil
	}
	return attrHandle(d.s, d.n, name)
}

// Attrs returns the sorted attribute names.
func (d *Dataset) Attrs() []string {
	if d.s.check(d.n) != nil {
		return nil
	}
	return attrNames(d.n)
}

// HasAttr reports whether the dataset has the named attribute.
func (d *Dataset) HasAttr(name string) bool {
	return d.Attr(name) != nil
}

// currentLayout returns the layout serving the dataset's bytes. Read-mode
// nodes carry a layout over the committed file; write-mode nodes are
// memory-backed (or manifest-backed for external datasets) and get a fresh
// layout per read so appends stay visible.
func (n *node) currentLayout(s *Session) layout.Layout {
	if n.lay != nil {
		return n.lay
	}
	elemSize := uint64(n.spec.ElementSize())
	if n.segments != nil {
		return layout.NewExternal(n.segments, filepath.Dir(s.path), n.shape, elemSize)
	}
	return layout.NewMemory(n.buf, func() []uint64 { return n.shape }, elemSize)
}
