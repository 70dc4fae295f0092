package trellis

import (
	"errors"
	"fmt"

	"github.com/trellis-data/trellis/internal/dtype"
	"github.com/trellis-data/trellis/internal/layout"
)

// Range selects [Start, Stop) along one dimension, taking every Step-th
// element. Step zero means one. Start == Stop selects nothing.
type Range struct {
	Start uint64
	Stop  uint64
	Step  uint64
}

func (r Range) step() uint64 {
	if r.Step == 0 {
		return 1
	}
	return r.Step
}

// length returns the number of selected indices.
func (r Range) length() uint64 {
	if r.Stop <= r.Start {
		return 0
	}
	span := r.Stop - r.Start
	step := r.step()
	return (span + step - 1) / step
}

// ArrayView is a lazy, sliceable reader over a dataset's elements. A view
// holds no data of its own; each read pulls exactly the selected region
// from storage. Views stay valid across appends and see the grown shape.
type ArrayView struct {
	s *Session
	n *node
}

// Shape returns a copy of the dataset's current shape.
func (v *ArrayView) Shape() ([]uint64, error) {
	if err := v.s.check(v.n); err != nil {
		return nil, err
	}
	return append([]uint64(nil), v.n.shape...), nil
}

// SliceShape returns the result shape of the given ranges without reading.
func (v *ArrayView) SliceShape(ranges []Range) ([]uint64, error) {
	if err := v.s.check(v.n); err != nil {
		return nil, err
	}
	if err := v.validate(ranges); err != nil {
		return nil, err
	}
	out := make([]uint64, len(ranges))
	for d, r := range ranges {
		out[d] = r.length()
	}
	return out, nil
}

// ReadAll reads every element in row-major order into dest, a pointer to
// the natural slice type for the element tag (*[]float64, *[]string, ...)
// or *any.
func (v *ArrayView) ReadAll(dest any) error {
	if err := v.s.check(v.n); err != nil {
		return err
	}
	raw, err := v.n.currentLayout(v.s).Read()
	if err != nil {
		return fmt.Errorf("reading %s: %w", v.n.path(), mapLayoutErr(err))
	}
	return dtype.Convert(v.n.spec, raw, int(v.n.numElements()), dest)
}

// ReadSlice reads the hyperslab selected by ranges into dest. One range
// per dimension; elements arrive in row-major order of the selection.
// Only the selected region is fetched from storage.
func (v *ArrayView) ReadSlice(dest any, ranges []Range) error {
	if err := v.s.check(v.n); err != nil {
		return err
	}
	if err := v.validate(ranges); err != nil {
		return err
	}

	total := uint64(1)
	for _, r := range ranges {
		total *= r.length()
	}
	if total == 0 {
		return dtype.Convert(v.n.spec, nil, 0, dest)
	}

	if v.n.spec.ElementSize() == 0 {
		return v.readVariableSlice(dest, ranges[0])
	}

	raw, err := v.readFixedSlice(ranges)
	if err != nil {
		return err
	}
	return dtype.Convert(v.n.spec, raw, int(total), dest)
}

// readFixedSlice fetches a fixed-width selection. Unit-step selections map
// directly to one storage hyperslab; strided selections fetch the bounding
// box and pick the stride elements out of it.
func (v *ArrayView) readFixedSlice(ranges []Range) ([]byte, error) {
	lay := v.n.currentLayout(v.s)
	start := make([]uint64, len(ranges))
	strided := false
	for d, r := range ranges {
		start[d] = r.Start
		if r.step() != 1 {
			strided = true
		}
	}

	if !strided {
		count := make([]uint64, len(ranges))
		for d, r := range ranges {
			count[d] = r.Stop - r.Start
		}
		raw, err := lay.ReadSlice(start, count)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", v.n.path(), mapLayoutErr(err))
		}
		return raw, nil
	}

	// Bounding box: the last selected index per dimension, inclusive.
	box := make([]uint64, len(ranges))
	for d, r := range ranges {
		box[d] = (r.length()-1)*r.step() + 1
	}
	raw, err := lay.ReadSlice(start, box)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", v.n.path(), mapLayoutErr(err))
	}
	return extractStrided(raw, box, ranges, uint64(v.n.spec.ElementSize())), nil
}

// extractStrided selects stride elements out of a materialized bounding
// box. box gives the box dims; each range's Start is already accounted for.
func extractStrided(raw []byte, box []uint64, ranges []Range, elemSize uint64) []byte {
	ndims := len(box)
	strides := make([]uint64, ndims)
	strides[ndims-1] = elemSize
	for d := ndims - 2; d >= 0; d-- {
		strides[d] = strides[d+1] * box[d+1]
	}

	counts := make([]uint64, ndims)
	total := uint64(1)
	for d, r := range ranges {
		counts[d] = r.length()
		total *= counts[d]
	}

	out := make([]byte, total*elemSize)
	cursor := make([]uint64, ndims)
	for i := uint64(0); i < total; i++ {
		srcOff := uint64(0)
		for d := 0; d < ndims; d++ {
			srcOff += cursor[d] * ranges[d].step() * strides[d]
		}
		copy(out[i*elemSize:(i+1)*elemSize], raw[srcOff:srcOff+elemSize])

		for d := ndims - 1; d >= 0; d-- {
			cursor[d]++
			if cursor[d] < counts[d] {
				break
			}
			cursor[d] = 0
		}
	}
	return out
}

// readVariableSlice reads a selection of variable-width elements. The whole
// region is framed by per-element length prefixes, so it is materialized
// once and the selected elements are carved out of it.
func (v *ArrayView) readVariableSlice(dest any, r Range) error {
	raw, err := v.n.currentLayout(v.s).Read()
	if err != nil {
		return fmt.Errorf("reading %s: %w", v.n.path(), mapLayoutErr(err))
	}
	total := int(v.n.numElements())

	if r.step() == 1 {
		region, err := dtype.SliceVariable(raw, total, int(r.Start), int(r.Stop))
		if err != nil {
			return fmt.Errorf("reading %s: %w", v.n.path(), err)
		}
		return dtype.Convert(v.n.spec, region, int(r.length()), dest)
	}

	var region []byte
	count := 0
	for i := r.Start; i < r.Stop; i += r.step() {
		elem, err := dtype.SliceVariable(raw, total, int(i), int(i)+1)
		if err != nil {
			return fmt.Errorf("reading %s: %w", v.n.path(), err)
		}
		region = append(region, elem...)
		count++
	}
	return dtype.Convert(v.n.spec, region, count, dest)
}

// validate checks ranges against the dataset's current shape.
func (v *ArrayView) validate(ranges []Range) error {
	if len(ranges) != len(v.n.shape) {
		return fmt.Errorf("%w: %d ranges for rank-%d dataset %s",
			ErrIndexOutOfRange, len(ranges), len(v.n.shape), v.n.path())
	}
	for d, r := range ranges {
		if r.Stop < r.Start || r.Stop > v.n.shape[d] {
			return fmt.Errorf("%w: dimension %d, range [%d:%d) of %d in %s",
				ErrIndexOutOfRange, d, r.Start, r.Stop, v.n.shape[d], v.n.path())
		}
	}
	return nil
}

// mapLayoutErr folds internal layout errors into the public taxonomy.
func mapLayoutErr(err error) error {
	if errors.Is(err, layout.ErrOutOfBounds) {
		return fmt.Errorf("%w: %v", ErrIndexOutOfRange, err)
	}
	return err
}

// Float64s reads the full dataset as []float64.
func (v *ArrayView) Float64s() ([]float64, error) {
	var out []float64
	err := v.ReadAll(&out)
	return out, err
}

// Int64s reads the full dataset as []int64.
func (v *ArrayView) Int64s() ([]int64, error) {
	var out []int64
	err := v.ReadAll(&out)
	return out, err
}

// Uint64s reads the full dataset as []uint64.
func (v *ArrayView) Uint64s() ([]uint64, error) {
	var out []uint64
	err := v.ReadAll(&out)
	return out, err
}

// Bools reads the full dataset as []bool.
func (v *ArrayView) Bools() ([]bool, error) {
	var out []bool
	err := v.ReadAll(&out)
	return out, err
}

// Strings reads the full dataset as []string.
func (v *ArrayView) Strings() ([]string, error) {
	var out []string
	err := v.ReadAll(&out)
	return out, err
}
