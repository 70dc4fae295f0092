package trellis

import (
	"errors"
	"testing"
)

// sliceFixture commits a (50,4) float64 dataset with element value
// row*4+col and reopens it read-only.
func sliceFixture(t *testing.T, opts ...DatasetOption) *Session {
	t.Helper()
	s, err := Create(containerPath(t))
	if err != nil {
		t.Fatal(err)
	}
	in := make([]float64, 50*4)
	for i := range in {
		in[i] = float64(i)
	}
	if _, err := s.Root().CreateDataset("grid", TagFloat64, []uint64{50, 4}, in, opts...); err != nil {
		t.Fatal(err)
	}
	return writeReopen(t, s)
}

func TestSliceMatchesFullRead(t *testing.T) {
	for name, opts := range map[string][]DatasetOption{
		"contiguous": nil,
		"chunked":    {WithChunks(7, 3)},
		"compressed": {WithChunks(7, 3), WithCompression()},
	} {
		t.Run(name, func(t *testing.T) {
			r := sliceFixture(t, opts...)
			ds, err := r.OpenDataset("grid")
			if err != nil {
				t.Fatal(err)
			}
			view := ds.View()

			full, err := view.Float64s()
			if err != nil {
				t.Fatal(err)
			}

			ranges := []Range{{Start: 10, Stop: 30}, {Start: 1, Stop: 3}}
			var sliced []float64
			if err := view.ReadSlice(&sliced, ranges); err != nil {
				t.Fatal(err)
			}

			shape, err := view.SliceShape(ranges)
			if err != nil {
				t.Fatal(err)
			}
			if shape[0] != 20 || shape[1] != 2 {
				t.Fatalf("expected slice shape [20 2], got %v", shape)
			}

			k := 0
			for row := uint64(10); row < 30; row++ {
				for col := uint64(1); col < 3; col++ {
					if sliced[k] != full[row*4+col] {
						t.Fatalf("slice element %d: expected %v, got %v", k, full[row*4+col], sliced[k])
					}
					k++
				}
			}
		})
	}
}

func TestStridedSlice(t *testing.T) {
	r := sliceFixture(t)
	ds, err := r.OpenDataset("grid")
	if err != nil {
		t.Fatal(err)
	}

	var got []float64
	ranges := []Range{{Start: 5, Stop: 20, Step: 5}, {Start: 0, Stop: 4, Step: 3}}
	if err := ds.View().ReadSlice(&got, ranges); err != nil {
		t.Fatal(err)
	}

	// Rows 5, 10, 15; columns 0, 3.
	want := []float64{20, 23, 40, 43, 60, 63}
	if len(got) != len(want) {
		t.Fatalf("expected %d elements, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("element %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestZeroLengthSlice(t *testing.T) {
	r := sliceFixture(t)
	ds, err := r.OpenDataset("grid")
	if err != nil {
		t.Fatal(err)
	}
	var got []float64
	if err := ds.View().ReadSlice(&got, []Range{{Start: 10, Stop: 10}, {Start: 0, Stop: 4}}); err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty result, got %v", got)
	}
}

func TestSliceOutOfRange(t *testing.T) {
	r := sliceFixture(t)
	ds, err := r.OpenDataset("grid")
	if err != nil {
		t.Fatal(err)
	}
	var got []float64

	// Stop beyond the dimension.
	err = ds.View().ReadSlice(&got, []Range{{Start: 0, Stop: 51}, {Start: 0, Stop: 4}})
	if !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("expected ErrIndexOutOfRange, got %v", err)
	}
	// Rank mismatch.
	err = ds.View().ReadSlice(&got, []Range{{Start: 0, Stop: 5}})
	if !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("expected ErrIndexOutOfRange for rank mismatch, got %v", err)
	}
	// Inverted range.
	err = ds.View().ReadSlice(&got, []Range{{Start: 5, Stop: 2}, {Start: 0, Stop: 4}})
	if !errors.Is(err, ErrIndexOutOfRange) {
		t.Errorf("expected ErrIndexOutOfRange for inverted range, got %v", err)
	}
}

func TestVariableStringSlices(t *testing.T) {
	s, err := Create(containerPath(t))
	if err != nil {
		t.Fatal(err)
	}
	in := []string{"zero", "one", "two", "three", "four", "five"}
	if _, err := s.Root().CreateDataset("words", TagString, []uint64{6}, in); err != nil {
		t.Fatal(err)
	}
	r := writeReopen(t, s)

	ds, err := r.OpenDataset("words")
	if err != nil {
		t.Fatal(err)
	}

	var got []string
	if err := ds.View().ReadSlice(&got, []Range{{Start: 2, Stop: 5}}); err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[0] != "two" || got[2] != "four" {
		t.Errorf("expected [two three four], got %v", got)
	}

	// Strided selection over variable-width elements.
	if err := ds.View().ReadSlice(&got, []Range{{Start: 1, Stop: 6, Step: 2}}); err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[0] != "one" || got[1] != "three" || got[2] != "five" {
		t.Errorf("expected [one three five], got %v", got)
	}
}

func TestViewBeforeCommit(t *testing.T) {
	s, err := Create(containerPath(t))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	in := []int64{9, 8, 7, 6}
	ds, err := s.Root().CreateDataset("mem", TagInt64, []uint64{2, 2}, in)
	if err != nil {
		t.Fatal(err)
	}

	var got []int64
	if err := ds.View().ReadSlice(&got, []Range{{Start: 1, Stop: 2}, {Start: 0, Stop: 2}}); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != 7 || got[1] != 6 {
		t.Errorf("expected [7 6], got %v", got)
	}
}
