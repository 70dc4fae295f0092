package dtype

import (
	"errors"
	"math"
	"testing"
)

func TestEncodeDecodeFloat64(t *testing.T) {
	spec := Spec{Tag: TagFloat64}
	in := []float64{0.0, 1.5, -2.25, math.Pi, math.Inf(1), math.SmallestNonzeroFloat64}

	raw, count, err := Encode(spec, in)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if count != len(in) {
		t.Fatalf("expected %d elements, got %d", len(in), count)
	}

	var out []float64
	if err := Convert(spec, raw, count, &out); err != nil {
		t.Fatalf("Convert failed: %v", err)
	}
	for i := range in {
		if math.Float64bits(out[i]) != math.Float64bits(in[i]) {
			t.Errorf("element %d: stored bits %x, got %x",
				i, math.Float64bits(in[i]), math.Float64bits(out[i]))
		}
	}
}

func TestEncodeDecodeScalar(t *testing.T) {
	raw, count, err := Encode(Spec{Tag: TagInt32}, int32(-42))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 element, got %d", count)
	}
	var out []int32
	if err := Convert(Spec{Tag: TagInt32}, raw, 1, &out); err != nil {
		t.Fatal(err)
	}
	if out[0] != -42 {
		t.Errorf("expected -42, got %d", out[0])
	}
}

func TestEncodeDecodeBool(t *testing.T) {
	in := []bool{true, false, true, true}
	raw, count, err := Encode(Spec{Tag: TagBool}, in)
	if err != nil {
		t.Fatal(err)
	}
	var out []bool
	if err := Convert(Spec{Tag: TagBool}, raw, count, &out); err != nil {
		t.Fatal(err)
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("element %d: expected %v, got %v", i, in[i], out[i])
		}
	}
}

func TestVariableStrings(t *testing.T) {
	spec := Spec{Tag: TagString}
	in := []string{"go", "", "left", "right", "日本語"}

	raw, count, err := Encode(spec, in)
	if err != nil {
		t.Fatal(err)
	}
	var out []string
	if err := Convert(spec, raw, count, &out); err != nil {
		t.Fatal(err)
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("element %d: expected %q, got %q", i, in[i], out[i])
		}
	}
}

func TestFixedStrings(t *testing.T) {
	spec := Spec{Tag: TagString, Mode: StringFixed, Width: 8}
	in := []string{"short", "exactly8"}

	raw, count, err := Encode(spec, in)
	if err != nil {
		t.Fatal(err)
	}
	if len(raw) != 16 {
		t.Fatalf("expected 16 bytes for 2 width-8 fields, got %d", len(raw))
	}

	var out []string
	if err := Convert(spec, raw, count, &out); err != nil {
		t.Fatal(err)
	}
	if out[0] != "short" || out[1] != "exactly8" {
		t.Errorf("got %v", out)
	}

	if _, _, err := Encode(spec, "far too long for 8"); err == nil {
		t.Error("expected error for overlong fixed string")
	}
}

func TestCompoundRecords(t *testing.T) {
	in := [][]byte{{1, 2, 3}, {}, {0xFF}}
	raw, count, err := Encode(Spec{Tag: TagCompound}, in)
	if err != nil {
		t.Fatal(err)
	}
	var out [][]byte
	if err := Convert(Spec{Tag: TagCompound}, raw, count, &out); err != nil {
		t.Fatal(err)
	}
	if len(out) != 3 || len(out[0]) != 3 || len(out[1]) != 0 || out[2][0] != 0xFF {
		t.Errorf("got %v", out)
	}
}

func TestTypeMismatch(t *testing.T) {
	if _, _, err := Encode(Spec{Tag: TagFloat64}, []int32{1}); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("expected ErrTypeMismatch on encode, got %v", err)
	}

	raw, _, _ := Encode(Spec{Tag: TagInt64}, []int64{1, 2})
	var out []float64
	if err := Convert(Spec{Tag: TagInt64}, raw, 2, &out); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("expected ErrTypeMismatch on convert, got %v", err)
	}
}

func TestCorruptData(t *testing.T) {
	// Fixed-width region shorter than count*size.
	if _, err := Decode(Spec{Tag: TagInt64}, []byte{1, 2, 3}, 1); !errors.Is(err, ErrCorruptData) {
		t.Errorf("expected ErrCorruptData for short region, got %v", err)
	}

	// Variable string whose length prefix overruns the region.
	bad := []byte{200, 0, 0, 0, 'x'}
	if _, err := Decode(Spec{Tag: TagString}, bad, 1); !errors.Is(err, ErrCorruptData) {
		t.Errorf("expected ErrCorruptData for overrunning string, got %v", err)
	}

	// Trailing garbage after the declared element count.
	raw, _, _ := Encode(Spec{Tag: TagString}, []string{"a"})
	raw = append(raw, 0xAA)
	if _, err := Decode(Spec{Tag: TagString}, raw, 1); !errors.Is(err, ErrCorruptData) {
		t.Errorf("expected ErrCorruptData for trailing bytes, got %v", err)
	}
}

func TestSliceVariable(t *testing.T) {
	spec := Spec{Tag: TagString}
	in := []string{"aa", "b", "cccc", "dd"}
	raw, _, err := Encode(spec, in)
	if err != nil {
		t.Fatal(err)
	}

	region, err := SliceVariable(raw, 4, 1, 3)
	if err != nil {
		t.Fatalf("SliceVariable failed: %v", err)
	}
	var out []string
	if err := Convert(spec, region, 2, &out); err != nil {
		t.Fatal(err)
	}
	if out[0] != "b" || out[1] != "cccc" {
		t.Errorf("got %v", out)
	}

	empty, err := SliceVariable(raw, 4, 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(empty) != 0 {
		t.Errorf("expected empty region, got %d bytes", len(empty))
	}

	if _, err := SliceVariable(raw, 4, 3, 5); !errors.Is(err, ErrCorruptData) {
		t.Errorf("expected ErrCorruptData for out-of-range slice, got %v", err)
	}
}

func TestSpecValidate(t *testing.T) {
	if err := (Spec{Tag: TagFloat32}).Validate(); err != nil {
		t.Errorf("valid spec rejected: %v", err)
	}
	if err := (Spec{Tag: TagString, Mode: StringFixed}).Validate(); err == nil {
		t.Error("expected error for fixed strings without width")
	}
	if err := (Spec{Tag: TagInt8, Width: 4}).Validate(); err == nil {
		t.Error("expected error for width on non-string tag")
	}
	if err := (Spec{Tag: Tag(99)}).Validate(); err == nil {
		t.Error("expected error for unknown tag")
	}
}
