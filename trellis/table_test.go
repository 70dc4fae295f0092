package trellis

import (
	"errors"
	"math"
	"strings"
	"testing"
)

// trialsTable builds the canonical fixture: a table of trials with float64
// start/stop times and a bool outcome column.
func trialsTable(t *testing.T, s *Session) *DynamicTable {
	t.Helper()
	tbl, err := s.Root().CreateTable("trials", "behavioral trials")
	if err != nil {
		t.Fatal(err)
	}
	for _, col := range []struct{ name, desc string }{
		{"start", "trial start time"},
		{"stop", "trial stop time"},
	} {
		if err := tbl.AddColumn(col.name, TagFloat64, col.desc); err != nil {
			t.Fatal(err)
		}
	}
	if err := tbl.AddColumn("correct", TagBool, "outcome"); err != nil {
		t.Fatal(err)
	}
	return tbl
}

func TestTrialsTableRoundTrip(t *testing.T) {
	s, err := Create(containerPath(t))
	if err != nil {
		t.Fatal(err)
	}
	tbl := trialsTable(t, s)

	rows := []struct {
		start, stop float64
		correct     bool
	}{
		{0.0, 1.25, true},
		{1.5, math.Pi, false},
		{4.0, 5.75, true},
	}
	for _, row := range rows {
		err := tbl.AddRow(map[string]any{
			"start": row.start, "stop": row.stop, "correct": row.correct,
		})
		if err != nil {
			t.Fatalf("AddRow failed: %v", err)
		}
	}
	if tbl.NumRows() != 3 {
		t.Fatalf("expected 3 rows, got %d", tbl.NumRows())
	}

	r := writeReopen(t, s)
	tbl2, err := r.OpenTable("/trials")
	if err != nil {
		t.Fatalf("OpenTable failed: %v", err)
	}
	if tbl2.Description() != "behavioral trials" {
		t.Errorf("description lost: %q", tbl2.Description())
	}
	if got := tbl2.Columns(); len(got) != 3 || got[0] != "start" || got[2] != "correct" {
		t.Errorf("expected columns [start stop correct], got %v", got)
	}
	if tbl2.NumRows() != 3 {
		t.Fatalf("expected 3 rows after reopen, got %d", tbl2.NumRows())
	}

	for i, want := range rows {
		row, err := tbl2.Row(uint64(i))
		if err != nil {
			t.Fatalf("Row(%d) failed: %v", i, err)
		}
		if math.Float64bits(row["start"].(float64)) != math.Float64bits(want.start) {
			t.Errorf("row %d start: expected %v, got %v", i, want.start, row["start"])
		}
		if math.Float64bits(row["stop"].(float64)) != math.Float64bits(want.stop) {
			t.Errorf("row %d stop: expected %v, got %v", i, want.stop, row["stop"])
		}
		if row["correct"].(bool) != want.correct {
			t.Errorf("row %d correct: expected %v, got %v", i, want.correct, row["correct"])
		}
	}

	// Columns are plain datasets underneath and can be read in bulk.
	col, err := tbl2.Column("correct")
	if err != nil {
		t.Fatal(err)
	}
	flags, err := col.View().Bools()
	if err != nil {
		t.Fatal(err)
	}
	if len(flags) != 3 || !flags[0] || flags[1] {
		t.Errorf("expected [true false true], got %v", flags)
	}
}

func TestAddRowAtomicity(t *testing.T) {
	s, err := Create(containerPath(t))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	tbl := trialsTable(t, s)

	if err := tbl.AddRow(map[string]any{"start": 0.0, "stop": 1.0, "correct": true}); err != nil {
		t.Fatal(err)
	}

	// Missing column.
	err = tbl.AddRow(map[string]any{"start": 2.0, "correct": true})
	if !errors.Is(err, ErrMissingColumnValue) {
		t.Errorf("expected ErrMissingColumnValue, got %v", err)
	}
	// Unknown column.
	err = tbl.AddRow(map[string]any{"start": 2.0, "stop": 3.0, "correct": true, "extra": 1.0})
	if !errors.Is(err, ErrUnknownColumn) {
		t.Errorf("expected ErrUnknownColumn, got %v", err)
	}
	// Wrong value type; earlier columns must not grow.
	err = tbl.AddRow(map[string]any{"start": 2.0, "stop": 3.0, "correct": "yes"})
	if !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("expected ErrTypeMismatch, got %v", err)
	}

	if tbl.NumRows() != 1 {
		t.Fatalf("failed AddRow mutated the table: %d rows", tbl.NumRows())
	}
	for _, name := range tbl.Columns() {
		col, err := tbl.Column(name)
		if err != nil {
			t.Fatal(err)
		}
		shape, err := col.Shape()
		if err != nil {
			t.Fatal(err)
		}
		if shape[0] != 1 {
			t.Errorf("column %q grew to %d rows on failed AddRow", name, shape[0])
		}
	}
}

func TestRaggedColumn(t *testing.T) {
	s, err := Create(containerPath(t))
	if err != nil {
		t.Fatal(err)
	}
	tbl, err := s.Root().CreateTable("units", "sorted units")
	if err != nil {
		t.Fatal(err)
	}
	if err := tbl.AddColumn("spike_times", TagFloat64, "per-unit spikes", Ragged()); err != nil {
		t.Fatal(err)
	}

	lists := [][]float64{
		{0.1, 0.2, 0.3},
		{},
		{1.5},
	}
	for _, list := range lists {
		if err := tbl.AddRow(map[string]any{"spike_times": list}); err != nil {
			t.Fatal(err)
		}
	}

	r := writeReopen(t, s)
	tbl2, err := r.OpenTable("units")
	if err != nil {
		t.Fatal(err)
	}
	for i, want := range lists {
		row, err := tbl2.Row(uint64(i))
		if err != nil {
			t.Fatal(err)
		}
		got := row["spike_times"].([]float64)
		if len(got) != len(want) {
			t.Fatalf("row %d: expected %d spikes, got %d", i, len(want), len(got))
		}
		for j := range want {
			if got[j] != want[j] {
				t.Errorf("row %d spike %d: expected %v, got %v", i, j, want[j], got[j])
			}
		}
	}
}

func TestRowShapedColumn(t *testing.T) {
	s, err := Create(containerPath(t))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	tbl, err := s.Root().CreateTable("probes", "")
	if err != nil {
		t.Fatal(err)
	}
	if err := tbl.AddColumn("position", TagFloat32, "xyz", WithRowShape(3)); err != nil {
		t.Fatal(err)
	}
	if err := tbl.AddRow(map[string]any{"position": []float32{1, 2, 3}}); err != nil {
		t.Fatal(err)
	}
	if err := tbl.AddRow(map[string]any{"position": []float32{1, 2}}); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("expected ErrTypeMismatch for short row, got %v", err)
	}

	row, err := tbl.Row(0)
	if err != nil {
		t.Fatal(err)
	}
	pos := row["position"].([]float32)
	if len(pos) != 3 || pos[2] != 3 {
		t.Errorf("expected [1 2 3], got %v", pos)
	}
}

func TestAddColumnBackfill(t *testing.T) {
	s, err := Create(containerPath(t))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	tbl := trialsTable(t, s)
	for i := 0; i < 2; i++ {
		if err := tbl.AddRow(map[string]any{"start": float64(i), "stop": float64(i) + 1, "correct": true}); err != nil {
			t.Fatal(err)
		}
	}

	// No backfill on a non-empty table.
	err = tbl.AddColumn("condition", TagString, "")
	if !errors.Is(err, ErrIncompleteBackfill) {
		t.Errorf("expected ErrIncompleteBackfill, got %v", err)
	}
	// Partial backfill.
	err = tbl.AddColumn("condition", TagString, "", WithBackfill("a"))
	if !errors.Is(err, ErrIncompleteBackfill) {
		t.Errorf("expected ErrIncompleteBackfill for partial backfill, got %v", err)
	}
	// Complete backfill.
	if err := tbl.AddColumn("condition", TagString, "", WithBackfill("a", "b")); err != nil {
		t.Fatalf("complete backfill rejected: %v", err)
	}

	row, err := tbl.Row(1)
	if err != nil {
		t.Fatal(err)
	}
	if row["condition"] != "b" {
		t.Errorf("expected backfilled \"b\", got %v", row["condition"])
	}

	// Future rows must now include the new column.
	err = tbl.AddRow(map[string]any{"start": 9.0, "stop": 10.0, "correct": false})
	if !errors.Is(err, ErrMissingColumnValue) {
		t.Errorf("expected ErrMissingColumnValue, got %v", err)
	}

	if err := tbl.AddColumn("condition", TagString, "", WithBackfill("x", "y")); !errors.Is(err, ErrColumnExists) {
		t.Errorf("expected ErrColumnExists, got %v", err)
	}
}

func TestMaskColumns(t *testing.T) {
	s, err := Create(containerPath(t))
	if err != nil {
		t.Fatal(err)
	}
	tbl, err := s.Root().CreateTable("rois", "segmented regions")
	if err != nil {
		t.Fatal(err)
	}
	if err := tbl.AddColumn("label", TagString, ""); err != nil {
		t.Fatal(err)
	}
	if err := tbl.EnableMaskColumns(TagFloat64); err != nil {
		t.Fatal(err)
	}
	if tbl.MaskMode() != "" {
		t.Fatalf("mode locked before any row: %q", tbl.MaskMode())
	}

	// A row with no mask value is incomplete.
	err = tbl.AddRow(map[string]any{"label": "r0"})
	if !errors.Is(err, ErrMissingColumnValue) {
		t.Errorf("expected ErrMissingColumnValue, got %v", err)
	}
	// Both mask kinds in one row.
	err = tbl.AddRow(map[string]any{
		"label": "r0", MaskImageColumn: []float64{1}, MaskPixelColumn: []float64{2},
	})
	if !errors.Is(err, ErrInconsistentMaskMode) {
		t.Errorf("expected ErrInconsistentMaskMode for double mask, got %v", err)
	}

	// First accepted row locks the mode.
	if err := tbl.AddRow(map[string]any{"label": "r0", MaskImageColumn: []float64{0, 1, 1, 0}}); err != nil {
		t.Fatal(err)
	}
	if tbl.MaskMode() != MaskModeImage {
		t.Errorf("expected image mode, got %q", tbl.MaskMode())
	}

	// The other representation is rejected and the row count is unchanged.
	err = tbl.AddRow(map[string]any{"label": "r1", MaskPixelColumn: []float64{3, 4}})
	if !errors.Is(err, ErrInconsistentMaskMode) {
		t.Errorf("expected ErrInconsistentMaskMode, got %v", err)
	}
	if tbl.NumRows() != 1 {
		t.Fatalf("row count changed on rejected mask row: %d", tbl.NumRows())
	}

	if err := tbl.AddRow(map[string]any{"label": "r1", MaskImageColumn: []float64{1, 1}}); err != nil {
		t.Fatal(err)
	}

	r := writeReopen(t, s)
	tbl2, err := r.OpenTable("rois")
	if err != nil {
		t.Fatal(err)
	}
	if tbl2.MaskMode() != MaskModeImage {
		t.Errorf("mask mode lost on round trip: %q", tbl2.MaskMode())
	}
	row, err := tbl2.Row(0)
	if err != nil {
		t.Fatal(err)
	}
	mask := row[MaskImageColumn].([]float64)
	if len(mask) != 4 || mask[1] != 1 {
		t.Errorf("expected mask [0 1 1 0], got %v", mask)
	}
}

func TestEnableMaskColumnsConstraints(t *testing.T) {
	s, err := Create(containerPath(t))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	tbl, err := s.Root().CreateTable("t", "")
	if err != nil {
		t.Fatal(err)
	}
	if err := tbl.AddColumn("v", TagInt32, ""); err != nil {
		t.Fatal(err)
	}
	if err := tbl.AddRow(map[string]any{"v": int32(1)}); err != nil {
		t.Fatal(err)
	}

	if err := tbl.EnableMaskColumns(TagFloat64); !errors.Is(err, ErrInconsistentMaskMode) {
		t.Errorf("expected error enabling masks with existing rows, got %v", err)
	}
	// Mask names are reserved even without masks enabled.
	if err := tbl.AddColumn(MaskImageColumn, TagFloat64, ""); err == nil {
		t.Error("expected reserved-name error")
	}
}

func TestTabularJSON(t *testing.T) {
	s, err := Create(containerPath(t))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	tbl := trialsTable(t, s)
	if err := tbl.AddRow(map[string]any{"start": 0.5, "stop": 1.5, "correct": true}); err != nil {
		t.Fatal(err)
	}

	out, err := tbl.TabularJSON()
	if err != nil {
		t.Fatal(err)
	}
	text := string(out)
	for _, want := range []string{`"behavioral trials"`, `"start":0.5`, `"correct":true`} {
		if !strings.Contains(text, want) {
			t.Errorf("JSON missing %s: %s", want, text)
		}
	}
}
