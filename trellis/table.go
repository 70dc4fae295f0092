package trellis

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/trellis-data/trellis/internal/dtype"
)

// json is a drop-in replacement for encoding/json.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Table attribute names and reserved column names.
const (
	tableClassAttr    = "table_class"
	tableClassValue   = "dynamic"
	tableDescAttr     = "description"
	tableColsAttr     = "colnames"
	tableRowsAttr     = "rows"
	tableMaskModeAttr = "mask_mode"
	tableMaskTagAttr  = "mask_tag"

	colDescAttr = "description"

	// indexSuffix names the companion end-offset dataset of a ragged column.
	indexSuffix = "_index"
)

// Mask column modes. A table that has mask columns enabled stores exactly
// one of the two per row; the first row added locks the mode for the
// table's lifetime.
const (
	MaskModeImage = "image"
	MaskModePixel = "pixel"

	MaskImageColumn = "image_mask"
	MaskPixelColumn = "pixel_mask"
)

// DynamicTable is a group of aligned column datasets with uniform row
// count. Flat columns hold one fixed-shape value per row; ragged columns
// pair a values dataset with an end-offset index dataset.
type DynamicTable struct {
	s *Session
	n *node
}

// CreateTable creates an empty dynamic table under the group.
func (g *Group) CreateTable(name, description string) (*DynamicTable, error) {
	sub, err := g.CreateGroup(name)
	if err != nil {
		return nil, err
	}
	n := sub.n
	if err := setAttr(n, tableClassAttr, tableClassValue); err != nil {
		return nil, err
	}
	if err := setAttr(n, tableDescAttr, description); err != nil {
		return nil, err
	}
	if err := setAttr(n, tableColsAttr, []string{}); err != nil {
		return nil, err
	}
	if err := setAttr(n, tableRowsAttr, uint64(0)); err != nil {
		return nil, err
	}
	return &DynamicTable{s: g.s, n: n}, nil
}

// OpenTable opens a dynamic table by relative slash path.
func (g *Group) OpenTable(relativePath string) (*DynamicTable, error) {
	n, err := g.resolve(relativePath)
	if err != nil {
		return nil, err
	}
	if n.kind != KindGroup {
		return nil, ErrNotTable
	}
	t := &DynamicTable{s: g.s, n: n}
	if t.attrString(tableClassAttr) != tableClassValue {
		return nil, fmt.Errorf("%w: %s", ErrNotTable, n.path())
	}
	return t, nil
}

// Name returns the table name.
func (t *DynamicTable) Name() string {
	return t.n.name
}

// Path returns the table's absolute path.
func (t *DynamicTable) Path() string {
	return t.n.path()
}

// Group returns the table's underlying group, for attribute access and
// inspection of the column datasets.
func (t *DynamicTable) Group() *Group {
	return &Group{s: t.s, n: t.n}
}

// Description returns the table's description.
func (t *DynamicTable) Description() string {
	return t.attrString(tableDescAttr)
}

// NumRows returns the current row count. Every column dataset's leading
// dimension equals this at all times.
func (t *DynamicTable) NumRows() uint64 {
	return t.attrUint64(tableRowsAttr)
}

// Columns returns the column names in declaration order. Ragged columns
// appear once; their index datasets are an implementation detail.
func (t *DynamicTable) Columns() []string {
	return t.attrStrings(tableColsAttr)
}

// MaskEnabled reports whether mask columns have been enabled.
func (t *DynamicTable) MaskEnabled() bool {
	return attrHandle(t.s, t.n, tableMaskTagAttr) != nil
}

// MaskMode returns the locked mask mode ("image" or "pixel"), or "" while
// no row has locked one.
func (t *DynamicTable) MaskMode() string {
	return t.attrString(tableMaskModeAttr)
}

// EnableMaskColumns declares that rows of this table carry a mask, stored
// as a ragged column of the given element tag. The concrete column
// (image_mask or pixel_mask) is created when the first row locks the
// mode. Must be called before any rows exist.
func (t *DynamicTable) EnableMaskColumns(tag Tag) error {
	if err := t.s.checkWrite(t.n); err != nil {
		return err
	}
	if t.MaskEnabled() {
		return fmt.Errorf("%w: mask columns already enabled on %s", ErrInconsistentMaskMode, t.Path())
	}
	if t.NumRows() > 0 {
		return fmt.Errorf("%w: cannot enable mask columns on %s with %d existing rows",
			ErrInconsistentMaskMode, t.Path(), t.NumRows())
	}
	if err := setAttr(t.n, tableMaskTagAttr, uint8(tag)); err != nil {
		return err
	}
	return setAttr(t.n, tableMaskModeAttr, "")
}

// AddColumn declares a column. Flat columns hold one value per row (a
// scalar, or a fixed-shape array with WithRowShape); Ragged columns hold a
// variable-length list per row. Adding a column to a table that already
// has rows requires a complete backfill, one value per existing row.
// Nothing is mutated unless every validation and every backfill value
// encode succeeds.
func (t *DynamicTable) AddColumn(name string, tag Tag, description string, opts ...ColumnOption) error {
	if err := t.s.checkWrite(t.n); err != nil {
		return err
	}
	if err := validateName(name); err != nil {
		return err
	}
	if strings.HasSuffix(name, indexSuffix) {
		return fmt.Errorf("column name %q: suffix %q is reserved for ragged index datasets", name, indexSuffix)
	}
	if name == MaskImageColumn || name == MaskPixelColumn {
		return fmt.Errorf("column name %q is reserved, use EnableMaskColumns", name)
	}
	if _, exists := t.n.children[name]; exists {
		return fmt.Errorf("%w: %q in table %s", ErrColumnExists, name, t.Path())
	}

	options := defaultColumnOptions()
	for _, opt := range opts {
		opt(options)
	}
	if options.ragged && options.rowShape != nil {
		return fmt.Errorf("column %q: ragged columns cannot have a row shape", name)
	}

	spec := dtype.Spec{Tag: tag}
	if err := spec.Validate(); err != nil {
		return fmt.Errorf("column %q: %w", name, err)
	}
	if spec.ElementSize() == 0 && options.rowShape != nil {
		return fmt.Errorf("column %q: variable-width elements cannot have a row shape", name)
	}

	rows := t.NumRows()
	if uint64(len(options.backfill)) != rows {
		return fmt.Errorf("%w: column %q: %d backfill values for %d rows",
			ErrIncompleteBackfill, name, len(options.backfill), rows)
	}

	// Stage every backfill encode before touching the tree.
	staged, err := t.stageColumn(name, spec, options)
	if err != nil {
		return err
	}

	t.createColumn(name, spec, options, description, staged)
	return setAttr(t.n, tableColsAttr, append(t.Columns(), name))
}

// stagedColumn holds the fully encoded backfill of a new column.
type stagedColumn struct {
	values []byte
	rows   uint64   // leading-dimension growth of the values dataset
	ends   []uint64 // ragged end offsets, one per row
}

func (t *DynamicTable) stageColumn(name string, spec dtype.Spec, options *columnOptions) (*stagedColumn, error) {
	staged := &stagedColumn{}
	rowElems := uint64(1)
	for _, d := range options.rowShape {
		rowElems *= d
	}

	end := uint64(0)
	for i, value := range options.backfill {
		raw, count, err := encodeCell(spec, value)
		if err != nil {
			return nil, fmt.Errorf("column %q backfill row %d: %w", name, i, err)
		}
		if options.ragged {
			end += uint64(count)
			staged.ends = append(staged.ends, end)
			staged.rows += uint64(count)
		} else {
			if uint64(count) != rowElems {
				return nil, fmt.Errorf("%w: column %q backfill row %d: %d elements, want %d",
					ErrTypeMismatch, name, i, count, rowElems)
			}
			staged.rows++
		}
		staged.values = append(staged.values, raw...)
	}
	return staged, nil
}

// createColumn materializes the column datasets. Called only after all
// validation and staging has succeeded; nothing here can fail.
func (t *DynamicTable) createColumn(name string, spec dtype.Spec, options *columnOptions, description string, staged *stagedColumn) {
	values := &node{
		kind:       KindDataset,
		name:       name,
		parent:     t.n,
		attrs:      make(map[string]attrValue),
		spec:       spec,
		appendable: true,
		buf:        staged.values,
	}
	if options.ragged {
		values.shape = []uint64{staged.rows}
	} else {
		values.shape = append([]uint64{staged.rows}, options.rowShape...)
	}
	setAttr(values, colDescAttr, description)
	t.n.children[name] = values

	if options.ragged {
		index := &node{
			kind:       KindDataset,
			name:       name + indexSuffix,
			parent:     t.n,
			attrs:      make(map[string]attrValue),
			spec:       dtype.Spec{Tag: dtype.TagUint64},
			appendable: true,
			shape:      []uint64{uint64(len(staged.ends))},
		}
		for _, end := range staged.ends {
			raw, _, _ := dtype.Encode(index.spec, end)
			index.buf = append(index.buf, raw...)
		}
		t.n.children[name+indexSuffix] = index
	}
}

// encodeCell encodes one cell value, resolving region references to their
// stored compound records first.
func encodeCell(spec dtype.Spec, value any) ([]byte, int, error) {
	if ref, ok := value.(*RegionRef); ok {
		rec, err := ref.encode()
		if err != nil {
			return nil, 0, err
		}
		value = rec
	}
	return dtype.Encode(spec, value)
}

// stagedAppend is one pending dataset append of a validated row.
type stagedAppend struct {
	n    *node
	raw  []byte
	rows uint64
}

// AddRow appends one row. values must supply every declared column by
// name, plus exactly one mask value when mask columns are enabled. The
// row is appended atomically: every value is validated and encoded before
// any dataset grows, so a failed AddRow leaves the table unchanged.
func (t *DynamicTable) AddRow(values map[string]any) error {
	if err := t.s.checkWrite(t.n); err != nil {
		return err
	}

	cols := t.Columns()
	declared := make(map[string]bool, len(cols))
	for _, col := range cols {
		declared[col] = true
	}

	maskCol, err := t.checkMaskValue(values)
	if err != nil {
		return err
	}

	for name := range values {
		if !declared[name] && name != maskCol {
			return fmt.Errorf("%w: %q in table %s", ErrUnknownColumn, name, t.Path())
		}
	}
	for _, col := range cols {
		if _, ok := values[col]; !ok {
			return fmt.Errorf("%w: column %q in table %s", ErrMissingColumnValue, col, t.Path())
		}
	}

	// Stage every append before mutating anything.
	var staged []stagedAppend
	for _, col := range cols {
		if col == maskCol {
			continue
		}
		appends, err := t.stageCell(col, values[col])
		if err != nil {
			return err
		}
		staged = append(staged, appends...)
	}

	if maskCol != "" {
		// The mask column dataset is created by the first row that locks
		// the mode, after its value (and every other column) has validated.
		if !declared[maskCol] {
			spec := dtype.Spec{Tag: Tag(t.attrUint64(tableMaskTagAttr))}
			if _, _, err := encodeCell(spec, values[maskCol]); err != nil {
				return fmt.Errorf("column %q: %w", maskCol, err)
			}
			t.createColumn(maskCol, spec, &columnOptions{ragged: true},
				"per-row mask values", &stagedColumn{})
			if err := setAttr(t.n, tableColsAttr, append(cols, maskCol)); err != nil {
				return err
			}
			mode := MaskModeImage
			if maskCol == MaskPixelColumn {
				mode = MaskModePixel
			}
			if err := setAttr(t.n, tableMaskModeAttr, mode); err != nil {
				return err
			}
		}
		appends, err := t.stageCell(maskCol, values[maskCol])
		if err != nil {
			return err
		}
		staged = append(staged, appends...)
	}

	for _, ap := range staged {
		ap.n.buf = append(ap.n.buf, ap.raw...)
		ap.n.shape[0] += ap.rows
	}
	return setAttr(t.n, tableRowsAttr, t.NumRows()+1)
}

// checkMaskValue validates the mask part of a row and returns the mask
// column the row targets ("" when masks are disabled).
func (t *DynamicTable) checkMaskValue(values map[string]any) (string, error) {
	_, hasImage := values[MaskImageColumn]
	_, hasPixel := values[MaskPixelColumn]

	if !t.MaskEnabled() {
		if hasImage || hasPixel {
			return "", fmt.Errorf("%w: mask columns not enabled on %s", ErrUnknownColumn, t.Path())
		}
		return "", nil
	}

	if hasImage && hasPixel {
		return "", fmt.Errorf("%w: row supplies both %s and %s",
			ErrInconsistentMaskMode, MaskImageColumn, MaskPixelColumn)
	}
	if !hasImage && !hasPixel {
		return "", fmt.Errorf("%w: mask value in table %s", ErrMissingColumnValue, t.Path())
	}

	col := MaskImageColumn
	if hasPixel {
		col = MaskPixelColumn
	}
	if mode := t.MaskMode(); mode != "" {
		locked := MaskImageColumn
		if mode == MaskModePixel {
			locked = MaskPixelColumn
		}
		if col != locked {
			return "", fmt.Errorf("%w: table %s is locked to %s masks",
				ErrInconsistentMaskMode, t.Path(), mode)
		}
	}
	return col, nil
}

// stageCell encodes one cell for the named column and returns the pending
// appends it implies (one for a flat column, two for a ragged one).
func (t *DynamicTable) stageCell(col string, value any) ([]stagedAppend, error) {
	values, ok := t.n.children[col]
	if !ok {
		return nil, fmt.Errorf("%w: column %q in table %s", ErrUnknownColumn, col, t.Path())
	}

	raw, count, err := encodeCell(values.spec, value)
	if err != nil {
		return nil, fmt.Errorf("column %q: %w", col, err)
	}

	index, ragged := t.n.children[col+indexSuffix]
	if !ragged {
		if uint64(count) != values.rowElements() {
			return nil, fmt.Errorf("%w: column %q: %d elements, want %d",
				ErrTypeMismatch, col, count, values.rowElements())
		}
		return []stagedAppend{{n: values, raw: raw, rows: 1}}, nil
	}

	end := values.shape[0] + uint64(count)
	endRaw, _, err := dtype.Encode(index.spec, end)
	if err != nil {
		return nil, fmt.Errorf("column %q: %w", col, err)
	}
	return []stagedAppend{
		{n: values, raw: raw, rows: uint64(count)},
		{n: index, raw: endRaw, rows: 1},
	}, nil
}

// Row reads one row: a column-name-to-value map. Flat single-element
// columns yield scalars, row-shaped columns yield flat slices, ragged
// columns yield the row's list.
func (t *DynamicTable) Row(i uint64) (map[string]any, error) {
	if err := t.s.check(t.n); err != nil {
		return nil, err
	}
	if i >= t.NumRows() {
		return nil, fmt.Errorf("%w: row %d of %d in table %s", ErrIndexOutOfRange, i, t.NumRows(), t.Path())
	}

	out := make(map[string]any, len(t.Columns()))
	for _, col := range t.Columns() {
		value, err := t.cellValue(col, i)
		if err != nil {
			return nil, err
		}
		out[col] = value
	}
	return out, nil
}

// cellValue reads one cell lazily, fetching only the row's region of the
// column dataset.
func (t *DynamicTable) cellValue(col string, i uint64) (any, error) {
	values, ok := t.n.children[col]
	if !ok {
		return nil, fmt.Errorf("%w: column %q in table %s", ErrUnknownColumn, col, t.Path())
	}

	if index, ragged := t.n.children[col+indexSuffix]; ragged {
		iv := &ArrayView{s: t.s, n: index}
		var ends []uint64
		lo := uint64(0)
		if i == 0 {
			if err := iv.ReadSlice(&ends, []Range{{Start: 0, Stop: 1}}); err != nil {
				return nil, err
			}
		} else {
			if err := iv.ReadSlice(&ends, []Range{{Start: i - 1, Stop: i + 1}}); err != nil {
				return nil, err
			}
			lo = ends[0]
			ends = ends[1:]
		}

		var out any
		vv := &ArrayView{s: t.s, n: values}
		if err := vv.ReadSlice(&out, []Range{{Start: lo, Stop: ends[0]}}); err != nil {
			return nil, err
		}
		return out, nil
	}

	ranges := make([]Range, len(values.shape))
	ranges[0] = Range{Start: i, Stop: i + 1}
	for d := 1; d < len(values.shape); d++ {
		ranges[d] = Range{Stop: values.shape[d]}
	}
	var out any
	v := &ArrayView{s: t.s, n: values}
	if err := v.ReadSlice(&out, ranges); err != nil {
		return nil, err
	}
	if values.rowElements() == 1 {
		return scalarOf(out), nil
	}
	return out, nil
}

// Column opens the values dataset backing a column.
func (t *DynamicTable) Column(name string) (*Dataset, error) {
	if err := t.s.check(t.n); err != nil {
		return nil, err
	}
	values, ok := t.n.children[name]
	if !ok || values.kind != KindDataset {
		return nil, fmt.Errorf("%w: column %q in table %s", ErrUnknownColumn, name, t.Path())
	}
	return &Dataset{s: t.s, n: values}, nil
}

// CreateRegion builds a weak reference to the given rows of this table.
// Indices are validated against the current row count; the reference
// itself stores no row data.
func (t *DynamicTable) CreateRegion(indices []uint64, description string) (*RegionRef, error) {
	if err := t.s.check(t.n); err != nil {
		return nil, err
	}
	rows := t.NumRows()
	for _, idx := range indices {
		if idx >= rows {
			return nil, fmt.Errorf("%w: region index %d, table %s has %d rows",
				ErrIndexOutOfRange, idx, t.Path(), rows)
		}
	}
	return &RegionRef{s: t.s, rec: regionRecord{
		Table:       t.n.path(),
		Indices:     append([]uint64(nil), indices...),
		Description: description,
	}}, nil
}

// Region decodes the region reference stored in a compound cell.
func (t *DynamicTable) Region(col string, i uint64) (*RegionRef, error) {
	if i >= t.NumRows() {
		return nil, fmt.Errorf("%w: row %d of %d in table %s", ErrIndexOutOfRange, i, t.NumRows(), t.Path())
	}
	value, err := t.cellValue(col, i)
	if err != nil {
		return nil, err
	}
	rec, ok := value.([]byte)
	if !ok {
		recs, isSlice := value.([][]byte)
		if !isSlice || len(recs) != 1 {
			return nil, fmt.Errorf("%w: column %q does not hold region records", ErrTypeMismatch, col)
		}
		rec = recs[0]
	}
	return decodeRegion(t.s, rec)
}

// TabularJSON renders the whole table as JSON for inspection. Compound
// cells holding region records render as references, never as the
// referenced rows.
func (t *DynamicTable) TabularJSON() ([]byte, error) {
	if err := t.s.check(t.n); err != nil {
		return nil, err
	}

	rows := make([]map[string]any, 0, t.NumRows())
	for i := uint64(0); i < t.NumRows(); i++ {
		row, err := t.Row(i)
		if err != nil {
			return nil, err
		}
		for col, value := range row {
			if rec, ok := value.([]byte); ok {
				if ref, err := decodeRegion(t.s, rec); err == nil && ref.rec.Table != "" {
					row[col] = ref
				}
			}
		}
		rows = append(rows, row)
	}

	return json.Marshal(struct {
		Description string           `json:"description,omitempty"`
		Columns     []string         `json:"columns"`
		Rows        []map[string]any `json:"rows"`
	}{t.Description(), t.Columns(), rows})
}

// attrString reads a scalar string attribute, or "" when absent.
func (t *DynamicTable) attrString(name string) string {
	a := attrHandle(t.s, t.n, name)
	if a == nil {
		return ""
	}
	var vs []string
	if a.Read(&vs) != nil || len(vs) == 0 {
		return ""
	}
	return vs[0]
}

// attrUint64 reads a scalar unsigned attribute, or 0 when absent.
func (t *DynamicTable) attrUint64(name string) uint64 {
	a := attrHandle(t.s, t.n, name)
	if a == nil {
		return 0
	}
	switch a.Tag() {
	case dtype.TagUint8:
		var vs []uint8
		if a.Read(&vs) != nil || len(vs) == 0 {
			return 0
		}
		return uint64(vs[0])
	default:
		var vs []uint64
		if a.Read(&vs) != nil || len(vs) == 0 {
			return 0
		}
		return vs[0]
	}
}

// attrStrings reads a string-array attribute, or nil when absent.
func (t *DynamicTable) attrStrings(name string) []string {
	a := attrHandle(t.s, t.n, name)
	if a == nil {
		return nil
	}
	var vs []string
	if a.Read(&vs) != nil {
		return nil
	}
	return vs
}
