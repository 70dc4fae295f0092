package trellis

import "github.com/trellis-data/trellis/internal/layout"

// DatasetOption configures dataset creation.
type DatasetOption func(*datasetOptions)

// attrDef holds an attribute definition supplied at creation time.
type attrDef struct {
	name  string
	value any
}

type datasetOptions struct {
	chunks      []uint64
	compression layout.Compression
	fixedWidth  int
	attributes  []attrDef
}

func defaultDatasetOptions() *datasetOptions {
	return &datasetOptions{}
}

// WithChunks sets the chunk dimensions for a chunked dataset. Chunked
// storage is required for compression and enables partial reads that skip
// unselected chunks.
func WithChunks(dims ...uint64) DatasetOption {
	return func(o *datasetOptions) {
		o.chunks = dims
	}
}

// WithCompression enables zstd compression of each stored chunk.
// Requires WithChunks.
func WithCompression() DatasetOption {
	return func(o *datasetOptions) {
		o.compression = layout.CompressionZstd
	}
}

// WithFixedStrings stores TagString elements as fixed-width NUL-padded
// fields of the given byte width instead of variable-length regions.
// The mode is immutable after creation.
func WithFixedStrings(width int) DatasetOption {
	return func(o *datasetOptions) {
		o.fixedWidth = width
	}
}

// WithAttribute attaches an attribute at creation time. The value can be a
// scalar or slice of: int8-64, uint8-64, float32/64, bool, string.
// Multiple WithAttribute options can be used.
func WithAttribute(name string, value any) DatasetOption {
	return func(o *datasetOptions) {
		o.attributes = append(o.attributes, attrDef{name: name, value: value})
	}
}

// ColumnOption configures a dynamic table column.
type ColumnOption func(*columnOptions)

type columnOptions struct {
	ragged   bool
	rowShape []uint64
	backfill []any
}

func defaultColumnOptions() *columnOptions {
	return &columnOptions{}
}

// Ragged declares an indexed column whose rows hold variable-length lists.
func Ragged() ColumnOption {
	return func(o *columnOptions) {
		o.ragged = true
	}
}

// WithRowShape declares a flat column whose every row is a fixed-shape
// array instead of a single element.
func WithRowShape(dims ...uint64) ColumnOption {
	return func(o *columnOptions) {
		o.rowShape = dims
	}
}

// WithBackfill supplies one value per existing row when a column is added
// to a table that already has rows. Required in that case; adding a column
// to a non-empty table without a complete backfill fails.
func WithBackfill(values ...any) ColumnOption {
	return func(o *columnOptions) {
		o.backfill = values
	}
}
