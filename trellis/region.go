package trellis

import (
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/trellis-data/trellis/internal/dtype"
)

// regionRecord is the stored form of a table region reference.
type regionRecord struct {
	Table       string   `msgpack:"table"`
	Indices     []uint64 `msgpack:"indices"`
	Description string   `msgpack:"desc"`
}

// RegionRef is a weak reference to a subset of a dynamic table's rows. It
// stores the table's path and row indices, never row data; referenced rows
// are fetched at resolve time. Removing the table, or rows falling out of
// range, surfaces as an error on Resolve, not at creation or load.
type RegionRef struct {
	s   *Session
	rec regionRecord
}

// Row is one resolved table row: its index and the value of every column.
type Row struct {
	Index  uint64
	Values map[string]any
}

// TablePath returns the absolute path of the referenced table.
func (r *RegionRef) TablePath() string {
	return r.rec.Table
}

// Indices returns a copy of the referenced row indices.
func (r *RegionRef) Indices() []uint64 {
	return append([]uint64(nil), r.rec.Indices...)
}

// Description returns the human-readable purpose of the region.
func (r *RegionRef) Description() string {
	return r.rec.Description
}

func (r *RegionRef) encode() ([]byte, error) {
	rec, err := msgpack.Marshal(r.rec)
	if err != nil {
		return nil, fmt.Errorf("encoding region reference: %w", err)
	}
	return rec, nil
}

func decodeRegion(s *Session, rec []byte) (*RegionRef, error) {
	r := &RegionRef{s: s}
	if err := msgpack.Unmarshal(rec, &r.rec); err != nil {
		return nil, fmt.Errorf("%w: region record: %w", ErrCorruptData, err)
	}
	return r, nil
}

// Resolve fetches the referenced rows from the table. It fails with
// ErrDanglingReference when the table no longer exists (or is not a
// table), and with ErrIndexOutOfRange when an index exceeds the table's
// current row count.
func (r *RegionRef) Resolve() ([]Row, error) {
	if r.s == nil || r.s.closed {
		return nil, ErrInvalidHandle
	}

	t, err := r.s.OpenTable(r.rec.Table)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrNotTable) || errors.Is(err, ErrNotGroup) {
			return nil, fmt.Errorf("%w: table %q: %v", ErrDanglingReference, r.rec.Table, err)
		}
		return nil, err
	}

	rows := t.NumRows()
	out := make([]Row, 0, len(r.rec.Indices))
	for _, idx := range r.rec.Indices {
		if idx >= rows {
			return nil, fmt.Errorf("%w: region index %d, table %q has %d rows",
				ErrIndexOutOfRange, idx, r.rec.Table, rows)
		}
		values, err := t.Row(idx)
		if err != nil {
			return nil, err
		}
		out = append(out, Row{Index: idx, Values: values})
	}
	return out, nil
}

// MarshalJSON renders the reference itself (table path, indices,
// description), never the referenced data.
func (r *RegionRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Table       string   `json:"table"`
		Indices     []uint64 `json:"indices"`
		Description string   `json:"description,omitempty"`
	}{r.rec.Table, r.rec.Indices, r.rec.Description})
}

// Region decodes an attribute holding a region reference.
func (a *Attribute) Region() (*RegionRef, error) {
	if err := a.s.check(a.n); err != nil {
		return nil, err
	}
	if dtype.TagCompound != a.Tag() {
		return nil, fmt.Errorf("%w: attribute %q is %s, not a region record",
			ErrTypeMismatch, a.name, a.Tag())
	}
	var recs [][]byte
	if err := a.Read(&recs); err != nil {
		return nil, err
	}
	if len(recs) != 1 {
		return nil, fmt.Errorf("%w: attribute %q holds %d records, want 1",
			ErrTypeMismatch, a.name, len(recs))
	}
	return decodeRegion(a.s, recs[0])
}
