// Package trellis implements a typed hierarchical container store with
// lazy, sliceable array access and dynamic tables with row references.
package trellis

import (
	"errors"

	"github.com/trellis-data/trellis/internal/dtype"
)

// Common errors.
var (
	ErrNotTrellis           = errors.New("not a trellis container")
	ErrNameCollision        = errors.New("name already in use by a sibling")
	ErrNotFound             = errors.New("object not found")
	ErrInvalidHandle        = errors.New("handle invalidated by close or removal")
	ErrReadOnlyViolation    = errors.New("session is read-only")
	ErrTypeMismatch         = dtype.ErrTypeMismatch
	ErrCorruptData          = dtype.ErrCorruptData
	ErrIndexOutOfRange      = errors.New("index out of range")
	ErrColumnExists         = errors.New("column already exists")
	ErrMissingColumnValue   = errors.New("missing value for required column")
	ErrUnknownColumn        = errors.New("value supplied for undeclared column")
	ErrIncompleteBackfill   = errors.New("backfill does not cover existing rows")
	ErrInconsistentMaskMode = errors.New("mask representation conflicts with the table's locked mask mode")
	ErrDanglingReference    = errors.New("region reference target no longer exists")
	ErrResourceBusy         = errors.New("file already open in write mode")
	ErrNotGroup             = errors.New("object is not a group")
	ErrNotDataset           = errors.New("object is not a dataset")
	ErrNotTable             = errors.New("group is not a dynamic table")
)
