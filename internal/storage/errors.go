package storage

import (
	"errors"
	"fmt"

	"tabload/internal/schema"
)

// ErrTableMissing is returned (wrapped) by Destination.Schema for a table
// that does not exist.
var ErrTableMissing = errors.New("table does not exist")

// DataError marks a row-level write failure: a value the destination column
// cannot hold, or a constraint the row violates. The loader recovers from it
// by splitting the chunk; every other error aborts the load.
type DataError struct {
	Table string
	Err   error
}

func (e *DataError) Error() string {
	return fmt.Sprintf("data error in table %q: %v", e.Table, e.Err)
}

func (e *DataError) Unwrap() error { return e.Err }

// IsDataError reports whether err is a row-level failure. Value conversion
// failures count as data errors.
func IsDataError(err error) bool {
	var de *DataError
	if errors.As(err, &de) {
		return true
	}
	var ce *schema.ConversionError
	return errors.As(err, &ce)
}
