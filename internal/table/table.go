// Package table holds rows in memory together with the column metadata
// (names, types, primary key) and dialect they will be written with.
//
// A Table is not safe for concurrent use. The loader owns one table per chunk
// and hands it downstream by pointer.
package table

import (
	"fmt"

	"hermannm.dev/wrap"

	"tabload/internal/columns"
	"tabload/internal/schema"
)

// RowLengthError is returned by Append when a row's width does not match the
// table's column count.
type RowLengthError struct {
	Want, Got int
}

func (e *RowLengthError) Error() string {
	return fmt.Sprintf("row has %d values, table has %d columns", e.Got, e.Want)
}

// Table is an ordered sequence of rows. Every row has exactly Columns.Len()
// values; values are untyped until GuessTypes or the loader classifies them.
type Table struct {
	Name    string
	Dialect schema.Dialect
	Columns columns.List
	Rows    [][]any
}

// New returns an empty table with the given columns.
func New(name string, d schema.Dialect, cols columns.List) *Table {
	return &Table{Name: name, Dialect: d, Columns: cols}
}

// FromNames returns an empty table whose columns are named but untyped
// (schema.Null).
func FromNames(name string, d schema.Dialect, names []string) (*Table, error) {
	types := make([]schema.TypeTag, len(names))
	for i := range types {
		types[i] = schema.Null
	}
	cols, err := columns.FromNames(names, types)
	if err != nil {
		return nil, wrap.Errorf(err, "table %q", name)
	}
	return New(name, d, cols), nil
}

func (t *Table) Width() int { return t.Columns.Len() }
func (t *Table) Len() int   { return len(t.Rows) }

// Append adds row. Only the width is checked.
func (t *Table) Append(row []any) error {
	if len(row) != t.Width() {
		return &RowLengthError{Want: t.Width(), Got: len(row)}
	}
	t.Rows = append(t.Rows, row)
	return nil
}

// emptyLike returns a table with t's name, dialect and columns but no rows.
func (t *Table) emptyLike() *Table {
	return &Table{Name: t.Name, Dialect: t.Dialect, Columns: t.Columns.Clone()}
}

// Reorder returns a new table with the named columns in the given order.
// Names may select a subset. See ReorderIndex.
func (t *Table) Reorder(names ...string) (*Table, error) {
	idx := make([]int, len(names))
	for i, n := range names {
		j := t.Columns.Index(n)
		if j < 0 {
			return nil, fmt.Errorf("table %q: no column %q", t.Name, n)
		}
		idx[i] = j
	}
	return t.ReorderIndex(idx...)
}

// ReorderIndex returns a new table whose column k is t's column idx[k].
// The primary key follows its columns; it is cleared if any key column is
// not selected. Runs in O(rows × len(idx)).
func (t *Table) ReorderIndex(idx ...int) (*Table, error) {
	var cols columns.List
	pos := make(map[int]int, len(idx))
	for k, i := range idx {
		if i < 0 || i >= t.Width() {
			return nil, fmt.Errorf("table %q: column index %d out of range", t.Name, i)
		}
		c := t.Columns.At(i)
		if err := cols.Add(c.Name, c.Type); err != nil {
			return nil, wrap.Errorf(err, "table %q", t.Name)
		}
		pos[i] = k
	}

	var pk []int
	for _, p := range t.Columns.PrimaryKey() {
		k, ok := pos[p]
		if !ok {
			pk = nil
			break
		}
		pk = append(pk, k)
	}
	if err := cols.SetPrimaryKey(pk...); err != nil {
		return nil, err
	}

	out := New(t.Name, t.Dialect, cols)
	out.Rows = make([][]any, len(t.Rows))
	for r, row := range t.Rows {
		nr := make([]any, len(idx))
		for k, i := range idx {
			nr[k] = row[i]
		}
		out.Rows[r] = nr
	}
	return out, nil
}

// Widen pads every row with placeholder until the table has width w. New
// columns are named col_<position> and untyped. Narrowing is not supported.
func (t *Table) Widen(w int, placeholder any) error {
	for i := t.Width(); i < w; i++ {
		if err := t.Columns.Add(fmt.Sprintf("col_%d", i), schema.Null); err != nil {
			return wrap.Errorf(err, "table %q", t.Name)
		}
	}
	for r, row := range t.Rows {
		for len(row) < w {
			row = append(row, placeholder)
		}
		t.Rows[r] = row
	}
	return nil
}

// Concat returns a new table with t's rows followed by other's rows. Column
// metadata comes from t. When the widths differ, rows of the narrower side are
// right-padded with placeholder; positions beyond t's width get generated
// names (see Widen). Names are not matched: this is a structural merge.
func (t *Table) Concat(other *Table, placeholder any) (*Table, error) {
	w := max(t.Width(), other.Width())

	out := t.emptyLike()
	out.Rows = make([][]any, 0, len(t.Rows)+len(other.Rows))
	for _, src := range [][][]any{t.Rows, other.Rows} {
		for _, row := range src {
			out.Rows = append(out.Rows, append([]any(nil), row...))
		}
	}
	if err := out.Widen(w, placeholder); err != nil {
		return nil, err
	}
	return out, nil
}

// RenameColumn renames a column in place.
func (t *Table) RenameColumn(from, to string) error {
	i := t.Columns.Index(from)
	if i < 0 {
		return fmt.Errorf("table %q: no column %q", t.Name, from)
	}
	return t.Columns.Rename(i, to)
}

// AddColumn appends a column and sets it to fill in every existing row.
func (t *Table) AddColumn(name string, typ schema.TypeTag, fill any) error {
	if err := t.Columns.Add(name, typ); err != nil {
		return wrap.Errorf(err, "table %q", t.Name)
	}
	for r, row := range t.Rows {
		t.Rows[r] = append(row, fill)
	}
	return nil
}

// DeleteColumn removes a column and its values in place.
func (t *Table) DeleteColumn(name string) error {
	i := t.Columns.Index(name)
	if i < 0 {
		return fmt.Errorf("table %q: no column %q", t.Name, name)
	}
	if err := t.Columns.Delete(i); err != nil {
		return err
	}
	for r, row := range t.Rows {
		nr := make([]any, 0, len(row)-1)
		nr = append(nr, row[:i]...)
		t.Rows[r] = append(nr, row[i+1:]...)
	}
	return nil
}

// Slice returns a table with rows [i, j). Rows are shared with t.
func (t *Table) Slice(i, j int) *Table {
	out := t.emptyLike()
	out.Rows = t.Rows[i:j:j]
	return out
}

// Column returns the values of one column, in row order.
func (t *Table) Column(name string) ([]any, error) {
	i := t.Columns.Index(name)
	if i < 0 {
		return nil, fmt.Errorf("table %q: no column %q", t.Name, name)
	}
	out := make([]any, len(t.Rows))
	for r, row := range t.Rows {
		out[r] = row[i]
	}
	return out, nil
}

// GuessTypes infers the column types from the first sampleSize rows
// (all rows when sampleSize <= 0) and stores them on Columns.
func (t *Table) GuessTypes(sampleSize int) error {
	types, err := schema.GuessColumnTypes(t.Dialect, t.Rows, t.Width(), sampleSize)
	if err != nil {
		return wrap.Errorf(err, "failed to guess types for table %q", t.Name)
	}
	return t.Columns.SetTypes(types)
}

// DropEmpty removes rows whose values are all nil or "". Zero values of
// other types count as data.
func (t *Table) DropEmpty() int {
	kept := t.Rows[:0]
	dropped := 0
	for _, row := range t.Rows {
		if isEmptyRow(row) {
			dropped++
			continue
		}
		kept = append(kept, row)
	}
	clear(t.Rows[len(kept):])
	t.Rows = kept
	return dropped
}

func isEmptyRow(row []any) bool {
	for _, v := range row {
		switch x := v.(type) {
		case nil:
		case string:
			if x != "" {
				return false
			}
		default:
			return false
		}
	}
	return true
}
