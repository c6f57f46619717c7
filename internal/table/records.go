package table

import (
	"sort"
	"strconv"

	"tabload/internal/columns"
	"tabload/internal/schema"
)

// Extract pulls a nested value out of each record into its own column.
// Path elements index objects by key and arrays by decimal position.
type Extract struct {
	Column string
	Path   []string
}

// AppendRecords appends JSON-style records, mapping keys to columns
// case-insensitively. A key the table has not seen yet adds an untyped column
// (existing rows get nil); keys are resolved in sorted order within a record
// so the resulting column order does not depend on map iteration. Columns a
// record lacks are nil.
//
// Keys of one record that differ only in case each keep their value: the
// later one gets a column disambiguated with columns.Dedupe (name_1, ...),
// and the same key maps to the same column in later records.
//
// Extract columns are added up front and filled from their path, nil when the
// path does not resolve. The extracted values are also stored back into the
// records under the column name.
func (t *Table) AppendRecords(records []map[string]any, extract ...Extract) error {
	for _, ex := range extract {
		if !t.Columns.Contains(ex.Column) {
			if err := t.AddColumn(ex.Column, schema.Null, nil); err != nil {
				return err
			}
		}
	}

	exact := make(map[string]int)
	for _, rec := range records {
		for _, ex := range extract {
			rec[ex.Column] = lookupPath(rec, ex.Path)
		}

		keys := make([]string, 0, len(rec))
		for k := range rec {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		idx := make([]int, len(keys))
		claimed := make(map[int]bool, len(keys))
		for n, k := range keys {
			i, err := t.recordColumn(k, exact, claimed)
			if err != nil {
				return err
			}
			claimed[i] = true
			idx[n] = i
		}

		row := make([]any, t.Width())
		for n, k := range keys {
			row[idx[n]] = rec[k]
		}
		if err := t.Append(row); err != nil {
			return err
		}
	}
	return nil
}

// recordColumn returns the column of key within one record. claimed holds
// the columns other keys of the record already took.
func (t *Table) recordColumn(key string, exact map[string]int, claimed map[int]bool) (int, error) {
	if i, ok := exact[key]; ok && !claimed[i] {
		return i, nil
	}
	i := t.Columns.Index(key)
	if i < 0 || claimed[i] {
		names := columns.Dedupe(append(t.Columns.Names(), key))
		if err := t.AddColumn(names[len(names)-1], schema.Null, nil); err != nil {
			return -1, err
		}
		i = t.Width() - 1
	}
	if _, ok := exact[key]; !ok {
		exact[key] = i
	}
	return i, nil
}

func lookupPath(v any, path []string) any {
	for _, p := range path {
		switch node := v.(type) {
		case map[string]any:
			next, ok := node[p]
			if !ok {
				return nil
			}
			v = next
		case []any:
			i, err := strconv.Atoi(p)
			if err != nil || i < 0 || i >= len(node) {
				return nil
			}
			v = node[i]
		default:
			return nil
		}
	}
	return v
}
