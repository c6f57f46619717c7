// Package columns implements the ordered column list used to describe both
// inferred input schemas and live destination schemas, together with the
// set-like algebra used to compare them.
package columns

import (
	"fmt"
	"strings"

	"tabload/internal/schema"
)

// Column is one named, typed column.
type Column struct {
	Name string
	Type schema.TypeTag
}

// DuplicateColumnError is returned when a name collides case-insensitively
// with an existing column. Callers disambiguate names before adding them
// (see Dedupe).
type DuplicateColumnError struct {
	Name string
}

func (e *DuplicateColumnError) Error() string {
	return fmt.Sprintf("duplicate column name %q", e.Name)
}

// Match is the three-valued result of Compare.
type Match int

const (
	// MatchNone means the name sets differ.
	MatchNone Match = 0
	// MatchReordered means the name sets are equal but the order differs.
	MatchReordered Match = 1
	// MatchExact means same names in the same order.
	MatchExact Match = 2
)

// List is an ordered sequence of columns with an optional primary key.
//
// Invariants:
//   - names are unique case-insensitively
//   - every primary key index is a valid column index
//
// The zero value is an empty list ready to use.
type List struct {
	cols []Column
	pk   []int
}

// New builds a list from cols, failing on duplicate names.
func New(cols ...Column) (List, error) {
	var l List
	for _, c := range cols {
		if err := l.Add(c.Name, c.Type); err != nil {
			return List{}, err
		}
	}
	return l, nil
}

// FromNames builds a list from names and types of equal length.
func FromNames(names []string, types []schema.TypeTag) (List, error) {
	if len(names) != len(types) {
		return List{}, fmt.Errorf("columns: %d names but %d types", len(names), len(types))
	}
	var l List
	for i, n := range names {
		if err := l.Add(n, types[i]); err != nil {
			return List{}, err
		}
	}
	return l, nil
}

// Add appends a column.
func (l *List) Add(name string, typ schema.TypeTag) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("columns: empty column name")
	}
	if l.Index(name) >= 0 {
		return &DuplicateColumnError{Name: name}
	}
	// Full slice expression: lists copied by value never share appends.
	l.cols = append(l.cols[:len(l.cols):len(l.cols)], Column{Name: name, Type: typ})
	return nil
}

func (l List) Len() int { return len(l.cols) }

// Columns returns a copy of the columns.
func (l List) Columns() []Column {
	return append([]Column(nil), l.cols...)
}

// At returns the column at index i.
func (l List) At(i int) Column { return l.cols[i] }

func (l List) Names() []string {
	out := make([]string, len(l.cols))
	for i, c := range l.cols {
		out[i] = c.Name
	}
	return out
}

func (l List) Types() []schema.TypeTag {
	out := make([]schema.TypeTag, len(l.cols))
	for i, c := range l.cols {
		out[i] = c.Type
	}
	return out
}

// Index returns the position of name (case-insensitive) or -1.
func (l List) Index(name string) int {
	for i, c := range l.cols {
		if strings.EqualFold(c.Name, name) {
			return i
		}
	}
	return -1
}

func (l List) Contains(name string) bool { return l.Index(name) >= 0 }

// Lookup returns the column with the given name (case-insensitive).
func (l List) Lookup(name string) (Column, bool) {
	i := l.Index(name)
	if i < 0 {
		return Column{}, false
	}
	return l.cols[i], true
}

// SetType replaces the type of column i.
func (l *List) SetType(i int, typ schema.TypeTag) {
	l.cols[i].Type = typ
}

// SetTypes replaces all column types. len(types) must equal Len().
func (l *List) SetTypes(types []schema.TypeTag) error {
	if len(types) != len(l.cols) {
		return fmt.Errorf("columns: %d types for %d columns", len(types), len(l.cols))
	}
	for i, t := range types {
		l.cols[i].Type = t
	}
	return nil
}

// Clone returns a deep copy.
func (l List) Clone() List {
	return List{
		cols: append([]Column(nil), l.cols...),
		pk:   append([]int(nil), l.pk...),
	}
}

// SetPrimaryKey marks the columns at idx as the (possibly composite) primary
// key. Passing no indices clears it.
func (l *List) SetPrimaryKey(idx ...int) error {
	seen := make(map[int]bool, len(idx))
	for _, i := range idx {
		if i < 0 || i >= len(l.cols) {
			return fmt.Errorf("columns: primary key index %d out of range [0,%d)", i, len(l.cols))
		}
		if seen[i] {
			return fmt.Errorf("columns: primary key index %d repeated", i)
		}
		seen[i] = true
	}
	l.pk = append([]int(nil), idx...)
	return nil
}

// SetPrimaryKeyNames is SetPrimaryKey by column name.
func (l *List) SetPrimaryKeyNames(names ...string) error {
	idx := make([]int, 0, len(names))
	for _, n := range names {
		i := l.Index(n)
		if i < 0 {
			return fmt.Errorf("columns: primary key column %q not found", n)
		}
		idx = append(idx, i)
	}
	return l.SetPrimaryKey(idx...)
}

// PrimaryKey returns the primary key indices, nil when none is set.
func (l List) PrimaryKey() []int {
	return append([]int(nil), l.pk...)
}

func (l List) HasPrimaryKey() bool { return len(l.pk) > 0 }

// PrimaryKeyNames returns the names of the primary key columns.
func (l List) PrimaryKeyNames() []string {
	out := make([]string, len(l.pk))
	for i, idx := range l.pk {
		out[i] = l.cols[idx].Name
	}
	return out
}

// Delete removes column i. Primary key indices are shifted; a primary key
// that included i is cleared.
func (l *List) Delete(i int) error {
	if i < 0 || i >= len(l.cols) {
		return fmt.Errorf("columns: index %d out of range", i)
	}
	cols := make([]Column, 0, len(l.cols)-1)
	cols = append(cols, l.cols[:i]...)
	l.cols = append(cols, l.cols[i+1:]...)

	var pk []int
	for _, p := range l.pk {
		switch {
		case p == i:
			l.pk = nil
			return nil
		case p > i:
			pk = append(pk, p-1)
		default:
			pk = append(pk, p)
		}
	}
	l.pk = pk
	return nil
}

// Rename changes the name of column i.
func (l *List) Rename(i int, name string) error {
	if i < 0 || i >= len(l.cols) {
		return fmt.Errorf("columns: index %d out of range", i)
	}
	if j := l.Index(name); j >= 0 && j != i {
		return &DuplicateColumnError{Name: name}
	}
	l.cols[i].Name = name
	return nil
}

// Union is left-biased: all of l's columns in l's order (with l's types),
// then other's columns whose names l does not contain. The primary key of l
// is kept.
func (l List) Union(other List) List {
	out := l.Clone()
	for _, c := range other.cols {
		if !out.Contains(c.Name) {
			out.cols = append(out.cols, c)
		}
	}
	return out
}

// UnionRight keeps l's order like Union, but shared columns take other's
// type.
func (l List) UnionRight(other List) List {
	out := l.Union(other)
	for i, c := range out.cols {
		if oc, ok := other.Lookup(c.Name); ok {
			out.cols[i].Type = oc.Type
		}
	}
	return out
}

// Difference returns l's columns whose names other does not contain.
func (l List) Difference(other List) List {
	var out List
	for _, c := range l.cols {
		if !other.Contains(c.Name) {
			out.cols = append(out.cols, c)
		}
	}
	return out
}

// Compare is three-valued, see Match. Names compare case-insensitively.
func (l List) Compare(other List) Match {
	if len(l.cols) == len(other.cols) {
		exact := true
		for i := range l.cols {
			if !strings.EqualFold(l.cols[i].Name, other.cols[i].Name) {
				exact = false
				break
			}
		}
		if exact {
			return MatchExact
		}
	}
	if l.sameNameSet(other) {
		return MatchReordered
	}
	return MatchNone
}

func (l List) sameNameSet(other List) bool {
	if len(l.cols) != len(other.cols) {
		return false
	}
	for _, c := range l.cols {
		if !other.Contains(c.Name) {
			return false
		}
	}
	return true
}

// IsSubsetOf reports whether l's names are a strict subset of other's.
func (l List) IsSubsetOf(other List) bool {
	if len(l.cols) >= len(other.cols) {
		return false
	}
	for _, c := range l.cols {
		if !other.Contains(c.Name) {
			return false
		}
	}
	return true
}

// IsSupersetOf reports whether l's names are a strict superset of other's.
func (l List) IsSupersetOf(other List) bool {
	return other.IsSubsetOf(l)
}

// TypeConflict is a shared column whose type differs between two lists.
type TypeConflict struct {
	Name      string
	Type      schema.TypeTag // type in the receiver
	OtherType schema.TypeTag // type in the argument
}

// TypeDiff returns, in l's order, the shared columns whose types differ.
func (l List) TypeDiff(other List) []TypeConflict {
	var out []TypeConflict
	for _, c := range l.cols {
		oc, ok := other.Lookup(c.Name)
		if !ok || oc.Type == c.Type {
			continue
		}
		out = append(out, TypeConflict{Name: c.Name, Type: c.Type, OtherType: oc.Type})
	}
	return out
}

func (l List) String() string {
	parts := make([]string, len(l.cols))
	for i, c := range l.cols {
		parts[i] = c.Name + " " + c.Type.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
