package schema

import (
	"fmt"
)

// IncompatibleTypeError reports a pair of tags the dialect's lattice has no
// rule for. With valid tags this cannot happen; it indicates a bad tag value.
type IncompatibleTypeError struct {
	Dialect Dialect
	A, B    TypeTag
}

func (e *IncompatibleTypeError) Error() string {
	return fmt.Sprintf("%s: no promotion rule for %s and %s", e.Dialect, e.A, e.B)
}

// pair is an unordered pair of tags, stored with a <= b.
type pair struct {
	a, b TypeTag
}

func pairOf(a, b TypeTag) pair {
	if a > b {
		a, b = b, a
	}
	return pair{a: a, b: b}
}

type rule struct {
	a, b, result TypeTag
}

// widening holds the only promotions that do not end in Text: numeric
// widening. Every other pair of distinct non-Null tags promotes to Text.
var widening = []rule{
	{Integer, Float, Float},
}

// lattice is the symmetric promotion table of one dialect.
type lattice struct {
	table map[pair]TypeTag
}

// buildLattice fills the table for every pair of supported tags:
//   - promote(a, a) = a
//   - promote(Null, x) = x
//   - explicit rules
//   - anything else = Text
func buildLattice(tags []TypeTag, rules []rule) *lattice {
	l := &lattice{table: make(map[pair]TypeTag, len(tags)*len(tags))}

	supported := make(map[TypeTag]bool, len(tags))
	for _, t := range tags {
		supported[t] = true
	}

	for _, r := range rules {
		if supported[r.a] && supported[r.b] {
			l.table[pairOf(r.a, r.b)] = r.result
		}
	}

	for _, a := range tags {
		for _, b := range tags {
			k := pairOf(a, b)
			if _, ok := l.table[k]; ok {
				continue
			}
			switch {
			case a == b:
				l.table[k] = a
			case a == Null:
				l.table[k] = b
			case b == Null:
				l.table[k] = a
			default:
				l.table[k] = Text
			}
		}
	}
	return l
}

var lattices = map[Dialect]*lattice{
	SQLite:   buildLattice(sqliteTags, widening),
	Postgres: buildLattice(postgresTags, widening),
}

// Promote returns the most specific tag that accommodates both a and b.
// Tags the dialect cannot store are degraded first (see Normalize).
func (d Dialect) Promote(a, b TypeTag) (TypeTag, error) {
	l, ok := lattices[d]
	if !ok {
		return 0, &IncompatibleTypeError{Dialect: d, A: a, B: b}
	}
	c, ok := l.table[pairOf(d.Normalize(a), d.Normalize(b))]
	if !ok {
		return 0, &IncompatibleTypeError{Dialect: d, A: a, B: b}
	}
	return c, nil
}

// Compatible reports whether a value of tag value can be stored in a column
// of tag column without widening the column.
func (d Dialect) Compatible(value, column TypeTag) bool {
	c, err := d.Promote(value, column)
	if err != nil {
		return false
	}
	return c == d.Normalize(column)
}
