package table

import "tabload/internal/schema"

// Conforms reports whether v can be written to a column of type t.
//
// A value conforms when its classified tag promotes into t. Strings are
// additionally accepted when they convert cleanly, since text input never
// classifies as Boolean, DateTime or Nested.
func Conforms(d schema.Dialect, t schema.TypeTag, v any) bool {
	if d.Compatible(d.Classify(v), t) {
		return true
	}
	if _, ok := v.(string); !ok {
		return false
	}
	_, _, err := d.ConvertValue(t, v)
	return err == nil
}

// FindNonconforming returns the indices of rows holding at least one value
// that does not conform to types. Columns typed Text (or untyped) are skipped:
// Text accepts everything.
func (t *Table) FindNonconforming(types []schema.TypeTag) []int {
	var check []int
	for j, typ := range types {
		if j >= t.Width() {
			break
		}
		if n := t.Dialect.Normalize(typ); n != schema.Text && n != schema.Null {
			check = append(check, j)
		}
	}
	if len(check) == 0 {
		return nil
	}

	var rejects []int
	for i, row := range t.Rows {
		for _, j := range check {
			if !Conforms(t.Dialect, types[j], row[j]) {
				rejects = append(rejects, i)
				break
			}
		}
	}
	return rejects
}
