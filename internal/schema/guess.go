package schema

// DefaultSampleSize is the number of leading rows inspected when the caller
// does not configure a sample size.
const DefaultSampleSize = 2000

// FoldColumnTypes folds Classify over the first sampleSize rows of each
// column through Promote, seeded with Null. A sampleSize <= 0 scans all rows.
//
// Columns whose accumulated tag reaches Text are not re-checked: Text is the
// top of every lattice. When every column is Text the scan stops early.
//
// Rows shorter than width contribute Null for the missing positions. Columns
// that saw no values stay Null; use GuessColumnTypes for the resolved form.
func FoldColumnTypes(d Dialect, rows [][]any, width, sampleSize int) ([]TypeTag, error) {
	out := make([]TypeTag, width)
	for i := range out {
		out[i] = Null
	}
	if width == 0 {
		return out, nil
	}

	n := len(rows)
	if sampleSize > 0 && sampleSize < n {
		n = sampleSize
	}

	settled := 0
	for r := 0; r < n && settled < width; r++ {
		row := rows[r]
		for c := 0; c < width; c++ {
			if out[c] == Text {
				continue
			}
			if c >= len(row) {
				continue
			}
			next, err := d.Promote(out[c], d.Classify(row[c]))
			if err != nil {
				return nil, err
			}
			out[c] = next
			if next == Text {
				settled++
			}
		}
	}
	return out, nil
}

// GuessColumnTypes is FoldColumnTypes with all-Null columns resolved to Text.
//
// The result is idempotent for the same rows, and scanning a superset of rows
// can only move a column's tag up the lattice.
func GuessColumnTypes(d Dialect, rows [][]any, width, sampleSize int) ([]TypeTag, error) {
	out, err := FoldColumnTypes(d, rows, width, sampleSize)
	if err != nil {
		return nil, err
	}
	return ResolveNull(out), nil
}

// ResolveNull replaces Null tags with Text in place and returns types.
func ResolveNull(types []TypeTag) []TypeTag {
	for i, t := range types {
		if t == Null {
			types[i] = Text
		}
	}
	return types
}
