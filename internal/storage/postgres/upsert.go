package postgres

import (
	"fmt"
	"strings"

	"tabload/internal/columns"
	"tabload/internal/reconcile"
	"tabload/internal/storage"
)

// maxParams is the bind parameter limit of the extended query protocol.
const maxParams = 65535

// buildUpsertSQL constructs a single multi-row INSERT ... ON CONFLICT
// statement and its args.
//
// It is pure and deterministic, so conflict clauses and placeholder numbering
// are unit tested without a database.
//
// Conflict clause:
//   - DoNothing, or no primary key: ON CONFLICT DO NOTHING
//   - Replace / UpdateColumns: ON CONFLICT (<pk>) DO UPDATE SET c = EXCLUDED.c
//
// Constraints:
//   - every row has cols.Len() values.
func buildUpsertSQL(table string, cols columns.List, rows [][]any, policy reconcile.ConflictPolicy) (string, []any) {
	names := cols.Names()

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(storage.QuoteQualified(table))
	b.WriteString(" (")
	b.WriteString(identList(names))
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(names))
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range names {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", p)
			args = append(args, row[j])
			p++
		}
		b.WriteString(")")
	}

	set := policy.UpdateSet(cols)
	if len(set) == 0 || !cols.HasPrimaryKey() {
		b.WriteString(" ON CONFLICT DO NOTHING")
		return b.String(), args
	}

	b.WriteString(" ON CONFLICT (")
	b.WriteString(identList(cols.PrimaryKeyNames()))
	b.WriteString(") DO UPDATE SET ")
	for i, c := range set {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(c))
		b.WriteString(" = EXCLUDED.")
		b.WriteString(pgIdent(c))
	}
	return b.String(), args
}
