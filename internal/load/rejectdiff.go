package load

import (
	"context"
	"fmt"
	"strings"

	"hermannm.dev/wrap"

	"tabload/internal/columns"
	"tabload/internal/schema"
	"tabload/internal/storage"
)

// RejectDiff compares a table with its reject table and suggests how to
// merge the rejects back.
type RejectDiff struct {
	Table       string
	RejectTable string

	// Mismatched are shared columns whose table type is not Text: the values
	// parked in the reject table did not fit them.
	Mismatched []columns.TypeConflict
	// Missing are reject columns the table no longer has.
	Missing []string

	// Statements widen the table and copy the rejects in. They are
	// suggestions and are never executed.
	Statements []string
}

// DiffRejects reads both schemas from dest. The reject table must exist.
func DiffRejects(ctx context.Context, dest storage.Destination, name string) (*RejectDiff, error) {
	rejectName := storage.RejectTableName(name)

	target, err := dest.Schema(ctx, name)
	if err != nil {
		return nil, wrap.Errorf(err, "failed to read schema of %q", name)
	}
	rej, err := dest.Schema(ctx, rejectName)
	if err != nil {
		return nil, wrap.Errorf(err, "failed to read schema of %q", rejectName)
	}

	d := dest.Dialect()
	diff := &RejectDiff{Table: name, RejectTable: rejectName}
	for _, tc := range rej.TypeDiff(target) {
		if d.Normalize(tc.OtherType) != schema.Text {
			diff.Mismatched = append(diff.Mismatched, tc)
		}
	}
	diff.Missing = rej.Difference(target).Names()
	diff.Statements = diff.statements(dest.DDL(), rej.Names())
	return diff, nil
}

func (diff *RejectDiff) statements(ddl storage.DDL, rejectCols []string) []string {
	var out []string
	for _, tc := range diff.Mismatched {
		if s := ddl.AlterColumnType(diff.Table, tc.Name, schema.Text); s != "" {
			out = append(out, s)
		}
	}
	for _, n := range diff.Missing {
		out = append(out, ddl.AddColumn(diff.Table, columns.Column{Name: n, Type: schema.Text}))
	}

	quoted := make([]string, len(rejectCols))
	for i, c := range rejectCols {
		quoted[i] = storage.QuoteIdent(c)
	}
	list := strings.Join(quoted, ", ")
	out = append(out, fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s",
		storage.QuoteQualified(diff.Table), list, list, storage.QuoteQualified(diff.RejectTable)))
	return out
}
