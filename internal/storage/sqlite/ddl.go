package sqlite

import (
	"fmt"
	"strings"

	"tabload/internal/columns"
	"tabload/internal/reconcile"
	"tabload/internal/schema"
	"tabload/internal/storage"
)

// maxVars is SQLITE_MAX_VARIABLE_NUMBER for SQLite >= 3.32.
const maxVars = 32766

// DDL renders SQLite schema statements.
type DDL struct{}

var _ storage.DDL = DDL{}

func (DDL) CreateTable(name string, cols columns.List, ifNotExists bool) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	if ifNotExists {
		b.WriteString("IF NOT EXISTS ")
	}
	b.WriteString(storage.QuoteQualified(name))
	b.WriteString(" (")
	for i, c := range cols.Columns() {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(sqlIdent(c.Name))
		b.WriteString(" ")
		b.WriteString(schema.SQLite.SQLType(c.Type))
	}
	if cols.HasPrimaryKey() {
		b.WriteString(", PRIMARY KEY (")
		b.WriteString(identList(cols.PrimaryKeyNames()))
		b.WriteString(")")
	}
	b.WriteString(")")
	return b.String()
}

func (DDL) AddColumn(table string, col columns.Column) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s",
		storage.QuoteQualified(table), sqlIdent(col.Name), schema.SQLite.SQLType(col.Type))
}

// AlterColumnType renders nothing: a column's declared type is only an
// affinity and already accepts values of every storage class.
func (DDL) AlterColumnType(table, column string, to schema.TypeTag) string {
	return ""
}

// buildInsertSQL constructs a multi-row INSERT with ? placeholders; suffix
// is appended verbatim (an ON CONFLICT clause or "").
//
// Constraints:
//   - every row has len(cols) values.
func buildInsertSQL(table string, cols []string, rows [][]any, suffix string) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(storage.QuoteQualified(table))
	b.WriteString(" (")
	b.WriteString(identList(cols))
	b.WriteString(") VALUES ")

	group := "(" + strings.TrimRight(strings.Repeat("?, ", len(cols)), ", ") + ")"
	args := make([]any, 0, len(rows)*len(cols))
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(group)
		args = append(args, row[:len(cols)]...)
	}
	if suffix != "" {
		b.WriteString(" ")
		b.WriteString(suffix)
	}
	return b.String(), args
}

// conflictClause renders the upsert tail. SQLite requires a conflict target
// for DO UPDATE, so a table without a primary key always does nothing.
func conflictClause(cols columns.List, policy reconcile.ConflictPolicy) string {
	set := policy.UpdateSet(cols)
	if len(set) == 0 || !cols.HasPrimaryKey() {
		return "ON CONFLICT DO NOTHING"
	}

	var b strings.Builder
	b.WriteString("ON CONFLICT (")
	b.WriteString(identList(cols.PrimaryKeyNames()))
	b.WriteString(") DO UPDATE SET ")
	for i, c := range set {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s = excluded.%s", sqlIdent(c), sqlIdent(c))
	}
	return b.String()
}
