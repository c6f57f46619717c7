package postgres

import (
	"fmt"
	"strings"

	"tabload/internal/columns"
	"tabload/internal/schema"
	"tabload/internal/storage"
)

// DDL renders PostgreSQL schema statements. The builders are pure so they can
// be tested without a database.
type DDL struct{}

var _ storage.DDL = DDL{}

// CreateTable renders CREATE TABLE with one column per entry of cols and a
// PRIMARY KEY constraint when cols has one. Null-typed columns become text.
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
		b.WriteString(pgIdent(c.Name))
		b.WriteString(" ")
		b.WriteString(schema.Postgres.SQLType(c.Type))
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
		storage.QuoteQualified(table), pgIdent(col.Name), schema.Postgres.SQLType(col.Type))
}

// AlterColumnType casts existing values with USING so that widening from a
// numeric type to text (or integer to double precision) never needs manual
// conversion.
func (DDL) AlterColumnType(table, column string, to schema.TypeTag) string {
	typ := schema.Postgres.SQLType(to)
	return fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s USING %s::%s",
		storage.QuoteQualified(table), pgIdent(column), typ, pgIdent(column), typ)
}

func pgIdent(id string) string { return storage.QuoteIdent(id) }

func identList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = pgIdent(n)
	}
	return strings.Join(quoted, ", ")
}
