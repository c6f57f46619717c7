package schema

import (
	"encoding/json"
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		dialect Dialect
		in      any
		want    TypeTag
	}{
		{"nil", Postgres, nil, Null},
		{"empty sentinel", Postgres, "", Null},
		{"digits", Postgres, "324774000", Integer},
		{"negative int", Postgres, "-12", Integer},
		{"lone minus", Postgres, "-", Text},
		{"float", Postgres, "1.23", Float},
		{"leading dot", Postgres, ".5", Float},
		{"trailing dot", Postgres, "3.", Float},
		{"two dots", Postgres, "1.2.3", Text},
		{"only dot", Postgres, ".", Text},
		{"exponent string", Postgres, "1e5", Text},
		{"word", Postgres, "Washington", Text},
		{"huge int string", Postgres, "123456789012345678901234567890", Integer},
		{"go int", Postgres, 42, Integer},
		{"go float", Postgres, 4.2, Float},
		{"go bool", Postgres, true, Boolean},
		{"sqlite bool", SQLite, true, Integer},
		{"time", Postgres, time.Now(), DateTime},
		{"sqlite time", SQLite, time.Now(), Text},
		{"map", Postgres, map[string]any{"a": 1}, Nested},
		{"slice", Postgres, []any{1, 2}, Nested},
		{"sqlite map", SQLite, map[string]any{"a": 1}, Text},
		{"json int", Postgres, json.Number("7"), Integer},
		{"json exponent", Postgres, json.Number("7e3"), Float},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.dialect.Classify(tt.in); got != tt.want {
				t.Fatalf("Classify(%#v) got=%s want=%s", tt.in, got, tt.want)
			}
		})
	}
}

func TestSQLTypeRoundTrip(t *testing.T) {
	t.Parallel()

	for _, d := range []Dialect{SQLite, Postgres} {
		for _, tag := range d.Tags() {
			if tag == Null {
				continue
			}
			name := d.SQLType(tag)
			if got := d.TagForSQLType(name); got != tag {
				t.Fatalf("%s: TagForSQLType(SQLType(%s)=%q) got=%s", d, tag, name, got)
			}
		}
	}
}

func TestTagForSQLType_CatalogNames(t *testing.T) {
	t.Parallel()

	tests := []struct {
		dialect Dialect
		name    string
		want    TypeTag
	}{
		{Postgres, "character varying", Text},
		{Postgres, "integer", Integer},
		{Postgres, "numeric(10,2)", Float},
		{Postgres, "timestamp without time zone", DateTime},
		{Postgres, "jsonb", Nested},
		{SQLite, "VARCHAR(20)", Text},
		{SQLite, "BIGINT", Integer},
		{SQLite, "DOUBLE", Float},
		{SQLite, "", Text},
	}
	for _, tt := range tests {
		if got := tt.dialect.TagForSQLType(tt.name); got != tt.want {
			t.Fatalf("%s: TagForSQLType(%q) got=%s want=%s", tt.dialect, tt.name, got, tt.want)
		}
	}
}

func TestParseDialect(t *testing.T) {
	t.Parallel()

	if d, err := ParseDialect("PostgreSQL"); err != nil || d != Postgres {
		t.Fatalf("ParseDialect(PostgreSQL) got=%v err=%v", d, err)
	}
	if d, err := ParseDialect("sqlite"); err != nil || d != SQLite {
		t.Fatalf("ParseDialect(sqlite) got=%v err=%v", d, err)
	}
	if _, err := ParseDialect("mysql"); err == nil {
		t.Fatalf("expected error for unsupported dialect")
	}
}
