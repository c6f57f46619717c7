package schema

import (
	"fmt"
	"strings"

	"hermannm.dev/enumnames"
)

// Dialect selects the destination SQL engine. It decides which type tags
// exist, how tags degrade and which native type names are emitted in DDL.
type Dialect uint8

const (
	SQLite Dialect = iota + 1
	Postgres
)

var dialectNames = enumnames.NewMap(map[Dialect]string{
	SQLite:   "sqlite",
	Postgres: "postgres",
})

func (d Dialect) IsValid() bool {
	return dialectNames.ContainsEnumValue(d)
}

func (d Dialect) String() string {
	return dialectNames.GetNameOrFallback(d, "invalid_dialect")
}

func (d Dialect) MarshalJSON() ([]byte, error) {
	return dialectNames.MarshalToNameJSON(d)
}

func (d *Dialect) UnmarshalJSON(bytes []byte) error {
	return dialectNames.UnmarshalFromNameJSON(bytes, d)
}

// ParseDialect accepts the dialect names used in job files and flags.
// "postgresql" and "pg" are accepted as aliases for postgres.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql", "pg":
		return Postgres, nil
	default:
		return 0, fmt.Errorf("unsupported dialect %q (expected sqlite or postgres)", s)
	}
}

var (
	sqliteTags   = []TypeTag{Null, Integer, Float, Text}
	postgresTags = []TypeTag{Null, Integer, Float, Boolean, Text, DateTime, Nested}
)

// Tags returns the tags the dialect can store natively.
func (d Dialect) Tags() []TypeTag {
	switch d {
	case SQLite:
		return sqliteTags
	case Postgres:
		return postgresTags
	default:
		return nil
	}
}

// Normalize degrades a tag the dialect cannot store to the closest one it can.
// SQLite stores booleans as integers and everything structured as text.
// Invalid tags are returned unchanged so that promotion reports them.
func (d Dialect) Normalize(t TypeTag) TypeTag {
	if d != SQLite {
		return t
	}
	switch t {
	case Boolean:
		return Integer
	case Nested, DateTime:
		return Text
	default:
		return t
	}
}

// SQLType returns the native column type used in CREATE/ALTER statements.
// Null resolves to the text type: a column without information stays text.
func (d Dialect) SQLType(t TypeTag) string {
	t = d.Normalize(t)
	switch d {
	case SQLite:
		switch t {
		case Integer:
			return "integer"
		case Float:
			return "real"
		default:
			return "text"
		}
	case Postgres:
		switch t {
		case Integer:
			return "bigint"
		case Float:
			return "double precision"
		case Boolean:
			return "boolean"
		case DateTime:
			return "timestamp"
		case Nested:
			return "jsonb"
		default:
			return "text"
		}
	default:
		return "text"
	}
}

// TagForSQLType maps a type name reported by the live catalog back to a tag.
// Unknown names map to Text, which accepts every value.
func (d Dialect) TagForSQLType(name string) TypeTag {
	n := strings.ToLower(strings.TrimSpace(name))
	switch d {
	case SQLite:
		return sqliteAffinity(n)
	case Postgres:
		return postgresTag(n)
	default:
		return Text
	}
}

// sqliteAffinity follows the SQLite column affinity rules (section 3.1 of the
// datatype documentation), with NUMERIC folded into Float.
func sqliteAffinity(n string) TypeTag {
	switch {
	case n == "":
		return Text
	case strings.Contains(n, "int"):
		return Integer
	case strings.Contains(n, "bool"):
		return Integer
	case strings.Contains(n, "char"), strings.Contains(n, "clob"), strings.Contains(n, "text"):
		return Text
	case strings.Contains(n, "real"), strings.Contains(n, "floa"), strings.Contains(n, "doub"):
		return Float
	case strings.Contains(n, "numeric"), strings.Contains(n, "decimal"):
		return Float
	default:
		return Text
	}
}

func postgresTag(n string) TypeTag {
	if i := strings.IndexByte(n, '('); i > 0 {
		n = strings.TrimSpace(n[:i])
	}
	switch n {
	case "bigint", "integer", "smallint", "int", "int2", "int4", "int8",
		"serial", "bigserial", "smallserial":
		return Integer
	case "double precision", "real", "float4", "float8", "numeric", "decimal":
		return Float
	case "boolean", "bool":
		return Boolean
	case "json", "jsonb":
		return Nested
	case "date", "timestamptz":
		return DateTime
	}
	if strings.HasPrefix(n, "timestamp") || strings.HasPrefix(n, "time") {
		return DateTime
	}
	return Text
}
