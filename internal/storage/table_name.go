package storage

import "strings"

// RejectSuffix is appended to a destination table name to name its reject
// table. External tooling queries reject tables by this name.
const RejectSuffix = "_reject"

func RejectTableName(table string) string {
	return table + RejectSuffix
}

// SplitQualifiedName splits "schema.table". Only a single dot is handled;
// anything else is treated as an unqualified name.
func SplitQualifiedName(name string) (schemaName string, table string) {
	name = strings.TrimSpace(name)
	parts := strings.Split(name, ".")
	if len(parts) != 2 {
		return "", name
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
}

// QuoteIdent quotes one SQL identifier with double quotes. Both dialects
// accept this form.
func QuoteIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

// QuoteQualified quotes a possibly schema-qualified table name.
func QuoteQualified(name string) string {
	s, t := SplitQualifiedName(name)
	if s == "" {
		return QuoteIdent(t)
	}
	return QuoteIdent(s) + "." + QuoteIdent(t)
}
