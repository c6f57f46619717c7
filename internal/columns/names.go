package columns

import (
	"fmt"
	"regexp"
	"strings"

	"tabload/internal/schema"
)

var (
	space   = regexp.MustCompile(`[\s\-./\\:;]+`)
	illegal = regexp.MustCompile(`[^a-z0-9_]+`)
)

// Keywords is a read-only set of reserved words for one dialect. It is built
// once at startup and passed to the name sanitizer explicitly.
type Keywords map[string]struct{}

// NewKeywords builds a keyword set from words (case-insensitive).
func NewKeywords(words ...string) Keywords {
	k := make(Keywords, len(words))
	for _, w := range words {
		k[strings.ToLower(strings.TrimSpace(w))] = struct{}{}
	}
	return k
}

func (k Keywords) Contains(word string) bool {
	_, ok := k[strings.ToLower(word)]
	return ok
}

// KeywordsFor returns the reserved keyword set of a dialect.
func KeywordsFor(d schema.Dialect) Keywords {
	switch d {
	case schema.Postgres:
		return postgresKeywords
	case schema.SQLite:
		return sqliteKeywords
	default:
		return Keywords{}
	}
}

// Sanitize converts a raw header into a lowercase snake_case identifier.
//
// Rules:
//   - whitespace and common separators become a single '_'
//   - characters outside [a-z0-9_] are dropped
//   - an empty result becomes "col_<position>"
//   - a leading digit gets a "col_" prefix
//   - reserved keywords get a trailing '_'
func Sanitize(raw string, position int, kw Keywords) string {
	s := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(raw, "\uFEFF")))
	s = space.ReplaceAllString(s, "_")
	s = illegal.ReplaceAllString(s, "")
	s = strings.Trim(s, "_")

	switch {
	case s == "":
		return fmt.Sprintf("col_%d", position)
	case s[0] >= '0' && s[0] <= '9':
		s = "col_" + s
	}
	if kw.Contains(s) {
		s += "_"
	}
	return s
}

// Dedupe disambiguates repeated names (case-insensitive) by appending _1, _2,
// and so on. A generated name that collides with a later or earlier name is
// incremented again, so the result is always unique. The first occurrence
// keeps its name.
func Dedupe(names []string) []string {
	used := make(map[string]bool, len(names))
	out := make([]string, len(names))

	// Reserve every original name first so that a generated "a_1" never
	// steals a name that appears verbatim later in the header.
	for _, n := range names {
		used[strings.ToLower(n)] = false
	}

	for i, n := range names {
		key := strings.ToLower(n)
		if taken := used[key]; !taken {
			used[key] = true
			out[i] = n
			continue
		}
		for suffix := 1; ; suffix++ {
			candidate := fmt.Sprintf("%s_%d", n, suffix)
			ck := strings.ToLower(candidate)
			if _, exists := used[ck]; !exists {
				used[ck] = true
				out[i] = candidate
				break
			}
		}
	}
	return out
}

// SanitizeAll sanitizes and then dedupes a header row.
func SanitizeAll(raw []string, kw Keywords) []string {
	out := make([]string, len(raw))
	for i, r := range raw {
		out[i] = Sanitize(r, i, kw)
	}
	return Dedupe(out)
}
