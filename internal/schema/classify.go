package schema

import (
	"encoding/json"
	"strconv"
	"time"
)

// Classify returns the tag of a single raw value under dialect d.
//
// Typed Go values map directly. Strings are parsed:
//   - "" is the null sentinel
//   - an optional '-' followed by digits is Integer
//   - an optional '-', digits and at most one '.' (at least one digit) is Float
//   - anything else is Text
//
// The result is already degraded to a tag the dialect supports.
func (d Dialect) Classify(v any) TypeTag {
	return d.Normalize(classify(v))
}

func classify(v any) TypeTag {
	switch t := v.(type) {
	case nil:
		return Null
	case string:
		return classifyString(t)
	case []byte:
		if len(t) == 0 {
			return Null
		}
		return Text
	case json.Number:
		return classifyNumber(t)
	case bool:
		return Boolean
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return Integer
	case float32, float64:
		return Float
	case time.Time:
		return DateTime
	case map[string]any, []any, json.RawMessage:
		return Nested
	default:
		return Text
	}
}

func classifyString(s string) TypeTag {
	switch {
	case s == "":
		return Null
	case IsIntegerLiteral(s):
		return Integer
	case IsFloatLiteral(s):
		return Float
	default:
		return Text
	}
}

// classifyNumber handles numbers decoded with UseNumber. Exponent forms are
// not matched by the string grammar but are still floats.
func classifyNumber(n json.Number) TypeTag {
	s := string(n)
	if IsIntegerLiteral(s) {
		return Integer
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return Float
	}
	return Text
}

// IsIntegerLiteral reports whether s is an optional '-' followed by one or
// more ASCII digits. Width is not checked; see ConvertValue for overflow.
func IsIntegerLiteral(s string) bool {
	if len(s) > 0 && s[0] == '-' {
		s = s[1:]
	}
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// IsFloatLiteral reports whether s is an optional '-', then digits with at
// most one '.', containing at least one digit.
func IsFloatLiteral(s string) bool {
	if len(s) > 0 && s[0] == '-' {
		s = s[1:]
	}
	digits, dots := 0, 0
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c >= '0' && c <= '9':
			digits++
		case c == '.':
			dots++
			if dots > 1 {
				return false
			}
		default:
			return false
		}
	}
	return digits > 0
}
