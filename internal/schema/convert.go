package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ConversionError reports a value that cannot be written to a column of the
// given tag. It is a row-level data problem, never a schema problem.
type ConversionError struct {
	Value    any
	Type     TypeTag
	Overflow bool
}

func (e *ConversionError) Error() string {
	if e.Overflow {
		return fmt.Sprintf("value %v overflows %s column", e.Value, e.Type)
	}
	return fmt.Sprintf("value %v (%T) does not fit %s column", e.Value, e.Value, e.Type)
}

// ConvertValue turns a raw value into the Go value written for a column of tag
// t. The "" null sentinel becomes nil.
//
// overflowed is true when an integer-looking value exceeds int64 and was
// degraded to its string form (SQLite, whose integer columns accept text).
// On Postgres the same value returns a *ConversionError with Overflow set so
// that the row is routed to the reject table with its text preserved.
func (d Dialect) ConvertValue(t TypeTag, v any) (out any, overflowed bool, err error) {
	if v == nil {
		return nil, false, nil
	}
	if s, ok := v.(string); ok && s == "" {
		return nil, false, nil
	}

	switch d.Normalize(t) {
	case Null, Text:
		return stringify(v), false, nil
	case Integer:
		return d.toInteger(v)
	case Float:
		f, err := toFloat(v)
		return f, false, err
	case Boolean:
		b, err := toBool(v)
		return b, false, err
	case DateTime:
		ts, err := toTime(v)
		return ts, false, err
	case Nested:
		n, err := toNested(v)
		return n, false, err
	default:
		return nil, false, &ConversionError{Value: v, Type: t}
	}
}

// ConvertRow converts every value of row for the given column tags. The first
// failing value aborts the row. overflows counts degraded integers.
func (d Dialect) ConvertRow(types []TypeTag, row []any) (out []any, overflows int, err error) {
	out = make([]any, len(row))
	for i, v := range row {
		t := Text
		if i < len(types) {
			t = types[i]
		}
		cv, of, err := d.ConvertValue(t, v)
		if err != nil {
			return nil, overflows, err
		}
		if of {
			overflows++
		}
		out[i] = cv
	}
	return out, overflows, nil
}

// Stringify renders any raw value as text, keeping nil as nil. Rows routed to
// reject tables are written through it.
func Stringify(v any) any {
	if v == nil {
		return nil
	}
	return stringify(v)
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case json.Number:
		return string(t)
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case time.Time:
		return t.Format(time.RFC3339Nano)
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	case json.RawMessage:
		return string(t)
	default:
		return fmt.Sprint(v)
	}
}

func (d Dialect) toInteger(v any) (any, bool, error) {
	switch t := v.(type) {
	case int:
		return int64(t), false, nil
	case int8:
		return int64(t), false, nil
	case int16:
		return int64(t), false, nil
	case int32:
		return int64(t), false, nil
	case int64:
		return t, false, nil
	case uint:
		return d.fromUnsigned(uint64(t))
	case uint8:
		return int64(t), false, nil
	case uint16:
		return int64(t), false, nil
	case uint32:
		return int64(t), false, nil
	case uint64:
		return d.fromUnsigned(t)
	case bool:
		if t {
			return int64(1), false, nil
		}
		return int64(0), false, nil
	case string:
		return d.parseInteger(t)
	case json.Number:
		return d.parseInteger(string(t))
	default:
		return nil, false, &ConversionError{Value: v, Type: Integer}
	}
}

func (d Dialect) fromUnsigned(u uint64) (any, bool, error) {
	if u <= math.MaxInt64 {
		return int64(u), false, nil
	}
	return d.overflow(strconv.FormatUint(u, 10))
}

func (d Dialect) parseInteger(s string) (any, bool, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err == nil {
		return n, false, nil
	}
	if errors.Is(err, strconv.ErrRange) && IsIntegerLiteral(s) {
		return d.overflow(s)
	}
	return nil, false, &ConversionError{Value: s, Type: Integer}
}

func (d Dialect) overflow(s string) (any, bool, error) {
	if d == SQLite {
		return s, true, nil
	}
	return nil, false, &ConversionError{Value: s, Type: Integer, Overflow: true}
}

func toFloat(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case int32:
		return float64(t), nil
	case uint64:
		return float64(t), nil
	case json.Number:
		return t.Float64()
	case string:
		if !IsFloatLiteral(t) {
			return 0, &ConversionError{Value: v, Type: Float}
		}
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, &ConversionError{Value: v, Type: Float}
		}
		return f, nil
	default:
		return 0, &ConversionError{Value: v, Type: Float}
	}
}

func toBool(v any) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		if b, ok := parseBoolLoose(t); ok {
			return b, nil
		}
	case int64:
		if t == 0 || t == 1 {
			return t == 1, nil
		}
	case int:
		if t == 0 || t == 1 {
			return t == 1, nil
		}
	}
	return false, &ConversionError{Value: v, Type: Boolean}
}

func parseBoolLoose(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "t", "true", "yes", "y":
		return true, true
	case "0", "f", "false", "no", "n":
		return false, true
	default:
		return false, false
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02.01.2006 15:04:05",
	"02.01.2006",
}

func toTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range timeLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts, nil
			}
		}
	}
	return time.Time{}, &ConversionError{Value: v, Type: DateTime}
}

func toNested(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any, []any:
		return t, nil
	case json.RawMessage:
		return t, nil
	case string:
		if json.Valid([]byte(t)) {
			return json.RawMessage(t), nil
		}
	}
	return nil, &ConversionError{Value: v, Type: Nested}
}
