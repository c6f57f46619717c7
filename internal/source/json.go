package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"hermannm.dev/wrap"

	"tabload/internal/config"
	"tabload/internal/table"
)

// newJSONReader decodes every record of a JSON document up front so the
// header is the union of all record keys.
//
// Accepted shapes:
//   - a root array of objects
//   - a root object holding an array of objects in its first array field
//     (envelope); the other fields are ignored
//   - a single root object, which is one record
//   - any of the above followed by more objects (JSON lines)
//
// Options:
//   - array_join_separator: join arrays of strings into one string
//   - extract: {"column": "path.to.0.value"} pulls nested values into columns
func newJSONReader(ctx context.Context, src io.ReadCloser, opt config.Options, nulls nullSet) (Reader, error) {
	defer src.Close()

	var records []map[string]any
	err := decodeRecords(ctx, src, func(obj map[string]any) error {
		records = append(records, obj)
		return nil
	})
	if err != nil {
		return nil, err
	}

	t := &table.Table{Name: "json"}
	if err := t.AppendRecords(records, extractOptions(opt)...); err != nil {
		return nil, wrap.Error(err, "failed to collect records")
	}

	sep := opt.String("array_join_separator", "")
	for _, row := range t.Rows {
		for i, v := range row {
			row[i] = normalizeJSONValue(v, sep, nulls)
		}
	}
	return newRowsReader(t.Columns.Names(), t.Rows), nil
}

func extractOptions(opt config.Options) []table.Extract {
	m := opt.StringMap("extract")
	cols := make([]string, 0, len(m))
	for c := range m {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	out := make([]table.Extract, 0, len(cols))
	for _, c := range cols {
		out = append(out, table.Extract{Column: c, Path: strings.Split(m[c], ".")})
	}
	return out
}

// normalizeJSONValue maps null sentinels to nil and, when sep is set,
// flattens arrays of strings into one joined string.
func normalizeJSONValue(v any, sep string, nulls nullSet) any {
	switch t := v.(type) {
	case string:
		return nulls.value(t)
	case []any:
		if sep == "" {
			return v
		}
		ss := make([]string, 0, len(t))
		for _, it := range t {
			if it == nil {
				continue
			}
			s, ok := it.(string)
			if !ok {
				return v
			}
			ss = append(ss, s)
		}
		return strings.Join(ss, sep)
	default:
		return v
	}
}

// decodeRecords streams the records of a JSON document into emit without
// buffering the whole document in a generic tree.
func decodeRecords(ctx context.Context, r io.Reader, emit func(map[string]any) error) error {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		if err == io.EOF {
			return nil
		}
		return wrap.Error(err, "failed to read first json token")
	}

	switch d := tok.(type) {
	case json.Delim:
		switch d {
		case '[':
			if err := streamArrayOfObjects(ctx, dec, emit); err != nil {
				return err
			}
			if err := expectDelim(dec, ']'); err != nil {
				return err
			}
			return streamTrailingObjects(ctx, dec, emit)

		case '{':
			streamed, single, err := streamEnvelopeOrSingle(ctx, dec, emit)
			if err != nil {
				return err
			}
			if err := expectDelim(dec, '}'); err != nil {
				return err
			}
			if !streamed && single != nil {
				if err := emit(single); err != nil {
					return err
				}
			}
			return streamTrailingObjects(ctx, dec, emit)

		default:
			return fmt.Errorf("unsupported json root delimiter %q", d)
		}

	default:
		return fmt.Errorf("unsupported json root token %T (want object or array)", tok)
	}
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	end, err := dec.Token()
	if err != nil {
		return wrap.Errorf(err, "failed to read json %q", want)
	}
	if end != want {
		return fmt.Errorf("expected json %q, got %v", want, end)
	}
	return nil
}

func streamTrailingObjects(ctx context.Context, dec *json.Decoder, emit func(map[string]any) error) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		var obj map[string]any
		if err := dec.Decode(&obj); err != nil {
			if err == io.EOF {
				return nil
			}
			return wrap.Error(err, "failed to decode trailing json object")
		}
		if obj == nil {
			continue
		}
		if err := emit(obj); err != nil {
			return err
		}
	}
}

// streamArrayOfObjects emits the elements of the current array (after '[').
// null elements are skipped; any other non-object element is an error.
func streamArrayOfObjects(ctx context.Context, dec *json.Decoder, emit func(map[string]any) error) error {
	for n := 1; dec.More(); n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		var raw any
		if err := dec.Decode(&raw); err != nil {
			return wrap.Errorf(err, "failed to decode json array element %d", n)
		}
		if raw == nil {
			continue
		}
		obj, ok := raw.(map[string]any)
		if !ok {
			return fmt.Errorf("json array element %d is not an object (got %T)", n, raw)
		}
		if err := emit(obj); err != nil {
			return err
		}
	}
	return nil
}

// streamEnvelopeOrSingle walks a root object (after '{'). The first field
// holding an array is streamed as the records and the remaining fields are
// skipped. Without such a field the object itself is returned as one record.
func streamEnvelopeOrSingle(ctx context.Context, dec *json.Decoder, emit func(map[string]any) error) (streamed bool, single map[string]any, _ error) {
	single = make(map[string]any)

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return false, nil, wrap.Error(err, "failed to read json object key")
		}
		key, ok := keyTok.(string)
		if !ok {
			return false, nil, fmt.Errorf("json object key is not a string (got %T)", keyTok)
		}

		valTok, err := dec.Token()
		if err != nil {
			return false, nil, wrap.Errorf(err, "failed to read value of json key %q", key)
		}

		if delim, ok := valTok.(json.Delim); ok && delim == '[' {
			if err := streamArrayOfObjects(ctx, dec, emit); err != nil {
				return false, nil, wrap.Errorf(err, "json envelope field %q", key)
			}
			if err := expectDelim(dec, ']'); err != nil {
				return false, nil, err
			}
			for dec.More() {
				if _, err := dec.Token(); err != nil {
					return true, nil, wrap.Error(err, "failed to skip json envelope key")
				}
				if err := skipNextValue(dec); err != nil {
					return true, nil, err
				}
			}
			return true, nil, nil
		}

		val, err := materializeValue(dec, valTok)
		if err != nil {
			return false, nil, err
		}
		single[key] = val
	}

	return false, single, nil
}

func skipNextValue(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return wrap.Error(err, "failed to skip json value")
	}
	_, err = materializeValue(dec, tok)
	return err
}

// materializeValue builds the Go value of the current JSON value, given its
// first token has already been read.
func materializeValue(dec *json.Decoder, tok any) (any, error) {
	d, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}

	switch d {
	case '{':
		m := make(map[string]any)
		for dec.More() {
			kt, err := dec.Token()
			if err != nil {
				return nil, wrap.Error(err, "failed to read nested json key")
			}
			k, ok := kt.(string)
			if !ok {
				return nil, fmt.Errorf("nested json key is not a string (got %T)", kt)
			}
			vt, err := dec.Token()
			if err != nil {
				return nil, wrap.Errorf(err, "failed to read nested json value of %q", k)
			}
			v, err := materializeValue(dec, vt)
			if err != nil {
				return nil, err
			}
			m[k] = v
		}
		return m, expectDelim(dec, '}')

	case '[':
		arr := []any{}
		for dec.More() {
			vt, err := dec.Token()
			if err != nil {
				return nil, wrap.Error(err, "failed to read nested json array value")
			}
			v, err := materializeValue(dec, vt)
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		return arr, expectDelim(dec, ']')

	default:
		return nil, fmt.Errorf("unexpected json delimiter %q", d)
	}
}
