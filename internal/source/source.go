// Package source opens input files (CSV/TSV, JSON, HTML tables; plain,
// gzip or zip; UTF-8, UTF-16 or legacy 8-bit encodings) and reads them as
// a header plus positional rows.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"hermannm.dev/wrap"

	"tabload/internal/config"
)

// Reader yields the rows of one input. The header is known once the reader
// is open.
type Reader interface {
	// Header returns the source column names after header_map renaming.
	Header() []string
	// Read returns the next row and its 1-based record number. It returns
	// io.EOF after the last row. A *RowError reports one bad record; reading
	// may continue after it.
	Read() (row []any, line int, err error)
	Close() error
}

// RowError is a recoverable problem with a single record.
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("record %d: %v", e.Line, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// Format names.
const (
	FormatCSV  = "csv"
	FormatTSV  = "tsv"
	FormatJSON = "json"
	FormatHTML = "html"
)

// Open opens src for reading. nullValues are extra strings read as NULL in
// addition to the empty string and the source's own null_values option.
func Open(ctx context.Context, src config.Source, nullValues []string) (Reader, error) {
	in, name, err := openInput(ctx, src)
	if err != nil {
		return nil, err
	}

	format := strings.ToLower(src.Format)
	if format == "" {
		format = DetectFormat(name)
	}

	opts := src.Options
	nulls := newNullSet(append(append([]string(nil), nullValues...), opts.Strings("null_values")...))
	rename := opts.StringMap("header_map")

	var r Reader
	switch format {
	case FormatCSV, FormatTSV:
		r, err = newCSVReader(in, format, opts, nulls)
	case FormatJSON:
		r, err = newJSONReader(ctx, in, opts, nulls)
	case FormatHTML:
		r, err = newHTMLReader(in, opts, nulls)
	default:
		err = fmt.Errorf("unsupported format %q", format)
	}
	if err != nil {
		_ = in.Close()
		return nil, wrap.Errorf(err, "failed to open %s source %q", format, src.Path)
	}
	if len(rename) > 0 {
		return &renamed{Reader: r, header: applyHeaderMap(r.Header(), rename)}, nil
	}
	return r, nil
}

// DetectFormat guesses the format from a file name, ignoring compression
// suffixes. Unknown extensions are read as CSV.
func DetectFormat(name string) string {
	name = strings.ToLower(name)
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	for _, ext := range []string{".gz", ".gzip", ".zip"} {
		name = strings.TrimSuffix(name, ext)
	}
	switch path.Ext(name) {
	case ".tsv", ".tab":
		return FormatTSV
	case ".json", ".jsonl", ".ndjson":
		return FormatJSON
	case ".html", ".htm":
		return FormatHTML
	default:
		return FormatCSV
	}
}

type nullSet map[string]struct{}

func newNullSet(values []string) nullSet {
	s := nullSet{"": {}}
	for _, v := range values {
		s[v] = struct{}{}
	}
	return s
}

// value maps a raw string cell to nil when it is a null sentinel.
func (s nullSet) value(v string) any {
	if _, ok := s[v]; ok {
		return nil
	}
	return v
}

func applyHeaderMap(header []string, rename map[string]string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		if to, ok := rename[h]; ok && to != "" {
			out[i] = to
		} else {
			out[i] = h
		}
	}
	return out
}

type renamed struct {
	Reader
	header []string
}

func (r *renamed) Header() []string { return r.header }

// ReadAll drains r into memory. Row errors are skipped and returned
// alongside the rows.
func ReadAll(r Reader) (rows [][]any, skipped []*RowError, err error) {
	for {
		row, _, err := r.Read()
		if err == io.EOF {
			return rows, skipped, nil
		}
		var re *RowError
		if errors.As(err, &re) {
			skipped = append(skipped, re)
			continue
		}
		if err != nil {
			return rows, skipped, err
		}
		rows = append(rows, row)
	}
}
