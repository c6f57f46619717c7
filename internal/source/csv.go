package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"hermannm.dev/wrap"

	"tabload/internal/config"
)

// csvReader reads delimited text.
//
// Options:
//   - has_header (default true): the first record after header_row is the header
//   - header_row (default 0): records to discard before the header
//   - skip_lines (default 0): records to discard after the header
//   - comma (default ',' or tab for tsv), comment, lazy_quotes, trim_space
//
// Records shorter than the header are padded with NULL. Records longer than
// the header are reported as a *RowError and skipped.
type csvReader struct {
	src    io.ReadCloser
	cr     *csv.Reader
	header []string
	nulls  nullSet
	trim   bool

	line    int
	pending []string // first data record when there is no header row
}

func newCSVReader(src io.ReadCloser, format string, opt config.Options, nulls nullSet) (*csvReader, error) {
	defComma := ','
	if format == FormatTSV {
		defComma = '\t'
	}

	cr := csv.NewReader(src)
	cr.Comma = opt.Rune("comma", defComma)
	cr.Comment = opt.Rune("comment", 0)
	cr.LazyQuotes = opt.Bool("lazy_quotes", false)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = false

	r := &csvReader{
		src:   src,
		cr:    cr,
		nulls: nulls,
		trim:  opt.Bool("trim_space", true),
	}

	for i := opt.Int("header_row", 0); i > 0; i-- {
		if _, err := r.next(); err != nil {
			return nil, wrap.Error(err, "failed to skip lines before header")
		}
	}

	first, err := r.next()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("input is empty")
		}
		return nil, wrap.Error(err, "failed to read header")
	}

	if opt.Bool("has_header", true) {
		r.header = make([]string, len(first))
		for i, h := range first {
			r.header[i] = strings.TrimSpace(h)
		}
	} else {
		r.header = make([]string, len(first))
		for i := range first {
			r.header[i] = "col_" + strconv.Itoa(i)
		}
		r.pending = first
	}

	for i := opt.Int("skip_lines", 0); i > 0 && r.pending == nil; i-- {
		if _, err := r.next(); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, wrap.Error(err, "failed to skip lines after header")
		}
	}
	return r, nil
}

func (r *csvReader) next() ([]string, error) {
	r.line++
	return r.cr.Read()
}

func (r *csvReader) Header() []string { return r.header }

func (r *csvReader) Read() ([]any, int, error) {
	var rec []string
	if r.pending != nil {
		rec, r.pending = r.pending, nil
	} else {
		var err error
		rec, err = r.next()
		if err == io.EOF {
			return nil, r.line, io.EOF
		}
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			return nil, r.line, &RowError{Line: r.line, Err: err}
		}
		if err != nil {
			return nil, r.line, wrap.Errorf(err, "failed to read record %d", r.line)
		}
	}

	if len(rec) > len(r.header) {
		return nil, r.line, &RowError{
			Line: r.line,
			Err:  fmt.Errorf("%d fields, header has %d", len(rec), len(r.header)),
		}
	}

	row := make([]any, len(r.header))
	for i, v := range rec {
		if r.trim {
			v = strings.TrimSpace(v)
		}
		row[i] = r.nulls.value(v)
	}
	return row, r.line, nil
}

func (r *csvReader) Close() error { return r.src.Close() }
