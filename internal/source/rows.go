package source

import (
	"io"
	"strconv"
	"strings"

	"tabload/internal/columns"
)

// rowsReader serves rows already held in memory.
type rowsReader struct {
	header []string
	rows   [][]any
	next   int
}

func newRowsReader(header []string, rows [][]any) *rowsReader {
	return &rowsReader{header: header, rows: rows}
}

// FromRows returns a Reader over in-memory rows. Rows must have the width of
// header.
func FromRows(header []string, rows [][]any) Reader {
	return newRowsReader(header, rows)
}

func (r *rowsReader) Header() []string { return r.header }

func (r *rowsReader) Read() ([]any, int, error) {
	if r.next >= len(r.rows) {
		return nil, r.next, io.EOF
	}
	row := r.rows[r.next]
	r.rows[r.next] = nil
	r.next++
	return row, r.next, nil
}

func (r *rowsReader) Close() error {
	r.rows = nil
	return nil
}

// ColumnNames turns a raw source header into destination column names:
// sanitized (unless keep is set) and made unique case-insensitively.
func ColumnNames(header []string, kw columns.Keywords, keep bool) []string {
	if !keep {
		return columns.SanitizeAll(header, kw)
	}
	out := make([]string, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == "" {
			h = "col_" + strconv.Itoa(i)
		}
		out[i] = h
	}
	return columns.Dedupe(out)
}
