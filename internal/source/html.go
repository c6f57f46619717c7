package source

import (
	"context"
	"io"

	"tabload/internal/config"
	"tabload/internal/extracthtml"
)

// newHTMLReader loads one <table> of an HTML document.
//
// Options:
//   - table_index (default 0): position of the table among all <table>
//     elements in the document
//   - table_match: regular expression matched against caption and header;
//     overrides table_index
func newHTMLReader(src io.ReadCloser, opt config.Options, nulls nullSet) (Reader, error) {
	defer src.Close()

	tables, err := extracthtml.ExtractTables(src)
	if err != nil {
		return nil, err
	}
	t, err := extracthtml.SelectTable(tables, opt.Int("table_index", 0), opt.String("table_match", ""))
	if err != nil {
		return nil, err
	}

	rows := make([][]any, len(t.Rows))
	for i, r := range t.Rows {
		row := make([]any, len(r))
		for j, v := range r {
			row[j] = nulls.value(v)
		}
		rows[i] = row
	}
	return newRowsReader(t.Header, rows), nil
}

// ListHTMLTables returns the tables of an HTML source for inspection.
func ListHTMLTables(ctx context.Context, src config.Source) ([]extracthtml.Table, error) {
	in, _, err := openInput(ctx, src)
	if err != nil {
		return nil, err
	}
	defer in.Close()
	return extracthtml.ExtractTables(in)
}
