package source

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"golang.org/x/text/encoding/charmap"

	"tabload/internal/config"
	"tabload/internal/transformer"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func readAll(t *testing.T, src config.Source, nulls ...string) ([]string, [][]any) {
	t.Helper()
	r, err := Open(context.Background(), src, nulls)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()
	rows, skipped, err := ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(skipped) != 0 {
		t.Fatalf("unexpected skipped rows: %v", skipped)
	}
	return r.Header(), rows
}

const capitalsCSV = "\uFEFFCapital,Country,Currency,Demonym,Population\n" +
	"Washington,USA,USD,American,324774000\n" +
	"Ottawa,Canada,CAD,Canadian,\n"

func TestOpen_CSV(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "capitals.csv", []byte(capitalsCSV))
	header, rows := readAll(t, config.Source{Path: path})

	if want := []string{"Capital", "Country", "Currency", "Demonym", "Population"}; !reflect.DeepEqual(header, want) {
		t.Fatalf("header got=%v want=%v", header, want)
	}
	want := [][]any{
		{"Washington", "USA", "USD", "American", "324774000"},
		{"Ottawa", "Canada", "CAD", "Canadian", nil},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Fatalf("rows got=%v want=%v", rows, want)
	}
}

func TestOpen_CSVOptions(t *testing.T) {
	t.Parallel()

	data := "exported 2024-01-01\n" +
		"id;name;note\n" +
		"-- units row --\n" +
		"1;a;NA\n" +
		"2;b\n"
	path := writeFile(t, "export.txt", []byte(data))
	src := config.Source{
		Path: path,
		Options: config.Options{
			"comma":       ";",
			"header_row":  1,
			"skip_lines":  1,
			"null_values": []any{"NA"},
			"header_map":  map[string]any{"note": "remark"},
		},
	}

	header, rows := readAll(t, src)
	if want := []string{"id", "name", "remark"}; !reflect.DeepEqual(header, want) {
		t.Fatalf("header got=%v want=%v", header, want)
	}
	want := [][]any{{"1", "a", nil}, {"2", "b", nil}}
	if !reflect.DeepEqual(rows, want) {
		t.Fatalf("rows got=%v want=%v", rows, want)
	}
}

func TestOpen_CSVWithoutHeaderAndLongRows(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "raw.tsv", []byte("1\tx\n2\ty\textra\n3\tz\n"))
	r, err := Open(context.Background(), config.Source{Path: path, Options: config.Options{"has_header": false}}, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	if want := []string{"col_0", "col_1"}; !reflect.DeepEqual(r.Header(), want) {
		t.Fatalf("header got=%v want=%v", r.Header(), want)
	}
	rows, skipped, err := ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if want := [][]any{{"1", "x"}, {"3", "z"}}; !reflect.DeepEqual(rows, want) {
		t.Fatalf("rows got=%v want=%v", rows, want)
	}
	if len(skipped) != 1 || skipped[0].Line != 2 {
		t.Fatalf("skipped got=%v want record 2", skipped)
	}
}

func TestOpen_EmptyCSV(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "empty.csv", nil)
	if _, err := Open(context.Background(), config.Source{Path: path}, nil); err == nil {
		t.Fatalf("expected error for empty input")
	}
}

func TestOpen_GzipAndLatin1(t *testing.T) {
	t.Parallel()

	latin1, err := charmap.ISO8859_1.NewEncoder().String("city,country\nZürich,Schweiz\n")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(latin1)); err != nil {
		t.Fatalf("gzip: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}

	// No .gz suffix: compression is sniffed from the magic bytes.
	path := writeFile(t, "cities.csv", buf.Bytes())
	_, rows := readAll(t, config.Source{Path: path, Encoding: "latin1"})
	if len(rows) != 1 || rows[0][0] != "Zürich" {
		t.Fatalf("rows got=%v", rows)
	}
}

func TestOpen_ZipEntry(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range map[string]string{
		"readme.txt":       "not data",
		"data/people.json": `[{"name": "Ada", "born": 1815}]`,
	} {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create: %v", err)
		}
		if _, err := io.WriteString(w, body); err != nil {
			t.Fatalf("zip write: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}

	path := writeFile(t, "bundle.zip", buf.Bytes())
	header, rows := readAll(t, config.Source{Path: path, ZipEntry: "people.json"})
	if want := []string{"born", "name"}; !reflect.DeepEqual(header, want) {
		t.Fatalf("header got=%v want=%v (format detected from entry name)", header, want)
	}
	if rows[0][1] != "Ada" {
		t.Fatalf("rows got=%v", rows)
	}

	if _, err := Open(context.Background(), config.Source{Path: path, ZipEntry: "missing.csv"}, nil); err == nil {
		t.Fatalf("expected missing entry error")
	}
}

func TestOpen_JSONShapes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		body     string
		opts     config.Options
		wantHdr  []string
		wantRows int
	}{
		{
			name:     "array with nulls and trailing lines",
			body:     `[{"a": 1}, null, {"b": "x"}] {"a": 2, "c": true}`,
			wantHdr:  []string{"a", "b", "c"},
			wantRows: 3,
		},
		{
			name:     "envelope",
			body:     `{"meta": {"page": 1}, "items": [{"id": 1}, {"id": 2}], "next": null}`,
			wantHdr:  []string{"id"},
			wantRows: 2,
		},
		{
			name:     "single object",
			body:     `{"id": 7, "tags": ["a", "b"]}`,
			wantHdr:  []string{"id", "tags"},
			wantRows: 1,
		},
		{
			name:     "extract nested",
			body:     `[{"id": 1, "geo": {"lat": 1.5, "pts": [{"x": 3}]}}]`,
			opts:     config.Options{"extract": map[string]any{"lat": "geo.lat", "x0": "geo.pts.0.x"}},
			wantHdr:  []string{"lat", "x0", "geo", "id"},
			wantRows: 1,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := writeFile(t, "in.json", []byte(tt.body))
			header, rows := readAll(t, config.Source{Path: path, Options: tt.opts})
			if !reflect.DeepEqual(header, tt.wantHdr) {
				t.Fatalf("header got=%v want=%v", header, tt.wantHdr)
			}
			if len(rows) != tt.wantRows {
				t.Fatalf("rows got=%d want=%d", len(rows), tt.wantRows)
			}
		})
	}
}

func TestOpen_JSONJoinAndNulls(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "in.json", []byte(`[{"tags": ["a", "b"], "note": "n/a"}]`))
	src := config.Source{Path: path, Options: config.Options{"array_join_separator": "|"}}
	_, rows := readAll(t, src, "n/a")
	if rows[0][0] != nil || rows[0][1] != "a|b" {
		t.Fatalf("rows got=%v", rows)
	}
}

func TestOpen_JSONErrors(t *testing.T) {
	t.Parallel()

	for _, body := range []string{`"scalar"`, `[1, 2]`, `[{"a": 1}`} {
		path := writeFile(t, "bad.json", []byte(body))
		if _, err := Open(context.Background(), config.Source{Path: path}, nil); err == nil {
			t.Fatalf("%s: expected error", body)
		}
	}
}

func TestOpen_HTMLFromURL(t *testing.T) {
	t.Parallel()

	page := `<table><tr><th>Capital</th><th>Population</th></tr>
	<tr><td>Washington</td><td>324774000</td></tr>
	<tr><td>Atlantis</td><td></td></tr></table>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, page)
	}))
	t.Cleanup(srv.Close)

	header, rows := readAll(t, config.Source{Path: srv.URL + "/capitals.html?lang=en"})
	if want := []string{"Capital", "Population"}; !reflect.DeepEqual(header, want) {
		t.Fatalf("header got=%v want=%v", header, want)
	}
	if want := [][]any{{"Washington", "324774000"}, {"Atlantis", nil}}; !reflect.DeepEqual(rows, want) {
		t.Fatalf("rows got=%v want=%v", rows, want)
	}
}

func TestFetcher_Non2xx(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	_, err := NewFetcher(nil, 2*time.Second).Open(context.Background(), srv.URL)
	if err == nil || !strings.Contains(err.Error(), "http status 403") || !strings.Contains(err.Error(), "nope") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDetectFormat(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"a.csv":                    FormatCSV,
		"a.TSV.gz":                 FormatTSV,
		"a.ndjson":                 FormatJSON,
		"dump.json.zip":            FormatJSON,
		"https://x/y/page.htm?q=1": FormatHTML,
		"noext":                    FormatCSV,
	}
	for in, want := range tests {
		if got := DetectFormat(in); got != want {
			t.Fatalf("DetectFormat(%q) got=%q want=%q", in, got, want)
		}
	}
}

func TestStream_PadsWidthAndReportsRowErrors(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "s.csv", []byte("a,b\n1,2\n1,2,3\n4,5\n"))
	r, err := Open(context.Background(), config.Source{Path: path}, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	out := make(chan *transformer.Row, 8)
	var rowErrs []*RowError
	if err := Stream(context.Background(), r, 3, out, func(e *RowError) { rowErrs = append(rowErrs, e) }); err != nil {
		t.Fatalf("Stream: %v", err)
	}
	close(out)

	var got [][]any
	var lines []int
	for row := range out {
		got = append(got, row.Detach())
		lines = append(lines, row.Line)
		row.Free()
	}
	if want := [][]any{{"1", "2", nil}, {"4", "5", nil}}; !reflect.DeepEqual(got, want) {
		t.Fatalf("rows got=%v want=%v", got, want)
	}
	if want := []int{2, 4}; !reflect.DeepEqual(lines, want) {
		t.Fatalf("lines got=%v want=%v", lines, want)
	}
	if len(rowErrs) != 1 || rowErrs[0].Line != 3 {
		t.Fatalf("row errors got=%v", rowErrs)
	}
}

func TestStream_Canceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := FromRows([]string{"a"}, [][]any{{"1"}})
	out := make(chan *transformer.Row, 1)
	if err := Stream(ctx, r, 1, out, nil); err != context.Canceled {
		t.Fatalf("err=%v want context.Canceled", err)
	}
}
