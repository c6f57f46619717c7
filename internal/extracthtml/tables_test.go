package extracthtml

import (
	"bytes"
	"reflect"
	"strings"
	"testing"
)

const capitalsHTML = `<html><body>
<table id="empty"></table>
<table>
  <caption>World capitals</caption>
  <thead><tr><th>Capital</th><th>Country</th><th>Population</th></tr></thead>
  <tbody>
    <tr><td>Washington</td><td>USA</td><td>324774000</td></tr>
    <tr><td> Ottawa </td><td>Canada</td><td>36290000</td></tr>
  </tbody>
</table>
<table>
  <tr><td rowspan="2">A</td><td colspan="2">wide</td></tr>
  <tr><td>b1</td><td>b2</td></tr>
  <tr><td>c0</td><td>c1</td><td>c2</td></tr>
</table>
</body></html>`

func TestExtractTables(t *testing.T) {
	t.Parallel()

	tables, err := ExtractTables(strings.NewReader(capitalsHTML))
	if err != nil {
		t.Fatalf("ExtractTables: %v", err)
	}
	if len(tables) != 2 {
		t.Fatalf("tables got=%d want=2 (empty table skipped)", len(tables))
	}

	capitals := tables[0]
	if capitals.Index != 1 || capitals.Caption != "World capitals" || !capitals.HasHeader {
		t.Fatalf("capitals meta got=%+v", capitals)
	}
	if want := []string{"Capital", "Country", "Population"}; !reflect.DeepEqual(capitals.Header, want) {
		t.Fatalf("header got=%v want=%v", capitals.Header, want)
	}
	wantRows := [][]string{{"Washington", "USA", "324774000"}, {"Ottawa", "Canada", "36290000"}}
	if !reflect.DeepEqual(capitals.Rows, wantRows) {
		t.Fatalf("rows got=%v want=%v", capitals.Rows, wantRows)
	}

	spans := tables[1]
	if spans.HasHeader {
		t.Fatalf("span table should have placeholder header")
	}
	if want := []string{"col_0", "col_1", "col_2"}; !reflect.DeepEqual(spans.Header, want) {
		t.Fatalf("placeholder header got=%v", spans.Header)
	}
	wantSpans := [][]string{{"A", "wide", "wide"}, {"A", "b1", "b2"}, {"c0", "c1", "c2"}}
	if !reflect.DeepEqual(spans.Rows, wantSpans) {
		t.Fatalf("span rows got=%v want=%v", spans.Rows, wantSpans)
	}
}

func TestExtractTables_NestedAndRagged(t *testing.T) {
	t.Parallel()

	doc := `<table>
	<tr><th>a</th><th>b</th></tr>
	<tr><td>1</td><td><table><tr><td>inner</td></tr></table>outer</td></tr>
	<tr><td>2</td></tr>
	<tr><td>3</td><td>x</td><td>dropped</td></tr>
	<tr><td>4</td><td>y</td></tr>
	</table>`

	tables, err := ExtractTables(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("ExtractTables: %v", err)
	}
	if len(tables) != 2 {
		t.Fatalf("tables got=%d want=2 (outer and nested)", len(tables))
	}
	outer := tables[0]
	want := [][]string{{"1", "outer"}, {"2", ""}, {"3", "x"}, {"4", "y"}}
	if !reflect.DeepEqual(outer.Rows, want) {
		t.Fatalf("rows got=%v want=%v", outer.Rows, want)
	}
	if tables[1].Rows[0][0] != "inner" {
		t.Fatalf("nested table got=%v", tables[1].Rows)
	}
}

func TestSelectTable(t *testing.T) {
	t.Parallel()

	tables, err := ExtractTables(strings.NewReader(capitalsHTML))
	if err != nil {
		t.Fatalf("ExtractTables: %v", err)
	}

	got, err := SelectTable(tables, 2, "")
	if err != nil || got.Index != 2 {
		t.Fatalf("by index got=%+v err=%v", got, err)
	}
	got, err = SelectTable(tables, 0, "(?i)capitals")
	if err != nil || got.Index != 1 {
		t.Fatalf("by match got=%+v err=%v", got, err)
	}
	if _, err := SelectTable(tables, 0, ""); err == nil {
		t.Fatalf("index 0 is the empty table; expected error")
	}
	if _, err := SelectTable(tables, 0, "("); err == nil {
		t.Fatalf("expected invalid pattern error")
	}
}

func TestDescribeTables(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	DescribeTables(&buf, nil)
	if strings.TrimSpace(buf.String()) != "no tables found" {
		t.Fatalf("empty got=%q", buf.String())
	}

	buf.Reset()
	DescribeTables(&buf, []Table{{Index: 3, Header: []string{"a", "b"}, Rows: [][]string{{"1", "2"}}}})
	want := `table 3: 1 rows x 2 cols caption="-" header=[a, b]`
	if strings.TrimSpace(buf.String()) != want {
		t.Fatalf("got=%q want=%q", buf.String(), want)
	}
}
