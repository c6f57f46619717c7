// Package extracthtml pulls <table> elements out of HTML documents as
// header + string rows, ready to be loaded like delimited text.
package extracthtml

import (
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"hermannm.dev/wrap"
)

// Table is one extracted <table>.
type Table struct {
	// Index is the position of the table among all tables in the document,
	// counting skipped empty tables.
	Index   int
	Caption string
	// Header holds the <th> texts of the first row when that row is made of
	// header cells only. Otherwise it holds placeholders col_0, col_1, ...
	Header []string
	// HasHeader reports whether Header came from the document.
	HasHeader bool
	Rows      [][]string
}

// Width is the number of columns.
func (t Table) Width() int { return len(t.Header) }

// ExtractTables returns every non-empty table of the document in DOM order.
// Nested tables are extracted on their own and not merged into the parent.
//
// Cells spanning several columns (colspan) are repeated across the columns
// they cover, and cells spanning several rows (rowspan) are carried down.
// The table width is the most common expanded row width; shorter rows are
// padded with "" and longer rows are cut.
func ExtractTables(r io.Reader) ([]Table, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, wrap.Error(err, "failed to parse html")
	}

	var tables []Table
	doc.Find("table").Each(func(i int, sel *goquery.Selection) {
		t := extractTable(sel)
		t.Index = i
		if t.Width() == 0 || (len(t.Rows) == 0 && !t.HasHeader) {
			return
		}
		tables = append(tables, t)
	})
	return tables, nil
}

// SelectTable picks one table by index (among all tables in the document)
// or, when match is non-empty, the first table whose caption or header
// matches the regular expression.
func SelectTable(tables []Table, index int, match string) (Table, error) {
	if strings.TrimSpace(match) != "" {
		re, err := regexp.Compile(match)
		if err != nil {
			return Table{}, wrap.Errorf(err, "invalid table match pattern %q", match)
		}
		for _, t := range tables {
			if re.MatchString(t.Caption) || re.MatchString(strings.Join(t.Header, " ")) {
				return t, nil
			}
		}
		return Table{}, fmt.Errorf("no table matches %q", match)
	}
	for _, t := range tables {
		if t.Index == index {
			return t, nil
		}
	}
	return Table{}, fmt.Errorf("no non-empty table at index %d (%d tables found)", index, len(tables))
}

type cell struct {
	text    string
	header  bool
	colspan int
	rowspan int
}

// pending is a rowspan cell still covering rows below the one it started in.
type pending struct {
	text string
	left int
}

func extractTable(sel *goquery.Selection) Table {
	t := Table{Caption: strings.TrimSpace(sel.ChildrenFiltered("caption").Text())}

	var raw [][]cell
	ownRows(sel).Each(func(_ int, tr *goquery.Selection) {
		var row []cell
		tr.ChildrenFiltered("td, th").Each(func(_ int, c *goquery.Selection) {
			row = append(row, cell{
				text:    cellText(c),
				header:  goquery.NodeName(c) == "th",
				colspan: spanAttr(c, "colspan"),
				rowspan: spanAttr(c, "rowspan"),
			})
		})
		if len(row) > 0 {
			raw = append(raw, row)
		}
	})
	if len(raw) == 0 {
		return t
	}

	headerRow := allHeaders(raw[0])
	rows := expandSpans(raw)
	width := majorityWidth(rows)

	if headerRow {
		t.Header = fit(rows[0], width)
		t.HasHeader = true
		rows = rows[1:]
	} else {
		t.Header = make([]string, width)
		for i := range t.Header {
			t.Header[i] = "col_" + strconv.Itoa(i)
		}
	}
	for _, r := range rows {
		t.Rows = append(t.Rows, fit(r, width))
	}
	return t
}

// ownRows returns the <tr> elements belonging to sel itself, skipping rows
// of nested tables.
func ownRows(sel *goquery.Selection) *goquery.Selection {
	return sel.Find("tr").FilterFunction(func(_ int, tr *goquery.Selection) bool {
		return tr.ParentsFiltered("table").First().IsSelection(sel)
	})
}

func cellText(c *goquery.Selection) string {
	c = c.Clone()
	c.Find("table, script, style").Remove()
	return strings.Join(strings.Fields(c.Text()), " ")
}

func spanAttr(c *goquery.Selection, name string) int {
	v, ok := c.Attr(name)
	if !ok {
		return 1
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 1 {
		return 1
	}
	return min(n, 1000)
}

func allHeaders(row []cell) bool {
	for _, c := range row {
		if !c.header {
			return false
		}
	}
	return true
}

// expandSpans lays cells out on a grid, repeating colspan cells and carrying
// rowspan cells into the rows below.
func expandSpans(raw [][]cell) [][]string {
	var carry []*pending // indexed by output column
	out := make([][]string, 0, len(raw))

	for _, row := range raw {
		var line []string
		col := 0
		takeCarried := func() {
			for col < len(carry) && carry[col] != nil {
				p := carry[col]
				line = append(line, p.text)
				p.left--
				if p.left == 0 {
					carry[col] = nil
				}
				col++
			}
		}

		for _, c := range row {
			takeCarried()
			for k := 0; k < c.colspan; k++ {
				line = append(line, c.text)
				if c.rowspan > 1 {
					for len(carry) <= col {
						carry = append(carry, nil)
					}
					carry[col] = &pending{text: c.text, left: c.rowspan - 1}
				}
				col++
			}
		}
		takeCarried()
		out = append(out, line)
	}
	return out
}

// majorityWidth returns the most common row width; ties go to the wider one.
func majorityWidth(rows [][]string) int {
	counts := map[int]int{}
	best, bestN := 0, 0
	for _, r := range rows {
		w := len(r)
		counts[w]++
		if n := counts[w]; n > bestN || (n == bestN && w > best) {
			best, bestN = w, n
		}
	}
	return best
}

func fit(row []string, width int) []string {
	out := make([]string, width)
	copy(out, row)
	return out
}
