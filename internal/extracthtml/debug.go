package extracthtml

import (
	"fmt"
	"io"
	"strings"
)

// DescribeTables prints one summary line per table: index, shape, caption
// and the first header names. It backs "tabload probe" for HTML input.
func DescribeTables(w io.Writer, tables []Table) {
	if len(tables) == 0 {
		fmt.Fprintln(w, "no tables found")
		return
	}
	for _, t := range tables {
		header := t.Header
		more := ""
		if len(header) > 6 {
			header, more = header[:6], ", ..."
		}
		caption := t.Caption
		if caption == "" {
			caption = "-"
		}
		fmt.Fprintf(w, "table %d: %d rows x %d cols caption=%q header=[%s%s]\n",
			t.Index, len(t.Rows), t.Width(), caption, strings.Join(header, ", "), more)
	}
}
