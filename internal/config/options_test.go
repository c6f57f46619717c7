package config

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestOptions_Accessors(t *testing.T) {
	t.Parallel()

	var o Options
	raw := `{
		"has_header": false,
		"comma": "\\t",
		"quote": ";",
		"header_row": 2,
		"skip_lines": "3",
		"header_map": {"Order Date": "ordered_at", "bad": 1},
		"null_values": ["NA", "-"],
		"pk": "id, code"
	}`
	if err := json.Unmarshal([]byte(raw), &o); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if got := o.Bool("has_header", true); got {
		t.Fatalf("Bool(has_header) got=%v want=false", got)
	}
	if got := o.Bool("missing", true); !got {
		t.Fatalf("Bool(missing) should fall back")
	}
	if got := o.Rune("comma", ','); got != '\t' {
		t.Fatalf("Rune(comma) got=%q want tab", got)
	}
	if got := o.Rune("quote", ','); got != ';' {
		t.Fatalf("Rune(quote) got=%q", got)
	}
	if got := o.Int("header_row", 0); got != 2 {
		t.Fatalf("Int(header_row) got=%d", got)
	}
	if got := o.Int("skip_lines", 0); got != 3 {
		t.Fatalf("Int(skip_lines) got=%d", got)
	}
	if got := o.Int("has_header", 7); got != 7 {
		t.Fatalf("Int on bool should fall back, got=%d", got)
	}
	if got, want := o.StringMap("header_map"), map[string]string{"Order Date": "ordered_at"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("StringMap got=%v want=%v", got, want)
	}
	if got, want := o.Strings("null_values"), []string{"NA", "-"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Strings(null_values) got=%v want=%v", got, want)
	}
	if got, want := o.Strings("pk"), []string{"id", "code"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Strings(pk) got=%v want=%v", got, want)
	}
	if got := o.String("missing", "x"); got != "x" {
		t.Fatalf("String fallback got=%q", got)
	}
}

func TestOptions_NilIsSafe(t *testing.T) {
	t.Parallel()

	var o Options
	if o.Any("x") != nil || o.Int("x", 5) != 5 || len(o.StringMap("x")) != 0 {
		t.Fatalf("nil Options must return fallbacks")
	}
}
