package columns

import (
	"reflect"
	"testing"

	"tabload/internal/schema"
)

func TestSanitize(t *testing.T) {
	t.Parallel()

	pg := KeywordsFor(schema.Postgres)
	tests := []struct {
		raw  string
		pos  int
		want string
	}{
		{"Order Date", 0, "order_date"},
		{"  Pop. (2020) ", 1, "pop_2020"},
		{"e-mail/address", 2, "e_mail_address"},
		{"1st place", 3, "col_1st_place"},
		{"select", 4, "select_"},
		{"USER", 5, "user_"},
		{"%%%", 6, "col_6"},
		{"", 7, "col_7"},
		{"\uFEFFid", 0, "id"},
		{"Straße", 8, "strae"},
	}
	for _, tt := range tests {
		if got := Sanitize(tt.raw, tt.pos, pg); got != tt.want {
			t.Fatalf("Sanitize(%q) got=%q want=%q", tt.raw, got, tt.want)
		}
	}
}

func TestSanitize_KeywordsPerDialect(t *testing.T) {
	t.Parallel()

	// "pragma" is reserved by SQLite only.
	if got := Sanitize("pragma", 0, KeywordsFor(schema.SQLite)); got != "pragma_" {
		t.Fatalf("sqlite got=%q", got)
	}
	if got := Sanitize("pragma", 0, KeywordsFor(schema.Postgres)); got != "pragma" {
		t.Fatalf("postgres got=%q", got)
	}
}

func TestDedupe(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"unique", []string{"a", "b"}, []string{"a", "b"}},
		{"repeat", []string{"a", "a", "a"}, []string{"a", "a_1", "a_2"}},
		{"case", []string{"Name", "name"}, []string{"Name", "name_1"}},
		{"generated collides with later", []string{"a", "a", "a_1"}, []string{"a", "a_2", "a_1"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Dedupe(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("got=%v want=%v", got, tt.want)
			}
		})
	}
}

func TestSanitizeAll(t *testing.T) {
	t.Parallel()

	got := SanitizeAll([]string{"Name", "name ", "", "Table"}, KeywordsFor(schema.Postgres))
	want := []string{"name", "name_1", "col_2", "table_"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got=%v want=%v", got, want)
	}
}
