package table

import (
	"reflect"
	"testing"

	"tabload/internal/schema"
)

func TestAppendRecords_KeyUnion(t *testing.T) {
	t.Parallel()

	tbl, err := FromNames("people", schema.Postgres, nil)
	if err != nil {
		t.Fatalf("FromNames: %v", err)
	}

	records := []map[string]any{
		{"name": "Ada", "age": 36.0},
		{"Name": "Alan", "city": "London"},
		{"age": 41.0},
	}
	if err := tbl.AppendRecords(records); err != nil {
		t.Fatalf("AppendRecords: %v", err)
	}

	if got := tbl.Columns.Names(); !reflect.DeepEqual(got, []string{"age", "name", "city"}) {
		t.Fatalf("names got=%v", got)
	}
	want := [][]any{
		{36.0, "Ada", nil},
		{nil, "Alan", "London"},
		{41.0, nil, nil},
	}
	if !reflect.DeepEqual(tbl.Rows, want) {
		t.Fatalf("rows got=%v want=%v", tbl.Rows, want)
	}
}

func TestAppendRecords_Extract(t *testing.T) {
	t.Parallel()

	tbl, err := FromNames("repos", schema.Postgres, []string{"id"})
	if err != nil {
		t.Fatalf("FromNames: %v", err)
	}

	records := []map[string]any{
		{"id": "1", "owner": map[string]any{"login": "octo"}, "tags": []any{"go", "sql"}},
		{"id": "2"},
	}
	err = tbl.AppendRecords(records,
		Extract{Column: "owner_login", Path: []string{"owner", "login"}},
		Extract{Column: "first_tag", Path: []string{"tags", "0"}},
	)
	if err != nil {
		t.Fatalf("AppendRecords: %v", err)
	}

	login, _ := tbl.Column("owner_login")
	if !reflect.DeepEqual(login, []any{"octo", nil}) {
		t.Fatalf("owner_login got=%v", login)
	}
	tag, _ := tbl.Column("first_tag")
	if !reflect.DeepEqual(tag, []any{"go", nil}) {
		t.Fatalf("first_tag got=%v", tag)
	}
}

func TestAppendRecords_KeysDifferingOnlyInCase(t *testing.T) {
	t.Parallel()

	tbl, err := FromNames("people", schema.Postgres, nil)
	if err != nil {
		t.Fatalf("FromNames: %v", err)
	}

	records := []map[string]any{
		{"Name": "a", "name": "b"},
		{"name": "c", "Name": "d"},
		{"name": "e"},
	}
	if err := tbl.AppendRecords(records); err != nil {
		t.Fatalf("AppendRecords: %v", err)
	}

	if got := tbl.Columns.Names(); !reflect.DeepEqual(got, []string{"Name", "name_1"}) {
		t.Fatalf("names got=%v", got)
	}
	want := [][]any{
		{"a", "b"},
		{"d", "c"},
		{nil, "e"},
	}
	if !reflect.DeepEqual(tbl.Rows, want) {
		t.Fatalf("rows got=%v want=%v", tbl.Rows, want)
	}
}
