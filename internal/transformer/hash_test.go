package transformer

import (
	"context"
	"strings"
	"testing"
)

func runHash(t *testing.T, h *Hasher, rows ...*Row) []*Row {
	t.Helper()

	in := make(chan *Row, len(rows))
	out := make(chan *Row, len(rows))
	for _, r := range rows {
		in <- r
	}
	close(in)

	if err := HashLoopRows(context.Background(), h, in, out); err != nil {
		t.Fatalf("HashLoopRows: %v", err)
	}
	close(out)

	var got []*Row
	for r := range out {
		got = append(got, r)
	}
	return got
}

func TestHashLoopRows_DeterministicHexSHA256(t *testing.T) {
	t.Parallel()

	columns := []string{"capital", "country", "row_hash"}
	h, err := HashSpec{Fields: []string{"Capital", "country"}, TargetField: "row_hash", TrimSpace: true}.Compile(columns)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	got := runHash(t, h,
		&Row{Line: 1, V: []any{"Washington", "USA", nil}},
		&Row{Line: 2, V: []any{" Washington ", "USA", nil}},
		&Row{Line: 3, V: []any{"Ottawa", "Canada", nil}},
	)
	if len(got) != 3 {
		t.Fatalf("rows got=%d want=3", len(got))
	}

	h1, ok := got[0].V[2].(string)
	if !ok || len(h1) != 64 {
		t.Fatalf("expected 64-char hex hash, got %#v", got[0].V[2])
	}
	if got[1].V[2] != h1 {
		t.Fatalf("trim_space should make rows 1 and 2 hash equal: %v vs %v", h1, got[1].V[2])
	}
	if got[2].V[2] == h1 {
		t.Fatalf("different input produced the same hash")
	}
}

func TestHasher_NullDiffersFromEmpty(t *testing.T) {
	t.Parallel()

	h, err := HashSpec{Fields: []string{"a"}, TargetField: "k"}.Compile([]string{"a", "k"})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	var b strings.Builder
	nullRow := []any{nil, nil}
	emptyRow := []any{"", nil}
	h.Apply(nullRow, &b)
	h.Apply(emptyRow, &b)
	if nullRow[1] == emptyRow[1] {
		t.Fatalf("NULL and empty string must hash differently")
	}
}

func TestHasher_IncludeFieldNamesChangesHash(t *testing.T) {
	t.Parallel()

	cols := []string{"a", "b", "k"}
	plain, _ := HashSpec{Fields: []string{"a", "b"}, TargetField: "k"}.Compile(cols)
	named, _ := HashSpec{Fields: []string{"a", "b"}, TargetField: "k", IncludeFieldNames: true}.Compile(cols)

	var b strings.Builder
	r1 := []any{int64(1), 2.5, nil}
	r2 := []any{int64(1), 2.5, nil}
	plain.Apply(r1, &b)
	named.Apply(r2, &b)
	if r1[2] == r2[2] {
		t.Fatalf("include_field_names should change the hash")
	}
}

func TestHashSpec_CompileErrors(t *testing.T) {
	t.Parallel()

	cols := []string{"a", "k"}
	tests := []struct {
		name string
		spec HashSpec
	}{
		{"no target", HashSpec{Fields: []string{"a"}}},
		{"no fields", HashSpec{TargetField: "k"}},
		{"unknown target", HashSpec{Fields: []string{"a"}, TargetField: "z"}},
		{"unknown field", HashSpec{Fields: []string{"z"}, TargetField: "k"}},
		{"field is target", HashSpec{Fields: []string{"k"}, TargetField: "k"}},
	}
	for _, tt := range tests {
		if _, err := tt.spec.Compile(cols); err == nil {
			t.Fatalf("%s: expected error", tt.name)
		}
	}
}

func TestHashLoopRows_CanceledDropsRows(t *testing.T) {
	t.Parallel()

	h, _ := HashSpec{Fields: []string{"a"}, TargetField: "k"}.Compile([]string{"a", "k"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	in := make(chan *Row, 2)
	out := make(chan *Row, 2)
	r := &Row{V: []any{"x", nil}}
	in <- r
	in <- &Row{V: []any{"y", nil}}
	close(in)

	if err := HashLoopRows(ctx, h, in, out); err != context.Canceled {
		t.Fatalf("err=%v want context.Canceled", err)
	}
	if len(out) != 0 {
		t.Fatalf("no rows should be forwarded after cancel")
	}
	if r.V != nil {
		t.Fatalf("canceled rows must be dropped")
	}
}

func TestGetRow_ZeroesReusedRows(t *testing.T) {
	r := GetRow(3)
	r.V[0], r.Line = "x", 9
	r.Free()

	r2 := GetRow(2)
	if len(r2.V) != 2 || r2.V[0] != nil || r2.Line != 0 {
		t.Fatalf("reused row not reset: %+v", r2)
	}
	d := r2.Detach()
	d[0] = "y"
	if r2.V[0] != nil {
		t.Fatalf("Detach must copy")
	}
}
