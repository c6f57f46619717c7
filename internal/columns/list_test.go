package columns

import (
	"errors"
	"reflect"
	"testing"

	"tabload/internal/schema"
)

func mustList(t *testing.T, names ...string) List {
	t.Helper()
	types := make([]schema.TypeTag, len(names))
	for i := range types {
		types[i] = schema.Text
	}
	l, err := FromNames(names, types)
	if err != nil {
		t.Fatalf("FromNames(%v): %v", names, err)
	}
	return l
}

func TestAdd_RejectsCaseInsensitiveDuplicate(t *testing.T) {
	t.Parallel()

	l := mustList(t, "Name")
	err := l.Add("name", schema.Integer)
	var dup *DuplicateColumnError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateColumnError, got %v", err)
	}
	if l.Len() != 1 {
		t.Fatalf("len got=%d want=1", l.Len())
	}
}

func TestAdd_CopiesDoNotShareBacking(t *testing.T) {
	t.Parallel()

	base := mustList(t, "a", "b")
	left := base
	right := base
	if err := left.Add("c", schema.Text); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := right.Add("d", schema.Text); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if got := left.Names(); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("left got=%v", got)
	}
	if got := right.Names(); !reflect.DeepEqual(got, []string{"a", "b", "d"}) {
		t.Fatalf("right got=%v", got)
	}
}

func TestCompare(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		left  []string
		right []string
		want  Match
	}{
		{"exact", []string{"a", "b"}, []string{"a", "b"}, MatchExact},
		{"case-insensitive exact", []string{"A", "b"}, []string{"a", "B"}, MatchExact},
		{"reordered", []string{"a", "b"}, []string{"b", "a"}, MatchReordered},
		{"subset", []string{"a"}, []string{"a", "b"}, MatchNone},
		{"disjoint", []string{"a", "b"}, []string{"c", "d"}, MatchNone},
		{"both empty", nil, nil, MatchExact},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := mustList(t, tt.left...).Compare(mustList(t, tt.right...))
			if got != tt.want {
				t.Fatalf("Compare got=%d want=%d", got, tt.want)
			}
		})
	}
}

func TestSubsetSuperset_Strict(t *testing.T) {
	t.Parallel()

	small := mustList(t, "a")
	big := mustList(t, "A", "b")

	if !small.IsSubsetOf(big) || !big.IsSupersetOf(small) {
		t.Fatalf("expected strict subset/superset")
	}
	if big.IsSubsetOf(big) || big.IsSupersetOf(big) {
		t.Fatalf("equal sets are not strict subsets")
	}
	if mustList(t, "a", "z").IsSubsetOf(mustList(t, "a", "b", "c")) {
		t.Fatalf("mixed list reported as subset")
	}
}

func TestUnion_LeftBiasedAndUnionRight(t *testing.T) {
	t.Parallel()

	left, _ := New(Column{"a", schema.Integer}, Column{"b", schema.Text})
	right, _ := New(Column{"c", schema.Float}, Column{"A", schema.Float})

	u := left.Union(right)
	if got := u.Names(); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("Union names got=%v", got)
	}
	if got := u.Types(); !reflect.DeepEqual(got, []schema.TypeTag{schema.Integer, schema.Text, schema.Float}) {
		t.Fatalf("Union types got=%v", got)
	}

	ur := left.UnionRight(right)
	if got := ur.Names(); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("UnionRight names got=%v", got)
	}
	if got := ur.At(0).Type; got != schema.Float {
		t.Fatalf("UnionRight shared type got=%s want=FLOAT", got)
	}
}

func TestDifferenceAndTypeDiff(t *testing.T) {
	t.Parallel()

	left, _ := New(Column{"a", schema.Integer}, Column{"b", schema.Text}, Column{"c", schema.Float})
	right, _ := New(Column{"a", schema.Float}, Column{"c", schema.Float})

	if got := left.Difference(right).Names(); !reflect.DeepEqual(got, []string{"b"}) {
		t.Fatalf("Difference got=%v", got)
	}

	diff := left.TypeDiff(right)
	want := []TypeConflict{{Name: "a", Type: schema.Integer, OtherType: schema.Float}}
	if !reflect.DeepEqual(diff, want) {
		t.Fatalf("TypeDiff got=%+v want=%+v", diff, want)
	}
}

func TestPrimaryKey(t *testing.T) {
	t.Parallel()

	l := mustList(t, "id", "region", "value")
	if err := l.SetPrimaryKeyNames("ID", "region"); err != nil {
		t.Fatalf("SetPrimaryKeyNames: %v", err)
	}
	if got := l.PrimaryKeyNames(); !reflect.DeepEqual(got, []string{"id", "region"}) {
		t.Fatalf("pk got=%v", got)
	}
	if err := l.SetPrimaryKey(3); err == nil {
		t.Fatalf("expected out of range error")
	}
	if err := l.SetPrimaryKey(0, 0); err == nil {
		t.Fatalf("expected repeated index error")
	}

	if err := l.Delete(2); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if got := l.PrimaryKey(); !reflect.DeepEqual(got, []int{0, 1}) {
		t.Fatalf("pk after deleting non-key got=%v", got)
	}
	if err := l.Delete(0); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if l.HasPrimaryKey() {
		t.Fatalf("deleting a key column should clear the primary key")
	}
}

func TestRename(t *testing.T) {
	t.Parallel()

	l := mustList(t, "a", "b")
	if err := l.Rename(0, "B"); err == nil {
		t.Fatalf("expected duplicate error")
	}
	if err := l.Rename(0, "A"); err != nil {
		t.Fatalf("renaming to own name in other case: %v", err)
	}
	if got := l.Names(); !reflect.DeepEqual(got, []string{"A", "b"}) {
		t.Fatalf("got=%v", got)
	}
}
