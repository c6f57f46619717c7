package postgres

import (
	"reflect"
	"testing"

	"tabload/internal/reconcile"
)

func TestBuildUpsertSQL(t *testing.T) {
	t.Parallel()

	cols := capitals(t)
	if err := cols.SetPrimaryKeyNames("capital"); err != nil {
		t.Fatalf("SetPrimaryKeyNames: %v", err)
	}
	rows := [][]any{
		{"Oslo", "Norway", int64(700000), nil},
		{"Bern", "Switzerland", int64(140000), nil},
	}
	insert := `INSERT INTO "capitals" ("capital", "country", "population", "founded") VALUES ($1, $2, $3, $4), ($5, $6, $7, $8)`

	tests := []struct {
		name   string
		policy reconcile.ConflictPolicy
		want   string
	}{
		{"do nothing", reconcile.DoNothingPolicy(), insert + " ON CONFLICT DO NOTHING"},
		{
			"replace",
			reconcile.ReplacePolicy(),
			insert + ` ON CONFLICT ("capital") DO UPDATE SET "capital" = EXCLUDED."capital", "country" = EXCLUDED."country", "population" = EXCLUDED."population", "founded" = EXCLUDED."founded"`,
		},
		{
			"update list",
			reconcile.UpdateColumnsPolicy("POPULATION"),
			insert + ` ON CONFLICT ("capital") DO UPDATE SET "population" = EXCLUDED."population"`,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			sql, args := buildUpsertSQL("capitals", cols, rows, tt.policy)
			if sql != tt.want {
				t.Fatalf("sql got:\n%s\nwant:\n%s", sql, tt.want)
			}
			want := []any{"Oslo", "Norway", int64(700000), nil, "Bern", "Switzerland", int64(140000), nil}
			if !reflect.DeepEqual(args, want) {
				t.Fatalf("args got=%v want=%v", args, want)
			}
		})
	}
}

func TestBuildUpsertSQL_NoPrimaryKeyFallsBackToDoNothing(t *testing.T) {
	t.Parallel()

	sql, _ := buildUpsertSQL("capitals", capitals(t), [][]any{{"a", "b", int64(1), nil}}, reconcile.ReplacePolicy())
	want := `INSERT INTO "capitals" ("capital", "country", "population", "founded") VALUES ($1, $2, $3, $4) ON CONFLICT DO NOTHING`
	if sql != want {
		t.Fatalf("got=%q want=%q", sql, want)
	}
}
