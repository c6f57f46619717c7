package load

import (
	"context"

	"hermannm.dev/wrap"

	"tabload/internal/columns"
	"tabload/internal/config"
	"tabload/internal/reconcile"
	"tabload/internal/schema"
	"tabload/internal/source"
	"tabload/internal/table"
)

// Probe is the schema a load would create, without touching a database.
type Probe struct {
	Columns columns.List
	Sampled int
	DDL     string
}

// ProbeSource samples src like a load into a new table would and renders its
// CREATE TABLE with b.
func ProbeSource(ctx context.Context, src source.Reader, d schema.Dialect, b reconcile.Builder, name string, sampleSize int, keepNames bool) (*Probe, error) {
	if sampleSize <= 0 {
		sampleSize = config.DefaultSampleSize
	}
	names := source.ColumnNames(src.Header(), columns.KeywordsFor(d), keepNames)

	t, err := table.FromNames(name, d, names)
	if err != nil {
		return nil, err
	}

	stream := startStream(ctx, src, len(names), nil, nil)
	defer stream.stop()

	rows, _, err := stream.next(ctx, sampleSize)
	if err != nil {
		return nil, wrap.Error(err, "failed to read sample")
	}
	for _, row := range rows {
		if err := t.Append(row); err != nil {
			return nil, err
		}
	}
	t.DropEmpty()

	if err := t.GuessTypes(0); err != nil {
		return nil, err
	}
	plan := reconcile.PlanCreate(name, t.Columns)
	return &Probe{
		Columns: plan.Final,
		Sampled: t.Len(),
		DDL:     b.CreateTable(name, plan.Final, false),
	}, nil
}
