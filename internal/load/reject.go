package load

import (
	"context"
	"time"

	"hermannm.dev/wrap"

	"tabload/internal/columns"
	"tabload/internal/metrics"
	"tabload/internal/schema"
	"tabload/internal/storage"
	"tabload/internal/table"
)

// newRejectTable returns the empty reject table of name: the destination's
// column names, every column Text.
func newRejectTable(name string, d schema.Dialect, names []string) *table.Table {
	var cols columns.List
	for _, n := range names {
		// names come from a valid column list, so Add cannot fail.
		_ = cols.Add(n, schema.Text)
	}
	return table.New(storage.RejectTableName(name), d, cols)
}

// loadRejects writes the collected rejects in a transaction of its own, after
// the main commit. An existing reject table is reused and gains any column
// it lacks.
func (r *run) loadRejects(ctx context.Context) (err error) {
	if r.rejectCount() == 0 {
		return nil
	}
	rej := r.rejects
	r.report.Rejected = rej.Len()
	r.report.RejectTable = rej.Name
	metrics.RecordRows("rejected", rej.Len())

	start := time.Now()
	defer func() { metrics.RecordStage("reject_load", start, err) }()

	stmts, err := rejectDDL(ctx, r.dest, rej.Name, rej.Columns)
	if err != nil {
		return err
	}

	tx, err := r.dest.Begin(ctx)
	if err != nil {
		return wrap.Errorf(err, "failed to load reject table %q", rej.Name)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	for _, stmt := range stmts {
		if err := tx.ExecDDL(ctx, stmt); err != nil {
			return wrap.Errorf(err, "failed to prepare reject table %q", rej.Name)
		}
	}
	if _, err := tx.BulkLoad(ctx, rej.Name, rej.Columns.Names(), rej.Rows); err != nil {
		return wrap.Errorf(err, "failed to load reject table %q", rej.Name)
	}
	if err := tx.Commit(ctx); err != nil {
		return wrap.Errorf(err, "failed to commit reject table %q", rej.Name)
	}

	r.logf("stage=reject_load table=%s rows=%d duration=%s", rej.Name, rej.Len(), durMS(start))
	return nil
}

// rejectDDL renders CREATE TABLE IF NOT EXISTS for a new reject table, or
// ADD COLUMN statements for the columns an existing one lacks.
func rejectDDL(ctx context.Context, dest storage.Destination, name string, cols columns.List) ([]string, error) {
	ddl := dest.DDL()

	exists, err := dest.TableExists(ctx, name)
	if err != nil {
		return nil, err
	}
	if !exists {
		return []string{ddl.CreateTable(name, cols, true)}, nil
	}

	current, err := dest.Schema(ctx, name)
	if err != nil {
		return nil, err
	}
	var stmts []string
	for _, c := range cols.Difference(current).Columns() {
		stmts = append(stmts, ddl.AddColumn(name, c))
	}
	return stmts, nil
}
