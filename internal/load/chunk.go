package load

import (
	"context"
	"fmt"
	"time"

	"hermannm.dev/wrap"

	"tabload/internal/metrics"
	"tabload/internal/reconcile"
	"tabload/internal/schema"
	"tabload/internal/storage"
	"tabload/internal/table"
)

// rowSavepoint guards single-row writes after a chunk failed twice.
const rowSavepoint = "tabload_row"

func chunkSavepoint(n int) string { return fmt.Sprintf("tabload_chunk_%d", n) }

// writeChunk writes one shaped chunk under a savepoint.
//
// On a data error the chunk is rolled back to its savepoint and split: rows
// holding a value that does not conform to the final column types go to the
// reject table and the rest is retried in one write. If that write fails as
// well, the remaining rows are written one by one and each refused row is
// rejected (REJECT_SPLIT). The surrounding transaction stays usable.
func (r *run) writeChunk(ctx context.Context, t *table.Table) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.Len() == 0 {
		return nil
	}

	r.report.Chunks++
	n := r.report.Chunks
	sp := chunkSavepoint(n)
	start := time.Now()

	if err := r.tx.Savepoint(ctx, sp); err != nil {
		return err
	}

	err := r.tryWrite(ctx, t.Rows)
	if err == nil {
		if err := r.tx.ReleaseSavepoint(ctx, sp); err != nil {
			return err
		}
		metrics.RecordChunk("ok", time.Since(start))
		return nil
	}
	if !storage.IsDataError(err) {
		return wrap.Errorf(err, "failed to write chunk %d", n)
	}

	r.logf("stage=reject_split chunk=%d rows=%d err=%v", n, t.Len(), err)
	if err := r.tx.RollbackToSavepoint(ctx, sp); err != nil {
		return err
	}

	good, bad := r.split(t)
	r.reject(bad)

	err = r.tryWrite(ctx, good)
	switch {
	case err == nil:
	case storage.IsDataError(err):
		if err := r.tx.RollbackToSavepoint(ctx, sp); err != nil {
			return err
		}
		if err := r.writeRows(ctx, good); err != nil {
			return err
		}
	default:
		return wrap.Errorf(err, "failed to write chunk %d after split", n)
	}

	if err := r.tx.ReleaseSavepoint(ctx, sp); err != nil {
		return err
	}
	r.logf("stage=reject_split chunk=%d rejected=%d duration=%s", n, r.rejectCount(), durMS(start))
	metrics.RecordChunk("split", time.Since(start))
	return nil
}

// tryWrite converts rows to the final column types and writes them. Counts
// are only taken once the write succeeded.
func (r *run) tryWrite(ctx context.Context, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}

	converted := make([][]any, len(rows))
	overflows := 0
	for i, row := range rows {
		out, n, err := r.dialect.ConvertRow(r.types, row)
		if err != nil {
			return &storage.DataError{Table: r.opt.Table, Err: err}
		}
		converted[i] = out
		overflows += n
	}

	var (
		written int64
		err     error
	)
	if r.mode == reconcile.Upsert {
		written, err = r.tx.Upsert(ctx, r.opt.Table, r.plan.Final, converted, r.opt.Policy)
	} else {
		written, err = r.tx.BulkLoad(ctx, r.opt.Table, r.plan.Final.Names(), converted)
	}
	if err != nil {
		return err
	}

	r.report.Loaded += written
	r.report.Overflowed += overflows
	return nil
}

// writeRows is the last resort of REJECT_SPLIT: one savepoint per row.
func (r *run) writeRows(ctx context.Context, rows [][]any) error {
	for _, row := range rows {
		if err := r.tx.Savepoint(ctx, rowSavepoint); err != nil {
			return err
		}
		err := r.tryWrite(ctx, [][]any{row})
		switch {
		case err == nil:
		case storage.IsDataError(err):
			if err := r.tx.RollbackToSavepoint(ctx, rowSavepoint); err != nil {
				return err
			}
			r.reject([][]any{row})
		default:
			return err
		}
		if err := r.tx.ReleaseSavepoint(ctx, rowSavepoint); err != nil {
			return err
		}
	}
	return nil
}

// split partitions a chunk into rows that conform to the final column types
// and convert cleanly, and the rest. Source order is kept on both sides.
func (r *run) split(t *table.Table) (good, bad [][]any) {
	nonconforming := t.FindNonconforming(r.types)
	next := 0
	for i, row := range t.Rows {
		if next < len(nonconforming) && nonconforming[next] == i {
			next++
			bad = append(bad, row)
			continue
		}
		if _, _, err := r.dialect.ConvertRow(r.types, row); err != nil {
			bad = append(bad, row)
			continue
		}
		good = append(good, row)
	}
	return good, bad
}

// reject keeps rows for the reject table. Values are stored as text, so a
// rejected row cannot be rejected again.
func (r *run) reject(rows [][]any) {
	if len(rows) == 0 {
		return
	}
	if r.rejects == nil {
		r.rejects = newRejectTable(r.opt.Table, r.dialect, r.plan.Final.Names())
	}
	for _, row := range rows {
		out := make([]any, len(row))
		for i, v := range row {
			out[i] = schema.Stringify(v)
		}
		r.rejects.Rows = append(r.rejects.Rows, out)
	}
}

func (r *run) rejectCount() int {
	if r.rejects == nil {
		return 0
	}
	return r.rejects.Len()
}
