// Package load runs one load of a source into a destination table.
//
// A load walks through fixed stages:
//
//	SAMPLING -> SCHEMA_CHECK -> CREATING | RECONCILING -> BULK_COPY | UPSERT
//	  -> (data error in a chunk) REJECT_SPLIT -> COMMIT -> reject load
//
// The first SampleSize rows decide the input schema. Schema errors surface
// before anything is written. Every chunk is written under its own savepoint
// inside a single transaction; rows the destination refuses are moved to the
// <table>_reject table, which is written after the main commit.
package load

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"hermannm.dev/wrap"

	"tabload/internal/columns"
	"tabload/internal/config"
	"tabload/internal/metrics"
	"tabload/internal/reconcile"
	"tabload/internal/schema"
	"tabload/internal/source"
	"tabload/internal/storage"
	"tabload/internal/table"
	"tabload/internal/transformer"
)

// Logger is the minimal logging interface used by the dispatcher.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

// Options configure one load.
type Options struct {
	Table string
	Flags reconcile.Flags

	// Append writes with the bulk path even when the table has a key.
	Append bool
	// Policy resolves key conflicts in upsert mode. The zero value means
	// do nothing.
	Policy reconcile.ConflictPolicy
	// PrimaryKey is declared on a table the load creates. Names are matched
	// against the sanitized column names, then sanitized themselves.
	PrimaryKey []string

	SampleSize int
	ChunkSize  int
	KeepNames  bool

	// RowHash fills (or adds) a column with a hash of other columns.
	RowHash *transformer.HashSpec
}

// OptionsFromJob builds Options from a job file and the load profile. A nil
// profile means the defaults.
func OptionsFromJob(j config.Job, p *config.Profile) (Options, error) {
	if p == nil {
		p = config.DefaultProfile()
	}
	policy, err := reconcile.ParseConflictPolicy(j.Load.OnConflict)
	if err != nil {
		return Options{}, err
	}
	sampleSize, chunkSize := p.Apply(j.Load)
	return Options{
		Table:      j.Destination.Table,
		Flags:      j.Load.Flags,
		Append:     j.Load.Append,
		Policy:     policy,
		PrimaryKey: j.Load.PrimaryKey,
		SampleSize: sampleSize,
		ChunkSize:  chunkSize,
		KeepNames:  j.Load.KeepNames,
		RowHash:    j.Load.RowHash,
	}, nil
}

func (o Options) withDefaults() Options {
	if o.SampleSize <= 0 {
		o.SampleSize = config.DefaultSampleSize
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = config.DefaultChunkSize
	}
	if o.Policy.Kind == 0 {
		o.Policy = reconcile.DoNothingPolicy()
	}
	return o
}

// Report is the outcome of a load. A load with rejected rows is still a
// successful load.
type Report struct {
	Table       string              `json:"table"`
	RejectTable string              `json:"reject_table,omitempty"`
	Action      reconcile.Action    `json:"action"`
	Mode        reconcile.WriteMode `json:"mode"`
	Columns     []string            `json:"columns"`

	Loaded     int64 `json:"loaded"`
	Rejected   int   `json:"rejected"`
	Overflowed int   `json:"overflowed"`
	// Skipped counts unreadable source records and empty rows.
	Skipped int64 `json:"skipped"`
	Chunks  int   `json:"chunks"`

	Duration time.Duration `json:"-"`
}

// Dispatcher loads sources into one destination.
type Dispatcher struct {
	Dest   storage.Destination
	Logger Logger
}

func (d *Dispatcher) logger() func(format string, v ...any) {
	if d.Logger == nil {
		l := log.New(discardWriter{}, "", 0)
		return l.Printf
	}
	return d.Logger.Printf
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func durMS(start time.Time) time.Duration { return time.Since(start).Truncate(time.Millisecond) }

// run is the state of one load.
type run struct {
	dest    storage.Destination
	dialect schema.Dialect
	opt     Options
	logf    func(format string, v ...any)

	input   columns.List // sanitized source columns with sampled types
	plan    *reconcile.Plan
	types   []schema.TypeTag
	mode    reconcile.WriteMode
	tx      storage.Tx
	rejects *table.Table

	skipped atomic.Int64
	report  Report
}

// Run loads src into opt.Table. src is read to the end but not closed.
//
// Schema errors (*reconcile.SchemaConflictError and friends) are returned
// before the destination is modified. Any other failure rolls the load back.
// The returned report is non-nil whenever the main transaction committed,
// even if writing the reject table then failed.
func (d *Dispatcher) Run(ctx context.Context, src source.Reader, opt Options) (*Report, error) {
	if d.Dest == nil {
		return nil, errors.New("load: Dest is required")
	}
	if strings.TrimSpace(opt.Table) == "" {
		return nil, errors.New("load: destination table is required")
	}

	start := time.Now()
	r := &run{
		dest:    d.Dest,
		dialect: d.Dest.Dialect(),
		opt:     opt.withDefaults(),
		logf:    d.logger(),
	}
	r.report.Table = opt.Table

	names, hasher, err := r.columnNames(src.Header())
	if err != nil {
		return nil, err
	}

	stream := startStream(ctx, src, len(names), hasher, r.onRowError)
	defer stream.stop()

	sample, done, err := r.sample(ctx, stream, names)
	if err != nil {
		return nil, err
	}
	if err := r.checkSchema(ctx, sample); err != nil {
		return nil, err
	}

	tx, err := r.dest.Begin(ctx)
	if err != nil {
		return nil, err
	}
	r.tx = tx
	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
			r.logf("stage=rollback status=error err=%v", rbErr)
		}
	}()

	shaped, err := r.applyPlan(ctx, sample)
	if err != nil {
		return nil, err
	}

	if err := r.writeAll(ctx, stream, shaped, done); err != nil {
		return nil, err
	}

	commitStart := time.Now()
	err = tx.Commit(ctx)
	metrics.RecordStage("commit", commitStart, err)
	if err != nil {
		return nil, err
	}
	committed = true
	r.logf("stage=commit table=%s duration=%s", opt.Table, durMS(commitStart))

	r.report.Skipped += r.skipped.Load()
	r.report.Duration = time.Since(start)
	metrics.RecordRows("loaded", int(r.report.Loaded))
	metrics.RecordRows("overflowed", r.report.Overflowed)

	if err := r.loadRejects(ctx); err != nil {
		return &r.report, err
	}
	r.report.Duration = time.Since(start)
	return &r.report, nil
}

// columnNames turns the source header into destination column names and
// compiles the row hash against them. The hash target is appended when the
// source does not already have it.
func (r *run) columnNames(header []string) ([]string, *transformer.Hasher, error) {
	names := source.ColumnNames(header, columns.KeywordsFor(r.dialect), r.opt.KeepNames)
	if len(names) == 0 {
		return nil, nil, errors.New("load: source has no columns")
	}
	if r.opt.RowHash == nil {
		return names, nil, nil
	}

	spec := *r.opt.RowHash
	if indexFold(names, spec.TargetField) < 0 && strings.TrimSpace(spec.TargetField) != "" {
		names = append(names, spec.TargetField)
	}
	h, err := spec.Compile(names)
	if err != nil {
		return nil, nil, err
	}
	return names, h, nil
}

func (r *run) onRowError(e *source.RowError) {
	r.skipped.Add(1)
	r.logf("stage=read status=skipped record=%d err=%v", e.Line, e.Err)
}

// sample reads the first SampleSize rows (SAMPLING).
func (r *run) sample(ctx context.Context, stream *rowStream, names []string) (_ *table.Table, done bool, err error) {
	start := time.Now()
	defer func() { metrics.RecordStage("sampling", start, err) }()

	t, err := table.FromNames(r.opt.Table, r.dialect, names)
	if err != nil {
		return nil, false, err
	}
	rows, done, err := stream.next(ctx, r.opt.SampleSize)
	if err != nil {
		return nil, false, wrap.Error(err, "failed to read sample")
	}
	for _, row := range rows {
		if err := t.Append(row); err != nil {
			return nil, false, err
		}
	}
	r.report.Skipped += int64(t.DropEmpty())

	r.logf("stage=sampling rows=%d columns=%d complete=%t duration=%s", t.Len(), t.Width(), done, durMS(start))
	return t, done, nil
}

// checkSchema infers the input schema from the sample and plans how the
// destination takes it (SCHEMA_CHECK). It does not modify the destination.
func (r *run) checkSchema(ctx context.Context, sample *table.Table) (err error) {
	start := time.Now()
	defer func() { metrics.RecordStage("schema_check", start, err) }()

	folded, err := schema.FoldColumnTypes(r.dialect, sample.Rows, sample.Width(), 0)
	if err != nil {
		return wrap.Errorf(err, "failed to infer column types of %q", r.opt.Table)
	}
	input := sample.Columns.Clone()
	if err := input.SetTypes(folded); err != nil {
		return err
	}

	exists, err := r.dest.TableExists(ctx, r.opt.Table)
	if err != nil {
		return err
	}

	if !exists {
		if len(r.opt.PrimaryKey) > 0 {
			keys, err := keyNames(input, r.opt.PrimaryKey, columns.KeywordsFor(r.dialect))
			if err != nil {
				return err
			}
			if err := input.SetPrimaryKeyNames(keys...); err != nil {
				return err
			}
		}
		r.input = input
		r.plan = reconcile.PlanCreate(r.opt.Table, input)
	} else {
		dest, err := r.dest.Schema(ctx, r.opt.Table)
		if err != nil {
			return err
		}
		refineTypes(r.dialect, &input, dest, sample.Rows)
		r.input = input

		plan, err := reconcile.NewPlan(r.dialect, r.opt.Table, input, dest, r.opt.Flags)
		if err != nil {
			return err
		}
		r.plan = plan
	}

	r.types = r.plan.Final.Types()
	r.mode = reconcile.ChooseWriteMode(!exists, r.plan.Final.HasPrimaryKey(), r.opt.Append)
	if r.mode == reconcile.Upsert {
		if err := r.opt.Policy.Validate(r.plan.Final); err != nil {
			return err
		}
	}

	r.report.Action = r.plan.Action
	r.report.Mode = r.mode
	r.report.Columns = r.plan.Final.Names()

	r.logf("stage=schema_check table=%s exists=%t action=%s mode=%s columns=%s duration=%s",
		r.opt.Table, exists, r.plan.Action, r.mode, r.plan.Final, durMS(start))
	return nil
}

// applyPlan runs the plan's DDL inside the load transaction and shapes the
// sample (CREATING or RECONCILING).
func (r *run) applyPlan(ctx context.Context, sample *table.Table) (_ *table.Table, err error) {
	stage := "reconciling"
	if r.plan.Action == reconcile.ActionCreate {
		stage = "creating"
	}
	start := time.Now()
	defer func() { metrics.RecordStage(stage, start, err) }()

	shaped, err := reconcile.Apply(ctx, r.plan, r.tx, r.dest.DDL(), sample)
	if err != nil {
		return nil, err
	}
	r.logf("stage=%s table=%s statements=%d duration=%s",
		stage, r.opt.Table, len(r.plan.Statements(r.dest.DDL())), durMS(start))
	return shaped, nil
}

// writeAll writes the shaped sample and then the rest of the stream in
// ChunkSize chunks (BULK_COPY or UPSERT).
func (r *run) writeAll(ctx context.Context, stream *rowStream, sample *table.Table, done bool) (err error) {
	stage := "bulk_copy"
	if r.mode == reconcile.Upsert {
		stage = "upsert"
	}
	start := time.Now()
	defer func() { metrics.RecordStage(stage, start, err) }()

	for i := 0; i < sample.Len(); i += r.opt.ChunkSize {
		if err := r.writeChunk(ctx, sample.Slice(i, min(i+r.opt.ChunkSize, sample.Len()))); err != nil {
			return err
		}
	}

	for !done {
		var rows [][]any
		rows, done, err = stream.next(ctx, r.opt.ChunkSize)
		if err != nil {
			return wrap.Error(err, "failed to read source")
		}
		t := &table.Table{Name: r.opt.Table, Dialect: r.dialect, Columns: r.input, Rows: rows}
		r.report.Skipped += int64(t.DropEmpty())

		shaped, err := r.plan.Shape(t)
		if err != nil {
			return err
		}
		if err := r.writeChunk(ctx, shaped); err != nil {
			return err
		}
	}

	r.logf("stage=%s table=%s chunks=%d loaded=%d rejected=%d overflowed=%d duration=%s",
		stage, r.opt.Table, r.report.Chunks, r.report.Loaded, r.rejectCount(), r.report.Overflowed, durMS(start))
	return nil
}

// refineTypes narrows an input column to the destination column's type when
// the sample only looked incompatible because text input never classifies as
// Boolean, DateTime or Nested, and every sampled value converts.
func refineTypes(d schema.Dialect, input *columns.List, dest columns.List, rows [][]any) {
	for i, c := range input.Columns() {
		dc, ok := dest.Lookup(c.Name)
		if !ok || c.Type == schema.Null || d.Compatible(c.Type, dc.Type) {
			continue
		}
		conforms := true
		for _, row := range rows {
			if i < len(row) && !table.Conforms(d, dc.Type, row[i]) {
				conforms = false
				break
			}
		}
		if conforms {
			input.SetType(i, dc.Type)
		}
	}
}

// keyNames resolves configured primary key names against the input columns.
func keyNames(input columns.List, keys []string, kw columns.Keywords) ([]string, error) {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		switch {
		case input.Contains(k):
			out = append(out, k)
		case input.Contains(columns.Sanitize(k, 0, kw)):
			out = append(out, columns.Sanitize(k, 0, kw))
		default:
			return nil, fmt.Errorf("load: primary key column %q not in input %v", k, input.Names())
		}
	}
	return out, nil
}

func indexFold(names []string, name string) int {
	for i, n := range names {
		if strings.EqualFold(n, name) {
			return i
		}
	}
	return -1
}
