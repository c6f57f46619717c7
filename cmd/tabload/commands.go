package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"hermannm.dev/devlog/log"
	"hermannm.dev/wrap"

	"tabload/internal/columns"
	"tabload/internal/config"
	"tabload/internal/extracthtml"
	"tabload/internal/load"
	"tabload/internal/metrics"
	"tabload/internal/metrics/datadog"
	"tabload/internal/reconcile"
	"tabload/internal/schema"
	"tabload/internal/source"
	"tabload/internal/storage"
	"tabload/internal/storage/postgres"
	"tabload/internal/storage/sqlite"
)

func runLoad(ctx context.Context, env config.Env, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("load", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		jobPath        = fs.String("job", "", "job file (JSON)")
		profilePath    = fs.String("profile", "", "load profile (HCL); overrides TABLOAD_PROFILE")
		validate       = fs.Bool("validate", false, "validate the job and exit")
		metricsBackend = fs.String("metrics-backend", "", "metrics backend (datadog, none); overrides METRICS_BACKEND")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *jobPath == "" {
		return usageError{"load: -job is required"}
	}

	j, err := config.ReadJob(*jobPath)
	if err != nil {
		return err
	}
	if env.DSN != "" {
		j.Destination.DSN = env.DSN
	}

	issues := config.ValidateJob(j, storage.Kinds())
	for _, iss := range issues {
		fmt.Fprintf(stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		return fmt.Errorf("job %q is invalid", *jobPath)
	}
	if *validate {
		log.Infof("job is valid: %s", *jobPath)
		return nil
	}

	if *profilePath == "" {
		*profilePath = env.Profile
	}
	profile, err := config.LoadProfile(*profilePath)
	if err != nil {
		return err
	}
	opt, err := load.OptionsFromJob(j, profile)
	if err != nil {
		return err
	}

	backend := *metricsBackend
	if backend == "" {
		backend = env.MetricsBackend
	}
	jobName := j.Name
	if env.MetricsJob != "" {
		jobName = env.MetricsJob
	}
	closeMetrics := setupMetrics(ctx, backend, jobName, env.MetricsTags)
	defer closeMetrics()

	src, err := source.Open(ctx, j.Source, profile.NullValues)
	if err != nil {
		return err
	}
	defer src.Close()

	dest, err := storage.Open(ctx, storage.Config{Kind: j.Destination.Kind, DSN: j.Destination.DSN})
	if err != nil {
		return wrap.Errorf(err, "failed to open %s destination", j.Destination.Kind)
	}
	defer dest.Close()

	log.Debugf("load: source=%s format=%s destination=%s table=%s",
		j.Source.Path, j.Source.Format, j.Destination.Kind, opt.Table)

	d := &load.Dispatcher{
		Dest:   dest,
		Logger: slog.NewLogLogger(slog.Default().Handler(), slog.LevelInfo),
	}
	rep, err := d.Run(ctx, src, opt)
	if rep != nil {
		if encErr := writeJSON(stdout, rep); encErr != nil && err == nil {
			err = encErr
		}
		log.Infof("loaded %d rows into %s (%d rejected, %d skipped) in %s",
			rep.Loaded, rep.Table, rep.Rejected, rep.Skipped, rep.Duration.Truncate(time.Millisecond))
	}
	return err
}

// setupMetrics installs the named backend and returns its shutdown func.
// A backend that fails to start leaves metrics disabled.
func setupMetrics(ctx context.Context, backend, jobName, tags string) func() {
	switch backend {
	case "datadog":
		extraTags := datadog.ParseTagsCSV(tags)
		b, err := datadog.NewBackend(ctx, datadog.Options{
			JobName:    jobName,
			Tags:       extraTags,
			FlushEvery: 60 * time.Second,
		})
		if err != nil {
			log.ErrorCause(err, "metrics: failed to init datadog backend; metrics disabled")
			return func() {}
		}
		log.Infof("metrics: backend=%s job_name=%s tags=%v", backend, jobName, extraTags)
		metrics.SetBackend(b)
		return func() {
			// Close stops the flush loop and submits what is buffered.
			if err := b.Close(); err != nil {
				log.ErrorCause(err, "metrics: datadog close/flush error")
			}
			metrics.SetBackend(nil)
		}

	case "", "none":
		log.Debugf("metrics: disabled (backend=%q)", backend)
	default:
		log.Infof("metrics: unknown backend %q; metrics disabled", backend)
	}
	return func() {}
}

func runProbe(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("probe", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		file        = fs.String("file", "", "input file or http(s) URL")
		format      = fs.String("format", "", "csv, tsv, json or html; detected from the name when empty")
		compression = fs.String("compression", "", "auto, none, gzip or zip")
		zipEntry    = fs.String("zip-entry", "", "member of a zip archive")
		encoding    = fs.String("encoding", "", "input encoding (utf-8, latin1, windows-1252, utf-16)")
		dialectName = fs.String("dialect", "sqlite", "sqlite or postgres")
		tableName   = fs.String("table", "", "table name; derived from the file name when empty")
		sampleSize  = fs.Int("sample", config.DefaultSampleSize, "rows to sample")
		htmlTable   = fs.Int("html-table", 0, "index of the HTML table to probe")
		keepNames   = fs.Bool("keep-names", false, "do not sanitize column names")
		listTables  = fs.Bool("tables", false, "list the tables of an HTML input and exit")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return usageError{"probe: -file is required"}
	}

	d, err := schema.ParseDialect(*dialectName)
	if err != nil {
		return usageError{err.Error()}
	}
	src := config.Source{
		Path:        *file,
		Format:      *format,
		Compression: *compression,
		ZipEntry:    *zipEntry,
		Encoding:    *encoding,
		Options:     config.Options{"table_index": *htmlTable},
	}

	if *listTables {
		tables, err := source.ListHTMLTables(ctx, src)
		if err != nil {
			return err
		}
		extracthtml.DescribeTables(stdout, tables)
		return nil
	}

	name := *tableName
	if name == "" {
		name = tableFromPath(*file, columns.KeywordsFor(d))
	}

	r, err := source.Open(ctx, src, nil)
	if err != nil {
		return err
	}
	defer r.Close()

	p, err := load.ProbeSource(ctx, r, d, ddlFor(d), name, *sampleSize, *keepNames)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "table %s (%s, %d rows sampled)\n", name, d, p.Sampled)
	width := 0
	for _, n := range p.Columns.Names() {
		width = max(width, len(n))
	}
	for _, c := range p.Columns.Columns() {
		fmt.Fprintf(stdout, "  %-*s  %s\n", width, c.Name, c.Type)
	}
	fmt.Fprintf(stdout, "\n%s;\n", p.DDL)
	return nil
}

func ddlFor(d schema.Dialect) reconcile.Builder {
	if d == schema.Postgres {
		return postgres.DDL{}
	}
	return sqlite.DDL{}
}

// tableFromPath derives a table name from the base name of a file, without
// any extensions.
func tableFromPath(path string, kw columns.Keywords) string {
	base := filepath.Base(path)
	if i := strings.IndexAny(base, "?#"); i >= 0 {
		base = base[:i]
	}
	if i := strings.Index(base, "."); i > 0 {
		base = base[:i]
	}
	return columns.Sanitize(base, 0, kw)
}

func runRejectDiff(ctx context.Context, env config.Env, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("reject-diff", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		kind   = fs.String("kind", "", "destination kind ("+strings.Join(storage.Kinds(), ", ")+")")
		dsn    = fs.String("dsn", "", "destination DSN; defaults to TABLOAD_DSN")
		table  = fs.String("table", "", "table whose reject table is compared")
		asJSON = fs.Bool("json", false, "print the diff as JSON")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dsn == "" {
		*dsn = env.DSN
	}
	if *kind == "" || *table == "" {
		return usageError{"reject-diff: -kind and -table are required"}
	}

	dest, err := storage.Open(ctx, storage.Config{Kind: *kind, DSN: *dsn})
	if err != nil {
		return wrap.Errorf(err, "failed to open %s destination", *kind)
	}
	defer dest.Close()

	diff, err := load.DiffRejects(ctx, dest, *table)
	if err != nil {
		return err
	}
	if *asJSON {
		return writeJSON(stdout, diff)
	}

	fmt.Fprintf(stdout, "table %s, rejects in %s\n", diff.Table, diff.RejectTable)
	for _, tc := range diff.Mismatched {
		fmt.Fprintf(stdout, "type mismatch: %s (reject %s, table %s)\n", tc.Name, tc.Type, tc.OtherType)
	}
	for _, n := range diff.Missing {
		fmt.Fprintf(stdout, "missing in table: %s\n", n)
	}
	fmt.Fprintln(stdout, "\nsuggested statements:")
	for _, s := range diff.Statements {
		fmt.Fprintf(stdout, "%s;\n", s)
	}
	return nil
}

func runProfile(args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 || args[0] != "export" {
		return usageError{"usage: tabload profile export [-out file.hcl]"}
	}
	fs := flag.NewFlagSet("profile export", flag.ContinueOnError)
	fs.SetOutput(stderr)
	out := fs.String("out", "", "output file; stdout when empty")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	p := config.DefaultProfile()
	if *out == "" {
		_, err := stdout.Write(p.Encode())
		return err
	}
	if err := config.ExportProfile(*out, p); err != nil {
		return err
	}
	log.Infof("wrote load profile to %s", *out)
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return wrap.Error(err, "failed to encode output")
	}
	return nil
}
