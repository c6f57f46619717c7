// Package config holds everything a load is configured by: the JSON job
// file, the process environment and the HCL load profile.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"

	"hermannm.dev/wrap"

	"tabload/internal/reconcile"
	"tabload/internal/transformer"
)

// Job is one load: a single source file into a single destination table.
type Job struct {
	Name        string      `json:"job"`
	Source      Source      `json:"source"`
	Destination Destination `json:"destination"`
	Load        LoadOptions `json:"load"`
}

type Source struct {
	Path string `json:"path"`
	// Format: csv | tsv | json | html. Empty means detect from the extension.
	Format string `json:"format"`
	// Compression: auto | none | gzip | zip. Empty means auto.
	Compression string `json:"compression"`
	// ZipEntry selects a member of a zip archive; empty means the first file.
	ZipEntry string `json:"zip_entry"`
	// Encoding: utf-8 | latin1 | windows-1252 | utf-16. Empty means utf-8.
	Encoding string  `json:"encoding"`
	Options  Options `json:"options"`
}

type Destination struct {
	Kind  string `json:"kind"`
	DSN   string `json:"dsn"`
	Table string `json:"table"`
}

type LoadOptions struct {
	reconcile.Flags

	// Append forces the bulk-copy path even when the destination has a key.
	Append bool `json:"append"`
	// OnConflict is parsed with reconcile.ParseConflictPolicy.
	OnConflict string `json:"on_conflict"`
	// PrimaryKey is applied to a newly created table.
	PrimaryKey []string `json:"primary_key"`
	// SampleSize and ChunkSize override the load profile when > 0.
	SampleSize int `json:"sample_size"`
	ChunkSize  int `json:"chunk_size"`
	// KeepNames disables header sanitation.
	KeepNames bool `json:"keep_names"`
	// RowHash adds a deterministic hash column computed from other columns.
	RowHash *transformer.HashSpec `json:"row_hash"`
}

// ReadJob decodes a job file.
func ReadJob(path string) (Job, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Job{}, wrap.Errorf(err, "failed to read job file %q", path)
	}
	var j Job
	if err := json.Unmarshal(b, &j); err != nil {
		return Job{}, wrap.Errorf(err, "failed to decode job file %q", path)
	}
	return j, nil
}

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one validation finding, addressed by a JSON-ish path.
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

var (
	formats      = []string{"", "csv", "tsv", "json", "html"}
	compressions = []string{"", "auto", "none", "gzip", "zip"}
	encodings    = []string{"", "utf-8", "utf8", "latin1", "iso-8859-1", "windows-1252", "cp1252", "utf-16", "utf-16le", "utf-16be"}
)

// ValidateJob checks a job without touching the filesystem or the database.
// kinds is the set of registered destination kinds.
func ValidateJob(j Job, kinds []string) []Issue {
	var issues []Issue
	add := func(sev Severity, path, format string, args ...any) {
		issues = append(issues, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(j.Name) == "" {
		add(SeverityWarning, "job", "job name is empty; metrics will use the default job tag")
	}

	if strings.TrimSpace(j.Source.Path) == "" {
		add(SeverityError, "source.path", "is required")
	}
	if !slices.Contains(formats, strings.ToLower(j.Source.Format)) {
		add(SeverityError, "source.format", "unsupported format %q", j.Source.Format)
	}
	if !slices.Contains(compressions, strings.ToLower(j.Source.Compression)) {
		add(SeverityError, "source.compression", "unsupported compression %q", j.Source.Compression)
	}
	if !slices.Contains(encodings, strings.ToLower(j.Source.Encoding)) {
		add(SeverityError, "source.encoding", "unsupported encoding %q", j.Source.Encoding)
	}
	if j.Source.ZipEntry != "" && strings.EqualFold(j.Source.Compression, "gzip") {
		add(SeverityWarning, "source.zip_entry", "ignored for gzip input")
	}

	if !slices.Contains(kinds, j.Destination.Kind) {
		add(SeverityError, "destination.kind", "unknown kind %q (registered: %s)", j.Destination.Kind, strings.Join(kinds, ", "))
	}
	if strings.TrimSpace(j.Destination.Table) == "" {
		add(SeverityError, "destination.table", "is required")
	}

	if _, err := reconcile.ParseConflictPolicy(j.Load.OnConflict); err != nil {
		add(SeverityError, "load.on_conflict", "%v", err)
	}
	if j.Load.Append && j.Load.OnConflict != "" {
		add(SeverityWarning, "load.on_conflict", "ignored when load.append is set")
	}
	if j.Load.SampleSize < 0 {
		add(SeverityError, "load.sample_size", "must be >= 0")
	}
	if j.Load.ChunkSize < 0 {
		add(SeverityError, "load.chunk_size", "must be >= 0")
	}
	seen := map[string]bool{}
	for i, k := range j.Load.PrimaryKey {
		lk := strings.ToLower(strings.TrimSpace(k))
		if lk == "" {
			add(SeverityError, fmt.Sprintf("load.primary_key[%d]", i), "is empty")
			continue
		}
		if seen[lk] {
			add(SeverityError, fmt.Sprintf("load.primary_key[%d]", i), "duplicate column %q", k)
		}
		seen[lk] = true
	}

	if h := j.Load.RowHash; h != nil {
		if strings.TrimSpace(h.TargetField) == "" {
			add(SeverityError, "load.row_hash.target_field", "is required")
		}
		if len(h.Fields) == 0 {
			add(SeverityError, "load.row_hash.fields", "at least one field is required")
		}
	}

	return issues
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}
