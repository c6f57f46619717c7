// Package metrics is the process-wide metrics facade used by the load engine.
//
// The engine records through the package-level helpers; the binary decides
// which Backend receives them (nop by default, Datadog when configured).
package metrics

import (
	"sync"
	"time"
)

// Metric names emitted by the load engine.
const (
	// StageTotal counts finished stages, labels: stage, status.
	StageTotal = "tabload_stage_total"
	// StageDuration observes stage wall time in seconds, labels: stage, status.
	StageDuration = "tabload_stage_duration_seconds"
	// RowsTotal counts rows, label kind: loaded, rejected or overflowed.
	RowsTotal = "tabload_rows_total"
	// ChunksTotal counts written chunks, label status: ok or split.
	ChunksTotal = "tabload_chunks_total"
	// ChunkDuration observes chunk write time in seconds, label status.
	ChunkDuration = "tabload_chunk_duration_seconds"
)

// Labels are metric dimensions.
type Labels map[string]string

// Backend receives metric events. Implementations must be safe for
// concurrent use.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

// Nop returns a backend that discards everything.
func Nop() Backend { return nopBackend{} }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs b as the process backend. A nil b restores the nop
// backend.
func SetBackend(b Backend) {
	if b == nil {
		b = nopBackend{}
	}
	mu.Lock()
	backend = b
	mu.Unlock()
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

func Flush() error {
	return current().Flush()
}

// RecordStage counts one finished stage and observes its duration.
func RecordStage(stage string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	l := Labels{"stage": stage, "status": status}
	b := current()
	b.IncCounter(StageTotal, 1, l)
	b.ObserveHistogram(StageDuration, time.Since(start).Seconds(), l)
}

// RecordRows counts n rows of the given kind. Non-positive n is ignored.
func RecordRows(kind string, n int) {
	if n <= 0 {
		return
	}
	current().IncCounter(RowsTotal, float64(n), Labels{"kind": kind})
}

// RecordChunk counts one chunk and observes its write duration.
func RecordChunk(status string, d time.Duration) {
	l := Labels{"status": status}
	b := current()
	b.IncCounter(ChunksTotal, 1, l)
	b.ObserveHistogram(ChunkDuration, d.Seconds(), l)
}
