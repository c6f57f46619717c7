package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu       sync.Mutex
	counters map[string]float64
	hist     map[string][]float64
	labels   []Labels
}

func newRecorder() *recorder {
	return &recorder{counters: map[string]float64{}, hist: map[string][]float64{}}
}

func (r *recorder) IncCounter(name string, delta float64, labels Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[name] += delta
	r.labels = append(r.labels, labels)
}

func (r *recorder) ObserveHistogram(name string, value float64, labels Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hist[name] = append(r.hist[name], value)
}

func (r *recorder) Flush() error { return nil }

// Not parallel: the backend is process-wide.
func TestHelpersRouteToBackend(t *testing.T) {
	r := newRecorder()
	SetBackend(r)
	t.Cleanup(func() { SetBackend(nil) })

	RecordRows("loaded", 10)
	RecordRows("rejected", 0)
	RecordStage("sampling", time.Now(), nil)
	RecordStage("commit", time.Now(), errors.New("boom"))
	RecordChunk("ok", 5*time.Millisecond)

	if got := r.counters[RowsTotal]; got != 10 {
		t.Fatalf("rows got=%v want=10", got)
	}
	if got := r.counters[StageTotal]; got != 2 {
		t.Fatalf("stages got=%v want=2", got)
	}
	if got := len(r.hist[StageDuration]); got != 2 {
		t.Fatalf("stage samples got=%d want=2", got)
	}
	if got := r.hist[ChunkDuration]; len(got) != 1 || got[0] != 0.005 {
		t.Fatalf("chunk samples got=%v", got)
	}

	var sawError bool
	for _, l := range r.labels {
		if l["stage"] == "commit" && l["status"] == "error" {
			sawError = true
		}
	}
	if !sawError {
		t.Fatalf("missing error status label; labels=%v", r.labels)
	}
}

func TestSetBackendNilRestoresNop(t *testing.T) {
	SetBackend(nil)
	if _, ok := current().(nopBackend); !ok {
		t.Fatalf("backend=%T want nopBackend", current())
	}
	if err := Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
}
