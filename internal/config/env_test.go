package config

import (
	"log/slog"
	"testing"
)

func TestReadEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("TABLOAD_DSN", "postgres://localhost/db")
	t.Setenv("TABLOAD_LOG_LEVEL", "debug")
	t.Setenv("METRICS_BACKEND", "datadog")

	e, err := ReadEnv()
	if err != nil {
		t.Fatalf("ReadEnv: %v", err)
	}
	if e.DSN != "postgres://localhost/db" || e.MetricsBackend != "datadog" {
		t.Fatalf("got=%+v", e)
	}
	if lvl, _ := e.SlogLevel(); lvl != slog.LevelDebug {
		t.Fatalf("level got=%v", lvl)
	}
}

func TestReadEnv_BadLevel(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("TABLOAD_LOG_LEVEL", "loud")

	if _, err := ReadEnv(); err == nil {
		t.Fatalf("expected invalid level error")
	}
}
