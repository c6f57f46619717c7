package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
	"hermannm.dev/wrap"
)

// Env is the process environment. A .env file in the working directory is
// loaded first when present; real environment variables win over it.
type Env struct {
	// DSN overrides destination.dsn of the job when set.
	DSN            string `env:"TABLOAD_DSN" envDefault:""`
	LogLevel       string `env:"TABLOAD_LOG_LEVEL" envDefault:"info"`
	Profile        string `env:"TABLOAD_PROFILE" envDefault:""`
	MetricsBackend string `env:"METRICS_BACKEND" envDefault:"none"`
	MetricsTags    string `env:"METRICS_TAGS" envDefault:""`
	MetricsJob     string `env:"METRICS_JOB_NAME" envDefault:""`
}

// ReadEnv loads .env (if any) and parses Env.
func ReadEnv() (Env, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Env{}, wrap.Error(err, "failed to load .env file")
	}

	var e Env
	if err := env.ParseWithOptions(&e, env.Options{RequiredIfNoDef: true}); err != nil {
		return Env{}, wrap.Error(err, "failed to parse environment")
	}
	if _, err := e.SlogLevel(); err != nil {
		return Env{}, err
	}
	return e, nil
}

// SlogLevel maps TABLOAD_LOG_LEVEL to a slog level.
func (e Env) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(e.LogLevel))); err != nil {
		return 0, wrap.Errorf(err, "invalid TABLOAD_LOG_LEVEL %q", e.LogLevel)
	}
	return lvl, nil
}
