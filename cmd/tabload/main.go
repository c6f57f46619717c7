// Command tabload loads a tabular file (CSV, TSV, JSON or an HTML table) into
// a SQLite or PostgreSQL table, inferring column types from a sample and
// reconciling them with the table's existing schema.
//
// Usage:
//
//	tabload load -job job.json [-profile load.hcl] [-validate] [-metrics-backend datadog|none]
//	tabload probe -file data.csv [-dialect sqlite|postgres] [-table name] [-tables]
//	tabload reject-diff -kind postgres -dsn <dsn> -table name
//	tabload profile export -out load.hcl
//
// The environment (optionally from a .env file) supplies TABLOAD_DSN,
// TABLOAD_LOG_LEVEL, TABLOAD_PROFILE, METRICS_BACKEND and METRICS_TAGS.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"hermannm.dev/devlog"
	"hermannm.dev/devlog/log"

	"tabload/internal/config"

	// register the destination backends with the storage factory.
	_ "tabload/internal/storage/postgres"
	_ "tabload/internal/storage/sqlite"
)

func main() {
	slog.SetDefault(slog.New(devlog.NewHandler(os.Stderr, &devlog.Options{Level: slog.LevelInfo})))

	env, err := config.ReadEnv()
	if err != nil {
		log.ErrorCause(err, "failed to read configuration from environment")
		os.Exit(1)
	}
	handler, err := logHandler(env, os.Stderr)
	if err != nil {
		log.ErrorCause(err, "invalid log level")
		os.Exit(1)
	}
	slog.SetDefault(slog.New(handler))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, env, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// logHandler builds the devlog handler at the level TABLOAD_LOG_LEVEL names.
func logHandler(env config.Env, w io.Writer) (slog.Handler, error) {
	lvl, err := env.SlogLevel()
	if err != nil {
		return nil, err
	}
	return devlog.NewHandler(w, &devlog.Options{Level: lvl}), nil
}

// usageError is returned for bad command lines; run exits with 2 on it.
type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

func run(ctx context.Context, env config.Env, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stderr)
		return 2
	}

	var err error
	switch args[0] {
	case "load":
		err = runLoad(ctx, env, args[1:], stdout, stderr)
	case "probe":
		err = runProbe(ctx, args[1:], stdout, stderr)
	case "reject-diff":
		err = runRejectDiff(ctx, env, args[1:], stdout, stderr)
	case "profile":
		err = runProfile(args[1:], stdout, stderr)
	case "help", "-h", "-help", "--help":
		usage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", args[0])
		usage(stderr)
		return 2
	}

	var ue usageError
	switch {
	case err == nil:
		return 0
	case errors.Is(err, flag.ErrHelp):
		return 0
	case errors.As(err, &ue):
		fmt.Fprintln(stderr, ue.msg)
		return 2
	default:
		log.ErrorCause(err, fmt.Sprintf("tabload %s failed", args[0]))
		return 1
	}
}

func usage(w io.Writer) {
	fmt.Fprint(w, `usage: tabload <command> [flags]

commands:
  load         load a source into a table as described by a job file
  probe        print the schema a load of a file would create
  reject-diff  compare a table with its reject table
  profile      export the default load profile (profile export -out f.hcl)

run "tabload <command> -h" for the flags of a command
`)
}
