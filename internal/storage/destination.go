// Package storage defines the destination collaborator the loader writes
// through, and a registry of backends selected by kind.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"tabload/internal/columns"
	"tabload/internal/reconcile"
	"tabload/internal/schema"
)

// Config is the minimal configuration needed to open a Destination.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - DSN is passed through to the backend factory; validation is backend-specific.
type Config struct {
	Kind string
	DSN  string
}

// DDL renders schema statements for one dialect. It is the statement
// builder reconcile.Apply expects.
type DDL interface {
	reconcile.Builder
}

// Destination is one database the loader writes to.
//
// IMPORTANT: a load uses exactly one Tx at a time. Backends may pool
// connections, but Begin must pin a single connection for the Tx lifetime so
// savepoints refer to the same session.
type Destination interface {
	Dialect() schema.Dialect
	DDL() DDL

	TableExists(ctx context.Context, table string) (bool, error)

	// Schema returns the live columns of table, typed through the dialect's
	// TagForSQLType, with the primary key set when the table declares one.
	// A missing table returns an error matching ErrTableMissing.
	Schema(ctx context.Context, table string) (columns.List, error)

	Begin(ctx context.Context) (Tx, error)

	// Close releases backend resources. Call once.
	Close()
}

// Tx is a transaction on a Destination.
//
// Row-level failures from BulkLoad and Upsert are reported as errors for
// which IsDataError is true; after one, the transaction is only usable again
// once rolled back to a savepoint.
type Tx interface {
	ExecDDL(ctx context.Context, stmt string) error

	// BulkLoad writes rows through the fastest native path. rows are already
	// converted and ordered like cols.
	BulkLoad(ctx context.Context, table string, cols []string, rows [][]any) (int64, error)

	// Upsert inserts rows, resolving primary key conflicts per policy.
	Upsert(ctx context.Context, table string, cols columns.List, rows [][]any, policy reconcile.ConflictPolicy) (int64, error)

	Savepoint(ctx context.Context, name string) error
	RollbackToSavepoint(ctx context.Context, name string) error
	ReleaseSavepoint(ctx context.Context, name string) error

	Commit(ctx context.Context) error
	// Rollback is a no-op after Commit.
	Rollback(ctx context.Context) error
}

type factory func(ctx context.Context, cfg Config) (Destination, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a backend under a kind (e.g. "postgres", "sqlite").
//
// When to use:
//   - Call Register from an init() function in a backend package.
//
// Panics:
//   - If kind is empty.
//   - If f is nil.
//   - If kind is already registered.
func Register(kind string, f factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}

	factories[kind] = f
}

// Open constructs a Destination using the registered backend factory.
//
// Errors:
//   - Returns an error if cfg.Kind is empty or unsupported.
//   - Returns whatever error the registered factory returns.
func Open(ctx context.Context, cfg Config) (Destination, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing destination kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported storage.kind=%s (registered: %v)", cfg.Kind, Kinds())
	}
	return f(ctx, cfg)
}

// Kinds lists the registered backend kinds, sorted.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()

	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
