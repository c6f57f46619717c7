// Package postgres implements storage.Destination on a pgx connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"hermannm.dev/wrap"

	"tabload/internal/columns"
	"tabload/internal/reconcile"
	"tabload/internal/schema"
	"tabload/internal/storage"
)

/*
Destination implements storage.Destination for PostgreSQL.

It provides:
  - COPY FROM STDIN bulk loads (pgx CopyFrom)
  - INSERT ... ON CONFLICT upserts
  - savepoints within a single pinned transaction
  - catalog lookups for column types and the primary key
*/
type Destination struct {
	pool *pgxpool.Pool
}

// New creates a pool for cfg.DSN and verifies it with a ping.
func New(ctx context.Context, cfg storage.Config) (storage.Destination, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, wrap.Error(err, "failed to create postgres pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, wrap.Error(err, "failed to connect to postgres")
	}
	return &Destination{pool: pool}, nil
}

func (d *Destination) Dialect() schema.Dialect { return schema.Postgres }
func (d *Destination) DDL() storage.DDL        { return DDL{} }

// Close closes the connection pool.
func (d *Destination) Close() {
	d.pool.Close()
}

const tableExistsSQL = `SELECT EXISTS (
	SELECT 1 FROM information_schema.tables
	WHERE table_schema = COALESCE(NULLIF($1, ''), current_schema()) AND table_name = $2
)`

func (d *Destination) TableExists(ctx context.Context, table string) (bool, error) {
	s, t := storage.SplitQualifiedName(table)
	var ok bool
	if err := d.pool.QueryRow(ctx, tableExistsSQL, s, t).Scan(&ok); err != nil {
		return false, wrap.Errorf(err, "failed to check whether table %q exists", table)
	}
	return ok, nil
}

const columnsSQL = `SELECT column_name, data_type
	FROM information_schema.columns
	WHERE table_schema = COALESCE(NULLIF($1, ''), current_schema()) AND table_name = $2
	ORDER BY ordinal_position`

const primaryKeySQL = `SELECT a.attname
	FROM pg_index i
	JOIN pg_attribute a ON a.attrelid = i.indrelid AND a.attnum = ANY(i.indkey)
	WHERE i.indrelid = $1::regclass AND i.indisprimary
	ORDER BY array_position(i.indkey::int2[], a.attnum)`

// Schema reads the live table definition from information_schema and
// pg_index.
func (d *Destination) Schema(ctx context.Context, table string) (columns.List, error) {
	s, t := storage.SplitQualifiedName(table)

	rows, err := d.pool.Query(ctx, columnsSQL, s, t)
	if err != nil {
		return columns.List{}, wrap.Errorf(err, "failed to read columns of %q", table)
	}
	var cols columns.List
	for rows.Next() {
		var name, dataType string
		if err := rows.Scan(&name, &dataType); err != nil {
			rows.Close()
			return columns.List{}, wrap.Errorf(err, "failed to scan columns of %q", table)
		}
		if err := cols.Add(name, schema.Postgres.TagForSQLType(dataType)); err != nil {
			rows.Close()
			return columns.List{}, err
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return columns.List{}, wrap.Errorf(err, "failed to read columns of %q", table)
	}
	if cols.Len() == 0 {
		return columns.List{}, fmt.Errorf("%w: %s", storage.ErrTableMissing, table)
	}

	pkRows, err := d.pool.Query(ctx, primaryKeySQL, storage.QuoteQualified(table))
	if err != nil {
		return columns.List{}, wrap.Errorf(err, "failed to read primary key of %q", table)
	}
	pk, err := pgx.CollectRows(pkRows, pgx.RowTo[string])
	if err != nil {
		return columns.List{}, wrap.Errorf(err, "failed to read primary key of %q", table)
	}
	if err := cols.SetPrimaryKeyNames(pk...); err != nil {
		return columns.List{}, err
	}
	return cols, nil
}

// Begin starts a transaction. pgx pins one pooled connection to it.
func (d *Destination) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return nil, wrap.Error(err, "failed to begin transaction")
	}
	return &Tx{tx: tx}, nil
}

// Tx implements storage.Tx on a pgx transaction.
type Tx struct {
	tx pgx.Tx
}

func (t *Tx) ExecDDL(ctx context.Context, stmt string) error {
	if _, err := t.tx.Exec(ctx, stmt); err != nil {
		return wrap.Errorf(err, "failed to execute %q", stmt)
	}
	return nil
}

// BulkLoad streams rows with COPY FROM STDIN.
func (t *Tx) BulkLoad(ctx context.Context, table string, cols []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	n, err := t.tx.CopyFrom(ctx, identifier(table), cols, pgx.CopyFromRows(rows))
	if err != nil {
		return n, classify(table, err)
	}
	return n, nil
}

// Upsert inserts rows in statements of at most maxParams bind parameters.
func (t *Tx) Upsert(
	ctx context.Context,
	table string,
	cols columns.List,
	rows [][]any,
	policy reconcile.ConflictPolicy,
) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := policy.Validate(cols); err != nil {
		return 0, err
	}

	per := max(1, maxParams/max(1, cols.Len()))
	total := int64(0)
	for start := 0; start < len(rows); start += per {
		end := min(start+per, len(rows))
		sql, args := buildUpsertSQL(table, cols, rows[start:end], policy)
		tag, err := t.tx.Exec(ctx, sql, args...)
		if err != nil {
			return total, classify(table, err)
		}
		total += tag.RowsAffected()
	}
	return total, nil
}

func (t *Tx) Savepoint(ctx context.Context, name string) error {
	if _, err := t.tx.Exec(ctx, "SAVEPOINT "+storage.QuoteIdent(name)); err != nil {
		return wrap.Errorf(err, "failed to create savepoint %s", name)
	}
	return nil
}

func (t *Tx) RollbackToSavepoint(ctx context.Context, name string) error {
	if _, err := t.tx.Exec(ctx, "ROLLBACK TO SAVEPOINT "+storage.QuoteIdent(name)); err != nil {
		return wrap.Errorf(err, "failed to roll back to savepoint %s", name)
	}
	return nil
}

func (t *Tx) ReleaseSavepoint(ctx context.Context, name string) error {
	if _, err := t.tx.Exec(ctx, "RELEASE SAVEPOINT "+storage.QuoteIdent(name)); err != nil {
		return wrap.Errorf(err, "failed to release savepoint %s", name)
	}
	return nil
}

func (t *Tx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return wrap.Error(err, "failed to commit transaction")
	}
	return nil
}

func (t *Tx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return wrap.Error(err, "failed to roll back transaction")
	}
	return nil
}

func identifier(table string) pgx.Identifier {
	s, t := storage.SplitQualifiedName(table)
	if s == "" {
		return pgx.Identifier{t}
	}
	return pgx.Identifier{s, t}
}

// classify turns row-level failures (see isDataCode) into
// *storage.DataError.
func classify(table string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && isDataCode(pgErr.Code) {
		return &storage.DataError{Table: table, Err: err}
	}
	return wrap.Errorf(err, "failed to write to %q", table)
}

// isDataCode reports SQLSTATE classes 22 (data exception) and 23 (integrity
// constraint violation), plus 21000: an upsert statement that holds two rows
// with the same key cannot affect the row a second time. Written one by one
// those rows apply in source order.
func isDataCode(code string) bool {
	return strings.HasPrefix(code, "22") || strings.HasPrefix(code, "23") || code == "21000"
}
