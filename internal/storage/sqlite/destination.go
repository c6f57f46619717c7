// Package sqlite implements storage.Destination on modernc.org/sqlite, a
// pure-Go SQLite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"hermannm.dev/wrap"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"tabload/internal/columns"
	"tabload/internal/reconcile"
	"tabload/internal/schema"
	"tabload/internal/storage"
)

// Destination implements storage.Destination for SQLite.
//
// Key differences from Postgres:
//   - There is no COPY; BulkLoad issues multi-row INSERTs.
//   - Column types are affinities, so ALTER COLUMN TYPE is never needed (and
//     not supported by SQLite). DDL.AlterColumnType renders nothing.
//   - Integers beyond int64 arrive as strings and are stored with text
//     storage class in an integer column.
type Destination struct {
	db *sql.DB
}

func init() {
	storage.Register("sqlite", New)
}

// New opens the database file named by cfg.DSN.
func New(ctx context.Context, cfg storage.Config) (storage.Destination, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, wrap.Error(err, "failed to open sqlite database")
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, wrap.Error(err, "failed to connect to sqlite database")
	}
	return &Destination{db: db}, nil
}

func (d *Destination) Dialect() schema.Dialect { return schema.SQLite }
func (d *Destination) DDL() storage.DDL        { return DDL{} }

func (d *Destination) Close() { _ = d.db.Close() }

// TableExists matches names case-insensitively, as SQLite resolves them.
func (d *Destination) TableExists(ctx context.Context, table string) (bool, error) {
	s, t := storage.SplitQualifiedName(table)
	master := "sqlite_master"
	if s != "" {
		master = sqlIdent(s) + ".sqlite_master"
	}
	q := `SELECT count(*) FROM ` + master + ` WHERE type = 'table' AND name = ? COLLATE NOCASE`

	var n int
	if err := d.db.QueryRowContext(ctx, q, t).Scan(&n); err != nil {
		return false, wrap.Errorf(err, "failed to check whether table %q exists", table)
	}
	return n > 0, nil
}

// Schema reads PRAGMA table_info. The pk column of the pragma gives each key
// column's 1-based position in the primary key.
func (d *Destination) Schema(ctx context.Context, table string) (columns.List, error) {
	s, t := storage.SplitQualifiedName(table)
	pragma := "PRAGMA "
	if s != "" {
		pragma += sqlIdent(s) + "."
	}
	pragma += "table_info(" + sqlIdent(t) + ")"

	rows, err := d.db.QueryContext(ctx, pragma)
	if err != nil {
		return columns.List{}, wrap.Errorf(err, "failed to read columns of %q", table)
	}
	defer rows.Close()

	type keyCol struct {
		name string
		pos  int
	}
	var (
		cols columns.List
		pk   []keyCol
	)
	for rows.Next() {
		var (
			cid      int
			name     string
			typ      string
			notNull  int
			defValue sql.NullString
			pkPos    int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defValue, &pkPos); err != nil {
			return columns.List{}, wrap.Errorf(err, "failed to scan columns of %q", table)
		}
		if err := cols.Add(name, schema.SQLite.TagForSQLType(typ)); err != nil {
			return columns.List{}, err
		}
		if pkPos > 0 {
			pk = append(pk, keyCol{name: name, pos: pkPos})
		}
	}
	if err := rows.Err(); err != nil {
		return columns.List{}, wrap.Errorf(err, "failed to read columns of %q", table)
	}
	if cols.Len() == 0 {
		return columns.List{}, fmt.Errorf("%w: %s", storage.ErrTableMissing, table)
	}

	sort.Slice(pk, func(i, j int) bool { return pk[i].pos < pk[j].pos })
	names := make([]string, len(pk))
	for i, k := range pk {
		names[i] = k.name
	}
	if err := cols.SetPrimaryKeyNames(names...); err != nil {
		return columns.List{}, err
	}
	return cols, nil
}

// Begin starts a transaction; database/sql pins one connection to it.
func (d *Destination) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrap.Error(err, "failed to begin transaction")
	}
	return &Tx{tx: tx}, nil
}

// Tx implements storage.Tx on a database/sql transaction.
type Tx struct {
	tx *sql.Tx
}

func (t *Tx) ExecDDL(ctx context.Context, stmt string) error {
	if _, err := t.tx.ExecContext(ctx, stmt); err != nil {
		return wrap.Errorf(err, "failed to execute %q", stmt)
	}
	return nil
}

// BulkLoad inserts rows with multi-row INSERT statements.
func (t *Tx) BulkLoad(ctx context.Context, table string, cols []string, rows [][]any) (int64, error) {
	return t.insert(ctx, table, cols, rows, "")
}

func (t *Tx) Upsert(
	ctx context.Context,
	table string,
	cols columns.List,
	rows [][]any,
	policy reconcile.ConflictPolicy,
) (int64, error) {
	if err := policy.Validate(cols); err != nil {
		return 0, err
	}
	return t.insert(ctx, table, cols.Names(), rows, conflictClause(cols, policy))
}

func (t *Tx) insert(ctx context.Context, table string, cols []string, rows [][]any, suffix string) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	per := max(1, maxVars/max(1, len(cols)))
	total := int64(0)
	for start := 0; start < len(rows); start += per {
		end := min(start+per, len(rows))
		q, args := buildInsertSQL(table, cols, rows[start:end], suffix)
		res, err := t.tx.ExecContext(ctx, q, args...)
		if err != nil {
			return total, classify(table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

func (t *Tx) Savepoint(ctx context.Context, name string) error {
	return t.exec(ctx, "SAVEPOINT "+sqlIdent(name))
}

func (t *Tx) RollbackToSavepoint(ctx context.Context, name string) error {
	return t.exec(ctx, "ROLLBACK TO SAVEPOINT "+sqlIdent(name))
}

func (t *Tx) ReleaseSavepoint(ctx context.Context, name string) error {
	return t.exec(ctx, "RELEASE SAVEPOINT "+sqlIdent(name))
}

func (t *Tx) exec(ctx context.Context, stmt string) error {
	if _, err := t.tx.ExecContext(ctx, stmt); err != nil {
		return wrap.Errorf(err, "failed to execute %q", stmt)
	}
	return nil
}

func (t *Tx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(); err != nil {
		return wrap.Error(err, "failed to commit transaction")
	}
	return nil
}

func (t *Tx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return wrap.Error(err, "failed to roll back transaction")
	}
	return nil
}

// classify turns constraint violations, datatype mismatches and oversized
// values into *storage.DataError. Extended result codes carry the primary
// code in their low byte.
func classify(table string, err error) error {
	var se *msqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_CONSTRAINT, sqlite3.SQLITE_MISMATCH, sqlite3.SQLITE_TOOBIG:
			return &storage.DataError{Table: table, Err: err}
		}
	}
	return wrap.Errorf(err, "failed to write to %q", table)
}

func sqlIdent(id string) string { return storage.QuoteIdent(id) }

func identList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = sqlIdent(n)
	}
	return strings.Join(quoted, ", ")
}
