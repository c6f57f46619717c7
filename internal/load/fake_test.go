package load

import (
	"context"
	"fmt"
	"strings"

	"tabload/internal/columns"
	"tabload/internal/reconcile"
	"tabload/internal/schema"
	"tabload/internal/storage"
)

// fakeDest is an in-memory destination. DDL statements are opaque strings
// bound to the operation they stand for; transactions work on a copy of the
// committed tables and keep a savepoint stack of snapshots.
type fakeDest struct {
	dialect schema.Dialect
	tables  fakeState
	ops     map[string]func(fakeState) error

	// refuse makes BulkLoad and Upsert fail with a data error on a row.
	refuse func(table string, row []any) bool

	begins, commits, rollbacks int
	statements                 []string
	savepoints                 []string
}

type fakeTable struct {
	cols columns.List
	rows [][]any
}

type fakeState map[string]*fakeTable

func (s fakeState) clone() fakeState {
	out := make(fakeState, len(s))
	for name, t := range s {
		rows := make([][]any, len(t.rows))
		for i, r := range t.rows {
			rows[i] = append([]any(nil), r...)
		}
		out[name] = &fakeTable{cols: t.cols.Clone(), rows: rows}
	}
	return out
}

func newFakeDest(d schema.Dialect) *fakeDest {
	return &fakeDest{dialect: d, tables: fakeState{}, ops: map[string]func(fakeState) error{}}
}

// create adds a committed table.
func (d *fakeDest) create(name string, cols columns.List, rows ...[]any) {
	d.tables[name] = &fakeTable{cols: cols.Clone(), rows: rows}
}

func (d *fakeDest) rows(name string) [][]any {
	if t, ok := d.tables[name]; ok {
		return t.rows
	}
	return nil
}

func (d *fakeDest) Dialect() schema.Dialect { return d.dialect }
func (d *fakeDest) DDL() storage.DDL        { return fakeDDL{d: d} }
func (d *fakeDest) Close()                  {}

func (d *fakeDest) TableExists(_ context.Context, table string) (bool, error) {
	_, ok := d.tables[table]
	return ok, nil
}

func (d *fakeDest) Schema(_ context.Context, table string) (columns.List, error) {
	t, ok := d.tables[table]
	if !ok {
		return columns.List{}, fmt.Errorf("%w: %s", storage.ErrTableMissing, table)
	}
	return t.cols.Clone(), nil
}

func (d *fakeDest) Begin(context.Context) (storage.Tx, error) {
	d.begins++
	return &fakeTx{d: d, state: d.tables.clone()}, nil
}

type fakeDDL struct{ d *fakeDest }

func (f fakeDDL) CreateTable(name string, cols columns.List, ifNotExists bool) string {
	stmt := fmt.Sprintf("CREATE TABLE %s %s", name, cols)
	if ifNotExists {
		stmt = fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s %s", name, cols)
	}
	f.d.ops[stmt] = func(s fakeState) error {
		if _, ok := s[name]; ok {
			if ifNotExists {
				return nil
			}
			return fmt.Errorf("table %q already exists", name)
		}
		c := cols.Clone()
		for i, typ := range schema.ResolveNull(c.Types()) {
			c.SetType(i, typ)
		}
		s[name] = &fakeTable{cols: c}
		return nil
	}
	return stmt
}

func (f fakeDDL) AddColumn(table string, col columns.Column) string {
	stmt := fmt.Sprintf("ADD COLUMN %s.%s %s", table, col.Name, col.Type)
	f.d.ops[stmt] = func(s fakeState) error {
		t, ok := s[table]
		if !ok {
			return fmt.Errorf("no table %q", table)
		}
		if err := t.cols.Add(col.Name, col.Type); err != nil {
			return err
		}
		for i := range t.rows {
			t.rows[i] = append(t.rows[i], nil)
		}
		return nil
	}
	return stmt
}

func (f fakeDDL) AlterColumnType(table, column string, to schema.TypeTag) string {
	stmt := fmt.Sprintf("ALTER COLUMN %s.%s %s", table, column, to)
	f.d.ops[stmt] = func(s fakeState) error {
		t, ok := s[table]
		if !ok {
			return fmt.Errorf("no table %q", table)
		}
		t.cols.SetType(t.cols.Index(column), to)
		return nil
	}
	return stmt
}

type fakeTx struct {
	d          *fakeDest
	state      fakeState
	savepoints []fakeSavepoint
	done       bool
}

type fakeSavepoint struct {
	name  string
	state fakeState
}

func (t *fakeTx) ExecDDL(_ context.Context, stmt string) error {
	op, ok := t.d.ops[stmt]
	if !ok {
		return fmt.Errorf("unknown statement %q", stmt)
	}
	t.d.statements = append(t.d.statements, stmt)
	return op(t.state)
}

func (t *fakeTx) table(name string) (*fakeTable, error) {
	tbl, ok := t.state[name]
	if !ok {
		return nil, fmt.Errorf("no table %q", name)
	}
	return tbl, nil
}

// place maps a row ordered like cols onto the table's column order.
func (tbl *fakeTable) place(cols []string, row []any) ([]any, error) {
	out := make([]any, tbl.cols.Len())
	for i, c := range cols {
		j := tbl.cols.Index(c)
		if j < 0 {
			return nil, fmt.Errorf("no column %q", c)
		}
		out[j] = row[i]
	}
	return out, nil
}

func (tbl *fakeTable) find(row []any) int {
	pk := tbl.cols.PrimaryKey()
	if len(pk) == 0 {
		return -1
	}
	for i, r := range tbl.rows {
		same := true
		for _, k := range pk {
			if fmt.Sprint(r[k]) != fmt.Sprint(row[k]) {
				same = false
				break
			}
		}
		if same {
			return i
		}
	}
	return -1
}

// BulkLoad appends rows until one is refused or breaks the primary key; the
// rows before it stay written, as on a real database.
func (t *fakeTx) BulkLoad(_ context.Context, table string, cols []string, rows [][]any) (int64, error) {
	tbl, err := t.table(table)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, row := range rows {
		if t.d.refuse != nil && t.d.refuse(table, row) {
			return n, &storage.DataError{Table: table, Err: fmt.Errorf("refused row %v", row)}
		}
		placed, err := tbl.place(cols, row)
		if err != nil {
			return n, err
		}
		if tbl.find(placed) >= 0 {
			return n, &storage.DataError{Table: table, Err: fmt.Errorf("duplicate key in row %v", row)}
		}
		tbl.rows = append(tbl.rows, placed)
		n++
	}
	return n, nil
}

func (t *fakeTx) Upsert(_ context.Context, table string, cols columns.List, rows [][]any, policy reconcile.ConflictPolicy) (int64, error) {
	if err := policy.Validate(cols); err != nil {
		return 0, err
	}
	tbl, err := t.table(table)
	if err != nil {
		return 0, err
	}
	set := policy.UpdateSet(cols)

	var n int64
	touched := map[int]bool{}
	for _, row := range rows {
		if t.d.refuse != nil && t.d.refuse(table, row) {
			return n, &storage.DataError{Table: table, Err: fmt.Errorf("refused row %v", row)}
		}
		placed, err := tbl.place(cols.Names(), row)
		if err != nil {
			return n, err
		}
		i := tbl.find(placed)
		// One statement cannot update a row twice.
		if i >= 0 && len(set) > 0 && touched[i] {
			return n, &storage.DataError{Table: table, Err: fmt.Errorf("row %v affected a second time", row)}
		}
		if i < 0 {
			touched[len(tbl.rows)] = true
		} else {
			touched[i] = true
		}
		switch {
		case i < 0:
			tbl.rows = append(tbl.rows, placed)
			n++
		case len(set) > 0:
			for _, c := range set {
				j := tbl.cols.Index(c)
				tbl.rows[i][j] = placed[j]
			}
			n++
		}
	}
	return n, nil
}

func (t *fakeTx) Savepoint(_ context.Context, name string) error {
	t.d.savepoints = append(t.d.savepoints, name)
	t.savepoints = append(t.savepoints, fakeSavepoint{name: name, state: t.state.clone()})
	return nil
}

func (t *fakeTx) findSavepoint(name string) (int, error) {
	for i := len(t.savepoints) - 1; i >= 0; i-- {
		if t.savepoints[i].name == name {
			return i, nil
		}
	}
	return -1, fmt.Errorf("no savepoint %q", name)
}

func (t *fakeTx) RollbackToSavepoint(_ context.Context, name string) error {
	i, err := t.findSavepoint(name)
	if err != nil {
		return err
	}
	t.state = t.savepoints[i].state.clone()
	t.savepoints = t.savepoints[:i+1]
	return nil
}

func (t *fakeTx) ReleaseSavepoint(_ context.Context, name string) error {
	i, err := t.findSavepoint(name)
	if err != nil {
		return err
	}
	t.savepoints = t.savepoints[:i]
	return nil
}

func (t *fakeTx) Commit(context.Context) error {
	if t.done {
		return fmt.Errorf("transaction already done")
	}
	t.done = true
	t.d.commits++
	t.d.tables = t.state
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.d.rollbacks++
	return nil
}

func (d *fakeDest) statementsWithPrefix(prefix string) []string {
	var out []string
	for _, s := range d.statements {
		if strings.HasPrefix(s, prefix) {
			out = append(out, s)
		}
	}
	return out
}
