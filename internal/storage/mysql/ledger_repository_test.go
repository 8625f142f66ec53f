package mysql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	stdErrors "errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"testing/fstest"
	"time"

	xerrors "RewardPilot/internal/errors"
	"RewardPilot/internal/ledger"
)

func TestNewLedgerRepositoryAppliesMigrations(t *testing.T) {
	t.Parallel()

	db, driver := newMockDB(t, []mockOperation{
		execOp(createMigrationsTableSQL, mockResult{}),
		queryOp(`SELECT version FROM schema_migrations`, mockRowsData{columns: []string{"version"}}),
		beginOp(),
		execOp(readMigrationStatement(), mockResult{}),
		execOp(`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`, mockResult{rowsAffected: 1}),
		commitOp(),
	})
	defer driver.assertConsumed(t)
	defer db.Close()

	if _, err := newLedgerRepository(context.Background(), db); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewLedgerRepositorySkipsAppliedMigrations(t *testing.T) {
	t.Parallel()

	db, driver := newMockDB(t, []mockOperation{
		execOp(createMigrationsTableSQL, mockResult{}),
		queryOp(`SELECT version FROM schema_migrations`, mockRowsData{
			columns: []string{"version"},
			values:  [][]driver.Value{{"0001"}},
		}),
	})
	defer driver.assertConsumed(t)
	defer db.Close()

	if _, err := newLedgerRepository(context.Background(), db); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestMigrationRollsBackOnFailure(t *testing.T) {
	t.Parallel()

	source := fstest.MapFS{
		"0002_broken.sql": {Data: []byte("CREATE TABLE a (id INT); CREATE TABLE b (id INT);")},
	}
	db, driver := newMockDB(t, []mockOperation{
		execOp(createMigrationsTableSQL, mockResult{}),
		queryOp(`SELECT version FROM schema_migrations`, mockRowsData{columns: []string{"version"}}),
		beginOp(),
		execOp("CREATE TABLE a (id INT)", mockResult{}),
		{typ: opExec, query: "CREATE TABLE b (id INT)", err: stdErrors.New("syntax error")},
		rollbackOp(),
	})
	defer driver.assertConsumed(t)
	defer db.Close()

	if err := migrate(context.Background(), db, source); err == nil {
		t.Fatalf("expected migration failure")
	}
}

func TestLedgerRepositoryAppend(t *testing.T) {
	t.Parallel()

	db, driver := newMockDB(t, []mockOperation{
		execOp(insertLedgerSQL, mockResult{lastInsertID: 1, rowsAffected: 1}),
		{typ: opExec, query: insertLedgerSQL, err: stdErrors.New("duplicate entry")},
	})
	defer driver.assertConsumed(t)
	defer db.Close()

	repo := &LedgerRepository{db: db}
	record := ledger.Record{
		IdentityID:    "0b7f6a3c-0000-4000-8000-000000000001",
		Scheme:        "solana",
		PublicKey:     "pub",
		EncodedSecret: "secret",
		CreatedAt:     time.Unix(1700000000, 0),
	}
	if err := repo.Append(context.Background(), record); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if args := driver.lastArgs(); len(args) != 5 || args[2] != "pub" || args[4] != int64(1700000000) {
		t.Fatalf("unexpected args: %v", args)
	}

	err := repo.Append(context.Background(), record)
	if !stdErrors.Is(err, xerrors.ErrLedger) {
		t.Fatalf("expected ledger error, got %v", err)
	}
}

func TestVersionOf(t *testing.T) {
	cases := map[string]string{
		"0001_identity_ledger.sql": "0001",
		"0002.sql":                 "0002",
		"dir/0003_x.sql":           "0003",
	}
	for name, want := range cases {
		if got := versionOf(name); got != want {
			t.Fatalf("%s: expected %s, got %s", name, want, got)
		}
	}
}

func readMigrationStatement() string {
	content, err := embeddedMigrationFile("0001_identity_ledger.sql")
	if err != nil {
		panic(fmt.Sprintf("failed to read migration: %v", err))
	}
	statements := splitStatements(content)
	if len(statements) == 0 {
		panic("no statements in migration")
	}
	return statements[0]
}

func embeddedMigrationFile(name string) (string, error) {
	loaded, err := loadMigrations(nil)
	if err != nil {
		return "", err
	}
	for _, m := range loaded {
		if m.name == name {
			return strings.Join(m.statements, ";"), nil
		}
	}
	return "", fmt.Errorf("migration %s not found", name)
}

type operationType int

const (
	opExec operationType = iota
	opQuery
	opBegin
	opCommit
	opRollback
)

type mockOperation struct {
	typ    operationType
	query  string
	result mockResult
	rows   mockRowsData
	err    error
}

type mockResult struct {
	lastInsertID int64
	rowsAffected int64
}

func (r mockResult) LastInsertId() (int64, error) { return r.lastInsertID, nil }
func (r mockResult) RowsAffected() (int64, error) { return r.rowsAffected, nil }

type mockRowsData struct {
	columns []string
	values  [][]driver.Value
}

type queueDriver struct {
	ops  []mockOperation
	idx  int32
	args atomic.Value
}

var driverSeq atomic.Int32

func newMockDB(t *testing.T, ops []mockOperation) (*sql.DB, *queueDriver) {
	t.Helper()

	drv := &queueDriver{ops: ops}
	name := fmt.Sprintf("mock-mysql-%d", driverSeq.Add(1))
	sql.Register(name, drv)

	db, err := sql.Open(name, "")
	if err != nil {
		t.Fatalf("open mock db failed: %v", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return db, drv
}

func execOp(query string, result mockResult) mockOperation {
	return mockOperation{typ: opExec, query: query, result: result}
}

func queryOp(query string, rows mockRowsData) mockOperation {
	return mockOperation{typ: opQuery, query: query, rows: rows}
}

func beginOp() mockOperation { return mockOperation{typ: opBegin} }

func commitOp() mockOperation { return mockOperation{typ: opCommit} }

func rollbackOp() mockOperation { return mockOperation{typ: opRollback} }

func (d *queueDriver) assertConsumed(t *testing.T) {
	t.Helper()

	if int(atomic.LoadInt32(&d.idx)) != len(d.ops) {
		t.Fatalf("not all operations consumed: %d/%d", atomic.LoadInt32(&d.idx), len(d.ops))
	}
}

func (d *queueDriver) lastArgs() []driver.Value {
	if v, ok := d.args.Load().([]driver.Value); ok {
		return v
	}
	return nil
}

func (d *queueDriver) next(expected operationType, query string) (*mockOperation, error) {
	idx := int(atomic.LoadInt32(&d.idx))
	if idx >= len(d.ops) {
		return nil, fmt.Errorf("unexpected operation: %v", expected)
	}
	op := &d.ops[idx]
	if op.typ != expected {
		return nil, fmt.Errorf("expected operation %v, got %v", expected, op.typ)
	}
	atomic.AddInt32(&d.idx, 1)
	if op.query != "" && normalizeSQL(op.query) != normalizeSQL(query) {
		return nil, fmt.Errorf("unexpected query. want %q got %q", normalizeSQL(op.query), normalizeSQL(query))
	}
	return op, nil
}

func (d *queueDriver) Open(string) (driver.Conn, error) {
	return &mockConn{driver: d}, nil
}

type mockConn struct {
	driver *queueDriver
}

func (c *mockConn) Prepare(query string) (driver.Stmt, error) {
	return nil, fmt.Errorf("prepare not supported: %s", query)
}

func (c *mockConn) Close() error { return nil }

func (c *mockConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *mockConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	op, err := c.driver.next(opBegin, "")
	if err != nil {
		return nil, err
	}
	if op.err != nil {
		return nil, op.err
	}
	return &mockTx{driver: c.driver}, nil
}

func (c *mockConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	op, err := c.driver.next(opExec, query)
	if err != nil {
		return nil, err
	}
	values := make([]driver.Value, len(args))
	for i, arg := range args {
		values[i] = arg.Value
	}
	c.driver.args.Store(values)
	if op.err != nil {
		return nil, op.err
	}
	return op.result, nil
}

func (c *mockConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	op, err := c.driver.next(opQuery, query)
	if err != nil {
		return nil, err
	}
	if op.err != nil {
		return nil, op.err
	}
	return &mockRows{columns: op.rows.columns, values: op.rows.values}, nil
}

func (c *mockConn) Ping(context.Context) error { return nil }

type mockTx struct {
	driver *queueDriver
}

func (t *mockTx) Commit() error {
	op, err := t.driver.next(opCommit, "")
	if err != nil {
		return err
	}
	return op.err
}

func (t *mockTx) Rollback() error {
	op, err := t.driver.next(opRollback, "")
	if err != nil {
		return err
	}
	return op.err
}

type mockRows struct {
	columns []string
	values  [][]driver.Value
	idx     int
}

func (r *mockRows) Columns() []string { return r.columns }
func (r *mockRows) Close() error      { return nil }

func (r *mockRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.values) {
		return io.EOF
	}
	copy(dest, r.values[r.idx])
	r.idx++
	return nil
}

func normalizeSQL(query string) string {
	return strings.Join(strings.Fields(query), " ")
}
