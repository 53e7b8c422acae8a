// Package sqlitekv is the one concrete Env used by this module's tests: a
// key-value table layout on top of modernc.org/sqlite (a pure-Go embedded
// engine, grounded on the teacher's own use of modernc.org/sqlite for its
// lightweight SQL needs). Production deployments swap in LMDB/redb behind
// the same database.Env interface (spec §4.3); that swap is out of scope
// here.
package sqlitekv

import (
	"context"
	"database/sql"
	"sync"

	"github.com/cuprate/cuprate/internal/cuperrors"
	"github.com/cuprate/cuprate/internal/database"

	_ "modernc.org/sqlite"
)

// Env opens (or creates) a set of named KV tables inside one sqlite
// database file. A single mutex enforces the "at most one concurrent
// writer" guarantee of spec §4.3. The pool holds a single connection (see
// Open), so an open transaction, read or write, holds that connection and
// every other BeginRead or BeginWrite waits until it ends.
type Env struct {
	db       *sql.DB
	writerMu sync.Mutex
	tables   map[string]bool
	tablesMu sync.Mutex
}

// Open creates an Env backed by the sqlite file at path (":memory:" for an
// ephemeral, test-only environment).
func Open(path string) (*Env, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, cuperrors.New(cuperrors.ERR_IO, "sqlitekv: open failed", err)
	}
	// One connection: sqlite itself serializes writers; this just avoids
	// SQLITE_BUSY noise from the pool racing itself.
	db.SetMaxOpenConns(1)
	return &Env{db: db, tables: map[string]bool{}}, nil
}

func (e *Env) ensureTable(name string) error {
	e.tablesMu.Lock()
	defer e.tablesMu.Unlock()
	if e.tables[name] {
		return nil
	}
	stmt := `CREATE TABLE IF NOT EXISTS "` + name + `" (k BLOB PRIMARY KEY, v BLOB NOT NULL)`
	if _, err := e.db.Exec(stmt); err != nil {
		return cuperrors.New(cuperrors.ERR_IO, "sqlitekv: create table %q failed", name, err)
	}
	e.tables[name] = true
	return nil
}

func (e *Env) BeginRead(ctx context.Context) (database.ReadTx, error) {
	tx, err := e.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, cuperrors.New(cuperrors.ERR_IO, "sqlitekv: begin read failed", err)
	}
	return &readTx{env: e, tx: tx}, nil
}

func (e *Env) BeginWrite(ctx context.Context) (database.WriteTx, error) {
	e.writerMu.Lock()
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		e.writerMu.Unlock()
		return nil, cuperrors.New(cuperrors.ERR_IO, "sqlitekv: begin write failed", err)
	}
	return &writeTx{env: e, tx: tx}, nil
}

func (e *Env) Sync(ctx context.Context) error {
	_, err := e.db.ExecContext(ctx, "PRAGMA wal_checkpoint(FULL)")
	if err != nil {
		return cuperrors.New(cuperrors.ERR_IO, "sqlitekv: sync failed", err)
	}
	return nil
}

func (e *Env) Close() error { return e.db.Close() }

type readTx struct {
	env *Env
	tx  *sql.Tx
}

func (r *readTx) Table(name string) (database.ReadTable, error) {
	if err := r.env.ensureTable(name); err != nil {
		return nil, err
	}
	return &table{tx: r.tx, name: name}, nil
}

func (r *readTx) Close() error { return r.tx.Rollback() }

type writeTx struct {
	env *Env
	tx  *sql.Tx
}

func (w *writeTx) Table(name string) (database.Table, error) {
	if err := w.env.ensureTable(name); err != nil {
		return nil, err
	}
	return &table{tx: w.tx, name: name}, nil
}

func (w *writeTx) Commit(ctx context.Context) error {
	defer w.env.writerMu.Unlock()
	if err := w.tx.Commit(); err != nil {
		return cuperrors.New(cuperrors.ERR_IO, "sqlitekv: commit failed", err)
	}
	return nil
}

func (w *writeTx) Rollback() error {
	defer w.env.writerMu.Unlock()
	if err := w.tx.Rollback(); err != nil {
		return cuperrors.New(cuperrors.ERR_IO, "sqlitekv: rollback failed", err)
	}
	return nil
}

// table implements both database.ReadTable and database.Table; a read
// transaction only ever exposes it through the narrower ReadTable
// interface.
type table struct {
	tx   *sql.Tx
	name string
}

func (t *table) Get(key []byte) ([]byte, bool, error) {
	row := t.tx.QueryRow(`SELECT v FROM "`+t.name+`" WHERE k = ?`, key)
	var v []byte
	if err := row.Scan(&v); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, cuperrors.New(cuperrors.ERR_IO, "sqlitekv: get failed", err)
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (t *table) Put(key, value []byte) error {
	_, err := t.tx.Exec(`INSERT INTO "`+t.name+`" (k, v) VALUES (?, ?)
		ON CONFLICT(k) DO UPDATE SET v = excluded.v`, key, value)
	if err != nil {
		return cuperrors.New(cuperrors.ERR_IO, "sqlitekv: put failed", err)
	}
	return nil
}

func (t *table) Delete(key []byte) error {
	_, err := t.tx.Exec(`DELETE FROM "`+t.name+`" WHERE k = ?`, key)
	if err != nil {
		return cuperrors.New(cuperrors.ERR_IO, "sqlitekv: delete failed", err)
	}
	return nil
}

func (t *table) Range(start, end []byte, fn func(key, value []byte) (bool, error)) error {
	rows, err := t.tx.Query(`SELECT k, v FROM "`+t.name+`" WHERE k >= ? AND k < ? ORDER BY k ASC`, start, end)
	if err != nil {
		return cuperrors.New(cuperrors.ERR_IO, "sqlitekv: range query failed", err)
	}
	defer rows.Close()

	for rows.Next() {
		var k, v []byte
		if err := rows.Scan(&k, &v); err != nil {
			return cuperrors.New(cuperrors.ERR_IO, "sqlitekv: range scan failed", err)
		}
		cont, err := fn(k, v)
		if err != nil {
			return err
		}
		if !cont {
			break
		}
	}
	return rows.Err()
}
