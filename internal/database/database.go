// Package database is the ACID key-value store abstraction of spec §4.3: a
// typed environment, many concurrent read transactions, one exclusive write
// transaction, and fixed-layout tables keyed by opaque byte strings. Callers
// own every byte slice returned from a transaction — copy-on-read,
// zero-copy on write — since responses cross goroutine boundaries through
// the storage service (C6) and the memory backing a mapped-backend read may
// not outlive the transaction.
package database

import (
	"context"

	"github.com/cuprate/cuprate/internal/cuperrors"
)

// SyncMode governs when a commit is durable on disk (spec §4.3).
type SyncMode int

const (
	// SyncSafe fsyncs before Commit returns.
	SyncSafe SyncMode = iota
	// SyncAsync never blocks the committing caller on fsync.
	SyncAsync
	// SyncThreshold fsyncs every N commits.
	SyncThreshold
)

// ResizePolicy configures growth of a memory-mapped backend (spec §4.3,
// §4.9 design notes, §7 "Storage resize-needed").
type ResizePolicy struct {
	Increment  uint64 // bytes to grow by on each resize, default ~1 GiB
	MaxRetries int    // retries before giving up and failing fatally
}

func DefaultResizePolicy() ResizePolicy {
	return ResizePolicy{Increment: 1 << 30, MaxRetries: 3}
}

// Env is a storage environment: the owner of table definitions, the single
// writer slot, and the resize/sync policy. A concrete backend (e.g.
// internal/database/sqlitekv) implements Env; production backends such as
// LMDB/redb are swappable behind this interface and out of scope here (spec
// §1).
type Env interface {
	// BeginRead opens a new snapshot-isolated read transaction. Many may be
	// open concurrently.
	BeginRead(ctx context.Context) (ReadTx, error)
	// BeginWrite opens the single write transaction. Callers must not hold
	// more than one at a time; a concrete backend may block until the
	// previous writer commits or rolls back.
	BeginWrite(ctx context.Context) (WriteTx, error)
	// Sync forces a durability sync regardless of SyncMode; called on
	// normal shutdown (spec §4.3).
	Sync(ctx context.Context) error
	Close() error
}

// ReadTx is a read-only snapshot. Multiple ReadTx may be open against an Env
// at once; each observes state as of the moment it was opened.
type ReadTx interface {
	Table(name string) (ReadTable, error)
	// Close releases the snapshot. It never fails a commit since reads
	// have nothing to commit.
	Close() error
}

// WriteTx is the single exclusive writer. Nothing else may write until this
// commits or rolls back.
type WriteTx interface {
	Table(name string) (Table, error)
	Commit(ctx context.Context) error
	Rollback() error
}

// ReadTable is the read side of a named K→V table: callers work with raw
// byte keys/values, leaving structure (de)serialization to the schema layer
// (C4/C5) so this package stays backend-agnostic.
type ReadTable interface {
	Get(key []byte) (value []byte, found bool, err error)
	// Range iterates keys in [start, end) lexicographic order, calling fn
	// for each. Returning false from fn stops iteration early. This is how
	// the multimap substitution of spec §9 emulates duplicate-sort
	// iteration: scan a composite-key range sharing a primary-key prefix.
	Range(start, end []byte, fn func(key, value []byte) (cont bool, err error)) error
}

// Table is the read/write side, scoped to one WriteTx.
type Table interface {
	ReadTable
	Put(key, value []byte) error
	Delete(key []byte) error
}

// ErrResizeNeeded signals a mapped backend failed a write for want of
// space; the caller should retry after the backend grows its map, per the
// resize policy (spec §4.3, §7).
func ErrResizeNeeded(cause error) *cuperrors.Error {
	return cuperrors.New(cuperrors.ERR_STORAGE_RESIZE, "database: map resize needed", cause)
}

// ErrCorruption is fatal: the caller should initiate shutdown (spec §7).
func ErrCorruption(cause error) *cuperrors.Error {
	return cuperrors.New(cuperrors.ERR_STORAGE_CORRUPTION, "database: corruption detected", cause)
}
