// Package storage is the façade of spec §4.6: it owns the blockchain (C4)
// and txpool (C5) schemas behind one database.Env and hands callers typed,
// asynchronous access through two independently closeable handles — a
// single-writer queue and a bounded reader pool — instead of letting every
// caller juggle transactions directly. The shape follows the node's
// long-standing single-goroutine-owns-the-mutation-channel idiom (see
// SubtreeProcessor's moveUpBlockChan/reorgBlockChan select loop), scaled up
// with a counting semaphore for the read side instead of one channel per
// read op.
package storage

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/cuprate/cuprate/internal/blockchain"
	"github.com/cuprate/cuprate/internal/cuperrors"
	"github.com/cuprate/cuprate/internal/database"
	"github.com/cuprate/cuprate/internal/metrics"
	"github.com/cuprate/cuprate/internal/tracing"
	"github.com/cuprate/cuprate/internal/txpool"
	"github.com/cuprate/cuprate/internal/ulog"
	atomicu "go.uber.org/atomic"
)

// Service wires one database.Env to the blockchain Store and txpool Pool
// and runs the single writer task of spec §4.6. Callers never reach the
// Env, Store, or Pool directly; they go through a WriteHandle or
// ReadHandle so the two shutdown paths stay independent.
type Service struct {
	env   database.Env
	store *blockchain.Store
	pool  *txpool.Pool
	log   ulog.Logger

	writeCh    chan writeJob
	writerOnce sync.Once
	writerDone chan struct{}

	sem          *semaphore.Weighted
	readHandles  atomicu.Int64
	readersOpen  atomicu.Bool
}

// New constructs a Service and starts its writer task. readerPoolSize
// bounds how many read requests may run concurrently (spec §4.6 "a pool of
// worker threads sized to available cores").
func New(env database.Env, log ulog.Logger, readerPoolSize int) *Service {
	if readerPoolSize < 1 {
		readerPoolSize = 1
	}
	s := &Service{
		env:        env,
		store:      blockchain.NewStore(env, log.With("component", "blockchain")),
		pool:       txpool.NewPool(env, log.With("component", "txpool")),
		log:        log,
		writeCh:    make(chan writeJob, 64),
		writerDone: make(chan struct{}),
		sem:        semaphore.NewWeighted(int64(readerPoolSize)),
	}
	s.readersOpen.Store(true)
	go s.writerLoop()
	return s
}

// Pool returns the Service's own txpool.Pool. It exists for components
// that need a direct reference rather than a Read/Write-mediated call:
// the Dandelion++ router (C11) and the node's relay and RPC handlers call
// it directly (Insert, Lookup), so their writes open write transactions
// outside the single writer task.
func (s *Service) Pool() *txpool.Pool { return s.pool }

// Ops is the typed surface a request function is given: the blockchain and
// txpool schema layers it may call. Kept as a struct rather than two
// separate fn params so new schema layers (future C-modules) extend this
// in one place.
type Ops struct {
	Store *blockchain.Store
	Pool  *txpool.Pool
}

type writeJob struct {
	fn   func(ctx context.Context, ops Ops) (interface{}, error)
	resp chan writeResult
}

type writeResult struct {
	val interface{}
	err error
}

func (s *Service) writerLoop() {
	defer close(s.writerDone)
	ops := Ops{Store: s.store, Pool: s.pool}
	for job := range s.writeCh {
		metrics.SetStorageWriterQueueDepth(len(s.writeCh))
		start := time.Now()
		val, err := job.fn(context.Background(), ops)
		metrics.ObserveStorageRequest("write", time.Since(start))
		job.resp <- writeResult{val: val, err: err}
	}
}

// WriteHandle submits serialized write requests to the single writer task.
// Closing it stops this handle accepting new work; Service.CloseWriter
// stops the writer task after draining its queue.
type WriteHandle struct {
	svc    *Service
	closed atomicu.Bool
}

// NewWriteHandle returns a handle for submitting writes. Multiple
// WriteHandles may be held concurrently; they all feed the same writer
// task, so submission order across handles is not guaranteed, only that
// each individual request is applied atomically.
func (s *Service) NewWriteHandle() *WriteHandle {
	return &WriteHandle{svc: s}
}

// Close stops this handle from accepting further submissions. It does not
// itself stop the writer task (other handles or future ones may still
// submit); call Service.CloseWriter to shut the task down entirely.
func (h *WriteHandle) Close() {
	h.closed.Store(true)
}

// ReadHandle runs read requests against a semaphore-bounded pool. Dropping
// the last open ReadHandle closes the pool to further reads (spec §4.6
// "dropping the last read handle terminates the reader pool").
type ReadHandle struct {
	svc    *Service
	closed atomicu.Bool
}

// NewReadHandle opens a new reader and bumps the open-handle count.
func (s *Service) NewReadHandle() *ReadHandle {
	s.readHandles.Add(1)
	return &ReadHandle{svc: s}
}

// Close releases this reader. Once every issued ReadHandle has been
// closed, the pool itself closes and further Read calls fail.
func (h *ReadHandle) Close() {
	if h.closed.Swap(true) {
		return
	}
	if h.svc.readHandles.Add(-1) == 0 {
		h.svc.readersOpen.Store(false)
	}
}

// Write submits fn to the writer task and blocks for its typed result.
func Write[T any](ctx context.Context, h *WriteHandle, fn func(ctx context.Context, ops Ops) (T, error)) (T, error) {
	var zero T
	if h.closed.Load() {
		return zero, cuperrors.New(cuperrors.ERR_INVALID_ARGUMENT, "storage: write handle closed")
	}

	span, ctx := tracing.Start(ctx, "storage:Write")
	defer span.Finish()

	resp := make(chan writeResult, 1)
	job := writeJob{
		fn: func(ctx context.Context, ops Ops) (interface{}, error) { return fn(ctx, ops) },
		resp: resp,
	}

	select {
	case <-h.svc.writerDone:
		return zero, cuperrors.New(cuperrors.ERR_INVALID_ARGUMENT, "storage: writer task stopped")
	default:
	}

	select {
	case h.svc.writeCh <- job:
	case <-h.svc.writerDone:
		return zero, cuperrors.New(cuperrors.ERR_INVALID_ARGUMENT, "storage: writer task stopped")
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	select {
	case r := <-resp:
		if r.err != nil {
			return zero, r.err
		}
		v, _ := r.val.(T)
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Read acquires a slot in the reader pool, runs fn, then releases it. fn
// should open its own read transaction via ops.Store/ops.Pool's existing
// methods; Read only bounds how many run at once.
func Read[T any](ctx context.Context, h *ReadHandle, fn func(ctx context.Context, ops Ops) (T, error)) (T, error) {
	var zero T
	if h.closed.Load() || !h.svc.readersOpen.Load() {
		return zero, cuperrors.New(cuperrors.ERR_INVALID_ARGUMENT, "storage: reader pool closed")
	}

	span, ctx := tracing.Start(ctx, "storage:Read")
	defer span.Finish()

	if err := h.svc.sem.Acquire(ctx, 1); err != nil {
		return zero, err
	}
	defer h.svc.sem.Release(1)

	start := time.Now()
	ops := Ops{Store: h.svc.store, Pool: h.svc.pool}
	v, err := fn(ctx, ops)
	metrics.ObserveStorageRequest("read", time.Since(start))
	return v, err
}

// CloseWriter stops the writer task after draining whatever is already
// queued, then syncs the underlying database.Env. Further Write calls
// against any handle fail once the drain completes.
func (s *Service) CloseWriter(ctx context.Context) error {
	s.writerOnce.Do(func() { close(s.writeCh) })
	select {
	case <-s.writerDone:
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.env.Sync(ctx)
}

// Close stops the writer and releases the environment. It does not wait on
// open ReadHandles; callers should close those first if in-flight reads
// must finish cleanly.
func (s *Service) Close(ctx context.Context) error {
	if err := s.CloseWriter(ctx); err != nil {
		return err
	}
	return s.env.Close()
}
