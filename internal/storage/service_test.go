package storage

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuprate/cuprate/internal/chainmodel"
	"github.com/cuprate/cuprate/internal/database/sqlitekv"
	"github.com/cuprate/cuprate/internal/ulog"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	env, err := sqlitekv.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = env.Close() })
	return New(env, ulog.New("storage-test", "error", false), 4)
}

func sampleBlock(height uint64) (chainmodel.Block, chainmodel.BlockInfo) {
	var hash chainmodel.Hash
	hash[0] = byte(height + 1)
	info := chainmodel.BlockInfo{Hash: hash, Timestamp: 1000 + height}
	return chainmodel.Block{Header: chainmodel.BlockHeader{Timestamp: 1000 + height}}, info
}

func TestWriteThenReadThroughHandles(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	wh := svc.NewWriteHandle()
	rh := svc.NewReadHandle()
	defer wh.Close()
	defer rh.Close()

	block, info := sampleBlock(0)
	height, err := Write(ctx, wh, func(ctx context.Context, ops Ops) (uint64, error) {
		return ops.Store.AppendBlock(ctx, block, []byte("blob"), info, nil)
	})
	require.NoError(t, err)
	require.Equal(t, uint64(0), height)

	got, err := Read(ctx, rh, func(ctx context.Context, ops Ops) (uint64, error) {
		return ops.Store.ChainHeight(ctx)
	})
	require.NoError(t, err)
	require.Equal(t, uint64(1), got)
}

func TestConcurrentWritesAreSerialized(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	wh := svc.NewWriteHandle()
	defer wh.Close()

	var heights []uint64
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			block, info := sampleBlock(uint64(i))
			h, err := Write(ctx, wh, func(ctx context.Context, ops Ops) (uint64, error) {
				return ops.Store.AppendBlock(ctx, block, []byte{byte(i)}, info, nil)
			})
			require.NoError(t, err)
			mu.Lock()
			heights = append(heights, h)
			mu.Unlock()
		}()
	}
	wg.Wait()

	got, err := Read(ctx, svc.NewReadHandle(), func(ctx context.Context, ops Ops) (uint64, error) {
		return ops.Store.ChainHeight(ctx)
	})
	require.NoError(t, err)
	require.Equal(t, uint64(5), got)
	require.Len(t, heights, 5)
}

func TestWriteHandleCloseRejectsFurtherWrites(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	wh := svc.NewWriteHandle()
	wh.Close()

	_, err := Write(ctx, wh, func(ctx context.Context, ops Ops) (uint64, error) {
		return ops.Store.ChainHeight(ctx)
	})
	require.Error(t, err)
}

func TestReadPoolClosesOnceEveryHandleCloses(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	rh1 := svc.NewReadHandle()
	rh2 := svc.NewReadHandle()

	_, err := Read(ctx, rh1, func(ctx context.Context, ops Ops) (uint64, error) {
		return ops.Store.ChainHeight(ctx)
	})
	require.NoError(t, err)

	rh1.Close()
	// rh2 still open: the pool stays usable.
	_, err = Read(ctx, rh2, func(ctx context.Context, ops Ops) (uint64, error) {
		return ops.Store.ChainHeight(ctx)
	})
	require.NoError(t, err)

	rh2.Close()
	_, err = Read(ctx, rh2, func(ctx context.Context, ops Ops) (uint64, error) {
		return ops.Store.ChainHeight(ctx)
	})
	require.Error(t, err)
}

func TestCloseWriterDrainsQueueBeforeStopping(t *testing.T) {
	ctx := context.Background()
	env, err := sqlitekv.Open(":memory:")
	require.NoError(t, err)
	svc := New(env, ulog.New("storage-test", "error", false), 2)
	wh := svc.NewWriteHandle()

	block, info := sampleBlock(0)
	_, err = Write(ctx, wh, func(ctx context.Context, ops Ops) (uint64, error) {
		return ops.Store.AppendBlock(ctx, block, []byte("blob"), info, nil)
	})
	require.NoError(t, err)

	require.NoError(t, svc.Close(ctx))
}
