package txpool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuprate/cuprate/internal/chainmodel"
	"github.com/cuprate/cuprate/internal/database/sqlitekv"
	"github.com/cuprate/cuprate/internal/ulog"
)

func newTestPool(t *testing.T) *Pool {
	t.Helper()
	env, err := sqlitekv.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = env.Close() })
	return NewPool(env, ulog.New("txpool-test", "error", false))
}

func entry(b byte, weight, fee uint64) Entry {
	var h chainmodel.Hash
	h[0] = b
	return Entry{Hash: h, Blob: []byte{b}, Weight: weight, Fee: fee, State: StateLocal}
}

func TestInsertRejectsDuplicate(t *testing.T) {
	ctx := context.Background()
	p := newTestPool(t)
	e := entry(1, 100, 10)
	require.NoError(t, p.Insert(ctx, e))
	require.Error(t, p.Insert(ctx, e))
}

func TestRemoveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	p := newTestPool(t)
	e := entry(1, 100, 10)
	require.NoError(t, p.Insert(ctx, e))
	require.NoError(t, p.Remove(ctx, e.Hash))
	require.NoError(t, p.Remove(ctx, e.Hash)) // no-op on a missing hash
}

func TestPromoteToFluff(t *testing.T) {
	ctx := context.Background()
	p := newTestPool(t)
	e := entry(1, 100, 10)
	require.NoError(t, p.Insert(ctx, e))
	require.NoError(t, p.PromoteToFluff(ctx, e.Hash))
	require.NoError(t, p.PromoteToFluff(ctx, e.Hash)) // already fluff: no-op
}

func TestPromoteToFluffMissingTxFails(t *testing.T) {
	p := newTestPool(t)
	var h chainmodel.Hash
	h[0] = 0xAA
	require.Error(t, p.PromoteToFluff(context.Background(), h))
}

func TestBlockTemplateCandidatesOrdersByFeeRate(t *testing.T) {
	ctx := context.Background()
	p := newTestPool(t)

	// fee-per-weight: 1 -> 1.0, 2 -> 2.0, 3 -> 0.5
	require.NoError(t, p.Insert(ctx, entry(1, 100, 100)))
	require.NoError(t, p.Insert(ctx, entry(2, 100, 200)))
	require.NoError(t, p.Insert(ctx, entry(3, 100, 50)))

	cands, err := p.BlockTemplateCandidates(ctx, 1000)
	require.NoError(t, err)
	require.Len(t, cands, 3)
	require.Equal(t, byte(2), cands[0].Hash[0])
	require.Equal(t, byte(1), cands[1].Hash[0])
	require.Equal(t, byte(3), cands[2].Hash[0])
}

func TestBlockTemplateCandidatesStopsAtWeightBudget(t *testing.T) {
	ctx := context.Background()
	p := newTestPool(t)

	require.NoError(t, p.Insert(ctx, entry(1, 100, 200)))
	require.NoError(t, p.Insert(ctx, entry(2, 100, 100)))

	cands, err := p.BlockTemplateCandidates(ctx, 150)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	require.Equal(t, byte(1), cands[0].Hash[0])
}

func TestTakeBelowFeeEvictsOnlyLowRate(t *testing.T) {
	ctx := context.Background()
	p := newTestPool(t)

	require.NoError(t, p.Insert(ctx, entry(1, 100, 200))) // rate 2.0
	require.NoError(t, p.Insert(ctx, entry(2, 100, 50)))  // rate 0.5

	evicted, err := p.TakeBelowFee(ctx, 1<<20) // limit == rate 1.0
	require.NoError(t, err)
	require.Len(t, evicted, 1)
	require.Equal(t, byte(2), evicted[0].Hash[0])

	cands, err := p.BlockTemplateCandidates(ctx, 1000)
	require.NoError(t, err)
	require.Len(t, cands, 1)
	require.Equal(t, byte(1), cands[0].Hash[0])
}
