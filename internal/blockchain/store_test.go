package blockchain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuprate/cuprate/internal/chainmodel"
	"github.com/cuprate/cuprate/internal/database/sqlitekv"
	"github.com/cuprate/cuprate/internal/ulog"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	env, err := sqlitekv.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = env.Close() })
	return NewStore(env, ulog.New("blockchain-test", "error", false))
}

func sampleBlock(height uint64, nOutputs int) (chainmodel.Block, chainmodel.BlockInfo, []AppendedTx) {
	var hash chainmodel.Hash
	hash[0] = byte(height + 1)

	txHash := chainmodel.Hash{}
	txHash[1] = byte(height + 1)

	var ki chainmodel.KeyImage
	if height > 0 {
		ki[2] = byte(height)
	}

	outs := make([]chainmodel.TxOut, nOutputs)
	amounts := make([]uint64, nOutputs)
	for i := range outs {
		outs[i] = chainmodel.TxOut{Commitment: [32]byte{byte(i + 1)}}
	}

	tx := chainmodel.Tx{
		Version:    2,
		Outputs:    outs,
		PrunedBlob: []byte{0xde, 0xad},
	}
	if height > 0 {
		tx.Inputs = []chainmodel.TxIn{{KeyImage: ki}}
	}

	block := chainmodel.Block{Header: chainmodel.BlockHeader{Timestamp: 1000 + height}}
	info := chainmodel.BlockInfo{Timestamp: 1000 + height, Hash: hash}
	txs := []AppendedTx{{Hash: txHash, Tx: tx, OutputAmounts: amounts}}
	return block, info, txs
}

func TestAppendBlockThenPopBlockRestoresState(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	block, info, txs := sampleBlock(0, 2)
	h, err := s.AppendBlock(ctx, block, []byte("blob0"), info, txs)
	require.NoError(t, err)
	require.Equal(t, uint64(0), h)

	height, err := s.ChainHeight(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(1), height)

	got, found, err := s.GetBlockInfo(ctx, 0)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, info, got)

	require.NoError(t, s.PopBlock(ctx))

	height, err = s.ChainHeight(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(0), height)

	_, found, err = s.GetBlockInfo(ctx, 0)
	require.NoError(t, err)
	require.False(t, found)
}

func TestAppendPopIsExactInverseAcrossMultipleBlocks(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for h := uint64(0); h < 3; h++ {
		block, info, txs := sampleBlock(h, 1)
		height, err := s.AppendBlock(ctx, block, []byte{byte(h)}, info, txs)
		require.NoError(t, err)
		require.Equal(t, h, height)
	}

	height, err := s.ChainHeight(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(3), height)

	require.NoError(t, s.PopBlock(ctx))
	require.NoError(t, s.PopBlock(ctx))

	height, err = s.ChainHeight(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(1), height)

	// Re-appending the popped blocks should succeed exactly as before,
	// proving pop left the counters and tables in the pre-append state.
	for h := uint64(1); h < 3; h++ {
		block, info, txs := sampleBlock(h, 1)
		height, err := s.AppendBlock(ctx, block, []byte{byte(h)}, info, txs)
		require.NoError(t, err)
		require.Equal(t, h, height)
	}

	height, err = s.ChainHeight(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(3), height)
}

func TestAppendBlockRejectsDuplicateKeyImage(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	block0, info0, txs0 := sampleBlock(0, 1)
	_, err := s.AppendBlock(ctx, block0, []byte("b0"), info0, txs0)
	require.NoError(t, err)

	block1, info1, txs1 := sampleBlock(1, 1)
	_, err = s.AppendBlock(ctx, block1, []byte("b1"), info1, txs1)
	require.NoError(t, err)

	// Block 2 tries to spend the same key image block1 already spent.
	block2, info2, txs2 := sampleBlock(2, 1)
	txs2[0].Tx.Inputs = txs1[0].Tx.Inputs
	_, err = s.AppendBlock(ctx, block2, []byte("b2"), info2, txs2)
	require.Error(t, err)

	// The rejected append must not have left partial state behind.
	height, err := s.ChainHeight(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(2), height)
}

func TestPopBlockOnEmptyChainFails(t *testing.T) {
	s := newTestStore(t)
	require.Error(t, s.PopBlock(context.Background()))
}

func TestAppendBlockSynthesizesMinerRingCTCommitment(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	minerTx := chainmodel.Tx{
		Version: 2,
		Inputs:  []chainmodel.TxIn{{RingMembers: []uint64{0}}},
		Outputs: []chainmodel.TxOut{{Key: [32]byte{0x01}}},
		RingCT:  chainmodel.RingCTNull,
	}
	block := chainmodel.Block{Header: chainmodel.BlockHeader{Timestamp: 1000}, MinerTx: minerTx}
	info := chainmodel.BlockInfo{Timestamp: 1000, Hash: chainmodel.Hash{0x01}}
	txs := []AppendedTx{{Hash: chainmodel.Hash{0x02}, Tx: minerTx, OutputAmounts: []uint64{70}, IsMinerTx: true}}

	_, err := s.AppendBlock(ctx, block, []byte("blob"), info, txs)
	require.NoError(t, err)

	rtx, err := s.env.BeginRead(ctx)
	require.NoError(t, err)
	defer rtx.Close()
	tables, err := openReadTables(rtx)
	require.NoError(t, err)

	rec, found, err := tables.rctOutputs.Get(0)
	require.NoError(t, err)
	require.True(t, found)
	require.NotEqual(t, [32]byte{}, rec.Commitment)

	want, err := synthesizeMinerCommitment(70)
	require.NoError(t, err)
	require.Equal(t, want, rec.Commitment)
}

func TestSynthesizeMinerCommitmentIsDeterministicAndAmountSensitive(t *testing.T) {
	a, err := synthesizeMinerCommitment(1)
	require.NoError(t, err)
	b, err := synthesizeMinerCommitment(1)
	require.NoError(t, err)
	require.Equal(t, a, b)

	c, err := synthesizeMinerCommitment(2)
	require.NoError(t, err)
	require.NotEqual(t, a, c)
}
