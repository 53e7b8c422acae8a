package verifier

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuprate/cuprate/internal/chainmodel"
)

type fakeContext struct {
	fork     uint8
	height   uint64
	top      chainmodel.Hash
	median   uint64
	diffHi   uint64
	diffLo   uint64
	medianTS uint64
	haveTS   bool
	now      int64
	seed     chainmodel.Hash
	reward   uint64
}

func (f fakeContext) HardFork() uint8                         { return f.fork }
func (f fakeContext) Height() uint64                          { return f.height }
func (f fakeContext) TopHash() chainmodel.Hash                { return f.top }
func (f fakeContext) EffectiveMedianWeight() uint64           { return f.median }
func (f fakeContext) CumulativeDifficulty() (uint64, uint64)  { return f.diffHi, f.diffLo }
func (f fakeContext) MedianTimestamp(int) (uint64, bool)      { return f.medianTS, f.haveTS }
func (f fakeContext) NowUnix() int64                          { return f.now }
func (f fakeContext) RandomXSeed() chainmodel.Hash            { return f.seed }
func (f fakeContext) BaseReward(uint64, uint64) uint64        { return f.reward }

type fakePow struct {
	hash chainmodel.Hash
	err  error
}

func (p fakePow) PowHash(context.Context, chainmodel.Block, chainmodel.Hash, int, uint64, chainmodel.Hash) (chainmodel.Hash, error) {
	return p.hash, p.err
}

type fakeSigs struct {
	ringErr, ringCTErr error
}

func (s fakeSigs) VerifyRingSignature(*chainmodel.Tx) error { return s.ringErr }
func (s fakeSigs) VerifyRingCT(*chainmodel.Tx) error        { return s.ringCTErr }

func genInput(height uint64, outAmount, fee uint64, fork uint8) chainmodel.TxIn {
	return chainmodel.TxIn{RingMembers: []uint64{height}}
}

func baseBlockInput(fork uint8, top chainmodel.Hash) BlockInput {
	minerTx := chainmodel.Tx{
		Version:    1,
		UnlockTime: 100 + 60,
		Inputs:     []chainmodel.TxIn{genInput(100, 0, 0, fork)},
		Outputs:    []chainmodel.TxOut{{Key: [32]byte{1}, Amount: 1000}},
	}
	return BlockInput{
		Block: chainmodel.Block{
			Header: chainmodel.BlockHeader{
				MajorVersion: fork,
				MinorVersion: fork,
				Timestamp:    1000,
				PrevID:       top,
			},
			MinerTx: minerTx,
			TxIDs:   nil,
		},
		BlobLen:        10,
		Weight:         10,
		MinerTxHash:    chainmodel.Hash{0xaa},
		Txs:            map[chainmodel.Hash]*chainmodel.Tx{},
		Fees:           0,
		GeneratedCoins: 1000,
	}
}

func TestVerifyBlock_AcceptsWellFormedBlock(t *testing.T) {
	top := chainmodel.Hash{0x01}
	cctx := fakeContext{fork: 1, height: 100, top: top, median: 300000, now: 2000, reward: 1000, diffHi: 0, diffLo: 1}
	in := baseBlockInput(1, top)

	pow := fakePow{hash: chainmodel.Hash{0xff}} // read little-endian this is the integer 255, which meets difficulty 1
	r := VerifyBlock(context.Background(), in, cctx, pow, fakeSigs{})
	require.Nil(t, r)
}

func TestVerifyBlock_RejectsVersionMismatch(t *testing.T) {
	top := chainmodel.Hash{0x01}
	cctx := fakeContext{fork: 2, height: 100, top: top}
	in := baseBlockInput(1, top)

	r := VerifyBlock(context.Background(), in, cctx, fakePow{}, fakeSigs{})
	require.NotNil(t, r)
	require.Equal(t, RejectVersion, r.Reason)
}

func TestVerifyBlock_RejectsOversizedWeight(t *testing.T) {
	top := chainmodel.Hash{0x01}
	cctx := fakeContext{fork: 1, height: 100, top: top, median: 4}
	in := baseBlockInput(1, top)
	in.Weight = 100

	r := VerifyBlock(context.Background(), in, cctx, fakePow{}, fakeSigs{})
	require.NotNil(t, r)
	require.Equal(t, RejectSize, r.Reason)
}

func TestVerifyBlock_RejectsUnresolvedTx(t *testing.T) {
	top := chainmodel.Hash{0x01}
	cctx := fakeContext{fork: 1, height: 100, top: top, median: 300000}
	in := baseBlockInput(1, top)
	in.Block.TxIDs = []chainmodel.Hash{{0x02}}

	r := VerifyBlock(context.Background(), in, cctx, fakePow{}, fakeSigs{})
	require.NotNil(t, r)
	require.Equal(t, RejectUnresolvedTx, r.Reason)
}

func TestVerifyBlock_RejectsWrongPrevHash(t *testing.T) {
	top := chainmodel.Hash{0x01}
	cctx := fakeContext{fork: 1, height: 100, top: chainmodel.Hash{0x99}, median: 300000}
	in := baseBlockInput(1, top)

	r := VerifyBlock(context.Background(), in, cctx, fakePow{}, fakeSigs{})
	require.NotNil(t, r)
	require.Equal(t, RejectPrevHash, r.Reason)
}

func TestVerifyBlock_UsesOverrideHashAtSpecialHeight(t *testing.T) {
	top := chainmodel.Hash{0x01}
	cctx := fakeContext{fork: 1, height: pow202612Height, top: top, median: 300000, reward: 1000, diffLo: 1}
	in := baseBlockInput(1, top)
	in.Block.MinerTx.UnlockTime = pow202612Height + 60
	in.Block.MinerTx.Inputs = []chainmodel.TxIn{genInput(pow202612Height, 0, 0, 1)}

	prev := Pow202612Override
	Pow202612Override = chainmodel.Hash{0x01}
	t.Cleanup(func() { Pow202612Override = prev })

	pow := fakePow{err: errBoom{}} // must not be called
	r := VerifyBlock(context.Background(), in, cctx, pow, fakeSigs{})
	require.Nil(t, r)
}

func TestVerifyTxs_RejectsDuplicateKeyImageInBatch(t *testing.T) {
	img := chainmodel.KeyImage{0x01}
	tx1 := &chainmodel.Tx{Version: 1, Inputs: []chainmodel.TxIn{{KeyImage: img, RingMembers: []uint64{1, 2}}}, Outputs: []chainmodel.TxOut{{Key: [32]byte{1}, Amount: 1}}}
	tx2 := &chainmodel.Tx{Version: 1, Inputs: []chainmodel.TxIn{{KeyImage: img, RingMembers: []uint64{3, 4}}}, Outputs: []chainmodel.TxOut{{Key: [32]byte{2}, Amount: 1}}}

	cctx := fakeContext{fork: 1, height: 10}
	ins := []TxInput{{Tx: tx1, BlobLen: 10, Weight: 10}, {Tx: tx2, BlobLen: 10, Weight: 10}}

	results := VerifyTxs(context.Background(), ins, cctx, fakeSigs{})
	require.Nil(t, results[0])
	require.NotNil(t, results[1])
	require.Equal(t, RejectDuplicateKeyImage, results[1].Reason)
}

func TestVerifyTxs_RejectsRingBelowMinimum(t *testing.T) {
	tx := &chainmodel.Tx{
		Version: 2,
		RingCT:  chainmodel.RingCTBulletproof2,
		Inputs:  []chainmodel.TxIn{{KeyImage: chainmodel.KeyImage{0x01}, RingMembers: []uint64{1}}},
		Outputs: []chainmodel.TxOut{{Key: [32]byte{1}}, {Key: [32]byte{2}}},
	}
	cctx := fakeContext{fork: 10, height: 10}
	results := VerifyTxs(context.Background(), []TxInput{{Tx: tx, BlobLen: 10, Weight: 10}}, cctx, fakeSigs{})
	require.NotNil(t, results[0])
	require.Equal(t, RejectRingSize, results[0].Reason)
}

func TestVerifyTxs_RejectsNonZeroV2OutputAmount(t *testing.T) {
	members := make([]uint64, 11)
	for i := range members {
		members[i] = uint64(i + 1)
	}
	tx := &chainmodel.Tx{
		Version: 2,
		RingCT:  chainmodel.RingCTBulletproof2,
		Inputs:  []chainmodel.TxIn{{KeyImage: chainmodel.KeyImage{0x01}, RingMembers: members}},
		Outputs: []chainmodel.TxOut{{Key: [32]byte{1}, Amount: 5}, {Key: [32]byte{2}}},
	}
	cctx := fakeContext{fork: 10, height: 10}
	results := VerifyTxs(context.Background(), []TxInput{{Tx: tx, BlobLen: 10, Weight: 10}}, cctx, fakeSigs{})
	require.NotNil(t, results[0])
	require.Equal(t, RejectOutputAmount, results[0].Reason)
}

func TestVerifyTxs_DelegatesToSignatureVerifier(t *testing.T) {
	tx := &chainmodel.Tx{
		Version: 1,
		Inputs:  []chainmodel.TxIn{{KeyImage: chainmodel.KeyImage{0x01}, RingMembers: []uint64{1, 2}}},
		Outputs: []chainmodel.TxOut{{Key: [32]byte{1}, Amount: 5}},
	}
	cctx := fakeContext{fork: 1, height: 10}
	sigs := fakeSigs{ringErr: errBoom{}}
	results := VerifyTxs(context.Background(), []TxInput{{Tx: tx, BlobLen: 10, Weight: 10}}, cctx, sigs)
	require.NotNil(t, results[0])
	require.Equal(t, RejectRingSignature, results[0].Reason)
}

func TestVerifyBlock_AcceptsV2MinerTxWithNullRingCT(t *testing.T) {
	top := chainmodel.Hash{0x01}
	cctx := fakeContext{fork: 12, height: 100, top: top, median: 300000, now: 2000, reward: 1000, diffHi: 0, diffLo: 1}
	in := baseBlockInput(12, top)
	in.Block.MinerTx.Version = 2
	in.Block.MinerTx.RingCT = chainmodel.RingCTNull
	in.Block.MinerTx.Outputs = []chainmodel.TxOut{{Key: [32]byte{1}, Amount: 1000}}

	pow := fakePow{hash: chainmodel.Hash{0xff}}
	r := VerifyBlock(context.Background(), in, cctx, pow, fakeSigs{})
	require.Nil(t, r)
}

func TestVerifyBlock_RejectsV2MinerTxMissingNullRingCT(t *testing.T) {
	top := chainmodel.Hash{0x01}
	cctx := fakeContext{fork: 12, height: 100, top: top, median: 300000, now: 2000, reward: 1000, diffHi: 0, diffLo: 1}
	in := baseBlockInput(12, top)
	in.Block.MinerTx.Version = 2
	in.Block.MinerTx.Outputs = []chainmodel.TxOut{{Key: [32]byte{1}, Amount: 1000}}

	pow := fakePow{hash: chainmodel.Hash{0xff}}
	r := VerifyBlock(context.Background(), in, cctx, pow, fakeSigs{})
	require.NotNil(t, r)
	require.Equal(t, RejectRingCT, r.Reason)
}

func TestVerifyBlock_RejectsMinerOutputAmountNotDecomposed(t *testing.T) {
	top := chainmodel.Hash{0x01}
	cctx := fakeContext{fork: 3, height: 100, top: top, median: 300000, now: 2000, reward: 1011, diffHi: 0, diffLo: 1}
	in := baseBlockInput(3, top)
	in.Block.MinerTx.Outputs = []chainmodel.TxOut{{Key: [32]byte{1}, Amount: 1011}}
	in.GeneratedCoins = 1011

	pow := fakePow{hash: chainmodel.Hash{0xff}}
	r := VerifyBlock(context.Background(), in, cctx, pow, fakeSigs{})
	require.NotNil(t, r)
	require.Equal(t, RejectMinerTx, r.Reason)
}

func TestVerifyTxs_RejectsNullRingCTOnRegularTx(t *testing.T) {
	members := make([]uint64, 11)
	for i := range members {
		members[i] = uint64(i + 1)
	}
	tx := &chainmodel.Tx{
		Version: 2,
		RingCT:  chainmodel.RingCTNull,
		Inputs:  []chainmodel.TxIn{{KeyImage: chainmodel.KeyImage{0x01}, RingMembers: members}},
		Outputs: []chainmodel.TxOut{{Key: [32]byte{1}}, {Key: [32]byte{2}}},
	}
	cctx := fakeContext{fork: 10, height: 10}
	results := VerifyTxs(context.Background(), []TxInput{{Tx: tx, BlobLen: 10, Weight: 10}}, cctx, fakeSigs{})
	require.NotNil(t, results[0])
	require.Equal(t, RejectRingCT, results[0].Reason)
}

func TestVerifyTxs_RejectsUndecomposedV1OutputFromHardFork2(t *testing.T) {
	tx := &chainmodel.Tx{
		Version: 1,
		Inputs:  []chainmodel.TxIn{{KeyImage: chainmodel.KeyImage{0x01}, RingMembers: []uint64{1, 2}}},
		Outputs: []chainmodel.TxOut{{Key: [32]byte{1}, Amount: 23}},
	}
	cctx := fakeContext{fork: 2, height: 10}
	results := VerifyTxs(context.Background(), []TxInput{{Tx: tx, BlobLen: 10, Weight: 10}}, cctx, fakeSigs{})
	require.NotNil(t, results[0])
	require.Equal(t, RejectOutputAmount, results[0].Reason)
}

func TestIsDecomposedAmount(t *testing.T) {
	require.True(t, isDecomposedAmount(7))
	require.True(t, isDecomposedAmount(70))
	require.True(t, isDecomposedAmount(7000000))
	require.False(t, isDecomposedAmount(0))
	require.False(t, isDecomposedAmount(15))
	require.False(t, isDecomposedAmount(23))
}

func TestMerkleRoot_SingleLeafPassesThrough(t *testing.T) {
	leaf := chainmodel.Hash{0x42}
	require.Equal(t, leaf, merkleRoot([]chainmodel.Hash{leaf}))
}

func TestMerkleRoot_EmptyIsZeroHash(t *testing.T) {
	require.Equal(t, chainmodel.Hash{}, merkleRoot(nil))
}

func TestMerkleRoot_OddCountCombinesOverflowPairOnce(t *testing.T) {
	leaves := []chainmodel.Hash{{1}, {2}, {3}}
	root := merkleRoot(leaves)
	require.NotEqual(t, chainmodel.Hash{}, root)
}

type errBoom struct{}

func (errBoom) Error() string { return "boom" }
