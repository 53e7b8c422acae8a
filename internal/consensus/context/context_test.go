package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuprate/cuprate/internal/chainmodel"
	"github.com/cuprate/cuprate/internal/settings"
	"github.com/cuprate/cuprate/internal/ulog"
)

// fakeChain always misses, modeling a seed height this rolling-window
// state never retained and the caller never backfilled either.
type fakeChain struct{}

func (fakeChain) GetBlockInfo(context.Context, uint64) (chainmodel.BlockInfo, bool, error) {
	return chainmodel.BlockInfo{}, false, nil
}

func testSettings() *settings.Settings {
	return settings.New(settings.MapSource{})
}

func testState() *State {
	return New(testSettings(), fakeChain{}, ulog.New("test", "ERROR", false))
}

func TestAppendAndPopBlock_RestoresPriorTop(t *testing.T) {
	s := testState()
	s.AppendBlock(BlockEntry{Timestamp: 1000, CumulativeDiffHi: 0, CumulativeDiffLo: 100, Weight: 50000, Hash: chainmodel.Hash{0x01}, MajorVersion: 1})
	s.AppendBlock(BlockEntry{Timestamp: 1120, CumulativeDiffHi: 0, CumulativeDiffLo: 200, Weight: 50000, Hash: chainmodel.Hash{0x02}, MajorVersion: 1})

	require.Equal(t, uint64(2), s.Height())
	require.Equal(t, chainmodel.Hash{0x02}, s.TopHash())

	s.PopBlock()
	require.Equal(t, uint64(1), s.Height())
	require.Equal(t, chainmodel.Hash{0x01}, s.TopHash())
	hi, lo := s.CumulativeDifficulty()
	require.Equal(t, uint64(0), hi)
	require.Equal(t, uint64(100), lo)
}

func TestNextDifficulty_FewerThanTwoSamplesReturnsOne(t *testing.T) {
	s := testState()
	require.Equal(t, uint64(1), s.NextDifficulty())

	s.AppendBlock(BlockEntry{Timestamp: 1000, CumulativeDiffLo: 10})
	require.Equal(t, uint64(1), s.NextDifficulty())
}

func TestNextDifficulty_ArithmeticProgressionMatchesLastIncrement(t *testing.T) {
	s := testState()
	ts := uint64(1_600_000_000)
	diff := uint64(1000)
	cum := uint64(0)
	for i := 0; i < 720; i++ {
		cum += diff
		s.AppendBlock(BlockEntry{Timestamp: ts, CumulativeDiffLo: cum})
		ts += 120
	}

	require.Equal(t, diff, s.NextDifficulty())
}

func TestEffectiveMedianWeight_FloorsAtHardForkMinimum(t *testing.T) {
	s := testState()
	s.AppendBlock(BlockEntry{Timestamp: 1, Weight: 100, MajorVersion: 1})
	require.Equal(t, uint64(20000), s.EffectiveMedianWeight())
}

func TestEffectiveMedianWeight_Hf5BoundedByLongTermCap(t *testing.T) {
	s := testState()
	for i := 0; i < 100; i++ {
		s.AppendBlock(BlockEntry{Timestamp: uint64(i), Weight: 1_000_000, LongTermWeight: 300000, MajorVersion: 5})
	}
	// short median 1,000,000 vs long-term cap 300000*1.4=420000 -> capped.
	require.Equal(t, uint64(420000), s.EffectiveMedianWeight())
}

func TestBaseReward_ClampsToTailEmission(t *testing.T) {
	s := testState()
	s.AppendBlock(BlockEntry{Timestamp: 1, Weight: 50000, MajorVersion: 1})
	reward := s.BaseReward(^uint64(0), 50000) // fully emitted supply
	require.Equal(t, uint64(300000000000*2), reward)
}

func TestBaseReward_PenalizesOverweightBlock(t *testing.T) {
	s := testState()
	for i := 0; i < 100; i++ {
		s.AppendBlock(BlockEntry{Timestamp: uint64(i), Weight: 20000, MajorVersion: 1})
	}
	median := s.EffectiveMedianWeight()
	full := s.BaseReward(0, median)
	penalized := s.BaseReward(0, median+median/2)
	require.Less(t, penalized, full)
}

func TestRandomXSeed_Height0BeforeDepthThreshold(t *testing.T) {
	s := testState()
	for i := 0; i < 10; i++ {
		s.AppendBlock(BlockEntry{Timestamp: uint64(i)})
	}
	// height below 2048+64 always resolves seed height 0, which this fake
	// chain doesn't serve (returns !ok), so the seed falls back to zero.
	require.Equal(t, chainmodel.Hash{}, s.RandomXSeed())
}

func TestVoteTally_CountsAtOrAboveThreshold(t *testing.T) {
	s := testState()
	s.AppendBlock(BlockEntry{MinorVersion: 5})
	s.AppendBlock(BlockEntry{MinorVersion: 3})
	s.AppendBlock(BlockEntry{MinorVersion: 5})

	require.Equal(t, 2, s.VoteTally(5))
	require.Equal(t, 3, s.VoteTally(3))
}
