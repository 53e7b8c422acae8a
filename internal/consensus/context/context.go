// Package context maintains the rolling consensus windows spec §4.14
// names: the last 735 (timestamp, cumulative difficulty) pairs for
// difficulty retarget, the last 100 block weights (short-term median),
// the last 100,000 long-term weights, the current hard-fork version, and
// per-minor-version vote tallies over a 10,080-block window. State's
// exported methods satisfy verifier.Context without an adapter, so C13
// takes this package's concrete type directly at wiring time.
package context

import (
	stdcontext "context"
	"math/big"
	"sort"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/cuprate/cuprate/internal/chainmodel"
	"github.com/cuprate/cuprate/internal/levin"
	"github.com/cuprate/cuprate/internal/settings"
	"github.com/cuprate/cuprate/internal/ulog"
)

const (
	difficultyWindow  = 735
	difficultyLag     = 15
	difficultyCentral = 600
	shortTermWindow   = 100
	longTermWindow    = 100000
)

// ChainReader is the narrow view of block storage State needs to resolve
// a RandomX seed hash outside its retained rolling windows (seed heights
// are typically tens of thousands of blocks behind the tip).
type ChainReader interface {
	GetBlockInfo(ctx stdcontext.Context, height uint64) (chainmodel.BlockInfo, bool, error)
}

// BlockEntry is what AppendBlock/PopBlock feed into the rolling windows:
// everything §4.14's windows key on, already computed by the caller (the
// block downloader or storage append path), not re-derived here.
type BlockEntry struct {
	Timestamp       uint64
	CumulativeDiffHi uint64
	CumulativeDiffLo uint64
	Weight          uint64
	LongTermWeight  uint64
	Hash            chainmodel.Hash
	MajorVersion    uint8
	MinorVersion    uint8
}

type cumDiff struct{ hi, lo uint64 }

// State is the long-lived, single-writer rolling-window service of spec
// §4.14. AppendBlock/PopBlock are expected to be called from the same
// task that owns block storage's append/pop path (spec §5's single-writer
// rule); every other method is safe for concurrent readers.
type State struct {
	cfg   *settings.Settings
	chain ChainReader
	log   ulog.Logger

	mu          sync.RWMutex
	timestamps  *ring[uint64]
	cumDiffs    *ring[cumDiff]
	shortWeights *ring[uint64]
	longWeights *ring[uint64]
	hashes      *ring[chainmodel.Hash]
	majors      *ring[uint8]
	votes       *ring[uint8]

	height   atomic.Uint64
	hardFork atomic.Uint32
	topHash  atomic.Value // chainmodel.Hash
}

// New builds an empty rolling-window state. Callers replay AppendBlock
// from genesis (or from a snapshot) before this State is fit to answer
// verifier queries; an empty State's EffectiveMedianWeight/BaseReward
// still behave sanely (floor values, height 0).
func New(cfg *settings.Settings, chain ChainReader, log ulog.Logger) *State {
	s := &State{
		cfg:         cfg,
		chain:       chain,
		log:         log,
		timestamps:  newRing[uint64](difficultyWindow),
		cumDiffs:    newRing[cumDiff](difficultyWindow),
		shortWeights: newRing[uint64](shortTermWindow),
		longWeights: newRing[uint64](longTermWindow),
		hashes:      newRing[chainmodel.Hash](difficultyWindow),
		majors:      newRing[uint8](difficultyWindow),
		votes:       newRing[uint8](cfg.HardForkVoteWindow()),
	}
	s.topHash.Store(chainmodel.Hash{})
	return s
}

// AppendBlock pushes a newly accepted block's context-relevant fields
// into every rolling window and advances height/hard-fork/top-hash.
func (s *State) AppendBlock(e BlockEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.timestamps.push(e.Timestamp)
	s.cumDiffs.push(cumDiff{hi: e.CumulativeDiffHi, lo: e.CumulativeDiffLo})
	s.shortWeights.push(e.Weight)
	s.longWeights.push(e.LongTermWeight)
	s.hashes.push(e.Hash)
	s.majors.push(e.MajorVersion)
	s.votes.push(e.MinorVersion)

	s.height.Add(1)
	s.hardFork.Store(uint32(e.MajorVersion))
	s.topHash.Store(e.Hash)
}

// PopBlock reverts the most recent AppendBlock, for reorg rollback. Only
// valid while the popped block is still within every window's retained
// depth; popping past that point is a caller bug (the windows have
// already discarded the data needed to reconstruct the prior top).
func (s *State) PopBlock() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.timestamps.popLast()
	s.cumDiffs.popLast()
	s.shortWeights.popLast()
	s.longWeights.popLast()
	s.hashes.popLast()
	s.majors.popLast()
	s.votes.popLast()

	if s.height.Load() > 0 {
		s.height.Sub(1)
	}
	if major, ok := s.majors.last(); ok {
		s.hardFork.Store(uint32(major))
	}
	if hash, ok := s.hashes.last(); ok {
		s.topHash.Store(hash)
	}
}

// HardFork reports the major version of the most recently appended block.
func (s *State) HardFork() uint8 { return uint8(s.hardFork.Load()) }

// Height reports the chain height (count of appended blocks).
func (s *State) Height() uint64 { return s.height.Load() }

// TopHash reports the hash of the most recently appended block.
func (s *State) TopHash() chainmodel.Hash { return s.topHash.Load().(chainmodel.Hash) }

// NowUnix is verify_block's wall-clock reference for the "not too far in
// the future" timestamp check.
func (s *State) NowUnix() int64 { return time.Now().Unix() }

// CumulativeDifficulty reports the most recently appended block's
// cumulative difficulty as a 128-bit hi:lo pair.
func (s *State) CumulativeDifficulty() (hi, lo uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if d, ok := s.cumDiffs.last(); ok {
		return d.hi, d.lo
	}
	return 0, 0
}

// MedianTimestamp reports the median of the last window timestamps, or
// false if fewer than window are retained.
func (s *State) MedianTimestamp(window int) (uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.timestamps.values()
	if len(all) < window {
		return 0, false
	}
	recent := append([]uint64(nil), all[len(all)-window:]...)
	sort.Slice(recent, func(i, j int) bool { return recent[i] < recent[j] })
	return recent[len(recent)/2], true
}

// NextDifficulty implements spec §4.14's retarget algorithm over the
// retained (timestamp, cumulative difficulty) window.
func (s *State) NextDifficulty() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return nextDifficulty(s.timestamps.values(), s.cumDiffs.values(), s.cfg.DifficultyTargetSeconds())
}

func nextDifficulty(timestamps []uint64, diffs []cumDiff, targetSeconds int) uint64 {
	n := len(timestamps)
	if n < 2 {
		return 1
	}

	window := n
	if window > difficultyWindow {
		window = difficultyWindow
	}
	ts := append([]uint64(nil), timestamps[n-window:]...)
	cd := append([]cumDiff(nil), diffs[len(diffs)-window:]...)

	if len(ts) > difficultyLag {
		ts = ts[:len(ts)-difficultyLag]
		cd = cd[:len(cd)-difficultyLag]
	}
	if len(ts) < 2 {
		return 1
	}

	type sample struct {
		ts uint64
		cd cumDiff
	}
	samples := make([]sample, len(ts))
	for i := range ts {
		samples[i] = sample{ts: ts[i], cd: cd[i]}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i].ts < samples[j].ts })

	lower, upper := 0, len(samples)
	count := len(samples)
	if count > difficultyCentral {
		lower = (count - difficultyCentral + 1) / 2
		upper = lower + difficultyCentral
	}

	timeSpan := samples[upper-1].ts - samples[lower].ts
	if timeSpan < 1 {
		timeSpan = 1
	}

	totalWork := new(big.Int).Sub(big128(samples[upper-1].cd), big128(samples[lower].cd))
	// (total_work * target_seconds + time_span - 1) / time_span, rounded up.
	num := new(big.Int).Mul(totalWork, big.NewInt(int64(targetSeconds)))
	num.Add(num, big.NewInt(int64(timeSpan)-1))
	next := num.Div(num, big.NewInt(int64(timeSpan)))
	return next.Uint64()
}

// big128 converts a 128-bit hi:lo cumulative-difficulty pair into a
// *big.Int, used for the retarget arithmetic instead of hand-rolled
// 128-bit subtraction/multiplication.
func big128(d cumDiff) *big.Int {
	v := new(big.Int).Lsh(new(big.Int).SetUint64(d.hi), 64)
	return v.Or(v, new(big.Int).SetUint64(d.lo))
}

// EffectiveMedianWeight implements spec §4.14's per-hard-fork smoothed
// size cap: hf1 floors the short-term median at 20,000; hf2-4 at 60,000;
// hf5+ additionally bounds it by 1.4x the long-term median (itself
// floored at 300,000), taking whichever of the two is smaller.
func (s *State) EffectiveMedianWeight() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fork := uint8(s.hardFork.Load())
	shortMedian := medianOf(s.shortWeights.values())

	var floor uint64
	switch {
	case fork >= 5:
		floor = 300000
	case fork >= 2:
		floor = 60000
	default:
		floor = 20000
	}
	if shortMedian < floor {
		shortMedian = floor
	}
	if fork < 5 {
		return shortMedian
	}

	longMedian := medianOf(s.longWeights.values())
	if longMedian < 300000 {
		longMedian = 300000
	}
	longCap := longMedian + longMedian*2/5 // 1.4x
	if shortMedian < longCap {
		return shortMedian
	}
	return longCap
}

func medianOf(vs []uint64) uint64 {
	if len(vs) == 0 {
		return 0
	}
	sorted := append([]uint64(nil), vs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// tailEmission is 0.3 XMR/minute, in atomic units (1 XMR = 1e12).
const tailEmission = 300000000000

// BaseReward implements spec §4.14's reward formula: an exponentially
// decaying base clamped to the tail emission, penalized when the caller's
// block weight exceeds the effective median.
func (s *State) BaseReward(generatedCoins, blockWeight uint64) uint64 {
	targetMinutes := s.cfg.DifficultyTargetMinutes()
	shift := uint(20 - (targetMinutes - 1))

	remaining := ^uint64(0) - generatedCoins
	base := remaining >> shift

	tail := uint64(tailEmission) * uint64(targetMinutes)
	if base < tail {
		base = tail
	}

	median := s.EffectiveMedianWeight()
	if blockWeight <= median || median == 0 {
		return base
	}

	// penalty = base * (1 - (w/m - 1)^2), computed in integer arithmetic
	// to avoid floating point in a consensus-critical path.
	excess := blockWeight - median
	if excess > median {
		return 0
	}
	numerator := median*median - excess*excess
	return mulDiv(base, numerator, median*median)
}

// mulDiv computes a*b/c without overflowing uint64's range in the
// intermediate product.
func mulDiv(a, b, c uint64) uint64 {
	if c == 0 {
		return 0
	}
	n := new(big.Int).Mul(new(big.Int).SetUint64(a), new(big.Int).SetUint64(b))
	n.Div(n, new(big.Int).SetUint64(c))
	return n.Uint64()
}

// RandomXSeed implements spec §4.13's seed-height rule: block 0 until the
// chain is deep enough, then (height-64) rounded down to a multiple of
// 2048. The seed height is usually far outside the retained rolling
// windows, so this falls through to the chain reader.
func (s *State) RandomXSeed() chainmodel.Hash {
	height := s.Height()
	seedHeight := uint64(0)
	if height > 2048+64 {
		seedHeight = (height - 64) &^ (2048 - 1)
	}

	if s.chain == nil {
		return chainmodel.Hash{}
	}
	info, ok, err := s.chain.GetBlockInfo(stdcontext.Background(), seedHeight)
	if err != nil || !ok {
		return chainmodel.Hash{}
	}
	return info.Hash
}

// CoreSyncData satisfies handshake.ChainState (C9): the peer's chain-
// state snapshot advertised on handshake and periodic TimedSync.
func (s *State) CoreSyncData(ctx stdcontext.Context) (levin.CoreSyncData, error) {
	hi, lo := s.CumulativeDifficulty()
	return levin.CoreSyncData{
		CumulativeDifficultyHi: hi,
		CumulativeDifficultyLo: lo,
		CurrentHeight:          s.Height(),
		TopID:                  s.TopHash(),
		TopVersion:             s.HardFork(),
	}, nil
}

// VoteTally reports how many of the retained votes window's entries
// named at least the given minor version, used to decide whether a
// pending hard fork has enough support to activate.
func (s *State) VoteTally(minMinorVersion uint8) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, v := range s.votes.values() {
		if v >= minMinorVersion {
			n++
		}
	}
	return n
}
