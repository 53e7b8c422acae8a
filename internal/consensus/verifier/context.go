package verifier

import (
	"context"

	"github.com/cuprate/cuprate/internal/chainmodel"
)

// Context is the narrow view of rolling-window chain state (C14) the
// verifier needs to evaluate a block or batch of transactions; C14's
// concrete type satisfies this without an adapter.
type Context interface {
	HardFork() uint8
	Height() uint64
	TopHash() chainmodel.Hash
	EffectiveMedianWeight() uint64
	CumulativeDifficulty() (hi, lo uint64)
	MedianTimestamp(window int) (uint64, bool)
	NowUnix() int64
	RandomXSeed() chainmodel.Hash
	BaseReward(generatedCoins uint64, blockWeight uint64) uint64
}

// PowHasher computes a block's proof-of-work hash under whatever
// algorithm the current hard-fork names (CryptoNight v0 through v11,
// then RandomX) — spec §1 scope: verify_block calls into this rather
// than reimplementing CryptoNight/RandomX itself.
type PowHasher interface {
	PowHash(ctx context.Context, block chainmodel.Block, merkleRoot chainmodel.Hash, txCount int, height uint64, seed chainmodel.Hash) (chainmodel.Hash, error)
}

// SignatureVerifier checks the elliptic-curve proofs a transaction
// carries: v1 ring signatures and the RingCT sub-protocols (MLSAG/CLSAG,
// Borromean/bulletproof(+)). Concrete curve arithmetic is an external
// concern (spec §1); this package only decides which proof applies and
// what structural invariants must hold before delegating to it.
type SignatureVerifier interface {
	VerifyRingSignature(tx *chainmodel.Tx) error
	VerifyRingCT(tx *chainmodel.Tx) error
}

// pow202612Height is mainnet's one documented PoW exception (spec §4.13):
// at this height, pow_hash is overridden to a fixed constant rather than
// computed, working around a historical hash collision. The override
// value itself is mainnet-specific reference data this package doesn't
// carry; Pow202612Override is exported so the top-level wiring can supply
// it from configuration instead.
const pow202612Height = 202612

// Pow202612Override holds the fixed hash substituted at pow202612Height,
// left zero until configured. verifyPow rejects that height while the
// value is zero, so leaving it unset simply fails that one height's check
// rather than silently accepting a forged block.
var Pow202612Override chainmodel.Hash

// hardFork identifies a Monero consensus rule version (spec §4.13 tables
// all branch on this).
type hardFork = uint8
