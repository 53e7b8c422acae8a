package verifier

import (
	"context"

	"github.com/cuprate/cuprate/internal/chainmodel"
)

const unlockTimeIsHeightBelow = 500000000

// TxInput bundles a decoded transaction with the externally-computed
// facts (blob size, weight) verify_txs needs but chainmodel keeps opaque.
type TxInput struct {
	Tx      *chainmodel.Tx
	BlobLen uint64
	Weight  uint64
}

// VerifyTxs implements spec §4.13's verify_txs: every transaction-level
// check against cctx, plus the duplicate-key-image check across the whole
// batch (a block or a mempool admission set), in the order the spec lists
// them. Returns one *Rejection per input, in the same order, nil where a
// transaction passes.
func VerifyTxs(ctx context.Context, ins []TxInput, cctx Context, sigs SignatureVerifier) []*Rejection {
	out := make([]*Rejection, len(ins))

	seenImages := make(map[chainmodel.KeyImage]int)
	for i, in := range ins {
		for _, txin := range in.Tx.Inputs {
			if txin.IsGenerator() {
				continue
			}
			if prev, dup := seenImages[txin.KeyImage]; dup {
				out[i] = reject(RejectDuplicateKeyImage, "key image reused by tx %d", prev)
				break
			}
			seenImages[txin.KeyImage] = i
		}
	}

	for i, in := range ins {
		if out[i] != nil {
			continue
		}
		out[i] = verifyTx(ctx, in, cctx, sigs)
	}
	return out
}

func verifyTx(ctx context.Context, in TxInput, cctx Context, sigs SignatureVerifier) *Rejection {
	tx := in.Tx
	fork := cctx.HardFork()

	if tx.Version != 1 && tx.Version != 2 {
		return reject(RejectTxVersion, "version %d not in {1,2}", tx.Version)
	}

	if r := verifyTxWeight(in, fork); r != nil {
		return r
	}
	if r := verifyInputs(tx, fork); r != nil {
		return r
	}
	if r := verifyOutputs(tx, fork); r != nil {
		return r
	}
	if r := verifyUnlockTime(tx, cctx); r != nil {
		return r
	}
	if r := verifyRingCTType(tx, fork); r != nil {
		return r
	}
	return verifySignatures(ctx, tx, sigs)
}

// verifyTxWeight checks the structural preconditions of bulletproof(+)'s
// fee-weight clawback (spec §4.13: the proof shrinks logarithmically with
// output count, so fee weight is clawed back towards the unclawed size):
// the clawback itself is a caller-side weight computation this package
// doesn't own, but it requires at least one output to be defined at all.
func verifyTxWeight(in TxInput, fork uint8) *Rejection {
	switch in.Tx.RingCT {
	case chainmodel.RingCTBulletproof, chainmodel.RingCTBulletproof2, chainmodel.RingCTCLSAG, chainmodel.RingCTBulletproofPlus:
		if len(in.Tx.Outputs) == 0 {
			return reject(RejectOutputs, "bulletproof tx has no outputs")
		}
	}
	if in.Weight == 0 || in.BlobLen == 0 {
		return reject(RejectTxSize, "zero-size transaction")
	}
	return nil
}

// minRingSize is the smallest permitted ring size at each hard fork (spec
// §4.13's table): 1 before hf2, 2 from hf2, 4 from hf6, 6 from hf7, 10
// from hf10, 11 from hf12, and 10 again from hf15. The unmixable-v1
// exception and hf15's 10-or-15 rule are not modeled: any ring at or above
// the minimum passes.
func minRingSize(fork uint8) int {
	switch {
	case fork >= 15:
		return 10
	case fork >= 12:
		return 11
	case fork >= 10:
		return 10
	case fork >= 7:
		return 6
	case fork >= 6:
		return 4
	case fork >= 2:
		return 2
	default:
		return 1
	}
}

func verifyInputs(tx *chainmodel.Tx, fork uint8) *Rejection {
	if len(tx.Inputs) == 0 {
		return reject(RejectEmptyInputs, "no inputs")
	}

	minRing := minRingSize(fork)
	var lastImage *chainmodel.KeyImage
	for i, in := range tx.Inputs {
		if in.IsGenerator() {
			return reject(RejectInputType, "non-miner tx carries a generator input")
		}
		if len(in.RingMembers) < minRing {
			return reject(RejectRingSize, "ring size %d below minimum %d at hard fork %d", len(in.RingMembers), minRing, fork)
		}
		if fork >= 12 && len(in.RingMembers) != len(tx.Inputs[0].RingMembers) {
			return reject(RejectRingSize, "input %d ring size does not match input 0", i)
		}
		if in.KeyImage == (chainmodel.KeyImage{}) {
			return reject(RejectKeyImage, "zero key image on non-generator input")
		}
		if fork >= 6 {
			offsets := make(map[uint64]struct{}, len(in.RingMembers))
			for _, idx := range in.RingMembers {
				if _, dup := offsets[idx]; dup {
					return reject(RejectRingMembers, "input %d repeats a ring member", i)
				}
				offsets[idx] = struct{}{}
			}
		}
		if fork >= 7 {
			if lastImage != nil && !keyImageLess(in.KeyImage, *lastImage) {
				return reject(RejectInputOrder, "inputs not sorted by descending key image")
			}
			img := in.KeyImage
			lastImage = &img
		}
	}

	if len(tx.PseudoOuts) != 0 && len(tx.PseudoOuts) != len(tx.Inputs) {
		return reject(RejectInputType, "pseudo-out count %d does not match input count %d", len(tx.PseudoOuts), len(tx.Inputs))
	}
	return nil
}

// keyImageLess reports a < b under plain byte-lexicographic order, used to
// check hf7's descending-key-image input ordering.
func keyImageLess(a, b chainmodel.KeyImage) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func verifyOutputs(tx *chainmodel.Tx, fork uint8) *Rejection {
	if len(tx.Outputs) == 0 {
		return reject(RejectOutputs, "no outputs")
	}
	if fork >= 12 && tx.Version == 2 && len(tx.Outputs) != 2 {
		return reject(RejectOutputs, "hard fork 12+ v2 tx must have exactly two outputs, got %d", len(tx.Outputs))
	}

	var sum uint64
	for _, o := range tx.Outputs {
		if tx.Version == 1 {
			if o.Amount == 0 {
				return reject(RejectOutputAmount, "v1 output amount must be non-zero")
			}
			if fork >= 2 && !isDecomposedAmount(o.Amount) {
				return reject(RejectOutputAmount, "v1 output amount %d not decomposed at hard fork %d", o.Amount, fork)
			}
		} else if o.Amount != 0 {
			return reject(RejectOutputAmount, "v2 output amount must be hidden (zero) under RingCT")
		}
		if sum+o.Amount < sum {
			return reject(RejectOutputAmount, "output amount sum overflows u64")
		}
		sum += o.Amount
		if o.Key == ([32]byte{}) {
			return reject(RejectOutputType, "zero output key")
		}
	}

	if r := verifyOutputTypes(tx.Outputs, fork); r != nil {
		return r
	}
	return nil
}

// isDecomposedAmount reports whether amount is a single significant decimal
// digit (1-9) times a power of ten (spec §4.13's decomposed-amount
// constraint), e.g. 7, 70, 7000000, but not 15, 23, or 0.
func isDecomposedAmount(amount uint64) bool {
	if amount == 0 {
		return false
	}
	for amount%10 == 0 {
		amount /= 10
	}
	return amount >= 1 && amount <= 9
}

// verifyOutputTypes checks the output-type table shared by miner and
// regular transactions: hard fork 15 requires every output to carry the
// view-tag byte (TaggedKey), earlier forks forbid it.
func verifyOutputTypes(outs []chainmodel.TxOut, fork uint8) *Rejection {
	for i, o := range outs {
		if fork >= 15 && !o.TaggedKey {
			return reject(RejectOutputType, "output %d missing required view tag at hard fork %d", i, fork)
		}
		if fork < 15 && o.TaggedKey {
			return reject(RejectOutputType, "output %d carries a view tag before hard fork 15", i)
		}
	}
	return nil
}

// verifyUnlockTime applies spec §4.13's dual interpretation: a value below
// unlockTimeIsHeightBelow is a block height, otherwise a Unix timestamp.
// hf13 compares timestamps against the median rather than raw NowUnix.
func verifyUnlockTime(tx *chainmodel.Tx, cctx Context) *Rejection {
	if tx.UnlockTime == 0 {
		return nil
	}
	height := cctx.Height()

	if tx.UnlockTime < unlockTimeIsHeightBelow {
		if height+1 < tx.UnlockTime {
			return reject(RejectUnlockTime, "locked until height %d, chain at %d", tx.UnlockTime, height)
		}
		return nil
	}

	fork := cctx.HardFork()
	now := uint64(cctx.NowUnix())
	if fork >= 13 {
		if median, ok := cctx.MedianTimestamp(60); ok {
			now = median
		}
	}
	if now < tx.UnlockTime {
		return reject(RejectUnlockTime, "locked until timestamp %d, now %d", tx.UnlockTime, now)
	}
	return nil
}

// ringCTWindow records the [from, to) hard-fork range a RingCT type is
// permitted in; to==0 means "still current". hf10's Bulletproof2 carries
// two grandfathered Bulletproof1 transactions the spec explicitly
// tolerates past its nominal end — not modeled here since this package
// has no per-transaction identity to special-case against.
var ringCTWindows = map[chainmodel.RingCTType][2]uint8{
	chainmodel.RingCTFull:           {4, 9},
	chainmodel.RingCTSimple:         {4, 9},
	chainmodel.RingCTBulletproof:    {8, 11},
	chainmodel.RingCTBulletproof2:   {10, 13},
	chainmodel.RingCTCLSAG:          {13, 15},
	chainmodel.RingCTBulletproofPlus: {15, 0},
}

func verifyRingCTType(tx *chainmodel.Tx, fork uint8) *Rejection {
	if tx.Version == 1 {
		if tx.RingCT != chainmodel.RingCTNone {
			return reject(RejectRingCT, "v1 tx must not carry a RingCT type")
		}
		return nil
	}

	if tx.RingCT == chainmodel.RingCTNull {
		// Null is the miner transaction's own sentinel type (verifyMinerRingCT
		// handles it there, unconditionally on hard fork). A regular
		// transaction may never carry it, at any hard fork.
		return reject(RejectRingCT, "null RingCT type is permitted on the miner transaction only")
	}

	win, known := ringCTWindows[tx.RingCT]
	if !known {
		return reject(RejectRingCT, "unknown RingCT type %d", tx.RingCT)
	}
	if fork < win[0] || (win[1] != 0 && fork >= win[1]) {
		return reject(RejectRingCT, "RingCT type %d not permitted at hard fork %d", tx.RingCT, fork)
	}

	if tx.RingCT != chainmodel.RingCTFull {
		if len(tx.PseudoOuts) != len(tx.Inputs) {
			return reject(RejectRingCT, "non-Full RingCT requires one pseudo-out per input")
		}
	}
	return nil
}

func verifySignatures(ctx context.Context, tx *chainmodel.Tx, sigs SignatureVerifier) *Rejection {
	if tx.Version == 1 {
		if err := sigs.VerifyRingSignature(tx); err != nil {
			return reject(RejectRingSignature, "%v", err)
		}
		return nil
	}
	if err := sigs.VerifyRingCT(tx); err != nil {
		return reject(RejectRingCT, "%v", err)
	}
	return nil
}
