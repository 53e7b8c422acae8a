// Package txpool implements the mempool schema and operations of spec
// §4.5: transactions held pending inclusion in a block, indexed by fee
// rate (for block template assembly) and by Dandelion++ relay state (for
// the stem-to-fluff promotion C11 drives).
package txpool

import "github.com/cuprate/cuprate/internal/chainmodel"

// DandelionState is a mempool transaction's position in the Dandelion++
// stem/fluff state machine (spec §3 "Mempool transaction", §4.11).
type DandelionState uint8

const (
	// StateLocal is a transaction originated by this node, not yet relayed.
	StateLocal DandelionState = iota
	// StateStem is being relayed along the current epoch's stem path.
	StateStem
	// StateFluff has entered (or originated in) the fluff phase: ordinary
	// diffusion broadcast, fully visible in block template candidates.
	StateFluff
)

// Entry is one pooled transaction (spec §3 "Mempool transaction"): the
// pruned transaction bytes, its weight and fee for ordering, arrival time,
// and current Dandelion++ relay state.
type Entry struct {
	Hash       chainmodel.Hash
	Blob       []byte // opaque serialized transaction, per chainmodel's scope note
	Weight     uint64
	Fee        uint64
	ArrivalUnix int64
	State      DandelionState
}

// FeePerWeight is the fixed-point fee-rate used to order block template
// candidates (spec §4.5 "indices on fee-per-weight"): fee scaled up before
// dividing by weight so the integer result keeps enough precision to order
// transactions the same way the reference daemon's float comparison would.
func (e Entry) FeePerWeight() uint64 {
	if e.Weight == 0 {
		return 0
	}
	const scale = 1 << 20
	return (e.Fee * scale) / e.Weight
}
