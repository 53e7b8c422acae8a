// Package chainmodel defines the shared Monero data types of spec §3: the
// block, transaction, and their constituent pieces, used by the storage
// schema (C4/C5), the consensus verifier (C13/C14), and the RPC layer
// (C15). Centralizing them here (rather than duplicating per consumer)
// keeps block/transaction hashing, weight, and field semantics consistent
// everywhere they're read.
//
// Binary wire (de)serialization of the exact upstream varint transaction
// format is treated as an external concern reached through Tx.PrunedBlob /
// Tx.PrunableBlob (opaque, already-serialized bytes): this package works
// with decoded structured fields directly. Full reimplementation of the
// historical Monero binary transaction grammar is outside the sixteen
// components spec.md enumerates (§2) and is not attempted here.
package chainmodel

// Hash is a 32-byte block or transaction identifier.
type Hash [32]byte

// KeyImage is the deterministic group element proving a specific output
// was spent (glossary).
type KeyImage [32]byte

// RingCTType enumerates the confidential-transaction sub-protocols of spec
// §3/§4.13.
type RingCTType uint8

const (
	RingCTNone RingCTType = iota
	RingCTFull
	RingCTSimple
	RingCTBulletproof
	RingCTBulletproof2
	RingCTCLSAG
	RingCTBulletproofPlus
	// RingCTNull marks a v2 miner transaction's single null-RCT signature
	// (spec §4.13): permitted on the miner transaction only, never on a
	// regular one, at any hard fork (see consensus/verifier's
	// verifyMinerRingCT for the hard-fork-window decision this resolves).
	RingCTNull
)

// TxIn is a key-type input: a key image plus the absolute global output
// indices making up its decoy ring (spec §4.13).
type TxIn struct {
	KeyImage KeyImage
	RingMembers []uint64 // absolute output indices, ascending-offset encoded on the wire
}

// TxOut is one transaction output.
type TxOut struct {
	Key        [32]byte
	Amount     uint64 // 0 for RingCT outputs (amount hidden in Commitment)
	Commitment [32]byte
	TaggedKey  bool // hard-fork 15+ output type (spec §4.13)
}

// BlockHeader carries the fields of spec §3.
type BlockHeader struct {
	MajorVersion uint8
	MinorVersion uint8
	Timestamp    uint64
	PrevID       Hash
	Nonce        uint32
}

// Tx is a full transaction: version, unlock-time, inputs, outputs,
// signatures (spec §3). Signature material is kept opaque (RingSigBlob /
// RctSigBlob) since verification (C13) treats ring-signature and RingCT
// proof checking as calls into the external elliptic-curve library (spec
// §1); only the fields verification logic itself branches on (ring sizes,
// RingCT type, pseudo-outs, output commitments) are modeled structurally.
type Tx struct {
	Version    uint8 // 1 or 2
	UnlockTime uint64
	Inputs     []TxIn
	Outputs    []TxOut
	RingCT     RingCTType
	PseudoOuts [][32]byte // non-Full RingCT: one per input
	Fee        uint64

	RingSigBlob []byte // v1 ring signature bytes, opaque
	RctSigBlob  []byte // RingCT proof bytes (MLSAG/CLSAG/BP(+)), opaque

	PrunedBlob   []byte // version/inputs/outputs — always retained
	PrunableBlob []byte // signatures — dropped under pruning retention
}

// IsGenerator reports whether in is a miner-input placeholder ("generator
// type" input of spec §4.13), identified here by an empty key image alone.
// The single synthetic ring member carrying the block height is not
// checked here; the verifier's miner-tx rules check it.
func (t TxIn) IsGenerator() bool { return t.KeyImage == KeyImage{} }

// Block is (header, miner transaction, transaction hash list) per spec §3.
type Block struct {
	Header   BlockHeader
	MinerTx  Tx
	TxIDs    []Hash // transaction hash list, miner tx excluded
}

// BlockInfo is the per-height chain metadata of spec §4.4's BlockInfos
// table: cumulative difficulty, cumulative generated coins, cumulative
// RingCT output count, block weight, long-term weight, stored per height.
type BlockInfo struct {
	Timestamp            uint64
	GeneratedCoins       uint64
	CumulativeGenerated  uint64
	Weight               uint64
	LongTermWeight       uint64
	CumulativeDiffLo     uint64
	CumulativeDiffHi     uint64
	Hash                 Hash
	CumulativeRctOutputs uint64
}
