// Package verifier implements spec §4.13's two operations, verify_block
// and verify_txs, against a Context supplied by the rolling-window state
// of C14. Every failure path returns a typed RejectReason rather than a
// generic error, and nothing here ever retries: a rejected block or
// transaction is the caller's problem to ban or discard.
package verifier

import "fmt"

// RejectReason classifies why verify_block/verify_txs refused to accept
// something (spec §4.13 "failures surface as a typed RejectReason enum").
type RejectReason string

const (
	RejectVersion          RejectReason = "version"
	RejectSize             RejectReason = "size"
	RejectTxCount          RejectReason = "tx_count"
	RejectDuplicateTx      RejectReason = "duplicate_tx"
	RejectUnresolvedTx     RejectReason = "unresolved_tx"
	RejectMerkleRoot       RejectReason = "merkle_root"
	RejectPrevHash         RejectReason = "prev_hash"
	RejectTimestamp        RejectReason = "timestamp"
	RejectProofOfWork      RejectReason = "proof_of_work"
	RejectMinerTx          RejectReason = "miner_tx"
	RejectTxVersion        RejectReason = "tx_version"
	RejectTxSize           RejectReason = "tx_size"
	RejectEmptyInputs      RejectReason = "empty_inputs"
	RejectInputType        RejectReason = "input_type"
	RejectDuplicateKeyImage RejectReason = "duplicate_key_image"
	RejectKeyImage         RejectReason = "key_image_not_canonical"
	RejectRingMembers      RejectReason = "ring_members"
	RejectRingSize         RejectReason = "ring_size"
	RejectInputOrder       RejectReason = "input_order"
	RejectOutputs          RejectReason = "outputs"
	RejectOutputAmount     RejectReason = "output_amount"
	RejectOutputType       RejectReason = "output_type"
	RejectUnlockTime       RejectReason = "unlock_time"
	RejectRingSignature    RejectReason = "ring_signature"
	RejectRingCT           RejectReason = "ringct"
)

// Rejection pairs a reason with a human-readable detail for logs.
type Rejection struct {
	Reason RejectReason
	Detail string
}

func (r *Rejection) Error() string {
	if r.Detail == "" {
		return string(r.Reason)
	}
	return fmt.Sprintf("%s: %s", r.Reason, r.Detail)
}

func reject(reason RejectReason, format string, args ...interface{}) *Rejection {
	return &Rejection{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}
