package txpool

import (
	"encoding/binary"

	"github.com/cuprate/cuprate/internal/chainmodel"
	"github.com/cuprate/cuprate/internal/cuperrors"
)

// entryCodec (de)serializes Entry as a fixed-header-plus-blob record: hash,
// weight, fee, arrival time, state, then the variable-length tx blob.
type entryCodec struct{}

const entryHeaderSize = 32 + 8 + 8 + 8 + 1

func (entryCodec) Encode(v Entry) []byte {
	buf := make([]byte, entryHeaderSize+len(v.Blob))
	copy(buf[0:32], v.Hash[:])
	binary.BigEndian.PutUint64(buf[32:40], v.Weight)
	binary.BigEndian.PutUint64(buf[40:48], v.Fee)
	binary.BigEndian.PutUint64(buf[48:56], uint64(v.ArrivalUnix))
	buf[56] = byte(v.State)
	copy(buf[entryHeaderSize:], v.Blob)
	return buf
}

func (entryCodec) Decode(b []byte) (Entry, error) {
	var v Entry
	if len(b) < entryHeaderSize {
		return v, cuperrors.New(cuperrors.ERR_FORMAT, "txpool: truncated entry record (%d bytes)", len(b))
	}
	copy(v.Hash[:], b[0:32])
	v.Weight = binary.BigEndian.Uint64(b[32:40])
	v.Fee = binary.BigEndian.Uint64(b[40:48])
	v.ArrivalUnix = int64(binary.BigEndian.Uint64(b[48:56]))
	v.State = DandelionState(b[56])
	if n := len(b) - entryHeaderSize; n > 0 {
		v.Blob = append([]byte(nil), b[entryHeaderSize:]...)
	}
	return v, nil
}

// feeIndexKey orders Range scans by descending fee rate: the rate is
// bit-complemented so that ascending byte order (what Range always walks)
// visits the highest fee rate first, breaking ties by hash for a total
// order (spec §9's multimap-substitution idiom, same as
// database.AmountIndexKey).
type feeIndexKey struct {
	InvRate uint64
	Hash    chainmodel.Hash
}

func newFeeIndexKey(rate uint64, hash chainmodel.Hash) feeIndexKey {
	return feeIndexKey{InvRate: ^rate, Hash: hash}
}

type feeIndexKeyCodec struct{}

func (feeIndexKeyCodec) Encode(k feeIndexKey) []byte {
	buf := make([]byte, 8+32)
	binary.BigEndian.PutUint64(buf[0:8], k.InvRate)
	copy(buf[8:40], k.Hash[:])
	return buf
}

func (feeIndexKeyCodec) Decode(b []byte) (feeIndexKey, error) {
	var k feeIndexKey
	if len(b) != 40 {
		return k, cuperrors.New(cuperrors.ERR_FORMAT, "txpool: bad fee index key length %d", len(b))
	}
	k.InvRate = binary.BigEndian.Uint64(b[0:8])
	copy(k.Hash[:], b[8:40])
	return k, nil
}

// stateIndexKey groups pooled transactions by Dandelion++ state so
// promote_to_fluff and the relay loop can scan one state's worth at a time.
type stateIndexKey struct {
	State DandelionState
	Hash  chainmodel.Hash
}

type stateIndexKeyCodec struct{}

func (stateIndexKeyCodec) Encode(k stateIndexKey) []byte {
	buf := make([]byte, 1+32)
	buf[0] = byte(k.State)
	copy(buf[1:33], k.Hash[:])
	return buf
}

func (stateIndexKeyCodec) Decode(b []byte) (stateIndexKey, error) {
	var k stateIndexKey
	if len(b) != 33 {
		return k, cuperrors.New(cuperrors.ERR_FORMAT, "txpool: bad state index key length %d", len(b))
	}
	k.State = DandelionState(b[0])
	copy(k.Hash[:], b[1:33])
	return k, nil
}
