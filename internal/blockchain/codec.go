package blockchain

import (
	"encoding/binary"

	"github.com/cuprate/cuprate/internal/chainmodel"
	"github.com/cuprate/cuprate/internal/cuperrors"
)

// blockInfoCodec (de)serializes chainmodel.BlockInfo as a fixed-layout
// record (spec §4.4, §4.3 "fixed-layout plain-old-data").
type blockInfoCodec struct{}

const blockInfoSize = 8*8 + 32

func (blockInfoCodec) Encode(v chainmodel.BlockInfo) []byte {
	buf := make([]byte, blockInfoSize)
	binary.BigEndian.PutUint64(buf[0:8], v.Timestamp)
	binary.BigEndian.PutUint64(buf[8:16], v.GeneratedCoins)
	binary.BigEndian.PutUint64(buf[16:24], v.CumulativeGenerated)
	binary.BigEndian.PutUint64(buf[24:32], v.Weight)
	binary.BigEndian.PutUint64(buf[32:40], v.LongTermWeight)
	binary.BigEndian.PutUint64(buf[40:48], v.CumulativeDiffLo)
	binary.BigEndian.PutUint64(buf[48:56], v.CumulativeDiffHi)
	copy(buf[56:88], v.Hash[:])
	binary.BigEndian.PutUint64(buf[88:96], v.CumulativeRctOutputs)
	return buf
}

func (blockInfoCodec) Decode(b []byte) (chainmodel.BlockInfo, error) {
	var v chainmodel.BlockInfo
	if len(b) != blockInfoSize {
		return v, cuperrors.New(cuperrors.ERR_FORMAT, "blockchain: bad BlockInfo record size %d", len(b))
	}
	v.Timestamp = binary.BigEndian.Uint64(b[0:8])
	v.GeneratedCoins = binary.BigEndian.Uint64(b[8:16])
	v.CumulativeGenerated = binary.BigEndian.Uint64(b[16:24])
	v.Weight = binary.BigEndian.Uint64(b[24:32])
	v.LongTermWeight = binary.BigEndian.Uint64(b[32:40])
	v.CumulativeDiffLo = binary.BigEndian.Uint64(b[40:48])
	v.CumulativeDiffHi = binary.BigEndian.Uint64(b[48:56])
	copy(v.Hash[:], b[56:88])
	v.CumulativeRctOutputs = binary.BigEndian.Uint64(b[88:96])
	return v, nil
}

// hashCodec adapts chainmodel.Hash to database.Codec.
type hashCodec struct{}

func (hashCodec) Encode(v chainmodel.Hash) []byte { return v[:] }
func (hashCodec) Decode(b []byte) (chainmodel.Hash, error) {
	var h chainmodel.Hash
	if len(b) != 32 {
		return h, cuperrors.New(cuperrors.ERR_FORMAT, "blockchain: bad hash length %d", len(b))
	}
	copy(h[:], b)
	return h, nil
}

// outputRecordCodec (de)serializes the Outputs table's value: key, height,
// tx id, locked flag (spec §4.4).
type outputRecordCodec struct{}

type outputRecord struct {
	Key    [32]byte
	Height uint64
	TxID   uint64
	Locked bool
}

func (outputRecordCodec) Encode(v outputRecord) []byte {
	buf := make([]byte, 32+8+8+1)
	copy(buf[0:32], v.Key[:])
	binary.BigEndian.PutUint64(buf[32:40], v.Height)
	binary.BigEndian.PutUint64(buf[40:48], v.TxID)
	if v.Locked {
		buf[48] = 1
	}
	return buf
}

func (outputRecordCodec) Decode(b []byte) (outputRecord, error) {
	var v outputRecord
	if len(b) != 49 {
		return v, cuperrors.New(cuperrors.ERR_FORMAT, "blockchain: bad output record size %d", len(b))
	}
	copy(v.Key[:], b[0:32])
	v.Height = binary.BigEndian.Uint64(b[32:40])
	v.TxID = binary.BigEndian.Uint64(b[40:48])
	v.Locked = b[48] != 0
	return v, nil
}

// rctOutputRecordCodec adds a commitment field over outputRecord (spec
// §4.4 RctOutputs table).
type rctOutputRecordCodec struct{}

type rctOutputRecord struct {
	Key        [32]byte
	Commitment [32]byte
	Height     uint64
	TxID       uint64
	Locked     bool
}

func (rctOutputRecordCodec) Encode(v rctOutputRecord) []byte {
	buf := make([]byte, 32+32+8+8+1)
	copy(buf[0:32], v.Key[:])
	copy(buf[32:64], v.Commitment[:])
	binary.BigEndian.PutUint64(buf[64:72], v.Height)
	binary.BigEndian.PutUint64(buf[72:80], v.TxID)
	if v.Locked {
		buf[80] = 1
	}
	return buf
}

func (rctOutputRecordCodec) Decode(b []byte) (rctOutputRecord, error) {
	var v rctOutputRecord
	if len(b) != 81 {
		return v, cuperrors.New(cuperrors.ERR_FORMAT, "blockchain: bad rct output record size %d", len(b))
	}
	copy(v.Key[:], b[0:32])
	copy(v.Commitment[:], b[32:64])
	v.Height = binary.BigEndian.Uint64(b[64:72])
	v.TxID = binary.BigEndian.Uint64(b[72:80])
	v.Locked = b[80] != 0
	return v, nil
}

// uint64SliceCodec encodes the TxOutputs table's value: the vector of
// amount indices a transaction's outputs resolve to (spec §4.4).
type uint64SliceCodec struct{}

func (uint64SliceCodec) Encode(v []uint64) []byte {
	buf := make([]byte, 8*len(v))
	for i, x := range v {
		binary.BigEndian.PutUint64(buf[i*8:i*8+8], x)
	}
	return buf
}

func (uint64SliceCodec) Decode(b []byte) ([]uint64, error) {
	if len(b)%8 != 0 {
		return nil, cuperrors.New(cuperrors.ERR_FORMAT, "blockchain: bad uint64 slice length %d", len(b))
	}
	out := make([]uint64, len(b)/8)
	for i := range out {
		out[i] = binary.BigEndian.Uint64(b[i*8 : i*8+8])
	}
	return out, nil
}

// keyImageSliceCodec encodes the internal tx_key_images helper table's
// value: the key images one transaction spent, in input order.
type keyImageSliceCodec struct{}

func (keyImageSliceCodec) Encode(v []chainmodel.KeyImage) []byte {
	buf := make([]byte, 32*len(v))
	for i, k := range v {
		copy(buf[i*32:i*32+32], k[:])
	}
	return buf
}

func (keyImageSliceCodec) Decode(b []byte) ([]chainmodel.KeyImage, error) {
	if len(b)%32 != 0 {
		return nil, cuperrors.New(cuperrors.ERR_FORMAT, "blockchain: bad key image slice length %d", len(b))
	}
	out := make([]chainmodel.KeyImage, len(b)/32)
	for i := range out {
		copy(out[i][:], b[i*32:i*32+32])
	}
	return out, nil
}
