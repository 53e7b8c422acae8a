package database

import (
	"encoding/binary"

	"github.com/cuprate/cuprate/internal/cuperrors"
)

// Uint64Codec encodes a uint64 big-endian so lexicographic byte order
// matches numeric order — required for Range scans over height/amount
// keys to iterate in ascending order (spec §9 "Multimap substitution").
type Uint64Codec struct{}

func (Uint64Codec) Encode(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

func (Uint64Codec) Decode(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, cuperrors.New(cuperrors.ERR_FORMAT, "database: expected 8-byte uint64 key, got %d", len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}

// Hash32Codec encodes a 32-byte hash verbatim (block hash, tx hash, key
// image, output key).
type Hash32Codec struct{}

func (Hash32Codec) Encode(v [32]byte) []byte { return v[:] }

func (Hash32Codec) Decode(b []byte) ([32]byte, error) {
	var out [32]byte
	if len(b) != 32 {
		return out, cuperrors.New(cuperrors.ERR_FORMAT, "database: expected 32-byte key, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}

// BytesCodec passes a variable-length byte vector through unchanged — the
// "byte vector" value kind of spec §4.3 for serialized blobs.
type BytesCodec struct{}

func (BytesCodec) Encode(v []byte) []byte { return v }
func (BytesCodec) Decode(b []byte) ([]byte, error) {
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// EmptyCodec encodes the unit value () used by set-like tables such as
// KeyImages, where only key presence matters (spec §4.4).
type EmptyCodec struct{}

func (EmptyCodec) Encode(struct{}) []byte            { return nil }
func (EmptyCodec) Decode([]byte) (struct{}, error) { return struct{}{}, nil }

// AmountIndexKey is the composite (amount, amount_index) primary key spec
// §4.4 uses for the Outputs table, substituting for the reference daemon's
// multimap-with-custom-sort idiom (spec §9): the two components are
// concatenated big-endian so a Range scan fixing the amount prefix emulates
// "iterate all outputs of this amount in index order".
type AmountIndexKey struct {
	Amount      uint64
	AmountIndex uint64
}

type AmountIndexKeyCodec struct{}

func (AmountIndexKeyCodec) Encode(k AmountIndexKey) []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[0:8], k.Amount)
	binary.BigEndian.PutUint64(buf[8:16], k.AmountIndex)
	return buf
}

func (AmountIndexKeyCodec) Decode(b []byte) (AmountIndexKey, error) {
	if len(b) != 16 {
		return AmountIndexKey{}, cuperrors.New(cuperrors.ERR_FORMAT, "database: expected 16-byte amount-index key, got %d", len(b))
	}
	return AmountIndexKey{
		Amount:      binary.BigEndian.Uint64(b[0:8]),
		AmountIndex: binary.BigEndian.Uint64(b[8:16]),
	}, nil
}

// AmountPrefix returns the [start, end) range covering every amount_index
// under amount, for a Range scan emulating duplicate-sort iteration.
func AmountPrefix(amount uint64) (start, end []byte) {
	start = AmountIndexKeyCodec{}.Encode(AmountIndexKey{Amount: amount, AmountIndex: 0})
	end = AmountIndexKeyCodec{}.Encode(AmountIndexKey{Amount: amount, AmountIndex: ^uint64(0)})
	endInclusive := make([]byte, len(end))
	copy(endInclusive, end)
	return start, incrementBytes(endInclusive)
}

func incrementBytes(b []byte) []byte {
	out := append([]byte(nil), b...)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i] != 0xFF {
			out[i]++
			return out
		}
		out[i] = 0
	}
	return append(out, 0)
}
