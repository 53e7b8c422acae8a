package database

import "github.com/cuprate/cuprate/internal/cuperrors"

// Codec (de)serializes a fixed-layout key or value type to/from bytes.
// Zero-copy on write means Encode should return a fresh byte slice built
// directly from the value's fields (a cast in spirit, not in the unsafe
// sense Go forbids); copy-on-read means Decode always receives an owned
// byte slice the table already copied out of the backend.
type Codec[T any] interface {
	Encode(T) []byte
	Decode([]byte) (T, error)
}

// TypedTable adapts a raw Table to a strongly-typed K→V view, the same
// "typed at use" contract spec §4.3 describes: tables are opened by name
// and given a type at the call site.
type TypedTable[K, V any] struct {
	raw   Table
	kcode Codec[K]
	vcode Codec[V]
}

func NewTypedTable[K, V any](raw Table, kcode Codec[K], vcode Codec[V]) *TypedTable[K, V] {
	return &TypedTable[K, V]{raw: raw, kcode: kcode, vcode: vcode}
}

func (t *TypedTable[K, V]) Get(key K) (V, bool, error) {
	var zero V
	raw, found, err := t.raw.Get(t.kcode.Encode(key))
	if err != nil || !found {
		return zero, found, err
	}
	v, err := t.vcode.Decode(raw)
	return v, true, err
}

func (t *TypedTable[K, V]) MustGet(key K) (V, error) {
	v, found, err := t.Get(key)
	if err != nil {
		return v, err
	}
	if !found {
		return v, cuperrors.New(cuperrors.ERR_NOT_FOUND, "database: key not found")
	}
	return v, nil
}

func (t *TypedTable[K, V]) Put(key K, value V) error {
	return t.raw.Put(t.kcode.Encode(key), t.vcode.Encode(value))
}

func (t *TypedTable[K, V]) Delete(key K) error {
	return t.raw.Delete(t.kcode.Encode(key))
}

func (t *TypedTable[K, V]) Exists(key K) (bool, error) {
	_, found, err := t.raw.Get(t.kcode.Encode(key))
	return found, err
}

// Range scans [start, end) in key order, decoding each pair.
func (t *TypedTable[K, V]) Range(start, end K, fn func(K, V) (bool, error)) error {
	return t.raw.Range(t.kcode.Encode(start), t.kcode.Encode(end), func(k, v []byte) (bool, error) {
		dk, err := t.kcode.Decode(k)
		if err != nil {
			return false, err
		}
		dv, err := t.vcode.Decode(v)
		if err != nil {
			return false, err
		}
		return fn(dk, dv)
	})
}

// TypedReadTable is the read-only counterpart of TypedTable, for use inside
// a ReadTx where no Put/Delete is available.
type TypedReadTable[K, V any] struct {
	raw   ReadTable
	kcode Codec[K]
	vcode Codec[V]
}

func NewTypedReadTable[K, V any](raw ReadTable, kcode Codec[K], vcode Codec[V]) *TypedReadTable[K, V] {
	return &TypedReadTable[K, V]{raw: raw, kcode: kcode, vcode: vcode}
}

func (t *TypedReadTable[K, V]) Get(key K) (V, bool, error) {
	var zero V
	raw, found, err := t.raw.Get(t.kcode.Encode(key))
	if err != nil || !found {
		return zero, found, err
	}
	v, err := t.vcode.Decode(raw)
	return v, true, err
}

func (t *TypedReadTable[K, V]) Range(start, end K, fn func(K, V) (bool, error)) error {
	return t.raw.Range(t.kcode.Encode(start), t.kcode.Encode(end), func(k, v []byte) (bool, error) {
		dk, err := t.kcode.Decode(k)
		if err != nil {
			return false, err
		}
		dv, err := t.vcode.Decode(v)
		if err != nil {
			return false, err
		}
		return fn(dk, dv)
	})
}
