package epee

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/cuprate/cuprate/internal/cuperrors"
)

// Writer builds an epee byte stream. Callers declare an object's field
// count up front (WriteObjectFieldCount) then write each named field, per
// the write contract of spec §4.1.
type Writer struct {
	buf bytes.Buffer
}

func NewWriter() *Writer { return &Writer{} }

func (w *Writer) Bytes() []byte { return w.buf.Bytes() }

func (w *Writer) WriteVarInt(v uint64) {
	switch {
	case v < (1 << 6):
		w.buf.WriteByte(byte(v<<2) | 0x00)
	case v < (1 << 14):
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], uint16(v<<2)|0x01)
		w.buf.Write(b[:])
	case v < (1 << 30):
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(v<<2)|0x02)
		w.buf.Write(b[:])
	default:
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], (v<<2)|0x03)
		w.buf.Write(b[:])
	}
}

func (w *Writer) WriteTag(t Tag) { w.buf.WriteByte(byte(t)) }

func (w *Writer) WriteFieldName(name string) error {
	if len(name) > 255 {
		return cuperrors.New(cuperrors.ERR_TOO_LARGE, "epee: field name %q too long", name)
	}
	w.buf.WriteByte(byte(len(name)))
	w.buf.WriteString(name)
	return nil
}

func (w *Writer) WriteString(s string) { w.WriteVarInt(uint64(len(s))); w.buf.WriteString(s) }

func (w *Writer) WriteBool(b bool) {
	if b {
		w.buf.WriteByte(1)
	} else {
		w.buf.WriteByte(0)
	}
}

func (w *Writer) WriteUint8(v uint8)   { w.buf.WriteByte(v) }
func (w *Writer) WriteUint16(v uint16) { var b [2]byte; binary.LittleEndian.PutUint16(b[:], v); w.buf.Write(b[:]) }
func (w *Writer) WriteUint32(v uint32) { var b [4]byte; binary.LittleEndian.PutUint32(b[:], v); w.buf.Write(b[:]) }
func (w *Writer) WriteUint64(v uint64) { var b [8]byte; binary.LittleEndian.PutUint64(b[:], v); w.buf.Write(b[:]) }
func (w *Writer) WriteInt64(v int64)   { w.WriteUint64(uint64(v)) }
func (w *Writer) WriteDouble(v float64) { w.WriteUint64(math.Float64bits(v)) }

// WriteObjectFieldCount writes the field-count prefix an object or the
// document root begins with.
func (w *Writer) WriteObjectFieldCount(n int) { w.WriteVarInt(uint64(n)) }

// Field writes one field: its name, its tag, then whatever write emits.
// For a scalar that is the value; for an object or array field, write
// emits the field count and fields, or the element count and elements,
// using the lower-level primitives.
func (w *Writer) Field(name string, tag Tag, write func()) error {
	if err := w.WriteFieldName(name); err != nil {
		return err
	}
	w.WriteTag(tag)
	write()
	return nil
}
