// Package epee implements Monero's self-describing binary TLV format (spec
// §4.1), used both as the Levin wire payload format (C2) and as the binary
// RPC encoding (C15). It follows the node's own manual (de)serialization
// idiom rather than reflection-heavy struct tags: every wire type implements
// a small build/write protocol, the same way the legacy p2p messages
// implement BsvEncode/Bsvdecode against an io.Reader/io.Writer.
package epee

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"

	"github.com/cuprate/cuprate/internal/cuperrors"
)

// Signature and version of the epee document header. Marshal and Unmarshal
// neither write nor check them: a document here starts directly with the
// root object's field count.
const (
	Signature uint32 = 0x01011101
	FormatVer byte   = 1
)

// Value tags. The high bit (ArrayFlag) marks an array of the base tag.
type Tag byte

const (
	TagInt64  Tag = 1
	TagInt32  Tag = 2
	TagInt16  Tag = 3
	TagInt8   Tag = 4
	TagUint64 Tag = 5
	TagUint32 Tag = 6
	TagUint16 Tag = 7
	TagUint8  Tag = 8
	TagDouble Tag = 9
	TagString Tag = 10 // length-prefixed byte string
	TagBool   Tag = 11
	TagObject Tag = 12 // recursive TLV map
	TagArray  Tag = 0x80 // combined with a base tag below this bit

	ArrayFlag Tag = 0x80
)

// DefaultMaxContainerLen bounds the byte length of every string, field name
// and fixed-width read, guarding against a peer claiming an absurd length
// (spec §4.1 TooLarge). Array element counts and object field counts are
// not checked against it.
const DefaultMaxContainerLen = 64 << 20

// Reader parses an epee byte stream. It owns its own bounds checking; all
// reads of variable-length data are bounds-checked against Limit.
type Reader struct {
	r     *bytes.Reader
	Limit int
}

func NewReader(data []byte) *Reader {
	return &Reader{r: bytes.NewReader(data), Limit: DefaultMaxContainerLen}
}

func (r *Reader) Len() int { return r.r.Len() }

func (r *Reader) readFull(n int) ([]byte, error) {
	if n < 0 || n > r.Limit {
		return nil, cuperrors.New(cuperrors.ERR_TOO_LARGE, "epee: container of %d bytes exceeds limit %d", n, r.Limit)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return nil, cuperrors.New(cuperrors.ERR_IO, "epee: short read", err)
	}
	return buf, nil
}

// ReadVarInt decodes epee's variable-length integer used for string and
// array lengths: the low two bits of the first byte select a 1/2/4/8-byte
// width, and the value fills the remaining bits (stored shifted left by 2).
func (r *Reader) ReadVarInt() (uint64, error) {
	first, err := r.r.ReadByte()
	if err != nil {
		return 0, cuperrors.New(cuperrors.ERR_IO, "epee: short read of varint", err)
	}
	width := 1 << (first & 0x03)
	if width == 1 {
		return uint64(first) >> 2, nil
	}
	if err := r.r.UnreadByte(); err != nil {
		return 0, cuperrors.New(cuperrors.ERR_IO, "epee: unread failed", err)
	}
	buf, err := r.readFull(width)
	if err != nil {
		return 0, err
	}
	var raw uint64
	switch width {
	case 2:
		raw = uint64(binary.LittleEndian.Uint16(buf))
	case 4:
		raw = uint64(binary.LittleEndian.Uint32(buf))
	case 8:
		raw = binary.LittleEndian.Uint64(buf)
	}
	return raw >> 2, nil
}

func (r *Reader) ReadTag() (Tag, error) {
	b, err := r.r.ReadByte()
	if err != nil {
		return 0, cuperrors.New(cuperrors.ERR_IO, "epee: short read of tag", err)
	}
	return Tag(b), nil
}

func (r *Reader) ReadString() (string, error) {
	n, err := r.ReadVarInt()
	if err != nil {
		return "", err
	}
	buf, err := r.readFull(int(n))
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

func (r *Reader) ReadFieldName() (string, error) {
	n, err := r.r.ReadByte()
	if err != nil {
		return "", cuperrors.New(cuperrors.ERR_IO, "epee: short read of field name length", err)
	}
	buf, err := r.readFull(int(n))
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

func (r *Reader) ReadBool() (bool, error) {
	b, err := r.r.ReadByte()
	if err != nil {
		return false, cuperrors.New(cuperrors.ERR_IO, "epee: short read of bool", err)
	}
	return b != 0, nil
}

func (r *Reader) ReadUint8() (uint8, error) {
	b, err := r.r.ReadByte()
	if err != nil {
		return 0, cuperrors.New(cuperrors.ERR_IO, "epee: short read of u8", err)
	}
	return b, nil
}

func (r *Reader) ReadUint16() (uint16, error) {
	buf, err := r.readFull(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(buf), nil
}

func (r *Reader) ReadUint32() (uint32, error) {
	buf, err := r.readFull(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf), nil
}

func (r *Reader) ReadUint64() (uint64, error) {
	buf, err := r.readFull(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf), nil
}

func (r *Reader) ReadInt64() (int64, error) {
	v, err := r.ReadUint64()
	return int64(v), err
}

func (r *Reader) ReadDouble() (float64, error) {
	v, err := r.ReadUint64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

// SkipValue discards a value of the given tag without interpreting it,
// implementing the "unknown fields are tolerated" contract of spec §4.1.
func (r *Reader) SkipValue(tag Tag) error {
	if tag&ArrayFlag != 0 {
		base := tag &^ ArrayFlag
		n, err := r.ReadVarInt()
		if err != nil {
			return err
		}
		for i := uint64(0); i < n; i++ {
			if err := r.skipScalar(base); err != nil {
				return err
			}
		}
		return nil
	}
	return r.skipScalar(tag)
}

func (r *Reader) skipScalar(tag Tag) error {
	switch tag {
	case TagInt64, TagUint64, TagDouble:
		_, err := r.readFull(8)
		return err
	case TagInt32, TagUint32:
		_, err := r.readFull(4)
		return err
	case TagInt16, TagUint16:
		_, err := r.readFull(2)
		return err
	case TagInt8, TagUint8, TagBool:
		_, err := r.readFull(1)
		return err
	case TagString:
		_, err := r.ReadString()
		return err
	case TagObject:
		return SkipObject(r)
	default:
		return cuperrors.New(cuperrors.ERR_FORMAT, "epee: unknown tag 0x%x", byte(tag))
	}
}

// SkipObject consumes a whole nested TLV map without building a value,
// reusing the same field-count-then-fields framing as ReadObjectFieldCount.
func SkipObject(r *Reader) error {
	n, err := r.ReadVarInt()
	if err != nil {
		return err
	}
	for i := uint64(0); i < n; i++ {
		if _, err := r.ReadFieldName(); err != nil {
			return err
		}
		tag, err := r.ReadTag()
		if err != nil {
			return err
		}
		if err := r.SkipValue(tag); err != nil {
			return err
		}
	}
	return nil
}

// ReadObjectFieldCount reads the field-count prefix of a TLV object/root.
func (r *Reader) ReadObjectFieldCount() (uint64, error) { return r.ReadVarInt() }
