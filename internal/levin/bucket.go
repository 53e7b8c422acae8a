// Package levin implements Monero's "Levin" bucket framing (spec §4.2): a
// fixed 33-byte header followed by an epee-encoded body, with admin
// (request/response) and protocol (notification) command families layered
// on top. This is C2.
package levin

import (
	"encoding/binary"
	"io"

	"github.com/cuprate/cuprate/internal/cuperrors"
)

const (
	HeaderSize = 33

	Signature uint64 = 0x0101010101012101
	ProtocolVersion uint32 = 1
)

// Flags, bitwise combinable. Dummy is its own bit rather than a
// combination of Start/End: the peer connection's writer marks every
// unfragmented bucket Start|End, so reusing that combination for Dummy
// would make every such message indistinguishable from a keep-alive.
// EncodeRequest, EncodeResponse and EncodeNotification set no fragment
// flag; the Reassembler takes both forms as a single-bucket message.
// Dummy buckets are discarded by the reader (spec §4.2).
const (
	FlagRequest       uint32 = 1
	FlagResponse      uint32 = 2
	FlagStartFragment uint32 = 4
	FlagEndFragment   uint32 = 8
	FlagDummy         uint32 = 16
)

// Command identifies the message type; admin commands are 1001-1007,
// protocol (notification) commands are 2001-2010.
type Command uint32

const (
	CmdHandshake Command = 1001
	CmdTimedSync Command = 1002
	CmdPing      Command = 1003
	// 1004-1006 reserved by the reference protocol (stat info / network
	// state / peer id, all removed from the modern wire protocol).
	CmdRequestSupportFlags Command = 1007

	CmdNewBlock              Command = 2001
	CmdNewTransactions       Command = 2002
	CmdRequestGetObjects     Command = 2003
	CmdResponseGetObjects    Command = 2004
	CmdRequestChain          Command = 2006
	CmdResponseChainEntry    Command = 2007
	CmdNewFluffyBlock        Command = 2008
	CmdRequestFluffyMissingTx Command = 2009
	CmdGetTxpoolCompliment   Command = 2010
)

func (c Command) IsAdmin() bool    { return c >= 1001 && c <= 1007 }
func (c Command) IsProtocol() bool { return c >= 2001 && c <= 2010 }

// Header is the fixed 33-byte Levin bucket header.
type Header struct {
	Signature       uint64
	BodySize        uint64
	ExpectResponse  bool
	Command         Command
	ReturnCode      int32
	Flags           uint32
	ProtocolVersion uint32
}

// EncodeHeader writes the 33-byte header per spec §4.2's offset table.
func EncodeHeader(h Header) []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint64(buf[0:8], h.Signature)
	binary.LittleEndian.PutUint64(buf[8:16], h.BodySize)
	if h.ExpectResponse {
		buf[16] = 1
	}
	binary.LittleEndian.PutUint32(buf[17:21], uint32(h.Command))
	binary.LittleEndian.PutUint32(buf[21:25], uint32(h.ReturnCode))
	binary.LittleEndian.PutUint32(buf[25:29], h.Flags)
	binary.LittleEndian.PutUint32(buf[29:33], h.ProtocolVersion)
	return buf
}

// DecodeHeader parses a 33-byte header, validating the signature and
// protocol version. maxBodySize bounds BodySize against the configured
// bucket-size cap (spec §5).
func DecodeHeader(buf []byte, maxBodySize uint64) (Header, error) {
	if len(buf) != HeaderSize {
		return Header{}, cuperrors.New(cuperrors.ERR_FORMAT, "levin: header must be %d bytes, got %d", HeaderSize, len(buf))
	}

	h := Header{
		Signature:       binary.LittleEndian.Uint64(buf[0:8]),
		BodySize:        binary.LittleEndian.Uint64(buf[8:16]),
		ExpectResponse:  buf[16] != 0,
		Command:         Command(binary.LittleEndian.Uint32(buf[17:21])),
		ReturnCode:      int32(binary.LittleEndian.Uint32(buf[21:25])),
		Flags:           binary.LittleEndian.Uint32(buf[25:29]),
		ProtocolVersion: binary.LittleEndian.Uint32(buf[29:33]),
	}

	if h.Signature != Signature {
		return Header{}, cuperrors.New(cuperrors.ERR_PROTOCOL_VIOLATION, "levin: bad bucket signature 0x%x", h.Signature)
	}
	if h.ProtocolVersion != ProtocolVersion {
		return Header{}, cuperrors.New(cuperrors.ERR_PROTOCOL_VIOLATION, "levin: bad protocol version %d", h.ProtocolVersion)
	}
	if h.BodySize > maxBodySize {
		return Header{}, cuperrors.New(cuperrors.ERR_TOO_LARGE, "levin: body size %d exceeds cap %d", h.BodySize, maxBodySize)
	}

	return h, nil
}

func (h Header) IsDummy() bool { return h.Flags&FlagDummy == FlagDummy }
func (h Header) IsStart() bool { return h.Flags&FlagStartFragment != 0 }
func (h Header) IsEnd() bool   { return h.Flags&FlagEndFragment != 0 }

// Bucket is a decoded header plus its (possibly reassembled) body.
type Bucket struct {
	Header Header
	Body   []byte
}

// Reassembler accumulates fragmented buckets (start-fragment … end-fragment)
// into complete logical messages, per spec §4.2.
type Reassembler struct {
	active  bool
	header  Header
	body    []byte
	maxSize uint64
}

func NewReassembler(maxSize uint64) *Reassembler { return &Reassembler{maxSize: maxSize} }

// Feed processes one decoded bucket and returns a complete Bucket once a
// (possibly single, unfragmented) logical message finishes assembling.
func (re *Reassembler) Feed(h Header, body []byte) (*Bucket, error) {
	if h.IsDummy() {
		return nil, nil
	}

	if h.IsStart() && h.IsEnd() {
		// Not fragmented at all: single-bucket message.
		return &Bucket{Header: h, Body: body}, nil
	}

	if !h.IsStart() && !h.IsEnd() && !re.active {
		// No fragment flags and no fragment in progress: single-bucket message.
		return &Bucket{Header: h, Body: body}, nil
	}

	if h.IsStart() {
		re.active = true
		re.header = h
		re.body = append([]byte(nil), body...)
		return nil, nil
	}

	if !re.active {
		return nil, cuperrors.New(cuperrors.ERR_PROTOCOL_VIOLATION, "levin: continuation fragment with no start fragment")
	}

	re.body = append(re.body, body...)
	if uint64(len(re.body)) > re.maxSize {
		re.active = false
		return nil, cuperrors.New(cuperrors.ERR_TOO_LARGE, "levin: reassembled message exceeds cap %d", re.maxSize)
	}

	if h.IsEnd() {
		out := &Bucket{Header: re.header, Body: re.body}
		re.active = false
		re.header = Header{}
		re.body = nil
		return out, nil
	}

	return nil, nil
}

// ReadBucketHeader reads exactly one 33-byte header from r.
func ReadBucketHeader(r io.Reader, maxBodySize uint64) (Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Header{}, cuperrors.New(cuperrors.ERR_IO, "levin: short read of header", err)
	}
	return DecodeHeader(buf, maxBodySize)
}

// ReadBucketBody reads a bucket's body given its header.
func ReadBucketBody(r io.Reader, h Header) ([]byte, error) {
	buf := make([]byte, h.BodySize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, cuperrors.New(cuperrors.ERR_IO, "levin: short read of body", err)
	}
	return buf, nil
}
