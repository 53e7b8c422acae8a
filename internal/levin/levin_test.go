package levin

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestHandshakeHeaderDecode is spec §8 scenario 4: a Handshake request with
// an empty body must decode to command 1001, flags=request, and round-trip.
func TestHandshakeHeaderDecode(t *testing.T) {
	raw := []byte{
		0x01, 0x21, 0x01, 0x01, 0x01, 0x01, 0x01, 0x01, // signature
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // body size = 0
		0x01,                   // expect-response
		0xE9, 0x03, 0x00, 0x00, // command = 1001 LE
		0x00, 0x00, 0x00, 0x00, // return code = 0
		0x01, 0x00, 0x00, 0x00, // flags = request
		0x01, 0x00, 0x00, 0x00, // protocol version = 1
	}

	h, err := DecodeHeader(raw, 1<<20)
	require.NoError(t, err)
	require.Equal(t, CmdHandshake, h.Command)
	require.True(t, h.ExpectResponse)
	require.Equal(t, FlagRequest, h.Flags)
	require.Equal(t, uint64(0), h.BodySize)

	roundTripped := EncodeHeader(h)
	require.Equal(t, raw, roundTripped)
}

func TestHandshakeMessageRoundTrip(t *testing.T) {
	req := &HandshakeRequest{
		Node: BasicNodeData{PeerID: 42, MyPort: 18080},
		Sync: CoreSyncData{CurrentHeight: 100},
	}
	frame, err := EncodeRequest(CmdHandshake, req)
	require.NoError(t, err)

	h, err := DecodeHeader(frame[:HeaderSize], 1<<20)
	require.NoError(t, err)
	require.Equal(t, CmdHandshake, h.Command)

	out := &HandshakeRequest{}
	require.NoError(t, Decode(frame[HeaderSize:], out))
	require.Equal(t, req.Node.PeerID, out.Node.PeerID)
	require.Equal(t, req.Sync.CurrentHeight, out.Sync.CurrentHeight)
}

func TestReassemblerSinglePacket(t *testing.T) {
	re := NewReassembler(1 << 20)
	h := Header{Flags: FlagStartFragment | FlagEndFragment}
	b, err := re.Feed(h, []byte("payload"))
	require.NoError(t, err)
	require.NotNil(t, b)
	require.Equal(t, []byte("payload"), b.Body)
}

func TestReassemblerFragmented(t *testing.T) {
	re := NewReassembler(1 << 20)

	start := Header{Flags: FlagStartFragment}
	mid := Header{Flags: 0}
	end := Header{Flags: FlagEndFragment}

	b, err := re.Feed(start, []byte("hel"))
	require.NoError(t, err)
	require.Nil(t, b)

	b, err = re.Feed(mid, []byte("lo "))
	require.NoError(t, err)
	require.Nil(t, b)

	b, err = re.Feed(end, []byte("world"))
	require.NoError(t, err)
	require.NotNil(t, b)
	require.Equal(t, "hello world", string(b.Body))
}

func TestReassemblerDummyDiscarded(t *testing.T) {
	re := NewReassembler(1 << 20)
	b, err := re.Feed(Header{Flags: FlagDummy}, []byte("ignored"))
	require.NoError(t, err)
	require.Nil(t, b)
}

func TestDecodeHeaderRejectsBadSignature(t *testing.T) {
	raw := make([]byte, HeaderSize)
	_, err := DecodeHeader(raw, 1<<20)
	require.Error(t, err)
}

func TestIPv4LittleEndian(t *testing.T) {
	// 1.2.3.4 as a little-endian u32 is 0x04030201.
	addr := uint32(0x04030201)
	buf := EncodeIPv4(addr)
	require.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, buf)
	require.Equal(t, addr, DecodeIPv4(buf))
}
