package peer

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuprate/cuprate/internal/epee"
	"github.com/cuprate/cuprate/internal/levin"
	"github.com/cuprate/cuprate/internal/settings"
	"github.com/cuprate/cuprate/internal/ulog"
)

func testSettings() *settings.Settings {
	return settings.New(settings.MapSource{
		"p2p_timedSyncInterval": "1h", // long enough not to fire during these tests
	})
}

func testPeer(t *testing.T, conn net.Conn, notify NotificationHandler) *Peer {
	t.Helper()
	log := ulog.New("peer-test", "error", false)
	addr := levin.NetworkAddress{Zone: levin.ZonePublic, IPv4: 0x0100007f, Port: 18080}
	return New(conn, addr, testSettings(), log, notify)
}

func TestCall_MatchesResponseByCommand(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	client := testPeer(t, clientConn, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)

	// Fake peer: read the request header+body, reply with a PingResponse.
	go func() {
		h, err := levin.ReadBucketHeader(serverConn, 1<<20)
		if err != nil {
			return
		}
		_, _ = levin.ReadBucketBody(serverConn, h)

		resp := &levin.PingResponse{Status: "OK", PeerID: 42}
		body, _ := epee.Marshal(resp)
		rh := levin.Header{
			Signature:       levin.Signature,
			BodySize:        uint64(len(body)),
			ExpectResponse:  false,
			Command:         levin.CmdPing,
			Flags:           levin.FlagResponse | levin.FlagStartFragment | levin.FlagEndFragment,
			ProtocolVersion: levin.ProtocolVersion,
		}
		_, _ = serverConn.Write(levin.EncodeHeader(rh))
		_, _ = serverConn.Write(body)
	}()

	callCtx, callCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer callCancel()
	body, err := client.Call(callCtx, levin.CmdPing, levin.CmdPing, &levin.PingRequest{})
	require.NoError(t, err)

	var resp levin.PingResponse
	require.NoError(t, epee.Unmarshal(body, &resp))
	assert.Equal(t, "OK", resp.Status)
	assert.Equal(t, uint64(42), resp.PeerID)
}

func TestRun_DispatchesNotificationToHandler(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	received := make(chan levin.Command, 1)
	notify := func(ctx context.Context, p *Peer, cmd levin.Command, b []byte) error {
		received <- cmd
		return nil
	}

	client := testPeer(t, clientConn, notify)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)

	body, err := epee.Marshal(&levin.GetTxpoolCompliment{})
	require.NoError(t, err)
	h := levin.Header{
		Signature:       levin.Signature,
		BodySize:        uint64(len(body)),
		ExpectResponse:  false,
		Command:         levin.CmdGetTxpoolCompliment,
		Flags:           levin.FlagRequest | levin.FlagStartFragment | levin.FlagEndFragment,
		ProtocolVersion: levin.ProtocolVersion,
	}
	_, err = serverConn.Write(levin.EncodeHeader(h))
	require.NoError(t, err)
	_, err = serverConn.Write(body)
	require.NoError(t, err)

	select {
	case cmd := <-received:
		assert.Equal(t, levin.CmdGetTxpoolCompliment, cmd)
	case <-time.After(2 * time.Second):
		t.Fatal("notification handler was never invoked")
	}
}

func TestFSM_RejectsAdmitBeforeHandshakeBegin(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	p := testPeer(t, clientConn, nil)
	assert.Equal(t, StateConnecting, p.State())
	assert.Error(t, p.Admit(context.Background()))

	require.NoError(t, p.BeginHandshake(context.Background()))
	assert.Equal(t, StateHandshaking, p.State())
	require.NoError(t, p.Admit(context.Background()))
	assert.Equal(t, StateReady, p.State())
}

func TestClose_UnblocksRun(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer serverConn.Close()

	p := testPeer(t, clientConn, nil)
	done := make(chan *Failure, 1)
	go func() { done <- p.Run(context.Background()) }()

	require.NoError(t, p.Close())

	select {
	case f := <-done:
		require.NotNil(t, f)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Close")
	}
}
