package handshake

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuprate/cuprate/internal/levin"
	"github.com/cuprate/cuprate/internal/p2p/addressbook"
	"github.com/cuprate/cuprate/internal/p2p/peer"
	"github.com/cuprate/cuprate/internal/settings"
	"github.com/cuprate/cuprate/internal/ulog"
)

type fakeChainState struct{ height uint64 }

func (f fakeChainState) CoreSyncData(ctx context.Context) (levin.CoreSyncData, error) {
	return levin.CoreSyncData{CurrentHeight: f.height}, nil
}

func testCfg(myPeerID int) *settings.Settings {
	return settings.New(settings.MapSource{
		"p2p_networkId":         "cafebabecafebabecafebabecafebabe",
		"p2p_myPeerId":          strconv.Itoa(myPeerID),
		"p2p_timedSyncInterval": "1h",
	})
}

func setupPair(t *testing.T) (client *peer.Peer, clientHS *Handshaker, server *peer.Peer, serverHS *Handshaker) {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	t.Cleanup(func() { clientConn.Close(); serverConn.Close() })

	log := ulog.New("handshake-test", "error", false)

	clientAddr := levin.NetworkAddress{Zone: levin.ZonePublic, IPv4: 0x0100007f, Port: 1}
	serverAddr := levin.NetworkAddress{Zone: levin.ZonePublic, IPv4: 0x0200007f, Port: 2}

	clientBook := addressbook.New(settings.New(nil), log, clientAddr)
	serverBook := addressbook.New(settings.New(nil), log, serverAddr)
	t.Cleanup(clientBook.Close)
	t.Cleanup(serverBook.Close)

	clientCfg := testCfg(1)
	serverCfg := testCfg(2)

	clientHS = New(clientCfg, clientBook, fakeChainState{height: 100}, log)
	serverHS = New(serverCfg, serverBook, fakeChainState{height: 200}, log)
	t.Cleanup(clientHS.Close)
	t.Cleanup(serverHS.Close)

	serverNotify := func(ctx context.Context, p *peer.Peer, cmd levin.Command, body []byte) error {
		if cmd == levin.CmdHandshake {
			return serverHS.HandleIncoming(ctx, p, body)
		}
		return nil
	}

	client = peer.New(clientConn, serverAddr, clientCfg, log, nil)
	server = peer.New(serverConn, clientAddr, serverCfg, log, serverNotify)

	require.NoError(t, serverHS.AcceptIncoming(context.Background(), server))

	return client, clientHS, server, serverHS
}

func TestHandshake_OutboundSucceeds(t *testing.T) {
	client, clientHS, server, _ := setupPair(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)
	go server.Run(ctx)

	callCtx, callCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer callCancel()
	resp, err := clientHS.Outbound(callCtx, client)
	require.NoError(t, err)

	assert.Equal(t, uint64(200), resp.Sync.CurrentHeight)
	assert.Equal(t, peer.StateReady, client.State())
	assert.Equal(t, peer.StateReady, server.State())
}

func TestHandshake_RejectsNetworkIDMismatch(t *testing.T) {
	client, clientHS, server, _ := setupPair(t)

	// Force a mismatch after setup by rebuilding the client handshaker with
	// a different network id but the same connection.
	log := ulog.New("handshake-test", "error", false)
	mismatchedCfg := settings.New(settings.MapSource{
		"p2p_networkId": "deadbeefdeadbeefdeadbeefdeadbeef",
		"p2p_myPeerId":  "1",
	})
	clientBook := addressbook.New(settings.New(nil), log, levin.NetworkAddress{})
	t.Cleanup(clientBook.Close)
	mismatched := New(mismatchedCfg, clientBook, fakeChainState{height: 1}, log)
	t.Cleanup(mismatched.Close)
	_ = clientHS

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)
	go server.Run(ctx)

	callCtx, callCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer callCancel()
	_, err := mismatched.Outbound(callCtx, client)
	require.Error(t, err)
}

func TestHandshake_RejectsOversizedPeerList(t *testing.T) {
	log := ulog.New("handshake-test", "error", false)
	cfg := settings.New(settings.MapSource{"p2p_networkId": "cafebabecafebabecafebabecafebabe"})
	book := addressbook.New(cfg, log, levin.NetworkAddress{})
	t.Cleanup(book.Close)
	h := New(cfg, book, fakeChainState{}, log)
	t.Cleanup(h.Close)

	clientConn, _ := net.Pipe()
	defer clientConn.Close()
	p := peer.New(clientConn, levin.NetworkAddress{Zone: levin.ZonePublic}, cfg, log, nil)

	tooMany := make([]levin.PeerlistEntry, cfg.PeerListShareCap()+1)
	err := h.validate(p, levin.BasicNodeData{NetworkID: cfg.NetworkID()}, tooMany)
	require.Error(t, err)
}

func TestHandshake_RejectsPublicZoneSelfPeerID(t *testing.T) {
	log := ulog.New("handshake-test", "error", false)
	cfg := settings.New(settings.MapSource{
		"p2p_networkId": "cafebabecafebabecafebabecafebabe",
		"p2p_myPeerId":  "7",
	})
	book := addressbook.New(cfg, log, levin.NetworkAddress{})
	t.Cleanup(book.Close)
	h := New(cfg, book, fakeChainState{}, log)
	t.Cleanup(h.Close)

	clientConn, _ := net.Pipe()
	defer clientConn.Close()
	p := peer.New(clientConn, levin.NetworkAddress{Zone: levin.ZonePublic}, cfg, log, nil)

	err := h.validate(p, levin.BasicNodeData{NetworkID: cfg.NetworkID(), PeerID: 7}, nil)
	require.Error(t, err)
}
