package node

import (
	"context"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuprate/cuprate/internal/chainmodel"
	"github.com/cuprate/cuprate/internal/database/sqlitekv"
	"github.com/cuprate/cuprate/internal/levin"
	"github.com/cuprate/cuprate/internal/rpc/types"
	"github.com/cuprate/cuprate/internal/settings"
	"github.com/cuprate/cuprate/internal/txpool"
	"github.com/cuprate/cuprate/internal/ulog"
)

func testNode(t *testing.T) *Node {
	t.Helper()
	env, err := sqlitekv.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = env.Close() })

	cfg := settings.New(settings.MapSource{})
	log := ulog.New("node-test", "ERROR", false)

	n, err := New(cfg, log, env)
	require.NoError(t, err)
	t.Cleanup(func() {
		n.handshaker.Close()
		n.book.Close()
	})
	return n
}

func TestNewWiresEveryComponent(t *testing.T) {
	n := testNode(t)
	require.NotNil(t, n.svc)
	require.NotNil(t, n.consensus)
	require.NotNil(t, n.book)
	require.NotNil(t, n.peers)
	require.NotNil(t, n.handshaker)
	require.NotNil(t, n.downloader)
	require.NotNil(t, n.dandelion)
	require.NotNil(t, n.rpcPublic)
	require.Nil(t, n.rpcRestricted, "no restricted bind address configured")
}

func TestNewBuildsRestrictedServerWhenConfigured(t *testing.T) {
	env, err := sqlitekv.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = env.Close() })

	cfg := settings.New(settings.MapSource{"rpc_restrictedBindAddress": "127.0.0.1:0"})
	log := ulog.New("node-test", "ERROR", false)

	n, err := New(cfg, log, env)
	require.NoError(t, err)
	t.Cleanup(func() {
		n.handshaker.Close()
		n.book.Close()
	})
	require.NotNil(t, n.rpcRestricted)
}

func TestChainReaderFacadeReflectsStorage(t *testing.T) {
	n := testNode(t)
	ctx := context.Background()

	height, err := n.chainReaderFacade().ChainHeight(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(0), height)

	_, found, err := n.chainReaderFacade().GetBlockInfo(ctx, 5)
	require.NoError(t, err)
	require.False(t, found)
}

func TestRelayReceivedTxFluffsByDefault(t *testing.T) {
	n := testNode(t)
	ctx := context.Background()

	blob := []byte("a raw transaction blob")
	n.relayReceivedTx(ctx, blob, false)

	hash := chainmodel.Hash(sha256.Sum256(blob))
	e, found, err := n.svc.Pool().Lookup(ctx, hash)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, blob, e.Blob)
	require.Equal(t, txpool.StateFluff, e.State)
}

func TestRelayReceivedTxStemsWhenStemHop(t *testing.T) {
	n := testNode(t)
	ctx := context.Background()

	blob := []byte("another blob")
	n.relayReceivedTx(ctx, blob, true)

	hash := chainmodel.Hash(sha256.Sum256(blob))
	e, found, err := n.svc.Pool().Lookup(ctx, hash)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, txpool.StateStem, e.State)
}

func TestRPCGetHeightReflectsConsensusState(t *testing.T) {
	n := testNode(t)

	resp, err := n.rpcGetHeight(nil, nil)
	require.NoError(t, err)
	out, ok := resp.(*types.GetHeightResponse)
	require.True(t, ok)
	require.Equal(t, "OK", out.Status)
	require.Equal(t, uint64(0), out.Height)
}

func TestRPCGetConnectionsReportsPeerCount(t *testing.T) {
	n := testNode(t)
	resp, err := n.rpcGetConnections(nil, nil)
	require.NoError(t, err)
	m, ok := resp.(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, "OK", m["status"])
	require.Equal(t, 0, m["connections"])
}

func TestNetAddrLabelFormatsTCPZone(t *testing.T) {
	addr := levin.NetworkAddress{Zone: levin.ZonePublic, IPv4: levin.DecodeIPv4([]byte{127, 0, 0, 1}), Port: 18080}
	require.Contains(t, netAddrLabel(addr), "18080")
	require.Contains(t, netAddrLabel(addr), "127.0.0.1")
}
