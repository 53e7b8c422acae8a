package dandelion

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuprate/cuprate/internal/chainmodel"
	"github.com/cuprate/cuprate/internal/database/sqlitekv"
	"github.com/cuprate/cuprate/internal/levin"
	"github.com/cuprate/cuprate/internal/p2p/peer"
	"github.com/cuprate/cuprate/internal/p2p/peerset"
	"github.com/cuprate/cuprate/internal/settings"
	"github.com/cuprate/cuprate/internal/txpool"
	"github.com/cuprate/cuprate/internal/ulog"
)

func testPool(t *testing.T) *txpool.Pool {
	t.Helper()
	env, err := sqlitekv.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = env.Close() })
	return txpool.NewPool(env, ulog.New("dandelion-test", "error", false))
}

func testEntry(b byte) txpool.Entry {
	var h chainmodel.Hash
	h[0] = b
	return txpool.Entry{Hash: h, Blob: []byte{b}, Weight: 100, Fee: 10, State: txpool.StateLocal}
}

func connectedPeer(t *testing.T, port uint16) *peer.Peer {
	t.Helper()
	conn, remote := net.Pipe()
	t.Cleanup(func() { conn.Close(); remote.Close() })
	go func() {
		buf := make([]byte, 4096)
		for {
			if _, err := remote.Read(buf); err != nil {
				return
			}
		}
	}()
	cfg := settings.New(nil)
	log := ulog.New("dandelion-test", "error", false)
	addr := levin.NetworkAddress{Zone: levin.ZonePublic, Port: port}
	return peer.New(conn, addr, cfg, log, nil)
}

func testSettings() *settings.Settings {
	return settings.New(settings.MapSource{
		"dandelion_epoch":              "1h",
		"dandelion_stemProbabilityPct": "100",
		"dandelion_embargoMin":         "20ms",
		"dandelion_embargoMax":         "30ms",
	})
}

func TestRouteLocal_StemsWhenSuccessorAvailable(t *testing.T) {
	cfg := testSettings()
	peers := peerset.New()
	peers.Add(connectedPeer(t, 1))
	pool := testPool(t)
	log := ulog.New("dandelion-test", "error", false)

	r := New(cfg, peers, pool, log)
	r.rollEpoch(context.Background())

	e := testEntry(1)
	require.NoError(t, pool.Insert(context.Background(), e))
	require.NoError(t, r.RouteLocal(context.Background(), e))

	got, found, err := pool.Lookup(context.Background(), e.Hash)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, txpool.StateLocal, got.State, "stem hop alone must not promote to fluff yet")
}

func TestRouteLocal_FallsBackToFluffWithNoPeers(t *testing.T) {
	cfg := testSettings()
	peers := peerset.New()
	pool := testPool(t)
	log := ulog.New("dandelion-test", "error", false)

	r := New(cfg, peers, pool, log)
	r.rollEpoch(context.Background())

	e := testEntry(2)
	require.NoError(t, pool.Insert(context.Background(), e))
	require.NoError(t, r.RouteLocal(context.Background(), e))

	require.Eventually(t, func() bool {
		got, found, err := pool.Lookup(context.Background(), e.Hash)
		return err == nil && found && got.State == txpool.StateFluff
	}, time.Second, 5*time.Millisecond, "no stem successor must fluff immediately")
}

func TestRouteReceived_NonStemHopFluffsImmediately(t *testing.T) {
	cfg := testSettings()
	peers := peerset.New()
	pool := testPool(t)
	log := ulog.New("dandelion-test", "error", false)

	r := New(cfg, peers, pool, log)

	e := testEntry(3)
	require.NoError(t, pool.Insert(context.Background(), e))
	require.NoError(t, r.RouteReceived(context.Background(), e, false))

	got, found, err := pool.Lookup(context.Background(), e.Hash)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, txpool.StateFluff, got.State)
}

func TestEmbargo_ForcesFluffWhenStemNeverCompletes(t *testing.T) {
	cfg := testSettings()
	peers := peerset.New()
	peers.Add(connectedPeer(t, 1))
	pool := testPool(t)
	log := ulog.New("dandelion-test", "error", false)

	r := New(cfg, peers, pool, log)
	r.rollEpoch(context.Background())

	e := testEntry(4)
	require.NoError(t, pool.Insert(context.Background(), e))
	require.NoError(t, r.RouteLocal(context.Background(), e))

	require.Eventually(t, func() bool {
		got, found, err := pool.Lookup(context.Background(), e.Hash)
		return err == nil && found && got.State == txpool.StateFluff
	}, time.Second, 5*time.Millisecond, "embargo timer must force Stem to Fluff")
}

func TestRollEpoch_PicksStemSuccessorFromAvailablePeers(t *testing.T) {
	cfg := testSettings()
	peers := peerset.New()
	peers.Add(connectedPeer(t, 1))
	pool := testPool(t)
	log := ulog.New("dandelion-test", "error", false)

	r := New(cfg, peers, pool, log)
	r.rollEpoch(context.Background())

	_, successor := r.current()
	require.NotNil(t, successor)
}
