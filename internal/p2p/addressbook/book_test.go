package addressbook

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuprate/cuprate/internal/levin"
	"github.com/cuprate/cuprate/internal/settings"
	"github.com/cuprate/cuprate/internal/ulog"
)

func testBook(t *testing.T, self levin.NetworkAddress) *Book {
	t.Helper()
	cfg := settings.New(settings.MapSource{
		"addrbook_anchorCap": "2",
		"addrbook_whiteCap":  "4",
		"addrbook_grayCap":   "10",
	})
	log := ulog.New("addressbook-test", "error", false)
	b := New(cfg, log, self)
	t.Cleanup(b.Close)
	return b
}

func ipv4Addr(ip uint32, port uint16) levin.NetworkAddress {
	return levin.NetworkAddress{Zone: levin.ZonePublic, IPv4: ip, Port: port}
}

func onionAddr(onion string, port uint16) levin.NetworkAddress {
	return levin.NetworkAddress{Zone: levin.ZoneTor, Onion: onion, Port: port}
}

const validOnion1 = "abcdefghijklmnopqrstuvwxyzabcdefghijklmnopqrstuvwxyz2345"
const validOnion2 = "234567abcdefghijklmnopqrstuvwxyzabcdefghijklmnopqrstuvwx"

func TestTakeRandomPeers_SameZoneAndSelfExcluded(t *testing.T) {
	self := ipv4Addr(1, 18080)
	b := testBook(t, self)

	peer := ipv4Addr(2, 18080)
	b.PromoteToAnchor(peer, newEntry(levin.PeerlistEntry{Addr: peer, ID: 7}))
	b.PromoteToAnchor(self, newEntry(levin.PeerlistEntry{Addr: self, ID: 8}))

	out := b.TakeRandomPeers(levin.ZonePublic, 250)
	require.Len(t, out, 1)
	assert.Equal(t, peer, out[0].Addr)
}

func TestTakeRandomPeers_CapAndZoneFilter(t *testing.T) {
	self := ipv4Addr(1, 18080)
	b := testBook(t, self)

	tor := onionAddr(validOnion1, 9050)
	require.NoError(t, b.HandleNewPeerList([]levin.PeerlistEntry{{Addr: tor, ID: 1}}, tor))

	for i := uint32(2); i < 2+300; i++ {
		addr := ipv4Addr(i, 18080)
		b.PromoteToAnchor(addr, newEntry(levin.PeerlistEntry{Addr: addr, ID: uint64(i)}))
	}

	out := b.TakeRandomPeers(levin.ZonePublic, 9999)
	assert.LessOrEqual(t, len(out), 250)
	for _, p := range out {
		assert.Equal(t, levin.ZonePublic, p.Addr.Zone)
	}
}

func TestHandleNewPeerList_ValidatesOnionLength(t *testing.T) {
	b := testBook(t, ipv4Addr(1, 18080))
	from := onionAddr(validOnion1, 9050)

	good := onionAddr(validOnion2, 9050)
	bad := onionAddr("tooshort", 9050)

	require.NoError(t, b.HandleNewPeerList([]levin.PeerlistEntry{
		{Addr: good, ID: 1},
		{Addr: bad, ID: 2},
	}, from))

	e, ok := b.TakeRandomGray(levin.ZoneTor)
	require.True(t, ok)
	assert.Equal(t, good, e.Addr)
}

func TestHandleNewPeerList_RejectsZeroPort(t *testing.T) {
	b := testBook(t, ipv4Addr(1, 18080))
	from := ipv4Addr(9, 18080)
	zeroPort := ipv4Addr(10, 0)

	require.NoError(t, b.HandleNewPeerList([]levin.PeerlistEntry{{Addr: zeroPort, ID: 1}}, from))

	_, ok := b.TakeRandomGray(levin.ZonePublic)
	assert.False(t, ok)
}

func TestHandleNewPeerList_CrossZoneEntriesSkipped(t *testing.T) {
	b := testBook(t, ipv4Addr(1, 18080))
	from := ipv4Addr(9, 18080)
	tor := onionAddr(validOnion1, 9050)

	require.NoError(t, b.HandleNewPeerList([]levin.PeerlistEntry{{Addr: tor, ID: 1}}, from))

	_, ok := b.TakeRandomGray(levin.ZoneTor)
	assert.False(t, ok, "a tor address shared by a public-zone peer must not be accepted")
}

func TestPromoteToAnchor_EvictsOldestOverCap(t *testing.T) {
	b := testBook(t, ipv4Addr(1, 18080))

	a1 := ipv4Addr(2, 18080)
	a2 := ipv4Addr(3, 18080)
	a3 := ipv4Addr(4, 18080)

	b.PromoteToAnchor(a1, newEntry(levin.PeerlistEntry{Addr: a1}))
	b.PromoteToAnchor(a2, newEntry(levin.PeerlistEntry{Addr: a2}))
	b.PromoteToAnchor(a3, newEntry(levin.PeerlistEntry{Addr: a3})) // cap is 2, evicts a1

	zs := b.zone(levin.ZonePublic)
	zs.mu.Lock()
	_, hasA1 := zs.anchor[a1]
	_, hasA3 := zs.anchor[a3]
	n := len(zs.anchor)
	zs.mu.Unlock()

	assert.False(t, hasA1)
	assert.True(t, hasA3)
	assert.Equal(t, 2, n)
}

func TestDemote_BackoffEscalatesAndClearsOnPromote(t *testing.T) {
	b := testBook(t, ipv4Addr(1, 18080))
	addr := ipv4Addr(5, 18080)

	b.PromoteToAnchor(addr, newEntry(levin.PeerlistEntry{Addr: addr}))
	assert.True(t, b.CanRedial(addr))

	b.Demote(addr, ReasonDialFailed)
	assert.False(t, b.CanRedial(addr))

	zs := b.zone(levin.ZonePublic)
	zs.mu.Lock()
	first := zs.backoff[addr].nextRedial
	zs.mu.Unlock()

	b.Demote(addr, ReasonDialFailed)

	zs.mu.Lock()
	second := zs.backoff[addr].nextRedial
	attempts := zs.backoff[addr].attempts
	zs.mu.Unlock()

	assert.Equal(t, 2, attempts)
	assert.True(t, second.After(first), "second backoff window should extend further than the first")

	b.PromoteToAnchor(addr, newEntry(levin.PeerlistEntry{Addr: addr}))
	assert.True(t, b.CanRedial(addr), "promoting should clear backoff state")
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "peerlist.json")

	b1 := testBook(t, ipv4Addr(1, 18080))
	anchor := ipv4Addr(2, 18080)
	white := ipv4Addr(3, 18080)
	b1.PromoteToAnchor(anchor, newEntry(levin.PeerlistEntry{Addr: anchor, ID: 42}))
	b1.PromoteToAnchor(white, newEntry(levin.PeerlistEntry{Addr: white, ID: 43}))
	b1.Demote(white, ReasonDisconnected) // drops white from anchor/white, leaves it out of the save

	require.NoError(t, b1.Save(path))

	b2 := testBook(t, ipv4Addr(1, 18080))
	b2.Load(path)

	e, ok := b2.TakeRandomWhite(levin.ZonePublic)
	require.True(t, ok)
	assert.Equal(t, anchor, e.Addr)
}

func TestLoad_MissingFileIsNotFatal(t *testing.T) {
	b := testBook(t, ipv4Addr(1, 18080))
	b.Load(filepath.Join(t.TempDir(), "does-not-exist.json"))

	_, ok := b.TakeRandomWhite(levin.ZonePublic)
	assert.False(t, ok)
}

func TestLoad_CorruptFileClearsNonFatally(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "peerlist.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	b := testBook(t, ipv4Addr(1, 18080))
	require.NotPanics(t, func() { b.Load(path) })

	_, ok := b.TakeRandomWhite(levin.ZonePublic)
	assert.False(t, ok)
}

func TestRunPersistLoop_SavesOnCancel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "peerlist.json")

	b := testBook(t, ipv4Addr(1, 18080))
	addr := ipv4Addr(2, 18080)
	b.PromoteToAnchor(addr, newEntry(levin.PeerlistEntry{Addr: addr}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.RunPersistLoop(ctx, path, time.Hour)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunPersistLoop did not exit after cancel")
	}

	_, err := os.Stat(path)
	require.NoError(t, err)
}
