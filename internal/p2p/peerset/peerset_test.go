package peerset

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuprate/cuprate/internal/levin"
	"github.com/cuprate/cuprate/internal/p2p/peer"
	"github.com/cuprate/cuprate/internal/settings"
	"github.com/cuprate/cuprate/internal/ulog"
)

func testPeer(t *testing.T, port uint16) *peer.Peer {
	t.Helper()
	conn, remote := net.Pipe()
	t.Cleanup(func() { conn.Close(); remote.Close() })
	// Drain whatever the peer under test writes so Run never blocks on us.
	go func() {
		buf := make([]byte, 4096)
		for {
			if _, err := remote.Read(buf); err != nil {
				return
			}
		}
	}()
	log := ulog.New("peerset-test", "error", false)
	cfg := settings.New(nil)
	addr := levin.NetworkAddress{Zone: levin.ZonePublic, Port: port}
	return peer.New(conn, addr, cfg, log, nil)
}

func TestAddRemove_TracksLen(t *testing.T) {
	s := New()
	p := testPeer(t, 1)
	c := s.Add(p)
	assert.Equal(t, 1, s.Len(levin.ZonePublic))
	s.Remove(c)
	assert.Equal(t, 0, s.Len(levin.ZonePublic))
}

func TestRunUntilDone_RemovesOnClose(t *testing.T) {
	s := New()
	p := testPeer(t, 1)
	done := make(chan struct{})
	go func() { s.RunUntilDone(p); close(done) }()

	require.Eventually(t, func() bool { return s.Len(levin.ZonePublic) == 1 }, time.Second, time.Millisecond)

	require.NoError(t, p.Close())
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunUntilDone did not return after Close")
	}
	assert.Equal(t, 0, s.Len(levin.ZonePublic))
}

func TestSingle_PicksLeastLoaded(t *testing.T) {
	s := New()
	p1 := testPeer(t, 1)
	p2 := testPeer(t, 2)
	c1 := s.Add(p1)
	c2 := s.Add(p2)
	c1.load.Inc()
	c1.load.Inc()

	picked, err := Single(context.Background(), s, levin.ZonePublic, func(ctx context.Context, c *Client) (*Client, error) {
		return c, nil
	})
	require.NoError(t, err)
	assert.Same(t, c2, picked)
}

func TestSingle_NoClientsReturnsError(t *testing.T) {
	s := New()
	_, err := Single(context.Background(), s, levin.ZonePublic, func(ctx context.Context, c *Client) (int, error) {
		return 0, nil
	})
	require.Error(t, err)
}

func TestBroadcast_RunsAgainstEveryClient(t *testing.T) {
	s := New()
	s.Add(testPeer(t, 1))
	s.Add(testPeer(t, 2))
	s.Add(testPeer(t, 3))

	var hits int32
	results := Broadcast(context.Background(), s, levin.ZonePublic, func(ctx context.Context, c *Client) error {
		hits++
		return nil
	})
	assert.Len(t, results, 3)
}

func TestFixedN_CapsAtRequestedCount(t *testing.T) {
	s := New()
	for i := uint16(1); i <= 5; i++ {
		s.Add(testPeer(t, i))
	}
	results := FixedN(context.Background(), s, levin.ZonePublic, 2, func(ctx context.Context, c *Client) error {
		return nil
	})
	assert.Len(t, results, 2)
}

func TestFixedN_ReturnsAllWhenFewerThanN(t *testing.T) {
	s := New()
	s.Add(testPeer(t, 1))
	results := FixedN(context.Background(), s, levin.ZonePublic, 5, func(ctx context.Context, c *Client) error {
		return nil
	})
	assert.Len(t, results, 1)
}

func TestDumpZone_DoesNotPanicOnEmptySet(t *testing.T) {
	s := New()
	var buf bytes.Buffer
	assert.NotPanics(t, func() { DumpZone(&buf, s, levin.ZonePublic) })
}
