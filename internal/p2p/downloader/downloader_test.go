package downloader

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuprate/cuprate/internal/chainmodel"
	"github.com/cuprate/cuprate/internal/epee"
	"github.com/cuprate/cuprate/internal/levin"
	"github.com/cuprate/cuprate/internal/p2p/addressbook"
	"github.com/cuprate/cuprate/internal/p2p/peer"
	"github.com/cuprate/cuprate/internal/p2p/peerset"
	"github.com/cuprate/cuprate/internal/settings"
	"github.com/cuprate/cuprate/internal/ulog"
)

type fakeChain struct {
	infos      map[uint64]chainmodel.BlockInfo
	heightByID map[chainmodel.Hash]uint64
	top        uint64
}

func newFakeChain() *fakeChain {
	return &fakeChain{infos: make(map[uint64]chainmodel.BlockInfo), heightByID: make(map[chainmodel.Hash]uint64)}
}

func (f *fakeChain) put(height uint64, hash byte, diffLo uint64) {
	var h chainmodel.Hash
	h[0] = hash
	h[31] = byte(height)
	f.infos[height] = chainmodel.BlockInfo{Hash: h, CumulativeDiffLo: diffLo}
	f.heightByID[h] = height
	if height > f.top {
		f.top = height
	}
}

func (f *fakeChain) ChainHeight(ctx context.Context) (uint64, error) { return f.top + 1, nil }
func (f *fakeChain) GetBlockInfo(ctx context.Context, height uint64) (chainmodel.BlockInfo, bool, error) {
	info, ok := f.infos[height]
	return info, ok, nil
}
func (f *fakeChain) HeightForHash(ctx context.Context, hash chainmodel.Hash) (uint64, bool, error) {
	h, ok := f.heightByID[hash]
	return h, ok, nil
}

func TestCompactHistory_IncludesTopAndGenesis(t *testing.T) {
	chain := newFakeChain()
	for i := uint64(0); i <= 20; i++ {
		chain.put(i, byte(i+1), i)
	}
	d := New(settings.New(nil), peerset.New(), nil, chain, ulog.New("downloader-test", "error", false))

	ids, err := d.CompactHistory(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, ids)
	assert.Equal(t, chain.infos[20].Hash, chainmodel.Hash(ids[0]), "first entry must be the current top")
	assert.Equal(t, chain.infos[0].Hash, chainmodel.Hash(ids[len(ids)-1]), "last entry must be genesis")
}

func connectedPair(t *testing.T, serverNotify peer.NotificationHandler) (client, server *peer.Peer) {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	t.Cleanup(func() { clientConn.Close(); serverConn.Close() })
	cfg := settings.New(nil)
	log := ulog.New("downloader-test", "error", false)
	clientAddr := levin.NetworkAddress{Zone: levin.ZonePublic, Port: 1}
	serverAddr := levin.NetworkAddress{Zone: levin.ZonePublic, Port: 2}
	client = peer.New(clientConn, serverAddr, cfg, log, nil)
	server = peer.New(serverConn, clientAddr, cfg, log, serverNotify)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go client.Run(ctx)
	go server.Run(ctx)
	return client, server
}

func TestFindCommonAncestor_AcceptsOverlappingResponse(t *testing.T) {
	chain := newFakeChain()
	for i := uint64(0); i <= 5; i++ {
		chain.put(i, byte(i+1), i)
	}
	knownHash := chain.infos[3].Hash

	serverNotify := func(ctx context.Context, p *peer.Peer, cmd levin.Command, body []byte) error {
		if cmd != levin.CmdRequestChain {
			return nil
		}
		resp := &levin.ResponseChainEntry{
			StartHeight:            3,
			TotalHeight:            10,
			CumulativeDifficultyLo: 100,
			BlockIDs:               [][32]byte{knownHash, {9}, {10}},
		}
		return p.Reply(levin.CmdResponseChainEntry, resp)
	}
	client, _ := connectedPair(t, serverNotify)

	peers := peerset.New()
	peers.Add(client)
	book := addressbook.New(settings.New(nil), ulog.New("downloader-test", "error", false), levin.NetworkAddress{})
	t.Cleanup(book.Close)
	d := New(settings.New(nil), peers, book, chain, ulog.New("downloader-test", "error", false))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	candidate, err := d.FindCommonAncestor(ctx, levin.ZonePublic, [][32]byte{knownHash})
	require.NoError(t, err)
	assert.Equal(t, uint64(10), candidate.resp.TotalHeight)
}

func TestFindCommonAncestor_RejectsNoOverlap(t *testing.T) {
	chain := newFakeChain()
	chain.put(0, 1, 0)

	serverNotify := func(ctx context.Context, p *peer.Peer, cmd levin.Command, body []byte) error {
		if cmd != levin.CmdRequestChain {
			return nil
		}
		resp := &levin.ResponseChainEntry{BlockIDs: [][32]byte{{99}}}
		return p.Reply(levin.CmdResponseChainEntry, resp)
	}
	client, _ := connectedPair(t, serverNotify)

	peers := peerset.New()
	peers.Add(client)
	book := addressbook.New(settings.New(nil), ulog.New("downloader-test", "error", false), levin.NetworkAddress{})
	t.Cleanup(book.Close)
	d := New(settings.New(nil), peers, book, chain, ulog.New("downloader-test", "error", false))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := d.FindCommonAncestor(ctx, levin.ZonePublic, [][32]byte{{1}})
	require.Error(t, err)
}

func TestFetchWindow_DemotesPeerOnMissedBlocks(t *testing.T) {
	serverNotify := func(ctx context.Context, p *peer.Peer, cmd levin.Command, body []byte) error {
		if cmd != levin.CmdRequestGetObjects {
			return nil
		}
		var req levin.RequestGetObjects
		require.NoError(t, epee.Unmarshal(body, &req))
		resp := &levin.ResponseGetObjects{MissedIDs: req.Blocks}
		return p.Reply(levin.CmdResponseGetObjects, resp)
	}
	client, _ := connectedPair(t, serverNotify)

	peers := peerset.New()
	peers.Add(client)
	book := addressbook.New(settings.New(nil), ulog.New("downloader-test", "error", false), levin.NetworkAddress{})
	t.Cleanup(book.Close)
	chain := newFakeChain()
	d := New(settings.New(nil), peers, book, chain, ulog.New("downloader-test", "error", false))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := d.fetchWindow(ctx, levin.ZonePublic, [][32]byte{{1}})
	require.Error(t, err)
	assert.False(t, book.CanRedial(client.Addr()), "peer that missed blocks must be demoted")
}

func TestFetchWindow_ReturnsBlocksOnSuccess(t *testing.T) {
	serverNotify := func(ctx context.Context, p *peer.Peer, cmd levin.Command, body []byte) error {
		if cmd != levin.CmdRequestGetObjects {
			return nil
		}
		resp := &levin.ResponseGetObjects{
			Blocks: []levin.BlockCompleteEntry{{Block: []byte("block-1")}},
		}
		return p.Reply(levin.CmdResponseGetObjects, resp)
	}
	client, _ := connectedPair(t, serverNotify)

	peers := peerset.New()
	peers.Add(client)
	book := addressbook.New(settings.New(nil), ulog.New("downloader-test", "error", false), levin.NetworkAddress{})
	t.Cleanup(book.Close)
	chain := newFakeChain()
	d := New(settings.New(nil), peers, book, chain, ulog.New("downloader-test", "error", false))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := d.fetchWindow(ctx, levin.ZonePublic, [][32]byte{{1}})
	require.NoError(t, err)
	require.Len(t, resp.Blocks, 1)
	assert.Equal(t, "block-1", string(resp.Blocks[0].Block))
}
