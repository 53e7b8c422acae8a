// Package handshake implements spec §4.9's outbound and inbound admission
// logic: build and validate the Handshake admin pair, reject anything that
// doesn't match network id, zone, or peer-id uniqueness, and hand back a
// random address-book slice on acceptance.
package handshake

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/cuprate/cuprate/internal/cuperrors"
	"github.com/cuprate/cuprate/internal/epee"
	"github.com/cuprate/cuprate/internal/levin"
	"github.com/cuprate/cuprate/internal/p2p/addressbook"
	"github.com/cuprate/cuprate/internal/p2p/peer"
	"github.com/cuprate/cuprate/internal/settings"
	"github.com/cuprate/cuprate/internal/ulog"
)

// ChainState is the narrow view of local chain state a handshake needs to
// populate CoreSyncData. The concrete implementation (backed by C6/C14)
// is wired in at the top level; this package only depends on the shape.
type ChainState interface {
	CoreSyncData(ctx context.Context) (levin.CoreSyncData, error)
}

// Handshaker drives both directions of spec §4.9's admission check for one
// zone's connections.
type Handshaker struct {
	cfg   *settings.Settings
	book  *addressbook.Book
	chain ChainState
	log   ulog.Logger

	networkID [16]byte
	myPeerID  uint64

	// seenPeerIDs guards against double-handshake on the same socket (spec
	// §4.9 "forbid double-handshake"); Peer's own FSM already rejects a
	// second BeginHandshake/Admit pair for one connection, so this cache
	// instead catches a peer that reconnects and replays peer ids fast
	// enough to collide before the old connection's Demote runs.
	seenPeerIDs *ttlcache.Cache[uint64, time.Time]
}

func New(cfg *settings.Settings, book *addressbook.Book, chain ChainState, log ulog.Logger) *Handshaker {
	cache := ttlcache.New[uint64, time.Time](
		ttlcache.WithTTL[uint64, time.Time](10 * time.Minute),
	)
	go cache.Start()
	return &Handshaker{
		cfg:         cfg,
		book:        book,
		chain:       chain,
		log:         log,
		networkID:   cfg.NetworkID(),
		myPeerID:    cfg.MyPeerID(),
		seenPeerIDs: cache,
	}
}

func (h *Handshaker) Close() { h.seenPeerIDs.Stop() }

func (h *Handshaker) nodeData() levin.BasicNodeData {
	return levin.BasicNodeData{
		NetworkID:         h.networkID,
		PeerID:            h.myPeerID,
		MyPort:            h.cfg.MyPort(),
		RPCPort:           h.cfg.MyRPCPort(),
		RPCCreditsPerHash: h.cfg.MyRPCCreditsPerHash(),
		SupportFlags:      h.cfg.MySupportFlags(),
	}
}

// validate applies the shared checks from spec §4.9: matching network id,
// a peer list within cap and all in p's zone, and (on the public zone) a
// peer id that isn't our own or one we've very recently seen.
func (h *Handshaker) validate(p *peer.Peer, node levin.BasicNodeData, peers []levin.PeerlistEntry) error {
	if node.NetworkID != h.networkID {
		return cuperrors.New(cuperrors.ERR_PROTOCOL_VIOLATION, "handshake: network id mismatch")
	}
	if len(peers) > h.cfg.PeerListShareCap() {
		return cuperrors.New(cuperrors.ERR_PROTOCOL_VIOLATION, "handshake: peer list of %d exceeds cap %d", len(peers), h.cfg.PeerListShareCap())
	}
	zone := p.Addr().Zone
	for _, pe := range peers {
		if pe.Addr.Zone != zone {
			return cuperrors.New(cuperrors.ERR_PROTOCOL_VIOLATION, "handshake: peer list entry outside zone %s", zone)
		}
	}
	if zone == levin.ZonePublic {
		if node.PeerID == h.myPeerID {
			return cuperrors.New(cuperrors.ERR_PROTOCOL_VIOLATION, "handshake: peer id collides with our own")
		}
		if item := h.seenPeerIDs.Get(node.PeerID); item != nil {
			return cuperrors.New(cuperrors.ERR_PROTOCOL_VIOLATION, "handshake: peer id %d collision with a recent peer", node.PeerID)
		}
		h.seenPeerIDs.Set(node.PeerID, time.Now(), ttlcache.DefaultTTL)
	}
	return nil
}

// Outbound sends our Handshake and validates the response (spec §4.9
// "Outbound"). On success it advances p's FSM to Ready and merges the
// peer's shared addresses into the book.
func (h *Handshaker) Outbound(ctx context.Context, p *peer.Peer) (*levin.HandshakeResponse, error) {
	node := h.nodeData()
	sync, err := h.chain.CoreSyncData(ctx)
	if err != nil {
		return nil, err
	}

	if err := p.BeginHandshake(ctx); err != nil {
		return nil, err
	}

	req := &levin.HandshakeRequest{Node: node, Sync: sync}
	body, err := p.Call(ctx, levin.CmdHandshake, levin.CmdHandshake, req)
	if err != nil {
		return nil, err
	}

	var resp levin.HandshakeResponse
	if err := epee.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	if err := h.validate(p, resp.Node, resp.Peers); err != nil {
		return nil, err
	}

	if err := p.Admit(ctx); err != nil {
		return nil, err
	}
	if err := h.book.HandleNewPeerList(resp.Peers, p.Addr()); err != nil {
		h.log.Warnf("handshake: merging peer list from %s failed: %v", p.Addr().Onion, err)
	}

	return &resp, nil
}

// HandleIncoming processes an inbound Handshake request (spec §4.9
// "Inbound"): validate, then reply with our own node-data/sync and a
// random address-book slice, and admit the connection.
func (h *Handshaker) HandleIncoming(ctx context.Context, p *peer.Peer, body []byte) error {
	if p.State() != peer.StateHandshaking {
		return cuperrors.New(cuperrors.ERR_PROTOCOL_VIOLATION, "handshake: unexpected handshake on a %s connection", p.State())
	}

	var req levin.HandshakeRequest
	if err := epee.Unmarshal(body, &req); err != nil {
		return err
	}
	if err := h.validate(p, req.Node, nil); err != nil {
		return err
	}

	sync, err := h.chain.CoreSyncData(ctx)
	if err != nil {
		return err
	}

	resp := &levin.HandshakeResponse{
		Node:      h.nodeData(),
		Sync:      sync,
		LocalTime: time.Now().Unix(),
		Peers:     h.book.TakeRandomPeers(p.Addr().Zone, h.cfg.PeerListShareCap()),
	}

	if err := p.Admit(ctx); err != nil {
		return err
	}
	return p.Reply(levin.CmdHandshake, resp)
}

// AcceptIncoming marks a freshly accepted socket as entering the handshake
// phase; call before reading the first bucket so the FSM rejects a stray
// second handshake attempt on the same connection.
func (h *Handshaker) AcceptIncoming(ctx context.Context, p *peer.Peer) error {
	return p.BeginHandshake(ctx)
}
