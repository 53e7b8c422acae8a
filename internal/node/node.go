// Package node wires together every component package into one running
// process: the storage façade (C6), consensus context (C14), address book
// and peer set (C7/C10), the handshake/downloader/dandelion trio
// (C9/C12/C11), and the RPC interface (C16). It plays the role the node's
// main.go has always played — construct once, start the long-running
// loops, stop them in reverse order on shutdown — just narrowed to
// Cuprate's own component graph instead of a microservice fleet.
package node

import (
	"context"
	"crypto/sha256"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cuprate/cuprate/internal/chainmodel"
	"github.com/cuprate/cuprate/internal/cuperrors"
	"github.com/cuprate/cuprate/internal/database"
	"github.com/cuprate/cuprate/internal/epee"
	"github.com/cuprate/cuprate/internal/levin"
	"github.com/cuprate/cuprate/internal/p2p/addressbook"
	"github.com/cuprate/cuprate/internal/p2p/dandelion"
	"github.com/cuprate/cuprate/internal/p2p/downloader"
	"github.com/cuprate/cuprate/internal/p2p/handshake"
	"github.com/cuprate/cuprate/internal/p2p/peer"
	"github.com/cuprate/cuprate/internal/p2p/peerset"
	consensuscontext "github.com/cuprate/cuprate/internal/consensus/context"
	"github.com/cuprate/cuprate/internal/rpc/server"
	"github.com/cuprate/cuprate/internal/settings"
	"github.com/cuprate/cuprate/internal/storage"
	"github.com/cuprate/cuprate/internal/txpool"
	"github.com/cuprate/cuprate/internal/ulog"
)

// Node owns every long-lived component and the goroutines driving them.
type Node struct {
	cfg *settings.Settings
	log ulog.Logger

	env database.Env
	svc *storage.Service
	rh  *storage.ReadHandle
	wh  *storage.WriteHandle

	consensus *consensuscontext.State

	peers      *peerset.Set
	book       *addressbook.Book
	handshaker *handshake.Handshaker
	downloader *downloader.Downloader
	dandelion  *dandelion.Router

	rpcPublic     *server.Server
	rpcRestricted *server.Server

	listener net.Listener

	wg sync.WaitGroup
}

// New constructs every component. env must already be open; Run's shutdown
// sequence closes it via the storage.Service it builds on top of (spec
// §4.6's ordering: writer drains before readers, both before the Env
// itself closes), so the caller only owns opening it.
func New(cfg *settings.Settings, log ulog.Logger, env database.Env) (*Node, error) {
	numCPU := cfg.ReaderPoolSize(4)
	svc := storage.New(env, log.With("component", "storage"), numCPU)
	rh := svc.NewReadHandle()
	wh := svc.NewWriteHandle()

	chain := &chainReader{svc: svc, rh: rh}

	consensus := consensuscontext.New(cfg, chain, log.With("component", "consensus"))

	selfAddr := levin.NetworkAddress{Zone: levin.ZonePublic, Port: uint16(cfg.MyPort())}
	book := addressbook.New(cfg, log.With("component", "addressbook"), selfAddr)
	peers := peerset.New()
	hs := handshake.New(cfg, book, consensus, log.With("component", "handshake"))
	dl := downloader.New(cfg, peers, book, chain, log.With("component", "downloader"))

	router := dandelion.New(cfg, peers, svc.Pool(), log.With("component", "dandelion"))

	n := &Node{
		cfg:        cfg,
		log:        log,
		env:        env,
		svc:        svc,
		rh:         rh,
		wh:         wh,
		consensus:  consensus,
		peers:      peers,
		book:       book,
		handshaker: hs,
		downloader: dl,
		dandelion:  router,
	}

	n.rpcPublic = server.New(cfg, log.With("component", "rpc"), false)
	registerRPC(n.rpcPublic, n)
	if addr := cfg.RPCRestrictedBindAddress(); addr != "" {
		n.rpcRestricted = server.New(cfg, log.With("component", "rpc_restricted"), true)
		registerRPC(n.rpcRestricted, n)
	}

	return n, nil
}

// Run starts every background loop and blocks until ctx is canceled, then
// shuts everything down in reverse order.
func (n *Node) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", n.cfg.MyPort()))
	if err != nil {
		return cuperrors.New(cuperrors.ERR_IO, "node: listen on p2p port: %v", err)
	}
	n.listener = ln

	n.wg.Add(1)
	go func() { defer n.wg.Done(); n.acceptLoop(ctx) }()

	n.wg.Add(1)
	go func() { defer n.wg.Done(); n.dialLoop(ctx) }()

	n.wg.Add(1)
	go func() { defer n.wg.Done(); n.syncLoop(ctx) }()

	n.wg.Add(1)
	go func() { defer n.wg.Done(); n.dandelion.RunEpochLoop(ctx) }()

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if err := n.rpcPublic.Start(n.cfg.RPCBindAddress()); err != nil {
			n.log.Warnf("node: rpc server stopped: %v", err)
		}
	}()
	if n.rpcRestricted != nil {
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			if err := n.rpcRestricted.Start(n.cfg.RPCRestrictedBindAddress()); err != nil {
				n.log.Warnf("node: restricted rpc server stopped: %v", err)
			}
		}()
	}

	<-ctx.Done()
	return n.shutdown()
}

func (n *Node) shutdown() error {
	_ = n.listener.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = n.rpcPublic.Shutdown(shutdownCtx)
	if n.rpcRestricted != nil {
		_ = n.rpcRestricted.Shutdown(shutdownCtx)
	}

	n.handshaker.Close()
	n.book.Close()
	n.wg.Wait()

	n.wh.Close()
	if err := n.svc.CloseWriter(shutdownCtx); err != nil {
		n.log.Warnf("node: writer shutdown: %v", err)
	}
	n.rh.Close()
	return n.svc.Close(shutdownCtx)
}

// acceptLoop admits inbound connections (spec §4.9 "Inbound").
func (n *Node) acceptLoop(ctx context.Context) {
	for {
		conn, err := n.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				n.log.Warnf("node: accept: %v", err)
				return
			}
		}
		addr := addrFromConn(conn.RemoteAddr())
		p := peer.New(conn, addr, n.cfg, n.log.With("peer", netAddrLabel(addr)), n.notify)
		if err := n.handshaker.AcceptIncoming(ctx, p); err != nil {
			n.log.Warnf("node: accept handshake for %s: %v", netAddrLabel(addr), err)
			_ = p.Close()
			continue
		}
		n.runPeer(ctx, p, addr)
	}
}

// dialLoop periodically tops up outbound connections from the address
// book's white/gray sets (spec §4.7's redial policy, §4.9 "Outbound").
func (n *Node) dialLoop(ctx context.Context) {
	t := time.NewTicker(5 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n.peers.Len(levin.ZonePublic) >= n.cfg.MaxOutboundPerZone() {
				continue
			}
			entry, ok := n.book.TakeRandomWhite(levin.ZonePublic)
			if !ok {
				entry, ok = n.book.TakeRandomGray(levin.ZonePublic)
			}
			if !ok || !n.book.CanRedial(entry.Addr) {
				continue
			}
			n.dialOne(ctx, entry)
		}
	}
}

func (n *Node) dialOne(ctx context.Context, entry addressbook.Entry) {
	target := tcpAddrString(entry.Addr)
	conn, err := net.DialTimeout("tcp", target, n.cfg.HandshakeTimeout())
	if err != nil {
		n.book.Demote(entry.Addr, addressbook.ReasonDialFailed)
		return
	}
	p := peer.New(conn, entry.Addr, n.cfg, n.log.With("peer", target), n.notify)
	if _, err := n.handshaker.Outbound(ctx, p); err != nil {
		n.log.Warnf("node: outbound handshake to %s: %v", target, err)
		n.book.Demote(entry.Addr, addressbook.ReasonDialFailed)
		_ = p.Close()
		return
	}
	n.book.PromoteToAnchor(entry.Addr, entry)
	n.runPeer(ctx, p, entry.Addr)
}

func (n *Node) runPeer(ctx context.Context, p *peer.Peer, addr levin.NetworkAddress) {
	client := n.peers.Add(p)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		failure := p.Run(ctx)
		n.peers.Remove(client)
		if failure != nil {
			reason := addressbook.ReasonDisconnected
			if failure.Kind == peer.FailureProtocolViolation {
				reason = addressbook.ReasonProtocol
			}
			n.book.Demote(addr, reason)
		}
	}()
}

// syncLoop drives the block-download state machine of spec §4.12 once
// enough peers are connected. Batches it produces are logged: applying a
// Batch to the chain requires consensus verification (parsing, PoW/sig
// checks) that calls into the external RandomX/elliptic-curve libraries
// spec §1 scopes out of this repository, so syncLoop stops at "fetched",
// not "applied".
func (n *Node) syncLoop(ctx context.Context) {
	t := time.NewTicker(30 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n.peers.Len(levin.ZonePublic) == 0 {
				continue
			}
			batches, errs := n.downloader.Run(ctx, levin.ZonePublic)
			for {
				select {
				case b, ok := <-batches:
					if !ok {
						batches = nil
						continue
					}
					n.log.Infof("node: downloader fetched batch from height %d (%d blocks)", b.FromHeight, len(b.Entries))
				case e, ok := <-errs:
					if !ok {
						errs = nil
						continue
					}
					n.log.Warnf("node: downloader: %v", e)
				case <-ctx.Done():
					return
				}
				if batches == nil && errs == nil {
					break
				}
			}
		}
	}
}

// notify answers every admin request and protocol notification a Peer
// doesn't resolve itself (spec §4.8/§4.9/§4.11).
func (n *Node) notify(ctx context.Context, p *peer.Peer, cmd levin.Command, body []byte) error {
	switch cmd {
	case levin.CmdHandshake:
		return n.handshaker.HandleIncoming(ctx, p, body)

	case levin.CmdTimedSync:
		var req levin.TimedSyncRequest
		if err := epee.Unmarshal(body, &req); err != nil {
			return err
		}
		sync, err := n.consensus.CoreSyncData(ctx)
		if err != nil {
			return err
		}
		return p.Reply(levin.CmdTimedSync, &levin.TimedSyncResponse{Sync: sync, LocalTime: time.Now().Unix()})

	case levin.CmdPing:
		return p.Reply(levin.CmdPing, &levin.PingResponse{Status: "PONG", PeerID: n.cfg.MyPeerID()})

	case levin.CmdNewTransactions:
		var msg levin.NewTransactions
		if err := epee.Unmarshal(body, &msg); err != nil {
			return err
		}
		for _, blob := range msg.Txs {
			n.relayReceivedTx(ctx, blob, msg.Dandelionpp)
		}
		return nil

	default:
		n.log.Debugf("node: unhandled command %d from %s, ignoring", cmd, netAddrLabel(p.Addr()))
		return nil
	}
}

// relayReceivedTx pools and re-relays one transaction blob. Weight/fee
// derivation and full consensus validation belong to the external
// verifier (spec §1); here the blob is pooled with a weight equal to its
// serialized length and a zero fee so it still participates in Dandelion++
// relay and is visible to get_transactions, but it will not be picked for
// a block template ahead of a properly-verified entry (spec §4.5 orders
// candidates by fee-per-weight, and zero-fee entries sort last).
func (n *Node) relayReceivedTx(ctx context.Context, blob []byte, stemHop bool) {
	hash := chainmodel.Hash(sha256.Sum256(blob))
	entry := txpool.Entry{
		Hash:        hash,
		Blob:        blob,
		Weight:      uint64(len(blob)),
		ArrivalUnix: time.Now().Unix(),
		State:       txpool.StateFluff,
	}
	if stemHop {
		entry.State = txpool.StateStem
	}
	if err := n.svc.Pool().Insert(ctx, entry); err != nil {
		n.log.Warnf("node: pooling relayed tx %x: %v", hash, err)
		return
	}
	if err := n.dandelion.RouteReceived(ctx, entry, stemHop); err != nil {
		n.log.Warnf("node: dandelion route for %x: %v", hash, err)
	}
}

func addrFromConn(a net.Addr) levin.NetworkAddress {
	host, port := splitHostPort(a.String())
	ip := net.ParseIP(host)
	var v4 uint32
	if ip4 := ip.To4(); ip4 != nil {
		v4 = levin.DecodeIPv4([]byte{ip4[0], ip4[1], ip4[2], ip4[3]})
	}
	return levin.NetworkAddress{Zone: levin.ZonePublic, IPv4: v4, Port: port}
}

func splitHostPort(s string) (string, uint16) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return s, 0
	}
	var port uint16
	fmt.Sscanf(portStr, "%d", &port)
	return host, port
}

func tcpAddrString(a levin.NetworkAddress) string {
	buf := levin.EncodeIPv4(a.IPv4)
	ip := net.IPv4(buf[0], buf[1], buf[2], buf[3])
	return fmt.Sprintf("%s:%d", ip.String(), a.Port)
}

// netAddrLabel is a log-friendly rendering of a NetworkAddress, mirroring
// peer.go's own addrLabel (unexported there, so duplicated here rather
// than exported just for logging).
func netAddrLabel(a levin.NetworkAddress) string {
	switch a.Zone {
	case levin.ZoneTor:
		return a.Onion
	case levin.ZoneI2P:
		return a.I2P
	default:
		return tcpAddrString(a)
	}
}
