// Package peer runs spec §4.8's one-task-per-connection loop: frame and
// reassemble buckets off the wire, match admin responses to their
// outstanding requests by command id, enforce per-message size, per-
// connection rate, and keep-alive timers, and surface protocol
// notifications to a caller-supplied handler. The lifecycle itself
// (Connecting/Handshaking/Ready/Closing) is a small looplab/fsm state
// machine, the same library the Dandelion++ router (C11) uses for its
// per-transaction state machine.
package peer

import (
	"bufio"
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/looplab/fsm"
	"golang.org/x/time/rate"

	"github.com/cuprate/cuprate/internal/cuperrors"
	"github.com/cuprate/cuprate/internal/epee"
	"github.com/cuprate/cuprate/internal/levin"
	"github.com/cuprate/cuprate/internal/settings"
	"github.com/cuprate/cuprate/internal/ulog"
)

// FailureKind classifies why a connection terminated (spec §4.8). Only
// ProtocolViolation is address-book-banworthy; the others just end the
// connection.
type FailureKind string

const (
	FailureIO                FailureKind = "io"
	FailureCodec              FailureKind = "codec"
	FailureProtocolViolation  FailureKind = "protocol_violation"
	FailureTimeout            FailureKind = "timeout"
	FailurePeerDropped        FailureKind = "peer_dropped"
)

// Failure is the reason a Peer's Run loop returned.
type Failure struct {
	Kind FailureKind
	Err  error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return string(f.Kind)
	}
	return string(f.Kind) + ": " + f.Err.Error()
}

// NotificationHandler is invoked for every protocol (non-admin) command a
// peer sends: new transactions, new blocks, chain/object requests and
// responses that this peer's caller (not Peer itself) owns the business
// logic for. Handlers run on the connection's read goroutine and must not
// block indefinitely.
type NotificationHandler func(ctx context.Context, p *Peer, cmd levin.Command, body []byte) error

// Peer owns one connected socket. Admin (request/response) commands are
// resolved against outstandingRequests; protocol commands are dispatched to
// the NotificationHandler.
type Peer struct {
	conn net.Conn
	addr levin.NetworkAddress
	zone levin.Zone
	log  ulog.Logger
	cfg  *settings.Settings

	fsm *fsm.FSM

	writeMu sync.Mutex
	bw      *bufio.Writer

	reassembler *levin.Reassembler

	pending   map[levin.Command]chan pendingResult
	pendingMu sync.Mutex

	limiter *rate.Limiter

	notify NotificationHandler

	lastRecv   time.Time
	lastRecvMu sync.Mutex

	closeOnce sync.Once
	done      chan struct{}
}

type pendingResult struct {
	body []byte
	err  error
}

// States mirror spec §4.8's connection lifecycle.
const (
	StateConnecting   = "connecting"
	StateHandshaking  = "handshaking"
	StateReady        = "ready"
	StateClosing      = "closing"
)

// New wraps an already-dialed/accepted conn. The caller drives the
// handshake (C9) before calling Run, transitioning the FSM to Ready once
// admitted.
func New(conn net.Conn, addr levin.NetworkAddress, cfg *settings.Settings, log ulog.Logger, notify NotificationHandler) *Peer {
	p := &Peer{
		conn:        conn,
		addr:        addr,
		zone:        addr.Zone,
		log:         log,
		cfg:         cfg,
		bw:          bufio.NewWriter(conn),
		reassembler: levin.NewReassembler(cfg.BucketSizeCap()),
		pending:     make(map[levin.Command]chan pendingResult),
		limiter:     rate.NewLimiter(rate.Limit(cfg.MaxOutstandingRequests()), cfg.MaxOutstandingRequests()),
		notify:      notify,
		done:        make(chan struct{}),
	}
	p.fsm = fsm.NewFSM(
		StateConnecting,
		fsm.Events{
			{Name: "handshake_begin", Src: []string{StateConnecting}, Dst: StateHandshaking},
			{Name: "admit", Src: []string{StateHandshaking}, Dst: StateReady},
			{Name: "close", Src: []string{StateConnecting, StateHandshaking, StateReady}, Dst: StateClosing},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				p.log.Debugf("peer %s: %s -> %s", addrLabel(addr), e.Src, e.Dst)
			},
		},
	)
	p.markRecv()
	return p
}

func addrLabel(a levin.NetworkAddress) string {
	if a.Onion != "" {
		return a.Onion
	}
	if a.I2P != "" {
		return a.I2P
	}
	return net.IPv4(byte(a.IPv4), byte(a.IPv4>>8), byte(a.IPv4>>16), byte(a.IPv4>>24)).String()
}

// State reports the connection's current lifecycle state.
func (p *Peer) State() string { return p.fsm.Current() }

// Addr returns this connection's network address.
func (p *Peer) Addr() levin.NetworkAddress { return p.addr }

// BeginHandshake and Admit drive the FSM from the handshaker (C9).
func (p *Peer) BeginHandshake(ctx context.Context) error { return p.fsm.Event(ctx, "handshake_begin") }
func (p *Peer) Admit(ctx context.Context) error          { return p.fsm.Event(ctx, "admit") }

func (p *Peer) markRecv() {
	p.lastRecvMu.Lock()
	p.lastRecv = time.Now()
	p.lastRecvMu.Unlock()
}

func (p *Peer) idleSince() time.Duration {
	p.lastRecvMu.Lock()
	defer p.lastRecvMu.Unlock()
	return time.Since(p.lastRecv)
}

// sendBucket frames and writes one logical message, unfragmented (every
// Cuprate-originated message fits comfortably under the bucket cap; only
// received messages from other implementations are ever fragmented).
func (p *Peer) sendBucket(cmd levin.Command, body []byte, expectResponse bool, flags uint32) error {
	h := levin.Header{
		Signature:       levin.Signature,
		BodySize:        uint64(len(body)),
		ExpectResponse:  expectResponse,
		Command:         cmd,
		Flags:           flags | levin.FlagStartFragment | levin.FlagEndFragment,
		ProtocolVersion: levin.ProtocolVersion,
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if _, err := p.bw.Write(levin.EncodeHeader(h)); err != nil {
		return cuperrors.New(cuperrors.ERR_IO, "peer: header write", err)
	}
	if _, err := p.bw.Write(body); err != nil {
		return cuperrors.New(cuperrors.ERR_IO, "peer: body write", err)
	}
	return p.bw.Flush()
}

// Reply answers an incoming admin request (ExpectResponse was true on the
// request) with the same command id and ExpectResponse false, so the
// peer's own pending-response matching finds it.
func (p *Peer) Reply(cmd levin.Command, w epee.Writable) error {
	body, err := epee.Marshal(w)
	if err != nil {
		return cuperrors.New(cuperrors.ERR_FORMAT, "peer: marshal reply", err)
	}
	return p.sendBucket(cmd, body, false, levin.FlagResponse)
}

// SendNotification writes a protocol (fire-and-forget) command.
func (p *Peer) SendNotification(cmd levin.Command, w epee.Writable) error {
	body, err := epee.Marshal(w)
	if err != nil {
		return cuperrors.New(cuperrors.ERR_FORMAT, "peer: marshal notification", err)
	}
	return p.sendBucket(cmd, body, false, levin.FlagRequest)
}

// Call sends a request and blocks for its matching response, keyed by
// respCmd (spec §4.8's request/response pairing — reqCmd and respCmd are
// the same command for admin pairs like Ping/TimedSync, and distinct
// commands for protocol pairs like RequestChain/ResponseChainEntry). Only
// one outstanding call per respCmd is tracked at a time; callers needing
// more concurrency issue calls for distinct commands rather than the same
// one twice, with MaxOutstandingRequests bounding overall throughput via
// the rate limiter.
func (p *Peer) Call(ctx context.Context, reqCmd, respCmd levin.Command, req epee.Writable) ([]byte, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, cuperrors.New(cuperrors.ERR_THRESHOLD_EXCEEDED, "peer: rate limited", err)
	}

	ch := make(chan pendingResult, 1)
	p.pendingMu.Lock()
	p.pending[respCmd] = ch
	p.pendingMu.Unlock()
	defer func() {
		p.pendingMu.Lock()
		delete(p.pending, respCmd)
		p.pendingMu.Unlock()
	}()

	body, err := epee.Marshal(req)
	if err != nil {
		return nil, cuperrors.New(cuperrors.ERR_FORMAT, "peer: marshal request", err)
	}
	if err := p.sendBucket(reqCmd, body, true, levin.FlagRequest); err != nil {
		return nil, err
	}

	select {
	case r := <-ch:
		return r.body, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.done:
		return nil, &Failure{Kind: FailurePeerDropped}
	}
}

// Run drives the read loop until the connection fails or ctx is cancelled.
// It never returns nil: a clean shutdown still surfaces FailurePeerDropped
// so callers have one code path for address-book bookkeeping.
func (p *Peer) Run(ctx context.Context) *Failure {
	defer p.closeOnce.Do(func() { close(p.done) })

	go p.keepAliveLoop(ctx)

	r := bufio.NewReader(p.conn)
	for {
		select {
		case <-ctx.Done():
			return &Failure{Kind: FailurePeerDropped, Err: ctx.Err()}
		default:
		}

		_ = p.conn.SetReadDeadline(time.Now().Add(p.cfg.HandshakeTimeout() * 6))
		h, err := levin.ReadBucketHeader(r, p.cfg.BucketSizeCap())
		if err != nil {
			if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
				return &Failure{Kind: FailureTimeout, Err: err}
			}
			if err == io.EOF {
				return &Failure{Kind: FailurePeerDropped}
			}
			if cerr, ok := err.(*cuperrors.Error); ok && cerr.Code == cuperrors.ERR_PROTOCOL_VIOLATION {
				return &Failure{Kind: FailureProtocolViolation, Err: err}
			}
			return &Failure{Kind: FailureIO, Err: err}
		}

		body, err := levin.ReadBucketBody(r, h)
		if err != nil {
			return &Failure{Kind: FailureIO, Err: err}
		}

		p.markRecv()

		bucket, err := p.reassembler.Feed(h, body)
		if err != nil {
			return &Failure{Kind: FailureCodec, Err: err}
		}
		if bucket == nil {
			continue // dummy keep-alive or mid-fragment
		}

		if err := p.dispatch(ctx, *bucket); err != nil {
			if f, ok := err.(*Failure); ok {
				return f
			}
			return &Failure{Kind: FailureCodec, Err: err}
		}
	}
}

// dispatch resolves one decoded bucket. Response matching is keyed purely
// by command id against p.pending, which covers both admin pairs that
// reuse one command for request and response (Ping, TimedSync) and
// protocol pairs that use a distinct response command (RequestChain ->
// ResponseChainEntry, RequestGetObjects -> ResponseGetObjects,
// RequestFluffyMissingTx -> NewFluffyBlock): Call always registers its
// wait under respCmd, so a bucket only ever matches a waiter when its
// command equals someone's respCmd. Anything unmatched — including every
// admin request this Peer must itself answer, and every fire-and-forget
// notification — goes to the caller's handler.
func (p *Peer) dispatch(ctx context.Context, b levin.Bucket) error {
	if !b.Header.ExpectResponse {
		p.pendingMu.Lock()
		ch, ok := p.pending[b.Header.Command]
		p.pendingMu.Unlock()
		if ok {
			ch <- pendingResult{body: b.Body}
			return nil
		}
	}

	if p.notify != nil {
		return p.notify(ctx, p, b.Header.Command, b.Body)
	}
	return nil
}

func (p *Peer) keepAliveLoop(ctx context.Context) {
	t := time.NewTicker(p.cfg.TimedSyncInterval())
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.done:
			return
		case <-t.C:
			if p.idleSince() < p.cfg.TimedSyncInterval() {
				continue
			}
			req := &levin.TimedSyncRequest{}
			tctx, cancel := context.WithTimeout(ctx, p.cfg.HandshakeTimeout())
			_, err := p.Call(tctx, levin.CmdTimedSync, levin.CmdTimedSync, req)
			cancel()
			if err != nil {
				p.log.Warnf("peer %s: timed sync failed: %v", addrLabel(p.addr), err)
				p.Close()
				return
			}
		}
	}
}

// Close shuts down the socket, unblocking Run and any pending Call.
func (p *Peer) Close() error {
	_ = p.fsm.Event(context.Background(), "close")
	p.closeOnce.Do(func() { close(p.done) })
	return p.conn.Close()
}

// Done returns a channel closed once the connection has terminated.
func (p *Peer) Done() <-chan struct{} { return p.done }
