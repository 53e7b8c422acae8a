// Package dandelion implements spec §4.11's stem/fluff transaction relay:
// a per-epoch node role (stem or fluff, chosen by a biased coin flip) and
// a per-transaction Local/Stem/Fluff state machine, the same looplab/fsm
// idiom C8 uses for connection lifecycle. A locally-originated
// transaction always stems once regardless of role; a received stem
// transaction continues along the stem path with probability p or
// promotes to fluff; a fluff transaction broadcasts with a jittered
// delay. An embargo timer forces Stem to Fluff after a random interval
// to bound worst-case propagation latency.
package dandelion

import (
	"context"
	cryptorand "crypto/rand"
	"encoding/binary"
	"math"
	"sync"
	"time"

	"github.com/looplab/fsm"

	"github.com/cuprate/cuprate/internal/chainmodel"
	"github.com/cuprate/cuprate/internal/levin"
	"github.com/cuprate/cuprate/internal/p2p/peerset"
	"github.com/cuprate/cuprate/internal/settings"
	"github.com/cuprate/cuprate/internal/txpool"
	"github.com/cuprate/cuprate/internal/ulog"
)

// Role is this node's part for the current epoch.
type Role string

const (
	RoleStem  Role = "stem"
	RoleFluff Role = "fluff"
)

const (
	txStateLocal = "local"
	txStateStem  = "stem"
	txStateFluff = "fluff"
)

// Router drives stem/fluff relay for every transaction this node either
// originates or receives. It owns no storage of its own: relay state
// lives in the per-tx fsm and the terminal Fluff promotion is recorded in
// the pool via PromoteToFluff.
type Router struct {
	cfg   *settings.Settings
	peers *peerset.Set
	pool  *txpool.Pool
	log   ulog.Logger

	mu            sync.Mutex
	role          Role
	stemSuccessor *peerset.Client

	txMu  sync.Mutex
	txFSM map[chainmodel.Hash]*fsm.FSM
}

func New(cfg *settings.Settings, peers *peerset.Set, pool *txpool.Pool, log ulog.Logger) *Router {
	return &Router{
		cfg:   cfg,
		peers: peers,
		pool:  pool,
		log:   log,
		role:  RoleFluff,
		txFSM: make(map[chainmodel.Hash]*fsm.FSM),
	}
}

// RunEpochLoop rolls the node's role and stem successor on cfg's configured
// interval until ctx is cancelled, rolling once immediately on entry.
func (r *Router) RunEpochLoop(ctx context.Context) {
	r.rollEpoch(ctx)
	ticker := time.NewTicker(r.cfg.DandelionEpoch())
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.rollEpoch(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (r *Router) rollEpoch(ctx context.Context) {
	role := RoleFluff
	if cryptoRandFloat() < r.cfg.DandelionStemFanout() {
		role = RoleStem
	}

	zone := levin.ZonePublic
	if r.cfg.TorEnabled() && r.peers.Len(levin.ZoneTor) > 0 {
		zone = levin.ZoneTor
	}
	successor := r.pickOne(ctx, zone)

	r.mu.Lock()
	r.role = role
	r.stemSuccessor = successor
	r.mu.Unlock()

	r.log.Debugf("dandelion: new epoch, role=%s zone=%d successor=%v", role, zone, successor != nil)
}

func (r *Router) current() (Role, *peerset.Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.role, r.stemSuccessor
}

func (r *Router) pickOne(ctx context.Context, zone levin.Zone) *peerset.Client {
	results := peerset.FixedN(ctx, r.peers, zone, 1, func(context.Context, *peerset.Client) error { return nil })
	if len(results) == 0 {
		return nil
	}
	return results[0].Client
}

func newTxFSM() *fsm.FSM {
	return fsm.NewFSM(
		txStateLocal,
		fsm.Events{
			{Name: "promote_fluff", Src: []string{txStateLocal, txStateStem}, Dst: txStateFluff},
			{Name: "enter_stem", Src: []string{txStateLocal}, Dst: txStateStem},
		},
		fsm.Callbacks{},
	)
}

func (r *Router) fsmFor(hash chainmodel.Hash, initial string) *fsm.FSM {
	r.txMu.Lock()
	defer r.txMu.Unlock()
	f, ok := r.txFSM[hash]
	if !ok {
		f = newTxFSM()
		if initial == txStateStem {
			_ = f.Event(context.Background(), "enter_stem")
		}
		r.txFSM[hash] = f
	}
	return f
}

func (r *Router) forgetFSM(hash chainmodel.Hash) {
	r.txMu.Lock()
	delete(r.txFSM, hash)
	r.txMu.Unlock()
}

// RouteLocal relays a transaction this node just originated: it must stem
// once regardless of the node's own epoch role (spec §4.11 "Local tx").
// On send failure it falls back to fluffing immediately.
func (r *Router) RouteLocal(ctx context.Context, e txpool.Entry) error {
	f := r.fsmFor(e.Hash, txStateLocal)
	defer r.scheduleEmbargo(e.Hash)

	_, successor := r.current()
	if successor == nil || r.sendStem(successor, e.Blob) != nil {
		return r.fluff(ctx, f, e.Hash, e.Blob)
	}
	_ = f.Event(ctx, "enter_stem")
	return nil
}

// RouteReceived handles a transaction relayed to us by another node,
// continuing the stem path or fluffing per spec §4.11 "Stem tx"/"Fluff tx".
func (r *Router) RouteReceived(ctx context.Context, e txpool.Entry, stemHop bool) error {
	if !stemHop {
		f := r.fsmFor(e.Hash, txStateLocal)
		return r.fluff(ctx, f, e.Hash, e.Blob)
	}

	f := r.fsmFor(e.Hash, txStateStem)
	defer r.scheduleEmbargo(e.Hash)

	if cryptoRandFloat() < r.cfg.DandelionStemFanout() {
		_, successor := r.current()
		if successor != nil && r.sendStem(successor, e.Blob) == nil {
			return nil
		}
	}
	return r.fluff(ctx, f, e.Hash, e.Blob)
}

func (r *Router) sendStem(c *peerset.Client, blob []byte) error {
	return c.Peer.SendNotification(levin.CmdNewTransactions, &levin.NewTransactions{
		Txs:         [][]byte{blob},
		Dandelionpp: true,
	})
}

// fluff promotes hash to Fluff in the pool and broadcasts it after a
// jittered delay, bounding the timing side-channel a fixed-delay broadcast
// would otherwise leak.
func (r *Router) fluff(ctx context.Context, f *fsm.FSM, hash chainmodel.Hash, blob []byte) error {
	if err := f.Event(ctx, "promote_fluff"); err != nil && f.Current() != txStateFluff {
		return err
	}
	if err := r.pool.PromoteToFluff(ctx, hash); err != nil {
		return err
	}
	r.forgetFSM(hash)

	delay := jitter(100*time.Millisecond, 2*time.Second)
	go func() {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
		peerset.Broadcast(ctx, r.peers, levin.ZonePublic, func(ctx context.Context, c *peerset.Client) error {
			return c.Peer.SendNotification(levin.CmdNewTransactions, &levin.NewTransactions{Txs: [][]byte{blob}})
		})
	}()
	return nil
}

// scheduleEmbargo forces Stem to Fluff after a random interval (spec
// §4.11's embargo timer), guarding against a transaction stalling forever
// on a stem path whose successor silently drops it.
func (r *Router) scheduleEmbargo(hash chainmodel.Hash) {
	delay := jitter(r.cfg.DandelionEmbargoMin(), r.cfg.DandelionEmbargoMax())
	time.AfterFunc(delay, func() {
		r.txMu.Lock()
		f, ok := r.txFSM[hash]
		r.txMu.Unlock()
		if !ok || f.Current() == txStateFluff {
			return
		}

		e, found, err := r.pool.Lookup(context.Background(), hash)
		if err != nil || !found {
			r.forgetFSM(hash)
			return
		}
		if err := r.fluff(context.Background(), f, hash, e.Blob); err != nil {
			r.log.Warnf("dandelion: embargo fluff of %x failed: %v", hash, err)
		}
	})
}

func jitter(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	span := int64(max - min)
	var buf [8]byte
	_, _ = cryptorand.Read(buf[:])
	n := int64(binary.LittleEndian.Uint64(buf[:]) % uint64(span))
	return min + time.Duration(n)
}

func cryptoRandFloat() float64 {
	var buf [8]byte
	_, _ = cryptorand.Read(buf[:])
	return float64(binary.LittleEndian.Uint64(buf[:])) / math.MaxUint64
}
