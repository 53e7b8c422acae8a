// Package peerset maintains the live Client handles per zone and offers
// the three routing shapes spec §4.10 names: Single (load-balanced pick),
// Broadcast (fan out to everyone ready), and FixedN (n distinct clients,
// for chain-sync style queries). Every routed call gets its own
// cancellable sub-context so dropping the caller's context stops the
// in-flight per-peer request rather than leaking it.
package peerset

import (
	"context"
	cryptorand "crypto/rand"
	"encoding/binary"
	"sync"

	"go.uber.org/atomic"

	"github.com/cuprate/cuprate/internal/cuperrors"
	"github.com/cuprate/cuprate/internal/levin"
	"github.com/cuprate/cuprate/internal/p2p/peer"
)

// Client wraps one Ready peer connection with the load counter routing
// decisions are made against.
type Client struct {
	Peer *peer.Peer
	load atomic.Int64
}

func newClient(p *peer.Peer) *Client { return &Client{Peer: p} }

// Load reports how many requests are currently in flight against this
// client, the figure Single load-balances on.
func (c *Client) Load() int64 { return c.load.Load() }

// Set is the live membership, kept per zone.
type Set struct {
	mu      sync.RWMutex
	byZone  map[levin.Zone]map[*Client]struct{}
}

func New() *Set {
	return &Set{byZone: make(map[levin.Zone]map[*Client]struct{})}
}

// Add registers p as a routable client and returns the handle to track.
// Callers should remove it once p.Done() fires.
func (s *Set) Add(p *peer.Peer) *Client {
	c := newClient(p)
	zone := p.Addr().Zone
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.byZone[zone] == nil {
		s.byZone[zone] = make(map[*Client]struct{})
	}
	s.byZone[zone][c] = struct{}{}
	return c
}

// Remove drops c from routing. Safe to call more than once.
func (s *Set) Remove(c *Client) {
	zone := c.Peer.Addr().Zone
	s.mu.Lock()
	defer s.mu.Unlock()
	if m := s.byZone[zone]; m != nil {
		delete(m, c)
	}
}

// RunUntilDone adds p, blocks until its connection ends, then removes it.
// Callers typically invoke this in its own goroutine right after a peer is
// admitted (spec §4.9), so Set membership exactly tracks Ready connections.
func (s *Set) RunUntilDone(p *peer.Peer) {
	c := s.Add(p)
	<-p.Done()
	s.Remove(c)
}

func (s *Set) snapshot(zone levin.Zone) []*Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m := s.byZone[zone]
	out := make([]*Client, 0, len(m))
	for c := range m {
		out = append(out, c)
	}
	return out
}

// Len reports how many clients are currently routable in zone.
func (s *Set) Len(zone levin.Zone) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byZone[zone])
}

var errNoClients = cuperrors.New(cuperrors.ERR_NOT_FOUND, "peerset: no ready clients in zone")

// Single picks the least-loaded client in zone and runs fn against it,
// tracking load for the duration of the call.
func Single[T any](ctx context.Context, s *Set, zone levin.Zone, fn func(ctx context.Context, c *Client) (T, error)) (T, error) {
	var zero T
	clients := s.snapshot(zone)
	if len(clients) == 0 {
		return zero, errNoClients
	}

	best := clients[0]
	for _, c := range clients[1:] {
		if c.Load() < best.Load() {
			best = c
		}
	}

	best.load.Inc()
	defer best.load.Dec()

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	return fn(subCtx, best)
}

// BroadcastResult pairs one client's outcome with the client itself, since
// Broadcast callers typically want to know which peer produced which
// error.
type BroadcastResult struct {
	Client *Client
	Err    error
}

// Broadcast runs fn against every ready client in zone concurrently,
// cancelling every in-flight call the instant ctx is done.
func Broadcast(ctx context.Context, s *Set, zone levin.Zone, fn func(ctx context.Context, c *Client) error) []BroadcastResult {
	clients := s.snapshot(zone)
	results := make([]BroadcastResult, len(clients))

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for i, c := range clients {
		wg.Add(1)
		c.load.Inc()
		go func(i int, c *Client) {
			defer wg.Done()
			defer c.load.Dec()
			results[i] = BroadcastResult{Client: c, Err: fn(subCtx, c)}
		}(i, c)
	}
	wg.Wait()
	return results
}

// FixedN runs fn against n distinct, randomly chosen ready clients in
// zone (spec §4.10 "typically for chain-sync queries"), or every client if
// fewer than n are available.
func FixedN(ctx context.Context, s *Set, zone levin.Zone, n int, fn func(ctx context.Context, c *Client) error) []BroadcastResult {
	clients := s.snapshot(zone)
	shuffle(clients)
	if n < len(clients) {
		clients = clients[:n]
	}

	results := make([]BroadcastResult, len(clients))
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for i, c := range clients {
		wg.Add(1)
		c.load.Inc()
		go func(i int, c *Client) {
			defer wg.Done()
			defer c.load.Dec()
			results[i] = BroadcastResult{Client: c, Err: fn(subCtx, c)}
		}(i, c)
	}
	wg.Wait()
	return results
}

func shuffle(c []*Client) {
	for i := len(c) - 1; i > 0; i-- {
		j := cryptoRandIntn(i + 1)
		c[i], c[j] = c[j], c[i]
	}
}

func cryptoRandIntn(n int) int {
	if n <= 0 {
		return 0
	}
	var buf [8]byte
	_, _ = cryptorand.Read(buf[:])
	return int(binary.LittleEndian.Uint64(buf[:]) % uint64(n))
}
