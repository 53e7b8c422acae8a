package addressbook

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"sort"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/spaolacci/murmur3"

	"github.com/cuprate/cuprate/internal/cuperrors"
	"github.com/cuprate/cuprate/internal/levin"
	"github.com/cuprate/cuprate/internal/settings"
	"github.com/cuprate/cuprate/internal/ulog"
)

// zoneState is one zone's anchor/white/gray sets. anchor and white are
// small enough (tens to low thousands of entries) that a plain
// mutex-guarded map with an insertion-order slice gives FIFO eviction
// cheaply; gray is the much larger, short-lived candidate pool and uses
// ttlcache's built-in expiry instead of a hand-rolled sweep.
type zoneState struct {
	mu sync.Mutex

	anchor      map[levin.NetworkAddress]Entry
	anchorOrder []levin.NetworkAddress
	anchorCap   int

	white      map[levin.NetworkAddress]Entry
	whiteOrder []levin.NetworkAddress
	whiteCap   int

	gray *ttlcache.Cache[levin.NetworkAddress, Entry]

	backoff map[levin.NetworkAddress]*backoffState
}

func newZoneState(cfg *settings.Settings) *zoneState {
	gray := ttlcache.New[levin.NetworkAddress, Entry](
		ttlcache.WithTTL[levin.NetworkAddress, Entry](cfg.GrayTTL()),
		ttlcache.WithCapacity[levin.NetworkAddress, Entry](uint64(cfg.GraySetCap())),
	)
	go gray.Start()
	return &zoneState{
		anchor:    make(map[levin.NetworkAddress]Entry),
		anchorCap: cfg.AnchorSetCap(),
		white:     make(map[levin.NetworkAddress]Entry),
		whiteCap:  cfg.WhiteSetCap(),
		gray:      gray,
		backoff:   make(map[levin.NetworkAddress]*backoffState),
	}
}

func (z *zoneState) stop() { z.gray.Stop() }

// Book is the address-book of spec §4.7: one zoneState per network zone,
// plus the node's own address so public-zone shares exclude self.
type Book struct {
	log  ulog.Logger
	cfg  *settings.Settings
	self levin.NetworkAddress

	zones map[levin.Zone]*zoneState
}

// New constructs an empty Book. self is excluded from any address shared
// back out on a public zone (spec §4.7 "self-address is excluded on public
// zones").
func New(cfg *settings.Settings, log ulog.Logger, self levin.NetworkAddress) *Book {
	b := &Book{
		log:  log,
		cfg:  cfg,
		self: self,
		zones: map[levin.Zone]*zoneState{
			levin.ZonePublic: newZoneState(cfg),
			levin.ZoneTor:    newZoneState(cfg),
			levin.ZoneI2P:    newZoneState(cfg),
		},
	}
	return b
}

// Close stops every zone's gray-set TTL sweeper.
func (b *Book) Close() {
	for _, z := range b.zones {
		z.stop()
	}
}

func (b *Book) zone(z levin.Zone) *zoneState {
	zs, ok := b.zones[z]
	if !ok {
		// Unknown zone byte from a malformed peer: treat as public rather
		// than panic on a map miss.
		return b.zones[levin.ZonePublic]
	}
	return zs
}

// TakeRandomWhite returns one address-booked "known good" entry for the
// outbound dialer (spec §4.7 take_random_white).
func (b *Book) TakeRandomWhite(zone levin.Zone) (Entry, bool) {
	zs := b.zone(zone)
	zs.mu.Lock()
	defer zs.mu.Unlock()
	return pickRandomFromMap(zs.white)
}

// TakeRandomGray returns one unverified candidate entry for the outbound
// dialer (spec §4.7 take_random_gray).
func (b *Book) TakeRandomGray(zone levin.Zone) (Entry, bool) {
	zs := b.zone(zone)
	zs.mu.Lock()
	defer zs.mu.Unlock()

	items := zs.gray.Items()
	m := make(map[levin.NetworkAddress]Entry, len(items))
	for k, item := range items {
		m[k] = item.Value()
	}
	return pickRandomFromMap(m)
}

func pickRandomFromMap(m map[levin.NetworkAddress]Entry) (Entry, bool) {
	if len(m) == 0 {
		return Entry{}, false
	}
	target := cryptoRandIntn(len(m))
	i := 0
	for _, e := range m {
		if i == target {
			return e, true
		}
		i++
	}
	return Entry{}, false
}

func cryptoRandIntn(n int) int {
	if n <= 0 {
		return 0
	}
	var buf [8]byte
	_, _ = cryptorand.Read(buf[:])
	return int(binary.LittleEndian.Uint64(buf[:]) % uint64(n))
}

// TakeRandomPeers returns up to n addresses from the same zone, shared on
// a handshake reply (spec §4.7 take_random_peers). The cap and self-
// exclusion on public zones are both enforced here. Selection uses a
// murmur3-hashed sort key seeded from crypto/rand: deterministic given the
// seed (handy for tests), genuinely random in production since the seed
// itself is never reused.
func (b *Book) TakeRandomPeers(zone levin.Zone, n int) []levin.PeerlistEntry {
	if cap := b.cfg.PeerListShareCap(); n > cap {
		n = cap
	}

	zs := b.zone(zone)
	zs.mu.Lock()
	candidates := make([]Entry, 0, len(zs.white)+len(zs.anchor))
	seen := make(map[levin.NetworkAddress]bool)
	for _, e := range zs.anchor {
		candidates = append(candidates, e)
		seen[e.Addr] = true
	}
	for _, e := range zs.white {
		if !seen[e.Addr] {
			candidates = append(candidates, e)
		}
	}
	zs.mu.Unlock()

	if zone == levin.ZonePublic {
		filtered := candidates[:0]
		for _, e := range candidates {
			if e.Addr != b.self {
				filtered = append(filtered, e)
			}
		}
		candidates = filtered
	}

	var seedBuf [8]byte
	_, _ = cryptorand.Read(seedBuf[:])
	seed := binary.LittleEndian.Uint64(seedBuf[:])

	sort.Slice(candidates, func(i, j int) bool {
		return hashAddrWithSeed(candidates[i].Addr, seed) < hashAddrWithSeed(candidates[j].Addr, seed)
	})

	if n > len(candidates) {
		n = len(candidates)
	}
	out := make([]levin.PeerlistEntry, n)
	for i := 0; i < n; i++ {
		out[i] = candidates[i].wire()
	}
	return out
}

func hashAddrWithSeed(a levin.NetworkAddress, seed uint64) uint64 {
	buf := addrKeyBytes(a)
	var seedBuf [8]byte
	binary.LittleEndian.PutUint64(seedBuf[:], seed)
	return murmur3.Sum64(append(buf, seedBuf[:]...))
}

func addrKeyBytes(a levin.NetworkAddress) []byte {
	buf := make([]byte, 0, 1+4+16+2+len(a.Onion)+len(a.I2P))
	buf = append(buf, byte(a.Zone))
	var ipv4 [4]byte
	binary.LittleEndian.PutUint32(ipv4[:], a.IPv4)
	buf = append(buf, ipv4[:]...)
	buf = append(buf, a.IPv6[:]...)
	var port [2]byte
	binary.LittleEndian.PutUint16(port[:], a.Port)
	buf = append(buf, port[:]...)
	buf = append(buf, []byte(a.Onion)...)
	buf = append(buf, []byte(a.I2P)...)
	return buf
}

// HandleNewPeerList merges a peer-shared address list into the gray set,
// subject to per-address validation (spec §4.7 handle_new_peer_list).
// Invalid entries are skipped rather than rejecting the whole list, since
// one malformed address from an otherwise useful peer shouldn't discard
// the rest.
func (b *Book) HandleNewPeerList(list []levin.PeerlistEntry, from levin.NetworkAddress) error {
	if len(list) > b.cfg.PeerListShareCap() {
		return cuperrors.New(cuperrors.ERR_PROTOCOL_VIOLATION, "addressbook: peer list of %d exceeds cap %d", len(list), b.cfg.PeerListShareCap())
	}

	zone := from.Zone
	zs := b.zone(zone)

	accepted := 0
	for _, p := range list {
		if p.Addr.Zone != zone {
			continue // "all must be in the same zone"
		}
		if !validAddress(p.Addr) {
			continue
		}
		entry := newEntry(p)
		zs.mu.Lock()
		if _, isAnchor := zs.anchor[entry.Addr]; !isAnchor {
			if _, isWhite := zs.white[entry.Addr]; !isWhite {
				zs.gray.Set(entry.Addr, entry, ttlcache.DefaultTTL)
			}
		}
		zs.mu.Unlock()
		accepted++
	}
	b.log.Debugf("addressbook: merged %d/%d addresses from %s into gray (zone=%s)", accepted, len(list), from.Onion, zone)
	return nil
}

// validAddress applies spec §4.7's per-zone address validation: a 56-char
// base32 onion address for Tor, a non-zero port for every zone.
func validAddress(a levin.NetworkAddress) bool {
	if a.Port == 0 {
		return false
	}
	switch a.Zone {
	case levin.ZoneTor:
		return isBase32Onion(a.Onion)
	case levin.ZoneI2P:
		return len(a.I2P) > 0
	default:
		return true // IPv4 little-endian integer form is validated at decode time (C2)
	}
}

func isBase32Onion(s string) bool {
	if len(s) != 56 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '2' && r <= '7':
		default:
			return false
		}
	}
	return true
}

// PromoteToAnchor moves addr into the anchor set on a successful outbound
// handshake (spec §4.7 promote_to_anchor), evicting the oldest anchor
// entry if the set is at capacity, and clears any backoff state.
func (b *Book) PromoteToAnchor(addr levin.NetworkAddress, entry Entry) {
	zs := b.zone(addr.Zone)
	zs.mu.Lock()
	defer zs.mu.Unlock()

	delete(zs.backoff, addr)
	zs.gray.Delete(addr)

	if _, exists := zs.anchor[addr]; !exists {
		if len(zs.anchor) >= zs.anchorCap && len(zs.anchorOrder) > 0 {
			oldest := zs.anchorOrder[0]
			zs.anchorOrder = zs.anchorOrder[1:]
			delete(zs.anchor, oldest)
		}
		zs.anchorOrder = append(zs.anchorOrder, addr)
	}
	zs.anchor[addr] = entry

	if _, exists := zs.white[addr]; !exists {
		if len(zs.white) >= zs.whiteCap && len(zs.whiteOrder) > 0 {
			oldest := zs.whiteOrder[0]
			zs.whiteOrder = zs.whiteOrder[1:]
			delete(zs.white, oldest)
		}
		zs.whiteOrder = append(zs.whiteOrder, addr)
	}
	zs.white[addr] = entry
}

// Demote removes addr from the anchor/white sets on disconnect or dial
// failure and schedules an exponentially backed-off re-dial time (spec
// §4.7 demote). The entry is dropped back to nothing rather than gray:
// a peer that just failed shouldn't be immediately re-offered to the
// dialer via the gray pool either.
func (b *Book) Demote(addr levin.NetworkAddress, reason DemoteReason) {
	zs := b.zone(addr.Zone)
	zs.mu.Lock()
	defer zs.mu.Unlock()

	delete(zs.anchor, addr)
	delete(zs.white, addr)
	for i, a := range zs.anchorOrder {
		if a == addr {
			zs.anchorOrder = append(zs.anchorOrder[:i], zs.anchorOrder[i+1:]...)
			break
		}
	}
	for i, a := range zs.whiteOrder {
		if a == addr {
			zs.whiteOrder = append(zs.whiteOrder[:i], zs.whiteOrder[i+1:]...)
			break
		}
	}

	bs, ok := zs.backoff[addr]
	if !ok {
		bs = &backoffState{}
		zs.backoff[addr] = bs
	}
	bs.attempts++

	backoff := b.cfg.DemoteBaseBackoff() << uint(bs.attempts-1)
	if maxB := b.cfg.DemoteMaxBackoff(); backoff > maxB || backoff <= 0 {
		backoff = maxB
	}
	bs.nextRedial = time.Now().Add(backoff)

	b.log.Debugf("addressbook: demoted %s (%s), attempt %d, next redial in %s", addrString(addr), reason, bs.attempts, backoff)
}

// CanRedial reports whether addr's backoff window (if any) has elapsed.
func (b *Book) CanRedial(addr levin.NetworkAddress) bool {
	zs := b.zone(addr.Zone)
	zs.mu.Lock()
	defer zs.mu.Unlock()
	bs, ok := zs.backoff[addr]
	if !ok {
		return true
	}
	return !time.Now().Before(bs.nextRedial)
}

// addrString renders addr for log lines; not wire format.
func addrString(a levin.NetworkAddress) string {
	switch a.Zone {
	case levin.ZoneTor:
		return a.Onion
	case levin.ZoneI2P:
		return a.I2P
	default:
		var ip [4]byte
		binary.LittleEndian.PutUint32(ip[:], a.IPv4)
		return string(formatIPv4(ip))
	}
}

func formatIPv4(ip [4]byte) []byte {
	buf := make([]byte, 0, 16)
	for i, b := range ip {
		if i > 0 {
			buf = append(buf, '.')
		}
		buf = appendUint8(buf, b)
	}
	return buf
}

func appendUint8(buf []byte, v uint8) []byte {
	if v >= 100 {
		buf = append(buf, '0'+v/100)
		v %= 100
		buf = append(buf, '0'+v/10)
		v %= 10
		buf = append(buf, '0'+v)
	} else if v >= 10 {
		buf = append(buf, '0'+v/10)
		v %= 10
		buf = append(buf, '0'+v)
	} else {
		buf = append(buf, '0'+v)
	}
	return buf
}
