// Package addressbook implements the per-zone anchor/white/gray address
// sets of spec §4.7: the outbound dialer's candidate pool, merged from
// peer-shared lists and promoted/demoted as connections succeed or fail.
// This is C7.
package addressbook

import (
	"time"

	"github.com/google/uuid"

	"github.com/cuprate/cuprate/internal/levin"
)

// Entry is one address-book record. LocalID is a process-local identifier
// assigned when an entry is created or loaded; it is not persisted, so it
// changes across restarts, and it is never sent over the wire (the wire-visible identifier is Entry.PeerID,
// carried in levin.PeerlistEntry.ID).
type Entry struct {
	LocalID           uuid.UUID
	Addr              levin.NetworkAddress
	PeerID            uint64
	LastSeen          time.Time
	PruningSeed       uint32
	RPCPort           uint16
	RPCCreditsPerHash uint32
}

func newEntry(p levin.PeerlistEntry) Entry {
	return Entry{
		LocalID:           uuid.New(),
		Addr:              p.Addr,
		PeerID:            p.ID,
		LastSeen:          time.Unix(p.LastSeen, 0),
		PruningSeed:       p.PruningSeed,
		RPCPort:           p.RPCPort,
		RPCCreditsPerHash: p.RPCCreditsPerHash,
	}
}

// wire converts e back to the on-handshake share format.
func (e Entry) wire() levin.PeerlistEntry {
	return levin.PeerlistEntry{
		Addr:              e.Addr,
		ID:                e.PeerID,
		LastSeen:          e.LastSeen.Unix(),
		PruningSeed:       e.PruningSeed,
		RPCPort:           e.RPCPort,
		RPCCreditsPerHash: e.RPCCreditsPerHash,
	}
}

// DemoteReason categorizes why a peer left the anchor/white set, purely
// for logging; the backoff schedule itself doesn't vary by reason (spec
// §4.7 names no reason-specific policy).
type DemoteReason string

const (
	ReasonDisconnected DemoteReason = "disconnected"
	ReasonDialFailed   DemoteReason = "dial_failed"
	ReasonProtocol     DemoteReason = "protocol_violation"
)

type backoffState struct {
	attempts   int
	nextRedial time.Time
}
