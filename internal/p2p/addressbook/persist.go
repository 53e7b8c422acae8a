package addressbook

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	json "github.com/segmentio/encoding/json"

	"github.com/cuprate/cuprate/internal/levin"
)

// persistedEntry is the on-disk shape of an Entry. It mirrors Entry field
// for field rather than embedding it so the wire/disk formats can diverge
// without Entry itself growing json tags.
type persistedEntry struct {
	Zone              levin.Zone `json:"zone"`
	IPv4              uint32     `json:"ipv4,omitempty"`
	IPv6              [16]byte   `json:"ipv6,omitempty"`
	Onion             string     `json:"onion,omitempty"`
	I2P               string     `json:"i2p,omitempty"`
	Port              uint16     `json:"port"`
	PeerID            uint64     `json:"peer_id"`
	LastSeen          int64      `json:"last_seen"`
	PruningSeed       uint32     `json:"pruning_seed"`
	RPCPort           uint16     `json:"rpc_port"`
	RPCCreditsPerHash uint32     `json:"rpc_credits_per_hash"`
	Set               string     `json:"set"` // "anchor" or "white"; gray is never persisted
}

func toPersisted(e Entry, set string) persistedEntry {
	return persistedEntry{
		Zone:              e.Addr.Zone,
		IPv4:              e.Addr.IPv4,
		IPv6:              e.Addr.IPv6,
		Onion:             e.Addr.Onion,
		I2P:               e.Addr.I2P,
		Port:              e.Addr.Port,
		PeerID:            e.PeerID,
		LastSeen:          e.LastSeen.Unix(),
		PruningSeed:       e.PruningSeed,
		RPCPort:           e.RPCPort,
		RPCCreditsPerHash: e.RPCCreditsPerHash,
		Set:               set,
	}
}

func (p persistedEntry) toEntry() Entry {
	return Entry{
		LocalID: uuid.New(),
		Addr: levin.NetworkAddress{
			Zone:  p.Zone,
			IPv4:  p.IPv4,
			IPv6:  p.IPv6,
			Onion: p.Onion,
			I2P:   p.I2P,
			Port:  p.Port,
		},
		PeerID:            p.PeerID,
		LastSeen:          time.Unix(p.LastSeen, 0),
		PruningSeed:       p.PruningSeed,
		RPCPort:           p.RPCPort,
		RPCCreditsPerHash: p.RPCCreditsPerHash,
	}
}

// Save writes every anchor/white entry across all zones to path as
// newline-delimited JSON (spec §4.7 "persisted to disk ... at shutdown and
// on a timer"). The gray set is never persisted: it is rebuilt from peer
// shares after restart.
func (b *Book) Save(path string) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)

	var saveErr error
	for _, zs := range b.zones {
		zs.mu.Lock()
		for _, addr := range zs.anchorOrder {
			if e, ok := zs.anchor[addr]; ok {
				if err := enc.Encode(toPersisted(e, "anchor")); err != nil {
					saveErr = err
				}
			}
		}
		for _, addr := range zs.whiteOrder {
			if e, ok := zs.white[addr]; ok {
				if err := enc.Encode(toPersisted(e, "white")); err != nil {
					saveErr = err
				}
			}
		}
		zs.mu.Unlock()
	}

	if saveErr == nil {
		saveErr = w.Flush()
	}
	closeErr := f.Close()
	if saveErr != nil {
		os.Remove(tmp)
		return saveErr
	}
	if closeErr != nil {
		os.Remove(tmp)
		return closeErr
	}
	return os.Rename(tmp, path)
}

// Load populates b from path. A missing file is not an error (first run).
// A corrupt file is logged and its contents ignored as a whole rather than
// treated as fatal: the address book rebuilds itself from peer shares
// regardless (spec §4.7 "cleared non-fatally on corruption").
func (b *Book) Load(path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	dec := json.NewDecoder(bufio.NewReader(f))
	var records []persistedEntry
	for {
		var p persistedEntry
		if err := dec.Decode(&p); err != nil {
			if !errors.Is(err, io.EOF) {
				b.log.Warnf("addressbook: %s is corrupt after %d entries, ignoring the file: %v", path, len(records), err)
				return
			}
			break
		}
		records = append(records, p)
	}

	loaded := 0
	for _, p := range records {
		entry := p.toEntry()
		if !validAddress(entry.Addr) {
			continue
		}
		zs := b.zone(entry.Addr.Zone)
		zs.mu.Lock()
		switch p.Set {
		case "anchor":
			if _, exists := zs.anchor[entry.Addr]; !exists {
				zs.anchorOrder = append(zs.anchorOrder, entry.Addr)
			}
			zs.anchor[entry.Addr] = entry
		default:
			if _, exists := zs.white[entry.Addr]; !exists {
				zs.whiteOrder = append(zs.whiteOrder, entry.Addr)
			}
			zs.white[entry.Addr] = entry
		}
		zs.mu.Unlock()
		loaded++
	}
	b.log.Infof("addressbook: loaded %d persisted addresses from %s", loaded, path)
}

// RunPersistLoop saves the book to path every interval until ctx is
// cancelled, then performs one final save (spec §4.7 "on a timer" plus "at
// shutdown").
func (b *Book) RunPersistLoop(ctx context.Context, path string, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if err := b.Save(path); err != nil {
				b.log.Warnf("addressbook: periodic save to %s failed: %v", path, err)
			}
		case <-ctx.Done():
			if err := b.Save(path); err != nil {
				b.log.Warnf("addressbook: final save to %s failed: %v", path, err)
			}
			return
		}
	}
}
