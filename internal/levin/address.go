package levin

import (
	"encoding/binary"

	"github.com/cuprate/cuprate/internal/epee"
)

// Zone names a network address family, each with its own address-book,
// peer-set, and routing instances (spec §4, glossary "Network zone").
type Zone uint8

const (
	ZonePublic Zone = iota
	ZoneTor
	ZoneI2P
)

func (z Zone) String() string {
	switch z {
	case ZoneTor:
		return "tor"
	case ZoneI2P:
		return "i2p"
	default:
		return "public"
	}
}

// NetworkAddress is one of clear IPv4/IPv6, onion-v3, or I2P (spec §3). The
// IPv4 quirk from spec §4.2 applies: the 32-bit address is little-endian,
// never run through a generic "network order" conversion.
type NetworkAddress struct {
	Zone Zone
	IPv4 uint32 // little-endian encoded on the wire, host uint32 in memory
	IPv6 [16]byte
	Onion string // 56-char base32 onion-v3 address, zone == ZoneTor
	I2P   string // zone == ZoneI2P
	Port  uint16
}

// EncodeIPv4 returns the 4-byte little-endian wire form of addr, per the
// IPv4 quirk of spec §4.2.
func EncodeIPv4(addr uint32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, addr)
	return buf
}

// DecodeIPv4 is the inverse of EncodeIPv4.
func DecodeIPv4(buf []byte) uint32 { return binary.LittleEndian.Uint32(buf) }

func (a *NetworkAddress) FieldCount() int { return 2 }

func (a *NetworkAddress) WriteFields(w *epee.Writer) error {
	if err := w.Field("type", epee.TagUint8, func() { w.WriteUint8(uint8(a.Zone)) }); err != nil {
		return err
	}
	switch a.Zone {
	case ZonePublic:
		return w.Field("addr", epee.TagObject, func() {
			w.WriteObjectFieldCount(2)
			_ = w.Field("m_ip", epee.TagUint32, func() { w.WriteUint32(a.IPv4) })
			_ = w.Field("m_port", epee.TagUint16, func() { w.WriteUint16(a.Port) })
		})
	case ZoneTor:
		return w.Field("addr", epee.TagObject, func() {
			w.WriteObjectFieldCount(2)
			_ = w.Field("addr", epee.TagString, func() { w.WriteString(a.Onion) })
			_ = w.Field("port", epee.TagUint16, func() { w.WriteUint16(a.Port) })
		})
	default:
		return w.Field("addr", epee.TagObject, func() {
			w.WriteObjectFieldCount(2)
			_ = w.Field("addr", epee.TagString, func() { w.WriteString(a.I2P) })
			_ = w.Field("port", epee.TagUint16, func() { w.WriteUint16(a.Port) })
		})
	}
}

func (a *NetworkAddress) AddField(name string, tag epee.Tag, r *epee.Reader) (bool, error) {
	switch name {
	case "type":
		v, err := r.ReadUint8()
		if err != nil {
			return false, err
		}
		a.Zone = Zone(v)
		return true, nil
	case "addr":
		return true, epee.UnmarshalObject(r, a.addrBuilder())
	}
	return false, nil
}

func (a *NetworkAddress) Finish() error { return nil }

// addrBuilder returns a Builder for the nested "addr" object whose shape
// depends on a.Zone (already read from the preceding "type" field).
func (a *NetworkAddress) addrBuilder() epee.Builder { return &addrFieldBuilder{a: a} }

type addrFieldBuilder struct{ a *NetworkAddress }

func (b *addrFieldBuilder) AddField(name string, tag epee.Tag, r *epee.Reader) (bool, error) {
	switch name {
	case "m_ip":
		v, err := r.ReadUint32()
		if err != nil {
			return false, err
		}
		b.a.IPv4 = v
		return true, nil
	case "m_port":
		v, err := r.ReadUint16()
		if err != nil {
			return false, err
		}
		b.a.Port = v
		return true, nil
	case "addr":
		v, err := r.ReadString()
		if err != nil {
			return false, err
		}
		switch b.a.Zone {
		case ZoneTor:
			b.a.Onion = v
		case ZoneI2P:
			b.a.I2P = v
		}
		return true, nil
	case "port":
		v, err := r.ReadUint16()
		if err != nil {
			return false, err
		}
		b.a.Port = v
		return true, nil
	}
	return false, nil
}

func (b *addrFieldBuilder) Finish() error { return nil }

// PeerlistEntry is one address-book entry as shared over the wire on
// handshake (spec §4.9).
type PeerlistEntry struct {
	Addr         NetworkAddress
	ID           uint64
	LastSeen     int64
	PruningSeed  uint32
	RPCPort      uint16
	RPCCreditsPerHash uint32
}

func (p *PeerlistEntry) FieldCount() int { return 6 }

func (p *PeerlistEntry) WriteFields(w *epee.Writer) error {
	if err := w.Field("adr", epee.TagObject, func() { _ = epee.MarshalObject(w, &p.Addr) }); err != nil {
		return err
	}
	if err := w.Field("id", epee.TagUint64, func() { w.WriteUint64(p.ID) }); err != nil {
		return err
	}
	if err := w.Field("last_seen", epee.TagInt64, func() { w.WriteInt64(p.LastSeen) }); err != nil {
		return err
	}
	if err := w.Field("pruning_seed", epee.TagUint32, func() { w.WriteUint32(p.PruningSeed) }); err != nil {
		return err
	}
	if err := w.Field("rpc_port", epee.TagUint16, func() { w.WriteUint16(p.RPCPort) }); err != nil {
		return err
	}
	return w.Field("rpc_credits_per_hash", epee.TagUint32, func() { w.WriteUint32(p.RPCCreditsPerHash) })
}

func (p *PeerlistEntry) AddField(name string, tag epee.Tag, r *epee.Reader) (bool, error) {
	switch name {
	case "adr":
		return true, epee.UnmarshalObject(r, &p.Addr)
	case "id":
		v, err := r.ReadUint64()
		p.ID = v
		return true, err
	case "last_seen":
		v, err := r.ReadInt64()
		p.LastSeen = v
		return true, err
	case "pruning_seed":
		v, err := r.ReadUint32()
		p.PruningSeed = v
		return true, err
	case "rpc_port":
		v, err := r.ReadUint16()
		p.RPCPort = v
		return true, err
	case "rpc_credits_per_hash":
		v, err := r.ReadUint32()
		p.RPCCreditsPerHash = v
		return true, err
	}
	return false, nil
}

func (p *PeerlistEntry) Finish() error { return nil }
