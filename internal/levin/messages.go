package levin

import (
	"github.com/cuprate/cuprate/internal/epee"
)

// CoreSyncData is the peer's chain-state snapshot, refreshed on handshake
// and periodically (spec §3 "Peer").
type CoreSyncData struct {
	CumulativeDifficultyLo uint64
	CumulativeDifficultyHi uint64 // 128-bit cumulative difficulty, split lo/hi
	CurrentHeight          uint64
	PruningSeed            uint32
	TopID                  [32]byte
	TopVersion             uint8
}

func (c *CoreSyncData) FieldCount() int { return 6 }

func (c *CoreSyncData) WriteFields(w *epee.Writer) error {
	if err := w.Field("cumulative_difficulty", epee.TagUint64, func() { w.WriteUint64(c.CumulativeDifficultyLo) }); err != nil {
		return err
	}
	if err := w.Field("cumulative_difficulty_top64", epee.TagUint64, func() { w.WriteUint64(c.CumulativeDifficultyHi) }); err != nil {
		return err
	}
	if err := w.Field("current_height", epee.TagUint64, func() { w.WriteUint64(c.CurrentHeight) }); err != nil {
		return err
	}
	if err := w.Field("pruning_seed", epee.TagUint32, func() { w.WriteUint32(c.PruningSeed) }); err != nil {
		return err
	}
	if err := w.Field("top_id", epee.TagString, func() { w.WriteString(string(c.TopID[:])) }); err != nil {
		return err
	}
	return w.Field("top_version", epee.TagUint8, func() { w.WriteUint8(c.TopVersion) })
}

func (c *CoreSyncData) AddField(name string, tag epee.Tag, r *epee.Reader) (bool, error) {
	switch name {
	case "cumulative_difficulty":
		v, err := r.ReadUint64()
		c.CumulativeDifficultyLo = v
		return true, err
	case "cumulative_difficulty_top64":
		v, err := r.ReadUint64()
		c.CumulativeDifficultyHi = v
		return true, err
	case "current_height":
		v, err := r.ReadUint64()
		c.CurrentHeight = v
		return true, err
	case "pruning_seed":
		v, err := r.ReadUint32()
		c.PruningSeed = v
		return true, err
	case "top_id":
		v, err := r.ReadString()
		if err != nil {
			return false, err
		}
		copy(c.TopID[:], v)
		return true, nil
	case "top_version":
		v, err := r.ReadUint8()
		c.TopVersion = v
		return true, err
	}
	return false, nil
}

func (c *CoreSyncData) Finish() error { return nil }

// BasicNodeData identifies the sending node on a handshake (spec §6: a
// 16-byte network-id UUID distinct per network).
type BasicNodeData struct {
	NetworkID        [16]byte
	PeerID           uint64
	MyPort           uint32
	RPCPort          uint16
	RPCCreditsPerHash uint32
	SupportFlags     uint32
}

func (n *BasicNodeData) FieldCount() int { return 6 }

func (n *BasicNodeData) WriteFields(w *epee.Writer) error {
	if err := w.Field("network_id", epee.TagString, func() { w.WriteString(string(n.NetworkID[:])) }); err != nil {
		return err
	}
	if err := w.Field("peer_id", epee.TagUint64, func() { w.WriteUint64(n.PeerID) }); err != nil {
		return err
	}
	if err := w.Field("my_port", epee.TagUint32, func() { w.WriteUint32(n.MyPort) }); err != nil {
		return err
	}
	if err := w.Field("rpc_port", epee.TagUint16, func() { w.WriteUint16(n.RPCPort) }); err != nil {
		return err
	}
	if err := w.Field("rpc_credits_per_hash", epee.TagUint32, func() { w.WriteUint32(n.RPCCreditsPerHash) }); err != nil {
		return err
	}
	return w.Field("support_flags", epee.TagUint32, func() { w.WriteUint32(n.SupportFlags) })
}

func (n *BasicNodeData) AddField(name string, tag epee.Tag, r *epee.Reader) (bool, error) {
	switch name {
	case "network_id":
		v, err := r.ReadString()
		if err != nil {
			return false, err
		}
		copy(n.NetworkID[:], v)
		return true, nil
	case "peer_id":
		v, err := r.ReadUint64()
		n.PeerID = v
		return true, err
	case "my_port":
		v, err := r.ReadUint32()
		n.MyPort = v
		return true, err
	case "rpc_port":
		v, err := r.ReadUint16()
		n.RPCPort = v
		return true, err
	case "rpc_credits_per_hash":
		v, err := r.ReadUint32()
		n.RPCCreditsPerHash = v
		return true, err
	case "support_flags":
		v, err := r.ReadUint32()
		n.SupportFlags = v
		return true, err
	}
	return false, nil
}

func (n *BasicNodeData) Finish() error { return nil }

// HandshakeRequest is admin command 1001 (spec §4.2).
type HandshakeRequest struct {
	Node BasicNodeData
	Sync CoreSyncData
}

func (h *HandshakeRequest) FieldCount() int { return 2 }
func (h *HandshakeRequest) WriteFields(w *epee.Writer) error {
	if err := w.Field("node_data", epee.TagObject, func() { _ = epee.MarshalObject(w, &h.Node) }); err != nil {
		return err
	}
	return w.Field("payload_data", epee.TagObject, func() { _ = epee.MarshalObject(w, &h.Sync) })
}
func (h *HandshakeRequest) AddField(name string, tag epee.Tag, r *epee.Reader) (bool, error) {
	switch name {
	case "node_data":
		return true, epee.UnmarshalObject(r, &h.Node)
	case "payload_data":
		return true, epee.UnmarshalObject(r, &h.Sync)
	}
	return false, nil
}
func (h *HandshakeRequest) Finish() error { return nil }

// HandshakeResponse additionally carries up to 250 peer-list entries (spec
// §4.9, cap from §5).
type HandshakeResponse struct {
	Node      BasicNodeData
	Sync      CoreSyncData
	LocalTime int64
	Peers     []PeerlistEntry
}

func (h *HandshakeResponse) FieldCount() int { return 4 }
func (h *HandshakeResponse) WriteFields(w *epee.Writer) error {
	if err := w.Field("node_data", epee.TagObject, func() { _ = epee.MarshalObject(w, &h.Node) }); err != nil {
		return err
	}
	if err := w.Field("payload_data", epee.TagObject, func() { _ = epee.MarshalObject(w, &h.Sync) }); err != nil {
		return err
	}
	if err := w.Field("local_time", epee.TagInt64, func() { w.WriteInt64(h.LocalTime) }); err != nil {
		return err
	}
	return w.Field("local_peerlist_new", epee.TagArray|epee.TagObject, func() {
		w.WriteVarInt(uint64(len(h.Peers)))
		for i := range h.Peers {
			_ = epee.MarshalObject(w, &h.Peers[i])
		}
	})
}
func (h *HandshakeResponse) AddField(name string, tag epee.Tag, r *epee.Reader) (bool, error) {
	switch name {
	case "node_data":
		return true, epee.UnmarshalObject(r, &h.Node)
	case "payload_data":
		return true, epee.UnmarshalObject(r, &h.Sync)
	case "local_time":
		v, err := r.ReadInt64()
		h.LocalTime = v
		return true, err
	case "local_peerlist_new":
		n, err := r.ReadVarInt()
		if err != nil {
			return false, err
		}
		h.Peers = make([]PeerlistEntry, n)
		for i := range h.Peers {
			if err := epee.UnmarshalObject(r, &h.Peers[i]); err != nil {
				return false, err
			}
		}
		return true, nil
	}
	return false, nil
}
func (h *HandshakeResponse) Finish() error { return nil }

// TimedSyncRequest/Response carry just the sender's CoreSyncData, sent
// every 60s to keep a peer's view fresh and detect dead connections (spec
// §4.8).
type TimedSyncRequest struct{ Sync CoreSyncData }

func (t *TimedSyncRequest) FieldCount() int { return 1 }
func (t *TimedSyncRequest) WriteFields(w *epee.Writer) error {
	return w.Field("payload_data", epee.TagObject, func() { _ = epee.MarshalObject(w, &t.Sync) })
}
func (t *TimedSyncRequest) AddField(name string, tag epee.Tag, r *epee.Reader) (bool, error) {
	if name == "payload_data" {
		return true, epee.UnmarshalObject(r, &t.Sync)
	}
	return false, nil
}
func (t *TimedSyncRequest) Finish() error { return nil }

type TimedSyncResponse struct {
	Sync      CoreSyncData
	LocalTime int64
}

func (t *TimedSyncResponse) FieldCount() int { return 2 }
func (t *TimedSyncResponse) WriteFields(w *epee.Writer) error {
	if err := w.Field("payload_data", epee.TagObject, func() { _ = epee.MarshalObject(w, &t.Sync) }); err != nil {
		return err
	}
	return w.Field("local_time", epee.TagInt64, func() { w.WriteInt64(t.LocalTime) })
}
func (t *TimedSyncResponse) AddField(name string, tag epee.Tag, r *epee.Reader) (bool, error) {
	switch name {
	case "payload_data":
		return true, epee.UnmarshalObject(r, &t.Sync)
	case "local_time":
		v, err := r.ReadInt64()
		t.LocalTime = v
		return true, err
	}
	return false, nil
}
func (t *TimedSyncResponse) Finish() error { return nil }

// PingRequest is empty; PingResponse echoes a status string and the
// responder's peer_id, used as a reachability probe before admitting a
// self-reported reachable address into the white set (spec §4.7/§4.9).
type PingRequest struct{}

func (PingRequest) FieldCount() int                                        { return 0 }
func (PingRequest) WriteFields(*epee.Writer) error                         { return nil }
func (PingRequest) AddField(string, epee.Tag, *epee.Reader) (bool, error)   { return false, nil }
func (PingRequest) Finish() error                                          { return nil }

type PingResponse struct {
	Status string
	PeerID uint64
}

func (p *PingResponse) FieldCount() int { return 2 }
func (p *PingResponse) WriteFields(w *epee.Writer) error {
	if err := w.Field("status", epee.TagString, func() { w.WriteString(p.Status) }); err != nil {
		return err
	}
	return w.Field("peer_id", epee.TagUint64, func() { w.WriteUint64(p.PeerID) })
}
func (p *PingResponse) AddField(name string, tag epee.Tag, r *epee.Reader) (bool, error) {
	switch name {
	case "status":
		v, err := r.ReadString()
		p.Status = v
		return true, err
	case "peer_id":
		v, err := r.ReadUint64()
		p.PeerID = v
		return true, err
	}
	return false, nil
}
func (p *PingResponse) Finish() error { return nil }

// RequestSupportFlagsResponse advertises optional protocol extensions.
type RequestSupportFlagsResponse struct{ SupportFlags uint32 }

func (r *RequestSupportFlagsResponse) FieldCount() int { return 1 }
func (r *RequestSupportFlagsResponse) WriteFields(w *epee.Writer) error {
	return w.Field("support_flags", epee.TagUint32, func() { w.WriteUint32(r.SupportFlags) })
}
func (r *RequestSupportFlagsResponse) AddField(name string, tag epee.Tag, er *epee.Reader) (bool, error) {
	if name == "support_flags" {
		v, err := er.ReadUint32()
		r.SupportFlags = v
		return true, err
	}
	return false, nil
}
func (r *RequestSupportFlagsResponse) Finish() error { return nil }

// NewTransactions is protocol notification 2002: Dandelion++ stem/fluff
// relay of raw transaction blobs (spec §4.2, §4.11).
type NewTransactions struct {
	Txs     [][]byte
	Dandelionpp bool // true when this hop is a stem relay, not a fluff broadcast
}

func (n *NewTransactions) FieldCount() int {
	if n.Dandelionpp {
		return 2
	}
	return 1
}
func (n *NewTransactions) WriteFields(w *epee.Writer) error {
	if err := w.Field("txs", epee.TagArray|epee.TagString, func() {
		w.WriteVarInt(uint64(len(n.Txs)))
		for _, tx := range n.Txs {
			w.WriteString(string(tx))
		}
	}); err != nil {
		return err
	}
	if n.Dandelionpp {
		return w.Field("dandelionpp_fluff", epee.TagBool, func() { w.WriteBool(false) })
	}
	return nil
}
func (n *NewTransactions) AddField(name string, tag epee.Tag, r *epee.Reader) (bool, error) {
	switch name {
	case "txs":
		count, err := r.ReadVarInt()
		if err != nil {
			return false, err
		}
		n.Txs = make([][]byte, count)
		for i := range n.Txs {
			s, err := r.ReadString()
			if err != nil {
				return false, err
			}
			n.Txs[i] = []byte(s)
		}
		return true, nil
	case "dandelionpp_fluff":
		v, err := r.ReadBool()
		n.Dandelionpp = !v
		return true, err
	}
	return false, nil
}
func (n *NewTransactions) Finish() error { return nil }

// RequestChain is protocol notification 2006: a compact-history probe used
// by the block downloader to find a common ancestor (spec §4.12 step 2).
type RequestChain struct {
	BlockIDs       [][32]byte
	PrunedOK       bool
}

func (r *RequestChain) FieldCount() int { return 2 }
func (r *RequestChain) WriteFields(w *epee.Writer) error {
	if err := w.Field("block_ids", epee.TagArray|epee.TagString, func() {
		w.WriteVarInt(uint64(len(r.BlockIDs)))
		for _, id := range r.BlockIDs {
			w.WriteString(string(id[:]))
		}
	}); err != nil {
		return err
	}
	return w.Field("prune", epee.TagBool, func() { w.WriteBool(r.PrunedOK) })
}
func (r *RequestChain) AddField(name string, tag epee.Tag, er *epee.Reader) (bool, error) {
	switch name {
	case "block_ids":
		n, err := er.ReadVarInt()
		if err != nil {
			return false, err
		}
		r.BlockIDs = make([][32]byte, n)
		for i := range r.BlockIDs {
			s, err := er.ReadString()
			if err != nil {
				return false, err
			}
			copy(r.BlockIDs[i][:], s)
		}
		return true, nil
	case "prune":
		v, err := er.ReadBool()
		r.PrunedOK = v
		return true, err
	}
	return false, nil
}
func (r *RequestChain) Finish() error { return nil }

// ResponseChainEntry answers RequestChain with an ancestor hint and the
// descending list of block ids from there to the peer's tip, plus its
// cumulative difficulty (spec §4.12 step 2).
type ResponseChainEntry struct {
	StartHeight            uint64
	TotalHeight             uint64
	CumulativeDifficultyLo uint64
	CumulativeDifficultyHi uint64
	BlockIDs               [][32]byte
}

func (c *ResponseChainEntry) FieldCount() int { return 4 }
func (c *ResponseChainEntry) WriteFields(w *epee.Writer) error {
	if err := w.Field("start_height", epee.TagUint64, func() { w.WriteUint64(c.StartHeight) }); err != nil {
		return err
	}
	if err := w.Field("total_height", epee.TagUint64, func() { w.WriteUint64(c.TotalHeight) }); err != nil {
		return err
	}
	if err := w.Field("cumulative_difficulty", epee.TagUint64, func() { w.WriteUint64(c.CumulativeDifficultyLo) }); err != nil {
		return err
	}
	return w.Field("m_block_ids", epee.TagArray|epee.TagString, func() {
		w.WriteVarInt(uint64(len(c.BlockIDs)))
		for _, id := range c.BlockIDs {
			w.WriteString(string(id[:]))
		}
	})
}
func (c *ResponseChainEntry) AddField(name string, tag epee.Tag, r *epee.Reader) (bool, error) {
	switch name {
	case "start_height":
		v, err := r.ReadUint64()
		c.StartHeight = v
		return true, err
	case "total_height":
		v, err := r.ReadUint64()
		c.TotalHeight = v
		return true, err
	case "cumulative_difficulty":
		v, err := r.ReadUint64()
		c.CumulativeDifficultyLo = v
		return true, err
	case "m_block_ids":
		n, err := r.ReadVarInt()
		if err != nil {
			return false, err
		}
		c.BlockIDs = make([][32]byte, n)
		for i := range c.BlockIDs {
			s, err := r.ReadString()
			if err != nil {
				return false, err
			}
			copy(c.BlockIDs[i][:], s)
		}
		return true, nil
	}
	return false, nil
}
func (c *ResponseChainEntry) Finish() error { return nil }

// RequestGetObjects/ResponseGetObjects implement the batch block fetch of
// spec §4.12 step 3.
type RequestGetObjects struct {
	Blocks [][32]byte
	Prune  bool
}

func (r *RequestGetObjects) FieldCount() int { return 2 }
func (r *RequestGetObjects) WriteFields(w *epee.Writer) error {
	if err := w.Field("blocks", epee.TagArray|epee.TagString, func() {
		w.WriteVarInt(uint64(len(r.Blocks)))
		for _, id := range r.Blocks {
			w.WriteString(string(id[:]))
		}
	}); err != nil {
		return err
	}
	return w.Field("prune", epee.TagBool, func() { w.WriteBool(r.Prune) })
}
func (r *RequestGetObjects) AddField(name string, tag epee.Tag, er *epee.Reader) (bool, error) {
	switch name {
	case "blocks":
		n, err := er.ReadVarInt()
		if err != nil {
			return false, err
		}
		r.Blocks = make([][32]byte, n)
		for i := range r.Blocks {
			s, err := er.ReadString()
			if err != nil {
				return false, err
			}
			copy(r.Blocks[i][:], s)
		}
		return true, nil
	case "prune":
		v, err := er.ReadBool()
		r.Prune = v
		return true, err
	}
	return false, nil
}
func (r *RequestGetObjects) Finish() error { return nil }

// BlockCompleteEntry bundles a raw block blob with its (possibly empty, if
// pruned) transaction blobs (spec §4.12 step 3).
type BlockCompleteEntry struct {
	Block []byte
	Txs   [][]byte
}

type ResponseGetObjects struct {
	Blocks        []BlockCompleteEntry
	MissedIDs     [][32]byte
	CurrentHeight uint64
}

func (r *ResponseGetObjects) FieldCount() int { return 3 }
func (r *ResponseGetObjects) WriteFields(w *epee.Writer) error {
	if err := w.Field("blocks", epee.TagArray|epee.TagObject, func() {
		w.WriteVarInt(uint64(len(r.Blocks)))
		for _, b := range r.Blocks {
			w.WriteObjectFieldCount(2)
			_ = w.Field("block", epee.TagString, func() { w.WriteString(string(b.Block)) })
			_ = w.Field("txs", epee.TagArray|epee.TagString, func() {
				w.WriteVarInt(uint64(len(b.Txs)))
				for _, tx := range b.Txs {
					w.WriteString(string(tx))
				}
			})
		}
	}); err != nil {
		return err
	}
	if err := w.Field("missed_ids", epee.TagArray|epee.TagString, func() {
		w.WriteVarInt(uint64(len(r.MissedIDs)))
		for _, id := range r.MissedIDs {
			w.WriteString(string(id[:]))
		}
	}); err != nil {
		return err
	}
	return w.Field("current_blockchain_height", epee.TagUint64, func() { w.WriteUint64(r.CurrentHeight) })
}
func (r *ResponseGetObjects) AddField(name string, tag epee.Tag, er *epee.Reader) (bool, error) {
	switch name {
	case "blocks":
		n, err := er.ReadVarInt()
		if err != nil {
			return false, err
		}
		r.Blocks = make([]BlockCompleteEntry, n)
		for i := range r.Blocks {
			if err := epee.UnmarshalObject(er, &blockEntryBuilder{e: &r.Blocks[i]}); err != nil {
				return false, err
			}
		}
		return true, nil
	case "missed_ids":
		n, err := er.ReadVarInt()
		if err != nil {
			return false, err
		}
		r.MissedIDs = make([][32]byte, n)
		for i := range r.MissedIDs {
			s, err := er.ReadString()
			if err != nil {
				return false, err
			}
			copy(r.MissedIDs[i][:], s)
		}
		return true, nil
	case "current_blockchain_height":
		v, err := er.ReadUint64()
		r.CurrentHeight = v
		return true, err
	}
	return false, nil
}
func (r *ResponseGetObjects) Finish() error { return nil }

type blockEntryBuilder struct{ e *BlockCompleteEntry }

func (b *blockEntryBuilder) AddField(name string, tag epee.Tag, r *epee.Reader) (bool, error) {
	switch name {
	case "block":
		s, err := r.ReadString()
		b.e.Block = []byte(s)
		return true, err
	case "txs":
		n, err := r.ReadVarInt()
		if err != nil {
			return false, err
		}
		b.e.Txs = make([][]byte, n)
		for i := range b.e.Txs {
			s, err := r.ReadString()
			if err != nil {
				return false, err
			}
			b.e.Txs[i] = []byte(s)
		}
		return true, nil
	}
	return false, nil
}
func (b *blockEntryBuilder) Finish() error { return nil }

// NewBlock is protocol notification 2001 (legacy non-fluffy full block
// announce, kept for peers that haven't negotiated fluffy-block support).
type NewBlock struct {
	Block         []byte
	Txs           [][]byte
	CurrentHeight uint64
}

func (n *NewBlock) FieldCount() int { return 2 }
func (n *NewBlock) WriteFields(w *epee.Writer) error {
	if err := w.Field("b", epee.TagObject, func() {
		w.WriteObjectFieldCount(2)
		_ = w.Field("block", epee.TagString, func() { w.WriteString(string(n.Block)) })
		_ = w.Field("txs", epee.TagArray|epee.TagString, func() {
			w.WriteVarInt(uint64(len(n.Txs)))
			for _, tx := range n.Txs {
				w.WriteString(string(tx))
			}
		})
	}); err != nil {
		return err
	}
	return w.Field("current_blockchain_height", epee.TagUint64, func() { w.WriteUint64(n.CurrentHeight) })
}
func (n *NewBlock) AddField(name string, tag epee.Tag, r *epee.Reader) (bool, error) {
	switch name {
	case "b":
		entry := BlockCompleteEntry{}
		if err := epee.UnmarshalObject(r, &blockEntryBuilder{e: &entry}); err != nil {
			return false, err
		}
		n.Block = entry.Block
		n.Txs = entry.Txs
		return true, nil
	case "current_blockchain_height":
		v, err := r.ReadUint64()
		n.CurrentHeight = v
		return true, err
	}
	return false, nil
}
func (n *NewBlock) Finish() error { return nil }

// NewFluffyBlock is protocol notification 2008: the block blob plus the
// full blobs of only those transactions the sender believes the peer is
// missing (spec §4.8, glossary "Fluffy block"). MissingTxIdx is not
// carried on the wire: encoding writes only the block, FullTxs and the
// height, and decoding leaves it empty.
type NewFluffyBlock struct {
	BlockHeader   []byte // serialized header + miner tx, no body tx list
	CurrentHeight uint64
	MissingTxIdx  []uint64 // indices into the block's tx hash list that follow
	FullTxs       [][]byte // the transactions at MissingTxIdx, in order
}

func (n *NewFluffyBlock) FieldCount() int { return 2 }
func (n *NewFluffyBlock) WriteFields(w *epee.Writer) error {
	if err := w.Field("b", epee.TagObject, func() {
		w.WriteObjectFieldCount(2)
		_ = w.Field("block", epee.TagString, func() { w.WriteString(string(n.BlockHeader)) })
		_ = w.Field("txs", epee.TagArray|epee.TagString, func() {
			w.WriteVarInt(uint64(len(n.FullTxs)))
			for _, tx := range n.FullTxs {
				w.WriteString(string(tx))
			}
		})
	}); err != nil {
		return err
	}
	return w.Field("current_blockchain_height", epee.TagUint64, func() { w.WriteUint64(n.CurrentHeight) })
}
func (n *NewFluffyBlock) AddField(name string, tag epee.Tag, r *epee.Reader) (bool, error) {
	switch name {
	case "b":
		entry := BlockCompleteEntry{}
		if err := epee.UnmarshalObject(r, &blockEntryBuilder{e: &entry}); err != nil {
			return false, err
		}
		n.BlockHeader = entry.Block
		n.FullTxs = entry.Txs
		return true, nil
	case "current_blockchain_height":
		v, err := r.ReadUint64()
		n.CurrentHeight = v
		return true, err
	}
	return false, nil
}
func (n *NewFluffyBlock) Finish() error { return nil }

// RequestFluffyMissingTx is protocol notification 2009: the receiver of a
// fluffy block asks for the transactions it didn't already have (spec
// §4.8). The response variant is a NewFluffyBlock carrying only FullTxs.
type RequestFluffyMissingTx struct {
	BlockHash    [32]byte
	CurrentBlockchainHeight uint64
	MissingTxIdx []uint64
}

func (r *RequestFluffyMissingTx) FieldCount() int { return 3 }
func (r *RequestFluffyMissingTx) WriteFields(w *epee.Writer) error {
	if err := w.Field("block_hash", epee.TagString, func() { w.WriteString(string(r.BlockHash[:])) }); err != nil {
		return err
	}
	if err := w.Field("current_blockchain_height", epee.TagUint64, func() { w.WriteUint64(r.CurrentBlockchainHeight) }); err != nil {
		return err
	}
	return w.Field("missing_tx_indices", epee.TagArray|epee.TagUint64, func() {
		w.WriteVarInt(uint64(len(r.MissingTxIdx)))
		for _, idx := range r.MissingTxIdx {
			w.WriteUint64(idx)
		}
	})
}
func (r *RequestFluffyMissingTx) AddField(name string, tag epee.Tag, er *epee.Reader) (bool, error) {
	switch name {
	case "block_hash":
		s, err := er.ReadString()
		if err != nil {
			return false, err
		}
		copy(r.BlockHash[:], s)
		return true, nil
	case "current_blockchain_height":
		v, err := er.ReadUint64()
		r.CurrentBlockchainHeight = v
		return true, err
	case "missing_tx_indices":
		n, err := er.ReadVarInt()
		if err != nil {
			return false, err
		}
		r.MissingTxIdx = make([]uint64, n)
		for i := range r.MissingTxIdx {
			v, err := er.ReadUint64()
			if err != nil {
				return false, err
			}
			r.MissingTxIdx[i] = v
		}
		return true, nil
	}
	return false, nil
}
func (r *RequestFluffyMissingTx) Finish() error { return nil }

// GetTxpoolCompliment is protocol notification 2010: sent alongside a
// handshake/sync to ask for mempool transactions the peer doesn't already
// have, given the sender's own known hash set.
type GetTxpoolCompliment struct {
	KnownTxs [][32]byte
}

func (g *GetTxpoolCompliment) FieldCount() int { return 1 }
func (g *GetTxpoolCompliment) WriteFields(w *epee.Writer) error {
	return w.Field("txs", epee.TagArray|epee.TagString, func() {
		w.WriteVarInt(uint64(len(g.KnownTxs)))
		for _, id := range g.KnownTxs {
			w.WriteString(string(id[:]))
		}
	})
}
func (g *GetTxpoolCompliment) AddField(name string, tag epee.Tag, r *epee.Reader) (bool, error) {
	if name == "txs" {
		n, err := r.ReadVarInt()
		if err != nil {
			return false, err
		}
		g.KnownTxs = make([][32]byte, n)
		for i := range g.KnownTxs {
			s, err := r.ReadString()
			if err != nil {
				return false, err
			}
			copy(g.KnownTxs[i][:], s)
		}
		return true, nil
	}
	return false, nil
}
func (g *GetTxpoolCompliment) Finish() error { return nil }
