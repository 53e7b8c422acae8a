package types

import "github.com/cuprate/cuprate/internal/epee"

// GetInfoRequest takes no parameters.
type GetInfoRequest struct{}

func (GetInfoRequest) FieldCount() int                                      { return 0 }
func (GetInfoRequest) WriteFields(*epee.Writer) error                       { return nil }
func (GetInfoRequest) AddField(string, epee.Tag, *epee.Reader) (bool, error) { return false, nil }
func (GetInfoRequest) Finish() error                                        { return nil }

// GetInfoResponse is a reduced view of the reference daemon's get_info: the
// fields a light wallet or monitoring client actually reads, omitting the
// handful this implementation has no source for (bootstrap-daemon proxy
// state, update-check fields — both explicit spec.md Non-goals).
type GetInfoResponse struct {
	Status                    string `json:"status"`
	Height                    uint64 `json:"height"`
	TargetHeight              uint64 `json:"target_height"`
	Difficulty                uint64 `json:"difficulty"`
	TopBlockHash              string `json:"top_block_hash"`
	CumulativeDifficulty      uint64 `json:"cumulative_difficulty"`
	TxCount                   uint64 `json:"tx_count"`
	TxPoolSize                uint64 `json:"tx_pool_size"`
	AltBlocksCount             uint64 `json:"alt_blocks_count"`
	OutgoingConnectionsCount  uint64 `json:"outgoing_connections_count"`
	IncomingConnectionsCount  uint64 `json:"incoming_connections_count"`
	WhitePeerlistSize          uint64 `json:"white_peerlist_size"`
	GreyPeerlistSize           uint64 `json:"grey_peerlist_size"`
	Mainnet                   bool   `json:"mainnet"`
	Testnet                   bool   `json:"testnet"`
	Stagenet                  bool   `json:"stagenet"`
	Untrusted                 bool   `json:"untrusted"`
}

func (r *GetInfoResponse) FieldCount() int { return 16 }
func (r *GetInfoResponse) WriteFields(w *epee.Writer) error {
	fields := []struct {
		name string
		tag  epee.Tag
		wr   func()
	}{
		{"status", epee.TagString, func() { w.WriteString(r.Status) }},
		{"height", epee.TagUint64, func() { w.WriteUint64(r.Height) }},
		{"target_height", epee.TagUint64, func() { w.WriteUint64(r.TargetHeight) }},
		{"difficulty", epee.TagUint64, func() { w.WriteUint64(r.Difficulty) }},
		{"top_block_hash", epee.TagString, func() { w.WriteString(r.TopBlockHash) }},
		{"cumulative_difficulty", epee.TagUint64, func() { w.WriteUint64(r.CumulativeDifficulty) }},
		{"tx_count", epee.TagUint64, func() { w.WriteUint64(r.TxCount) }},
		{"tx_pool_size", epee.TagUint64, func() { w.WriteUint64(r.TxPoolSize) }},
		{"alt_blocks_count", epee.TagUint64, func() { w.WriteUint64(r.AltBlocksCount) }},
		{"outgoing_connections_count", epee.TagUint64, func() { w.WriteUint64(r.OutgoingConnectionsCount) }},
		{"incoming_connections_count", epee.TagUint64, func() { w.WriteUint64(r.IncomingConnectionsCount) }},
		{"white_peerlist_size", epee.TagUint64, func() { w.WriteUint64(r.WhitePeerlistSize) }},
		{"grey_peerlist_size", epee.TagUint64, func() { w.WriteUint64(r.GreyPeerlistSize) }},
		{"mainnet", epee.TagBool, func() { w.WriteBool(r.Mainnet) }},
		{"testnet", epee.TagBool, func() { w.WriteBool(r.Testnet) }},
		{"stagenet", epee.TagBool, func() { w.WriteBool(r.Stagenet) }},
	}
	for _, f := range fields {
		if err := w.Field(f.name, f.tag, f.wr); err != nil {
			return err
		}
	}
	return nil
}
func (r *GetInfoResponse) AddField(name string, tag epee.Tag, er *epee.Reader) (bool, error) {
	switch name {
	case "status":
		v, err := er.ReadString()
		r.Status = v
		return true, err
	case "height":
		v, err := er.ReadUint64()
		r.Height = v
		return true, err
	case "target_height":
		v, err := er.ReadUint64()
		r.TargetHeight = v
		return true, err
	case "difficulty":
		v, err := er.ReadUint64()
		r.Difficulty = v
		return true, err
	case "top_block_hash":
		v, err := er.ReadString()
		r.TopBlockHash = v
		return true, err
	case "cumulative_difficulty":
		v, err := er.ReadUint64()
		r.CumulativeDifficulty = v
		return true, err
	case "tx_count":
		v, err := er.ReadUint64()
		r.TxCount = v
		return true, err
	case "tx_pool_size":
		v, err := er.ReadUint64()
		r.TxPoolSize = v
		return true, err
	case "alt_blocks_count":
		v, err := er.ReadUint64()
		r.AltBlocksCount = v
		return true, err
	case "outgoing_connections_count":
		v, err := er.ReadUint64()
		r.OutgoingConnectionsCount = v
		return true, err
	case "incoming_connections_count":
		v, err := er.ReadUint64()
		r.IncomingConnectionsCount = v
		return true, err
	case "white_peerlist_size":
		v, err := er.ReadUint64()
		r.WhitePeerlistSize = v
		return true, err
	case "grey_peerlist_size":
		v, err := er.ReadUint64()
		r.GreyPeerlistSize = v
		return true, err
	case "mainnet":
		v, err := er.ReadBool()
		r.Mainnet = v
		return true, err
	case "testnet":
		v, err := er.ReadBool()
		r.Testnet = v
		return true, err
	case "stagenet":
		v, err := er.ReadBool()
		r.Stagenet = v
		return true, err
	}
	return false, nil
}
func (r *GetInfoResponse) Finish() error { return nil }
