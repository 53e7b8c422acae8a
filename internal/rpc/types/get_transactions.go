package types

import "github.com/cuprate/cuprate/internal/epee"

// GetTransactionsRequest batch-fetches transactions by hash (spec §4.13's
// verifier resolves the same hashes from storage when validating a block;
// this is the RPC-facing equivalent lookup).
type GetTransactionsRequest struct {
	TxsHashes    []string `json:"txs_hashes"`
	DecodeAsJSON bool     `json:"decode_as_json,omitempty"`
	Prune        bool     `json:"prune,omitempty"`
}

func (r *GetTransactionsRequest) FieldCount() int { return 3 }
func (r *GetTransactionsRequest) WriteFields(w *epee.Writer) error {
	if err := w.Field("txs_hashes", epee.TagArray|epee.TagString, func() {
		w.WriteVarInt(uint64(len(r.TxsHashes)))
		for _, h := range r.TxsHashes {
			w.WriteString(h)
		}
	}); err != nil {
		return err
	}
	if err := w.Field("decode_as_json", epee.TagBool, func() { w.WriteBool(r.DecodeAsJSON) }); err != nil {
		return err
	}
	return w.Field("prune", epee.TagBool, func() { w.WriteBool(r.Prune) })
}
func (r *GetTransactionsRequest) AddField(name string, tag epee.Tag, er *epee.Reader) (bool, error) {
	switch name {
	case "txs_hashes":
		n, err := er.ReadVarInt()
		if err != nil {
			return false, err
		}
		r.TxsHashes = make([]string, n)
		for i := range r.TxsHashes {
			v, err := er.ReadString()
			if err != nil {
				return false, err
			}
			r.TxsHashes[i] = v
		}
		return true, nil
	case "decode_as_json":
		v, err := er.ReadBool()
		r.DecodeAsJSON = v
		return true, err
	case "prune":
		v, err := er.ReadBool()
		r.Prune = v
		return true, err
	}
	return false, nil
}
func (r *GetTransactionsRequest) Finish() error { return nil }

// TxEntry is one resolved transaction in GetTransactionsResponse, another
// instance of the JSON-with-embedded-binary-string hybrid. AsHex is always
// populated; the node's get_transactions handler leaves AsJSON empty even
// when DecodeAsJSON is set.
type TxEntry struct {
	TxHash        string `json:"tx_hash"`
	AsHex         string `json:"as_hex"`
	AsJSON        string `json:"as_json,omitempty"`
	InPool        bool   `json:"in_pool"`
	BlockHeight   uint64 `json:"block_height,omitempty"`
	BlockTimestamp uint64 `json:"block_timestamp,omitempty"`
}

// GetTransactionsResponse omits MissedTx entirely when empty (spec §4.15:
// "the reference daemon omits empty arrays/objects in JSON output"), via
// the omitempty tag on a nil slice.
type GetTransactionsResponse struct {
	Status   string    `json:"status"`
	Txs      []TxEntry `json:"txs,omitempty"`
	MissedTx []string  `json:"missed_tx,omitempty"`
}

func (r *GetTransactionsResponse) FieldCount() int { return 2 }
func (r *GetTransactionsResponse) WriteFields(w *epee.Writer) error {
	if err := w.Field("status", epee.TagString, func() { w.WriteString(r.Status) }); err != nil {
		return err
	}
	return w.Field("missed_tx", epee.TagArray|epee.TagString, func() {
		w.WriteVarInt(uint64(len(r.MissedTx)))
		for _, h := range r.MissedTx {
			w.WriteString(h)
		}
	})
}
func (r *GetTransactionsResponse) AddField(name string, tag epee.Tag, er *epee.Reader) (bool, error) {
	switch name {
	case "status":
		v, err := er.ReadString()
		r.Status = v
		return true, err
	case "missed_tx":
		n, err := er.ReadVarInt()
		if err != nil {
			return false, err
		}
		r.MissedTx = make([]string, n)
		for i := range r.MissedTx {
			v, err := er.ReadString()
			if err != nil {
				return false, err
			}
			r.MissedTx[i] = v
		}
		return true, nil
	}
	return false, nil
}
func (r *GetTransactionsResponse) Finish() error { return nil }
