package txpool

import (
	"github.com/cuprate/cuprate/internal/chainmodel"
	"github.com/cuprate/cuprate/internal/database"
)

const (
	tableEntries    = "txpool_entries"
	tableFeeIndex   = "txpool_fee_index"
	tableStateIndex = "txpool_state_index"
)

// tables bundles every typed table view over one database.WriteTx; the
// mempool, unlike the blockchain store, only ever runs one writer at a
// time and has no separate read-only query path worth a parallel type.
type tables struct {
	entries    *database.TypedTable[chainmodel.Hash, Entry]
	feeIndex   *database.TypedTable[feeIndexKey, struct{}]
	stateIndex *database.TypedTable[stateIndexKey, struct{}]
}

func openTables(tx database.WriteTx) (*tables, error) {
	var t tables
	var err error

	open := func(name string) database.Table {
		if err != nil {
			return nil
		}
		var raw database.Table
		raw, err = tx.Table(name)
		return raw
	}

	t.entries = database.NewTypedTable[chainmodel.Hash, Entry](open(tableEntries), hashCodec{}, entryCodec{})
	t.feeIndex = database.NewTypedTable[feeIndexKey, struct{}](open(tableFeeIndex), feeIndexKeyCodec{}, database.EmptyCodec{})
	t.stateIndex = database.NewTypedTable[stateIndexKey, struct{}](open(tableStateIndex), stateIndexKeyCodec{}, database.EmptyCodec{})

	if err != nil {
		return nil, err
	}
	return &t, nil
}

type hashCodec struct{}

func (hashCodec) Encode(v chainmodel.Hash) []byte { return v[:] }
func (hashCodec) Decode(b []byte) (chainmodel.Hash, error) {
	var h chainmodel.Hash
	copy(h[:], b)
	return h, nil
}
