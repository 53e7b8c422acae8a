package blockchain

import (
	"github.com/cuprate/cuprate/internal/chainmodel"
	"github.com/cuprate/cuprate/internal/database"
)

// Table names, one per row of spec §4.4's table.
const (
	TableBlockHeights     = "block_heights"
	TableBlockInfos       = "block_infos"
	TableBlockBlobs       = "block_blobs"
	TableTxIds            = "tx_ids"
	TableTxHeights        = "tx_heights"
	TablePrunedTxBlobs    = "pruned_tx_blobs"
	TablePrunableTxBlobs  = "prunable_tx_blobs"
	TablePrunableHashes   = "prunable_hashes"
	TableTxOutputs        = "tx_outputs"
	TableTxUnlockTime     = "tx_unlock_time"
	TableOutputs          = "outputs"
	TableRctOutputs       = "rct_outputs"
	TableNumOutputs       = "num_outputs"
	TableKeyImages        = "key_images"

	// tableBlockTxIDs is not one of spec §4.4's named tables; it's an
	// internal index from height to the global tx ids appended with that
	// block, needed to make PopBlock an exact inverse of AppendBlock
	// without rescanning every tx id ever assigned.
	tableBlockTxIDs = "block_tx_ids"

	// tableTxOutputAmounts is likewise an internal helper: the amount each
	// entry of a tx's TxOutputs index vector was filed under (0 for every
	// RingCT output, the real cleartext amount pre-fork), in the same
	// order. PopBlock needs it to delete the matching Outputs/NumOutputs
	// entries without re-parsing transaction bytes, which this schema
	// layer treats as opaque (see chainmodel's package doc).
	tableTxOutputAmounts = "tx_output_amounts"

	// tableTxHashByID is the reverse of TxIds (global id to hash), needed
	// by PopBlock to remove the forward TxIds entry for a tx it only knows
	// by id.
	tableTxHashByID = "tx_hash_by_id"

	// tableTxKeyImages records which key images a tx spent, so PopBlock can
	// free them again without re-parsing transaction bytes.
	tableTxKeyImages = "tx_key_images"
)

// writeTables bundles every typed table view over one database.WriteTx, so
// a single block-append/pop-block operation opens them all exactly once.
type writeTables struct {
	blockHeights    *database.TypedTable[chainmodel.Hash, uint64]
	blockInfos      *database.TypedTable[uint64, chainmodel.BlockInfo]
	blockBlobs      *database.TypedTable[uint64, []byte]
	txIds           *database.TypedTable[chainmodel.Hash, uint64]
	txHeights       *database.TypedTable[uint64, uint64]
	prunedTxBlobs   *database.TypedTable[uint64, []byte]
	prunableTxBlobs *database.TypedTable[uint64, []byte]
	prunableHashes  *database.TypedTable[uint64, chainmodel.Hash]
	txOutputs       *database.TypedTable[uint64, []uint64]
	txUnlockTime    *database.TypedTable[uint64, uint64]
	outputs         *database.TypedTable[database.AmountIndexKey, outputRecord]
	rctOutputs      *database.TypedTable[uint64, rctOutputRecord]
	numOutputs      *database.TypedTable[uint64, uint64]
	keyImages       *database.TypedTable[chainmodel.KeyImage, struct{}]
	blockTxIDs      *database.TypedTable[uint64, []uint64]
	txOutputAmounts *database.TypedTable[uint64, []uint64]
	txHashByID      *database.TypedTable[uint64, chainmodel.Hash]
	txKeyImages     *database.TypedTable[uint64, []chainmodel.KeyImage]
}

func openWriteTables(tx database.WriteTx) (*writeTables, error) {
	var t writeTables
	var err error

	open := func(name string) database.Table {
		if err != nil {
			return nil
		}
		var raw database.Table
		raw, err = tx.Table(name)
		return raw
	}

	t.blockHeights = database.NewTypedTable[chainmodel.Hash, uint64](open(TableBlockHeights), hashCodec{}, database.Uint64Codec{})
	t.blockInfos = database.NewTypedTable[uint64, chainmodel.BlockInfo](open(TableBlockInfos), database.Uint64Codec{}, blockInfoCodec{})
	t.blockBlobs = database.NewTypedTable[uint64, []byte](open(TableBlockBlobs), database.Uint64Codec{}, database.BytesCodec{})
	t.txIds = database.NewTypedTable[chainmodel.Hash, uint64](open(TableTxIds), hashCodec{}, database.Uint64Codec{})
	t.txHeights = database.NewTypedTable[uint64, uint64](open(TableTxHeights), database.Uint64Codec{}, database.Uint64Codec{})
	t.prunedTxBlobs = database.NewTypedTable[uint64, []byte](open(TablePrunedTxBlobs), database.Uint64Codec{}, database.BytesCodec{})
	t.prunableTxBlobs = database.NewTypedTable[uint64, []byte](open(TablePrunableTxBlobs), database.Uint64Codec{}, database.BytesCodec{})
	t.prunableHashes = database.NewTypedTable[uint64, chainmodel.Hash](open(TablePrunableHashes), database.Uint64Codec{}, hashCodec{})
	t.txOutputs = database.NewTypedTable[uint64, []uint64](open(TableTxOutputs), database.Uint64Codec{}, uint64SliceCodec{})
	t.txUnlockTime = database.NewTypedTable[uint64, uint64](open(TableTxUnlockTime), database.Uint64Codec{}, database.Uint64Codec{})
	t.outputs = database.NewTypedTable[database.AmountIndexKey, outputRecord](open(TableOutputs), database.AmountIndexKeyCodec{}, outputRecordCodec{})
	t.rctOutputs = database.NewTypedTable[uint64, rctOutputRecord](open(TableRctOutputs), database.Uint64Codec{}, rctOutputRecordCodec{})
	t.numOutputs = database.NewTypedTable[uint64, uint64](open(TableNumOutputs), database.Uint64Codec{}, database.Uint64Codec{})
	t.keyImages = database.NewTypedTable[chainmodel.KeyImage, struct{}](open(TableKeyImages), keyImageCodec{}, database.EmptyCodec{})
	t.blockTxIDs = database.NewTypedTable[uint64, []uint64](open(tableBlockTxIDs), database.Uint64Codec{}, uint64SliceCodec{})
	t.txOutputAmounts = database.NewTypedTable[uint64, []uint64](open(tableTxOutputAmounts), database.Uint64Codec{}, uint64SliceCodec{})
	t.txHashByID = database.NewTypedTable[uint64, chainmodel.Hash](open(tableTxHashByID), database.Uint64Codec{}, hashCodec{})
	t.txKeyImages = database.NewTypedTable[uint64, []chainmodel.KeyImage](open(tableTxKeyImages), database.Uint64Codec{}, keyImageSliceCodec{})

	if err != nil {
		return nil, err
	}
	return &t, nil
}

// readTables mirrors writeTables over a database.ReadTx, for query paths
// (ChainHeight, HeightForHash, GetBlockInfo) that never need to write.
type readTables struct {
	blockHeights    *database.TypedReadTable[chainmodel.Hash, uint64]
	blockInfos      *database.TypedReadTable[uint64, chainmodel.BlockInfo]
	blockBlobs      *database.TypedReadTable[uint64, []byte]
	txIds           *database.TypedReadTable[chainmodel.Hash, uint64]
	txHeights       *database.TypedReadTable[uint64, uint64]
	prunedTxBlobs   *database.TypedReadTable[uint64, []byte]
	prunableTxBlobs *database.TypedReadTable[uint64, []byte]
	prunableHashes  *database.TypedReadTable[uint64, chainmodel.Hash]
	txOutputs       *database.TypedReadTable[uint64, []uint64]
	txUnlockTime    *database.TypedReadTable[uint64, uint64]
	outputs         *database.TypedReadTable[database.AmountIndexKey, outputRecord]
	rctOutputs      *database.TypedReadTable[uint64, rctOutputRecord]
	numOutputs      *database.TypedReadTable[uint64, uint64]
	keyImages       *database.TypedReadTable[chainmodel.KeyImage, struct{}]
	blockTxIDs      *database.TypedReadTable[uint64, []uint64]
	txOutputAmounts *database.TypedReadTable[uint64, []uint64]
	txHashByID      *database.TypedReadTable[uint64, chainmodel.Hash]
	txKeyImages     *database.TypedReadTable[uint64, []chainmodel.KeyImage]
}

func openReadTables(tx database.ReadTx) (*readTables, error) {
	var t readTables
	var err error

	open := func(name string) database.ReadTable {
		if err != nil {
			return nil
		}
		var raw database.ReadTable
		raw, err = tx.Table(name)
		return raw
	}

	t.blockHeights = database.NewTypedReadTable[chainmodel.Hash, uint64](open(TableBlockHeights), hashCodec{}, database.Uint64Codec{})
	t.blockInfos = database.NewTypedReadTable[uint64, chainmodel.BlockInfo](open(TableBlockInfos), database.Uint64Codec{}, blockInfoCodec{})
	t.blockBlobs = database.NewTypedReadTable[uint64, []byte](open(TableBlockBlobs), database.Uint64Codec{}, database.BytesCodec{})
	t.txIds = database.NewTypedReadTable[chainmodel.Hash, uint64](open(TableTxIds), hashCodec{}, database.Uint64Codec{})
	t.txHeights = database.NewTypedReadTable[uint64, uint64](open(TableTxHeights), database.Uint64Codec{}, database.Uint64Codec{})
	t.prunedTxBlobs = database.NewTypedReadTable[uint64, []byte](open(TablePrunedTxBlobs), database.Uint64Codec{}, database.BytesCodec{})
	t.prunableTxBlobs = database.NewTypedReadTable[uint64, []byte](open(TablePrunableTxBlobs), database.Uint64Codec{}, database.BytesCodec{})
	t.prunableHashes = database.NewTypedReadTable[uint64, chainmodel.Hash](open(TablePrunableHashes), database.Uint64Codec{}, hashCodec{})
	t.txOutputs = database.NewTypedReadTable[uint64, []uint64](open(TableTxOutputs), database.Uint64Codec{}, uint64SliceCodec{})
	t.txUnlockTime = database.NewTypedReadTable[uint64, uint64](open(TableTxUnlockTime), database.Uint64Codec{}, database.Uint64Codec{})
	t.outputs = database.NewTypedReadTable[database.AmountIndexKey, outputRecord](open(TableOutputs), database.AmountIndexKeyCodec{}, outputRecordCodec{})
	t.rctOutputs = database.NewTypedReadTable[uint64, rctOutputRecord](open(TableRctOutputs), database.Uint64Codec{}, rctOutputRecordCodec{})
	t.numOutputs = database.NewTypedReadTable[uint64, uint64](open(TableNumOutputs), database.Uint64Codec{}, database.Uint64Codec{})
	t.keyImages = database.NewTypedReadTable[chainmodel.KeyImage, struct{}](open(TableKeyImages), keyImageCodec{}, database.EmptyCodec{})
	t.blockTxIDs = database.NewTypedReadTable[uint64, []uint64](open(tableBlockTxIDs), database.Uint64Codec{}, uint64SliceCodec{})
	t.txOutputAmounts = database.NewTypedReadTable[uint64, []uint64](open(tableTxOutputAmounts), database.Uint64Codec{}, uint64SliceCodec{})
	t.txHashByID = database.NewTypedReadTable[uint64, chainmodel.Hash](open(tableTxHashByID), database.Uint64Codec{}, hashCodec{})
	t.txKeyImages = database.NewTypedReadTable[uint64, []chainmodel.KeyImage](open(tableTxKeyImages), database.Uint64Codec{}, keyImageSliceCodec{})

	if err != nil {
		return nil, err
	}
	return &t, nil
}

type keyImageCodec struct{}

func (keyImageCodec) Encode(v chainmodel.KeyImage) []byte { return v[:] }
func (keyImageCodec) Decode(b []byte) (chainmodel.KeyImage, error) {
	var k chainmodel.KeyImage
	copy(k[:], b)
	return k, nil
}
