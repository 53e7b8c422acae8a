// Package blockchain implements the canonical-chain schema and operations of
// spec §4.4 over the generic database abstraction (C3): fourteen typed
// tables keyed by height, tx id, or (amount, amount_index), and the single
// atomic block-append / pop-block pair every other component relies on to
// advance or rewind the chain.
package blockchain

import (
	"context"

	"github.com/cuprate/cuprate/internal/chainmodel"
	"github.com/cuprate/cuprate/internal/cuperrors"
	"github.com/cuprate/cuprate/internal/database"
	"github.com/cuprate/cuprate/internal/tracing"
	"github.com/cuprate/cuprate/internal/ulog"
)

// chainTipHeightKey is the single BlockHeights entry holding the running
// chain height, avoiding a Range scan to find the current tip on every
// append (BlockHeights maps block hash ↦ height, and every reader also
// needs O(1) access to the current height).
var chainTipHeightKey = chainmodel.Hash{}

// Store wraps a database.Env with the blockchain schema of spec §4.4.
type Store struct {
	env database.Env
	log ulog.Logger
}

func NewStore(env database.Env, log ulog.Logger) *Store {
	return &Store{env: env, log: log}
}

// AppendedTx is one transaction being appended alongside its block, paired
// with the amount each of its outputs is filed under; AppendBlock assigns
// the per-amount output indices itself.
type AppendedTx struct {
	Hash          chainmodel.Hash
	Tx            chainmodel.Tx
	OutputAmounts []uint64 // per-output amount (0 for RingCT outputs)

	// IsMinerTx marks the block's coinbase transaction. Its RingCT output
	// commitments (when RingCT != RingCTNone) are never signer-supplied —
	// AppendBlock synthesizes them itself (spec §4.4 step 4) rather than
	// trusting a caller-populated TxOut.Commitment.
	IsMinerTx bool
}

// AppendBlock performs the five-step atomic append of spec §4.4.4:
//  1. reject the block if any input key image is already spent
//  2. write BlockInfos/BlockBlobs/BlockHeights at the new height
//  3. write TxIds/TxHeights/TxBlobs (+ pruned/prunable split) for every tx
//  4. write Outputs/RctOutputs/NumOutputs/TxOutputs, assigning global
//     output indices sequentially per amount; the miner tx's RingCT output
//     commitments are synthesized as G + amount·H rather than read from the
//     (nonexistent) signer
//  5. write KeyImages for every spent input
//
// All of it runs inside one database.WriteTx so a failure at any step
// leaves the prior chain state untouched.
func (s *Store) AppendBlock(ctx context.Context, block chainmodel.Block, blockBlob []byte, info chainmodel.BlockInfo, txs []AppendedTx) (height uint64, err error) {
	span, ctx := tracing.Start(ctx, "blockchain:AppendBlock")
	defer span.Finish()

	wtx, err := s.env.BeginWrite(ctx)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = wtx.Rollback()
		}
	}()

	tables, err := openWriteTables(wtx)
	if err != nil {
		return 0, err
	}

	height, err = s.nextHeight(tables)
	if err != nil {
		return 0, err
	}

	// Step 1: reject on any already-spent key image, across every input of
	// every tx in the block (spec §4.13 "no duplicate key images").
	for _, atx := range txs {
		for _, in := range atx.Tx.Inputs {
			if in.IsGenerator() {
				continue
			}
			if _, spent, gerr := tables.keyImages.Get(in.KeyImage); gerr != nil {
				return 0, gerr
			} else if spent {
				return 0, cuperrors.New(cuperrors.ERR_STORAGE_INVARIANT, "blockchain: key image already spent")
			}
		}
	}

	// Step 2: block-level tables.
	if err = tables.blockInfos.Put(height, info); err != nil {
		return 0, err
	}
	if err = tables.blockHeights.Put(info.Hash, height); err != nil {
		return 0, err
	}
	if err = tables.blockHeights.Put(chainTipHeightKey, height+1); err != nil {
		return 0, err
	}
	if err = tables.blockBlobs.Put(height, blockBlob); err != nil {
		return 0, err
	}

	// Step 3: per-tx tables, assigning sequential global tx ids.
	nextTxID, err := s.nextTxID(tables)
	if err != nil {
		return 0, err
	}
	txID := nextTxID
	blockTxIDList := make([]uint64, 0, len(txs))
	for _, atx := range txs {
		if err = tables.txIds.Put(atx.Hash, txID); err != nil {
			return 0, err
		}
		if err = tables.txHashByID.Put(txID, atx.Hash); err != nil {
			return 0, err
		}
		if err = tables.txHeights.Put(txID, height); err != nil {
			return 0, err
		}
		if err = tables.prunedTxBlobs.Put(txID, atx.Tx.PrunedBlob); err != nil {
			return 0, err
		}
		if len(atx.Tx.PrunableBlob) > 0 {
			if err = tables.prunableTxBlobs.Put(txID, atx.Tx.PrunableBlob); err != nil {
				return 0, err
			}
		}
		if atx.Tx.UnlockTime != 0 {
			if err = tables.txUnlockTime.Put(txID, atx.Tx.UnlockTime); err != nil {
				return 0, err
			}
		}

		// Step 4: outputs, assigned the next free amount_index per amount.
		indices := make([]uint64, 0, len(atx.Tx.Outputs))
		amounts := make([]uint64, 0, len(atx.Tx.Outputs))
		for i, out := range atx.Tx.Outputs {
			amount := atx.OutputAmounts[i]
			amtIdx, gerr := s.nextAmountIndex(tables, amount)
			if gerr != nil {
				return 0, gerr
			}
			rec := outputRecord{Key: out.Key, Height: height, TxID: txID, Locked: atx.Tx.UnlockTime != 0}
			if err = tables.outputs.Put(database.AmountIndexKey{Amount: amount, AmountIndex: amtIdx}, rec); err != nil {
				return 0, err
			}
			commitment := out.Commitment
			if atx.IsMinerTx && atx.Tx.RingCT != chainmodel.RingCTNone {
				if commitment, err = synthesizeMinerCommitment(amount); err != nil {
					return 0, err
				}
			}
			if commitment != [32]byte{} {
				rctRec := rctOutputRecord{Key: out.Key, Commitment: commitment, Height: height, TxID: txID, Locked: rec.Locked}
				if err = tables.rctOutputs.Put(amtIdx, rctRec); err != nil {
					return 0, err
				}
			}
			if err = tables.numOutputs.Put(amount, amtIdx+1); err != nil {
				return 0, err
			}
			indices = append(indices, amtIdx)
			amounts = append(amounts, amount)
		}
		if err = tables.txOutputs.Put(txID, indices); err != nil {
			return 0, err
		}
		if err = tables.txOutputAmounts.Put(txID, amounts); err != nil {
			return 0, err
		}
		blockTxIDList = append(blockTxIDList, txID)

		// Step 5: spend every non-generator input's key image.
		spent := make([]chainmodel.KeyImage, 0, len(atx.Tx.Inputs))
		for _, in := range atx.Tx.Inputs {
			if in.IsGenerator() {
				continue
			}
			if err = tables.keyImages.Put(in.KeyImage, struct{}{}); err != nil {
				return 0, err
			}
			spent = append(spent, in.KeyImage)
		}
		if len(spent) > 0 {
			if err = tables.txKeyImages.Put(txID, spent); err != nil {
				return 0, err
			}
		}

		txID++
	}
	if err = tables.txIds.Put(nextTxIDKey, txID); err != nil {
		return 0, err
	}
	if err = tables.blockTxIDs.Put(height, blockTxIDList); err != nil {
		return 0, err
	}

	if err = wtx.Commit(ctx); err != nil {
		return 0, err
	}
	s.log.Debugf("appended block at height %d (%d txs)", height, len(txs))
	return height, nil
}

// nextTxIDKey is the TxIds table's sentinel entry tracking the next unused
// global transaction id, the same composite-table trick as chainTipHeightKey.
var nextTxIDKey = chainmodel.Hash{0x01}

func (s *Store) nextHeight(t *writeTables) (uint64, error) {
	h, found, err := t.blockHeights.Get(chainTipHeightKey)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, nil
	}
	return h, nil
}

func (s *Store) nextTxID(t *writeTables) (uint64, error) {
	id, found, err := t.txIds.Get(nextTxIDKey)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, nil
	}
	return id, nil
}

func (s *Store) nextAmountIndex(t *writeTables, amount uint64) (uint64, error) {
	n, found, err := t.numOutputs.Get(amount)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, nil
	}
	return n, nil
}

// PopBlock reverses AppendBlock for the current tip, restoring the exact
// pre-append state (spec §8 "pop-block identity invariant"): every table
// touched by AppendBlock is rolled back symmetrically, including the
// sequential counters, so a subsequent append of the same block reproduces
// identical table contents.
func (s *Store) PopBlock(ctx context.Context) (err error) {
	span, ctx := tracing.Start(ctx, "blockchain:PopBlock")
	defer span.Finish()

	wtx, err := s.env.BeginWrite(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = wtx.Rollback()
		}
	}()

	tables, err := openWriteTables(wtx)
	if err != nil {
		return err
	}

	tip, found, err := tables.blockHeights.Get(chainTipHeightKey)
	if err != nil {
		return err
	}
	if !found || tip == 0 {
		return cuperrors.New(cuperrors.ERR_INVALID_ARGUMENT, "blockchain: no block to pop")
	}
	height := tip - 1

	info, found, err := tables.blockInfos.Get(height)
	if err != nil {
		return err
	}
	if !found {
		return cuperrors.New(cuperrors.ERR_STORAGE_CORRUPTION, "blockchain: missing BlockInfos entry for tip height")
	}

	txIDs, found, err := tables.blockTxIDs.Get(height)
	if err != nil {
		return err
	}
	if !found {
		return cuperrors.New(cuperrors.ERR_STORAGE_CORRUPTION, "blockchain: missing block tx id index for tip height")
	}

	// numOutputs counters were incremented sequentially while appending this
	// block's outputs; undo each by the count of outputs filed under that
	// amount here, restoring the pre-append counter exactly.
	spentPerAmount := map[uint64]uint64{}

	for _, txID := range txIDs {
		indices, foundIdx, gerr := tables.txOutputs.Get(txID)
		if gerr != nil {
			return gerr
		}
		amounts, foundAmt, gerr := tables.txOutputAmounts.Get(txID)
		if gerr != nil {
			return gerr
		}
		if foundIdx && foundAmt && len(indices) == len(amounts) {
			for i, amtIdx := range indices {
				amount := amounts[i]
				if err = tables.outputs.Delete(database.AmountIndexKey{Amount: amount, AmountIndex: amtIdx}); err != nil {
					return err
				}
				if err = tables.rctOutputs.Delete(amtIdx); err != nil {
					return err
				}
				spentPerAmount[amount]++
			}
		}
		if err = tables.txOutputs.Delete(txID); err != nil {
			return err
		}
		if err = tables.txOutputAmounts.Delete(txID); err != nil {
			return err
		}
		if err = tables.txUnlockTime.Delete(txID); err != nil {
			return err
		}
		if err = tables.prunedTxBlobs.Delete(txID); err != nil {
			return err
		}
		if err = tables.prunableTxBlobs.Delete(txID); err != nil {
			return err
		}
		if err = tables.txHeights.Delete(txID); err != nil {
			return err
		}

		hash, foundHash, gerr := tables.txHashByID.Get(txID)
		if gerr != nil {
			return gerr
		}
		if foundHash {
			if err = tables.txIds.Delete(hash); err != nil {
				return err
			}
		}
		if err = tables.txHashByID.Delete(txID); err != nil {
			return err
		}

		keyImages, foundKI, gerr := tables.txKeyImages.Get(txID)
		if gerr != nil {
			return gerr
		}
		if foundKI {
			for _, ki := range keyImages {
				if err = tables.keyImages.Delete(ki); err != nil {
					return err
				}
			}
		}
		if err = tables.txKeyImages.Delete(txID); err != nil {
			return err
		}
	}

	for amount, count := range spentPerAmount {
		cur, foundN, gerr := tables.numOutputs.Get(amount)
		if gerr != nil {
			return gerr
		}
		if !foundN || cur < count {
			return cuperrors.New(cuperrors.ERR_STORAGE_CORRUPTION, "blockchain: num_outputs underflow for amount %d", amount)
		}
		if cur == count {
			if err = tables.numOutputs.Delete(amount); err != nil {
				return err
			}
		} else if err = tables.numOutputs.Put(amount, cur-count); err != nil {
			return err
		}
	}

	if len(txIDs) > 0 {
		if err = tables.txIds.Put(nextTxIDKey, txIDs[0]); err != nil {
			return err
		}
	}

	if err = tables.blockTxIDs.Delete(height); err != nil {
		return err
	}
	if err = tables.blockBlobs.Delete(height); err != nil {
		return err
	}
	if err = tables.blockInfos.Delete(height); err != nil {
		return err
	}
	if err = tables.blockHeights.Delete(info.Hash); err != nil {
		return err
	}
	if height == 0 {
		if err = tables.blockHeights.Delete(chainTipHeightKey); err != nil {
			return err
		}
	} else if err = tables.blockHeights.Put(chainTipHeightKey, height); err != nil {
		return err
	}

	if err = wtx.Commit(ctx); err != nil {
		return err
	}
	s.log.Debugf("popped block at height %d", height)
	return nil
}

// ChainHeight returns the current chain height (number of blocks appended).
func (s *Store) ChainHeight(ctx context.Context) (uint64, error) {
	rtx, err := s.env.BeginRead(ctx)
	if err != nil {
		return 0, err
	}
	defer rtx.Close()

	tables, err := openReadTables(rtx)
	if err != nil {
		return 0, err
	}
	h, found, err := tables.blockHeights.Get(chainTipHeightKey)
	if err != nil || !found {
		return 0, err
	}
	return h, nil
}

// HeightForHash reports the height of a stored block by its hash, used by
// the block downloader (C12) to test whether a peer-offered chain entry
// begins at a block this node already has.
func (s *Store) HeightForHash(ctx context.Context, hash chainmodel.Hash) (uint64, bool, error) {
	rtx, err := s.env.BeginRead(ctx)
	if err != nil {
		return 0, false, err
	}
	defer rtx.Close()

	tables, err := openReadTables(rtx)
	if err != nil {
		return 0, false, err
	}
	return tables.blockHeights.Get(hash)
}

// GetBlockInfo returns the stored chain metadata for height.
func (s *Store) GetBlockInfo(ctx context.Context, height uint64) (chainmodel.BlockInfo, bool, error) {
	rtx, err := s.env.BeginRead(ctx)
	if err != nil {
		return chainmodel.BlockInfo{}, false, err
	}
	defer rtx.Close()

	tables, err := openReadTables(rtx)
	if err != nil {
		return chainmodel.BlockInfo{}, false, err
	}
	return tables.blockInfos.Get(height)
}
