package txpool

import (
	"bytes"
	"context"

	"github.com/cuprate/cuprate/internal/chainmodel"
	"github.com/cuprate/cuprate/internal/cuperrors"
	"github.com/cuprate/cuprate/internal/database"
	"github.com/cuprate/cuprate/internal/tracing"
	"github.com/cuprate/cuprate/internal/ulog"
)

// Pool wraps a database.Env with the mempool schema of spec §4.5.
type Pool struct {
	env database.Env
	log ulog.Logger
}

func NewPool(env database.Env, log ulog.Logger) *Pool {
	return &Pool{env: env, log: log}
}

// Insert adds a transaction to the pool in the Local state (spec §4.5
// `insert(tx)`), rejecting a hash already present.
func (p *Pool) Insert(ctx context.Context, e Entry) (err error) {
	span, ctx := tracing.Start(ctx, "txpool:Insert")
	defer span.Finish()

	wtx, err := p.env.BeginWrite(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = wtx.Rollback()
		}
	}()

	t, err := openTables(wtx)
	if err != nil {
		return err
	}

	if _, exists, gerr := t.entries.Get(e.Hash); gerr != nil {
		return gerr
	} else if exists {
		return cuperrors.New(cuperrors.ERR_INVALID_ARGUMENT, "txpool: tx already pooled")
	}

	if err = t.entries.Put(e.Hash, e); err != nil {
		return err
	}
	if err = t.feeIndex.Put(newFeeIndexKey(e.FeePerWeight(), e.Hash), struct{}{}); err != nil {
		return err
	}
	if err = t.stateIndex.Put(stateIndexKey{State: e.State, Hash: e.Hash}, struct{}{}); err != nil {
		return err
	}

	if err = wtx.Commit(ctx); err != nil {
		return err
	}
	p.log.Debugf("pooled tx %x (weight=%d fee=%d)", e.Hash, e.Weight, e.Fee)
	return nil
}

// Remove evicts a transaction by hash (spec §4.5 `remove(hash)`). Removing
// an absent hash is a no-op, matching a concurrent double-evict from block
// acceptance and pool expiry racing harmlessly.
func (p *Pool) Remove(ctx context.Context, hash chainmodel.Hash) (err error) {
	span, ctx := tracing.Start(ctx, "txpool:Remove")
	defer span.Finish()

	wtx, err := p.env.BeginWrite(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = wtx.Rollback()
		}
	}()

	t, err := openTables(wtx)
	if err != nil {
		return err
	}

	if err = p.remove(t, hash); err != nil {
		return err
	}

	return wtx.Commit(ctx)
}

func (p *Pool) remove(t *tables, hash chainmodel.Hash) error {
	e, found, err := t.entries.Get(hash)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	if err = t.entries.Delete(hash); err != nil {
		return err
	}
	if err = t.feeIndex.Delete(newFeeIndexKey(e.FeePerWeight(), e.Hash)); err != nil {
		return err
	}
	return t.stateIndex.Delete(stateIndexKey{State: e.State, Hash: e.Hash})
}

// PromoteToFluff moves a transaction from Local/Stem into the Fluff state
// (spec §4.5 `promote_to_fluff(hash)`), the Dandelion++ transition C11
// drives on stem-path timeout or when this node is itself the fluff hop.
func (p *Pool) PromoteToFluff(ctx context.Context, hash chainmodel.Hash) (err error) {
	span, ctx := tracing.Start(ctx, "txpool:PromoteToFluff")
	defer span.Finish()

	wtx, err := p.env.BeginWrite(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = wtx.Rollback()
		}
	}()

	t, err := openTables(wtx)
	if err != nil {
		return err
	}

	e, found, err := t.entries.Get(hash)
	if err != nil {
		return err
	}
	if !found {
		return cuperrors.New(cuperrors.ERR_NOT_FOUND, "txpool: tx not pooled")
	}
	if e.State == StateFluff {
		return wtx.Commit(ctx)
	}

	if err = t.stateIndex.Delete(stateIndexKey{State: e.State, Hash: e.Hash}); err != nil {
		return err
	}
	e.State = StateFluff
	if err = t.entries.Put(e.Hash, e); err != nil {
		return err
	}
	if err = t.stateIndex.Put(stateIndexKey{State: StateFluff, Hash: e.Hash}, struct{}{}); err != nil {
		return err
	}

	return wtx.Commit(ctx)
}

// Lookup returns one pooled transaction by hash, used by the Dandelion++
// router (C11) to re-read a transaction's blob when its embargo timer
// fires.
func (p *Pool) Lookup(ctx context.Context, hash chainmodel.Hash) (e Entry, found bool, err error) {
	span, ctx := tracing.Start(ctx, "txpool:Lookup")
	defer span.Finish()

	rtx, err := p.env.BeginRead(ctx)
	if err != nil {
		return Entry{}, false, err
	}
	defer rtx.Close()

	raw, err := rtx.Table(tableEntries)
	if err != nil {
		return Entry{}, false, err
	}
	entries := database.NewTypedReadTable[chainmodel.Hash, Entry](raw, hashCodec{}, entryCodec{})
	return entries.Get(hash)
}

var feeIndexMin = bytes.Repeat([]byte{0x00}, 40)
var feeIndexMax = bytes.Repeat([]byte{0xFF}, 40)

// TakeBelowFee evicts and returns every pooled tx whose fee-per-weight is
// strictly below limit (spec §4.5 `take_below_fee(limit)`), used to make
// room under memory pressure by dropping the least attractive candidates.
func (p *Pool) TakeBelowFee(ctx context.Context, limit uint64) (evicted []Entry, err error) {
	span, ctx := tracing.Start(ctx, "txpool:TakeBelowFee")
	defer span.Finish()

	wtx, err := p.env.BeginWrite(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = wtx.Rollback()
		}
	}()

	t, err := openTables(wtx)
	if err != nil {
		return nil, err
	}

	// feeIndex keys sort by descending rate (bit-complemented, see
	// newFeeIndexKey): a forward scan starting near the complement of
	// limit walks entries at or below it in descending-rate order, from
	// limit downward. Each
	// candidate's actual rate is rechecked since the complement-of-limit
	// boundary key may coincide with entries exactly at limit, which this
	// op must not evict.
	floor := newFeeIndexKey(limit, chainmodel.Hash{})

	var hashes []chainmodel.Hash
	if err = t.feeIndex.Range(floor, mustDecodeFeeKey(feeIndexMax), func(k feeIndexKey, _ struct{}) (bool, error) {
		hashes = append(hashes, k.Hash)
		return true, nil
	}); err != nil {
		return nil, err
	}

	for _, h := range hashes {
		e, found, gerr := t.entries.Get(h)
		if gerr != nil {
			return nil, gerr
		}
		if !found || e.FeePerWeight() >= limit {
			continue
		}
		if err = p.remove(t, h); err != nil {
			return nil, err
		}
		evicted = append(evicted, e)
	}

	if err = wtx.Commit(ctx); err != nil {
		return nil, err
	}
	return evicted, nil
}

func mustDecodeFeeKey(b []byte) feeIndexKey {
	k, _ := feeIndexKeyCodec{}.Decode(b)
	return k
}

// BlockTemplateCandidates returns pooled transactions in descending
// fee-rate order, stopping once the cumulative weight would exceed
// weightBudget (spec §4.5 `block_template_candidates(weight_budget)`).
func (p *Pool) BlockTemplateCandidates(ctx context.Context, weightBudget uint64) (candidates []Entry, err error) {
	span, ctx := tracing.Start(ctx, "txpool:BlockTemplateCandidates")
	defer span.Finish()

	rtx, err := p.env.BeginRead(ctx)
	if err != nil {
		return nil, err
	}
	defer rtx.Close()

	raw, err := rtx.Table(tableFeeIndex)
	if err != nil {
		return nil, err
	}
	feeIndex := database.NewTypedReadTable[feeIndexKey, struct{}](raw, feeIndexKeyCodec{}, database.EmptyCodec{})

	rawEntries, err := rtx.Table(tableEntries)
	if err != nil {
		return nil, err
	}
	entries := database.NewTypedReadTable[chainmodel.Hash, Entry](rawEntries, hashCodec{}, entryCodec{})

	var used uint64
	if err = feeIndex.Range(mustDecodeFeeKey(feeIndexMin), mustDecodeFeeKey(feeIndexMax), func(k feeIndexKey, _ struct{}) (bool, error) {
		e, found, gerr := entries.Get(k.Hash)
		if gerr != nil {
			return false, gerr
		}
		if !found {
			return true, nil
		}
		if used+e.Weight > weightBudget {
			return false, nil
		}
		used += e.Weight
		candidates = append(candidates, e)
		return true, nil
	}); err != nil {
		return nil, err
	}
	return candidates, nil
}
