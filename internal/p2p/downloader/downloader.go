// Package downloader implements spec §4.12's block-download state
// machine: build a compact reverse-chronological history, negotiate a
// common ancestor against several peers concurrently, then batch-fetch
// blocks from that ancestor forward with bounded in-flight batches and
// ban-on-bad-data retry.
package downloader

import (
	"context"
	"sync"

	"github.com/cuprate/cuprate/internal/chainmodel"
	"github.com/cuprate/cuprate/internal/cuperrors"
	"github.com/cuprate/cuprate/internal/epee"
	"github.com/cuprate/cuprate/internal/levin"
	"github.com/cuprate/cuprate/internal/p2p/addressbook"
	"github.com/cuprate/cuprate/internal/p2p/peerset"
	"github.com/cuprate/cuprate/internal/settings"
	"github.com/cuprate/cuprate/internal/ulog"
)

// ChainReader is the narrow view of local chain state the downloader
// needs; *blockchain.Store satisfies it without an adapter.
type ChainReader interface {
	ChainHeight(ctx context.Context) (uint64, error)
	GetBlockInfo(ctx context.Context, height uint64) (chainmodel.BlockInfo, bool, error)
	HeightForHash(ctx context.Context, hash chainmodel.Hash) (uint64, bool, error)
}

// Batch is one contiguous run of blocks (with their transactions) handed
// to the verifier; FromHeight is the height of Entries[0].
type Batch struct {
	FromHeight uint64
	Entries    []levin.BlockCompleteEntry
}

// Downloader drives spec §4.12's five-step algorithm for one zone at a
// time.
type Downloader struct {
	cfg   *settings.Settings
	peers *peerset.Set
	book  *addressbook.Book
	chain ChainReader
	log   ulog.Logger
}

func New(cfg *settings.Settings, peers *peerset.Set, book *addressbook.Book, chain ChainReader, log ulog.Logger) *Downloader {
	return &Downloader{cfg: cfg, peers: peers, book: book, chain: chain, log: log}
}

// CompactHistory builds step 1's id list: the last 11 heights one at a
// time, then exponentially widening gaps back to (and always including)
// genesis.
func (d *Downloader) CompactHistory(ctx context.Context) ([][32]byte, error) {
	count, err := d.chain.ChainHeight(ctx)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, cuperrors.New(cuperrors.ERR_NOT_FOUND, "downloader: no local chain to build history from")
	}
	top := count - 1

	var heights []uint64
	h := top
	for i := 0; i < 11; i++ {
		heights = append(heights, h)
		if h == 0 {
			break
		}
		h--
	}
	for h > 0 {
		step := uint64(len(heights) - 10)
		if step < 1 {
			step = 1
		}
		gap := uint64(1) << uint(step)
		if gap >= h {
			h = 0
		} else {
			h -= gap
		}
		heights = append(heights, h)
	}
	if heights[len(heights)-1] != 0 {
		heights = append(heights, 0)
	}

	ids := make([][32]byte, 0, len(heights))
	for _, height := range heights {
		info, found, err := d.chain.GetBlockInfo(ctx, height)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		ids = append(ids, [32]byte(info.Hash))
	}
	return ids, nil
}

// ancestorCandidate is one peer's RequestChain reply, retained only long
// enough to compare cumulative difficulty across the fanout.
type ancestorCandidate struct {
	client *peerset.Client
	resp   levin.ResponseChainEntry
}

func greaterDifficulty(a, b levin.ResponseChainEntry) bool {
	if a.CumulativeDifficultyHi != b.CumulativeDifficultyHi {
		return a.CumulativeDifficultyHi > b.CumulativeDifficultyHi
	}
	return a.CumulativeDifficultyLo > b.CumulativeDifficultyLo
}

// FindCommonAncestor implements step 2: query several peers concurrently
// and accept the highest-difficulty response that begins at a block this
// node already has. Empty responses and responses over the id cap are
// rejected and the offending peer demoted; a response with no overlap is
// rejected without demoting the peer.
func (d *Downloader) FindCommonAncestor(ctx context.Context, zone levin.Zone, history [][32]byte) (*ancestorCandidate, error) {
	req := &levin.RequestChain{BlockIDs: history, PrunedOK: true}

	var mu sync.Mutex
	var best *ancestorCandidate

	peerset.FixedN(ctx, d.peers, zone, d.cfg.DownloaderAncestorFanout(), func(ctx context.Context, c *peerset.Client) error {
		body, err := c.Peer.Call(ctx, levin.CmdRequestChain, levin.CmdResponseChainEntry, req)
		if err != nil {
			return err
		}
		var resp levin.ResponseChainEntry
		if err := epee.Unmarshal(body, &resp); err != nil {
			return err
		}
		if len(resp.BlockIDs) == 0 || len(resp.BlockIDs) > d.cfg.ChainEntryIDCap() {
			d.book.Demote(c.Peer.Addr(), addressbook.ReasonProtocol)
			return cuperrors.New(cuperrors.ERR_PROTOCOL_VIOLATION, "downloader: chain entry of %d ids exceeds cap", len(resp.BlockIDs))
		}
		if _, found, err := d.chain.HeightForHash(ctx, chainmodel.Hash(resp.BlockIDs[0])); err != nil {
			return err
		} else if !found {
			return cuperrors.New(cuperrors.ERR_PROTOCOL_VIOLATION, "downloader: chain entry has no overlap with local chain")
		}

		mu.Lock()
		defer mu.Unlock()
		if best == nil || greaterDifficulty(resp, best.resp) {
			best = &ancestorCandidate{client: c, resp: resp}
		}
		return nil
	})

	if best == nil {
		return nil, cuperrors.New(cuperrors.ERR_NOT_FOUND, "downloader: no peer returned an overlapping chain entry")
	}
	return best, nil
}

// fetchWindow implements the retry half of step 5: try up to
// DownloaderBatchFanout distinct peers for one window of block ids, and
// demote any peer that claims to miss ids it should have.
func (d *Downloader) fetchWindow(ctx context.Context, zone levin.Zone, window [][32]byte) (levin.ResponseGetObjects, error) {
	req := &levin.RequestGetObjects{Blocks: window, Prune: false}

	var mu sync.Mutex
	var result levin.ResponseGetObjects
	var gotResult bool

	results := peerset.FixedN(ctx, d.peers, zone, d.cfg.DownloaderBatchFanout(), func(ctx context.Context, c *peerset.Client) error {
		body, err := c.Peer.Call(ctx, levin.CmdRequestGetObjects, levin.CmdResponseGetObjects, req)
		if err != nil {
			return err
		}
		var resp levin.ResponseGetObjects
		if err := epee.Unmarshal(body, &resp); err != nil {
			return err
		}
		if len(resp.MissedIDs) > 0 {
			d.book.Demote(c.Peer.Addr(), addressbook.ReasonProtocol)
			return cuperrors.New(cuperrors.ERR_PROTOCOL_VIOLATION, "downloader: peer missed %d requested blocks it claimed to have", len(resp.MissedIDs))
		}

		mu.Lock()
		defer mu.Unlock()
		if !gotResult {
			result = resp
			gotResult = true
		}
		return nil
	})

	if !gotResult {
		var lastErr error
		for _, r := range results {
			if r.Err != nil {
				lastErr = r.Err
			}
		}
		if lastErr == nil {
			lastErr = cuperrors.New(cuperrors.ERR_NETWORK_TRANSIENT, "downloader: no peer answered the batch request")
		}
		return levin.ResponseGetObjects{}, lastErr
	}
	return result, nil
}

// Run streams batches from the negotiated ancestor to the best peer's
// reported top, bounded to DownloaderInFlightBatches in flight at once
// (step 4's backpressure), and closes both channels once the ancestor's
// block-id list is exhausted or ctx is cancelled.
func (d *Downloader) Run(ctx context.Context, zone levin.Zone) (<-chan Batch, <-chan error) {
	batches := make(chan Batch, d.cfg.DownloaderInFlightBatches())
	errs := make(chan error, 1)

	go func() {
		defer close(batches)
		defer close(errs)

		history, err := d.CompactHistory(ctx)
		if err != nil {
			errs <- err
			return
		}
		ancestor, err := d.FindCommonAncestor(ctx, zone, history)
		if err != nil {
			errs <- err
			return
		}

		ancestorHeight, _, err := d.chain.HeightForHash(ctx, chainmodel.Hash(ancestor.resp.BlockIDs[0]))
		if err != nil {
			errs <- err
			return
		}

		ids := ancestor.resp.BlockIDs[1:]
		height := ancestorHeight + 1
		batchCap := d.cfg.BlockBatchCap()

		for len(ids) > 0 {
			n := batchCap
			if n > len(ids) {
				n = len(ids)
			}
			window := ids[:n]
			ids = ids[n:]

			resp, err := d.fetchWindow(ctx, zone, window)
			if err != nil {
				errs <- err
				return
			}

			select {
			case batches <- Batch{FromHeight: height, Entries: resp.Blocks}:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
			height += uint64(len(resp.Blocks))
		}
	}()

	return batches, errs
}
