package node

import (
	"context"

	"github.com/cuprate/cuprate/internal/chainmodel"
	"github.com/cuprate/cuprate/internal/storage"
)

// chainReader adapts storage.Service's Read-mediated access to the narrow
// blockchain.Store views consensus/context.ChainReader and
// p2p/downloader.ChainReader each need, so neither package has to depend
// on storage or reach past the single-writer/reader-pool boundary of
// spec §4.6.
type chainReader struct {
	svc *storage.Service
	rh  *storage.ReadHandle
}

type blockInfoLookup struct {
	info  chainmodel.BlockInfo
	found bool
}

func (c *chainReader) GetBlockInfo(ctx context.Context, height uint64) (chainmodel.BlockInfo, bool, error) {
	r, err := storage.Read(ctx, c.rh, func(ctx context.Context, ops storage.Ops) (blockInfoLookup, error) {
		info, found, err := ops.Store.GetBlockInfo(ctx, height)
		return blockInfoLookup{info: info, found: found}, err
	})
	return r.info, r.found, err
}

func (c *chainReader) ChainHeight(ctx context.Context) (uint64, error) {
	return storage.Read(ctx, c.rh, func(ctx context.Context, ops storage.Ops) (uint64, error) {
		return ops.Store.ChainHeight(ctx)
	})
}

type heightLookup struct {
	height uint64
	found  bool
}

func (c *chainReader) HeightForHash(ctx context.Context, hash chainmodel.Hash) (uint64, bool, error) {
	r, err := storage.Read(ctx, c.rh, func(ctx context.Context, ops storage.Ops) (heightLookup, error) {
		height, found, err := ops.Store.HeightForHash(ctx, hash)
		return heightLookup{height: height, found: found}, err
	})
	return r.height, r.found, err
}
