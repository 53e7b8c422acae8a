package node

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/labstack/echo/v4"
	json "github.com/segmentio/encoding/json"

	"github.com/cuprate/cuprate/internal/chainmodel"
	"github.com/cuprate/cuprate/internal/cuperrors"
	"github.com/cuprate/cuprate/internal/levin"
	"github.com/cuprate/cuprate/internal/rpc/server"
	"github.com/cuprate/cuprate/internal/rpc/types"
	"github.com/cuprate/cuprate/internal/txpool"
)

// registerRPC wires the representative RPC methods of spec §4.15 to n's
// components. Every method is a /json_rpc method; get_height is also a
// fixed JSON and a .bin route, get_info, get_transactions and
// send_raw_transaction are also fixed JSON routes, and get_block and the
// restricted get_connections are /json_rpc only.
func registerRPC(s *server.Server, n *Node) {
	s.RegisterMethod("get_height", server.MethodHandler{Handle: n.rpcGetHeight})
	s.RegisterJSON("get_height", server.FixedHandler{Handle: func(c echo.Context, _ []byte) (interface{}, error) { return n.rpcGetHeight(c, nil) }})
	s.RegisterBin("get_height", server.FixedHandler{Handle: func(c echo.Context, _ []byte) (interface{}, error) { return n.rpcGetHeight(c, nil) }})

	s.RegisterMethod("get_info", server.MethodHandler{Handle: n.rpcGetInfo})
	s.RegisterJSON("get_info", server.FixedHandler{Handle: func(c echo.Context, _ []byte) (interface{}, error) { return n.rpcGetInfo(c, nil) }})

	s.RegisterMethod("get_block", server.MethodHandler{Handle: n.rpcGetBlock})

	s.RegisterMethod("get_transactions", server.MethodHandler{Handle: n.rpcGetTransactions})
	s.RegisterJSON("get_transactions", server.FixedHandler{Handle: func(c echo.Context, body []byte) (interface{}, error) {
		return n.rpcGetTransactions(c, body)
	}})

	s.RegisterMethod("send_raw_transaction", server.MethodHandler{Handle: n.rpcSendRawTransaction})
	s.RegisterJSON("send_raw_transaction", server.FixedHandler{Handle: func(c echo.Context, body []byte) (interface{}, error) {
		return n.rpcSendRawTransaction(c, body)
	}})

	s.RegisterMethod("get_connections", server.MethodHandler{Restricted: true, Handle: n.rpcGetConnections})
}

func (n *Node) rpcGetHeight(_ echo.Context, _ json.RawMessage) (interface{}, error) {
	top := n.consensus.TopHash()
	return &types.GetHeightResponse{
		Status: "OK",
		Height: n.consensus.Height(),
		Hash:   hex.EncodeToString(top[:]),
	}, nil
}

func (n *Node) rpcGetInfo(c echo.Context, _ json.RawMessage) (interface{}, error) {
	top := n.consensus.TopHash()
	_, lo := n.consensus.CumulativeDifficulty()
	return &types.GetInfoResponse{
		Status:                   "OK",
		Height:                   n.consensus.Height(),
		TargetHeight:             n.consensus.Height(),
		Difficulty:               n.consensus.NextDifficulty(),
		TopBlockHash:             hex.EncodeToString(top[:]),
		CumulativeDifficulty:     lo,
		OutgoingConnectionsCount: uint64(n.peers.Len(levin.ZonePublic)),
		IncomingConnectionsCount: 0,
	}, nil
}

type getBlockParams struct {
	Height uint64 `json:"height"`
	Hash   string `json:"hash"`
}

func (n *Node) rpcGetBlock(c echo.Context, params json.RawMessage) (interface{}, error) {
	var p getBlockParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, cuperrors.New(cuperrors.ERR_RPC_INVALID_PARAMS, "get_block: %v", err)
		}
	}

	height := p.Height
	if p.Hash != "" {
		var hash chainmodel.Hash
		raw, err := hex.DecodeString(p.Hash)
		if err != nil || len(raw) != len(hash) {
			return nil, cuperrors.New(cuperrors.ERR_RPC_INVALID_PARAMS, "get_block: malformed hash")
		}
		copy(hash[:], raw)
		h, found, err := n.chainReaderFacade().HeightForHash(c.Request().Context(), hash)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, cuperrors.New(cuperrors.ERR_NOT_FOUND, "get_block: unknown hash")
		}
		height = h
	}

	info, found, err := n.chainReaderFacade().GetBlockInfo(c.Request().Context(), height)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, cuperrors.New(cuperrors.ERR_NOT_FOUND, "get_block: unknown height")
	}

	// Blob/JSON are left empty: AppendBlock stores the block blob in the
	// BlockBlobs table, but the blockchain Store has no read accessor for
	// it, and the JSON form needs the external block codec the consensus
	// verifier calls into (spec §1).
	return &types.GetBlockResponse{
		Status: "OK",
		BlockHeader: types.BlockHeaderJSON{
			Height:     height,
			Hash:       hex.EncodeToString(info.Hash[:]),
			Timestamp:  info.Timestamp,
			Reward:     info.GeneratedCoins,
			BlockWeight: info.Weight,
		},
	}, nil
}

func (n *Node) rpcGetTransactions(c echo.Context, params json.RawMessage) (interface{}, error) {
	var req types.GetTransactionsRequest
	if len(params) > 0 {
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, cuperrors.New(cuperrors.ERR_RPC_INVALID_PARAMS, "get_transactions: %v", err)
		}
	}

	resp := &types.GetTransactionsResponse{Status: "OK"}
	pool := n.svc.Pool()
	for _, hexHash := range req.TxsHashes {
		var hash chainmodel.Hash
		raw, err := hex.DecodeString(hexHash)
		if err != nil || len(raw) != len(hash) {
			resp.MissedTx = append(resp.MissedTx, hexHash)
			continue
		}
		copy(hash[:], raw)
		e, found, err := pool.Lookup(c.Request().Context(), hash)
		if err != nil || !found {
			resp.MissedTx = append(resp.MissedTx, hexHash)
			continue
		}
		resp.Txs = append(resp.Txs, types.TxEntry{
			TxHash: hexHash,
			AsHex:  hex.EncodeToString(e.Blob),
			InPool: true,
		})
	}
	return resp, nil
}

func (n *Node) rpcSendRawTransaction(c echo.Context, params json.RawMessage) (interface{}, error) {
	var req types.SendRawTransactionRequest
	if len(params) > 0 {
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, cuperrors.New(cuperrors.ERR_RPC_INVALID_PARAMS, "send_raw_transaction: %v", err)
		}
	}
	blob, err := hex.DecodeString(req.TxAsHex)
	if err != nil {
		return &types.SendRawTransactionResponse{Status: "Failed", Reason: "Invalid hex", InvalidInput: true}, nil
	}

	entry := txpool.Entry{
		Hash:        chainmodel.Hash(sha256.Sum256(blob)),
		Blob:        blob,
		Weight:      uint64(len(blob)),
		ArrivalUnix: time.Now().Unix(),
		State:       txpool.StateLocal,
	}
	ctx := c.Request().Context()
	if err := n.svc.Pool().Insert(ctx, entry); err != nil {
		return &types.SendRawTransactionResponse{Status: "Failed", Reason: err.Error(), DoubleSpend: true}, nil
	}
	if !req.DoNotRelay {
		if err := n.dandelion.RouteLocal(ctx, entry); err != nil {
			n.log.Warnf("node: send_raw_transaction relay: %v", err)
		}
	}
	return &types.SendRawTransactionResponse{Status: "OK", NotRelayed: req.DoNotRelay}, nil
}

func (n *Node) rpcGetConnections(c echo.Context, _ json.RawMessage) (interface{}, error) {
	return map[string]interface{}{
		"status":      "OK",
		"connections": n.peers.Len(levin.ZonePublic),
	}, nil
}

// chainReaderFacade re-derives the adapter used at construction time for
// handlers that need it after the fact; New hands its instance to the
// consensus state and the downloader without keeping it on Node, so
// handlers build their own short-lived view over the same
// Service/ReadHandle pair.
func (n *Node) chainReaderFacade() *chainReader {
	return &chainReader{svc: n.svc, rh: n.rh}
}

