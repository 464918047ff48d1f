// Package private maintains the group of handlers for node operator access.
// Transactions and blocks travel in their canonical binary form, hex encoded.
package private

import (
	"context"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"github.com/adamwoolhether/utxochain/app/services/node/handlers/v1/errs"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/codec"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/database"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/signature"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/state"
	"github.com/adamwoolhether/utxochain/foundation/web"
)

// Handlers manages the set of node endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
}

type raw struct {
	Data hexutil.Bytes `json:"data"`
}

type produce struct {
	Producer signature.Address `json:"producer"`
	Password string            `json:"password"`
}

// Status returns the current status of the node.
func (h Handlers) Status(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	tip, err := h.State.QueryLatestHeader()
	if err != nil {
		return err
	}

	status := struct {
		Height      uint64 `json:"height"`
		Hash        string `json:"hash"`
		Uncommitted int    `json:"uncommitted"`
	}{
		Height:      tip.Height,
		Hash:        tip.Hash.String(),
		Uncommitted: h.State.QueryMempoolLength(),
	}

	return web.Respond(ctx, w, status, http.StatusOK)
}

// SubmitTransaction adds a signed transaction to the mempool.
func (h Handlers) SubmitTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var req raw
	if err := web.Decode(r, &req); err != nil {
		return errs.BadRequest(err)
	}

	var tx database.Transaction
	if err := codec.Parse(req.Data, &tx); err != nil {
		return errs.Wrap(err)
	}

	h.Log.Infow("submit tx", "traceid", v.TraceID, "hash", tx.Hash, "type", tx.Type)

	if err := h.State.Broadcast(tx); err != nil {
		return errs.Wrap(err)
	}

	resp := struct {
		Hash string `json:"hash"`
	}{
		Hash: tx.Hash.String(),
	}

	return web.Respond(ctx, w, resp, http.StatusAccepted)
}

// ProcessBlock accepts a block, validates it, and adds it to the chain.
func (h Handlers) ProcessBlock(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var req raw
	if err := web.Decode(r, &req); err != nil {
		return errs.BadRequest(err)
	}

	var block database.Block
	if err := codec.Parse(req.Data, &block); err != nil {
		return errs.Wrap(err)
	}

	if err := h.State.ProcessBlock(block); err != nil {
		return errs.Wrap(err)
	}

	return web.Respond(ctx, w, block.Header, http.StatusOK)
}

// ProduceBlock builds a block from the mempool right away.
func (h Handlers) ProduceBlock(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var req produce
	if err := web.Decode(r, &req); err != nil {
		return errs.BadRequest(err)
	}

	block, err := h.State.ProduceBlock(req.Producer, req.Password)
	if err != nil {
		return errs.Wrap(err)
	}

	return web.Respond(ctx, w, block.Header, http.StatusCreated)
}

// RollbackBlock reverts the tip of the chain.
func (h Handlers) RollbackBlock(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	block, err := h.State.RollbackBlock()
	if err != nil {
		return errs.Wrap(err)
	}

	return web.Respond(ctx, w, block.Header, http.StatusOK)
}

// BlocksByNumber returns all the blocks based on the specified to/from values.
func (h Handlers) BlocksByNumber(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	fromStr := web.Param(r, "from")
	if fromStr == "latest" || fromStr == "" {
		fromStr = strconv.FormatUint(state.QueryLatest, 10)
	}

	toStr := web.Param(r, "to")
	if toStr == "latest" || toStr == "" {
		toStr = strconv.FormatUint(state.QueryLatest, 10)
	}

	from, err := strconv.ParseUint(fromStr, 10, 64)
	if err != nil {
		return errs.BadRequest(err)
	}
	to, err := strconv.ParseUint(toStr, 10, 64)
	if err != nil {
		return errs.BadRequest(err)
	}

	if from > to {
		return errs.BadRequest(errFromAfterTo)
	}

	blocks := h.State.QueryBlocksByNumber(from, to)
	if len(blocks) == 0 {
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}

	data := make([]hexutil.Bytes, len(blocks))
	for i := range blocks {
		b, err := codec.Serialize(&blocks[i])
		if err != nil {
			return err
		}
		data[i] = b
	}

	return web.Respond(ctx, w, data, http.StatusOK)
}

// Transaction returns a pending or confirmed transaction by hash.
func (h Handlers) Transaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	hash, err := parseHash(web.Param(r, "hash"))
	if err != nil {
		return errs.BadRequest(err)
	}

	rec, err := h.State.QueryTransaction(hash)
	if err != nil {
		return errs.Wrap(err)
	}

	b, err := codec.Serialize(&rec.Transaction)
	if err != nil {
		return err
	}

	resp := struct {
		Data      hexutil.Bytes `json:"data"`
		Confirmed bool          `json:"confirmed"`
		Height    uint64        `json:"height"`
	}{
		Data:      b,
		Confirmed: rec.Confirmed,
		Height:    rec.Height,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}
