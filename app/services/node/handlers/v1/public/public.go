// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/adamwoolhether/utxochain/app/services/node/handlers/v1/errs"
	"github.com/adamwoolhether/utxochain/business/sys/validate"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/signature"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/state"
	"github.com/adamwoolhether/utxochain/foundation/events"
	"github.com/adamwoolhether/utxochain/foundation/web"
)

// Handlers manages the set of ledger endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	Evts  *events.Events
	WS    websocket.Upgrader
}

// Events handles a web socket to provide events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	// Need this to handle CORS on the websocket.
	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	// This upgrades the HTTP connection to a websocket connection.
	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	// This provides a channel for receiving events from the blockchain.
	ch := h.Evts.Acquire(v.TraceID)
	defer h.Evts.Release(v.TraceID)

	// Starting a ticker to send a ping message over the websocket.
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	// Block waiting for events from the blockchain or ticker.
	for {
		select {
		case msg, wd := <-ch:

			// If the channel is closed, release the websocket.
			if !wd {
				return nil
			}

			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return err
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// Genesis returns the genesis information.
func (h Handlers) Genesis(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	gen := h.State.Genesis()
	return web.Respond(ctx, w, gen, http.StatusOK)
}

// =============================================================================

// CreateAccounts creates new local accounts sealed under the password.
func (h Handlers) CreateAccounts(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var req newAccounts
	if err := web.Decode(r, &req); err != nil {
		return errs.BadRequest(err)
	}

	if err := validate.Check(req); err != nil {
		return err
	}

	addrs, err := h.State.Accounts().Create(req.Count, req.Password)
	if err != nil {
		return errs.Wrap(err)
	}

	return web.Respond(ctx, w, addrs, http.StatusCreated)
}

// Accounts returns the local accounts.
func (h Handlers) Accounts(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.Accounts().List(), http.StatusOK)
}

// DefaultAccount returns the account used when none is named.
func (h Handlers) DefaultAccount(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	acct, err := h.State.Accounts().Default()
	if err != nil {
		return errs.Wrap(err)
	}

	return web.Respond(ctx, w, acct, http.StatusOK)
}

// ImportAccount adds the account held by a keystore document.
func (h Handlers) ImportAccount(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var req importAccount
	if err := web.Decode(r, &req); err != nil {
		return errs.BadRequest(err)
	}

	acct, err := h.State.Accounts().Import(req.Keystore, req.Password)
	if err != nil {
		return errs.Wrap(err)
	}

	return web.Respond(ctx, w, acct, http.StatusCreated)
}

// ExportAccount returns the keystore document of the account.
func (h Handlers) ExportAccount(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	addr, err := signature.ParseAddress(web.Param(r, "address"))
	if err != nil {
		return errs.BadRequest(err)
	}

	var req credentials
	if err := web.Decode(r, &req); err != nil {
		return errs.BadRequest(err)
	}

	ks, err := h.State.Accounts().Export(addr, req.Password)
	if err != nil {
		return errs.Wrap(err)
	}

	return web.Respond(ctx, w, ks, http.StatusOK)
}

// RemoveAccount deletes the account after checking the password.
func (h Handlers) RemoveAccount(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	addr, err := signature.ParseAddress(web.Param(r, "address"))
	if err != nil {
		return errs.BadRequest(err)
	}

	var req credentials
	if err := web.Decode(r, &req); err != nil {
		return errs.BadRequest(err)
	}

	if err := h.State.Accounts().Remove(addr, req.Password); err != nil {
		return errs.Wrap(err)
	}

	return web.Respond(ctx, w, nil, http.StatusNoContent)
}

// Balance returns the balance of an address.
func (h Handlers) Balance(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	addr, err := signature.ParseAddress(web.Param(r, "address"))
	if err != nil {
		return errs.BadRequest(err)
	}

	return web.Respond(ctx, w, toBalance(addr, h.State.QueryBalance(addr)), http.StatusOK)
}

// UTXOs returns the unspent outputs of an address.
func (h Handlers) UTXOs(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	addr, err := signature.ParseAddress(web.Param(r, "address"))
	if err != nil {
		return errs.BadRequest(err)
	}

	return web.Respond(ctx, w, h.State.QueryUTXOs(addr), http.StatusOK)
}

// =============================================================================

// Transfer builds, signs and broadcasts a payment from a local account.
func (h Handlers) Transfer(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var req transfer
	if err := web.Decode(r, &req); err != nil {
		return errs.BadRequest(err)
	}

	if err := validate.Check(req); err != nil {
		return err
	}

	// Both parse, the validator checked them.
	from, _ := signature.ParseAddress(req.From)
	to, _ := signature.ParseAddress(req.To)

	h.Log.Infow("transfer", "traceid", v.TraceID, "from", from, "to", to, "amount", req.Amount)

	t, err := h.State.Transfer(from, req.Password, to, req.Amount, req.Remark)
	if err != nil {
		return errs.Wrap(err)
	}

	return web.Respond(ctx, w, toTx(t), http.StatusAccepted)
}

// Mempool returns the set of uncommitted transactions.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, toTxs(h.State.QueryMempool()), http.StatusOK)
}

// LocalTransactions returns the confirmed transactions of local accounts.
func (h Handlers) LocalTransactions(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	txs, err := h.State.QueryLocalTransactions()
	if err != nil {
		return err
	}

	return web.Respond(ctx, w, toTxs(txs), http.StatusOK)
}

// =============================================================================

// SetAlias claims an alias for a local account.
func (h Handlers) SetAlias(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var req setAlias
	if err := web.Decode(r, &req); err != nil {
		return errs.BadRequest(err)
	}

	if err := validate.Check(req); err != nil {
		return err
	}

	addr, _ := signature.ParseAddress(req.Address)

	t, err := h.State.SetAlias(addr, req.Password, req.Alias)
	if err != nil {
		return errs.Wrap(err)
	}

	return web.Respond(ctx, w, toTx(t), http.StatusAccepted)
}

// Alias returns the address bound to an alias.
func (h Handlers) Alias(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	name := web.Param(r, "name")

	addr, err := h.State.QueryAlias(name)
	if err != nil {
		return errs.Wrap(err)
	}

	resp := struct {
		Alias   string            `json:"alias"`
		Address signature.Address `json:"address"`
	}{
		Alias:   name,
		Address: addr,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// =============================================================================

// LatestBlock returns the block at the tip of the chain.
func (h Handlers) LatestBlock(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	blocks := h.State.QueryBlocksByNumber(state.QueryLatest, state.QueryLatest)
	if len(blocks) == 0 {
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}

	return web.Respond(ctx, w, toBlock(blocks[0]), http.StatusOK)
}
