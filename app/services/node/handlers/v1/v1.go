// Package v1 contains the full set of handler functions and
// routes supported by the v1 web api.
package v1

import (
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/adamwoolhether/utxochain/app/services/node/handlers/v1/private"
	"github.com/adamwoolhether/utxochain/app/services/node/handlers/v1/public"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/state"
	"github.com/adamwoolhether/utxochain/foundation/events"
	"github.com/adamwoolhether/utxochain/foundation/web"
)

const version = "v1"

// Config contains all mandatory systems required by handlers.
type Config struct {
	Log   *zap.SugaredLogger
	State *state.State
	Evts  *events.Events
}

// PublicRoutes binds all version 1 public routes.
func PublicRoutes(app *web.App, cfg Config) {
	pbl := public.Handlers{
		Log:   cfg.Log,
		State: cfg.State,
		Evts:  cfg.Evts,
		WS:    websocket.Upgrader{},
	}

	app.Handle(http.MethodGet, version, "/events", pbl.Events)
	app.Handle(http.MethodGet, version, "/genesis", pbl.Genesis)

	app.Handle(http.MethodPost, version, "/accounts", pbl.CreateAccounts)
	app.Handle(http.MethodGet, version, "/accounts", pbl.Accounts)
	app.Handle(http.MethodGet, version, "/accounts/default", pbl.DefaultAccount)
	app.Handle(http.MethodPost, version, "/accounts/import", pbl.ImportAccount)
	app.Handle(http.MethodPost, version, "/accounts/:address/export", pbl.ExportAccount)
	app.Handle(http.MethodDelete, version, "/accounts/:address", pbl.RemoveAccount)
	app.Handle(http.MethodGet, version, "/accounts/:address/balance", pbl.Balance)
	app.Handle(http.MethodGet, version, "/accounts/:address/utxos", pbl.UTXOs)

	app.Handle(http.MethodPost, version, "/tx/transfer", pbl.Transfer)
	app.Handle(http.MethodGet, version, "/tx/uncommitted/list", pbl.Mempool)
	app.Handle(http.MethodGet, version, "/tx/local/list", pbl.LocalTransactions)

	app.Handle(http.MethodPost, version, "/aliases", pbl.SetAlias)
	app.Handle(http.MethodGet, version, "/aliases/:name", pbl.Alias)

	app.Handle(http.MethodGet, version, "/blocks/latest", pbl.LatestBlock)
}

// PrivateRoutes binds all version 1 private routes.
func PrivateRoutes(app *web.App, cfg Config) {
	prv := private.Handlers{
		Log:   cfg.Log,
		State: cfg.State,
	}

	app.Handle(http.MethodGet, version, "/node/status", prv.Status)
	app.Handle(http.MethodPost, version, "/node/tx/submit", prv.SubmitTransaction)
	app.Handle(http.MethodGet, version, "/node/tx/:hash", prv.Transaction)
	app.Handle(http.MethodGet, version, "/node/block/list/:from/:to", prv.BlocksByNumber)
	app.Handle(http.MethodPost, version, "/node/block/process", prv.ProcessBlock)
	app.Handle(http.MethodPost, version, "/node/block/produce", prv.ProduceBlock)
	app.Handle(http.MethodPost, version, "/node/block/rollback", prv.RollbackBlock)
}
