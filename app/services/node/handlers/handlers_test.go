package handlers_test

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/adamwoolhether/utxochain/app/services/node/handlers"
	v1Web "github.com/adamwoolhether/utxochain/business/web/v1"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/genesis"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/keystore"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/mempool/selector"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/signature"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/state"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/storage/pebbledb"
	"github.com/adamwoolhether/utxochain/foundation/logger"
)

const password = "Passw0rd1"

type node struct {
	public  http.Handler
	private http.Handler
	a       signature.Address
	b       signature.Address
}

func newNode(t *testing.T) node {
	t.Helper()

	db, err := pebbledb.NewMemory()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	pkA, err := signature.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	pkB, err := signature.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}

	st, err := state.New(state.Config{
		Storage: db,
		Genesis: genesis.Genesis{
			Date:        time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
			FeePerKB:    1,
			TxsPerBlock: 100,
			Balances: []genesis.Balance{
				{Address: signature.DeriveAddress(&pkA.PublicKey), Amount: 100},
			},
		},
		SelectStrategy: selector.StrategyFee,
		KDF:            signature.LightKDF,
		EvHandler:      func(v string, args ...any) { t.Logf(v, args...) },
	})
	if err != nil {
		t.Fatal(err)
	}

	log, err := logger.New("TEST", filepath.Join(t.TempDir(), "node.log"))
	if err != nil {
		t.Fatal(err)
	}

	cfg := handlers.MuxConfig{
		Shutdown: make(chan os.Signal, 1),
		Log:      log,
		State:    st,
	}

	return node{
		public:  handlers.PublicMux(cfg),
		private: handlers.PrivateMux(cfg),
		a:       importKey(t, st, pkA),
		b:       importKey(t, st, pkB),
	}
}

func importKey(t *testing.T, st *state.State, pk *ecdsa.PrivateKey) signature.Address {
	t.Helper()

	ks := keystore.Keystore{
		Address:    signature.DeriveAddress(&pk.PublicKey),
		PublicKey:  signature.PublicKeyBytes(&pk.PublicKey),
		PrivateKey: crypto.FromECDSA(pk),
	}

	acct, err := st.Accounts().Import(ks, password)
	if err != nil {
		t.Fatal(err)
	}

	return acct.Address
}

func call(t *testing.T, h http.Handler, method string, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}

	r := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, val any) {
	t.Helper()

	if err := json.Unmarshal(w.Body.Bytes(), val); err != nil {
		t.Fatalf("decoding %q: %s", w.Body.String(), err)
	}
}

// =============================================================================

func TestTransferFlow(t *testing.T) {
	n := newNode(t)

	var bal struct {
		Usable uint64 `json:"usable"`
		Total  uint64 `json:"total"`
	}

	w := call(t, n.public, http.MethodGet, "/v1/accounts/"+n.a.String()+"/balance", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("balance: expected 200, got %d: %s", w.Code, w.Body)
	}
	decode(t, w, &bal)
	if bal.Usable != 100 {
		t.Fatalf("expected 100 usable, got %+v", bal)
	}

	req := map[string]any{
		"from":     n.a.String(),
		"password": password,
		"to":       n.b.String(),
		"amount":   30,
		"remark":   "rent",
	}

	w = call(t, n.public, http.MethodPost, "/v1/tx/transfer", req)
	if w.Code != http.StatusAccepted {
		t.Fatalf("transfer: expected 202, got %d: %s", w.Code, w.Body)
	}

	var tx struct {
		Hash string `json:"hash"`
		Fee  uint64 `json:"fee"`
	}
	decode(t, w, &tx)
	if tx.Fee != 1 {
		t.Errorf("expected a fee of 1, got %d", tx.Fee)
	}

	var pool []json.RawMessage
	w = call(t, n.public, http.MethodGet, "/v1/tx/uncommitted/list", nil)
	decode(t, w, &pool)
	if len(pool) != 1 {
		t.Fatalf("expected 1 uncommitted tx, got %d", len(pool))
	}

	produce := map[string]any{
		"producer": n.a.String(),
		"password": password,
	}
	w = call(t, n.private, http.MethodPost, "/v1/node/block/produce", produce)
	if w.Code != http.StatusCreated {
		t.Fatalf("produce: expected 201, got %d: %s", w.Code, w.Body)
	}

	w = call(t, n.public, http.MethodGet, "/v1/accounts/"+n.b.String()+"/balance", nil)
	decode(t, w, &bal)
	if bal.Total != 30 {
		t.Errorf("expected B to hold 30, got %+v", bal)
	}

	var rec struct {
		Confirmed bool   `json:"confirmed"`
		Height    uint64 `json:"height"`
	}
	w = call(t, n.private, http.MethodGet, "/v1/node/tx/"+tx.Hash, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("tx: expected 200, got %d: %s", w.Code, w.Body)
	}
	decode(t, w, &rec)
	if !rec.Confirmed || rec.Height != 1 {
		t.Errorf("expected the tx confirmed at height 1, got %+v", rec)
	}

	var blk struct {
		Height uint64            `json:"height"`
		Txs    []json.RawMessage `json:"txs"`
	}
	w = call(t, n.public, http.MethodGet, "/v1/blocks/latest", nil)
	decode(t, w, &blk)
	if blk.Height != 1 || len(blk.Txs) != 1 {
		t.Errorf("expected block 1 with 1 tx, got height %d with %d txs", blk.Height, len(blk.Txs))
	}
}

func TestErrorStatuses(t *testing.T) {
	n := newNode(t)

	tt := []struct {
		name    string
		handler http.Handler
		method  string
		path    string
		body    any
		status  int
		field   string
	}{
		{
			name:    "invalid recipient",
			handler: n.public,
			method:  http.MethodPost,
			path:    "/v1/tx/transfer",
			body:    map[string]any{"from": n.a.String(), "password": password, "to": "nope", "amount": 1},
			status:  http.StatusBadRequest,
			field:   "to",
		},
		{
			name:    "wrong password",
			handler: n.public,
			method:  http.MethodPost,
			path:    "/v1/tx/transfer",
			body:    map[string]any{"from": n.a.String(), "password": "Wr0ngPassword", "to": n.b.String(), "amount": 1},
			status:  http.StatusForbidden,
		},
		{
			name:    "insufficient balance",
			handler: n.public,
			method:  http.MethodPost,
			path:    "/v1/tx/transfer",
			body:    map[string]any{"from": n.b.String(), "password": password, "to": n.a.String(), "amount": 1},
			status:  http.StatusBadRequest,
		},
		{
			name:    "unknown field",
			handler: n.public,
			method:  http.MethodPost,
			path:    "/v1/aliases",
			body:    map[string]any{"address": n.a.String(), "nickname": "alice"},
			status:  http.StatusBadRequest,
		},
		{
			name:    "short alias",
			handler: n.public,
			method:  http.MethodPost,
			path:    "/v1/aliases",
			body:    map[string]any{"address": n.a.String(), "password": password, "alias": "ab"},
			status:  http.StatusBadRequest,
		},
		{
			name:    "alias not set",
			handler: n.public,
			method:  http.MethodGet,
			path:    "/v1/aliases/nobody",
			status:  http.StatusNotFound,
		},
		{
			name:    "bad address",
			handler: n.public,
			method:  http.MethodGet,
			path:    "/v1/accounts/zzz/balance",
			status:  http.StatusBadRequest,
		},
		{
			name:    "empty pool",
			handler: n.private,
			method:  http.MethodPost,
			path:    "/v1/node/block/produce",
			body:    map[string]any{"producer": n.a.String(), "password": password},
			status:  http.StatusBadRequest,
		},
		{
			name:    "genesis rollback",
			handler: n.private,
			method:  http.MethodPost,
			path:    "/v1/node/block/rollback",
			status:  http.StatusBadRequest,
		},
		{
			name:    "bad range",
			handler: n.private,
			method:  http.MethodGet,
			path:    "/v1/node/block/list/5/1",
			status:  http.StatusBadRequest,
		},
		{
			name:    "malformed tx",
			handler: n.private,
			method:  http.MethodPost,
			path:    "/v1/node/tx/submit",
			body:    map[string]any{"data": "0x0102"},
			status:  http.StatusBadRequest,
		},
	}

	for i, tst := range tt {
		w := call(t, tst.handler, tst.method, tst.path, tst.body)
		if w.Code != tst.status {
			t.Errorf("[case:%d] %s: expected status %d, got %d: %s", i, tst.name, tst.status, w.Code, w.Body)
			continue
		}

		var er v1Web.ErrorResponse
		decode(t, w, &er)
		if er.Error == "" {
			t.Errorf("[case:%d] %s: expected an error message", i, tst.name)
		}
		if tst.field != "" {
			if _, exists := er.Fields[tst.field]; !exists {
				t.Errorf("[case:%d] %s: expected field %q in %v", i, tst.name, tst.field, er.Fields)
			}
		}
	}
}

func TestAccounts(t *testing.T) {
	n := newNode(t)

	w := call(t, n.public, http.MethodPost, "/v1/accounts", map[string]any{"count": 2, "password": password})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", w.Code, w.Body)
	}

	var created []signature.Address
	decode(t, w, &created)
	if len(created) != 2 {
		t.Fatalf("expected 2 addresses, got %d", len(created))
	}

	var list []json.RawMessage
	w = call(t, n.public, http.MethodGet, "/v1/accounts", nil)
	decode(t, w, &list)
	if len(list) != 4 {
		t.Fatalf("expected 4 accounts, got %d", len(list))
	}

	w = call(t, n.public, http.MethodPost, "/v1/accounts/"+created[0].String()+"/export", map[string]any{"password": password})
	if w.Code != http.StatusOK {
		t.Fatalf("export: expected 200, got %d: %s", w.Code, w.Body)
	}

	var ks keystore.Keystore
	decode(t, w, &ks)
	if ks.Address != created[0] {
		t.Errorf("expected keystore for %s, got %s", created[0], ks.Address)
	}

	w = call(t, n.public, http.MethodDelete, "/v1/accounts/"+created[0].String(), map[string]any{"password": password})
	if w.Code != http.StatusNoContent {
		t.Fatalf("remove: expected 204, got %d: %s", w.Code, w.Body)
	}

	w = call(t, n.public, http.MethodPost, "/v1/accounts/import", map[string]any{"keystore": ks, "password": password})
	if w.Code != http.StatusCreated {
		t.Fatalf("import: expected 201, got %d: %s", w.Code, w.Body)
	}

	w = call(t, n.public, http.MethodPost, "/v1/accounts/import", map[string]any{"keystore": ks, "password": password})
	if w.Code != http.StatusConflict {
		t.Errorf("import again: expected 409, got %d: %s", w.Code, w.Body)
	}
}
