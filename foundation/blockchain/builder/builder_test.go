package builder_test

import (
	"errors"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/adamwoolhether/utxochain/foundation/blockchain/account"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/builder"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/database"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/ledger"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/signature"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/storage/pebbledb"
)

const password = "Passw0rd1"

type broadcaster struct {
	err error
	txs []database.Transaction
}

func (b *broadcaster) Broadcast(tx database.Transaction) error {
	if b.err != nil {
		return b.err
	}
	b.txs = append(b.txs, tx)
	return nil
}

type fixture struct {
	accounts *account.Directory
	ledger   *ledger.Ledger
	bcast    *broadcaster
	builder  *builder.Builder
	from     signature.Address
}

func newFixture(t *testing.T, coins ...uint64) fixture {
	t.Helper()

	db, err := pebbledb.NewMemory()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	accounts, err := account.New(account.Config{Storage: db, KDF: signature.LightKDF})
	if err != nil {
		t.Fatal(err)
	}

	addrs, err := accounts.Create(1, password)
	if err != nil {
		t.Fatal(err)
	}

	l, err := ledger.New(ledger.Config{Storage: db, Owners: accounts})
	if err != nil {
		t.Fatal(err)
	}

	utxos := make([]database.UTXO, len(coins))
	for i, amount := range coins {
		utxos[i] = database.UTXO{
			OutPoint: database.OutPoint{TxHash: chainhash.Hash{byte(i + 1)}},
			Output:   database.Output{Address: addrs[0], Amount: amount},
			Time:     uint64(i),
		}
	}
	if err := l.Credit(utxos...); err != nil {
		t.Fatal(err)
	}

	bcast := broadcaster{}

	return fixture{
		accounts: accounts,
		ledger:   l,
		bcast:    &bcast,
		from:     addrs[0],
		builder: builder.New(builder.Config{
			Keys:        accounts,
			Coins:       l,
			Fee:         ledger.FeePerKB(10),
			Broadcaster: &bcast,
		}),
	}
}

func newAddress(t *testing.T) signature.Address {
	t.Helper()

	pk, err := signature.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}

	return signature.DeriveAddress(&pk.PublicKey)
}

// =============================================================================

func TestTransfer(t *testing.T) {
	f := newFixture(t, 400, 500, 1000)
	to := newAddress(t)

	tx, err := f.builder.Transfer(f.from, password, to, 800, "rent")
	if err != nil {
		t.Fatal(err)
	}

	if err := tx.Validate(); err != nil {
		t.Fatalf("expected a valid transaction: %v", err)
	}

	signer, err := tx.Signer()
	if err != nil {
		t.Fatal(err)
	}
	if signer != f.from {
		t.Fatalf("expected signer %s, got %s", f.from, signer)
	}

	if len(tx.CoinData.Inputs) != 2 {
		t.Fatalf("expected the two oldest coins, got %d inputs", len(tx.CoinData.Inputs))
	}

	fee, err := tx.Fee()
	if err != nil {
		t.Fatal(err)
	}
	if fee != 10 {
		t.Fatalf("expected fee 10, got %d", fee)
	}

	outs := tx.CoinData.Outputs
	if len(outs) != 2 || outs[0].Address != to || outs[0].Amount != 800 {
		t.Fatalf("expected payment output first, got %+v", outs)
	}
	if outs[1].Address != f.from || outs[1].Amount != 90 {
		t.Fatalf("expected change of 90, got %+v", outs[1])
	}

	if len(f.bcast.txs) != 1 || f.bcast.txs[0].Hash != tx.Hash {
		t.Fatal("expected the transaction to be broadcast")
	}

	next, err := f.builder.Transfer(f.from, password, to, 900, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(next.CoinData.Inputs) != 1 || next.CoinData.Inputs[0].Amount != 1000 {
		t.Fatalf("expected reserved coins to be skipped, got %+v", next.CoinData.Inputs)
	}
}

func TestTransferExactAmountHasNoChange(t *testing.T) {
	f := newFixture(t, 510)

	tx, err := f.builder.Transfer(f.from, password, newAddress(t), 500, "")
	if err != nil {
		t.Fatal(err)
	}

	if n := len(tx.CoinData.Outputs); n != 1 {
		t.Fatalf("expected no change output, got %d outputs", n)
	}
}

func TestTransferFailures(t *testing.T) {
	f := newFixture(t, 100)
	to := newAddress(t)

	tt := []struct {
		name     string
		password string
		amount   uint64
		err      error
	}{
		{"insufficient", password, 100, builder.ErrInsufficientBalance},
		{"zero", password, 0, database.ErrInvalidTransaction},
		{"password", "Wrong0pass", 50, signature.ErrWrongPassword},
	}

	for i, tc := range tt {
		_, err := f.builder.Transfer(f.from, tc.password, to, tc.amount, "")
		if !errors.Is(err, tc.err) {
			t.Errorf("[case:%d] %s: expected %v, got %v", i, tc.name, tc.err, err)
		}
	}

	if len(f.bcast.txs) != 0 {
		t.Fatal("expected nothing to be broadcast")
	}
	if _, err := f.builder.Transfer(f.from, password, to, 50, ""); err != nil {
		t.Fatalf("expected no reservation to survive the failures: %v", err)
	}
}

func TestSubmitReleasesOnBroadcastFailure(t *testing.T) {
	f := newFixture(t, 1000)
	f.bcast.err = errors.New("pool full")

	to := newAddress(t)

	if _, err := f.builder.Transfer(f.from, password, to, 100, ""); err == nil {
		t.Fatal("expected the broadcast failure")
	}

	f.bcast.err = nil
	if _, err := f.builder.Transfer(f.from, password, to, 100, ""); err != nil {
		t.Fatalf("expected the reservation to be released: %v", err)
	}
}

func TestBuild(t *testing.T) {
	f := newFixture(t, 1000)

	coin := f.ledger.UTXOs(f.from)[0]
	cd := database.CoinData{
		Inputs:  []database.Input{coin.Input()},
		Outputs: []database.Output{{Address: newAddress(t), Amount: 990}},
	}

	tx, err := f.builder.Build(database.TxTypeTransfer, "manual", nil, cd, f.from, password)
	if err != nil {
		t.Fatal(err)
	}
	if tx.Hash != tx.ComputeHash() {
		t.Fatal("expected the hash to cover the signing form")
	}

	other := newAddress(t)
	if _, err := f.builder.Build(database.TxTypeTransfer, "", nil, cd, other, password); !errors.Is(err, account.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound for a foreign sender, got %v", err)
	}
}
