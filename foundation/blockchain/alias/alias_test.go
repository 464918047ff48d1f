package alias_test

import (
	"crypto/ecdsa"
	"errors"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/adamwoolhether/utxochain/foundation/blockchain/account"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/alias"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/builder"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/database"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/ledger"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/signature"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/storage/pebbledb"
)

const password = "Passw0rd1"

type pool struct {
	txs []database.Transaction
}

func (p *pool) Broadcast(tx database.Transaction) error {
	p.txs = append(p.txs, tx)
	return nil
}

type fixture struct {
	db       database.Storage
	accounts *account.Directory
	registry *alias.Registry
	pool     *pool
	addrs    []signature.Address
}

func newFixture(t *testing.T) fixture {
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

	addrs, err := accounts.Create(3, password)
	if err != nil {
		t.Fatal(err)
	}

	l, err := ledger.New(ledger.Config{Storage: db, Owners: accounts})
	if err != nil {
		t.Fatal(err)
	}

	// The first two accounts can pay fees, the third can't.
	for i, addr := range addrs[:2] {
		u := database.UTXO{
			OutPoint: database.OutPoint{TxHash: chainhash.Hash{byte(i + 1)}},
			Output:   database.Output{Address: addr, Amount: 1000},
		}
		if err := l.Credit(u); err != nil {
			t.Fatal(err)
		}
	}

	p := pool{}
	b := builder.New(builder.Config{
		Keys:        accounts,
		Coins:       l,
		Fee:         ledger.FeePerKB(10),
		Broadcaster: &p,
	})

	return fixture{
		db:       db,
		accounts: accounts,
		pool:     &p,
		addrs:    addrs,
		registry: alias.New(alias.Config{
			Storage:   db,
			Accounts:  accounts,
			Funder:    b,
			EvHandler: func(v string, args ...any) { t.Logf(v, args...) },
		}),
	}
}

var errBroken = errors.New("broken")

type brokenStorage struct {
	database.Storage
}

func (brokenStorage) Get(key []byte) ([]byte, error) {
	return nil, errBroken
}

type brokenAccounts struct {
	alias.Accounts
}

func (brokenAccounts) UpdateAlias(addr signature.Address, name string) error {
	return errBroken
}

func mustKey(t *testing.T) *ecdsa.PublicKey {
	t.Helper()

	pk, err := signature.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}

	return &pk.PublicKey
}

// =============================================================================

func TestValidName(t *testing.T) {
	tt := []struct {
		name  string
		valid bool
	}{
		{"bob", true},
		{"Alice_01", true},
		{"abcdefghijklmnopqrst", true},
		{"ab", false},
		{"abcdefghijklmnopqrstu", false},
		{"bad-name", false},
		{"white space", false},
		{"", false},
	}

	for i, tc := range tt {
		if got := alias.ValidName(tc.name); got != tc.valid {
			t.Errorf("[case:%d] expected %q valid=%t, got %t", i, tc.name, tc.valid, got)
		}
	}
}

func TestSetAliasRejectsShortName(t *testing.T) {
	f := newFixture(t)

	_, err := f.registry.SetAlias(f.addrs[0], password, "ab")
	if !errors.Is(err, alias.ErrInvalidAlias) {
		t.Fatalf("expected ErrInvalidAlias, got %v", err)
	}

	if len(f.pool.txs) != 0 {
		t.Fatal("expected no transaction to be built")
	}
}

func TestSetAliasConfirm(t *testing.T) {
	f := newFixture(t)

	tx, err := f.registry.SetAlias(f.addrs[0], password, "bob")
	if err != nil {
		t.Fatal(err)
	}

	if tx.Type != database.TxTypeAlias {
		t.Fatalf("expected an alias transaction, got %s", tx.Type)
	}
	if err := tx.Validate(); err != nil {
		t.Fatalf("expected a valid transaction: %v", err)
	}
	if fee, _ := tx.Fee(); fee != 10 {
		t.Fatalf("expected the alias to cost only the fee, got %d", fee)
	}

	a, err := tx.AliasPayload()
	if err != nil {
		t.Fatal(err)
	}
	if a.Address != f.addrs[0] || a.Name != "bob" {
		t.Fatalf("unexpected payload %+v", a)
	}

	// Pending claims block both the name and the address.
	if _, err := f.registry.SetAlias(f.addrs[1], password, "bob"); !errors.Is(err, alias.ErrAliasAlreadyExists) {
		t.Fatalf("expected ErrAliasAlreadyExists for a pending name, got %v", err)
	}
	if _, err := f.registry.SetAlias(f.addrs[0], password, "bobby"); !errors.Is(err, alias.ErrAliasAlreadySet) {
		t.Fatalf("expected ErrAliasAlreadySet for a pending address, got %v", err)
	}

	if err := f.registry.Confirm(a); err != nil {
		t.Fatal(err)
	}

	owner, err := f.registry.Lookup("bob")
	if err != nil || owner != f.addrs[0] {
		t.Fatalf("expected bob to be %s, got %s, %v", f.addrs[0], owner, err)
	}
	if name, _ := f.registry.AliasOf(f.addrs[0]); name != "bob" {
		t.Fatalf("expected alias bob, got %q", name)
	}
	if acct, _ := f.accounts.Get(f.addrs[0]); acct.Alias != "bob" {
		t.Fatalf("expected the account alias to be updated, got %q", acct.Alias)
	}

	if err := f.registry.Check(database.Alias{Address: f.addrs[1], Name: "bob"}); !errors.Is(err, alias.ErrAliasAlreadyExists) {
		t.Fatalf("expected ErrAliasAlreadyExists, got %v", err)
	}
	if _, err := f.registry.SetAlias(f.addrs[0], password, "other"); !errors.Is(err, alias.ErrAliasAlreadySet) {
		t.Fatalf("expected ErrAliasAlreadySet, got %v", err)
	}
}

func TestSetAliasFailures(t *testing.T) {
	f := newFixture(t)

	stranger := signature.DeriveAddress(mustKey(t))

	tt := []struct {
		name string
		addr signature.Address
		pass string
		err  error
	}{
		{"unknown", stranger, password, account.ErrAccountNotFound},
		{"password", f.addrs[0], "Wrong0pass", signature.ErrWrongPassword},
		{"no-funds", f.addrs[2], password, builder.ErrInsufficientBalance},
	}

	for i, tc := range tt {
		if _, err := f.registry.SetAlias(tc.addr, tc.pass, "carol"); !errors.Is(err, tc.err) {
			t.Errorf("[case:%d] %s: expected %v, got %v", i, tc.name, tc.err, err)
		}
	}

	// Failed attempts must not leave the name claimed.
	if _, err := f.registry.SetAlias(f.addrs[0], password, "carol"); err != nil {
		t.Fatalf("expected the name to be free: %v", err)
	}
}

func TestRollback(t *testing.T) {
	f := newFixture(t)

	a := database.Alias{Address: f.addrs[0], Name: "dave"}

	if err := f.registry.Rollback(a); !errors.Is(err, alias.ErrAliasNotSet) {
		t.Fatalf("expected ErrAliasNotSet for an unknown alias, got %v", err)
	}

	if err := f.registry.Confirm(a); err != nil {
		t.Fatal(err)
	}

	other := database.Alias{Address: f.addrs[1], Name: "dave"}
	if err := f.registry.Rollback(other); !errors.Is(err, alias.ErrAliasNotSet) {
		t.Fatalf("expected ErrAliasNotSet for a different owner, got %v", err)
	}
	if err := f.registry.Confirm(other); !errors.Is(err, alias.ErrAliasAlreadyExists) {
		t.Fatalf("expected ErrAliasAlreadyExists, got %v", err)
	}

	if err := f.registry.Rollback(a); err != nil {
		t.Fatal(err)
	}

	if _, err := f.registry.Lookup("dave"); !errors.Is(err, alias.ErrAliasNotSet) {
		t.Fatalf("expected the alias to be removed, got %v", err)
	}
	if acct, _ := f.accounts.Get(f.addrs[0]); acct.Alias != "" {
		t.Fatalf("expected the account alias to be cleared, got %q", acct.Alias)
	}

	if err := f.registry.Check(other); err != nil {
		t.Fatalf("expected the name to be free again: %v", err)
	}
}

func TestConfirmForeignAddress(t *testing.T) {
	f := newFixture(t)

	a := database.Alias{Address: signature.DeriveAddress(mustKey(t)), Name: "remote"}
	if err := f.registry.Confirm(a); err != nil {
		t.Fatalf("expected a non local alias to be stored: %v", err)
	}

	if owner, _ := f.registry.Lookup("remote"); owner != a.Address {
		t.Fatalf("expected owner %s, got %s", a.Address, owner)
	}
}

func TestClaim(t *testing.T) {
	f := newFixture(t)

	a := database.Alias{Address: f.addrs[0], Name: "erin"}

	fresh, err := f.registry.Claim(a)
	if err != nil || !fresh {
		t.Fatalf("expected a new claim, got %t, %v", fresh, err)
	}

	// The same pair can be claimed again, by the same transaction
	// being broadcast twice.
	fresh, err = f.registry.Claim(a)
	if err != nil || fresh {
		t.Fatalf("expected the existing claim to be reused, got %t, %v", fresh, err)
	}

	tt := []struct {
		name  string
		alias database.Alias
		err   error
	}{
		{"name held", database.Alias{Address: f.addrs[1], Name: "erin"}, alias.ErrAliasAlreadyExists},
		{"address held", database.Alias{Address: f.addrs[0], Name: "erin2"}, alias.ErrAliasAlreadySet},
		{"invalid", database.Alias{Address: f.addrs[1], Name: "e!"}, alias.ErrInvalidAlias},
	}

	for i, tc := range tt {
		if _, err := f.registry.Claim(tc.alias); !errors.Is(err, tc.err) {
			t.Errorf("[case:%d] %s: expected %v, got %v", i, tc.name, tc.err, err)
		}
	}

	f.registry.Release(a)

	if _, err := f.registry.Claim(database.Alias{Address: f.addrs[1], Name: "erin"}); err != nil {
		t.Fatalf("expected the released name to be free: %v", err)
	}
}

func TestStorageFailures(t *testing.T) {
	f := newFixture(t)

	r := alias.New(alias.Config{
		Storage:  brokenStorage{Storage: f.db},
		Accounts: f.accounts,
	})

	a := database.Alias{Address: f.addrs[0], Name: "frank"}

	if err := r.Check(a); !errors.Is(err, errBroken) {
		t.Errorf("check: expected the read failure, got %v", err)
	}
	if _, err := r.Claim(a); !errors.Is(err, errBroken) {
		t.Errorf("claim: expected the read failure, got %v", err)
	}
	if err := r.Confirm(a); !errors.Is(err, errBroken) {
		t.Errorf("confirm: expected the read failure, got %v", err)
	}
	if err := r.Rollback(a); !errors.Is(err, errBroken) {
		t.Errorf("rollback: expected the read failure, got %v", err)
	}
}

func TestConfirmAccountFailure(t *testing.T) {
	f := newFixture(t)

	r := alias.New(alias.Config{
		Storage:  f.db,
		Accounts: brokenAccounts{Accounts: f.accounts},
	})

	a := database.Alias{Address: f.addrs[0], Name: "grace"}
	if _, err := r.Claim(a); err != nil {
		t.Fatal(err)
	}

	if err := r.Confirm(a); !errors.Is(err, errBroken) {
		t.Fatalf("expected the account update failure, got %v", err)
	}

	if _, err := r.Lookup("grace"); !errors.Is(err, alias.ErrAliasNotSet) {
		t.Fatalf("expected the binding to be removed, got %v", err)
	}
	if _, err := r.AliasOf(f.addrs[0]); !errors.Is(err, alias.ErrAliasNotSet) {
		t.Fatalf("expected the address to be unbound, got %v", err)
	}

	// The claim survives so the transaction can still be confirmed later.
	if _, err := r.Claim(database.Alias{Address: f.addrs[1], Name: "grace"}); !errors.Is(err, alias.ErrAliasAlreadyExists) {
		t.Fatalf("expected the claim to be kept, got %v", err)
	}
}
