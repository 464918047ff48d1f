package account_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/adamwoolhether/utxochain/foundation/blockchain/account"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/database"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/keystore"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/signature"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/storage/pebbledb"
)

const password = "Passw0rd1"

func newStorage(t *testing.T) database.Storage {
	t.Helper()

	db, err := pebbledb.NewMemory()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	return db
}

func newDirectory(t *testing.T, storage database.Storage) *account.Directory {
	t.Helper()

	dir, err := account.New(account.Config{
		Storage:   storage,
		KDF:       signature.LightKDF,
		EvHandler: func(v string, args ...any) { t.Logf(v, args...) },
	})
	if err != nil {
		t.Fatal(err)
	}

	return dir
}

// =============================================================================

func TestValidatePassword(t *testing.T) {
	tt := []struct {
		password string
		valid    bool
	}{
		{"Passw0rd1", true},
		{"abcdefg1", true},
		{"abc1", false},
		{"abcdefghij", false},
		{"1234567890", false},
		{"abcdefghij1234567890x", false},
	}

	for i, tc := range tt {
		err := account.ValidatePassword(tc.password)
		if tc.valid && err != nil {
			t.Errorf("[case:%d] expected %q to be valid: %v", i, tc.password, err)
		}
		if !tc.valid && !errors.Is(err, account.ErrWeakPassword) {
			t.Errorf("[case:%d] expected ErrWeakPassword for %q, got %v", i, tc.password, err)
		}
	}
}

func TestCreate(t *testing.T) {
	dir := newDirectory(t, newStorage(t))

	if _, err := dir.Create(0, password); !errors.Is(err, account.ErrInvalidCount) {
		t.Fatalf("expected ErrInvalidCount, got %v", err)
	}
	if _, err := dir.Create(account.MaxCreate+1, password); !errors.Is(err, account.ErrInvalidCount) {
		t.Fatalf("expected ErrInvalidCount, got %v", err)
	}
	if _, err := dir.Create(1, "short"); !errors.Is(err, account.ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}

	addrs, err := dir.Create(3, password)
	if err != nil {
		t.Fatal(err)
	}
	if len(addrs) != 3 {
		t.Fatalf("expected 3 addresses, got %d", len(addrs))
	}

	def, err := dir.Default()
	if err != nil {
		t.Fatal(err)
	}
	if def.Address != addrs[0] {
		t.Fatalf("expected default %s, got %s", addrs[0], def.Address)
	}

	list := dir.List()
	for i := range addrs {
		if list[i].Address != addrs[i] {
			t.Errorf("[case:%d] expected creation order %s, got %s", i, addrs[i], list[i].Address)
		}
		if !dir.IsMine(addrs[i]) {
			t.Errorf("[case:%d] expected %s to be local", i, addrs[i])
		}
		if enc, _ := dir.IsEncrypted(addrs[i]); !enc {
			t.Errorf("[case:%d] expected account to be encrypted", i)
		}
	}

	pk, err := dir.Unlock(addrs[1], password)
	if err != nil {
		t.Fatal(err)
	}
	if signature.DeriveAddress(&pk.PublicKey) != addrs[1] {
		t.Fatal("unlocked key does not match the address")
	}

	if _, err := dir.Unlock(addrs[1], "Wrong0pass"); !errors.Is(err, signature.ErrWrongPassword) {
		t.Fatalf("expected ErrWrongPassword, got %v", err)
	}
}

func TestCreateWithoutPassword(t *testing.T) {
	dir := newDirectory(t, newStorage(t))

	addrs, err := dir.Create(1, "")
	if err != nil {
		t.Fatal(err)
	}

	if enc, _ := dir.IsEncrypted(addrs[0]); enc {
		t.Fatal("expected account without password to be unencrypted")
	}

	if _, err := dir.Unlock(addrs[0], ""); err != nil {
		t.Fatalf("expected unencrypted account to unlock: %v", err)
	}
}

func TestRemoveReassignsDefault(t *testing.T) {
	dir := newDirectory(t, newStorage(t))

	addrs, err := dir.Create(3, password)
	if err != nil {
		t.Fatal(err)
	}

	if err := dir.Remove(addrs[0], "Wrong0pass"); !errors.Is(err, signature.ErrWrongPassword) {
		t.Fatalf("expected ErrWrongPassword, got %v", err)
	}

	if err := dir.Remove(addrs[0], password); err != nil {
		t.Fatal(err)
	}

	def, err := dir.Default()
	if err != nil {
		t.Fatal(err)
	}
	if def.Address != addrs[1] {
		t.Fatalf("expected default to move to %s, got %s", addrs[1], def.Address)
	}
	if dir.IsMine(addrs[0]) {
		t.Fatal("expected removed account to be gone")
	}

	for _, addr := range addrs[1:] {
		if err := dir.Remove(addr, password); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := dir.Default(); !errors.Is(err, account.ErrAccountNotFound) {
		t.Fatalf("expected no default account, got %v", err)
	}
}

func TestReload(t *testing.T) {
	storage := newStorage(t)
	dir := newDirectory(t, storage)

	addrs, err := dir.Create(2, password)
	if err != nil {
		t.Fatal(err)
	}
	if err := dir.UpdateAlias(addrs[1], "bob"); err != nil {
		t.Fatal(err)
	}

	again := newDirectory(t, storage)

	list := again.List()
	if len(list) != 2 || list[0].Address != addrs[0] || list[1].Address != addrs[1] {
		t.Fatalf("expected reloaded accounts in creation order, got %+v", list)
	}
	if list[1].Alias != "bob" {
		t.Fatalf("expected alias bob, got %q", list[1].Alias)
	}

	def, err := again.Default()
	if err != nil {
		t.Fatal(err)
	}
	if def.Address != addrs[0] {
		t.Fatalf("expected default %s, got %s", addrs[0], def.Address)
	}
}

func TestExportImport(t *testing.T) {
	src := newDirectory(t, newStorage(t))

	addrs, err := src.Create(1, password)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := src.Export(addrs[0], "Wrong0pass"); !errors.Is(err, signature.ErrWrongPassword) {
		t.Fatalf("expected ErrWrongPassword, got %v", err)
	}

	ks, err := src.Export(addrs[0], password)
	if err != nil {
		t.Fatal(err)
	}
	if len(ks.PrivateKey) != 0 {
		t.Fatal("expected export to carry no plaintext key")
	}

	if _, err := src.Import(ks, password); !errors.Is(err, account.ErrAccountAlreadyExists) {
		t.Fatalf("expected ErrAccountAlreadyExists, got %v", err)
	}

	dst := newDirectory(t, newStorage(t))

	if _, err := dst.Import(ks, "Wrong0pass"); !errors.Is(err, signature.ErrWrongPassword) {
		t.Fatalf("expected ErrWrongPassword, got %v", err)
	}

	acct, err := dst.Import(ks, password)
	if err != nil {
		t.Fatal(err)
	}
	if acct.Address != addrs[0] {
		t.Fatalf("expected %s, got %s", addrs[0], acct.Address)
	}

	def, err := dst.Default()
	if err != nil {
		t.Fatal(err)
	}
	if def.Address != addrs[0] {
		t.Fatal("expected imported account to become the default")
	}
}

func TestImportPlaintextKey(t *testing.T) {
	pk, err := signature.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	addr := signature.DeriveAddress(&pk.PublicKey)

	other, err := signature.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}

	dir := newDirectory(t, newStorage(t))

	bad := keystore.Keystore{Address: signature.DeriveAddress(&other.PublicKey), PrivateKey: crypto.FromECDSA(pk)}
	if _, err := dir.Import(bad, password); !errors.Is(err, account.ErrInvalidData) {
		t.Fatalf("expected ErrInvalidData for mismatched address, got %v", err)
	}

	ks := keystore.Keystore{Address: addr, PrivateKey: crypto.FromECDSA(pk)}
	acct, err := dir.Import(ks, password)
	if err != nil {
		t.Fatal(err)
	}
	if !acct.Encrypted {
		t.Fatal("expected the plaintext key to be sealed under the password")
	}

	if _, err := dir.Unlock(addr, password); err != nil {
		t.Fatalf("expected imported key to unlock: %v", err)
	}
}

func TestConcurrentReadsDuringWrites(t *testing.T) {
	dir := newDirectory(t, newStorage(t))

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < 5; i++ {
			if _, err := dir.Create(1, ""); err != nil {
				t.Error(err)
				return
			}
		}
	}()

	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			list := dir.List()
			for _, a := range list {
				if !dir.IsMine(a.Address) {
					t.Error("listed account not reported as local")
					return
				}
			}
		}
	}()

	wg.Wait()

	if n := len(dir.List()); n != 5 {
		t.Fatalf("expected 5 accounts, got %d", n)
	}
}
