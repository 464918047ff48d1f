package keystore_test

import (
	"errors"
	"testing"

	"github.com/adamwoolhether/utxochain/foundation/blockchain/keystore"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/signature"
)

func newKeystore(t *testing.T) keystore.Keystore {
	t.Helper()

	pk, err := signature.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}

	sealed, err := signature.EncryptPrivateKey(pk, "Passw0rd1", signature.LightKDF)
	if err != nil {
		t.Fatal(err)
	}

	return keystore.Keystore{
		Address:   signature.DeriveAddress(&pk.PublicKey),
		PublicKey: signature.PublicKeyBytes(&pk.PublicKey),
		Crypto:    sealed,
		Encrypted: true,
	}
}

func TestDiskWriteRead(t *testing.T) {
	d, err := keystore.NewDisk(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	ks := newKeystore(t)
	if _, err := d.Write(ks); err != nil {
		t.Fatal(err)
	}

	got, err := d.Read(ks.Address)
	if err != nil {
		t.Fatal(err)
	}
	if got.Address != ks.Address || !got.Encrypted || len(got.Crypto) == 0 {
		t.Fatalf("unexpected keystore %+v", got)
	}

	if _, err := signature.DecryptPrivateKey(got.Crypto, "Passw0rd1"); err != nil {
		t.Fatalf("expected the sealed key to survive the file: %v", err)
	}
}

func TestDiskForEach(t *testing.T) {
	d, err := keystore.NewDisk(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	want := make(map[signature.Address]bool)
	for i := 0; i < 3; i++ {
		ks := newKeystore(t)
		if _, err := d.Write(ks); err != nil {
			t.Fatal(err)
		}
		want[ks.Address] = true
	}

	iter, err := d.ForEach()
	if err != nil {
		t.Fatal(err)
	}

	var n int
	for ks, err := iter.Next(); !iter.Done(); ks, err = iter.Next() {
		if err != nil {
			t.Fatal(err)
		}
		if !want[ks.Address] {
			t.Errorf("[case:%d] unexpected address %s", n, ks.Address)
		}
		n++
	}

	if n != len(want) {
		t.Fatalf("expected %d keystores, got %d", len(want), n)
	}

	for addr := range want {
		if err := d.Remove(addr); err != nil {
			t.Fatal(err)
		}
	}

	iter, err = d.ForEach()
	if err != nil {
		t.Fatal(err)
	}
	if iter.Next(); !iter.Done() {
		t.Fatal("expected no keystores after removal")
	}
}

func TestUnmarshalRequiresKeyMaterial(t *testing.T) {
	ks := newKeystore(t)
	ks.Crypto = nil

	data, err := ks.Marshal()
	if err != nil {
		t.Fatal(err)
	}

	if _, err := keystore.Unmarshal(data); !errors.Is(err, keystore.ErrNoKeyMaterial) {
		t.Fatalf("expected ErrNoKeyMaterial, got %v", err)
	}
}
