package database_test

import (
	"bytes"
	"crypto/ecdsa"
	"errors"
	"math"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/adamwoolhether/utxochain/foundation/blockchain/codec"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/database"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/signature"
)

func newKey(t *testing.T) (*ecdsa.PrivateKey, signature.Address) {
	t.Helper()

	pk, err := signature.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}

	return pk, signature.DeriveAddress(&pk.PublicKey)
}

func sign(t *testing.T, tx *database.Transaction, pk *ecdsa.PrivateKey) {
	t.Helper()

	tx.Hash = tx.ComputeHash()
	sig, err := signature.Sign(tx.Hash, pk)
	if err != nil {
		t.Fatal(err)
	}

	script := database.P2PKHScriptSig{
		PublicKey: signature.PublicKeyBytes(&pk.PublicKey),
		Signature: sig,
	}
	if tx.Script, err = codec.Serialize(&script); err != nil {
		t.Fatal(err)
	}
}

func transfer(t *testing.T) (database.Transaction, *ecdsa.PrivateKey) {
	t.Helper()

	pk, from := newKey(t)
	_, to := newKey(t)

	tx := database.Transaction{
		Type:   database.TxTypeTransfer,
		Time:   1_700_000_000_000,
		Remark: "rent",
		CoinData: database.CoinData{
			Inputs: []database.Input{
				{OutPoint: database.OutPoint{TxHash: signature.Hash([]byte("prev")), Index: 1}, Owner: from, Amount: 5000},
			},
			Outputs: []database.Output{
				{Address: to, Amount: 3000},
				{Address: from, Amount: 1900, LockTime: 12},
			},
		},
	}
	sign(t, &tx, pk)

	return tx, pk
}

// =============================================================================

func TestTransactionRoundTrip(t *testing.T) {
	tx, _ := transfer(t)

	b, err := codec.Serialize(&tx)
	if err != nil {
		t.Fatal(err)
	}
	if len(b) != tx.Size() {
		t.Fatalf("expected %d bytes, got %d", tx.Size(), len(b))
	}

	var got database.Transaction
	if err := codec.Parse(b, &got); err != nil {
		t.Fatal(err)
	}

	again, err := codec.Serialize(&got)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(b, again) {
		t.Fatal("expected re-encoding to produce identical bytes")
	}
	if got.Hash != tx.Hash {
		t.Fatalf("expected hash %s, got %s", tx.Hash, got.Hash)
	}
	if err := got.Validate(); err != nil {
		t.Fatalf("expected parsed transaction to validate: %v", err)
	}

	fee, err := got.Fee()
	if err != nil {
		t.Fatal(err)
	}
	if fee != 100 {
		t.Fatalf("expected fee 100, got %d", fee)
	}
}

func TestTransactionHashIgnoresScript(t *testing.T) {
	tx, _ := transfer(t)
	h := tx.ComputeHash()

	tx.Script = append(tx.Script, 0)
	if tx.ComputeHash() != h {
		t.Fatal("expected hash to be independent of the script")
	}

	tx.Remark = "changed"
	if tx.ComputeHash() == h {
		t.Fatal("expected hash to change with the remark")
	}
}

func TestTransactionValidate(t *testing.T) {
	other, _ := newKey(t)

	tt := []struct {
		name   string
		mutate func(tx *database.Transaction)
	}{
		{"amount changed after signing", func(tx *database.Transaction) { tx.CoinData.Outputs[0].Amount++ }},
		{"outputs exceed inputs", func(tx *database.Transaction) {
			tx.CoinData.Outputs[0].Amount = 10_000
			tx.Hash = tx.ComputeHash()
		}},
		{"script from another key", func(tx *database.Transaction) { sign(t, tx, other) }},
		{"no script", func(tx *database.Transaction) { tx.Script = nil }},
		{"unknown type", func(tx *database.Transaction) { tx.Type = 99 }},
		{"duplicate input", func(tx *database.Transaction) {
			tx.CoinData.Inputs = append(tx.CoinData.Inputs, tx.CoinData.Inputs[0])
			tx.Hash = tx.ComputeHash()
		}},
	}

	for i, tc := range tt {
		tx, _ := transfer(t)
		tc.mutate(&tx)

		if err := tx.Validate(); !errors.Is(err, database.ErrInvalidTransaction) {
			t.Errorf("[case:%d] %s: expected ErrInvalidTransaction, got %v", i, tc.name, err)
		}
	}
}

func TestCoinbaseValidate(t *testing.T) {
	_, to := newKey(t)

	tx := database.Transaction{
		Type:     database.TxTypeCoinbase,
		Time:     1,
		CoinData: database.CoinData{Outputs: []database.Output{{Address: to, Amount: 1_000_000}}},
	}
	tx.Hash = tx.ComputeHash()

	if err := tx.Validate(); err != nil {
		t.Fatalf("expected coinbase to validate: %v", err)
	}

	tx.Script = []byte{1}
	if err := tx.Validate(); !errors.Is(err, database.ErrInvalidTransaction) {
		t.Fatalf("expected coinbase with script to fail, got %v", err)
	}

	overflow := database.Transaction{
		Type: database.TxTypeCoinbase,
		Time: 1,
		CoinData: database.CoinData{Outputs: []database.Output{
			{Address: to, Amount: math.MaxUint64},
			{Address: to, Amount: 1},
		}},
	}
	overflow.Hash = overflow.ComputeHash()

	if err := overflow.Validate(); !errors.Is(err, database.ErrInvalidTransaction) {
		t.Fatalf("expected coinbase with overflowing outputs to fail, got %v", err)
	}
}

func TestAliasPayloadSigner(t *testing.T) {
	pk, from := newKey(t)
	_, stranger := newKey(t)

	build := func(owner signature.Address) database.Transaction {
		payload, err := codec.Serialize(&database.Alias{Address: owner, Name: "alice"})
		if err != nil {
			t.Fatal(err)
		}

		tx := database.Transaction{
			Type:    database.TxTypeAlias,
			Time:    1,
			Payload: payload,
			CoinData: database.CoinData{
				Inputs: []database.Input{{OutPoint: database.OutPoint{TxHash: signature.Hash([]byte("c"))}, Owner: from, Amount: 10}},
			},
		}
		sign(t, &tx, pk)
		return tx
	}

	tx := build(from)
	if err := tx.Validate(); err != nil {
		t.Fatalf("expected alias transaction to validate: %v", err)
	}

	a, err := tx.AliasPayload()
	if err != nil {
		t.Fatal(err)
	}
	if a.Name != "alice" || a.Address != from {
		t.Fatalf("unexpected alias payload %+v", a)
	}

	tx = build(stranger)
	if err := tx.Validate(); !errors.Is(err, database.ErrInvalidTransaction) {
		t.Fatalf("expected alias for another address to fail, got %v", err)
	}
}

func TestCoinDataOverflow(t *testing.T) {
	cd := database.CoinData{
		Inputs: []database.Input{{Amount: math.MaxUint64}, {Amount: 1}},
	}

	if _, err := cd.Fee(); !errors.Is(err, database.ErrAmountOverflow) {
		t.Fatalf("expected ErrAmountOverflow, got %v", err)
	}
}

func TestBlockRoundTrip(t *testing.T) {
	tx, _ := transfer(t)
	_, producer := newKey(t)

	blk := database.Block{
		Header: database.BlockHeader{
			Version:    1,
			PrevHash:   signature.Hash([]byte("parent")),
			MerkleRoot: tx.Hash,
			Time:       1_700_000_000_000,
			Height:     7,
			TxCount:    1,
			Producer:   producer,
			Signature:  []byte{1, 2, 3},
			Extend:     []byte("round 7"),
		},
		Transactions: []database.Transaction{tx},
	}
	blk.Header.Hash = blk.Header.ComputeHash()

	b, err := codec.Serialize(&blk)
	if err != nil {
		t.Fatal(err)
	}

	var got database.Block
	if err := codec.Parse(b, &got); err != nil {
		t.Fatal(err)
	}

	if got.Header.Hash != blk.Header.Hash || got.Header.ComputeHash() != blk.Header.Hash {
		t.Fatal("expected header hash to survive the round trip")
	}
	if got.Header.Producer != producer || got.Header.Height != 7 {
		t.Fatalf("unexpected header %+v", got.Header)
	}
	if len(got.Transactions) != 1 || got.Transactions[0].Hash != tx.Hash {
		t.Fatal("expected the transaction to survive the round trip")
	}

	hashes := got.TxHashes()
	if len(hashes) != 1 || hashes[0] != tx.Hash {
		t.Fatalf("unexpected tx hashes %v", hashes)
	}
}

func TestHeaderHashExcludesSignature(t *testing.T) {
	h := database.BlockHeader{Height: 1, Time: 2}
	want := h.ComputeHash()

	h.Signature = []byte("sig")
	h.Hash = chainhash.Hash{1}
	if h.ComputeHash() != want {
		t.Fatal("expected header hash to ignore the hash and signature fields")
	}

	h.Extend = []byte{1}
	if h.ComputeHash() == want {
		t.Fatal("expected header hash to cover the extend field")
	}
}

func TestParseRejectsUnknownType(t *testing.T) {
	tx, _ := transfer(t)

	b, err := codec.Serialize(&tx)
	if err != nil {
		t.Fatal(err)
	}
	b[0] = 0x77

	var got database.Transaction
	if err := codec.Parse(b, &got); !errors.Is(err, codec.ErrMalformedData) {
		t.Fatalf("expected ErrMalformedData, got %v", err)
	}
}
