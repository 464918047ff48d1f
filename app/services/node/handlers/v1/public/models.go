package public

import (
	"github.com/adamwoolhether/utxochain/foundation/blockchain/database"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/keystore"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/ledger"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/signature"
)

type newAccounts struct {
	Count    int    `json:"count" validate:"gte=1,lte=100"`
	Password string `json:"password"`
}

type importAccount struct {
	Keystore keystore.Keystore `json:"keystore"`
	Password string            `json:"password"`
}

type credentials struct {
	Password string `json:"password"`
}

type transfer struct {
	From     string `json:"from" validate:"required,address"`
	Password string `json:"password"`
	To       string `json:"to" validate:"required,address"`
	Amount   uint64 `json:"amount" validate:"gt=0"`
	Remark   string `json:"remark" validate:"max=1024"`
}

type setAlias struct {
	Address  string `json:"address" validate:"required,address"`
	Password string `json:"password"`
	Alias    string `json:"alias" validate:"required"`
}

// =============================================================================

type balance struct {
	Address signature.Address `json:"address"`
	Usable  uint64            `json:"usable"`
	Locked  uint64            `json:"locked"`
	Total   uint64            `json:"total"`
}

func toBalance(addr signature.Address, b ledger.Balance) balance {
	return balance{
		Address: addr,
		Usable:  b.Usable,
		Locked:  b.Locked,
		Total:   b.Total,
	}
}

type tx struct {
	Hash    string            `json:"hash"`
	Type    string            `json:"type"`
	Time    uint64            `json:"time"`
	Remark  string            `json:"remark,omitempty"`
	Fee     uint64            `json:"fee"`
	Inputs  []database.Input  `json:"inputs"`
	Outputs []database.Output `json:"outputs"`
}

func toTx(t database.Transaction) tx {
	fee, _ := t.Fee()

	return tx{
		Hash:    t.Hash.String(),
		Type:    t.Type.String(),
		Time:    t.Time,
		Remark:  t.Remark,
		Fee:     fee,
		Inputs:  t.CoinData.Inputs,
		Outputs: t.CoinData.Outputs,
	}
}

func toTxs(txs []database.Transaction) []tx {
	out := make([]tx, len(txs))
	for i := range txs {
		out[i] = toTx(txs[i])
	}
	return out
}

type block struct {
	Height       uint64            `json:"height"`
	Hash         string            `json:"hash"`
	PrevHash     string            `json:"prev_hash"`
	MerkleRoot   string            `json:"merkle_root"`
	Time         uint64            `json:"time"`
	Producer     signature.Address `json:"producer"`
	Transactions []tx              `json:"txs"`
}

func toBlock(b database.Block) block {
	return block{
		Height:       b.Header.Height,
		Hash:         b.Header.Hash.String(),
		PrevHash:     b.Header.PrevHash.String(),
		MerkleRoot:   b.Header.MerkleRoot.String(),
		Time:         b.Header.Time,
		Producer:     b.Header.Producer,
		Transactions: toTxs(b.Transactions),
	}
}
