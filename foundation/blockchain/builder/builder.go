// Package builder assembles, funds and signs transactions for local accounts
// and hands them to the pending pool.
package builder

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/adamwoolhether/utxochain/foundation/blockchain/codec"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/database"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/ledger"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/signature"
)

// ErrInsufficientBalance is returned when the usable coins of the sender do
// not cover the amount and the fee.
var ErrInsufficientBalance = errors.New("insufficient balance")

// Keys opens the private keys of local accounts.
type Keys interface {
	Unlock(addr signature.Address, password string) (*ecdsa.PrivateKey, error)
}

// Coins selects and reserves the coins a transaction spends.
type Coins interface {
	SelectCoins(addr signature.Address, amount uint64, baseSize int, fee ledger.FeeFunc) (ledger.CoinDataResult, error)
	Reserve(tx database.Transaction) error
	Release(tx database.Transaction)
}

// Broadcaster accepts a signed transaction for inclusion in a block.
type Broadcaster interface {
	Broadcast(tx database.Transaction) error
}

// Config represents the configuration required to construct a builder.
type Config struct {
	Keys        Keys
	Coins       Coins
	Fee         ledger.FeeFunc
	Broadcaster Broadcaster
	Now         func() time.Time
}

// Builder constructs transactions.
type Builder struct {
	keys        Keys
	coins       Coins
	fee         ledger.FeeFunc
	broadcaster Broadcaster
	now         func() time.Time
}

// New constructs a builder.
func New(cfg Config) *Builder {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Builder{
		keys:        cfg.Keys,
		coins:       cfg.Coins,
		fee:         cfg.Fee,
		broadcaster: cfg.Broadcaster,
		now:         now,
	}
}

// Build signs a transaction spending the coin data from the account. The key
// is opened only for the signature and wiped after. The result always passes
// Validate.
func (b *Builder) Build(typ database.TxType, remark string, payload []byte, coinData database.CoinData, from signature.Address, password string) (database.Transaction, error) {
	tx := database.Transaction{
		Type:     typ,
		Time:     uint64(b.now().UnixMilli()),
		Remark:   remark,
		Payload:  payload,
		CoinData: coinData,
	}

	return b.sign(tx, from, password)
}

// Request describes a transaction to fund from a single sender.
type Request struct {
	Type     database.TxType
	Remark   string
	Payload  []byte
	From     signature.Address
	Password string
	Outputs  []database.Output
}

// Fund selects coins of the sender covering the outputs and the fee, adds
// the change output and signs the transaction.
func (b *Builder) Fund(req Request) (database.Transaction, error) {
	var amount uint64
	for _, out := range req.Outputs {
		if amount > math.MaxUint64-out.Amount {
			return database.Transaction{}, database.ErrAmountOverflow
		}
		amount += out.Amount
	}

	tx := database.Transaction{
		Type:     req.Type,
		Time:     uint64(b.now().UnixMilli()),
		Remark:   req.Remark,
		Payload:  req.Payload,
		CoinData: database.CoinData{Outputs: req.Outputs},
		Script:   make([]byte, database.P2PKHScriptSize),
	}

	res, err := b.coins.SelectCoins(req.From, amount, tx.Size(), b.fee)
	if err != nil {
		return database.Transaction{}, err
	}

	if !res.Enough {
		return database.Transaction{}, fmt.Errorf("%w: %s needs %d plus fee %d", ErrInsufficientBalance, req.From, amount, res.Fee)
	}

	outputs := append([]database.Output(nil), req.Outputs...)
	if res.Change > 0 {
		outputs = append(outputs, database.Output{Address: req.From, Amount: res.Change})
	}

	tx.CoinData = database.CoinData{Inputs: res.Inputs, Outputs: outputs}
	tx.Script = nil

	return b.sign(tx, req.From, req.Password)
}

// Transfer funds, signs and submits a payment.
func (b *Builder) Transfer(from signature.Address, password string, to signature.Address, amount uint64, remark string) (database.Transaction, error) {
	if amount == 0 {
		return database.Transaction{}, fmt.Errorf("%w: zero amount", database.ErrInvalidTransaction)
	}

	tx, err := b.Fund(Request{
		Type:     database.TxTypeTransfer,
		Remark:   remark,
		From:     from,
		Password: password,
		Outputs:  []database.Output{{Address: to, Amount: amount}},
	})
	if err != nil {
		return database.Transaction{}, err
	}

	if err := b.Submit(tx); err != nil {
		return database.Transaction{}, err
	}

	return tx, nil
}

// Submit reserves the coins of the transaction and hands it to the
// broadcaster. The reservation is released if the hand off fails.
func (b *Builder) Submit(tx database.Transaction) error {
	if err := b.coins.Reserve(tx); err != nil {
		return err
	}

	if err := b.broadcaster.Broadcast(tx); err != nil {
		b.coins.Release(tx)
		return fmt.Errorf("broadcast: %w", err)
	}

	return nil
}

// =============================================================================

func (b *Builder) sign(tx database.Transaction, from signature.Address, password string) (database.Transaction, error) {
	digest := tx.ComputeHash()

	pk, err := b.keys.Unlock(from, password)
	if err != nil {
		return database.Transaction{}, err
	}
	defer signature.ZeroKey(pk)

	sig, err := signature.Sign(digest, pk)
	if err != nil {
		return database.Transaction{}, err
	}

	script := database.P2PKHScriptSig{
		PublicKey: signature.PublicKeyBytes(&pk.PublicKey),
		Signature: sig,
	}

	if tx.Script, err = codec.Serialize(&script); err != nil {
		return database.Transaction{}, err
	}
	tx.Hash = digest

	if err := tx.Validate(); err != nil {
		return database.Transaction{}, err
	}

	return tx, nil
}
