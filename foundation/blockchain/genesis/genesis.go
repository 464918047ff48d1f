// Package genesis maintains access to the genesis file.
package genesis

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"gopkg.in/yaml.v3"

	"github.com/adamwoolhether/utxochain/foundation/blockchain/database"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/header"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/signature"
)

// Defaults applied to fields the genesis file leaves empty.
const (
	DefaultFeePerKB    = 100_000
	DefaultTxsPerBlock = 100
)

// Genesis represents the genesis file.
type Genesis struct {
	Date        time.Time `yaml:"date"`
	FeePerKB    uint64    `yaml:"fee_per_kb"`
	TxsPerBlock int       `yaml:"txs_per_block"`
	Balances    []Balance `yaml:"balances"`
}

// Balance is a coin minted by the genesis block.
type Balance struct {
	Address  signature.Address `yaml:"address"`
	Amount   uint64            `yaml:"amount"`
	LockTime uint64            `yaml:"lock_time"`
}

// Load opens and consumes the genesis file.
func Load(path string) (Genesis, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	return Parse(content)
}

// Parse decodes a genesis document and applies the defaults.
func Parse(content []byte) (Genesis, error) {
	var g Genesis
	if err := yaml.Unmarshal(content, &g); err != nil {
		return Genesis{}, fmt.Errorf("parse genesis: %w", err)
	}

	if g.Date.IsZero() {
		return Genesis{}, errors.New("genesis date is required")
	}
	if g.FeePerKB == 0 {
		g.FeePerKB = DefaultFeePerKB
	}
	if g.TxsPerBlock <= 0 {
		g.TxsPerBlock = DefaultTxsPerBlock
	}

	for i, b := range g.Balances {
		if b.Address.IsZero() {
			return Genesis{}, fmt.Errorf("genesis balance %d: missing address", i)
		}
		if b.Amount == 0 {
			return Genesis{}, fmt.Errorf("genesis balance %d: zero amount for %s", i, b.Address)
		}
	}

	return g, nil
}

// Block returns the height 0 block minting the balances. The header is not
// signed.
func (g Genesis) Block() (database.Block, error) {
	outputs := make([]database.Output, len(g.Balances))
	for i, b := range g.Balances {
		outputs[i] = database.Output{Address: b.Address, Amount: b.Amount, LockTime: b.LockTime}
	}

	timeMilli := uint64(g.Date.UnixMilli())

	tx := database.Transaction{
		Type:     database.TxTypeCoinbase,
		Time:     timeMilli,
		Remark:   "genesis",
		CoinData: database.CoinData{Outputs: outputs},
	}
	tx.Hash = tx.ComputeHash()

	if err := tx.Validate(); err != nil {
		return database.Block{}, fmt.Errorf("genesis coinbase: %w", err)
	}

	h := header.Build(nil, []chainhash.Hash{tx.Hash}, signature.Address{}, timeMilli, nil)

	return database.Block{Header: h, Transactions: []database.Transaction{tx}}, nil
}
