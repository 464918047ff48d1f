// Package mempool maintains the pool of pending transactions waiting to be
// included in a block.
package mempool

import (
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/adamwoolhether/utxochain/foundation/blockchain/database"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/mempool/selector"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/signature"
)

// Mempool represents a cache of pending transactions keyed by hash.
type Mempool struct {
	mu       sync.RWMutex
	pool     map[chainhash.Hash]database.Transaction
	selectFn selector.Func
}

// New constructs a new mempool using the fee strategy.
func New() (*Mempool, error) {
	return NewWithStrategy(selector.StrategyFee)
}

// NewWithStrategy constructs a new mempool with the specified select strategy.
func NewWithStrategy(strategy string) (*Mempool, error) {
	selectFn, err := selector.Retrieve(strategy)
	if err != nil {
		return nil, err
	}

	mp := Mempool{
		pool:     make(map[chainhash.Hash]database.Transaction),
		selectFn: selectFn,
	}

	return &mp, nil
}

// Count returns the current number of transactions in the pool.
func (mp *Mempool) Count() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return len(mp.pool)
}

// Upsert adds or replaces a transaction in the pool.
func (mp *Mempool) Upsert(tx database.Transaction) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.pool[tx.Hash] = tx
}

// Delete removes a transaction from the pool.
func (mp *Mempool) Delete(hash chainhash.Hash) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	delete(mp.pool, hash)
}

// Get returns the pending transaction with the hash.
func (mp *Mempool) Get(hash chainhash.Hash) (database.Transaction, bool) {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	tx, exists := mp.pool[hash]
	return tx, exists
}

// Copy returns all the pending transactions in no particular order.
func (mp *Mempool) Copy() []database.Transaction {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	cpy := make([]database.Transaction, 0, len(mp.pool))
	for _, tx := range mp.pool {
		cpy = append(cpy, tx)
	}

	return cpy
}

// PickBest uses the configured select strategy to return the next set of
// transactions for the next block.
func (mp *Mempool) PickBest(howMany ...int) []database.Transaction {
	number := -1
	if len(howMany) > 0 {
		number = howMany[0]
	}

	m := make(map[signature.Address][]database.Transaction)
	mp.mu.RLock()
	{
		for _, tx := range mp.pool {
			payer := selector.Payer(tx)
			m[payer] = append(m[payer], tx)
		}
	}
	mp.mu.RUnlock()

	return mp.selectFn(m, number)
}
