package state

import (
	"encoding/binary"
	"errors"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/adamwoolhether/utxochain/foundation/blockchain/database"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/ledger"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/signature"
)

// QueryLatest represents a query to the latest block in the chain.
const QueryLatest = ^uint64(0) >> 1

// TxRecord is a transaction and where it stands.
type TxRecord struct {
	Transaction database.Transaction `json:"transaction"`
	Confirmed   bool                 `json:"confirmed"`
	Height      uint64               `json:"height"`
}

// QueryBalance returns the balance of the address.
func (s *State) QueryBalance(addr signature.Address) ledger.Balance {
	return s.ledger.Balance(addr)
}

// QueryTotalBalance returns the balance summed over every local account.
func (s *State) QueryTotalBalance() ledger.Balance {
	return s.ledger.TotalBalance(s.accounts.Addresses())
}

// QueryUTXOs returns the unspent outputs of the address.
func (s *State) QueryUTXOs(addr signature.Address) []database.UTXO {
	return s.ledger.UTXOs(addr)
}

// QueryLocalTransactions returns the confirmed transactions involving a
// local account.
func (s *State) QueryLocalTransactions() ([]database.Transaction, error) {
	return s.ledger.LocalTransactions()
}

// QueryMempool returns a copy of the pending transactions.
func (s *State) QueryMempool() []database.Transaction {
	return s.mempool.Copy()
}

// QueryMempoolLength returns the current length of the mempool.
func (s *State) QueryMempoolLength() int {
	return s.mempool.Count()
}

// QueryHeight returns the height of the tip.
func (s *State) QueryHeight() uint64 {
	return s.chain.Height()
}

// QueryLatestHeader returns the header at the tip.
func (s *State) QueryLatestHeader() (database.BlockHeader, error) {
	return s.chain.Tip()
}

// QueryHeaders returns the accepted headers between the heights, inclusive.
func (s *State) QueryHeaders(from, to uint64) []database.BlockHeader {
	return s.chain.Range(from, to)
}

// QueryBlockByHeight returns the block at the height.
func (s *State) QueryBlockByHeight(height uint64) (database.Block, error) {
	return s.loadBody(height)
}

// QueryBlockByHash returns the block with the header hash.
func (s *State) QueryBlockByHash(hash chainhash.Hash) (database.Block, error) {
	h, err := s.chain.ByHash(hash)
	if err != nil {
		return database.Block{}, err
	}

	return s.loadBody(h.Height)
}

// QueryBlocksByNumber returns the set of blocks based on block numbers.
func (s *State) QueryBlocksByNumber(from, to uint64) []database.Block {
	if from == QueryLatest {
		from = s.chain.Height()
		to = from
	}

	if to == QueryLatest {
		to = s.chain.Height()
	}

	var out []database.Block
	for i := from; i <= to; i++ {
		block, err := s.loadBody(i)
		if err != nil {
			s.evHandler("state: getblock: ERROR: %s", err)
			return nil
		}
		out = append(out, block)
	}

	return out
}

// QueryTransaction returns a pending or confirmed transaction by hash.
func (s *State) QueryTransaction(hash chainhash.Hash) (TxRecord, error) {
	if tx, exists := s.mempool.Get(hash); exists {
		return TxRecord{Transaction: tx}, nil
	}

	b, err := s.storage.Get(txIndexKey(hash))
	if err != nil {
		return TxRecord{}, err
	}
	if len(b) != 8 {
		return TxRecord{}, errors.New("malformed transaction index")
	}
	height := binary.BigEndian.Uint64(b)

	block, err := s.loadBody(height)
	if err != nil {
		return TxRecord{}, err
	}

	for _, tx := range block.Transactions {
		if tx.Hash == hash {
			return TxRecord{Transaction: tx, Confirmed: true, Height: height}, nil
		}
	}

	return TxRecord{}, database.ErrNotFound
}

// QueryAlias returns the address bound to the alias.
func (s *State) QueryAlias(name string) (signature.Address, error) {
	return s.aliases.Lookup(name)
}
