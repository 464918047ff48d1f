package state

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/adamwoolhether/utxochain/foundation/blockchain/codec"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/database"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/header"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/signature"
)

// ErrNoTransactions is returned when a block is requested
// to be created and there aren't enough transactions.
var ErrNoTransactions = errors.New("not enough transactions in mempool")

// ErrInvalidBlock is returned when a block body breaks a transaction rule.
var ErrInvalidBlock = errors.New("invalid block")

// Storage keys for block bodies and the transaction index.
const (
	prefixBlock   = "blk:"
	prefixTxIndex = "txi:"
)

// =============================================================================

// ProduceBlock builds a block from the best pending transactions, seals it
// with the producer's key and applies it to the chain.
func (s *State) ProduceBlock(producer signature.Address, password string) (database.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evHandler("state: ProduceBlock: check mempool count")

	// Are there enough transactions in the pool.
	if s.mempool.Count() == 0 {
		return database.Block{}, ErrNoTransactions
	}

	prev, err := s.chain.Tip()
	if err != nil {
		return database.Block{}, err
	}

	// Picks that no longer fit the confirmed state would fail the whole
	// block, so they leave the pool here.
	txs := s.admit(s.mempool.PickBest(s.genesis.TxsPerBlock), prev.Height+1)
	if len(txs) == 0 {
		return database.Block{}, ErrNoTransactions
	}

	hashes := make([]chainhash.Hash, len(txs))
	for i := range txs {
		hashes[i] = txs[i].Hash
	}

	// A header can never be older than its parent.
	timeMilli := uint64(s.now().UnixMilli())
	if timeMilli < prev.Time {
		timeMilli = prev.Time
	}

	h := header.Build(&prev, hashes, producer, timeMilli, nil)

	key, err := s.accounts.Unlock(producer, password)
	if err != nil {
		return database.Block{}, fmt.Errorf("unlock producer: %w", err)
	}
	defer signature.ZeroKey(key)

	if err := header.Seal(&h, key); err != nil {
		return database.Block{}, err
	}

	block := database.Block{Header: h, Transactions: txs}

	s.evHandler("state: ProduceBlock: height[%d] txs[%d] validate and update database", h.Height, len(txs))

	if err := s.processBlock(block); err != nil {
		return database.Block{}, err
	}

	return block, nil
}

// ProcessBlock takes a block, validates it, and if it passes, applies its
// transactions to the ledger and the alias registry and appends its header.
func (s *State) ProcessBlock(block database.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.processBlock(block)
}

// =============================================================================

func (s *State) processBlock(block database.Block) error {
	s.evHandler("state: ProcessBlock: started: height[%d] blk[%s] numTrans[%d]", block.Header.Height, block.Header.Hash, len(block.Transactions))
	defer s.evHandler("state: ProcessBlock: completed: blk[%s]", block.Header.Hash)

	hashes := block.TxHashes()

	if err := s.chain.Validate(block.Header, hashes); err != nil {
		return err
	}

	aliases, err := s.validateBody(block)
	if err != nil {
		return err
	}

	// Pending transactions spending the same coins lose to the block.
	evicted := s.evictConflicts(block, false)

	committed, err := s.commitAll(block.Transactions)
	if err != nil {
		s.rollbackAll(committed)
		s.repool(evicted)
		return err
	}

	if err := s.storeBody(block); err != nil {
		s.rollbackAll(committed)
		s.repool(evicted)
		return err
	}

	if err := s.chain.Accept(block.Header, hashes); err != nil {
		s.deleteBody(block)
		s.rollbackAll(committed)
		s.repool(evicted)
		return err
	}

	for i, a := range aliases {
		if err := s.aliases.Confirm(a); err != nil {
			s.undoAliases(block, aliases[:i])
			if _, rerr := s.chain.Rollback(); rerr != nil {
				s.evHandler("state: ProcessBlock: ERROR: header rollback: %s", rerr)
			}
			s.deleteBody(block)
			s.rollbackAll(committed)
			s.repool(evicted)
			return fmt.Errorf("confirm alias %s: %w", a.Name, err)
		}
	}

	for _, tx := range block.Transactions {
		s.mempool.Delete(tx.Hash)
	}

	// Pending aliases for a name or an address the block just bound can
	// never be confirmed.
	s.evictAliases(block, aliases)

	return nil
}

// validateBody checks the transactions of the block against each other and
// the confirmed state. It returns the aliases the block binds.
func (s *State) validateBody(block database.Block) ([]database.Alias, error) {
	body := newBodyRules(len(block.Transactions))

	for i := range block.Transactions {
		tx := block.Transactions[i]

		if err := s.checkBodyTx(tx, block.Header.Height, body); err != nil {
			return nil, fmt.Errorf("%w: tx %d: %w", ErrInvalidBlock, i, err)
		}
	}

	return body.aliases, nil
}

// admit keeps the picked transactions that pass the block body rules for a
// block at the height. The rest are dropped from the pool.
func (s *State) admit(txs []database.Transaction, height uint64) []database.Transaction {
	body := newBodyRules(len(txs))

	admitted := make([]database.Transaction, 0, len(txs))
	for _, tx := range txs {
		if err := s.checkBodyTx(tx, height, body); err != nil {
			s.evHandler("state: ProduceBlock: tx[%s] dropped: %s", tx.Hash, err)
			s.drop(tx)
			continue
		}
		admitted = append(admitted, tx)
	}

	return admitted
}

// bodyRules tracks what the transactions of one block body have used so far.
type bodyRules struct {
	seen    map[chainhash.Hash]struct{}
	names   map[string]struct{}
	addrs   map[signature.Address]struct{}
	aliases []database.Alias
}

func newBodyRules(n int) *bodyRules {
	return &bodyRules{
		seen:  make(map[chainhash.Hash]struct{}, n),
		names: make(map[string]struct{}),
		addrs: make(map[signature.Address]struct{}),
	}
}

// checkBodyTx checks one transaction of a block body at the height. On
// success the transaction is recorded in the body.
func (s *State) checkBodyTx(tx database.Transaction, height uint64, body *bodyRules) error {
	if err := tx.Validate(); err != nil {
		return err
	}

	if _, exists := body.seen[tx.Hash]; exists {
		return fmt.Errorf("duplicate tx %s", tx.Hash)
	}

	confirmed, err := s.confirmed(tx.Hash)
	if err != nil {
		return err
	}
	if confirmed {
		return fmt.Errorf("tx %s already confirmed", tx.Hash)
	}

	if tx.Type == database.TxTypeCoinbase {
		if height != 0 {
			return fmt.Errorf("tx %s: %w", tx.Hash, ErrCoinbaseNotAllowed)
		}
		body.seen[tx.Hash] = struct{}{}
		return nil
	}

	var a database.Alias
	if tx.Type == database.TxTypeAlias {
		if a, err = tx.AliasPayload(); err != nil {
			return fmt.Errorf("tx %s: %w", tx.Hash, err)
		}
		if err := s.aliases.Check(a); err != nil {
			return fmt.Errorf("tx %s: %w", tx.Hash, err)
		}

		_, dupName := body.names[a.Name]
		_, dupAddr := body.addrs[a.Address]
		if dupName || dupAddr {
			return fmt.Errorf("tx %s: alias %s claimed twice", tx.Hash, a.Name)
		}
	}

	fee, err := tx.Fee()
	if err != nil {
		return fmt.Errorf("tx %s: %w", tx.Hash, err)
	}
	if min := s.fee(tx.Size()); fee < min {
		return fmt.Errorf("tx %s: %w: paid %d, need %d", tx.Hash, ErrFeeTooLow, fee, min)
	}

	body.seen[tx.Hash] = struct{}{}
	if tx.Type == database.TxTypeAlias {
		body.names[a.Name] = struct{}{}
		body.addrs[a.Address] = struct{}{}
		body.aliases = append(body.aliases, a)
	}

	return nil
}

// confirmed reports whether the transaction is indexed in a stored block.
func (s *State) confirmed(hash chainhash.Hash) (bool, error) {
	_, err := s.storage.Get(txIndexKey(hash))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, database.ErrNotFound):
		return false, nil
	}

	return false, fmt.Errorf("read tx index: %w", err)
}

// commitAll applies the transactions in block order. It returns the ones
// that were committed before any failure.
func (s *State) commitAll(txs []database.Transaction) ([]database.Transaction, error) {
	committed := make([]database.Transaction, 0, len(txs))
	for _, tx := range txs {
		if err := s.ledger.Commit(tx); err != nil {
			return committed, fmt.Errorf("%w: tx %s: %w", ErrInvalidBlock, tx.Hash, err)
		}
		committed = append(committed, tx)
	}

	return committed, nil
}

// rollbackAll reverses committed transactions, last first.
func (s *State) rollbackAll(txs []database.Transaction) {
	for i := len(txs) - 1; i >= 0; i-- {
		if err := s.ledger.Rollback(txs[i]); err != nil {
			s.evHandler("state: rollbackAll: ERROR: tx[%s]: %s", txs[i].Hash, err)
		}
	}
}

// evictConflicts drops pending transactions that are not part of the block
// but touch the coins it works with. Spenders of the same inputs are
// dropped, and with outputs set, so are spenders of the block's outputs.
func (s *State) evictConflicts(block database.Block, outputs bool) []database.Transaction {
	inBlock := make(map[chainhash.Hash]struct{}, len(block.Transactions))
	spent := make(map[database.OutPoint]struct{})
	for _, tx := range block.Transactions {
		inBlock[tx.Hash] = struct{}{}
		for _, in := range tx.CoinData.Inputs {
			spent[in.OutPoint] = struct{}{}
		}
	}

	var evicted []database.Transaction
	for _, tx := range s.mempool.Copy() {
		if _, exists := inBlock[tx.Hash]; exists {
			continue
		}

		for _, in := range tx.CoinData.Inputs {
			_, conflict := spent[in.OutPoint]
			if outputs {
				_, created := inBlock[in.OutPoint.TxHash]
				conflict = conflict || created
			}

			if conflict {
				s.drop(tx)
				evicted = append(evicted, tx)
				break
			}
		}
	}

	return evicted
}

// drop removes a pending transaction and frees what it held.
func (s *State) drop(tx database.Transaction) {
	s.evHandler("state: drop: tx[%s] leaves the pool", tx.Hash)

	s.mempool.Delete(tx.Hash)
	s.ledger.Release(tx)

	if tx.Type == database.TxTypeAlias {
		if a, err := tx.AliasPayload(); err == nil {
			s.aliases.Release(a)
		}
	}
}

// evictAliases drops pending alias transactions whose name or address is
// bound by one of the aliases.
func (s *State) evictAliases(block database.Block, aliases []database.Alias) {
	if len(aliases) == 0 {
		return
	}

	inBlock := make(map[chainhash.Hash]struct{}, len(block.Transactions))
	for _, tx := range block.Transactions {
		inBlock[tx.Hash] = struct{}{}
	}

	names := make(map[string]struct{}, len(aliases))
	addrs := make(map[signature.Address]struct{}, len(aliases))
	for _, a := range aliases {
		names[a.Name] = struct{}{}
		addrs[a.Address] = struct{}{}
	}

	for _, tx := range s.mempool.Copy() {
		if tx.Type != database.TxTypeAlias {
			continue
		}
		if _, exists := inBlock[tx.Hash]; exists {
			continue
		}

		a, err := tx.AliasPayload()
		if err != nil {
			s.drop(tx)
			continue
		}

		_, name := names[a.Name]
		_, addr := addrs[a.Address]
		if name || addr {
			s.drop(tx)
		}
	}
}

// undoAliases unbinds aliases confirmed for a block that failed afterwards.
// Transactions of the block still in the pool get their claims back.
func (s *State) undoAliases(block database.Block, aliases []database.Alias) {
	for i := len(aliases) - 1; i >= 0; i-- {
		if err := s.aliases.Rollback(aliases[i]); err != nil {
			s.evHandler("state: ProcessBlock: ERROR: alias[%s] rollback: %s", aliases[i].Name, err)
		}
	}

	for _, tx := range block.Transactions {
		if tx.Type != database.TxTypeAlias {
			continue
		}
		if _, exists := s.mempool.Get(tx.Hash); !exists {
			continue
		}
		if _, err := s.claimAlias(tx); err != nil {
			s.evHandler("state: ProcessBlock: WARNING: tx[%s] alias claim: %s", tx.Hash, err)
		}
	}
}

// repool puts transactions back into the pool if their coins are still
// available and, for an alias, its name can still be claimed.
func (s *State) repool(txs []database.Transaction) {
	for _, tx := range txs {
		if tx.Type == database.TxTypeCoinbase {
			continue
		}

		release, err := s.claimAlias(tx)
		if err != nil {
			s.evHandler("state: repool: tx[%s] dropped: %s", tx.Hash, err)
			continue
		}

		if err := s.ledger.Reserve(tx); err != nil {
			release()
			s.evHandler("state: repool: tx[%s] dropped: %s", tx.Hash, err)
			continue
		}

		s.mempool.Upsert(tx)
	}
}

func (s *State) storeBody(block database.Block) error {
	b, err := codec.Serialize(&block)
	if err != nil {
		return err
	}

	height := heightBytes(block.Header.Height)

	batch := s.storage.NewBatch()
	batch.Put(blockKey(block.Header.Height), b)
	for _, tx := range block.Transactions {
		batch.Put(txIndexKey(tx.Hash), height)
	}

	if err := batch.Commit(); err != nil {
		return fmt.Errorf("persist block: %w", err)
	}

	return nil
}

func (s *State) deleteBody(block database.Block) {
	batch := s.storage.NewBatch()
	batch.Delete(blockKey(block.Header.Height))
	for _, tx := range block.Transactions {
		batch.Delete(txIndexKey(tx.Hash))
	}

	if err := batch.Commit(); err != nil {
		s.evHandler("state: deleteBody: ERROR: height[%d]: %s", block.Header.Height, err)
	}
}

func (s *State) loadBody(height uint64) (database.Block, error) {
	b, err := s.storage.Get(blockKey(height))
	if err != nil {
		return database.Block{}, err
	}

	var block database.Block
	if err := codec.Parse(b, &block); err != nil {
		return database.Block{}, fmt.Errorf("load block %d: %w", height, err)
	}

	return block, nil
}

func heightBytes(height uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], height)
	return b[:]
}

func blockKey(height uint64) []byte {
	return database.Key(prefixBlock, heightBytes(height))
}

func txIndexKey(hash chainhash.Hash) []byte {
	return database.Key(prefixTxIndex, hash[:])
}
