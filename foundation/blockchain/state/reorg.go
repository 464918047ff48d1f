package state

import (
	"errors"
	"fmt"

	"github.com/adamwoolhether/utxochain/foundation/blockchain/alias"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/database"
)

// ErrGenesisRollback is returned when the genesis block is asked to be
// rolled back.
var ErrGenesisRollback = errors.New("genesis block can't be rolled back")

// RollbackBlock reverts the tip of the chain. Its transactions are undone in
// reverse order and transfers are returned to the pool. Alias transactions
// are not, so their names are free to be claimed again. Pending
// transactions spending the tip's outputs are dropped.
func (s *State) RollbackBlock() (database.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tip, err := s.chain.Tip()
	if err != nil {
		return database.Block{}, err
	}

	if tip.Height == 0 {
		return database.Block{}, ErrGenesisRollback
	}

	s.evHandler("state: RollbackBlock: started: height[%d] blk[%s]", tip.Height, tip.Hash)
	defer s.evHandler("state: RollbackBlock: completed: height[%d]", tip.Height)

	block, err := s.loadBody(tip.Height)
	if err != nil {
		return database.Block{}, fmt.Errorf("load tip: %w", err)
	}

	s.evictConflicts(block, true)

	txs := block.Transactions
	for i := len(txs) - 1; i >= 0; i-- {
		if err := s.ledger.Rollback(txs[i]); err != nil {

			// Put back what was already undone so the ledger matches the chain.
			if _, cerr := s.commitAll(txs[i+1:]); cerr != nil {
				s.evHandler("state: RollbackBlock: ERROR: recommit: %s", cerr)
			}
			return database.Block{}, fmt.Errorf("rollback tx %s: %w", txs[i].Hash, err)
		}
	}

	for i := len(txs) - 1; i >= 0; i-- {
		if txs[i].Type != database.TxTypeAlias {
			continue
		}

		a, err := txs[i].AliasPayload()
		if err != nil {
			continue
		}

		if err := s.aliases.Rollback(a); err != nil && !errors.Is(err, alias.ErrAliasNotSet) {
			s.evHandler("state: RollbackBlock: WARNING: alias[%s]: %s", a.Name, err)
		}
	}

	if _, err := s.chain.Rollback(); err != nil {
		return database.Block{}, err
	}

	s.deleteBody(block)

	transfers := make([]database.Transaction, 0, len(txs))
	for _, tx := range txs {
		if tx.Type == database.TxTypeTransfer {
			transfers = append(transfers, tx)
		}
	}
	s.repool(transfers)

	if s.mempool.Count() > 0 {
		s.Worker.SignalProduce()
	}

	return block, nil
}
