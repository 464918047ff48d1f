package state

import (
	"errors"
	"fmt"

	"github.com/adamwoolhether/utxochain/foundation/blockchain/database"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/signature"
)

// Set of error variables for transaction admission.
var (
	ErrCoinbaseNotAllowed = errors.New("coinbase transactions are only allowed in the genesis block")
	ErrFeeTooLow          = errors.New("fee too low")
)

// Broadcast accepts a signed transaction for inclusion in a block. The
// coins it spends are reserved so no other pending transaction can spend
// them.
func (s *State) Broadcast(tx database.Transaction) error {
	if err := s.validateTransaction(tx); err != nil {
		return err
	}

	release, err := s.claimAlias(tx)
	if err != nil {
		return err
	}

	if err := s.ledger.Reserve(tx); err != nil {
		release()
		return err
	}

	s.mempool.Upsert(tx)

	s.evHandler("state: Broadcast: tx[%s] type[%s] pool[%d]", tx.Hash, tx.Type, s.mempool.Count())

	s.Worker.SignalProduce()

	return nil
}

// Transfer builds, signs and broadcasts a payment from a local account.
func (s *State) Transfer(from signature.Address, password string, to signature.Address, amount uint64, remark string) (database.Transaction, error) {
	return s.builder.Transfer(from, password, to, amount, remark)
}

// SetAlias builds, signs and broadcasts an alias transaction for a local
// account.
func (s *State) SetAlias(addr signature.Address, password string, name string) (database.Transaction, error) {
	return s.aliases.SetAlias(addr, password, name)
}

// =============================================================================

// validateTransaction takes the signed transaction and validates it has a
// proper signature and pays at least the minimum fee.
func (s *State) validateTransaction(tx database.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}

	if tx.Type == database.TxTypeCoinbase {
		return ErrCoinbaseNotAllowed
	}

	fee, err := tx.Fee()
	if err != nil {
		return err
	}

	if min := s.fee(tx.Size()); fee < min {
		return fmt.Errorf("%w: paid %d, need %d", ErrFeeTooLow, fee, min)
	}

	return nil
}

// claimAlias holds the name of an alias transaction against confirmed and
// pending aliases. The returned func frees a claim made by this call and
// does nothing otherwise.
func (s *State) claimAlias(tx database.Transaction) (func(), error) {
	if tx.Type != database.TxTypeAlias {
		return func() {}, nil
	}

	a, err := tx.AliasPayload()
	if err != nil {
		return nil, err
	}

	fresh, err := s.aliases.Claim(a)
	if err != nil {
		return nil, err
	}
	if !fresh {
		return func() {}, nil
	}

	return func() { s.aliases.Release(a) }, nil
}
