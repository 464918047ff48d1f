// Package state is the core API for the blockchain and implements
// all the business rules and processing.
package state

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/adamwoolhether/utxochain/foundation/blockchain/account"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/alias"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/builder"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/database"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/genesis"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/header"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/ledger"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/mempool"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/mempool/selector"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/signature"
)

// EventHandler defines a function that is called
// when events occur in the processing of persisting blocks.
type EventHandler func(v string, args ...any)

// Worker interface represents the behavior required to be implemented
// by any package providing support for block production.
type Worker interface {
	Shutdown()
	SignalProduce()
}

// =============================================================================

// Config represents the configuration required to start the blockchain node.
type Config struct {
	Storage        database.Storage
	Genesis        genesis.Genesis
	SelectStrategy string
	KDF            signature.KDF
	MaxTimeDrift   time.Duration
	Now            func() time.Time
	EvHandler      EventHandler
}

// State manages the blockchain database.
type State struct {
	mu sync.Mutex

	evHandler EventHandler
	now       func() time.Time
	fee       ledger.FeeFunc

	genesis  genesis.Genesis
	storage  database.Storage
	accounts *account.Directory
	ledger   *ledger.Ledger
	chain    *header.Chain
	mempool  *mempool.Mempool
	builder  *builder.Builder
	aliases  *alias.Registry

	Worker Worker
}

// New constructs a new blockchain for data management. The genesis block is
// applied when the chain in storage is empty.
func New(cfg Config) (*State, error) {

	// Build a safe event handler for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	accounts, err := account.New(account.Config{
		Storage:   cfg.Storage,
		KDF:       cfg.KDF,
		EvHandler: ev,
	})
	if err != nil {
		return nil, fmt.Errorf("open accounts: %w", err)
	}

	chain, err := header.New(header.Config{
		Storage:   cfg.Storage,
		MaxDrift:  cfg.MaxTimeDrift,
		Now:       now,
		EvHandler: ev,
	})
	if err != nil {
		return nil, fmt.Errorf("open chain: %w", err)
	}

	ldgr, err := ledger.New(ledger.Config{
		Storage:   cfg.Storage,
		Owners:    accounts,
		Height:    chain.Height,
		Now:       now,
		EvHandler: ev,
	})
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	strategy := cfg.SelectStrategy
	if strategy == "" {
		strategy = selector.StrategyFee
	}

	gen := cfg.Genesis
	if gen.FeePerKB == 0 {
		gen.FeePerKB = genesis.DefaultFeePerKB
	}
	if gen.TxsPerBlock <= 0 {
		gen.TxsPerBlock = genesis.DefaultTxsPerBlock
	}

	// Construct a mempool with the specified sort strategy.
	mpool, err := mempool.NewWithStrategy(strategy)
	if err != nil {
		return nil, err
	}

	state := State{
		evHandler: ev,
		now:       now,
		fee:       ledger.FeePerKB(gen.FeePerKB),
		genesis:   gen,
		storage:   cfg.Storage,
		accounts:  accounts,
		ledger:    ldgr,
		chain:     chain,
		mempool:   mpool,
		Worker:    nopWorker{},
	}

	state.builder = builder.New(builder.Config{
		Keys:        accounts,
		Coins:       ldgr,
		Fee:         state.fee,
		Broadcaster: &state,
		Now:         now,
	})

	state.aliases = alias.New(alias.Config{
		Storage:   cfg.Storage,
		Accounts:  accounts,
		Funder:    state.builder,
		EvHandler: ev,
	})

	// The Worker is not set here. The call to worker.Run will assign
	// itself and start everything up and running for the node.

	if _, err := chain.Tip(); errors.Is(err, header.ErrEmptyChain) {
		block, err := gen.Block()
		if err != nil {
			return nil, err
		}

		ev("state: New: applying genesis block[%s]", block.Header.Hash)

		if err := state.ProcessBlock(block); err != nil {
			return nil, fmt.Errorf("apply genesis: %w", err)
		}
	}

	return &state, nil
}

// Shutdown cleanly brings the node down.
func (s *State) Shutdown() error {
	s.evHandler("state: shutdown: started")
	defer s.evHandler("state: shutdown: completed")

	// Stop all blockchain writing activity.
	s.Worker.Shutdown()

	return nil
}

// Genesis returns a copy of the genesis information.
func (s *State) Genesis() genesis.Genesis {
	return s.genesis
}

// Accounts returns the directory of local accounts.
func (s *State) Accounts() *account.Directory {
	return s.accounts
}

// Aliases returns the alias registry.
func (s *State) Aliases() *alias.Registry {
	return s.aliases
}

// MinFee returns the fee owed by a transaction of the encoded size.
func (s *State) MinFee(size int) uint64 {
	return s.fee(size)
}

// =============================================================================

// nopWorker stands in until a worker registers itself.
type nopWorker struct{}

func (nopWorker) Shutdown()      {}
func (nopWorker) SignalProduce() {}
