// Package ledger maintains the unspent transaction outputs of the chain:
// balances, coin selection for new transactions, reservation of coins handed
// to the pool and the commit and rollback of confirmed transactions.
package ledger

import (
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/adamwoolhether/utxochain/foundation/blockchain/codec"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/database"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/signature"
)

// ErrCoinUnavailable is returned when a coin a transaction needs is spent,
// missing or reserved by another transaction.
var ErrCoinUnavailable = errors.New("coin unavailable")

// LockTimeThreshold separates lock times read as heights from lock times
// read as unix milliseconds.
const LockTimeThreshold = 1_000_000_000_000

// shardCount is the number of independently locked address partitions.
const shardCount = 32

// Storage keys.
const (
	prefixUTXO  = "utxo:"
	prefixSpent = "spent:"
	prefixMine  = "mytx:"
)

// Owners reports which addresses are held locally.
type Owners interface {
	IsMine(addr signature.Address) bool
}

// EventHandler defines a function that is called when events occur.
type EventHandler func(v string, args ...any)

// Config represents the configuration required to open the ledger.
type Config struct {
	Storage   database.Storage
	Owners    Owners
	Height    func() uint64
	Now       func() time.Time
	EvHandler EventHandler
}

// shard holds the coins of the addresses hashing to it.
type shard struct {
	mu       sync.Mutex
	coins    map[signature.Address]map[database.OutPoint]database.UTXO
	reserved map[database.OutPoint]chainhash.Hash // Coin to the pending tx holding it.
}

// Ledger manages the unspent outputs.
type Ledger struct {
	storage database.Storage
	owners  Owners
	height  func() uint64
	now     func() time.Time
	ev      EventHandler
	shards  [shardCount]shard
}

// New loads the unspent outputs held in storage.
func New(cfg Config) (*Ledger, error) {
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	l := Ledger{
		storage: cfg.Storage,
		owners:  cfg.Owners,
		height:  cfg.Height,
		now:     cfg.Now,
		ev:      ev,
	}

	if l.height == nil {
		l.height = func() uint64 { return 0 }
	}
	if l.now == nil {
		l.now = time.Now
	}

	for i := range l.shards {
		l.shards[i].coins = make(map[signature.Address]map[database.OutPoint]database.UTXO)
		l.shards[i].reserved = make(map[database.OutPoint]chainhash.Hash)
	}

	iter := cfg.Storage.Iterate([]byte(prefixUTXO))
	defer iter.Close()

	var n int
	for _, value, err := iter.Next(); !iter.Done(); _, value, err = iter.Next() {
		if err != nil {
			return nil, fmt.Errorf("load utxos: %w", err)
		}

		var u database.UTXO
		if err := codec.Parse(value, &u); err != nil {
			return nil, fmt.Errorf("load utxos: %w", err)
		}

		l.shardFor(u.Output.Address).add(u)
		n++
	}

	ev("ledger: New: loaded utxos[%d]", n)

	return &l, nil
}

// =============================================================================

// Balance splits the holdings of an address.
type Balance struct {
	Usable uint64 `json:"usable"`
	Locked uint64 `json:"locked"`
	Total  uint64 `json:"total"`
}

// Balance returns the balance of the address. Coins whose lock time has not
// passed count as locked.
func (l *Ledger) Balance(addr signature.Address) Balance {
	s := l.shardFor(addr)
	height, now := l.height(), l.nowMilli()

	s.mu.Lock()
	defer s.mu.Unlock()

	var b Balance
	for _, u := range s.coins[addr] {
		b.Total += u.Output.Amount
		if isLocked(u.Output.LockTime, height, now) {
			b.Locked += u.Output.Amount
			continue
		}
		b.Usable += u.Output.Amount
	}

	return b
}

// TotalBalance aggregates the balances of the addresses.
func (l *Ledger) TotalBalance(addrs []signature.Address) Balance {
	var total Balance
	for _, addr := range addrs {
		b := l.Balance(addr)
		total.Usable += b.Usable
		total.Locked += b.Locked
		total.Total += b.Total
	}

	return total
}

// UTXOs returns the unspent outputs of the address, oldest first.
func (l *Ledger) UTXOs(addr signature.Address) []database.UTXO {
	s := l.shardFor(addr)

	s.mu.Lock()
	utxos := make([]database.UTXO, 0, len(s.coins[addr]))
	for _, u := range s.coins[addr] {
		utxos = append(utxos, u)
	}
	s.mu.Unlock()

	sortOldestFirst(utxos)
	return utxos
}

// Credit adds coins directly. It is used to seed the ledger.
func (l *Ledger) Credit(utxos ...database.UTXO) error {
	batch := l.storage.NewBatch()
	for i := range utxos {
		b, err := codec.Serialize(&utxos[i])
		if err != nil {
			return err
		}
		batch.Put(utxoKey(utxos[i]), b)
	}

	if err := batch.Commit(); err != nil {
		return fmt.Errorf("persist credit: %w", err)
	}

	for _, u := range utxos {
		s := l.shardFor(u.Output.Address)
		s.mu.Lock()
		s.add(u)
		s.mu.Unlock()
	}

	return nil
}

// =============================================================================

// Reserve marks the coins the transaction spends as held by it so no other
// pending transaction can select them. Reserving again for the same
// transaction is allowed.
func (l *Ledger) Reserve(tx database.Transaction) error {
	unlock := l.lock(inputOwners(tx))
	defer unlock()

	for _, in := range tx.CoinData.Inputs {
		s := l.shardFor(in.Owner)

		u, exists := s.coins[in.Owner][in.OutPoint]
		if !exists || !matches(u, in) {
			return fmt.Errorf("%w: %s", ErrCoinUnavailable, in.OutPoint)
		}

		if holder, reserved := s.reserved[in.OutPoint]; reserved && holder != tx.Hash {
			return fmt.Errorf("%w: %s reserved by %s", ErrCoinUnavailable, in.OutPoint, holder)
		}
	}

	for _, in := range tx.CoinData.Inputs {
		l.shardFor(in.Owner).reserved[in.OutPoint] = tx.Hash
	}

	return nil
}

// Release drops the reservations held by the transaction.
func (l *Ledger) Release(tx database.Transaction) {
	unlock := l.lock(inputOwners(tx))
	defer unlock()

	for _, in := range tx.CoinData.Inputs {
		s := l.shardFor(in.Owner)
		if holder, reserved := s.reserved[in.OutPoint]; reserved && holder == tx.Hash {
			delete(s.reserved, in.OutPoint)
		}
	}
}

// Commit applies a confirmed transaction. Every input must still be unspent,
// otherwise nothing changes and ErrCoinUnavailable is returned. Spent coins
// are kept so Rollback can restore them.
func (l *Ledger) Commit(tx database.Transaction) error {
	owners := append(inputOwners(tx), outputOwners(tx)...)
	unlock := l.lock(owners)
	defer unlock()

	for _, in := range tx.CoinData.Inputs {
		s := l.shardFor(in.Owner)

		u, exists := s.coins[in.Owner][in.OutPoint]
		if !exists || !matches(u, in) {
			return fmt.Errorf("%w: %s", ErrCoinUnavailable, in.OutPoint)
		}

		if holder, reserved := s.reserved[in.OutPoint]; reserved && holder != tx.Hash {
			return fmt.Errorf("%w: %s reserved by %s", ErrCoinUnavailable, in.OutPoint, holder)
		}
	}

	created := newUTXOs(tx)

	batch := l.storage.NewBatch()
	for _, in := range tx.CoinData.Inputs {
		u := l.shardFor(in.Owner).coins[in.Owner][in.OutPoint]

		b, err := codec.Serialize(&u)
		if err != nil {
			return err
		}

		batch.Delete(utxoKey(u))
		batch.Put(spentKey(in.OutPoint), b)
	}

	for i := range created {
		b, err := codec.Serialize(&created[i])
		if err != nil {
			return err
		}
		batch.Put(utxoKey(created[i]), b)
	}

	mine := l.IsMine(tx)
	if mine {
		b, err := codec.Serialize(&tx)
		if err != nil {
			return err
		}
		batch.Put(database.Key(prefixMine, tx.Hash[:]), b)
	}

	if err := batch.Commit(); err != nil {
		return fmt.Errorf("persist commit: %w", err)
	}

	for _, in := range tx.CoinData.Inputs {
		s := l.shardFor(in.Owner)
		s.remove(in.Owner, in.OutPoint)
		delete(s.reserved, in.OutPoint)
	}
	for _, u := range created {
		l.shardFor(u.Output.Address).add(u)
	}

	l.ev("ledger: Commit: tx[%s] type[%s] in[%d] out[%d] mine[%t]", tx.Hash, tx.Type, len(tx.CoinData.Inputs), len(created), mine)

	return nil
}

// Rollback reverses a committed transaction: its outputs are removed and the
// coins it spent are restored. If any output has been spent since, nothing
// changes and ErrCoinUnavailable is returned.
func (l *Ledger) Rollback(tx database.Transaction) error {
	owners := append(inputOwners(tx), outputOwners(tx)...)
	unlock := l.lock(owners)
	defer unlock()

	created := newUTXOs(tx)
	for _, u := range created {
		s := l.shardFor(u.Output.Address)
		if _, exists := s.coins[u.Output.Address][u.OutPoint]; !exists {
			return fmt.Errorf("%w: output %s already spent", ErrCoinUnavailable, u.OutPoint)
		}
		if _, reserved := s.reserved[u.OutPoint]; reserved {
			return fmt.Errorf("%w: output %s reserved", ErrCoinUnavailable, u.OutPoint)
		}
	}

	restored := make([]database.UTXO, len(tx.CoinData.Inputs))
	for i, in := range tx.CoinData.Inputs {
		b, err := l.storage.Get(spentKey(in.OutPoint))
		if err != nil {
			return fmt.Errorf("load spent coin %s: %w", in.OutPoint, err)
		}
		if err := codec.Parse(b, &restored[i]); err != nil {
			return fmt.Errorf("load spent coin %s: %w", in.OutPoint, err)
		}
	}

	batch := l.storage.NewBatch()
	for _, u := range created {
		batch.Delete(utxoKey(u))
	}
	for i, in := range tx.CoinData.Inputs {
		b, err := codec.Serialize(&restored[i])
		if err != nil {
			return err
		}
		batch.Delete(spentKey(in.OutPoint))
		batch.Put(utxoKey(restored[i]), b)
	}
	batch.Delete(database.Key(prefixMine, tx.Hash[:]))

	if err := batch.Commit(); err != nil {
		return fmt.Errorf("persist rollback: %w", err)
	}

	for _, u := range created {
		l.shardFor(u.Output.Address).remove(u.Output.Address, u.OutPoint)
	}
	for _, u := range restored {
		l.shardFor(u.Output.Address).add(u)
	}

	l.ev("ledger: Rollback: tx[%s] restored[%d] removed[%d]", tx.Hash, len(restored), len(created))

	return nil
}

// IsMine reports whether any input or output of the transaction belongs to
// a local account.
func (l *Ledger) IsMine(tx database.Transaction) bool {
	if l.owners == nil {
		return false
	}

	for _, in := range tx.CoinData.Inputs {
		if l.owners.IsMine(in.Owner) {
			return true
		}
	}

	for _, out := range tx.CoinData.Outputs {
		if l.owners.IsMine(out.Address) {
			return true
		}
	}

	return false
}

// LocalTransactions returns the committed transactions involving a local
// account.
func (l *Ledger) LocalTransactions() ([]database.Transaction, error) {
	iter := l.storage.Iterate([]byte(prefixMine))
	defer iter.Close()

	var txs []database.Transaction
	for _, value, err := iter.Next(); !iter.Done(); _, value, err = iter.Next() {
		if err != nil {
			return nil, err
		}

		var tx database.Transaction
		if err := codec.Parse(value, &tx); err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}

	sort.Slice(txs, func(i, j int) bool { return txs[i].Time < txs[j].Time })

	return txs, nil
}

// =============================================================================

func (l *Ledger) shardFor(addr signature.Address) *shard {
	return &l.shards[shardIndex(addr)]
}

// lock takes the shard locks of the addresses in ascending shard order and
// returns the function releasing them.
func (l *Ledger) lock(addrs []signature.Address) func() {
	seen := make(map[int]bool)
	var idx []int
	for _, addr := range addrs {
		i := shardIndex(addr)
		if !seen[i] {
			seen[i] = true
			idx = append(idx, i)
		}
	}
	sort.Ints(idx)

	for _, i := range idx {
		l.shards[i].mu.Lock()
	}

	return func() {
		for j := len(idx) - 1; j >= 0; j-- {
			l.shards[idx[j]].mu.Unlock()
		}
	}
}

func (l *Ledger) nowMilli() uint64 {
	return uint64(l.now().UnixMilli())
}

func (s *shard) add(u database.UTXO) {
	coins, exists := s.coins[u.Output.Address]
	if !exists {
		coins = make(map[database.OutPoint]database.UTXO)
		s.coins[u.Output.Address] = coins
	}
	coins[u.OutPoint] = u
}

func (s *shard) remove(addr signature.Address, op database.OutPoint) {
	coins := s.coins[addr]
	delete(coins, op)
	if len(coins) == 0 {
		delete(s.coins, addr)
	}
}

func shardIndex(addr signature.Address) int {
	h := fnv.New32a()
	h.Write(addr[:])
	return int(h.Sum32() % shardCount)
}

// isLocked reports whether a coin with the lock time is still locked.
func isLocked(lockTime uint64, height uint64, nowMilli uint64) bool {
	switch {
	case lockTime == 0:
		return false
	case lockTime < LockTimeThreshold:
		return lockTime > height
	default:
		return lockTime > nowMilli
	}
}

func matches(u database.UTXO, in database.Input) bool {
	return u.Output.Address == in.Owner && u.Output.Amount == in.Amount && u.Output.LockTime == in.LockTime
}

// newUTXOs returns the coins a transaction creates. Zero value outputs
// create nothing.
func newUTXOs(tx database.Transaction) []database.UTXO {
	var utxos []database.UTXO
	for i, out := range tx.CoinData.Outputs {
		if out.Amount == 0 {
			continue
		}
		utxos = append(utxos, database.UTXO{
			OutPoint: database.OutPoint{TxHash: tx.Hash, Index: uint32(i)},
			Output:   out,
			Time:     tx.Time,
		})
	}

	return utxos
}

func inputOwners(tx database.Transaction) []signature.Address {
	owners := make([]signature.Address, len(tx.CoinData.Inputs))
	for i, in := range tx.CoinData.Inputs {
		owners[i] = in.Owner
	}
	return owners
}

func outputOwners(tx database.Transaction) []signature.Address {
	owners := make([]signature.Address, len(tx.CoinData.Outputs))
	for i, out := range tx.CoinData.Outputs {
		owners[i] = out.Address
	}
	return owners
}

func sortOldestFirst(utxos []database.UTXO) {
	sort.Slice(utxos, func(i, j int) bool {
		if utxos[i].Time != utxos[j].Time {
			return utxos[i].Time < utxos[j].Time
		}
		if c := compareHash(utxos[i].OutPoint.TxHash, utxos[j].OutPoint.TxHash); c != 0 {
			return c < 0
		}
		return utxos[i].OutPoint.Index < utxos[j].OutPoint.Index
	})
}

func compareHash(a, b chainhash.Hash) int {
	for i := range a {
		switch {
		case a[i] < b[i]:
			return -1
		case a[i] > b[i]:
			return 1
		}
	}
	return 0
}

func utxoKey(u database.UTXO) []byte {
	return database.Key(prefixUTXO, u.Output.Address[:], u.OutPoint.Bytes())
}

func spentKey(op database.OutPoint) []byte {
	return database.Key(prefixSpent, op.Bytes())
}
