package header

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/adamwoolhether/utxochain/foundation/blockchain/codec"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/database"
)

// Set of error variables for the header chain.
var (
	ErrEmptyChain   = errors.New("chain is empty")
	ErrCorruptChain = errors.New("chain is corrupt")
)

const prefixHeader = "hdr:"

// EventHandler defines a function that is called when events occur.
type EventHandler func(v string, args ...any)

// Config represents the configuration required to open the chain.
type Config struct {
	Storage    database.Storage
	Validators Validators
	MaxDrift   time.Duration
	Now        func() time.Time
	EvHandler  EventHandler
}

// Chain stores the accepted headers in height order.
type Chain struct {
	mu sync.RWMutex

	storage    database.Storage
	validators Validators
	maxDrift   time.Duration
	now        func() time.Time
	ev         EventHandler

	headers []database.BlockHeader
	byHash  map[chainhash.Hash]uint64
}

// New loads the accepted headers from storage and checks that each links to
// the one before it.
func New(cfg Config) (*Chain, error) {
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	c := Chain{
		storage:    cfg.Storage,
		validators: cfg.Validators,
		maxDrift:   cfg.MaxDrift,
		now:        cfg.Now,
		ev:         ev,
		byHash:     make(map[chainhash.Hash]uint64),
	}

	if c.validators == nil {
		c.validators = DefaultValidators()
	}
	if c.now == nil {
		c.now = time.Now
	}

	// Stored headers were checked against their transactions when they were
	// accepted, so only the linkage is checked again.
	linkage := Validators{hashValidator{}, heightValidator{}, prevHashValidator{}, signatureValidator{}}

	iter := cfg.Storage.Iterate([]byte(prefixHeader))
	defer iter.Close()

	for _, value, err := iter.Next(); !iter.Done(); _, value, err = iter.Next() {
		if err != nil {
			return nil, fmt.Errorf("load headers: %w", err)
		}

		var h database.BlockHeader
		if err := codec.Parse(value, &h); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrCorruptChain, err)
		}

		if err := linkage.Validate(h, Context{Prev: c.tip()}); err != nil {
			return nil, fmt.Errorf("%w: height %d: %s", ErrCorruptChain, h.Height, err)
		}

		c.append(h)
	}

	ev("header: New: loaded headers[%d]", len(c.headers))

	return &c, nil
}

// Validate checks the header against the current tip without accepting it.
func (c *Chain) Validate(h database.BlockHeader, txHashes []chainhash.Hash) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.validate(h, txHashes)
}

// Accept validates the header against the current tip and appends it.
func (c *Chain) Accept(h database.BlockHeader, txHashes []chainhash.Hash) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.validate(h, txHashes); err != nil {
		c.ev("header: Accept: height[%d] rejected: %s", h.Height, err)
		return err
	}

	b, err := codec.Serialize(&h)
	if err != nil {
		return err
	}

	if err := c.storage.Put(headerKey(h.Height), b); err != nil {
		return fmt.Errorf("persist header: %w", err)
	}

	c.append(h)
	c.ev("header: Accept: height[%d] hash[%s]", h.Height, h.Hash)

	return nil
}

// Rollback removes the tip and returns it.
func (c *Chain) Rollback() (database.BlockHeader, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tip := c.tip()
	if tip == nil {
		return database.BlockHeader{}, ErrEmptyChain
	}

	h := *tip
	if err := c.storage.Delete(headerKey(h.Height)); err != nil {
		return database.BlockHeader{}, fmt.Errorf("delete header: %w", err)
	}

	c.headers = c.headers[:len(c.headers)-1]
	delete(c.byHash, h.Hash)

	c.ev("header: Rollback: height[%d] hash[%s]", h.Height, h.Hash)

	return h, nil
}

// Tip returns the last accepted header.
func (c *Chain) Tip() (database.BlockHeader, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tip := c.tip()
	if tip == nil {
		return database.BlockHeader{}, ErrEmptyChain
	}

	return *tip, nil
}

// Height returns the height of the tip, or 0 for an empty chain.
func (c *Chain) Height() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if tip := c.tip(); tip != nil {
		return tip.Height
	}

	return 0
}

// ByHeight returns the header at the height.
func (c *Chain) ByHeight(height uint64) (database.BlockHeader, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if height >= uint64(len(c.headers)) {
		return database.BlockHeader{}, database.ErrNotFound
	}

	return c.headers[height], nil
}

// ByHash returns the header with the hash.
func (c *Chain) ByHash(hash chainhash.Hash) (database.BlockHeader, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	height, exists := c.byHash[hash]
	if !exists {
		return database.BlockHeader{}, database.ErrNotFound
	}

	return c.headers[height], nil
}

// Range returns the headers from height from to height to inclusive.
func (c *Chain) Range(from, to uint64) []database.BlockHeader {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := uint64(len(c.headers))
	if n == 0 || from >= n || from > to {
		return nil
	}
	if to >= n {
		to = n - 1
	}

	out := make([]database.BlockHeader, to-from+1)
	copy(out, c.headers[from:to+1])

	return out
}

// =============================================================================

func (c *Chain) validate(h database.BlockHeader, txHashes []chainhash.Hash) error {
	ctx := Context{
		Prev:     c.tip(),
		TxHashes: txHashes,
		Now:      c.now(),
		MaxDrift: c.maxDrift,
	}

	return c.validators.Validate(h, ctx)
}

func (c *Chain) tip() *database.BlockHeader {
	if len(c.headers) == 0 {
		return nil
	}

	return &c.headers[len(c.headers)-1]
}

func (c *Chain) append(h database.BlockHeader) {
	c.headers = append(c.headers, h)
	c.byHash[h.Hash] = h.Height
}

func headerKey(height uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], height)
	return database.Key(prefixHeader, b[:])
}
