// Package pebbledb implements the database.Storage interface over a pebble
// key/value store. Logical tables share one keyspace and are told apart by
// key prefixes.
package pebbledb

import (
	"errors"
	"fmt"
	"os"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"github.com/adamwoolhether/utxochain/foundation/blockchain/database"
)

// DB represents the pebble backed storage. This implements the
// database.Storage interface.
type DB struct {
	db      *pebble.DB
	writeOp *pebble.WriteOptions
}

// New opens or creates the store at the specified path.
func New(path string) (*DB, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	opts := pebble.Options{
		Cache:        pebble.NewCache(64 << 20),
		MaxOpenFiles: 500,
	}
	defer opts.Cache.Unref()

	db, err := pebble.Open(path, &opts)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	return &DB{db: db, writeOp: pebble.Sync}, nil
}

// NewMemory constructs a store kept entirely in memory. Nothing survives
// Close.
func NewMemory() (*DB, error) {
	db, err := pebble.Open("", &pebble.Options{FS: vfs.NewMem()})
	if err != nil {
		return nil, fmt.Errorf("open memory database: %w", err)
	}

	return &DB{db: db, writeOp: pebble.NoSync}, nil
}

// Close closes the store.
func (d *DB) Close() error {
	return d.db.Close()
}

// Get returns a copy of the value stored under the key.
func (d *DB) Get(key []byte) ([]byte, error) {
	value, closer, err := d.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, database.ErrNotFound
		}
		return nil, err
	}
	defer closer.Close()

	// The value is only valid until closer.Close().
	result := make([]byte, len(value))
	copy(result, value)

	return result, nil
}

// Put stores the value under the key.
func (d *DB) Put(key []byte, value []byte) error {
	return d.db.Set(key, value, d.writeOp)
}

// Delete removes the key. Deleting a missing key is not an error.
func (d *DB) Delete(key []byte) error {
	return d.db.Delete(key, d.writeOp)
}

// NewBatch constructs a batch of writes applied atomically on Commit.
func (d *DB) NewBatch() database.Batch {
	return &batch{batch: d.db.NewBatch(), writeOp: d.writeOp}
}

// Iterate returns an iterator over every key with the prefix, in key order.
func (d *DB) Iterate(prefix []byte) database.Iterator {
	iter, err := d.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return &iterator{err: err}
	}

	return &iterator{iter: iter}
}

// =============================================================================

// batch wraps pebble's batch. This implements the database.Batch interface.
type batch struct {
	batch   *pebble.Batch
	writeOp *pebble.WriteOptions
	err     error
}

func (b *batch) Put(key []byte, value []byte) {
	if b.err != nil {
		return
	}
	b.err = b.batch.Set(key, value, nil)
}

func (b *batch) Delete(key []byte) {
	if b.err != nil {
		return
	}
	b.err = b.batch.Delete(key, nil)
}

// Commit applies the writes and releases the batch.
func (b *batch) Commit() error {
	defer b.batch.Close()

	if b.err != nil {
		return b.err
	}

	return b.batch.Commit(b.writeOp)
}

// =============================================================================

// iterator represents the iteration implementation for walking a key
// prefix. This implements the database.Iterator interface.
type iterator struct {
	iter     *pebble.Iterator
	started  bool  // First has been called.
	eoi      bool  // Represents the iterator is at the end of the prefix.
	err      error // Error opening or advancing the iterator.
	reported bool  // err has been returned once.
}

// Next returns copies of the next key and value. An error is reported once
// with Done still false so the loop body sees it; the call after ends the
// iteration.
func (it *iterator) Next() ([]byte, []byte, error) {
	if it.eoi {
		return nil, nil, errors.New("end of iteration")
	}

	if it.err != nil {
		it.eoi = it.reported
		it.reported = true
		return nil, nil, it.err
	}

	var valid bool
	switch it.started {
	case false:
		it.started = true
		valid = it.iter.First()
	default:
		valid = it.iter.Next()
	}

	if !valid {
		if err := it.iter.Error(); err != nil {
			it.err = err
			it.reported = true
			return nil, nil, err
		}
		it.eoi = true
		return nil, nil, nil
	}

	key := append([]byte(nil), it.iter.Key()...)
	value := append([]byte(nil), it.iter.Value()...)

	return key, value, nil
}

// Done returns the end of iteration value.
func (it *iterator) Done() bool {
	return it.eoi
}

// Close releases the iterator.
func (it *iterator) Close() error {
	if it.iter == nil {
		return nil
	}
	return it.iter.Close()
}

// prefixUpperBound returns the smallest key greater than every key with the
// prefix.
func prefixUpperBound(prefix []byte) []byte {
	if len(prefix) == 0 {
		return nil
	}

	upper := make([]byte, len(prefix))
	copy(upper, prefix)
	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] < 0xff {
			upper[i]++
			return upper[:i+1]
		}
	}

	return nil
}
