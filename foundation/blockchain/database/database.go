// Package database holds the chain data model: coins, transactions and block
// headers in their canonical binary form, plus the key/value persistence
// contract the rest of the node writes through.
package database

import (
	"errors"
)

// ErrNotFound is returned by storage when a key does not exist.
var ErrNotFound = errors.New("not found")

// Storage interface represents the behavior required to be implemented by any
// package providing support for reading and writing chain state.
type Storage interface {
	Get(key []byte) ([]byte, error)
	Put(key []byte, value []byte) error
	Delete(key []byte) error
	Iterate(prefix []byte) Iterator
	NewBatch() Batch
	Close() error
}

// Batch collects writes that are applied all together or not at all.
type Batch interface {
	Put(key []byte, value []byte)
	Delete(key []byte)
	Commit() error
}

// Iterator interface represents the behavior required to be implemented by
// any package providing support to iterate over keys sharing a prefix.
//
//	iter := storage.Iterate(prefix)
//	defer iter.Close()
//	for key, value, err := iter.Next(); !iter.Done(); key, value, err = iter.Next() {
//	}
type Iterator interface {
	Next() (key []byte, value []byte, err error)
	Done() bool
	Close() error
}

// Key joins a prefix and the parts of a key.
func Key(prefix string, parts ...[]byte) []byte {
	n := len(prefix)
	for _, p := range parts {
		n += len(p)
	}

	k := make([]byte, 0, n)
	k = append(k, prefix...)
	for _, p := range parts {
		k = append(k, p...)
	}

	return k
}
