// Package codec implements the canonical binary encoding shared by every chain
// data structure. Field order is fixed by each type; integers that are usually
// small use the Bitcoin compact-size varint, hashes are raw 32 bytes and blobs
// carry a length prefix.
package codec

import (
	"errors"
	"fmt"
)

// ErrMalformedData is returned when bytes can't be parsed into a value or when
// a value produces a different number of bytes than it reports.
var ErrMalformedData = errors.New("malformed data")

// Limits applied to length prefixes while parsing.
const (
	MaxShortBytes = 255
	MaxBlobSize   = 1 << 20
)

// Data is the behavior every serializable chain structure implements.
type Data interface {
	Size() int
	Encode(w *Writer)
	Decode(r *Reader)
}

// Serialize encodes the value into a new slice sized by the value itself.
func Serialize(d Data) ([]byte, error) {
	size := d.Size()

	w := NewWriter(size)
	d.Encode(w)
	if err := w.Err(); err != nil {
		return nil, err
	}

	b := w.Bytes()
	if len(b) != size {
		return nil, fmt.Errorf("%w: encoded %d bytes, size reports %d", ErrMalformedData, len(b), size)
	}

	return b, nil
}

// Parse decodes the bytes into the value. All bytes must be consumed.
func Parse(b []byte, d Data) error {
	r := NewReader(b)
	d.Decode(r)
	if err := r.Err(); err != nil {
		return err
	}

	if r.Len() != 0 {
		return fmt.Errorf("%w: %d trailing bytes", ErrMalformedData, r.Len())
	}

	return nil
}

// malformed wraps the cause so every parse failure matches ErrMalformedData.
func malformed(field string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrMalformedData, field, err)
}
