package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// Reader decodes an encoding. Like Writer it keeps the first error and turns
// every later read into a no-op returning zero values.
type Reader struct {
	r   *bytes.Reader
	err error
}

// NewReader constructs a reader over the bytes.
func NewReader(b []byte) *Reader {
	return &Reader{r: bytes.NewReader(b)}
}

// Err returns the first error encountered.
func (r *Reader) Err() error {
	return r.err
}

// Len returns the number of unread bytes.
func (r *Reader) Len() int {
	return r.r.Len()
}

// Fail records a decoding error detected by the caller, such as an unknown
// discriminator.
func (r *Reader) Fail(field string, format string, args ...any) {
	if r.err != nil {
		return
	}

	r.err = malformed(field, fmt.Errorf(format, args...))
}

// ReadUint16 reads a fixed width little endian uint16.
func (r *Reader) ReadUint16(field string) uint16 {
	var b [2]byte
	if !r.readFull(field, b[:]) {
		return 0
	}

	return binary.LittleEndian.Uint16(b[:])
}

// ReadVarInt reads a canonical compact-size varint.
func (r *Reader) ReadVarInt(field string) uint64 {
	if r.err != nil {
		return 0
	}

	v, err := wire.ReadVarInt(r.r, pver)
	if err != nil {
		r.err = malformed(field, err)
		return 0
	}

	return v
}

// ReadHash reads a raw 32 byte hash.
func (r *Reader) ReadHash(field string) chainhash.Hash {
	var h chainhash.Hash
	r.readFull(field, h[:])
	return h
}

// ReadShortBytes reads a single byte length followed by the bytes.
func (r *Reader) ReadShortBytes(field string) []byte {
	if r.err != nil {
		return nil
	}

	n, err := r.r.ReadByte()
	if err != nil {
		r.err = malformed(field, err)
		return nil
	}

	if int(n) > r.r.Len() {
		r.err = malformed(field, fmt.Errorf("length %d exceeds remaining %d", n, r.r.Len()))
		return nil
	}

	if n == 0 {
		return nil
	}

	b := make([]byte, n)
	r.readFull(field, b)
	return b
}

// ReadBytes reads a varint length followed by the bytes. Lengths beyond limit
// or beyond the remaining input fail before any allocation.
func (r *Reader) ReadBytes(field string, limit uint32) []byte {
	if r.err != nil {
		return nil
	}

	if limit > MaxBlobSize {
		limit = MaxBlobSize
	}
	if remaining := uint32(r.r.Len()); limit > remaining {
		limit = remaining
	}

	b, err := wire.ReadVarBytes(r.r, pver, limit, field)
	if err != nil {
		r.err = malformed(field, err)
		return nil
	}

	if len(b) == 0 {
		return nil
	}

	return b
}

// ReadString reads length prefixed bytes as a string.
func (r *Reader) ReadString(field string, limit uint32) string {
	return string(r.ReadBytes(field, limit))
}

// ReadData decodes a nested value in place.
func (r *Reader) ReadData(d Data) {
	if r.err != nil {
		return
	}

	d.Decode(r)
}

func (r *Reader) readFull(field string, b []byte) bool {
	if r.err != nil {
		return false
	}

	if _, err := io.ReadFull(r.r, b); err != nil {
		r.err = malformed(field, err)
		return false
	}

	return true
}
