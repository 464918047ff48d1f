package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// pver is passed to the wire helpers which ignore it for varints.
const pver = 0

// Writer accumulates an encoding. The first error is kept and every later
// write becomes a no-op so encoders can be written without error checks.
type Writer struct {
	buf bytes.Buffer
	err error
}

// NewWriter constructs a writer with the specified capacity.
func NewWriter(capacity int) *Writer {
	var w Writer
	w.buf.Grow(capacity)
	return &w
}

// Bytes returns the encoded bytes.
func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

// Err returns the first error encountered.
func (w *Writer) Err() error {
	return w.err
}

// WriteUint16 writes a fixed width little endian uint16.
func (w *Writer) WriteUint16(v uint16) {
	if w.err != nil {
		return
	}

	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf.Write(b[:])
}

// WriteVarInt writes a compact-size varint.
func (w *Writer) WriteVarInt(v uint64) {
	if w.err != nil {
		return
	}

	w.err = wire.WriteVarInt(&w.buf, pver, v)
}

// WriteHash writes the raw 32 bytes of a hash.
func (w *Writer) WriteHash(h chainhash.Hash) {
	if w.err != nil {
		return
	}

	w.buf.Write(h[:])
}

// WriteShortBytes writes a single byte length followed by the bytes.
func (w *Writer) WriteShortBytes(field string, b []byte) {
	if w.err != nil {
		return
	}

	if len(b) > MaxShortBytes {
		w.err = fmt.Errorf("%w: %s: length %d exceeds %d", ErrMalformedData, field, len(b), MaxShortBytes)
		return
	}

	w.buf.WriteByte(byte(len(b)))
	w.buf.Write(b)
}

// WriteBytes writes a varint length followed by the bytes.
func (w *Writer) WriteBytes(field string, b []byte) {
	if w.err != nil {
		return
	}

	if len(b) > MaxBlobSize {
		w.err = fmt.Errorf("%w: %s: length %d exceeds %d", ErrMalformedData, field, len(b), MaxBlobSize)
		return
	}

	w.err = wire.WriteVarBytes(&w.buf, pver, b)
}

// WriteString writes a string as length prefixed bytes.
func (w *Writer) WriteString(field string, s string) {
	w.WriteBytes(field, []byte(s))
}

// WriteData writes a nested value in place.
func (w *Writer) WriteData(d Data) {
	if w.err != nil {
		return
	}

	d.Encode(w)
}
