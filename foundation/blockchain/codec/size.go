package codec

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// SizeUint16 is the encoded size of a uint16.
const SizeUint16 = 2

// SizeHash is the encoded size of a hash.
const SizeHash = chainhash.HashSize

// SizeVarInt returns the encoded size of a varint.
func SizeVarInt(v uint64) int {
	return wire.VarIntSerializeSize(v)
}

// SizeShortBytes returns the encoded size of single byte length prefixed bytes.
func SizeShortBytes(b []byte) int {
	return 1 + len(b)
}

// SizeBytes returns the encoded size of varint length prefixed bytes.
func SizeBytes(b []byte) int {
	return wire.VarIntSerializeSize(uint64(len(b))) + len(b)
}

// SizeString returns the encoded size of a length prefixed string.
func SizeString(s string) int {
	return wire.VarIntSerializeSize(uint64(len(s))) + len(s)
}
