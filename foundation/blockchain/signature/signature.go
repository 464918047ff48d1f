// Package signature provides the cryptographic identity of the chain: key
// generation, address derivation, private key sealing, signing and signature
// verification. Everything signed is a 32 byte digest, never a raw payload.
package signature

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/ethereum/go-ethereum/crypto"
)

// ZeroHash represents a hash code of zeros.
var ZeroHash chainhash.Hash

// SignatureLength is the length of a recoverable secp256k1 signature [R || S || V].
const SignatureLength = crypto.SignatureLength

// ErrInvalidSignature is returned when a signature can't be produced or parsed.
var ErrInvalidSignature = errors.New("invalid signature")

// Hash returns the double SHA-256 digest of the data.
func Hash(data []byte) chainhash.Hash {
	return chainhash.DoubleHashH(data)
}

// GenerateKey creates a new secp256k1 private key.
func GenerateKey() (*ecdsa.PrivateKey, error) {
	return crypto.GenerateKey()
}

// PublicKeyBytes returns the compressed form of the public key.
func PublicKeyBytes(pk *ecdsa.PublicKey) []byte {
	return crypto.CompressPubkey(pk)
}

// ParsePublicKey parses a compressed public key.
func ParsePublicKey(b []byte) (*ecdsa.PublicKey, error) {
	pk, err := crypto.DecompressPubkey(b)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}

	return pk, nil
}

// Sign signs the digest with the private key.
func Sign(digest chainhash.Hash, privateKey *ecdsa.PrivateKey) ([]byte, error) {
	sig, err := crypto.Sign(digest[:], privateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSignature, err)
	}

	return sig, nil
}

// Verify reports whether the signature over the digest was produced by the
// owner of the compressed public key.
func Verify(digest chainhash.Hash, sig []byte, publicKey []byte) bool {
	if len(sig) != SignatureLength {
		return false
	}

	return crypto.VerifySignature(publicKey, digest[:], sig[:SignatureLength-1])
}

// Zero overwrites the bytes with zeros.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// ZeroKey wipes the private scalar of the key.
func ZeroKey(k *ecdsa.PrivateKey) {
	if k == nil || k.D == nil {
		return
	}

	b := k.D.Bits()
	for i := range b {
		b[i] = 0
	}
	k.D.SetInt64(0)
}
