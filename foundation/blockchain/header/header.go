// Package header builds block headers and validates them against the chain
// through an ordered list of validators.
package header

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/adamwoolhether/utxochain/foundation/blockchain/codec"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/database"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/merkle"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/signature"
)

// Version is the header version produced by this node.
const Version uint16 = 1

// ErrWrongProducer is returned when a header is sealed with a key that does
// not belong to its producer.
var ErrWrongProducer = errors.New("key does not belong to the producer")

// Build constructs an unsealed header on top of prev committing to the
// transaction hashes. A nil prev builds the genesis header.
func Build(prev *database.BlockHeader, txHashes []chainhash.Hash, producer signature.Address, timeMilli uint64, extend []byte) database.BlockHeader {
	h := database.BlockHeader{
		Version:    Version,
		MerkleRoot: MerkleRoot(txHashes),
		Time:       timeMilli,
		TxCount:    uint64(len(txHashes)),
		Producer:   producer,
		Extend:     extend,
	}

	if prev != nil {
		h.PrevHash = prev.Hash
		h.Height = prev.Height + 1
	}

	h.Hash = h.ComputeHash()

	return h
}

// Seal hashes the header and signs the hash with the producer's key.
func Seal(h *database.BlockHeader, privateKey *ecdsa.PrivateKey) error {
	if signature.DeriveAddress(&privateKey.PublicKey) != h.Producer {
		return ErrWrongProducer
	}

	h.Hash = h.ComputeHash()

	sig, err := signature.Sign(h.Hash, privateKey)
	if err != nil {
		return err
	}

	script := database.P2PKHScriptSig{
		PublicKey: signature.PublicKeyBytes(&privateKey.PublicKey),
		Signature: sig,
	}

	b, err := codec.Serialize(&script)
	if err != nil {
		return fmt.Errorf("seal: %w", err)
	}
	h.Signature = b

	return nil
}

// MerkleRoot returns the root of the merkle tree over the ordered hashes.
// The root of an empty list is the zero hash.
func MerkleRoot(hashes []chainhash.Hash) chainhash.Hash {
	if len(hashes) == 0 {
		return chainhash.Hash{}
	}

	leaves := make([]txLeaf, len(hashes))
	for i, h := range hashes {
		leaves[i] = txLeaf(h)
	}

	// Leaf hashing can't fail so neither can the tree.
	tree, err := merkle.NewTree(leaves, merkle.WithHashStrategy[txLeaf](merkle.DoubleSHA256))
	if err != nil {
		return chainhash.Hash{}
	}

	var root chainhash.Hash
	copy(root[:], tree.MerkleRoot)

	return root
}

// txLeaf places a transaction hash in the merkle tree as is.
type txLeaf chainhash.Hash

func (l txLeaf) Hash() ([]byte, error) {
	return append([]byte(nil), l[:]...), nil
}

func (l txLeaf) Equals(other txLeaf) (bool, error) {
	return l == other, nil
}
