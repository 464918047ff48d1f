package database

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/adamwoolhether/utxochain/foundation/blockchain/codec"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/signature"
)

// Limits applied to header blobs while parsing.
const (
	MaxHeaderScriptSize = 256
	MaxExtendSize       = 4 << 10
)

// BlockHeader commits to a block's transactions and links it to its parent.
// The hash covers every field except the hash itself and the producer's
// signature.
type BlockHeader struct {
	Version    uint16            `json:"version"`
	Hash       chainhash.Hash    `json:"hash"`
	PrevHash   chainhash.Hash    `json:"prev_hash"`
	MerkleRoot chainhash.Hash    `json:"merkle_root"`
	Time       uint64            `json:"time"`
	Height     uint64            `json:"height"`
	TxCount    uint64            `json:"tx_count"`
	Producer   signature.Address `json:"producer"`
	Signature  []byte            `json:"signature"`
	Extend     []byte            `json:"extend"`
}

// SigningBytes returns the encoding the hash commits to.
func (h *BlockHeader) SigningBytes() []byte {
	size := codec.SizeUint16 +
		2*codec.SizeHash +
		codec.SizeVarInt(h.Time) +
		codec.SizeVarInt(h.Height) +
		codec.SizeVarInt(h.TxCount) +
		sizeAddress(h.Producer) +
		codec.SizeBytes(h.Extend)

	w := codec.NewWriter(size)
	w.WriteUint16(h.Version)
	w.WriteHash(h.PrevHash)
	w.WriteHash(h.MerkleRoot)
	w.WriteVarInt(h.Time)
	w.WriteVarInt(h.Height)
	w.WriteVarInt(h.TxCount)
	writeAddress(w, "header.producer", h.Producer)
	w.WriteBytes("header.extend", h.Extend)

	return w.Bytes()
}

// ComputeHash returns the double SHA-256 of the signing form.
func (h *BlockHeader) ComputeHash() chainhash.Hash {
	return signature.Hash(h.SigningBytes())
}

func (h *BlockHeader) Size() int {
	return codec.SizeUint16 +
		3*codec.SizeHash +
		codec.SizeVarInt(h.Time) +
		codec.SizeVarInt(h.Height) +
		codec.SizeVarInt(h.TxCount) +
		sizeAddress(h.Producer) +
		codec.SizeBytes(h.Signature) +
		codec.SizeBytes(h.Extend)
}

func (h *BlockHeader) Encode(w *codec.Writer) {
	w.WriteUint16(h.Version)
	w.WriteHash(h.Hash)
	w.WriteHash(h.PrevHash)
	w.WriteHash(h.MerkleRoot)
	w.WriteVarInt(h.Time)
	w.WriteVarInt(h.Height)
	w.WriteVarInt(h.TxCount)
	writeAddress(w, "header.producer", h.Producer)
	w.WriteBytes("header.signature", h.Signature)
	w.WriteBytes("header.extend", h.Extend)
}

func (h *BlockHeader) Decode(r *codec.Reader) {
	h.Version = r.ReadUint16("header.version")
	h.Hash = r.ReadHash("header.hash")
	h.PrevHash = r.ReadHash("header.prevhash")
	h.MerkleRoot = r.ReadHash("header.merkleroot")
	h.Time = r.ReadVarInt("header.time")
	h.Height = r.ReadVarInt("header.height")
	h.TxCount = r.ReadVarInt("header.txcount")
	h.Producer = readAddress(r, "header.producer")
	h.Signature = r.ReadBytes("header.signature", MaxHeaderScriptSize)
	h.Extend = r.ReadBytes("header.extend", MaxExtendSize)
}

// =============================================================================

// Block is a header and the transactions it commits to.
type Block struct {
	Header       BlockHeader   `json:"header"`
	Transactions []Transaction `json:"transactions"`
}

// TxHashes returns the hashes of the transactions in block order.
func (b *Block) TxHashes() []chainhash.Hash {
	hashes := make([]chainhash.Hash, len(b.Transactions))
	for i := range b.Transactions {
		hashes[i] = b.Transactions[i].Hash
	}

	return hashes
}

func (b *Block) Size() int {
	n := b.Header.Size() + codec.SizeVarInt(uint64(len(b.Transactions)))
	for i := range b.Transactions {
		n += b.Transactions[i].Size()
	}

	return n
}

func (b *Block) Encode(w *codec.Writer) {
	w.WriteData(&b.Header)
	w.WriteVarInt(uint64(len(b.Transactions)))
	for i := range b.Transactions {
		w.WriteData(&b.Transactions[i])
	}
}

func (b *Block) Decode(r *codec.Reader) {
	r.ReadData(&b.Header)

	b.Transactions = nil
	n := readCount(r, "block.transactions")
	if n > 0 {
		b.Transactions = make([]Transaction, n)
		for i := range b.Transactions {
			r.ReadData(&b.Transactions[i])
		}
	}
}
