package database

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/adamwoolhether/utxochain/foundation/blockchain/codec"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/signature"
)

// ErrInvalidTransaction is returned when a transaction fails validation.
var ErrInvalidTransaction = errors.New("invalid transaction")

// TxType discriminates the kinds of transactions.
type TxType uint16

// Set of known transaction types.
const (
	TxTypeCoinbase TxType = 1
	TxTypeTransfer TxType = 2
	TxTypeAlias    TxType = 3
)

// String implements the fmt.Stringer interface.
func (t TxType) String() string {
	switch t {
	case TxTypeCoinbase:
		return "coinbase"
	case TxTypeTransfer:
		return "transfer"
	case TxTypeAlias:
		return "alias"
	}
	return fmt.Sprintf("unknown(%d)", uint16(t))
}

// Known reports whether the type is one the chain accepts.
func (t TxType) Known() bool {
	return t == TxTypeCoinbase || t == TxTypeTransfer || t == TxTypeAlias
}

// Field limits enforced while parsing.
const (
	MaxRemarkSize  = 1024
	MaxPayloadSize = 64 << 10
	MaxScriptSize  = 1024
)

// Transaction moves coins between addresses. Its hash is the double SHA-256
// of the signing form, which is every field except the script.
type Transaction struct {
	Type     TxType         `json:"type"`
	Time     uint64         `json:"time"`
	Remark   string         `json:"remark"`
	Payload  []byte         `json:"payload"`
	CoinData CoinData       `json:"coin_data"`
	Script   []byte         `json:"script"`
	Hash     chainhash.Hash `json:"hash"`
}

// SigningBytes returns the encoding the hash and signature commit to.
func (tx *Transaction) SigningBytes() []byte {
	w := codec.NewWriter(tx.signingSize())
	tx.encodeSigning(w)
	return w.Bytes()
}

// ComputeHash returns the double SHA-256 of the signing form.
func (tx *Transaction) ComputeHash() chainhash.Hash {
	return signature.Hash(tx.SigningBytes())
}

// Fee returns the amount the transaction leaves to the block producer.
func (tx *Transaction) Fee() (uint64, error) {
	return tx.CoinData.Fee()
}

// Validate checks the hash, the script signature and the coin data. The
// signer must own every input. Coinbase transactions carry no inputs and no
// script.
func (tx *Transaction) Validate() error {
	if !tx.Type.Known() {
		return fmt.Errorf("%w: unknown type %d", ErrInvalidTransaction, tx.Type)
	}

	if tx.Hash != tx.ComputeHash() {
		return fmt.Errorf("%w: hash mismatch", ErrInvalidTransaction)
	}

	// A coinbase mints its outputs, so only their sum has to be sound.
	switch tx.Type {
	case TxTypeCoinbase:
		if _, err := tx.CoinData.TotalOut(); err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidTransaction, err)
		}
	default:
		if _, err := tx.CoinData.Fee(); err != nil {
			return fmt.Errorf("%w: %s", ErrInvalidTransaction, err)
		}
	}

	seen := make(map[OutPoint]struct{}, len(tx.CoinData.Inputs))
	for _, in := range tx.CoinData.Inputs {
		if _, exists := seen[in.OutPoint]; exists {
			return fmt.Errorf("%w: duplicate input %s", ErrInvalidTransaction, in.OutPoint)
		}
		seen[in.OutPoint] = struct{}{}
	}

	for _, out := range tx.CoinData.Outputs {
		if out.Address.IsZero() {
			return fmt.Errorf("%w: output without address", ErrInvalidTransaction)
		}
	}

	if tx.Type == TxTypeCoinbase {
		if len(tx.CoinData.Inputs) != 0 || len(tx.Script) != 0 {
			return fmt.Errorf("%w: coinbase with inputs or script", ErrInvalidTransaction)
		}
		return nil
	}

	if len(tx.CoinData.Inputs) == 0 {
		return fmt.Errorf("%w: no inputs", ErrInvalidTransaction)
	}

	signer, err := tx.Signer()
	if err != nil {
		return err
	}

	for _, in := range tx.CoinData.Inputs {
		if in.Owner != signer {
			return fmt.Errorf("%w: input %s owned by %s, signed by %s", ErrInvalidTransaction, in.OutPoint, in.Owner, signer)
		}
	}

	if tx.Type == TxTypeAlias {
		var a Alias
		if err := codec.Parse(tx.Payload, &a); err != nil {
			return fmt.Errorf("%w: alias payload: %s", ErrInvalidTransaction, err)
		}
		if a.Address != signer {
			return fmt.Errorf("%w: alias for %s signed by %s", ErrInvalidTransaction, a.Address, signer)
		}
	}

	return nil
}

// Signer verifies the script signature over the hash and returns the
// address of the signing key.
func (tx *Transaction) Signer() (signature.Address, error) {
	var sig P2PKHScriptSig
	if err := codec.Parse(tx.Script, &sig); err != nil {
		return signature.Address{}, fmt.Errorf("%w: script: %s", ErrInvalidTransaction, err)
	}

	if !signature.Verify(tx.Hash, sig.Signature, sig.PublicKey) {
		return signature.Address{}, fmt.Errorf("%w: %s", ErrInvalidTransaction, signature.ErrInvalidSignature)
	}

	addr, err := signature.AddressFromPublicKey(sig.PublicKey)
	if err != nil {
		return signature.Address{}, fmt.Errorf("%w: %s", ErrInvalidTransaction, err)
	}

	return addr, nil
}

// AliasPayload decodes the payload of an alias transaction.
func (tx *Transaction) AliasPayload() (Alias, error) {
	if tx.Type != TxTypeAlias {
		return Alias{}, fmt.Errorf("%w: %s has no alias payload", ErrInvalidTransaction, tx.Type)
	}

	var a Alias
	if err := codec.Parse(tx.Payload, &a); err != nil {
		return Alias{}, err
	}

	return a, nil
}

func (tx *Transaction) signingSize() int {
	return codec.SizeUint16 +
		codec.SizeVarInt(tx.Time) +
		codec.SizeString(tx.Remark) +
		codec.SizeBytes(tx.Payload) +
		tx.CoinData.Size()
}

func (tx *Transaction) encodeSigning(w *codec.Writer) {
	w.WriteUint16(uint16(tx.Type))
	w.WriteVarInt(tx.Time)
	w.WriteString("tx.remark", tx.Remark)
	w.WriteBytes("tx.payload", tx.Payload)
	w.WriteData(&tx.CoinData)
}

func (tx *Transaction) Size() int {
	return tx.signingSize() + codec.SizeBytes(tx.Script)
}

func (tx *Transaction) Encode(w *codec.Writer) {
	tx.encodeSigning(w)
	w.WriteBytes("tx.script", tx.Script)
}

// Decode parses the transaction and recomputes its hash.
func (tx *Transaction) Decode(r *codec.Reader) {
	tx.Type = TxType(r.ReadUint16("tx.type"))
	if r.Err() == nil && !tx.Type.Known() {
		r.Fail("tx.type", "unknown type %d", tx.Type)
		return
	}

	tx.Time = r.ReadVarInt("tx.time")
	tx.Remark = r.ReadString("tx.remark", MaxRemarkSize)
	tx.Payload = r.ReadBytes("tx.payload", MaxPayloadSize)
	r.ReadData(&tx.CoinData)
	tx.Script = r.ReadBytes("tx.script", MaxScriptSize)

	if r.Err() == nil {
		tx.Hash = tx.ComputeHash()
	}
}

// =============================================================================

// P2PKHScriptSig proves ownership of the inputs: the compressed public key of
// the owner and its signature over the transaction hash.
type P2PKHScriptSig struct {
	PublicKey []byte
	Signature []byte
}

// P2PKHScriptSize is the encoded size of a script sig holding a compressed
// public key and a recoverable signature.
const P2PKHScriptSize = 1 + 33 + 1 + signature.SignatureLength

func (s *P2PKHScriptSig) Size() int {
	return codec.SizeShortBytes(s.PublicKey) + codec.SizeShortBytes(s.Signature)
}

func (s *P2PKHScriptSig) Encode(w *codec.Writer) {
	w.WriteShortBytes("script.pubkey", s.PublicKey)
	w.WriteShortBytes("script.signature", s.Signature)
}

func (s *P2PKHScriptSig) Decode(r *codec.Reader) {
	s.PublicKey = r.ReadShortBytes("script.pubkey")
	s.Signature = r.ReadShortBytes("script.signature")
}

// =============================================================================

// Alias binds a human readable name to an address. It is the payload of an
// alias transaction.
type Alias struct {
	Address signature.Address `json:"address"`
	Name    string            `json:"name"`
}

// MaxAliasSize bounds the encoded alias name.
const MaxAliasSize = 64

func (a *Alias) Size() int {
	return sizeAddress(a.Address) + codec.SizeString(a.Name)
}

func (a *Alias) Encode(w *codec.Writer) {
	writeAddress(w, "alias.address", a.Address)
	w.WriteString("alias.name", a.Name)
}

func (a *Alias) Decode(r *codec.Reader) {
	a.Address = readAddress(r, "alias.address")
	a.Name = r.ReadString("alias.name", MaxAliasSize)
}
