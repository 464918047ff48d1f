package account

import (
	"github.com/adamwoolhether/utxochain/foundation/blockchain/codec"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/keystore"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/signature"
)

// Account is a locally held key pair. The private key is only ever held
// sealed.
type Account struct {
	Address   signature.Address `json:"address"`
	PublicKey []byte            `json:"public_key"`
	Sealed    []byte            `json:"-"`
	Alias     string            `json:"alias"`
	CreatedAt uint64            `json:"created_at"`
	Encrypted bool              `json:"encrypted"`
}

// Keystore returns the exportable form of the account.
func (a Account) Keystore() keystore.Keystore {
	return keystore.Keystore{
		Address:   a.Address,
		PublicKey: a.PublicKey,
		Crypto:    a.Sealed,
		Alias:     a.Alias,
		Encrypted: a.Encrypted,
	}
}

// Limits applied while parsing stored accounts.
const (
	maxSealedSize = 4 << 10
	maxAliasSize  = 64
)

func (a *Account) Size() int {
	return codec.SizeShortBytes(a.Address[:]) +
		codec.SizeShortBytes(a.PublicKey) +
		codec.SizeBytes(a.Sealed) +
		codec.SizeString(a.Alias) +
		codec.SizeVarInt(a.CreatedAt) +
		codec.SizeVarInt(1)
}

func (a *Account) Encode(w *codec.Writer) {
	w.WriteShortBytes("account.address", a.Address[:])
	w.WriteShortBytes("account.pubkey", a.PublicKey)
	w.WriteBytes("account.sealed", a.Sealed)
	w.WriteString("account.alias", a.Alias)
	w.WriteVarInt(a.CreatedAt)

	var encrypted uint64
	if a.Encrypted {
		encrypted = 1
	}
	w.WriteVarInt(encrypted)
}

func (a *Account) Decode(r *codec.Reader) {
	addr := r.ReadShortBytes("account.address")
	a.PublicKey = r.ReadShortBytes("account.pubkey")
	a.Sealed = r.ReadBytes("account.sealed", maxSealedSize)
	a.Alias = r.ReadString("account.alias", maxAliasSize)
	a.CreatedAt = r.ReadVarInt("account.created")

	switch r.ReadVarInt("account.encrypted") {
	case 0:
		a.Encrypted = false
	case 1:
		a.Encrypted = true
	default:
		r.Fail("account.encrypted", "not a boolean")
	}

	if r.Err() != nil {
		return
	}

	var err error
	if a.Address, err = signature.AddressFromBytes(addr); err != nil {
		r.Fail("account.address", "%s", err)
	}
}
