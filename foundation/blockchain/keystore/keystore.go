// Package keystore defines the portable document an account is exported to
// and imported from, and stores those documents as files on disk.
package keystore

import (
	"encoding/json"
	"errors"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/adamwoolhether/utxochain/foundation/blockchain/signature"
)

// ErrNoKeyMaterial is returned when a document carries neither a sealed nor
// a plaintext private key.
var ErrNoKeyMaterial = errors.New("keystore has no key material")

// Keystore is the exported form of an account. Crypto holds the sealed
// private key. PrivateKey is only set on documents written by hand for
// import and is never produced by an export.
type Keystore struct {
	Address    signature.Address `json:"address"`
	PublicKey  hexutil.Bytes     `json:"public_key"`
	Crypto     json.RawMessage   `json:"crypto,omitempty"`
	PrivateKey hexutil.Bytes     `json:"private_key,omitempty"`
	Alias      string            `json:"alias,omitempty"`
	Encrypted  bool              `json:"encrypted"`
}

// Validate checks the document carries key material.
func (ks Keystore) Validate() error {
	if len(ks.Crypto) == 0 && len(ks.PrivateKey) == 0 {
		return ErrNoKeyMaterial
	}

	return nil
}

// Marshal encodes the document for writing.
func (ks Keystore) Marshal() ([]byte, error) {
	return json.MarshalIndent(ks, "", "  ")
}

// Unmarshal decodes a document.
func Unmarshal(data []byte) (Keystore, error) {
	var ks Keystore
	if err := json.Unmarshal(data, &ks); err != nil {
		return Keystore{}, err
	}

	if err := ks.Validate(); err != nil {
		return Keystore{}, err
	}

	return ks, nil
}
