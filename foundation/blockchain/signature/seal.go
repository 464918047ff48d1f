package signature

import (
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrWrongPassword is returned when sealed key material fails authentication.
var ErrWrongPassword = errors.New("wrong password")

// KDF holds the scrypt cost parameters used to seal private keys.
type KDF struct {
	N int
	P int
}

// Scrypt cost presets.
var (
	StandardKDF = KDF{N: keystore.StandardScryptN, P: keystore.StandardScryptP}
	LightKDF    = KDF{N: keystore.LightScryptN, P: keystore.LightScryptP}
)

// EncryptPrivateKey seals the private key under the password. The result is
// the keystore V3 crypto section as JSON.
func EncryptPrivateKey(privateKey *ecdsa.PrivateKey, password string, kdf KDF) ([]byte, error) {
	raw := crypto.FromECDSA(privateKey)
	defer Zero(raw)

	cj, err := keystore.EncryptDataV3(raw, []byte(password), kdf.N, kdf.P)
	if err != nil {
		return nil, fmt.Errorf("seal private key: %w", err)
	}

	return json.Marshal(cj)
}

// DecryptPrivateKey opens key material sealed by EncryptPrivateKey. A MAC
// mismatch reports ErrWrongPassword. The caller owns the returned key and
// should release it with ZeroKey.
func DecryptPrivateKey(sealed []byte, password string) (*ecdsa.PrivateKey, error) {
	var cj keystore.CryptoJSON
	if err := json.Unmarshal(sealed, &cj); err != nil {
		return nil, fmt.Errorf("decode sealed key: %w", err)
	}

	raw, err := keystore.DecryptDataV3(cj, password)
	if err != nil {
		if errors.Is(err, keystore.ErrDecrypt) {
			return nil, ErrWrongPassword
		}
		return nil, fmt.Errorf("open sealed key: %w", err)
	}
	defer Zero(raw)

	pk, err := crypto.ToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("open sealed key: %w", err)
	}

	return pk, nil
}
