package signature

import (
	"bytes"
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/base58"
)

// AddressVersion prefixes every address this chain derives.
const AddressVersion byte = 0x26

// AddressLength is the number of bytes in an address: version + hash160.
const AddressLength = 21

// ErrInvalidAddress is returned when an address text or byte form is rejected.
var ErrInvalidAddress = errors.New("invalid address")

// Address identifies the owner of a key pair.
type Address [AddressLength]byte

// DeriveAddress derives the address of the public key. The derivation is one
// way and deterministic.
func DeriveAddress(pk *ecdsa.PublicKey) Address {
	return addressFromHash(btcutil.Hash160(PublicKeyBytes(pk)))
}

// AddressFromPublicKey derives the address of a compressed public key.
func AddressFromPublicKey(publicKey []byte) (Address, error) {
	if _, err := ParsePublicKey(publicKey); err != nil {
		return Address{}, fmt.Errorf("%w: %s", ErrInvalidAddress, err)
	}

	return addressFromHash(btcutil.Hash160(publicKey)), nil
}

// AddressFromBytes validates raw address bytes.
func AddressFromBytes(b []byte) (Address, error) {
	if len(b) != AddressLength {
		return Address{}, fmt.Errorf("%w: length %d", ErrInvalidAddress, len(b))
	}
	if b[0] != AddressVersion {
		return Address{}, fmt.Errorf("%w: version %#x", ErrInvalidAddress, b[0])
	}

	var a Address
	copy(a[:], b)
	return a, nil
}

// ParseAddress decodes the checksummed text form. Corrupted strings fail the
// checksum and are rejected.
func ParseAddress(s string) (Address, error) {
	payload, version, err := base58.CheckDecode(s)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %q: %s", ErrInvalidAddress, s, err)
	}
	if version != AddressVersion {
		return Address{}, fmt.Errorf("%w: %q: version %#x", ErrInvalidAddress, s, version)
	}
	if len(payload) != AddressLength-1 {
		return Address{}, fmt.Errorf("%w: %q: payload length %d", ErrInvalidAddress, s, len(payload))
	}

	return addressFromHash(payload), nil
}

// String returns the checksummed text form.
func (a Address) String() string {
	return base58.CheckEncode(a[1:], a[0])
}

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool {
	return a == Address{}
}

// Less orders addresses by their bytes.
func (a Address) Less(b Address) bool {
	return bytes.Compare(a[:], b[:]) < 0
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	addr, err := ParseAddress(string(text))
	if err != nil {
		return err
	}

	*a = addr
	return nil
}

func addressFromHash(h []byte) Address {
	var a Address
	a[0] = AddressVersion
	copy(a[1:], h)
	return a
}
