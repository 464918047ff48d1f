package header

import (
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/adamwoolhether/utxochain/foundation/blockchain/codec"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/database"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/signature"
)

// ErrValidationFailed is matched by every error a validator reports.
var ErrValidationFailed = errors.New("header validation failed")

// MaxHeaderSize bounds the encoded size of a header.
const MaxHeaderSize = 8 << 10

// DefaultMaxDrift is how far ahead of the local clock a header may be.
const DefaultMaxDrift = 10 * time.Second

// ValidationError names the validator that rejected a header.
type ValidationError struct {
	Validator string
	Reason    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrValidationFailed, e.Validator, e.Reason)
}

// Is makes errors.Is match ErrValidationFailed.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

// Context carries what a header is validated against. Prev is nil for the
// genesis header.
type Context struct {
	Prev     *database.BlockHeader
	TxHashes []chainhash.Hash
	Now      time.Time
	MaxDrift time.Duration
}

// Validator checks one property of a header.
type Validator interface {
	Name() string
	Validate(h database.BlockHeader, ctx Context) error
}

// Validators run in order and stop at the first failure.
type Validators []Validator

// DefaultValidators returns the checks every accepted header passes.
func DefaultValidators() Validators {
	return Validators{
		sizeValidator{},
		hashValidator{},
		heightValidator{},
		prevHashValidator{},
		timeValidator{},
		merkleValidator{},
		signatureValidator{},
	}
}

// Validate runs the validators in order. The first failure is returned as
// a *ValidationError and the remaining validators are skipped.
func (vs Validators) Validate(h database.BlockHeader, ctx Context) error {
	for _, v := range vs {
		if err := v.Validate(h, ctx); err != nil {
			return &ValidationError{Validator: v.Name(), Reason: err.Error()}
		}
	}

	return nil
}

// =============================================================================

type sizeValidator struct{}

func (sizeValidator) Name() string { return "size" }

func (sizeValidator) Validate(h database.BlockHeader, _ Context) error {
	switch {
	case h.Version == 0 || h.Version > Version:
		return fmt.Errorf("unsupported version %d", h.Version)
	case len(h.Signature) > database.MaxHeaderScriptSize:
		return fmt.Errorf("signature of %d bytes", len(h.Signature))
	case len(h.Extend) > database.MaxExtendSize:
		return fmt.Errorf("extend of %d bytes", len(h.Extend))
	case h.Size() > MaxHeaderSize:
		return fmt.Errorf("header of %d bytes", h.Size())
	}

	return nil
}

type hashValidator struct{}

func (hashValidator) Name() string { return "hash" }

func (hashValidator) Validate(h database.BlockHeader, _ Context) error {
	if exp := h.ComputeHash(); h.Hash != exp {
		return fmt.Errorf("hash %s, computed %s", h.Hash, exp)
	}

	return nil
}

type heightValidator struct{}

func (heightValidator) Name() string { return "height" }

func (heightValidator) Validate(h database.BlockHeader, ctx Context) error {
	var exp uint64
	if ctx.Prev != nil {
		exp = ctx.Prev.Height + 1
	}

	if h.Height != exp {
		return fmt.Errorf("height %d, expected %d", h.Height, exp)
	}

	return nil
}

type prevHashValidator struct{}

func (prevHashValidator) Name() string { return "prev-hash" }

func (prevHashValidator) Validate(h database.BlockHeader, ctx Context) error {
	var exp chainhash.Hash
	if ctx.Prev != nil {
		exp = ctx.Prev.Hash
	}

	if h.PrevHash != exp {
		return fmt.Errorf("previous hash %s, expected %s", h.PrevHash, exp)
	}

	return nil
}

type timeValidator struct{}

func (timeValidator) Name() string { return "time" }

func (timeValidator) Validate(h database.BlockHeader, ctx Context) error {
	if ctx.Prev != nil && h.Time < ctx.Prev.Time {
		return fmt.Errorf("time %d before previous %d", h.Time, ctx.Prev.Time)
	}

	if ctx.Now.IsZero() {
		return nil
	}

	drift := ctx.MaxDrift
	if drift == 0 {
		drift = DefaultMaxDrift
	}

	if limit := uint64(ctx.Now.Add(drift).UnixMilli()); h.Time > limit {
		return fmt.Errorf("time %d beyond %d", h.Time, limit)
	}

	return nil
}

type merkleValidator struct{}

func (merkleValidator) Name() string { return "merkle" }

func (merkleValidator) Validate(h database.BlockHeader, ctx Context) error {
	if h.TxCount != uint64(len(ctx.TxHashes)) {
		return fmt.Errorf("tx count %d, block holds %d", h.TxCount, len(ctx.TxHashes))
	}

	if exp := MerkleRoot(ctx.TxHashes); h.MerkleRoot != exp {
		return fmt.Errorf("merkle root %s, computed %s", h.MerkleRoot, exp)
	}

	return nil
}

type signatureValidator struct{}

func (signatureValidator) Name() string { return "signature" }

// The genesis header is not signed.
func (signatureValidator) Validate(h database.BlockHeader, _ Context) error {
	if h.Height == 0 {
		return nil
	}

	var script database.P2PKHScriptSig
	if err := codec.Parse(h.Signature, &script); err != nil {
		return err
	}

	if !signature.Verify(h.Hash, script.Signature, script.PublicKey) {
		return signature.ErrInvalidSignature
	}

	addr, err := signature.AddressFromPublicKey(script.PublicKey)
	if err != nil {
		return err
	}

	if addr != h.Producer {
		return fmt.Errorf("signed by %s, produced by %s", addr, h.Producer)
	}

	return nil
}
