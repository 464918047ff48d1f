// Package errs maps the errors of the chain packages to request errors the
// web layer can report to clients.
package errs

import (
	"errors"
	"net/http"

	"github.com/adamwoolhether/utxochain/business/sys/validate"
	v1Web "github.com/adamwoolhether/utxochain/business/web/v1"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/account"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/alias"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/builder"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/codec"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/database"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/header"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/keystore"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/ledger"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/signature"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/state"
)

var statuses = []struct {
	err    error
	status int
}{
	{database.ErrNotFound, http.StatusNotFound},
	{account.ErrAccountNotFound, http.StatusNotFound},
	{alias.ErrAliasNotSet, http.StatusNotFound},

	{signature.ErrWrongPassword, http.StatusForbidden},

	{account.ErrAccountAlreadyExists, http.StatusConflict},
	{alias.ErrAliasAlreadyExists, http.StatusConflict},
	{alias.ErrAliasAlreadySet, http.StatusConflict},
	{ledger.ErrCoinUnavailable, http.StatusConflict},

	{account.ErrInvalidData, http.StatusBadRequest},
	{account.ErrWeakPassword, http.StatusBadRequest},
	{account.ErrInvalidCount, http.StatusBadRequest},
	{keystore.ErrNoKeyMaterial, http.StatusBadRequest},
	{alias.ErrInvalidAlias, http.StatusBadRequest},
	{builder.ErrInsufficientBalance, http.StatusBadRequest},
	{signature.ErrInvalidAddress, http.StatusBadRequest},
	{signature.ErrInvalidSignature, http.StatusBadRequest},
	{codec.ErrMalformedData, http.StatusBadRequest},
	{database.ErrInvalidTransaction, http.StatusBadRequest},
	{header.ErrValidationFailed, http.StatusBadRequest},
	{state.ErrInvalidBlock, http.StatusBadRequest},
	{state.ErrFeeTooLow, http.StatusBadRequest},
	{state.ErrCoinbaseNotAllowed, http.StatusBadRequest},
	{state.ErrNoTransactions, http.StatusBadRequest},
	{state.ErrGenesisRollback, http.StatusBadRequest},
}

// Wrap returns err as a request error when it is one a client caused.
// Anything else is returned unchanged and reported as a server error.
func Wrap(err error) error {
	if err == nil || validate.IsFieldErrors(err) || v1Web.IsRequestError(err) {
		return err
	}

	for _, s := range statuses {
		if errors.Is(err, s.err) {
			return v1Web.NewRequestError(err, s.status)
		}
	}

	return err
}

// BadRequest marks err as caused by the request.
func BadRequest(err error) error {
	return v1Web.NewRequestError(err, http.StatusBadRequest)
}
