// Package alias maintains the registry of human readable names bound to
// addresses. A name is claimed by an alias transaction and becomes binding
// once the transaction is confirmed in a block.
package alias

import (
	"errors"
	"fmt"
	"regexp"
	"sync"

	"github.com/adamwoolhether/utxochain/foundation/blockchain/account"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/builder"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/codec"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/database"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/signature"
)

// Set of error variables for the alias registry.
var (
	ErrInvalidAlias       = errors.New("alias must be 3 to 20 letters, digits or underscores")
	ErrAliasAlreadySet    = errors.New("address already has an alias")
	ErrAliasAlreadyExists = errors.New("alias already exists")
	ErrAliasNotSet        = errors.New("alias not set")
)

var nameRE = regexp.MustCompile(`^[A-Za-z0-9_]{3,20}$`)

const (
	prefixName    = "alias:n:"
	prefixAddress = "alias:a:"
)

// Accounts is the directory of local accounts.
type Accounts interface {
	Get(addr signature.Address) (account.Account, error)
	UpdateAlias(addr signature.Address, name string) error
}

// Funder funds, signs and submits transactions.
type Funder interface {
	Fund(req builder.Request) (database.Transaction, error)
	Submit(tx database.Transaction) error
}

// EventHandler defines a function that is called when events occur.
type EventHandler func(v string, args ...any)

// Config represents the configuration required to construct the registry.
type Config struct {
	Storage   database.Storage
	Accounts  Accounts
	Funder    Funder
	EvHandler EventHandler
}

// Registry binds names to addresses.
type Registry struct {
	mu       sync.Mutex
	storage  database.Storage
	accounts Accounts
	funder   Funder
	ev       EventHandler

	pendingNames map[string]signature.Address
	pendingAddrs map[signature.Address]string
}

// New constructs an alias registry.
func New(cfg Config) *Registry {
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	return &Registry{
		storage:      cfg.Storage,
		accounts:     cfg.Accounts,
		funder:       cfg.Funder,
		ev:           ev,
		pendingNames: make(map[string]signature.Address),
		pendingAddrs: make(map[signature.Address]string),
	}
}

// ValidName reports whether the name can be used as an alias.
func ValidName(name string) bool {
	return nameRE.MatchString(name)
}

// SetAlias claims the name for the local account. It builds a fee paying
// alias transaction that moves no value and submits it. The claim stays
// pending until Confirm or Rollback.
func (r *Registry) SetAlias(addr signature.Address, password string, name string) (database.Transaction, error) {
	if !ValidName(name) {
		return database.Transaction{}, fmt.Errorf("%w: %q", ErrInvalidAlias, name)
	}

	if _, err := r.accounts.Get(addr); err != nil {
		return database.Transaction{}, err
	}

	if err := r.claim(addr, name); err != nil {
		return database.Transaction{}, err
	}

	payload, err := codec.Serialize(&database.Alias{Address: addr, Name: name})
	if err != nil {
		r.release(addr, name)
		return database.Transaction{}, err
	}

	tx, err := r.funder.Fund(builder.Request{
		Type:     database.TxTypeAlias,
		Payload:  payload,
		From:     addr,
		Password: password,
	})
	if err != nil {
		r.release(addr, name)
		return database.Transaction{}, err
	}

	if err := r.funder.Submit(tx); err != nil {
		r.release(addr, name)
		return database.Transaction{}, err
	}

	r.ev("alias: SetAlias: address[%s] alias[%s] tx[%s]", addr, name, tx.Hash)

	return tx, nil
}

// Check reports whether the alias could be confirmed: the name is valid and
// free, and the address holds no alias yet.
func (r *Registry) Check(a database.Alias) error {
	if !ValidName(a.Name) {
		return fmt.Errorf("%w: %q", ErrInvalidAlias, a.Name)
	}

	taken, err := r.bound(nameKey(a.Name))
	if err != nil {
		return err
	}
	if taken {
		return fmt.Errorf("%w: %s", ErrAliasAlreadyExists, a.Name)
	}

	taken, err = r.bound(addressKey(a.Address))
	if err != nil {
		return err
	}
	if taken {
		return fmt.Errorf("%w: %s", ErrAliasAlreadySet, a.Address)
	}

	return nil
}

// Claim holds the alias for a pending transaction so no other transaction
// can take the name or the address before it is confirmed. Claiming the
// same name for the same address again succeeds. The returned flag is set
// when the claim is new.
func (r *Registry) Claim(a database.Alias) (bool, error) {
	if !ValidName(a.Name) {
		return false, fmt.Errorf("%w: %q", ErrInvalidAlias, a.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if owner, exists := r.pendingNames[a.Name]; exists && owner == a.Address {
		return false, nil
	}

	if err := r.claimLocked(a.Address, a.Name); err != nil {
		return false, err
	}

	return true, nil
}

// Confirm binds the name to the address once its transaction is in a block.
// The alias field of a local account is updated to match. If the account
// can't be updated the binding is removed again.
func (r *Registry) Confirm(a database.Alias) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	owner, err := r.lookup(a.Name)
	switch {
	case err == nil && owner != a.Address:
		return fmt.Errorf("%w: %s owned by %s", ErrAliasAlreadyExists, a.Name, owner)
	case err != nil && !errors.Is(err, ErrAliasNotSet):
		return err
	}

	name, err := r.AliasOf(a.Address)
	switch {
	case err == nil && name != a.Name:
		return fmt.Errorf("%w: %s is %s", ErrAliasAlreadySet, a.Address, name)
	case err != nil && !errors.Is(err, ErrAliasNotSet):
		return err
	}

	batch := r.storage.NewBatch()
	batch.Put(nameKey(a.Name), a.Address[:])
	batch.Put(addressKey(a.Address), []byte(a.Name))
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("persist alias: %w", err)
	}

	if err := r.accounts.UpdateAlias(a.Address, a.Name); err != nil && !errors.Is(err, account.ErrAccountNotFound) {
		undo := r.storage.NewBatch()
		undo.Delete(nameKey(a.Name))
		undo.Delete(addressKey(a.Address))
		if uerr := undo.Commit(); uerr != nil {
			return fmt.Errorf("update account alias: %w: remove alias: %s", err, uerr)
		}
		return fmt.Errorf("update account alias: %w", err)
	}

	r.releaseLocked(a.Address, a.Name)

	r.ev("alias: Confirm: address[%s] alias[%s]", a.Address, a.Name)

	return nil
}

// Rollback unbinds the name when its block is reverted. Only the stored
// owner's binding is removed.
func (r *Registry) Rollback(a database.Alias) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.releaseLocked(a.Address, a.Name)

	owner, err := r.lookup(a.Name)
	if err != nil && !errors.Is(err, ErrAliasNotSet) {
		return err
	}
	if err != nil || owner != a.Address {
		return fmt.Errorf("%w: %s for %s", ErrAliasNotSet, a.Name, a.Address)
	}

	batch := r.storage.NewBatch()
	batch.Delete(nameKey(a.Name))
	batch.Delete(addressKey(a.Address))
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("remove alias: %w", err)
	}

	if err := r.accounts.UpdateAlias(a.Address, ""); err != nil && !errors.Is(err, account.ErrAccountNotFound) {
		return err
	}

	r.ev("alias: Rollback: address[%s] alias[%s]", a.Address, a.Name)

	return nil
}

// Release drops a pending claim whose transaction left the pool without
// being confirmed.
func (r *Registry) Release(a database.Alias) {
	r.release(a.Address, a.Name)
}

// Lookup returns the address bound to the name.
func (r *Registry) Lookup(name string) (signature.Address, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.lookup(name)
}

// AliasOf returns the name bound to the address.
func (r *Registry) AliasOf(addr signature.Address) (string, error) {
	b, err := r.storage.Get(addressKey(addr))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return "", ErrAliasNotSet
		}
		return "", err
	}

	return string(b), nil
}

// =============================================================================

func (r *Registry) claim(addr signature.Address, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.claimLocked(addr, name)
}

func (r *Registry) claimLocked(addr signature.Address, name string) error {
	if _, pending := r.pendingAddrs[addr]; pending {
		return fmt.Errorf("%w: %s has a pending alias", ErrAliasAlreadySet, addr)
	}
	taken, err := r.bound(addressKey(addr))
	if err != nil {
		return err
	}
	if taken {
		return fmt.Errorf("%w: %s", ErrAliasAlreadySet, addr)
	}

	if _, pending := r.pendingNames[name]; pending {
		return fmt.Errorf("%w: %s is pending", ErrAliasAlreadyExists, name)
	}
	taken, err = r.bound(nameKey(name))
	if err != nil {
		return err
	}
	if taken {
		return fmt.Errorf("%w: %s", ErrAliasAlreadyExists, name)
	}

	r.pendingNames[name] = addr
	r.pendingAddrs[addr] = name

	return nil
}

func (r *Registry) release(addr signature.Address, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.releaseLocked(addr, name)
}

func (r *Registry) releaseLocked(addr signature.Address, name string) {
	if owner, exists := r.pendingNames[name]; exists && owner == addr {
		delete(r.pendingNames, name)
	}
	if pending, exists := r.pendingAddrs[addr]; exists && pending == name {
		delete(r.pendingAddrs, addr)
	}
}

func (r *Registry) lookup(name string) (signature.Address, error) {
	b, err := r.storage.Get(nameKey(name))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return signature.Address{}, ErrAliasNotSet
		}
		return signature.Address{}, err
	}

	return signature.AddressFromBytes(b)
}

// bound reports whether a binding is stored under the key. A missing key is
// not an error.
func (r *Registry) bound(key []byte) (bool, error) {
	_, err := r.storage.Get(key)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, database.ErrNotFound):
		return false, nil
	}

	return false, fmt.Errorf("read alias: %w", err)
}

func nameKey(name string) []byte {
	return database.Key(prefixName, []byte(name))
}

func addressKey(addr signature.Address) []byte {
	return database.Key(prefixAddress, addr[:])
}
