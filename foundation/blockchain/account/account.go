// Package account maintains the directory of locally held accounts: key pair
// creation, import and export of keystores, removal, the default account and
// the alias recorded for each account.
package account

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/adamwoolhether/utxochain/foundation/blockchain/codec"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/database"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/keystore"
	"github.com/adamwoolhether/utxochain/foundation/blockchain/signature"
)

// Set of errors returned by the directory.
var (
	ErrAccountNotFound      = errors.New("account not found")
	ErrAccountAlreadyExists = errors.New("account already exists")
	ErrInvalidData          = errors.New("invalid account data")
	ErrWeakPassword         = errors.New("password must be 8 to 20 characters mixing letters and digits")
	ErrInvalidCount         = errors.New("account count must be between 1 and 100")
)

// MaxCreate is the most accounts a single Create call can make.
const MaxCreate = 100

// Storage keys.
const (
	prefixAccount = "acct:"
	keyDefault    = "meta:default"
)

// EventHandler defines a function that is called when events occur.
type EventHandler func(v string, args ...any)

// Config represents the configuration required to open the directory.
type Config struct {
	Storage   database.Storage
	KDF       signature.KDF
	EvHandler EventHandler
}

// snapshot is an immutable view of the directory. Writers publish a new one,
// readers never block.
type snapshot struct {
	accounts map[signature.Address]Account
	order    []signature.Address // Creation order.
	def      signature.Address
}

// Directory manages the locally held accounts.
type Directory struct {
	mu      sync.Mutex
	snap    atomic.Pointer[snapshot]
	last    uint64 // Latest creation time handed out.
	storage database.Storage
	kdf     signature.KDF
	ev      EventHandler
}

// New loads the accounts held in storage.
func New(cfg Config) (*Directory, error) {
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	kdf := cfg.KDF
	if kdf.N == 0 {
		kdf = signature.StandardKDF
	}

	d := Directory{
		storage: cfg.Storage,
		kdf:     kdf,
		ev:      ev,
	}

	snap := snapshot{accounts: make(map[signature.Address]Account)}

	iter := cfg.Storage.Iterate([]byte(prefixAccount))
	defer iter.Close()

	for _, value, err := iter.Next(); !iter.Done(); _, value, err = iter.Next() {
		if err != nil {
			return nil, fmt.Errorf("load accounts: %w", err)
		}

		var acct Account
		if err := codec.Parse(value, &acct); err != nil {
			return nil, fmt.Errorf("load accounts: %w", err)
		}

		snap.accounts[acct.Address] = acct
		if acct.CreatedAt > d.last {
			d.last = acct.CreatedAt
		}
	}
	snap.order = sortedAddresses(snap.accounts)

	def, err := cfg.Storage.Get([]byte(keyDefault))
	switch {
	case err == nil:
		if snap.def, err = signature.AddressFromBytes(def); err != nil {
			return nil, fmt.Errorf("load default account: %w", err)
		}
	case !errors.Is(err, database.ErrNotFound):
		return nil, fmt.Errorf("load default account: %w", err)
	}

	d.snap.Store(&snap)
	ev("account: New: loaded[%d] default[%s]", len(snap.order), snap.def)

	return &d, nil
}

// ValidatePassword checks the password strength rules.
func ValidatePassword(password string) error {
	if n := len([]rune(password)); n < 8 || n > 20 {
		return ErrWeakPassword
	}

	var letter, digit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}

	if !letter || !digit {
		return ErrWeakPassword
	}

	return nil
}

// Create makes count new accounts sealed under the password. An empty
// password leaves the accounts unencrypted. The first account becomes the
// default when there is none.
func (d *Directory) Create(count int, password string) ([]signature.Address, error) {
	if count < 1 || count > MaxCreate {
		return nil, ErrInvalidCount
	}

	if password != "" {
		if err := ValidatePassword(password); err != nil {
			return nil, err
		}
	}

	// Key generation and sealing are slow, do them before taking the lock.
	accounts := make([]Account, count)
	for i := range accounts {
		pk, err := signature.GenerateKey()
		if err != nil {
			return nil, err
		}

		acct, err := d.seal(pk, password)
		signature.ZeroKey(pk)
		if err != nil {
			return nil, err
		}

		accounts[i] = acct
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	cur := d.snap.Load()
	next := cur.clone()

	batch := d.storage.NewBatch()
	addrs := make([]signature.Address, count)
	for i := range accounts {
		accounts[i].CreatedAt = d.nextTime()
		if err := putAccount(batch, accounts[i]); err != nil {
			return nil, err
		}

		next.accounts[accounts[i].Address] = accounts[i]
		next.order = append(next.order, accounts[i].Address)
		addrs[i] = accounts[i].Address
	}

	if next.def.IsZero() {
		next.def = addrs[0]
		batch.Put([]byte(keyDefault), next.def[:])
	}

	if err := batch.Commit(); err != nil {
		return nil, fmt.Errorf("persist accounts: %w", err)
	}

	d.snap.Store(next)
	d.ev("account: Create: created[%d] default[%s]", count, next.def)

	return addrs, nil
}

// Import adds the account held by the keystore. A sealed key must open with
// the password. A plaintext key is sealed under the password.
func (d *Directory) Import(ks keystore.Keystore, password string) (Account, error) {
	if err := ks.Validate(); err != nil {
		return Account{}, fmt.Errorf("%w: %s", ErrInvalidData, err)
	}

	if d.IsMine(ks.Address) {
		return Account{}, ErrAccountAlreadyExists
	}

	var acct Account
	switch {
	case len(ks.PrivateKey) > 0:
		if password != "" {
			if err := ValidatePassword(password); err != nil {
				return Account{}, err
			}
		}

		pk, err := crypto.ToECDSA(ks.PrivateKey)
		if err != nil {
			return Account{}, fmt.Errorf("%w: %s", ErrInvalidData, err)
		}
		defer signature.ZeroKey(pk)

		if acct, err = d.seal(pk, password); err != nil {
			return Account{}, err
		}

	default:
		pk, err := signature.DecryptPrivateKey(ks.Crypto, password)
		if err != nil {
			return Account{}, err
		}
		defer signature.ZeroKey(pk)

		acct = Account{
			Address:   signature.DeriveAddress(&pk.PublicKey),
			PublicKey: signature.PublicKeyBytes(&pk.PublicKey),
			Sealed:    append([]byte(nil), ks.Crypto...),
			Encrypted: password != "",
		}
	}

	if acct.Address != ks.Address {
		return Account{}, fmt.Errorf("%w: key belongs to %s, keystore names %s", ErrInvalidData, acct.Address, ks.Address)
	}

	if len(ks.PublicKey) > 0 && string(ks.PublicKey) != string(acct.PublicKey) {
		return Account{}, fmt.Errorf("%w: public key does not match the private key", ErrInvalidData)
	}

	acct.Alias = ks.Alias

	d.mu.Lock()
	defer d.mu.Unlock()

	cur := d.snap.Load()
	if _, exists := cur.accounts[acct.Address]; exists {
		return Account{}, ErrAccountAlreadyExists
	}

	next := cur.clone()
	acct.CreatedAt = d.nextTime()

	batch := d.storage.NewBatch()
	if err := putAccount(batch, acct); err != nil {
		return Account{}, err
	}

	next.accounts[acct.Address] = acct
	next.order = append(next.order, acct.Address)

	if next.def.IsZero() {
		next.def = acct.Address
		batch.Put([]byte(keyDefault), next.def[:])
	}

	if err := batch.Commit(); err != nil {
		return Account{}, fmt.Errorf("persist account: %w", err)
	}

	d.snap.Store(next)
	d.ev("account: Import: address[%s]", acct.Address)

	return acct, nil
}

// Export returns the keystore of the account once the password opens it.
func (d *Directory) Export(addr signature.Address, password string) (keystore.Keystore, error) {
	pk, err := d.Unlock(addr, password)
	if err != nil {
		return keystore.Keystore{}, err
	}
	signature.ZeroKey(pk)

	acct, err := d.Get(addr)
	if err != nil {
		return keystore.Keystore{}, err
	}

	return acct.Keystore(), nil
}

// Remove deletes the account once the password opens it. Removing the
// default account makes the first remaining account by creation order the
// default, or clears it.
func (d *Directory) Remove(addr signature.Address, password string) error {
	pk, err := d.Unlock(addr, password)
	if err != nil {
		return err
	}
	signature.ZeroKey(pk)

	d.mu.Lock()
	defer d.mu.Unlock()

	cur := d.snap.Load()
	if _, exists := cur.accounts[addr]; !exists {
		return ErrAccountNotFound
	}

	next := cur.clone()
	delete(next.accounts, addr)
	for i, a := range next.order {
		if a == addr {
			next.order = append(next.order[:i], next.order[i+1:]...)
			break
		}
	}

	batch := d.storage.NewBatch()
	batch.Delete(accountKey(addr))

	if next.def == addr {
		switch len(next.order) {
		case 0:
			next.def = signature.Address{}
			batch.Delete([]byte(keyDefault))
		default:
			next.def = next.order[0]
			batch.Put([]byte(keyDefault), next.def[:])
		}
	}

	if err := batch.Commit(); err != nil {
		return fmt.Errorf("persist removal: %w", err)
	}

	d.snap.Store(next)
	d.ev("account: Remove: address[%s] default[%s]", addr, next.def)

	return nil
}

// UpdateAlias records the alias of the account. An empty name clears it.
func (d *Directory) UpdateAlias(addr signature.Address, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	cur := d.snap.Load()
	acct, exists := cur.accounts[addr]
	if !exists {
		return ErrAccountNotFound
	}

	acct.Alias = name

	batch := d.storage.NewBatch()
	if err := putAccount(batch, acct); err != nil {
		return err
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("persist alias: %w", err)
	}

	next := cur.clone()
	next.accounts[addr] = acct
	d.snap.Store(next)

	d.ev("account: UpdateAlias: address[%s] alias[%s]", addr, name)

	return nil
}

// Unlock opens the sealed private key. The caller owns the key and should
// wipe it with signature.ZeroKey once done.
func (d *Directory) Unlock(addr signature.Address, password string) (*ecdsa.PrivateKey, error) {
	acct, err := d.Get(addr)
	if err != nil {
		return nil, err
	}

	pk, err := signature.DecryptPrivateKey(acct.Sealed, password)
	if err != nil {
		return nil, err
	}

	if signature.DeriveAddress(&pk.PublicKey) != addr {
		signature.ZeroKey(pk)
		return nil, fmt.Errorf("%w: sealed key does not belong to %s", ErrInvalidData, addr)
	}

	return pk, nil
}

// =============================================================================

// Get returns the account for the address.
func (d *Directory) Get(addr signature.Address) (Account, error) {
	acct, exists := d.snap.Load().accounts[addr]
	if !exists {
		return Account{}, ErrAccountNotFound
	}

	return acct, nil
}

// List returns the accounts in creation order.
func (d *Directory) List() []Account {
	snap := d.snap.Load()

	accounts := make([]Account, len(snap.order))
	for i, addr := range snap.order {
		accounts[i] = snap.accounts[addr]
	}

	return accounts
}

// Addresses returns the local addresses in creation order.
func (d *Directory) Addresses() []signature.Address {
	snap := d.snap.Load()
	return append([]signature.Address(nil), snap.order...)
}

// Default returns the default account.
func (d *Directory) Default() (Account, error) {
	snap := d.snap.Load()
	if snap.def.IsZero() {
		return Account{}, ErrAccountNotFound
	}

	acct, exists := snap.accounts[snap.def]
	if !exists {
		return Account{}, ErrAccountNotFound
	}

	return acct, nil
}

// IsMine reports whether the address is held locally.
func (d *Directory) IsMine(addr signature.Address) bool {
	_, exists := d.snap.Load().accounts[addr]
	return exists
}

// IsEncrypted reports whether the account is sealed under a password.
func (d *Directory) IsEncrypted(addr signature.Address) (bool, error) {
	acct, err := d.Get(addr)
	if err != nil {
		return false, err
	}

	return acct.Encrypted, nil
}

// =============================================================================

func (d *Directory) seal(pk *ecdsa.PrivateKey, password string) (Account, error) {
	sealed, err := signature.EncryptPrivateKey(pk, password, d.kdf)
	if err != nil {
		return Account{}, err
	}

	acct := Account{
		Address:   signature.DeriveAddress(&pk.PublicKey),
		PublicKey: signature.PublicKeyBytes(&pk.PublicKey),
		Sealed:    sealed,
		Encrypted: password != "",
	}

	return acct, nil
}

// nextTime hands out strictly increasing creation times so creation order
// is total. Callers hold d.mu.
func (d *Directory) nextTime() uint64 {
	now := uint64(time.Now().UnixMilli())
	if now <= d.last {
		now = d.last + 1
	}
	d.last = now

	return now
}

func (s *snapshot) clone() *snapshot {
	next := snapshot{
		accounts: make(map[signature.Address]Account, len(s.accounts)+1),
		order:    make([]signature.Address, len(s.order), len(s.order)+1),
		def:      s.def,
	}

	for k, v := range s.accounts {
		next.accounts[k] = v
	}
	copy(next.order, s.order)

	return &next
}

func sortedAddresses(accounts map[signature.Address]Account) []signature.Address {
	order := make([]signature.Address, 0, len(accounts))
	for addr := range accounts {
		order = append(order, addr)
	}

	sort.Slice(order, func(i, j int) bool {
		a, b := accounts[order[i]], accounts[order[j]]
		if a.CreatedAt != b.CreatedAt {
			return a.CreatedAt < b.CreatedAt
		}
		return a.Address.Less(b.Address)
	})

	return order
}

func accountKey(addr signature.Address) []byte {
	return database.Key(prefixAccount, addr[:])
}

func putAccount(batch database.Batch, acct Account) error {
	b, err := codec.Serialize(&acct)
	if err != nil {
		return err
	}

	batch.Put(accountKey(acct.Address), b)
	return nil
}
