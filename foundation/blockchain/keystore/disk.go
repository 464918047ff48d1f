package keystore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/adamwoolhether/utxochain/foundation/blockchain/signature"
)

// fileExt names every keystore file.
const fileExt = ".keystore.json"

// Disk represents the storage implementation for reading and storing
// keystores in their own separate files on disk.
type Disk struct {
	dir string
}

// NewDisk constructs a Disk value for use, creating the directory.
func NewDisk(dir string) (*Disk, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	return &Disk{dir: dir}, nil
}

// Write stores the keystore in a file labeled with its address.
func (d *Disk) Write(ks Keystore) (string, error) {
	if err := ks.Validate(); err != nil {
		return "", err
	}

	// Marshal the keystore in a human readable format.
	data, err := ks.Marshal()
	if err != nil {
		return "", err
	}

	path := d.Path(ks.Address)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", err
	}

	return path, nil
}

// Read loads the keystore for the specified address.
func (d *Disk) Read(addr signature.Address) (Keystore, error) {
	return ReadFile(d.Path(addr))
}

// Remove deletes the keystore for the specified address.
func (d *Disk) Remove(addr signature.Address) error {
	err := os.Remove(d.Path(addr))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}

	return err
}

// Path forms the path to the keystore of the specified address.
func (d *Disk) Path(addr signature.Address) string {
	return filepath.Join(d.dir, addr.String()+fileExt)
}

// ForEach returns an iterator to walk through all the keystores in the
// directory ordered by file name.
func (d *Disk) ForEach() (*Iterator, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileExt) {
			continue
		}
		paths = append(paths, filepath.Join(d.dir, e.Name()))
	}
	sort.Strings(paths)

	return &Iterator{paths: paths}, nil
}

// ReadFile loads a keystore from any path.
func ReadFile(path string) (Keystore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Keystore{}, err
	}

	ks, err := Unmarshal(data)
	if err != nil {
		return Keystore{}, fmt.Errorf("%s: %w", path, err)
	}

	return ks, nil
}

// =============================================================================

// Iterator represents the iteration implementation for walking through and
// reading keystores on disk.
type Iterator struct {
	paths   []string // Keystore files found when the iterator was made.
	current int      // Index of the next file to read.
	eod     bool     // Represents the iterator is at the end of the directory.
}

// Next reads the next keystore from disk.
func (it *Iterator) Next() (Keystore, error) {
	if it.current >= len(it.paths) {
		it.eod = true
		return Keystore{}, nil
	}

	path := it.paths[it.current]
	it.current++

	return ReadFile(path)
}

// Done returns the end of directory value.
func (it *Iterator) Done() bool {
	return it.eod
}
