package deployment

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// LoadAddressBook reads an address book file. A missing file yields an empty book so a first
// deployment can create it.
func LoadAddressBook(path string) (*AddressBookMap, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return NewMemoryAddressBook(), nil
		}

		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	addressesByChain := make(map[uint64]map[string]TypeAndVersion)
	if err = json.Unmarshal(b, &addressesByChain); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON for address book from path %s: %w", path, err)
	}

	ab, err := NewMemoryAddressBookFromMap(addressesByChain)
	if err != nil {
		return nil, fmt.Errorf("address book %s: %w", path, err)
	}

	return ab, nil
}

// WriteAddressBook writes ab to path as indented JSON, creating parent directories.
func WriteAddressBook(path string, ab AddressBook) error {
	addresses, err := ab.Addresses()
	if err != nil {
		return err
	}

	b, err := json.MarshalIndent(addresses, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal address book: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	return os.WriteFile(path, append(b, '\n'), 0o600)
}
