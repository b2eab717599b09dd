package provider

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gagliardetto/solana-go"
)

// isValidFilepath checks if the provided file path exists and is absolute.
func isValidFilepath(fp string) error {
	_, err := os.Stat(fp)
	if os.IsNotExist(err) {
		return fmt.Errorf("required file does not exist: %s", fp)
	}

	if !filepath.IsAbs(fp) {
		return fmt.Errorf("required file is not absolute: %s", fp)
	}

	return nil
}

// writePrivateKeyToPath writes the private key in the solana-keygen format, a JSON array with
// one integer per byte, so the Solana CLI can sign with it.
func writePrivateKeyToPath(keyPath string, privKey solana.PrivateKey) error {
	privKeyInts := make([]int, len(privKey))
	for i, b := range privKey {
		privKeyInts[i] = int(b)
	}

	privKeyJSON, err := json.Marshal(privKeyInts)
	if err != nil {
		return err
	}

	if err = os.WriteFile(keyPath, privKeyJSON, 0600); err != nil {
		return fmt.Errorf("failed to write keypair to file: %w", err)
	}

	return nil
}

// readPrivateKeyFromPath reads a keypair written by solana-keygen.
func readPrivateKeyFromPath(keyPath string) (solana.PrivateKey, error) {
	b, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read keypair file: %w", err)
	}

	var ints []int
	if err := json.Unmarshal(b, &ints); err != nil {
		return nil, fmt.Errorf("failed to parse keypair file %s: %w", keyPath, err)
	}

	if len(ints) != 64 {
		return nil, fmt.Errorf("keypair file %s holds %d bytes, want 64", keyPath, len(ints))
	}

	privKey := make(solana.PrivateKey, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("keypair file %s has out of range byte %d at %d", keyPath, v, i)
		}
		privKey[i] = byte(v)
	}

	if !privKey.IsValid() {
		return nil, errors.New("keypair file does not hold a valid ed25519 key")
	}

	return privKey, nil
}
