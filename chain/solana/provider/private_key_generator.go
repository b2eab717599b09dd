package provider

import (
	"fmt"
	"strings"

	sollib "github.com/gagliardetto/solana-go"
)

// PrivateKeyGenerator is an interface for generating Solana Keypairs.
type PrivateKeyGenerator interface {
	// Generate returns the private key of the keypair.
	Generate() (sollib.PrivateKey, error)
}

var (
	_ PrivateKeyGenerator = (*privateKeyFromRaw)(nil)
	_ PrivateKeyGenerator = (*privateKeyFromFile)(nil)
	_ PrivateKeyGenerator = (*privateKeyRandom)(nil)
)

// PrivateKeyFromRaw creates a generator for a base58 encoded private key.
func PrivateKeyFromRaw(privateKey string) *privateKeyFromRaw {
	return &privateKeyFromRaw{
		PrivateKey: strings.TrimSpace(privateKey),
	}
}

type privateKeyFromRaw struct {
	// PrivateKey is the base58 encoded private key used to generate the Solana keypair.
	PrivateKey string
}

func (g *privateKeyFromRaw) Generate() (sollib.PrivateKey, error) {
	privKey, err := sollib.PrivateKeyFromBase58(g.PrivateKey)
	if err != nil {
		return sollib.PrivateKey{}, fmt.Errorf("failed to parse private key: %w", err)
	}

	return privKey, nil
}

// PrivateKeyFromFile creates a generator that reads a solana-keygen JSON keypair file, the
// format Anchor wallets and mint keypairs are stored in.
func PrivateKeyFromFile(path string) *privateKeyFromFile {
	return &privateKeyFromFile{Path: path}
}

type privateKeyFromFile struct {
	Path string
}

func (g *privateKeyFromFile) Generate() (sollib.PrivateKey, error) {
	privKey, err := readPrivateKeyFromPath(g.Path)
	if err != nil {
		return sollib.PrivateKey{}, fmt.Errorf("failed to load private key: %w", err)
	}

	return privKey, nil
}

// PrivateKeyRandom creates a new instance of the privateKeyRandom generator.
func PrivateKeyRandom() *privateKeyRandom {
	return &privateKeyRandom{}
}

type privateKeyRandom struct{}

func (g *privateKeyRandom) Generate() (sollib.PrivateKey, error) {
	privKey, err := sollib.NewRandomPrivateKey()
	if err != nil {
		return sollib.PrivateKey{}, fmt.Errorf("failed to generate random private key: %w", err)
	}

	return privKey, nil
}
