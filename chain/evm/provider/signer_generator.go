package provider

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/crypto"
)

// SignerGenerator builds the *bind.TransactOpts used to sign deployer transactions.
type SignerGenerator interface {
	Generate(chainID *big.Int) (*bind.TransactOpts, error)
}

var (
	_ SignerGenerator = (*transactorFromRaw)(nil)
	_ SignerGenerator = (*transactorRandom)(nil)
)

// GeneratorOptions contains configuration options for the SignerGenerator.
type GeneratorOptions struct {
	gasLimit uint64
}

// GeneratorOption is a function that modifies GeneratorOptions.
type GeneratorOption func(*GeneratorOptions)

// WithGasLimit pins the gas limit of every transaction instead of estimating it.
func WithGasLimit(gasLimit uint64) GeneratorOption {
	return func(opts *GeneratorOptions) {
		opts.gasLimit = gasLimit
	}
}

// TransactorFromRaw returns a generator which creates a transactor from a hex encoded private
// key. A leading 0x is accepted.
func TransactorFromRaw(privKey string, opts ...GeneratorOption) SignerGenerator {
	o := &GeneratorOptions{}
	for _, opt := range opts {
		opt(o)
	}

	return &transactorFromRaw{
		privKey:  strings.TrimPrefix(strings.TrimSpace(privKey), "0x"),
		gasLimit: o.gasLimit,
	}
}

type transactorFromRaw struct {
	privKey  string
	gasLimit uint64
}

func (g *transactorFromRaw) Generate(chainID *big.Int) (*bind.TransactOpts, error) {
	if g.privKey == "" {
		return nil, errors.New("private key is empty")
	}

	privKey, err := crypto.HexToECDSA(g.privKey)
	if err != nil {
		return nil, fmt.Errorf("failed to convert private key to ECDSA: %w", err)
	}

	transactor, err := bind.NewKeyedTransactorWithChainID(privKey, chainID)
	if err != nil {
		return nil, err
	}
	if g.gasLimit > 0 {
		transactor.GasLimit = g.gasLimit
	}

	return transactor, nil
}

// TransactorRandom returns a generator backed by a random key. The key is created on the first
// call to Generate and reused afterwards. Meant for simulated chains and dry runs.
func TransactorRandom() SignerGenerator {
	return &transactorRandom{}
}

type transactorRandom struct {
	mu      sync.Mutex
	privKey *ecdsa.PrivateKey
}

func (g *transactorRandom) Generate(chainID *big.Int) (*bind.TransactOpts, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.privKey == nil {
		privKey, err := crypto.GenerateKey()
		if err != nil {
			return nil, fmt.Errorf("failed to generate random private key: %w", err)
		}
		g.privKey = privKey
	}

	return bind.NewKeyedTransactorWithChainID(g.privKey, chainID)
}
