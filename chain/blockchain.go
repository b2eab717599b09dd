package chain

import (
	"context"
	"errors"
	"fmt"

	chainsel "github.com/smartcontractkit/chain-selectors"

	"github.com/ntzs/deployments/chain/evm"
	"github.com/ntzs/deployments/chain/solana"
)

var ErrUnsupportedFamily = errors.New("unsupported chain family")

var _ BlockChain = evm.Chain{}
var _ BlockChain = solana.Chain{}

// BlockChain is an interface that represents a chain the deployer can operate on.
type BlockChain interface {
	// String returns chain name and selector "<name> (<selector>)"
	String() string
	// Name returns the name of the chain
	Name() string
	ChainSelector() uint64
	Family() string
}

// Provider builds the BlockChain of one selector, dialing its node on Initialize.
type Provider interface {
	Initialize(ctx context.Context) (BlockChain, error)
	Name() string
	ChainSelector() uint64
	BlockChain() BlockChain
}

// FamilyOf returns the chain family for the selector, restricted to the families this tool
// supports.
func FamilyOf(selector uint64) (string, error) {
	family, err := chainsel.GetSelectorFamily(selector)
	if err != nil {
		return "", fmt.Errorf("chain selector %d: %w", selector, err)
	}

	switch family {
	case chainsel.FamilyEVM, chainsel.FamilySolana:
		return family, nil
	default:
		return "", fmt.Errorf("chain selector %d is %s: %w", selector, family, ErrUnsupportedFamily)
	}
}
