package evm

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/ntzs/deployments/chain/internal"
)

// ConfirmFunc waits for the transaction to be mined and returns the block number it was
// included in. A reverted transaction is reported as an error. The wait is bounded by ctx.
type ConfirmFunc func(ctx context.Context, tx *types.Transaction) (uint64, error)

// OnchainClient is an EVM chain client.
// For EVM specifically we can use existing geth interface to abstract chain clients.
type OnchainClient interface {
	bind.ContractBackend
	bind.DeployBackend

	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
	StorageAt(ctx context.Context, account common.Address, key common.Hash, blockNumber *big.Int) ([]byte, error)
}

// Chain represents an EVM chain.
type Chain struct {
	Selector uint64

	Client OnchainClient
	// DeployerKey signs every transaction the deployer sends.
	DeployerKey *bind.TransactOpts
	Confirm     ConfirmFunc
}

// ChainSelector returns the chain selector of the chain
func (c Chain) ChainSelector() uint64 {
	return c.Selector
}

// String returns chain name and selector "<name> (<selector>)"
func (c Chain) String() string {
	return internal.ChainBase{Selector: c.Selector}.String()
}

// Name returns the name of the chain
func (c Chain) Name() string {
	return internal.ChainBase{Selector: c.Selector}.Name()
}

// Family returns the family of the chain
func (c Chain) Family() string {
	return internal.ChainBase{Selector: c.Selector}.Family()
}

// DeployerAddress returns the account of the deployer key, or the zero address when no key is
// configured.
func (c Chain) DeployerAddress() common.Address {
	if c.DeployerKey == nil {
		return common.Address{}
	}

	return c.DeployerKey.From
}
