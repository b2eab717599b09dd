// Package upgrades deploys and administers OpenZeppelin transparent upgradeable proxies.
//
// A proxy deployment is two contracts: the implementation and a TransparentUpgradeableProxy
// (OpenZeppelin v5) pointing at it. The proxy constructor creates its own ProxyAdmin owned by
// the initial owner, whose address is kept in the ERC-1967 admin slot of the proxy.
package upgrades

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/ntzs/deployments/chain/evm"
	"github.com/ntzs/deployments/contracts"
)

var (
	// ImplementationSlot is bytes32(uint256(keccak256("eip1967.proxy.implementation")) - 1).
	ImplementationSlot = common.HexToHash("0x360894a13ba1a3210667c828492db98dca3e2076cc3735a920a3ca505d382bbc")
	// AdminSlot is bytes32(uint256(keccak256("eip1967.proxy.admin")) - 1).
	AdminSlot = common.HexToHash("0xb53127684a568b3173ae13b9f8a6016e243e63b6e8ee1178d6a717850b5d6103")
)

var ErrNoProxyAdmin = errors.New("proxy has no admin")

// ProxyDeployment is the value a DeployProxy handle resolves to.
type ProxyDeployment struct {
	Proxy          common.Address `json:"proxy" yaml:"proxy" toml:"proxy"`
	Implementation common.Address `json:"implementation" yaml:"implementation" toml:"implementation"`
}

// Client sends deployment and ownership transactions for the deployer of an EVM chain.
// Transactions are returned as handles and are not waited on, except where noted.
type Client struct {
	chain evm.Chain
}

// NewClient returns a Client for c. The chain needs a client, a deployer key and a confirm
// function.
func NewClient(c evm.Chain) (*Client, error) {
	switch {
	case c.Client == nil:
		return nil, fmt.Errorf("chain %s: client is not configured", c)
	case c.DeployerKey == nil:
		return nil, fmt.Errorf("chain %s: deployer key is not configured", c)
	case c.Confirm == nil:
		return nil, fmt.Errorf("chain %s: confirm function is not configured", c)
	}

	return &Client{chain: c}, nil
}

// Chain returns the chain the client operates on.
func (c *Client) Chain() evm.Chain { return c.chain }

func (c *Client) transactOpts(ctx context.Context) *bind.TransactOpts {
	opts := *c.chain.DeployerKey
	opts.Context = ctx

	return &opts
}

func (c *Client) bound(addr common.Address, parsed abi.ABI) *bind.BoundContract {
	return bind.NewBoundContract(addr, parsed, c.chain.Client, c.chain.Client, c.chain.Client)
}

// Deploy sends the creation transaction of art with constructor args. The handle resolves to the
// contract address.
func (c *Client) Deploy(ctx context.Context, art *contracts.Artifact, args ...any) (*evm.TxHandle, error) {
	code, err := art.Code()
	if err != nil {
		return nil, err
	}

	addr, tx, _, err := bind.DeployContract(c.transactOpts(ctx), art.ABI, code, c.chain.Client, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to deploy %s: %w", art.ContractName, err)
	}

	return evm.NewTxHandle(tx, c.chain.Confirm, addr), nil
}

// DeployProxy deploys impl, waits for it to be mined, then sends the creation transaction of
// proxy with (implementation, initialOwner, initializer calldata). An empty initializer leaves
// the calldata empty. The handle resolves to a ProxyDeployment.
func (c *Client) DeployProxy(
	ctx context.Context,
	impl, proxy *contracts.Artifact,
	initialOwner common.Address,
	initializer string,
	args ...any,
) (*evm.TxHandle, error) {
	initData := []byte{}
	if initializer != "" {
		var err error
		if initData, err = impl.PackCall(initializer, args...); err != nil {
			return nil, err
		}
	}
	proxyCode, err := proxy.Code()
	if err != nil {
		return nil, err
	}

	implHandle, err := c.Deploy(ctx, impl)
	if err != nil {
		return nil, err
	}
	v, err := implHandle.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("implementation of %s: %w", impl.ContractName, err)
	}
	implAddr, _ := v.(common.Address)

	addr, tx, _, err := bind.DeployContract(c.transactOpts(ctx), proxy.ABI, proxyCode, c.chain.Client,
		implAddr, initialOwner, initData)
	if err != nil {
		return nil, fmt.Errorf("failed to deploy proxy of %s: %w", impl.ContractName, err)
	}

	return evm.NewTxHandle(tx, c.chain.Confirm, ProxyDeployment{Proxy: addr, Implementation: implAddr}), nil
}

// UpgradeProxy points proxy at impl through the ProxyAdmin found in its admin slot, calling
// data on the new implementation when not empty. The handle resolves to impl.
func (c *Client) UpgradeProxy(ctx context.Context, proxy, impl common.Address, data []byte) (*evm.TxHandle, error) {
	admin, err := c.AdminAddress(ctx, proxy)
	if err != nil {
		return nil, err
	}
	if admin == (common.Address{}) {
		return nil, fmt.Errorf("%s: %w", proxy, ErrNoProxyAdmin)
	}
	if data == nil {
		data = []byte{}
	}

	tx, err := c.bound(admin, contracts.ProxyAdmin()).Transact(c.transactOpts(ctx), "upgradeAndCall", proxy, impl, data)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade proxy %s: %w", proxy, err)
	}

	return evm.NewTxHandle(tx, c.chain.Confirm, impl), nil
}

// TransferOwnership calls transferOwnership(newOwner) on an Ownable contract. The handle
// resolves to newOwner.
func (c *Client) TransferOwnership(ctx context.Context, contract, newOwner common.Address) (*evm.TxHandle, error) {
	tx, err := c.bound(contract, contracts.Ownable()).Transact(c.transactOpts(ctx), "transferOwnership", newOwner)
	if err != nil {
		return nil, fmt.Errorf("failed to transfer ownership of %s: %w", contract, err)
	}

	return evm.NewTxHandle(tx, c.chain.Confirm, newOwner), nil
}

// Owner reads owner() of an Ownable contract.
func (c *Client) Owner(ctx context.Context, contract common.Address) (common.Address, error) {
	var out []any
	if err := c.bound(contract, contracts.Ownable()).Call(&bind.CallOpts{Context: ctx}, &out, "owner"); err != nil {
		return common.Address{}, fmt.Errorf("failed to read owner of %s: %w", contract, err)
	}
	if len(out) != 1 {
		return common.Address{}, fmt.Errorf("owner of %s: unexpected output %v", contract, out)
	}

	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

// ImplementationAddress reads the ERC-1967 implementation slot of proxy.
func (c *Client) ImplementationAddress(ctx context.Context, proxy common.Address) (common.Address, error) {
	return c.slotAddress(ctx, proxy, ImplementationSlot)
}

// AdminAddress reads the ERC-1967 admin slot of proxy, the address of its ProxyAdmin.
func (c *Client) AdminAddress(ctx context.Context, proxy common.Address) (common.Address, error) {
	return c.slotAddress(ctx, proxy, AdminSlot)
}

func (c *Client) slotAddress(ctx context.Context, contract common.Address, slot common.Hash) (common.Address, error) {
	b, err := c.chain.Client.StorageAt(ctx, contract, slot, nil)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to read slot %s of %s: %w", slot, contract, err)
	}

	return common.BytesToAddress(b), nil
}

// HasCode reports whether code is deployed at addr.
func (c *Client) HasCode(ctx context.Context, addr common.Address) (bool, error) {
	code, err := c.chain.Client.CodeAt(ctx, addr, nil)
	if err != nil {
		return false, fmt.Errorf("failed to read code of %s: %w", addr, err)
	}

	return len(code) > 0, nil
}
