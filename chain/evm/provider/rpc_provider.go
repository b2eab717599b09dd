package provider

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/ethclient"
	chainsel "github.com/smartcontractkit/chain-selectors"

	"github.com/ntzs/deployments/chain"
	"github.com/ntzs/deployments/chain/evm"
	"github.com/ntzs/deployments/pkg/logger"
)

// RPCChainProviderConfig holds the configuration to initialize the RPCChainProvider.
type RPCChainProviderConfig struct {
	// Required: A generator for the deployer key. Use TransactorFromRaw to create a deployer
	// key from a private key.
	DeployerTransactorGen SignerGenerator
	// Required: The HTTP or WS endpoint of the node.
	RPCURL string
	// Required: ConfirmFunctor generates the confirmation function for transactions. If in
	// doubt, use ConfirmFuncGeth.
	ConfirmFunctor ConfirmFunctor
	// Optional: Logger is the logger to use for the RPCChainProvider. If not provided, a default
	// logger will be used.
	Logger logger.Logger
}

func (c RPCChainProviderConfig) validate() error {
	if c.DeployerTransactorGen == nil {
		return errors.New("deployer transactor generator is required")
	}
	if c.ConfirmFunctor == nil {
		return errors.New("confirm functor is required")
	}
	if c.RPCURL == "" {
		return errors.New("rpc url is required")
	}

	return nil
}

var _ chain.Provider = (*RPCChainProvider)(nil)

// RPCChainProvider provides an evm.Chain connected to a node over JSON-RPC.
type RPCChainProvider struct {
	selector uint64
	config   RPCChainProviderConfig

	chain *evm.Chain
}

// NewRPCChainProvider creates a new RPCChainProvider with the given selector and configuration.
func NewRPCChainProvider(selector uint64, config RPCChainProviderConfig) *RPCChainProvider {
	return &RPCChainProvider{
		selector: selector,
		config:   config,
	}
}

// Initialize dials the node and builds the chain. The node must report the chain ID that the
// selector maps to, which guards against pointing a mainnet config at a testnet RPC and vice
// versa.
func (p *RPCChainProvider) Initialize(ctx context.Context) (chain.BlockChain, error) {
	if p.chain != nil {
		return *p.chain, nil // Already initialized
	}

	if p.config.Logger == nil {
		lggr, err := logger.New()
		if err != nil {
			return nil, fmt.Errorf("failed to create default logger: %w", err)
		}
		p.config.Logger = lggr
	}

	if err := p.config.validate(); err != nil {
		return nil, fmt.Errorf("failed to validate provider config: %w", err)
	}

	chainID, err := chainIDFromSelector(p.selector)
	if err != nil {
		return nil, err
	}

	deployerKey, err := p.config.DeployerTransactorGen.Generate(chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate deployer key: %w", err)
	}

	client, err := ethclient.DialContext(ctx, p.config.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rpc for selector %d: %w", p.selector, err)
	}

	remoteID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to fetch chain id for selector %d: %w", p.selector, err)
	}
	if remoteID.Cmp(chainID) != 0 {
		client.Close()
		return nil, fmt.Errorf("rpc reports chain id %s, selector %d expects %s", remoteID, p.selector, chainID)
	}

	confirmFunc, err := p.config.ConfirmFunctor.Generate(p.selector, client, deployerKey.From)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to generate confirm function: %w", err)
	}

	p.config.Logger.Infow("connected to evm chain",
		"selector", p.selector, "chainID", chainID.String(), "deployer", deployerKey.From.Hex(),
	)

	p.chain = &evm.Chain{
		Selector:    p.selector,
		Client:      client,
		DeployerKey: deployerKey,
		Confirm:     confirmFunc,
	}

	return *p.chain, nil
}

// Name returns the name of the RPCChainProvider.
func (*RPCChainProvider) Name() string {
	return "EVM RPC Chain Provider"
}

// ChainSelector returns the chain selector of the chain managed by this provider.
func (p *RPCChainProvider) ChainSelector() uint64 {
	return p.selector
}

// BlockChain returns the chain instance managed by this provider. You must call Initialize
// before using this method to ensure the chain is properly set up.
func (p *RPCChainProvider) BlockChain() chain.BlockChain {
	return *p.chain
}

func chainIDFromSelector(selector uint64) (*big.Int, error) {
	chainIDStr, err := chainsel.GetChainIDFromSelector(selector)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain ID from selector %d: %w", selector, err)
	}

	chainID, ok := new(big.Int).SetString(chainIDStr, 10)
	if !ok {
		return nil, fmt.Errorf("failed to convert chain ID %s to big.Int", chainIDStr)
	}

	return chainID, nil
}
