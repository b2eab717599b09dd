package provider

import (
	"context"
	"fmt"
	"maps"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/ethereum/go-ethereum/params"
	"github.com/stretchr/testify/require"

	"github.com/ntzs/deployments/chain"
	"github.com/ntzs/deployments/chain/evm"
)

var (
	// simChainID is the chain ID of every simulated backend.
	simChainID = params.AllDevChainProtocolChanges.ChainID
	// prefundAmountWei is 1,000,000 ether.
	prefundAmountWei = new(big.Int).Mul(big.NewInt(1_000_000), big.NewInt(params.Ether))
)

// SimChainProviderConfig holds the configuration to initialize the SimChainProvider.
type SimChainProviderConfig struct {
	// Optional: BlockTime configures the time between blocks being committed. By default, this is
	// set to 0s, meaning that blocks are only produced when a transaction is confirmed.
	BlockTime time.Duration
	// Optional: Alloc adds genesis accounts, e.g. contracts with preset code and storage. The
	// deployer is always prefunded.
	Alloc types.GenesisAlloc
}

var _ chain.Provider = (*SimChainProvider)(nil)

// SimChainProvider manages an in memory EVM chain backed by go-ethereum's simulated backend.
// Used by tests that exercise real transactions end to end.
type SimChainProvider struct {
	t        *testing.T
	selector uint64
	config   SimChainProviderConfig

	chain *evm.Chain
}

// NewSimChainProvider creates a new SimChainProvider with the given selector and configuration.
func NewSimChainProvider(t *testing.T, selector uint64, config SimChainProviderConfig) *SimChainProvider {
	t.Helper()

	return &SimChainProvider{
		t:        t,
		selector: selector,
		config:   config,
	}
}

// Initialize creates a prefunded deployer and the simulated backend. Confirm commits a block
// before waiting so that transactions never sit in the pool.
func (p *SimChainProvider) Initialize(_ context.Context) (chain.BlockChain, error) {
	if p.chain != nil {
		return *p.chain, nil // Already initialized
	}

	key, err := crypto.GenerateKey()
	require.NoError(p.t, err, "failed to generate deployer key")

	deployer, err := bind.NewKeyedTransactorWithChainID(key, simChainID)
	require.NoError(p.t, err)

	alloc := types.GenesisAlloc{
		deployer.From: {Balance: prefundAmountWei},
	}
	maps.Copy(alloc, p.config.Alloc)

	backend := simulated.NewBackend(alloc, simulated.WithBlockGasLimit(50000000))
	backend.Commit()

	client := newSimClient(backend)
	if p.config.BlockTime > 0 {
		startAutoMine(p.t, client, p.config.BlockTime)
	}

	selector := p.selector

	p.chain = &evm.Chain{
		Selector:    selector,
		Client:      client,
		DeployerKey: deployer,
		Confirm: func(ctx context.Context, tx *types.Transaction) (uint64, error) {
			if tx == nil {
				return 0, fmt.Errorf("tx was nil, nothing to confirm for selector: %d", selector)
			}

			client.Commit()

			receipt, err := bind.WaitMined(ctx, client, tx)
			if err != nil {
				return 0, fmt.Errorf("tx %s failed to confirm for selector %d: %w",
					tx.Hash().Hex(), selector, err,
				)
			}

			return checkReceipt(ctx, selector, client, deployer.From, tx, receipt)
		},
	}

	return *p.chain, nil
}

// Name returns the name of the SimChainProvider.
func (*SimChainProvider) Name() string {
	return "Simulated EVM Chain Provider"
}

// ChainSelector returns the chain selector of the simulated chain managed by this provider.
func (p *SimChainProvider) ChainSelector() uint64 {
	return p.selector
}

// BlockChain returns the simulated chain instance managed by this provider. You must call Initialize
// before using this method to ensure the chain is properly set up.
func (p *SimChainProvider) BlockChain() chain.BlockChain {
	return *p.chain
}

// startAutoMine commits a block every blockTime until the test ends.
func startAutoMine(t *testing.T, client *simClient, blockTime time.Duration) {
	t.Helper()

	ctx := t.Context()
	ticker := time.NewTicker(blockTime)
	go func() {
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				client.Commit()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// simClient is the simulated backend's client with Commit exposed. Commits are serialized so
// auto mining and Confirm never seal blocks concurrently.
type simClient struct {
	simulated.Client

	mu      sync.Mutex
	backend *simulated.Backend
}

func newSimClient(backend *simulated.Backend) *simClient {
	return &simClient{Client: backend.Client(), backend: backend}
}

// Commit seals a block with all pending transactions.
func (c *simClient) Commit() common.Hash {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.backend.Commit()
}
