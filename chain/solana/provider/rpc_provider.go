package provider

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	solrpc "github.com/gagliardetto/solana-go/rpc"

	"github.com/ntzs/deployments/chain"
	"github.com/ntzs/deployments/chain/solana"
	"github.com/ntzs/deployments/chain/solana/provider/rpcclient"
	"github.com/ntzs/deployments/pkg/logger"
)

// RPCChainProviderConfig holds the configuration to initialize the RPCChainProvider.
type RPCChainProviderConfig struct {
	// Required: The HTTP RPC URL to connect to the Solana node
	HTTPURL string
	// Required: A generator for the deployer key. Use PrivateKeyFromRaw or PrivateKeyFromFile.
	DeployerKeyGen PrivateKeyGenerator
	// Optional: The absolute path to the directory containing compiled programs. Only needed
	// for program upgrades.
	ProgramsPath string
	// Optional: The absolute path to a directory the deployer keypair is written to for the
	// Solana CLI. Only needed for program upgrades.
	KeypairDirPath string
	// Optional: Logger is the logger to use. Defaults to a production logger.
	Logger logger.Logger
}

func (c RPCChainProviderConfig) validate() error {
	if c.HTTPURL == "" {
		return errors.New("http url is required")
	}
	if c.DeployerKeyGen == nil {
		return errors.New("deployer key generator is required")
	}

	if c.ProgramsPath != "" {
		if err := isValidFilepath(c.ProgramsPath); err != nil {
			return err
		}
	}

	if c.KeypairDirPath != "" {
		if err := isValidFilepath(c.KeypairDirPath); err != nil {
			return err
		}
	}

	return nil
}

var _ chain.Provider = (*RPCChainProvider)(nil)

// RPCChainProvider provides a Solana chain connected to a node via RPC.
type RPCChainProvider struct {
	selector uint64
	config   RPCChainProviderConfig

	chain *solana.Chain
}

// NewRPCChainProvider creates a new RPCChainProvider with the given selector and configuration.
func NewRPCChainProvider(selector uint64, config RPCChainProviderConfig) *RPCChainProvider {
	return &RPCChainProvider{
		selector: selector,
		config:   config,
	}
}

// Initialize loads the deployer key, checks the node is reachable and then writes the key to
// KeypairDirPath when one is configured.
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

	privKey, err := p.config.DeployerKeyGen.Generate()
	if err != nil {
		return nil, fmt.Errorf("failed to generate deployer keypair: %w", err)
	}

	client := rpcclient.New(solrpc.New(p.config.HTTPURL), privKey)

	if _, err := client.GetHealth(ctx); err != nil {
		return nil, fmt.Errorf("solana rpc %s is not healthy: %w", p.config.HTTPURL, err)
	}

	// The key only reaches disk once the node is known to be reachable.
	var keypairPath string
	if p.config.KeypairDirPath != "" {
		keypairPath = filepath.Join(p.config.KeypairDirPath, "authority-keypair.json")
		if err := writePrivateKeyToPath(keypairPath, privKey); err != nil {
			return nil, fmt.Errorf("failed to write deployer keypair to file: %w", err)
		}
	}

	p.config.Logger.Infow("connected to solana chain",
		"selector", p.selector, "deployer", privKey.PublicKey().String(),
	)

	p.chain = &solana.Chain{
		Selector:     p.selector,
		Client:       client,
		URL:          p.config.HTTPURL,
		DeployerKey:  &privKey,
		ProgramsPath: p.config.ProgramsPath,
		KeypairPath:  keypairPath,
	}

	return *p.chain, nil
}

// Name returns the name of the RPCChainProvider.
func (*RPCChainProvider) Name() string {
	return "Solana RPC Chain Provider"
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
