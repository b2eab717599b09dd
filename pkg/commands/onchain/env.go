package onchain

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	chainsel "github.com/smartcontractkit/chain-selectors"

	"github.com/ntzs/deployments/chain/evm"
	evmprov "github.com/ntzs/deployments/chain/evm/provider"
	solchain "github.com/ntzs/deployments/chain/solana"
	solprov "github.com/ntzs/deployments/chain/solana/provider"
	"github.com/ntzs/deployments/config"
	"github.com/ntzs/deployments/contracts/upgrades"
	"github.com/ntzs/deployments/deployment"
	"github.com/ntzs/deployments/explorer"
	"github.com/ntzs/deployments/operations"
	"github.com/ntzs/deployments/pkg/logger"
	"github.com/ntzs/deployments/plans"
)

// defaultEnvLoader dials the RPC of every enabled chain and builds the explorer client when
// source verification is enabled. The returned cleanup removes what the loader wrote to disk.
func defaultEnvLoader(
	ctx context.Context, lggr logger.Logger, cfg config.Config, mode plans.Mode, ab deployment.AddressBook,
) (plans.Env, func(), error) {
	env := plans.Env{AddressBook: ab}

	if cfg.EVM.Enabled() {
		client, err := loadEVM(ctx, lggr, cfg.EVM)
		if err != nil {
			return plans.Env{}, nil, err
		}
		env.EVM = client

		if cfg.EVM.Explorer.Enabled {
			if env.Explorer, err = loadExplorer(cfg.EVM); err != nil {
				return plans.Env{}, nil, err
			}
		}
	}

	cleanup := func() {}
	if cfg.Solana.Enabled() {
		c, done, err := loadSolana(ctx, lggr, cfg.Solana, mode)
		if err != nil {
			return plans.Env{}, nil, err
		}
		env.Solana = c
		cleanup = done
	}

	return env, cleanup, nil
}

func loadEVM(ctx context.Context, lggr logger.Logger, cfg config.EVMConfig) (*upgrades.Client, error) {
	if cfg.DeployerKey == "" {
		return nil, operations.NewConfigurationError("evm.deployer_key", "is required")
	}

	var opts []evmprov.GeneratorOption
	if cfg.GasLimit > 0 {
		opts = append(opts, evmprov.WithGasLimit(cfg.GasLimit))
	}

	p := evmprov.NewRPCChainProvider(cfg.ChainSelector, evmprov.RPCChainProviderConfig{
		DeployerTransactorGen: evmprov.TransactorFromRaw(cfg.DeployerKey, opts...),
		RPCURL:                cfg.RPCURL,
		ConfirmFunctor:        evmprov.ConfirmFuncGeth(cfg.ConfirmTimeout),
		Logger:                lggr,
	})

	bc, err := p.Initialize(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize evm chain: %w", err)
	}

	c, ok := bc.(evm.Chain)
	if !ok {
		return nil, fmt.Errorf("evm provider returned %T", bc)
	}

	return upgrades.NewClient(c)
}

func loadExplorer(cfg config.EVMConfig) (*explorer.Client, error) {
	id, err := chainsel.GetChainIDFromSelector(cfg.ChainSelector)
	if err != nil {
		return nil, operations.NewConfigurationError("evm.chain_selector", "%v", err)
	}

	chainID, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return nil, operations.NewConfigurationError("evm.chain_selector", "chain id %q is not numeric", id)
	}

	c, err := explorer.NewClient(cfg.Explorer.BaseURL, cfg.Explorer.APIKey, chainID)
	if err != nil {
		return nil, operations.NewConfigurationError("evm.explorer", "%v", err)
	}

	return c, nil
}

// loadSolana connects to the Solana RPC. Upgrades run the solana CLI, which signs with a
// keypair file; when the key came from the environment it is written to a temporary directory
// that the returned cleanup removes.
func loadSolana(
	ctx context.Context, lggr logger.Logger, cfg config.SolanaConfig, mode plans.Mode,
) (*solchain.Chain, func(), error) {
	keypairPath, err := expandHome(cfg.KeypairPath)
	if err != nil {
		return nil, nil, err
	}

	var keyGen solprov.PrivateKeyGenerator
	switch {
	case cfg.WalletKey != "":
		keyGen = solprov.PrivateKeyFromRaw(cfg.WalletKey)
	case keypairPath != "":
		keyGen = solprov.PrivateKeyFromFile(keypairPath)
	default:
		return nil, nil, operations.NewConfigurationError("solana.wallet_key", "is required, set solana.wallet_key or solana.keypair_path")
	}

	pcfg := solprov.RPCChainProviderConfig{
		HTTPURL:        cfg.RPCURL,
		DeployerKeyGen: keyGen,
		Logger:         lggr,
	}

	cleanup := func() {}
	if mode == plans.ModeUpgrade && cfg.ProgramsDir != "" {
		if pcfg.ProgramsPath, err = filepath.Abs(cfg.ProgramsDir); err != nil {
			return nil, nil, operations.NewConfigurationError("solana.programs_dir", "%v", err)
		}
		if keypairPath == "" {
			var dir string
			if dir, err = os.MkdirTemp("", "ntzs-deploy-"); err != nil {
				return nil, nil, fmt.Errorf("failed to create keypair directory: %w", err)
			}
			pcfg.KeypairDirPath = dir
			cleanup = func() {
				if rerr := os.RemoveAll(dir); rerr != nil {
					lggr.Warnw("Failed to remove keypair directory", "dir", dir, "error", rerr)
				}
			}
		}
	}

	bc, err := solprov.NewRPCChainProvider(cfg.ChainSelector, pcfg).Initialize(ctx)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to initialize solana chain: %w", err)
	}

	c, ok := bc.(solchain.Chain)
	if !ok {
		cleanup()
		return nil, nil, fmt.Errorf("solana provider returned %T", bc)
	}
	if keypairPath != "" {
		c.KeypairPath = keypairPath
	}
	c.CLIPath = cfg.CLIPath

	return &c, cleanup, nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to expand %s: %w", path, err)
	}

	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
