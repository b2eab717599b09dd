// Package config loads the deployer configuration: the chains to talk to, the artifacts to deploy,
// the addresses to operate on and the run options.
package config

import (
	"slices"
	"time"

	"github.com/spf13/viper"
)

// ExplorerConfig is the configuration for source verification on an Etherscan compatible
// explorer.
//
// WARNING: This data type contains sensitive fields and should not be logged.
type ExplorerConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url"` // Defaults to the Etherscan v2 API
	APIKey  string `mapstructure:"api_key" yaml:"api_key"`   // Secret: The explorer API key
}

// EVMArtifacts are the paths to the Hardhat artifacts of the contracts the deployer sends.
type EVMArtifacts struct {
	Admin     string `mapstructure:"admin" yaml:"admin"`
	Forwarder string `mapstructure:"forwarder" yaml:"forwarder"`
	Token     string `mapstructure:"token" yaml:"token"`
	Proxy     string `mapstructure:"proxy" yaml:"proxy"` // TransparentUpgradeableProxy
}

// EVMContracts are the addresses of already deployed contracts, used by transfer-ownership and
// upgrade. Empty entries are looked up in the address book.
type EVMContracts struct {
	Admin     string `mapstructure:"admin" yaml:"admin"`         // Admin proxy
	Forwarder string `mapstructure:"forwarder" yaml:"forwarder"` // Forwarder
	Token     string `mapstructure:"token" yaml:"token"`         // nTZS proxy
}

// EVMConfig is the configuration for the EVM chain.
//
// WARNING: This data type contains sensitive fields and should not be logged.
type EVMConfig struct {
	RPCURL         string        `mapstructure:"rpc_url" yaml:"rpc_url"`
	ChainSelector  uint64        `mapstructure:"chain_selector" yaml:"chain_selector"`
	DeployerKey    string        `mapstructure:"deployer_key" yaml:"deployer_key"` // Secret: The private key of the deployer account.
	GasLimit       uint64        `mapstructure:"gas_limit" yaml:"gas_limit"`
	ConfirmTimeout time.Duration `mapstructure:"confirm_timeout" yaml:"confirm_timeout"`

	Artifacts EVMArtifacts `mapstructure:"artifacts" yaml:"artifacts"`
	Contracts EVMContracts `mapstructure:"contracts" yaml:"contracts"`

	NewOwner           string `mapstructure:"new_owner" yaml:"new_owner"`
	NewProxyAdminOwner string `mapstructure:"new_proxy_admin_owner" yaml:"new_proxy_admin_owner"`
	// SharedProxyAdmin declares that the Admin and nTZS proxies share one ProxyAdmin, so it is
	// transferred once after checking both admin slots agree.
	SharedProxyAdmin bool `mapstructure:"shared_proxy_admin" yaml:"shared_proxy_admin"`

	Explorer ExplorerConfig `mapstructure:"explorer" yaml:"explorer"`
}

// Enabled reports whether an EVM chain is configured.
func (c EVMConfig) Enabled() bool { return c.RPCURL != "" }

// MetadataConfig is the Metaplex metadata of the token mint.
type MetadataConfig struct {
	Name   string `mapstructure:"name" yaml:"name"`
	Symbol string `mapstructure:"symbol" yaml:"symbol"`
	URI    string `mapstructure:"uri" yaml:"uri"`
	// UpdateExisting updates the metadata account instead of creating it.
	UpdateExisting bool `mapstructure:"update_existing" yaml:"update_existing"`
}

// ProgramConfig names the program to upgrade.
type ProgramConfig struct {
	Name string `mapstructure:"name" yaml:"name"` // <programs_dir>/<name>.so
	ID   string `mapstructure:"id" yaml:"id"`
}

// SolanaConfig is the configuration for the Solana chain.
//
// WARNING: This data type contains sensitive fields and should not be logged.
type SolanaConfig struct {
	RPCURL        string `mapstructure:"rpc_url" yaml:"rpc_url"`
	ChainSelector uint64 `mapstructure:"chain_selector" yaml:"chain_selector"`
	WalletKey     string `mapstructure:"wallet_key" yaml:"wallet_key"`     // Secret: The private key of the wallet account.
	KeypairPath   string `mapstructure:"keypair_path" yaml:"keypair_path"` // solana-keygen file, used when wallet_key is empty and by the solana CLI

	// The mint is either given by address or read from the mint keypair file.
	Mint            string `mapstructure:"mint" yaml:"mint"`
	MintKeypairPath string `mapstructure:"mint_keypair_path" yaml:"mint_keypair_path"`

	Metadata     MetadataConfig `mapstructure:"metadata" yaml:"metadata"`
	NewAuthority string         `mapstructure:"new_authority" yaml:"new_authority"`

	ProgramsDir string        `mapstructure:"programs_dir" yaml:"programs_dir"`
	Program     ProgramConfig `mapstructure:"program" yaml:"program"`
	CLIPath     string        `mapstructure:"cli_path" yaml:"cli_path"`
}

// Enabled reports whether a Solana chain is configured.
func (c SolanaConfig) Enabled() bool { return c.RPCURL != "" }

// RetryConfig enables retrying failed steps.
type RetryConfig struct {
	Enabled  bool          `mapstructure:"enabled" yaml:"enabled"`
	Attempts uint          `mapstructure:"attempts" yaml:"attempts"`
	Delay    time.Duration `mapstructure:"delay" yaml:"delay"`
}

// LogConfig configures the runtime logger.
type LogConfig struct {
	Level   string `mapstructure:"level" yaml:"level"`
	Console bool   `mapstructure:"console" yaml:"console"`
}

// Config wraps the entire configuration of a run. It is read once and never changed during a
// run.
type Config struct {
	StepTimeout time.Duration `mapstructure:"step_timeout" yaml:"step_timeout"`
	Retry       RetryConfig   `mapstructure:"retry" yaml:"retry"`
	Log         LogConfig     `mapstructure:"log" yaml:"log"`
	// AddressBook is the address book file new deployments are recorded in.
	AddressBook string `mapstructure:"address_book" yaml:"address_book"`

	EVM    EVMConfig    `mapstructure:"evm" yaml:"evm"`
	Solana SolanaConfig `mapstructure:"solana" yaml:"solana"`
}

var defaults = map[string]any{
	"step_timeout":        "10m",
	"retry.attempts":      3,
	"retry.delay":         "2s",
	"log.level":           "info",
	"evm.confirm_timeout": "5m",
}

// Load loads the config from the file path. Any of the environment variables in envBindings
// that are set override the values loaded from the file.
func Load(filePath string) (*Config, error) {
	v := newViper()

	if err := bindEnvs(v); err != nil {
		return nil, err
	}

	return read(v, filePath)
}

func newViper() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	return v
}

func read(v *viper.Viper, filePath string) (*Config, error) {
	v.SetConfigFile(filePath)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	err := v.Unmarshal(cfg)

	return cfg, err
}

var (
	// envBindings maps config keys to the environment variables that can provide them. The first
	// name is preferred; later ones are legacy names kept for existing deploy scripts.
	envBindings = map[string][]string{
		"evm.rpc_url":          {"ONCHAIN_EVM_RPC_URL"},
		"evm.deployer_key":     {"ONCHAIN_EVM_DEPLOYER_KEY", "DEPLOYER_PRIVATE_KEY"},
		"evm.explorer.api_key": {"EXPLORER_API_KEY", "ETHERSCAN_API_KEY"},
		"solana.rpc_url":       {"ONCHAIN_SOLANA_RPC_URL"},
		"solana.wallet_key":    {"ONCHAIN_SOLANA_WALLET_KEY", "SOLANA_WALLET_KEY"},
		"solana.keypair_path":  {"ONCHAIN_SOLANA_KEYPAIR_PATH", "ANCHOR_WALLET"},
		"solana.programs_dir":  {"ONCHAIN_SOLANA_PROGRAMS_DIR_PATH", "SOLANA_PROGRAM_PATH"},
	}
)

// bindEnvs binds the environment variables to the viper instance.
func bindEnvs(v *viper.Viper) error {
	for key, envs := range envBindings {
		inputs := slices.Insert(slices.Clone(envs), 0, key)

		if err := v.BindEnv(inputs...); err != nil {
			return err
		}
	}

	return nil
}
