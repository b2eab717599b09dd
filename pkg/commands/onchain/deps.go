// Package onchain provides the command that runs a deploy, transfer-ownership or upgrade plan
// against the configured chains and verifies the result.
package onchain

import (
	"context"

	"github.com/ntzs/deployments/config"
	"github.com/ntzs/deployments/deployment"
	"github.com/ntzs/deployments/pkg/logger"
	"github.com/ntzs/deployments/plans"
)

// ConfigLoaderFunc loads the configuration file at path.
type ConfigLoaderFunc func(path string) (*config.Config, error)

// EnvLoaderFunc connects to the chains cfg enables and returns the clients plans act through.
// On success the returned cleanup must be called once the run is over.
type EnvLoaderFunc func(
	ctx context.Context,
	lggr logger.Logger,
	cfg config.Config,
	mode plans.Mode,
	ab deployment.AddressBook,
) (plans.Env, func(), error)

// AddressBookLoaderFunc reads the address book at path. A missing file must yield an empty
// book.
type AddressBookLoaderFunc func(path string) (*deployment.AddressBookMap, error)

// AddressBookSaverFunc writes the address book to path.
type AddressBookSaverFunc func(path string, ab deployment.AddressBook) error

// LoggerFactoryFunc builds the run logger from the log section of the configuration.
type LoggerFactoryFunc func(cfg config.LogConfig) (logger.Logger, error)

// defaultLoggerFactory builds a zap logger at the configured level.
func defaultLoggerFactory(cfg config.LogConfig) (logger.Logger, error) {
	lvl, err := logger.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	return logger.Config{Level: lvl, Console: cfg.Console}.New()
}

// Deps holds the injectable dependencies for the command.
// All fields are optional; nil values will use production defaults.
type Deps struct {
	// ConfigLoader loads the configuration file.
	// Default: config.Load, which applies environment overrides
	ConfigLoader ConfigLoaderFunc

	// EnvLoader connects to the configured chains.
	// Default: RPC chain providers for EVM and Solana
	EnvLoader EnvLoaderFunc

	// AddressBookLoader reads the address book.
	// Default: deployment.LoadAddressBook
	AddressBookLoader AddressBookLoaderFunc

	// AddressBookSaver writes the address book.
	// Default: deployment.WriteAddressBook
	AddressBookSaver AddressBookSaverFunc

	// LoggerFactory builds the logger when Config.Logger is nil.
	// Default: a zap logger at the configured level
	LoggerFactory LoggerFactoryFunc
}

// applyDefaults fills in nil dependencies with production defaults.
func (d *Deps) applyDefaults() {
	if d.ConfigLoader == nil {
		d.ConfigLoader = config.Load
	}
	if d.EnvLoader == nil {
		d.EnvLoader = defaultEnvLoader
	}
	if d.AddressBookLoader == nil {
		d.AddressBookLoader = deployment.LoadAddressBook
	}
	if d.AddressBookSaver == nil {
		d.AddressBookSaver = deployment.WriteAddressBook
	}
	if d.LoggerFactory == nil {
		d.LoggerFactory = defaultLoggerFactory
	}
}
