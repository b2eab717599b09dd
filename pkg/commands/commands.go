// Package commands provides the CLI commands of the nTZS deployer.
//
// There are two ways to use commands from this package:
//
// 1. Via the Commands factory (recommended for most use cases):
//
//	cmds := commands.New(lggr)
//	root, err := cmds.Onchain(onchain.Deps{})
//
// 2. Via direct package imports (for advanced DI/testing):
//
//	import "github.com/ntzs/deployments/pkg/commands/onchain"
//
//	root, err := onchain.NewCommand(onchain.Config{
//	    Logger: lggr,
//	    Deps:   onchain.Deps{...}, // inject fakes for testing
//	})
package commands

import (
	"github.com/spf13/cobra"

	"github.com/ntzs/deployments/pkg/commands/onchain"
	"github.com/ntzs/deployments/pkg/logger"
)

// Commands provides a factory for creating CLI commands with shared configuration.
type Commands struct {
	lggr logger.Logger
}

// New creates a new Commands factory with the given logger. A nil logger lets each run build
// its own from the log section of its configuration file.
func New(lggr logger.Logger) *Commands {
	return &Commands{lggr: lggr}
}

// Onchain creates the ntzs-deploy root command with its plan subcommand.
//
// Usage:
//
//	root, err := commands.New(nil).Onchain(onchain.Deps{})
//	if err != nil {
//	    return err
//	}
//	return root.ExecuteContext(ctx)
func (c *Commands) Onchain(deps onchain.Deps) (*cobra.Command, error) {
	return onchain.NewCommand(onchain.Config{
		Logger: c.lggr,
		Deps:   deps,
	})
}
