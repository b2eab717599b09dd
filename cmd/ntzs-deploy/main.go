// Command ntzs-deploy deploys, hands over and upgrades the nTZS token on EVM and Solana.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ntzs/deployments/pkg/commands"
	"github.com/ntzs/deployments/pkg/commands/onchain"
)

func main() {
	root, err := commands.New(nil).Onchain(onchain.Deps{})
	if err != nil {
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = root.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
