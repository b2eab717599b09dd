package onchain

import (
	"github.com/spf13/cobra"

	"github.com/ntzs/deployments/pkg/commands/flags"
	"github.com/ntzs/deployments/pkg/commands/text"
	"github.com/ntzs/deployments/pkg/logger"
)

// Config holds the configuration for the command.
type Config struct {
	// Logger is the logger for the run. When nil, one is built from the log section of the
	// configuration file.
	Logger logger.Logger

	// Deps holds optional dependencies that can be overridden.
	// If fields are nil, production defaults are used.
	Deps Deps
}

// deps returns the Deps with defaults applied.
func (c *Config) deps() *Deps {
	c.Deps.applyDefaults()

	return &c.Deps
}

var (
	rootLong = text.LongDesc(`
		Runs the deploy, transfer-ownership or upgrade plan for the nTZS token on the chains
		enabled in the configuration, then reads the chains back to verify the result.

		Steps run one at a time in a fixed order. A failed required step aborts the run and
		nothing is rolled back. Contracts deployed by the run are recorded in the address book.

		The command exits with a non-zero status when the configuration is invalid, a required
		step fails or any verified property does not match.
	`)

	rootExample = text.Examples(`
		# Deploy the EVM contracts and the Solana token metadata
		ntzs-deploy --config deploy.yaml --mode deploy

		# Hand over ownership, writing a JSON report
		ntzs-deploy -c mainnet.yaml -m transfer-ownership -f json -o report.json

		# Upgrade with a longer step timeout
		ntzs-deploy -c mainnet.yaml -m upgrade --step-timeout 20m
	`)
)

// NewCommand creates the ntzs-deploy root command.
//
// Usage:
//
//	cmd, err := onchain.NewCommand(onchain.Config{Logger: lggr})
func NewCommand(cfg Config) (*cobra.Command, error) {
	cmd := &cobra.Command{
		Use:          "ntzs-deploy",
		Short:        "Deploy, hand over and upgrade the nTZS token",
		Long:         rootLong,
		Example:      rootExample,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f := runFlags{
				configPath:  flags.MustString(cmd.Flags().GetString("config")),
				mode:        flags.MustString(cmd.Flags().GetString("mode")),
				addressBook: flags.MustString(cmd.Flags().GetString("address-book")),
				out:         flags.MustString(cmd.Flags().GetString("out")),
				format:      flags.MustString(cmd.Flags().GetString("format")),
				stepTimeout: flags.MustDuration(cmd.Flags().GetDuration("step-timeout")),
			}

			return runPlan(cmd, cfg, f)
		},
	}

	flags.Config(cmd)
	flags.Mode(cmd)
	flags.AddressBook(cmd)
	flags.Output(cmd)
	flags.Format(cmd)
	cmd.Flags().Duration("step-timeout", 0, "Maximum duration of one step, overrides step_timeout in the configuration")

	cmd.AddCommand(newPlanCmd(cfg))

	return cmd, nil
}
