package onchain

import (
	"github.com/spf13/cobra"

	"github.com/ntzs/deployments/pkg/commands/flags"
	"github.com/ntzs/deployments/pkg/commands/text"
	"github.com/ntzs/deployments/plans"
	"github.com/ntzs/deployments/render"
)

var (
	planLong = text.LongDesc(`
		Prints the steps the selected mode would run, in order, without connecting to any
		chain. Addresses missing from the configuration are looked up in the address book.
	`)

	planExample = text.Examples(`
		ntzs-deploy plan --config mainnet.yaml --mode transfer-ownership
	`)
)

func newPlanCmd(cfg Config) *cobra.Command {
	return &cobra.Command{
		Use:     "plan",
		Short:   "Print the steps of a run",
		Long:    planLong,
		Example: planExample,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps := cfg.deps()

			conf, mode, err := load(deps,
				flags.MustString(cmd.Flags().GetString("config")),
				flags.MustString(cmd.Flags().GetString("mode")),
			)
			if err != nil {
				return err
			}

			ab, _, err := loadAddressBook(deps, conf, flags.MustString(cmd.Flags().GetString("address-book")))
			if err != nil {
				return err
			}

			plan, err := plans.Build(*conf, mode, plans.Env{AddressBook: ab})
			if err != nil {
				return err
			}

			return render.Plan(cmd.OutOrStdout(), plan)
		},
	}
}
