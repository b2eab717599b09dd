package onchain

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ntzs/deployments/config"
	"github.com/ntzs/deployments/deployment"
	"github.com/ntzs/deployments/operations"
	"github.com/ntzs/deployments/pkg/logger"
	"github.com/ntzs/deployments/plans"
	"github.com/ntzs/deployments/render"
)

// ErrRunFailed is returned when a run aborted or its verification found a mismatch.
var ErrRunFailed = errors.New("run failed")

type runFlags struct {
	configPath  string
	mode        string
	addressBook string
	out         string
	format      string
	stepTimeout time.Duration
}

func runPlan(cmd *cobra.Command, cfg Config, f runFlags) error {
	deps := cfg.deps()
	ctx := cmd.Context()

	conf, mode, err := load(deps, f.configPath, f.mode)
	if err != nil {
		return err
	}
	if f.stepTimeout > 0 {
		conf.StepTimeout = f.stepTimeout
	}

	format, err := render.ParseFormat(f.format)
	if err != nil {
		return err
	}

	ab, abPath, err := loadAddressBook(deps, conf, f.addressBook)
	if err != nil {
		return err
	}

	// Surface configuration errors before dialing any chain.
	if _, err = plans.Build(*conf, mode, plans.Env{AddressBook: ab}); err != nil {
		return err
	}

	lggr := cfg.Logger
	if lggr == nil {
		if lggr, err = deps.LoggerFactory(conf.Log); err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
	}

	env, cleanup, err := deps.EnvLoader(ctx, lggr, *conf, mode, ab)
	if err != nil {
		return err
	}
	defer cleanup()

	plan, err := plans.Build(*conf, mode, env)
	if err != nil {
		return err
	}

	opts := []operations.RunOption{operations.WithStepTimeout(conf.StepTimeout)}
	if conf.Retry.Enabled {
		opts = append(opts, operations.WithRetry(operations.RetryPolicy{
			MaxAttempts: conf.Retry.Attempts,
			Delay:       conf.Retry.Delay,
		}))
	}

	rc := operations.NewContext(nil)
	bundle := operations.NewBundle(cmd.Context, lggr, operations.NewMemoryReporter())

	report, runErr := operations.Run(bundle, plan, rc, opts...)
	if report == nil {
		return runErr
	}

	expected, queries := plans.Expectations(*conf, mode, env, rc)
	summary := operations.Summary{
		Run:          report,
		Verification: operations.Verify(ctx, expected, queries),
	}

	// An aborted run may still have deployed contracts.
	if abPath != "" {
		if err = recordDeployments(deps, lggr, *conf, mode, rc, ab, abPath); err != nil {
			lggr.Errorw("Failed to record deployments", "addressBook", abPath, "error", err)
			return err
		}
	}

	if err = writeSummary(cmd, f.out, format, summary); err != nil {
		return err
	}

	if !summary.Success() {
		if runErr != nil {
			return fmt.Errorf("%w: %w", ErrRunFailed, runErr)
		}

		return fmt.Errorf("%w: %d of %d verified properties do not match",
			ErrRunFailed, len(summary.Verification.Mismatches()), len(summary.Verification.Checks),
		)
	}

	return nil
}

// load reads the configuration file and parses the mode.
func load(deps *Deps, path, rawMode string) (*config.Config, plans.Mode, error) {
	mode, err := plans.ParseMode(rawMode)
	if err != nil {
		return nil, "", err
	}

	conf, err := deps.ConfigLoader(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load configuration %s: %w", path, err)
	}

	return conf, mode, nil
}

// loadAddressBook reads the address book named by the flag, falling back to the configuration.
// Without either, an empty in-memory book is returned with an empty path.
func loadAddressBook(deps *Deps, conf *config.Config, flagPath string) (*deployment.AddressBookMap, string, error) {
	path := flagPath
	if path == "" {
		path = conf.AddressBook
	}
	if path == "" {
		return deployment.NewMemoryAddressBook(), "", nil
	}

	ab, err := deps.AddressBookLoader(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load address book %s: %w", path, err)
	}

	return ab, path, nil
}

// recordDeployments merges what the run recorded in rc into the address book at path. Entries
// the book already holds, e.g. a ProxyAdmin read by an earlier transfer, are skipped.
func recordDeployments(
	deps *Deps, lggr logger.Logger, conf config.Config, mode plans.Mode, rc *operations.Context,
	ab *deployment.AddressBookMap, path string,
) error {
	deployed, err := plans.Deployments(conf, mode, rc, ab)
	if err != nil {
		return err
	}

	added, err := deployed.Addresses()
	if err != nil {
		return err
	}

	fresh := deployment.NewMemoryAddressBook()
	var n int
	for selector, addrs := range added {
		for addr, tv := range addrs {
			known, err := deployment.AddressBookContains(ab, selector, addr)
			if err != nil {
				return err
			}
			if known {
				lggr.Debugw("Already in address book", "chain", selector, "address", addr, "contract", tv.String())
				continue
			}

			if err = fresh.Save(selector, addr, tv); err != nil {
				return err
			}
			lggr.Infow("Recording address", "chain", selector, "address", addr, "contract", tv.String())
			n++
		}
	}
	if n == 0 {
		return nil
	}

	if err = ab.Merge(fresh); err != nil {
		return fmt.Errorf("failed to merge deployments: %w", err)
	}

	return deps.AddressBookSaver(path, ab)
}

func writeSummary(cmd *cobra.Command, out string, format render.Format, summary operations.Summary) error {
	if out == "" {
		return render.Summary(cmd.OutOrStdout(), format, summary)
	}

	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}

	err = render.Summary(f, format, summary)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to write report %s: %w", out, err)
	}

	cmd.Printf("Report written to %s\n", out)

	return nil
}
