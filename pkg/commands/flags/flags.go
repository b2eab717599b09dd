// Package flags provides reusable flag helpers for CLI commands.
//
// This package should only contain common flags that can be used by multiple commands
// to ensure unified naming and consistent behavior across the CLI.
// Command-specific flags should be defined locally in the command file.
package flags

import (
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// MustString returns the string value, ignoring the error.
// Safe to use with registered flags where GetString cannot fail.
func MustString(s string, _ error) string { return s }

// MustDuration returns the duration value, ignoring the error.
// Safe to use with registered flags where GetDuration cannot fail.
func MustDuration(d time.Duration, _ error) time.Duration { return d }

// Config adds the required persistent --config/-c flag, inherited by subcommands.
// Retrieve the value with cmd.Flags().GetString("config").
func Config(cmd *cobra.Command) {
	cmd.PersistentFlags().StringP("config", "c", "", "Configuration file (required)")
	_ = cmd.MarkPersistentFlagRequired("config")
}

// Mode adds the required persistent --mode/-m flag, inherited by subcommands.
// Retrieve the value with cmd.Flags().GetString("mode").
func Mode(cmd *cobra.Command) {
	cmd.PersistentFlags().StringP("mode", "m", "", "Run mode: deploy, transfer-ownership or upgrade (required)")
	_ = cmd.MarkPersistentFlagRequired("mode")
}

// AddressBook adds the persistent --address-book flag, overriding address_book in the
// configuration. --address_book is accepted as well.
//
// Usage:
//
//	flags.AddressBook(cmd)
//	// later in RunE:
//	path, _ := cmd.Flags().GetString("address-book")
func AddressBook(cmd *cobra.Command) {
	cmd.PersistentFlags().String("address-book", "", "Address book file, overrides address_book in the configuration")
	cmd.SetGlobalNormalizationFunc(dashes)
}

// Output adds the --out/-o flag for specifying output file path.
// Retrieve the value with cmd.Flags().GetString("out").
func Output(cmd *cobra.Command) {
	cmd.Flags().StringP("out", "o", "", "Write the report to this file instead of stdout")
}

// Format adds the --format/-f flag selecting the report format.
// Retrieve the value with cmd.Flags().GetString("format").
func Format(cmd *cobra.Command) {
	cmd.Flags().StringP("format", "f", "text", "Report format: text, json, yaml or toml")
}

// dashes normalizes snake_case flag names to kebab-case.
func dashes(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}
