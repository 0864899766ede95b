// Package cmd implements the coffeeclub command line.
package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/coffeeclub/internal/ux"
)

// NewRootCmd builds a fresh command tree. Nothing is shared between trees,
// so tests can run commands side by side.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "coffeeclub",
		Short: "Coffee Club loyalty card in your terminal",
		Long: `coffeeclub signs you in to the Coffee Club loyalty program with your phone
number, shows your reward progress and order history, and produces the QR
code scanned at the counter.

Credentials are kept in an encrypted store under ~/.coffeeclub.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file (default is $COFFEECLUB_HOME/config.yaml)")
	flags.String("format", "", "output format: text, json or yaml")
	flags.String("log-level", "", "log level: debug, info, warn or error")
	flags.String("api-url", "", "loyalty API base URL")
	flags.Bool("no-color", false, "disable colored output")

	root.AddCommand(
		newAuthCmd(),
		newProfileCmd(),
		newOrdersCmd(),
		newRewardsCmd(),
		newQRCmd(),
		newDeviceCmd(),
		newFeedbackCmd(),
		newHealthCmd(),
		newConfigCmd(),
		newVersionCmd(),
		newTwinCmd(),
	)
	return root
}

// Execute runs the command line with ctx, which is cancelled on interrupt
// by the caller. Returned errors are already enhanced for display.
func Execute(ctx context.Context, args []string) error {
	root := NewRootCmd()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return nil
	}
	return ux.EnhanceError(err, ux.ErrorContext{BaseURL: baseURLHint(root)})
}

// baseURLHint recovers the API URL for error messages without failing.
func baseURLHint(root *cobra.Command) string {
	if v, _ := root.PersistentFlags().GetString("api-url"); v != "" {
		return v
	}
	if cfg, err := loadConfig(root); err == nil {
		return cfg.API.BaseURL
	}
	return ""
}
