package cmd

import (
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/coffeeclub/internal/version"
)

func newVersionCmd() *cobra.Command {
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long: `Print version information including version number, git commit,
build date, Go version, and platform.`,
		RunE: runVersion,
	}
	versionCmd.Flags().BoolP("verbose", "v", false, "show detailed version information")
	return versionCmd
}

func runVersion(cmd *cobra.Command, args []string) error {
	info := version.GetInfo()
	verbose, _ := cmd.Flags().GetBool("verbose")

	text := "coffeeclub " + info.Short()
	if verbose {
		text = info.String()
	}

	format, _ := cmd.Flags().GetString("format")
	return printOutput(cmd.OutOrStdout(), format, info, text)
}
