package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/coffeeclub/internal/config"
	"github.com/felixgeelhaar/coffeeclub/internal/errors"
	"github.com/felixgeelhaar/coffeeclub/internal/ux"
)

func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "View or edit coffeeclub configuration",
		Long: `Manage the configuration stored at ~/.coffeeclub/config.yaml
(or $COFFEECLUB_HOME/config.yaml).

Examples:
  # Write the defaults to disk
  coffeeclub config init

  # View the effective configuration, environment included
  coffeeclub config view

  # Point the client at another server
  coffeeclub config set api.base_url https://club.example.com

  # Show configuration file path
  coffeeclub config path`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	viewCmd := &cobra.Command{
		Use:   "view",
		Short: "Display the effective configuration",
		RunE:  runConfigView,
	}

	pathCmd := &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE:  runConfigPath,
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		RunE:  runConfigInit,
	}
	initCmd.Flags().Bool("force", false, "overwrite an existing file")

	getCmd := &cobra.Command{
		Use:       "get <key>",
		Short:     "Get a configuration value",
		Args:      cobra.ExactArgs(1),
		ValidArgs: config.Keys(),
		RunE:      runConfigGet,
	}

	setCmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Long:  "Set a configuration value using a dotted key. Valid keys:\n  " + joinKeys(),
		Args:  cobra.ExactArgs(2),
		RunE:  runConfigSet,
	}

	configCmd.AddCommand(viewCmd, pathCmd, initCmd, getCmd, setCmd)
	return configCmd
}

func joinKeys() string {
	return strings.Join(config.Keys(), "\n  ")
}

func configPath(cmd *cobra.Command) (string, error) {
	if p, _ := cmd.Flags().GetString("config"); p != "" {
		return p, nil
	}
	return config.DefaultPath()
}

func runConfigView(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	format := cfg.Defaults.Format
	if format == ux.FormatText {
		format = ux.FormatYAML
	}
	f, err := ux.NewFormatter(format, &ux.FormatterOptions{Writer: cmd.OutOrStdout()})
	if err != nil {
		return err
	}
	return f.Format(cfg)
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	path, err := configPath(cmd)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path, err := configPath(cmd)
	if err != nil {
		return err
	}
	force, _ := cmd.Flags().GetBool("force")
	if _, err := os.Stat(path); err == nil && !force {
		return errors.New(errors.ErrCodeConfigWrite, fmt.Sprintf("%s already exists", path)).
			WithSuggestion("Use --force to overwrite it")
	}
	if err := config.Default().Save(path); err != nil {
		return errors.Wrap(errors.ErrCodeConfigWrite, "cannot write configuration", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	v, err := cfg.Get(args[0])
	if err != nil {
		return keyErr(err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), v)
	return nil
}

func keyErr(err error) error {
	return errors.New(errors.ErrCodeInputInvalid, err.Error()).
		WithSuggestion("Run 'coffeeclub config set --help' for the list of keys")
}

// runConfigSet edits the file alone; environment overrides are not saved.
func runConfigSet(cmd *cobra.Command, args []string) error {
	path, err := configPath(cmd)
	if err != nil {
		return err
	}
	cfg, err := config.ReadFile(path)
	if err != nil {
		return configErr(err)
	}
	if err := cfg.Set(args[0], args[1]); err != nil {
		return keyErr(err)
	}
	if err := cfg.Validate(); err != nil {
		return configErr(err)
	}
	if err := cfg.Save(path); err != nil {
		return errors.Wrap(errors.ErrCodeConfigWrite, "cannot write configuration", err)
	}

	out, _ := yaml.Marshal(map[string]string{args[0]: args[1]})
	fmt.Fprint(cmd.OutOrStdout(), string(out))
	return nil
}
