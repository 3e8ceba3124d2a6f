package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/backtester/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Create, check and print configuration",
	Long: `Manage backtester configuration files.

Subcommands:
  init      - Write the default config to a file
  validate  - Load and validate the config
  show      - Print the effective config with secrets redacted

Examples:
  backtester config init backtester.yaml
  backtester config validate -c backtester.yaml
  backtester config show --format toml`,
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default config",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load and validate the config",
	Args:  cobra.NoArgs,
	RunE:  runConfigValidate,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective config",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var (
	configForce  bool
	configFormat string
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configShowCmd)

	configInitCmd.Flags().BoolVarP(&configForce, "force", "f", false, "overwrite an existing file")
	configShowCmd.Flags().StringVar(&configFormat, "format", "yaml", "output format: yaml, json or toml")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := "backtester.yaml"
	if len(args) == 1 {
		path = args[0]
	}
	if _, err := os.Stat(path); err == nil && !configForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := config.Default().SaveToFile(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote default config to %s\n", path)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	start, end, _ := cfg.Dates()
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Config is valid: %s %s..%s (%s), signal %s, data %s\n",
		cfg.Pair, start.Format(config.DateLayout), end.Format(config.DateLayout),
		cfg.Timezone, cfg.Signal.Source, cfg.Data.Source)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	b, err := cfg.Redacted().Encode(configFormat)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(b)
	return err
}
