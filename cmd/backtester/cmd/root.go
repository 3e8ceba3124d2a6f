package cmd

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/backtester/config"
	"github.com/rustyeddy/backtester/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "backtester",
	Short: "Replay FX candles through an AI or rule-based signal source",
	Long: `Backtester replays historical FX candles through a signal source and
simulates the resulting limit orders against a paper account.

It provides tools for:
  - Running one backtest from a config file
  - Serving an HTTP control API with a live event stream
  - Querying the run journal
  - Downloading candles from OANDA into CSV files

Settings come from the config file (yaml, json or toml), then .env, then
BACKTESTER_* environment variables.`,
	SilenceUsage: true,
}

var (
	cfgFile   string
	logLevel  string
	logPretty bool
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (yaml, json or toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logPretty, "log-pretty", false, "human readable log output")
}

// loadConfig reads the config file named by --config and applies the global
// logging flags.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return cfg, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logPretty {
		cfg.Log.Pretty = true
	}
	return cfg, nil
}

func newLogger(cmd *cobra.Command, cfg config.Config) zerolog.Logger {
	return logging.NewWithWriter(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Pretty)
}
