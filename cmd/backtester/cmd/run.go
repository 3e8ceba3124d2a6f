package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/backtester/internal/app"
	"github.com/rustyeddy/backtester/report"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one backtest",
	Long: `Run one backtest with the loaded config. Flags override the config
for this run only.

Examples:
  backtester run -c backtester.yaml
  backtester run --pair GBP_USD --start 2025-07-01 --end 2025-07-03
  backtester run --source ema-cross --data csv --notify 2`,
	Args: cobra.NoArgs,
	RunE: runBacktest,
}

var runFlags struct {
	pair   string
	prompt string
	start  string
	end    string
	source string
	data   string
	notify int
	org    bool
}

func init() {
	rootCmd.AddCommand(runCmd)

	f := runCmd.Flags()
	f.StringVar(&runFlags.pair, "pair", "", "currency pair, e.g. EUR_USD")
	f.StringVar(&runFlags.prompt, "prompt", "", "analyst prompt file inside the prompts dir")
	f.StringVar(&runFlags.start, "start", "", "first day (YYYY-MM-DD)")
	f.StringVar(&runFlags.end, "end", "", "last day (YYYY-MM-DD)")
	f.StringVar(&runFlags.source, "source", "", "signal source: llm, ema-cross or replay")
	f.StringVar(&runFlags.data, "data", "", "candle source: api, csv or oanda")
	f.IntVar(&runFlags.notify, "notify", 1, "notification level 0..3")
	f.BoolVar(&runFlags.org, "org", false, "also write an org-mode report")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runFlags.pair != "" {
		cfg.Pair = runFlags.pair
	}
	if runFlags.prompt != "" {
		cfg.PromptFile = runFlags.prompt
	}
	if runFlags.start != "" {
		cfg.StartDate = runFlags.start
	}
	if runFlags.end != "" {
		cfg.EndDate = runFlags.end
	}
	if runFlags.source != "" {
		cfg.Signal.Source = runFlags.source
	}
	if runFlags.data != "" {
		cfg.Data.Source = runFlags.data
	}
	if cmd.Flags().Changed("notify") {
		cfg.Notify.Level = runFlags.notify
	}
	if runFlags.org {
		cfg.Reports.Org = true
	}

	log := newLogger(cmd, cfg)
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out, err := app.Run(ctx, cfg, app.Collaborators{}, log)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	report.Print(w, out.Report)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "✓ Report:       %s\n", out.Paths.Report)
	fmt.Fprintf(w, "✓ Decision log: %s\n", out.Paths.DecisionLog)
	if out.OrgPath != "" {
		fmt.Fprintf(w, "✓ Org report:   %s\n", out.OrgPath)
	}
	for _, key := range out.Uploaded {
		fmt.Fprintf(w, "✓ Uploaded:     %s\n", key)
	}
	return nil
}
