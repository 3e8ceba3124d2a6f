package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/backtester/config"
	"github.com/rustyeddy/backtester/journal"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query the run journal",
	Long: `Query runs and trades recorded in the SQLite or Postgres journal.

Subcommands:
  runs   - List recent runs
  trades - List the trades of one run
  day    - List trades closed on a specific day (SQLite only)

Examples:
  backtester journal runs --limit 10
  backtester journal trades 01J2Z3...
  backtester journal day 2025-07-02 --db backtester.db`,
}

var journalRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent runs",
	Args:  cobra.NoArgs,
	RunE:  runJournalRuns,
}

var journalTradesCmd = &cobra.Command{
	Use:   "trades <run-id>",
	Short: "List the trades of one run",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalTrades,
}

var journalDayCmd = &cobra.Command{
	Use:   "day <YYYY-MM-DD>",
	Short: "List trades closed on a specific day",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalDay,
}

var (
	journalDBPath string
	journalLimit  int
)

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalRunsCmd)
	journalCmd.AddCommand(journalTradesCmd)
	journalCmd.AddCommand(journalDayCmd)

	journalCmd.PersistentFlags().StringVarP(&journalDBPath, "db", "d", "", "path to a SQLite journal (overrides the config)")
	journalRunsCmd.Flags().IntVarP(&journalLimit, "limit", "n", 20, "maximum runs to list")
}

func journalConfig() (config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return cfg, err
	}
	if journalDBPath != "" {
		cfg.Journal.Type = "sqlite"
		cfg.Journal.DBPath = journalDBPath
	}
	return cfg, nil
}

func openReader(ctx context.Context, jc config.JournalConfig) (journal.Reader, func() error, error) {
	switch jc.Type {
	case "sqlite":
		j, err := journal.NewSQLite(jc.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open db: %w", err)
		}
		return j, j.Close, nil
	case "postgres":
		j, err := journal.NewPostgres(ctx, jc.PostgresDSN, jc.MaxConns)
		if err != nil {
			return nil, nil, fmt.Errorf("open db: %w", err)
		}
		return j, j.Close, nil
	}
	return nil, nil, fmt.Errorf("journal type %q cannot be queried", jc.Type)
}

func runJournalRuns(cmd *cobra.Command, args []string) error {
	cfg, err := journalConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	r, closeFn, err := openReader(ctx, cfg.Journal)
	if err != nil {
		return err
	}
	defer closeFn()

	runs, err := r.ListRuns(ctx, journalLimit)
	if err != nil {
		return fmt.Errorf("query runs: %w", err)
	}
	printRuns(cmd.OutOrStdout(), runs)
	return nil
}

func runJournalTrades(cmd *cobra.Command, args []string) error {
	cfg, err := journalConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	r, closeFn, err := openReader(ctx, cfg.Journal)
	if err != nil {
		return err
	}
	defer closeFn()

	run, err := r.GetRun(ctx, args[0])
	if err != nil {
		return fmt.Errorf("get run: %w", err)
	}
	trades, err := r.ListTradesByRunID(ctx, run.RunID)
	if err != nil {
		return fmt.Errorf("query trades: %w", err)
	}

	w := cmd.OutOrStdout()
	printRuns(w, []journal.RunRecord{run})
	fmt.Fprintln(w)
	printTrades(w, trades)
	return nil
}

func runJournalDay(cmd *cobra.Command, args []string) error {
	cfg, err := journalConfig()
	if err != nil {
		return err
	}
	if cfg.Journal.Type != "sqlite" {
		return fmt.Errorf("journal day needs a SQLite journal, have %q", cfg.Journal.Type)
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	start, end, err := dayBounds(loc, args[0])
	if err != nil {
		return fmt.Errorf("date: %w", err)
	}

	j, err := journal.NewSQLite(cfg.Journal.DBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer j.Close()

	recs, err := j.ListTradesClosedBetween(cmd.Context(), start, end)
	if err != nil {
		return fmt.Errorf("query trades: %w", err)
	}
	printTrades(cmd.OutOrStdout(), recs)
	return nil
}

func dayBounds(loc *time.Location, day string) (time.Time, time.Time, error) {
	t, err := time.ParseInLocation(config.DateLayout, day, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1), nil
}

func printRuns(w io.Writer, runs []journal.RunRecord) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tCREATED\tPAIR\tSOURCE\tPERIOD\tTRADES\tWIN%\tNET P/L\tEND BALANCE\tPF")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s..%s\t%d\t%.2f\t%.2f\t%.2f\t%s\n",
			r.RunID, r.Created.Format(time.DateTime), r.Pair, r.Source,
			r.Start.Format(config.DateLayout), r.End.Format(config.DateLayout),
			r.Trades, r.WinRate, r.NetPL, r.EndBalance, r.ProfitFactor)
	}
	tw.Flush()
}

func printTrades(w io.Writer, trades []journal.TradeRecord) {
	if len(trades) == 0 {
		fmt.Fprintln(w, "no trades")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPAIR\tDIR\tENTRY\tEXIT\tSL\tTP\tOPENED\tCLOSED\tP/L\tREASON")
	var net float64
	for _, t := range trades {
		net += t.ProfitLoss
		fmt.Fprintf(tw, "%d\t%s\t%s\t%.5f\t%.5f\t%.5f\t%.5f\t%s\t%s\t%.2f\t%s\n",
			t.TradeID, t.Pair, t.Direction, t.EntryPrice, t.ExitPrice, t.StopLoss, t.TakeProfit,
			t.EntryTime.Format(time.DateTime), t.ExitTime.Format(time.DateTime), t.ProfitLoss, t.Reason)
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d trades, net %.2f\n", len(trades), net)
}
