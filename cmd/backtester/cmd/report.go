package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/backtester/backtest"
	"github.com/rustyeddy/backtester/report"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print saved reports and decision logs",
	Long: `Print files written by earlier runs.

Examples:
  backtester report show reports/report_01J....json
  backtester report show --org reports/report_01J....json
  backtester report decisions logs/log_01J....json`,
}

var reportShowCmd = &cobra.Command{
	Use:   "show <report.json>",
	Short: "Print a saved report",
	Args:  cobra.ExactArgs(1),
	RunE:  runReportShow,
}

var reportDecisionsCmd = &cobra.Command{
	Use:   "decisions <log.json>",
	Short: "List the decisions of a saved decision log",
	Args:  cobra.ExactArgs(1),
	RunE:  runReportDecisions,
}

var reportOrg bool

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.AddCommand(reportShowCmd)
	reportCmd.AddCommand(reportDecisionsCmd)

	reportShowCmd.Flags().BoolVar(&reportOrg, "org", false, "print as an org-mode document")
}

func runReportShow(cmd *cobra.Command, args []string) error {
	r, err := report.Load(args[0])
	if err != nil {
		return fmt.Errorf("load report: %w", err)
	}
	if reportOrg {
		b, err := report.RenderOrg(r)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(b)
		return err
	}
	report.Print(cmd.OutOrStdout(), r)
	return nil
}

func runReportDecisions(cmd *cobra.Command, args []string) error {
	recs, err := report.LoadDecisionLog(args[0])
	if err != nil {
		return fmt.Errorf("load decision log: %w", err)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tSTATUS\tDECISION\tENTRY\tSL\tTP\tERROR")
	var failures int
	for _, r := range recs {
		kind, entry, sl, tp := "-", "-", "-", "-"
		if d := r.Decision; d != nil {
			kind = d.Kind.String()
			if d.IsTrade() {
				entry = fmt.Sprintf("%.5f", d.Entry)
				sl = fmt.Sprintf("%.5f", d.StopLoss)
				tp = fmt.Sprintf("%.5f", d.TakeProfit)
			}
		}
		if r.Status == backtest.StatusFailure {
			failures++
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Timestamp.UTC().Format(time.DateTime), r.Status, kind, entry, sl, tp, r.Error)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\n%d decisions, %d failures\n", len(recs), failures)
	return nil
}
