package report

import (
	"fmt"
	"io"
)

// Print writes a plain-text summary of r.
func Print(w io.Writer, r Report) {
	m, s := r.Metadata, r.PerformanceSummary

	fmt.Fprintln(w, "==================================================")
	fmt.Fprintln(w, " Backtest Result")
	fmt.Fprintln(w, "==================================================")

	fmt.Fprintf(w, "Run ID:        %s\n", m.RunID)
	fmt.Fprintf(w, "Pair:          %s\n", m.Pair)
	if m.PromptFile != "" {
		fmt.Fprintf(w, "Prompt:        %s\n", m.PromptFile)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Period")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Start:         %s\n", m.StartDate)
	fmt.Fprintf(w, "End:           %s\n", m.EndDate)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Trade Statistics")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Trades:        %d\n", s.TotalTrades)
	fmt.Fprintf(w, "Wins:          %d\n", s.WinningTrades)
	fmt.Fprintf(w, "Losses:        %d\n", s.LosingTrades)
	fmt.Fprintf(w, "Win Rate:      %.2f%%\n", s.WinRatePercent)
	fmt.Fprintf(w, "Failures:      %d\n", s.AIAnalysisFailures)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Account Performance")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Start Balance: %.2f\n", m.InitialBalance)
	fmt.Fprintf(w, "End Balance:   %.2f\n", s.EndBalance)
	fmt.Fprintf(w, "Net P/L:       %.2f\n", s.NetProfitLoss)
	fmt.Fprintf(w, "Return:        %.2f%%\n", s.NetProfitLossPercent)
	if s.TotalTrades > 0 {
		fmt.Fprintf(w, "Profit Factor: %s\n", s.ProfitFactor)
	}

	if len(r.Trades) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Trades")
		fmt.Fprintln(w, "--------------------------------------------------")
		for _, t := range r.Trades {
			fmt.Fprintf(w, "#%-4d %-4s %.5f -> %.5f  %10.2f  %s\n",
				t.TradeID, t.Direction, t.EntryPrice, t.ExitPrice, t.ProfitLoss, t.ExitReason)
		}
	}

	fmt.Fprintln(w, "==================================================")
}
