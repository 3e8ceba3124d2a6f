// Package report turns a finished replay into the report and decision log
// documents and persists them.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rustyeddy/backtester/backtest"
	"github.com/rustyeddy/backtester/sim"
)

// TimeLayout is the human time format used in reports, e.g. "07 Jul 2025 09:30 WIB".
const TimeLayout = "02 Jan 2006 15:04 MST"

type Metadata struct {
	RunID          string  `json:"run_id"`
	Pair           string  `json:"pair"`
	PromptFile     string  `json:"prompt_file"`
	StartDate      string  `json:"start_date"`
	EndDate        string  `json:"end_date"`
	InitialBalance float64 `json:"initial_balance"`
}

type SnapshotRange struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// Trade is one closed trade as written to the report.
type Trade struct {
	TradeID               int            `json:"trade_id"`
	Direction             sim.Direction  `json:"direction"`
	EntryPrice            float64        `json:"entry_price"`
	ExitPrice             float64        `json:"exit_price"`
	StopLoss              float64        `json:"stop_loss"`
	TakeProfit            float64        `json:"take_profit"`
	EntryTime             string         `json:"entry_time"`
	ExitTime              string         `json:"exit_time"`
	ProfitLoss            float64        `json:"profit_loss"`
	ExitReason            sim.ExitReason `json:"exit_reason"`
	AnalysisSnapshotRange SnapshotRange  `json:"analysis_snapshot_range"`
}

type Report struct {
	Metadata           Metadata `json:"metadata"`
	PerformanceSummary Summary  `json:"performance_summary"`
	Trades             []Trade  `json:"trades"`
}

// Run describes the run a report is built for.
type Run struct {
	ID         string
	Pair       string
	PromptFile string
	Start      time.Time
	End        time.Time
	Location   *time.Location
}

// Build assembles the report for res. Times are rendered in run.Location
// (UTC when nil).
func Build(run Run, initialBalance float64, res backtest.Result) Report {
	loc := run.Location
	if loc == nil {
		loc = time.UTC
	}
	format := func(t time.Time) string { return t.In(loc).Format(TimeLayout) }

	sum := Summarize(initialBalance, res.State.Balance, res.State.Closed)
	sum.AIAnalysisFailures = res.DecisionFailures

	trades := make([]Trade, 0, len(res.State.Closed))
	for _, t := range res.State.Closed {
		trades = append(trades, Trade{
			TradeID:    t.TradeID,
			Direction:  t.Direction,
			EntryPrice: t.Entry,
			ExitPrice:  t.Exit,
			StopLoss:   t.StopLoss,
			TakeProfit: t.TakeProfit,
			EntryTime:  format(t.EntryTime),
			ExitTime:   format(t.ExitTime),
			ProfitLoss: t.ProfitLoss,
			ExitReason: t.Reason,
			AnalysisSnapshotRange: SnapshotRange{
				StartTime: format(t.Window.Start),
				EndTime:   format(t.Window.End),
			},
		})
	}

	return Report{
		Metadata: Metadata{
			RunID:          run.ID,
			Pair:           run.Pair,
			PromptFile:     run.PromptFile,
			StartDate:      format(run.Start),
			EndDate:        format(run.End),
			InitialBalance: initialBalance,
		},
		PerformanceSummary: sum,
		Trades:             trades,
	}
}

// Load reads a report file written by FileWriter.
func Load(path string) (Report, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Report{}, err
	}
	var r Report
	if err := json.Unmarshal(b, &r); err != nil {
		return Report{}, fmt.Errorf("report %s: %w", path, err)
	}
	return r, nil
}

// LoadDecisionLog reads a decision log file written by FileWriter.
func LoadDecisionLog(path string) ([]backtest.DecisionRecord, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var recs []backtest.DecisionRecord
	if err := json.Unmarshal(b, &recs); err != nil {
		return nil, fmt.Errorf("decision log %s: %w", path, err)
	}
	return recs, nil
}
