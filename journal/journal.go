// Package journal keeps a durable history of backtest runs and their
// trades, so runs can be compared without re-reading report files.
package journal

import (
	"context"
	"errors"
	"time"

	"github.com/rustyeddy/backtester/report"
	"github.com/rustyeddy/backtester/sim"
)

var ErrNotFound = errors.New("journal: not found")

// RunRecord is one finished backtest.
type RunRecord struct {
	RunID      string
	Created    time.Time
	Pair       string
	PromptFile string
	Source     string
	Start      time.Time
	End        time.Time

	InitialBalance float64
	EndBalance     float64
	NetPL          float64
	ReturnPct      float64
	Trades         int
	Wins           int
	Losses         int
	WinRate        float64
	ProfitFactor   report.ProfitFactor
	AIFailures     int

	ReportPath string
	LogPath    string
}

// TradeRecord is one closed trade of a run.
type TradeRecord struct {
	RunID      string
	TradeID    int
	Pair       string
	Direction  string
	EntryPrice float64
	ExitPrice  float64
	StopLoss   float64
	TakeProfit float64
	EntryTime  time.Time
	ExitTime   time.Time
	ProfitLoss float64
	Reason     string
}

type Journal interface {
	RecordRun(ctx context.Context, r RunRecord) error
	RecordTrades(ctx context.Context, trades []TradeRecord) error
	Close() error
}

// Reader is implemented by journals that can be queried.
type Reader interface {
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)
	GetRun(ctx context.Context, runID string) (RunRecord, error)
	ListTradesByRunID(ctx context.Context, runID string) ([]TradeRecord, error)
}

// NewRunRecord summarises a run for the journal.
func NewRunRecord(run report.Run, source string, initialBalance float64, s report.Summary, created time.Time) RunRecord {
	return RunRecord{
		RunID:          run.ID,
		Created:        created.UTC(),
		Pair:           run.Pair,
		PromptFile:     run.PromptFile,
		Source:         source,
		Start:          run.Start.UTC(),
		End:            run.End.UTC(),
		InitialBalance: initialBalance,
		EndBalance:     s.EndBalance,
		NetPL:          s.NetProfitLoss,
		ReturnPct:      s.NetProfitLossPercent,
		Trades:         s.TotalTrades,
		Wins:           s.WinningTrades,
		Losses:         s.LosingTrades,
		WinRate:        s.WinRatePercent,
		ProfitFactor:   s.ProfitFactor,
		AIFailures:     s.AIAnalysisFailures,
	}
}

func TradeRecords(runID, pair string, closed []sim.ClosedTrade) []TradeRecord {
	out := make([]TradeRecord, 0, len(closed))
	for _, t := range closed {
		out = append(out, TradeRecord{
			RunID:      runID,
			TradeID:    t.TradeID,
			Pair:       pair,
			Direction:  t.Direction.String(),
			EntryPrice: t.Entry,
			ExitPrice:  t.Exit,
			StopLoss:   t.StopLoss,
			TakeProfit: t.TakeProfit,
			EntryTime:  t.EntryTime.UTC(),
			ExitTime:   t.ExitTime.UTC(),
			ProfitLoss: t.ProfitLoss,
			Reason:     string(t.Reason),
		})
	}
	return out
}

// Record writes the run and its trades.
func Record(ctx context.Context, j Journal, run RunRecord, trades []TradeRecord) error {
	if err := j.RecordRun(ctx, run); err != nil {
		return err
	}
	return j.RecordTrades(ctx, trades)
}

// pfColumn stores an infinite profit factor as NULL.
func pfColumn(pf report.ProfitFactor) *float64 {
	if pf.Infinite {
		return nil
	}
	v := pf.Value
	return &v
}

func pfFromColumn(v *float64) report.ProfitFactor {
	if v == nil {
		return report.ProfitFactor{Infinite: true}
	}
	return report.ProfitFactor{Value: *v}
}
