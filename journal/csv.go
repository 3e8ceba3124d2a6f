package journal

import (
	"context"
	"encoding/csv"
	"os"
	"strconv"
	"sync"
	"time"
)

var (
	runHeader   = []string{"run_id", "created", "pair", "prompt_file", "source", "start", "end", "initial_balance", "end_balance", "net_pl", "return_pct", "trades", "wins", "losses", "win_rate", "profit_factor", "ai_failures", "report_path", "log_path"}
	tradeHeader = []string{"run_id", "trade_id", "pair", "direction", "entry_price", "exit_price", "stop_loss", "take_profit", "entry_time", "exit_time", "profit_loss", "reason"}
)

// CSV appends runs and trades to two CSV files, writing headers when a
// file is new.
type CSV struct {
	mu     sync.Mutex
	runs   *csv.Writer
	trades *csv.Writer
	rf, tf *os.File
}

func NewCSV(runsPath, tradesPath string) (*CSV, error) {
	rf, rw, err := openCSV(runsPath, runHeader)
	if err != nil {
		return nil, err
	}
	tf, tw, err := openCSV(tradesPath, tradeHeader)
	if err != nil {
		_ = rf.Close()
		return nil, err
	}
	return &CSV{runs: rw, trades: tw, rf: rf, tf: tf}, nil
}

func openCSV(path string, header []string) (*os.File, *csv.Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}
	w := csv.NewWriter(f)
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	if st.Size() == 0 {
		if err := w.Write(header); err != nil {
			_ = f.Close()
			return nil, nil, err
		}
		w.Flush()
		if err := w.Error(); err != nil {
			_ = f.Close()
			return nil, nil, err
		}
	}
	return f, w, nil
}

func (j *CSV) RecordRun(ctx context.Context, r RunRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.runs.Write([]string{
		r.RunID,
		r.Created.Format(time.RFC3339),
		r.Pair,
		r.PromptFile,
		r.Source,
		r.Start.Format(time.RFC3339),
		r.End.Format(time.RFC3339),
		f(r.InitialBalance),
		f(r.EndBalance),
		f(r.NetPL),
		f(r.ReturnPct),
		strconv.Itoa(r.Trades),
		strconv.Itoa(r.Wins),
		strconv.Itoa(r.Losses),
		f(r.WinRate),
		r.ProfitFactor.String(),
		strconv.Itoa(r.AIFailures),
		r.ReportPath,
		r.LogPath,
	}); err != nil {
		return err
	}
	j.runs.Flush()
	return j.runs.Error()
}

func (j *CSV) RecordTrades(ctx context.Context, trades []TradeRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	for _, t := range trades {
		if err := j.trades.Write([]string{
			t.RunID,
			strconv.Itoa(t.TradeID),
			t.Pair,
			t.Direction,
			f(t.EntryPrice),
			f(t.ExitPrice),
			f(t.StopLoss),
			f(t.TakeProfit),
			t.EntryTime.Format(time.RFC3339),
			t.ExitTime.Format(time.RFC3339),
			f(t.ProfitLoss),
			t.Reason,
		}); err != nil {
			return err
		}
	}
	j.trades.Flush()
	return j.trades.Error()
}

func (j *CSV) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.runs.Flush()
	j.trades.Flush()
	if err := j.runs.Error(); err != nil {
		return err
	}
	if err := j.trades.Error(); err != nil {
		return err
	}
	if err := j.rf.Close(); err != nil {
		return err
	}
	return j.tf.Close()
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
