package journal

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

const runColumns = `run_id, created, pair, prompt_file, source, start_time, end_time,
	initial_balance, end_balance, net_pl, return_pct, trades, wins, losses,
	win_rate, profit_factor, ai_failures, report_path, log_path`

const tradeColumns = `run_id, trade_id, pair, direction, entry_price, exit_price, stop_loss, take_profit,
	entry_time, exit_time, profit_loss, reason`

// scanner is satisfied by *sql.Row, *sql.Rows and pgx.Row.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (RunRecord, error) {
	var (
		r  RunRecord
		pf *float64
	)
	err := s.Scan(
		&r.RunID, &r.Created, &r.Pair, &r.PromptFile, &r.Source, &r.Start, &r.End,
		&r.InitialBalance, &r.EndBalance, &r.NetPL, &r.ReturnPct, &r.Trades, &r.Wins, &r.Losses,
		&r.WinRate, &pf, &r.AIFailures, &r.ReportPath, &r.LogPath,
	)
	r.ProfitFactor = pfFromColumn(pf)
	return r, err
}

func scanTrade(s scanner) (TradeRecord, error) {
	var t TradeRecord
	err := s.Scan(
		&t.RunID, &t.TradeID, &t.Pair, &t.Direction, &t.EntryPrice, &t.ExitPrice, &t.StopLoss, &t.TakeProfit,
		&t.EntryTime, &t.ExitTime, &t.ProfitLoss, &t.Reason,
	)
	return t, err
}

// ListRuns returns the most recent runs first. limit <= 0 means all.
func (j *SQLite) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	q := `SELECT ` + runColumns + ` FROM runs ORDER BY created DESC, run_id DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := j.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (j *SQLite) GetRun(ctx context.Context, runID string) (RunRecord, error) {
	row := j.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, ErrNotFound
	}
	return r, err
}

func (j *SQLite) ListTradesByRunID(ctx context.Context, runID string) ([]TradeRecord, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT `+tradeColumns+` FROM trades WHERE run_id = ? ORDER BY trade_id ASC`, runID)
	if err != nil {
		return nil, err
	}
	return collectTrades(rows)
}

// ListTradesClosedBetween returns trades of any run whose exit time is
// within [start, end).
func (j *SQLite) ListTradesClosedBetween(ctx context.Context, start, end time.Time) ([]TradeRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT `+tradeColumns+`
		FROM trades
		WHERE exit_time >= ? AND exit_time < ?
		ORDER BY exit_time ASC`, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	return collectTrades(rows)
}

func collectTrades(rows *sql.Rows) ([]TradeRecord, error) {
	defer rows.Close()
	var out []TradeRecord
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
