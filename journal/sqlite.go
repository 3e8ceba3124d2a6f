package journal

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordRun(ctx context.Context, r RunRecord) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs
		(run_id, created, pair, prompt_file, source, start_time, end_time,
		 initial_balance, end_balance, net_pl, return_pct, trades, wins, losses,
		 win_rate, profit_factor, ai_failures, report_path, log_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Created, r.Pair, r.PromptFile, r.Source, r.Start, r.End,
		r.InitialBalance, r.EndBalance, r.NetPL, r.ReturnPct, r.Trades, r.Wins, r.Losses,
		r.WinRate, pfColumn(r.ProfitFactor), r.AIFailures, r.ReportPath, r.LogPath,
	)
	if err != nil {
		return fmt.Errorf("sqlite: record run %s: %w", r.RunID, err)
	}
	return nil
}

// RecordTrades inserts all trades in one transaction.
func (j *SQLite) RecordTrades(ctx context.Context, trades []TradeRecord) error {
	if len(trades) == 0 {
		return nil
	}
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO trades
		(run_id, trade_id, pair, direction, entry_price, exit_price, stop_loss, take_profit,
		 entry_time, exit_time, profit_loss, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, t := range trades {
		if _, err := stmt.ExecContext(ctx,
			t.RunID, t.TradeID, t.Pair, t.Direction, t.EntryPrice, t.ExitPrice, t.StopLoss, t.TakeProfit,
			t.EntryTime.UTC(), t.ExitTime.UTC(), t.ProfitLoss, t.Reason,
		); err != nil {
			return fmt.Errorf("sqlite: record trade %s/%d: %w", t.RunID, t.TradeID, err)
		}
	}
	return tx.Commit()
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
