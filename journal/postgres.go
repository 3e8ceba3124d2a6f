package journal

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres stores the journal in PostgreSQL through a pgx pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects, pings and creates the schema.
func NewPostgres(ctx context.Context, dsn string, maxConns int) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, PostgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) RecordRun(ctx context.Context, r RunRecord) error {
	const query = `
		INSERT INTO runs (` + runColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (run_id) DO UPDATE SET
			end_balance   = EXCLUDED.end_balance,
			net_pl        = EXCLUDED.net_pl,
			return_pct    = EXCLUDED.return_pct,
			trades        = EXCLUDED.trades,
			wins          = EXCLUDED.wins,
			losses        = EXCLUDED.losses,
			win_rate      = EXCLUDED.win_rate,
			profit_factor = EXCLUDED.profit_factor,
			ai_failures   = EXCLUDED.ai_failures,
			report_path   = EXCLUDED.report_path,
			log_path      = EXCLUDED.log_path`

	_, err := p.pool.Exec(ctx, query,
		r.RunID, r.Created, r.Pair, r.PromptFile, r.Source, r.Start, r.End,
		r.InitialBalance, r.EndBalance, r.NetPL, r.ReturnPct, r.Trades, r.Wins, r.Losses,
		r.WinRate, pfColumn(r.ProfitFactor), r.AIFailures, r.ReportPath, r.LogPath,
	)
	if err != nil {
		return fmt.Errorf("postgres: record run %s: %w", r.RunID, err)
	}
	return nil
}

// RecordTrades sends all inserts in one batch.
func (p *Postgres) RecordTrades(ctx context.Context, trades []TradeRecord) error {
	if len(trades) == 0 {
		return nil
	}
	const query = `
		INSERT INTO trades (` + tradeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (run_id, trade_id) DO NOTHING`

	batch := &pgx.Batch{}
	for _, t := range trades {
		batch.Queue(query,
			t.RunID, t.TradeID, t.Pair, t.Direction, t.EntryPrice, t.ExitPrice, t.StopLoss, t.TakeProfit,
			t.EntryTime, t.ExitTime, t.ProfitLoss, t.Reason,
		)
	}
	if err := p.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("postgres: record trades: %w", err)
	}
	return nil
}

func (p *Postgres) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	q := `SELECT ` + runColumns + ` FROM runs ORDER BY created DESC, run_id DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := p.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) GetRun(ctx context.Context, runID string) (RunRecord, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = $1`, runID)
	r, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return RunRecord{}, ErrNotFound
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("postgres: get run %s: %w", runID, err)
	}
	return r, nil
}

func (p *Postgres) ListTradesByRunID(ctx context.Context, runID string) ([]TradeRecord, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+tradeColumns+` FROM trades WHERE run_id = $1 ORDER BY trade_id ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades %s: %w", runID, err)
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan trade: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
