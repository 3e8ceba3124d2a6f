package journal

const Schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	created DATETIME NOT NULL,
	pair TEXT NOT NULL,
	prompt_file TEXT NOT NULL,
	source TEXT NOT NULL,
	start_time DATETIME NOT NULL,
	end_time DATETIME NOT NULL,
	initial_balance REAL NOT NULL,
	end_balance REAL NOT NULL,
	net_pl REAL NOT NULL,
	return_pct REAL NOT NULL,
	trades INTEGER NOT NULL,
	wins INTEGER NOT NULL,
	losses INTEGER NOT NULL,
	win_rate REAL NOT NULL,
	profit_factor REAL,
	ai_failures INTEGER NOT NULL,
	report_path TEXT NOT NULL,
	log_path TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS trades (
	run_id TEXT NOT NULL,
	trade_id INTEGER NOT NULL,
	pair TEXT NOT NULL,
	direction TEXT NOT NULL,
	entry_price REAL NOT NULL,
	exit_price REAL NOT NULL,
	stop_loss REAL NOT NULL,
	take_profit REAL NOT NULL,
	entry_time DATETIME NOT NULL,
	exit_time DATETIME NOT NULL,
	profit_loss REAL NOT NULL,
	reason TEXT NOT NULL,
	PRIMARY KEY (run_id, trade_id)
);

CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created);
CREATE INDEX IF NOT EXISTS idx_trades_exit ON trades(exit_time);
`

// PostgresSchema is Schema in PostgreSQL types.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	created TIMESTAMPTZ NOT NULL,
	pair TEXT NOT NULL,
	prompt_file TEXT NOT NULL,
	source TEXT NOT NULL,
	start_time TIMESTAMPTZ NOT NULL,
	end_time TIMESTAMPTZ NOT NULL,
	initial_balance DOUBLE PRECISION NOT NULL,
	end_balance DOUBLE PRECISION NOT NULL,
	net_pl DOUBLE PRECISION NOT NULL,
	return_pct DOUBLE PRECISION NOT NULL,
	trades INTEGER NOT NULL,
	wins INTEGER NOT NULL,
	losses INTEGER NOT NULL,
	win_rate DOUBLE PRECISION NOT NULL,
	profit_factor DOUBLE PRECISION,
	ai_failures INTEGER NOT NULL,
	report_path TEXT NOT NULL,
	log_path TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS trades (
	run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
	trade_id INTEGER NOT NULL,
	pair TEXT NOT NULL,
	direction TEXT NOT NULL,
	entry_price DOUBLE PRECISION NOT NULL,
	exit_price DOUBLE PRECISION NOT NULL,
	stop_loss DOUBLE PRECISION NOT NULL,
	take_profit DOUBLE PRECISION NOT NULL,
	entry_time TIMESTAMPTZ NOT NULL,
	exit_time TIMESTAMPTZ NOT NULL,
	profit_loss DOUBLE PRECISION NOT NULL,
	reason TEXT NOT NULL,
	PRIMARY KEY (run_id, trade_id)
);

CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created);
CREATE INDEX IF NOT EXISTS idx_trades_exit ON trades(exit_time);
`
