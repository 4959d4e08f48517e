package journal

const Schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	created DATETIME NOT NULL,
	mode TEXT NOT NULL,
	strategy TEXT NOT NULL,
	dataset TEXT NOT NULL,
	capital REAL NOT NULL,
	currency TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS trades (
	run_id TEXT NOT NULL,
	time DATETIME NOT NULL,
	trade_id INTEGER NOT NULL,
	leg_id INTEGER NOT NULL,
	instrument INTEGER NOT NULL,
	ticker TEXT NOT NULL,
	security_type TEXT NOT NULL,
	action TEXT NOT NULL,
	quantity REAL NOT NULL,
	avg_price REAL NOT NULL,
	trade_value REAL NOT NULL,
	trade_cost REAL NOT NULL,
	fees REAL NOT NULL,
	is_rollover INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS equity (
	run_id TEXT NOT NULL,
	time DATETIME NOT NULL,
	net_liquidation REAL NOT NULL,
	cash REAL NOT NULL,
	unrealized_pnl REAL NOT NULL,
	init_margin REAL NOT NULL,
	maint_margin REAL NOT NULL,
	available_funds REAL NOT NULL,
	excess_liquidity REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
	run_id TEXT NOT NULL,
	time DATETIME NOT NULL,
	instrument INTEGER NOT NULL,
	quantity REAL NOT NULL,
	avg_price REAL NOT NULL,
	market_price REAL NOT NULL,
	unrealized_pnl REAL NOT NULL,
	init_margin REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_run ON trades(run_id, trade_id, leg_id);
CREATE INDEX IF NOT EXISTS idx_equity_run_time ON equity(run_id, time);
CREATE INDEX IF NOT EXISTS idx_positions_run_time ON positions(run_id, time);
`
