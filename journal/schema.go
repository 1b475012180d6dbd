package journal

const Schema = `
CREATE TABLE IF NOT EXISTS decisions (
	time DATETIME NOT NULL,
	symbol TEXT NOT NULL,
	signal_type TEXT NOT NULL,
	side TEXT NOT NULL,
	approved INTEGER NOT NULL,
	reason TEXT NOT NULL,
	order_id TEXT,
	qty REAL NOT NULL,
	price REAL NOT NULL,
	scaled_by_margin INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS fills (
	order_id TEXT NOT NULL,
	time DATETIME NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	qty REAL NOT NULL,
	price REAL NOT NULL,
	fee REAL NOT NULL,
	slippage REAL NOT NULL,
	reason TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS equity (
	time DATETIME NOT NULL,
	cash REAL NOT NULL,
	equity REAL NOT NULL,
	margin_locked REAL NOT NULL,
	free_margin REAL NOT NULL,
	open_positions INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decisions_time ON decisions(time);
CREATE INDEX IF NOT EXISTS idx_fills_time ON fills(time);
CREATE INDEX IF NOT EXISTS idx_equity_time ON equity(time);
`
