package journal

// Schema creates every table the engine persists. Idempotent; applied
// on every Open.
const Schema = `
CREATE TABLE IF NOT EXISTS trades (
	id                 TEXT PRIMARY KEY,
	symbol             TEXT NOT NULL,
	side               TEXT NOT NULL,
	status             TEXT NOT NULL,
	mode               TEXT NOT NULL,
	opened_at          DATETIME NOT NULL,
	closed_at          DATETIME,
	entry_price        REAL NOT NULL,
	entry_qty          REAL NOT NULL,
	entry_notional_usd REAL NOT NULL,
	stop_price         REAL NOT NULL,
	take_profit_price  REAL NOT NULL,
	trailing_enabled   BOOLEAN NOT NULL DEFAULT 0,
	trailing_offset    REAL,
	exit_price         REAL,
	realized_pnl_usd   REAL,
	fees_paid_usd      REAL,
	slippage_est_usd   REAL,
	notes              TEXT
);

CREATE INDEX IF NOT EXISTS idx_trades_status ON trades(status);
CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);

CREATE TABLE IF NOT EXISTS orders (
	id                TEXT PRIMARY KEY,
	trade_id          TEXT NOT NULL REFERENCES trades(id),
	symbol            TEXT NOT NULL,
	side              TEXT NOT NULL,
	order_type        TEXT NOT NULL,
	qty               REAL NOT NULL,
	price             REAL,
	status            TEXT NOT NULL,
	exchange_order_id TEXT,
	idempotency_key   TEXT UNIQUE,
	created_at        DATETIME NOT NULL,
	updated_at        DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_orders_trade ON orders(trade_id);

CREATE TABLE IF NOT EXISTS equity_snapshots (
	id                     INTEGER PRIMARY KEY AUTOINCREMENT,
	ts                     DATETIME NOT NULL,
	equity_usd             REAL NOT NULL,
	cash_usd               REAL NOT NULL,
	unrealized_pnl_usd     REAL NOT NULL,
	realized_pnl_today_usd REAL NOT NULL,
	open_positions         INTEGER NOT NULL,
	meta                   TEXT
);

CREATE TABLE IF NOT EXISTS events (
	id          TEXT PRIMARY KEY,
	seq         INTEGER NOT NULL UNIQUE,
	ts          DATETIME NOT NULL,
	level       TEXT NOT NULL,
	type        TEXT NOT NULL,
	symbol      TEXT,
	trade_id    TEXT,
	payload     TEXT,
	public_safe BOOLEAN NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_events_type ON events(type);
CREATE INDEX IF NOT EXISTS idx_events_ts ON events(ts);
`
