package journal

// Schema is valid for both sqlite3 and postgres.
const Schema = `
CREATE TABLE IF NOT EXISTS trades (
	id            TEXT PRIMARY KEY,
	position_id   TEXT NOT NULL,
	strategy_id   TEXT NOT NULL,
	symbol        TEXT NOT NULL,
	side          TEXT NOT NULL,
	entry_time    TIMESTAMP NOT NULL,
	exit_time     TIMESTAMP NOT NULL,
	entry_price   DOUBLE PRECISION NOT NULL,
	exit_price    DOUBLE PRECISION NOT NULL,
	leverage      INTEGER NOT NULL,
	size_usd      DOUBLE PRECISION NOT NULL,
	pnl_usd       DOUBLE PRECISION NOT NULL,
	pnl_percent   DOUBLE PRECISION NOT NULL,
	exit_reason   TEXT NOT NULL,
	balance_after DOUBLE PRECISION NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_exit_time ON trades (exit_time);

CREATE TABLE IF NOT EXISTS rejections (
	id          TEXT PRIMARY KEY,
	at          TIMESTAMP NOT NULL,
	strategy_id TEXT NOT NULL,
	symbol      TEXT NOT NULL,
	layer       TEXT NOT NULL,
	reason      TEXT NOT NULL,
	details     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS trailing_events (
	id             TEXT PRIMARY KEY,
	at             TIMESTAMP NOT NULL,
	strategy_id    TEXT NOT NULL,
	symbol         TEXT NOT NULL,
	side           TEXT NOT NULL,
	kind           TEXT NOT NULL,
	price          DOUBLE PRECISION NOT NULL,
	profit_percent DOUBLE PRECISION NOT NULL,
	old_value      DOUBLE PRECISION NOT NULL,
	new_value      DOUBLE PRECISION NOT NULL
);
`
