package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"apex_hunter_go/exchange"
	"apex_hunter_go/logs"
	"apex_hunter_go/position"
	"apex_hunter_go/risk"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

var ErrUnsupportedDriver = errors.New("unsupported journal driver")

// RejectionRecord is a stored risk-chain veto.
type RejectionRecord struct {
	ID         string
	At         time.Time
	StrategyID string
	Symbol     string
	Layer      string
	Reason     string
	Details    string
}

// Journal persists trades, rejections and trailing events to a SQL database.
type Journal struct {
	db     *sql.DB
	driver string
	now    func() time.Time
}

// Open connects to dsn with driver ("sqlite3" or "postgres") and creates the schema.
func Open(driver, dsn string) (*Journal, error) {
	if driver != "sqlite3" && driver != "postgres" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDriver, driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if driver == "sqlite3" {
		// sqlite serialises writers; one connection avoids "database is locked".
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create journal schema: %w", err)
	}
	logs.Infof("[Journal] Opened %s journal", driver)
	return &Journal{db: db, driver: driver, now: time.Now}, nil
}

// New wraps an existing handle. The schema is assumed to exist.
func New(db *sql.DB, driver string) (*Journal, error) {
	if driver != "sqlite3" && driver != "postgres" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDriver, driver)
	}
	return &Journal{db: db, driver: driver, now: time.Now}, nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (j *Journal) rebind(query string) string {
	if j.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (j *Journal) RecordTrade(t position.Trade) error {
	_, err := j.db.Exec(j.rebind(`
		INSERT INTO trades
		(id, position_id, strategy_id, symbol, side, entry_time, exit_time, entry_price, exit_price,
		 leverage, size_usd, pnl_usd, pnl_percent, exit_reason, balance_after)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		newID(t.ExitTime), t.PositionID, t.StrategyID, t.Symbol, string(t.Side),
		t.EntryTime.UTC(), t.ExitTime.UTC(), t.EntryPrice, t.ExitPrice,
		t.Leverage, t.SizeUSD, t.PnLUSD, t.PnLPercent, string(t.ExitReason), t.BalanceAfter,
	)
	if err != nil {
		return fmt.Errorf("record trade %s: %w", t.PositionID, err)
	}
	return nil
}

func (j *Journal) RecordRejection(r risk.Rejection) error {
	at := j.now().UTC()
	_, err := j.db.Exec(j.rebind(`
		INSERT INTO rejections (id, at, strategy_id, symbol, layer, reason, details)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		newID(at), at, r.StrategyID, r.Symbol, r.Layer, r.Reason, r.Details,
	)
	if err != nil {
		return fmt.Errorf("record rejection: %w", err)
	}
	return nil
}

func (j *Journal) RecordTrailingUpdate(u position.TrailingUpdate) error {
	_, err := j.db.Exec(j.rebind(`
		INSERT INTO trailing_events
		(id, at, strategy_id, symbol, side, kind, price, profit_percent, old_value, new_value)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		newID(u.At), u.At.UTC(), u.StrategyID, u.Symbol, string(u.Side), string(u.Kind),
		u.Price, u.ProfitPercent, u.OldValue, u.NewValue,
	)
	if err != nil {
		return fmt.Errorf("record trailing update: %w", err)
	}
	return nil
}

// RecentTrades returns up to n trades, newest first.
func (j *Journal) RecentTrades(n int) ([]position.Trade, error) {
	rows, err := j.db.Query(j.rebind(`
		SELECT position_id, strategy_id, symbol, side, entry_time, exit_time, entry_price, exit_price,
		       leverage, size_usd, pnl_usd, pnl_percent, exit_reason, balance_after
		FROM trades
		ORDER BY id DESC
		LIMIT ?`), n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []position.Trade
	for rows.Next() {
		var t position.Trade
		var side, reason string
		if err := rows.Scan(
			&t.PositionID, &t.StrategyID, &t.Symbol, &side, &t.EntryTime, &t.ExitTime,
			&t.EntryPrice, &t.ExitPrice, &t.Leverage, &t.SizeUSD, &t.PnLUSD, &t.PnLPercent,
			&reason, &t.BalanceAfter,
		); err != nil {
			return nil, err
		}
		t.Side = exchange.PositionSide(side)
		t.ExitReason = position.ExitReason(reason)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// RecentRejections returns up to n rejections, newest first.
func (j *Journal) RecentRejections(n int) ([]RejectionRecord, error) {
	rows, err := j.db.Query(j.rebind(`
		SELECT id, at, strategy_id, symbol, layer, reason, details
		FROM rejections
		ORDER BY id DESC
		LIMIT ?`), n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RejectionRecord
	for rows.Next() {
		var r RejectionRecord
		if err := rows.Scan(&r.ID, &r.At, &r.StrategyID, &r.Symbol, &r.Layer, &r.Reason, &r.Details); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}
