package journal

import (
	"path/filepath"
	"testing"
	"time"

	"apex_hunter_go/exchange"
	"apex_hunter_go/position"
	"apex_hunter_go/risk"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func newTestSQLite(t *testing.T) *Journal {
	t.Helper()
	j, err := Open("sqlite3", filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func sampleTrade(id string, exit time.Time, pnl float64) position.Trade {
	return position.Trade{
		PositionID: id, StrategyID: "s1", Symbol: "BTCUSDT", Side: exchange.Long,
		EntryTime: exit.Add(-time.Hour), ExitTime: exit, EntryPrice: 100, ExitPrice: 104,
		Leverage: 3, SizeUSD: 10, PnLUSD: pnl, PnLPercent: 12, ExitReason: position.ExitTakeProfit,
		BalanceAfter: 101.2,
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("mysql", "x")
	assert.ErrorIs(t, err, ErrUnsupportedDriver)
}

func TestSQLiteTradesRoundTrip(t *testing.T) {
	j := newTestSQLite(t)

	require.NoError(t, j.RecordTrade(sampleTrade("p1", t0, 1.2)))
	require.NoError(t, j.RecordTrade(sampleTrade("p2", t0.Add(time.Minute), -0.4)))

	trades, err := j.RecentTrades(10)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "p2", trades[0].PositionID, "newest first")
	assert.Equal(t, exchange.Long, trades[1].Side)
	assert.Equal(t, position.ExitTakeProfit, trades[1].ExitReason)
	assert.InDelta(t, 1.2, trades[1].PnLUSD, 1e-9)
	assert.Equal(t, 3, trades[1].Leverage)
	assert.True(t, trades[1].ExitTime.Equal(t0))

	limited, err := j.RecentTrades(1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSQLiteRejectionsAndTrailing(t *testing.T) {
	j := newTestSQLite(t)
	j.now = func() time.Time { return t0 }

	require.NoError(t, j.RecordRejection(risk.Rejection{
		Symbol: "BTCUSDT", StrategyID: "s1", Layer: "DailyLossLimit", Reason: "daily loss limit reached",
	}))
	require.NoError(t, j.RecordTrailingUpdate(position.TrailingUpdate{
		Kind: position.StopActivated, StrategyID: "s1", Symbol: "BTCUSDT", Side: exchange.Long,
		Price: 106, ProfitPercent: 6, OldValue: 98, NewValue: 103.88, At: t0,
	}))

	rejections, err := j.RecentRejections(5)
	require.NoError(t, err)
	require.Len(t, rejections, 1)
	assert.Equal(t, "DailyLossLimit", rejections[0].Layer)
	assert.True(t, rejections[0].At.Equal(t0))
	assert.NotEmpty(t, rejections[0].ID)

	var count int
	require.NoError(t, j.db.QueryRow(`SELECT COUNT(*) FROM trailing_events`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestPostgresUsesNumberedPlaceholders(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	j, err := New(db, "postgres")
	require.NoError(t, err)
	j.now = func() time.Time { return t0 }

	mock.ExpectExec(`INSERT INTO rejections .* VALUES \(\$1, \$2, \$3, \$4, \$5, \$6, \$7\)`).
		WithArgs(sqlmock.AnyArg(), t0, "s1", "ETHUSDT", "CircuitBreaker", "halted", "").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = j.RecordRejection(risk.Rejection{Symbol: "ETHUSDT", StrategyID: "s1", Layer: "CircuitBreaker", Reason: "halted"})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRecentTrades(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	j, err := New(db, "postgres")
	require.NoError(t, err)

	cols := []string{"position_id", "strategy_id", "symbol", "side", "entry_time", "exit_time", "entry_price",
		"exit_price", "leverage", "size_usd", "pnl_usd", "pnl_percent", "exit_reason", "balance_after"}
	mock.ExpectQuery(`SELECT .* FROM trades .* LIMIT \$1`).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("p9", "s1", "ETHUSDT", "SHORT", t0, t0.Add(time.Hour), 100.0, 102.0, 2, 10.0, -0.4, -4.0, "stop_loss", 99.6))

	trades, err := j.RecentTrades(5)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, exchange.Short, trades[0].Side)
	assert.Equal(t, position.ExitStopLoss, trades[0].ExitReason)
	assert.False(t, trades[0].IsWin())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresInsertErrorIsWrapped(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	j, err := New(db, "postgres")
	require.NoError(t, err)

	mock.ExpectExec(`INSERT INTO trades`).WillReturnError(assert.AnError)
	err = j.RecordTrade(sampleTrade("p1", t0, 1))
	assert.ErrorIs(t, err, assert.AnError)
}

func TestRebind(t *testing.T) {
	pg := &Journal{driver: "postgres"}
	assert.Equal(t, "a = $1 AND b = $2", pg.rebind("a = ? AND b = ?"))
	lite := &Journal{driver: "sqlite3"}
	assert.Equal(t, "a = ?", lite.rebind("a = ?"))
}
