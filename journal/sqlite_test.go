package journal

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ts = time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC)

func newTestSQLite(t *testing.T) (*SQLite, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	j, err := NewSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j, path
}

func trade(runID string, tradeID, legID int, at time.Time, qty float64) TradeRecord {
	return TradeRecord{
		RunID: runID, Time: at, TradeID: tradeID, LegID: legID,
		Instrument: 1, Ticker: "AAPL", SecurityType: "STK", Action: "LONG",
		Quantity: qty, AvgPrice: 100.01, TradeValue: qty * 100.01, TradeCost: qty * 100.01, Fees: -0.5,
	}
}

func TestSQLiteSchemaCreated(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)
	require.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type='table'`)
	require.NoError(t, err)
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		found[name] = true
	}
	require.NoError(t, rows.Err())

	for _, table := range []string{"runs", "trades", "equity", "positions"} {
		assert.True(t, found[table], table)
	}
}

func TestSQLiteRuns(t *testing.T) {
	t.Parallel()
	j, _ := newTestSQLite(t)

	first := RunRecord{RunID: "R1", Created: ts, Mode: "backtest", Strategy: "ema-cross", Dataset: "bars.csv", Capital: 100000, Currency: "USD"}
	second := first
	second.RunID, second.Created = "R2", ts.Add(time.Hour)
	require.NoError(t, j.RecordRun(first))
	require.NoError(t, j.RecordRun(second))
	assert.Error(t, j.RecordRun(first), "run ids are unique")

	got, err := j.GetRun("R1")
	require.NoError(t, err)
	assert.Equal(t, "ema-cross", got.Strategy)
	assert.True(t, got.Created.Equal(ts))

	_, err = j.GetRun("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	runs, err := j.ListRuns()
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "R2", runs[0].RunID)
}

func TestSQLiteTrades(t *testing.T) {
	t.Parallel()
	j, _ := newTestSQLite(t)

	require.NoError(t, j.RecordTrade(trade("R1", 1, 1, ts, 10)))
	require.NoError(t, j.RecordTrade(trade("R1", 1, 2, ts.Add(time.Minute), -10)))
	require.NoError(t, j.RecordTrade(trade("R2", 1, 1, ts, 3)))

	got, err := j.ListTrades("R1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].LegID)
	assert.Equal(t, 2, got[1].LegID)
	assert.Equal(t, -10.0, got[1].Quantity)
	assert.InDelta(t, 100.01, got[0].AvgPrice, 1e-9)
	assert.Equal(t, -0.5, got[0].Fees)
	assert.Equal(t, "AAPL", got[0].Ticker)
	assert.True(t, got[0].Time.Equal(ts))

	leg, err := j.GetTrade("R2", 1, 1)
	require.NoError(t, err)
	require.Len(t, leg, 1)
	assert.Equal(t, 3.0, leg[0].Quantity)

	_, err = j.GetTrade("R2", 9, 1)
	assert.ErrorIs(t, err, ErrNotFound)

	none, err := j.ListTrades("R3")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLiteEquityAndPositions(t *testing.T) {
	t.Parallel()
	j, _ := newTestSQLite(t)

	require.NoError(t, j.RecordEquity(EquitySnapshot{RunID: "R1", Time: ts, NetLiquidation: 100000, Cash: 100000, AvailableFunds: 100000}))
	require.NoError(t, j.RecordEquity(EquitySnapshot{RunID: "R1", Time: ts.Add(time.Hour), NetLiquidation: 100500, Cash: 90000, UnrealizedPnL: 500}))

	eq, err := j.ListEquity("R1")
	require.NoError(t, err)
	require.Len(t, eq, 2)
	assert.Equal(t, 100500.0, eq[1].NetLiquidation)
	assert.Equal(t, 500.0, eq[1].UnrealizedPnL)

	require.NoError(t, j.RecordPositions([]PositionSnapshot{
		{RunID: "R1", Time: ts, Instrument: 1, Quantity: 10, AvgPrice: 100, MarketPrice: 105, UnrealizedPnL: 50},
		{RunID: "R1", Time: ts, Instrument: 2, Quantity: -2, AvgPrice: 80, MarketPrice: 80, InitMargin: 10000},
	}))
	require.NoError(t, j.RecordPositions(nil))

	ps, err := j.ListPositions("R1")
	require.NoError(t, err)
	require.Len(t, ps, 2)
	assert.Equal(t, 2, ps[1].Instrument)
	assert.Equal(t, 10000.0, ps[1].InitMargin)
}
