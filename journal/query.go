package journal

import (
	"database/sql"
	"errors"
	"fmt"
)

// GetRun returns the run record for runID.
func (j *SQLite) GetRun(runID string) (RunRecord, error) {
	var r RunRecord
	err := j.db.QueryRow(`
		SELECT run_id, created, mode, strategy, dataset, capital, currency
		FROM runs
		WHERE run_id = ?`, runID).Scan(
		&r.RunID, &r.Created, &r.Mode, &r.Strategy, &r.Dataset, &r.Capital, &r.Currency,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, fmt.Errorf("run %q: %w", runID, ErrNotFound)
	}
	return r, err
}

// ListRuns returns every run, newest first.
func (j *SQLite) ListRuns() ([]RunRecord, error) {
	rows, err := j.db.Query(`
		SELECT run_id, created, mode, strategy, dataset, capital, currency
		FROM runs
		ORDER BY created DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(&r.RunID, &r.Created, &r.Mode, &r.Strategy, &r.Dataset, &r.Capital, &r.Currency); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const tradeColumns = `run_id, time, trade_id, leg_id, instrument, ticker, security_type, action,
	quantity, avg_price, trade_value, trade_cost, fees, is_rollover`

func scanTrade(s interface{ Scan(...any) error }) (TradeRecord, error) {
	var t TradeRecord
	err := s.Scan(
		&t.RunID, &t.Time, &t.TradeID, &t.LegID, &t.Instrument, &t.Ticker, &t.SecurityType, &t.Action,
		&t.Quantity, &t.AvgPrice, &t.TradeValue, &t.TradeCost, &t.Fees, &t.IsRollover,
	)
	return t, err
}

// GetTrade returns the fills of one trade leg in time order.
func (j *SQLite) GetTrade(runID string, tradeID, legID int) ([]TradeRecord, error) {
	rows, err := j.db.Query(`
		SELECT `+tradeColumns+`
		FROM trades
		WHERE run_id = ? AND trade_id = ? AND leg_id = ?
		ORDER BY time ASC`, runID, tradeID, legID)
	if err != nil {
		return nil, err
	}
	out, err := collectTrades(rows)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("trade %d-%d in run %q: %w", tradeID, legID, runID, ErrNotFound)
	}
	return out, nil
}

// ListTrades returns the trades of a run in execution order.
func (j *SQLite) ListTrades(runID string) ([]TradeRecord, error) {
	rows, err := j.db.Query(`
		SELECT `+tradeColumns+`
		FROM trades
		WHERE run_id = ?
		ORDER BY time ASC, rowid ASC`, runID)
	if err != nil {
		return nil, err
	}
	return collectTrades(rows)
}

func collectTrades(rows *sql.Rows) ([]TradeRecord, error) {
	defer rows.Close()
	var out []TradeRecord
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListEquity returns the equity curve of a run.
func (j *SQLite) ListEquity(runID string) ([]EquitySnapshot, error) {
	rows, err := j.db.Query(`
		SELECT run_id, time, net_liquidation, cash, unrealized_pnl, init_margin, maint_margin,
			available_funds, excess_liquidity
		FROM equity
		WHERE run_id = ?
		ORDER BY time ASC, rowid ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EquitySnapshot
	for rows.Next() {
		var e EquitySnapshot
		if err := rows.Scan(
			&e.RunID, &e.Time, &e.NetLiquidation, &e.Cash, &e.UnrealizedPnL, &e.InitMargin, &e.MaintMargin,
			&e.AvailableFunds, &e.ExcessLiquidity,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListPositions returns every position snapshot of a run.
func (j *SQLite) ListPositions(runID string) ([]PositionSnapshot, error) {
	rows, err := j.db.Query(`
		SELECT run_id, time, instrument, quantity, avg_price, market_price, unrealized_pnl, init_margin
		FROM positions
		WHERE run_id = ?
		ORDER BY time ASC, rowid ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PositionSnapshot
	for rows.Next() {
		var p PositionSnapshot
		if err := rows.Scan(
			&p.RunID, &p.Time, &p.Instrument, &p.Quantity, &p.AvgPrice, &p.MarketPrice, &p.UnrealizedPnL, &p.InitMargin,
		); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
