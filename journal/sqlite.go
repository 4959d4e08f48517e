package journal

import (
	"database/sql"
	"fmt"
	"sort"

	_ "github.com/mattn/go-sqlite3"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordRun(r RunRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO runs
		(run_id, created, mode, strategy, dataset, capital, currency)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Created, r.Mode, r.Strategy, r.Dataset, r.Capital, r.Currency,
	)
	return err
}

func (j *SQLite) RecordTrade(t TradeRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO trades
		(run_id, time, trade_id, leg_id, instrument, ticker, security_type, action,
		 quantity, avg_price, trade_value, trade_cost, fees, is_rollover)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.RunID, t.Time, t.TradeID, t.LegID, t.Instrument, t.Ticker, t.SecurityType, t.Action,
		t.Quantity, t.AvgPrice, t.TradeValue, t.TradeCost, t.Fees, t.IsRollover,
	)
	return err
}

func (j *SQLite) RecordEquity(e EquitySnapshot) error {
	_, err := j.db.Exec(`
		INSERT INTO equity
		(run_id, time, net_liquidation, cash, unrealized_pnl, init_margin, maint_margin,
		 available_funds, excess_liquidity)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.Time, e.NetLiquidation, e.Cash, e.UnrealizedPnL, e.InitMargin, e.MaintMargin,
		e.AvailableFunds, e.ExcessLiquidity,
	)
	return err
}

// RecordPositions writes one snapshot in a single transaction.
func (j *SQLite) RecordPositions(ps []PositionSnapshot) error {
	tx, err := j.db.Begin()
	if err != nil {
		return err
	}
	for _, p := range ps {
		_, err := tx.Exec(`
			INSERT INTO positions
			(run_id, time, instrument, quantity, avg_price, market_price, unrealized_pnl, init_margin)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			p.RunID, p.Time, p.Instrument, p.Quantity, p.AvgPrice, p.MarketPrice, p.UnrealizedPnL, p.InitMargin,
		)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (j *SQLite) Close() error {
	return j.db.Close()
}

func sortSnapshots(ps []PositionSnapshot) {
	sort.Slice(ps, func(a, b int) bool { return ps[a].Instrument < ps[b].Instrument })
}
