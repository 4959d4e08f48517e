// Package journal persists what a run did: trades, equity snapshots and
// position snapshots. Journals only observe the bus; they never feed back
// into trading.
package journal

import (
	"errors"
	"time"

	"github.com/rustyeddy/midas/broker"
	"github.com/rustyeddy/midas/position"
)

var ErrNotFound = errors.New("not found")

// TradeRecord is one executed trade leg.
type TradeRecord struct {
	RunID        string    `csv:"run_id"`
	Time         time.Time `csv:"time"`
	TradeID      int       `csv:"trade_id"`
	LegID        int       `csv:"leg_id"`
	Instrument   int       `csv:"instrument"`
	Ticker       string    `csv:"ticker"`
	SecurityType string    `csv:"security_type"`
	Action       string    `csv:"action"`
	Quantity     float64   `csv:"quantity"`
	AvgPrice     float64   `csv:"avg_price"`
	TradeValue   float64   `csv:"trade_value"`
	TradeCost    float64   `csv:"trade_cost"`
	Fees         float64   `csv:"fees"`
	IsRollover   bool      `csv:"is_rollover"`
}

// EquitySnapshot is the account at a point in time.
type EquitySnapshot struct {
	RunID           string    `csv:"run_id"`
	Time            time.Time `csv:"time"`
	NetLiquidation  float64   `csv:"net_liquidation"`
	Cash            float64   `csv:"cash"`
	UnrealizedPnL   float64   `csv:"unrealized_pnl"`
	InitMargin      float64   `csv:"init_margin"`
	MaintMargin     float64   `csv:"maint_margin"`
	AvailableFunds  float64   `csv:"available_funds"`
	ExcessLiquidity float64   `csv:"excess_liquidity"`
}

// PositionSnapshot is one open position at a point in time.
type PositionSnapshot struct {
	RunID         string    `csv:"run_id"`
	Time          time.Time `csv:"time"`
	Instrument    int       `csv:"instrument"`
	Quantity      float64   `csv:"quantity"`
	AvgPrice      float64   `csv:"avg_price"`
	MarketPrice   float64   `csv:"market_price"`
	UnrealizedPnL float64   `csv:"unrealized_pnl"`
	InitMargin    float64   `csv:"init_margin"`
}

// RunRecord describes a run.
type RunRecord struct {
	RunID    string
	Created  time.Time
	Mode     string
	Strategy string
	Dataset  string
	Capital  float64
	Currency string
}

type Journal interface {
	RecordRun(RunRecord) error
	RecordTrade(TradeRecord) error
	RecordEquity(EquitySnapshot) error
	RecordPositions([]PositionSnapshot) error
	Close() error
}

// NewTradeRecord flattens an execution for runID.
func NewTradeRecord(runID string, ev broker.ExecutionEvent) TradeRecord {
	t := ev.Trade
	rec := TradeRecord{
		RunID:        runID,
		Time:         t.Timestamp,
		TradeID:      t.TradeID,
		LegID:        t.LegID,
		Instrument:   t.Instrument,
		SecurityType: string(t.SecurityType),
		Action:       string(t.Action),
		Quantity:     t.Quantity,
		AvgPrice:     t.AvgPrice,
		TradeValue:   t.TradeValue,
		TradeCost:    t.TradeCost,
		Fees:         t.Fees,
		IsRollover:   t.IsRollover,
	}
	if ev.Symbol != nil {
		rec.Ticker = ev.Symbol.DisplayTicker
	}
	return rec
}

func NewEquitySnapshot(runID string, a broker.Account) EquitySnapshot {
	return EquitySnapshot{
		RunID:           runID,
		Time:            a.Timestamp,
		NetLiquidation:  a.EquityValue().Value,
		Cash:            a.TotalCashBalance,
		UnrealizedPnL:   a.UnrealizedPnL,
		InitMargin:      a.FullInitMarginReq,
		MaintMargin:     a.FullMaintMarginReq,
		AvailableFunds:  a.FullAvailableFunds,
		ExcessLiquidity: a.ExcessLiquidity,
	}
}

// NewPositionSnapshots flattens positions, ordered by instrument.
func NewPositionSnapshots(runID string, ts time.Time, positions map[int]position.Position) []PositionSnapshot {
	out := make([]PositionSnapshot, 0, len(positions))
	for id, p := range positions {
		out = append(out, PositionSnapshot{
			RunID:         runID,
			Time:          ts,
			Instrument:    id,
			Quantity:      p.Quantity,
			AvgPrice:      p.AvgPrice,
			MarketPrice:   p.MarketPrice,
			UnrealizedPnL: p.UnrealizedPnL,
			InitMargin:    p.InitMarginRequired,
		})
	}
	sortSnapshots(out)
	return out
}
