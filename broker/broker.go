package broker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rustyeddy/midas/orders"
	"github.com/rustyeddy/midas/position"
	"github.com/rustyeddy/midas/symbol"
)

var ErrInvalidTrade = errors.New("invalid trade")

// Broker executes orders. Implementations report back asynchronously on
// the TRADE, ORDER_UPDATE, POSITION_UPDATE and ACCOUNT_UPDATE topics.
type Broker interface {
	PlaceOrder(ctx context.Context, ev orders.OrderEvent) error
	CancelOrder(ctx context.Context, permID int) error
}

// Account is a point in time capital snapshot. It is always replaced as a
// whole, never merged.
type Account struct {
	Timestamp          time.Time
	FullAvailableFunds float64
	FullInitMarginReq  float64
	NetLiquidation     float64
	UnrealizedPnL      float64
	FullMaintMarginReq float64
	ExcessLiquidity    float64
	Currency           string
	BuyingPower        float64
	FuturesPnL         float64
	TotalCashBalance   float64
}

// Capital is what is available for new positions.
func (a Account) Capital() float64 {
	return a.FullAvailableFunds
}

// CheckMarginCall reports whether net liquidation has fallen below the
// maintenance margin requirement.
func (a Account) CheckMarginCall() bool {
	return a.ExcessLiquidity < 0
}

// EquityValue is the net liquidation value rounded to cents.
type EquityValue struct {
	Timestamp time.Time
	Value     float64
}

func (a Account) EquityValue() EquityValue {
	return EquityValue{
		Timestamp: a.Timestamp,
		Value:     math.Round(a.NetLiquidation*100) / 100,
	}
}

// Trade is a realized fill. Trades are only ever appended and are keyed by
// (TradeID, LegID).
type Trade struct {
	Timestamp    time.Time
	TradeID      int
	LegID        int
	Instrument   int
	SecurityType symbol.SecurityType
	Quantity     float64
	AvgPrice     float64
	TradeValue   float64
	TradeCost    float64
	Action       orders.Action
	Fees         float64
	IsRollover   bool
}

// NewTrade validates t.
func NewTrade(t Trade) (Trade, error) {
	if t.TradeID <= 0 || t.LegID <= 0 {
		return t, fmt.Errorf("%w: trade and leg id must be positive", ErrInvalidTrade)
	}
	if t.Instrument <= 0 {
		return t, fmt.Errorf("%w: instrument must be positive", ErrInvalidTrade)
	}
	if t.AvgPrice <= 0 {
		return t, fmt.Errorf("%w: avg_price must be greater than zero", ErrInvalidTrade)
	}
	if !t.Action.Valid() {
		return t, fmt.Errorf("%w: unknown action %q", ErrInvalidTrade, t.Action)
	}
	return t, nil
}

// Key identifies the trade leg.
func (t Trade) Key() string {
	return fmt.Sprintf("%d-%d", t.TradeID, t.LegID)
}

// ExecutionEvent is published on TRADE for every fill.
type ExecutionEvent struct {
	Timestamp time.Time
	Trade     Trade
	Action    orders.Action
	Symbol    *symbol.Symbol
}

// PositionUpdate is the broker's view of one instrument's position. A zero
// Quantity means the position is closed.
type PositionUpdate struct {
	Timestamp    time.Time
	InstrumentID int
	Position     position.Position

	// PermID is the order whose fill produced the update; zero for marks
	// and snapshots.
	PermID int
}

// ConnectionEvent is published on CONNECTION when a live venue connects or
// drops.
type ConnectionEvent struct {
	Timestamp time.Time
	Connected bool
	Reason    string
}
