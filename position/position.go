package position

import (
	"errors"
	"fmt"
	"math"

	"github.com/rustyeddy/midas/symbol"
)

var ErrInvalidPosition = errors.New("invalid position")

const (
	Buy  = "BUY"
	Sell = "SELL"
)

// Impact is the effect of a position (or a fill on it) on the account
// aggregates. Cash is a delta; the other fields are the position's figures
// after the change.
type Impact struct {
	InitMarginRequired        float64
	MaintenanceMarginRequired float64
	UnrealizedPnL             float64
	LiquidationValue          float64
	Cash                      float64
}

// Position is a holding in one instrument. Type selects the variant; the
// option fields are only meaningful for symbol.Option and the margins only
// for symbol.Future.
type Position struct {
	Type               symbol.SecurityType
	Action             string
	Quantity           float64
	AvgPrice           float64
	MarketPrice        float64
	QuantityMultiplier float64
	PriceMultiplier    float64

	InitialMargin     float64
	MaintenanceMargin float64

	Right          symbol.Right
	StrikePrice    float64
	ExpirationDate string

	InitialValue              float64
	InitialCost               float64
	MarketValue               float64
	UnrealizedPnL             float64
	InitMarginRequired        float64
	MaintenanceMarginRequired float64
	LiquidationValue          float64
}

// New validates p and fills in the derived figures.
func New(p Position) (*Position, error) {
	if p.Action != Buy && p.Action != Sell {
		return nil, fmt.Errorf("%w: action must be BUY or SELL, got %q", ErrInvalidPosition, p.Action)
	}
	if p.QuantityMultiplier <= 0 {
		return nil, fmt.Errorf("%w: quantity multiplier must be greater than zero", ErrInvalidPosition)
	}
	if p.PriceMultiplier <= 0 {
		return nil, fmt.Errorf("%w: price multiplier must be greater than zero", ErrInvalidPosition)
	}
	if p.InitialMargin < 0 || p.MaintenanceMargin < 0 {
		return nil, fmt.Errorf("%w: margin must be non-negative", ErrInvalidPosition)
	}

	switch p.Type {
	case symbol.Stock, symbol.Future:
	case symbol.Option:
		if p.StrikePrice <= 0 {
			return nil, fmt.Errorf("%w: strike price must be greater than zero", ErrInvalidPosition)
		}
		if p.Right != symbol.Call && p.Right != symbol.Put {
			return nil, fmt.Errorf("%w: unknown option right %q", ErrInvalidPosition, p.Right)
		}
	default:
		return nil, fmt.Errorf("%w: unknown security type %q", ErrInvalidPosition, p.Type)
	}

	pos := p
	pos.recalc()
	return &pos, nil
}

// FromSymbol builds a position for sym. The action follows the sign of qty.
func FromSymbol(sym *symbol.Symbol, qty, avgPrice, marketPrice float64) (*Position, error) {
	p := Position{
		Type:               sym.Type,
		Action:             sideOf(qty, Buy),
		Quantity:           qty,
		AvgPrice:           avgPrice,
		MarketPrice:        marketPrice,
		QuantityMultiplier: sym.QuantityMultiplier,
		PriceMultiplier:    sym.PriceMultiplier,
	}
	switch sym.Type {
	case symbol.Future:
		p.InitialMargin = sym.InitialMargin
		p.MaintenanceMargin = sym.MaintenanceMargin
	case symbol.Option:
		if sym.Option != nil {
			p.Right = sym.Option.Right
			p.StrikePrice = sym.Option.StrikePrice
			p.ExpirationDate = sym.Option.ExpirationDate
		}
	}
	return New(p)
}

// PositionImpact reports the current figures at MarketPrice. Cash is what
// it cost to put the position on: margin posted for futures, notional for
// equities and options.
func (p *Position) PositionImpact() Impact {
	c := *p
	c.recalc()
	return c.impact(-c.InitialCost)
}

// Mark revalues the position at price.
func (p *Position) Mark(price float64) {
	p.MarketPrice = price
	p.recalc()
}

// Update applies a fill of fillQty at fillPrice and returns the resulting
// figures plus the cash delta. action is the fill's broker side and decides
// the sign of fillQty.
//
// A fill that crosses zero closes the old quantity and opens the remainder
// at fillPrice; the new leg is marked at fillPrice so its unrealized P&L
// starts at zero.
func (p *Position) Update(fillQty, fillPrice, marketPrice float64, action string) Impact {
	if fillQty == 0 {
		p.Mark(marketPrice)
		return p.impact(0)
	}

	fillQty = math.Abs(fillQty)
	if action == Sell {
		fillQty = -fillQty
	}

	oldQty := p.Quantity
	oldAvg := p.AvgPrice
	oldCost := p.InitialCost
	newQty := oldQty + fillQty
	mult := p.QuantityMultiplier * p.PriceMultiplier

	var realized float64
	mark := marketPrice

	switch {
	case oldQty == 0 || sameSign(oldQty, fillQty):
		// add
		p.AvgPrice = (oldAvg*oldQty + fillPrice*fillQty) / newQty
	case newQty == 0 || sameSign(oldQty, newQty):
		// partial or full exit, average unchanged
		realized = (fillPrice - oldAvg) * -fillQty * mult
	default:
		// flip
		realized = (fillPrice - oldAvg) * oldQty * mult
		p.AvgPrice = fillPrice
		mark = fillPrice
	}

	p.Quantity = newQty
	p.Action = sideOf(newQty, p.Action)
	p.MarketPrice = mark
	p.recalc()

	var cash float64
	switch p.Type {
	case symbol.Future:
		cash = (oldCost - p.InitialCost) + realized
	default:
		cash = -fillQty * fillPrice * mult
	}
	return p.impact(cash)
}

// Equal reports whether both positions hold identical state.
func (p *Position) Equal(o *Position) bool {
	if p == nil || o == nil {
		return p == o
	}
	return *p == *o
}

func (p *Position) String() string {
	return fmt.Sprintf("%s %s %g @ %.4f mkt=%.4f upl=%.2f",
		p.Type, p.Action, p.Quantity, p.AvgPrice, p.MarketPrice, p.UnrealizedPnL)
}

func (p *Position) recalc() {
	mult := p.QuantityMultiplier * p.PriceMultiplier
	p.InitialValue = p.AvgPrice * p.Quantity * mult
	p.MarketValue = p.MarketPrice * p.Quantity * mult
	p.UnrealizedPnL = p.MarketValue - p.InitialValue

	switch p.Type {
	case symbol.Future:
		p.InitialCost = p.InitialMargin * math.Abs(p.Quantity)
		p.InitMarginRequired = p.InitialMargin * math.Abs(p.Quantity)
		p.MaintenanceMarginRequired = p.MaintenanceMargin * math.Abs(p.Quantity)
		p.LiquidationValue = p.InitialCost + p.UnrealizedPnL
	default:
		p.InitialCost = p.InitialValue
		p.InitMarginRequired = 0
		p.MaintenanceMarginRequired = 0
		p.LiquidationValue = p.MarketValue
	}
}

func (p *Position) impact(cash float64) Impact {
	return Impact{
		InitMarginRequired:        p.InitMarginRequired,
		MaintenanceMarginRequired: p.MaintenanceMarginRequired,
		UnrealizedPnL:             p.UnrealizedPnL,
		LiquidationValue:          p.LiquidationValue,
		Cash:                      cash,
	}
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func sideOf(qty float64, flat string) string {
	switch {
	case qty > 0:
		return Buy
	case qty < 0:
		return Sell
	}
	return flat
}
